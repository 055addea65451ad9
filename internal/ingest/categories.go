package ingest

import "strings"

// Category names handed to downstream consumers. A miss is "", which
// consumers treat as Uncategorized; a wrong guess is worse than no guess.
const (
	CategoryFood          = "Food & Dining"
	CategoryGroceries     = "Groceries"
	CategoryTravel        = "Travel"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryUtilities     = "Utilities"
	CategoryHealth        = "Health"
	CategoryFuel          = "Fuel"
)

// categoryKeywords maps merchant/description keywords to categories.
var categoryKeywords = map[string]string{
	"swiggy":     CategoryFood,
	"zomato":     CategoryFood,
	"starbucks":  CategoryFood,
	"mcdonald":   CategoryFood,
	"domino":     CategoryFood,
	"restaurant": CategoryFood,
	"cafe":       CategoryFood,

	"bigbasket": CategoryGroceries,
	"blinkit":   CategoryGroceries,
	"zepto":     CategoryGroceries,
	"dmart":     CategoryGroceries,
	"grocer":    CategoryGroceries,
	"kirana":    CategoryGroceries,

	"uber":       CategoryTravel,
	"ola":        CategoryTravel,
	"rapido":     CategoryTravel,
	"irctc":      CategoryTravel,
	"makemytrip": CategoryTravel,
	"redbus":     CategoryTravel,
	"indigo":     CategoryTravel,
	"metro":      CategoryTravel,

	"amazon":   CategoryShopping,
	"flipkart": CategoryShopping,
	"myntra":   CategoryShopping,
	"ajio":     CategoryShopping,

	"netflix":    CategoryEntertainment,
	"spotify":    CategoryEntertainment,
	"hotstar":    CategoryEntertainment,
	"bookmyshow": CategoryEntertainment,

	"airtel":      CategoryUtilities,
	"jio":         CategoryUtilities,
	"vodafone":    CategoryUtilities,
	"electricity": CategoryUtilities,
	"bescom":      CategoryUtilities,
	"broadband":   CategoryUtilities,

	"apollo":   CategoryHealth,
	"pharmacy": CategoryHealth,
	"1mg":      CategoryHealth,
	"hospital": CategoryHealth,

	"petrol": CategoryFuel,
	"fuel":   CategoryFuel,
	"hpcl":   CategoryFuel,
	"iocl":   CategoryFuel,
	"bpcl":   CategoryFuel,
}

// GuessCategory assigns a best-effort category from the canonical merchant
// name and description. Returns "" rather than a wrong guess.
func GuessCategory(merchantCanonical, description string) string {
	haystack := strings.ToLower(merchantCanonical + " " + description)
	for keyword, category := range categoryKeywords {
		if strings.Contains(haystack, keyword) {
			return category
		}
	}
	return ""
}
