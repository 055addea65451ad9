package ingest

import "strings"

// Keyword sets for the cheap classification gate. Negative keywords veto a
// message outright: a false positive here corrupts the ledger, so precision
// wins over recall.
var negativeKeywords = []string{
	"otp",
	"one time password",
	"verification code",
	"do not share",
	"login",
	"password",
	"pre-approved",
	"pre approved",
	"offer expires",
	"click here",
	"apply now",
	"cashback offer",
	"win ",
	"congratulations",
	"lucky draw",
	"recharge now",
	"has requested",
	"payment request",
	"will be debited", // future-tense reminders, not transactions
	"due on",
	"is due",
}

var positiveKeywords = []string{
	"debited",
	"credited",
	"spent",
	"withdrawn",
	"purchase",
	"payment of",
	"paid",
	"transferred",
	"received",
	"upi",
	"imps",
	"neft",
	"a/c",
	"acct",
	"card",
	"txn",
	"transaction",
	"ref no",
	"avl bal",
	"available balance",
}

var currencyMarkers = []string{
	"rs.",
	"rs ",
	"inr",
	"₹",
}

// IsFinancial reports whether text plausibly describes a financial
// transaction. Any negative keyword is an immediate reject, regardless of
// positive signal; otherwise positive keywords score +1 each and a currency
// marker scores +2, accepting at score >= 1.
func IsFinancial(text string, source Source) bool {
	lower := strings.ToLower(text)

	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	score := 0
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	for _, marker := range currencyMarkers {
		if strings.Contains(lower, marker) {
			score += 2
			break
		}
	}

	return score >= 1
}
