package ingest

import (
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Alias maps counterparty spellings to a canonical merchant name. Pattern
// drives the exact pass; Key drives the fuzzy pass against the same table.
type Alias struct {
	Key       string `json:"key"`
	Pattern   string `json:"pattern"`
	Canonical string `json:"canonical"`
}

// defaultAliases cover the common-merchant case. Tenant-specific aliases
// from the store are appended after these.
var defaultAliases = []Alias{
	{Key: "amazon", Pattern: `(?i)\b(amazon|amzn|amz)\b`, Canonical: "Amazon"},
	{Key: "flipkart", Pattern: `(?i)\b(flipkart|fkrt)\b`, Canonical: "Flipkart"},
	{Key: "swiggy", Pattern: `(?i)\bswiggy\b`, Canonical: "Swiggy"},
	{Key: "zomato", Pattern: `(?i)\bzomato\b`, Canonical: "Zomato"},
	{Key: "uber", Pattern: `(?i)\buber\b`, Canonical: "Uber"},
	{Key: "ola", Pattern: `(?i)\bola(cabs)?\b`, Canonical: "Ola"},
	{Key: "rapido", Pattern: `(?i)\brapido\b`, Canonical: "Rapido"},
	{Key: "netflix", Pattern: `(?i)\bnetflix\b`, Canonical: "Netflix"},
	{Key: "spotify", Pattern: `(?i)\bspotify\b`, Canonical: "Spotify"},
	{Key: "hotstar", Pattern: `(?i)\bhotstar\b`, Canonical: "Hotstar"},
	{Key: "bigbasket", Pattern: `(?i)\bbig\s?basket\b`, Canonical: "BigBasket"},
	{Key: "blinkit", Pattern: `(?i)\b(blinkit|grofers)\b`, Canonical: "Blinkit"},
	{Key: "zepto", Pattern: `(?i)\bzepto\b`, Canonical: "Zepto"},
	{Key: "dmart", Pattern: `(?i)\bd\s?mart\b`, Canonical: "DMart"},
	{Key: "myntra", Pattern: `(?i)\bmyntra\b`, Canonical: "Myntra"},
	{Key: "paytm", Pattern: `(?i)\bpaytm\b`, Canonical: "Paytm"},
	{Key: "phonepe", Pattern: `(?i)\bphone\s?pe\b`, Canonical: "PhonePe"},
	{Key: "irctc", Pattern: `(?i)\birctc\b`, Canonical: "IRCTC"},
	{Key: "makemytrip", Pattern: `(?i)\bmake\s?my\s?trip\b`, Canonical: "MakeMyTrip"},
	{Key: "redbus", Pattern: `(?i)\bred\s?bus\b`, Canonical: "RedBus"},
	{Key: "airtel", Pattern: `(?i)\bairtel\b`, Canonical: "Airtel"},
	{Key: "jio", Pattern: `(?i)\bjio\b`, Canonical: "Jio"},
	{Key: "vodafone", Pattern: `(?i)\b(vodafone|vi)\b`, Canonical: "Vodafone"},
	{Key: "starbucks", Pattern: `(?i)\bstarbucks\b`, Canonical: "Starbucks"},
	{Key: "mcdonalds", Pattern: `(?i)\bmc\s?donald'?s?\b`, Canonical: "McDonald's"},
	{Key: "dominos", Pattern: `(?i)\bdomino'?s?\b`, Canonical: "Domino's"},
	{Key: "apollo", Pattern: `(?i)\bapollo\b`, Canonical: "Apollo Pharmacy"},
}

// noisePrefixes are stripped from the front of a raw counterparty string,
// first hit only.
var noisePrefixes = []string{
	"UPI-", "UPI/", "UPI ",
	"POS-", "POS/", "POS ",
	"VPA-", "VPA ",
	"NEFT-", "NEFT/",
	"IMPS-", "IMPS/",
	"ATM-", "ATW-",
	"ECOM-", "ECOM ",
	"PAYMENT TO ", "PAY TO ",
	"MR ", "MRS ", "MS ", "M/S ",
}

var (
	vpaHandleRe  = regexp.MustCompile(`@[A-Za-z0-9.]+`)
	trailingIDRe = regexp.MustCompile(`(?:[\s#\-]*\d{4,})+$`)
	separatorRe  = regexp.MustCompile(`[*_/|]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

const (
	fuzzyAliasThreshold = 85.0 // out of 100
	minFuzzyKeyLen      = 4
)

// Normalizer canonicalizes raw counterparty strings: noise stripping, then
// exact alias regexes, then fuzzy token similarity against the same alias
// keys, then a title-cased fallback. Normalize is idempotent.
type Normalizer struct {
	aliases []compiledAlias
	caser   cases.Caser
}

type compiledAlias struct {
	re        *regexp.Regexp
	key       string
	canonical string
}

// NewNormalizer builds a normalizer over the default alias table plus any
// extra tenant aliases. Aliases with malformed patterns are dropped.
func NewNormalizer(extra ...Alias) *Normalizer {
	n := &Normalizer{caser: cases.Title(language.English)}
	for _, a := range append(append([]Alias{}, defaultAliases...), extra...) {
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			continue
		}
		n.aliases = append(n.aliases, compiledAlias{re: re, key: strings.ToLower(a.Key), canonical: a.Canonical})
	}
	return n
}

// Normalize returns the canonical display name for a raw counterparty.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := cleanCounterparty(raw)
	if cleaned == "" {
		return ""
	}

	// Exact pass: high precision, covers the common case.
	for _, a := range n.aliases {
		if a.re.MatchString(cleaned) {
			return a.canonical
		}
	}

	// Fuzzy pass: recovers spelling/ordering variants without an alias
	// entry per variant.
	lower := strings.ToLower(cleaned)
	tokens := append(strings.Fields(lower), lower)
	for _, a := range n.aliases {
		if len(a.key) < minFuzzyKeyLen {
			continue
		}
		for _, token := range tokens {
			if similarity(token, a.key) >= fuzzyAliasThreshold {
				return a.canonical
			}
		}
	}

	return n.caser.String(strings.ToLower(cleaned))
}

// similarity is a normalized edit-distance ratio on a 0–100 scale.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions) * 100
}

// cleanCounterparty strips transport noise from a raw counterparty string:
// channel prefixes, VPA handles, separator runs, trailing numeric ids.
func cleanCounterparty(raw string) string {
	s := strings.TrimSpace(raw)

	upper := strings.ToUpper(s)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			s = s[len(prefix):]
			break
		}
	}

	s = vpaHandleRe.ReplaceAllString(s, "")
	s = separatorRe.ReplaceAllString(s, " ")
	s = trailingIDRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
