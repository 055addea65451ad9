package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// smsDateFormats are tried in order when parsing dates out of message text.
// Bank messages are inconsistent even within one bank, so the list is long.
var smsDateFormats = []string{
	"02-01-2006",
	"02/01/2006",
	"02-01-06",
	"02/01/06",
	"2006-01-02",
	"02-Jan-2006",
	"02-Jan-06",
	"2-Jan-2006",
	"02Jan2006",
	"02Jan06",
	"2 Jan 2006",
	"2 Jan 06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"02.01.2006",
	"02.01.06",
}

// refFallbackRe recovers a bank reference/UTR when an extractor's own
// pattern has no reference group. Applied to the whole body.
var refFallbackRe = regexp.MustCompile(
	`(?i)\b(?:ref(?:erence)?(?:\s*(?:no|number|id))?\.?|utr(?:\s*(?:no|number))?\.?)[:\s-]*([A-Za-z0-9]{4,})`)

// balanceRe and limitRe capture point-in-time account snapshots anywhere in
// the body.
var balanceRe = regexp.MustCompile(
	`(?i)(?:avl|available|a/c)\s*bal(?:ance)?\.?[:\s]*(?:rs\.?|inr|₹)?\s*([\d,]+(?:\.\d{1,2})?)`)
var limitRe = regexp.MustCompile(
	`(?i)(?:avl|available)\s*(?:credit\s*)?limit\.?[:\s]*(?:rs\.?|inr|₹)?\s*([\d,]+(?:\.\d{1,2})?)`)

// parseMoney parses a currency magnitude like "1,234.00". Returns false if
// the string is not a parseable positive amount.
func parseMoney(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "₹")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || d.IsZero() {
		return decimal.Zero, false
	}
	return d, true
}

// parseSMSDate tries the locale date formats in order, failing soft to the
// zero time. Two-digit years land in the 2000s.
func parseSMSDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, format := range smsDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			if t.Year() < 100 {
				t = t.AddDate(2000, 0, 0)
			}
			return t
		}
	}
	return time.Time{}
}

// captures returns the named capture groups of a match as a map. Absent and
// empty groups are omitted.
func captures(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		if v := strings.TrimSpace(match[i]); v != "" {
			out[name] = v
		}
	}
	return out
}

// findReference returns the pattern's own ref capture when present, else
// the documented generic fallback applied to the full body.
func findReference(groups map[string]string, body string) string {
	if ref, ok := groups["ref"]; ok {
		return ref
	}
	if m := refFallbackRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// findSnapshots extracts optional balance and credit-limit statements from
// the body.
func findSnapshots(body string) (balance, limit *decimal.Decimal) {
	if m := balanceRe.FindStringSubmatch(body); m != nil {
		if d, ok := parseMoney(m[1]); ok {
			balance = &d
		}
	}
	if m := limitRe.FindStringSubmatch(body); m != nil {
		if d, ok := parseMoney(m[1]); ok {
			limit = &d
		}
	}
	return balance, limit
}

// assembleFormatTransaction builds a Transaction out of a format extractor's
// capture groups. Returns nil when the amount is missing or unparseable:
// a phrasing match without an amount is not a transaction.
func assembleFormatTransaction(extractorName string, groups map[string]string, direction Direction, providerHint string, msg RawMessage) *Transaction {
	amount, ok := parseMoney(groups["amount"])
	if !ok {
		return nil
	}

	occurred := parseSMSDate(groups["date"])
	if occurred.IsZero() {
		occurred = msg.ReceivedAt // fail soft; validator substitutes "now" last
	}

	rawMerchant := strings.TrimSpace(strings.Trim(groups["merchant"], ".,:;- "))
	balance, limit := findSnapshots(msg.Body)

	tx := &Transaction{
		Amount:      amount,
		Direction:   direction,
		OccurredAt:  occurred,
		Account:     AccountHint{Mask: groups["mask"], ProviderHint: providerHint},
		Merchant:    Merchant{Raw: rawMerchant},
		ReferenceID: findReference(groups, msg.Body),
		Balance:     balance,
		CreditLimit: limit,
		Confidence:  FormatConfidence,
		Provenance:  "format:" + extractorName,
	}
	return tx
}
