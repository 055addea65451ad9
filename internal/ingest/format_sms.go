package ingest

import (
	"regexp"
	"strings"
)

// smsCandidate is one phrasing a format extractor knows. Candidates are
// tried in a fixed priority order; the first match wins.
type smsCandidate struct {
	name      string
	re        *regexp.Regexp
	direction Direction
}

const (
	amountGroup = `(?P<amount>[\d,]+(?:\.\d{1,2})?)`
	maskGroup   = `(?P<mask>[Xx\*]*\d+)`
	currency    = `(?:rs\.?|inr|₹)\s*`
	datePart    = `(?:\s+on\s+(?P<date>[\dA-Za-z./-]+?))?`
	endPart     = `(?:[.\n]|$)`
)

// accountSMSCandidates cover account debit, transfer and credit phrasings,
// in that priority order.
var accountSMSCandidates = []smsCandidate{
	{
		name: "debit-amount-first",
		re: regexp.MustCompile(`(?i)` + currency + amountGroup +
			`\s+(?:has been\s+|is\s+|was\s+)?debited\s+from\s+(?:your\s+)?a/?c(?:count)?\s*(?:no\.?\s*)?` + maskGroup +
			datePart +
			`(?:\s+(?:to|towards|at)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Debit,
	},
	{
		name: "debit-account-first",
		re: regexp.MustCompile(`(?i)a/?c(?:count)?\s*(?:no\.?\s*)?` + maskGroup +
			`\s+(?:is\s+|has been\s+|was\s+)?debited\s+(?:by|for|with)\s+` + currency + amountGroup +
			datePart +
			`(?:\s+(?:to|towards|at)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Debit,
	},
	{
		name: "transfer-paid-to",
		re: regexp.MustCompile(`(?i)(?:paid|sent)\s+` + currency + amountGroup +
			`\s+to\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?)` +
			`(?:\s+via\s+[A-Za-z]+)?` +
			`(?:\s+from\s+(?:your\s+)?a/?c\s*(?:no\.?\s*)?` + maskGroup + `)?` +
			datePart + endPart),
		direction: Debit,
	},
	{
		name: "credit-amount-first",
		re: regexp.MustCompile(`(?i)` + currency + amountGroup +
			`\s+(?:has been\s+|is\s+|was\s+)?credited\s+to\s+(?:your\s+)?a/?c(?:count)?\s*(?:no\.?\s*)?` + maskGroup +
			datePart +
			`(?:\s+(?:from|by)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Credit,
	},
	{
		name: "credit-account-first",
		re: regexp.MustCompile(`(?i)a/?c(?:count)?\s*(?:no\.?\s*)?` + maskGroup +
			`\s+(?:is\s+|has been\s+|was\s+)?credited\s+(?:by|with|for)\s+` + currency + amountGroup +
			datePart +
			`(?:\s+(?:from|by)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Credit,
	},
}

// senderBankHints maps DLT sender-id fragments to a provider hint.
var senderBankHints = map[string]string{
	"hdfc":  "HDFC",
	"icici": "ICICI",
	"sbi":   "SBI",
	"axis":  "AXIS",
	"kotak": "KOTAK",
	"pnb":   "PNB",
	"idfc":  "IDFC",
	"yes":   "YES",
}

func bankFromSender(sender string) string {
	lower := strings.ToLower(sender)
	for fragment, bank := range senderBankHints {
		if strings.Contains(lower, fragment) {
			return bank
		}
	}
	return ""
}

// AccountSMSExtractor parses account-level bank SMS: debits, credits and
// UPI/VPA transfers phrased against an a/c mask.
type AccountSMSExtractor struct {
	candidates []smsCandidate
}

func NewAccountSMSExtractor() *AccountSMSExtractor {
	return &AccountSMSExtractor{candidates: accountSMSCandidates}
}

func (e *AccountSMSExtractor) Name() string { return "account-sms" }

func (e *AccountSMSExtractor) CanHandle(msg RawMessage) bool {
	if msg.Source != SourceSMS {
		return false
	}
	lower := strings.ToLower(msg.Body)
	return strings.Contains(lower, "a/c") ||
		strings.Contains(lower, "acct") ||
		strings.Contains(lower, "account") ||
		strings.Contains(lower, "paid") ||
		strings.Contains(lower, "sent")
}

func (e *AccountSMSExtractor) Extract(msg RawMessage) (*Transaction, error) {
	for _, c := range e.candidates {
		match := c.re.FindStringSubmatch(msg.Body)
		if match == nil {
			continue
		}
		groups := captures(c.re, match)
		tx := assembleFormatTransaction(e.Name(), groups, c.direction, bankFromSender(msg.Sender), msg)
		if tx != nil {
			return tx, nil
		}
	}
	return nil, nil
}
