package ingest

import (
	"regexp"
	"strings"
)

// Email bodies spell dates out ("02 Sep 2025"), so the date group admits
// spaces and commas; the non-greedy match stops at the merchant clause.
const emailDatePart = `(?:\s+on\s+(?P<date>[\dA-Za-z,./ -]+?))?`

var emailCandidates = []smsCandidate{
	{
		name: "email-debit",
		re: regexp.MustCompile(`(?i)` + currency + amountGroup +
			`\s+(?:has been\s+|was\s+|is\s+)?debited\s+from\s+(?:your\s+)?(?:account|a/c)\s*(?:no\.?\s*)?` + maskGroup +
			emailDatePart +
			`(?:\s+(?:at|to|towards)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Debit,
	},
	{
		name: "email-card-transaction",
		re: regexp.MustCompile(`(?i)transaction\s+of\s+` + currency + amountGroup +
			`\s+(?:was\s+|has been\s+)?made\s+on\s+(?:your\s+)?[\w ]*card\s*(?:ending\s+|no\.?\s*)?` + maskGroup +
			`(?:\s+at\s+(?P<merchant>[^.\n]+?))?` + emailDatePart + endPart),
		direction: Debit,
	},
	{
		name: "email-credit",
		re: regexp.MustCompile(`(?i)` + currency + amountGroup +
			`\s+(?:has been\s+|was\s+|is\s+)?credited\s+to\s+(?:your\s+)?(?:account|a/c)\s*(?:no\.?\s*)?` + maskGroup +
			emailDatePart +
			`(?:\s+(?:from|by)\s+(?:vpa\s+)?(?P<merchant>[^.\n]+?))?` + endPart),
		direction: Credit,
	},
}

var emailSubjectHints = []string{
	"transaction alert",
	"debit alert",
	"credit alert",
	"transaction confirmation",
	"payment alert",
	"account update",
}

// BankEmailExtractor parses transaction-alert emails, keyed on the sender
// address and subject line rather than body vocabulary.
type BankEmailExtractor struct {
	candidates []smsCandidate
}

func NewBankEmailExtractor() *BankEmailExtractor {
	return &BankEmailExtractor{candidates: emailCandidates}
}

func (e *BankEmailExtractor) Name() string { return "bank-email" }

func (e *BankEmailExtractor) CanHandle(msg RawMessage) bool {
	if msg.Source != SourceEmail {
		return false
	}
	sender := strings.ToLower(msg.Sender)
	if strings.Contains(sender, "alert") || strings.Contains(sender, "bank") || bankFromSender(sender) != "" {
		return true
	}
	subject := strings.ToLower(msg.Subject)
	for _, hint := range emailSubjectHints {
		if strings.Contains(subject, hint) {
			return true
		}
	}
	return false
}

func (e *BankEmailExtractor) Extract(msg RawMessage) (*Transaction, error) {
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
