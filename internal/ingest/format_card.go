package ingest

import (
	"regexp"
	"strings"
)

// cardSMSCandidates cover card-spend phrasings. Refunds come last: a
// message mentioning both a spend and a refund is a spend alert.
var cardSMSCandidates = []smsCandidate{
	{
		name: "card-spent",
		re: regexp.MustCompile(`(?i)spent\s+` + currency + amountGroup +
			`\s+on\s+(?:your\s+)?[\w ]*card\s*(?:ending\s+|no\.?\s*)?` + maskGroup +
			`\s+(?:at|on)\s+(?P<merchant>[^.\n]+?)` + datePart + endPart),
		direction: Debit,
	},
	{
		name: "card-used",
		re: regexp.MustCompile(`(?i)card\s*(?:ending\s+|no\.?\s*)?` + maskGroup +
			`\s+(?:has been\s+|was\s+)?used\s+for\s+(?:a\s+)?(?:transaction|purchase)\s+of\s+` + currency + amountGroup +
			`(?:\s+at\s+(?P<merchant>[^.\n]+?))?` + datePart + endPart),
		direction: Debit,
	},
	{
		name: "card-refund",
		re: regexp.MustCompile(`(?i)refund\s+of\s+` + currency + amountGroup +
			`\s+(?:has been\s+|was\s+)?credited\s+to\s+(?:your\s+)?[\w ]*card\s*(?:ending\s+|no\.?\s*)?` + maskGroup +
			`(?:\s+(?:from|by)\s+(?P<merchant>[^.\n]+?))?` + datePart + endPart),
		direction: Credit,
	},
}

// CardSMSExtractor parses card-spend and card-refund SMS alerts.
type CardSMSExtractor struct {
	candidates []smsCandidate
}

func NewCardSMSExtractor() *CardSMSExtractor {
	return &CardSMSExtractor{candidates: cardSMSCandidates}
}

func (e *CardSMSExtractor) Name() string { return "card-sms" }

func (e *CardSMSExtractor) CanHandle(msg RawMessage) bool {
	return msg.Source == SourceSMS && strings.Contains(strings.ToLower(msg.Body), "card")
}

func (e *CardSMSExtractor) Extract(msg RawMessage) (*Transaction, error) {
	for _, c := range e.candidates {
		match := c.re.FindStringSubmatch(msg.Body)
		if match == nil {
			continue
		}
		groups := captures(c.re, match)
		tx := assembleFormatTransaction(e.Name(), groups, c.direction, "card", msg)
		if tx != nil {
			return tx, nil
		}
	}
	return nil, nil
}
