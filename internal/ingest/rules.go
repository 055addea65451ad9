package ingest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// FieldMapping resolves one transaction field from a rule match: a named
// capture first, then a one-based group index, then a literal default.
type FieldMapping struct {
	Capture string `json:"capture,omitempty"`
	Group   int    `json:"group,omitempty"`
	Literal string `json:"literal,omitempty"`
}

// PatternRule is a tenant-taught regex plus field mapping, created by the
// labeling workflow and consumed read-only by the engine. Lower confidence
// than a format extractor because it is heuristically taught, not verified.
type PatternRule struct {
	ID       string                  `json:"id"`
	TenantID string                  `json:"tenant_id"`
	Source   Source                  `json:"source"`
	Pattern  string                  `json:"pattern"`
	Fields   map[string]FieldMapping `json:"fields"` // keys: amount, date, merchant, mask, type, ref
	Priority int                     `json:"priority"`
	Active   bool                    `json:"active"`
}

// RuleStore supplies the active pattern rules for a tenant and source.
type RuleStore interface {
	ListPatternRules(ctx context.Context, tenantID string, source Source) ([]PatternRule, error)
}

// RuleEngine evaluates tenant pattern rules against a message. Compiled
// regexes are cached per rule id + pattern text.
type RuleEngine struct {
	store RuleStore

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func NewRuleEngine(store RuleStore) *RuleEngine {
	return &RuleEngine{
		store:    store,
		compiled: make(map[string]*regexp.Regexp),
	}
}

func (e *RuleEngine) compile(rule PatternRule) (*regexp.Regexp, error) {
	key := rule.ID + "\x00" + rule.Pattern
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.compiled[key]; ok {
		return re, nil
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, err
	}
	e.compiled[key] = re
	return re, nil
}

// resolveField applies a FieldMapping against a match. Named capture wins
// over group index, which wins over the literal default.
func resolveField(re *regexp.Regexp, match []string, m FieldMapping) string {
	if m.Capture != "" {
		if idx := re.SubexpIndex(m.Capture); idx > 0 && idx < len(match) && match[idx] != "" {
			return strings.TrimSpace(match[idx])
		}
	}
	if m.Group > 0 && m.Group < len(match) && match[m.Group] != "" {
		return strings.TrimSpace(match[m.Group])
	}
	return m.Literal
}

// Extract applies the tenant's active rules in priority-descending order
// and returns the first resolvable match. A malformed rule regex is skipped
// with a warning rather than aborting; a rule whose amount does not resolve
// is not a match. Returned logs describe each rule's outcome.
func (e *RuleEngine) Extract(ctx context.Context, tenantID string, msg RawMessage) (*Transaction, []string, error) {
	rules, err := e.store.ListPatternRules(ctx, tenantID, msg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("list pattern rules: %w", err)
	}

	active := rules[:0:0]
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })

	var logs []string
	for _, rule := range active {
		re, err := e.compile(rule)
		if err != nil {
			logs = append(logs, fmt.Sprintf("rule %s: malformed regex, skipped: %v", rule.ID, err))
			continue
		}
		match := re.FindStringSubmatch(msg.Body)
		if match == nil {
			continue
		}

		amount, ok := parseMoney(resolveField(re, match, rule.Fields["amount"]))
		if !ok {
			logs = append(logs, fmt.Sprintf("rule %s: matched but amount did not resolve, skipped", rule.ID))
			continue
		}

		direction := Debit
		if strings.EqualFold(resolveField(re, match, rule.Fields["type"]), string(Credit)) {
			direction = Credit
		}

		occurred := parseSMSDate(resolveField(re, match, rule.Fields["date"]))
		if occurred.IsZero() {
			occurred = msg.ReceivedAt
		}

		rawMerchant := resolveField(re, match, rule.Fields["merchant"])
		ref := resolveField(re, match, rule.Fields["ref"])
		if ref == "" {
			ref = findReference(nil, msg.Body)
		}

		tx := &Transaction{
			Amount:      amount,
			Direction:   direction,
			OccurredAt:  occurred,
			Account:     AccountHint{Mask: resolveField(re, match, rule.Fields["mask"])},
			Merchant:    Merchant{Raw: rawMerchant},
			ReferenceID: ref,
			Confidence:  PatternConfidence,
			Provenance:  "pattern:" + rule.ID,
		}
		logs = append(logs, fmt.Sprintf("rule %s: matched", rule.ID))
		return tx, logs, nil
	}
	return nil, logs, nil
}

// SynthesizeRule builds a pattern rule from a confirmed example: the raw
// body with the confirmed amount, mask, merchant and reference replaced by
// capture groups. The labeling workflow persists the result after review.
func SynthesizeRule(tenantID string, msg RawMessage, confirmed Transaction) PatternRule {
	pattern := regexp.QuoteMeta(msg.Body)

	replace := func(literal, group string) {
		if literal == "" {
			return
		}
		quoted := regexp.QuoteMeta(literal)
		pattern = strings.Replace(pattern, quoted, group, 1)
	}

	replace(confirmed.Amount.StringFixed(2), `(?P<amount>[\d,]+(?:\.\d{1,2})?)`)
	replace(confirmed.Amount.String(), `(?P<amount>[\d,]+(?:\.\d{1,2})?)`)
	replace(confirmed.Account.Mask, `(?P<mask>[Xx\*]*\d+)`)
	replace(confirmed.Merchant.Raw, `(?P<merchant>[^.\n]+?)`)
	replace(confirmed.ReferenceID, `(?P<ref>[A-Za-z0-9]+)`)

	return PatternRule{
		ID:       fmt.Sprintf("learned-%d", time.Now().UnixNano()),
		TenantID: tenantID,
		Source:   msg.Source,
		Pattern:  pattern,
		Fields: map[string]FieldMapping{
			"amount":   {Capture: "amount"},
			"mask":     {Capture: "mask"},
			"merchant": {Capture: "merchant"},
			"ref":      {Capture: "ref"},
			"type":     {Literal: string(confirmed.Direction)},
		},
		Priority: 0,
		Active:   true,
	}
}
