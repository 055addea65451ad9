package ingest

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

type stubRuleStore struct {
	rules []PatternRule
	err   error
}

func (s *stubRuleStore) ListPatternRules(ctx context.Context, tenantID string, source Source) ([]PatternRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []PatternRule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.Source == source {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestRuleEngine_Extract(t *testing.T) {
	store := &stubRuleStore{rules: []PatternRule{
		{
			ID:       "coop-bank-debit",
			TenantID: "t1",
			Source:   SourceSMS,
			Pattern:  `Dear customer, (?P<amount>[\d,]+\.\d{2}) deducted from (?P<mask>X+\d+) for (?P<merchant>[^.]+)\.`,
			Fields: map[string]FieldMapping{
				"amount":   {Capture: "amount"},
				"mask":     {Capture: "mask"},
				"merchant": {Capture: "merchant"},
				"type":     {Literal: string(Debit)},
			},
			Priority: 5,
			Active:   true,
		},
	}}
	engine := NewRuleEngine(store)

	msg := RawMessage{
		Source:     SourceSMS,
		Body:       "Dear customer, 1,450.00 deducted from XXX8899 for GROFERS ONLINE. Ref 556677",
		ReceivedAt: received,
	}
	tx, logs, err := engine.Extract(context.Background(), "t1", msg)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx == nil {
		t.Fatalf("Extract() returned nil, logs: %v", logs)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("1450.00")) {
		t.Errorf("Amount = %s, want 1450.00", tx.Amount)
	}
	if tx.Direction != Debit {
		t.Errorf("Direction = %s, want %s", tx.Direction, Debit)
	}
	if tx.Account.Mask != "XXX8899" {
		t.Errorf("Mask = %q, want XXX8899", tx.Account.Mask)
	}
	if tx.Merchant.Raw != "GROFERS ONLINE" {
		t.Errorf("Merchant.Raw = %q, want GROFERS ONLINE", tx.Merchant.Raw)
	}
	// No ref mapping on the rule, so the generic fallback recovers it.
	if tx.ReferenceID != "556677" {
		t.Errorf("ReferenceID = %q, want 556677", tx.ReferenceID)
	}
	if tx.Confidence != PatternConfidence {
		t.Errorf("Confidence = %v, want %v", tx.Confidence, PatternConfidence)
	}
	if tx.Provenance != "pattern:coop-bank-debit" {
		t.Errorf("Provenance = %q", tx.Provenance)
	}
	// The rule carries no date mapping, so the receive time stands in.
	if !tx.OccurredAt.Equal(received) {
		t.Errorf("OccurredAt = %s, want %s", tx.OccurredAt, received)
	}
}

func TestRuleEngine_PriorityOrder(t *testing.T) {
	rule := func(id string, priority int) PatternRule {
		return PatternRule{
			ID:       id,
			TenantID: "t1",
			Source:   SourceSMS,
			Pattern:  `(?P<amount>[\d.]+) spent`,
			Fields:   map[string]FieldMapping{"amount": {Capture: "amount"}},
			Priority: priority,
			Active:   true,
		}
	}
	store := &stubRuleStore{rules: []PatternRule{rule("low", 1), rule("high", 9)}}
	engine := NewRuleEngine(store)

	tx, _, err := engine.Extract(context.Background(), "t1", RawMessage{Source: SourceSMS, Body: "120.00 spent", ReceivedAt: received})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx == nil {
		t.Fatal("Extract() returned nil")
	}
	if tx.Provenance != "pattern:high" {
		t.Errorf("Provenance = %q, want pattern:high", tx.Provenance)
	}
}

func TestRuleEngine_SkipsMalformedAndInactive(t *testing.T) {
	store := &stubRuleStore{rules: []PatternRule{
		{
			ID: "broken", TenantID: "t1", Source: SourceSMS,
			Pattern: `([unclosed`, Priority: 10, Active: true,
			Fields: map[string]FieldMapping{"amount": {Group: 1}},
		},
		{
			ID: "inactive", TenantID: "t1", Source: SourceSMS,
			Pattern: `(?P<amount>[\d.]+) spent`, Priority: 8, Active: false,
			Fields: map[string]FieldMapping{"amount": {Capture: "amount"}},
		},
		{
			ID: "good", TenantID: "t1", Source: SourceSMS,
			Pattern: `(?P<amount>[\d.]+) spent`, Priority: 1, Active: true,
			Fields: map[string]FieldMapping{"amount": {Capture: "amount"}},
		},
	}}
	engine := NewRuleEngine(store)

	tx, logs, err := engine.Extract(context.Background(), "t1", RawMessage{Source: SourceSMS, Body: "99.00 spent", ReceivedAt: received})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx == nil {
		t.Fatal("Extract() returned nil")
	}
	if tx.Provenance != "pattern:good" {
		t.Errorf("Provenance = %q, want pattern:good", tx.Provenance)
	}
	foundSkip := false
	for _, l := range logs {
		if strings.Contains(l, "broken") && strings.Contains(l, "malformed") {
			foundSkip = true
		}
		if strings.Contains(l, "inactive") {
			t.Errorf("inactive rule was evaluated: %q", l)
		}
	}
	if !foundSkip {
		t.Errorf("no malformed-regex log entry, logs: %v", logs)
	}
}

func TestRuleEngine_AmountMustResolve(t *testing.T) {
	store := &stubRuleStore{rules: []PatternRule{{
		ID: "no-amount", TenantID: "t1", Source: SourceSMS,
		Pattern: `payment done`, Priority: 1, Active: true,
		Fields: map[string]FieldMapping{"merchant": {Literal: "Someone"}},
	}}}
	engine := NewRuleEngine(store)

	tx, logs, err := engine.Extract(context.Background(), "t1", RawMessage{Source: SourceSMS, Body: "payment done", ReceivedAt: received})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx != nil {
		t.Fatalf("Extract() = %+v, want nil when amount does not resolve", tx)
	}
	if len(logs) == 0 || !strings.Contains(logs[0], "amount did not resolve") {
		t.Errorf("logs = %v, want amount-skip entry", logs)
	}
}

func TestRuleEngine_StoreError(t *testing.T) {
	engine := NewRuleEngine(&stubRuleStore{err: errors.New("backend down")})
	_, _, err := engine.Extract(context.Background(), "t1", RawMessage{Source: SourceSMS, Body: "x", ReceivedAt: received})
	if err == nil {
		t.Fatal("Extract() error = nil, want store error surfaced")
	}
}

func TestResolveField_Precedence(t *testing.T) {
	re := regexpMustCompileT(t, `(?P<amount>\d+) and (\w+)`)
	match := re.FindStringSubmatch("42 and extra")

	tests := []struct {
		name string
		m    FieldMapping
		want string
	}{
		{"capture wins", FieldMapping{Capture: "amount", Group: 2, Literal: "lit"}, "42"},
		{"group next", FieldMapping{Capture: "missing", Group: 2, Literal: "lit"}, "extra"},
		{"literal last", FieldMapping{Capture: "missing", Group: 9, Literal: "lit"}, "lit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveField(re, match, tt.m); got != tt.want {
				t.Errorf("resolveField() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesizeRule_RoundTrip(t *testing.T) {
	msg := RawMessage{
		Source:     SourceSMS,
		Body:       "Dear customer, Rs.820.00 deducted from XX7755 for DECATHLON BANGALORE. Ref 90817263",
		ReceivedAt: received,
	}
	confirmed := Transaction{
		Amount:      decimal.RequireFromString("820.00"),
		Direction:   Debit,
		Account:     AccountHint{Mask: "XX7755"},
		Merchant:    Merchant{Raw: "DECATHLON BANGALORE"},
		ReferenceID: "90817263",
	}
	rule := SynthesizeRule("t1", msg, confirmed)
	if rule.TenantID != "t1" || rule.Source != SourceSMS || !rule.Active {
		t.Fatalf("unexpected rule envelope: %+v", rule)
	}

	// The synthesized rule must re-extract the very message it was taught on.
	store := &stubRuleStore{rules: []PatternRule{rule}}
	engine := NewRuleEngine(store)
	tx, logs, err := engine.Extract(context.Background(), "t1", msg)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx == nil {
		t.Fatalf("synthesized rule did not match its own example, pattern %q, logs %v", rule.Pattern, logs)
	}
	if !tx.Amount.Equal(confirmed.Amount) {
		t.Errorf("Amount = %s, want %s", tx.Amount, confirmed.Amount)
	}
	if tx.Account.Mask != "XX7755" {
		t.Errorf("Mask = %q, want XX7755", tx.Account.Mask)
	}
	if tx.Merchant.Raw != "DECATHLON BANGALORE" {
		t.Errorf("Merchant.Raw = %q", tx.Merchant.Raw)
	}
	if tx.ReferenceID != "90817263" {
		t.Errorf("ReferenceID = %q, want 90817263", tx.ReferenceID)
	}
	if tx.Direction != Debit {
		t.Errorf("Direction = %s, want %s", tx.Direction, Debit)
	}

	// A different message should not match a whole-body synthesized pattern.
	other := RawMessage{Source: SourceSMS, Body: "Completely different text", ReceivedAt: received}
	tx, _, err = engine.Extract(context.Background(), "t1", other)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if tx != nil {
		t.Errorf("synthesized rule matched unrelated message")
	}
}

func regexpMustCompileT(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatalf("compile %q: %v", pattern, err)
	}
	return re
}
