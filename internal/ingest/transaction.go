package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sole sign carrier for a transaction; Amount is always a
// non-negative magnitude.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// AccountHint carries what the message said about the account. It is a hint,
// not a resolved identity; resolution is the account resolver's job.
type AccountHint struct {
	Mask         string `json:"mask,omitempty"`          // e.g. "XX1234"
	ProviderHint string `json:"provider_hint,omitempty"` // e.g. "HDFC", "card"
}

// MaskSuffix returns the last four digit characters of the mask, used for
// cross-source matching.
func (a AccountHint) MaskSuffix() string {
	var digits []byte
	for i := 0; i < len(a.Mask); i++ {
		if a.Mask[i] >= '0' && a.Mask[i] <= '9' {
			digits = append(digits, a.Mask[i])
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return string(digits)
}

// Merchant is the counterparty as extracted and after normalization.
type Merchant struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
}

// Transaction is the canonical extracted transaction produced by the
// pipeline. All extractors and adapters converge on this one shape.
type Transaction struct {
	Amount      decimal.Decimal  `json:"amount"`
	Direction   Direction        `json:"direction"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Account     AccountHint      `json:"account"`
	Merchant    Merchant         `json:"merchant"`
	Description string           `json:"description"`
	ReferenceID string           `json:"reference_id"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	CreditLimit *decimal.Decimal `json:"credit_limit,omitempty"`

	CategoryHint string   `json:"category_hint,omitempty"`
	Confidence   float64  `json:"confidence"`
	Provenance   string   `json:"provenance"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Extractor confidence levels. Format extractors encode verified bank
// phrasings; pattern rules are heuristically taught; AI output is capped.
const (
	FormatConfidence  = 1.0
	PatternConfidence = 0.5
	MaxAIConfidence   = 0.9
)

// FallbackReferenceID synthesizes a deterministic reference id from the
// transaction's timestamp, mask and amount, so downstream idempotency never
// operates on an empty key.
func (t *Transaction) FallbackReferenceID() string {
	seed := fmt.Sprintf("%d|%s|%s", t.OccurredAt.Unix(), t.Account.Mask, t.Amount.StringFixed(2))
	sum := sha256.Sum256([]byte(seed))
	return "SYN-" + strings.ToUpper(hex.EncodeToString(sum[:6]))
}

// EnsureReferenceID fills ReferenceID with the deterministic fallback when
// the message carried none.
func (t *Transaction) EnsureReferenceID() {
	if strings.TrimSpace(t.ReferenceID) == "" {
		t.ReferenceID = t.FallbackReferenceID()
	}
}

// NormalizeReference strips leading zeros from purely numeric reference ids
// so "007" and "7" compare equal; other ids are compared as trimmed strings.
func NormalizeReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	numeric := true
	for i := 0; i < len(ref); i++ {
		if ref[i] < '0' || ref[i] > '9' {
			numeric = false
			break
		}
	}
	if !numeric {
		return ref
	}
	trimmed := strings.TrimLeft(ref, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
