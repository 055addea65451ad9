package ingest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// implausibleAmount is the magnitude above which a single consumer
// transaction is flagged for review.
var implausibleAmount = decimal.NewFromInt(10_000_000)

const (
	maxFutureSkew = 48 * time.Hour
	maxPastSkew   = 2 * 365 * 24 * time.Hour
)

// EnrichAndValidate fills missing timestamp information and returns
// non-fatal warnings. It never errors and never blocks the pipeline; the
// warnings propagate to the audit log and onto the transaction itself.
func EnrichAndValidate(tx *Transaction, msg RawMessage, now time.Time) []string {
	var warnings []string

	if tx.OccurredAt.IsZero() {
		if !msg.ReceivedAt.IsZero() {
			tx.OccurredAt = msg.ReceivedAt
			warnings = append(warnings, "no date in message text; using transport receive time")
		} else {
			// Last resort. Flagged so downstream review can catch it.
			tx.OccurredAt = now
			warnings = append(warnings, "no date available; substituted current time")
			tx.Provenance += "+synthetic-time"
		}
	}

	if tx.Amount.GreaterThan(implausibleAmount) {
		warnings = append(warnings, fmt.Sprintf("implausibly large amount %s", tx.Amount.StringFixed(2)))
	}

	if tx.Account.Mask == "" {
		warnings = append(warnings, "no account mask extracted")
	}

	if tx.OccurredAt.After(now.Add(maxFutureSkew)) {
		warnings = append(warnings, fmt.Sprintf("transaction dated in the future: %s", tx.OccurredAt.Format("2006-01-02")))
	} else if tx.OccurredAt.Before(now.Add(-maxPastSkew)) {
		warnings = append(warnings, fmt.Sprintf("transaction dated far in the past: %s", tx.OccurredAt.Format("2006-01-02")))
	}

	tx.Warnings = append(tx.Warnings, warnings...)
	return warnings
}
