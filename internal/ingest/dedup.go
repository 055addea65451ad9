package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultIdempotencyWindow guards against retry storms from upstream
	// transports (IMAP re-fetch, webhook redelivery).
	DefaultIdempotencyWindow = 5 * time.Minute
	// DefaultCrossSourceWindow is how long a successful extraction stays
	// eligible for cross-source matching.
	DefaultCrossSourceWindow = 15 * time.Minute

	crossSourceMerchantThreshold = 90.0 // out of 100
)

// dedupEntry is the semantic fingerprint of one recent extraction.
type dedupEntry struct {
	tenantID  string
	source    Source
	refNorm   string
	amount    decimal.Decimal
	mask      string // last-4 digit suffix
	merchant  string // canonical
	direction Direction
	seen      time.Time
}

// Deduplicator provides both dedup layers: request-level idempotency on the
// raw submission hash, and semantic cross-source matching over recent
// extractions. All state is in-memory with a TTL; a process restart drops
// the window, which the downstream ledger's own checks tolerate.
type Deduplicator struct {
	mu          sync.Mutex
	submissions map[string]time.Time
	recent      []dedupEntry

	idemWindow  time.Duration
	crossWindow time.Duration
	done        chan struct{}
}

// NewDeduplicator creates a deduplicator with background pruning. Window
// durations of zero fall back to the defaults.
func NewDeduplicator(idemWindow, crossWindow time.Duration) *Deduplicator {
	if idemWindow <= 0 {
		idemWindow = DefaultIdempotencyWindow
	}
	if crossWindow <= 0 {
		crossWindow = DefaultCrossSourceWindow
	}
	d := &Deduplicator{
		submissions: make(map[string]time.Time),
		idemWindow:  idemWindow,
		crossWindow: crossWindow,
		done:        make(chan struct{}),
	}
	go d.cleanup()
	return d
}

// Stop signals the background pruning goroutine to exit.
func (d *Deduplicator) Stop() {
	close(d.done)
}

// SubmissionHash is the request-level idempotency key for a raw message.
func SubmissionHash(tenantID string, source Source, body string) string {
	sum := sha256.Sum256([]byte(tenantID + "\x00" + string(source) + "\x00" + body))
	return hex.EncodeToString(sum[:])
}

// CheckSubmission registers hash and reports whether an identical
// submission was already seen inside the idempotency window. Check and
// insert happen under one lock, so two concurrent identical submissions
// cannot both win.
func (d *Deduplicator) CheckSubmission(hash string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seen, ok := d.submissions[hash]; ok && now.Sub(seen) <= d.idemWindow {
		return true
	}
	d.submissions[hash] = now
	return false
}

// MatchCrossSource reports whether tx semantically matches a recent
// extraction (the same real-world transaction arriving through another
// channel), and records tx for future matching either way.
//
// Priority order: normalized reference equality short-circuits; otherwise
// amount, mask suffix and direction must all be equal and the canonical
// merchants must be fuzzily similar.
func (d *Deduplicator) MatchCrossSource(tenantID string, source Source, tx *Transaction, now time.Time) bool {
	entry := dedupEntry{
		tenantID:  tenantID,
		source:    source,
		refNorm:   NormalizeReference(tx.ReferenceID),
		amount:    tx.Amount,
		mask:      tx.Account.MaskSuffix(),
		merchant:  tx.Merchant.Canonical,
		direction: tx.Direction,
		seen:      now,
	}
	if isSyntheticReference(tx.ReferenceID) {
		// Synthetic fallback ids are derived, not bank-issued; only real
		// references may short-circuit the semantic checks.
		entry.refNorm = ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	matched := false
	for _, prev := range d.recent {
		if prev.tenantID != tenantID || now.Sub(prev.seen) > d.crossWindow {
			continue
		}
		if entry.refNorm != "" && prev.refNorm != "" {
			if entry.refNorm == prev.refNorm {
				matched = true
				break
			}
			continue
		}
		if !entry.amount.Equal(prev.amount) || entry.mask != prev.mask || entry.direction != prev.direction {
			continue
		}
		if similarity(entry.merchant, prev.merchant) >= crossSourceMerchantThreshold {
			matched = true
			break
		}
	}

	d.recent = append(d.recent, entry)
	return matched
}

func isSyntheticReference(ref string) bool {
	return len(ref) > 4 && ref[:4] == "SYN-"
}

func (d *Deduplicator) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.prune(time.Now())
		}
	}
}

func (d *Deduplicator) prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for hash, seen := range d.submissions {
		if now.Sub(seen) > d.idemWindow {
			delete(d.submissions, hash)
		}
	}

	kept := d.recent[:0]
	for _, entry := range d.recent {
		if now.Sub(entry.seen) <= d.crossWindow {
			kept = append(kept, entry)
		}
	}
	d.recent = kept
}
