package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Provider is the narrow AI capability the pipeline consumes: given a
// prompt, return the model's text output or an error.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// aiResponse is the structured object the model is asked to return.
type aiResponse struct {
	IsTransaction bool        `json:"is_transaction"`
	Amount        json.Number `json:"amount"`
	Type          string      `json:"type"`
	Date          string      `json:"date"`
	AccountMask   string      `json:"account_mask"`
	Merchant      string      `json:"merchant"`
	Reference     string      `json:"reference"`
	Confidence    float64     `json:"confidence"`
}

type aiCacheEntry struct {
	tx             *Transaction
	notTransaction bool
	created        time.Time
}

// AIExtractor is the last-resort structured extractor. Responses are cached
// by content hash plus provider identity so identical text is never billed
// twice; "not a transaction" verdicts are cached too, so recurring noise is
// never re-queried.
type AIExtractor struct {
	provider Provider
	timeout  time.Duration
	retry    RetryConfig

	mu    sync.RWMutex
	cache map[string]aiCacheEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewAIExtractor creates an AI extractor with a response cache whose entries
// expire after ttl.
func NewAIExtractor(provider Provider, timeout, ttl time.Duration) *AIExtractor {
	e := &AIExtractor{
		provider: provider,
		timeout:  timeout,
		retry:    DefaultProviderRetryConfig,
		cache:    make(map[string]aiCacheEntry),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go e.cleanup()
	return e
}

// Stop signals the background cache cleanup goroutine to exit.
func (e *AIExtractor) Stop() {
	close(e.done)
}

func (e *AIExtractor) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			now := time.Now()
			for key, entry := range e.cache {
				if now.Sub(entry.created) > e.ttl {
					delete(e.cache, key)
				}
			}
			e.mu.Unlock()
		}
	}
}

func (e *AIExtractor) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + "|" + e.provider.Name()
}

// Extract asks the provider for a structured transaction. It returns
// (nil, true, nil) when the model explicitly marks the text as not a
// transaction, and (nil, false, err) on any provider or parse failure —
// the caller treats that as "no result from this strategy".
func (e *AIExtractor) Extract(ctx context.Context, msg RawMessage, now time.Time) (*Transaction, bool, error) {
	key := e.cacheKey(msg.Body)

	e.mu.RLock()
	entry, hit := e.cache[key]
	e.mu.RUnlock()
	if hit && time.Since(entry.created) <= e.ttl {
		if entry.notTransaction {
			return nil, true, nil
		}
		tx := *entry.tx
		return &tx, false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildExtractionPrompt(msg.Body, now)
	raw, err := WithRetry(callCtx, e.retry, func(ctx context.Context) (string, error) {
		return e.provider.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, false, fmt.Errorf("provider %s: %w", e.provider.Name(), err)
	}

	parsed, err := parseAIResponse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("provider %s: %w", e.provider.Name(), err)
	}

	if !parsed.IsTransaction {
		e.store(key, aiCacheEntry{notTransaction: true, created: time.Now()})
		return nil, true, nil
	}

	tx, err := e.toTransaction(parsed, msg, now)
	if err != nil {
		return nil, false, err
	}
	stored := *tx
	e.store(key, aiCacheEntry{tx: &stored, created: time.Now()})
	return tx, false, nil
}

func (e *AIExtractor) store(key string, entry aiCacheEntry) {
	e.mu.Lock()
	e.cache[key] = entry
	e.mu.Unlock()
}

func (e *AIExtractor) toTransaction(parsed *aiResponse, msg RawMessage, now time.Time) (*Transaction, error) {
	amount, ok := parseMoney(parsed.Amount.String())
	if !ok {
		return nil, fmt.Errorf("model returned unusable amount %q", parsed.Amount)
	}

	direction := Debit
	if strings.EqualFold(strings.TrimSpace(parsed.Type), string(Credit)) {
		direction = Credit
	}

	occurred := parseSMSDate(parsed.Date)
	if occurred.IsZero() {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(parsed.Date)); err == nil {
			occurred = t
		} else {
			occurred = msg.ReceivedAt
		}
	}

	confidence := parsed.Confidence
	if confidence <= 0 {
		confidence = 0.8
	}
	if confidence > MaxAIConfidence {
		confidence = MaxAIConfidence
	}

	return &Transaction{
		Amount:      amount,
		Direction:   direction,
		OccurredAt:  occurred,
		Account:     AccountHint{Mask: strings.TrimSpace(parsed.AccountMask)},
		Merchant:    Merchant{Raw: strings.TrimSpace(parsed.Merchant)},
		ReferenceID: strings.TrimSpace(parsed.Reference),
		Confidence:  confidence,
		Provenance:  "ai:" + e.provider.Name(),
	}, nil
}

// buildExtractionPrompt embeds the raw text and today's date as a fallback
// anchor for relative dates.
func buildExtractionPrompt(text string, now time.Time) string {
	return fmt.Sprintf(`Extract the financial transaction from this message. Today's date is %s.

Message: %q

Return ONLY a valid JSON object with this exact structure:
{
  "is_transaction": true,
  "amount": "1234.00",
  "type": "DEBIT or CREDIT",
  "date": "YYYY-MM-DD or empty if not mentioned",
  "account_mask": "masked account like XX1234, empty if absent",
  "merchant": "counterparty name as written, empty if absent",
  "reference": "bank reference/UTR, empty if absent",
  "confidence": 0.0 to 1.0
}

Rules:
- Express the amount as a positive magnitude; the sign lives in "type"
- If the message is not a financial transaction (OTP, promotion, reminder), return {"is_transaction": false}
- Do not guess fields the message does not state`, now.Format("2006-01-02"), text)
}

// parseAIResponse tolerates markdown code fences and surrounding prose
// around the JSON object.
func parseAIResponse(raw string) (*aiResponse, error) {
	text := stripCodeFence(raw)

	start, end := -1, -1
	depth := 0
	for i, c := range text {
		if c == '{' {
			if start == -1 {
				start = i
			}
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 && start != -1 {
				end = i + 1
				break
			}
		}
	}
	if start == -1 || end == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed aiResponse
	if err := json.Unmarshal([]byte(text[start:end]), &parsed); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return &parsed, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
