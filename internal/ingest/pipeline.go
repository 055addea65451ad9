package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IngestStatus is the terminal status of one pipeline invocation. Ignored,
// failed and duplicate are normal return values, never errors.
type IngestStatus string

const (
	StatusSuccess             IngestStatus = "success"
	StatusIgnored             IngestStatus = "ignored"
	StatusFailed              IngestStatus = "failed"
	StatusDuplicateSubmission IngestStatus = "duplicate_submission"
)

// ResultStatus distinguishes a fresh extraction from a cross-source
// duplicate. Duplicates are still returned so the ledger layer can decide
// whether to skip insertion.
type ResultStatus string

const (
	ResultExtracted            ResultStatus = "extracted"
	ResultCrossSourceDuplicate ResultStatus = "cross_source_duplicate"
)

// ExtractionOutcome is one extracted transaction plus its dedup verdict and
// the resolved account id, when the resolver knows the mask.
type ExtractionOutcome struct {
	Status      ResultStatus `json:"status"`
	Transaction Transaction  `json:"transaction"`
	AccountID   string       `json:"account_id,omitempty"`
}

// IngestionResult is what one pipeline invocation hands back to the caller.
// Logs carry enough detail to explain why each strategy did or did not
// match, without reading source code.
type IngestionResult struct {
	Status  IngestStatus        `json:"status"`
	Results []ExtractionOutcome `json:"results,omitempty"`
	Logs    []string            `json:"logs"`
}

// AccountResolver resolves an account mask to an account id, or "" when
// unknown. Owned by a collaborator, injected into the pipeline.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, tenantID, mask string) (string, error)
}

// AuditRecord is the per-invocation log record supporting idempotency
// checks and post-hoc debugging.
type AuditRecord struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	InputHash string       `json:"input_hash"`
	Source    Source       `json:"source"`
	Status    IngestStatus `json:"status"`
	Output    string       `json:"output,omitempty"`
	Logs      []string     `json:"logs,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AuditSink persists audit records. Failures are logged, never fatal.
type AuditSink interface {
	AppendAuditRecord(ctx context.Context, record AuditRecord) error
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	IdempotencyWindow time.Duration
	CrossSourceWindow time.Duration
	MessageTimeout    time.Duration
}

const defaultMessageTimeout = 30 * time.Second

// Pipeline sequences the extraction chain: classifier gate, format
// extractors, pattern rules, AI fallback, then enrichment and both dedup
// layers. One invocation per message; invocations are independent except
// for the shared dedup window and AI cache.
type Pipeline struct {
	registry   *Registry
	rules      *RuleEngine
	ai         *AIExtractor // nil when no provider is configured
	normalizer *Normalizer
	dedup      *Deduplicator
	resolver   AccountResolver // optional
	audit      AuditSink       // optional
	timeout    time.Duration

	now func() time.Time
}

// NewPipeline wires the pipeline. registry, rules, normalizer are required;
// ai, resolver and audit may be nil.
func NewPipeline(registry *Registry, rules *RuleEngine, ai *AIExtractor, normalizer *Normalizer, resolver AccountResolver, audit AuditSink, opts Options) *Pipeline {
	timeout := opts.MessageTimeout
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}
	return &Pipeline{
		registry:   registry,
		rules:      rules,
		ai:         ai,
		normalizer: normalizer,
		dedup:      NewDeduplicator(opts.IdempotencyWindow, opts.CrossSourceWindow),
		resolver:   resolver,
		audit:      audit,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Stop releases the pipeline's background resources.
func (p *Pipeline) Stop() {
	p.dedup.Stop()
	if p.ai != nil {
		p.ai.Stop()
	}
}

// Ingest runs one raw message through the pipeline.
func (p *Pipeline) Ingest(ctx context.Context, tenantID string, msg RawMessage) IngestionResult {
	now := p.now()
	hash := SubmissionHash(tenantID, msg.Source, msg.Body)

	// Request-level idempotency short-circuits before any extraction work.
	if p.dedup.CheckSubmission(hash, now) {
		result := IngestionResult{
			Status: StatusDuplicateSubmission,
			Logs:   []string{"identical submission seen within idempotency window"},
		}
		p.record(ctx, tenantID, hash, msg.Source, result, now)
		return result
	}

	result := p.extract(ctx, tenantID, msg, now)
	p.record(ctx, tenantID, hash, msg.Source, result, now)
	return result
}

func (p *Pipeline) extract(ctx context.Context, tenantID string, msg RawMessage, now time.Time) IngestionResult {
	var logs []string

	// The classifier gates conversational channels. File rows and statement
	// lines were already selected by their adapters.
	if msg.Source == SourceSMS || msg.Source == SourceEmail {
		if !IsFinancial(msg.Body, msg.Source) {
			logs = append(logs, "classifier: not a financial message")
			return IngestionResult{Status: StatusIgnored, Logs: logs}
		}
		logs = append(logs, "classifier: accepted")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, chainLogs, ignored := p.runChain(ctx, tenantID, msg, now)
	logs = append(logs, chainLogs...)
	if ignored {
		return IngestionResult{Status: StatusIgnored, Logs: logs}
	}
	if tx == nil {
		return IngestionResult{Status: StatusFailed, Logs: logs}
	}

	p.enrich(tx, msg, now, &logs)

	outcome := ExtractionOutcome{Status: ResultExtracted, Transaction: *tx}
	if p.dedup.MatchCrossSource(tenantID, msg.Source, tx, now) {
		outcome.Status = ResultCrossSourceDuplicate
		logs = append(logs, "cross-source duplicate of a recent extraction")
	}

	if p.resolver != nil && tx.Account.Mask != "" {
		accountID, err := p.resolver.ResolveAccount(ctx, tenantID, tx.Account.Mask)
		if err != nil {
			logs = append(logs, fmt.Sprintf("account resolution failed: %v", err))
		} else if accountID != "" {
			outcome.AccountID = accountID
		} else {
			logs = append(logs, fmt.Sprintf("no account matches mask %s", tx.Account.Mask))
		}
	}

	return IngestionResult{
		Status:  StatusSuccess,
		Results: []ExtractionOutcome{outcome},
		Logs:    logs,
	}
}

// runChain tries format extractors, then pattern rules, then the AI
// fallback. ignored=true means the AI explicitly marked the text as not a
// transaction, which the pipeline treats exactly like classifier rejection.
func (p *Pipeline) runChain(ctx context.Context, tenantID string, msg RawMessage, now time.Time) (tx *Transaction, logs []string, ignored bool) {
	for _, extractor := range p.registry.All() {
		if !extractor.CanHandle(msg) {
			continue
		}
		candidate, err := extractor.Extract(msg)
		if err != nil {
			// A single extractor failing never aborts the chain.
			logs = append(logs, fmt.Sprintf("format %s: error: %v", extractor.Name(), err))
			continue
		}
		if candidate == nil {
			logs = append(logs, fmt.Sprintf("format %s: claimed but no pattern matched", extractor.Name()))
			continue
		}
		logs = append(logs, fmt.Sprintf("format %s: matched", extractor.Name()))
		return candidate, logs, false
	}
	logs = append(logs, "format extractors: no match")

	ruleTx, ruleLogs, err := p.rules.Extract(ctx, tenantID, msg)
	logs = append(logs, ruleLogs...)
	if err != nil {
		logs = append(logs, fmt.Sprintf("pattern rules: error: %v", err))
	} else if ruleTx != nil {
		return ruleTx, logs, false
	} else {
		logs = append(logs, "pattern rules: no match")
	}

	if p.ai == nil {
		logs = append(logs, "ai: no provider configured")
		return nil, logs, false
	}
	aiTx, notTransaction, err := p.ai.Extract(ctx, msg, now)
	if err != nil {
		logs = append(logs, fmt.Sprintf("ai: no result: %v", err))
		return nil, logs, false
	}
	if notTransaction {
		logs = append(logs, "ai: marked as not a transaction")
		return nil, logs, true
	}
	logs = append(logs, fmt.Sprintf("ai: extracted via %s", aiTx.Provenance))
	return aiTx, logs, false
}

// enrich applies normalization, validation, category guessing and the
// reference-id fallback to a freshly extracted transaction.
func (p *Pipeline) enrich(tx *Transaction, msg RawMessage, now time.Time, logs *[]string) {
	tx.Merchant.Canonical = p.normalizer.Normalize(tx.Merchant.Raw)
	if tx.Description == "" {
		if tx.Merchant.Canonical != "" {
			tx.Description = tx.Merchant.Canonical
		} else if tx.Direction == Credit {
			tx.Description = "Credit of " + tx.Amount.StringFixed(2)
		} else {
			tx.Description = "Debit of " + tx.Amount.StringFixed(2)
		}
	}

	for _, warning := range EnrichAndValidate(tx, msg, now) {
		*logs = append(*logs, "validator: "+warning)
	}

	if tx.CategoryHint == "" {
		tx.CategoryHint = GuessCategory(tx.Merchant.Canonical, tx.Description)
	}

	tx.EnsureReferenceID()
}

func (p *Pipeline) record(ctx context.Context, tenantID, hash string, source Source, result IngestionResult, now time.Time) {
	if p.audit == nil {
		return
	}
	record := AuditRecord{
		TenantID:  tenantID,
		InputHash: hash,
		Source:    source,
		Status:    result.Status,
		Logs:      result.Logs,
		CreatedAt: now,
	}
	if len(result.Results) > 0 {
		tx := result.Results[0].Transaction
		record.Output = fmt.Sprintf("%s %s %s %s ref=%s", result.Results[0].Status, tx.Direction, tx.Amount.StringFixed(2), tx.Merchant.Canonical, tx.ReferenceID)
	}
	// Auditing is best effort; losing a record never fails ingestion.
	_ = p.audit.AppendAuditRecord(ctx, record)
}

// IngestExtracted runs a pre-extracted row (spreadsheet/statement adapters)
// through the enrichment and dedup stages, skipping the extraction chain.
func (p *Pipeline) IngestExtracted(ctx context.Context, tenantID string, source Source, tx Transaction, receivedAt time.Time) IngestionResult {
	now := p.now()
	rowKey := fmt.Sprintf("%s|%s|%s|%s|%s", tx.OccurredAt.Format(time.RFC3339), tx.Account.Mask, tx.Amount.StringFixed(2), tx.Direction, tx.Merchant.Raw)
	hash := SubmissionHash(tenantID, source, rowKey)

	if p.dedup.CheckSubmission(hash, now) {
		result := IngestionResult{
			Status: StatusDuplicateSubmission,
			Logs:   []string{"identical row seen within idempotency window"},
		}
		p.record(ctx, tenantID, hash, source, result, now)
		return result
	}

	var logs []string
	msg := RawMessage{Source: source, ReceivedAt: receivedAt}
	if tx.Provenance == "" {
		tx.Provenance = "adapter:" + strings.ToLower(string(source))
	}
	if tx.Confidence == 0 {
		tx.Confidence = FormatConfidence
	}
	p.enrich(&tx, msg, now, &logs)

	outcome := ExtractionOutcome{Status: ResultExtracted, Transaction: tx}
	if p.dedup.MatchCrossSource(tenantID, source, &tx, now) {
		outcome.Status = ResultCrossSourceDuplicate
		logs = append(logs, "cross-source duplicate of a recent extraction")
	}

	result := IngestionResult{Status: StatusSuccess, Results: []ExtractionOutcome{outcome}, Logs: logs}
	p.record(ctx, tenantID, hash, source, result, now)
	return result
}
