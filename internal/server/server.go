// Package server exposes the ingestion pipeline over JSON HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/oksbwn/finsight/internal/fileimport"
	"github.com/oksbwn/finsight/internal/ingest"
	"github.com/oksbwn/finsight/internal/logger"
	"github.com/oksbwn/finsight/internal/store"
)

// maxUploadBytes bounds statement and spreadsheet uploads.
const maxUploadBytes = 32 << 20

// tenantHeader carries the tenant id; absent means the default tenant.
const tenantHeader = "X-Tenant-ID"

// Server routes ingestion, import, rule-learning and audit requests to the
// pipeline and store.
type Server struct {
	pipeline *ingest.Pipeline
	store    store.Store
	log      zerolog.Logger
	origins  []string
}

func New(pipeline *ingest.Pipeline, st store.Store, log zerolog.Logger, allowedOrigins []string) *Server {
	return &Server{pipeline: pipeline, store: st, log: log, origins: allowedOrigins}
}

// Handler builds the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/import/csv", s.handleImportCSV)
	mux.HandleFunc("POST /v1/import/pdf", s.handleImportPDF)
	mux.HandleFunc("POST /v1/rules/learn", s.handleLearnRule)
	mux.HandleFunc("GET /v1/audit", s.handleListAudit)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", tenantHeader, "X-Statement-Password"},
	})

	return recoverer(s.log, requestLogger(s.log, c.Handler(mux)))
}

func tenantID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(tenantHeader)); id != "" {
		return id
	}
	return "default"
}

type ingestRequest struct {
	Source     string    `json:"source"`
	Sender     string    `json:"sender,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := ingest.Source(strings.ToUpper(strings.TrimSpace(req.Source)))
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", req.Source))
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	tenant := tenantID(r)
	ctx := logger.WithContext(r.Context(), logger.WithTenant(s.log, tenant))

	result := s.pipeline.Ingest(ctx, tenant, ingest.RawMessage{
		Source:     source,
		Sender:     req.Sender,
		Subject:    req.Subject,
		Body:       req.Body,
		ReceivedAt: req.ReceivedAt,
	})
	writeJSON(w, http.StatusOK, result)
}

// importSummary aggregates per-row outcomes of a file import.
type importSummary struct {
	Rows        int      `json:"rows"`
	Imported    int      `json:"imported"`
	Duplicates  int      `json:"duplicates"`
	CrossSource int      `json:"cross_source_duplicates"`
	Ignored     int      `json:"ignored"`
	Failed      int      `json:"failed"`
	RowErrors   []string `json:"row_errors,omitempty"`
}

func (sum *importSummary) add(result ingest.IngestionResult) {
	switch result.Status {
	case ingest.StatusDuplicateSubmission:
		sum.Duplicates++
	case ingest.StatusIgnored:
		sum.Ignored++
	case ingest.StatusFailed:
		sum.Failed++
	case ingest.StatusSuccess:
		if len(result.Results) > 0 && result.Results[0].Status == ingest.ResultCrossSourceDuplicate {
			sum.CrossSource++
		} else {
			sum.Imported++
		}
	}
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	data, form, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var mapping fileimport.ColumnMapping
	if raw := formValue(r, form, "mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			writeError(w, http.StatusBadRequest, "invalid column mapping")
			return
		}
	}

	rows, rowErrs, err := fileimport.ParseCSV(bytes.NewReader(data), mapping)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant := tenantID(r)
	ctx := logger.WithContext(r.Context(), logger.WithTenant(s.log, tenant))
	received := time.Now()

	summary := importSummary{Rows: len(rows) + len(rowErrs)}
	for _, rowErr := range rowErrs {
		summary.RowErrors = append(summary.RowErrors, rowErr.Error())
	}
	for _, row := range rows {
		summary.add(s.pipeline.IngestExtracted(ctx, tenant, ingest.SourceFileRow, row, received))
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleImportPDF(w http.ResponseWriter, r *http.Request) {
	data, form, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	password := formValue(r, form, "password")
	if password == "" {
		password = r.Header.Get("X-Statement-Password")
	}

	msgs, err := fileimport.ExtractStatementLines(data, password, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant := tenantID(r)
	ctx := logger.WithContext(r.Context(), logger.WithTenant(s.log, tenant))

	summary := importSummary{Rows: len(msgs)}
	for _, msg := range msgs {
		summary.add(s.pipeline.Ingest(ctx, tenant, msg))
	}
	writeJSON(w, http.StatusOK, summary)
}

type learnRuleRequest struct {
	Source      string             `json:"source"`
	Body        string             `json:"body"`
	Transaction ingest.Transaction `json:"transaction"`
}

// handleLearnRule synthesizes a pattern rule from a user-confirmed
// extraction and persists it for the tenant.
func (s *Server) handleLearnRule(w http.ResponseWriter, r *http.Request) {
	var req learnRuleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := ingest.Source(strings.ToUpper(strings.TrimSpace(req.Source)))
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", req.Source))
		return
	}
	if strings.TrimSpace(req.Body) == "" || req.Transaction.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "body and a confirmed amount are required")
		return
	}

	tenant := tenantID(r)
	rule := ingest.SynthesizeRule(tenant, ingest.RawMessage{Source: source, Body: req.Body}, req.Transaction)
	if err := s.store.SavePatternRule(r.Context(), rule); err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenant).Msg("failed to save learned rule")
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	pageSize := int32(50)
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "page_size must be between 1 and 500")
			return
		}
		pageSize = int32(n)
	}

	records, nextToken, err := s.store.ListAuditRecords(r.Context(), tenantID(r), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list audit records")
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":         records,
		"next_page_token": nextToken,
	})
}

// readUpload reads the uploaded file from a multipart form ("file" field) or
// from the raw request body. The returned form values are nil for raw
// bodies.
func readUpload(r *http.Request) ([]byte, map[string][]string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, fmt.Errorf("missing file field")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, nil, fmt.Errorf("read upload: %w", err)
		}
		return data, r.MultipartForm.Value, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("empty upload")
	}
	return data, nil, nil
}

// formValue looks up a multipart form value, falling back to the query
// string for raw-body uploads.
func formValue(r *http.Request, form map[string][]string, key string) string {
	if form != nil {
		if vals := form[key]; len(vals) > 0 {
			return vals[0]
		}
	}
	return r.URL.Query().Get(key)
}
