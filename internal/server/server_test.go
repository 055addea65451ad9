package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksbwn/finsight/internal/ingest"
	"github.com/oksbwn/finsight/internal/logger"
	"github.com/oksbwn/finsight/internal/store"
)

const debitSMS = "Rs.1234.00 debited from a/c XX1234 on 01-09-26 to VPA IND*AMZN Pay India. Ref ABC123"

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	pipeline := ingest.NewPipeline(
		ingest.DefaultRegistry(),
		ingest.NewRuleEngine(st),
		nil,
		ingest.NewNormalizer(),
		st,
		st,
		ingest.Options{},
	)
	t.Cleanup(pipeline.Stop)
	log := logger.NewWithWriter(io.Discard, "error")
	return New(pipeline, st, log, []string{"*"}), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleIngest(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ingest", ingestRequest{
		Source: "sms",
		Sender: "VM-HDFCBK",
		Body:   debitSMS,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result ingest.IngestionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, ingest.StatusSuccess, result.Status)
	require.Len(t, result.Results, 1)
	tx := result.Results[0].Transaction
	assert.Equal(t, "Amazon", tx.Merchant.Canonical)
	assert.Equal(t, ingest.Debit, tx.Direction)
	assert.Equal(t, "ABC123", tx.ReferenceID)
}

func TestHandleIngest_DuplicateSubmission(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	req := ingestRequest{Source: "SMS", Body: debitSMS}

	first := doJSON(t, handler, http.MethodPost, "/v1/ingest", req)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, handler, http.MethodPost, "/v1/ingest", req)
	require.Equal(t, http.StatusOK, second.Code)

	var result ingest.IngestionResult
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &result))
	assert.Equal(t, ingest.StatusDuplicateSubmission, result.Status)
}

func TestHandleIngest_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"unknown source", `{"source":"FAX","body":"hello"}`},
		{"empty body", `{"source":"SMS","body":"  "}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleImportCSV_RawBody(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	csvBody := strings.Join([]string{
		"Date,Description,Amount",
		"2026-09-01,NETFLIX SUBSCRIPTION,-649.00",
		"2026-09-02,REFUND MYNTRA,1299.00",
	}, "\n")

	req := httptest.NewRequest(http.MethodPost, "/v1/import/csv", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary importSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 2, summary.Imported)
	assert.Zero(t, summary.Failed)

	// Re-importing the same file must be a no-op.
	req = httptest.NewRequest(http.MethodPost, "/v1/import/csv", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Duplicates)
	assert.Zero(t, summary.Imported)
}

func TestHandleImportCSV_MultipartWithMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("when,what,how_much\n02 Sep 2026,BESCOM BILL,-1130.00\n"))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("mapping", `{"date":"when","description":"what","amount":"how_much"}`))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/import/csv", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary importSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Imported)
}

func TestHandleImportCSV_BadHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/import/csv", strings.NewReader("foo,bar\n1,2\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleImportPDF_InvalidData(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/import/pdf", strings.NewReader("not a pdf"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLearnRule(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	body := "INR 320.00 withdrawn; beneficiary LOCAL KIRANA; a-c XX7001"

	rec := doJSON(t, handler, http.MethodPost, "/v1/rules/learn", map[string]any{
		"source": "SMS",
		"body":   body,
		"transaction": map[string]any{
			"amount":    "320.00",
			"direction": "DEBIT",
			"account":   map[string]any{"mask": "XX7001"},
			"merchant":  map[string]any{"raw": "LOCAL KIRANA"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var rule ingest.PatternRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.True(t, rule.Active)
	assert.Equal(t, ingest.SourceSMS, rule.Source)

	// A paraphrase of the taught message now extracts through the rule tier.
	ingestRec := doJSON(t, handler, http.MethodPost, "/v1/ingest", ingestRequest{
		Source: "SMS",
		Body:   "INR 84.50 withdrawn; beneficiary CORNER TEA STALL; a-c XX7001",
	})
	require.Equal(t, http.StatusOK, ingestRec.Code)

	var result ingest.IngestionResult
	require.NoError(t, json.Unmarshal(ingestRec.Body.Bytes(), &result))
	require.Equal(t, ingest.StatusSuccess, result.Status)
	require.Len(t, result.Results, 1)
	tx := result.Results[0].Transaction
	assert.True(t, strings.HasPrefix(tx.Provenance, "pattern:"), "provenance = %s", tx.Provenance)
	assert.Equal(t, "84.50", tx.Amount.StringFixed(2))
	assert.Equal(t, "Corner Tea Stall", tx.Merchant.Canonical)
}

func TestHandleLearnRule_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/rules/learn", map[string]any{
		"source": "SMS",
		"body":   "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/rules/learn", map[string]any{
		"source":      "CARRIER-PIGEON",
		"body":        "text",
		"transaction": map[string]any{"amount": "10.00"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAudit(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ingest", ingestRequest{Source: "SMS", Body: debitSMS})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	auditRec := httptest.NewRecorder()
	handler.ServeHTTP(auditRec, req)
	require.Equal(t, http.StatusOK, auditRec.Code)

	var resp struct {
		Records       []ingest.AuditRecord `json:"records"`
		NextPageToken string               `json:"next_page_token"`
	}
	require.NoError(t, json.Unmarshal(auditRec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, ingest.StatusSuccess, resp.Records[0].Status)
	assert.Empty(t, resp.NextPageToken)
}

func TestHandleListAudit_TenantIsolation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"source":"SMS","body":"`+debitSMS+`"}`))
	req.Header.Set(tenantHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The default tenant sees nothing of acme's traffic.
	auditReq := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	auditRec := httptest.NewRecorder()
	handler.ServeHTTP(auditRec, auditReq)
	require.Equal(t, http.StatusOK, auditRec.Code)

	var resp struct {
		Records []ingest.AuditRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(auditRec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Records)
}

func TestHandleListAudit_BadPageSize(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/audit?page_size=0", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
