package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/oksbwn/finsight/internal/ingest"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Account is a registered bank account or card against which extracted
// mask hints are resolved.
type Account struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	MaskSuffix string    `json:"mask_suffix"` // last 4 digits
	CreatedAt  time.Time `json:"created_at"`
}

// MerchantAlias is a tenant-curated alias row feeding the normalizer.
type MerchantAlias struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	ingest.Alias
}

// Store is the persistence surface of the ingestion service. Implementations
// must be safe for concurrent use.
type Store interface {
	// Pattern rules
	ListPatternRules(ctx context.Context, tenantID string, source ingest.Source) ([]ingest.PatternRule, error)
	SavePatternRule(ctx context.Context, rule ingest.PatternRule) error
	DeletePatternRule(ctx context.Context, tenantID, ruleID string) error

	// Merchant aliases
	ListMerchantAliases(ctx context.Context, tenantID string) ([]MerchantAlias, error)
	SaveMerchantAlias(ctx context.Context, alias MerchantAlias) error

	// Accounts
	SaveAccount(ctx context.Context, account Account) error
	ResolveAccount(ctx context.Context, tenantID, mask string) (string, error)

	// Audit trail
	AppendAuditRecord(ctx context.Context, record ingest.AuditRecord) error
	ListAuditRecords(ctx context.Context, tenantID string, pageSize int32, pageToken string) ([]ingest.AuditRecord, string, error)

	// Close releases underlying connections.
	Close() error
}

// EncodePageToken encodes a document ID as an opaque page token.
func EncodePageToken(docID string) string {
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes an opaque page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
