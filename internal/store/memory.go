package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/oksbwn/finsight/internal/ingest"
)

// MemoryStore implements Store with in-memory maps. It backs local
// development and tests; a process restart loses everything.
type MemoryStore struct {
	mu sync.RWMutex

	rules    map[string]ingest.PatternRule // rule id -> rule
	aliases  map[string]MerchantAlias      // alias id -> alias
	accounts map[string]Account            // account id -> account
	audit    []ingest.AuditRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:    make(map[string]ingest.PatternRule),
		aliases:  make(map[string]MerchantAlias),
		accounts: make(map[string]Account),
	}
}

func (m *MemoryStore) ListPatternRules(ctx context.Context, tenantID string, source ingest.Source) ([]ingest.PatternRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ingest.PatternRule
	for _, rule := range m.rules {
		if rule.TenantID == tenantID && rule.Source == source {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SavePatternRule(ctx context.Context, rule ingest.PatternRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *MemoryStore) DeletePatternRule(ctx context.Context, tenantID, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[ruleID]
	if !ok || rule.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.rules, ruleID)
	return nil
}

func (m *MemoryStore) ListMerchantAliases(ctx context.Context, tenantID string) ([]MerchantAlias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MerchantAlias
	for _, alias := range m.aliases {
		if alias.TenantID == tenantID {
			out = append(out, alias)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveMerchantAlias(ctx context.Context, alias MerchantAlias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	m.aliases[alias.ID] = alias
	return nil
}

func (m *MemoryStore) SaveAccount(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryStore) ResolveAccount(ctx context.Context, tenantID, mask string) (string, error) {
	suffix := ingest.AccountHint{Mask: mask}.MaskSuffix()
	if suffix == "" {
		return "", nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, account := range m.accounts {
		if account.TenantID == tenantID && account.MaskSuffix == suffix {
			return account.ID, nil
		}
	}
	return "", nil
}

func (m *MemoryStore) AppendAuditRecord(ctx context.Context, record ingest.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	m.audit = append(m.audit, record)
	return nil
}

func (m *MemoryStore) ListAuditRecords(ctx context.Context, tenantID string, pageSize int32, pageToken string) ([]ingest.AuditRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first.
	var matched []ingest.AuditRecord
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].TenantID == tenantID {
			matched = append(matched, m.audit[i])
		}
	}

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		for i, record := range matched {
			if record.ID == cursorID {
				startIdx = i + 1
				break
			}
		}
	}
	matched = matched[startIdx:]

	var nextToken string
	if int32(len(matched)) > pageSize {
		matched = matched[:pageSize]
		nextToken = EncodePageToken(matched[pageSize-1].ID)
	}
	return matched, nextToken, nil
}

func (m *MemoryStore) Close() error { return nil }
