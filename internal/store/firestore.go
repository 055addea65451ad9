package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/oksbwn/finsight/internal/ingest"
)

// Collection names. Tenant isolation is by field filter, not by path, so a
// single composite index covers all tenants.
const (
	rulesCollection    = "patternRules"
	aliasesCollection  = "merchantAliases"
	accountsCollection = "accounts"
	auditCollection    = "auditRecords"
)

// FirestoreStore implements Store on Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) ListPatternRules(ctx context.Context, tenantID string, source ingest.Source) ([]ingest.PatternRule, error) {
	// Field names must match Go struct field names (PascalCase); that is how
	// Firestore serializes these structs.
	iter := s.client.Collection(rulesCollection).
		Where("TenantID", "==", tenantID).
		Where("Source", "==", string(source)).
		Documents(ctx)
	defer iter.Stop()

	var rules []ingest.PatternRule
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pattern rules: %w", err)
		}
		var rule ingest.PatternRule
		if err := doc.DataTo(&rule); err != nil {
			return nil, fmt.Errorf("failed to parse pattern rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *FirestoreStore) SavePatternRule(ctx context.Context, rule ingest.PatternRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.client.Collection(rulesCollection).Doc(rule.ID).Set(ctx, rule)
	return err
}

func (s *FirestoreStore) DeletePatternRule(ctx context.Context, tenantID, ruleID string) error {
	doc, err := s.client.Collection(rulesCollection).Doc(ruleID).Get(ctx)
	if err != nil {
		return fmt.Errorf("pattern rule not found: %w", err)
	}
	var rule ingest.PatternRule
	if err := doc.DataTo(&rule); err != nil {
		return fmt.Errorf("failed to parse pattern rule: %w", err)
	}
	if rule.TenantID != tenantID {
		return ErrNotFound
	}
	_, err = s.client.Collection(rulesCollection).Doc(ruleID).Delete(ctx)
	return err
}

func (s *FirestoreStore) ListMerchantAliases(ctx context.Context, tenantID string) ([]MerchantAlias, error) {
	iter := s.client.Collection(aliasesCollection).
		Where("TenantID", "==", tenantID).
		Documents(ctx)
	defer iter.Stop()

	var aliases []MerchantAlias
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list merchant aliases: %w", err)
		}
		var alias MerchantAlias
		if err := doc.DataTo(&alias); err != nil {
			return nil, fmt.Errorf("failed to parse merchant alias: %w", err)
		}
		aliases = append(aliases, alias)
	}
	return aliases, nil
}

func (s *FirestoreStore) SaveMerchantAlias(ctx context.Context, alias MerchantAlias) error {
	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	_, err := s.client.Collection(aliasesCollection).Doc(alias.ID).Set(ctx, alias)
	return err
}

func (s *FirestoreStore) SaveAccount(ctx context.Context, account Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	_, err := s.client.Collection(accountsCollection).Doc(account.ID).Set(ctx, account)
	return err
}

func (s *FirestoreStore) ResolveAccount(ctx context.Context, tenantID, mask string) (string, error) {
	suffix := ingest.AccountHint{Mask: mask}.MaskSuffix()
	if suffix == "" {
		return "", nil
	}

	docs, err := s.client.Collection(accountsCollection).
		Where("TenantID", "==", tenantID).
		Where("MaskSuffix", "==", suffix).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to resolve account: %w", err)
	}
	if len(docs) == 0 {
		return "", nil
	}

	var account Account
	if err := docs[0].DataTo(&account); err != nil {
		return "", fmt.Errorf("failed to parse account: %w", err)
	}
	return account.ID, nil
}

func (s *FirestoreStore) AppendAuditRecord(ctx context.Context, record ingest.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	_, err := s.client.Collection(auditCollection).Doc(record.ID).Set(ctx, record)
	return err
}

func (s *FirestoreStore) ListAuditRecords(ctx context.Context, tenantID string, pageSize int32, pageToken string) ([]ingest.AuditRecord, string, error) {
	query := s.client.Collection(auditCollection).
		Where("TenantID", "==", tenantID).
		OrderBy("CreatedAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		cursorDoc, err := s.client.Collection(auditCollection).Doc(docID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		query = query.StartAfter(cursorDoc.Data()["CreatedAt"], docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	// Fetch one extra document to detect whether a next page exists.
	docs, err := query.Limit(int(pageSize) + 1).Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list audit records: %w", err)
	}

	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	records := make([]ingest.AuditRecord, 0, len(docs))
	for _, doc := range docs {
		var record ingest.AuditRecord
		if err := doc.DataTo(&record); err != nil {
			return nil, "", fmt.Errorf("failed to parse audit record: %w", err)
		}
		records = append(records, record)
	}
	return records, nextPageToken, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
