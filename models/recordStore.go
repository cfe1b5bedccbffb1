package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/multycomm/collection_backend/reconcile"
	"bitbucket.org/multycomm/collection_backend/utils"
	"gorm.io/gorm"
)

// RecordStore adapts one gorm transaction to the reconciliation engine's
// storage interfaces. All reads and writes share the transaction so the
// whole operation commits or rolls back as one.
type RecordStore struct {
	Tx *gorm.DB
}

func NewRecordStore(tx *gorm.DB) *RecordStore { return &RecordStore{Tx: tx} }

var identityColumns = map[string]bool{
	"mobile":       true,
	"ref_mobile":   true,
	"email":        true,
	"crn":          true,
	"loan_card_no": true,
}

// FindIdentityMatches issues a single OR-query across the identity columns:
// any record where any identity field equals the candidate's value for that
// same field, excluding excludeId when > 0.
func (s *RecordStore) FindIdentityMatches(ctx context.Context, values map[string]string, fields []string, excludeId int) ([]reconcile.CandidateRow, error) {
	var conds []string
	var args []interface{}
	for _, field := range fields {
		v, ok := values[field]
		if !ok || v == "" {
			continue
		}
		if !identityColumns[field] {
			return nil, fmt.Errorf("unknown identity column %q", field)
		}
		conds = append(conds, field+" = ?")
		args = append(args, v)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	dbCtx := s.Tx.WithContext(ctx).Model(&CustomerRecord{}).
		Where(strings.Join(conds, " OR "), args...)
	if excludeId > 0 {
		dbCtx = dbCtx.Where("id != ?", excludeId)
	}

	var records []*CustomerRecord
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]reconcile.CandidateRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.IdentityRow())
	}
	return rows, nil
}

// MaxIdentitySuffix scans stored variants of base (base, base__1, ...) and
// returns the highest suffix in use for the append policy.
func (s *RecordStore) MaxIdentitySuffix(ctx context.Context, field string, base string) (int, error) {
	if !identityColumns[field] {
		return 0, fmt.Errorf("unknown identity column %q", field)
	}

	var values []string
	err := s.Tx.WithContext(ctx).Model(&CustomerRecord{}).
		Where(field+" LIKE ?", base+"%").
		Pluck(field, &values).Error
	if err != nil {
		return 0, err
	}

	max := 0
	for _, v := range values {
		if reconcile.BaseValue(v) != base {
			continue
		}
		if n := reconcile.ParseSuffix(v); n > max {
			max = n
		}
	}
	return max, nil
}

// SaveChanges appends one audit row per changed field, inside the same
// transaction as the record mutation.
func (s *RecordStore) SaveChanges(ctx context.Context, recordId int, externalId string, changes []reconcile.FieldChange, actor string, at time.Time) error {
	if len(changes) == 0 {
		return nil
	}
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	rows := make([]RecordChange, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, RecordChange{
			TenantId:   tenantId,
			RecordId:   recordId,
			ExternalId: externalId,
			Field:      c.Field,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			ChangedBy:  actor,
			ChangedAt:  at,
		})
	}
	return s.Tx.WithContext(ctx).Create(&rows).Error
}

// MaxExternalId returns the stored identifier with the highest numeric suffix
// for a prefix. Ordering is on the parsed suffix, not insertion order, so
// backfilled rows do not break the sequence.
func (s *RecordStore) MaxExternalId(ctx context.Context, tenantId string, prefix string) (string, error) {
	var externalId string
	err := s.Tx.WithContext(ctx).Model(&CustomerRecord{}).
		Where("tenant_id = ? AND external_id LIKE ?", tenantId, prefix+"\\_%").
		Order("CAST(SUBSTRING(external_id, LOCATE('_', external_id) + 1) AS UNSIGNED) DESC").
		Limit(1).
		Pluck("external_id", &externalId).Error
	if err != nil {
		return "", err
	}
	return externalId, nil
}
