package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/multycomm/collection_backend/reconcile"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// RecordSequence backs the identifier allocator: one counter row per
// tenant+prefix, updated atomically inside the caller's transaction so two
// concurrent creations can never read the same "current max".
type RecordSequence struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"size:64;not null;uniqueIndex:idx_sequence_tenant_prefix,priority:1" json:"tenant_id"`
	Prefix    string    `gorm:"size:10;not null;uniqueIndex:idx_sequence_tenant_prefix,priority:2" json:"prefix"`
	LastValue int       `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// AllocateExternalId reserves the next identifier for tenant+prefix within
// tx. The counter row is incremented with a single UPDATE (row lock held
// until commit); a missing row is seeded from the highest stored external id,
// with a duplicate-key retry when two transactions race to seed.
func AllocateExternalId(ctx context.Context, tx *gorm.DB, tenantId string, prefix string) (string, error) {
	store := NewRecordStore(tx)

	for attempt := 0; attempt < 2; attempt++ {
		result := tx.WithContext(ctx).Model(&RecordSequence{}).
			Where("tenant_id = ? AND prefix = ?", tenantId, prefix).
			Update("last_value", gorm.Expr("last_value + 1"))
		if result.Error != nil {
			return "", result.Error
		}
		if result.RowsAffected > 0 {
			var lastValue int
			err := tx.WithContext(ctx).Model(&RecordSequence{}).
				Where("tenant_id = ? AND prefix = ?", tenantId, prefix).
				Pluck("last_value", &lastValue).Error
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s_%d", prefix, lastValue), nil
		}

		// no counter row yet: seed from the highest stored identifier
		currentMax, err := store.MaxExternalId(ctx, tenantId, prefix)
		if err != nil {
			return "", err
		}
		seed := 0
		if currentMax != "" {
			seed, err = reconcile.IdentifierSuffix(currentMax)
			if err != nil {
				return "", err
			}
		}

		row := RecordSequence{TenantId: tenantId, Prefix: prefix, LastValue: seed + 1}
		err = tx.WithContext(ctx).Create(&row).Error
		if err == nil {
			return fmt.Sprintf("%s_%d", prefix, row.LastValue), nil
		}
		if !isDuplicateKeyErr(err) {
			return "", err
		}
		// lost the seeding race; retry the UPDATE path once
	}

	return "", errors.New("could not allocate external id")
}
