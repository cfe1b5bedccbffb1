package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/utils"
)

// RecordChange is one immutable audit row: a single field's mutation on one
// customer record. Rows are only ever inserted, or deleted by cascade when
// the owning record is deleted.
type RecordChange struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TenantId   string    `gorm:"size:64;index;not null" json:"tenant_id"`
	RecordId   int       `gorm:"index;not null" json:"record_id"`
	ExternalId string    `gorm:"size:30;index;not null" json:"external_id"`
	Field      string    `gorm:"size:50;not null" json:"field"`
	OldValue   *string   `gorm:"size:500" json:"old_value"`
	NewValue   *string   `gorm:"size:500" json:"new_value"`
	ChangedBy  string    `gorm:"size:100;not null" json:"changed_by"`
	ChangedAt  time.Time `gorm:"index;not null" json:"changed_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c RecordChange) GetId() int { return c.ID }

func (c RecordChange) GetCursor() string { return c.ChangedAt.String() }

// GetRecordChanges returns a record's audit trail, newest first.
func GetRecordChanges(ctx context.Context, recordId int) ([]*RecordChange, error) {
	db := config.GetDB()
	var results []*RecordChange
	err := db.WithContext(ctx).
		Where("record_id = ?", recordId).
		Order("changed_at DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

type RecordChangesConnection struct {
	Edges    []*RecordChangesEdge `json:"edges"`
	PageInfo *PageInfo            `json:"pageInfo"`
}

type RecordChangesEdge Edge[RecordChange]

func PaginateRecordChanges(ctx context.Context, limit *int, after *string, recordId *int, changedBy *string) (*RecordChangesConnection, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&RecordChange{})
	if recordId != nil && *recordId > 0 {
		dbCtx.Where("record_id = ?", *recordId)
	}
	if changedBy != nil && *changedBy != "" {
		dbCtx.Where("changed_by = ?", *changedBy)
	}

	pageLimit := config.SearchLimit
	if limit != nil && *limit > 0 {
		pageLimit = *limit
	}
	edges, pageInfo, err := FetchPageCompositeCursor[RecordChange](dbCtx, pageLimit, after, "changed_at", "<")
	if err != nil {
		return nil, err
	}

	var conn RecordChangesConnection
	conn.PageInfo = pageInfo
	for _, edge := range edges {
		changeEdge := RecordChangesEdge(edge)
		conn.Edges = append(conn.Edges, &changeEdge)
	}
	return &conn, nil
}
