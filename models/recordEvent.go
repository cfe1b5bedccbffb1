package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for RecordEventRecord.PublishStatus.
// Keep these as strings (DB values).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// RecordEventRecord is a transactional-outbox row for a customer record
// event. It is inserted in the same transaction as the mutation; the
// dispatcher publishes it to Pub/Sub after commit, so notification delivery
// can never fail the mutation.
type RecordEventRecord struct {
	ID            int               `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	TenantId      string            `gorm:"size:64;not null;index" json:"tenant_id"`
	EventDateTime time.Time         `gorm:"index;not null" json:"event_date_time"`
	RecordId      int               `gorm:"index" json:"record_id"`
	UniqueId      string            `gorm:"size:30" json:"unique_id"`
	Action        RecordEventAction `gorm:"type:enum('C','U','D','B')" json:"action"`
	OldObj        []byte            `gorm:"type:blob" json:"old_obj"`
	NewObj        []byte            `gorm:"type:blob" json:"new_obj"`

	// publish metadata (publish happens after commit via dispatcher)
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToRecordEventMessage(record RecordEventRecord) config.RecordEventMessage {
	return config.RecordEventMessage{
		ID:            record.ID,
		TenantId:      record.TenantId,
		EventDateTime: record.EventDateTime,
		RecordId:      record.RecordId,
		UniqueId:      record.UniqueId,
		Action:        string(record.Action),
		OldObj:        record.OldObj,
		NewObj:        record.NewObj,
		CorrelationId: record.CorrelationId,
	}
}

// EnqueueRecordEvent inserts an outbox row inside the caller's transaction.
// oldObj/newObj may be nil; they are stored as JSON snapshots.
func EnqueueRecordEvent(tx *gorm.DB, action RecordEventAction, recordId int, uniqueId string, oldObj interface{}, newObj interface{}) error {
	ctx := tx.Statement.Context
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var oldJSON, newJSON []byte
	if oldObj != nil {
		oldJSON, _ = json.Marshal(oldObj)
	}
	if newObj != nil {
		newJSON, _ = json.Marshal(newObj)
	}

	event := RecordEventRecord{
		TenantId:      tenantId,
		EventDateTime: time.Now().UTC(),
		RecordId:      recordId,
		UniqueId:      uniqueId,
		Action:        action,
		OldObj:        oldJSON,
		NewObj:        newJSON,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&event).Error
}
