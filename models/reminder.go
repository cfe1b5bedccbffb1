package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/utils"
)

// Reminder buckets for upcoming scheduled calls. Priority 1 fires closest
// to the scheduled time.
const (
	ReminderWindowNear = 1 * time.Minute
	ReminderWindowMid  = 5 * time.Minute
	ReminderWindowFar  = 15 * time.Minute
)

type Reminder struct {
	Record      *CustomerRecord `json:"record"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Priority    int             `json:"priority"`
}

// GetReminders returns records scheduled within the next fifteen minutes,
// scoped to the caller's role the same way record listing is.
func GetReminders(ctx context.Context) ([]*Reminder, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()
	now := time.Now()
	horizon := now.Add(ReminderWindowFar)

	var records []*CustomerRecord
	dbCtx := db.WithContext(ctx).Model(&CustomerRecord{}).
		Where("scheduled_at IS NOT NULL AND scheduled_at > ? AND scheduled_at <= ?", now, horizon).
		Order("scheduled_at")
	dbCtx = scopeByRole(ctx, dbCtx)
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, err
	}

	reminders := make([]*Reminder, 0, len(records))
	for _, record := range records {
		scheduledAt := *record.ScheduledAt
		reminders = append(reminders, &Reminder{
			Record:      record,
			ScheduledAt: scheduledAt,
			Priority:    reminderPriority(scheduledAt.Sub(now)),
		})
	}
	return reminders, nil
}

func reminderPriority(until time.Duration) int {
	switch {
	case until <= ReminderWindowNear:
		return 1
	case until <= ReminderWindowMid:
		return 2
	default:
		return 3
	}
}
