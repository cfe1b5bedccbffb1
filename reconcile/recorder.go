package reconcile

import (
	"context"
	"time"
)

// FieldChange is one field's mutation, as computed by Diff.
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

// ChangeSink persists audit entries. Implementations must write inside the
// same transaction as the record mutation itself.
type ChangeSink interface {
	SaveChanges(ctx context.Context, recordId int, externalId string, changes []FieldChange, actor string, at time.Time) error
}

// Recorder computes field-level diffs and appends them to the audit trail.
type Recorder struct {
	Sink ChangeSink
	Now  func() time.Time
}

func NewRecorder(sink ChangeSink) *Recorder {
	return &Recorder{Sink: sink, Now: time.Now}
}

// Diff emits one FieldChange per tracked field whose normalized value
// actually changed. Fields absent from after are treated as unchanged, not
// as nulled.
func Diff(before, after map[string]*string, tracked []string) []FieldChange {
	var changes []FieldChange
	for _, field := range tracked {
		newValue, submitted := after[field]
		if !submitted {
			continue
		}
		oldValue := before[field]
		if valuesEqual(oldValue, newValue) {
			continue
		}
		changes = append(changes, FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
	}
	return changes
}

func valuesEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// RecordChanges diffs the snapshots and persists one entry per changed field.
// An empty actor aborts before anything is written; the caller must roll the
// enclosing transaction back.
func (r *Recorder) RecordChanges(ctx context.Context, recordId int, externalId string, before, after map[string]*string, actor string) ([]FieldChange, error) {
	if actor == "" {
		return nil, ErrMissingActor
	}
	changes := Diff(before, after, TrackedFields(DefaultRules()))
	if len(changes) == 0 {
		return nil, nil
	}
	if err := r.Sink.SaveChanges(ctx, recordId, externalId, changes, actor, r.Now()); err != nil {
		return nil, err
	}
	return changes, nil
}
