package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeChangeSink struct {
	saved   []FieldChange
	actor   string
	calls   int
	failing bool
}

func (f *fakeChangeSink) SaveChanges(_ context.Context, recordId int, externalId string, changes []FieldChange, actor string, _ time.Time) error {
	if f.failing {
		return errors.New("storage down")
	}
	f.calls++
	f.saved = append(f.saved, changes...)
	f.actor = actor
	return nil
}

func TestDiffEmitsOnlyChangedFields(t *testing.T) {
	before := map[string]*string{"disposition": strp("interested"), "comment": strp("call later")}
	after := map[string]*string{"disposition": strp("converted"), "comment": strp("call later")}

	changes := Diff(before, after, TrackedFields(DefaultRules()))
	if len(changes) != 1 {
		t.Fatalf("expected exactly 1 change, got %d: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Field != "disposition" || *c.OldValue != "interested" || *c.NewValue != "converted" {
		t.Fatalf("unexpected change %+v", c)
	}
}

func TestDiffTreatsAbsentFieldsAsUnchanged(t *testing.T) {
	before := map[string]*string{"name": strp("Asha Rao"), "mobile": strp("987")}
	after := map[string]*string{"mobile": strp("988")}

	changes := Diff(before, after, TrackedFields(DefaultRules()))
	if len(changes) != 1 || changes[0].Field != "mobile" {
		t.Fatalf("absent fields must not diff: %+v", changes)
	}
}

func TestDiffNullTransitions(t *testing.T) {
	before := map[string]*string{"email": nil}
	after := map[string]*string{"email": strp("a@b.co")}

	changes := Diff(before, after, TrackedFields(DefaultRules()))
	if len(changes) != 1 || changes[0].OldValue != nil {
		t.Fatalf("null to value must diff: %+v", changes)
	}

	if got := Diff(after, after, TrackedFields(DefaultRules())); len(got) != 0 {
		t.Fatalf("identical snapshots must not diff: %+v", got)
	}
}

func TestRecordChangesRequiresActor(t *testing.T) {
	sink := &fakeChangeSink{}
	r := NewRecorder(sink)

	_, err := r.RecordChanges(context.Background(), 1, "DF_1",
		map[string]*string{"disposition": strp("interested")},
		map[string]*string{"disposition": strp("converted")},
		"")
	if !errors.Is(err, ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("nothing may be written without an actor")
	}
}

func TestRecordChangesNoOpWritesNothing(t *testing.T) {
	sink := &fakeChangeSink{}
	r := NewRecorder(sink)

	changes, err := r.RecordChanges(context.Background(), 1, "DF_1",
		map[string]*string{"disposition": strp("converted")},
		map[string]*string{"disposition": strp("converted")},
		"mis_admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changes != nil || sink.calls != 0 {
		t.Fatalf("same-value update must produce zero entries")
	}
}

func TestRecordChangesPersistsDiff(t *testing.T) {
	sink := &fakeChangeSink{}
	r := NewRecorder(sink)

	changes, err := r.RecordChanges(context.Background(), 1, "DF_1",
		map[string]*string{"disposition": strp("interested")},
		map[string]*string{"disposition": strp("converted")},
		"mis_admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 || sink.calls != 1 || sink.actor != "mis_admin" {
		t.Fatalf("diff not persisted: %+v calls=%d actor=%s", changes, sink.calls, sink.actor)
	}
}

func TestRecordChangesPropagatesSinkFailure(t *testing.T) {
	sink := &fakeChangeSink{failing: true}
	r := NewRecorder(sink)

	_, err := r.RecordChanges(context.Background(), 1, "DF_1",
		map[string]*string{"disposition": strp("interested")},
		map[string]*string{"disposition": strp("converted")},
		"mis_admin")
	if err == nil {
		t.Fatalf("sink failure must propagate so the transaction rolls back")
	}
}
