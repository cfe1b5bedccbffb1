package reconcile

import (
	"context"
	"strings"
	"testing"
)

// fakeIdentitySource serves a fixed set of rows, matching the storage
// contract: return any row where any identity field equals the candidate's
// value for that same field.
type fakeIdentitySource struct {
	rows []CandidateRow
}

func (f *fakeIdentitySource) FindIdentityMatches(_ context.Context, values map[string]string, fields []string, excludeId int) ([]CandidateRow, error) {
	var out []CandidateRow
	for _, row := range f.rows {
		if row.Id == excludeId {
			continue
		}
		for _, field := range fields {
			if v, ok := values[field]; ok && v != "" && row.Identity[field] == v {
				out = append(out, row)
				break
			}
		}
	}
	return out, nil
}

func strp(s string) *string { return &s }

func TestDetectReportsFieldForFieldHits(t *testing.T) {
	source := &fakeIdentitySource{rows: []CandidateRow{
		{Id: 1, ExternalId: "DF_1", Name: "Asha Rao", Identity: map[string]string{"mobile": "9876543210", "crn": "CRN100"}},
		{Id: 2, ExternalId: "DF_2", Name: "Vikram S", Identity: map[string]string{"mobile": "9000000000"}},
	}}
	d := NewDetector(source)

	report, err := d.Detect(context.Background(), map[string]*string{
		"mobile": strp("9876543210"),
		"crn":    strp("CRN999"),
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(report.Hits), report.Hits)
	}
	hit := report.Hits[0]
	if hit.Field != "mobile" || hit.ConflictRecordId != 1 || hit.ConflictExternal != "DF_1" {
		t.Fatalf("unexpected hit %+v", hit)
	}
}

func TestDetectNoCrossFieldMatching(t *testing.T) {
	// a phone stored in crn must not collide with a candidate mobile
	source := &fakeIdentitySource{rows: []CandidateRow{
		{Id: 1, ExternalId: "DF_1", Identity: map[string]string{"crn": "9876543210"}},
	}}
	d := NewDetector(source)

	report, err := d.Detect(context.Background(), map[string]*string{"mobile": strp("9876543210")}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("cross-field match must not be reported: %+v", report.Hits)
	}
}

func TestDetectSymmetry(t *testing.T) {
	a := CandidateRow{Id: 1, ExternalId: "DF_1", Identity: map[string]string{"mobile": "9876543210"}}
	b := CandidateRow{Id: 2, ExternalId: "DF_2", Identity: map[string]string{"mobile": "9876543210"}}
	d := NewDetector(&fakeIdentitySource{rows: []CandidateRow{a, b}})

	// detecting for either record, excluding itself, reports the other
	reportA, err := d.Detect(context.Background(), map[string]*string{"mobile": strp("9876543210")}, a.Id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reportB, err := d.Detect(context.Background(), map[string]*string{"mobile": strp("9876543210")}, b.Id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reportA.Hits) != 1 || reportA.Hits[0].ConflictRecordId != b.Id {
		t.Fatalf("A should hit B: %+v", reportA.Hits)
	}
	if len(reportB.Hits) != 1 || reportB.Hits[0].ConflictRecordId != a.Id {
		t.Fatalf("B should hit A: %+v", reportB.Hits)
	}
}

func TestDetectIgnoresEmptyCandidateValues(t *testing.T) {
	source := &fakeIdentitySource{rows: []CandidateRow{
		{Id: 1, ExternalId: "DF_1", Identity: map[string]string{"email": ""}},
	}}
	d := NewDetector(source)

	report, err := d.Detect(context.Background(), map[string]*string{
		"email":  strp("  "),
		"mobile": nil,
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("empty values must not collide: %+v", report.Hits)
	}
}

func TestDescribeNamesConflicts(t *testing.T) {
	report := DuplicateReport{Hits: []DuplicateHit{
		{Field: "mobile", Value: "9876543210", ConflictRecordId: 1, ConflictExternal: "DF_1", ConflictName: "Asha Rao"},
	}}
	msg := report.Describe()
	for _, want := range []string{"mobile", "9876543210", "DF_1", "Asha Rao"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("conflict message %q missing %q", msg, want)
		}
	}
}
