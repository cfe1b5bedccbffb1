package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeSuffixSource tracks suffixed variants per field+base the way a pattern
// scan over storage would.
type fakeSuffixSource struct {
	values map[string][]string // field -> stored identity values
}

func (f *fakeSuffixSource) MaxIdentitySuffix(_ context.Context, field string, base string) (int, error) {
	max := 0
	for _, v := range f.values[field] {
		if BaseValue(v) != base {
			continue
		}
		if n := ParseSuffix(v); n > max {
			max = n
		}
	}
	return max, nil
}

func (f *fakeSuffixSource) add(field, value string) {
	if f.values == nil {
		f.values = map[string][]string{}
	}
	f.values[field] = append(f.values[field], value)
}

func TestParsePolicy(t *testing.T) {
	for _, raw := range []string{"skip", "append", "replace", "prompt"} {
		if _, err := ParsePolicy(raw); err != nil {
			t.Fatalf("policy %q should parse: %v", raw, err)
		}
	}
	if _, err := ParsePolicy("merge"); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	policy, err := ParsePolicy("")
	if err != nil {
		t.Fatalf("omitted policy should parse: %v", err)
	}
	if policy != PolicyPrompt {
		t.Fatalf("omitted policy should default to prompt, got %q", policy)
	}
}

func TestResolveSkipIsNoOp(t *testing.T) {
	r := NewResolver(&fakeSuffixSource{})
	report := DuplicateReport{Hits: []DuplicateHit{{Field: "mobile", ConflictRecordId: 1}}}

	plan, err := r.Resolve(context.Background(), PolicySkip, map[string]*string{"mobile": strp("987")}, report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != ActionNone || len(plan.DeleteRecordIds) != 0 {
		t.Fatalf("skip must plan nothing: %+v", plan)
	}
}

func TestResolvePromptDefers(t *testing.T) {
	r := NewResolver(&fakeSuffixSource{})
	report := DuplicateReport{Hits: []DuplicateHit{{Field: "crn", ConflictRecordId: 4}}}

	plan, err := r.Resolve(context.Background(), PolicyPrompt, nil, report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != ActionDefer || len(plan.Report.Hits) != 1 {
		t.Fatalf("prompt must defer with the report attached: %+v", plan)
	}
}

func TestResolveAppendSuffixesSequentially(t *testing.T) {
	source := &fakeSuffixSource{}
	source.add("mobile", "9876543210")
	r := NewResolver(source)
	report := DuplicateReport{Hits: []DuplicateHit{{Field: "mobile", Value: "9876543210", ConflictRecordId: 1}}}

	// first append against the base value
	plan, err := r.Resolve(context.Background(), PolicyAppend, map[string]*string{"mobile": strp("9876543210")}, report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != ActionInsertModified {
		t.Fatalf("append must plan a modified insert: %+v", plan)
	}
	if got := *plan.Candidate["mobile"]; got != "9876543210__1" {
		t.Fatalf("first append should suffix __1, got %s", got)
	}
	source.add("mobile", *plan.Candidate["mobile"])

	// second append against the same base
	plan, err = r.Resolve(context.Background(), PolicyAppend, map[string]*string{"mobile": strp("9876543210")}, report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *plan.Candidate["mobile"]; got != "9876543210__2" {
		t.Fatalf("second append should suffix __2, got %s", got)
	}
}

func TestResolveAppendDoesNotMutateInput(t *testing.T) {
	source := &fakeSuffixSource{}
	r := NewResolver(source)
	candidate := map[string]*string{"mobile": strp("9876543210")}
	report := DuplicateReport{Hits: []DuplicateHit{{Field: "mobile", ConflictRecordId: 1}}}

	if _, err := r.Resolve(context.Background(), PolicyAppend, candidate, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *candidate["mobile"] != "9876543210" {
		t.Fatalf("input candidate mutated: %s", *candidate["mobile"])
	}
}

func TestResolveReplaceReusesExternalId(t *testing.T) {
	r := NewResolver(&fakeSuffixSource{})
	report := DuplicateReport{Hits: []DuplicateHit{
		{Field: "mobile", ConflictRecordId: 7, ConflictExternal: "DF_7"},
		{Field: "crn", ConflictRecordId: 7, ConflictExternal: "DF_7"},
		{Field: "email", ConflictRecordId: 9, ConflictExternal: "DF_9"},
	}}

	plan, err := r.Resolve(context.Background(), PolicyReplace, nil, report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Action != ActionReplaceInsert {
		t.Fatalf("replace must plan delete-then-insert: %+v", plan)
	}
	if len(plan.DeleteRecordIds) != 2 {
		t.Fatalf("conflicting records must be deduplicated: %v", plan.DeleteRecordIds)
	}
	if plan.ReuseExternalId != "DF_7" {
		t.Fatalf("replace must carry the replaced record's external id, got %q", plan.ReuseExternalId)
	}
}

func TestResolveInvalidPolicy(t *testing.T) {
	r := NewResolver(&fakeSuffixSource{})
	_, err := r.Resolve(context.Background(), Policy("upsert"), nil, DuplicateReport{})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestParseSuffixAndBase(t *testing.T) {
	if ParseSuffix("987__3") != 3 {
		t.Fatalf("suffix parse failed")
	}
	if ParseSuffix("987") != 0 {
		t.Fatalf("bare value should parse as 0")
	}
	if BaseValue("987__12") != "987" {
		t.Fatalf("base strip failed")
	}
	if strings.Contains(BaseValue("987_5"), "__") {
		t.Fatalf("single underscore must not be treated as a suffix")
	}
}
