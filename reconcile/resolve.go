package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Policy is the caller-chosen duplicate handling strategy.
type Policy string

const (
	PolicySkip    Policy = "skip"
	PolicyAppend  Policy = "append"
	PolicyReplace Policy = "replace"
	PolicyPrompt  Policy = "prompt"
)

// ParsePolicy validates a raw policy string. An omitted policy defaults to
// prompt: nothing destructive happens unless the caller asked for it.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case "":
		return PolicyPrompt, nil
	case PolicySkip, PolicyAppend, PolicyReplace, PolicyPrompt:
		return Policy(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}

// PlanAction is what the caller must do with a resolved candidate.
type PlanAction string

const (
	// ActionNone: skip policy; nothing is written, zero records reported.
	ActionNone PlanAction = "none"
	// ActionDefer: prompt policy; return the report upstream, write nothing.
	ActionDefer PlanAction = "defer"
	// ActionInsertModified: append policy; insert candidate with suffixed
	// identity values and a freshly allocated external id.
	ActionInsertModified PlanAction = "insert_modified"
	// ActionReplaceInsert: replace policy; delete the conflicting records,
	// then insert candidate reusing the replaced record's external id.
	ActionReplaceInsert PlanAction = "replace_insert"
)

// ResolutionPlan is the mutation plan produced by Resolve. The resolver never
// touches storage itself; the caller applies the plan inside its transaction.
type ResolutionPlan struct {
	Action          PlanAction
	Candidate       map[string]*string
	DeleteRecordIds []int
	ReuseExternalId string
	Report          DuplicateReport
}

// SuffixSource scans storage for existing suffixed variants of an identity
// value (base, base__1, base__2, ...) and returns the maximum suffix found.
// 0 means only the bare base value exists.
type SuffixSource interface {
	MaxIdentitySuffix(ctx context.Context, field string, base string) (int, error)
}

var suffixPattern = regexp.MustCompile(`__(\d+)$`)

// ParseSuffix extracts the trailing __<n> suffix of an identity value.
// Returns 0 when the value carries no suffix.
func ParseSuffix(value string) int {
	m := suffixPattern.FindStringSubmatch(value)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// BaseValue strips a trailing __<n> suffix.
func BaseValue(value string) string {
	return suffixPattern.ReplaceAllString(value, "")
}

// Resolver turns a duplicate report plus a policy into a mutation plan.
type Resolver struct {
	Suffixes SuffixSource
}

func NewResolver(suffixes SuffixSource) *Resolver {
	return &Resolver{Suffixes: suffixes}
}

// Resolve produces the mutation plan for a detected collision. The candidate
// map is never mutated in place; append returns a suffixed copy.
func (r *Resolver) Resolve(ctx context.Context, policy Policy, candidate map[string]*string, report DuplicateReport) (ResolutionPlan, error) {
	switch policy {
	case PolicySkip:
		return ResolutionPlan{Action: ActionNone, Candidate: candidate, Report: report}, nil

	case PolicyPrompt:
		return ResolutionPlan{Action: ActionDefer, Candidate: candidate, Report: report}, nil

	case PolicyAppend:
		modified := make(map[string]*string, len(candidate))
		for k, v := range candidate {
			modified[k] = v
		}
		for _, field := range report.Fields() {
			value := modified[field]
			if value == nil {
				continue
			}
			base := BaseValue(*value)
			max, err := r.Suffixes.MaxIdentitySuffix(ctx, field, base)
			if err != nil {
				return ResolutionPlan{}, err
			}
			suffixed := fmt.Sprintf("%s__%d", base, max+1)
			modified[field] = &suffixed
		}
		return ResolutionPlan{Action: ActionInsertModified, Candidate: modified, Report: report}, nil

	case PolicyReplace:
		seen := map[int]bool{}
		var deleteIds []int
		for _, hit := range report.Hits {
			if !seen[hit.ConflictRecordId] {
				seen[hit.ConflictRecordId] = true
				deleteIds = append(deleteIds, hit.ConflictRecordId)
			}
		}
		reuse := ""
		if len(report.Hits) > 0 {
			// Identifier continuity: the candidate inherits the external id of
			// the record it replaces.
			reuse = report.Hits[0].ConflictExternal
		}
		return ResolutionPlan{
			Action:          ActionReplaceInsert,
			Candidate:       candidate,
			DeleteRecordIds: deleteIds,
			ReuseExternalId: reuse,
			Report:          report,
		}, nil

	default:
		return ResolutionPlan{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
}
