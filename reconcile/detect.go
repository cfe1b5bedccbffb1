package reconcile

import (
	"context"
	"strings"
)

// CandidateRow is the identity projection of one stored record, as returned
// by the storage layer for collision checking.
type CandidateRow struct {
	Id         int
	ExternalId string
	Name       string
	Identity   map[string]string // identity field -> stored value
}

// IdentitySource is the read-only storage capability the detector needs:
// all rows where any of the given identity fields equals the candidate's
// value for that same field, excluding excludeId when > 0.
type IdentitySource interface {
	FindIdentityMatches(ctx context.Context, values map[string]string, fields []string, excludeId int) ([]CandidateRow, error)
}

// Detector finds identity-field collisions. Purely a read; no side effects.
type Detector struct {
	Source IdentitySource
	Fields []string // identity field names, in reporting order
}

func NewDetector(source IdentitySource) *Detector {
	return &Detector{Source: source, Fields: IdentityFields(DefaultRules())}
}

// Detect reports every field-for-field identity collision between the
// candidate's normalized values and existing records. excludeId > 0 keeps an
// updated record from colliding with itself.
func (d *Detector) Detect(ctx context.Context, candidate map[string]*string, excludeId int) (DuplicateReport, error) {
	values := make(map[string]string, len(d.Fields))
	for _, field := range d.Fields {
		v, ok := candidate[field]
		if !ok || v == nil {
			continue
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			continue
		}
		values[field] = trimmed
	}
	if len(values) == 0 {
		return DuplicateReport{}, nil
	}

	rows, err := d.Source.FindIdentityMatches(ctx, values, d.Fields, excludeId)
	if err != nil {
		return DuplicateReport{}, err
	}

	var report DuplicateReport
	for _, row := range rows {
		for _, field := range d.Fields {
			candidateValue, ok := values[field]
			if !ok {
				continue
			}
			stored := strings.TrimSpace(row.Identity[field])
			if stored == "" || stored != candidateValue {
				continue
			}
			report.Hits = append(report.Hits, DuplicateHit{
				Field:            field,
				Value:            candidateValue,
				ConflictRecordId: row.Id,
				ConflictExternal: row.ExternalId,
				ConflictName:     row.Name,
			})
		}
	}
	return report, nil
}
