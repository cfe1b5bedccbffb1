package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedIdentifier means a stored external id's numeric suffix could
	// not be parsed. Fatal for the current allocation; never defaulted over.
	ErrMalformedIdentifier = errors.New("malformed record identifier")

	// ErrInvalidPolicy means the caller passed an unrecognized duplicate policy.
	ErrInvalidPolicy = errors.New("invalid duplicate policy")

	// ErrMissingActor means a mutating call carried no actor identity.
	// The enclosing transaction must abort; audit is mandatory.
	ErrMissingActor = errors.New("missing actor identity")
)

// FieldError is one accumulated validation problem for one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the full list of field problems for one candidate row.
// Callers branch on it as a result, not an exception.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) HasBlocking() bool { return len(v) > 0 }

// DuplicateHit reports one identity field colliding with one existing record.
type DuplicateHit struct {
	Field            string `json:"field"`
	Value            string `json:"value"`
	ConflictRecordId int    `json:"conflict_record_id"`
	ConflictExternal string `json:"conflict_external_id"`
	ConflictName     string `json:"conflict_name"`
}

// DuplicateReport lists every collision found for a candidate.
// Empty report means no duplication.
type DuplicateReport struct {
	Hits []DuplicateHit `json:"hits"`
}

func (r DuplicateReport) Empty() bool { return len(r.Hits) == 0 }

// Fields returns the distinct colliding field names, in hit order.
func (r DuplicateReport) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range r.Hits {
		if !seen[h.Field] {
			seen[h.Field] = true
			out = append(out, h.Field)
		}
	}
	return out
}

// Describe renders the caller-facing conflict message. Every colliding field
// and the conflicting record's identity must be named, never a bare
// "duplicate" message.
func (r DuplicateReport) Describe() string {
	if r.Empty() {
		return ""
	}
	parts := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		name := h.ConflictName
		if name == "" {
			name = h.ConflictExternal
		}
		parts[i] = fmt.Sprintf("%s %q already exists on record %s (%s)", h.Field, h.Value, h.ConflictExternal, name)
	}
	return strings.Join(parts, "; ")
}
