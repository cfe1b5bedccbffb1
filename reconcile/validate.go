package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Validator applies the table-driven coercion rules to raw field maps.
// Stateless; safe for concurrent use.
type Validator struct {
	Rules  []FieldRule
	Logger *logrus.Logger

	// Strict turns enum coercion into hard errors. Default behavior keeps
	// the legacy contract: unknown enum input degrades to the default.
	Strict bool
}

func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{Rules: DefaultRules(), Logger: logger}
}

// Validate normalizes every submitted field against its rule. Fields absent
// from raw are left out of the result entirely (treated as not submitted).
// All field problems are accumulated; nothing fails fast.
func (v *Validator) Validate(raw map[string]string) (map[string]*string, ValidationErrors) {
	normalized := make(map[string]*string, len(raw))
	var errs ValidationErrors

	for _, rule := range v.Rules {
		rawValue, submitted := raw[rule.Field]
		if !submitted {
			continue
		}

		value, fieldErr := v.normalizeField(rule, rawValue)
		if fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		if value == nil && rule.Required {
			errs = append(errs, FieldError{Field: rule.Field, Message: "required"})
			continue
		}
		normalized[rule.Field] = value
	}

	return normalized, errs
}

// ValidateNew normalizes a complete candidate for insertion. On top of
// Validate's per-field rules, every Required field must be present: a field
// absent from raw is "not submitted" for updates but an error for inserts.
func (v *Validator) ValidateNew(raw map[string]string) (map[string]*string, ValidationErrors) {
	normalized, errs := v.Validate(raw)
	for _, rule := range v.Rules {
		if !rule.Required {
			continue
		}
		if _, submitted := raw[rule.Field]; submitted {
			// Validate already reported empty or invalid submissions.
			continue
		}
		errs = append(errs, FieldError{Field: rule.Field, Message: "required"})
	}
	return normalized, errs
}

func (v *Validator) normalizeField(rule FieldRule, raw string) (*string, *FieldError) {
	switch rule.Kind {
	case RuleEnum:
		value, ok := NormalizeEnum(raw, rule.Allowed, rule.Default)
		if !ok && v.Strict && strings.TrimSpace(raw) != "" {
			return nil, &FieldError{Field: rule.Field, Message: "value not in allowed set"}
		}
		return value, nil
	case RuleVarchar:
		return NormalizeVarchar(raw, rule.MaxLen), nil
	case RulePhone:
		value, err := NormalizePhone(raw)
		if err != nil {
			return nil, &FieldError{Field: rule.Field, Message: err.Error()}
		}
		return value, nil
	case RuleDate:
		return v.normalizeDateLogged(rule.Field, raw), nil
	case RuleDecimal:
		return v.normalizeDecimalLogged(rule.Field, raw), nil
	default:
		return NormalizeVarchar(raw, 0), nil
	}
}

// NormalizeEnum lower-cases and trims the input and matches it against the
// allowed set. Unknown input returns the default (commonly nil) with ok=false.
// Invalid enum values never raise an error on the legacy path.
func NormalizeEnum(raw string, allowed []string, def *string) (*string, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return def, true
	}
	for _, a := range allowed {
		if value == a {
			matched := a
			return &matched, true
		}
	}
	return def, false
}

// NormalizeVarchar trims and truncates to maxLen runes. Empty input maps to
// null. maxLen <= 0 means unbounded.
func NormalizeVarchar(raw string, maxLen int) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	if maxLen > 0 {
		runes := []rune(value)
		if len(runes) > maxLen {
			value = string(runes[:maxLen])
		}
	}
	return &value
}

// NormalizePhone strips every non-digit character. Empty input maps to null.
// More than MaxPhoneDigits digits is a hard error.
func NormalizePhone(raw string) (*string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return nil, nil
	}
	if len(digits) > MaxPhoneDigits {
		return nil, &PhoneTooLongError{Digits: len(digits)}
	}
	return &digits, nil
}

// PhoneTooLongError reports a phone value exceeding the digit bound.
type PhoneTooLongError struct {
	Digits int
}

func (e *PhoneTooLongError) Error() string {
	return "phone exceeds " + strconv.Itoa(MaxPhoneDigits) + " digits"
}

// spreadsheet serial day zero (Excel 1900 date system)
var serialDateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var fallbackDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"2/1/2006",
}

// NormalizeDate accepts a legacy spreadsheet serial day-count, DD/MM/YYYY, or
// any fallback layout, and returns the canonical YYYY-MM-DD value. Total
// failure returns nil with ok=false; it never errors.
func NormalizeDate(raw string) (*string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, true
	}

	// Spreadsheet serial: days since 1899-12-30, bounded to years 2000-2100.
	if serial, err := strconv.Atoi(value); err == nil {
		t := serialDateEpoch.AddDate(0, 0, serial)
		if t.Year() >= 2000 && t.Year() <= 2100 {
			out := t.Format("2006-01-02")
			return &out, true
		}
		return nil, false
	}

	if t, err := time.Parse("02/01/2006", value); err == nil {
		out := t.Format("2006-01-02")
		return &out, true
	}

	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			out := t.Format("2006-01-02")
			return &out, true
		}
	}
	return nil, false
}

func (v *Validator) normalizeDateLogged(field string, raw string) *string {
	value, ok := NormalizeDate(raw)
	if !ok && v.Logger != nil {
		v.Logger.WithFields(logrus.Fields{
			"field": field,
			"value": raw,
		}).Warn("unparseable date dropped")
	}
	return value
}

// NormalizeDecimal parses a money value via shopspring/decimal and returns its
// canonical string form. Unparseable input degrades to null like dates do.
func NormalizeDecimal(raw string) (*string, bool) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if value == "" {
		return nil, true
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return nil, false
	}
	out := dec.String()
	return &out, true
}

func (v *Validator) normalizeDecimalLogged(field string, raw string) *string {
	value, ok := NormalizeDecimal(raw)
	if !ok && v.Logger != nil {
		v.Logger.WithFields(logrus.Fields{
			"field": field,
			"value": raw,
		}).Warn("unparseable amount dropped")
	}
	return value
}
