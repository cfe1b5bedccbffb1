package reconcile

import (
	"strings"
	"testing"
)

func TestNormalizePhoneBounds(t *testing.T) {
	// exactly 12 digits passes
	v, err := NormalizePhone("+91 98765-43210")
	if err != nil {
		t.Fatalf("12 digits should pass: %v", err)
	}
	if v == nil || *v != "919876543210" || len(*v) != 12 {
		t.Fatalf("unexpected normalized value %v", v)
	}

	// 13 digits is rejected
	_, err = NormalizePhone("9198765432109")
	if err == nil {
		t.Fatalf("13 digits should be rejected")
	}
	if _, ok := err.(*PhoneTooLongError); !ok {
		t.Fatalf("expected PhoneTooLongError, got %T", err)
	}

	// empty maps to null, not an error
	v, err = NormalizePhone(" -- ")
	if err != nil || v != nil {
		t.Fatalf("empty phone should map to null, got %v %v", v, err)
	}
}

func TestNormalizeDateLeapDay(t *testing.T) {
	v, ok := NormalizeDate("29/02/2024")
	if !ok || v == nil || *v != "2024-02-29" {
		t.Fatalf("leap day should normalize, got %v ok=%v", v, ok)
	}

	v, ok = NormalizeDate("31/02/2024")
	if ok || v != nil {
		t.Fatalf("invalid day-month should yield null, got %v ok=%v", v, ok)
	}
}

func TestNormalizeDateSpreadsheetSerial(t *testing.T) {
	// 45292 days after 1899-12-30 is 2024-01-01
	v, ok := NormalizeDate("45292")
	if !ok || v == nil || *v != "2024-01-01" {
		t.Fatalf("serial date should normalize, got %v ok=%v", v, ok)
	}

	// serial resolving outside 2000-2100 is dropped
	v, ok = NormalizeDate("100")
	if ok || v != nil {
		t.Fatalf("out-of-range serial should yield null, got %v ok=%v", v, ok)
	}
}

func TestNormalizeEnumCoercion(t *testing.T) {
	v, ok := NormalizeEnum("  INTERESTED ", dispositionValues, nil)
	if !ok || v == nil || *v != "interested" {
		t.Fatalf("case/space insensitive match failed: %v ok=%v", v, ok)
	}

	// unknown value degrades to the default, never errors
	v, ok = NormalizeEnum("banana", dispositionValues, nil)
	if ok || v != nil {
		t.Fatalf("unknown enum should coerce to default, got %v ok=%v", v, ok)
	}
}

func TestNormalizeVarcharTruncates(t *testing.T) {
	long := strings.Repeat("x", 120)
	v := NormalizeVarchar(long, 100)
	if v == nil || len(*v) != 100 {
		t.Fatalf("expected truncation to 100, got %v", v)
	}
	if NormalizeVarchar("   ", 100) != nil {
		t.Fatalf("blank input should map to null")
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	v := NewValidator(nil)
	_, errs := v.Validate(map[string]string{
		"name":   "",
		"mobile": "12345678901234",
	})
	if len(errs) != 2 {
		t.Fatalf("expected 2 accumulated errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateSoftFieldsDoNotBlock(t *testing.T) {
	v := NewValidator(nil)
	normalized, errs := v.Validate(map[string]string{
		"name":         "Asha Rao",
		"mobile":       "9876543210",
		"disposition":  "no-such-code",
		"scheduled_at": "not a date",
		"emi_amount":   "abc",
	})
	if len(errs) != 0 {
		t.Fatalf("enum/date/amount softness should not error: %v", errs)
	}
	if normalized["disposition"] != nil {
		t.Fatalf("unknown disposition should coerce to null")
	}
	if normalized["scheduled_at"] != nil {
		t.Fatalf("bad date should coerce to null")
	}
	if normalized["emi_amount"] != nil {
		t.Fatalf("bad amount should coerce to null")
	}
}

func TestValidateStrictEnum(t *testing.T) {
	v := NewValidator(nil)
	v.Strict = true
	_, errs := v.Validate(map[string]string{
		"name":        "Asha Rao",
		"mobile":      "9876543210",
		"disposition": "no-such-code",
	})
	if len(errs) != 1 || errs[0].Field != "disposition" {
		t.Fatalf("strict mode should reject unknown enum: %v", errs)
	}
}

func TestValidateSkipsUnsubmittedFields(t *testing.T) {
	v := NewValidator(nil)
	normalized, errs := v.Validate(map[string]string{"comment": "paid half"})
	if len(errs) != 0 {
		t.Fatalf("unsubmitted required fields must not error on partial update: %v", errs)
	}
	if _, ok := normalized["name"]; ok {
		t.Fatalf("unsubmitted field should be absent from result")
	}
	if normalized["comment"] == nil || *normalized["comment"] != "paid half" {
		t.Fatalf("submitted field missing: %v", normalized)
	}
}

func TestValidateNewRequiresMandatoryFields(t *testing.T) {
	v := NewValidator(nil)
	_, errs := v.ValidateNew(map[string]string{"comment": "hello"})
	missing := map[string]bool{}
	for _, fieldErr := range errs {
		missing[fieldErr.Field] = true
	}
	if !missing["name"] || !missing["mobile"] {
		t.Fatalf("insert without name and mobile must be rejected: %v", errs)
	}

	normalized, errs := v.ValidateNew(map[string]string{
		"name":   "Asha Rao",
		"mobile": "9876543210",
	})
	if len(errs) != 0 {
		t.Fatalf("complete candidate should pass: %v", errs)
	}
	if normalized["mobile"] == nil || *normalized["mobile"] != "9876543210" {
		t.Fatalf("normalized mobile missing: %v", normalized)
	}
}

func TestNormalizeDecimal(t *testing.T) {
	v, ok := NormalizeDecimal("1,20,000.50")
	if !ok || v == nil || *v != "120000.5" {
		t.Fatalf("comma-grouped amount should normalize, got %v ok=%v", v, ok)
	}
}
