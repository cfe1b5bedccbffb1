package models

import "testing"

func TestPhoneLookupSuffix(t *testing.T) {
	// Country-coded and bare forms of the same number must resolve to the
	// same lookup digits.
	withCode := PhoneLookupSuffix("+91 98765 43210")
	bare := PhoneLookupSuffix("9876543210")
	if withCode != bare {
		t.Fatalf("country-coded and bare forms diverged: %q vs %q", withCode, bare)
	}
	if bare != "9876543210" {
		t.Fatalf("PhoneLookupSuffix(bare) = %q, want 9876543210", bare)
	}

	if got := PhoneLookupSuffix("agent-x"); got != "" {
		t.Fatalf("non-numeric input should yield no digits, got %q", got)
	}

	// Overlong unparseable input is bounded to its trailing digits.
	long := PhoneLookupSuffix("1234567890123456")
	if len(long) > 12 {
		t.Fatalf("suffix longer than 12 digits: %q", long)
	}
	if long != "" && long[len(long)-1] != '6' {
		t.Fatalf("suffix must keep the trailing digits, got %q", long)
	}
}
