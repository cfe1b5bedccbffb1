package reconcile

import (
	"errors"
	"testing"
)

func TestNextIdentifierIncrements(t *testing.T) {
	got, err := NextIdentifier("DF", "DF_7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "DF_8" {
		t.Fatalf("expected DF_8, got %s", got)
	}
}

func TestNextIdentifierStartsAtOne(t *testing.T) {
	got, err := NextIdentifier("DF", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "DF_1" {
		t.Fatalf("expected DF_1, got %s", got)
	}
}

func TestNextIdentifierLegacyPrefix(t *testing.T) {
	// stored records may carry an older prefix; parsing is on the suffix only
	got, err := NextIdentifier("FF", "DF_41")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "FF_42" {
		t.Fatalf("expected FF_42, got %s", got)
	}
}

func TestNextIdentifierMalformed(t *testing.T) {
	cases := []string{"DF_abc", "DF", "DF_", "DF_-3"}
	for _, c := range cases {
		_, err := NextIdentifier("DF", c)
		if !errors.Is(err, ErrMalformedIdentifier) {
			t.Fatalf("currentMax=%q: expected ErrMalformedIdentifier, got %v", c, err)
		}
	}
}

func TestIdentifierSuffix(t *testing.T) {
	n, err := IdentifierSuffix("DF_120")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 120 {
		t.Fatalf("expected 120, got %d", n)
	}
}
