package config

import (
	"os"
	"strings"
)

// StrictEnumValidation turns enum coercion into hard validation errors:
// an unrecognized enum value rejects the row instead of falling back to the
// field's default value.
//
// Set via env:
// - STRICT_ENUM_VALIDATION=true
func StrictEnumValidation() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_ENUM_VALIDATION")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDispatcherEnabled controls whether the in-process outbox dispatcher
// loop runs. Disable when a dedicated dispatcher deployment owns the outbox.
//
// Set via env:
// - OUTBOX_DISPATCHER=true
func OutboxDispatcherEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DISPATCHER")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
