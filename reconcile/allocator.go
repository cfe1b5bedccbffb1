package reconcile

import (
	"fmt"
	"strconv"
	"strings"
)

// NextIdentifier computes the next external id for a prefix given the current
// maximum stored identifier. currentMax == "" means no prior record exists and
// the sequence starts at <prefix>_1.
//
// Parsing is purely on the substring after the first underscore so legacy
// records stored under a different prefix scheme still increment correctly.
func NextIdentifier(prefix string, currentMax string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrMalformedIdentifier)
	}
	if currentMax == "" {
		return prefix + "_1", nil
	}

	idx := strings.Index(currentMax, "_")
	if idx < 0 {
		return "", fmt.Errorf("%w: %q has no numeric suffix", ErrMalformedIdentifier, currentMax)
	}
	suffix := currentMax[idx+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: %q suffix is not numeric", ErrMalformedIdentifier, currentMax)
	}
	return fmt.Sprintf("%s_%d", prefix, n+1), nil
}

// IdentifierSuffix extracts the numeric suffix of an external id.
// Used by callers ordering identifiers numerically instead of lexically.
func IdentifierSuffix(externalId string) (int, error) {
	idx := strings.Index(externalId, "_")
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q has no numeric suffix", ErrMalformedIdentifier, externalId)
	}
	n, err := strconv.Atoi(externalId[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q suffix is not numeric", ErrMalformedIdentifier, externalId)
	}
	return n, nil
}
