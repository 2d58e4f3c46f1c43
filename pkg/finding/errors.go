package finding

import "errors"

// Sentinel errors for parsing finding enums.
// Callers should use errors.Is() to check for these.
var (
	// ErrUnknownCategory indicates a category name outside the fixed set.
	ErrUnknownCategory = errors.New("finding: unknown category")

	// ErrUnknownConfidence indicates a confidence name outside the fixed set.
	ErrUnknownConfidence = errors.New("finding: unknown confidence")

	// ErrUnknownSeverity indicates a severity name outside the fixed set.
	ErrUnknownSeverity = errors.New("finding: unknown severity")
)
