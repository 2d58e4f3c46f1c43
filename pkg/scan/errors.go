package scan

import "errors"

// Sentinel errors for session failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTargetUnreachable aborts a scan whose reachability check failed
	// with a network error. It is the only error that aborts a Run.
	ErrTargetUnreachable = errors.New("scan: target unreachable")

	// ErrUnknownCapability is returned by Invoke for a name missing from
	// the capability table.
	ErrUnknownCapability = errors.New("scan: unknown capability")

	// ErrInvalidParams is returned when a capability lacks the inputs it
	// needs or the target does not parse.
	ErrInvalidParams = errors.New("scan: invalid params")
)
