package config

import "errors"

// Sentinel errors for configuration failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConfig indicates the configuration is syntactically
	// or semantically invalid (bad YAML, unknown keys, out-of-range values).
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrNotFound indicates the profile file does not exist.
	ErrNotFound = errors.New("config: file not found")
)
