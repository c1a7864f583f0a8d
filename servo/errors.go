package servo

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrNotConfigured is returned when a motion request reaches a unit
	// that has not been configured yet.
	ErrNotConfigured = errors.New("servo not configured")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid servo configuration")
)
