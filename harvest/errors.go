package harvest

import "errors"

// Custom errors for harvest operations
var (
	// ErrSessionUnavailable means the browser session could not navigate
	// or stopped answering.
	ErrSessionUnavailable = errors.New("browser session unavailable")
	// ErrWindowUnresolvable means a window bound label could not be parsed
	// or the bounds are reversed.
	ErrWindowUnresolvable = errors.New("date window could not be resolved")
	// ErrScrollStalled means a scroll command failed. It ends the run with
	// no_new_content rather than failing it.
	ErrScrollStalled = errors.New("scroll did not complete")
	// ErrInvalidTarget means a first-N harvest was asked for fewer than one
	// record.
	ErrInvalidTarget = errors.New("target count must be positive")
)
