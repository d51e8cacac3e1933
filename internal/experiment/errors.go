package experiment

import "errors"

var (
	// ErrAlreadyStarted is returned by Begin when the run clock is already set.
	ErrAlreadyStarted = errors.New("experiment: already started")

	// ErrCancelled is returned by Pause and Resume once the run was cancelled.
	ErrCancelled = errors.New("experiment: cancelled")

	// ErrNotRunning is returned by Pause when the experiment is not executing.
	ErrNotRunning = errors.New("experiment: not running")

	// ErrInvalidDryRun is returned for a negative dry-run factor.
	ErrInvalidDryRun = errors.New("experiment: dry run must be 0 (off) or a positive speed factor")
)
