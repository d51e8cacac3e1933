package execution

import "errors"

// Domain errors for the execution package.
var (
	// ErrCancelled is returned by the cancellation watcher when the
	// experiment's cancelled flag is set.
	ErrCancelled = errors.New("execution: cancelled")

	// ErrDeviceCommit is returned when a device rejects parameters or a commit.
	ErrDeviceCommit = errors.New("execution: device commit failed")

	// ErrDeviceConnect is returned when a device connection cannot be acquired.
	ErrDeviceConnect = errors.New("execution: device connection failed")

	// ErrSensorRead is returned when a sensor reading fails in strict mode.
	ErrSensorRead = errors.New("execution: sensor read failed")

	// ErrUnexpected wraps panics recovered from run tasks.
	ErrUnexpected = errors.New("execution: unexpected failure")

	// ErrInvalidDryRun is returned when the dry-run factor is negative.
	ErrInvalidDryRun = errors.New("execution: invalid dry run")

	// ErrAlreadyExecuted is returned when an experiment is run twice.
	ErrAlreadyExecuted = errors.New("execution: experiment already executed")

	// ErrInvalidProtocol is returned for a missing or malformed protocol.
	ErrInvalidProtocol = errors.New("execution: invalid protocol")
)
