package runlog

import "errors"

var (
	// ErrNotFound is returned when no run has the requested ID.
	ErrNotFound = errors.New("runlog: run not found")

	// ErrNotFinished is returned when saving an experiment that is still executing.
	ErrNotFinished = errors.New("runlog: experiment has not finished")
)
