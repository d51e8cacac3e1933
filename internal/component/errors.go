package component

import "errors"

// Domain errors for the component package.
var (
	// ErrNotFound is returned when a device name is not registered.
	ErrNotFound = errors.New("component: not found")

	// ErrExists is returned when registering a name twice.
	ErrExists = errors.New("component: already registered")

	// ErrUnknownKind is returned for an unsupported device kind.
	ErrUnknownKind = errors.New("component: unknown kind")

	// ErrInvalidParam is returned when a parameter is unknown or has the wrong type.
	ErrInvalidParam = errors.New("component: invalid parameter")

	// ErrSnapshotKind is returned when restoring a snapshot of another kind.
	ErrSnapshotKind = errors.New("component: snapshot kind mismatch")

	// ErrCommitFailed is returned when a device rejects a commit.
	ErrCommitFailed = errors.New("component: commit failed")

	// ErrReadFailed is returned when a device reading cannot be taken.
	ErrReadFailed = errors.New("component: read failed")

	// ErrNoBus is returned when an MQTT device is built without a client.
	ErrNoBus = errors.New("component: mqtt client required")
)
