package component

import (
	"context"
	"iter"
	"time"
)

// Component is a device a protocol can drive.
type Component interface {
	// Name is the identifier protocols use for this device.
	Name() string

	// ApplyParams updates in-memory state. It never touches hardware.
	ApplyParams(p Params) error

	// Commit pushes the in-memory state to the device.
	Commit(ctx context.Context) error

	// BaseState returns the parameters of the safe resting configuration.
	BaseState() Params

	// Snapshot captures the mutable state.
	Snapshot() Snapshot

	// Restore puts back a state captured by Snapshot. Hardware is not
	// touched until the next Commit.
	Restore(s Snapshot) error
}

// Validator is implemented by components that can check parameters
// without applying them. Protocol compilation uses it.
type Validator interface {
	ValidateParams(p Params) error
}

// Reading is one raw sample from an Observable device.
type Reading struct {
	Value     float64
	Timestamp time.Time
}

// Observable is a component that produces readings.
type Observable interface {
	Component

	// ReadStream yields readings until ctx ends. A yielded error does not
	// end the stream; the consumer decides whether to keep reading.
	ReadStream(ctx context.Context, dryRun bool) iter.Seq2[Reading, error]
}

// Connector is a component holding a connection for the length of a run.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}
