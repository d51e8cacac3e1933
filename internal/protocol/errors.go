package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrParse is returned when a protocol file is not valid YAML of the expected shape.
	ErrParse = errors.New("protocol: parse error")

	// ErrNameRequired is returned when a protocol has no name.
	ErrNameRequired = errors.New("protocol: name is required")

	// ErrUnknownComponent is returned when a step addresses an unregistered device.
	ErrUnknownComponent = errors.New("protocol: unknown component")

	// ErrDuplicateComponent is returned when a device appears twice.
	ErrDuplicateComponent = errors.New("protocol: duplicate component")

	// ErrNegativeTime is returned for a step scheduled before the start.
	ErrNegativeTime = errors.New("protocol: negative time")

	// ErrOutOfOrder is returned when a device's steps go back in time.
	ErrOutOfOrder = errors.New("protocol: steps out of order")

	// ErrInvalidParams is returned when a device rejects a step's parameters.
	ErrInvalidParams = errors.New("protocol: invalid parameters")
)
