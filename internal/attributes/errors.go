package attributes

import "errors"

var (
	// ErrInvalidValue is returned when a value does not parse as the
	// kind of its attribute.
	ErrInvalidValue = errors.New("attributes: invalid value")

	// ErrInvalidSchema is returned for an unusable family definition.
	ErrInvalidSchema = errors.New("attributes: invalid schema")

	// ErrQueueFull is returned when an event cannot be queued.
	ErrQueueFull = errors.New("attributes: event queue full")
)
