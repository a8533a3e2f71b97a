package mqtt

import "errors"

// Sentinel errors for the platform transport. The session manager only
// distinguishes "open failed" from "not open"; the rest are for logs.
var (
	// ErrNotConnected is returned by publish and subscribe calls made
	// while no session is open.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrAlreadyConnected is returned by Connect while a session is open.
	ErrAlreadyConnected = errors.New("mqtt: session already open")

	// ErrConnectionFailed wraps a refused or timed-out session open.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics and filters.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
