package identity

import "errors"

var (
	// ErrNoInterface is returned when no usable network interface exists.
	ErrNoInterface = errors.New("identity: no interface with a hardware address")

	// ErrInvalidHardwareAddr is returned for a malformed MAC address.
	ErrInvalidHardwareAddr = errors.New("identity: invalid hardware address")
)
