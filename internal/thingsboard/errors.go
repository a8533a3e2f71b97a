package thingsboard

import "errors"

var (
	// ErrRequestPending is returned when a request of the same kind is
	// already waiting for its response.
	ErrRequestPending = errors.New("thingsboard: request already pending")

	// ErrNoKeys is returned by RequestAttributes for an empty key list.
	ErrNoKeys = errors.New("thingsboard: no attribute keys requested")

	// ErrMalformedRPC is returned when an RPC request cannot be decoded.
	ErrMalformedRPC = errors.New("thingsboard: malformed rpc request")
)
