package network

import "errors"

var (
	// ErrAssociationFailed is returned when the driver could not join the network.
	ErrAssociationFailed = errors.New("network: association failed")

	// ErrNoSignal is returned when the link has no signal strength to report.
	ErrNoSignal = errors.New("network: signal strength unavailable")
)
