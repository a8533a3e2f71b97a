package session

import "time"

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingProvisionConnect
	StateProvisionRequestInFlight
	StateAwaitingCredentialedConnect
	StateSubscribingCapabilities
	StateReady
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingProvisionConnect:
		return "awaiting_provision_connect"
	case StateProvisionRequestInFlight:
		return "provision_request_in_flight"
	case StateAwaitingCredentialedConnect:
		return "awaiting_credentialed_connect"
	case StateSubscribingCapabilities:
		return "subscribing_capabilities"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// sessionOpen reports whether the state implies an open credentialed session.
func (s State) sessionOpen() bool {
	return s == StateSubscribingCapabilities || s == StateReady
}

// Snapshot is a read-only view of the session for other tasks.
type Snapshot struct {
	State State

	// Generation increments on every entry to Ready.
	Generation uint64

	// ConnectAttempts counts consecutive failed credentialed connects.
	ConnectAttempts int

	// Credentialed reports whether credentials are held.
	Credentialed bool

	// Since is when State was entered.
	Since time.Time
}

// Ready reports whether the session accepts publishes.
func (s Snapshot) Ready() bool {
	return s.State == StateReady
}
