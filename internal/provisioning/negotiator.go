package provisioning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tb-edge-agent/internal/credentials"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
)

// DefaultIdentity is the well-known username of the anonymous session.
const DefaultIdentity = "provision"

// Transport sends the provisioning request. *thingsboard.Client satisfies it.
type Transport interface {
	Provision(payload []byte, onResponse func([]byte), timeout time.Duration, onTimeout func()) error
}

// Result is the outcome of one provisioning exchange. Err is nil on
// success and wraps ErrProvisionRejected, ErrUnsupportedCredentials,
// ErrMalformedResponse or ErrTimeout otherwise.
type Result struct {
	Credentials credentials.Credentials
	Err         error
}

// Config configures a Negotiator.
type Config struct {
	Key    string
	Secret string

	// DeviceID is sent as the device name.
	DeviceID string

	// Identity is the anonymous session username. Default: "provision".
	Identity string

	// Timeout bounds the wait for a response.
	Timeout time.Duration
}

// Negotiator runs provisioning exchanges one at a time.
//
// Begin sends the request; the outcome arrives later on Results, delivered
// by the transport's response or timeout callback. A Negotiator is used
// from a single goroutine.
type Negotiator struct {
	cfg      Config
	results  chan Result
	inFlight bool

	// attempt distinguishes callbacks of an aborted exchange from the current one.
	attempt uint64
}

// NewNegotiator creates a Negotiator.
func NewNegotiator(cfg Config) *Negotiator {
	if cfg.Identity == "" {
		cfg.Identity = DefaultIdentity
	}
	return &Negotiator{
		cfg:     cfg,
		results: make(chan Result, 1),
	}
}

// Identity returns the login for a new anonymous provisioning session. The
// client id is unique per call so a half-open previous session on the
// broker does not collide with the new one.
func (n *Negotiator) Identity() mqtt.Identity {
	return mqtt.Identity{
		ClientID: "provision-" + uuid.NewString(),
		Username: n.cfg.Identity,
	}
}

// Begin sends the provisioning request over t.
func (n *Negotiator) Begin(t Transport) error {
	if n.inFlight {
		return ErrInFlight
	}

	payload, err := NewRequest(n.cfg.Key, n.cfg.Secret, n.cfg.DeviceID).Marshal()
	if err != nil {
		return fmt.Errorf("encoding provisioning request: %w", err)
	}

	n.attempt++
	attempt := n.attempt

	onResponse := func(data []byte) {
		creds, err := ParseResponse(data)
		n.finish(attempt, Result{Credentials: creds, Err: err})
	}
	onTimeout := func() {
		n.finish(attempt, Result{Err: fmt.Errorf("%w after %v", ErrTimeout, n.cfg.Timeout)})
	}

	if err := t.Provision(payload, onResponse, n.cfg.Timeout, onTimeout); err != nil {
		return fmt.Errorf("sending provisioning request: %w", err)
	}
	n.inFlight = true
	return nil
}

func (n *Negotiator) finish(attempt uint64, r Result) {
	if attempt != n.attempt || !n.inFlight {
		return
	}
	n.inFlight = false
	select {
	case n.results <- r:
	default:
	}
}

// Results delivers the outcome of each exchange.
func (n *Negotiator) Results() <-chan Result {
	return n.results
}

// InFlight reports whether a request is waiting for its outcome.
func (n *Negotiator) InFlight() bool {
	return n.inFlight
}

// Abort forgets the outstanding exchange, if any, and any undelivered
// result. Callbacks of the aborted exchange are ignored.
func (n *Negotiator) Abort() {
	n.inFlight = false
	n.attempt++
	select {
	case <-n.results:
	default:
	}
}
