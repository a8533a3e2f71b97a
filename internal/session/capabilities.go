package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/thingsboard"
)

// ProcedureHandler handles one server-side procedure call.
type ProcedureHandler func(id string, params json.RawMessage) error

// AttributeHandler handles a shared attribute push or pull response.
type AttributeHandler func(payload []byte) error

// Registry maps inbound platform messages onto handlers. It is built once
// at startup and read-only afterwards.
type Registry struct {
	procedures    map[string]ProcedureHandler
	attributeKeys []string
	attributes    AttributeHandler
	logger        Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		procedures: make(map[string]ProcedureHandler),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for dispatch failures.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// HandleProcedure registers h for method.
func (r *Registry) HandleProcedure(method string, h ProcedureHandler) {
	r.procedures[method] = h
}

// HandleAttributes registers h for the shared attributes keys.
func (r *Registry) HandleAttributes(keys []string, h AttributeHandler) {
	r.attributeKeys = append([]string(nil), keys...)
	r.attributes = h
}

// Methods returns the number of registered procedures.
func (r *Registry) Methods() int {
	return len(r.procedures)
}

// AttributeKeys returns the keys requested from the platform.
func (r *Registry) AttributeKeys() []string {
	return r.attributeKeys
}

// Dispatch routes msg by kind. It has the thingsboard.Dispatcher signature.
func (r *Registry) Dispatch(msg thingsboard.Message) {
	var err error
	switch msg.Kind {
	case thingsboard.KindProcedureCall:
		err = r.callProcedure(msg.RequestID, msg.Method, msg.Params)
	case thingsboard.KindAttributeUpdate, thingsboard.KindAttributeResponse:
		err = r.deliverAttributes(msg.Payload)
	default:
		r.logger.Debug("ignoring platform message", "kind", msg.Kind.String())
		return
	}
	if err != nil {
		r.logger.Warn("platform message not handled", "kind", msg.Kind.String(), "error", err)
	}
}

func (r *Registry) callProcedure(id, method string, params json.RawMessage) error {
	h, ok := r.procedures[method]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProcedure, method)
	}
	return h(id, params)
}

func (r *Registry) deliverAttributes(payload []byte) error {
	if r.attributes == nil {
		return nil
	}
	return r.attributes(payload)
}

// Capabilities is the part of the transport the Orchestrator drives.
type Capabilities interface {
	SubscribeProcedures() error
	SubscribeAttributes() error
	RequestAttributes(keys []string, onResponse func([]byte), timeout time.Duration, onTimeout func()) error
}

// Orchestrator registers the device's capabilities on a fresh session in
// three steps: procedure subscription, attribute push subscription and a
// one-time pull of the current attribute values.
//
// Each step is retried on later cycles until it succeeds. A failure stops
// the current cycle; steps that already succeeded are not repeated.
type Orchestrator struct {
	registry *Registry
	timeout  time.Duration
	logger   Logger

	proceduresSubscribed bool
	attributesSubscribed bool

	// pullRequested is set when the pull is sent and cleared only by its
	// timeout, which makes the next cycle re-issue it.
	pullRequested bool
}

// NewOrchestrator creates an Orchestrator for registry with the pull timeout.
func NewOrchestrator(registry *Registry, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		timeout:  timeout,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (o *Orchestrator) SetLogger(logger Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// Step runs the outstanding steps in order and reports whether all three
// are done.
func (o *Orchestrator) Step(c Capabilities) bool {
	if !o.proceduresSubscribed && o.registry.Methods() > 0 {
		if err := c.SubscribeProcedures(); err != nil {
			o.logger.Warn("procedure subscription failed", "error", err)
			return false
		}
		o.proceduresSubscribed = true
		o.logger.Debug("procedures subscribed", "count", o.registry.Methods())
	}

	keys := o.registry.AttributeKeys()
	if len(keys) == 0 {
		return true
	}

	if !o.attributesSubscribed {
		if err := c.SubscribeAttributes(); err != nil {
			o.logger.Warn("attribute subscription failed", "error", err)
			return false
		}
		o.attributesSubscribed = true
		o.logger.Debug("attributes subscribed", "keys", len(keys))
	}

	if !o.pullRequested {
		err := c.RequestAttributes(keys, o.onPullResponse, o.timeout, o.onPullTimeout)
		if err != nil {
			o.logger.Warn("attribute request failed", "error", err)
			return false
		}
		o.pullRequested = true
		o.logger.Debug("attribute values requested", "keys", len(keys))
	}

	return true
}

func (o *Orchestrator) onPullResponse(payload []byte) {
	if err := o.registry.deliverAttributes(payload); err != nil {
		o.logger.Warn("attribute response not handled", "error", err)
	}
}

func (o *Orchestrator) onPullTimeout() {
	o.logger.Warn("attribute request timed out", "timeout", o.timeout)
	o.pullRequested = false
}

// Done reports whether every step has succeeded.
func (o *Orchestrator) Done() bool {
	if o.registry.Methods() > 0 && !o.proceduresSubscribed {
		return false
	}
	if len(o.registry.AttributeKeys()) == 0 {
		return true
	}
	return o.attributesSubscribed && o.pullRequested
}

// Reset forgets all steps. Subscriptions do not survive a reconnect.
func (o *Orchestrator) Reset() {
	o.proceduresSubscribed = false
	o.attributesSubscribed = false
	o.pullRequested = false
}
