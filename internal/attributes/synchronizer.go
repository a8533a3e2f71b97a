package attributes

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Publisher sends attribute updates and procedure responses to the platform.
// *thingsboard.Client satisfies it.
type Publisher interface {
	PublishAttributes(values map[string]any) error
	RespondRPC(id string, body any) error
}

// OutputFunc applies the physical side effect of a changed attribute.
type OutputFunc func(ref Ref, v Value)

// Logger is the logging interface used by the synchronizer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Synchronizer.
type Options struct {
	// QueueSize bounds the inbound event queue. Default: 64.
	QueueSize int

	// Ready reports whether the session can accept publishes. A nil Ready
	// is treated as always ready.
	Ready func() bool

	// Output is called for every applied change. Optional.
	Output OutputFunc
}

type eventKind int

const (
	eventAttributes eventKind = iota
	eventProcedure
	eventToggle
)

type event struct {
	kind    eventKind
	payload []byte
	id      string
	ref     Ref
}

// Synchronizer is the single writer of the attribute Set.
//
// Submit methods are safe to call from any goroutine; they only queue.
// Drain must be called from one goroutine (the control loop).
type Synchronizer struct {
	schema    Schema
	set       *Set
	publisher Publisher
	ready     func() bool
	output    OutputFunc
	events    chan event
	logger    Logger
}

// NewSynchronizer creates a Synchronizer over a fresh Set for schema.
func NewSynchronizer(schema Schema, publisher Publisher, opts Options) *Synchronizer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Synchronizer{
		schema:    schema,
		set:       NewSet(schema),
		publisher: publisher,
		ready:     ready,
		output:    opts.Output,
		events:    make(chan event, opts.QueueSize),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the synchronizer.
func (s *Synchronizer) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Schema returns the attribute schema.
func (s *Synchronizer) Schema() Schema {
	return s.schema
}

// SubmitAttributes queues a shared attribute push or pull response.
func (s *Synchronizer) SubmitAttributes(payload []byte) error {
	return s.submit(event{kind: eventAttributes, payload: payload})
}

// SubmitProcedure queues a procedure call with request id and JSON params.
func (s *Synchronizer) SubmitProcedure(id string, params []byte) error {
	return s.submit(event{kind: eventProcedure, id: id, payload: params})
}

// SubmitToggle queues a local flip of one boolean attribute.
func (s *Synchronizer) SubmitToggle(ref Ref) error {
	return s.submit(event{kind: eventToggle, ref: ref})
}

func (s *Synchronizer) submit(ev event) error {
	select {
	case s.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain applies every queued event in arrival order and returns how many
// were processed.
func (s *Synchronizer) Drain() int {
	n := 0
	for {
		select {
		case ev := <-s.events:
			s.apply(ev)
			n++
		default:
			return n
		}
	}
}

// Get returns the current value at ref. Call it from the draining goroutine.
func (s *Synchronizer) Get(ref Ref) (Value, bool) {
	return s.set.Get(ref)
}

// Values returns every attribute keyed by its canonical key. Call it from
// the draining goroutine.
func (s *Synchronizer) Values() map[string]any {
	return s.set.Map()
}

func (s *Synchronizer) apply(ev event) {
	switch ev.kind {
	case eventAttributes:
		fields, err := decodeObject(ev.payload)
		if err != nil {
			s.logger.Warn("dropping attribute update", "error", err)
			return
		}
		if shared, ok := fields["shared"]; ok {
			if inner, err := decodeObject(shared); err == nil {
				fields = inner
			}
		}
		changed := s.applyFields(fields)
		s.republish(changed)

	case eventProcedure:
		// Malformed params still get an empty echo so the call resolves.
		fields, err := decodeObject(ev.payload)
		if err != nil {
			s.logger.Warn("procedure call without key/value params", "id", ev.id, "error", err)
		}
		changed := s.applyFields(fields)
		s.republish(changed)
		if s.publisher == nil {
			return
		}
		if err := s.publisher.RespondRPC(ev.id, changed); err != nil {
			s.logger.Warn("procedure response failed", "id", ev.id, "error", err)
		}

	case eventToggle:
		current, ok := s.set.Get(ev.ref)
		if !ok || current.Kind != KindBool {
			s.logger.Debug("ignoring toggle", "family", ev.ref.Family, "index", ev.ref.Index)
			return
		}
		next := BoolValue(!current.Bool)
		s.store(ev.ref, next)
		key, _ := s.schema.Key(ev.ref)
		s.logger.Info("local toggle", "key", key, "value", next.Bool)
		s.republish(map[string]any{key: next.Bool})
	}
}

// applyFields stores every recognised key and returns the applied values.
// Keys are visited in sorted order so side effects are deterministic.
func (s *Synchronizer) applyFields(fields map[string]json.RawMessage) map[string]any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changed := make(map[string]any)
	for _, key := range keys {
		ref, ok := s.schema.Parse(key)
		if !ok {
			s.logger.Debug("ignoring unknown attribute", "key", key)
			continue
		}
		v, err := ParseValue(s.schema.KindOf(ref), fields[key])
		if err != nil {
			s.logger.Warn("ignoring attribute", "key", key, "error", err)
			continue
		}
		s.store(ref, v)
		changed[key] = v.Any()
	}
	return changed
}

func (s *Synchronizer) store(ref Ref, v Value) {
	s.set.Set(ref, v)
	if s.output != nil {
		s.output(ref, v)
	}
}

func (s *Synchronizer) republish(values map[string]any) {
	if len(values) == 0 || s.publisher == nil {
		return
	}
	if !s.ready() {
		s.logger.Debug("session not ready, attribute report skipped", "keys", len(values))
		return
	}
	if err := s.publisher.PublishAttributes(values); err != nil {
		s.logger.Warn("attribute report failed", "error", err)
	}
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decoding object: not an object")
	}
	return fields, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
