package thingsboard

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
)

// MockSession implements Session for testing.
type MockSession struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	identities []mqtt.Identity
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic   string
	Payload []byte
}

func NewMockSession() *MockSession {
	return &MockSession{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockSession) Connect(id mqtt.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities = append(m.identities, id)
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockSession) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	clear(m.handlers)
}

func (m *MockSession) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockSession) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload})
	return nil
}

func (m *MockSession) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockSession) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// SimulateMessage delivers a message to the handler whose subscription
// matches topic ("+" as the last level matches any id).
func (m *MockSession) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.handlers {
		if pattern == topic || (strings.HasSuffix(pattern, "+") && strings.HasPrefix(topic, strings.TrimSuffix(pattern, "+"))) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(topic, payload) //nolint:errcheck // Errors are asserted via Dropped()
	return true
}

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClient(t *testing.T) (*Client, *MockSession, *fakeClock) {
	t.Helper()
	session := NewMockSession()
	clock := &fakeClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	client := New(session, Options{QoS: 1, QueueSize: 4, Now: clock.Now})
	if err := client.Connect(mqtt.Identity{Username: "token"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client, session, clock
}

// =============================================================================
// Classification
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		wantKind Kind
		wantID   string
		wantErr  bool
	}{
		{name: "attribute push", topic: "v1/devices/me/attributes", payload: `{"switch_state_1":true}`, wantKind: KindAttributeUpdate},
		{name: "attribute response", topic: "v1/devices/me/attributes/response/3", payload: `{"shared":{}}`, wantKind: KindAttributeResponse, wantID: "3"},
		{name: "rpc", topic: "v1/devices/me/rpc/request/42", payload: `{"method":"switch_set","params":{"switch_state_2":true}}`, wantKind: KindProcedureCall, wantID: "42"},
		{name: "rpc without method", topic: "v1/devices/me/rpc/request/42", payload: `{"params":{}}`, wantErr: true},
		{name: "rpc not json", topic: "v1/devices/me/rpc/request/42", payload: `nope`, wantErr: true},
		{name: "provision response", topic: "/provision/response", payload: `{"status":"SUCCESS"}`, wantKind: KindProvisionResponse},
		{name: "unknown", topic: "v1/devices/me/other", payload: `{}`, wantKind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := classify(tt.topic, []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRPC) {
					t.Fatalf("classify() error = %v, want ErrMalformedRPC", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify() error = %v", err)
			}
			if msg.Kind != tt.wantKind || msg.RequestID != tt.wantID {
				t.Errorf("classify() = {%v %q}, want {%v %q}", msg.Kind, msg.RequestID, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestClassify_RPCFields(t *testing.T) {
	msg, err := classify("v1/devices/me/rpc/request/7", []byte(`{"method":"switch_set","params":{"switch_state_2":true}}`))
	if err != nil {
		t.Fatalf("classify() error = %v", err)
	}
	if msg.Method != "switch_set" {
		t.Errorf("Method = %q, want switch_set", msg.Method)
	}
	if string(msg.Params) != `{"switch_state_2":true}` {
		t.Errorf("Params = %s", msg.Params)
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestPump_DispatchesUnsolicited(t *testing.T) {
	client, session, clock := newTestClient(t)

	var got []Message
	client.SetDispatcher(func(m Message) { got = append(got, m) })

	if err := client.SubscribeProcedures(); err != nil {
		t.Fatalf("SubscribeProcedures() error = %v", err)
	}
	if err := client.SubscribeAttributes(); err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}

	session.SimulateMessage("v1/devices/me/rpc/request/1", []byte(`{"method":"switch_set","params":{}}`))
	session.SimulateMessage("v1/devices/me/attributes", []byte(`{"switch_state_0":true}`))

	// Nothing runs until Pump.
	if len(got) != 0 {
		t.Fatalf("dispatched %d messages before Pump", len(got))
	}

	if n := client.Pump(clock.Now()); n != 2 {
		t.Errorf("Pump() = %d, want 2", n)
	}
	if len(got) != 2 || got[0].Kind != KindProcedureCall || got[1].Kind != KindAttributeUpdate {
		t.Errorf("dispatched = %+v, want rpc then attribute update in order", got)
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	client, session, clock := newTestClient(t)
	client.SetDispatcher(func(Message) {})

	if err := client.SubscribeAttributes(); err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}
	for i := 0; i < 6; i++ {
		session.SimulateMessage("v1/devices/me/attributes", []byte(`{}`))
	}

	if client.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2 (queue size 4)", client.Dropped())
	}
	if n := client.Pump(clock.Now()); n != 4 {
		t.Errorf("Pump() = %d, want 4", n)
	}
}

// =============================================================================
// Attribute pull
// =============================================================================

func TestRequestAttributes_Response(t *testing.T) {
	client, session, clock := newTestClient(t)
	if err := client.SubscribeAttributes(); err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}

	var response []byte
	timedOut := false
	err := client.RequestAttributes([]string{"switch_state_0", "switch_state_1"},
		func(p []byte) { response = p },
		5*time.Second,
		func() { timedOut = true },
	)
	if err != nil {
		t.Fatalf("RequestAttributes() error = %v", err)
	}

	published := session.GetPublished()
	if len(published) != 1 || published[0].Topic != "v1/devices/me/attributes/request/1" {
		t.Fatalf("published = %+v", published)
	}
	var body map[string]string
	if err := json.Unmarshal(published[0].Payload, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if body["sharedKeys"] != "switch_state_0,switch_state_1" {
		t.Errorf("sharedKeys = %q", body["sharedKeys"])
	}

	// A second pull while one is pending is refused.
	if err := client.RequestAttributes([]string{"x"}, nil, time.Second, nil); !errors.Is(err, ErrRequestPending) {
		t.Errorf("second RequestAttributes() error = %v, want ErrRequestPending", err)
	}

	session.SimulateMessage("v1/devices/me/attributes/response/1", []byte(`{"shared":{"switch_state_0":true}}`))
	clock.Advance(4 * time.Second)
	client.Pump(clock.Now())

	if string(response) != `{"shared":{"switch_state_0":true}}` {
		t.Errorf("response = %s", response)
	}
	if timedOut {
		t.Error("timeout handler ran after a response")
	}
	if client.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want 0", client.PendingRequests())
	}
}

func TestRequestAttributes_Timeout(t *testing.T) {
	client, session, clock := newTestClient(t)
	if err := client.SubscribeAttributes(); err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}

	responses, timeouts := 0, 0
	if err := client.RequestAttributes([]string{"k"},
		func([]byte) { responses++ }, 5*time.Second, func() { timeouts++ },
	); err != nil {
		t.Fatalf("RequestAttributes() error = %v", err)
	}

	clock.Advance(4999 * time.Millisecond)
	client.Pump(clock.Now())
	if timeouts != 0 {
		t.Fatal("timed out before the deadline")
	}

	clock.Advance(time.Millisecond)
	client.Pump(clock.Now())
	if timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", timeouts)
	}

	// The late response is dropped, never applied.
	session.SimulateMessage("v1/devices/me/attributes/response/1", []byte(`{"shared":{}}`))
	client.Pump(clock.Now())
	if responses != 0 {
		t.Errorf("late response applied %d times", responses)
	}

	// A fresh pull is allowed again.
	if err := client.RequestAttributes([]string{"k"}, nil, time.Second, nil); err != nil {
		t.Errorf("RequestAttributes() after timeout error = %v", err)
	}
}

func TestRequestAttributes_Errors(t *testing.T) {
	client, session, _ := newTestClient(t)

	if err := client.RequestAttributes(nil, nil, time.Second, nil); !errors.Is(err, ErrNoKeys) {
		t.Errorf("RequestAttributes(nil) error = %v, want ErrNoKeys", err)
	}

	session.publishErr = mqtt.ErrNotConnected
	if err := client.RequestAttributes([]string{"k"}, nil, time.Second, nil); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("RequestAttributes() error = %v, want ErrNotConnected", err)
	}
	if client.PendingRequests() != 0 {
		t.Error("failed request left pending")
	}
}

// =============================================================================
// Provisioning
// =============================================================================

func TestProvision(t *testing.T) {
	client, session, clock := newTestClient(t)

	var response []byte
	if err := client.Provision([]byte(`{"deviceName":"d"}`),
		func(p []byte) { response = p }, 5*time.Second, nil,
	); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if err := client.Provision([]byte(`{}`), nil, time.Second, nil); !errors.Is(err, ErrRequestPending) {
		t.Errorf("second Provision() error = %v, want ErrRequestPending", err)
	}

	published := session.GetPublished()
	if len(published) != 1 || published[0].Topic != mqtt.TopicProvisionRequest {
		t.Fatalf("published = %+v", published)
	}

	if !session.SimulateMessage(mqtt.TopicProvisionResponse, []byte(`{"status":"SUCCESS"}`)) {
		t.Fatal("no subscription on the provisioning response topic")
	}
	client.Pump(clock.Now())

	if string(response) != `{"status":"SUCCESS"}` {
		t.Errorf("response = %s", response)
	}
}

func TestDisconnect_CancelsPending(t *testing.T) {
	client, _, clock := newTestClient(t)

	timeouts := 0
	if err := client.Provision([]byte(`{}`), nil, time.Second, func() { timeouts++ }); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	client.Disconnect()
	if client.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	clock.Advance(time.Minute)
	client.Pump(clock.Now())

	if timeouts != 0 {
		t.Errorf("timeout handler ran %d times after Disconnect, want 0", timeouts)
	}
	if client.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want 0", client.PendingRequests())
	}
}

// =============================================================================
// Publishing
// =============================================================================

func TestPublishHelpers(t *testing.T) {
	client, session, _ := newTestClient(t)

	if err := client.PublishTelemetry(map[string]any{"temperature": 24.5}); err != nil {
		t.Fatalf("PublishTelemetry() error = %v", err)
	}
	if err := client.PublishAttributes(map[string]any{"switch_state_2": true}); err != nil {
		t.Fatalf("PublishAttributes() error = %v", err)
	}
	if err := client.RespondRPC("42", map[string]any{"switch_state_2": true}); err != nil {
		t.Fatalf("RespondRPC() error = %v", err)
	}

	want := []mockPublish{
		{Topic: "v1/devices/me/telemetry", Payload: []byte(`{"temperature":24.5}`)},
		{Topic: "v1/devices/me/attributes", Payload: []byte(`{"switch_state_2":true}`)},
		{Topic: "v1/devices/me/rpc/response/42", Payload: []byte(`{"switch_state_2":true}`)},
	}
	got := session.GetPublished()
	if len(got) != len(want) {
		t.Fatalf("published %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Topic != want[i].Topic || string(got[i].Payload) != string(want[i].Payload) {
			t.Errorf("published[%d] = %s %s, want %s %s", i, got[i].Topic, got[i].Payload, want[i].Topic, want[i].Payload)
		}
	}
}

func TestConnect_DiscardsStaleQueue(t *testing.T) {
	client, session, clock := newTestClient(t)
	dispatched := 0
	client.SetDispatcher(func(Message) { dispatched++ })

	if err := client.SubscribeAttributes(); err != nil {
		t.Fatalf("SubscribeAttributes() error = %v", err)
	}
	session.SimulateMessage("v1/devices/me/attributes", []byte(`{}`))

	client.Disconnect()
	if err := client.Connect(mqtt.Identity{Username: "token"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Pump(clock.Now())

	if dispatched != 0 {
		t.Errorf("dispatched %d messages from the previous session", dispatched)
	}
}
