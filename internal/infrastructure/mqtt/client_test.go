package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

// These tests do not need a broker. Broker round-trips live in
// integration_test.go behind the integration build tag.

func testOptions() Options {
	return Options{
		Host:           "127.0.0.1",
		Port:           19999, // nothing listens here
		QoS:            1,
		ConnectTimeout: 2 * time.Second,
	}
}

// =============================================================================
// Options
// =============================================================================

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.ThingsBoardConfig{Host: "tb.example.com", Port: 8883, TLS: true, QoS: 1})

	if opts.Host != "tb.example.com" || opts.Port != 8883 || !opts.TLS || opts.QoS != 1 {
		t.Errorf("OptionsFromConfig() = %+v", opts)
	}
	if got := opts.BrokerURL(); got != "ssl://tb.example.com:8883" {
		t.Errorf("BrokerURL() = %q, want ssl://tb.example.com:8883", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name         string
		id           Identity
		wantClientID string
		wantUser     string
		wantPass     string
	}{
		{
			name:         "access token",
			id:           Identity{Username: "abc123"},
			wantClientID: "abc123",
			wantUser:     "abc123",
		},
		{
			name:         "mqtt basic",
			id:           Identity{ClientID: "c1", Username: "u1", Password: "p1"},
			wantClientID: "c1",
			wantUser:     "u1",
			wantPass:     "p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := buildClientOptions(testOptions(), tt.id)

			if opts.ClientID != tt.wantClientID {
				t.Errorf("ClientID = %q, want %q", opts.ClientID, tt.wantClientID)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if opts.Password != tt.wantPass {
				t.Errorf("Password = %q, want %q", opts.Password, tt.wantPass)
			}
			if opts.AutoReconnect {
				t.Error("AutoReconnect = true, want false")
			}
			if opts.ConnectRetry {
				t.Error("ConnectRetry = true, want false")
			}
			if !opts.CleanSession {
				t.Error("CleanSession = false, want true")
			}
			if opts.ConnectTimeout != 2*time.Second {
				t.Errorf("ConnectTimeout = %v, want 2s", opts.ConnectTimeout)
			}
		})
	}
}

// =============================================================================
// Disconnected behaviour
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	client := New(testOptions())

	err := client.Connect(Identity{Username: "token"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after failed Connect")
	}
	if got := client.Identity().Username; got != "token" {
		t.Errorf("Identity().Username = %q, want token", got)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := New(testOptions())
	if client.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
}

func TestDisconnect_NoSession(t *testing.T) {
	client := New(testOptions())
	client.Disconnect()
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client := New(testOptions())

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := New(testOptions())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{name: "empty topic", topic: "", qos: 1, want: ErrInvalidTopic},
		{name: "invalid qos", topic: TopicTelemetry, qos: 3, want: ErrInvalidQoS},
		{name: "oversized payload", topic: TopicTelemetry, payload: make([]byte, maxPayloadSize+1), qos: 1, want: ErrPublishFailed},
		{name: "disconnected", topic: TopicTelemetry, payload: []byte(`{}`), qos: 1, want: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := client.PublishDefault(TopicTelemetry, []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishDefault() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := New(testOptions())
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe(TopicAttributes, 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe(TopicAttributes, 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe(TopicAttributes, 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if client.SubscriptionCount() != 0 || client.HasSubscription(TopicAttributes) {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestConnectionLostClearsState(t *testing.T) {
	client := New(testOptions())
	client.client = pahomqtt.NewClient(pahomqtt.NewClientOptions())
	client.subscriptions[TopicAttributes] = 1
	client.connected = true

	var gotErr error
	client.SetOnConnectionLost(func(err error) { gotErr = err })

	lost := errors.New("broker went away")
	client.handleConnectionLost(client.client, lost)

	if client.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if !errors.Is(gotErr, lost) {
		t.Errorf("callback error = %v, want %v", gotErr, lost)
	}
}

func TestConnectionLost_IgnoresPreviousSession(t *testing.T) {
	client := New(testOptions())
	previous := pahomqtt.NewClient(pahomqtt.NewClientOptions())
	client.client = pahomqtt.NewClient(pahomqtt.NewClientOptions())
	client.subscriptions[TopicAttributes] = 1
	client.connected = true

	called := false
	client.SetOnConnectionLost(func(error) { called = true })

	client.handleConnectionLost(previous, errors.New("provisioning session closed"))

	client.connMu.RLock()
	connected := client.connected
	client.connMu.RUnlock()
	if !connected {
		t.Error("connected cleared by a previous session's connection-lost event")
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
	if called {
		t.Error("connection-lost callback ran for a previous session")
	}

	client.handleConnectionLost(client.client, errors.New("current session closed"))
	if !called {
		t.Error("connection-lost callback did not run for the current session")
	}
}

// =============================================================================
// Handler wrapping
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func TestWrapHandler(t *testing.T) {
	client := New(testOptions())
	logger := &recordingLogger{}
	client.SetLogger(logger)

	var got string
	wrapped := client.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})
	wrapped(nil, fakeMessage{topic: TopicAttributes, payload: []byte(`{"a":1}`)})
	if got != TopicAttributes+` {"a":1}` {
		t.Errorf("handler received %q", got)
	}

	client.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, fakeMessage{topic: "t"})
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one entry", logger.warns)
	}

	client.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one panic entry", logger.errors)
	}
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"AttributeRequest", topics.AttributeRequest(3), "v1/devices/me/attributes/request/3"},
		{"RPCResponse", topics.RPCResponse("42"), "v1/devices/me/rpc/response/42"},
		{"AllAttributeResponses", topics.AllAttributeResponses(), "v1/devices/me/attributes/response/+"},
		{"AllRPCRequests", topics.AllRPCRequests(), "v1/devices/me/rpc/request/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		topic  string
		prefix string
		want   string
		wantOK bool
	}{
		{"v1/devices/me/rpc/request/42", TopicRPCRequestPrefix, "42", true},
		{"v1/devices/me/attributes/response/7", TopicAttributeResponsePrefix, "7", true},
		{"v1/devices/me/rpc/request/", TopicRPCRequestPrefix, "", false},
		{"v1/devices/me/rpc/request/1/extra", TopicRPCRequestPrefix, "", false},
		{"v1/devices/me/attributes", TopicRPCRequestPrefix, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := RequestID(tt.topic, tt.prefix)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RequestID(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
