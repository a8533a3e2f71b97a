package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is a single MQTT session whose login identity is chosen per
// connect attempt.
//
// Unlike a long-lived bus client it never reconnects on its own: a caller
// connects, uses the session, and after it is lost (or closed) decides
// whether and how to connect again. This lets one client alternate between
// an anonymous provisioning login and the device's own credentials.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are dropped when the session ends and are not restored.
type Client struct {
	opts Options

	// client is the paho client of the current session (nil before the
	// first Connect).
	client   pahomqtt.Client
	identity Identity
	clientMu sync.RWMutex

	// subscriptions tracks topics subscribed in the current session.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// onConnectionLost is invoked when an open session drops unexpectedly.
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on the paho router goroutine in arrival order.
// They must not block; hand the message off and return.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New creates a disconnected client for the broker described by opts.
func New(opts Options) *Client {
	return &Client{
		opts:          opts,
		subscriptions: make(map[string]byte),
	}
}

// Connect makes one attempt to open a session with the given identity.
//
// It does not retry. A failed attempt leaves the client disconnected and
// ready for another Connect.
//
// Returns:
//   - error: ErrAlreadyConnected if a session is open, or ErrConnectionFailed
//     wrapping the broker/transport error
func (c *Client) Connect(id Identity) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}

	opts := buildClientOptions(c.opts, id)
	opts.SetConnectionLostHandler(func(lost pahomqtt.Client, err error) {
		c.handleConnectionLost(lost, err)
	})

	client := pahomqtt.NewClient(opts)

	c.clientMu.Lock()
	c.client = client
	c.identity = id
	c.clientMu.Unlock()

	c.clearSubscriptions()

	token := client.Connect()
	timeout := opts.ConnectTimeout + defaultPublishTimeout
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnectionLost is called by paho when an open session drops.
// Events from a previous session's paho client are ignored so a late close
// of the anonymous provisioning session cannot end the current one.
func (c *Client) handleConnectionLost(from pahomqtt.Client, err error) {
	c.clientMu.RLock()
	current := c.client
	c.clientMu.RUnlock()
	if from != current {
		return
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.clearSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Disconnect closes the current session, if any. It is a no-op when
// already disconnected.
func (c *Client) Disconnect() {
	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(defaultDisconnectQuiesce)
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.clearSubscriptions()
}

// Close disconnects the session. It exists so the client can be used
// with defer alongside other closable resources.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// HealthCheck reports whether a session is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	connected := c.connected
	c.connMu.RUnlock()
	if !connected {
		return false
	}

	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// Identity returns the identity of the current (or last) session.
func (c *Client) Identity() Identity {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.identity
}

// SetOnConnectionLost sets a callback invoked when an open session drops.
// It runs on a paho goroutine and must not block.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// session returns the paho client if a session is open.
func (c *Client) session() (pahomqtt.Client, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client, nil
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
