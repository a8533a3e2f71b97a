package thingsboard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds the inbound message queue.
const defaultQueueSize = 64

// provisionRequestID keys the single pending provisioning request.
const provisionRequestID = "provision"

// Session is the MQTT session the client runs on. *mqtt.Client satisfies it.
type Session interface {
	Connect(id mqtt.Identity) error
	Disconnect()
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging surface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Dispatcher receives unsolicited messages (RPC calls and attribute pushes)
// from Pump.
type Dispatcher func(Message)

// Options configures a Client.
type Options struct {
	// QoS for publishes and subscriptions.
	QoS byte

	// QueueSize bounds inbound messages waiting for Pump. Default: 64.
	QueueSize int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// pendingRequest is a request waiting for its response.
type pendingRequest struct {
	deadline   time.Time
	onResponse func(payload []byte)
	onTimeout  func()
}

// Client speaks the ThingsBoard device API over a Session.
//
// Thread Safety:
//   - Publish methods are safe for concurrent use.
//   - Connect, Disconnect, the Subscribe/Request methods and Pump are
//     meant to be called from the session task only.
type Client struct {
	session Session
	qos     byte
	now     func() time.Time
	logger  Logger

	inbound chan Message
	dropped uint64

	dispatchMu sync.RWMutex
	dispatch   Dispatcher

	pendingMu sync.Mutex
	pending   map[string]pendingRequest
	nextID    uint64
}

// New creates a Client over session.
func New(session Session, opts Options) *Client {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		session: session,
		qos:     opts.QoS,
		now:     now,
		logger:  noopLogger{},
		inbound: make(chan Message, size),
		pending: make(map[string]pendingRequest),
	}
}

// SetLogger sets the logger. A nil logger disables logging.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetDispatcher sets the receiver of unsolicited messages.
func (c *Client) SetDispatcher(d Dispatcher) {
	c.dispatchMu.Lock()
	c.dispatch = d
	c.dispatchMu.Unlock()
}

// =============================================================================
// Session lifecycle
// =============================================================================

// Connect makes one attempt to open the session with id. Messages left in
// the queue from a previous session are discarded.
func (c *Client) Connect(id mqtt.Identity) error {
	c.drainQueue()
	return c.session.Connect(id)
}

// Disconnect closes the session and cancels pending requests without
// running their timeout handlers.
func (c *Client) Disconnect() {
	c.session.Disconnect()
	c.CancelPending()
}

// Connected reports whether the session is open.
func (c *Client) Connected() bool {
	return c.session.IsConnected()
}

// CancelPending forgets every pending request. Late responses are dropped.
func (c *Client) CancelPending() {
	c.pendingMu.Lock()
	clear(c.pending)
	c.pendingMu.Unlock()
}

// PendingRequests returns the number of requests awaiting a response.
func (c *Client) PendingRequests() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// =============================================================================
// Subscriptions and requests
// =============================================================================

// SubscribeProcedures subscribes to server-side RPC requests.
func (c *Client) SubscribeProcedures() error {
	return c.session.Subscribe(mqtt.Topics{}.AllRPCRequests(), c.qos, c.enqueue)
}

// SubscribeAttributes subscribes to shared attribute pushes and to pull
// responses.
func (c *Client) SubscribeAttributes() error {
	if err := c.session.Subscribe(mqtt.TopicAttributes, c.qos, c.enqueue); err != nil {
		return err
	}
	return c.session.Subscribe(mqtt.Topics{}.AllAttributeResponses(), c.qos, c.enqueue)
}

// attributeRequest is the body of an attribute pull request.
type attributeRequest struct {
	SharedKeys string `json:"sharedKeys"`
}

// RequestAttributes asks for the current value of the shared keys.
//
// onResponse receives the raw response body. If no response arrives
// within timeout, the request is dropped and onTimeout runs from Pump.
// Only one pull may be pending at a time.
func (c *Client) RequestAttributes(keys []string, onResponse func([]byte), timeout time.Duration, onTimeout func()) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}

	c.pendingMu.Lock()
	for id := range c.pending {
		if id != provisionRequestID {
			c.pendingMu.Unlock()
			return ErrRequestPending
		}
	}
	c.nextID++
	id := c.nextID
	c.pendingMu.Unlock()

	payload, err := json.Marshal(attributeRequest{SharedKeys: strings.Join(keys, ",")})
	if err != nil {
		return fmt.Errorf("encoding attribute request: %w", err)
	}

	key := strconv.FormatUint(id, 10)
	c.track(key, timeout, onResponse, onTimeout)

	if err := c.session.Publish(mqtt.Topics{}.AttributeRequest(id), payload, c.qos, false); err != nil {
		c.untrack(key)
		return err
	}
	return nil
}

// Provision subscribes to the provisioning response topic and publishes
// the request. onResponse receives the raw response body; onTimeout runs
// from Pump if none arrives within timeout.
func (c *Client) Provision(payload []byte, onResponse func([]byte), timeout time.Duration, onTimeout func()) error {
	c.pendingMu.Lock()
	_, busy := c.pending[provisionRequestID]
	c.pendingMu.Unlock()
	if busy {
		return ErrRequestPending
	}

	if err := c.session.Subscribe(mqtt.TopicProvisionResponse, c.qos, c.enqueue); err != nil {
		return err
	}

	c.track(provisionRequestID, timeout, onResponse, onTimeout)

	if err := c.session.Publish(mqtt.TopicProvisionRequest, payload, c.qos, false); err != nil {
		c.untrack(provisionRequestID)
		return err
	}
	return nil
}

func (c *Client) track(id string, timeout time.Duration, onResponse func([]byte), onTimeout func()) {
	c.pendingMu.Lock()
	c.pending[id] = pendingRequest{
		deadline:   c.now().Add(timeout),
		onResponse: onResponse,
		onTimeout:  onTimeout,
	}
	c.pendingMu.Unlock()
}

func (c *Client) untrack(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// take removes and returns the pending request id.
func (c *Client) take(id string) (pendingRequest, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return req, ok
}

// =============================================================================
// Publishing
// =============================================================================

// PublishTelemetry publishes a telemetry object.
func (c *Client) PublishTelemetry(values map[string]any) error {
	return c.publishJSON(mqtt.TopicTelemetry, values)
}

// PublishAttributes publishes client attributes.
func (c *Client) PublishAttributes(values map[string]any) error {
	return c.publishJSON(mqtt.TopicAttributes, values)
}

// RespondRPC answers RPC request id with body.
func (c *Client) RespondRPC(id string, body any) error {
	return c.publishJSON(mqtt.Topics{}.RPCResponse(id), body)
}

func (c *Client) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	return c.session.Publish(topic, payload, c.qos, false)
}

// =============================================================================
// Inbound path
// =============================================================================

// enqueue is the MQTT handler for every subscription. It runs on the paho
// goroutine and never blocks: when the queue is full the message is dropped.
func (c *Client) enqueue(topic string, payload []byte) error {
	msg, err := classify(topic, payload)
	if err != nil {
		return err
	}
	select {
	case c.inbound <- msg:
		return nil
	default:
		c.pendingMu.Lock()
		c.dropped++
		c.pendingMu.Unlock()
		return fmt.Errorf("inbound queue full, dropped %s message", msg.Kind)
	}
}

// Dropped returns how many inbound messages were dropped on a full queue.
func (c *Client) Dropped() uint64 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.dropped
}

// Pump delivers queued messages and expires overdue requests. It returns
// the number of messages processed.
//
// Responses are matched to pending requests by id; a response that matches
// nothing (late or unsolicited) is dropped. Timeout handlers run after the
// queue is drained so a response that arrived in time always wins.
func (c *Client) Pump(now time.Time) int {
	processed := 0
	for drained := false; !drained; {
		select {
		case msg := <-c.inbound:
			c.deliver(msg)
			processed++
		default:
			drained = true
		}
	}

	c.expire(now)
	return processed
}

func (c *Client) deliver(msg Message) {
	switch msg.Kind {
	case KindAttributeResponse:
		c.resolve(msg.RequestID, msg)
	case KindProvisionResponse:
		c.resolve(provisionRequestID, msg)
	case KindProcedureCall, KindAttributeUpdate:
		c.dispatchMu.RLock()
		d := c.dispatch
		c.dispatchMu.RUnlock()
		if d == nil {
			c.logger.Warn("no dispatcher for message", "kind", msg.Kind.String())
			return
		}
		d(msg)
	default:
		c.logger.Debug("ignoring message on unhandled topic", "kind", msg.Kind.String())
	}
}

func (c *Client) resolve(id string, msg Message) {
	req, ok := c.take(id)
	if !ok {
		c.logger.Debug("dropping response with no pending request",
			"kind", msg.Kind.String(),
			"request_id", id,
		)
		return
	}
	if req.onResponse != nil {
		req.onResponse(msg.Payload)
	}
}

func (c *Client) expire(now time.Time) {
	var expired []pendingRequest

	c.pendingMu.Lock()
	for id, req := range c.pending {
		if !now.Before(req.deadline) {
			expired = append(expired, req)
			delete(c.pending, id)
		}
	}
	c.pendingMu.Unlock()

	for _, req := range expired {
		if req.onTimeout != nil {
			req.onTimeout()
		}
	}
}

// drainQueue discards queued messages.
func (c *Client) drainQueue() {
	for {
		select {
		case <-c.inbound:
		default:
			return
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
