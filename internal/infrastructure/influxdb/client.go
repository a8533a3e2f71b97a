package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Samples arrive every few seconds at most; second precision keeps
	// the line protocol short on the wire.
	writePrecision = time.Second

	// retryBatches bounds how many failed batches are held in memory while
	// the server is unreachable. Older points are dropped first.
	retryBatches = 10

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is the optional local history sink. It records telemetry samples
// and session transitions next to the device, independent of the platform.
//
// A nil *Client is valid and ignores every write, so callers can hold one
// unconditionally when history is switched off.
type Client struct {
	influx influxdb2.Client
	writes api.WriteAPI

	mu      sync.RWMutex
	open    bool
	onError func(err error)
}

// historyOptions maps the config section onto client options.
func historyOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	//nolint:gosec // batch and flush are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush*1000)).
		SetPrecision(writePrecision).
		SetUseGZip(true).
		SetRetryBufferLimit(uint(batch * retryBatches))
}

// Connect opens the history sink and pings the server once.
//
// Returns:
//   - *Client: open sink
//   - error: ErrDisabled when influxdb.enabled is false, ErrConnectionFailed
//     when the server does not answer the ping
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, historyOptions(cfg))
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx: influx,
		writes: influx.WriteAPI(cfg.Org, cfg.Bucket),
		open:   true,
	}
	go c.forwardErrors(c.writes.Errors())

	return c, nil
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("ping: server not ready")
	}
	return nil
}

// forwardErrors hands asynchronous batch failures to the SetOnError callback.
// The channel closes when the client is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// IsConnected reports whether the sink is open. Always false for nil.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. No-op when closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writes.Flush()
	}
}

// Close flushes buffered points and releases the client.
func (c *Client) Close() error {
	if !c.IsConnected() {
		return nil
	}

	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	c.writes.Flush()
	c.influx.Close()
	return nil
}
