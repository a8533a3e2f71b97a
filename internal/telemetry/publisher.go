package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/network"
	"github.com/nerrad567/tb-edge-agent/internal/session"
)

// Platform publishes to the platform. *thingsboard.Client satisfies it.
type Platform interface {
	PublishTelemetry(values map[string]any) error
	PublishAttributes(values map[string]any) error
}

// SessionView exposes the session state. *session.Manager satisfies it.
type SessionView interface {
	Snapshot() session.Snapshot
}

// Link exposes the network. *network.Manager satisfies it.
type Link interface {
	Status() network.Status
	SSID() string
	SignalDBM(ctx context.Context) (int, error)
}

// Sink keeps a local copy of telemetry. *influxdb.Client satisfies it.
type Sink interface {
	WriteTelemetry(deviceID string, fields map[string]float64, ts time.Time)
}

// Logger is the logging interface used by the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DeviceInfo is the static part of the device attributes.
type DeviceInfo struct {
	ID        string
	MAC       string
	HWVersion string
	HWSerial  string
	FWVersion string
}

// Config configures a Publisher.
type Config struct {
	Device            DeviceInfo
	AttributeInterval time.Duration
	TelemetryInterval time.Duration
}

// Publisher sends device attributes and telemetry on schedule.
// Tick must be called from a single goroutine.
type Publisher struct {
	cfg      Config
	platform Platform
	session  SessionView
	link     Link
	sampler  Sampler
	sink     Sink
	logger   Logger

	generation    uint64
	lastAttribute time.Time
	lastTelemetry time.Time
}

// NewPublisher creates a Publisher. sink may be nil.
func NewPublisher(cfg Config, platform Platform, sess SessionView, link Link, sampler Sampler, sink Sink) *Publisher {
	if cfg.AttributeInterval <= 0 {
		cfg.AttributeInterval = 5 * time.Minute
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = 30 * time.Second
	}
	return &Publisher{
		cfg:      cfg,
		platform: platform,
		session:  sess,
		link:     link,
		sampler:  sampler,
		sink:     sink,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Tick publishes whatever is due at now.
func (p *Publisher) Tick(ctx context.Context, now time.Time) {
	snap := p.session.Snapshot()
	if !snap.Ready() {
		return
	}

	fresh := snap.Generation != p.generation
	p.generation = snap.Generation

	if fresh || now.Sub(p.lastAttribute) >= p.cfg.AttributeInterval {
		p.lastAttribute = now
		p.publishAttributes()
	}
	if fresh || now.Sub(p.lastTelemetry) >= p.cfg.TelemetryInterval {
		p.lastTelemetry = now
		p.publishTelemetry(ctx, now)
	}
}

func (p *Publisher) publishAttributes() {
	status := p.link.Status()
	attrs := map[string]any{
		"hw_version":  p.cfg.Device.HWVersion,
		"hw_serial":   p.cfg.Device.HWSerial,
		"fw_version":  p.cfg.Device.FWVersion,
		"ssid":        p.link.SSID(),
		"mac_address": p.cfg.Device.MAC,
		"ip_address":  status.IP,
	}
	if err := p.platform.PublishAttributes(attrs); err != nil {
		p.logger.Warn("device attribute publish failed", "error", err)
		return
	}
	p.logger.Debug("device attributes published")
}

func (p *Publisher) publishTelemetry(ctx context.Context, now time.Time) {
	reading, err := p.sampler.Sample(ctx)
	if err != nil {
		p.logger.Debug("sensor read incomplete", "error", err)
	}

	fields := map[string]float64{
		"temperature": reading.Temperature,
		"humidity":    reading.Humidity,
	}
	if rssi, err := p.link.SignalDBM(ctx); err == nil {
		fields["rssi"] = float64(rssi)
	}

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if rssi, ok := fields["rssi"]; ok {
		values["rssi"] = int(rssi)
	}

	if p.sink != nil {
		p.sink.WriteTelemetry(p.cfg.Device.ID, fields, now)
	}

	if err := p.platform.PublishTelemetry(values); err != nil {
		p.logger.Warn("telemetry publish failed", "error", err)
		return
	}
	p.logger.Debug("telemetry published",
		"temperature", reading.Temperature,
		"humidity", reading.Humidity,
	)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
