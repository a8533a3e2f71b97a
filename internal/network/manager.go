package network

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultAssociateTimeout bounds one association attempt.
const defaultAssociateTimeout = 30 * time.Second

// Config configures a Manager.
type Config struct {
	SSID       string
	Passphrase string

	// Cooldown is the minimum time between association attempts. Default: 10s.
	Cooldown time.Duration

	// CheckInterval is how often Run calls EnsureAssociated. Default: 1s.
	CheckInterval time.Duration

	// AssociateTimeout bounds one attempt. Default: 30s.
	AssociateTimeout time.Duration
}

// Status is a view of the link state.
type Status struct {
	Associated bool
	Up         bool
	IP         string

	// Attempts counts disassociations since the last address acquisition.
	// It is kept for diagnostics only.
	Attempts int
}

// Logger is the logging interface used by the network manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Manager tracks link state and retries association at a fixed cadence.
type Manager struct {
	cfg    Config
	driver Driver
	logger Logger

	mu          sync.Mutex
	associated  bool
	up          bool
	ip          string
	attempts    int
	lastAttempt time.Time
	attempted   bool
	associating bool
	listeners   []func(Status)
}

// NewManager creates a Manager over driver.
func NewManager(cfg Config, driver Driver) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.AssociateTimeout <= 0 {
		cfg.AssociateTimeout = defaultAssociateTimeout
	}
	return &Manager{
		cfg:    cfg,
		driver: driver,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// OnChange registers fn to receive the link status after every change.
// Register before Run.
func (m *Manager) OnChange(fn func(Status)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Run watches the driver and keeps the link associated until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.driver.Watch(ctx, m.HandleEvent)
	})

	g.Go(func() error {
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		m.EnsureAssociated(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				m.EnsureAssociated(ctx, now)
			}
		}
	})

	return g.Wait()
}

// EnsureAssociated starts an association attempt in the background unless
// the link is associated, an attempt is running, or the previous attempt
// started less than the cool-down ago. It reports whether an attempt was
// started.
func (m *Manager) EnsureAssociated(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	if m.associated || m.associating {
		m.mu.Unlock()
		return false
	}
	if m.attempted && now.Sub(m.lastAttempt) < m.cfg.Cooldown {
		m.mu.Unlock()
		return false
	}
	m.attempted = true
	m.lastAttempt = now
	m.associating = true
	m.mu.Unlock()

	m.logger.Info("associating with network", "ssid", m.cfg.SSID)

	go func() {
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AssociateTimeout)
		defer cancel()

		err := m.driver.Associate(attemptCtx, m.cfg.SSID, m.cfg.Passphrase)

		m.mu.Lock()
		m.associating = false
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("network association failed", "ssid", m.cfg.SSID, "error", err)
		}
	}()
	return true
}

// HandleEvent applies a link event.
func (m *Manager) HandleEvent(ev Event) {
	m.mu.Lock()
	before := m.statusLocked()

	switch ev.Kind {
	case EventAssociated:
		m.associated = true
	case EventAddressAcquired:
		m.associated = true
		m.up = true
		m.ip = ev.IP
		m.attempts = 0
	case EventDisassociated:
		if m.associated || m.up {
			m.attempts++
		}
		m.associated = false
		m.up = false
		m.ip = ""
	}

	after := m.statusLocked()
	listeners := m.listeners
	m.mu.Unlock()

	if after == before {
		return
	}

	switch ev.Kind {
	case EventAddressAcquired:
		m.logger.Info("network up", "ip", after.IP)
	case EventDisassociated:
		m.logger.Warn("network down", "disconnects", after.Attempts)
	default:
		m.logger.Debug("network event", "event", ev.Kind.String())
	}

	for _, fn := range listeners {
		fn(after)
	}
}

// IsUp reports whether an address has been acquired and the link has not
// been lost since.
func (m *Manager) IsUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up
}

// Status returns the current link status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// SignalDBM returns the driver's signal strength.
func (m *Manager) SignalDBM(ctx context.Context) (int, error) {
	return m.driver.SignalDBM(ctx)
}

// SSID returns the configured network name.
func (m *Manager) SSID() string {
	return m.cfg.SSID
}

func (m *Manager) statusLocked() Status {
	return Status{
		Associated: m.associated,
		Up:         m.up,
		IP:         m.ip,
		Attempts:   m.attempts,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
