package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/credentials"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/tb-edge-agent/internal/provisioning"
)

// Transport is the platform session. *thingsboard.Client satisfies it.
type Transport interface {
	Capabilities
	provisioning.Transport

	Connect(id mqtt.Identity) error
	Disconnect()
	Connected() bool
	CancelPending()
	Pump(now time.Time) int
}

// CredentialStore persists credentials. *credentials.Store satisfies it.
type CredentialStore interface {
	Load(ctx context.Context) (credentials.Credentials, error)
	Save(ctx context.Context, c credentials.Credentials) error
	Clear(ctx context.Context) error
}

// Link reports network availability. *network.Manager satisfies it.
type Link interface {
	IsUp() bool
}

// Logger is the logging interface used by the session package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the session policy.
type Config struct {
	// ConnectCooldown is the minimum time between connect attempts of any kind.
	ConnectCooldown time.Duration

	// MaxConnectAttempts is the number of consecutive credentialed connect
	// failures after which the credentials are discarded.
	MaxConnectAttempts int

	// StepInterval is the Run loop period.
	StepInterval time.Duration

	// AccessToken seeds the credentials when none are stored.
	AccessToken string
}

// Manager runs the session state machine.
//
// Step and Run must be called from one goroutine (the session task).
// Snapshot is safe to call from any goroutine.
type Manager struct {
	cfg          Config
	transport    Transport
	store        CredentialStore
	negotiator   *provisioning.Negotiator
	orchestrator *Orchestrator
	link         Link
	logger       Logger

	state       State
	creds       credentials.Credentials
	attempts    int
	lastAttempt time.Time
	attempted   bool
	generation  uint64

	snapshot atomic.Pointer[Snapshot]

	onReady      []func(Snapshot)
	onTransition []func(Snapshot)
}

// NewManager creates a Manager in the Idle state. negotiator may be nil
// when provisioning is not configured; link may be nil when the network is
// always available.
func NewManager(cfg Config, transport Transport, store CredentialStore, negotiator *provisioning.Negotiator, orchestrator *Orchestrator, link Link) *Manager {
	if cfg.MaxConnectAttempts < 1 {
		cfg.MaxConnectAttempts = 5
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = 500 * time.Millisecond
	}
	m := &Manager{
		cfg:          cfg,
		transport:    transport,
		store:        store,
		negotiator:   negotiator,
		orchestrator: orchestrator,
		link:         link,
		logger:       noopLogger{},
	}
	m.publish(time.Time{})
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// OnReady registers fn to run on every entry to Ready. Register before Run.
func (m *Manager) OnReady(fn func(Snapshot)) {
	m.onReady = append(m.onReady, fn)
}

// OnTransition registers fn to run after every state change. Register before Run.
func (m *Manager) OnTransition(fn func(Snapshot)) {
	m.onTransition = append(m.onTransition, fn)
}

// Snapshot returns the latest published view of the session.
func (m *Manager) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

// Ready reports whether the session is Ready.
func (m *Manager) Ready() bool {
	return m.Snapshot().Ready()
}

// Init loads stored credentials, seeding them from the configured access
// token when nothing is stored.
func (m *Manager) Init(ctx context.Context) error {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if creds.Empty() && m.cfg.AccessToken != "" {
		creds = credentials.Credentials{Username: m.cfg.AccessToken}
		if err := m.store.Save(ctx, creds); err != nil {
			return err
		}
		m.logger.Info("credentials seeded from access token")
	}
	if creds.Empty() && m.negotiator == nil {
		return ErrNoCredentialSource
	}
	m.creds = creds
	m.publish(time.Time{})
	return nil
}

// Run steps the state machine every StepInterval until ctx is cancelled.
// Inbound messages and request deadlines are processed before each step.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.StepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if m.transport.Connected() {
				m.transport.Disconnect()
			}
			return nil
		case now := <-ticker.C:
			m.transport.Pump(now)
			m.Step(ctx, now)
		}
	}
}

// Step advances the state machine once.
func (m *Manager) Step(ctx context.Context, now time.Time) {
	// The platform may close the provisioning session right after
	// answering, so a delivered result is collected before loss detection.
	if m.state == StateProvisionRequestInFlight {
		m.collectProvisioning(ctx, now)
	}
	m.detectLoss(now)

	if m.link != nil && !m.link.IsUp() {
		return
	}

	if m.state == StateIdle {
		m.transition(m.awaitingState(), now)
	}

	switch m.state {
	case StateAwaitingProvisionConnect:
		m.startProvisioning(now)

	case StateAwaitingCredentialedConnect:
		if m.connect(ctx, now) {
			m.subscribe(now)
		}

	case StateSubscribingCapabilities:
		m.subscribe(now)

	case StateReady:
		// Re-issues the attribute pull after a timeout.
		m.orchestrator.Step(m.transport)
	}
}

// detectLoss handles a session that closed underneath the state machine.
func (m *Manager) detectLoss(now time.Time) {
	if m.transport.Connected() {
		return
	}
	switch {
	case m.state.sessionOpen():
		m.logger.Warn("disconnected from platform")
		m.orchestrator.Reset()
		m.transport.CancelPending()
		m.transition(m.awaitingState(), now)

	case m.state == StateProvisionRequestInFlight:
		m.logger.Warn("provisioning session lost")
		m.negotiator.Abort()
		m.transport.CancelPending()
		m.transition(StateAwaitingProvisionConnect, now)
	}
}

func (m *Manager) startProvisioning(now time.Time) {
	if !m.creds.Empty() {
		m.transition(StateAwaitingCredentialedConnect, now)
		return
	}
	if m.negotiator == nil {
		if m.cfg.AccessToken == "" {
			return
		}
		m.creds = credentials.Credentials{Username: m.cfg.AccessToken}
		m.logger.Info("credentials reseeded from access token")
		m.transition(StateAwaitingCredentialedConnect, now)
		return
	}
	if !m.mayConnect(now) {
		return
	}

	m.recordAttempt(now)
	if err := m.transport.Connect(m.negotiator.Identity()); err != nil {
		m.logger.Warn("provisioning connect failed", "error", err)
		return
	}
	if err := m.negotiator.Begin(m.transport); err != nil {
		m.logger.Warn("provisioning request failed", "error", err)
		m.transport.Disconnect()
		return
	}
	m.logger.Info("provisioning request sent")
	m.transition(StateProvisionRequestInFlight, now)
}

func (m *Manager) collectProvisioning(ctx context.Context, now time.Time) {
	var result provisioning.Result
	select {
	case result = <-m.negotiator.Results():
	default:
		return
	}

	m.transport.Disconnect()

	if result.Err != nil {
		m.logger.Warn("provisioning failed", "error", result.Err)
		m.transition(StateAwaitingProvisionConnect, now)
		return
	}

	m.creds = result.Credentials
	if err := m.store.Save(ctx, m.creds); err != nil {
		// The credentials stay usable for this run.
		m.logger.Error("persisting credentials failed", "error", err)
	}
	m.logger.Info("device provisioned", "credentials", m.creds.String())
	m.transition(StateAwaitingCredentialedConnect, now)
}

// connect makes one credentialed connect attempt and reports success.
func (m *Manager) connect(ctx context.Context, now time.Time) bool {
	if m.creds.Empty() {
		m.transition(StateAwaitingProvisionConnect, now)
		return false
	}
	if !m.mayConnect(now) {
		return false
	}

	m.recordAttempt(now)
	id := mqtt.Identity{
		ClientID: m.creds.ClientID,
		Username: m.creds.Username,
		Password: m.creds.Secret,
	}
	if err := m.transport.Connect(id); err != nil {
		m.attempts++
		m.logger.Warn("platform connect failed",
			"attempt", m.attempts,
			"max_attempts", m.cfg.MaxConnectAttempts,
			"error", err,
		)
		if m.attempts >= m.cfg.MaxConnectAttempts {
			m.discardCredentials(ctx)
			m.transition(StateAwaitingProvisionConnect, now)
			return false
		}
		m.publish(m.snapshot.Load().Since)
		return false
	}

	m.attempts = 0
	m.logger.Info("connected to platform")
	m.transition(StateSubscribingCapabilities, now)
	return true
}

func (m *Manager) discardCredentials(ctx context.Context) {
	m.logger.Warn("connect attempts exhausted, discarding credentials", "attempts", m.attempts)
	m.creds = credentials.Credentials{}
	m.attempts = 0
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clearing stored credentials failed", "error", err)
	}
}

func (m *Manager) subscribe(now time.Time) {
	if !m.orchestrator.Step(m.transport) {
		return
	}
	m.generation++
	m.transition(StateReady, now)
	snap := m.Snapshot()
	for _, fn := range m.onReady {
		fn(snap)
	}
}

// mayConnect enforces the connect throttle.
func (m *Manager) mayConnect(now time.Time) bool {
	return !m.attempted || now.Sub(m.lastAttempt) >= m.cfg.ConnectCooldown
}

func (m *Manager) recordAttempt(now time.Time) {
	m.attempted = true
	m.lastAttempt = now
}

func (m *Manager) awaitingState() State {
	if m.creds.Empty() {
		return StateAwaitingProvisionConnect
	}
	return StateAwaitingCredentialedConnect
}

func (m *Manager) transition(to State, now time.Time) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.publish(now)
	m.logger.Debug("session state changed", "from", from.String(), "to", to.String())

	snap := m.Snapshot()
	for _, fn := range m.onTransition {
		fn(snap)
	}
}

func (m *Manager) publish(since time.Time) {
	m.snapshot.Store(&Snapshot{
		State:           m.state,
		Generation:      m.generation,
		ConnectAttempts: m.attempts,
		Credentialed:    !m.creds.Empty(),
		Since:           since,
	})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
