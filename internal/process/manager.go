package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxLineLength bounds a single output line.
const maxLineLength = 64 * 1024

// ErrAlreadyRunning is returned by Start on a running Manager.
var ErrAlreadyRunning = errors.New("process: already running")

// Config holds configuration for a supervised command.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable name or path.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	Env []string

	// RestartOnFailure restarts the command when it exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the time to wait before restarting. Default: 5s.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL. Default: 5s.
	GracefulTimeout time.Duration

	// OnLine receives every stdout line, without the trailing newline.
	OnLine func(line string)

	// OnExit is called when the command exits, with nil after Stop.
	OnExit func(err error)
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one command.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lines         uint64
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager creates a process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches the command and supervises it until Stop or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	exited, err := m.startProcess(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		close(m.done)
		return err
	}

	go m.monitor(ctx, exited)
	return nil
}

// startProcess starts the command and returns a channel that receives its
// exit error once stdout is drained.
func (m *Manager) startProcess(ctx context.Context) (<-chan error, error) {
	m.logger.Debug("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from agent configuration

	// New process group so Stop can signal every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.readLines(stdout)
	}()
	go func() {
		defer wg.Done()
		m.logStderr(stderr)
	}()

	exited := make(chan error, 1)
	go func() {
		// Wait must follow the pipe readers.
		wg.Wait()
		exited <- cmd.Wait()
	}()
	return exited, nil
}

func (m *Manager) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		m.mu.Lock()
		m.lines++
		m.mu.Unlock()
		if m.config.OnLine != nil {
			m.config.OnLine(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Debug("output stream closed", "name", m.config.Name, "error", err)
	}
}

func (m *Manager) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("process stderr", "name", m.config.Name, "output", scanner.Text())
	}
}

// monitor waits for the command to exit and restarts it if configured.
func (m *Manager) monitor(ctx context.Context, exited <-chan error) {
	defer close(m.done)

	for {
		err := <-exited

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			m.logger.Debug("process stopped", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			if m.config.OnExit != nil {
				m.config.OnExit(nil)
			}
			return
		}

		if err == nil {
			err = errors.New("exited without error")
		}
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		m.setStatus(StatusFailed, err)
		if m.config.OnExit != nil {
			m.config.OnExit(err)
		}

		if !m.config.RestartOnFailure {
			return
		}

		for {
			m.mu.Lock()
			m.restartCount++
			attempt := m.restartCount
			m.mu.Unlock()

			if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
				m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
				return
			}

			m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", m.config.RestartDelay)
			select {
			case <-ctx.Done():
				m.setStatus(StatusStopped, nil)
				return
			case <-time.After(m.config.RestartDelay):
			}

			m.mu.RLock()
			stopRequested = m.stopRequested
			m.mu.RUnlock()
			if stopRequested {
				m.setStatus(StatusStopped, nil)
				return
			}

			next, startErr := m.startProcess(ctx)
			if startErr != nil {
				m.logger.Error("failed to restart process", "name", m.config.Name, "error", startErr)
				m.setStatus(StatusFailed, startErr)
				continue
			}
			exited = next
			break
		}
	}
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
	m.mu.Unlock()
}

// Stop terminates the command's process group and waits for supervision
// to end. SIGKILL follows if SIGTERM is ignored for GracefulTimeout.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current status of the supervised command.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the command is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the command to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Stats returns statistics about the supervised command.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	Lines        uint64        `json:"lines"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the command.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
		Lines:        m.lines,
	}
	if m.cmd != nil && m.cmd.Process != nil && m.status == StatusRunning {
		stats.PID = m.cmd.Process.Pid
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
