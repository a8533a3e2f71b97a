package gpio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
)

// ErrUnknownIndex is returned by Apply when no output is bound to the index.
var ErrUnknownIndex = errors.New("gpio: no output for index")

// Pin binds one GPIO line to a switch index.
type Pin struct {
	Number    int
	Index     int
	ActiveLow bool
}

// Config configures a Controller.
type Config struct {
	// Base is the sysfs GPIO root. Default: /sys/class/gpio
	Base         string
	PollInterval time.Duration
	Inputs       []Pin
	Outputs      []Pin
}

// ConfigFrom converts the gpio section of the agent configuration.
func ConfigFrom(cfg config.GPIOConfig, poll time.Duration) Config {
	c := Config{Base: cfg.Base, PollInterval: poll}
	for _, p := range cfg.Inputs {
		c.Inputs = append(c.Inputs, Pin{Number: p.Pin, Index: p.Index, ActiveLow: p.ActiveLow})
	}
	for _, p := range cfg.Outputs {
		c.Outputs = append(c.Outputs, Pin{Number: p.Pin, Index: p.Index, ActiveLow: p.ActiveLow})
	}
	return c
}

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Controller drives the configured pins.
type Controller struct {
	cfg    Config
	logger Logger
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.Base == "" {
		cfg.Base = "/sys/class/gpio"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	return &Controller{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Setup exports every pin and sets its direction.
func (c *Controller) Setup() error {
	for _, p := range c.cfg.Inputs {
		if err := c.export(p, "in"); err != nil {
			return err
		}
	}
	for _, p := range c.cfg.Outputs {
		if err := c.export(p, "out"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) export(p Pin, direction string) error {
	dir := c.pinDir(p)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(c.cfg.Base, "export"), []byte(strconv.Itoa(p.Number)), 0o644); err != nil {
			return fmt.Errorf("exporting gpio%d: %w", p.Number, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte(direction), 0o644); err != nil {
		return fmt.Errorf("setting gpio%d direction: %w", p.Number, err)
	}
	return nil
}

// Watch samples the inputs until ctx is cancelled and calls onPress with
// the switch index of every press.
func (c *Controller) Watch(ctx context.Context, onPress func(index int)) error {
	if len(c.cfg.Inputs) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	active := make([]bool, len(c.cfg.Inputs))
	for i, p := range c.cfg.Inputs {
		active[i], _ = c.read(p)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for i, p := range c.cfg.Inputs {
				now, err := c.read(p)
				if err != nil {
					c.logger.Debug("gpio read failed", "pin", p.Number, "error", err)
					continue
				}
				if now && !active[i] {
					c.logger.Debug("input pressed", "pin", p.Number, "index", p.Index)
					onPress(p.Index)
				}
				active[i] = now
			}
		}
	}
}

// Apply drives every output bound to index.
func (c *Controller) Apply(index int, on bool) error {
	found := false
	for _, p := range c.cfg.Outputs {
		if p.Index != index {
			continue
		}
		found = true
		level := on != p.ActiveLow
		value := "0"
		if level {
			value = "1"
		}
		if err := os.WriteFile(filepath.Join(c.pinDir(p), "value"), []byte(value), 0o644); err != nil {
			return fmt.Errorf("writing gpio%d: %w", p.Number, err)
		}
	}
	if !found {
		return fmt.Errorf("%w %d", ErrUnknownIndex, index)
	}
	return nil
}

// read returns whether pin p is active.
func (c *Controller) read(p Pin) (bool, error) {
	data, err := os.ReadFile(filepath.Join(c.pinDir(p), "value"))
	if err != nil {
		return false, err
	}
	high := strings.TrimSpace(string(data)) == "1"
	return high != p.ActiveLow, nil
}

func (c *Controller) pinDir(p Pin) string {
	return filepath.Join(c.cfg.Base, "gpio"+strconv.Itoa(p.Number))
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
