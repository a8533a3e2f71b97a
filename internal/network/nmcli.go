package network

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/tb-edge-agent/internal/identity"
	"github.com/nerrad567/tb-edge-agent/internal/process"
)

// defaultWirelessPath is the kernel's wireless statistics table.
const defaultWirelessPath = "/proc/net/wireless"

// Runner runs a command to completion and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // Binary comes from agent configuration
}

// NMCLIConfig configures an NMCLIDriver.
type NMCLIConfig struct {
	// Interface is the WiFi interface, e.g. "wlan0".
	Interface string

	// Binary is the nmcli executable. Default: "nmcli".
	Binary string

	// PollInterval is the address sampling period. Default: 1s.
	PollInterval time.Duration

	// WirelessPath overrides /proc/net/wireless.
	WirelessPath string

	// Lister overrides the host interface list.
	Lister identity.InterfaceLister

	// Runner overrides command execution.
	Runner Runner
}

// NMCLIDriver joins WiFi networks through NetworkManager.
type NMCLIDriver struct {
	cfg    NMCLIConfig
	logger process.Logger
}

// NewNMCLIDriver creates an NMCLIDriver.
func NewNMCLIDriver(cfg NMCLIConfig) *NMCLIDriver {
	if cfg.Binary == "" {
		cfg.Binary = "nmcli"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WirelessPath == "" {
		cfg.WirelessPath = defaultWirelessPath
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner
	}
	return &NMCLIDriver{cfg: cfg}
}

// SetLogger sets the logger for the monitor process.
func (d *NMCLIDriver) SetLogger(logger process.Logger) {
	d.logger = logger
}

// Associate implements Driver.
func (d *NMCLIDriver) Associate(ctx context.Context, ssid, passphrase string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	if d.cfg.Interface != "" {
		args = append(args, "ifname", d.cfg.Interface)
	}

	out, err := d.cfg.Runner(ctx, d.cfg.Binary, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrAssociationFailed, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Watch implements Driver. Association state comes from "nmcli device
// monitor"; addresses from polling the interface.
func (d *NMCLIDriver) Watch(ctx context.Context, emit func(Event)) error {
	monitor := process.NewManager(process.Config{
		Name:             "nmcli-monitor",
		Binary:           d.cfg.Binary,
		Args:             []string{"device", "monitor", d.cfg.Interface},
		RestartOnFailure: true,
		RestartDelay:     5 * time.Second,
		OnLine: func(line string) {
			if ev, ok := parseMonitorLine(d.cfg.Interface, line); ok {
				emit(ev)
			}
		},
	})
	if d.logger != nil {
		monitor.SetLogger(d.logger)
	}
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting nmcli monitor: %w", err)
	}
	defer monitor.Stop() //nolint:errcheck // Best effort on shutdown

	poller := addressPoller{
		iface:    d.cfg.Interface,
		interval: d.cfg.PollInterval,
		list:     d.cfg.Lister,
	}
	return poller.run(ctx, emit)
}

// SignalDBM implements Driver using the kernel's wireless statistics.
func (d *NMCLIDriver) SignalDBM(context.Context) (int, error) {
	return readSignalLevel(d.cfg.WirelessPath, d.cfg.Interface)
}

// parseMonitorLine maps an "nmcli device monitor" line such as
// "wlan0: disconnected" onto an Event.
func parseMonitorLine(iface, line string) (Event, bool) {
	name, state, ok := strings.Cut(line, ":")
	if !ok || strings.TrimSpace(name) != iface {
		return Event{}, false
	}
	switch strings.TrimSpace(state) {
	case "connected":
		return Event{Kind: EventAssociated}, true
	case "disconnected", "unavailable", "device removed":
		return Event{Kind: EventDisassociated}, true
	default:
		return Event{}, false
	}
}

// readSignalLevel returns the signal level column for iface from a
// /proc/net/wireless style table.
func readSignalLevel(path, iface string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoSignal, err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(name) != iface {
			continue
		}
		// status link level noise ...
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			break
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: level %q", ErrNoSignal, fields[2])
		}
		return int(math.Round(level)), nil
	}
	return 0, fmt.Errorf("%w: %s not listed", ErrNoSignal, iface)
}
