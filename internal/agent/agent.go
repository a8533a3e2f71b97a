package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tb-edge-agent/internal/attributes"
	"github.com/nerrad567/tb-edge-agent/internal/audit"
	"github.com/nerrad567/tb-edge-agent/internal/credentials"
	"github.com/nerrad567/tb-edge-agent/internal/gpio"
	"github.com/nerrad567/tb-edge-agent/internal/identity"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/database"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/logging"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/tb-edge-agent/internal/network"
	"github.com/nerrad567/tb-edge-agent/internal/provisioning"
	"github.com/nerrad567/tb-edge-agent/internal/session"
	"github.com/nerrad567/tb-edge-agent/internal/telemetry"
	"github.com/nerrad567/tb-edge-agent/internal/thingsboard"
)

// Deps are the resources the agent runs on. DB and Logger are required.
type Deps struct {
	DB     *database.DB
	Influx *influxdb.Client
	Logger *logging.Logger

	// Interfaces overrides the host interface list.
	Interfaces identity.InterfaceLister
}

// Agent is the assembled edge agent.
type Agent struct {
	cfg    *config.Config
	log    *logging.Logger
	device identity.Device
	loop   time.Duration

	mqtt      *mqtt.Client
	platform  *thingsboard.Client
	network   *network.Manager
	session   *session.Manager
	sync      *attributes.Synchronizer
	publisher *telemetry.Publisher
	gpio      *gpio.Controller
	journal   audit.Repository
}

// Journal bounds.
const (
	journalKeep    = 500
	journalTimeout = 2 * time.Second
)

// New assembles the agent from cfg.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Agent, error) {
	log := deps.Logger

	device, err := identity.Discover(ctx, cfg.Device, deps.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("discovering device identity: %w", err)
	}
	log.Info("device identity", "name", device.Name, "id", device.ID, "mac", device.MAC)

	a := &Agent{
		cfg:     cfg,
		log:     log,
		device:  device,
		loop:    cfg.LoopInterval(),
		journal: audit.NewSQLiteRepository(deps.DB.DB),
	}

	// Network
	a.network = network.NewManager(network.Config{
		SSID:       cfg.WiFi.SSID,
		Passphrase: cfg.WiFi.Passphrase,
		Cooldown:   cfg.WiFiCooldown(),
	}, newDriver(cfg, device, deps.Interfaces, log))
	a.network.SetLogger(log.With("component", "network"))

	// Platform transport
	a.mqtt = mqtt.New(mqtt.OptionsFromConfig(cfg.ThingsBoard))
	a.mqtt.SetLogger(log.With("component", "mqtt"))
	a.mqtt.SetOnConnectionLost(func(err error) {
		log.Debug("mqtt connection lost", "error", err)
	})
	a.platform = thingsboard.New(a.mqtt, thingsboard.Options{
		QoS: byte(cfg.ThingsBoard.QoS), //nolint:gosec // Validated to 0..2 by config
	})
	a.platform.SetLogger(log.With("component", "thingsboard"))

	// Outputs
	if cfg.GPIO.Enabled {
		a.gpio = gpio.New(gpio.ConfigFrom(cfg.GPIO, cfg.GPIOPollInterval()))
		a.gpio.SetLogger(log.With("component", "gpio"))
		if err := a.gpio.Setup(); err != nil {
			return nil, fmt.Errorf("setting up gpio: %w", err)
		}
	}

	// Shared attributes
	schema, err := attributes.SchemaFromConfig(cfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("building attribute schema: %w", err)
	}
	a.sync = attributes.NewSynchronizer(schema, a.platform, attributes.Options{
		Ready:  func() bool { return a.session.Ready() },
		Output: a.applyOutput,
	})
	a.sync.SetLogger(log.With("component", "attributes"))

	registry := session.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))
	registry.HandleProcedure(cfg.Attributes.RPCMethod, func(id string, params json.RawMessage) error {
		return a.sync.SubmitProcedure(id, params)
	})
	registry.HandleAttributes(schema.Keys(), a.sync.SubmitAttributes)
	a.platform.SetDispatcher(registry.Dispatch)

	orchestrator := session.NewOrchestrator(registry, cfg.RequestTimeout())
	orchestrator.SetLogger(log.With("component", "capabilities"))

	// Session
	var negotiator *provisioning.Negotiator
	if cfg.ThingsBoard.Provision.Key != "" {
		negotiator = provisioning.NewNegotiator(provisioning.Config{
			Key:      cfg.ThingsBoard.Provision.Key,
			Secret:   cfg.ThingsBoard.Provision.Secret,
			DeviceID: device.ID,
			Identity: cfg.ThingsBoard.Provision.Identity,
			Timeout:  cfg.RequestTimeout(),
		})
	}

	a.session = session.NewManager(session.Config{
		ConnectCooldown:    cfg.ConnectCooldown(),
		MaxConnectAttempts: cfg.ThingsBoard.Session.MaxConnectAttempts,
		StepInterval:       cfg.StepInterval(),
		AccessToken:        cfg.ThingsBoard.AccessToken,
	}, a.platform, credentials.NewStore(deps.DB), negotiator, orchestrator, a.network)
	a.session.SetLogger(log.With("component", "session"))

	a.session.OnReady(func(s session.Snapshot) {
		log.Info("platform session ready", "generation", s.Generation)
		a.pruneJournal()
	})
	influx := deps.Influx
	a.session.OnTransition(func(s session.Snapshot) {
		a.record(s)
		if influx != nil {
			influx.WriteSessionState(device.ID, s.State.String(), s.ConnectAttempts, s.Since)
		}
	})

	// Publishing
	var sink telemetry.Sink
	if deps.Influx != nil {
		sink = deps.Influx
	}
	a.publisher = telemetry.NewPublisher(telemetry.Config{
		Device: telemetry.DeviceInfo{
			ID:        device.ID,
			MAC:       device.MAC,
			HWVersion: cfg.Device.HWVersion,
			HWSerial:  cfg.Device.HWSerial,
			FWVersion: cfg.Device.FWVersion,
		},
		AttributeInterval: cfg.AttributeInterval(),
		TelemetryInterval: cfg.TelemetryInterval(),
	}, a.platform, a.session, a.network,
		telemetry.NewHostSampler(cfg.Device.TemperatureSensor, nil, nil), sink)
	a.publisher.SetLogger(log.With("component", "telemetry"))

	return a, nil
}

func newDriver(cfg *config.Config, device identity.Device, list identity.InterfaceLister, log *logging.Logger) network.Driver {
	iface := cfg.WiFi.Interface
	if iface == "" {
		iface = device.Interface
	}

	if cfg.WiFi.Driver == "nmcli" {
		d := network.NewNMCLIDriver(network.NMCLIConfig{
			Interface:    iface,
			PollInterval: cfg.WiFiPollInterval(),
			Lister:       list,
		})
		d.SetLogger(log.With("component", "nmcli"))
		return d
	}
	return network.NewStaticDriver(iface, cfg.WiFiPollInterval(), list)
}

// Device returns the device identity.
func (a *Agent) Device() identity.Device {
	return a.device
}

// Session returns the current session view.
func (a *Agent) Session() session.Snapshot {
	return a.session.Snapshot()
}

// Run loads the credentials and runs every task until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.session.Init(ctx); err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	defer a.mqtt.Close() //nolint:errcheck // Always nil

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.network.Run(ctx) })
	g.Go(func() error { return a.session.Run(ctx) })
	g.Go(func() error { return a.controlLoop(ctx) })
	if a.gpio != nil {
		g.Go(func() error { return a.gpio.Watch(ctx, a.onPress) })
	}

	return g.Wait()
}

func (a *Agent) controlLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.loop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.sync.Drain()
			a.publisher.Tick(ctx, now)
		}
	}
}

// record appends a session transition to the journal.
func (a *Agent) record(s session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	err := a.journal.Create(ctx, &audit.Entry{
		State:        s.State.String(),
		Generation:   s.Generation,
		Attempts:     s.ConnectAttempts,
		Credentialed: s.Credentialed,
		CreatedAt:    s.Since,
	})
	if err != nil {
		a.log.Warn("journal write failed", "state", s.State.String(), "error", err)
	}
}

func (a *Agent) pruneJournal() {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if n, err := a.journal.Prune(ctx, journalKeep); err != nil {
		a.log.Warn("journal prune failed", "error", err)
	} else if n > 0 {
		a.log.Debug("journal pruned", "removed", n)
	}
}

// Journal returns the most recent session transitions, newest first.
func (a *Agent) Journal(ctx context.Context, limit int) ([]audit.Entry, error) {
	res, err := a.journal.List(ctx, audit.Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// onPress turns a physical input into a local toggle of the first family.
func (a *Agent) onPress(index int) {
	if err := a.sync.SubmitToggle(attributes.Ref{Family: 0, Index: index}); err != nil {
		a.log.Warn("input dropped", "index", index, "error", err)
	}
}

// applyOutput mirrors boolean states of the first family onto the outputs.
func (a *Agent) applyOutput(ref attributes.Ref, v attributes.Value) {
	if a.gpio == nil || ref.Family != 0 || v.Kind != attributes.KindBool {
		return
	}
	if err := a.gpio.Apply(ref.Index, v.Bool); err != nil && !errors.Is(err, gpio.ErrUnknownIndex) {
		a.log.Warn("output update failed", "index", ref.Index, "error", err)
	}
}
