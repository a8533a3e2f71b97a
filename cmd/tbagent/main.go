// tbagent - ThingsBoard edge agent
//
// This is the main entry point for the edge agent. The agent joins the
// network, provisions itself with the platform on first boot, keeps its
// platform session open and mirrors shared switch states onto local
// outputs while publishing telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/tb-edge-agent/migrations"

	"github.com/nerrad567/tb-edge-agent/internal/agent"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/database"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tbagent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"wifi_driver", cfg.WiFi.Driver,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Local history is optional: the agent runs without it.
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without local history", "error", err)
		influxClient = nil
	default:
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	a, err := agent.New(ctx, cfg, agent.Deps{
		DB:     db,
		Influx: influxClient,
		Logger: log,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		return config.Watch(gctx, configPath, func(next *config.Config) {
			log.SetLevel(next.Logging.Level)
			log.Info("configuration reloaded", "level", next.Logging.Level)
		}, func(err error) {
			log.Warn("configuration reload failed", "error", err)
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("tbagent stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TBAGENT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TBAGENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the local infrastructure is healthy. The platform
// connection is not checked here: the session manager owns it and retries
// on its own schedule.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
