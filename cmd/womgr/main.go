// womgr - Wake-on-LAN device manager
//
// This is the main entry point for the womgr service. It registers the
// configured devices, keeps their dashboard cards in step with the
// registry, probes reachability in the background, and serves the REST and
// WebSocket API. MQTT and InfluxDB are optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	_ "github.com/nerrad567/womgr-core/migrations"

	"github.com/nerrad567/womgr-core/internal/api"
	"github.com/nerrad567/womgr-core/internal/dashboard"
	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
	"github.com/nerrad567/womgr-core/internal/infrastructure/database"
	"github.com/nerrad567/womgr-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/womgr-core/internal/infrastructure/logging"
	"github.com/nerrad567/womgr-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/womgr-core/internal/monitor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/womgr.yaml"

// historyRetention is how long device history is kept.
const historyRetention = 90 * 24 * time.Hour

// startupCheckTimeout bounds the one-off health check after startup.
const startupCheckTimeout = 5 * time.Second

// shutdownTimeout bounds the device sweep on the way out.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting womgr",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (device history and the sqlite dashboard store)
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	history := device.NewSQLiteHistoryRepository(db.DB)
	if pruned, pruneErr := history.Prune(ctx, historyRetention); pruneErr != nil {
		log.Warn("pruning device history", "error", pruneErr)
	} else if pruned > 0 {
		log.Info("device history pruned", "entries", pruned)
	}

	// Connect to MQTT broker (optional; failure is logged)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it", "error", err)
			mqttClient = nil
		} else {
			mqttClient.SetLogger(log.Component("mqtt"))
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT reconnected")
			})
			mqttClient.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		influxClient = nil
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Device registry
	registry := device.NewRegistry(device.Options{
		Wake:         device.WakeTarget{Broadcast: cfg.Wake.Broadcast, Port: cfg.Wake.Port},
		ProbeTimeout: cfg.Probe.Timeout,
		RemovalGrace: cfg.System.RemovalGrace,
		UseSudo:      cfg.System.UseSudo,
	})
	registry.SetLogger(log.Component("device"))
	defer func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("removing devices", "devices", registry.Len())
		if closeErr := registry.Close(sweepCtx); closeErr != nil {
			log.Error("error removing devices", "error", closeErr)
		}
	}()

	// Dashboard
	store, err := newDashboardStore(cfg.Dashboard, db)
	if err != nil {
		return fmt.Errorf("creating dashboard store: %w", err)
	}
	reconciler := dashboard.NewReconciler(store, dashboard.Options{
		DefaultPath: cfg.Dashboard.DefaultPath,
		ViewTitle:   cfg.Dashboard.ViewTitle,
	})
	reconciler.SetLogger(log.Component("dashboard"))

	registered := registerConfigured(ctx, registry, cfg.Devices, log)
	log.Info("device registry initialised", "devices", registered, "configured", len(cfg.Devices))

	specs := make([]dashboard.CardSpec, 0, registry.Len())
	for _, rec := range registry.List() {
		specs = append(specs, dashboard.SpecFor(rec))
	}
	if _, reconcileErr := reconciler.ReconcileAll(ctx, specs); reconcileErr != nil {
		log.Error("initial dashboard reconcile failed", "store", cfg.Dashboard.Store, "error", reconcileErr)
	}

	// WebSocket hub, shared by the monitor and the API
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	sinks := monitor.Sinks{Events: hub, History: history}
	if mqttClient != nil {
		sinks.State = mqttClient
	}
	if influxClient != nil {
		sinks.Metrics = influxClient
	}
	mon := monitor.New(registry, monitor.Options{
		Interval:        cfg.Probe.Interval,
		Concurrency:     cfg.Probe.Concurrency,
		ConfirmAttempts: cfg.Probe.WakeConfirmAttempts,
		ConfirmInterval: cfg.Probe.WakeConfirmInterval,
	}, sinks)
	mon.SetLogger(log.Component("monitor"))
	go mon.Run(ctx)

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Wake:        cfg.Wake,
		Logger:      log.Component("api"),
		Registry:    registry,
		Reconciler:  reconciler,
		Monitor:     mon,
		History:     history,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	}
	checks := map[string]api.HealthChecker{"database": db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		deps.Metrics = influxClient
		checks["influxdb"] = influxClient
	}
	deps.Checks = checks
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if mqttClient != nil {
		if err := mqttClient.SubscribeCommands(server.HandleCommand); err != nil {
			log.Warn("subscribing to device commands", "error", err)
		}
	}

	checks["api"] = server
	if err := healthCheck(ctx, checks); err != nil {
		log.Warn("startup health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Device sweep (stops launched commands)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("womgr stopped")
	return nil
}

// healthCheck runs every check once and reports the first failure. The
// service keeps running either way; optional components may recover.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	names := slices.Sorted(maps.Keys(checks))
	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WOMGR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WOMGR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newDashboardStore builds the configured document store.
func newDashboardStore(cfg config.DashboardConfig, db *database.DB) (dashboard.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return dashboard.NewMemoryStore(), nil
	case "sqlite":
		return dashboard.NewSQLiteStore(db.DB), nil
	case "lovelace":
		return dashboard.NewLovelaceStore(dashboard.LovelaceOptions{
			URL:     cfg.Lovelace.URL,
			Token:   cfg.Lovelace.Token,
			Retries: cfg.Lovelace.Retries,
			Timeout: cfg.Lovelace.Timeout,
		})
	}
	return nil, fmt.Errorf("unknown dashboard store %q", cfg.Store)
}

// registerConfigured registers the devices listed in the configuration.
// A device that fails validation is logged and skipped.
func registerConfigured(ctx context.Context, registry *device.Registry, devices []config.DeviceConfig, log *logging.Logger) int {
	n := 0
	for _, d := range devices {
		_, err := registry.Register(ctx, device.Params{
			Name:          d.Name,
			MAC:           d.MAC,
			IP:            d.IP,
			OS:            d.OS,
			Location:      d.Location,
			Username:      d.Username,
			Password:      d.Password,
			Color:         d.Color,
			Icon:          d.Icon,
			Area:          d.Area,
			DashboardPath: d.Dashboard,
		})
		if err != nil {
			log.Error("skipping configured device", "device", d.Name, "error", err)
			continue
		}
		n++
	}
	return n
}
