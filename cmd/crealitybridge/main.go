// Creality Bridge - printer telemetry for Home Assistant
//
// This is the main entry point for the bridge. It keeps a WebSocket
// connection open to each configured Creality printer, turns the printer's
// JSON telemetry into entities and fans every update out to:
//   - Home Assistant via MQTT discovery and state topics
//   - InfluxDB for time-series metrics
//   - SQLite state history
//   - the local REST and WebSocket API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/creality-bridge/internal/api"
	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/hass"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/config"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/database"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/creality-bridge/internal/integration"
	"github.com/nerrad567/creality-bridge/internal/printer"
	"github.com/nerrad567/creality-bridge/internal/telemetry"
	"github.com/nerrad567/creality-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired state history is deleted.
const pruneInterval = time.Hour

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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: one step per component
	log := logging.Default()
	log.Info("starting Creality Bridge",
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

	// Database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	defaults, err := clientDefaults(cfg.Printers.Defaults)
	if err != nil {
		return err
	}
	manager := integration.NewManager(
		integration.NewSQLiteRepository(db.DB),
		defaults,
		seedEntries(cfg.Printers),
		log,
	)

	// MQTT and Home Assistant (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(cfg.MQTT, manager, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		bridge, bridgeErr := hass.NewBridge(mqttClient, hass.Options{
			Discovery:       cfg.MQTT.Discovery.Enabled,
			DiscoveryPrefix: cfg.MQTT.Discovery.Prefix,
		}, log)
		if bridgeErr != nil {
			return fmt.Errorf("creating Home Assistant bridge: %w", bridgeErr)
		}
		if watchErr := bridge.WatchHomeAssistant(); watchErr != nil {
			log.Warn("not watching Home Assistant status", "error", watchErr)
		}
		mqttClient.OnReconnect(bridge.RepublishAll)
		manager.AddSink(bridge)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry recorder and history retention
	history := telemetry.NewSQLiteHistoryRepository(db.DB)
	recorderCfg := telemetry.RecorderConfig{
		History:         history,
		HistoryInterval: cfg.Printers.Defaults.GetHistoryInterval(),
	}
	if influxClient != nil {
		recorderCfg.Metrics = influxClient
	}
	manager.AddSink(telemetry.NewRecorder(recorderCfg, log))
	go telemetry.RunPruner(ctx, history, cfg.Printers.Defaults.GetHistoryRetention(), pruneInterval, log)

	// API (optional); the hub must be a sink before the manager starts
	var apiServer *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		manager.AddSink(hub)

		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Manager:  manager,
			History:  history,
			Hub:      hub,
			DB:       db.DB,
			Version:  version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}
		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	} else {
		log.Info("API disabled")
	}

	// Printers
	if startErr := manager.Start(ctx); startErr != nil {
		// Entries that failed setup are logged; the rest keep running.
		log.Error("some printers failed to start", "error", startErr)
	}
	defer func() {
		log.Info("stopping printer connections")
		manager.Stop()
	}()
	log.Info("printers started", "count", len(manager.Runtimes()))

	if mqttClient != nil {
		// Refresh the retained status now that printer counts are known.
		if pubErr := mqttClient.PublishStatus(); pubErr != nil {
			log.Warn("publishing bridge status failed", "error", pubErr)
		}
	}

	if apiServer != nil {
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, printers, InfluxDB, MQTT, database.
	// Printers stop before MQTT closes so entries publish their offline state.

	log.Info("Creality Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CREALITY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CREALITY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// clientDefaults converts the printer defaults section to connection settings.
func clientDefaults(d config.PrinterDefaults) (integration.ClientDefaults, error) {
	mode, err := entity.ParseMode(d.Discovery)
	if err != nil {
		return integration.ClientDefaults{}, fmt.Errorf("printers.defaults.discovery: %w", err)
	}
	return integration.ClientDefaults{
		HandshakeTimeout: d.GetHandshakeTimeout(),
		PingInterval:     d.GetPingInterval(),
		PongTimeout:      d.GetPongTimeout(),
		Reconnect: printer.ReconnectPolicy{
			InitialDelay: d.ReconnectInitialDelay(),
			MaxDelay:     d.ReconnectMaxDelay(),
			Multiplier:   d.Reconnect.Multiplier,
		},
		Discovery: mode,
	}, nil
}

// seedEntries converts statically configured printers to integration
// entries, applying the default port.
func seedEntries(p config.PrintersConfig) []integration.Entry {
	seeds := make([]integration.Entry, 0, len(p.Entries))
	for _, pe := range p.Entries {
		port := pe.Port
		if port == 0 {
			port = p.Defaults.Port
		}
		seeds = append(seeds, integration.Entry{
			IP:       pe.IP,
			Port:     port,
			Password: pe.Password,
			Name:     pe.Name,
			Source:   integration.SourceConfig,
		})
	}
	return seeds
}

// startMQTT connects to the broker. The bridge status document carries the
// build version and the manager's printer counts.
func startMQTT(cfg config.MQTTConfig, manager *integration.Manager, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg,
		mqtt.WithVersion(version),
		mqtt.WithLogger(log),
		mqtt.WithPrinterCounter(printerCounts(manager)),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// printerCounts reports loaded entries and those with a live connection.
func printerCounts(manager *integration.Manager) mqtt.PrinterCounter {
	return func() (loaded, connected int) {
		rts := manager.Runtimes()
		for _, rt := range rts {
			if rt.Client.IsConnected() {
				connected++
			}
		}
		return len(rts), connected
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
