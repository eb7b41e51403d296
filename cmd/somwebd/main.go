// somwebd bridges SOMweb garage door controllers onto MQTT and a small
// management API.
//
// Each configured device gets a polling runtime that mirrors door,
// firmware, and diagnostics state to retained MQTT documents and
// accepts door commands back over MQTT. The HTTP API manages device
// configuration entries and streams state over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/taarskog/somweb-bridge/migrations"

	"github.com/taarskog/somweb-bridge/internal/api"
	"github.com/taarskog/somweb-bridge/internal/entry"
	"github.com/taarskog/somweb-bridge/internal/history"
	"github.com/taarskog/somweb-bridge/internal/hub"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/database"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/influxdb"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/mqtt"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main so it can return
// errors instead of calling os.Exit.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting somweb bridge", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise the logger with configured level and format.
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	repo := entry.NewRepository(db)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// History is optional; a nil sink disables recording entirely.
	var sink history.Sink
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer influxClient.Close()
		influxClient.SetOnError(func(err error) {
			log.Error("influxdb write error", "error", err)
		})
		sink = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	deviceHub := hub.New(cfg, log, repo, mqttClient, sink)

	server, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		Hub:     deviceHub,
		Repo:    repo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if err := deviceHub.Start(ctx); err != nil {
		return fmt.Errorf("starting device hub: %w", err)
	}
	defer deviceHub.Stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping api server", "error", closeErr)
		}
	}()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path, preferring the
// SOMWEB_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("SOMWEB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
