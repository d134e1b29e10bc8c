// rainbridge exposes Rain Bird irrigation controllers as HomeKit
// accessories.
//
// Each configured controller is reached through a gateway on the MQTT
// bus. Its zones, programs and sensors are reconciled into persisted
// accessory records, published as one HomeKit bridge and reported on the
// status API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/api"
	"github.com/nerrad567/rainbridge/internal/controller"
	"github.com/nerrad567/rainbridge/internal/homekit"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
	"github.com/nerrad567/rainbridge/internal/infrastructure/database"
	"github.com/nerrad567/rainbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/rainbridge/internal/infrastructure/logging"
	"github.com/nerrad567/rainbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rainbridge/internal/irrigation"
	"github.com/nerrad567/rainbridge/internal/metrics"
	"github.com/nerrad567/rainbridge/migrations"
)

// Set at build time: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// "rainbridge token [subject]" prints a status API bearer token.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, discovers the controllers and blocks until
// ctx is cancelled. Deferred closes run in reverse start order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting rainbridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	registry := accessory.NewRegistry(accessory.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if err := registry.Restore(ctx); err != nil {
		return fmt.Errorf("restoring accessories: %w", err)
	}

	bus, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	bus.SetLogger(log)
	bus.SetOnConnect(func() { log.Info("MQTT reconnected") })
	bus.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	m := metrics.New()
	recorders := irrigation.Recorders{m}
	checks := map[string]api.HealthChecker{"database": db, "mqtt": bus}

	influx, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		recorders = append(recorders, influx)
		checks["influxdb"] = influx
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	var (
		presenter irrigation.Presenter
		bridge    *homekit.Presenter
	)
	if cfg.HomeKit.Enabled {
		bridge = homekit.NewPresenter(cfg.HomeKit, version, log)
		presenter = bridge
		defer func() {
			log.Info("stopping HomeKit bridge")
			if closeErr := bridge.Close(); closeErr != nil {
				log.Error("error stopping HomeKit bridge", "error", closeErr)
			}
		}()
	} else {
		log.Info("HomeKit disabled")
	}

	registry.Observe(accessoryPublisher(bus, log))
	m.AccessoryCount(registry.Count())

	reconciler := irrigation.NewReconciler(irrigation.ReconcilerConfig{
		Registry:      registry,
		Sanitizer:     accessory.NewSanitizer(cfg.Platform.AllowInvalidCharacters, log),
		Presenter:     presenter,
		Recorder:      recorders,
		Logger:        log,
		PluginVersion: version,
	})

	discovery := irrigation.NewDiscovery(irrigation.DiscoveryConfig{
		Dialer: &controller.MQTTDialer{
			Bus:     bus,
			QoS:     byte(cfg.MQTT.QoS),
			Timeout: cfg.GetRequestTimeout(),
			Logger:  log,
		},
		Reconciler:  reconciler,
		Concurrency: cfg.Platform.DiscoveryConcurrency,
		Recorder:    recorders,
		Logger:      log,
	})
	defer func() {
		log.Info("closing controller sessions")
		if closeErr := discovery.Close(); closeErr != nil {
			log.Error("error closing controller sessions", "error", closeErr)
		}
	}()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: registry,
			Devices:  discovery,
			Metrics:  m,
			Checks:   checks,
			Version:  version,
		}
		if bridge != nil {
			deps.Bridge = bridge
		}
		server, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// A missing device list is already logged; keep serving the cached
	// accessories and the status API.
	if err := discovery.Run(ctx, cfg.Devices); err != nil && !errors.Is(err, irrigation.ErrNoDevices) {
		return fmt.Errorf("discovering controllers: %w", err)
	}

	if bridge != nil {
		if err := bridge.Publish(); err != nil {
			return fmt.Errorf("publishing HomeKit bridge: %w", err)
		}
		log.Info("HomeKit bridge published", "accessories", bridge.Count())
	}

	log.Info("initialisation complete, waiting for shutdown signal", "accessories", registry.Count())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// runToken signs a token with the configured API secret.
func runToken(args []string, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	subject := "rainbridge"
	if len(args) > 0 && args[0] != "" {
		subject = args[0]
	}
	ttl := time.Duration(cfg.API.Auth.TokenTTL) * time.Minute

	token, err := api.IssueToken(cfg.API.Auth.JWTSecret, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func getConfigPath() string {
	if path := os.Getenv("RAINBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// retainedPublisher is the slice of the MQTT client the accessory mirror needs.
type retainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// accessoryPublisher mirrors every record onto its retained accessory
// topic. A removal publishes an empty retained message, which clears the
// topic on the broker.
func accessoryPublisher(bus retainedPublisher, log *logging.Logger) accessory.Observer {
	topics := mqtt.Topics{}
	return func(op accessory.ChangeOp, rec accessory.Record) {
		var payload []byte
		if op != accessory.OpRemoved {
			var err error
			payload, err = json.Marshal(rec)
			if err != nil {
				log.Error("encoding accessory", "id", rec.ID, "error", err)
				return
			}
		}
		if err := bus.PublishRetained(topics.Accessory(rec.ID), payload); err != nil {
			log.Warn("publishing accessory state", "id", rec.ID, "op", op, "error", err)
		}
	}
}
