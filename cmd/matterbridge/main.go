// Gray Logic Matter Bridge
//
// This is the main entry point of the bridge. It mirrors Home Assistant
// lights and switches as devices on a Matter aggregator node, and keeps
// both sides in sync:
//   - Home Assistant state changes update the device attributes
//   - Writes to device attributes become Home Assistant service calls
//
// The MQTT mirror, InfluxDB history and HTTP API are optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-matterbridge/internal/api"
	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/exposure"
	"github.com/nerrad567/gray-logic-matterbridge/internal/history"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-matterbridge/internal/metrics"
	"github.com/nerrad567/gray-logic-matterbridge/migrations"
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

// unsubscribeTimeout bounds the entity unsubscribe sent on shutdown.
const unsubscribeTimeout = 2 * time.Second

// errHomeAssistantLost ends the process when the Home Assistant connection
// drops. The supervisor restarts the add-on.
var errHomeAssistantLost = errors.New("home assistant connection lost")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // composition root
	log := logging.Default()
	log.Info("starting Matter bridge",
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
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Database and identity
	db, err := database.Open(database.Config{
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	identityStore := exposure.NewIdentityStore(db.DB, log.Component("identity"))
	identity, err := identityStore.EnsureIdentity(ctx, cfg.Bridge.UniqueID)
	if err != nil {
		return fmt.Errorf("loading bridge identity: %w", err)
	}
	if closed, staleErr := identityStore.CloseStale(ctx); staleErr != nil {
		log.Warn("closing stale ledger entries failed", "error", staleErr)
	} else if closed > 0 {
		log.Info("closed ledger entries from previous run", "devices", closed)
	}
	log.Info("bridge identity loaded", "unique_id", identity.UniqueID, "node_id", identity.NodeID)

	// Home Assistant
	haClient, err := connectHomeAssistant(ctx, cfg, log.Component("homeassistant"))
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing Home Assistant connection")
		if closeErr := haClient.Close(); closeErr != nil {
			log.Error("error closing Home Assistant connection", "error", closeErr)
		}
	}()

	// Observers
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bridgeMetrics := metrics.New(promRegistry)
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	observers := bridge.Observers{bridgeMetrics, hub}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, log.Component("influxdb"))
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		observers = append(observers, history.NewRecorder(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Aggregator node
	aggregator := exposure.NewAggregator(exposure.AggregatorOptions{
		Listeners: []exposure.Listener{identityStore, hub.Listener()},
		Logger:    log.Component("aggregator"),
	})

	healthCfg := exposure.HealthReporterConfig{
		BridgeName: cfg.Bridge.Name,
		UniqueID:   identity.UniqueID,
		Version:    version,
		Interval:   cfg.GetHealthInterval(),
		Upstream:   haClient,
		Aggregator: aggregator,
		Logger:     log.Component("health"),
	}

	// MQTT mirror (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mirror, mqttErr := startMirror(ctx, cfg, aggregator, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer mirror.Stop()

		healthCfg.Publisher = mqttClient
		healthCfg.Topic = mqttClient.Topics().BridgeHealth()
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Entity registry
	converters, err := bridge.ConvertersByName(cfg.Bridge.Converters)
	if err != nil {
		return fmt.Errorf("resolving converters: %w", err)
	}
	feed := homeassistant.NewFeed(log.Component("feed"))
	entityStore := homeassistant.NewStore(log.Component("store"))

	registry, err := bridge.NewRegistry(bridge.RegistryOptions{
		Source:       feed,
		Commands:     haClient,
		Aggregator:   aggregator,
		UniqueID:     identity.UniqueID,
		SerialPrefix: cfg.Bridge.SerialPrefix,
		Converters:   converters,
		Observer:     observers,
		Logger:       log.Component("registry"),
	})
	if err != nil {
		return fmt.Errorf("creating entity registry: %w", err)
	}
	metrics.RegisterGauges(promRegistry, registry.Stats, aggregator.Len)

	healthCfg.Registry = registry
	health := exposure.NewHealthReporter(healthCfg)
	if healthCfg.Publisher != nil {
		if pubErr := health.PublishStarting(); pubErr != nil {
			log.Warn("publishing starting health failed", "error", pubErr)
		}
		health.Start(ctx)
		defer health.Stop()
	}

	if startErr := registry.Start(); startErr != nil {
		return fmt.Errorf("starting entity registry: %w", startErr)
	}
	defer registry.Stop()

	unsubscribe, err := haClient.SubscribeEntities(ctx, func(update homeassistant.StatesUpdate) {
		feed.Publish(entityStore.Apply(update))
	})
	if err != nil {
		return fmt.Errorf("subscribing to entities: %w", err)
	}
	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if unsubErr := unsubscribe(unsubCtx); unsubErr != nil {
			log.Debug("entity unsubscribe failed", "error", unsubErr)
		}
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Metrics:    cfg.Metrics,
			Bridge:     cfg.Bridge,
			Logger:     log.Component("api"),
			Registry:   registry,
			Aggregator: aggregator,
			Identity:   identity,
			Ledger:     identityStore,
			Health:     health,
			Gatherer:   promRegistry,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	logPairingInfo(log, cfg.Bridge)
	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-haClient.Done():
			return errHomeAssistantLost
		}
	})
	if err := g.Wait(); err != nil {
		log.Error("bridge stopping", "error", err)
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MATTERBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MATTERBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// homeAssistantURL returns the websocket endpoint to dial. Add-on mode goes
// through the Supervisor proxy.
func homeAssistantURL(cfg config.HomeAssistantConfig) string {
	if cfg.Addon {
		return homeassistant.SupervisorURL
	}
	return cfg.URL
}

// connectHomeAssistant creates the client and completes the auth handshake.
func connectHomeAssistant(ctx context.Context, cfg *config.Config, log *logging.Logger) (*homeassistant.Client, error) {
	client, err := homeassistant.NewClient(homeassistant.Config{
		URL:              homeAssistantURL(cfg.HomeAssistant),
		AccessToken:      cfg.HomeAssistant.AccessToken,
		CallTimeout:      cfg.GetCallTimeout(),
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Home Assistant client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	log.Info("Home Assistant connected",
		"addon", cfg.HomeAssistant.Addon,
		"ha_version", client.Version(),
	)
	return client, nil
}

// startMirror connects to the broker and starts the device mirror. The
// mirror is registered with the aggregator before any device is added.
func startMirror(ctx context.Context, cfg *config.Config, aggregator *exposure.Aggregator, log *logging.Logger) (*mqtt.Client, *exposure.Mirror, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	mirror, err := exposure.NewMirror(exposure.MirrorOptions{
		Publisher: client,
		Devices:   aggregator,
		Topics:    client.Topics(),
		QoS:       client.QoS(),
		Logger:    log.Component("mirror"),
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("creating MQTT mirror: %w", err)
	}
	if err := mirror.Start(ctx); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting MQTT mirror: %w", err)
	}
	aggregator.AddListener(mirror)

	log.Info("MQTT mirror started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"prefix", client.Topics().Prefix,
	)
	return client, mirror, nil
}

// logPairingInfo prints what a user needs to add the bridge to a controller.
func logPairingInfo(log *logging.Logger, cfg config.BridgeConfig) {
	c := cfg.Commissioning
	code, err := exposure.ManualPairingCode(c.Passcode, c.Discriminator)
	if err != nil {
		log.Warn("cannot derive pairing code", "error", err)
		return
	}
	log.Info("bridge ready for pairing",
		"name", cfg.Name,
		"manual_pairing_code", exposure.FormatPairingCode(code),
		"discriminator", c.Discriminator,
		"port", c.Port,
	)
}
