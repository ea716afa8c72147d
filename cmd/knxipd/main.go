// knxipd - KNXnet/IP tunneling daemon
//
// This is the main entry point for knxipd. The daemon maintains a
// tunnel connection to a KNXnet/IP gateway and bridges the KNX bus
// onto MQTT:
//   - Bus telegrams surface as retained state messages
//   - Group writes and reads are accepted on command topics
//   - Seen group addresses and gateways are recorded to SQLite
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-knxip/migrations"

	"github.com/nerrad567/gray-logic-knxip/internal/bridge"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-knxip/internal/knxip"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting knxipd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Start the traffic recorder
	recorder := bridge.NewRecorder(db.DB)
	recorder.SetLogger(log)
	if recErr := recorder.Start(); recErr != nil {
		return fmt.Errorf("starting recorder: %w", recErr)
	}
	defer func() {
		log.Info("stopping recorder")
		recorder.Stop()
	}()

	// Connect to MQTT broker, registering the health reporter's status
	// schema as the Last Will so a crash surfaces on the status topic.
	lwt, err := bridge.LWTPayload()
	if err != nil {
		return fmt.Errorf("building LWT payload: %w", err)
	}
	mqttClient, err := mqtt.ConnectWithWill(cfg.MQTT, bridge.LWTTopic(), lwt)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics bridge.MetricsWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Resolve the gateway, via discovery when none is configured
	var discovered []knxip.Gateway
	if cfg.Gateway.Host == "" {
		discovered, err = discoverGateways(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("discovering gateways: %w", err)
		}
		if len(discovered) == 0 {
			return fmt.Errorf("no gateway configured and none discovered")
		}
		cfg.Gateway.Host = fmt.Sprintf("%d.%d.%d.%d",
			discovered[0].Addr[0], discovered[0].Addr[1],
			discovered[0].Addr[2], discovered[0].Addr[3])
		cfg.Gateway.Port = int(discovered[0].Port)
		log.Info("using discovered gateway", "gateway", cfg.GatewayAddress())
	}

	// Establish the tunnel
	dial := tunnelDialer(cfg, log)
	tunnel, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	log.Info("tunnel established", "gateway", cfg.GatewayAddress())

	// Start the bridge
	b, err := bridge.New(bridge.Options{
		Config:    cfg,
		MQTT:      mqttClient,
		Tunnel:    tunnel,
		Dial:      dial,
		Recorder:  recorder,
		Telemetry: bridge.NewTelemetry(metrics, cfg.GatewayAddress()),
		Logger:    log,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := b.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	// Announce discovery results
	if len(discovered) > 0 {
		if pubErr := b.PublishGateways(discovered); pubErr != nil {
			log.Error("failed to publish discovered gateways", "error", pubErr)
		}
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Bridge (closes the tunnel)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Recorder
	// 5. Database

	log.Info("knxipd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KNXIP_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KNXIP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// tunnelDialer returns a dial function the bridge uses for the initial
// connection and every reconnection after the gateway drops the channel.
func tunnelDialer(cfg *config.Config, log *logging.Logger) bridge.DialFunc {
	return func(ctx context.Context) (knxip.Tunneler, error) {
		client, err := knxip.Connect(ctx, knxip.ClientConfig{
			Gateway:           cfg.GatewayAddress(),
			DeviceAddress:     cfg.Gateway.DeviceAddress,
			ConnectTimeout:    cfg.GetConnectTimeout(),
			ResponseTimeout:   cfg.GetResponseTimeout(),
			HeartbeatInterval: cfg.GetHeartbeatInterval(),
			ReceivePoll:       cfg.GetReceivePoll(),
			DrainJitterDelay:  cfg.GetDrainDelay(),
			DrainLimit:        cfg.Gateway.Timing.DrainLimit,
		})
		if err != nil {
			return nil, err
		}
		client.SetLogger(log)
		return client, nil
	}
}

// discoverGateways runs a gateway search on the local network.
func discoverGateways(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]knxip.Gateway, error) {
	discoveryCfg := knxip.DiscoveryConfig{
		PrefixLen: uint8(cfg.Discovery.PrefixLen), //nolint:gosec // validated 0-32 by config
		Timeout:   cfg.GetDiscoveryTimeout(),
	}

	if cfg.Discovery.LocalIP != "" {
		ip := net.ParseIP(cfg.Discovery.LocalIP).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid discovery local_ip: %s", cfg.Discovery.LocalIP)
		}
		copy(discoveryCfg.LocalIP[:], ip)
	}

	log.Info("searching for gateways", "timeout", discoveryCfg.Timeout.String())

	gateways, err := knxip.Discover(ctx, discoveryCfg)
	if err != nil {
		return nil, err
	}

	for _, g := range gateways {
		log.Info("gateway found",
			"endpoint", g.String(),
			"device_address", g.IndividualAddress.String(),
			"name", g.Name,
		)
	}
	return gateways, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Tunnel health is verified during Connect - the gateway accepted
	// the channel before the bridge started.

	return nil
}
