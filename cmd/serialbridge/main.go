// Gray Logic Serial Bridge
//
// Reads newline-terminated text from a serial device and republishes each
// line as a JSON envelope {message, sequence} on an MQTT topic, logging
// every message received on that same topic. Built for AWS IoT style
// brokers (mutual TLS) but works with any MQTT 3.1.1 broker.
//
// With mqtt.enabled set to false the bridge runs in echo mode and only
// logs the envelopes it would have published.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-serialbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-serialbridge/internal/relay"
	"github.com/nerrad567/gray-logic-serialbridge/internal/serial"
	"github.com/nerrad567/gray-logic-serialbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is read when SERIALBRIDGE_CONFIG is unset and the file exists.
	defaultConfigPath = "configs/config.yaml"

	// echoTopic labels envelopes in echo mode when no topic is configured.
	echoTopic = "serialbridge/echo"
)

// openSerial opens the configured device. Replaced in tests.
var openSerial = serial.Open

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	cancel()

	os.Exit(exitCode(err))
}

// exitCode maps the result of run to the process exit status: 0 for a clean
// or signalled shutdown, 1 for any fatal error.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// opError records which startup or runtime operation failed.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

func fail(op string, err error) error {
	return &opError{op: op, err: err}
}

// run is the application logic, separated from main for testability.
//
// Fatal errors are logged with the failing operation before being returned.
// Cancellation of ctx is a clean shutdown and returns nil.
func run(ctx context.Context) (err error) {
	log := logging.Default()
	log.Info("starting serial bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	defer func() {
		if err == nil {
			log.Info("serial bridge stopped")
			return
		}
		op := "run"
		var oe *opError
		if errors.As(err, &oe) {
			op = oe.op
		}
		log.Error("fatal error", "operation", op, "error", err)
	}()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fail("load config", err)
	}

	log = logging.New(cfg.Logging, version)
	logStartup(log, configPath, cfg)

	db, history, err := openHistory(ctx, cfg.History, log)
	if err != nil {
		// A signal during migrations is a shutdown, not a failure.
		if ctx.Err() != nil {
			log.Info("shutdown during startup", "operation", "open history")
			return nil
		}
		return fail("open history", err)
	}
	var checks []relay.HealthCheck
	if db != nil {
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		checks = append(checks, relay.HealthCheck{Name: "history", Check: db.HealthCheck})
	}

	var sinks []relay.StatsSink
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fail("connect influxdb", err)
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
		sinks = append(sinks, influxStatsSink{
			client: influxClient,
			tags: influxdb.RelayTags{
				ClientID: cfg.MQTT.Broker.ClientID,
				Topic:    cfg.MQTT.Topic,
				Device:   cfg.Serial.Device,
			},
		})
		checks = append(checks, relay.HealthCheck{Name: "influxdb", Check: influxClient.HealthCheck})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	}

	topic := cfg.MQTT.Topic
	if topic == "" {
		topic = echoTopic
	}
	rel, err := relay.New(relay.Options{
		Topic:   topic,
		Logger:  log.With("component", "relay"),
		History: history,
	})
	if err != nil {
		return fail("create relay", err)
	}

	var publisher relay.Publisher = relay.LogPublisher{Logger: log.With("component", "echo")}
	var healthPublisher relay.HealthPublisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, log)
		if err != nil {
			return fail("connect mqtt", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		adapter := &mqttRelayAdapter{client: mqttClient, qos: byte(cfg.MQTT.QoS)}
		if err := adapter.Subscribe(topic, rel.OnMessage); err != nil {
			return fail("subscribe", err)
		}
		log.Info("subscribed", "topic", topic, "qos", cfg.MQTT.QoS)

		publisher = adapter
		healthPublisher = mqttClient
	} else {
		log.Warn("MQTT disabled, running in echo mode")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown during startup", "operation", "health check")
			return nil
		}
		return fail("health check", err)
	}
	log.Info("health check passed")

	// Give the broker time to register the subscription before the first publish.
	if cfg.MQTT.Enabled && cfg.Relay.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Relay.SettleDelay):
		}
	}

	reader, err := openSerial(cfg.Serial)
	if err != nil {
		return fail("open serial port", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			log.Warn("error closing serial port", "error", closeErr)
		}
	}()
	log.Info("serial port open", "device", cfg.Serial.Device, "baud_rate", cfg.Serial.BaudRate)

	reporter := relay.NewHealthReporter(relay.HealthReporterConfig{
		ClientID:  cfg.MQTT.Broker.ClientID,
		Version:   version,
		Topic:     mqtt.Topics{}.Health(cfg.MQTT.StatusTopic),
		Interval:  cfg.Relay.HealthInterval,
		Publisher: healthPublisher,
		Source:    rel,
		Sinks:     sinks,
		Checks:    checks,
		Logger:    log.With("component", "health"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rel.Run(gctx, reader, publisher)
	})
	g.Go(func() error {
		return reporter.Run(gctx)
	})

	log.Info("relay running", "topic", topic)
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("shutdown signal received", "published", rel.Stats().Published)
			return nil
		}
		return fail("relay", err)
	}
	return nil
}

// logStartup logs the effective parameters. Credentials are never logged.
func logStartup(log *logging.Logger, configPath string, cfg *config.Config) {
	source := configPath
	if source == "" {
		source = "environment"
	}
	log.Info("configuration loaded",
		"source", source,
		"serial_device", cfg.Serial.Device,
		"baud_rate", cfg.Serial.BaudRate,
		"mqtt_enabled", cfg.MQTT.Enabled,
		"endpoint", cfg.MQTT.Broker.Host,
		"port", cfg.MQTT.Broker.Port,
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic", cfg.MQTT.Topic,
		"tls", cfg.MQTT.Broker.TLS,
		"root_ca_path", cfg.MQTT.TLS.RootCAPath,
		"certificate_path", cfg.MQTT.TLS.CertificatePath,
		"private_key_path", cfg.MQTT.TLS.PrivateKeyPath,
		"history_enabled", cfg.History.Enabled,
		"influxdb_enabled", cfg.InfluxDB.Enabled,
	)
}

// openHistory opens and migrates the publish history when enabled. Both
// results are nil when history is disabled; the caller closes the database.
func openHistory(ctx context.Context, cfg config.HistoryConfig, log *logging.Logger) (*database.DB, relay.History, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Migration error takes precedence
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	history := relay.NewSQLiteHistory(db.DB, uuid.NewString())
	if cfg.Retention > 0 {
		pruned, err := history.Prune(ctx, cfg.Retention)
		if err != nil {
			log.Warn("pruning history failed", "error", err)
		} else if pruned > 0 {
			log.Info("history pruned", "deleted", pruned, "retention", cfg.Retention)
		}
	}

	log.Info("history enabled", "path", db.Path(), "run_id", history.RunID())
	return db, history, nil
}

// healthCheck verifies every enabled connection once before the relay starts.
// Disabled components are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("history database: %w", err)
		}
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

// connectMQTT connects and attaches connection logging.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	mqttLog := log.With("component", "mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT connected", "queued_while_offline", client.QueuedCount())
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT connection lost", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// getConfigPath returns the configuration file path.
// SERIALBRIDGE_CONFIG wins; otherwise the default path is used if it exists,
// and "" (environment only) if it does not.
func getConfigPath() string {
	if path := os.Getenv("SERIALBRIDGE_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// mqttRelayAdapter adapts the infrastructure MQTT client to the relay's
// narrow publish and subscribe signatures:
//   - Infrastructure mqtt: Publish(topic, payload, qos, retained), handlers return error
//   - Relay expects: Publish(topic, payload), handlers return nothing
type mqttRelayAdapter struct {
	client *mqtt.Client
	qos    byte
}

// Publish sends a non-retained message at the configured QoS.
func (a *mqttRelayAdapter) Publish(topic string, payload []byte) error {
	return a.client.Publish(topic, payload, a.qos, false)
}

// Subscribe registers a void handler at the configured QoS.
func (a *mqttRelayAdapter) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, a.qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// influxStatsSink forwards relay stats to InfluxDB.
type influxStatsSink struct {
	client *influxdb.Client
	tags   influxdb.RelayTags
}

func (s influxStatsSink) WriteRelayStats(stats relay.Stats, uptime time.Duration) {
	s.client.WriteRelayStats(s.tags, influxdb.RelayStats{
		LinesRead:     stats.LinesRead,
		Published:     stats.Published,
		Received:      stats.Received,
		BytesOut:      stats.BytesOut,
		UptimeSeconds: int64(uptime.Seconds()),
	})
}
