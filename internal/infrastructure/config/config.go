package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a required parameter is missing or malformed.
// Every error produced by Load and Validate wraps it, so callers can treat
// configuration failures as a single class with errors.Is.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// clientIDPrefix prefixes generated MQTT client identifiers.
const clientIDPrefix = "serialbridge-"

// Config is the root configuration structure for the serial bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Relay    RelayConfig    `yaml:"relay"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SerialConfig contains the serial device settings.
type SerialConfig struct {
	// Device is the port identifier (e.g. "/dev/ttyUSB0" or "COM3").
	Device string `yaml:"device"`

	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`

	// MaxLineLength bounds a single line in bytes. 0 means unbounded.
	MaxLineLength int `yaml:"max_line_length"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// Enabled selects between publishing to a broker and local echo mode.
	Enabled bool `yaml:"enabled"`

	Broker    MQTTBrokerConfig    `yaml:"broker"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Timeouts  MQTTTimeoutConfig   `yaml:"timeouts"`

	// Topic is both the publish topic and the subscription topic.
	Topic string `yaml:"topic"`

	// StatusTopic receives retained online/offline status and the LWT.
	// Empty disables status publishing.
	StatusTopic string `yaml:"status_topic"`

	// OfflineQueue hands publishes to the client's outbound store while
	// reconnecting instead of failing them.
	OfflineQueue bool `yaml:"offline_queue"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTTLSConfig contains certificate material for mutual TLS (AWS IoT style).
type MQTTTLSConfig struct {
	RootCAPath      string `yaml:"root_ca_path"`
	CertificatePath string `yaml:"certificate_path"`
	PrivateKeyPath  string `yaml:"private_key_path"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection backoff bounds (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTimeoutConfig contains MQTT operation timeouts (seconds).
type MQTTTimeoutConfig struct {
	Connect   int `yaml:"connect"`
	Operation int `yaml:"operation"`
}

// RelayConfig contains relay loop settings.
type RelayConfig struct {
	// HealthInterval is how often health is published. 0 disables reporting.
	HealthInterval time.Duration `yaml:"health_interval"`

	// SettleDelay is waited after subscribing and before reading the port.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// HistoryConfig contains the optional SQLite publish history settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention prunes entries older than this at startup. 0 keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// AWS IoT device-SDK style names (SERIAL_COM_PORT, AWS_IOT_*) are honoured,
// alongside SERIALBRIDGE_* variables for the remaining settings and secrets.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading config file: %w", ErrInvalidConfig, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %w", ErrInvalidConfig, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// The MQTT values match the AWS IoT device SDK: 1s-32s
// reconnect backoff, 10s connect timeout, 5s operation timeout, QoS 1.
func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate: 9600,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 8883,
			},
			QoS:          1,
			OfflineQueue: true,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     32,
			},
			Timeouts: MQTTTimeoutConfig{
				Connect:   10,
				Operation: 5,
			},
		},
		Relay: RelayConfig{
			HealthInterval: 30 * time.Second,
			SettleDelay:    2 * time.Second,
		},
		History: HistoryConfig{
			Path:        "./data/serialbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   7 * 24 * time.Hour,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Integer variables that do not parse are reported as ErrInvalidConfig.
func applyEnvOverrides(cfg *Config) error {
	// Serial
	if v := os.Getenv("SERIAL_COM_PORT"); v != "" {
		cfg.Serial.Device = v
	}
	if err := envInt("SERIAL_BAUD_RATE", &cfg.Serial.BaudRate); err != nil {
		return err
	}

	// MQTT (AWS IoT device names)
	if v := os.Getenv("AWS_IOT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("AWS_IOT_ENDPOINT"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if err := envInt("AWS_IOT_PORT", &cfg.MQTT.Broker.Port); err != nil {
		return err
	}
	if v := os.Getenv("AWS_IOT_ROOT_CA_PATH"); v != "" {
		cfg.MQTT.TLS.RootCAPath = v
	}
	if v := os.Getenv("AWS_IOT_PRIVATE_KEY_PATH"); v != "" {
		cfg.MQTT.TLS.PrivateKeyPath = v
	}
	if v := os.Getenv("AWS_IOT_CERTIFICATE_PATH"); v != "" {
		cfg.MQTT.TLS.CertificatePath = v
	}
	if v := os.Getenv("AWS_IOT_TEST_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("SERIALBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SERIALBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// History
	if v := os.Getenv("SERIALBRIDGE_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SERIALBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SERIALBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// envInt parses an integer environment variable into dst if it is set.
func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
	}
	*dst = n
	return nil
}

// normalise fills in derived values after all sources have been applied.
func (c *Config) normalise() {
	// Certificate material only makes sense over TLS.
	if c.MQTT.TLS.RootCAPath != "" || c.MQTT.TLS.CertificatePath != "" {
		c.MQTT.Broker.TLS = true
	}

	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = clientIDPrefix + uuid.NewString()
	}

	c.Serial.Parity = strings.ToUpper(strings.TrimSpace(c.Serial.Parity))
}

// Validate checks the configuration for missing or malformed parameters.
//
// Returns:
//   - error: Wrapping ErrInvalidConfig with every problem found, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Serial validation
	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required (set SERIAL_COM_PORT)")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.DataBits != 0 && (c.Serial.DataBits < 5 || c.Serial.DataBits > 8) {
		errs = append(errs, "serial.data_bits must be between 5 and 8")
	}
	if c.Serial.StopBits != 0 && c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, "serial.stop_bits must be 1 or 2")
	}
	switch c.Serial.Parity {
	case "", "N", "NONE", "E", "EVEN", "O", "ODD":
	default:
		errs = append(errs, "serial.parity must be N, E, or O")
	}
	if c.Serial.MaxLineLength < 0 {
		errs = append(errs, "serial.max_line_length cannot be negative")
	}

	// MQTT validation (only relevant when publishing)
	if c.MQTT.Enabled {
		errs = append(errs, c.MQTT.validate()...)
	}

	// Relay validation
	if c.Relay.HealthInterval < 0 {
		errs = append(errs, "relay.health_interval cannot be negative")
	}
	if c.Relay.SettleDelay < 0 {
		errs = append(errs, "relay.settle_delay cannot be negative")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		errs = append(errs, "history.retention cannot be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// validate returns the problems found in the MQTT section.
func (m *MQTTConfig) validate() []string {
	var errs []string

	if m.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set AWS_IOT_ENDPOINT)")
	}
	if m.Broker.Port < 1 || m.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic is required (set AWS_IOT_TEST_TOPIC)")
	} else if strings.ContainsAny(m.Topic, "+#") {
		errs = append(errs, "mqtt.topic cannot contain wildcards")
	}
	if strings.ContainsAny(m.StatusTopic, "+#") {
		errs = append(errs, "mqtt.status_topic cannot contain wildcards")
	}
	if (m.TLS.CertificatePath == "") != (m.TLS.PrivateKeyPath == "") {
		errs = append(errs, "mqtt.tls.certificate_path and mqtt.tls.private_key_path must be set together")
	}
	if m.Reconnect.InitialDelay < 0 || m.Reconnect.MaxDelay < m.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect delays must satisfy 0 <= initial_delay <= max_delay")
	}
	if m.Timeouts.Connect <= 0 || m.Timeouts.Operation <= 0 {
		errs = append(errs, "mqtt.timeouts must be positive")
	}

	return errs
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.Timeouts.Connect) * time.Second
}

// GetOperationTimeout returns the MQTT publish/subscribe timeout as a Duration.
func (m MQTTConfig) GetOperationTimeout() time.Duration {
	return time.Duration(m.Timeouts.Operation) * time.Second
}
