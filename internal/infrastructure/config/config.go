package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Creality bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Printers  PrintersConfig  `yaml:"printers"`
}

// ServiceConfig identifies this bridge instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Discovery DiscoveryConfig     `yaml:"discovery"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DiscoveryConfig controls Home Assistant MQTT discovery publishing.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the API's WebSocket hub.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret leaves the API unauthenticated.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// PrintersConfig holds connection defaults and statically configured printers.
type PrintersConfig struct {
	Defaults PrinterDefaults `yaml:"defaults"`
	Entries  []PrinterEntry  `yaml:"entries"`
}

// PrinterDefaults applies to every printer connection.
type PrinterDefaults struct {
	Port int `yaml:"port"`

	// Durations are in seconds.
	HandshakeTimeout int `yaml:"handshake_timeout"`
	PingInterval     int `yaml:"ping_interval"`
	PongTimeout      int `yaml:"pong_timeout"`

	Reconnect PrinterReconnectConfig `yaml:"reconnect"`

	// Discovery is "lazy" (entities appear as keys arrive) or "setup"
	// (entity set fixed at setup time).
	Discovery string `yaml:"discovery"`

	// HistoryInterval throttles state history snapshots, in seconds.
	// Status changes are always recorded.
	HistoryInterval int `yaml:"history_interval"`

	// HistoryRetention is how long snapshots are kept, in days.
	// Zero keeps them forever.
	HistoryRetention int `yaml:"history_retention"`
}

// PrinterReconnectConfig describes the reconnect delay sequence.
// InitialDelay and MaxDelay are in seconds.
type PrinterReconnectConfig struct {
	InitialDelay float64 `yaml:"initial_delay"`
	MaxDelay     float64 `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// PrinterEntry is one statically configured printer.
type PrinterEntry struct {
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CREALITY_SECTION_KEY
// For example: CREALITY_DATABASE_PATH, CREALITY_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "creality-bridge",
			Name: "Creality Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/creality.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "creality-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Discovery: DiscoveryConfig{
				Enabled: true,
				Prefix:  "homeassistant",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer: "creality-bridge",
			},
		},
		Printers: PrintersConfig{
			Defaults: PrinterDefaults{
				Port:             9999,
				HandshakeTimeout: 10,
				Reconnect: PrinterReconnectConfig{
					InitialDelay: 5,
					MaxDelay:     5,
					Multiplier:   1,
				},
				Discovery:        "lazy",
				HistoryInterval:  60,
				HistoryRetention: 30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CREALITY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CREALITY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CREALITY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CREALITY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CREALITY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("CREALITY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CREALITY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Discovery.Enabled && c.MQTT.Discovery.Prefix == "" {
		errs = append(errs, "mqtt.discovery.prefix is required when discovery is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	errs = append(errs, c.Printers.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (p *PrintersConfig) validate() []string {
	var errs []string
	d := p.Defaults

	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, "printers.defaults.port must be between 1 and 65535")
	}
	if d.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "printers.defaults.reconnect.initial_delay must be positive")
	}
	if d.Reconnect.MaxDelay < d.Reconnect.InitialDelay {
		errs = append(errs, "printers.defaults.reconnect.max_delay must not be below initial_delay")
	}
	if d.Reconnect.Multiplier < 1 {
		errs = append(errs, "printers.defaults.reconnect.multiplier must be at least 1")
	}
	if d.HistoryInterval < 0 || d.HistoryRetention < 0 {
		errs = append(errs, "printers.defaults history settings must not be negative")
	}
	if d.PingInterval < 0 || d.PongTimeout < 0 || d.HandshakeTimeout < 0 {
		errs = append(errs, "printers.defaults timeouts must not be negative")
	}
	switch d.Discovery {
	case "lazy", "setup":
	default:
		errs = append(errs, fmt.Sprintf("printers.defaults.discovery %q must be \"lazy\" or \"setup\"", d.Discovery))
	}

	seen := make(map[string]bool, len(p.Entries))
	for i, e := range p.Entries {
		if e.IP == "" {
			errs = append(errs, fmt.Sprintf("printers.entries[%d].ip is required", i))
			continue
		}
		if strings.ContainsAny(e.IP, "/ ") || (net.ParseIP(e.IP) == nil && strings.Contains(e.IP, ":")) {
			errs = append(errs, fmt.Sprintf("printers.entries[%d].ip %q is not a valid host", i, e.IP))
		}
		if e.Port != 0 && (e.Port < 1 || e.Port > 65535) {
			errs = append(errs, fmt.Sprintf("printers.entries[%d].port must be between 1 and 65535", i))
		}
		if seen[e.IP] {
			errs = append(errs, fmt.Sprintf("printers.entries[%d].ip %q is configured twice", i, e.IP))
		}
		seen[e.IP] = true
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// seconds converts a fractional second count to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ReconnectInitialDelay returns the first printer reconnect delay.
func (d PrinterDefaults) ReconnectInitialDelay() time.Duration {
	return seconds(d.Reconnect.InitialDelay)
}

// ReconnectMaxDelay returns the printer reconnect delay cap.
func (d PrinterDefaults) ReconnectMaxDelay() time.Duration {
	return seconds(d.Reconnect.MaxDelay)
}

// GetHandshakeTimeout returns the WebSocket handshake timeout.
func (d PrinterDefaults) GetHandshakeTimeout() time.Duration {
	return time.Duration(d.HandshakeTimeout) * time.Second
}

// GetPingInterval returns the keepalive ping interval; zero disables pings.
func (d PrinterDefaults) GetPingInterval() time.Duration {
	return time.Duration(d.PingInterval) * time.Second
}

// GetPongTimeout returns how long past a ping interval a pong may arrive.
func (d PrinterDefaults) GetPongTimeout() time.Duration {
	return time.Duration(d.PongTimeout) * time.Second
}

// GetHistoryInterval returns the minimum gap between history snapshots.
func (d PrinterDefaults) GetHistoryInterval() time.Duration {
	return time.Duration(d.HistoryInterval) * time.Second
}

// GetHistoryRetention returns how long history is kept; zero means forever.
func (d PrinterDefaults) GetHistoryRetention() time.Duration {
	return time.Duration(d.HistoryRetention) * 24 * time.Hour
}
