package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the womgr.yaml document.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Wake      WakeConfig      `yaml:"wake"`
	Probe     ProbeConfig     `yaml:"probe"`
	System    SystemConfig    `yaml:"system"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// DatabaseConfig locates the SQLite state database (history, cards).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig enables the optional broker bridge.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig is the REST listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists origins allowed to call the API; empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig tunes the event stream. Intervals are in seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig enables reachability metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// WakeConfig controls where magic packets are sent.
type WakeConfig struct {
	// Broadcast is the destination address. "<broadcast>" is accepted as an
	// alias for the limited broadcast address.
	Broadcast string `yaml:"broadcast"`
	Port      int    `yaml:"port"`

	// Burst is how many packets an API wake request sends.
	Burst         int           `yaml:"burst"`
	BurstInterval time.Duration `yaml:"burst_interval"`
}

// ProbeConfig controls reachability probing and the background monitor.
type ProbeConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`

	// WakeConfirmAttempts and WakeConfirmInterval bound how long a wake
	// request waits for the device to answer probes.
	WakeConfirmAttempts int           `yaml:"wake_confirm_attempts"`
	WakeConfirmInterval time.Duration `yaml:"wake_confirm_interval"`
}

// SystemConfig controls restart and shutdown commands.
type SystemConfig struct {
	// UseSudo prefixes POSIX restart/shutdown commands with sudo.
	UseSudo bool `yaml:"use_sudo"`

	// RemovalGrace bounds how long removal waits for a launched command
	// to exit before it is killed.
	RemovalGrace time.Duration `yaml:"removal_grace"`
}

// DashboardConfig selects the dashboard document store.
type DashboardConfig struct {
	// Store is one of "memory", "sqlite" or "lovelace".
	Store       string         `yaml:"store"`
	DefaultPath string         `yaml:"default_path"`
	ViewTitle   string         `yaml:"view_title"`
	Lovelace    LovelaceConfig `yaml:"lovelace"`
}

// LovelaceConfig contains the remote dashboard API settings.
type LovelaceConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Retries int           `yaml:"retries"`
	Timeout time.Duration `yaml:"timeout"`
}

// DeviceConfig describes a device registered at startup.
type DeviceConfig struct {
	Name      string `yaml:"name"`
	MAC       string `yaml:"mac"`
	IP        string `yaml:"ip"`
	OS        string `yaml:"os"`
	Location  string `yaml:"location"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Color     string `yaml:"color"`
	Icon      string `yaml:"icon"`
	Area      string `yaml:"area"`
	Dashboard string `yaml:"dashboard"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then WOMGR_* environment variables. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig is what a minimal womgr.yaml ends up with.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/womgr.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "womgr",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
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
		Wake: WakeConfig{
			Broadcast:     "255.255.255.255",
			Port:          9,
			Burst:         3,
			BurstInterval: time.Second,
		},
		Probe: ProbeConfig{
			Timeout:             2 * time.Second,
			Interval:            60 * time.Second,
			Concurrency:         8,
			WakeConfirmAttempts: 12,
			WakeConfirmInterval: 5 * time.Second,
		},
		System: SystemConfig{
			UseSudo:      true,
			RemovalGrace: 5 * time.Second,
		},
		Dashboard: DashboardConfig{
			Store:       "memory",
			DefaultPath: "womgr",
			ViewTitle:   "HaWoManager",
			Lovelace: LovelaceConfig{
				Retries: 3,
				Timeout: 10 * time.Second,
			},
		},
	}
}

// envOverrides maps environment variables onto config fields. Secrets
// (MQTT password, InfluxDB and dashboard tokens) are usually supplied here
// rather than in the file.
var envOverrides = map[string]func(cfg *Config, v string){
	"WOMGR_DATABASE_PATH":   func(cfg *Config, v string) { cfg.Database.Path = v },
	"WOMGR_MQTT_HOST":       func(cfg *Config, v string) { cfg.MQTT.Broker.Host = v },
	"WOMGR_MQTT_USERNAME":   func(cfg *Config, v string) { cfg.MQTT.Auth.Username = v },
	"WOMGR_MQTT_PASSWORD":   func(cfg *Config, v string) { cfg.MQTT.Auth.Password = v },
	"WOMGR_API_HOST":        func(cfg *Config, v string) { cfg.API.Host = v },
	"WOMGR_API_PORT":        func(cfg *Config, v string) { setInt(&cfg.API.Port, v) },
	"WOMGR_INFLUXDB_TOKEN":  func(cfg *Config, v string) { cfg.InfluxDB.Token = v },
	"WOMGR_WAKE_BROADCAST":  func(cfg *Config, v string) { cfg.Wake.Broadcast = v },
	"WOMGR_DASHBOARD_STORE": func(cfg *Config, v string) { cfg.Dashboard.Store = v },
	"WOMGR_LOVELACE_URL":    func(cfg *Config, v string) { cfg.Dashboard.Lovelace.URL = v },
	"WOMGR_LOVELACE_TOKEN":  func(cfg *Config, v string) { cfg.Dashboard.Lovelace.Token = v },
}

func applyEnvOverrides(cfg *Config) {
	for key, apply := range envOverrides {
		if v := os.Getenv(key); v != "" {
			apply(cfg, v)
		}
	}
}

// setInt leaves dst unchanged when v is not a number.
func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate reports every problem it finds in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Dashboard.Store == "sqlite" && c.Database.Path == "" {
		errs = append(errs, "database.path is required for the sqlite dashboard store")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Wake.Port < 1 || c.Wake.Port > 65535 {
		errs = append(errs, "wake.port must be between 1 and 65535")
	}
	if c.Wake.Broadcast == "" {
		errs = append(errs, "wake.broadcast is required")
	}
	if c.Wake.Burst < 1 {
		errs = append(errs, "wake.burst must be at least 1")
	}

	if c.Probe.Timeout <= 0 {
		errs = append(errs, "probe.timeout must be positive")
	}
	if c.Probe.Interval < c.Probe.Timeout {
		errs = append(errs, "probe.interval must not be shorter than probe.timeout")
	}
	if c.Probe.Concurrency < 1 {
		errs = append(errs, "probe.concurrency must be at least 1")
	}

	if c.System.RemovalGrace <= 0 {
		errs = append(errs, "system.removal_grace must be positive")
	}

	switch c.Dashboard.Store {
	case "memory", "sqlite":
	case "lovelace":
		if c.Dashboard.Lovelace.URL == "" {
			errs = append(errs, "dashboard.lovelace.url is required for the lovelace store")
		}
	default:
		errs = append(errs, fmt.Sprintf("dashboard.store %q is not one of memory, sqlite, lovelace", c.Dashboard.Store))
	}
	if c.Dashboard.DefaultPath == "" {
		errs = append(errs, "dashboard.default_path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("devices[%d].name %q is duplicated", i, name))
		}
		seen[name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadDuration is the HTTP read timeout.
func (t APITimeoutConfig) ReadDuration() time.Duration { return time.Duration(t.Read) * time.Second }

// WriteDuration is the HTTP write timeout. Wake requests that wait for the
// device to come up must finish inside it.
func (t APITimeoutConfig) WriteDuration() time.Duration { return time.Duration(t.Write) * time.Second }

// IdleDuration is the keep-alive idle timeout.
func (t APITimeoutConfig) IdleDuration() time.Duration { return time.Duration(t.Idle) * time.Second }
