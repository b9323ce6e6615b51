package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Hostel Gate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Logging      LoggingConfig      `yaml:"logging"`
	Security     SecurityConfig     `yaml:"security"`
	Movement     MovementConfig     `yaml:"movement"`
	Sync         SyncConfig         `yaml:"sync"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains durable store settings.
type DatabaseConfig struct {
	// Driver selects the store: "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Ignored for postgres.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string. Ignored for sqlite.
	DSN string `yaml:"dsn"`

	WALMode     bool `yaml:"wal_mode"`
	BusyTimeout int  `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for movement telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains Redis settings. Redis backs offline-sync dedup claims.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig contains settings for the offline batch ingest consumer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains authentication and session settings.
type SecurityConfig struct {
	JWT     JWTConfig     `yaml:"jwt"`
	Lockout LockoutConfig `yaml:"lockout"`
	Session SessionConfig `yaml:"session"`

	// Credentials maps each role to its secret identifier. Values beginning
	// with "$argon2id$" are treated as Argon2id PHC hashes.
	Credentials map[string]string `yaml:"credentials"`
}

// JWTConfig contains identity token settings.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes
}

// LockoutConfig contains brute-force protection settings.
type LockoutConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	Window      int `yaml:"window"`     // seconds
	Duration    int `yaml:"duration"`   // seconds
	RetainFor   int `yaml:"retain_for"` // seconds a failure sequence survives the sweep
}

// SessionConfig contains admin session settings.
type SessionConfig struct {
	IdleTimeout int `yaml:"idle_timeout"` // seconds
}

// MovementConfig contains check-out/check-in policy.
type MovementConfig struct {
	MaxOutsideMinutes float64 `yaml:"max_outside_minutes"`
	RetentionDays     int     `yaml:"retention_days"`
}

// SyncConfig contains offline sync settings.
type SyncConfig struct {
	Dedup     bool   `yaml:"dedup"`
	DedupTTL  int    `yaml:"dedup_ttl"` // hours
	MQTTTopic string `yaml:"mqtt_topic"`
}

// HousekeepingConfig contains background job settings.
type HousekeepingConfig struct {
	Interval int `yaml:"interval"` // seconds
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file, if present (never overrides variables already set)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: HOSTELGATE_SECTION_KEY
// For example: HOSTELGATE_DATABASE_PATH, HOSTELGATE_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads HOSTELGATE_ENV_FILE (default ".env") if it exists.
func loadDotEnv() error {
	path := os.Getenv("HOSTELGATE_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// DefaultCredentials are the development credentials every scanner ships with.
// Production deployments must override them.
func DefaultCredentials() map[string]string {
	creds := make(map[string]string)
	for _, tier := range []string{"super", "canteen", "security"} {
		for _, hostel := range []string{"a", "b", "c", "d"} {
			role := tier + "_" + hostel
			creds[role] = role + "_12345"
		}
	}
	creds["admin"] = "admin_12345"
	return creds
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "hostel-001",
			Name:     "Hostel Gate",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			Path:        "./data/hostelgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hostelgate-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Kafka: KafkaConfig{
			Topic:   "hostelgate.offline-sync",
			GroupID: "hostelgate-core",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 480,
			},
			Lockout: LockoutConfig{
				MaxAttempts: 5,
				Window:      900,
				Duration:    900,
				RetainFor:   3600,
			},
			Session: SessionConfig{
				IdleTimeout: 8 * 3600,
			},
			Credentials: DefaultCredentials(),
		},
		Movement: MovementConfig{
			MaxOutsideMinutes: 480,
			RetentionDays:     30,
		},
		Sync: SyncConfig{
			Dedup:     true,
			DedupTTL:  72,
			MQTTTopic: "hostelgate/sync/+",
		},
		Housekeeping: HousekeepingConfig{
			Interval: 3600,
		},
	}
}

// credentialEnvPrefix is the prefix for per-role credential overrides,
// e.g. HOSTELGATE_CREDENTIAL_SUPER_A.
const credentialEnvPrefix = "HOSTELGATE_CREDENTIAL_"

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOSTELGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HOSTELGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("HOSTELGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HOSTELGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// MQTT
	if v := os.Getenv("HOSTELGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOSTELGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOSTELGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HOSTELGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HOSTELGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("HOSTELGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Redis
	if v := os.Getenv("HOSTELGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HOSTELGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Kafka
	if v := os.Getenv("HOSTELGATE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("HOSTELGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, credentialEnvPrefix) || value == "" {
			continue
		}
		role := strings.ToLower(strings.TrimPrefix(key, credentialEnvPrefix))
		if cfg.Security.Credentials == nil {
			cfg.Security.Credentials = make(map[string]string)
		}
		cfg.Security.Credentials[role] = value
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required")
		}
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}

	// Forged identity tokens would let anyone scan students in or out.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HOSTELGATE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.Lockout.MaxAttempts < 1 {
		errs = append(errs, "security.lockout.max_attempts must be at least 1")
	}
	if c.Security.Lockout.Window <= 0 || c.Security.Lockout.Duration <= 0 {
		errs = append(errs, "security.lockout.window and security.lockout.duration must be positive")
	}
	if c.Security.Session.IdleTimeout <= 0 {
		errs = append(errs, "security.session.idle_timeout must be positive")
	}
	if c.Security.Credentials["admin"] == "" {
		errs = append(errs, "security.credentials.admin is required")
	}
	for role, secret := range c.Security.Credentials {
		if secret == "" {
			errs = append(errs, fmt.Sprintf("security.credentials.%s must not be empty", role))
		}
	}

	if c.Movement.MaxOutsideMinutes <= 0 {
		errs = append(errs, "movement.max_outside_minutes must be positive")
	}
	if c.Movement.RetentionDays < 1 {
		errs = append(errs, "movement.retention_days must be at least 1")
	}

	if c.Housekeeping.Interval <= 0 {
		errs = append(errs, "housekeeping.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UsesDefaultCredentials reports whether any configured credential is still
// the shipped development value.
func (c *Config) UsesDefaultCredentials() bool {
	for role, secret := range DefaultCredentials() {
		if c.Security.Credentials[role] == secret {
			return true
		}
	}
	return false
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

// GetTokenTTL returns the identity token lifetime.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}

// GetLockoutWindow returns the trailing window in which failures are counted.
func (c *Config) GetLockoutWindow() time.Duration {
	return time.Duration(c.Security.Lockout.Window) * time.Second
}

// GetLockoutDuration returns how long a lockout lasts once triggered.
func (c *Config) GetLockoutDuration() time.Duration {
	return time.Duration(c.Security.Lockout.Duration) * time.Second
}

// GetAttemptRetention returns how long an idle failure sequence is kept.
func (c *Config) GetAttemptRetention() time.Duration {
	return time.Duration(c.Security.Lockout.RetainFor) * time.Second
}

// GetSessionIdleTimeout returns the admin session idle timeout.
func (c *Config) GetSessionIdleTimeout() time.Duration {
	return time.Duration(c.Security.Session.IdleTimeout) * time.Second
}

// GetRetention returns the movement history retention period.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Movement.RetentionDays) * 24 * time.Hour
}

// GetDedupTTL returns how long an offline event id is remembered.
func (c *Config) GetDedupTTL() time.Duration {
	return time.Duration(c.Sync.DedupTTL) * time.Hour
}

// GetHousekeepingInterval returns the background job interval.
func (c *Config) GetHousekeepingInterval() time.Duration {
	return time.Duration(c.Housekeeping.Interval) * time.Second
}
