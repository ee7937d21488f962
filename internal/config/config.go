// Package config loads Truly settings from an optional YAML file overlaid
// with TRULY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mail     MailConfig     `mapstructure:"mail"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings.
// Supports SQLite, PostgreSQL and MongoDB backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "sqlite", "postgres" or "mongo".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF

	// MongoDB settings (used when Driver is "mongo")
	Mongo MongoConfig `mapstructure:"mongo"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
// When disabled, sessions and sign-up locks are kept in process memory.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds authentication and session settings.
type AuthConfig struct {
	// SessionSecret signs session tokens (HS256). Must be at least 32 characters.
	SessionSecret string `mapstructure:"session_secret"`

	// SessionTTL is how long a session token stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// VerifyCodeTTL is how long an email verification code stays valid.
	VerifyCodeTTL time.Duration `mapstructure:"verify_code_ttl"`

	// BcryptCost is the work factor used for password hashes.
	BcryptCost int `mapstructure:"bcrypt_cost"`

	// CookieSecure marks the session cookie as HTTPS-only.
	CookieSecure bool `mapstructure:"cookie_secure"`

	// SignUpLockTTL bounds how long a sign-up may hold the per-email lock.
	SignUpLockTTL time.Duration `mapstructure:"signup_lock_ttl"`
}

// MailConfig holds verification email delivery settings.
type MailConfig struct {
	// Driver is "log" (write codes to the log) or "smtp".
	Driver   string `mapstructure:"driver"`
	From     string `mapstructure:"from"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for the metrics HTTP server.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// envPrefix prefixes environment overrides, e.g. TRULY_DATABASE_DRIVER.
const envPrefix = "TRULY"

// Load reads configuration from configPath, or from config.yaml in the usual
// locations when configPath is empty, then applies TRULY_* environment
// overrides. A missing config file is not an error. Every section is validated.
func Load(configPath string) (*Config, error) {
	return load(configPath, (*Config).Validate)
}

// LoadForStore is Load for offline tools that only open the store.
// Only the database and logging sections are validated.
func LoadForStore(configPath string) (*Config, error) {
	return load(configPath, (*Config).ValidateStore)
}

func load(configPath string, validate func(*Config) error) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/truly")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Mail.Driver = strings.ToLower(cfg.Mail.Driver)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"server.host":             "0.0.0.0",
		"server.port":             3000,
		"server.read_timeout":     15 * time.Second,
		"server.write_timeout":    15 * time.Second,
		"server.idle_timeout":     60 * time.Second,
		"server.shutdown_timeout": 30 * time.Second,
		"server.max_body_size":    64 * 1024,

		"database.driver":             DriverSQLite,
		"database.host":               "localhost",
		"database.port":               5432,
		"database.user":               "truly",
		"database.database":           "truly",
		"database.ssl_mode":           "prefer",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,

		"database.path":             "./data/truly.db",
		"database.journal_mode":     "WAL",
		"database.busy_timeout":     5000,
		"database.cache_size":       -2000,
		"database.synchronous_mode": "NORMAL",

		"database.mongo.uri":             "mongodb://localhost:27017",
		"database.mongo.database":        "truly",
		"database.mongo.connect_timeout": 10 * time.Second,
		"database.mongo.max_pool_size":   100,

		"redis.enabled":      false,
		"redis.host":         "localhost",
		"redis.port":         6379,
		"redis.db":           0,
		"redis.pool_size":    10,
		"redis.dial_timeout": 5 * time.Second,

		"auth.session_ttl":     30 * 24 * time.Hour,
		"auth.verify_code_ttl": time.Hour,
		"auth.bcrypt_cost":     10,
		"auth.cookie_secure":   false,
		"auth.signup_lock_ttl": 10 * time.Second,

		"mail.driver": "log",
		"mail.from":   "Truly <no-reply@truly.local>",
		"mail.host":   "localhost",
		"mail.port":   587,

		"logging.level":       "info",
		"logging.format":      "json",
		"logging.output":      "stdout",
		"logging.time_format": time.RFC3339,

		"metrics.enabled": true,
		"metrics.port":    9091,
		"metrics.path":    "/metrics",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// Secrets have no default; registering the keys lets Unmarshal see their env overrides.
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("database.password", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be between 1 and 65535"))
	}
	errs = append(errs, c.Database.validate()...)
	errs = append(errs, c.Auth.validate()...)
	errs = append(errs, c.Mail.validate()...)
	errs = append(errs, c.Logging.validate()...)
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs = append(errs, errors.New("metrics.port must be between 1 and 65535"))
	}
	return errors.Join(errs...)
}

// ValidateStore reports invalid database and logging settings.
func (c *Config) ValidateStore() error {
	errs := c.Database.validate()
	errs = append(errs, c.Logging.validate()...)
	return errors.Join(errs...)
}

func (c LoggingConfig) validate() []error {
	if _, ok := logLevels[strings.ToLower(c.Level)]; !ok {
		return []error{errors.New("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")}
	}
	return nil
}

var logLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {}, "fatal": {}, "panic": {},
}

func (c DatabaseConfig) validate() []error {
	var errs []error
	need := func(value, key string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required for %s driver", key, c.Driver))
		}
	}

	switch c.Driver {
	case DriverSQLite:
		need(c.Path, "database.path")
	case DriverPostgres:
		need(c.Host, "database.host")
		need(c.User, "database.user")
		need(c.Database, "database.database")
	case DriverMongo:
		need(c.Mongo.URI, "database.mongo.uri")
		need(c.Mongo.Database, "database.mongo.database")
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q, %q or %q", DriverSQLite, DriverPostgres, DriverMongo))
	}
	return errs
}

// minSecretLength matches the 256-bit key size of HS256.
const minSecretLength = 32

func (c AuthConfig) validate() []error {
	var errs []error
	if len(c.SessionSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.session_secret must be at least %d characters", minSecretLength))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if c.VerifyCodeTTL <= 0 {
		errs = append(errs, errors.New("auth.verify_code_ttl must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errs
}

func (c MailConfig) validate() []error {
	switch c.Driver {
	case "log":
		return nil
	case "smtp":
		if c.Host == "" || c.From == "" {
			return []error{errors.New("mail.host and mail.from are required for smtp driver")}
		}
		return nil
	default:
		return []error{errors.New("mail.driver must be 'log' or 'smtp'")}
	}
}
