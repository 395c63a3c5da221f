package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the whole application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Import   ImportConfig   `mapstructure:"import"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// DatabaseConfig PostgreSQL settings
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

// DSN builds the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis settings. An empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT settings
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ImportConfig controls the schedule import pipeline.
type ImportConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	Timezone         string        `mapstructure:"timezone"`
	DefaultDirection string        `mapstructure:"default_direction"`
	MaxReportErrors  int           `mapstructure:"max_report_errors"`
	CreateMissing    bool          `mapstructure:"create_missing"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// Location loads the configured import timezone.
func (c *ImportConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ExchangeConfig bounds the shift exchange transaction.
type ExchangeConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// RateLimit proposals per identity per RateWindow; 0 disables. Needs Redis.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

var knownDirections = map[string]bool{"calls": true, "tickets": true, "chats": true}

// Load reads configuration from file and environment.
// Precedence: environment > config file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── defaults ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "wfm")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Europe/Kyiv")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("import.batch_size", 5000)
	v.SetDefault("import.timezone", "Europe/Kyiv")
	v.SetDefault("import.default_direction", "calls")
	v.SetDefault("import.max_report_errors", 200)
	v.SetDefault("import.create_missing", true)
	v.SetDefault("import.lock_ttl", "30m")

	v.SetDefault("exchange.timeout", "3s")
	v.SetDefault("exchange.lock_timeout", "2s")
	v.SetDefault("exchange.rate_limit", 30)
	v.SetDefault("exchange.rate_window", "1m")

	// ── config file ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── environment ──
	v.SetEnvPrefix("WFM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the application cannot run without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret must not be empty")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be within 1-65535")
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("config: import.batch_size must be positive")
	}
	if !knownDirections[c.Import.DefaultDirection] {
		return fmt.Errorf("config: import.default_direction %q is not a known direction", c.Import.DefaultDirection)
	}
	if _, err := c.Import.Location(); err != nil {
		return fmt.Errorf("config: import.timezone: %w", err)
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("config: exchange.timeout must be positive")
	}
	return nil
}
