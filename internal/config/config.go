// Package config loads the service configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Source     SourceConfig     `mapstructure:"source"`
	Venue      VenueConfig      `mapstructure:"venue"`
	Validation ValidationConfig `mapstructure:"validation"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
	RefData    RefDataConfig    `mapstructure:"refdata"`
	API        APIConfig        `mapstructure:"api"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// SourceConfig selects and configures the order source.
type SourceConfig struct {
	Type  string            `mapstructure:"type"` // "sql", "redis" or "nats"
	SQL   SQLSourceConfig   `mapstructure:"sql"`
	Redis RedisSourceConfig `mapstructure:"redis"`
	NATS  NATSSourceConfig  `mapstructure:"nats"`
}

// SQLSourceConfig contains the PostgreSQL order source settings.
type SQLSourceConfig struct {
	DSN            string        `mapstructure:"dsn"`
	Table          string        `mapstructure:"table"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	RedeliverAfter time.Duration `mapstructure:"redeliver_after"`
}

// RedisSourceConfig contains the Redis Streams order source settings.
type RedisSourceConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

// NATSSourceConfig contains the JetStream order source settings.
type NATSSourceConfig struct {
	URL     string        `mapstructure:"url"`
	Subject string        `mapstructure:"subject"`
	Durable string        `mapstructure:"durable"`
	AckWait time.Duration `mapstructure:"ack_wait"`
}

// VenueConfig selects and configures the execution venue.
type VenueConfig struct {
	Type    string        `mapstructure:"type"` // "phoenix" or "mock"
	Phoenix PhoenixConfig `mapstructure:"phoenix"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// PhoenixConfig identifies the Phoenix FIX session.
type PhoenixConfig struct {
	Address      string `mapstructure:"address"`
	SenderCompID string `mapstructure:"sender_comp_id"`
	TargetCompID string `mapstructure:"target_comp_id"`
	Account      string `mapstructure:"account"`
}

// BreakerConfig tunes the venue protection layer.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
}

// ValidationConfig sets the pre-trade rule parameters.
type ValidationConfig struct {
	MaxPriceDeviation float64 `mapstructure:"max_price_deviation"`
	MaxPositionValue  float64 `mapstructure:"max_position_value"`
}

// MonitorConfig tunes the order lifecycle monitors.
type MonitorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AlgoPollInterval time.Duration `mapstructure:"algo_poll_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

// DeadLetterConfig selects where rejected orders go.
type DeadLetterConfig struct {
	Type    string `mapstructure:"type"` // "nats" or "log"
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// RefDataConfig points at the symbol reference data file.
type RefDataConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig contains the control API settings.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("OMSFLOW")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// config file not found; defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "omsflow")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("source.type", "sql")
	v.SetDefault("source.sql.table", "pending_orders")
	v.SetDefault("source.sql.poll_interval", "2s")
	v.SetDefault("source.sql.batch_size", 100)
	v.SetDefault("source.sql.redeliver_after", "1m")
	v.SetDefault("source.redis.addr", "localhost:6379")
	v.SetDefault("source.redis.stream", "orders:pending")
	v.SetDefault("source.redis.group", "omsflow")
	v.SetDefault("source.redis.consumer", "oms-1")
	v.SetDefault("source.nats.url", "nats://localhost:4222")
	v.SetDefault("source.nats.subject", "orders.new")
	v.SetDefault("source.nats.durable", "omsflow")
	v.SetDefault("source.nats.ack_wait", "30s")

	v.SetDefault("venue.type", "mock")
	v.SetDefault("venue.breaker.enabled", true)
	v.SetDefault("venue.breaker.max_requests", 1)
	v.SetDefault("venue.breaker.interval", "60s")
	v.SetDefault("venue.breaker.timeout", "30s")
	v.SetDefault("venue.breaker.consecutive_failures", 5)
	v.SetDefault("venue.breaker.requests_per_second", 50)
	v.SetDefault("venue.breaker.burst", 10)

	v.SetDefault("validation.max_price_deviation", 0.05)
	v.SetDefault("validation.max_position_value", 1000000)

	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.algo_poll_interval", "300s")
	v.SetDefault("monitor.max_retries", 3)

	v.SetDefault("dead_letter.type", "log")
	v.SetDefault("dead_letter.url", "nats://localhost:4222")
	v.SetDefault("dead_letter.subject", "orders.deadletter")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate checks cross-field consistency before the service starts.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "sql":
		if c.Source.SQL.DSN == "" {
			return fmt.Errorf("source.sql.dsn is required when source.type is sql")
		}
	case "redis", "nats":
	default:
		return fmt.Errorf("unknown source.type %q", c.Source.Type)
	}

	switch c.Venue.Type {
	case "phoenix":
		if c.Venue.Phoenix.Address == "" {
			return fmt.Errorf("venue.phoenix.address is required when venue.type is phoenix")
		}
		if c.Venue.Phoenix.SenderCompID == "" || c.Venue.Phoenix.TargetCompID == "" {
			return fmt.Errorf("venue.phoenix comp IDs are required when venue.type is phoenix")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown venue.type %q", c.Venue.Type)
	}

	if c.Validation.MaxPriceDeviation <= 0 {
		return fmt.Errorf("validation.max_price_deviation must be positive")
	}
	if c.Validation.MaxPositionValue <= 0 {
		return fmt.Errorf("validation.max_position_value must be positive")
	}
	if c.Monitor.MaxRetries <= 0 {
		return fmt.Errorf("monitor.max_retries must be positive")
	}

	switch c.DeadLetter.Type {
	case "nats", "log":
	default:
		return fmt.Errorf("unknown dead_letter.type %q", c.DeadLetter.Type)
	}
	return nil
}
