package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/flexprice/entitlements/internal/validator"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment" validate:"required"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging" validate:"required"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Locks      LocksConfig      `mapstructure:"locks" validate:"required"`
	Ledger     LedgerConfig     `mapstructure:"ledger" validate:"required"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Events     EventsConfig     `mapstructure:"events"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Reset      ResetConfig      `mapstructure:"reset"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address           string        `mapstructure:"address" validate:"required"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

type LoggingConfig struct {
	Level          types.LogLevel `mapstructure:"level" validate:"required"`
	FluentdEnabled bool           `mapstructure:"fluentd_enabled"`
	FluentdHost    string         `mapstructure:"fluentd_host"`
	FluentdPort    int            `mapstructure:"fluentd_port"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UseTLS   bool          `mapstructure:"use_tls"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
}

// LockBackend selects the store behind the per-feature try-lock.
type LockBackend string

const (
	LockBackendMemory   LockBackend = "memory"
	LockBackendRedis    LockBackend = "redis"
	LockBackendPostgres LockBackend = "postgres"
)

type LocksConfig struct {
	Backend LockBackend   `mapstructure:"backend" validate:"required,oneof=memory redis postgres"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LedgerConfig holds the defaults used when a tenant has no ledger_config setting.
type LedgerConfig struct {
	DeductionOrder         types.DeductionOrder  `mapstructure:"deduction_order" validate:"required"`
	DefaultOverageBehavior types.OverageBehavior `mapstructure:"default_overage_behavior" validate:"required"`
	BlockUsageLimit        bool                  `mapstructure:"block_usage_limit"`
	// Store selects the ledger persistence: memory or postgres.
	Store string `mapstructure:"store" validate:"required,oneof=memory postgres"`
}

func (c LedgerConfig) Defaults() types.LedgerConfig {
	return types.LedgerConfig{
		DeductionOrder:         c.DeductionOrder,
		DefaultOverageBehavior: c.DefaultOverageBehavior,
		BlockUsageLimit:        c.BlockUsageLimit,
	}
}

type BillingConfig struct {
	// Provider is "none" or "stripe".
	Provider        string          `mapstructure:"provider"`
	StripeSecretKey string          `mapstructure:"stripe_secret_key"`
	Currency        string          `mapstructure:"currency"`
	MinimumAmount   decimal.Decimal `mapstructure:"minimum_amount"`
}

type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

type EventsConfig struct {
	// Publisher is "gochannel" or "kafka".
	Publisher string `mapstructure:"publisher"`
	Topic     string `mapstructure:"topic"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type ResetConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  uint64        `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	// Interval is how often worker mode runs the reset job.
	Interval time.Duration `mapstructure:"interval"`
}

// NewConfig loads config.yaml (if present) and ENTITLEMENTS_* environment
// variables on top of the defaults.
func NewConfig() (*Configuration, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENTITLEMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Configuration) Validate() error {
	if err := validator.ValidateRequest(c); err != nil {
		return err
	}
	if err := c.Ledger.DeductionOrder.Validate(); err != nil {
		return err
	}
	return c.Ledger.DefaultOverageBehavior.Validate()
}

// GetDefaultConfig returns a configuration that needs no external services.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)

	var cfg Configuration
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.rate_limit_per_sec", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)

	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("logging.fluentd_enabled", false)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "entitlements")
	v.SetDefault("postgres.dbname", "entitlements")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "inmemory")

	v.SetDefault("locks.backend", string(LockBackendMemory))
	v.SetDefault("locks.ttl", 30*time.Second)

	v.SetDefault("ledger.deduction_order", string(types.DeductionOrderNormal))
	v.SetDefault("ledger.default_overage_behavior", string(types.OverageBehaviorCap))
	v.SetDefault("ledger.block_usage_limit", true)
	v.SetDefault("ledger.store", "memory")

	v.SetDefault("billing.provider", "none")
	v.SetDefault("billing.currency", "usd")
	v.SetDefault("billing.minimum_amount", "0")

	v.SetDefault("kafka.client_id", "entitlements")
	v.SetDefault("events.publisher", "gochannel")
	v.SetDefault("events.topic", "balance.updated")

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("reset.batch_size", 500)
	v.SetDefault("reset.concurrency", 8)
	v.SetDefault("reset.max_retries", 3)
	v.SetDefault("reset.retry_delay", 200*time.Millisecond)
	v.SetDefault("reset.interval", time.Minute)
}
