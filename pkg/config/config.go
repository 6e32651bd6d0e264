package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "velora"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App    AppConfig
	Engine EngineConfig
	DB     DBConfig
	Redis  RedisConfig
	GCP    GCPConfig
	PubSub PubSubConfig
	Ops    OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VELORA_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"VELORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VELORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// EngineConfig tunes the notification engine's presentation behavior.
type EngineConfig struct {
	MaxVisible       int           `envconfig:"VELORA_ENGINE_MAX_VISIBLE" default:"3"`
	TickInterval     time.Duration `envconfig:"VELORA_ENGINE_TICK_INTERVAL" default:"100ms"`
	ToastDuration    time.Duration `envconfig:"VELORA_ENGINE_TOAST_DURATION" default:"5s"`
	CriticalDuration time.Duration `envconfig:"VELORA_ENGINE_CRITICAL_TOAST_DURATION" default:"3s"`
	DismissThreshold float64       `envconfig:"VELORA_ENGINE_DISMISS_THRESHOLD" default:"120"`
	SeedLimit        int           `envconfig:"VELORA_ENGINE_SEED_LIMIT" default:"100"`

	PersistRetryAttempts uint64        `envconfig:"VELORA_ENGINE_PERSIST_RETRY_ATTEMPTS" default:"5"`
	PersistRetryBase     time.Duration `envconfig:"VELORA_ENGINE_PERSIST_RETRY_BASE" default:"500ms"`

	SourceRetryAttempts uint64        `envconfig:"VELORA_ENGINE_SOURCE_RETRY_ATTEMPTS" default:"8"`
	SourceRetryBase     time.Duration `envconfig:"VELORA_ENGINE_SOURCE_RETRY_BASE" default:"1s"`
	SourceRetryCap      time.Duration `envconfig:"VELORA_ENGINE_SOURCE_RETRY_CAP" default:"1m"`
}

func (e EngineConfig) validate() error {
	if e.MaxVisible <= 0 {
		return fmt.Errorf("engine max visible must be positive, got %d", e.MaxVisible)
	}
	if e.TickInterval <= 0 {
		return fmt.Errorf("engine tick interval must be positive, got %s", e.TickInterval)
	}
	if e.ToastDuration < e.TickInterval || e.CriticalDuration < e.TickInterval {
		return fmt.Errorf("toast durations must be at least one tick interval")
	}
	return nil
}

type DBConfig struct {
	DSN string `envconfig:"VELORA_DB_DSN"`

	MaxOpenConns    int           `envconfig:"VELORA_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"VELORA_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"VELORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VELORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VELORA_REDIS_URL"`
	Address      string        `envconfig:"VELORA_REDIS_ADDR"`
	Password     string        `envconfig:"VELORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"VELORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VELORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VELORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VELORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VELORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VELORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VELORA_GCP_PROJECT_ID"`
}

// PubSubConfig names one subscription per live event source. Empty entries
// are skipped so deployments can run with a subset of sources.
type PubSubConfig struct {
	BookingsSubscription    string `envconfig:"VELORA_PUBSUB_BOOKINGS_SUBSCRIPTION"`
	OrdersSubscription      string `envconfig:"VELORA_PUBSUB_ORDERS_SUBSCRIPTION"`
	PaymentsSubscription    string `envconfig:"VELORA_PUBSUB_PAYMENTS_SUBSCRIPTION"`
	WalletSubscription      string `envconfig:"VELORA_PUBSUB_WALLET_SUBSCRIPTION"`
	ChatSubscription        string `envconfig:"VELORA_PUBSUB_CHAT_SUBSCRIPTION"`
	MarketplaceSubscription string `envconfig:"VELORA_PUBSUB_MARKETPLACE_SUBSCRIPTION"`
}

type OpsConfig struct {
	Port string `envconfig:"VELORA_OPS_PORT" default:"9090"`
}
