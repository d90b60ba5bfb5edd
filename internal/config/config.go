package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DriverPostgres persists balances in PostgreSQL through pgx.
	DriverPostgres = "postgres"
	// DriverSQLite persists balances in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverMemory keeps balances in process memory only.
	DriverMemory = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"Economy"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"economy.db"`
	RedisURL    string `env:"REDIS_URL"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"economy.events"`

	WalletKinds          []string      `env:"WALLET_KINDS" envDefault:"credits" envSeparator:","`
	AllowNegativeBalance bool          `env:"ALLOW_NEGATIVE_BALANCE" envDefault:"false"`
	SaveOnCheckpoint     bool          `env:"SAVE_ON_CHECKPOINT" envDefault:"false"`
	SaveQueueInterval    time.Duration `env:"SAVE_QUEUE_INTERVAL" envDefault:"0s"`
	FlushTimeout         time.Duration `env:"FLUSH_TIMEOUT" envDefault:"5s"`
	FinalFlushTimeout    time.Duration `env:"FINAL_FLUSH_TIMEOUT" envDefault:"5s"`

	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.WalletKinds = normalizeKinds(cfg.WalletKinds)

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return Config{}, fmt.Errorf("SQLITE_PATH must be set when STORE_DRIVER=%s", DriverSQLite)
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if len(cfg.WalletKinds) == 0 {
		return Config{}, fmt.Errorf("WALLET_KINDS must list at least one wallet")
	}
	if cfg.SaveQueueInterval < 0 {
		return Config{}, fmt.Errorf("invalid SAVE_QUEUE_INTERVAL: %s", cfg.SaveQueueInterval)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func normalizeKinds(kinds []string) []string {
	out := make([]string, 0, len(kinds))
	seen := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
