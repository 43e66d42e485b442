// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/rent-ledger/billing"
)

// Local store kinds.
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreMemory = "memory"
)

// Remote backend kinds.
const (
	RemoteNone     = "none"
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Port        int
	LogLevel    string
	LogFormat   string
	Local       LocalConfig
	Remote      RemoteConfig
	AMQP        AMQPConfig
	Defaults    billing.Defaults
}

// LocalConfig selects the on-device store.
type LocalConfig struct {
	Kind       string
	SQLitePath string
	BadgerPath string
}

// RemoteConfig selects the backup backend and its resync cadence.
type RemoteConfig struct {
	Backend        string
	URL            string
	APIKey         string
	Table          string
	DatabaseURL    string
	ResyncInterval time.Duration
}

// AMQPConfig enables commit events when URL is set.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// LoadDotEnv loads .env files if present. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "rent-ledger"),
		Port:        getEnvAsInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Local: LocalConfig{
			Kind:       getEnv("LOCAL_STORE", StoreSQLite),
			SQLitePath: getEnv("SQLITE_PATH", "rent-ledger.db"),
			BadgerPath: getEnv("BADGER_PATH", "rent-ledger.badger"),
		},
		Remote: RemoteConfig{
			Backend:        getEnv("REMOTE_BACKEND", RemoteNone),
			URL:            getEnv("REMOTE_URL", ""),
			APIKey:         getEnv("REMOTE_API_KEY", ""),
			Table:          getEnv("REMOTE_TABLE", "landlord_backup"),
			DatabaseURL:    getEnv("DATABASE_URL", ""),
			ResyncInterval: getEnvAsDuration("RESYNC_INTERVAL", time.Minute),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "rent-ledger.events"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "ledger.commit"),
		},
		Defaults: billing.Defaults{
			DefaultRent: billing.Numeric(getEnv("DEFAULT_RENT", "")),
			ElecPrice:   billing.Numeric(getEnv("DEFAULT_ELEC_PRICE", "")),
			WaterPrice:  billing.Numeric(getEnv("DEFAULT_WATER_PRICE", "")),
		},
	}

	switch cfg.Local.Kind {
	case StoreSQLite, StoreBadger, StoreMemory:
	default:
		return nil, fmt.Errorf("LOCAL_STORE must be one of sqlite, badger, memory (got %q)", cfg.Local.Kind)
	}

	switch cfg.Remote.Backend {
	case RemoteNone:
	case RemoteREST:
		if cfg.Remote.URL == "" {
			return nil, fmt.Errorf("REMOTE_URL is required when REMOTE_BACKEND=rest")
		}
	case RemotePostgres:
		if cfg.Remote.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when REMOTE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("REMOTE_BACKEND must be one of none, rest, postgres (got %q)", cfg.Remote.Backend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
