package config

import (
	"fmt"
	"os"
	"strconv"

	"qms/internal/models"
	"qms/internal/store"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Port                   string
	StateBackend           string
	StatePath              string
	DatabaseURL            string
	StateKey               string
	CatalogFile            string
	RedisURL               string
	RedisChannel           string
	SubscriberBuffer       int
	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int
	LogLevel               string
	LogFormat              string
	Reset                  bool
}

func Load() Config {
	return Config{
		Port:                   readString("PORT", "8080"),
		StateBackend:           readString("STATE_BACKEND", BackendMemory),
		StatePath:              readString("STATE_PATH", "qms-state.json"),
		DatabaseURL:            os.Getenv("DB_DSN"),
		StateKey:               readString("STATE_KEY", store.DefaultStateKey),
		CatalogFile:            os.Getenv("CATALOG_FILE"),
		RedisURL:               os.Getenv("REDIS_URL"),
		RedisChannel:           readString("REDIS_CHANNEL", "qms:state"),
		SubscriberBuffer:       readInt("SUBSCRIBER_BUFFER", 16),
		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 600),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 120),
		LogLevel:               readString("LOG_LEVEL", "info"),
		LogFormat:              readString("LOG_FORMAT", "json"),
	}
}

// BindFlags registers command-line overrides on flags, using the values
// already in c as defaults.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Port, "port", c.Port, "HTTP listen port")
	flags.StringVar(&c.StateBackend, "state-backend", c.StateBackend, "state store: memory, file or postgres")
	flags.StringVar(&c.StatePath, "state-path", c.StatePath, "state file for the file backend")
	flags.StringVar(&c.DatabaseURL, "db-dsn", c.DatabaseURL, "postgres connection string")
	flags.StringVar(&c.StateKey, "state-key", c.StateKey, "namespace key of the state blob")
	flags.StringVar(&c.CatalogFile, "catalog", c.CatalogFile, "YAML seed catalog (default: built-in)")
	flags.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "relay state changes through this Redis server")
	flags.StringVar(&c.RedisChannel, "redis-channel", c.RedisChannel, "Redis channel for state changes")
	flags.IntVar(&c.SubscriberBuffer, "subscriber-buffer", c.SubscriberBuffer, "events buffered per realtime viewer")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	flags.StringVar(&c.LogFormat, "log-format", c.LogFormat, "json or console")
	flags.BoolVar(&c.Reset, "reset", false, "discard all tokens and restore the seed catalog, then exit")
}

func (c Config) Validate() error {
	switch c.StateBackend {
	case BackendMemory:
	case BackendFile:
		if c.StatePath == "" {
			return fmt.Errorf("state path is required for the file backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	if c.StateKey == "" {
		return fmt.Errorf("state key is required")
	}
	return nil
}

// LoadCatalog reads a YAML seed catalog and validates it.
func LoadCatalog(path string) (models.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}
	var catalog models.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return models.Catalog{}, fmt.Errorf("parse catalog file: %w", err)
	}
	for i := range catalog.Services {
		catalog.Services[i].Code = store.NormalizeServiceCode(catalog.Services[i].Code)
	}
	for i := range catalog.Counters {
		if catalog.Counters[i].Status == "" {
			catalog.Counters[i].Status = models.CounterClosed
		}
	}
	catalog = store.LinkOperators(catalog)
	if err := store.ValidateCatalog(catalog); err != nil {
		return models.Catalog{}, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return catalog, nil
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
