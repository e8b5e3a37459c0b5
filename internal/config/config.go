// Package config provides unified configuration loading for the card engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the card engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Generation    GenerationConfig    `yaml:"generation"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings for deck reads.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ExtractionConfig holds document extraction settings.
type ExtractionConfig struct {
	MaxDocumentBytes int64 `yaml:"max_document_bytes"`
	MaxSegmentChars  int   `yaml:"max_segment_chars"`
}

// GenerationConfig holds card generation settings.
type GenerationConfig struct {
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxCardsPerJob     int           `yaml:"max_cards_per_job"`
	MaxCardsPerSegment int           `yaml:"max_cards_per_segment"`
	SegmentRetries     int           `yaml:"segment_retries"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0, // SSE streams are long-lived; no write deadline
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/card-engine.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Extraction: ExtractionConfig{
			MaxDocumentBytes: 50 << 20,
			MaxSegmentChars:  2000,
		},
		Generation: GenerationConfig{
			Model:              "x-ai/grok-4.1-fast:free",
			RequestTimeout:     60 * time.Second,
			MaxCardsPerJob:     90,
			MaxCardsPerSegment: 6,
			SegmentRetries:     0,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "card-engine",
		},
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache driver: %s", c.Cache.Driver)
	}
	if c.Extraction.MaxDocumentBytes <= 0 {
		return fmt.Errorf("max_document_bytes must be positive")
	}
	if c.Extraction.MaxSegmentChars < 200 {
		return fmt.Errorf("max_segment_chars must be at least 200")
	}
	if c.Generation.MaxCardsPerJob <= 0 || c.Generation.MaxCardsPerJob > 500 {
		return fmt.Errorf("max_cards_per_job out of range: %d", c.Generation.MaxCardsPerJob)
	}
	if c.Generation.MaxCardsPerSegment <= 0 {
		return fmt.Errorf("max_cards_per_segment must be positive")
	}
	if c.Generation.SegmentRetries < 0 {
		return fmt.Errorf("segment_retries must not be negative")
	}
	return nil
}

// applyEnvOverrides overlays CARD_ENGINE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARD_ENGINE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CARD_ENGINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CARD_ENGINE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CARD_ENGINE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLite.Path = v
	}
	if v := os.Getenv("CARD_ENGINE_POSTGRES_DSN"); v != "" {
		cfg.Database.Postgres.DSN = v
	}
	if v := os.Getenv("CARD_ENGINE_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("CARD_ENGINE_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CARD_ENGINE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("CARD_ENGINE_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("CARD_ENGINE_MAX_CARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.MaxCardsPerJob = n
		}
	}
	if v := os.Getenv("CARD_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("CARD_ENGINE_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
