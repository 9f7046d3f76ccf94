// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix. A .env file, when present, fills in
// variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Grading  GradingConfig
	SRS      SRSConfig
	Session  SessionConfig
	Log      LogConfig
	DecksDir string `validate:"required"`
}

// StoreConfig selects the review store backend.
type StoreConfig struct {
	Driver string `validate:"oneof=sqlite postgres memory"`
	Path   string // SQLite file
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int `validate:"gte=1"`
	MinConns int `validate:"gte=0,ltefield=MaxConns"`
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL
// disables the parsed-deck cache.
type CacheConfig struct {
	URL      string
	TTLHours int `validate:"gte=1"`
}

// GradingConfig holds partial-credit settings for free-text answers.
type GradingConfig struct {
	LongAnswerChars int     `validate:"gte=0"`
	TokenRatio      float64 `validate:"gt=0,lte=1"`
}

// SRSConfig holds scheduler settings.
type SRSConfig struct {
	DefaultEasiness float64 `validate:"gtefield=MinEasiness,ltefield=MaxEasiness"`
	MinEasiness     float64 `validate:"gt=0"`
	MaxEasiness     float64 `validate:"gtefield=MinEasiness"`
	MaxIntervalDays int     `validate:"gte=1"`
}

// SessionConfig holds study session settings.
type SessionConfig struct {
	Limit              int    `validate:"gte=1"`
	Seed               uint64 // 0 picks a random seed
	ProblemMinAttempts int    `validate:"gte=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// Load reads configuration from environment variables with LEARN_ prefix.
// Each file in envFiles must exist; without any, ./.env is read if present.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("loading env files: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Store: StoreConfig{
			Driver: envStr("LEARN_STORE_DRIVER", DriverSQLite),
			Path:   envStr("LEARN_STORE_PATH", "data/recall.db"),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 4),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL:      envStr("LEARN_CACHE_URL", ""),
			TTLHours: envInt("LEARN_CACHE_TTL_HOURS", 168),
		},
		Grading: GradingConfig{
			LongAnswerChars: envInt("LEARN_GRADING_LONG_ANSWER_CHARS", 10),
			TokenRatio:      envFloat("LEARN_GRADING_TOKEN_RATIO", 0.7),
		},
		SRS: SRSConfig{
			DefaultEasiness: envFloat("LEARN_SRS_DEFAULT_EASINESS", 2.5),
			MinEasiness:     envFloat("LEARN_SRS_MIN_EASINESS", 1.3),
			MaxEasiness:     envFloat("LEARN_SRS_MAX_EASINESS", 3.0),
			MaxIntervalDays: envInt("LEARN_SRS_MAX_INTERVAL_DAYS", 36500),
		},
		Session: SessionConfig{
			Limit:              envInt("LEARN_SESSION_LIMIT", 20),
			Seed:               envUint("LEARN_SESSION_SEED", 0),
			ProblemMinAttempts: envInt("LEARN_PROBLEM_MIN_ATTEMPTS", 3),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envStr("LEARN_LOG_LEVEL", "info")),
			Format: strings.ToLower(envStr("LEARN_LOG_FORMAT", "text")),
		},
		DecksDir: envStr("LEARN_DECKS_DIR", "decks"),
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("LEARN_STORE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("LEARN_DATABASE_URL is required for the postgres store")
		}
	}

	return nil
}

// HasCache returns true if the parsed-deck cache is configured.
func (c *Config) HasCache() bool {
	return c.Cache.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
