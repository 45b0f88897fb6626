package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/time/rate"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "NOUGHTS_"

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageBolt   = "bolt"
)

// Config is the server configuration, read from NOUGHTS_* environment variables
type Config struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"noughts.db"`
	BoltPath    string `env:"BOLT_PATH" envDefault:"noughts.bolt"`

	JWTSecret       string        `env:"JWT_SECRET"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"24h"`
	SecureCookies   bool          `env:"SECURE_COOKIES"`

	ChallengeTTL  time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	// ChallengeRateInterval is the sustained gap between challenges one
	// user may send; 0 disables rate limiting
	ChallengeRateInterval time.Duration `env:"CHALLENGE_RATE_INTERVAL" envDefault:"2s"`
	ChallengeBurst        int           `env:"CHALLENGE_BURST" envDefault:"5"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses the configuration from the environment and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the combination of settings is usable
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite, StorageBolt:
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%sREDIS_URL required when %sSTORAGE_TYPE=redis", EnvPrefix, EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid %sSTORAGE_TYPE %q: must be memory, redis, sqlite or bolt", EnvPrefix, c.StorageType)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %sPORT %d", EnvPrefix, c.Port)
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("%sCHALLENGE_TTL must be positive", EnvPrefix)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%sSWEEP_INTERVAL must be positive", EnvPrefix)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid %sLOG_LEVEL %q: %w", EnvPrefix, c.LogLevel, err)
	}
	return level, nil
}

// ChallengeRate converts ChallengeRateInterval to a limiter rate
func (c Config) ChallengeRate() rate.Limit {
	if c.ChallengeRateInterval <= 0 {
		return 0
	}
	return rate.Every(c.ChallengeRateInterval)
}
