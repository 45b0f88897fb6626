package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// ResolvedChallengeTTL is how long declined/expired challenges are kept
	// (0 keeps them forever). Accepted challenges are never expired.
	ResolvedChallengeTTL time.Duration

	// MaxTxRetries bounds optimistic transaction retries on WATCH failures
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "redis://localhost:6379",
		PoolSize:             10,
		MinIdleConns:         2,
		ResolvedChallengeTTL: 30 * 24 * time.Hour,
		MaxTxRetries:         10,
	}
}
