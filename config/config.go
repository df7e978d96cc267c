// Package config loads server wiring configuration from the environment.
// The pool core itself never reads the environment; it receives explicit
// pool.Config values built here.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/guileen/connpool/pool"
)

// Config holds the poolserver configuration
type Config struct {
	// Addr is the HTTP listen address
	Addr string

	// PebblePath is the directory of the embedded store backing the
	// "pebble" pool
	PebblePath string

	// PostgresDSN enables the "postgres" pool when non-empty
	PostgresDSN string

	// Pool holds the defaults applied to every pool the server registers
	Pool PoolSettings
}

// PoolSettings mirrors pool.Config for env-driven wiring
type PoolSettings struct {
	MinSize             int
	MaxSize             int
	MaxAge              time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
}

// PoolConfig converts the settings into a pool.Config
func (s PoolSettings) PoolConfig() pool.Config {
	return pool.Config{
		MinSize:             s.MinSize,
		MaxSize:             s.MaxSize,
		MaxAge:              s.MaxAge,
		HealthCheckInterval: s.HealthCheckInterval,
		AcquireTimeout:      s.AcquireTimeout,
	}
}

// Default returns the default server configuration
func Default() Config {
	return Config{
		Addr:       ":8080",
		PebblePath: "/tmp/connpool-pebble",
		Pool: PoolSettings{
			MinSize:             2,
			MaxSize:             10,
			MaxAge:              30 * time.Minute,
			HealthCheckInterval: time.Minute,
			AcquireTimeout:      30 * time.Second,
		},
	}
}

// Load reads configuration from environment variables, falling back to the
// defaults for anything unset or unparsable
func Load() Config {
	config := Default()

	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		config.Addr = addr
	}

	if path := os.Getenv("POOL_PEBBLE_PATH"); path != "" {
		config.PebblePath = path
	}

	config.PostgresDSN = os.Getenv("POOL_POSTGRES_DSN")

	if minStr := os.Getenv("POOL_MIN_SIZE"); minStr != "" {
		if n, err := strconv.Atoi(minStr); err == nil && n >= 0 {
			config.Pool.MinSize = n
		}
	}

	if maxStr := os.Getenv("POOL_MAX_SIZE"); maxStr != "" {
		if n, err := strconv.Atoi(maxStr); err == nil && n > 0 {
			config.Pool.MaxSize = n
		}
	}

	if ageStr := os.Getenv("POOL_MAX_AGE_SECONDS"); ageStr != "" {
		if secs, err := strconv.ParseFloat(ageStr, 64); err == nil && secs >= 0 {
			config.Pool.MaxAge = time.Duration(secs * float64(time.Second))
		}
	}

	if intervalStr := os.Getenv("POOL_HEALTH_CHECK_INTERVAL_SECONDS"); intervalStr != "" {
		if secs, err := strconv.ParseFloat(intervalStr, 64); err == nil && secs > 0 {
			config.Pool.HealthCheckInterval = time.Duration(secs * float64(time.Second))
		}
	}

	if timeoutStr := os.Getenv("POOL_ACQUIRE_TIMEOUT_SECONDS"); timeoutStr != "" {
		if secs, err := strconv.ParseFloat(timeoutStr, 64); err == nil && secs > 0 {
			config.Pool.AcquireTimeout = time.Duration(secs * float64(time.Second))
		}
	}

	return config
}
