package pool

import "time"

// Config defines per-pool limits and timing. All values are explicit; the
// pool never consults the environment.
type Config struct {
	// MinSize is the number of connections the maintenance loop keeps the
	// pool topped up to.
	MinSize int

	// MaxSize bounds idle plus borrowed connections.
	MaxSize int

	// MaxAge is how long a connection may sit unused before it is treated
	// as stale and evicted. Zero evicts on every release.
	MaxAge time.Duration

	// HealthCheckInterval is the period of the maintenance loop.
	HealthCheckInterval time.Duration

	// AcquireTimeout is the default Acquire deadline, applied when the
	// caller's context carries none.
	AcquireTimeout time.Duration
}

// DefaultConfig returns a configuration suitable for most backends.
func DefaultConfig() Config {
	return Config{
		MinSize:             2,
		MaxSize:             10,
		MaxAge:              30 * time.Minute,
		HealthCheckInterval: time.Minute,
		AcquireTimeout:      30 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MinSize > c.MaxSize {
		c.MinSize = c.MaxSize
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	return c
}
