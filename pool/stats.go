package pool

// Counters are monotonically increasing totals, updated under the pool lock
// together with the state transition they describe.
type Counters struct {
	Created      uint64 `json:"created"`
	Reused       uint64 `json:"reused"`
	Closed       uint64 `json:"closed"`
	Errors       uint64 `json:"errors"`
	StaleCleaned uint64 `json:"stale_cleaned"`
	HealthChecks uint64 `json:"health_checks"`
	Timeouts     uint64 `json:"timeouts"`
}

// Stats is a consistent snapshot of one pool, taken under the pool lock.
type Stats struct {
	Name               string   `json:"name"`
	PoolSize           int      `json:"pool_size"`
	IdleCount          int      `json:"idle_count"`
	ActiveCount        int      `json:"active_count"`
	TotalCapacity      int      `json:"total_capacity"`
	MinSize            int      `json:"min_size"`
	UtilizationPercent float64  `json:"utilization_percent"`
	Counters           Counters `json:"counters"`
}
