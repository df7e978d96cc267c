package pool

import (
	"sync"

	"github.com/guileen/connpool/logger"
)

// Manager is a registry of named pools. Construct one at process startup
// and pass it to whatever needs a pool; there is no package-level instance.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewManager creates an empty pool registry.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// GetOrCreate returns the pool registered under name, creating it on first
// use. Concurrent first calls for the same name construct exactly one pool.
func (m *Manager) GetOrCreate(name string, factory Factory, cfg Config) (*Pool, error) {
	m.mu.RLock()
	p, ok := m.pools[name]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[name]; ok {
		return p, nil
	}
	p, err := New(name, factory, cfg)
	if err != nil {
		return nil, err
	}
	m.pools[name] = p
	logger.Info("registered connection pool", "pool", name,
		"min_size", p.cfg.MinSize, "max_size", p.cfg.MaxSize)
	return p, nil
}

// Get returns the pool registered under name.
func (m *Manager) Get(name string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

// AllStats snapshots every registered pool.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	stats := make(map[string]Stats, len(pools))
	for _, p := range pools {
		stats[p.Name()] = p.Stats()
	}
	return stats
}

// CloseAll closes every registered pool and empties the registry. All pools
// are closed even when one fails; the first error is returned.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
