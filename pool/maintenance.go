package pool

import (
	"context"
	"time"

	"github.com/guileen/connpool/logger"
)

// probeTimeout bounds a single background health probe.
const probeTimeout = 5 * time.Second

// maintenance periodically evicts stale idle connections, probes the
// remainder and tops the pool back up to MinSize. It exits when Close fires.
func (p *Pool) maintenance() {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.evictStale()
			p.probeIdle()
			p.topUp()
		}
	}
}

// evictStale closes idle connections whose idle age exceeds MaxAge. The
// lock is held only for the check-and-remove step, never across Close.
func (p *Pool) evictStale() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var doomed []*pooledConn
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if pc.stale(p.cfg.MaxAge) {
			doomed = append(doomed, pc)
		} else {
			kept = append(kept, pc)
		}
	}
	p.idle = kept
	p.counters.StaleCleaned += uint64(len(doomed))
	p.counters.Closed += uint64(len(doomed))
	for range doomed {
		p.signalLocked()
	}
	p.mu.Unlock()

	for _, pc := range doomed {
		logger.Debug("evicted stale connection", "pool", p.name, "conn_id", pc.id,
			"idle_for", time.Since(pc.lastUsedAt).String())
		closeConn(p.name, pc.conn)
	}
}

// probeIdle health-checks idle connections one at a time, never holding the
// lock across a probe. Entries that fail are closed; healthy ones return to
// the back of the idle queue.
func (p *Pool) probeIdle() {
	p.mu.Lock()
	n := len(p.idle)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.closed || len(p.idle) == 0 {
			p.mu.Unlock()
			return
		}
		pc := p.idle[0]
		p.idle = p.idle[1:]
		p.checking++
		p.counters.HealthChecks++
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := pc.conn.Ping(ctx)
		cancel()

		p.mu.Lock()
		p.checking--
		if p.closed {
			p.counters.Closed++
			p.mu.Unlock()
			closeConn(p.name, pc.conn)
			return
		}
		if err != nil {
			pc.healthy = false
			p.counters.Closed++
			p.signalLocked()
			p.mu.Unlock()
			logger.Warn("health check failed, evicting connection", "pool", p.name,
				"conn_id", pc.id, "error", err)
			closeConn(p.name, pc.conn)
			continue
		}
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}
}

// topUp creates connections until the pool holds MinSize again. A factory
// failure stops this round; the next tick retries.
func (p *Pool) topUp() {
	for {
		p.mu.Lock()
		if p.closed || p.totalLocked() >= p.cfg.MinSize {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if err := p.addIdleConn(); err != nil {
			logger.Warn("pool top-up failed", "pool", p.name, "error", err)
			return
		}
	}
}
