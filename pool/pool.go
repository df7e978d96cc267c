// Package pool provides bounded, health-checked pooling of expensive
// backend connections: borrowed handles are reused while healthy, stale and
// broken ones are evicted, and a per-pool maintenance loop keeps the pool
// topped up to its minimum size.
package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/guileen/connpool/logger"
)

// Pool manages a bounded set of reusable connections for one backend. All
// mutable state is guarded by one mutex per pool; independent pools never
// share a lock.
type Pool struct {
	name    string
	factory Factory
	cfg     Config

	mu       sync.Mutex
	idle     []*pooledConn        // FIFO: borrow from the front, return to the back
	active   map[Conn]*pooledConn // borrowed connections keyed by handle identity
	waiters  []chan struct{}      // acquirers blocked on capacity, FIFO
	creating int                  // capacity reserved for in-flight factory calls
	checking int                  // idle entries temporarily out for probing
	closed   bool
	counters Counters

	done chan struct{}
}

// New creates a pool, pre-creates MinSize connections and starts the
// maintenance loop. Factory failures during pre-creation are logged and do
// not fail construction; the maintenance loop retries the top-up.
func New(name string, factory Factory, cfg Config) (*Pool, error) {
	if name == "" {
		return nil, &PoolError{Op: "new", Pool: name, Err: errors.New("pool name is required")}
	}
	if factory == nil {
		return nil, &PoolError{Op: "new", Pool: name, Err: errors.New("factory is required")}
	}
	cfg = cfg.normalized()

	p := &Pool{
		name:    name,
		factory: factory,
		cfg:     cfg,
		active:  make(map[Conn]*pooledConn),
		done:    make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		if err := p.addIdleConn(); err != nil {
			logger.Warn("pool pre-create failed", "pool", name, "error", err)
		}
	}

	go p.maintenance()
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Acquire returns a connection that is healthy and not stale at the moment
// it is handed out, blocking while the pool is at capacity. When ctx carries
// no deadline the pool's AcquireTimeout applies. The handle must be given
// back with Release.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ErrPoolClosed}
		}

		if len(p.idle) > 0 {
			pc := p.idle[0]
			p.idle = p.idle[1:]

			if pc.stale(p.cfg.MaxAge) {
				p.counters.StaleCleaned++
				p.counters.Closed++
				p.mu.Unlock()
				logger.Debug("evicting stale connection", "pool", p.name, "conn_id", pc.id)
				closeConn(p.name, pc.conn)
				continue
			}

			p.counters.HealthChecks++
			p.checking++
			p.mu.Unlock()

			err := pc.conn.Ping(ctx)

			p.mu.Lock()
			p.checking--
			if err != nil {
				pc.healthy = false
				p.counters.Closed++
				p.mu.Unlock()
				logger.Debug("evicting unhealthy connection", "pool", p.name, "conn_id", pc.id, "error", err)
				closeConn(p.name, pc.conn)
				continue
			}
			if p.closed {
				p.counters.Closed++
				p.mu.Unlock()
				closeConn(p.name, pc.conn)
				return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ErrPoolClosed}
			}
			pc.markUsed()
			p.active[pc.conn] = pc
			p.counters.Reused++
			p.mu.Unlock()
			return pc.conn, nil
		}

		if p.totalLocked() < p.cfg.MaxSize {
			p.creating++
			p.mu.Unlock()

			conn, err := p.factory(ctx)

			p.mu.Lock()
			p.creating--
			if err != nil {
				p.counters.Errors++
				// The reserved slot is free again; let a waiter retry.
				p.signalLocked()
				p.mu.Unlock()
				return nil, &CreateError{Pool: p.name, Err: err}
			}
			if p.closed {
				p.counters.Closed++
				p.mu.Unlock()
				closeConn(p.name, conn)
				return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ErrPoolClosed}
			}
			pc := newPooledConn(conn)
			pc.markUsed()
			p.active[conn] = pc
			p.counters.Created++
			p.mu.Unlock()
			logger.Debug("created connection", "pool", p.name, "conn_id", pc.id)
			return conn, nil
		}

		ch := make(chan struct{})
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-p.done:
			if !p.removeWaiter(ch) {
				p.signal()
			}
			return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ErrPoolClosed}
		case <-ctx.Done():
			if !p.removeWaiter(ch) {
				// A release picked us just as the deadline fired; hand
				// the wakeup to the next waiter so it is not lost.
				p.signal()
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.mu.Lock()
				p.counters.Timeouts++
				p.mu.Unlock()
				return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ErrAcquireTimeout}
			}
			return nil, &PoolError{Op: "acquire", Pool: p.name, Err: ctx.Err()}
		}
	}
}

// Release returns a borrowed connection to the pool. It never blocks on I/O
// and never returns an error; handles the pool does not recognize are
// ignored, which makes a double release a no-op. Unhealthy and stale
// connections are closed instead of requeued; replacing them is left to the
// maintenance loop so Release stays fast.
func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	pc, ok := p.active[conn]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, conn)

	switch {
	case p.closed:
		p.counters.Closed++
		p.mu.Unlock()
		closeConn(p.name, conn)
	case !pc.healthy:
		p.counters.Closed++
		p.signalLocked()
		p.mu.Unlock()
		logger.Debug("released connection was unhealthy, closing", "pool", p.name, "conn_id", pc.id)
		closeConn(p.name, conn)
	case pc.stale(p.cfg.MaxAge):
		p.counters.Closed++
		p.counters.StaleCleaned++
		p.signalLocked()
		p.mu.Unlock()
		logger.Debug("released connection was stale, closing", "pool", p.name, "conn_id", pc.id)
		closeConn(p.name, conn)
	default:
		p.idle = append(p.idle, pc)
		p.signalLocked()
		p.mu.Unlock()
	}
}

// MarkUnhealthy flags a borrowed connection so the next Release closes it
// instead of returning it to the idle queue.
func (p *Pool) MarkUnhealthy(conn Conn) {
	p.mu.Lock()
	if pc, ok := p.active[conn]; ok {
		pc.healthy = false
	}
	p.mu.Unlock()
}

// WithConn acquires a connection, runs fn and releases the connection on
// every exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Close shuts the pool down: every idle and borrowed connection is closed,
// the maintenance loop stops, blocked acquirers are woken and subsequent
// Acquire calls fail fast with ErrPoolClosed. Safe to call more than once
// and concurrently with in-flight Acquire/Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	doomed := make([]*pooledConn, 0, len(p.idle)+len(p.active))
	doomed = append(doomed, p.idle...)
	p.idle = nil
	for _, pc := range p.active {
		doomed = append(doomed, pc)
	}
	p.active = make(map[Conn]*pooledConn)
	p.counters.Closed += uint64(len(doomed))

	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	close(p.done)
	for _, ch := range waiters {
		close(ch)
	}
	for _, pc := range doomed {
		closeConn(p.name, pc.conn)
	}
	logger.Info("pool closed", "pool", p.name, "connections_closed", len(doomed))
	return nil
}

// Stats returns a consistent snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Name:          p.name,
		PoolSize:      len(p.idle) + len(p.active),
		IdleCount:     len(p.idle),
		ActiveCount:   len(p.active),
		TotalCapacity: p.cfg.MaxSize,
		MinSize:       p.cfg.MinSize,
		Counters:      p.counters,
	}
	s.UtilizationPercent = float64(s.ActiveCount) / float64(p.cfg.MaxSize) * 100
	return s
}

// addIdleConn creates one connection and pushes it onto the idle queue.
// Capacity is reserved before the factory call so the bound holds without
// keeping the lock across the call.
func (p *Pool) addIdleConn() error {
	p.mu.Lock()
	if p.closed || p.totalLocked() >= p.cfg.MaxSize {
		p.mu.Unlock()
		return nil
	}
	p.creating++
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
	conn, err := p.factory(ctx)
	cancel()

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.counters.Errors++
		p.signalLocked()
		p.mu.Unlock()
		return err
	}
	if p.closed {
		p.counters.Closed++
		p.mu.Unlock()
		closeConn(p.name, conn)
		return ErrPoolClosed
	}
	pc := newPooledConn(conn)
	p.idle = append(p.idle, pc)
	p.counters.Created++
	p.signalLocked()
	p.mu.Unlock()
	logger.Debug("created idle connection", "pool", p.name, "conn_id", pc.id)
	return nil
}

// totalLocked counts every connection the pool is accountable for. Caller
// holds p.mu.
func (p *Pool) totalLocked() int {
	return len(p.idle) + len(p.active) + p.creating + p.checking
}

// signalLocked wakes the longest-blocked acquirer, if any. Caller holds
// p.mu.
func (p *Pool) signalLocked() {
	if len(p.waiters) == 0 {
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	close(ch)
}

func (p *Pool) signal() {
	p.mu.Lock()
	p.signalLocked()
	p.mu.Unlock()
}

// removeWaiter drops ch from the wait queue. It reports false when a signal
// already picked ch, in which case the caller must pass the wakeup on.
func (p *Pool) removeWaiter(ch chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// closeConn closes a raw handle, logging failures instead of propagating
// them.
func closeConn(pool string, conn Conn) {
	if err := conn.Close(); err != nil {
		logger.Warn("closing connection failed", "pool", pool, "error", err)
	}
}
