package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn is a fake raw connection for testing.
type mockConn struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
	closes  int
	onClose func()
}

func (c *mockConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("ping on closed connection")
	}
	return c.pingErr
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	c.closes++
	first := !c.closed
	c.closed = true
	cb := c.onClose
	c.mu.Unlock()
	if first && cb != nil {
		cb()
	}
	return nil
}

func (c *mockConn) setPingErr(err error) {
	c.mu.Lock()
	c.pingErr = err
	c.mu.Unlock()
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// mockFactory creates mock connections and tracks how many are open at any
// moment, so tests can check the capacity bound directly.
type mockFactory struct {
	mu      sync.Mutex
	created int
	open    int
	maxOpen int
	failErr error
	conns   []*mockConn
}

func (f *mockFactory) factory(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	if f.failErr != nil {
		err := f.failErr
		f.mu.Unlock()
		return nil, err
	}
	c := &mockConn{}
	c.onClose = func() {
		f.mu.Lock()
		f.open--
		f.mu.Unlock()
	}
	f.created++
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *mockFactory) setFail(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

func (f *mockFactory) snapshot() (created, open, maxOpen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.open, f.maxOpen
}

func (f *mockFactory) conn(i int) *mockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

// quietConfig keeps the maintenance loop out of the way so tests exercise
// acquire/release in isolation.
func quietConfig(minSize, maxSize int) Config {
	return Config{
		MinSize:             minSize,
		MaxSize:             maxSize,
		MaxAge:              time.Minute,
		HealthCheckInterval: time.Hour,
		AcquireTimeout:      time.Second,
	}
}

func newTestPool(t *testing.T, f *mockFactory, cfg Config) *Pool {
	t.Helper()
	p, err := New("test", f.factory, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewValidation(t *testing.T) {
	f := &mockFactory{}

	_, err := New("", f.factory, quietConfig(0, 2))
	assert.Error(t, err)

	_, err = New("test", nil, quietConfig(0, 2))
	assert.Error(t, err)
}

func TestAcquireCreatesUpToCapacity(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 3))

	ctx := context.Background()
	seen := make(map[Conn]bool)
	for i := 0; i < 3; i++ {
		conn, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, seen[conn], "connection handed out twice")
		seen[conn] = true
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.ActiveCount)
	assert.Equal(t, 0, stats.IdleCount)
	assert.Equal(t, uint64(3), stats.Counters.Created)
	assert.InDelta(t, 100.0, stats.UtilizationPercent, 0.01)

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(shortCtx)
	require.Error(t, err)
	assert.True(t, IsAcquireTimeout(err))
	assert.Equal(t, uint64(1), p.Stats().Counters.Timeouts)
}

func TestAcquireReusesReleased(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(conn)

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, conn, again)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Counters.Created)
	assert.Equal(t, uint64(1), stats.Counters.Reused)
}

func TestReleaseWakesBlockedAcquirer(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(2, 3))

	ctx := context.Background()
	conns := make([]Conn, 3)
	seen := make(map[Conn]bool)
	for i := range conns {
		conn, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, seen[conn])
		seen[conn] = true
		conns[i] = conn
	}

	type result struct {
		conn    Conn
		err     error
		elapsed time.Duration
	}
	resultCh := make(chan result, 1)
	go func() {
		start := time.Now()
		conn, err := p.Acquire(context.Background())
		resultCh <- result{conn: conn, err: err, elapsed: time.Since(start)}
	}()

	time.Sleep(50 * time.Millisecond)
	reusedBefore := p.Stats().Counters.Reused
	p.Release(conns[0])

	res := <-resultCh
	require.NoError(t, res.err)
	assert.Same(t, conns[0], res.conn)
	assert.Less(t, res.elapsed, 500*time.Millisecond)
	assert.Equal(t, reusedBefore+1, p.Stats().Counters.Reused)
}

func TestAcquireTimeoutDuration(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 1))

	ctx := context.Background()
	_, err := p.Acquire(ctx)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Acquire(shortCtx)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsAcquireTimeout(err))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 900*time.Millisecond)
}

func TestAcquireHonorsCancellation(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 1))

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsAcquireTimeout(err))
}

func TestFactoryErrorPropagates(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	cause := errors.New("backend unreachable")
	f.setFail(cause)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, IsCreateError(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, uint64(1), p.Stats().Counters.Errors)

	f.setFail(nil)
	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestStaleConnectionsClosedOnRelease(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, Config{
		MinSize:             0,
		MaxSize:             2,
		MaxAge:              0, // every connection is stale immediately
		HealthCheckInterval: time.Hour,
		AcquireTimeout:      time.Second,
	})

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		conn, err := p.Acquire(ctx)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		p.Release(conn)

		stats := p.Stats()
		assert.Equal(t, uint64(i), stats.Counters.Created)
		assert.Equal(t, uint64(i), stats.Counters.StaleCleaned)
		assert.Equal(t, uint64(0), stats.Counters.Reused)
	}

	_, open, _ := f.snapshot()
	assert.Equal(t, 0, open)
}

func TestUnhealthyConnectionNeverHandedOutAgain(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.MarkUnhealthy(conn)
	p.Release(conn)

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, again)
	assert.True(t, conn.(*mockConn).isClosed())
}

func TestAcquireEvictsIdleThatFailsProbe(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(conn)

	conn.(*mockConn).setPingErr(errors.New("broken pipe"))

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, again)
	assert.True(t, conn.(*mockConn).isClosed())

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.Counters.HealthChecks, uint64(1))
	assert.Equal(t, uint64(2), stats.Counters.Created)
}

func TestCloseDrainsEverything(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(2, 3))

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())

	stats := p.Stats()
	assert.Equal(t, 0, stats.IdleCount)
	assert.Equal(t, 0, stats.ActiveCount)

	_, open, _ := f.snapshot()
	assert.Equal(t, 0, open)

	// Releasing after close must not panic or double-close.
	p.Release(conn)
	assert.Equal(t, 1, conn.(*mockConn).closes)

	require.NoError(t, p.Close())
}

func TestAcquireFailsFastWhenClosed(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))
	require.NoError(t, p.Close())

	start := time.Now()
	_, err := p.Acquire(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsPoolClosed(err))
	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestCloseUnblocksWaiter(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 1))

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.True(t, IsPoolClosed(err))
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter was not unblocked by Close")
	}
}

func TestWithConnReleasesOnError(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	cause := errors.New("query failed")
	err := p.WithConn(context.Background(), func(Conn) error {
		return cause
	})
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 0, p.Stats().ActiveCount)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(1, 4))

	const goroutines = 16
	const iterations = 25

	var inUse sync.Map
	var violations atomic.Int32
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				conn, err := p.Acquire(ctx)
				cancel()
				if err != nil {
					continue
				}
				if _, loaded := inUse.LoadOrStore(conn, struct{}{}); loaded {
					violations.Add(1)
				}
				time.Sleep(time.Microsecond)
				inUse.Delete(conn)
				p.Release(conn)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), violations.Load(), "a connection was borrowed twice concurrently")

	_, _, maxOpen := f.snapshot()
	assert.LessOrEqual(t, maxOpen, 4, "pool exceeded its capacity bound")

	stats := p.Stats()
	assert.LessOrEqual(t, stats.PoolSize, 4)
	assert.Equal(t, 0, stats.ActiveCount)
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(conn)
	p.Release(conn)

	stats := p.Stats()
	assert.Equal(t, 1, stats.IdleCount)
	assert.Equal(t, 0, stats.ActiveCount)
}

func TestReleaseUnknownConnIsIgnored(t *testing.T) {
	f := &mockFactory{}
	p := newTestPool(t, f, quietConfig(0, 2))

	p.Release(nil)
	p.Release(&mockConn{})

	stats := p.Stats()
	assert.Equal(t, 0, stats.PoolSize)
}
