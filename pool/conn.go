package pool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conn is the raw connection handle managed by a Pool. Implementations wrap
// a backend-specific resource (a PostgreSQL session, an embedded store
// session, ...) behind a cheap health probe and a close.
type Conn interface {
	// Ping verifies the connection is still usable. It should be cheap.
	Ping(ctx context.Context) error
	// Close releases the underlying resource. The pool calls it at most
	// once per connection.
	Close() error
}

// Factory creates a new raw connection. It must be safe to call
// concurrently: the pool invokes it from multiple acquirers and from the
// maintenance loop.
type Factory func(ctx context.Context) (Conn, error)

// pooledConn wraps a raw connection with lifecycle metadata. It has no
// locking of its own; all fields are mutated while the owning pool holds its
// mutex.
type pooledConn struct {
	id         string
	conn       Conn
	createdAt  time.Time
	lastUsedAt time.Time
	useCount   uint64
	healthy    bool
}

func newPooledConn(conn Conn) *pooledConn {
	now := time.Now()
	return &pooledConn{
		id:         uuid.NewString(),
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
		healthy:    true,
	}
}

// markUsed records a borrow.
func (pc *pooledConn) markUsed() {
	pc.lastUsedAt = time.Now()
	pc.useCount++
}

// stale reports whether the connection has sat unused for longer than
// maxAge. A maxAge of zero marks every connection stale immediately.
func (pc *pooledConn) stale(maxAge time.Duration) bool {
	return time.Since(pc.lastUsedAt) > maxAge
}

// age returns the time since the connection was created.
func (pc *pooledConn) age() time.Duration {
	return time.Since(pc.createdAt)
}
