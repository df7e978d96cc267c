package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned by Acquire after Close has been called.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrAcquireTimeout is returned when no connection became available
	// before the acquire deadline.
	ErrAcquireTimeout = errors.New("timed out waiting for a connection")
)

// PoolError wraps a failed pool operation with the operation name and the
// pool it belongs to.
type PoolError struct {
	Op   string
	Pool string
	Err  error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("pool %s: %s: %v", e.Pool, e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// CreateError reports a factory failure. The cause is preserved so the
// caller can decide whether it is transient.
type CreateError struct {
	Pool string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("pool %s: create connection: %v", e.Pool, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// IsPoolClosed checks whether err means the pool has been shut down.
func IsPoolClosed(err error) bool {
	return errors.Is(err, ErrPoolClosed)
}

// IsAcquireTimeout checks whether err is an acquire deadline expiry.
func IsAcquireTimeout(err error) bool {
	return errors.Is(err, ErrAcquireTimeout)
}

// IsCreateError checks whether err originated in the connection factory.
func IsCreateError(err error) bool {
	var target *CreateError
	return errors.As(err, &target)
}
