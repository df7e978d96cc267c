// Package pebbledb adapts sessions over an embedded Pebble store to the
// pool.Conn boundary. One process-wide *pebble.DB backs any number of
// pooled sessions; each session reads through its own snapshot.
package pebbledb

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/guileen/connpool/pool"
)

var probeKey = []byte("!connpool/probe")

// Open opens (or creates) the store at path.
func Open(path string) (*pebble.DB, error) {
	return pebble.Open(path, &pebble.Options{})
}

// Conn is a snapshot-backed session over a shared store.
type Conn struct {
	db     *pebble.DB
	snap   *pebble.Snapshot
	closed atomic.Bool
}

// Ping reads the probe key through the snapshot; a missing key still proves
// the store answers.
func (c *Conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return pebble.ErrClosed
	}
	_, closer, err := c.snap.Get(probeKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

// Close releases the session's snapshot. The shared store stays open.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.snap.Close()
}

// Get reads a key at the session's snapshot.
func (c *Conn) Get(key []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, pebble.ErrClosed
	}
	value, closer, err := c.snap.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, closer.Close()
}

// NewFactory returns a pool factory minting sessions over db.
func NewFactory(db *pebble.DB) pool.Factory {
	return func(ctx context.Context) (pool.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Conn{db: db, snap: db.NewSnapshot()}, nil
	}
}
