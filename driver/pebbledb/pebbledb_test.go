package pebbledb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/connpool/pool"
)

func setupTestStore(t *testing.T) *pebble.DB {
	tmpDir, err := os.MkdirTemp("", "pebbledb-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	db, err := Open(filepath.Join(tmpDir, "store"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(tmpDir)
	})

	return db
}

func TestSessionPingAndGet(t *testing.T) {
	db := setupTestStore(t)
	require.NoError(t, db.Set([]byte("greeting"), []byte("hello"), pebble.Sync))

	factory := NewFactory(db)
	conn, err := factory(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Ping(context.Background()))

	session := conn.(*Conn)
	value, err := session.Get([]byte("greeting"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	db := setupTestStore(t)

	conn, err := NewFactory(db)(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Error(t, conn.Ping(context.Background()))
}

func TestPooledSessions(t *testing.T) {
	db := setupTestStore(t)
	require.NoError(t, db.Set([]byte("k"), []byte("v"), pebble.Sync))

	p, err := pool.New("pebble", NewFactory(db), pool.Config{
		MinSize:             1,
		MaxSize:             3,
		MaxAge:              time.Minute,
		HealthCheckInterval: time.Minute,
		AcquireTimeout:      time.Second,
	})
	require.NoError(t, err)
	defer p.Close()

	err = p.WithConn(context.Background(), func(c pool.Conn) error {
		value, err := c.(*Conn).Get([]byte("k"))
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("v"), value)
		return nil
	})
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 0, stats.ActiveCount)
	assert.GreaterOrEqual(t, stats.IdleCount, 1)
}
