// Package postgres adapts PostgreSQL sessions to the pool.Conn boundary.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/guileen/connpool/pool"
)

const closeTimeout = 5 * time.Second

// Conn is a pooled PostgreSQL session.
type Conn struct {
	conn *pgx.Conn
}

// Ping runs the pgx liveness round trip.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close terminates the session.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}

// Raw exposes the underlying pgx connection for query execution.
func (c *Conn) Raw() *pgx.Conn {
	return c.conn
}

// NewFactory returns a pool factory dialing connString. The string is
// parsed once up front; dialing happens per connection with the caller's
// context.
func NewFactory(connString string) (pool.Factory, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (pool.Conn, error) {
		c, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Conn{conn: c}, nil
	}, nil
}
