// Package store implements the transactional persistence layer: rooms,
// messages, attachments, and the block list, backed by PostgreSQL via pgx.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool and exposes the room/message/attachment/
// block-list operations the hub needs. All multi-statement operations run
// inside a single transaction so the four tables stay referentially
// consistent under concurrent mutation.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store from a pgxpool connecting to databaseURL, pinging once
// to fail fast on a bad connection string.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Check implements health.Checker: "healthy" when the pool answers a ping,
// "unhealthy" otherwise.
func (s *Store) Check(ctx context.Context) string {
	if err := s.pool.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// schema is applied by Migrate at server startup; kept here as the single source
// of truth for the four tables this package reads and writes.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id   serial PRIMARY KEY,
	name text UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         text PRIMARY KEY,
	room_id    int NOT NULL REFERENCES rooms(id),
	timestamp  int8 NOT NULL,
	sender     text NOT NULL,
	content    text,
	public_key text,
	signature  text,
	state      text
);
CREATE INDEX IF NOT EXISTS messages_room_id_idx ON messages(room_id);
CREATE INDEX IF NOT EXISTS messages_timestamp_idx ON messages(timestamp);

CREATE TABLE IF NOT EXISTS attachments (
	id         serial PRIMARY KEY,
	message_id text NOT NULL REFERENCES messages(id),
	name       text NOT NULL,
	type       text NOT NULL,
	size       int NOT NULL,
	data       bytea
);
CREATE INDEX IF NOT EXISTS attachments_message_id_idx ON attachments(message_id);

CREATE TABLE IF NOT EXISTS blocked_keys (
	pub_key text PRIMARY KEY
);
`

// Migrate applies the schema. Idempotent; safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
