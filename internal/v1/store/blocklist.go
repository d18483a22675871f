package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BlockUser adds key to the block list; idempotent.
func (s *Store) BlockUser(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_keys (pub_key) VALUES ($1) ON CONFLICT DO NOTHING
	`, key)
	if err != nil {
		return fmt.Errorf("store: block user %q: %w", key, err)
	}
	return nil
}

// IsBlocked reports whether key is on the block list.
func (s *Store) IsBlocked(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM blocked_keys WHERE pub_key = $1)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check blocked %q: %w", key, err)
	}
	return exists, nil
}

// DeleteUserContent removes every message (and its attachments) signed by
// key, across all rooms. Idempotent.
func (s *Store) DeleteUserContent(ctx context.Context, key string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE public_key = $1)
		`, key); err != nil {
			return fmt.Errorf("store: delete attachments for key: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE public_key = $1`, key); err != nil {
			return fmt.Errorf("store: delete messages for key: %w", err)
		}
		return nil
	})
}
