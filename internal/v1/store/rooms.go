package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateRoom returns the id of the room named name, creating it if
// absent. The insert relies on the unique constraint on name: on a conflict
// its ON CONFLICT ... DO UPDATE clause returns the existing row's id instead
// of erroring.
func (s *Store) GetOrCreateRoom(ctx context.Context, name string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rooms (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: get or create room %q: %w", name, err)
	}
	return id, nil
}

// roomID resolves a room name to its id within tx, returning pgx.ErrNoRows if
// the room does not exist.
func roomID(ctx context.Context, q queryer, name string) (int, error) {
	var id int
	err := q.QueryRow(ctx, `SELECT id FROM rooms WHERE name = $1`, name).Scan(&id)
	return id, err
}

// GetRoomInfo returns every room's name and message count, sorted by name.
func (s *Store) GetRoomInfo(ctx context.Context) ([]RoomInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name, COUNT(m.id)
		FROM rooms r
		LEFT JOIN messages m ON m.room_id = r.id
		GROUP BY r.name
		ORDER BY r.name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: get room info: %w", err)
	}
	defer rows.Close()

	var out []RoomInfo
	for rows.Next() {
		var ri RoomInfo
		if err := rows.Scan(&ri.Name, &ri.MessageCount); err != nil {
			return nil, fmt.Errorf("store: scan room info: %w", err)
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// DeleteRoom removes all attachments, messages, and the room row itself for
// name, in one transaction.
func (s *Store) DeleteRoom(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return s.clearRoom(ctx, tx, name, true)
	})
}

// WipeRoom removes all attachments and messages for name but keeps the room
// row, so new messages can still land under the same id.
func (s *Store) WipeRoom(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return s.clearRoom(ctx, tx, name, false)
	})
}

func (s *Store) clearRoom(ctx context.Context, tx pgx.Tx, name string, dropRoom bool) error {
	id, err := roomID(ctx, tx, name)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: resolve room %q: %w", name, err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)
	`, id); err != nil {
		return fmt.Errorf("store: delete room attachments: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE room_id = $1`, id); err != nil {
		return fmt.Errorf("store: delete room messages: %w", err)
	}

	if dropRoom {
		if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
			return fmt.Errorf("store: delete room: %w", err)
		}
	}

	return nil
}
