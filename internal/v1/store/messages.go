package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/roomfabric/hub/internal/v1/wire"
)

// ErrUnauthorized is returned by DeleteMessage when the requester is neither
// the message's original signer nor the configured admin key.
var ErrUnauthorized = errors.New("store: requester not authorized to delete message")

// PersistMessage inserts msg and its attachments into roomId in one
// transaction. A duplicate msg.ID is a silent no-op: the pre-existing row
// wins. Before insert, state is normalized to SAVED.
func (s *Store) PersistMessage(ctx context.Context, roomID int, msg wire.ChatMessage) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return insertMessage(ctx, tx, roomID, msg)
	})
}

func insertMessage(ctx context.Context, tx pgx.Tx, roomID int, msg wire.ChatMessage) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (id, room_id, timestamp, sender, content, public_key, signature, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, roomID, msg.Timestamp, msg.Sender, msg.Content, msg.PublicKey, msg.Signature, wire.StateSaved)
	if err != nil {
		return fmt.Errorf("store: insert message %q: %w", msg.ID, err)
	}

	if tag.RowsAffected() == 0 {
		// pre-existing row wins; attachments were already written with it.
		return nil
	}

	for _, a := range msg.Attachments {
		raw, err := decodeDataURL(a.Data)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO attachments (message_id, name, type, size, data)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, a.Name, a.Type, a.Size, raw); err != nil {
			return fmt.Errorf("store: insert attachment for %q: %w", msg.ID, err)
		}
	}

	return nil
}

// SaveMessages ensures roomName exists then persists each message in msgs as
// a single transaction, returning the count actually inserted (duplicates
// are not counted).
func (s *Store) SaveMessages(ctx context.Context, roomName string, msgs []wire.ChatMessage) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		id, err := roomID(ctx, tx, roomName)
		if err == pgx.ErrNoRows {
			if scanErr := tx.QueryRow(ctx, `INSERT INTO rooms (name) VALUES ($1) RETURNING id`, roomName).Scan(&id); scanErr != nil {
				return fmt.Errorf("store: create room %q: %w", roomName, scanErr)
			}
		} else if err != nil {
			return fmt.Errorf("store: resolve room %q: %w", roomName, err)
		}

		for _, msg := range msgs {
			var before int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE id = $1`, msg.ID).Scan(&before); err != nil {
				return fmt.Errorf("store: check existing message %q: %w", msg.ID, err)
			}
			if err := insertMessage(ctx, tx, id, msg); err != nil {
				return err
			}
			if before == 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

// GetMessagesForRoom returns messages in roomName newest-first by timestamp
// (ties broken by id), with attachments hydrated as inline data URLs.
func (s *Store) GetMessagesForRoom(ctx context.Context, roomName string, limit, offset int) ([]wire.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.timestamp, m.sender, m.content, m.public_key, m.signature, m.state
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		WHERE r.name = $1
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT $2 OFFSET $3
	`, roomName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: get messages for room %q: %w", roomName, err)
	}
	defer rows.Close()

	var msgs []wire.ChatMessage
	for rows.Next() {
		var m wire.ChatMessage
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Sender, &m.Content, &m.PublicKey, &m.Signature, &m.State); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.hydrateAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) hydrateAttachments(ctx context.Context, msgs []wire.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[string]*wire.ChatMessage, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		byID[msgs[i].ID] = &msgs[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, name, type, size, data FROM attachments WHERE message_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("store: hydrate attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, name, typ string
		var size int
		var data []byte
		if err := rows.Scan(&messageID, &name, &typ, &size, &data); err != nil {
			return fmt.Errorf("store: scan attachment: %w", err)
		}
		msg, ok := byID[messageID]
		if !ok {
			continue
		}
		msg.Attachments = append(msg.Attachments, wire.Attachment{
			Name: name,
			Type: typ,
			Size: size,
			Data: encodeDataURL(typ, data),
		})
	}
	return rows.Err()
}

// GetMessageIdsForRoom returns just the ids of messages in the room named or
// numbered by roomKey, optionally bounded to timestamps >= sinceTs.
func (s *Store) GetMessageIdsForRoom(ctx context.Context, roomKey string, sinceTs int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id FROM messages m
		JOIN rooms r ON r.id = m.room_id
		WHERE (r.name = $1 OR r.id::text = $1) AND m.timestamp >= $2
		ORDER BY m.timestamp DESC, m.id DESC
	`, roomKey, sinceTs)
	if err != nil {
		return nil, fmt.Errorf("store: get message ids for room %q: %w", roomKey, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMessagesByIds retrieves messages by id, scoped to roomKey to prevent
// cross-room leakage. Attachments are loaded by a second query
// (hydrateAttachments) after the messages, so a call takes two round trips.
func (s *Store) GetMessagesByIds(ctx context.Context, ids []string, roomKey string) ([]wire.ChatMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.timestamp, m.sender, m.content, m.public_key, m.signature, m.state
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		WHERE m.id = ANY($1) AND (r.name = $2 OR r.id::text = $2)
		ORDER BY m.timestamp DESC, m.id DESC
	`, ids, roomKey)
	if err != nil {
		return nil, fmt.Errorf("store: get messages by ids: %w", err)
	}
	defer rows.Close()

	var msgs []wire.ChatMessage
	for rows.Next() {
		var m wire.ChatMessage
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Sender, &m.Content, &m.PublicKey, &m.Signature, &m.State); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.hydrateAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessage removes a message and its attachments if requesterKey
// matches the message's stored public_key or adminKey. Returns whether a row
// was removed.
func (s *Store) DeleteMessage(ctx context.Context, id, requesterKey, adminKey string) (bool, error) {
	removed := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var storedKey string
		err := tx.QueryRow(ctx, `SELECT public_key FROM messages WHERE id = $1`, id).Scan(&storedKey)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store: resolve message %q: %w", id, err)
		}

		if requesterKey != storedKey && (adminKey == "" || requesterKey != adminKey) {
			return ErrUnauthorized
		}

		if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE message_id = $1`, id); err != nil {
			return fmt.Errorf("store: delete attachments for %q: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("store: delete message %q: %w", id, err)
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	return removed, err
}
