package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DeleteAttachment removes a single attachment row by id.
func (s *Store) DeleteAttachment(ctx context.Context, id int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete attachment %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetAttachmentBytes fetches an attachment's raw bytes and metadata by id,
// for serving over HTTP with Content-Type/Content-Length/Content-Disposition.
func (s *Store) GetAttachmentBytes(ctx context.Context, id int) (*AttachmentBytes, error) {
	var out AttachmentBytes
	err := s.pool.QueryRow(ctx, `
		SELECT name, type, size, data FROM attachments WHERE id = $1
	`, id).Scan(&out.Name, &out.Type, &out.Size, &out.Data)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get attachment %d: %w", id, err)
	}
	return &out, nil
}

// GetRecentAttachments returns up to limit attachments, newest-first by
// parent message timestamp, each carrying its room name and sender identity.
func (s *Store) GetRecentAttachments(ctx context.Context, limit int) ([]RecentAttachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.message_id, a.name, a.type, a.size, r.name, m.sender, m.public_key, m.timestamp
		FROM attachments a
		JOIN messages m ON m.id = a.message_id
		JOIN rooms r ON r.id = m.room_id
		ORDER BY m.timestamp DESC, a.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get recent attachments: %w", err)
	}
	defer rows.Close()

	var out []RecentAttachment
	for rows.Next() {
		var ra RecentAttachment
		if err := rows.Scan(&ra.ID, &ra.MessageID, &ra.Name, &ra.Type, &ra.Size, &ra.RoomName, &ra.Sender, &ra.SenderKey, &ra.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan recent attachment: %w", err)
		}
		out = append(out, ra)
	}
	return out, rows.Err()
}
