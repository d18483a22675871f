package clientsync

import (
	"context"
	"sync"

	"github.com/roomfabric/hub/internal/v1/wire"
)

// MemoryStorage is a Storage reference implementation backed by a
// process-local map, for tests and for embedding in a Go-based client. It
// dedupes by message id only; when the same id is saved more than once the
// last copy wins, unlike the server store, where the first insert wins.
type MemoryStorage struct {
	mu    sync.Mutex
	rooms map[string][]wire.ChatMessage
}

// NewMemoryStorage builds an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{rooms: make(map[string][]wire.ChatMessage)}
}

// Load returns a defensive copy of room's cached messages.
func (s *MemoryStorage) Load(ctx context.Context, room string) ([]wire.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.rooms[room]
	out := make([]wire.ChatMessage, len(existing))
	copy(out, existing)
	return out, nil
}

// Save replaces room's cached message list, deduping by id and keeping the
// last occurrence of any repeated id.
func (s *MemoryStorage) Save(ctx context.Context, room string, messages []wire.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]wire.ChatMessage, len(messages))
	order := make([]string, 0, len(messages))
	for _, m := range messages {
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}

	deduped := make([]wire.ChatMessage, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, byID[id])
	}
	s.rooms[room] = deduped
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
