// Package clientsync implements the client-side reconciliation algorithm
// that keeps a local message cache in sync with server truth: retention
// pruning, id-set diffing against the history endpoints, and resend of
// messages that never reached SAVED state.
//
// The core treats local persistence as an injectable Storage interface,
// the Go analogue of a browser's IndexedDB-backed cache, so the engine can
// run against any backing store without depending on a rendering layer.
package clientsync

import (
	"context"
	"sort"

	"github.com/roomfabric/hub/internal/v1/wire"
)

// Storage is the local cache contract an Engine reconciles against. A
// browser-side implementation backs this with IndexedDB; MemoryStorage is
// the reference implementation used by tests and by any Go-based client.
type Storage interface {
	Load(ctx context.Context, room string) ([]wire.ChatMessage, error)
	Save(ctx context.Context, room string, messages []wire.ChatMessage) error
}

// HistorySource is the subset of the HistoryAPI the engine needs to diff
// against: the cheap id-only listing and the bulk-by-id fetch.
type HistorySource interface {
	MessageIDs(ctx context.Context, room string, daysOfHistory int) ([]string, error)
	MessagesByIDs(ctx context.Context, room string, ids []string) ([]wire.ChatMessage, error)
}

// Sender pushes a message over the live connection. It returns false if the
// send could not be attempted at all (e.g. the socket isn't open); a
// successfully attempted send still awaits a later ack to reach SAVED.
type Sender interface {
	Send(ctx context.Context, msg wire.ChatMessage) bool
}

const (
	// MinRetentionDays is the floor spec.md names for the local retention
	// window; a caller-supplied value below this is raised to it.
	MinRetentionDays = 2
	// DefaultRetentionDays is used when a caller doesn't override it.
	DefaultRetentionDays = 30

	dayMillis = int64(24 * 60 * 60 * 1000)

	// pruneFraction is the share of a room's cached messages dropped,
	// oldest-first, when storage pressure forces a prune.
	pruneFraction = 0.2
)

// Engine runs the reconciliation algorithm for a single room against an
// injected Storage, HistorySource, and Sender.
type Engine struct {
	storage       Storage
	history       HistorySource
	sender        Sender
	retentionDays int
}

// New builds an Engine. retentionDays is clamped to MinRetentionDays; pass 0
// to use DefaultRetentionDays.
func New(storage Storage, history HistorySource, sender Sender, retentionDays int) *Engine {
	if retentionDays == 0 {
		retentionDays = DefaultRetentionDays
	}
	if retentionDays < MinRetentionDays {
		retentionDays = MinRetentionDays
	}
	return &Engine{storage: storage, history: history, sender: sender, retentionDays: retentionDays}
}

// OpenRoom runs the full five-step reconciliation for room against nowMs:
// load the cache, evict anything past the retention window, diff against
// the server's id set (when history is non-nil — "server mode"), and write
// the reconciled, timestamp-sorted result back to storage.
func (e *Engine) OpenRoom(ctx context.Context, room string, nowMs int64) ([]wire.ChatMessage, error) {
	cached, err := e.storage.Load(ctx, room)
	if err != nil {
		return nil, err
	}

	cutoff := nowMs - int64(e.retentionDays)*dayMillis
	cached = evictOlderThan(cached, cutoff)

	if e.history != nil {
		cached, err = e.diffAgainstServer(ctx, room, cached)
		if err != nil {
			return nil, err
		}
	}

	sortByTimestamp(cached)
	if err := e.storage.Save(ctx, room, cached); err != nil {
		return nil, err
	}
	return cached, nil
}

func evictOlderThan(messages []wire.ChatMessage, cutoff int64) []wire.ChatMessage {
	kept := make([]wire.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Timestamp >= cutoff {
			kept = append(kept, m)
		}
	}
	return kept
}

// diffAgainstServer implements steps 3-4 of the algorithm: promote ids
// present both locally and on the server to SAVED, drop ids SAVED locally
// but absent on the server (removed upstream), and fetch ids present on the
// server but missing locally.
func (e *Engine) diffAgainstServer(ctx context.Context, room string, cached []wire.ChatMessage) ([]wire.ChatMessage, error) {
	serverIDs, err := e.history.MessageIDs(ctx, room, e.retentionDays)
	if err != nil {
		return nil, err
	}
	onServer := make(map[string]bool, len(serverIDs))
	for _, id := range serverIDs {
		onServer[id] = true
	}

	localByID := make(map[string]int, len(cached))
	for i, m := range cached {
		localByID[m.ID] = i
	}

	reconciled := make([]wire.ChatMessage, 0, len(cached)+len(serverIDs))
	var missingIDs []string
	for _, id := range serverIDs {
		if i, ok := localByID[id]; ok {
			m := cached[i]
			if m.State != wire.StateSaved {
				m.State = wire.StateSaved
			}
			reconciled = append(reconciled, m)
			continue
		}
		missingIDs = append(missingIDs, id)
	}
	for _, m := range cached {
		if onServer[m.ID] {
			continue
		}
		if m.State == wire.StateSaved {
			// was SAVED locally but the server no longer has it: removed upstream
			continue
		}
		reconciled = append(reconciled, m)
	}

	if len(missingIDs) > 0 {
		fetched, err := e.history.MessagesByIDs(ctx, room, missingIDs)
		if err != nil {
			return nil, err
		}
		reconciled = append(reconciled, fetched...)
	}

	return reconciled, nil
}

func sortByTimestamp(messages []wire.ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp != messages[j].Timestamp {
			return messages[i].Timestamp < messages[j].Timestamp
		}
		return messages[i].ID < messages[j].ID
	})
}

// SendAndCache pushes msg through the Sender, stamping its initial state
// SENT (or FAILED if the send could not be attempted), and persists the
// updated room cache.
func (e *Engine) SendAndCache(ctx context.Context, room string, msg wire.ChatMessage) (wire.ChatMessage, error) {
	if e.sender.Send(ctx, msg) {
		msg.State = wire.StateSent
	} else {
		msg.State = wire.StateFailed
	}

	cached, err := e.storage.Load(ctx, room)
	if err != nil {
		return msg, err
	}
	cached = append(cached, msg)
	if err := e.storage.Save(ctx, room, cached); err != nil {
		return msg, err
	}
	return msg, nil
}

// PendingResends returns every cached message in room that never reached
// SAVED. The caller resends these on startup and room open.
func (e *Engine) PendingResends(ctx context.Context, room string) ([]wire.ChatMessage, error) {
	cached, err := e.storage.Load(ctx, room)
	if err != nil {
		return nil, err
	}
	pending := make([]wire.ChatMessage, 0)
	for _, m := range cached {
		if m.State != wire.StateSaved {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// AcknowledgeMessage promotes a message's local state to SAVED once an ack
// frame names its id. Called from the live-connection read loop, not by
// OpenRoom.
func (e *Engine) AcknowledgeMessage(ctx context.Context, room, id string) error {
	cached, err := e.storage.Load(ctx, room)
	if err != nil {
		return err
	}
	changed := false
	for i, m := range cached {
		if m.ID == id && m.State != wire.StateSaved {
			cached[i].State = wire.StateSaved
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.storage.Save(ctx, room, cached)
}

// PruneForQuota drops the oldest pruneFraction share of room's cached
// messages, for when the client reports storage near-quota and the user has
// confirmed the drop.
func (e *Engine) PruneForQuota(ctx context.Context, room string) error {
	cached, err := e.storage.Load(ctx, room)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return nil
	}
	sortByTimestamp(cached)
	drop := int(float64(len(cached)) * pruneFraction)
	if drop == 0 && len(cached) > 0 {
		drop = 1
	}
	if drop > len(cached) {
		drop = len(cached)
	}
	return e.storage.Save(ctx, room, cached[drop:])
}
