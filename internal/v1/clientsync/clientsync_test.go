package clientsync

import (
	"context"
	"testing"

	"github.com/roomfabric/hub/internal/v1/wire"
)

type fakeHistorySource struct {
	ids      []string
	byID     map[string]wire.ChatMessage
	idsCalls int
}

func (f *fakeHistorySource) MessageIDs(ctx context.Context, room string, daysOfHistory int) ([]string, error) {
	f.idsCalls++
	return f.ids, nil
}

func (f *fakeHistorySource) MessagesByIDs(ctx context.Context, room string, ids []string) ([]wire.ChatMessage, error) {
	out := make([]wire.ChatMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ HistorySource = (*fakeHistorySource)(nil)

type fakeSender struct {
	ok bool
}

func (f *fakeSender) Send(ctx context.Context, msg wire.ChatMessage) bool { return f.ok }

var _ Sender = (*fakeSender)(nil)

func TestOpenRoom_EvictsMessagesOlderThanRetentionWindow(t *testing.T) {
	storage := NewMemoryStorage()
	const now = int64(100 * dayMillis)
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "old", Timestamp: 1, State: wire.StateSaved},
		{ID: "recent", Timestamp: now - dayMillis, State: wire.StateSaved},
	})

	e := New(storage, nil, nil, MinRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", now)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 1 || result[0].ID != "recent" {
		t.Fatalf("expected only 'recent' to survive eviction, got %+v", result)
	}
}

func TestOpenRoom_ClampsRetentionBelowMinimum(t *testing.T) {
	e := New(NewMemoryStorage(), nil, nil, 1)
	if e.retentionDays != MinRetentionDays {
		t.Fatalf("expected retention clamped to %d, got %d", MinRetentionDays, e.retentionDays)
	}
}

func TestOpenRoom_PromotesSharedIDsToSaved(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "m1", Timestamp: 10, State: wire.StateSent},
	})
	history := &fakeHistorySource{ids: []string{"m1"}}

	e := New(storage, history, nil, DefaultRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", 10+DefaultRetentionDays*dayMillis)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 1 || result[0].State != wire.StateSaved {
		t.Fatalf("expected m1 promoted to SAVED, got %+v", result)
	}
}

func TestOpenRoom_DropsSavedMessagesRemovedUpstream(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "m1", Timestamp: 10, State: wire.StateSaved},
	})
	history := &fakeHistorySource{ids: []string{}}

	e := New(storage, history, nil, DefaultRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", 10+DefaultRetentionDays*dayMillis)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 0 {
		t.Fatalf("expected m1 dropped (removed upstream), got %+v", result)
	}
}

func TestOpenRoom_KeepsUnsavedMessagesAbsentFromServer(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "m1", Timestamp: 10, State: wire.StateSent},
	})
	history := &fakeHistorySource{ids: []string{}}

	e := New(storage, history, nil, DefaultRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", 10+DefaultRetentionDays*dayMillis)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 1 || result[0].State != wire.StateSent {
		t.Fatalf("expected m1 (SENT, not yet acked) to survive the diff, got %+v", result)
	}
}

func TestOpenRoom_FetchesServerOnlyMessages(t *testing.T) {
	storage := NewMemoryStorage()
	history := &fakeHistorySource{
		ids: []string{"m1"},
		byID: map[string]wire.ChatMessage{
			"m1": {ID: "m1", Timestamp: 10, State: wire.StateSaved},
		},
	}

	e := New(storage, history, nil, DefaultRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", 10+DefaultRetentionDays*dayMillis)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 1 || result[0].ID != "m1" {
		t.Fatalf("expected m1 fetched from server, got %+v", result)
	}
}

func TestOpenRoom_SortsByTimestampAscending(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "later", Timestamp: 20, State: wire.StateSaved},
		{ID: "earlier", Timestamp: 10, State: wire.StateSaved},
	})
	history := &fakeHistorySource{ids: []string{"later", "earlier"}}

	e := New(storage, history, nil, DefaultRetentionDays)
	result, err := e.OpenRoom(context.Background(), "lobby", 10+DefaultRetentionDays*dayMillis)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	if len(result) != 2 || result[0].ID != "earlier" || result[1].ID != "later" {
		t.Fatalf("expected ascending timestamp order, got %+v", result)
	}
}

func TestSendAndCache_MarksFailedWhenSendReturnsFalse(t *testing.T) {
	storage := NewMemoryStorage()
	e := New(storage, nil, &fakeSender{ok: false}, DefaultRetentionDays)

	msg, err := e.SendAndCache(context.Background(), "lobby", wire.ChatMessage{ID: "m1", Timestamp: 1})
	if err != nil {
		t.Fatalf("SendAndCache: %v", err)
	}
	if msg.State != wire.StateFailed {
		t.Fatalf("expected FAILED state, got %q", msg.State)
	}
}

func TestSendAndCache_MarksSentWhenSendSucceeds(t *testing.T) {
	storage := NewMemoryStorage()
	e := New(storage, nil, &fakeSender{ok: true}, DefaultRetentionDays)

	msg, err := e.SendAndCache(context.Background(), "lobby", wire.ChatMessage{ID: "m1", Timestamp: 1})
	if err != nil {
		t.Fatalf("SendAndCache: %v", err)
	}
	if msg.State != wire.StateSent {
		t.Fatalf("expected SENT state, got %q", msg.State)
	}

	cached, _ := storage.Load(context.Background(), "lobby")
	if len(cached) != 1 || cached[0].ID != "m1" {
		t.Fatalf("expected message persisted to cache, got %+v", cached)
	}
}

func TestPendingResends_ReturnsOnlyUnsavedMessages(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "saved", State: wire.StateSaved},
		{ID: "sent", State: wire.StateSent},
		{ID: "failed", State: wire.StateFailed},
	})

	e := New(storage, nil, nil, DefaultRetentionDays)
	pending, err := e.PendingResends(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("PendingResends: %v", err)
	}

	if len(pending) != 2 {
		t.Fatalf("expected 2 pending resends, got %d: %+v", len(pending), pending)
	}
}

func TestAcknowledgeMessage_PromotesMatchingID(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "m1", State: wire.StateSent},
		{ID: "m2", State: wire.StateSent},
	})

	e := New(storage, nil, nil, DefaultRetentionDays)
	if err := e.AcknowledgeMessage(context.Background(), "lobby", "m1"); err != nil {
		t.Fatalf("AcknowledgeMessage: %v", err)
	}

	cached, _ := storage.Load(context.Background(), "lobby")
	for _, m := range cached {
		if m.ID == "m1" && m.State != wire.StateSaved {
			t.Fatalf("expected m1 promoted to SAVED, got %q", m.State)
		}
		if m.ID == "m2" && m.State != wire.StateSent {
			t.Fatalf("expected m2 untouched, got %q", m.State)
		}
	}
}

func TestPruneForQuota_DropsOldest20Percent(t *testing.T) {
	storage := NewMemoryStorage()
	messages := make([]wire.ChatMessage, 10)
	for i := range messages {
		messages[i] = wire.ChatMessage{ID: string(rune('a' + i)), Timestamp: int64(i)}
	}
	storage.Save(context.Background(), "lobby", messages)

	e := New(storage, nil, nil, DefaultRetentionDays)
	if err := e.PruneForQuota(context.Background(), "lobby"); err != nil {
		t.Fatalf("PruneForQuota: %v", err)
	}

	cached, _ := storage.Load(context.Background(), "lobby")
	if len(cached) != 8 {
		t.Fatalf("expected 8 messages to remain after dropping oldest 2, got %d", len(cached))
	}
	if cached[0].Timestamp != 2 {
		t.Fatalf("expected the two oldest messages dropped, got first timestamp %d", cached[0].Timestamp)
	}
}

func TestMemoryStorage_SaveDedupesByID(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Save(context.Background(), "lobby", []wire.ChatMessage{
		{ID: "m1", Content: "first"},
		{ID: "m1", Content: "second"},
	})

	cached, _ := storage.Load(context.Background(), "lobby")
	if len(cached) != 1 || cached[0].Content != "second" {
		t.Fatalf("expected single deduped entry with last-write content, got %+v", cached)
	}
}
