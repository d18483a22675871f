package historyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roomfabric/hub/internal/v1/identity"
	"github.com/roomfabric/hub/internal/v1/store"
	"github.com/roomfabric/hub/internal/v1/wire"
)

type fakeStore struct {
	ids           []string
	lastSinceTs   int64
	messages      []wire.ChatMessage
	savedRoom     string
	savedMessages []wire.ChatMessage
	attachment    *store.AttachmentBytes
	deleteOK      bool
	deleteErr     error
	lastRequester string
	lastAdminKey  string
}

func (f *fakeStore) GetMessageIdsForRoom(ctx context.Context, roomKey string, sinceTs int64) ([]string, error) {
	f.lastSinceTs = sinceTs
	return f.ids, nil
}
func (f *fakeStore) GetMessagesByIds(ctx context.Context, ids []string, roomKey string) ([]wire.ChatMessage, error) {
	return f.messages, nil
}
func (f *fakeStore) GetMessagesForRoom(ctx context.Context, roomName string, limit, offset int) ([]wire.ChatMessage, error) {
	return f.messages, nil
}
func (f *fakeStore) GetAttachmentBytes(ctx context.Context, id int) (*store.AttachmentBytes, error) {
	return f.attachment, nil
}
func (f *fakeStore) SaveMessages(ctx context.Context, roomName string, msgs []wire.ChatMessage) (int, error) {
	f.savedRoom = roomName
	f.savedMessages = msgs
	return len(msgs), nil
}
func (f *fakeStore) DeleteMessage(ctx context.Context, id, requesterKey, adminKey string) (bool, error) {
	f.lastRequester, f.lastAdminKey = requesterKey, adminKey
	return f.deleteOK, f.deleteErr
}

var _ Store = (*fakeStore)(nil)

func setupRouter(st *fakeStore, adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(st, adminKey)
	RegisterRoutes(r.Group("/api"), h, nil)
	return r
}

func TestListMessageIDs_NoDaysOfHistory_ReturnsEverything(t *testing.T) {
	st := &fakeStore{ids: []string{"m1", "m2"}}
	r := setupRouter(st, "")

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/lobby/message-ids", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if st.lastSinceTs != 0 {
		t.Fatalf("expected sinceTs 0 when daysOfHistory omitted, got %d", st.lastSinceTs)
	}
}

func TestListMessageIDs_ClampsDaysBelowMinimum(t *testing.T) {
	st := &fakeStore{}
	r := setupRouter(st, "")

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/lobby/message-ids?daysOfHistory=1", nil)
	w := httptest.NewRecorder()
	before := time.Now().UnixMilli()
	r.ServeHTTP(w, req)
	after := time.Now().UnixMilli()

	if st.lastSinceTs < before-2*dayMillis || st.lastSinceTs > after-2*dayMillis {
		t.Fatalf("expected daysOfHistory=1 to be clamped to a 2-day cutoff, got sinceTs %d", st.lastSinceTs)
	}
}

func TestGetMessagesByID_ReturnsMessages(t *testing.T) {
	st := &fakeStore{messages: []wire.ChatMessage{{ID: "m1"}}}
	r := setupRouter(st, "")

	body, _ := json.Marshal(getMessagesByIDRequest{IDs: []string{"m1"}})
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/lobby/get-messages-by-id", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// signedRequest builds an httptest.Request for method+path with body as its
// JSON payload, signed per spec §6: the signature covers method+path+body
// and travels in a header alongside the signer's public key, never inside
// the body itself.
func signedRequest(t *testing.T, kp *identity.KeyPair, method, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	digest := wire.CanonicalHTTPRequest(method, path, body)
	sig, err := identity.Sign(kp, digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(wire.HeaderPublicKey, kp.PublicKeyHex())
	req.Header.Set(wire.HeaderSignature, sig)
	return req
}

func TestSendMessages_RequiresValidSignature(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	st := &fakeStore{}
	r := setupRouter(st, "")

	req := signedRequest(t, kp, http.MethodPost, "/api/rooms/lobby/send-messages", sendMessagesPayload{Messages: []wire.ChatMessage{{ID: "m1"}}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.savedRoom != "lobby" || len(st.savedMessages) != 1 {
		t.Fatalf("expected message saved to lobby, got room=%q messages=%d", st.savedRoom, len(st.savedMessages))
	}
}

func TestSendMessages_RejectsBadSignature(t *testing.T) {
	st := &fakeStore{}
	r := setupRouter(st, "")

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/lobby/send-messages", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(wire.HeaderPublicKey, "02abc")
	req.Header.Set(wire.HeaderSignature, "bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if st.savedRoom != "" {
		t.Fatal("expected no save on invalid signature")
	}
}

func TestDeleteMessage_PassesSignerAndAdminKeyToStore(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	st := &fakeStore{deleteOK: true}
	r := setupRouter(st, "02admin")

	req := signedRequest(t, kp, http.MethodPost, "/api/delete-message", deleteMessagePayload{MessageID: "m1", RoomName: "lobby"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.lastRequester != kp.PublicKeyHex() {
		t.Fatalf("expected requester key passed through, got %q", st.lastRequester)
	}
	if st.lastAdminKey != "02admin" {
		t.Fatalf("expected admin key passed through, got %q", st.lastAdminKey)
	}
}

func TestDeleteMessage_UnauthorizedReturnsForbidden(t *testing.T) {
	kp, _ := identity.GenerateKeyPair()
	st := &fakeStore{deleteErr: store.ErrUnauthorized}
	r := setupRouter(st, "02admin")

	req := signedRequest(t, kp, http.MethodPost, "/api/delete-message", deleteMessagePayload{MessageID: "m1", RoomName: "lobby"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetAttachment_NotFoundReturns404(t *testing.T) {
	st := &fakeStore{attachment: nil}
	r := setupRouter(st, "")

	req := httptest.NewRequest(http.MethodGet, "/api/attachments/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetAttachment_ServesBytesWithHeaders(t *testing.T) {
	st := &fakeStore{attachment: &store.AttachmentBytes{Name: "photo.png", Type: "image/png", Size: 3, Data: []byte("abc")}}
	r := setupRouter(st, "")

	req := httptest.NewRequest(http.MethodGet, "/api/attachments/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected image/png content type, got %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "abc" {
		t.Fatalf("expected raw bytes abc, got %q", w.Body.String())
	}
}
