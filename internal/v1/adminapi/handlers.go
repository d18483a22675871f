package adminapi

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/store"
	"github.com/roomfabric/hub/internal/v1/wire"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// Store is the subset of store.Store the admin handlers need.
type Store interface {
	DeleteRoom(ctx context.Context, name string) error
	WipeRoom(ctx context.Context, name string) error
	DeleteMessage(ctx context.Context, id, requesterKey, adminKey string) (bool, error)
	DeleteAttachment(ctx context.Context, id int) (bool, error)
	BlockUser(ctx context.Context, key string) error
	DeleteUserContent(ctx context.Context, key string) error
	GetRoomInfo(ctx context.Context) ([]store.RoomInfo, error)
	GetRecentAttachments(ctx context.Context, limit int) ([]store.RecentAttachment, error)
	SaveMessages(ctx context.Context, roomName string, msgs []wire.ChatMessage) (int, error)
}

var _ Store = (*store.Store)(nil)

// Notifier lets admin mutations reach live connections without polling.
type Notifier interface {
	SendDeleteMsg(roomName, messageID, requesterKey string)
}

// Invalidator is the subset of bus.Service that BlockUser uses to publish a
// block-invalidate event once the block has committed.
type Invalidator interface {
	PublishBlockInvalidate(ctx context.Context, publicKey string) error
}

// Handler implements the admin mutators described for AdminAPI.
type Handler struct {
	store       Store
	notifier    Notifier
	invalidator Invalidator
	adminPubKey string
}

// NewHandler builds a Handler. invalidator may be nil in single-instance mode.
func NewHandler(st Store, notifier Notifier, invalidator Invalidator, adminPubKeyHex string) *Handler {
	return &Handler{store: st, notifier: notifier, invalidator: invalidator, adminPubKey: adminPubKeyHex}
}

type deleteRoomPayload struct {
	Name string `json:"name"`
}

// DeleteRoom handles POST /api/admin/delete-room.
func (h *Handler) DeleteRoom(c *gin.Context) {
	var payload deleteRoomPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := h.store.DeleteRoom(c.Request.Context(), payload.Name); err != nil {
		logging.Error(c.Request.Context(), "adminapi: delete room", zap.Error(err), zap.String("room", payload.Name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
	RoomName  string `json:"roomName"`
}

// DeleteMessage handles POST /api/admin/delete-message. Unlike the
// owner-gated core delete-message endpoint, the requester here is always
// the admin key, so store.DeleteMessage's ownership check always succeeds.
func (h *Handler) DeleteMessage(c *gin.Context) {
	var payload deleteMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.MessageID == "" || payload.RoomName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messageId and roomName are required"})
		return
	}

	signer, _ := signerPublicKey(c)
	deleted, err := h.store.DeleteMessage(c.Request.Context(), payload.MessageID, signer, h.adminPubKey)
	if err != nil && !errors.Is(err, store.ErrUnauthorized) {
		logging.Error(c.Request.Context(), "adminapi: delete message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	if deleted && h.notifier != nil {
		h.notifier.SendDeleteMsg(payload.RoomName, payload.MessageID, signer)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// DeleteAttachment handles POST /api/admin/attachments/:id/delete.
func (h *Handler) DeleteAttachment(c *gin.Context) {
	idParam := c.Param("id")
	id, err := strconv.Atoi(idParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	deleted, err := h.store.DeleteAttachment(c.Request.Context(), id)
	if err != nil {
		logging.Error(c.Request.Context(), "adminapi: delete attachment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete attachment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type blockUserPayload struct {
	PublicKey string `json:"publicKey"`
}

// BlockUser handles POST /api/admin/block-user. Content deletion runs first;
// if it fails the block is still applied and the error surfaced, per spec.
func (h *Handler) BlockUser(c *gin.Context) {
	var payload blockUserPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.PublicKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publicKey is required"})
		return
	}

	deleteErr := h.store.DeleteUserContent(c.Request.Context(), payload.PublicKey)
	if deleteErr != nil {
		logging.Error(c.Request.Context(), "adminapi: delete user content", zap.Error(deleteErr), zap.String("key", payload.PublicKey))
	}

	if err := h.store.BlockUser(c.Request.Context(), payload.PublicKey); err != nil {
		logging.Error(c.Request.Context(), "adminapi: block user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to block user"})
		return
	}

	if h.invalidator != nil {
		if err := h.invalidator.PublishBlockInvalidate(c.Request.Context(), payload.PublicKey); err != nil {
			logging.Warn(c.Request.Context(), "adminapi: publish block invalidation", zap.Error(err))
		}
	}

	if deleteErr != nil {
		c.JSON(http.StatusOK, gin.H{"blocked": true, "contentDeleteError": deleteErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

// GetRoomInfo handles POST /api/admin/get-room-info.
func (h *Handler) GetRoomInfo(c *gin.Context) {
	rooms, err := h.store.GetRoomInfo(c.Request.Context())
	if err != nil {
		logging.Error(c.Request.Context(), "adminapi: get room info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room info"})
		return
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetRecentAttachments handles POST /api/admin/get-recent-attachments.
func (h *Handler) GetRecentAttachments(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	attachments, err := h.store.GetRecentAttachments(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c.Request.Context(), "adminapi: get recent attachments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attachments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

const testDataRoom = "test"

// CreateTestData handles POST /api/admin/create-test-data. It wipes and
// repopulates the well-known "test" room with 70 deterministic-ish messages
// spanning the last 7 days, 10 per day with random intra-day offsets.
// Deliberately unauthenticated-for-content but admin-gated, per spec.
func (h *Handler) CreateTestData(c *gin.Context) {
	if err := h.store.WipeRoom(c.Request.Context(), testDataRoom); err != nil {
		logging.Error(c.Request.Context(), "adminapi: wipe test room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset test room"})
		return
	}

	msgs := generateTestMessages(testNowMillis(c), 7, 10)
	n, err := h.store.SaveMessages(c.Request.Context(), testDataRoom, msgs)
	if err != nil {
		logging.Error(c.Request.Context(), "adminapi: save test messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed test room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inserted": n})
}

// testNowMillis returns the int64 stored under the "test_now_millis" gin
// context key when one is set, and the server clock otherwise. The
// intra-day offsets in generateTestMessages still come from math/rand.
func testNowMillis(c *gin.Context) int64 {
	if v, ok := c.Get("test_now_millis"); ok {
		if ms, ok := v.(int64); ok {
			return ms
		}
	}
	return nowMillis()
}

func generateTestMessages(nowMs int64, days, perDay int) []wire.ChatMessage {
	const dayMs = int64(24 * 60 * 60 * 1000)
	msgs := make([]wire.ChatMessage, 0, days*perDay)

	for d := 0; d < days; d++ {
		dayStart := nowMs - int64(d+1)*dayMs
		for i := 0; i < perDay; i++ {
			offset := rand.Int63n(dayMs)
			ts := dayStart + offset
			msgs = append(msgs, wire.ChatMessage{
				ID:        testMessageID(d, i),
				Timestamp: ts,
				Sender:    "tester",
				Content:   "test message",
				State:     wire.StateSaved,
			})
		}
	}

	return msgs
}

func testMessageID(day, index int) string {
	return "test-" + strconv.Itoa(day) + "-" + strconv.Itoa(index)
}
