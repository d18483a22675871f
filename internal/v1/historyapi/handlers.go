package historyapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/store"
	"github.com/roomfabric/hub/internal/v1/wire"
)

// Store is the subset of store.Store the history handlers need.
type Store interface {
	GetMessageIdsForRoom(ctx context.Context, roomKey string, sinceTs int64) ([]string, error)
	GetMessagesByIds(ctx context.Context, ids []string, roomKey string) ([]wire.ChatMessage, error)
	GetMessagesForRoom(ctx context.Context, roomName string, limit, offset int) ([]wire.ChatMessage, error)
	GetAttachmentBytes(ctx context.Context, id int) (*store.AttachmentBytes, error)
	SaveMessages(ctx context.Context, roomName string, msgs []wire.ChatMessage) (int, error)
	DeleteMessage(ctx context.Context, id, requesterKey, adminKey string) (bool, error)
}

var _ Store = (*store.Store)(nil)

const dayMillis = int64(24 * 60 * 60 * 1000)

// Handler implements the HistoryAPI read endpoints and the two owner-signed
// write endpoints.
type Handler struct {
	store       Store
	adminPubKey string
}

// NewHandler builds a Handler.
func NewHandler(st Store, adminPubKeyHex string) *Handler {
	return &Handler{store: st, adminPubKey: adminPubKeyHex}
}

// ListMessageIDs handles GET /api/rooms/:room/message-ids?daysOfHistory=N.
// Omitting daysOfHistory returns every id ever persisted for the room; a
// supplied value is clamped to a minimum of 2 days per spec.
func (h *Handler) ListMessageIDs(c *gin.Context) {
	room := c.Param("room")

	var sinceTs int64
	if raw := c.Query("daysOfHistory"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "daysOfHistory must be an integer"})
			return
		}
		if days < 2 {
			days = 2
		}
		sinceTs = time.Now().UnixMilli() - int64(days)*dayMillis
	}

	ids, err := h.store.GetMessageIdsForRoom(c.Request.Context(), room, sinceTs)
	if err != nil {
		logging.Error(c.Request.Context(), "historyapi: list message ids", zap.Error(err), zap.String("room", room))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list message ids"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messageIds": ids})
}

type getMessagesByIDRequest struct {
	IDs []string `json:"ids"`
}

// GetMessagesByID handles POST /api/rooms/:room/get-messages-by-id.
func (h *Handler) GetMessagesByID(c *gin.Context) {
	room := c.Param("room")

	var req getMessagesByIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	msgs, err := h.store.GetMessagesByIds(c.Request.Context(), req.IDs, room)
	if err != nil {
		logging.Error(c.Request.Context(), "historyapi: get messages by id", zap.Error(err), zap.String("room", room))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendMessagesPayload struct {
	Messages []wire.ChatMessage `json:"messages"`
}

// SendMessages handles POST /api/rooms/:room/send-messages (signed).
func (h *Handler) SendMessages(c *gin.Context) {
	room := c.Param("room")

	var payload sendMessagesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed messages payload"})
		return
	}

	n, err := h.store.SaveMessages(c.Request.Context(), room, payload.Messages)
	if err != nil {
		logging.Error(c.Request.Context(), "historyapi: save messages", zap.Error(err), zap.String("room", room))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"allOk": n == len(payload.Messages)})
}

// GetMessages handles GET /api/messages?roomName=...&limit=...&offset=....
func (h *Handler) GetMessages(c *gin.Context) {
	room := c.Query("roomName")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomName is required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	msgs, err := h.store.GetMessagesForRoom(c.Request.Context(), room, limit, offset)
	if err != nil {
		logging.Error(c.Request.Context(), "historyapi: get messages", zap.Error(err), zap.String("room", room))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetAttachment handles GET /api/attachments/:id.
func (h *Handler) GetAttachment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	att, err := h.store.GetAttachmentBytes(c.Request.Context(), id)
	if err != nil {
		logging.Error(c.Request.Context(), "historyapi: get attachment", zap.Error(err), zap.Int("id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attachment"})
		return
	}
	if att == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+att.Name+`"`)
	c.Data(http.StatusOK, att.Type, att.Data)
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
	RoomName  string `json:"roomName"`
}

// DeleteMessage handles POST /api/delete-message (signed). Any signer may
// call this; store.DeleteMessage itself enforces that the signer is either
// the message's own author or the configured admin key.
func (h *Handler) DeleteMessage(c *gin.Context) {
	var payload deleteMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messageId is required"})
		return
	}

	signer, _ := signerPublicKey(c)
	deleted, err := h.store.DeleteMessage(c.Request.Context(), payload.MessageID, signer, h.adminPubKey)
	if err != nil && !errors.Is(err, store.ErrUnauthorized) {
		logging.Error(c.Request.Context(), "historyapi: delete message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	if errors.Is(err, store.ErrUnauthorized) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to delete this message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
