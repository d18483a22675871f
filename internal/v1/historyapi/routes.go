package historyapi

import (
	"github.com/gin-gonic/gin"

	"github.com/roomfabric/hub/internal/v1/ratelimit"
)

// RegisterRoutes mounts the core read/write routes under rg. rl may be nil
// in tests to skip per-endpoint rate limiting.
func RegisterRoutes(rg *gin.RouterGroup, h *Handler, rl *ratelimit.RateLimiter) {
	roomsLimit := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	messagesLimit := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	if rl != nil {
		roomsLimit = rl.MiddlewareForEndpoint("rooms")
		messagesLimit = rl.MiddlewareForEndpoint("messages")
	}

	rooms := rg.Group("/rooms/:room")
	rooms.Use(roomsLimit)
	{
		rooms.GET("/message-ids", h.ListMessageIDs)
		rooms.POST("/get-messages-by-id", h.GetMessagesByID)
		rooms.POST("/send-messages", RequireSigned(), h.SendMessages)
	}

	rg.GET("/messages", messagesLimit, h.GetMessages)
	rg.GET("/attachments/:id", h.GetAttachment)
	rg.POST("/delete-message", messagesLimit, RequireSigned(), h.DeleteMessage)
}
