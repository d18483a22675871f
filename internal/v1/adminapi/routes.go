package adminapi

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the admin route group under rg, wrapping every
// mutator (and every listing, since the whole group is privileged) behind
// RequireAdmin.
func RegisterRoutes(rg *gin.RouterGroup, h *Handler, adminPubKeyHex string) {
	admin := rg.Group("/admin")
	admin.Use(RequireAdmin(adminPubKeyHex))
	{
		admin.POST("/delete-room", h.DeleteRoom)
		admin.POST("/delete-message", h.DeleteMessage)
		admin.POST("/attachments/:id/delete", h.DeleteAttachment)
		admin.POST("/block-user", h.BlockUser)
		admin.POST("/get-room-info", h.GetRoomInfo)
		admin.POST("/get-recent-attachments", h.GetRecentAttachments)
		admin.POST("/create-test-data", h.CreateTestData)
	}
}
