package handlers

import (
	"net/http"

	"ticket-backend/internal/middleware"
	"ticket-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler streams marketplace activity
type WebSocketHandler struct {
	pushService *services.ActivityPushService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.ActivityPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleActivity upgrades to a websocket. ?wallet= narrows the stream to one
// wallet's events, defaulting to the wallet in the caller's token.
// GET /ws/activity
func (h *WebSocketHandler) HandleActivity(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		wallet = c.GetString(middleware.ContextWallet)
	}
	h.pushService.HandleWebSocket(c.Writer, c.Request, wallet)
}

// StatsHandler number of open activity connections
// GET /api/ws/stats
func (h *WebSocketHandler) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"connections": h.pushService.ActiveConnections(),
	})
}
