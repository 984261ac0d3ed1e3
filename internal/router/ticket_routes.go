package router

import (
	"ticket-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTicketRoutes event, marketplace and reconciliation API routes
func SetupTicketRoutes(
	r *gin.Engine,
	h Handlers,
	auth *middleware.AuthMiddleware,
	adminAuth *middleware.AdminAuthMiddleware,
	localhostOnly *middleware.LocalhostOnly,
) {
	api := r.Group("/api")
	api.GET("/health", h.Health.HealthCheckHandler)

	// ============ Wallet session ============
	walletGroup := api.Group("/wallet")
	{
		walletGroup.GET("", h.Wallet.GetWalletHandler)
		walletGroup.POST("/connect", h.Wallet.ConnectWalletHandler)
		walletGroup.POST("/disconnect", h.Wallet.DisconnectWalletHandler)
	}

	// ============ Events ============
	events := api.Group("/events")
	{
		events.GET("/:id", h.Event.GetEventHandler)
		events.GET("/:id/listings", h.Marketplace.ListEventListingsHandler)
	}
	secureEvents := api.Group("/events")
	secureEvents.Use(auth.RequireAuth())
	{
		secureEvents.POST("", h.Event.CreateEventHandler)
		secureEvents.PUT("/:id", h.Event.UpdateEventHandler)
		secureEvents.POST("/:id/purchase", h.Event.PurchaseTicketsHandler)
	}

	// ============ Marketplace ============
	listings := api.Group("/listings")
	listings.Use(auth.RequireAuth())
	{
		listings.POST("", h.Marketplace.CreateListingHandler)
		listings.POST("/:id/purchase", h.Marketplace.PurchaseListingHandler)
		listings.POST("/:id/cancel", h.Marketplace.CancelListingHandler)
	}
	api.POST("/tickets/:id/transfer", auth.RequireAuth(), h.Marketplace.TransferTicketHandler)
	api.GET("/marketplace/activity", h.Marketplace.RecentActivityHandler)

	// ============ Reconciliation ============
	api.GET("/reconciliation", h.Reconciliation.CheckHandler)

	// ============ Admin (whitelist + TOTP) ============
	admin := api.Group("/admin")
	admin.Use(localhostOnly.Restrict(), adminAuth.RequireTOTP())
	{
		admin.POST("/reconciliation/repair", h.Reconciliation.RepairHandler)
		admin.POST("/reconciliation/sweep", h.Reconciliation.SweepHandler)
		admin.GET("/pending-writes", h.Retry.ListPendingWritesHandler)
		admin.POST("/pending-writes/retry", h.Retry.RunRetryHandler)
	}

	// ============ WebSocket ============
	api.GET("/ws/stats", h.WebSocket.StatsHandler)
	r.GET("/ws/activity", auth.OptionalAuth(), h.WebSocket.HandleActivity)
}
