package router

import (
	"net/http"

	"ticket-backend/internal/config"
	"ticket-backend/internal/handlers"
	"ticket-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers the HTTP handlers the router mounts
type Handlers struct {
	Wallet         *handlers.WalletHandler
	Event          *handlers.EventHandler
	Marketplace    *handlers.MarketplaceHandler
	Reconciliation *handlers.ReconciliationHandler
	Retry          *handlers.RetryHandler
	WebSocket      *handlers.WebSocketHandler
	Health         *handlers.HealthHandler
}

// SetupRouter builds the gin engine
func SetupRouter(cfg *config.Config, logger *logrus.Logger, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
	auth := middleware.NewAuthMiddleware(logger, cfg.Auth.JWTSecret)
	adminAuth := middleware.NewAdminAuthMiddleware(logger, cfg.Admin.TOTPSecret)

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// ============ Health Check ============
	// Support both /health and /api/health for compatibility
	r.GET("/health", h.Health.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	SetupTicketRoutes(r, h, auth, adminAuth, localhostOnly)

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}
