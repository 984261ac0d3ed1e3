package handlers

import (
	"context"
	"net/http"
	"time"

	"ticket-backend/internal/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports service, database and wallet status
type HealthHandler struct {
	db      *gorm.DB // nil with the memory driver
	wallet  WalletController
	network *config.NetworkConfig
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(db *gorm.DB, wallet WalletController, network *config.NetworkConfig) *HealthHandler {
	return &HealthHandler{db: db, wallet: wallet, network: network}
}

// HealthCheckHandler
// GET /api/health
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	status := http.StatusOK
	database := "memory"
	if h.db != nil {
		database = "healthy"
		if err := pingDatabase(c.Request.Context(), h.db); err != nil {
			database = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	body := gin.H{
		"status":   "ok",
		"service":  "ticket-backend",
		"database": database,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.wallet != nil {
		snap := h.wallet.Snapshot()
		body["wallet"] = gin.H{"state": snap.State, "chain_id": snap.ChainID}
	}
	if h.network != nil {
		body["network"] = gin.H{
			"name":     h.network.Name,
			"chain_id": h.network.ChainID,
			"contract": h.network.TicketContract,
		}
	}
	c.JSON(status, body)
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
