package handlers

import (
	"net/http"
	"strconv"

	"ticket-backend/internal/dto"
	"ticket-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReconciliationHandler exposes divergence checks and admin repairs
type ReconciliationHandler struct {
	recon     *services.ReconciliationService
	scheduler *services.ReconciliationScheduler
}

// NewReconciliationHandler creates a new ReconciliationHandler instance
func NewReconciliationHandler(recon *services.ReconciliationService, scheduler *services.ReconciliationScheduler) *ReconciliationHandler {
	return &ReconciliationHandler{recon: recon, scheduler: scheduler}
}

// CheckHandler compares one wallet's tickets of one event on both ledgers. Read-only.
// GET /api/reconciliation?wallet=0x...&event=1
func (h *ReconciliationHandler) CheckHandler(c *gin.Context) {
	wallet := c.Query("wallet")
	eventID, err := strconv.ParseUint(c.Query("event"), 10, 64)
	if wallet == "" || err != nil {
		badRequest(c, "wallet and event are required")
		return
	}
	report, err := h.recon.Check(c.Request.Context(), wallet, eventID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"consistent": report.Consistent(),
		"report":     report,
	})
}

// RepairHandler copies chain state into the mirror for a wallet/event or a single token
// POST /api/admin/reconciliation/repair
func (h *ReconciliationHandler) RepairHandler(c *gin.Context) {
	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var (
		result *services.RepairResult
		err    error
	)
	switch {
	case req.TokenID != 0:
		result, err = h.recon.RepairToken(c.Request.Context(), req.TokenID)
	case req.Wallet != "" && req.EventID != 0:
		result, err = h.recon.Repair(c.Request.Context(), req.Wallet, req.EventID)
	default:
		badRequest(c, "either token_id or wallet and event_id are required")
		return
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"client_ip":            c.ClientIP(),
		"wallet":               req.Wallet,
		"event_id":             req.EventID,
		"token_id":             req.TokenID,
		"inserted":             result.Inserted,
		"owners_corrected":     result.OwnersCorrected,
		"listings_deactivated": result.ListingsDeactivated,
		"used_synced":          result.UsedSynced,
	}).Info("Admin reconciliation repair")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"changed": result.Changed(),
		"result":  result,
	})
}

// SweepHandler runs one report-only sweep over every known wallet/event pair
// POST /api/admin/reconciliation/sweep
func (h *ReconciliationHandler) SweepHandler(c *gin.Context) {
	result := h.scheduler.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "sweep": result})
}
