package handlers

import (
	"fmt"
	"net/http"

	"ticket-backend/internal/dto"
	"ticket-backend/internal/models"
	"ticket-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RetryHandler exposes the parked ledger writes
type RetryHandler struct {
	retry *services.LedgerWriteRetryService
}

// NewRetryHandler creates a new RetryHandler instance
func NewRetryHandler(retry *services.LedgerWriteRetryService) *RetryHandler {
	return &RetryHandler{retry: retry}
}

// ListPendingWritesHandler parked writes, optionally filtered by status
// GET /api/admin/pending-writes?status=pending&limit=50
func (h *RetryHandler) ListPendingWritesHandler(c *gin.Context) {
	status := models.PendingLedgerWriteStatus(c.Query("status"))
	switch status {
	case "", models.PendingLedgerWriteStatusPending, models.PendingLedgerWriteStatusRetrying,
		models.PendingLedgerWriteStatusRecovered, models.PendingLedgerWriteStatusEscalated:
	default:
		badRequest(c, fmt.Sprintf("unknown status %q", status))
		return
	}

	writes, err := h.retry.List(c.Request.Context(), status, parseLimit(c, 50))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PendingWriteListResponse{
		Success: true,
		Status:  string(status),
		Count:   len(writes),
		Writes:  writes,
	})
}

// RunRetryHandler replays every due write now
// POST /api/admin/pending-writes/retry
func (h *RetryHandler) RunRetryHandler(c *gin.Context) {
	recovered, err := h.retry.ProcessDue(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Manual ledger retry pass failed")
		c.JSON(http.StatusInternalServerError, dto.RetryRunResponse{
			Success:   false,
			Recovered: recovered,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, dto.RetryRunResponse{
		Success:   true,
		Recovered: recovered,
		Message:   fmt.Sprintf("%d write(s) recovered", recovered),
	})
}
