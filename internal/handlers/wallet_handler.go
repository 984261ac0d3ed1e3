package handlers

import (
	"context"
	"net/http"

	"ticket-backend/internal/dto"
	"ticket-backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WalletController the session operations exposed over HTTP. *wallet.Session implements it.
type WalletController interface {
	Snapshot() wallet.Snapshot
	Connect(ctx context.Context) (wallet.Snapshot, error)
	Disconnect(ctx context.Context) error
}

// WalletHandler exposes the wallet session
type WalletHandler struct {
	session WalletController
}

// NewWalletHandler creates a new WalletHandler instance
func NewWalletHandler(session WalletController) *WalletHandler {
	return &WalletHandler{session: session}
}

// GetWalletHandler returns the current session snapshot
// GET /api/wallet
func (h *WalletHandler) GetWalletHandler(c *gin.Context) {
	c.JSON(http.StatusOK, walletResponse(h.session.Snapshot()))
}

// ConnectWalletHandler requests wallet access
// POST /api/wallet/connect
func (h *WalletHandler) ConnectWalletHandler(c *gin.Context) {
	snap, err := h.session.Connect(c.Request.Context())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"state": snap.State,
			"error": err.Error(),
		}).Warn("Wallet connect failed")
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse(snap))
}

// DisconnectWalletHandler marks the session as manually disconnected
// POST /api/wallet/disconnect
func (h *WalletHandler) DisconnectWalletHandler(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse(h.session.Snapshot()))
}

func walletResponse(s wallet.Snapshot) dto.WalletResponse {
	return dto.WalletResponse{
		Success: true,
		Address: s.Address,
		ChainID: s.ChainID,
		State:   string(s.State),
		Error:   s.LastError,
	}
}
