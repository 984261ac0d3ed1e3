package handlers

import (
	"net/http"

	"ticket-backend/internal/dto"
	"ticket-backend/internal/middleware"
	"ticket-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MarketplaceHandler handles listings, sales and direct transfers
type MarketplaceHandler struct {
	marketplace *services.MarketplaceService
}

// NewMarketplaceHandler creates a new MarketplaceHandler instance
func NewMarketplaceHandler(marketplace *services.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{marketplace: marketplace}
}

// ============================================================================
// Listings
// ============================================================================

// ListEventListingsHandler active listings of an event
// GET /api/events/:id/listings?limit=50
func (h *MarketplaceHandler) ListEventListingsHandler(c *gin.Context) {
	eventID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	listings, err := h.marketplace.ActiveListings(c.Request.Context(), eventID, parseLimit(c, 50))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"event_id": eventID,
		"count":    len(listings),
		"listings": listings,
	})
}

// CreateListingHandler lists an owned ticket for sale
// POST /api/listings
func (h *MarketplaceHandler) CreateListingHandler(c *gin.Context) {
	var req dto.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.PriceEth)
	if err != nil {
		badRequest(c, "price_eth must be a decimal number")
		return
	}

	listing, err := h.marketplace.List(c.Request.Context(), services.ListRequest{
		TicketID:     req.TicketID,
		Seller:       req.Wallet,
		SellerUserID: middleware.UserID(c),
		PriceEth:     price,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "listing": listing})
}

// PurchaseListingHandler records the sale of a listing to the given buyer.
// 202 means the sale is recorded but waits on a parked listing update.
// POST /api/listings/:id/purchase
func (h *MarketplaceHandler) PurchaseListingHandler(c *gin.Context) {
	var req dto.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.marketplace.Purchase(c.Request.Context(), c.Param("id"), req.Wallet, optionalUserID(c))
	if err != nil {
		respondWithError(c, err)
		return
	}
	status := http.StatusOK
	if result.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"success": true, "sale": result})
}

// CancelListingHandler deactivates a listing on behalf of its seller
// POST /api/listings/:id/cancel
func (h *MarketplaceHandler) CancelListingHandler(c *gin.Context) {
	var req dto.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.marketplace.Cancel(c.Request.Context(), c.Param("id"), req.Wallet); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "listing_id": c.Param("id")})
}

// ============================================================================
// Transfers and activity
// ============================================================================

// TransferTicketHandler sends a ticket to another wallet on chain
// POST /api/tickets/:id/transfer
func (h *MarketplaceHandler) TransferTicketHandler(c *gin.Context) {
	var req dto.TransferTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.marketplace.Transfer(c.Request.Context(), c.Param("id"), req.From, req.To, nil)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transfer": result})
}

// RecentActivityHandler latest mints, sales and transfers
// GET /api/marketplace/activity?limit=20
func (h *MarketplaceHandler) RecentActivityHandler(c *gin.Context) {
	txs, err := h.marketplace.RecentActivity(c.Request.Context(), parseLimit(c, 20))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"count":        len(txs),
		"transactions": txs,
	})
}
