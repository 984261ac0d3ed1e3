package handlers

import (
	"net/http"

	"ticket-backend/internal/dto"
	"ticket-backend/internal/middleware"
	"ticket-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// EventHandler handles the event catalogue and ticket issuance
type EventHandler struct {
	events   *services.EventService
	issuance *services.TicketIssuanceService
	wallet   WalletController
}

// NewEventHandler creates a new EventHandler instance
func NewEventHandler(events *services.EventService, issuance *services.TicketIssuanceService, session WalletController) *EventHandler {
	return &EventHandler{events: events, issuance: issuance, wallet: session}
}

// CreateEventHandler creates an event owned by the caller
// POST /api/events
func (h *EventHandler) CreateEventHandler(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, err := parseDecimal(req.TicketPriceUSD)
	if err != nil {
		badRequest(c, "ticket_price_usd must be a decimal number")
		return
	}

	event, err := h.events.Create(c.Request.Context(), services.CreateEventRequest{
		Title:          req.Title,
		Description:    req.Description,
		Date:           req.Date,
		Location:       req.Location,
		MaxAttendees:   req.MaxAttendees,
		CreatorID:      middleware.UserID(c),
		NFTEnabled:     req.NFTEnabled,
		TicketPriceUSD: price,
		NFTSupply:      req.NFTSupply,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "event": event})
}

// UpdateEventHandler changes an event; pricing and supply lock after the first mint
// PUT /api/events/:id
func (h *EventHandler) UpdateEventHandler(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	update := services.UpdateEventRequest{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Date:         req.Date,
		MaxAttendees: req.MaxAttendees,
		NFTEnabled:   req.NFTEnabled,
		NFTSupply:    req.NFTSupply,
	}
	if req.TicketPriceUSD != nil {
		price, err := parseDecimal(*req.TicketPriceUSD)
		if err != nil {
			badRequest(c, "ticket_price_usd must be a decimal number")
			return
		}
		update.TicketPriceUSD = &price
	}

	event, err := h.events.Update(c.Request.Context(), id, middleware.UserID(c), update)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": event})
}

// GetEventHandler returns an event with its supply figures
// GET /api/events/:id
func (h *EventHandler) GetEventHandler(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	view, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": view})
}

// PurchaseTicketsHandler mints tickets to the connected wallet.
// A sequence that stops early answers 207 with the tickets already issued.
// POST /api/events/:id/purchase
func (h *EventHandler) PurchaseTicketsHandler(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req dto.PurchaseTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, err := parseDecimal(req.PricePerTicket)
	if err != nil {
		badRequest(c, "price_per_ticket must be a decimal number")
		return
	}
	buyer := req.Wallet
	if buyer == "" {
		buyer = h.wallet.Snapshot().Address
	}

	result, err := h.issuance.Purchase(c.Request.Context(), services.PurchaseRequest{
		EventID:        id,
		Wallet:         buyer,
		UserID:         optionalUserID(c),
		Quantity:       req.Quantity,
		PricePerTicket: price,
		MetadataURI:    req.MetadataURI,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp := dto.PurchaseTicketsResponse{
		Success:   result.Complete(),
		EventID:   result.EventID,
		Wallet:    result.Wallet,
		Requested: result.Requested,
		Issued:    make([]dto.IssuedTicketDTO, 0, len(result.Issued)),
		Complete:  result.Complete(),
	}
	for _, t := range result.Issued {
		resp.Issued = append(resp.Issued, dto.IssuedTicketDTO{
			TokenID:  t.TokenID,
			TxHash:   t.TxHash,
			TicketID: t.TicketID,
			Recorded: t.Recorded,
			Adopted:  t.Adopted,
		})
	}
	if result.Complete() {
		c.JSON(http.StatusOK, resp)
		return
	}

	status, code := statusFor(result.Err)
	resp.Error = result.Err.Error()
	resp.Code = code
	if len(result.Issued) > 0 {
		status = http.StatusMultiStatus
	}
	logrus.WithFields(logrus.Fields{
		"event_id":  id,
		"wallet":    result.Wallet,
		"requested": result.Requested,
		"issued":    len(result.Issued),
		"code":      code,
	}).Warn("Ticket purchase stopped early")
	c.JSON(status, resp)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
