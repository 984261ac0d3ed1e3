package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/dto"
	"ticket-backend/internal/middleware"
	"ticket-backend/internal/services"
	"ticket-backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// checked in order; the first sentinel found in the chain wins
var errorMappings = []errorMapping{
	{services.ErrWalletRequired, http.StatusConflict, "WALLET_REQUIRED"},
	{services.ErrWrongNetwork, http.StatusConflict, "WRONG_NETWORK"},
	{services.ErrChainUnavailable, http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"},
	{services.ErrSoldOut, http.StatusConflict, "SOLD_OUT"},
	{services.ErrWalletLimitExceeded, http.StatusConflict, "WALLET_LIMIT_EXCEEDED"},
	{services.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{services.ErrInsufficientPayment, http.StatusBadRequest, "INSUFFICIENT_PAYMENT"},
	{services.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND"},
	{services.ErrNFTDisabled, http.StatusConflict, "NFT_DISABLED"},
	{services.ErrEventLocked, http.StatusConflict, "EVENT_LOCKED"},
	{services.ErrInvalidEvent, http.StatusBadRequest, "INVALID_EVENT"},
	{services.ErrNotEventCreator, http.StatusForbidden, "NOT_EVENT_CREATOR"},
	{services.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND"},
	{services.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{services.ErrInvalidPrice, http.StatusBadRequest, "INVALID_PRICE"},
	{services.ErrAlreadyListed, http.StatusConflict, "ALREADY_LISTED"},
	{services.ErrListingNotFound, http.StatusNotFound, "LISTING_NOT_FOUND"},
	{services.ErrListingInactive, http.StatusGone, "LISTING_INACTIVE"},
	{services.ErrStaleListing, http.StatusConflict, "STALE_LISTING"},
	{services.ErrNotSeller, http.StatusForbidden, "NOT_SELLER"},
	{services.ErrSelfPurchase, http.StatusBadRequest, "SELF_PURCHASE"},
	{services.ErrInvalidRecipient, http.StatusBadRequest, "INVALID_ADDRESS"},
	{services.ErrSelfTransfer, http.StatusBadRequest, "SELF_TRANSFER"},
	{wallet.ErrWalletUnavailable, http.StatusServiceUnavailable, "WALLET_UNAVAILABLE"},
	{wallet.ErrConnectionRejected, http.StatusForbidden, "CONNECTION_REJECTED"},
	{wallet.ErrConnectionPending, http.StatusConflict, "CONNECTION_PENDING"},
	{wallet.ErrWrongNetwork, http.StatusConflict, "WRONG_NETWORK"},
}

// statusFor maps a service or gateway error to an HTTP status and error code
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	switch chain.KindOf(err) {
	case chain.KindReverted:
		return http.StatusUnprocessableEntity, "TRANSACTION_REVERTED"
	case chain.KindTimeout:
		return http.StatusGatewayTimeout, "CONFIRMATION_TIMEOUT"
	}
	if errors.Is(err, chain.ErrChainUnavailable) {
		return http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondWithError unified error response function
func respondWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"code":   code,
			"error":  err.Error(),
		}).Error("Request failed")
	}
	c.JSON(status, dto.ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Success: false,
		Error:   "Invalid request",
		Message: message,
		Code:    "INVALID_REQUEST",
	})
}

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func parseLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func optionalUserID(c *gin.Context) *string {
	if id := middleware.UserID(c); id != "" {
		return &id
	}
	return nil
}
