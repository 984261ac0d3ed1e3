package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/services"
	"ticket-backend/internal/wallet"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"sold out", services.ErrSoldOut, http.StatusConflict, "SOLD_OUT"},
		{"wrapped not found", fmt.Errorf("load: %w", services.ErrEventNotFound), http.StatusNotFound, "EVENT_NOT_FOUND"},
		{"joined wallet required", errors.Join(services.ErrWalletRequired, &chain.MintError{Kind: chain.KindWalletNotConnected}), http.StatusConflict, "WALLET_REQUIRED"},
		{"stale listing", services.ErrStaleListing, http.StatusConflict, "STALE_LISTING"},
		{"inactive listing", services.ErrListingInactive, http.StatusGone, "LISTING_INACTIVE"},
		{"bad recipient", services.ErrInvalidRecipient, http.StatusBadRequest, "INVALID_ADDRESS"},
		{"wallet rejected", wallet.ErrConnectionRejected, http.StatusForbidden, "CONNECTION_REJECTED"},
		{"reverted mint", &chain.MintError{Kind: chain.KindReverted, Reason: "sold out"}, http.StatusUnprocessableEntity, "TRANSACTION_REVERTED"},
		{"timed out transfer", &chain.TransferError{Kind: chain.KindTimeout}, http.StatusGatewayTimeout, "CONFIRMATION_TIMEOUT"},
		{"rpc down", fmt.Errorf("ownerOf: %w", chain.ErrChainUnavailable), http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
