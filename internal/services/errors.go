package services

import "errors"

// Business-rule and session faults. All are returned before any write is attempted.
var (
	ErrWalletRequired      = errors.New("a connected wallet is required")
	ErrWrongNetwork        = errors.New("wallet is on the wrong network")
	ErrSoldOut             = errors.New("not enough tickets remaining")
	ErrWalletLimitExceeded = errors.New("wallet ticket limit for this event exceeded")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrInsufficientPayment = errors.New("price per ticket is below the contract ticket price")
	ErrEventNotFound       = errors.New("event not found")
	ErrNFTDisabled         = errors.New("NFT tickets are not enabled for this event")
	ErrEventLocked         = errors.New("only descriptive fields may change after tickets are minted")
	ErrInvalidEvent        = errors.New("invalid event")

	ErrTicketNotFound   = errors.New("ticket not found")
	ErrNotOwner         = errors.New("seller does not own this ticket")
	ErrInvalidPrice     = errors.New("price must be greater than zero")
	ErrAlreadyListed    = errors.New("ticket already has an active listing")
	ErrListingNotFound  = errors.New("listing not found")
	ErrListingInactive  = errors.New("listing is no longer active")
	ErrStaleListing     = errors.New("seller no longer owns the listed ticket")
	ErrNotSeller        = errors.New("only the seller can cancel this listing")
	ErrSelfPurchase     = errors.New("seller cannot buy their own listing")
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrSelfTransfer     = errors.New("cannot transfer a ticket to its current owner")

	ErrChainUnavailable = errors.New("chain unavailable")
)
