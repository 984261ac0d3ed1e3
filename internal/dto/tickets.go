package dto

import "time"

// ==================== Wallet DTOs ====================

// WalletResponse wallet session snapshot
type WalletResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address,omitempty"`
	ChainID int    `json:"chain_id,omitempty"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// ==================== Event DTOs ====================

// CreateEventRequest organizer input for a new event
type CreateEventRequest struct {
	Title          string    `json:"title" binding:"required"`
	Description    string    `json:"description"`
	Date           time.Time `json:"date"`
	Location       string    `json:"location"`
	MaxAttendees   int       `json:"max_attendees"`
	NFTEnabled     bool      `json:"nft_enabled"`
	TicketPriceUSD string    `json:"ticket_price_usd"` // decimal string
	NFTSupply      int       `json:"nft_supply"`       // 0: unlimited
}

// UpdateEventRequest omitted fields stay unchanged
type UpdateEventRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Location       *string    `json:"location"`
	Date           *time.Time `json:"date"`
	MaxAttendees   *int       `json:"max_attendees"`
	NFTEnabled     *bool      `json:"nft_enabled"`
	TicketPriceUSD *string    `json:"ticket_price_usd"`
	NFTSupply      *int       `json:"nft_supply"`
}

// PurchaseTicketsRequest buy quantity tickets of an event
type PurchaseTicketsRequest struct {
	Wallet         string `json:"wallet"` // defaults to the connected wallet
	Quantity       int    `json:"quantity" binding:"required"`
	PricePerTicket string `json:"price_per_ticket"` // native units, optional
	MetadataURI    string `json:"metadata_uri"`
}

// IssuedTicketDTO one minted ticket
type IssuedTicketDTO struct {
	TokenID  uint64 `json:"token_id"`
	TxHash   string `json:"tx_hash,omitempty"`
	TicketID string `json:"ticket_id"`
	Recorded bool   `json:"recorded"`
	Adopted  bool   `json:"adopted,omitempty"`
}

// PurchaseTicketsResponse outcome of a purchase; Error is set on partial success
type PurchaseTicketsResponse struct {
	Success   bool              `json:"success"`
	EventID   uint64            `json:"event_id"`
	Wallet    string            `json:"wallet"`
	Requested int               `json:"requested"`
	Issued    []IssuedTicketDTO `json:"issued"`
	Complete  bool              `json:"complete"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
}

// ==================== Marketplace DTOs ====================

// CreateListingRequest list an owned ticket
type CreateListingRequest struct {
	TicketID  string     `json:"ticket_id" binding:"required"`
	Wallet    string     `json:"wallet" binding:"required"`
	PriceEth  string     `json:"price_eth" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// WalletRequest a request that only names the acting wallet
type WalletRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

// TransferTicketRequest direct wallet-to-wallet transfer
type TransferTicketRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// ==================== Reconciliation DTOs ====================

// RepairRequest admin repair of one wallet/event, or of one token
type RepairRequest struct {
	Wallet  string `json:"wallet"`
	EventID uint64 `json:"event_id"`
	TokenID uint64 `json:"token_id"`
}
