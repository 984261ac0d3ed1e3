package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event ticketed event created by an organizer.
// The numeric ID doubles as the on-chain eventId passed to mintTicket.
type Event struct {
	ID             uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Title          string          `json:"title" gorm:"not null"`
	Description    string          `json:"description" gorm:"type:text"`
	Date           time.Time       `json:"date"`
	Location       string          `json:"location"`
	MaxAttendees   int             `json:"max_attendees"`
	CreatorID      string          `json:"creator_id" gorm:"index;size:64"`
	NFTEnabled     bool            `json:"nft_enabled" gorm:"default:false"`
	TicketPriceUSD decimal.Decimal `json:"ticket_price_usd" gorm:"type:numeric(20,2)"`
	NFTPrice       decimal.Decimal `json:"nft_price" gorm:"type:numeric(36,18)"` // derived from TicketPriceUSD at the current rate
	NFTSupply      int             `json:"nft_supply"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies table name
func (Event) TableName() string {
	return "events"
}

// NFTTicket off-chain mirror of a chain-minted token.
// (TokenID, ContractAddress) is the join key back to the chain.
type NFTTicket struct {
	ID                 string    `json:"id" gorm:"primaryKey"` // UUID
	TokenID            uint64    `json:"token_id" gorm:"not null;uniqueIndex:idx_nft_tickets_token_contract"`
	ContractAddress    string    `json:"contract_address" gorm:"not null;size:42;uniqueIndex:idx_nft_tickets_token_contract"`
	EventID            uint64    `json:"event_id" gorm:"not null;index:idx_nft_tickets_owner_event"`
	OwnerWalletAddress string    `json:"owner_wallet_address" gorm:"not null;size:42;index:idx_nft_tickets_owner_event"`
	OwnerUserID        *string   `json:"owner_user_id,omitempty" gorm:"size:64"`
	MetadataURI        string    `json:"metadata_uri" gorm:"type:text"`
	MintTxHash         string    `json:"mint_tx_hash" gorm:"size:66"`
	IsUsed             bool      `json:"is_used" gorm:"default:false"`
	MintedAt           time.Time `json:"minted_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies table name
func (NFTTicket) TableName() string {
	return "nft_tickets"
}

// Listing deactivation reasons
const (
	ListingReasonSold        = "sold"
	ListingReasonCancelled   = "cancelled"
	ListingReasonStale       = "stale"
	ListingReasonExpired     = "expired"
	ListingReasonTransferred = "transferred"
)

// MarketplaceListing intent to sell one owned ticket at a fixed price
type MarketplaceListing struct {
	ID                  string          `json:"id" gorm:"primaryKey"` // UUID
	NFTTicketID         string          `json:"nft_ticket_id" gorm:"not null;index"`
	EventID             uint64          `json:"event_id" gorm:"index"`
	SellerWalletAddress string          `json:"seller_wallet_address" gorm:"not null;size:42"`
	SellerUserID        string          `json:"seller_user_id" gorm:"size:64"`
	PriceEth            decimal.Decimal `json:"price_eth" gorm:"type:numeric(36,18);not null"`
	IsActive            bool            `json:"is_active" gorm:"not null;default:true;index"`
	DeactivationReason  string          `json:"deactivation_reason,omitempty" gorm:"size:32"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	DeactivatedAt       *time.Time      `json:"deactivated_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName specifies table name
func (MarketplaceListing) TableName() string {
	return "marketplace_listings"
}

// IsExpired reports whether the listing's expiry has passed at now
func (l *MarketplaceListing) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// TransactionKind audit record kind
type TransactionKind string

const (
	TransactionKindMint     TransactionKind = "mint"
	TransactionKindSale     TransactionKind = "sale"
	TransactionKindTransfer TransactionKind = "transfer"
)

// TransactionStatus audit record status
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// NFTTransaction append-only audit record. Only Status (pending -> confirmed|failed)
// and ConfirmedAt may change after insert.
type NFTTransaction struct {
	ID                string            `json:"id" gorm:"primaryKey"` // UUID
	NFTTicketID       string            `json:"nft_ticket_id" gorm:"index"`
	TokenID           uint64            `json:"token_id" gorm:"index"`
	EventID           uint64            `json:"event_id" gorm:"index"`
	ListingID         *string           `json:"listing_id,omitempty" gorm:"uniqueIndex"` // one sale record per listing
	Kind              TransactionKind   `json:"transaction_type" gorm:"column:transaction_type;not null;size:16"`
	TransactionHash   string            `json:"transaction_hash" gorm:"size:128"`
	FromWallet        *string           `json:"from_wallet_address,omitempty" gorm:"column:from_wallet_address;size:42"`
	ToWallet          string            `json:"to_wallet_address" gorm:"column:to_wallet_address;not null;size:42"`
	PriceEth          *decimal.Decimal  `json:"price_eth,omitempty" gorm:"type:numeric(36,18)"`
	FeeEth            *decimal.Decimal  `json:"fee_eth,omitempty" gorm:"type:numeric(36,18)"`
	SellerProceedsEth *decimal.Decimal  `json:"seller_proceeds_eth,omitempty" gorm:"type:numeric(36,18)"`
	Status            TransactionStatus `json:"status" gorm:"not null;default:pending;size:16"`
	ConfirmedAt       *time.Time        `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// TableName specifies table name
func (NFTTransaction) TableName() string {
	return "nft_transactions"
}

// CanTransitionTo reports whether status may move to next
func (t *NFTTransaction) CanTransitionTo(next TransactionStatus) bool {
	return t.Status == TransactionStatusPending &&
		(next == TransactionStatusConfirmed || next == TransactionStatusFailed)
}

// OwnerEventPair a wallet/event pair that has off-chain tickets
type OwnerEventPair struct {
	OwnerWalletAddress string `json:"owner_wallet_address"`
	EventID            uint64 `json:"event_id"`
}
