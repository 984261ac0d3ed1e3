package interfaces

import (
	"context"
	"math/big"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/config"
	"ticket-backend/internal/wallet"
)

// TicketChain is the ticket contract gateway as used by the services.
// *chain.Gateway implements it; tests substitute stubs.
type TicketChain interface {
	ContractAddress() string
	Network() *config.NetworkConfig

	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	TicketsPerEvent(ctx context.Context, eventID uint64, owner string) (uint64, error)
	TicketsForEvent(ctx context.Context, eventID uint64) ([]uint64, error)
	TicketsByOwnerForEvent(ctx context.Context, owner string, eventID uint64) ([]uint64, error)
	Ticket(ctx context.Context, tokenID uint64) (*chain.TicketInfo, error)
	TicketPrice(ctx context.Context) (*big.Int, error)
	MaxTicketsPerEvent(ctx context.Context) (uint64, error)

	Mint(ctx context.Context, req chain.MintRequest) (*chain.MintResult, error)
	Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error)
}

// WalletState is the read side of the wallet session plus the network guard
type WalletState interface {
	Snapshot() wallet.Snapshot
	EnsureNetwork(ctx context.Context, required *config.NetworkConfig) error
}

var _ TicketChain = (*chain.Gateway)(nil)
