package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/events"
	"ticket-backend/internal/interfaces"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"
	"ticket-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const deactivationAttempts = 3

// ListRequest a request to list an owned ticket for sale
type ListRequest struct {
	TicketID     string
	Seller       string
	SellerUserID string
	PriceEth     decimal.Decimal
	ExpiresAt    *time.Time
}

// SaleResult the bookkeeping outcome of a listing purchase
type SaleResult struct {
	Listing     *models.MarketplaceListing `json:"listing"`
	Transaction *models.NFTTransaction     `json:"transaction"`
	// Pending is set when the sale record waits on a parked listing deactivation
	Pending bool `json:"pending"`
}

// TransferResult a confirmed direct transfer
type TransferResult struct {
	TicketID string `json:"ticket_id"`
	TokenID  uint64 `json:"token_id"`
	TxHash   string `json:"tx_hash"`
	Recorded bool   `json:"recorded"`
}

// MarketplaceService lists, sells and transfers tickets. All writes to one
// ticket's rows happen under that ticket's lock.
type MarketplaceService struct {
	chain     interfaces.TicketChain
	ledger    *repository.Ledger
	writer    *LedgerWriter
	pricing   *PricingService
	publisher events.Publisher
	locks     *keyedLocks
	now       func() time.Time
}

// NewMarketplaceService creates the marketplace service
func NewMarketplaceService(
	ticketChain interfaces.TicketChain,
	ledger *repository.Ledger,
	writer *LedgerWriter,
	pricing *PricingService,
	publisher events.Publisher,
) *MarketplaceService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &MarketplaceService{
		chain:     ticketChain,
		ledger:    ledger,
		writer:    writer,
		pricing:   pricing,
		publisher: publisher,
		locks:     ticketLocks,
		now:       time.Now,
	}
}

// List creates an active listing. Ownership is checked against the mirror
// only; purchase re-checks it on chain.
func (s *MarketplaceService) List(ctx context.Context, req ListRequest) (*models.MarketplaceListing, error) {
	if !req.PriceEth.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry is in the past", ErrInvalidPrice)
	}
	seller := utils.NormalizeAddress(req.Seller)

	unlock := s.locks.lock(req.TicketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if !utils.SameAddress(ticket.OwnerWalletAddress, seller) {
		s.count("list", "not_owner")
		return nil, ErrNotOwner
	}
	active, err := s.ledger.Listings.FindActiveByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("load active listings: %w", err)
	}
	for _, l := range active {
		if !l.IsExpired(s.now()) {
			return nil, ErrAlreadyListed
		}
		s.deactivate(ctx, l, models.ListingReasonExpired, ticket)
	}

	listing := &models.MarketplaceListing{
		ID:                  uuid.NewString(),
		NFTTicketID:         ticket.ID,
		EventID:             ticket.EventID,
		SellerWalletAddress: seller,
		SellerUserID:        req.SellerUserID,
		PriceEth:            req.PriceEth,
		IsActive:            true,
		ExpiresAt:           req.ExpiresAt,
	}
	if err := s.ledger.Listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	s.count("list", "ok")
	log.Printf("🏷️ [Marketplace] Listed ticket %s (token %d) for %s by %s",
		ticket.ID, ticket.TokenID, listing.PriceEth.String(), utils.ShortAddress(seller))

	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.ListingCreated,
		EventID:   ticket.EventID,
		TokenID:   ticket.TokenID,
		ListingID: listing.ID,
		Wallets:   []string{seller},
		Data:      map[string]interface{}{"price_eth": listing.PriceEth.String()},
	})
	return listing, nil
}

// Purchase records the sale of an active listing to buyer.
// Settlement of the sale price happens outside this service.
func (s *MarketplaceService) Purchase(ctx context.Context, listingID, buyer string, buyerUserID *string) (*SaleResult, error) {
	buyer = utils.NormalizeAddress(buyer)
	if !utils.IsEvmAddress(buyer) {
		return nil, ErrInvalidRecipient
	}

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(listing.NFTTicketID)
	defer unlock()

	// re-read under the ticket lock: a concurrent purchase may have won
	listing, err = s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, listing.NFTTicketID)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		s.count("purchase", "inactive")
		return nil, ErrListingInactive
	}
	if listing.IsExpired(s.now()) {
		s.deactivate(ctx, listing, models.ListingReasonExpired, ticket)
		s.count("purchase", "expired")
		return nil, ErrListingInactive
	}
	seller := listing.SellerWalletAddress
	if utils.SameAddress(seller, buyer) {
		return nil, ErrSelfPurchase
	}

	chainOwner, err := s.chain.OwnerOf(ctx, ticket.TokenID)
	if err != nil {
		return nil, chainReadError("ownerOf", err)
	}
	if !utils.SameAddress(chainOwner, seller) {
		log.Printf("⚠️ [Marketplace] Listing %s is stale: seller %s, chain owner %s",
			listing.ID, utils.ShortAddress(seller), utils.ShortAddress(chainOwner))
		s.deactivate(ctx, listing, models.ListingReasonStale, ticket)
		s.count("purchase", "stale")
		return nil, ErrStaleListing
	}

	moved, err := s.ledger.Tickets.UpdateOwnerIf(ctx, ticket.ID, ticket.OwnerWalletAddress, buyer, buyerUserID)
	if err != nil {
		s.count("purchase", "error")
		return nil, fmt.Errorf("update ticket owner: %w", err)
	}
	if !moved {
		s.count("purchase", "conflict")
		return nil, fmt.Errorf("%w: ticket %s", ErrOwnerConflict, ticket.ID)
	}
	if !utils.SameAddress(ticket.OwnerWalletAddress, seller) {
		log.Printf("⚠️ [Marketplace] Mirror owner of ticket %s was %s, chain confirmed seller %s",
			ticket.ID, utils.ShortAddress(ticket.OwnerWalletAddress), utils.ShortAddress(seller))
	}

	fee, proceeds := s.pricing.FeeBreakdown(listing.PriceEth)
	price := listing.PriceEth
	listingRef := listing.ID
	from := seller
	tx := &models.NFTTransaction{
		ID:                recordID("sale", listing.ID),
		NFTTicketID:       ticket.ID,
		TokenID:           ticket.TokenID,
		EventID:           ticket.EventID,
		ListingID:         &listingRef,
		Kind:              models.TransactionKindSale,
		TransactionHash:   "marketplace_" + strconv.FormatInt(s.now().UnixMilli(), 10) + "_" + listing.ID,
		FromWallet:        &from,
		ToWallet:          buyer,
		PriceEth:          &price,
		FeeEth:            &fee,
		SellerProceedsEth: &proceeds,
		Status:            models.TransactionStatusPending,
	}

	d := listingDeactivation{ListingID: listing.ID, Reason: models.ListingReasonSold}
	deactivated, err := s.writer.DeactivateListing(ctx, d, deactivationAttempts)
	switch {
	case err != nil:
		// ownership already moved; the listing must still go inactive
		d.ConfirmTransactionID = tx.ID
		s.writer.ParkListingDeactivation(ctx, d, ticket, err)
	case !deactivated:
		// lost the compare-and-set; hand the ticket back
		if _, rbErr := s.ledger.Tickets.UpdateOwnerIf(ctx, ticket.ID, buyer, ticket.OwnerWalletAddress, ticket.OwnerUserID); rbErr != nil {
			log.Printf("❌ [Marketplace] Cannot restore owner of ticket %s: %v", ticket.ID, rbErr)
		}
		s.count("purchase", "inactive")
		return nil, ErrListingInactive
	default:
		confirmedAt := s.now().UTC()
		tx.Status = models.TransactionStatusConfirmed
		tx.ConfirmedAt = &confirmedAt
	}

	recorded := s.writer.RecordOwnerChange(ctx, ownerChange{
		TicketID:      ticket.ID,
		TokenID:       ticket.TokenID,
		EventID:       ticket.EventID,
		From:          seller,
		To:            buyer,
		ToUserID:      buyerUserID,
		Transaction:   tx,
		SkipOwnership: true,
	}) == nil
	if !recorded {
		log.Printf("⚠️ [Marketplace] Sale record of listing %s parked for retry", listing.ID)
	}

	s.count("purchase", "ok")
	log.Printf("✅ [Marketplace] Sold ticket %s (token %d) %s -> %s for %s (fee %s, proceeds %s)",
		ticket.ID, ticket.TokenID, utils.ShortAddress(seller), utils.ShortAddress(buyer),
		price.String(), fee.String(), proceeds.String())

	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.TicketSold,
		EventID:   ticket.EventID,
		TokenID:   ticket.TokenID,
		ListingID: listing.ID,
		Wallets:   []string{seller, buyer},
		Data: map[string]interface{}{
			"price_eth":           price.String(),
			"fee_eth":             fee.String(),
			"seller_proceeds_eth": proceeds.String(),
			"status":              string(tx.Status),
		},
	})

	listing.IsActive = false
	listing.DeactivationReason = models.ListingReasonSold
	return &SaleResult{Listing: listing, Transaction: tx, Pending: tx.Status == models.TransactionStatusPending}, nil
}

// Cancel deactivates a listing on behalf of its seller
func (s *MarketplaceService) Cancel(ctx context.Context, listingID, requester string) error {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(listing.NFTTicketID)
	defer unlock()

	listing, err = s.loadListing(ctx, listingID)
	if err != nil {
		return err
	}
	if !utils.SameAddress(listing.SellerWalletAddress, requester) {
		s.count("cancel", "not_seller")
		return ErrNotSeller
	}
	if !listing.IsActive {
		return ErrListingInactive
	}
	deactivated, err := s.writer.DeactivateListing(ctx, listingDeactivation{ListingID: listing.ID, Reason: models.ListingReasonCancelled}, 1)
	if err != nil {
		return fmt.Errorf("cancel listing: %w", err)
	}
	if !deactivated {
		return ErrListingInactive
	}
	s.count("cancel", "ok")
	log.Printf("🗑️ [Marketplace] Listing %s cancelled by seller", listing.ID)
	return nil
}

// Transfer moves a ticket on chain and then mirrors the new owner. Any
// active listing of the ticket is deactivated.
func (s *MarketplaceService) Transfer(ctx context.Context, ticketID, from, to string, toUserID *string) (*TransferResult, error) {
	from = utils.NormalizeAddress(from)
	if !utils.IsEvmAddress(to) {
		return nil, ErrInvalidRecipient
	}
	to = utils.NormalizeAddress(to)
	if utils.SameAddress(from, to) {
		return nil, ErrSelfTransfer
	}

	unlock := s.locks.lock(ticketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !utils.SameAddress(ticket.OwnerWalletAddress, from) {
		return nil, ErrNotOwner
	}

	started := s.now()
	txHash, err := s.chain.Transfer(ctx, ticket.TokenID, from, to)
	metrics.ChainWriteDuration.WithLabelValues("transfer").Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ChainWrites.WithLabelValues("transfer", string(chain.KindOf(err))).Inc()
		s.count("transfer", "error")
		return nil, transferError(err)
	}
	metrics.ChainWrites.WithLabelValues("transfer", "confirmed").Inc()

	ctx, cancel := settledContext(ctx)
	defer cancel()

	confirmedAt := s.now().UTC()
	sender := from
	recorded := s.writer.RecordOwnerChange(ctx, ownerChange{
		TicketID: ticket.ID,
		TokenID:  ticket.TokenID,
		EventID:  ticket.EventID,
		From:     ticket.OwnerWalletAddress,
		To:       to,
		ToUserID: toUserID,
		Transaction: &models.NFTTransaction{
			ID:              recordID("transfer", ticket.ID, txHash),
			NFTTicketID:     ticket.ID,
			TokenID:         ticket.TokenID,
			EventID:         ticket.EventID,
			Kind:            models.TransactionKindTransfer,
			TransactionHash: txHash,
			FromWallet:      &sender,
			ToWallet:        to,
			Status:          models.TransactionStatusConfirmed,
			ConfirmedAt:     &confirmedAt,
		},
	}) == nil

	active, err := s.ledger.Listings.FindActiveByTicket(ctx, ticket.ID)
	if err != nil {
		log.Printf("⚠️ [Marketplace] Cannot load listings of transferred ticket %s, reconciliation will clear them: %v", ticket.ID, err)
	}
	for _, l := range active {
		s.deactivate(ctx, l, models.ListingReasonTransferred, ticket)
	}

	s.count("transfer", "ok")
	log.Printf("✅ [Marketplace] Transferred token %d %s -> %s (tx %s)", ticket.TokenID, utils.ShortAddress(from), utils.ShortAddress(to), txHash)
	events.Emit(ctx, s.publisher, events.Event{
		Type:    events.TicketTransferred,
		EventID: ticket.EventID,
		TokenID: ticket.TokenID,
		Wallets: []string{from, to},
		TxHash:  txHash,
		Data:    map[string]interface{}{"recorded": recorded},
	})
	return &TransferResult{TicketID: ticket.ID, TokenID: ticket.TokenID, TxHash: txHash, Recorded: recorded}, nil
}

// ActiveListings lists active, unexpired listings of an event
func (s *MarketplaceService) ActiveListings(ctx context.Context, eventID uint64, limit int) ([]*models.MarketplaceListing, error) {
	listings, err := s.ledger.Listings.FindActiveByEvent(ctx, eventID, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]*models.MarketplaceListing, 0, len(listings))
	for _, l := range listings {
		if !l.IsExpired(now) {
			result = append(result, l)
		}
	}
	return result, nil
}

// RecentActivity returns the latest transaction records, newest first
func (s *MarketplaceService) RecentActivity(ctx context.Context, limit int) ([]*models.NFTTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.ledger.Transactions.ListRecent(ctx, limit)
}

// deactivate flips a listing inactive, parking the write if it keeps failing
func (s *MarketplaceService) deactivate(ctx context.Context, listing *models.MarketplaceListing, reason string, ticket *models.NFTTicket) {
	d := listingDeactivation{ListingID: listing.ID, Reason: reason}
	if _, err := s.writer.DeactivateListing(ctx, d, deactivationAttempts); err != nil {
		s.writer.ParkListingDeactivation(ctx, d, ticket, err)
		return
	}
	listing.IsActive = false
	listing.DeactivationReason = reason
}

func (s *MarketplaceService) loadListing(ctx context.Context, id string) (*models.MarketplaceListing, error) {
	listing, err := s.ledger.Listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}
	return listing, nil
}

func (s *MarketplaceService) loadTicket(ctx context.Context, id string) (*models.NFTTicket, error) {
	ticket, err := s.ledger.Tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return ticket, nil
}

func (s *MarketplaceService) count(operation, result string) {
	metrics.MarketplaceOperations.WithLabelValues(operation, result).Inc()
}

// transferError maps gateway kinds onto service sentinels
func transferError(err error) error {
	switch chain.KindOf(err) {
	case chain.KindInvalidRecipient:
		return errors.Join(ErrInvalidRecipient, err)
	case chain.KindSelfTransfer:
		return errors.Join(ErrSelfTransfer, err)
	case chain.KindWrongNetwork:
		return errors.Join(ErrWrongNetwork, err)
	case chain.KindWalletNotConnected:
		return errors.Join(ErrWalletRequired, err)
	}
	if errors.Is(err, chain.ErrChainUnavailable) {
		return errors.Join(ErrChainUnavailable, err)
	}
	return err
}
