package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/events"
	"ticket-backend/internal/interfaces"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"
	"ticket-backend/internal/utils"

	"github.com/shopspring/decimal"
)

// PurchaseRequest a request to issue Quantity tickets of one event to Wallet
type PurchaseRequest struct {
	EventID        uint64
	Wallet         string
	UserID         *string
	Quantity       int
	PricePerTicket decimal.Decimal // native units; zero pays the contract price
	MetadataURI    string          // empty builds the default inline metadata
}

// IssuedTicket one confirmed mint
type IssuedTicket struct {
	TokenID  uint64 `json:"token_id"`
	TxHash   string `json:"tx_hash,omitempty"`
	TicketID string `json:"ticket_id"`
	Recorded bool   `json:"recorded"` // false: the ledger write is parked for retry
	Adopted  bool   `json:"adopted"`  // found on chain after a confirmation timeout
}

// IssuedTickets the outcome of a purchase. Issued is always a prefix of the
// requested quantity; Err is set when the sequence stopped early.
type IssuedTickets struct {
	EventID   uint64         `json:"event_id"`
	Wallet    string         `json:"wallet"`
	Requested int            `json:"requested"`
	Issued    []IssuedTicket `json:"issued"`
	Err       error          `json:"-"`
}

// Complete reports whether every requested ticket was issued
func (r *IssuedTickets) Complete() bool {
	return r.Err == nil && len(r.Issued) == r.Requested
}

// Remaining number of requested tickets not issued
func (r *IssuedTickets) Remaining() int {
	return r.Requested - len(r.Issued)
}

// TicketIssuanceService issues tickets by minting them one at a time and
// recording each confirmed mint in the off-chain ledger.
type TicketIssuanceService struct {
	chain        interfaces.TicketChain
	wallet       interfaces.WalletState
	ledger       *repository.Ledger
	writer       *LedgerWriter
	publisher    events.Publisher
	maxPerWallet uint64 // used when the contract has no MAX_TICKETS_PER_EVENT

	// one purchase at a time; mints from this process are sequential anyway
	purchaseMu chan struct{}
}

// NewTicketIssuanceService creates the issuance service
func NewTicketIssuanceService(
	ticketChain interfaces.TicketChain,
	walletState interfaces.WalletState,
	ledger *repository.Ledger,
	writer *LedgerWriter,
	publisher events.Publisher,
	maxPerWallet int,
) *TicketIssuanceService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &TicketIssuanceService{
		chain:        ticketChain,
		wallet:       walletState,
		ledger:       ledger,
		writer:       writer,
		publisher:    publisher,
		maxPerWallet: uint64(maxPerWallet),
		purchaseMu:   make(chan struct{}, 1),
	}
}

// Purchase validates the request against chain state and mints sequentially.
// Errors returned directly mean nothing was submitted; once minting starts the
// outcome is reported through IssuedTickets.Err.
func (s *TicketIssuanceService) Purchase(ctx context.Context, req PurchaseRequest) (*IssuedTickets, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	buyer := utils.NormalizeAddress(req.Wallet)

	select {
	case s.purchaseMu <- struct{}{}:
		defer func() { <-s.purchaseMu }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snapshot := s.wallet.Snapshot()
	if !snapshot.IsConnected() || !utils.SameAddress(snapshot.Address, buyer) {
		return nil, ErrWalletRequired
	}
	if err := s.wallet.EnsureNetwork(ctx, s.chain.Network()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongNetwork, err)
	}

	event, err := s.ledger.Events.GetByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !event.NFTEnabled {
		return nil, ErrNFTDisabled
	}

	remaining, err := s.supplyRemaining(ctx, event)
	if err != nil {
		return nil, err
	}
	if remaining >= 0 && remaining < req.Quantity {
		log.Printf("⚠️ [Issuance] Event %d has %d tickets left, %d requested", event.ID, remaining, req.Quantity)
		return nil, ErrSoldOut
	}

	current, err := s.chain.TicketsPerEvent(ctx, event.ID, buyer)
	if err != nil {
		return nil, chainReadError("ticketsPerEvent", err)
	}
	limit, err := s.walletLimit(ctx)
	if err != nil {
		return nil, err
	}
	if current+uint64(req.Quantity) > limit {
		log.Printf("⚠️ [Issuance] Wallet %s holds %d of %d for event %d, %d requested",
			utils.ShortAddress(buyer), current, limit, event.ID, req.Quantity)
		return nil, ErrWalletLimitExceeded
	}

	contractPrice, err := s.chain.TicketPrice(ctx)
	if err != nil {
		return nil, chainReadError("ticketPrice", err)
	}
	value := contractPrice
	if !req.PricePerTicket.IsZero() {
		offered := EthToWei(req.PricePerTicket)
		if offered.Cmp(contractPrice) < 0 {
			return nil, ErrInsufficientPayment
		}
		value = offered
	}

	metadataURI := req.MetadataURI
	if metadataURI == "" {
		metadataURI = MintMetadataURI(event)
	}

	owned, err := s.chain.TicketsByOwnerForEvent(ctx, buyer, event.ID)
	if err != nil {
		return nil, chainReadError("getTicketsByOwnerForEvent", err)
	}
	known := make(map[uint64]bool, len(owned))
	for _, id := range owned {
		known[id] = true
	}

	result := &IssuedTickets{EventID: event.ID, Wallet: buyer, Requested: req.Quantity}
	price := WeiToEth(value)

	log.Printf("🎟️ [Issuance] Minting %d ticket(s) of event %d for %s", req.Quantity, event.ID, utils.ShortAddress(buyer))
	for i := 0; i < req.Quantity; i++ {
		started := time.Now()
		minted, err := s.chain.Mint(ctx, chain.MintRequest{
			EventID:     event.ID,
			Recipient:   buyer,
			EventTitle:  event.Title,
			MetadataURI: metadataURI,
			Value:       value,
		})
		metrics.ChainWriteDuration.WithLabelValues("mint").Observe(time.Since(started).Seconds())
		settled, cancel := settledContext(ctx)
		if err != nil {
			metrics.ChainWrites.WithLabelValues("mint", string(chain.KindOf(err))).Inc()
			log.Printf("❌ [Issuance] Mint %d/%d for event %d failed: %v", i+1, req.Quantity, event.ID, err)

			if chain.KindOf(err) == chain.KindTimeout {
				// outcome unknown: adopt whatever the chain now attributes to the wallet
				s.adoptAfterTimeout(settled, event, buyer, req, price, known, result)
			}
			cancel()
			result.Err = mintError(err)
			break
		}
		metrics.ChainWrites.WithLabelValues("mint", "confirmed").Inc()
		known[minted.TokenID] = true

		issued := s.record(settled, event, buyer, req, price, minted.TokenID, minted.TxHash, false)
		cancel()
		result.Issued = append(result.Issued, issued)

		if ctx.Err() != nil && i+1 < req.Quantity {
			log.Printf("⚠️ [Issuance] Caller left after %d of %d mint(s) for event %d", i+1, req.Quantity, event.ID)
			result.Err = ctx.Err()
			break
		}
	}

	if result.Err == nil {
		log.Printf("✅ [Issuance] Issued %d ticket(s) of event %d to %s", len(result.Issued), event.ID, utils.ShortAddress(buyer))
	} else {
		log.Printf("⚠️ [Issuance] Issued %d of %d ticket(s) of event %d to %s: %v",
			len(result.Issued), req.Quantity, event.ID, utils.ShortAddress(buyer), result.Err)
	}
	return result, nil
}

// record writes the ledger half of one confirmed mint
func (s *TicketIssuanceService) record(ctx context.Context, event *models.Event, buyer string, req PurchaseRequest, price decimal.Decimal, tokenID uint64, txHash string, adopted bool) IssuedTicket {
	contract := s.chain.ContractAddress()
	rec := mintRecord{
		TicketID:        mintTicketID(contract, tokenID),
		TokenID:         tokenID,
		EventID:         event.ID,
		ContractAddress: contract,
		Owner:           buyer,
		OwnerUserID:     req.UserID,
		MetadataURI:     LedgerMetadataURI(tokenID, event.ID),
		TxHash:          txHash,
		PriceEth:        &price,
		MintedAt:        time.Now().UTC(),
	}
	recorded := s.writer.RecordMint(ctx, rec) == nil
	metrics.TicketsIssued.Inc()

	events.Emit(ctx, s.publisher, events.Event{
		Type:    events.TicketMinted,
		EventID: event.ID,
		TokenID: tokenID,
		Wallets: []string{buyer},
		TxHash:  txHash,
		Data:    map[string]interface{}{"recorded": recorded, "adopted": adopted},
	})
	return IssuedTicket{TokenID: tokenID, TxHash: txHash, TicketID: rec.TicketID, Recorded: recorded, Adopted: adopted}
}

// adoptAfterTimeout re-reads the wallet's tokens after an unconfirmed mint and
// records any token that appeared since the purchase started
func (s *TicketIssuanceService) adoptAfterTimeout(ctx context.Context, event *models.Event, buyer string, req PurchaseRequest, price decimal.Decimal, known map[uint64]bool, result *IssuedTickets) {
	owned, err := s.chain.TicketsByOwnerForEvent(ctx, buyer, event.ID)
	if err != nil {
		log.Printf("⚠️ [Issuance] Cannot re-read tokens of %s after timeout, reconciliation will pick them up: %v", utils.ShortAddress(buyer), err)
		return
	}
	for _, tokenID := range owned {
		if known[tokenID] || len(result.Issued) >= req.Quantity {
			continue
		}
		known[tokenID] = true
		log.Printf("🔍 [Issuance] Token %d appeared after mint timeout, adopting", tokenID)
		result.Issued = append(result.Issued, s.record(ctx, event, buyer, req, price, tokenID, "", true))
	}
}

// supplyRemaining returns -1 when the event has no supply cap
func (s *TicketIssuanceService) supplyRemaining(ctx context.Context, event *models.Event) (int, error) {
	if event.NFTSupply <= 0 {
		return -1, nil
	}
	minted, err := s.chain.TicketsForEvent(ctx, event.ID)
	if err != nil {
		return 0, chainReadError("getTicketsForEvent", err)
	}
	remaining := event.NFTSupply - len(minted)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// walletLimit reads MAX_TICKETS_PER_EVENT, falling back to configuration only
// when the contract does not expose it
func (s *TicketIssuanceService) walletLimit(ctx context.Context) (uint64, error) {
	limit, err := s.chain.MaxTicketsPerEvent(ctx)
	if err == nil {
		return limit, nil
	}
	if errors.Is(err, chain.ErrCallReverted) && s.maxPerWallet > 0 {
		return s.maxPerWallet, nil
	}
	return 0, chainReadError("MAX_TICKETS_PER_EVENT", err)
}

func chainReadError(method string, err error) error {
	if errors.Is(err, chain.ErrChainUnavailable) {
		return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, method, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// mintError maps gateway kinds onto service sentinels, keeping the gateway error wrapped
func mintError(err error) error {
	switch chain.KindOf(err) {
	case chain.KindWrongNetwork:
		return errors.Join(ErrWrongNetwork, err)
	case chain.KindWalletNotConnected:
		return errors.Join(ErrWalletRequired, err)
	case chain.KindInsufficientValue:
		return errors.Join(ErrInsufficientPayment, err)
	}
	if errors.Is(err, chain.ErrChainUnavailable) {
		return errors.Join(ErrChainUnavailable, err)
	}
	return err
}
