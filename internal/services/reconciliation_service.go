package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/events"
	"ticket-backend/internal/interfaces"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"
	"ticket-backend/internal/utils"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// DivergenceClass kind of disagreement between chain and mirror
type DivergenceClass string

const (
	// DivergenceMissingOffchain the chain has a token the ledger never recorded
	DivergenceMissingOffchain DivergenceClass = "missing_offchain"
	// DivergenceStaleOwner the mirror owner differs from the chain owner
	DivergenceStaleOwner DivergenceClass = "stale_owner"
	// DivergencePhantomOffchain the mirror attributes a token to the wallet that the chain does not
	DivergencePhantomOffchain DivergenceClass = "phantom_offchain"
)

// Divergence one disagreement about one token
type Divergence struct {
	Class         DivergenceClass `json:"class"`
	TokenID       uint64          `json:"token_id"`
	TicketID      string          `json:"ticket_id,omitempty"`
	ChainOwner    string          `json:"chain_owner,omitempty"` // empty: the token does not exist on chain
	OffchainOwner string          `json:"offchain_owner,omitempty"`
	ListingIDs    []string        `json:"listing_ids,omitempty"` // active listings whose seller is not the chain owner
	Detail        string          `json:"detail,omitempty"`
}

// DivergenceReport the result of comparing one wallet/event on both ledgers
type DivergenceReport struct {
	Wallet          string       `json:"wallet"`
	EventID         uint64       `json:"event_id"`
	ContractAddress string       `json:"contract_address"`
	ChainCount      uint64       `json:"chain_count"` // ticketsPerEvent(eventId, wallet)
	ChainTokens     []uint64     `json:"chain_tokens"`
	OffchainTokens  []uint64     `json:"offchain_tokens"`
	CountExceeded   bool         `json:"count_exceeded"` // mirror rows outnumber ChainCount
	Divergences     []Divergence `json:"divergences"`
	CheckedAt       time.Time    `json:"checked_at"`
}

// Consistent reports whether no divergence was found
func (r *DivergenceReport) Consistent() bool {
	return len(r.Divergences) == 0
}

// Count divergences of one class
func (r *DivergenceReport) Count(class DivergenceClass) int {
	n := 0
	for _, d := range r.Divergences {
		if d.Class == class {
			n++
		}
	}
	return n
}

// RepairResult what a repair pass changed
type RepairResult struct {
	Before              *DivergenceReport `json:"before"`
	After               *DivergenceReport `json:"after"`
	Inserted            int               `json:"inserted"`
	OwnersCorrected     int               `json:"owners_corrected"`
	ListingsDeactivated int               `json:"listings_deactivated"`
	UsedSynced          int               `json:"used_synced"`
}

// Changed reports whether the repair wrote anything
func (r *RepairResult) Changed() bool {
	return r.Inserted+r.OwnersCorrected+r.ListingsDeactivated+r.UsedSynced > 0
}

// ReconciliationService compares the off-chain mirror with the chain and
// repairs the mirror. Check never writes; Repair always copies chain state.
type ReconciliationService struct {
	chain     interfaces.TicketChain
	ledger    *repository.Ledger
	writer    *LedgerWriter
	publisher events.Publisher
	locks     *keyedLocks
}

// NewReconciliationService creates the reconciliation service
func NewReconciliationService(ticketChain interfaces.TicketChain, ledger *repository.Ledger, writer *LedgerWriter, publisher events.Publisher) *ReconciliationService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReconciliationService{
		chain:     ticketChain,
		ledger:    ledger,
		writer:    writer,
		publisher: publisher,
		locks:     ticketLocks,
	}
}

// Check compares the wallet's tokens for one event on both ledgers
func (s *ReconciliationService) Check(ctx context.Context, wallet string, eventID uint64) (*DivergenceReport, error) {
	report, err := s.check(ctx, wallet, eventID)
	if err != nil {
		return nil, err
	}
	for _, d := range report.Divergences {
		metrics.Divergences.WithLabelValues(string(d.Class)).Inc()
	}
	if report.CountExceeded {
		// ticketsPerEvent only counts mints, so a ticket received by transfer lands here too
		log.Printf("⚠️ [Reconciliation] %s event %d: mirror holds %d ticket(s), ticketsPerEvent reports %d",
			utils.ShortAddress(report.Wallet), eventID, len(report.OffchainTokens), report.ChainCount)
	}
	if !report.Consistent() {
		log.Printf("⚠️ [Reconciliation] %s event %d: %d divergence(s) (missing=%d stale=%d phantom=%d)",
			utils.ShortAddress(report.Wallet), eventID, len(report.Divergences),
			report.Count(DivergenceMissingOffchain), report.Count(DivergenceStaleOwner), report.Count(DivergencePhantomOffchain))
		events.Emit(ctx, s.publisher, events.Event{
			Type:    events.DivergenceDetected,
			EventID: eventID,
			Wallets: []string{report.Wallet},
			Data: map[string]interface{}{
				"missing_offchain": report.Count(DivergenceMissingOffchain),
				"stale_owner":      report.Count(DivergenceStaleOwner),
				"phantom_offchain": report.Count(DivergencePhantomOffchain),
				"count_exceeded":   report.CountExceeded,
			},
		})
	}
	return report, nil
}

func (s *ReconciliationService) check(ctx context.Context, wallet string, eventID uint64) (*DivergenceReport, error) {
	wallet = utils.NormalizeAddress(wallet)
	if !utils.IsEvmAddress(wallet) {
		return nil, ErrInvalidRecipient
	}
	contract := s.chain.ContractAddress()

	chainTokens, err := s.chain.TicketsByOwnerForEvent(ctx, wallet, eventID)
	if err != nil {
		return nil, chainReadError("getTicketsByOwnerForEvent", err)
	}
	chainCount, err := s.chain.TicketsPerEvent(ctx, eventID, wallet)
	if err != nil {
		return nil, chainReadError("ticketsPerEvent", err)
	}
	rows, err := s.ledger.Tickets.FindByOwnerForEvent(ctx, contract, wallet, eventID)
	if err != nil {
		return nil, fmt.Errorf("load mirror rows: %w", err)
	}

	report := &DivergenceReport{
		Wallet:          wallet,
		EventID:         eventID,
		ContractAddress: contract,
		ChainCount:      chainCount,
		ChainTokens:     sortedTokens(chainTokens),
		CheckedAt:       time.Now().UTC(),
	}

	onChain := make(map[uint64]bool, len(chainTokens))
	for _, id := range chainTokens {
		onChain[id] = true
	}
	mirrored := make(map[uint64]*models.NFTTicket, len(rows))
	for _, row := range rows {
		mirrored[row.TokenID] = row
		report.OffchainTokens = append(report.OffchainTokens, row.TokenID)
	}
	report.OffchainTokens = sortedTokens(report.OffchainTokens)
	report.CountExceeded = uint64(len(rows)) > chainCount

	for _, tokenID := range report.ChainTokens {
		if _, ok := mirrored[tokenID]; ok {
			continue
		}
		row, err := s.ledger.Tickets.GetByToken(ctx, contract, tokenID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			report.Divergences = append(report.Divergences, Divergence{
				Class:      DivergenceMissingOffchain,
				TokenID:    tokenID,
				ChainOwner: wallet,
			})
		case err != nil:
			return nil, fmt.Errorf("load token %d: %w", tokenID, err)
		default:
			d := Divergence{
				Class:         DivergenceStaleOwner,
				TokenID:       tokenID,
				TicketID:      row.ID,
				ChainOwner:    wallet,
				OffchainOwner: row.OwnerWalletAddress,
			}
			if row.OwnerWalletAddress == wallet {
				d.Detail = fmt.Sprintf("mirror files token under event %d", row.EventID)
			}
			if d.ListingIDs, err = s.foreignListings(ctx, row.ID, wallet); err != nil {
				return nil, err
			}
			report.Divergences = append(report.Divergences, d)
		}
	}

	for _, tokenID := range report.OffchainTokens {
		if onChain[tokenID] {
			continue
		}
		row := mirrored[tokenID]
		chainOwner, err := s.chain.OwnerOf(ctx, tokenID)
		switch {
		case errors.Is(err, chain.ErrCallReverted):
			d := Divergence{
				Class:         DivergencePhantomOffchain,
				TokenID:       tokenID,
				TicketID:      row.ID,
				OffchainOwner: row.OwnerWalletAddress,
				Detail:        "token does not exist on chain",
			}
			if d.ListingIDs, err = s.foreignListings(ctx, row.ID, ""); err != nil {
				return nil, err
			}
			report.Divergences = append(report.Divergences, d)
		case err != nil:
			return nil, chainReadError("ownerOf", err)
		case chainOwner != wallet:
			d := Divergence{
				Class:         DivergenceStaleOwner,
				TokenID:       tokenID,
				TicketID:      row.ID,
				ChainOwner:    chainOwner,
				OffchainOwner: row.OwnerWalletAddress,
			}
			if d.ListingIDs, err = s.foreignListings(ctx, row.ID, chainOwner); err != nil {
				return nil, err
			}
			report.Divergences = append(report.Divergences, d)
		default:
			// owned by the wallet, but the chain files it under another event
			report.Divergences = append(report.Divergences, Divergence{
				Class:         DivergencePhantomOffchain,
				TokenID:       tokenID,
				TicketID:      row.ID,
				ChainOwner:    chainOwner,
				OffchainOwner: row.OwnerWalletAddress,
				Detail:        fmt.Sprintf("chain does not list token under event %d", eventID),
			})
		}
	}

	// listings of consistent rows can still be left behind by a failed deactivation
	for _, row := range rows {
		if !onChain[row.TokenID] {
			continue
		}
		ids, err := s.foreignListings(ctx, row.ID, wallet)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			report.Divergences = append(report.Divergences, Divergence{
				Class:         DivergenceStaleOwner,
				TokenID:       row.TokenID,
				TicketID:      row.ID,
				ChainOwner:    wallet,
				OffchainOwner: row.OwnerWalletAddress,
				ListingIDs:    ids,
				Detail:        "active listing by a wallet that no longer owns the token",
			})
		}
	}
	return report, nil
}

// foreignListings returns active listings of a ticket whose seller is not owner
func (s *ReconciliationService) foreignListings(ctx context.Context, ticketID, owner string) ([]string, error) {
	active, err := s.ledger.Listings.FindActiveByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load listings of ticket %s: %w", ticketID, err)
	}
	var ids []string
	for _, l := range active {
		if owner == "" || !utils.SameAddress(l.SellerWalletAddress, owner) {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

// Repair copies chain state onto the mirror for one wallet/event. Running it
// again on an unchanged chain changes nothing.
func (s *ReconciliationService) Repair(ctx context.Context, wallet string, eventID uint64) (*RepairResult, error) {
	before, err := s.Check(ctx, wallet, eventID)
	if err != nil {
		return nil, err
	}
	result := &RepairResult{Before: before}

	for _, d := range before.Divergences {
		if err := s.repairOne(ctx, before, d, result); err != nil {
			return result, fmt.Errorf("repair token %d: %w", d.TokenID, err)
		}
	}
	if err := s.syncUsed(ctx, before, result); err != nil {
		return result, err
	}

	after, err := s.check(ctx, wallet, eventID)
	if err != nil {
		return result, err
	}
	result.After = after

	if result.Changed() {
		log.Printf("🔧 [Reconciliation] Repaired %s event %d: inserted=%d owners=%d listings=%d used=%d",
			utils.ShortAddress(before.Wallet), eventID, result.Inserted, result.OwnersCorrected, result.ListingsDeactivated, result.UsedSynced)
		events.Emit(ctx, s.publisher, events.Event{
			Type:    events.LedgerRepaired,
			EventID: eventID,
			Wallets: []string{before.Wallet},
			Data: map[string]interface{}{
				"inserted":             result.Inserted,
				"owners_corrected":     result.OwnersCorrected,
				"listings_deactivated": result.ListingsDeactivated,
				"used_synced":          result.UsedSynced,
				"remaining":            len(after.Divergences),
			},
		})
	}
	return result, nil
}

func (s *ReconciliationService) repairOne(ctx context.Context, report *DivergenceReport, d Divergence, result *RepairResult) error {
	switch d.Class {
	case DivergenceMissingOffchain:
		info, err := s.chain.Ticket(ctx, d.TokenID)
		if err != nil {
			return chainReadError("tickets", err)
		}
		unlock := s.locks.lock(mintTicketID(report.ContractAddress, d.TokenID))
		defer unlock()
		rec := mintRecord{
			TicketID:        mintTicketID(report.ContractAddress, d.TokenID),
			TokenID:         d.TokenID,
			EventID:         info.EventID,
			ContractAddress: report.ContractAddress,
			Owner:           d.ChainOwner,
			MetadataURI:     LedgerMetadataURI(d.TokenID, info.EventID),
			IsUsed:          info.IsUsed,
			MintedAt:        info.MintedAt,
		}
		if err := s.writer.applyMint(ctx, rec); err != nil {
			return err
		}
		result.Inserted++
		metrics.Repairs.WithLabelValues("insert").Inc()

	case DivergenceStaleOwner, DivergencePhantomOffchain:
		unlock := s.locks.lock(d.TicketID)
		defer unlock()
		if err := s.applyChainState(ctx, d, result); err != nil {
			return err
		}
		for _, listingID := range d.ListingIDs {
			deactivated, err := s.writer.DeactivateListing(ctx, listingDeactivation{ListingID: listingID, Reason: models.ListingReasonStale}, deactivationAttempts)
			if err != nil {
				return fmt.Errorf("deactivate listing %s: %w", listingID, err)
			}
			if deactivated {
				result.ListingsDeactivated++
				metrics.Repairs.WithLabelValues("deactivate_listing").Inc()
			}
		}
	}
	return nil
}

// applyChainState overwrites owner, event and use flag from the chain. A token
// the chain does not know is parked on the zero address; rows are never deleted.
func (s *ReconciliationService) applyChainState(ctx context.Context, d Divergence, result *RepairResult) error {
	row, err := s.ledger.Tickets.GetByID(ctx, d.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", d.TicketID, err)
	}
	owner, eventID, isUsed := zeroAddress, row.EventID, row.IsUsed
	if d.ChainOwner != "" {
		info, err := s.chain.Ticket(ctx, d.TokenID)
		if err != nil {
			return chainReadError("tickets", err)
		}
		owner, eventID, isUsed = d.ChainOwner, info.EventID, info.IsUsed
	}
	if row.OwnerWalletAddress == owner && row.EventID == eventID && row.IsUsed == isUsed {
		return nil
	}
	if err := s.ledger.Tickets.ApplyChainState(ctx, row.ID, owner, eventID, isUsed); err != nil {
		return fmt.Errorf("apply chain state to ticket %s: %w", row.ID, err)
	}
	log.Printf("🔧 [Reconciliation] Token %d: owner %s -> %s, event %d -> %d",
		d.TokenID, utils.ShortAddress(row.OwnerWalletAddress), utils.ShortAddress(owner), row.EventID, eventID)
	result.OwnersCorrected++
	metrics.Repairs.WithLabelValues("correct_owner").Inc()
	return nil
}

// syncUsed mirrors tickets(tokenId).isUsed for rows both ledgers agree on
func (s *ReconciliationService) syncUsed(ctx context.Context, report *DivergenceReport, result *RepairResult) error {
	rows, err := s.ledger.Tickets.FindByOwnerForEvent(ctx, report.ContractAddress, report.Wallet, report.EventID)
	if err != nil {
		return fmt.Errorf("load mirror rows: %w", err)
	}
	for _, row := range rows {
		info, err := s.chain.Ticket(ctx, row.TokenID)
		if err != nil {
			if errors.Is(err, chain.ErrCallReverted) {
				continue
			}
			return chainReadError("tickets", err)
		}
		if info.IsUsed == row.IsUsed {
			continue
		}
		if err := s.ledger.Tickets.ApplyChainState(ctx, row.ID, row.OwnerWalletAddress, row.EventID, info.IsUsed); err != nil {
			return fmt.Errorf("sync used flag of ticket %s: %w", row.ID, err)
		}
		result.UsedSynced++
		metrics.Repairs.WithLabelValues("sync_used").Inc()
	}
	return nil
}

// RepairToken reconciles a single token against its chain owner, as reported
// by a chain Transfer notification
func (s *ReconciliationService) RepairToken(ctx context.Context, tokenID uint64) (*RepairResult, error) {
	owner, err := s.chain.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, chainReadError("ownerOf", err)
	}
	info, err := s.chain.Ticket(ctx, tokenID)
	if err != nil {
		return nil, chainReadError("tickets", err)
	}
	return s.Repair(ctx, owner, info.EventID)
}

func sortedTokens(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
