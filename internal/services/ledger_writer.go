package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"ticket-backend/internal/events"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledgerWriteTimeout bounds the ledger half of a chain write once the caller is gone
const ledgerWriteTimeout = 30 * time.Second

// settledContext detaches the ledger half of a submitted chain write from the
// request so a disconnect cannot strand a confirmed token without its row
func settledContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

// ErrOwnerConflict the mirror row shows an owner that is neither the expected
// previous owner nor the new one
var ErrOwnerConflict = errors.New("ticket owner changed underneath the write")

// mintRecord is the off-chain half of a confirmed mint
type mintRecord struct {
	TicketID        string           `json:"ticket_id"`
	TokenID         uint64           `json:"token_id"`
	EventID         uint64           `json:"event_id"`
	ContractAddress string           `json:"contract_address"`
	Owner           string           `json:"owner"`
	OwnerUserID     *string          `json:"owner_user_id,omitempty"`
	MetadataURI     string           `json:"metadata_uri"`
	TxHash          string           `json:"tx_hash"`
	PriceEth        *decimal.Decimal `json:"price_eth,omitempty"`
	IsUsed          bool             `json:"is_used"`
	MintedAt        time.Time        `json:"minted_at"`
}

// ownerChange is the off-chain half of a sale or a confirmed transfer
type ownerChange struct {
	TicketID      string                 `json:"ticket_id"`
	TokenID       uint64                 `json:"token_id"`
	EventID       uint64                 `json:"event_id"`
	From          string                 `json:"from"`
	To            string                 `json:"to"`
	ToUserID      *string                `json:"to_user_id,omitempty"`
	Transaction   *models.NFTTransaction `json:"transaction"`
	SkipOwnership bool                   `json:"skip_ownership,omitempty"` // ownership already moved, only the record is missing
}

// listingDeactivation a listing that must go inactive, optionally confirming the
// sale record that waits on it
type listingDeactivation struct {
	ListingID            string `json:"listing_id"`
	Reason               string `json:"reason"`
	ConfirmTransactionID string `json:"confirm_transaction_id,omitempty"`
}

// deterministic record ids make replays hit ErrDuplicate instead of double-writing
var recordNamespace = uuid.MustParse("6f0b6e4a-3c1d-4f4e-9a57-2d1f0c7b9e11")

func recordID(parts ...string) string {
	return uuid.NewSHA1(recordNamespace, []byte(strings.Join(parts, ":"))).String()
}

func mintTicketID(contract string, tokenID uint64) string {
	return recordID("ticket", contract, strconv.FormatUint(tokenID, 10))
}

func mintTransactionID(contract string, tokenID uint64) string {
	return recordID("mint", contract, strconv.FormatUint(tokenID, 10))
}

// LedgerWriter applies off-chain writes that follow an already-settled fact.
// A write that fails is parked as a PendingLedgerWrite and replayed later;
// every apply is idempotent so replays converge.
type LedgerWriter struct {
	ledger     *repository.Ledger
	publisher  events.Publisher
	maxRetries int
	now        func() time.Time
}

// NewLedgerWriter creates a ledger writer
func NewLedgerWriter(ledger *repository.Ledger, publisher events.Publisher, maxRetries int) *LedgerWriter {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &LedgerWriter{ledger: ledger, publisher: publisher, maxRetries: maxRetries, now: time.Now}
}

// RecordMint writes the ticket row and its mint transaction. On failure the
// write is parked for retry and the original error returned.
func (w *LedgerWriter) RecordMint(ctx context.Context, rec mintRecord) error {
	if rec.TicketID == "" {
		rec.TicketID = mintTicketID(rec.ContractAddress, rec.TokenID)
	}
	err := w.applyMint(ctx, rec)
	if err == nil {
		return nil
	}
	log.Printf("❌ [Ledger] Mint record for token %d failed: %v", rec.TokenID, err)
	w.park(ctx, &models.PendingLedgerWrite{
		Kind:          models.PendingLedgerWriteKindMint,
		TokenID:       rec.TokenID,
		EventID:       rec.EventID,
		WalletAddress: rec.Owner,
		TxHash:        rec.TxHash,
	}, rec, err)
	return err
}

func (w *LedgerWriter) applyMint(ctx context.Context, rec mintRecord) error {
	ticket := &models.NFTTicket{
		ID:                 rec.TicketID,
		TokenID:            rec.TokenID,
		ContractAddress:    rec.ContractAddress,
		EventID:            rec.EventID,
		OwnerWalletAddress: rec.Owner,
		OwnerUserID:        rec.OwnerUserID,
		MetadataURI:        rec.MetadataURI,
		MintTxHash:         rec.TxHash,
		IsUsed:             rec.IsUsed,
		MintedAt:           rec.MintedAt,
	}
	if err := w.ledger.Tickets.Create(ctx, ticket); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("insert ticket: %w", err)
		}
		existing, err := w.ledger.Tickets.GetByToken(ctx, rec.ContractAddress, rec.TokenID)
		if err != nil {
			return fmt.Errorf("load existing ticket: %w", err)
		}
		ticket = existing
	}

	confirmedAt := rec.MintedAt
	tx := &models.NFTTransaction{
		ID:              mintTransactionID(rec.ContractAddress, rec.TokenID),
		NFTTicketID:     ticket.ID,
		TokenID:         rec.TokenID,
		EventID:         rec.EventID,
		Kind:            models.TransactionKindMint,
		TransactionHash: rec.TxHash,
		ToWallet:        rec.Owner,
		PriceEth:        rec.PriceEth,
		Status:          models.TransactionStatusConfirmed,
		ConfirmedAt:     &confirmedAt,
	}
	if err := w.ledger.Transactions.Create(ctx, tx); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("insert mint transaction: %w", err)
	}
	return nil
}

// RecordOwnerChange moves the mirror owner and appends the transaction record.
// On failure the write is parked for retry.
func (w *LedgerWriter) RecordOwnerChange(ctx context.Context, change ownerChange) error {
	err := w.applyOwnerChange(ctx, change)
	if err == nil {
		return nil
	}
	log.Printf("❌ [Ledger] Owner change for ticket %s (%s -> %s) failed: %v", change.TicketID, change.From, change.To, err)
	pending := &models.PendingLedgerWrite{
		Kind:          models.PendingLedgerWriteKindTransfer,
		TokenID:       change.TokenID,
		EventID:       change.EventID,
		WalletAddress: change.To,
	}
	if change.Transaction != nil {
		pending.TxHash = change.Transaction.TransactionHash
		if change.Transaction.ListingID != nil {
			pending.ListingID = *change.Transaction.ListingID
		}
	}
	w.park(ctx, pending, change, err)
	return err
}

func (w *LedgerWriter) applyOwnerChange(ctx context.Context, change ownerChange) error {
	if !change.SkipOwnership {
		moved, err := w.ledger.Tickets.UpdateOwnerIf(ctx, change.TicketID, change.From, change.To, change.ToUserID)
		if err != nil {
			return fmt.Errorf("update owner: %w", err)
		}
		if !moved {
			current, err := w.ledger.Tickets.GetByID(ctx, change.TicketID)
			if err != nil {
				return fmt.Errorf("reload ticket: %w", err)
			}
			if current.OwnerWalletAddress != change.To {
				return fmt.Errorf("%w: expected %s, found %s", ErrOwnerConflict, change.From, current.OwnerWalletAddress)
			}
		}
	}
	if change.Transaction == nil {
		return nil
	}
	if err := w.ledger.Transactions.Create(ctx, change.Transaction); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("insert %s transaction: %w", change.Transaction.Kind, err)
	}
	return nil
}

// DeactivateListing flips a listing inactive, retrying transient failures a few
// times before parking the write. deactivated is false when the listing was
// already inactive.
func (w *LedgerWriter) DeactivateListing(ctx context.Context, d listingDeactivation, attempts int) (deactivated bool, err error) {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		deactivated, err = w.ledger.Listings.Deactivate(ctx, d.ListingID, d.Reason)
		if err == nil {
			if deactivated {
				events.Emit(ctx, w.publisher, events.Event{
					Type:      events.ListingDeactivated,
					ListingID: d.ListingID,
					Data:      map[string]interface{}{"reason": d.Reason},
				})
			}
			return deactivated, nil
		}
		log.Printf("⚠️ [Ledger] Deactivate listing %s attempt %d/%d failed: %v", d.ListingID, i+1, attempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	return false, err
}

// ParkListingDeactivation records a deactivation that could not be applied
func (w *LedgerWriter) ParkListingDeactivation(ctx context.Context, d listingDeactivation, ticket *models.NFTTicket, cause error) {
	pending := &models.PendingLedgerWrite{
		Kind:      models.PendingLedgerWriteKindListingDeactivation,
		ListingID: d.ListingID,
	}
	if ticket != nil {
		pending.TokenID = ticket.TokenID
		pending.EventID = ticket.EventID
		pending.WalletAddress = ticket.OwnerWalletAddress
	}
	w.park(ctx, pending, d, cause)
}

func (w *LedgerWriter) applyListingDeactivation(ctx context.Context, d listingDeactivation) error {
	if _, err := w.ledger.Listings.Deactivate(ctx, d.ListingID, d.Reason); err != nil {
		return fmt.Errorf("deactivate listing: %w", err)
	}
	if d.ConfirmTransactionID != "" {
		updated, err := w.ledger.Transactions.UpdateStatus(ctx, d.ConfirmTransactionID, models.TransactionStatusConfirmed)
		if err != nil {
			return fmt.Errorf("confirm sale record: %w", err)
		}
		if !updated {
			// no transition: either already confirmed or the sale record is still parked
			if _, err := w.ledger.Transactions.GetByID(ctx, d.ConfirmTransactionID); err != nil {
				return fmt.Errorf("sale record %s not written yet: %w", d.ConfirmTransactionID, err)
			}
		}
	}
	return nil
}

// Replay re-applies a parked write
func (w *LedgerWriter) Replay(ctx context.Context, write *models.PendingLedgerWrite) error {
	switch write.Kind {
	case models.PendingLedgerWriteKindMint:
		var rec mintRecord
		if err := json.Unmarshal([]byte(write.Payload), &rec); err != nil {
			return fmt.Errorf("decode mint payload: %w", err)
		}
		return w.applyMint(ctx, rec)
	case models.PendingLedgerWriteKindTransfer:
		var change ownerChange
		if err := json.Unmarshal([]byte(write.Payload), &change); err != nil {
			return fmt.Errorf("decode transfer payload: %w", err)
		}
		return w.applyOwnerChange(ctx, change)
	case models.PendingLedgerWriteKindListingDeactivation:
		var d listingDeactivation
		if err := json.Unmarshal([]byte(write.Payload), &d); err != nil {
			return fmt.Errorf("decode deactivation payload: %w", err)
		}
		return w.applyListingDeactivation(ctx, d)
	default:
		return fmt.Errorf("unsupported pending write kind: %s", write.Kind)
	}
}

// park stores a failed write for the retry service
func (w *LedgerWriter) park(ctx context.Context, pending *models.PendingLedgerWrite, payload interface{}, cause error) {
	metrics.LedgerWriteFailures.WithLabelValues(string(pending.Kind)).Inc()

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ [Ledger] Cannot encode %s payload: %v", pending.Kind, err)
		return
	}
	now := w.now()
	pending.ID = uuid.NewString()
	pending.Status = models.PendingLedgerWriteStatusPending
	pending.Payload = string(raw)
	pending.MaxRetries = w.maxRetries
	pending.NextRetryAt = pending.CalculateNextRetryTime(now)
	if cause != nil {
		pending.OriginalError = cause.Error()
		pending.LastError = cause.Error()
	}

	if err := w.ledger.PendingWrites.Create(ctx, pending); err != nil {
		// reconciliation still recovers the write from chain state
		log.Printf("❌ [Ledger] Cannot park %s write for token %d: %v", pending.Kind, pending.TokenID, err)
		return
	}
	log.Printf("📝 [Ledger] Parked %s write %s for retry at %s", pending.Kind, pending.ID, pending.NextRetryAt.Format(time.RFC3339))

	var wallets []string
	if pending.WalletAddress != "" {
		wallets = []string{pending.WalletAddress}
	}
	events.Emit(ctx, w.publisher, events.Event{
		Type:      events.LedgerWritePending,
		EventID:   pending.EventID,
		TokenID:   pending.TokenID,
		ListingID: pending.ListingID,
		Wallets:   wallets,
		TxHash:    pending.TxHash,
		Data:      map[string]interface{}{"kind": string(pending.Kind), "pending_write_id": pending.ID},
	})
}
