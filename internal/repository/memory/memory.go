// Package memory is an in-process implementation of the ledger repositories.
// It is used by tests and by the memory database driver for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"

	"github.com/google/uuid"
)

// Store holds all ledger tables behind one mutex
type Store struct {
	mu           sync.Mutex
	nextEventID  uint64
	events       map[uint64]*models.Event
	tickets      map[string]*models.NFTTicket
	listings     map[string]*models.MarketplaceListing
	transactions map[string]*models.NFTTransaction
	txOrder      []string
	pending      map[string]*models.PendingLedgerWrite

	// FailWrites, when set, is consulted before every mutating call.
	// Tests use it to simulate an unavailable database.
	FailWrites func(op string) error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		events:       make(map[uint64]*models.Event),
		tickets:      make(map[string]*models.NFTTicket),
		listings:     make(map[string]*models.MarketplaceListing),
		transactions: make(map[string]*models.NFTTransaction),
		pending:      make(map[string]*models.PendingLedgerWrite),
	}
}

// Ledger exposes the store through the repository interfaces
func (s *Store) Ledger() *repository.Ledger {
	return &repository.Ledger{
		Events:        &eventRepo{s},
		Tickets:       &ticketRepo{s},
		Listings:      &listingRepo{s},
		Transactions:  &transactionRepo{s},
		PendingWrites: &pendingRepo{s},
	}
}

// fail reports a cancelled caller or an injected failure before a write
func (s *Store) fail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailWrites == nil {
		return nil
	}
	return s.FailWrites(op)
}

// Tickets returns copies of every ticket row
func (s *Store) Tickets() []models.NFTTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NFTTicket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Transactions returns copies of every transaction row in insertion order
func (s *Store) Transactions() []models.NFTTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NFTTransaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		out = append(out, *s.transactions[id])
	}
	return out
}

// PendingWrites returns copies of every pending write
func (s *Store) PendingWrites() []models.PendingLedgerWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingLedgerWrite, 0, len(s.pending))
	for _, w := range s.pending {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type eventRepo struct{ s *Store }

func (r *eventRepo) Create(ctx context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "event.create"); err != nil {
		return err
	}
	if event.ID == 0 {
		r.s.nextEventID++
		event.ID = r.s.nextEventID
	} else if _, ok := r.s.events[event.ID]; ok {
		return repository.ErrDuplicate
	}
	if event.ID > r.s.nextEventID {
		r.s.nextEventID = event.ID
	}
	now := time.Now()
	event.CreatedAt, event.UpdatedAt = now, now
	cp := *event
	r.s.events[event.ID] = &cp
	return nil
}

func (r *eventRepo) GetByID(ctx context.Context, id uint64) (*models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *eventRepo) Update(ctx context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "event.update"); err != nil {
		return err
	}
	if _, ok := r.s.events[event.ID]; !ok {
		return repository.ErrNotFound
	}
	event.UpdatedAt = time.Now()
	cp := *event
	r.s.events[event.ID] = &cp
	return nil
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *models.NFTTicket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "ticket.create"); err != nil {
		return err
	}
	for _, t := range r.s.tickets {
		if t.TokenID == ticket.TokenID && t.ContractAddress == ticket.ContractAddress {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.s.tickets[ticket.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	cp := *ticket
	r.s.tickets[ticket.ID] = &cp
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*models.NFTTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *ticketRepo) GetByToken(ctx context.Context, contractAddress string, tokenID uint64) (*models.NFTTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tickets {
		if t.TokenID == tokenID && t.ContractAddress == contractAddress {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ticketRepo) FindByOwnerForEvent(ctx context.Context, contractAddress, owner string, eventID uint64) ([]*models.NFTTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.NFTTicket
	for _, t := range r.s.tickets {
		if t.ContractAddress == contractAddress && t.OwnerWalletAddress == owner && t.EventID == eventID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (r *ticketRepo) CountByEvent(ctx context.Context, eventID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tickets {
		if t.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (r *ticketRepo) UpdateOwnerIf(ctx context.Context, id, expectedOwner, newOwner string, newUserID *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "ticket.update_owner"); err != nil {
		return false, err
	}
	t, ok := r.s.tickets[id]
	if !ok || t.OwnerWalletAddress != expectedOwner {
		return false, nil
	}
	t.OwnerWalletAddress = newOwner
	t.OwnerUserID = newUserID
	t.UpdatedAt = time.Now()
	return true, nil
}

func (r *ticketRepo) ApplyChainState(ctx context.Context, id, owner string, eventID uint64, isUsed bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "ticket.apply_chain_state"); err != nil {
		return err
	}
	t, ok := r.s.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.OwnerWalletAddress != owner {
		t.OwnerUserID = nil
	}
	t.OwnerWalletAddress = owner
	t.EventID = eventID
	t.IsUsed = isUsed
	t.UpdatedAt = time.Now()
	return nil
}

func (r *ticketRepo) ListOwnerEventPairs(ctx context.Context, limit int) ([]models.OwnerEventPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[models.OwnerEventPair]bool)
	var out []models.OwnerEventPair
	for _, t := range r.s.tickets {
		p := models.OwnerEventPair{OwnerWalletAddress: t.OwnerWalletAddress, EventID: t.EventID}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].OwnerWalletAddress < out[j].OwnerWalletAddress
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type listingRepo struct{ s *Store }

func (r *listingRepo) Create(ctx context.Context, listing *models.MarketplaceListing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "listing.create"); err != nil {
		return err
	}
	if _, ok := r.s.listings[listing.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	listing.CreatedAt, listing.UpdatedAt = now, now
	cp := *listing
	r.s.listings[listing.ID] = &cp
	return nil
}

func (r *listingRepo) GetByID(ctx context.Context, id string) (*models.MarketplaceListing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *listingRepo) FindActiveByTicket(ctx context.Context, ticketID string) ([]*models.MarketplaceListing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.MarketplaceListing
	for _, l := range r.s.listings {
		if l.NFTTicketID == ticketID && l.IsActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *listingRepo) FindActiveByEvent(ctx context.Context, eventID uint64, limit int) ([]*models.MarketplaceListing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.MarketplaceListing
	for _, l := range r.s.listings {
		if l.EventID == eventID && l.IsActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *listingRepo) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "listing.deactivate"); err != nil {
		return false, err
	}
	l, ok := r.s.listings[id]
	if !ok || !l.IsActive {
		return false, nil
	}
	now := time.Now()
	l.IsActive = false
	l.DeactivationReason = reason
	l.DeactivatedAt = &now
	l.UpdatedAt = now
	return true, nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(ctx context.Context, tx *models.NFTTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "transaction.create"); err != nil {
		return err
	}
	if _, ok := r.s.transactions[tx.ID]; ok {
		return repository.ErrDuplicate
	}
	if tx.ListingID != nil {
		for _, existing := range r.s.transactions {
			if existing.ListingID != nil && *existing.ListingID == *tx.ListingID {
				return repository.ErrDuplicate
			}
		}
	}
	tx.CreatedAt = time.Now()
	cp := *tx
	r.s.transactions[tx.ID] = &cp
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*models.NFTTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *transactionRepo) FindByTicket(ctx context.Context, ticketID string) ([]*models.NFTTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.NFTTransaction
	for _, id := range r.s.txOrder {
		if tx := r.s.transactions[id]; tx.NFTTicketID == ticketID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *transactionRepo) FindByListing(ctx context.Context, listingID string) (*models.NFTTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.transactions {
		if tx.ListingID != nil && *tx.ListingID == listingID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *transactionRepo) ListRecent(ctx context.Context, limit int) ([]*models.NFTTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.NFTTransaction
	for i := len(r.s.txOrder) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *r.s.transactions[r.s.txOrder[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(ctx, "transaction.update_status"); err != nil {
		return false, err
	}
	tx, ok := r.s.transactions[id]
	if !ok || !tx.CanTransitionTo(status) {
		return false, nil
	}
	tx.Status = status
	if status == models.TransactionStatusConfirmed {
		now := time.Now()
		tx.ConfirmedAt = &now
	}
	return true, nil
}

type pendingRepo struct{ s *Store }

func (r *pendingRepo) Create(ctx context.Context, write *models.PendingLedgerWrite) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if write.ID == "" {
		write.ID = uuid.NewString()
	}
	now := time.Now()
	write.CreatedAt, write.UpdatedAt = now, now
	cp := *write
	r.s.pending[write.ID] = &cp
	return nil
}

func (r *pendingRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.PendingLedgerWrite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PendingLedgerWrite
	for _, w := range r.s.pending {
		if w.ShouldRetry(now) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *pendingRepo) Update(ctx context.Context, write *models.PendingLedgerWrite) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pending[write.ID]; !ok {
		return repository.ErrNotFound
	}
	write.UpdatedAt = time.Now()
	cp := *write
	r.s.pending[write.ID] = &cp
	return nil
}

func (r *pendingRepo) CountByStatus(ctx context.Context, status models.PendingLedgerWriteStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, w := range r.s.pending {
		if w.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *pendingRepo) ListByStatus(ctx context.Context, status models.PendingLedgerWriteStatus, limit int) ([]*models.PendingLedgerWrite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PendingLedgerWrite
	for _, w := range r.s.pending {
		if status == "" || w.Status == status {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
