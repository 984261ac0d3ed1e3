package repository

import "gorm.io/gorm"

// Ledger groups the off-chain ledger repositories
type Ledger struct {
	Events        EventRepository
	Tickets       TicketRepository
	Listings      ListingRepository
	Transactions  TransactionRepository
	PendingWrites PendingWriteRepository
}

// NewGormLedger builds a Ledger backed by gorm
func NewGormLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		Events:        NewEventRepository(db),
		Tickets:       NewTicketRepository(db),
		Listings:      NewListingRepository(db),
		Transactions:  NewTransactionRepository(db),
		PendingWrites: NewPendingWriteRepository(db),
	}
}
