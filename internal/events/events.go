// Package events carries domain events from the ticket services to
// subscribers (NATS, websocket activity feed).
package events

import (
	"context"
	"log"
	"time"
)

// Type domain event type
type Type string

const (
	TicketMinted         Type = "ticket.minted"
	TicketSold           Type = "ticket.sold"
	TicketTransferred    Type = "ticket.transferred"
	ListingCreated       Type = "listing.created"
	ListingDeactivated   Type = "listing.deactivated"
	LedgerWritePending   Type = "ledger.write_pending"
	LedgerWriteEscalated Type = "ledger.write_escalated"
	DivergenceDetected   Type = "reconciliation.divergence"
	LedgerRepaired       Type = "reconciliation.repaired"
)

// Event a domain event
type Event struct {
	Type       Type                   `json:"type"`
	EventID    uint64                 `json:"event_id,omitempty"`
	TokenID    uint64                 `json:"token_id,omitempty"`
	ListingID  string                 `json:"listing_id,omitempty"`
	Wallets    []string               `json:"wallets,omitempty"` // wallets the event concerns
	TxHash     string                 `json:"tx_hash,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher delivers domain events. Publishing is best effort: a failure
// never undoes the ledger change the event describes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events
type NoopPublisher struct{}

// Publish implements Publisher
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// MultiPublisher fans an event out to several publishers
type MultiPublisher []Publisher

// Publish delivers to every publisher and returns the first error
func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			log.Printf("⚠️ [Events] Publish %s failed: %v", event.Type, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Emit stamps and publishes event, logging instead of returning failures
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("⚠️ [Events] Dropped %s: %v", event.Type, err)
	}
}
