package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ticket-backend/internal/interfaces"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// ErrNotEventCreator only the organizer may change an event
var ErrNotEventCreator = errors.New("only the event creator can update this event")

// CreateEventRequest fields of a new event
type CreateEventRequest struct {
	Title          string
	Description    string
	Date           time.Time
	Location       string
	MaxAttendees   int
	CreatorID      string
	NFTEnabled     bool
	TicketPriceUSD decimal.Decimal
	NFTSupply      int
}

// UpdateEventRequest nil fields are left unchanged
type UpdateEventRequest struct {
	Title          *string
	Description    *string
	Location       *string
	Date           *time.Time
	MaxAttendees   *int
	NFTEnabled     *bool
	TicketPriceUSD *decimal.Decimal
	NFTSupply      *int
}

// onlyDescriptive reports whether the update touches title, description or location only
func (r UpdateEventRequest) onlyDescriptive() bool {
	return r.Date == nil && r.MaxAttendees == nil && r.NFTEnabled == nil &&
		r.TicketPriceUSD == nil && r.NFTSupply == nil
}

// EventView an event with its chain-derived supply figures
type EventView struct {
	*models.Event
	Minted          int `json:"minted"`
	SupplyRemaining int `json:"supply_remaining"` // -1: unlimited
}

// EventService manages the event catalogue
type EventService struct {
	ledger  *repository.Ledger
	chain   interfaces.TicketChain
	pricing *PricingService
}

// NewEventService creates the event service
func NewEventService(ledger *repository.Ledger, ticketChain interfaces.TicketChain, pricing *PricingService) *EventService {
	return &EventService{ledger: ledger, chain: ticketChain, pricing: pricing}
}

// Create validates and stores a new event, deriving the native ticket price
func (s *EventService) Create(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if req.NFTSupply < 0 || req.MaxAttendees < 0 {
		return nil, fmt.Errorf("%w: supply cannot be negative", ErrInvalidEvent)
	}
	if req.TicketPriceUSD.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidEvent)
	}

	event := &models.Event{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Date:           req.Date,
		Location:       req.Location,
		MaxAttendees:   req.MaxAttendees,
		CreatorID:      req.CreatorID,
		NFTEnabled:     req.NFTEnabled,
		TicketPriceUSD: req.TicketPriceUSD,
		NFTPrice:       s.pricing.USDToNative(ctx, req.TicketPriceUSD),
		NFTSupply:      req.NFTSupply,
	}
	if err := s.ledger.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	log.Printf("✅ [Events] Created event %d %q (nft=%v supply=%d price=%s)",
		event.ID, event.Title, event.NFTEnabled, event.NFTSupply, event.NFTPrice.String())
	return event, nil
}

// Update applies an organizer's changes. Once any ticket is minted only
// descriptive fields may change; the lock is decided by the chain alone.
func (s *EventService) Update(ctx context.Context, id uint64, requesterID string, req UpdateEventRequest) (*models.Event, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.CreatorID != "" && event.CreatorID != requesterID {
		return nil, ErrNotEventCreator
	}

	if !req.onlyDescriptive() {
		minted, err := s.chain.TicketsForEvent(ctx, event.ID)
		if err != nil {
			// the mirror may lag a mint, so it cannot unlock supply or price
			return nil, chainReadError("getTicketsForEvent", err)
		}
		if len(minted) > 0 {
			return nil, ErrEventLocked
		}
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidEvent)
		}
		event.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.MaxAttendees != nil {
		event.MaxAttendees = *req.MaxAttendees
	}
	if req.NFTEnabled != nil {
		event.NFTEnabled = *req.NFTEnabled
	}
	if req.NFTSupply != nil {
		if *req.NFTSupply < 0 {
			return nil, fmt.Errorf("%w: supply cannot be negative", ErrInvalidEvent)
		}
		event.NFTSupply = *req.NFTSupply
	}
	if req.TicketPriceUSD != nil {
		if req.TicketPriceUSD.IsNegative() {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidEvent)
		}
		event.TicketPriceUSD = *req.TicketPriceUSD
		event.NFTPrice = s.pricing.USDToNative(ctx, *req.TicketPriceUSD)
	}

	if err := s.ledger.Events.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	log.Printf("✅ [Events] Updated event %d", event.ID)
	return event, nil
}

// Get returns an event with its supply figures. Supply is read from chain;
// when the chain is unreachable the mirror count is used.
func (s *EventService) Get(ctx context.Context, id uint64) (*EventView, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	minted, err := s.mintedCount(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	view := &EventView{Event: event, Minted: minted, SupplyRemaining: -1}
	if event.NFTSupply > 0 {
		view.SupplyRemaining = event.NFTSupply - minted
		if view.SupplyRemaining < 0 {
			view.SupplyRemaining = 0
		}
	}
	return view, nil
}

// mintedCount counts minted tickets, preferring the chain
func (s *EventService) mintedCount(ctx context.Context, eventID uint64) (int, error) {
	tokens, err := s.chain.TicketsForEvent(ctx, eventID)
	if err == nil {
		return len(tokens), nil
	}
	log.Printf("⚠️ [Events] Chain count for event %d unavailable, using ledger: %v", eventID, err)
	count, dbErr := s.ledger.Tickets.CountByEvent(ctx, eventID)
	if dbErr != nil {
		return 0, fmt.Errorf("count tickets: %w", dbErr)
	}
	return int(count), nil
}

func (s *EventService) load(ctx context.Context, id uint64) (*models.Event, error) {
	event, err := s.ledger.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	return event, nil
}
