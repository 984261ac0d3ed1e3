package repository

import (
	"context"
	"time"

	"ticket-backend/internal/models"

	"gorm.io/gorm"
)

// ListingRepository defines the interface for MarketplaceListing data access
type ListingRepository interface {
	Create(ctx context.Context, listing *models.MarketplaceListing) error
	GetByID(ctx context.Context, id string) (*models.MarketplaceListing, error)
	FindActiveByTicket(ctx context.Context, ticketID string) ([]*models.MarketplaceListing, error)
	FindActiveByEvent(ctx context.Context, eventID uint64, limit int) ([]*models.MarketplaceListing, error)

	// Deactivate flips is_active true -> false exactly once.
	// Returns false when the listing was already inactive (the caller lost the race).
	Deactivate(ctx context.Context, id, reason string) (bool, error)
}

// listingRepository implements ListingRepository
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new ListingRepository instance
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

// Create creates a new listing
func (r *listingRepository) Create(ctx context.Context, listing *models.MarketplaceListing) error {
	return translate(r.db.WithContext(ctx).Create(listing).Error)
}

// GetByID retrieves a listing by ID
func (r *listingRepository) GetByID(ctx context.Context, id string) (*models.MarketplaceListing, error) {
	var listing models.MarketplaceListing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

// FindActiveByTicket finds active listings referencing a ticket
func (r *listingRepository) FindActiveByTicket(ctx context.Context, ticketID string) ([]*models.MarketplaceListing, error) {
	var listings []*models.MarketplaceListing
	err := r.db.WithContext(ctx).
		Where("nft_ticket_id = ? AND is_active = ?", ticketID, true).
		Find(&listings).Error
	return listings, translate(err)
}

// FindActiveByEvent finds active listings for an event, newest first
func (r *listingRepository) FindActiveByEvent(ctx context.Context, eventID uint64, limit int) ([]*models.MarketplaceListing, error) {
	var listings []*models.MarketplaceListing
	query := r.db.WithContext(ctx).
		Where("event_id = ? AND is_active = ?", eventID, true).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&listings).Error
	return listings, translate(err)
}

// Deactivate compare-and-set on is_active
func (r *listingRepository) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceListing{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":           false,
			"deactivation_reason": reason,
			"deactivated_at":      now,
			"updated_at":          now,
		})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}
