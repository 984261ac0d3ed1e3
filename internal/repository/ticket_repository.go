package repository

import (
	"context"
	"time"

	"ticket-backend/internal/models"

	"gorm.io/gorm"
)

// TicketRepository defines the interface for the NFTTicket mirror
type TicketRepository interface {
	// Create inserts a mirror row; ErrDuplicate if (token_id, contract_address) already exists
	Create(ctx context.Context, ticket *models.NFTTicket) error
	GetByID(ctx context.Context, id string) (*models.NFTTicket, error)
	GetByToken(ctx context.Context, contractAddress string, tokenID uint64) (*models.NFTTicket, error)
	FindByOwnerForEvent(ctx context.Context, contractAddress, owner string, eventID uint64) ([]*models.NFTTicket, error)
	CountByEvent(ctx context.Context, eventID uint64) (int64, error)

	// UpdateOwnerIf moves ownership only while the row still shows expectedOwner.
	// Returns false when the row changed underneath the caller.
	UpdateOwnerIf(ctx context.Context, id, expectedOwner, newOwner string, newUserID *string) (bool, error)
	// ApplyChainState copies chain-reported owner, event and use flag onto the row
	ApplyChainState(ctx context.Context, id, owner string, eventID uint64, isUsed bool) error

	ListOwnerEventPairs(ctx context.Context, limit int) ([]models.OwnerEventPair, error)
}

// ticketRepository implements TicketRepository
type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a new TicketRepository instance
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

// Create creates a ticket mirror row
func (r *ticketRepository) Create(ctx context.Context, ticket *models.NFTTicket) error {
	return translate(r.db.WithContext(ctx).Create(ticket).Error)
}

// GetByID retrieves a ticket by ID
func (r *ticketRepository) GetByID(ctx context.Context, id string) (*models.NFTTicket, error) {
	var ticket models.NFTTicket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		return nil, translate(err)
	}
	return &ticket, nil
}

// GetByToken retrieves a ticket by its chain join key
func (r *ticketRepository) GetByToken(ctx context.Context, contractAddress string, tokenID uint64) (*models.NFTTicket, error) {
	var ticket models.NFTTicket
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND token_id = ?", contractAddress, tokenID).
		First(&ticket).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ticket, nil
}

// FindByOwnerForEvent finds the mirror rows of one wallet for one event
func (r *ticketRepository) FindByOwnerForEvent(ctx context.Context, contractAddress, owner string, eventID uint64) ([]*models.NFTTicket, error) {
	var tickets []*models.NFTTicket
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND owner_wallet_address = ? AND event_id = ?", contractAddress, owner, eventID).
		Order("token_id ASC").
		Find(&tickets).Error
	return tickets, translate(err)
}

// CountByEvent counts mirror rows for an event
func (r *ticketRepository) CountByEvent(ctx context.Context, eventID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.NFTTicket{}).Where("event_id = ?", eventID).Count(&count).Error
	return count, translate(err)
}

// UpdateOwnerIf compare-and-set on owner_wallet_address
func (r *ticketRepository) UpdateOwnerIf(ctx context.Context, id, expectedOwner, newOwner string, newUserID *string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.NFTTicket{}).
		Where("id = ? AND owner_wallet_address = ?", id, expectedOwner).
		Updates(map[string]interface{}{
			"owner_wallet_address": newOwner,
			"owner_user_id":        newUserID,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ApplyChainState overwrites the chain-mirrored columns; tickets are never deleted
func (r *ticketRepository) ApplyChainState(ctx context.Context, id, owner string, eventID uint64, isUsed bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.NFTTicket{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"owner_user_id":        gorm.Expr("CASE WHEN owner_wallet_address = ? THEN owner_user_id ELSE NULL END", owner),
			"owner_wallet_address": owner,
			"event_id":             eventID,
			"is_used":              isUsed,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOwnerEventPairs lists distinct wallet/event pairs for periodic reconciliation
func (r *ticketRepository) ListOwnerEventPairs(ctx context.Context, limit int) ([]models.OwnerEventPair, error) {
	var pairs []models.OwnerEventPair
	query := r.db.WithContext(ctx).
		Model(&models.NFTTicket{}).
		Distinct("owner_wallet_address", "event_id").
		Order("event_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&pairs).Error
	return pairs, translate(err)
}
