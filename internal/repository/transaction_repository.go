package repository

import (
	"context"
	"time"

	"ticket-backend/internal/models"

	"gorm.io/gorm"
)

// TransactionRepository defines the interface for the append-only NFTTransaction log
type TransactionRepository interface {
	// Create appends a record; ErrDuplicate if a sale for the same listing already exists
	Create(ctx context.Context, tx *models.NFTTransaction) error
	GetByID(ctx context.Context, id string) (*models.NFTTransaction, error)
	FindByTicket(ctx context.Context, ticketID string) ([]*models.NFTTransaction, error)
	FindByListing(ctx context.Context, listingID string) (*models.NFTTransaction, error)
	ListRecent(ctx context.Context, limit int) ([]*models.NFTTransaction, error)
	// UpdateStatus moves a pending record to confirmed or failed; other transitions are rejected
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (bool, error)
}

// transactionRepository implements TransactionRepository
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create appends a transaction record
func (r *transactionRepository) Create(ctx context.Context, tx *models.NFTTransaction) error {
	return translate(r.db.WithContext(ctx).Create(tx).Error)
}

// GetByID retrieves a transaction by ID
func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.NFTTransaction, error) {
	var tx models.NFTTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

// FindByTicket lists the history of one ticket, oldest first
func (r *transactionRepository) FindByTicket(ctx context.Context, ticketID string) ([]*models.NFTTransaction, error) {
	var txs []*models.NFTTransaction
	err := r.db.WithContext(ctx).
		Where("nft_ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, translate(err)
}

// FindByListing retrieves the sale record of a listing
func (r *transactionRepository) FindByListing(ctx context.Context, listingID string) (*models.NFTTransaction, error) {
	var tx models.NFTTransaction
	if err := r.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

// ListRecent lists the most recent records (marketplace activity feed)
func (r *transactionRepository) ListRecent(ctx context.Context, limit int) ([]*models.NFTTransaction, error) {
	var txs []*models.NFTTransaction
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, translate(err)
}

// UpdateStatus pending -> confirmed|failed
func (r *transactionRepository) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (bool, error) {
	updates := map[string]interface{}{"status": status}
	if status == models.TransactionStatusConfirmed {
		updates["confirmed_at"] = time.Now()
	}
	result := r.db.WithContext(ctx).
		Model(&models.NFTTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}
