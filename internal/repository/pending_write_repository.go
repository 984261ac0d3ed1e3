package repository

import (
	"context"
	"time"

	"ticket-backend/internal/models"

	"gorm.io/gorm"
)

// PendingWriteRepository defines the interface for off-chain writes awaiting retry
type PendingWriteRepository interface {
	Create(ctx context.Context, write *models.PendingLedgerWrite) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.PendingLedgerWrite, error)
	Update(ctx context.Context, write *models.PendingLedgerWrite) error
	CountByStatus(ctx context.Context, status models.PendingLedgerWriteStatus) (int64, error)
	ListByStatus(ctx context.Context, status models.PendingLedgerWriteStatus, limit int) ([]*models.PendingLedgerWrite, error)
}

// pendingWriteRepository implements PendingWriteRepository
type pendingWriteRepository struct {
	db *gorm.DB
}

// NewPendingWriteRepository creates a new PendingWriteRepository instance
func NewPendingWriteRepository(db *gorm.DB) PendingWriteRepository {
	return &pendingWriteRepository{db: db}
}

// Create records a failed write
func (r *pendingWriteRepository) Create(ctx context.Context, write *models.PendingLedgerWrite) error {
	return translate(r.db.WithContext(ctx).Create(write).Error)
}

// FindDue finds writes whose next retry time has passed
func (r *pendingWriteRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.PendingLedgerWrite, error) {
	var writes []*models.PendingLedgerWrite
	query := r.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at <= ?",
			[]models.PendingLedgerWriteStatus{models.PendingLedgerWriteStatusPending, models.PendingLedgerWriteStatusRetrying},
			now).
		Order("next_retry_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&writes).Error
	return writes, translate(err)
}

// Update saves retry bookkeeping
func (r *pendingWriteRepository) Update(ctx context.Context, write *models.PendingLedgerWrite) error {
	return translate(r.db.WithContext(ctx).Save(write).Error)
}

// CountByStatus counts writes in a status (metrics)
func (r *pendingWriteRepository) CountByStatus(ctx context.Context, status models.PendingLedgerWriteStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingLedgerWrite{}).Where("status = ?", status).Count(&count).Error
	return count, translate(err)
}

// ListByStatus lists writes in a status, newest first. An empty status lists all.
func (r *pendingWriteRepository) ListByStatus(ctx context.Context, status models.PendingLedgerWriteStatus, limit int) ([]*models.PendingLedgerWrite, error) {
	var writes []*models.PendingLedgerWrite
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&writes).Error
	return writes, translate(err)
}
