package models

import (
	"time"
)

// PendingLedgerWriteStatus retry status of an off-chain write
type PendingLedgerWriteStatus string

const (
	PendingLedgerWriteStatusPending   PendingLedgerWriteStatus = "pending"   // wait for retry
	PendingLedgerWriteStatusRetrying  PendingLedgerWriteStatus = "retrying"  // being retried
	PendingLedgerWriteStatusRecovered PendingLedgerWriteStatus = "recovered" // write succeeded
	PendingLedgerWriteStatusEscalated PendingLedgerWriteStatus = "escalated" // retries exhausted, handed to reconciliation
)

// PendingLedgerWriteKind which off-chain write failed
type PendingLedgerWriteKind string

const (
	PendingLedgerWriteKindMint                PendingLedgerWriteKind = "mint_record"
	PendingLedgerWriteKindTransfer            PendingLedgerWriteKind = "transfer_record"
	PendingLedgerWriteKindListingDeactivation PendingLedgerWriteKind = "listing_deactivation"
)

// PendingLedgerWrite an off-chain write that must follow an already-settled chain
// (or sale) fact. The chain side cannot be rolled back, so the write is retried.
type PendingLedgerWrite struct {
	ID     string                   `json:"id" gorm:"primaryKey"` // UUID
	Kind   PendingLedgerWriteKind   `json:"kind" gorm:"not null;size:32"`
	Status PendingLedgerWriteStatus `json:"status" gorm:"not null;default:pending;index"`

	TokenID       uint64 `json:"token_id" gorm:"index"`
	EventID       uint64 `json:"event_id"`
	WalletAddress string `json:"wallet_address" gorm:"size:42"` // wallet whose reconciliation covers this write
	ListingID     string `json:"listing_id,omitempty"`
	TxHash        string `json:"tx_hash"`
	Payload       string `json:"payload" gorm:"type:text"` // JSON

	RetryCount  int       `json:"retry_count" gorm:"default:0"`
	MaxRetries  int       `json:"max_retries" gorm:"default:10"`
	NextRetryAt time.Time `json:"next_retry_at" gorm:"index"`

	LastError     string `json:"last_error" gorm:"type:text"`
	OriginalError string `json:"original_error" gorm:"type:text"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// TableName specifies table name
func (PendingLedgerWrite) TableName() string {
	return "pending_ledger_writes"
}

// CalculateNextRetryTime exponential backoff: 10s, 20s, 40s ... capped at 10 minutes
func (w *PendingLedgerWrite) CalculateNextRetryTime(now time.Time) time.Time {
	baseDelay := 10 * time.Second

	delay := baseDelay * time.Duration(1<<uint(w.RetryCount))
	maxDelay := 10 * time.Minute

	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	return now.Add(delay)
}

// ShouldRetry Check whether the write is due for retry
func (w *PendingLedgerWrite) ShouldRetry(now time.Time) bool {
	return (w.Status == PendingLedgerWriteStatusPending || w.Status == PendingLedgerWriteStatusRetrying) &&
		w.RetryCount < w.MaxRetries &&
		!now.Before(w.NextRetryAt)
}

// IncrementRetry records a failed attempt and reports whether retries are exhausted
func (w *PendingLedgerWrite) IncrementRetry(errorMsg string, now time.Time) bool {
	w.RetryCount++
	w.LastError = errorMsg
	w.NextRetryAt = w.CalculateNextRetryTime(now)
	w.Status = PendingLedgerWriteStatusPending

	if w.RetryCount >= w.MaxRetries {
		w.Status = PendingLedgerWriteStatusEscalated
		w.ResolvedAt = &now
		return true
	}
	return false
}

// MarkAsRecovered the write finally succeeded
func (w *PendingLedgerWrite) MarkAsRecovered(now time.Time) {
	w.Status = PendingLedgerWriteStatusRecovered
	w.ResolvedAt = &now
}
