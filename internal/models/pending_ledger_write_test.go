package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingLedgerWrite_Backoff(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	w := &PendingLedgerWrite{Status: PendingLedgerWriteStatusPending, MaxRetries: 3, NextRetryAt: now}

	assert.True(t, w.ShouldRetry(now))
	assert.Equal(t, now.Add(10*time.Second), w.CalculateNextRetryTime(now))

	assert.False(t, w.IncrementRetry("db down", now))
	assert.Equal(t, now.Add(20*time.Second), w.NextRetryAt)
	assert.False(t, w.ShouldRetry(now))
	assert.True(t, w.ShouldRetry(now.Add(20*time.Second)))

	assert.False(t, w.IncrementRetry("db down", now))
	assert.True(t, w.IncrementRetry("db down", now))
	assert.Equal(t, PendingLedgerWriteStatusEscalated, w.Status)
	assert.NotNil(t, w.ResolvedAt)
	assert.False(t, w.ShouldRetry(now.Add(time.Hour)))
}

func TestPendingLedgerWrite_BackoffCapped(t *testing.T) {
	now := time.Now()
	w := &PendingLedgerWrite{RetryCount: 20}
	assert.Equal(t, now.Add(10*time.Minute), w.CalculateNextRetryTime(now))
}

func TestMarketplaceListing_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&MarketplaceListing{}).IsExpired(now))
	assert.True(t, (&MarketplaceListing{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&MarketplaceListing{ExpiresAt: &future}).IsExpired(now))
}

func TestNFTTransaction_CanTransitionTo(t *testing.T) {
	tx := &NFTTransaction{Status: TransactionStatusPending}
	assert.True(t, tx.CanTransitionTo(TransactionStatusConfirmed))
	assert.True(t, tx.CanTransitionTo(TransactionStatusFailed))
	assert.False(t, tx.CanTransitionTo(TransactionStatusPending))

	tx.Status = TransactionStatusConfirmed
	assert.False(t, tx.CanTransitionTo(TransactionStatusFailed))
}
