package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ticket-backend/internal/events"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"
)

// Repairer is the reconciliation entry point escalated writes are handed to
type Repairer interface {
	Repair(ctx context.Context, wallet string, eventID uint64) (*RepairResult, error)
}

// LedgerWriteRetryService replays parked off-chain writes with exponential
// backoff and escalates exhausted ones to reconciliation
type LedgerWriteRetryService struct {
	ledger    *repository.Ledger
	writer    *LedgerWriter
	repairer  Repairer
	publisher events.Publisher
	batchSize int
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLedgerWriteRetryService creates the retry service
func NewLedgerWriteRetryService(ledger *repository.Ledger, writer *LedgerWriter, repairer Repairer, publisher events.Publisher) *LedgerWriteRetryService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &LedgerWriteRetryService{
		ledger:    ledger,
		writer:    writer,
		repairer:  repairer,
		publisher: publisher,
		batchSize: 50,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start checks for due writes every interval until Stop
func (s *LedgerWriteRetryService) Start(interval time.Duration) {
	log.Printf("🚀 [LedgerRetry] Starting ledger write retry service, interval: %v", interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if _, err := s.ProcessDue(ctx); err != nil {
					log.Printf("❌ [LedgerRetry] Retry pass failed: %v", err)
				}
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops the retry loop
func (s *LedgerWriteRetryService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Println("✅ [LedgerRetry] Ledger write retry service stopped")
}

// ProcessDue replays every due write once and returns how many recovered
func (s *LedgerWriteRetryService) ProcessDue(ctx context.Context) (int, error) {
	due, err := s.ledger.PendingWrites.FindDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query pending ledger writes: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}
	log.Printf("🔄 [LedgerRetry] %d pending ledger write(s) due", len(due))

	recovered := 0
	for _, write := range due {
		ok, err := s.processOne(ctx, write)
		if err != nil {
			log.Printf("❌ [LedgerRetry] Bookkeeping for write %s failed: %v", write.ID, err)
			continue
		}
		if ok {
			recovered++
		}
	}
	s.updateGauges(ctx)
	return recovered, nil
}

func (s *LedgerWriteRetryService) processOne(ctx context.Context, write *models.PendingLedgerWrite) (bool, error) {
	log.Printf("🔍 [LedgerRetry] Replaying %s write %s (token %d), attempt %d/%d",
		write.Kind, write.ID, write.TokenID, write.RetryCount+1, write.MaxRetries)

	write.Status = models.PendingLedgerWriteStatusRetrying
	if err := s.ledger.PendingWrites.Update(ctx, write); err != nil {
		return false, fmt.Errorf("failed to mark as retrying: %w", err)
	}

	replayErr := s.writer.Replay(ctx, write)
	now := s.now()
	if replayErr == nil {
		write.MarkAsRecovered(now)
		if err := s.ledger.PendingWrites.Update(ctx, write); err != nil {
			return false, fmt.Errorf("failed to mark as recovered: %w", err)
		}
		log.Printf("✅ [LedgerRetry] Write %s recovered", write.ID)
		return true, nil
	}

	exhausted := write.IncrementRetry(replayErr.Error(), now)
	if err := s.ledger.PendingWrites.Update(ctx, write); err != nil {
		return false, fmt.Errorf("failed to record retry: %w", err)
	}
	if !exhausted {
		log.Printf("⚠️ [LedgerRetry] Write %s failed again, next retry at %s: %v",
			write.ID, write.NextRetryAt.Format(time.RFC3339), replayErr)
		return false, nil
	}

	log.Printf("🚨 [LedgerRetry] Write %s exhausted %d retries, escalating to reconciliation", write.ID, write.MaxRetries)
	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.LedgerWriteEscalated,
		EventID:   write.EventID,
		TokenID:   write.TokenID,
		ListingID: write.ListingID,
		TxHash:    write.TxHash,
		Data:      map[string]interface{}{"kind": string(write.Kind), "last_error": write.LastError},
	})
	if s.repairer != nil && write.WalletAddress != "" {
		if _, err := s.repairer.Repair(ctx, write.WalletAddress, write.EventID); err != nil {
			log.Printf("❌ [LedgerRetry] Reconciliation of %s event %d failed: %v", write.WalletAddress, write.EventID, err)
		}
	}
	return false, nil
}

// updateGauges refreshes the pending write gauges
func (s *LedgerWriteRetryService) updateGauges(ctx context.Context) {
	for _, status := range []models.PendingLedgerWriteStatus{
		models.PendingLedgerWriteStatusPending,
		models.PendingLedgerWriteStatusRetrying,
		models.PendingLedgerWriteStatusEscalated,
	} {
		count, err := s.ledger.PendingWrites.CountByStatus(ctx, status)
		if err != nil {
			continue
		}
		metrics.PendingLedgerWrites.WithLabelValues(string(status)).Set(float64(count))
	}
}

// List returns parked writes in status, newest first
func (s *LedgerWriteRetryService) List(ctx context.Context, status models.PendingLedgerWriteStatus, limit int) ([]*models.PendingLedgerWrite, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.PendingWrites.ListByStatus(ctx, status, limit)
}
