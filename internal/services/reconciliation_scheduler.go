package services

import (
	"context"
	"log"
	"time"
)

// ReconciliationScheduler periodically checks every wallet/event pair the
// ledger knows about. It only reports; repair stays an explicit action.
type ReconciliationScheduler struct {
	reconciler *ReconciliationService
	pairs      func(ctx context.Context, limit int) ([]ownerEventPair, error)
	interval   time.Duration
	batchSize  int
	stopChan   chan struct{}
}

type ownerEventPair struct {
	wallet  string
	eventID uint64
}

// SweepResult totals of one pass
type SweepResult struct {
	Checked   int `json:"checked"`
	Divergent int `json:"divergent"`
	Failed    int `json:"failed"`
}

// NewReconciliationScheduler creates the scheduler
func NewReconciliationScheduler(reconciler *ReconciliationService, interval time.Duration) *ReconciliationScheduler {
	s := &ReconciliationScheduler{
		reconciler: reconciler,
		interval:   interval,
		batchSize:  500,
		stopChan:   make(chan struct{}),
	}
	s.pairs = func(ctx context.Context, limit int) ([]ownerEventPair, error) {
		rows, err := reconciler.ledger.Tickets.ListOwnerEventPairs(ctx, limit)
		if err != nil {
			return nil, err
		}
		pairs := make([]ownerEventPair, 0, len(rows))
		for _, r := range rows {
			pairs = append(pairs, ownerEventPair{wallet: r.OwnerWalletAddress, eventID: r.EventID})
		}
		return pairs, nil
	}
	return s
}

// Start begins periodic sweeps
func (s *ReconciliationScheduler) Start() {
	log.Printf("📅 [Reconciliation] Sweep interval: %v", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Println("⏰ [Reconciliation] Scheduled sweep triggered")
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.Sweep(ctx)
				cancel()
			case <-s.stopChan:
				log.Println("🛑 [Reconciliation] Sweep task stopped")
				return
			}
		}
	}()
}

// Stop stops the sweeps
func (s *ReconciliationScheduler) Stop() {
	close(s.stopChan)
}

// Sweep checks every known wallet/event pair once
func (s *ReconciliationScheduler) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	pairs, err := s.pairs(ctx, s.batchSize)
	if err != nil {
		log.Printf("❌ [Reconciliation] Cannot list wallet/event pairs: %v", err)
		return result
	}
	for _, p := range pairs {
		if isZeroOwner(p.wallet) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		report, err := s.reconciler.Check(ctx, p.wallet, p.eventID)
		result.Checked++
		if err != nil {
			result.Failed++
			log.Printf("⚠️ [Reconciliation] Check of %s event %d failed: %v", p.wallet, p.eventID, err)
			continue
		}
		if !report.Consistent() {
			result.Divergent++
		}
	}
	log.Printf("✅ [Reconciliation] Sweep done: checked=%d divergent=%d failed=%d", result.Checked, result.Divergent, result.Failed)
	return result
}

func isZeroOwner(wallet string) bool {
	return wallet == zeroAddress
}
