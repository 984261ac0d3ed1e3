package services

import (
	"context"
	"log"
	"sync"
	"time"

	"ticket-backend/internal/metrics"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository"
	"ticket-backend/internal/wallet"

	"gorm.io/gorm"
)

// MonitoringService keeps the Prometheus gauges current
type MonitoringService struct {
	db       *gorm.DB // nil with the in-memory ledger
	ledger   *repository.Ledger
	session  *wallet.Session
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitoringService creates the monitoring service
func NewMonitoringService(db *gorm.DB, ledger *repository.Ledger, session *wallet.Session) *MonitoringService {
	return &MonitoringService{
		db:       db,
		ledger:   ledger,
		session:  session,
		interval: 10 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the monitoring loop
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	if m.session != nil {
		m.session.OnChange(func(s wallet.Snapshot) {
			setWalletGauge(s)
		})
		setWalletGauge(m.session.Snapshot())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.Collect(context.Background())
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Collect(context.Background())
			}
		}
	}()

	log.Println("✅ Monitoring service started")
}

// Stop stops the monitoring loop
func (m *MonitoringService) Stop() {
	log.Println("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

// Collect refreshes database and pending write gauges once
func (m *MonitoringService) Collect(ctx context.Context) {
	m.updateDatabaseMetrics()

	for _, status := range []models.PendingLedgerWriteStatus{
		models.PendingLedgerWriteStatusPending,
		models.PendingLedgerWriteStatusRetrying,
		models.PendingLedgerWriteStatusEscalated,
	} {
		count, err := m.ledger.PendingWrites.CountByStatus(ctx, status)
		if err != nil {
			log.Printf("⚠️ [Monitor] Cannot count %s ledger writes: %v", status, err)
			continue
		}
		metrics.PendingLedgerWrites.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (m *MonitoringService) updateDatabaseMetrics() {
	if m.db == nil {
		metrics.DBConnectionStatus.Set(1)
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionOpen.Set(float64(sqlDB.Stats().OpenConnections))
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

func setWalletGauge(s wallet.Snapshot) {
	if s.IsConnected() {
		metrics.WalletConnected.Set(1)
	} else {
		metrics.WalletConnected.Set(0)
	}
}
