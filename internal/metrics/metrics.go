package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_db_connection_open",
		Help: "Number of open database connections",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_nats_messages_published_total",
			Help: "Total number of domain events published to NATS",
		},
		[]string{"event_type"},
	)

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"subject"},
	)

	// ============================================
	// Wallet / chain
	// ============================================
	WalletConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_wallet_connected",
		Help: "Wallet session state (1=connected, 0=otherwise)",
	})

	ChainWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_chain_writes_total",
			Help: "Chain write attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ChainWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickets_chain_write_duration_seconds",
			Help:    "Time from submission to confirmation or failure",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	// ============================================
	// Ledger consistency
	// ============================================
	LedgerWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_ledger_write_failures_total",
			Help: "Off-chain writes that failed after a settled chain or sale fact",
		},
		[]string{"kind"},
	)

	PendingLedgerWrites = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickets_pending_ledger_writes",
			Help: "Pending off-chain writes by status",
		},
		[]string{"status"},
	)

	Divergences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_reconciliation_divergences_total",
			Help: "Divergences detected between chain and off-chain ledger",
		},
		[]string{"class"},
	)

	Repairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_reconciliation_repairs_total",
			Help: "Repair actions applied to the off-chain ledger",
		},
		[]string{"action"},
	)

	// ============================================
	// Marketplace
	// ============================================
	MarketplaceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_marketplace_operations_total",
			Help: "Marketplace operations by type and result",
		},
		[]string{"operation", "result"},
	)

	TicketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Tickets minted and confirmed",
	})

	// ============================================
	// WebSocket
	// ============================================
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_websocket_clients",
		Help: "Connected activity feed clients",
	})
)
