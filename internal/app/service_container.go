package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/clients"
	"ticket-backend/internal/config"
	"ticket-backend/internal/db"
	"ticket-backend/internal/events"
	"ticket-backend/internal/handlers"
	"ticket-backend/internal/repository"
	"ticket-backend/internal/repository/memory"
	"ticket-backend/internal/router"
	"ticket-backend/internal/services"
	"ticket-backend/internal/utils"
	"ticket-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer holds every long-lived component of the server
type ServiceContainer struct {
	Config *config.Config

	// Storage
	DB     *gorm.DB // nil with the memory driver
	Ledger *repository.Ledger
	Redis  *redis.Client

	// Wallet & chain
	Provider   wallet.Provider
	Session    *wallet.Session
	Gate       *wallet.Gate
	Watcher    *wallet.Watcher
	EthClient  *ethclient.Client
	Gateway    *chain.Gateway
	Network    *config.NetworkConfig
	closeFuncs []func()

	// Events
	NATSClient           *clients.NATSClient
	ActivityPushService  *services.ActivityPushService
	Publisher            events.Publisher
	transferSubscription *nats.Subscription

	// Core Services
	Pricing            *services.PricingService
	LedgerWriter       *services.LedgerWriter
	EventService       *services.EventService
	IssuanceService    *services.TicketIssuanceService
	MarketplaceService *services.MarketplaceService
	Reconciliation     *services.ReconciliationService

	// Background Services
	RetryService      *services.LedgerWriteRetryService
	Scheduler         *services.ReconciliationScheduler
	MonitoringService *services.MonitoringService

	cancelWatcher context.CancelFunc
	startOnce     sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container from config.AppConfig once
func InitializeContainer(ctx context.Context) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		if config.AppConfig == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}
		container, err := NewServiceContainer(ctx, config.AppConfig)
		if err != nil {
			initErr = err
			return
		}
		Container = container
	})

	return Container, initErr
}

// NewServiceContainer connects storage, wallet, chain and messaging and wires the services
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	log.Println("🚀 Initializing Service Container...")

	network, err := cfg.TargetNetwork()
	if err != nil {
		return nil, err
	}
	c := &ServiceContainer{Config: cfg, Network: network}

	// 1. Initialize Repositories
	if err := c.initRepositories(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// 2. Initialize Wallet & Chain
	if err := c.initWalletAndChain(ctx); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize wallet and chain: %w", err)
	}

	// 3. Initialize Event Services (optional, based on config)
	if err := c.initEventServices(); err != nil {
		// Event services are optional, log but don't fail
		log.Printf("⚠️ Event services initialization skipped or failed: %v", err)
	}

	// 4. Initialize Core Services
	c.initCoreServices()

	// 5. Subscribe to chain transfer notifications
	if err := c.initChainSubscriptions(); err != nil {
		log.Printf("⚠️ Chain transfer subscription skipped or failed: %v", err)
	}

	log.Println("✅ Service Container initialized successfully")
	return c, nil
}

// initRepositories opens the off-chain ledger
func (c *ServiceContainer) initRepositories() error {
	log.Println("📦 Initializing Repositories...")

	if c.Config.Database.Driver == "memory" {
		log.Println("⚠️ Using in-memory ledger, data is lost on restart")
		c.Ledger = memory.NewStore().Ledger()
		return nil
	}

	if c.Config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	gdb, err := db.Open(c.Config.Database.DSN)
	if err != nil {
		return err
	}
	log.Println("✅ Database connected successfully")
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	log.Println("✅ Database schema migrated successfully")
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := db.RunDataMigrations(sqlDB); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}

	db.DB = gdb
	c.DB = gdb
	c.Ledger = repository.NewGormLedger(gdb)
	log.Println("✅ Repositories initialized")
	return nil
}

// initWalletAndChain builds the wallet session and the contract gateway
func (c *ServiceContainer) initWalletAndChain(ctx context.Context) error {
	log.Println("🔧 Initializing Wallet & Chain...")

	store, err := c.sessionStore(ctx)
	if err != nil {
		return err
	}

	ethClient, err := dialNetwork(ctx, c.Network)
	if err != nil {
		return err
	}
	c.EthClient = ethClient
	c.closeFuncs = append(c.closeFuncs, ethClient.Close)

	var sender chain.TxSender
	switch c.Config.Wallet.Signer {
	case "privateKey":
		keySender, err := chain.NewKeySender(ethClient, c.Config.Wallet.PrivateKey, c.Network.GasPrice, c.Network.GasLimit)
		if err != nil {
			return err
		}
		sender = keySender
		c.Provider = chain.NewKeyProvider(keySender)
		log.Printf("🔑 [Wallet] Operator key signer: %s", keySender.Address().Hex())
	default:
		if c.Config.Wallet.ProviderURL == "" {
			// reads and reconciliation still work; writes fail with wallet_not_connected
			log.Println("⚠️ [Wallet] No wallet.providerUrl configured, running read-only")
			sender = chain.NewProviderSender(nil)
			break
		}
		provider, err := wallet.DialProvider(ctx, c.Config.Wallet.ProviderURL)
		if err != nil {
			return err
		}
		c.closeFuncs = append(c.closeFuncs, provider.Close)
		sender = chain.NewProviderSender(provider)
		c.Provider = provider
		log.Printf("🔌 [Wallet] Provider signer: %s", c.Config.Wallet.ProviderURL)
	}

	c.Session = wallet.NewSession(c.Provider, store)
	c.Gate = wallet.NewGate(c.Session)
	c.Watcher = wallet.NewWatcher(c.Session, time.Duration(c.Config.Wallet.PollInterval)*time.Second)
	c.Gateway = chain.NewGateway(ethClient, sender, c.Session, c.Gate, c.Network, chain.GatewayOptions{
		ConfirmTimeout: time.Duration(c.Config.Issuance.MintTimeoutSeconds) * time.Second,
	})

	log.Printf("✅ Ticket contract %s on %s (chainId=%d)", c.Network.TicketContract, c.Network.Name, c.Network.ChainID)
	return nil
}

// sessionStore persists the manual-disconnect and user-connected hints in redis when configured
func (c *ServiceContainer) sessionStore(ctx context.Context) (wallet.SessionStore, error) {
	if c.Config.Redis.Addr == "" {
		log.Println("⚠️ Redis not configured, wallet session hints kept in memory")
		return wallet.NewMemorySessionStore(), nil
	}

	timeout := 3 * time.Second
	if c.Config.Redis.Timeout > 0 {
		timeout = time.Duration(c.Config.Redis.Timeout) * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         c.Config.Redis.Addr,
		Password:     c.Config.Redis.Password,
		DB:           c.Config.Redis.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.Config.Redis.Addr, err)
	}
	c.Redis = client
	c.closeFuncs = append(c.closeFuncs, func() { client.Close() })
	log.Printf("✅ Redis connected: %s", c.Config.Redis.Addr)
	return wallet.NewRedisSessionStore(client, c.Config.Wallet.SessionKey, timeout), nil
}

// dialNetwork connects to the first RPC endpoint that reports the expected chain id
func dialNetwork(ctx context.Context, network *config.NetworkConfig) (*ethclient.Client, error) {
	var lastErr error
	for _, endpoint := range network.RPCEndpoints {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(dialCtx, endpoint)
		if err != nil {
			cancel()
			lastErr = err
			log.Printf("⚠️ [Chain] Cannot dial %s: %v", endpoint, err)
			continue
		}
		chainID, err := client.ChainID(dialCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			log.Printf("⚠️ [Chain] %s did not answer eth_chainId: %v", endpoint, err)
			continue
		}
		if chainID.Int64() != int64(network.ChainID) {
			client.Close()
			lastErr = fmt.Errorf("%s serves chain %s, expected %d", endpoint, chainID, network.ChainID)
			log.Printf("⚠️ [Chain] %v", lastErr)
			continue
		}
		log.Printf("✅ [Chain] Connected to %s", endpoint)
		return client, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC endpoints configured for %s", network.Name)
	}
	return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, lastErr)
}

// initEventServices connects NATS for domain events
func (c *ServiceContainer) initEventServices() error {
	c.ActivityPushService = services.NewActivityPushService()
	c.Publisher = events.MultiPublisher{c.ActivityPushService}

	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	log.Println("📡 Initializing Event Services...")
	natsClient, err := clients.NewNATSClient(c.Config.NATS)
	if err != nil {
		log.Printf("❌ Failed to connect to NATS at %s: %v", c.Config.NATS.URL, err)
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	c.NATSClient = natsClient
	c.Publisher = events.MultiPublisher{c.ActivityPushService, events.NewNATSPublisher(natsClient)}

	log.Println("✅ Event Services initialized")
	return nil
}

// initCoreServices wires the ticket services
func (c *ServiceContainer) initCoreServices() {
	log.Println("🔧 Initializing Core Services...")

	cfg := c.Config
	c.Pricing = services.NewPricingService(
		nil,
		decimal.RequireFromString(cfg.Pricing.FallbackRateUSD),
		decimal.RequireFromString(cfg.Marketplace.FeeRate),
	)
	c.LedgerWriter = services.NewLedgerWriter(c.Ledger, c.Publisher, cfg.Reconciliation.MaxWriteRetries)
	c.EventService = services.NewEventService(c.Ledger, c.Gateway, c.Pricing)
	c.IssuanceService = services.NewTicketIssuanceService(c.Gateway, c.Gate, c.Ledger, c.LedgerWriter, c.Publisher, cfg.Issuance.MaxPerWallet)
	c.MarketplaceService = services.NewMarketplaceService(c.Gateway, c.Ledger, c.LedgerWriter, c.Pricing, c.Publisher)
	c.Reconciliation = services.NewReconciliationService(c.Gateway, c.Ledger, c.LedgerWriter, c.Publisher)

	c.RetryService = services.NewLedgerWriteRetryService(c.Ledger, c.LedgerWriter, c.Reconciliation, c.Publisher)
	c.Scheduler = services.NewReconciliationScheduler(c.Reconciliation, time.Duration(cfg.Reconciliation.IntervalMinutes)*time.Minute)
	c.MonitoringService = services.NewMonitoringService(c.DB, c.Ledger, c.Session)

	log.Println("✅ Core Services initialized")
}

// initChainSubscriptions repairs a token whenever the scanner reports a Transfer of it
func (c *ServiceContainer) initChainSubscriptions() error {
	if c.NATSClient == nil {
		return fmt.Errorf("NATS not connected")
	}
	sub, err := events.SubscribeToChainTransfers(c.NATSClient, func(n events.TransferNotification) {
		if n.ContractAddress != "" && !utils.SameAddress(n.ContractAddress, c.Network.TicketContract) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.Reconciliation.RepairToken(ctx, n.TokenID); err != nil {
			log.Printf("❌ [Reconciliation] Repair of token %d after transfer %s failed: %v", n.TokenID, n.TxHash, err)
		}
	})
	if err != nil {
		return err
	}
	c.transferSubscription = sub
	return nil
}

// Start launches the background loops
func (c *ServiceContainer) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		watchCtx, cancel := context.WithCancel(ctx)
		c.cancelWatcher = cancel

		if snap, err := c.Session.AutoReconnect(ctx); err != nil {
			log.Printf("⚠️ [Wallet] Auto-reconnect failed: %v", err)
		} else if snap.IsConnected() {
			log.Printf("✅ [Wallet] Restored session for %s", snap.Address)
		}
		go c.Watcher.Run(watchCtx)

		c.RetryService.Start(time.Duration(c.Config.Reconciliation.RetryIntervalSeconds) * time.Second)
		c.Scheduler.Start()
		c.MonitoringService.Start()
	})
}

// Router builds the HTTP engine over the container's services
func (c *ServiceContainer) Router(logger *logrus.Logger) *gin.Engine {
	return router.SetupRouter(c.Config, logger, router.Handlers{
		Wallet:         handlers.NewWalletHandler(c.Session),
		Event:          handlers.NewEventHandler(c.EventService, c.IssuanceService, c.Session),
		Marketplace:    handlers.NewMarketplaceHandler(c.MarketplaceService),
		Reconciliation: handlers.NewReconciliationHandler(c.Reconciliation, c.Scheduler),
		Retry:          handlers.NewRetryHandler(c.RetryService),
		WebSocket:      handlers.NewWebSocketHandler(c.ActivityPushService),
		Health:         handlers.NewHealthHandler(c.DB, c.Session, c.Network),
	})
}

// Cleanup stops background work and closes connections
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.cancelWatcher != nil {
		c.cancelWatcher()
		c.RetryService.Stop()
		c.Scheduler.Stop()
		c.MonitoringService.Stop()
	}
	if c.transferSubscription != nil {
		_ = c.transferSubscription.Unsubscribe()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.ActivityPushService != nil {
		c.ActivityPushService.Close()
	}
	for i := len(c.closeFuncs) - 1; i >= 0; i-- {
		c.closeFuncs[i]()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	log.Println("✅ Service Container cleaned up")
}
