package services

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/config"
	"ticket-backend/internal/models"
	"ticket-backend/internal/repository/memory"
	"ticket-backend/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	alice    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol    = "0xcccccccccccccccccccccccccccccccccccccccc"
	contract = "0xbdd45c68f44ef4d9db4f5dea4f6f163dac88ac2f"
)

var testNetwork = &config.NetworkConfig{ChainID: 4202, Name: "Lisk Sepolia Testnet", TicketContract: contract, Enabled: true}

// fakeChain is an in-memory ticket contract
type fakeChain struct {
	mu          sync.Mutex
	owners      map[uint64]string
	info        map[uint64]*chain.TicketInfo
	perEvent    map[string]uint64
	nextToken   uint64
	price       *big.Int
	maxPerEvent uint64
	maxErr      error
	readErr     error

	mintCalls   int
	mintErrs    map[int]error // by 1-based call number
	timeoutMint map[int]bool  // mint lands on chain but the call reports a timeout
	mintValues  []*big.Int

	transferCalls int
	transferErr   error

	afterWrite func() // runs once a mint or transfer has landed
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		owners:      make(map[uint64]string),
		info:        make(map[uint64]*chain.TicketInfo),
		perEvent:    make(map[string]uint64),
		nextToken:   1,
		price:       big.NewInt(1e16),
		maxPerEvent: 5,
		mintErrs:    make(map[int]error),
		timeoutMint: make(map[int]bool),
	}
}

func perEventKey(eventID uint64, owner string) string {
	return fmt.Sprintf("%d:%s", eventID, owner)
}

// mintDirect puts a token on chain without going through the services
func (c *fakeChain) mintDirect(owner string, eventID uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mintLocked(owner, eventID)
}

func (c *fakeChain) mintLocked(owner string, eventID uint64) uint64 {
	id := c.nextToken
	c.nextToken++
	c.owners[id] = owner
	c.info[id] = &chain.TicketInfo{TokenID: id, EventID: eventID, MintedAt: time.Unix(1700000000, 0).UTC(), EventTitle: "Launch"}
	c.perEvent[perEventKey(eventID, owner)]++
	return id
}

// move changes a token's owner as an out-of-band chain transfer would
func (c *fakeChain) move(tokenID uint64, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[tokenID] = to
}

func (c *fakeChain) markUsed(tokenID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[tokenID].IsUsed = true
}

func (c *fakeChain) ContractAddress() string        { return contract }
func (c *fakeChain) Network() *config.NetworkConfig { return testNetwork }

func (c *fakeChain) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return "", c.readErr
	}
	owner, ok := c.owners[tokenID]
	if !ok {
		return "", chain.ErrCallReverted
	}
	return owner, nil
}

func (c *fakeChain) TicketsPerEvent(ctx context.Context, eventID uint64, owner string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	return c.perEvent[perEventKey(eventID, owner)], nil
}

func (c *fakeChain) TicketsForEvent(ctx context.Context, eventID uint64) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	var ids []uint64
	for id, info := range c.info {
		if info.EventID == eventID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *fakeChain) TicketsByOwnerForEvent(ctx context.Context, owner string, eventID uint64) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	var ids []uint64
	for id, info := range c.info {
		if info.EventID == eventID && c.owners[id] == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *fakeChain) Ticket(ctx context.Context, tokenID uint64) (*chain.TicketInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	info, ok := c.info[tokenID]
	if !ok {
		return nil, chain.ErrCallReverted
	}
	cp := *info
	return &cp, nil
}

func (c *fakeChain) TicketPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.price), nil
}

func (c *fakeChain) MaxTicketsPerEvent(ctx context.Context) (uint64, error) {
	if c.maxErr != nil {
		return 0, c.maxErr
	}
	return c.maxPerEvent, nil
}

func (c *fakeChain) Mint(ctx context.Context, req chain.MintRequest) (*chain.MintResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mintCalls++
	c.mintValues = append(c.mintValues, req.Value)
	if err, ok := c.mintErrs[c.mintCalls]; ok {
		return nil, err
	}
	id := c.mintLocked(req.Recipient, req.EventID)
	if c.afterWrite != nil {
		c.afterWrite()
	}
	if c.timeoutMint[c.mintCalls] {
		return nil, &chain.MintError{Kind: chain.KindTimeout, Reason: "no receipt", TxHash: "0xpending"}
	}
	return &chain.MintResult{TokenID: id, TxHash: fmt.Sprintf("0xmint%d", id), BlockNumber: 100 + id}, nil
}

func (c *fakeChain) Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferCalls++
	if c.transferErr != nil {
		return "", c.transferErr
	}
	if c.owners[tokenID] != from {
		return "", &chain.TransferError{Kind: chain.KindReverted, Reason: "not owner"}
	}
	c.owners[tokenID] = to
	if c.afterWrite != nil {
		c.afterWrite()
	}
	return fmt.Sprintf("0xtransfer%d", tokenID), nil
}

// mockWallet is the wallet session as seen by the issuance service
type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) Snapshot() wallet.Snapshot {
	return m.Called().Get(0).(wallet.Snapshot)
}

func (m *mockWallet) EnsureNetwork(ctx context.Context, required *config.NetworkConfig) error {
	return m.Called(ctx, required).Error(0)
}

func connectedWallet(address string) *mockWallet {
	w := &mockWallet{}
	w.On("Snapshot").Return(wallet.Snapshot{Address: address, ChainID: testNetwork.ChainID, State: wallet.StateConnected})
	w.On("EnsureNetwork", mock.Anything, testNetwork).Return(nil)
	return w
}

// testEnv wires the services over the memory store and the fake chain
type testEnv struct {
	store       *memory.Store
	chain       *fakeChain
	wallet      *mockWallet
	writer      *LedgerWriter
	pricing     *PricingService
	issuance    *TicketIssuanceService
	marketplace *MarketplaceService
	recon       *ReconciliationService
	events      *EventService
	retry       *LedgerWriteRetryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memory.NewStore(),
		chain:  newFakeChain(),
		wallet: connectedWallet(alice),
	}
	ledger := env.store.Ledger()
	env.writer = NewLedgerWriter(ledger, nil, 3)
	env.pricing = NewPricingService(StaticPriceFeed(decimal.NewFromInt(2500)), decimal.NewFromInt(2500), decimal.RequireFromString("0.025"))
	env.issuance = NewTicketIssuanceService(env.chain, env.wallet, ledger, env.writer, nil, 4)
	env.marketplace = NewMarketplaceService(env.chain, ledger, env.writer, env.pricing, nil)
	env.recon = NewReconciliationService(env.chain, ledger, env.writer, nil)
	env.events = NewEventService(ledger, env.chain, env.pricing)
	env.retry = NewLedgerWriteRetryService(ledger, env.writer, env.recon, nil)
	return env
}

func (env *testEnv) createEvent(t *testing.T, supply int) *models.Event {
	t.Helper()
	event, err := env.events.Create(context.Background(), CreateEventRequest{
		Title:          "Launch",
		Description:    "Launch party",
		Date:           time.Date(2026, 12, 1, 18, 0, 0, 0, time.UTC),
		Location:       "Berlin",
		CreatorID:      "organizer-1",
		NFTEnabled:     true,
		TicketPriceUSD: decimal.NewFromInt(25),
		NFTSupply:      supply,
	})
	require.NoError(t, err)
	return event
}

// issue buys quantity tickets for alice and returns their ticket ids
func (env *testEnv) issue(t *testing.T, eventID uint64, quantity int) []IssuedTicket {
	t.Helper()
	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: eventID, Wallet: alice, Quantity: quantity})
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Len(t, result.Issued, quantity)
	return result.Issued
}

// failOps makes the listed store operations fail until the returned func is called
func (env *testEnv) failOps(ops ...string) func() {
	set := make(map[string]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	env.store.FailWrites = func(op string) error {
		if set[op] {
			return fmt.Errorf("database unavailable (%s)", op)
		}
		return nil
	}
	return func() { env.store.FailWrites = nil }
}
