package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/models"
	"ticket-backend/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPurchaseMintsAndRecordsEachTicket(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)

	issued := env.issue(t, event.ID, 3)

	assert.Equal(t, 3, env.chain.mintCalls)
	tickets := env.store.Tickets()
	require.Len(t, tickets, 3)
	for i, ticket := range tickets {
		assert.Equal(t, issued[i].TokenID, ticket.TokenID)
		assert.Equal(t, issued[i].TicketID, ticket.ID)
		assert.Equal(t, alice, ticket.OwnerWalletAddress)
		assert.Equal(t, contract, ticket.ContractAddress)
		assert.Equal(t, event.ID, ticket.EventID)
		assert.True(t, issued[i].Recorded)
	}

	txs := env.store.Transactions()
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Equal(t, models.TransactionKindMint, tx.Kind)
		assert.Equal(t, models.TransactionStatusConfirmed, tx.Status)
		assert.Equal(t, alice, tx.ToWallet)
	}
	assert.Empty(t, env.store.PendingWrites())
}

func TestPurchaseRejectsWhenWalletLimitWouldBeExceeded(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.maxPerEvent = 3
	env.chain.mintDirect(alice, event.ID)
	env.chain.mintDirect(alice, event.ID)

	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 2})

	assert.ErrorIs(t, err, ErrWalletLimitExceeded)
	assert.Nil(t, result)
	assert.Zero(t, env.chain.mintCalls)
	assert.Empty(t, env.store.Tickets())
}

func TestPurchaseUsesConfiguredLimitWhenContractHasNone(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.maxErr = chain.ErrCallReverted

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 5})
	assert.ErrorIs(t, err, ErrWalletLimitExceeded)

	env.issue(t, event.ID, 4)
}

func TestPurchaseDoesNotTreatUnreachableChainAsNoLimit(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.maxErr = chain.ErrChainUnavailable

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})

	assert.ErrorIs(t, err, ErrChainUnavailable)
	assert.Zero(t, env.chain.mintCalls)
}

func TestPurchaseStopsOnWrongNetworkMidSequence(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.mintErrs[2] = &chain.MintError{Kind: chain.KindWrongNetwork, Reason: "wallet on chain 1"}

	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 3})

	require.NoError(t, err)
	require.Len(t, result.Issued, 1)
	assert.ErrorIs(t, result.Err, ErrWrongNetwork)
	assert.Equal(t, chain.KindWrongNetwork, chain.KindOf(result.Err))
	assert.Equal(t, 2, env.chain.mintCalls, "no third mint may be attempted")
	assert.False(t, result.Complete())
	assert.Equal(t, 2, result.Remaining())
	assert.Len(t, env.store.Tickets(), 1)
}

func TestPurchaseRevertAfterFirstMintKeepsPrefix(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.mintErrs[2] = &chain.MintError{Kind: chain.KindReverted, Reason: "sold out"}

	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 2})

	require.NoError(t, err)
	assert.Len(t, result.Issued, 1)
	assert.Equal(t, chain.KindReverted, chain.KindOf(result.Err))
}

func TestPurchaseAdoptsTokenMintedDespiteTimeout(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.timeoutMint[2] = true

	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 3})

	require.NoError(t, err)
	assert.Equal(t, chain.KindTimeout, chain.KindOf(result.Err))
	require.Len(t, result.Issued, 2)
	assert.False(t, result.Issued[0].Adopted)
	assert.True(t, result.Issued[1].Adopted)
	assert.Equal(t, 2, env.chain.mintCalls, "no mint is retried after a timeout")
	assert.Len(t, env.store.Tickets(), 2)
}

func TestPurchaseRecordsMintWhenCallerLeaves(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.chain.afterWrite = cancel

	result, err := env.issuance.Purchase(ctx, PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 2})

	require.NoError(t, err)
	assert.ErrorIs(t, result.Err, context.Canceled)
	require.Len(t, result.Issued, 1)
	assert.True(t, result.Issued[0].Recorded)
	assert.Equal(t, 1, env.chain.mintCalls, "no further mint once the caller is gone")

	tickets := env.store.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, result.Issued[0].TokenID, tickets[0].TokenID)
	assert.Len(t, env.store.Transactions(), 1)
	assert.Empty(t, env.store.PendingWrites())
}

func TestPurchaseAdoptsTimedOutMintWhenCallerLeaves(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 100)
	env.chain.timeoutMint[1] = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.chain.afterWrite = cancel

	result, err := env.issuance.Purchase(ctx, PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})

	require.NoError(t, err)
	assert.Equal(t, chain.KindTimeout, chain.KindOf(result.Err))
	require.Len(t, result.Issued, 1)
	assert.True(t, result.Issued[0].Adopted)
	assert.True(t, result.Issued[0].Recorded)
	assert.Len(t, env.store.Tickets(), 1)
}

func TestPurchaseSoldOut(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 2)
	env.chain.mintDirect(bob, event.ID)

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 2})

	assert.ErrorIs(t, err, ErrSoldOut)
	assert.Zero(t, env.chain.mintCalls)
}

func TestPurchaseWithUnlimitedSupply(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 0)
	for i := 0; i < 10; i++ {
		env.chain.mintDirect(bob, event.ID)
	}

	env.issue(t, event.ID, 1)
}

func TestPurchaseRequiresConnectedWallet(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 10)

	disconnected := &mockWallet{}
	disconnected.On("Snapshot").Return(wallet.Snapshot{State: wallet.StateManualDisconnect})
	env.issuance.wallet = disconnected

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})
	assert.ErrorIs(t, err, ErrWalletRequired)
	disconnected.AssertNotCalled(t, "EnsureNetwork", mock.Anything, mock.Anything)

	env.issuance.wallet = connectedWallet(bob)
	_, err = env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})
	assert.ErrorIs(t, err, ErrWalletRequired)
	assert.Zero(t, env.chain.mintCalls)
}

func TestPurchaseAbortsWhenNetworkGuardFails(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 10)

	w := &mockWallet{}
	w.On("Snapshot").Return(wallet.Snapshot{Address: alice, ChainID: 1, State: wallet.StateConnected})
	w.On("EnsureNetwork", mock.Anything, testNetwork).Return(wallet.ErrWrongNetwork)
	env.issuance.wallet = w

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})

	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Zero(t, env.chain.mintCalls)
	w.AssertExpectations(t)
}

func TestPurchaseValidatesRequest(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 10)
	ctx := context.Background()

	_, err := env.issuance.Purchase(ctx, PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = env.issuance.Purchase(ctx, PurchaseRequest{EventID: 999, Wallet: alice, Quantity: 1})
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = env.issuance.Purchase(ctx, PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1, PricePerTicket: decimal.RequireFromString("0.001")})
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	disabled, err := env.events.Create(ctx, CreateEventRequest{Title: "Free", NFTEnabled: false})
	require.NoError(t, err)
	_, err = env.issuance.Purchase(ctx, PurchaseRequest{EventID: disabled.ID, Wallet: alice, Quantity: 1})
	assert.ErrorIs(t, err, ErrNFTDisabled)

	assert.Zero(t, env.chain.mintCalls)
}

func TestPurchasePaysOfferedPrice(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 10)

	_, err := env.issuance.Purchase(context.Background(), PurchaseRequest{
		EventID: event.ID, Wallet: alice, Quantity: 1, PricePerTicket: decimal.RequireFromString("0.02"),
	})

	require.NoError(t, err)
	require.Len(t, env.chain.mintValues, 1)
	assert.Equal(t, 0, env.chain.mintValues[0].Cmp(big.NewInt(2e16)))
}

func TestPurchaseParksLedgerWriteAndRetryRecovers(t *testing.T) {
	env := newTestEnv(t)
	event := env.createEvent(t, 10)

	restore := env.failOps("ticket.create")
	result, err := env.issuance.Purchase(context.Background(), PurchaseRequest{EventID: event.ID, Wallet: alice, Quantity: 1})
	restore()

	require.NoError(t, err)
	require.NoError(t, result.Err, "a lost ledger write is not a failed mint")
	require.Len(t, result.Issued, 1)
	assert.False(t, result.Issued[0].Recorded)
	assert.Empty(t, env.store.Tickets())

	pending := env.store.PendingWrites()
	require.Len(t, pending, 1)
	assert.Equal(t, models.PendingLedgerWriteKindMint, pending[0].Kind)
	assert.Equal(t, alice, pending[0].WalletAddress)

	env.retry.now = func() time.Time { return time.Now().Add(time.Hour) }
	recovered, err := env.retry.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	tickets := env.store.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, result.Issued[0].TokenID, tickets[0].TokenID)
	assert.Equal(t, result.Issued[0].TicketID, tickets[0].ID)
	assert.Equal(t, models.PendingLedgerWriteStatusRecovered, env.store.PendingWrites()[0].Status)
}

func TestMintErrorMapping(t *testing.T) {
	unavailable := mintError(errors.Join(chain.ErrChainUnavailable, errors.New("dial")))
	assert.ErrorIs(t, unavailable, ErrChainUnavailable)

	insufficient := mintError(&chain.MintError{Kind: chain.KindInsufficientValue})
	assert.ErrorIs(t, insufficient, ErrInsufficientPayment)

	notConnected := mintError(&chain.MintError{Kind: chain.KindWalletNotConnected})
	assert.ErrorIs(t, notConnected, ErrWalletRequired)
}
