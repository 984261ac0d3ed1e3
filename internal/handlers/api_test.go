package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-backend/internal/chain"
	"ticket-backend/internal/config"
	"ticket-backend/internal/handlers"
	"ticket-backend/internal/middleware"
	"ticket-backend/internal/repository/memory"
	"ticket-backend/internal/router"
	"ticket-backend/internal/services"
	"ticket-backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	alice      = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob        = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	contract   = "0xbdd45c68f44ef4d9db4f5dea4f6f163dac88ac2f"
	jwtSecret  = "test-secret"
	totpSecret = "JBSWY3DPEHPK3PXP"
)

var testNetwork = &config.NetworkConfig{ChainID: 4202, Name: "Lisk Sepolia Testnet", TicketContract: contract, Enabled: true}

type mockChain struct {
	mock.Mock
}

func (m *mockChain) ContractAddress() string        { return contract }
func (m *mockChain) Network() *config.NetworkConfig { return testNetwork }

func (m *mockChain) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.Error(1)
}

func (m *mockChain) TicketsPerEvent(ctx context.Context, eventID uint64, owner string) (uint64, error) {
	args := m.Called(ctx, eventID, owner)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChain) TicketsForEvent(ctx context.Context, eventID uint64) ([]uint64, error) {
	args := m.Called(ctx, eventID)
	ids, _ := args.Get(0).([]uint64)
	return ids, args.Error(1)
}

func (m *mockChain) TicketsByOwnerForEvent(ctx context.Context, owner string, eventID uint64) ([]uint64, error) {
	args := m.Called(ctx, owner, eventID)
	ids, _ := args.Get(0).([]uint64)
	return ids, args.Error(1)
}

func (m *mockChain) Ticket(ctx context.Context, tokenID uint64) (*chain.TicketInfo, error) {
	args := m.Called(ctx, tokenID)
	info, _ := args.Get(0).(*chain.TicketInfo)
	return info, args.Error(1)
}

func (m *mockChain) TicketPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	price, _ := args.Get(0).(*big.Int)
	return price, args.Error(1)
}

func (m *mockChain) MaxTicketsPerEvent(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChain) Mint(ctx context.Context, req chain.MintRequest) (*chain.MintResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*chain.MintResult)
	return result, args.Error(1)
}

func (m *mockChain) Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error) {
	args := m.Called(ctx, tokenID, from, to)
	return args.String(0), args.Error(1)
}

// stubWallet a fixed session
type stubWallet struct {
	snapshot wallet.Snapshot
}

func (w *stubWallet) Snapshot() wallet.Snapshot { return w.snapshot }

func (w *stubWallet) Connect(ctx context.Context) (wallet.Snapshot, error) {
	w.snapshot = wallet.Snapshot{Address: alice, ChainID: testNetwork.ChainID, State: wallet.StateConnected}
	return w.snapshot, nil
}

func (w *stubWallet) Disconnect(ctx context.Context) error {
	w.snapshot = wallet.Snapshot{State: wallet.StateManualDisconnect}
	return nil
}

func (w *stubWallet) EnsureNetwork(ctx context.Context, required *config.NetworkConfig) error {
	return nil
}

type apiEnv struct {
	engine *gin.Engine
	chain  *mockChain
	wallet *stubWallet
	store  *memory.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &apiEnv{
		chain:  &mockChain{},
		wallet: &stubWallet{snapshot: wallet.Snapshot{Address: alice, ChainID: testNetwork.ChainID, State: wallet.StateConnected}},
		store:  memory.NewStore(),
	}
	ledger := env.store.Ledger()
	pricing := services.NewPricingService(nil, decimal.NewFromInt(2500), decimal.RequireFromString("0.025"))
	writer := services.NewLedgerWriter(ledger, nil, 3)
	events := services.NewEventService(ledger, env.chain, pricing)
	issuance := services.NewTicketIssuanceService(env.chain, env.wallet, ledger, writer, nil, 4)
	marketplace := services.NewMarketplaceService(env.chain, ledger, writer, pricing, nil)
	recon := services.NewReconciliationService(env.chain, ledger, writer, nil)
	retry := services.NewLedgerWriteRetryService(ledger, writer, recon, nil)
	push := services.NewActivityPushService()
	t.Cleanup(push.Close)

	cfg := &config.Config{
		Auth:  config.AuthConfig{JWTSecret: jwtSecret},
		Admin: config.AdminConfig{TOTPSecret: totpSecret},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env.engine = router.SetupRouter(cfg, logger, router.Handlers{
		Wallet:         handlers.NewWalletHandler(env.wallet),
		Event:          handlers.NewEventHandler(events, issuance, env.wallet),
		Marketplace:    handlers.NewMarketplaceHandler(marketplace),
		Reconciliation: handlers.NewReconciliationHandler(recon, services.NewReconciliationScheduler(recon, time.Hour)),
		Retry:          handlers.NewRetryHandler(retry),
		WebSocket:      handlers.NewWebSocketHandler(push),
		Health:         handlers.NewHealthHandler(nil, env.wallet, testNetwork),
	})
	return env
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.GenerateToken([]byte(jwtSecret), userID, alice, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (env *apiEnv) do(t *testing.T, method, path string, body interface{}, header http.Header) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (env *apiEnv) createEvent(t *testing.T, supply int) uint64 {
	t.Helper()
	status, body := env.do(t, http.MethodPost, "/api/events", map[string]interface{}{
		"title":            "Launch",
		"location":         "Berlin",
		"nft_enabled":      true,
		"ticket_price_usd": "25",
		"nft_supply":       supply,
	}, http.Header{"Authorization": {bearer(t, "organizer-1")}})
	require.Equal(t, http.StatusCreated, status, body)
	event := body["event"].(map[string]interface{})
	return uint64(event["id"].(float64))
}

func TestCreateEventRequiresAuth(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/events", map[string]interface{}{"title": "Launch"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_AUTH_HEADER", body["code"])

	status, body = env.do(t, http.MethodPost, "/api/events", map[string]interface{}{"title": "Launch", "ticket_price_usd": "25"},
		http.Header{"Authorization": {bearer(t, "organizer-1")}})
	require.Equal(t, http.StatusCreated, status)
	event := body["event"].(map[string]interface{})
	assert.Equal(t, "0.01", event["nft_price"])
}

func TestGetEventReportsChainSupply(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createEvent(t, 5)
	env.chain.On("TicketsForEvent", mock.Anything, id).Return([]uint64{1, 2}, nil)

	status, body := env.do(t, http.MethodGet, "/api/events/1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	event := body["event"].(map[string]interface{})
	assert.Equal(t, float64(2), event["minted"])
	assert.Equal(t, float64(3), event["supply_remaining"])

	status, body = env.do(t, http.MethodGet, "/api/events/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "EVENT_NOT_FOUND", body["code"])

	status, _ = env.do(t, http.MethodGet, "/api/events/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateEventByAnotherUserIsForbidden(t *testing.T) {
	env := newAPIEnv(t)
	env.createEvent(t, 5)

	status, body := env.do(t, http.MethodPut, "/api/events/1", map[string]interface{}{"title": "Taken"},
		http.Header{"Authorization": {bearer(t, "someone-else")}})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_EVENT_CREATOR", body["code"])
}

func TestPurchaseStoppedEarlyAnswersMultiStatus(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createEvent(t, 5)

	env.chain.On("TicketsForEvent", mock.Anything, id).Return([]uint64{}, nil)
	env.chain.On("TicketsPerEvent", mock.Anything, id, alice).Return(uint64(0), nil)
	env.chain.On("MaxTicketsPerEvent", mock.Anything).Return(uint64(4), nil)
	env.chain.On("TicketPrice", mock.Anything).Return(big.NewInt(1e16), nil)
	env.chain.On("TicketsByOwnerForEvent", mock.Anything, alice, id).Return([]uint64{}, nil)
	env.chain.On("Mint", mock.Anything, mock.AnythingOfType("chain.MintRequest")).
		Return(&chain.MintResult{TokenID: 7, TxHash: "0xmint7", BlockNumber: 107}, nil).Once()
	env.chain.On("Mint", mock.Anything, mock.AnythingOfType("chain.MintRequest")).
		Return(nil, &chain.MintError{Kind: chain.KindReverted, Reason: "execution reverted"}).Once()

	status, body := env.do(t, http.MethodPost, "/api/events/1/purchase", map[string]interface{}{"quantity": 3},
		http.Header{"Authorization": {bearer(t, "buyer-1")}})
	require.Equal(t, http.StatusMultiStatus, status, body)
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, "TRANSACTION_REVERTED", body["code"])
	issued := body["issued"].([]interface{})
	require.Len(t, issued, 1)
	assert.Equal(t, float64(7), issued[0].(map[string]interface{})["token_id"])
	assert.Equal(t, true, issued[0].(map[string]interface{})["recorded"])

	require.Len(t, env.store.Tickets(), 1)
	env.chain.AssertNumberOfCalls(t, "Mint", 2)
}

func TestPurchaseWithoutWalletIsRejected(t *testing.T) {
	env := newAPIEnv(t)
	env.createEvent(t, 5)

	status, _ := env.do(t, http.MethodPost, "/api/wallet/disconnect", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/api/events/1/purchase", map[string]interface{}{"quantity": 1, "wallet": alice},
		http.Header{"Authorization": {bearer(t, "buyer-1")}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WALLET_REQUIRED", body["code"])
	env.chain.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything)
}

func TestPurchaseUnknownListing(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/listings/missing/purchase", map[string]interface{}{"wallet": bob},
		http.Header{"Authorization": {bearer(t, "buyer-1")}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "LISTING_NOT_FOUND", body["code"])
}

func TestReconciliationCheck(t *testing.T) {
	env := newAPIEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/reconciliation?wallet="+alice, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	env.chain.On("TicketsByOwnerForEvent", mock.Anything, alice, uint64(1)).Return([]uint64{3}, nil)
	env.chain.On("TicketsPerEvent", mock.Anything, uint64(1), alice).Return(uint64(1), nil)

	status, body := env.do(t, http.MethodGet, "/api/reconciliation?wallet="+alice+"&event=1", nil, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["consistent"])
	assert.Empty(t, env.store.Tickets(), "check must not write")
}

func TestAdminRoutesRequireWhitelistAndTOTP(t *testing.T) {
	env := newAPIEnv(t)

	request := func(remote, code string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/pending-writes", nil)
		req.RemoteAddr = remote
		if code != "" {
			req.Header.Set("X-Admin-TOTP", code)
		}
		w := httptest.NewRecorder()
		env.engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, request("192.0.2.1:4000", ""))
	assert.Equal(t, http.StatusUnauthorized, request("127.0.0.1:4000", ""))
	assert.Equal(t, http.StatusUnauthorized, request("127.0.0.1:4000", "000000x"))

	code, err := totp.GenerateCode(totpSecret, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request("127.0.0.1:4000", code))
}

func TestWalletAndHealth(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/wallet", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alice, body["address"])
	assert.Equal(t, "connected", body["state"])

	status, body = env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["database"])

	status, _ = env.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
