package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func connectedProvider() *fakeProvider {
	p := newFakeProvider()
	p.reply("eth_requestAccounts", []string{testAccount})
	p.reply("eth_accounts", []string{testAccount})
	p.reply("eth_chainId", "0x106a")
	return p
}

func TestConnect_Success(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	s := NewSession(connectedProvider(), store)

	snap, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", snap.Address)
	assert.Equal(t, 4202, snap.ChainID)
	assert.True(t, snap.IsConnected())

	hints, _ := store.Load(ctx)
	assert.Equal(t, Hints{ManualDisconnect: false, UserHadConnected: true}, hints)
}

func TestConnect_NoProvider(t *testing.T) {
	s := NewSession(nil, nil)
	snap, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrWalletUnavailable)
	assert.Equal(t, StateDisconnected, snap.State)
	assert.NotEmpty(t, snap.LastError)
}

func TestConnect_Rejected(t *testing.T) {
	p := newFakeProvider()
	p.on("eth_requestAccounts", func([]interface{}) (interface{}, error) {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	})
	store := NewMemorySessionStore()
	s := NewSession(p, store)

	snap, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionRejected)
	assert.Equal(t, StateDisconnected, snap.State)

	hints, _ := store.Load(context.Background())
	assert.False(t, hints.UserHadConnected)
}

func TestConnect_Pending(t *testing.T) {
	p := newFakeProvider()
	p.on("eth_requestAccounts", func([]interface{}) (interface{}, error) {
		return nil, &ProviderError{Code: CodeRequestPending, Message: "Already processing eth_requestAccounts"}
	})
	s := NewSession(p, nil)

	_, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionPending)
}

func TestConnect_WhileConnectingIsPending(t *testing.T) {
	p := newFakeProvider()
	entered := make(chan struct{})
	release := make(chan struct{})
	p.on("eth_requestAccounts", func([]interface{}) (interface{}, error) {
		close(entered)
		<-release
		return []string{testAccount}, nil
	})
	p.reply("eth_chainId", "0x106a")
	s := NewSession(p, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		done <- err
	}()
	<-entered

	_, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionPending)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, s.Snapshot().State)
}

func TestDisconnect_IsStickyAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	p := connectedProvider()

	s := NewSession(p, store)
	_, err := s.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, StateManualDisconnect, s.Snapshot().State)

	// simulated reload: new session over the same store, provider still reports an account
	p.reset()
	reloaded := NewSession(p, store)
	snap, err := reloaded.AutoReconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateManualDisconnect, snap.State)
	assert.Empty(t, snap.Address)
	assert.Empty(t, p.methods())
}

func TestAutoReconnect_NeverConnected(t *testing.T) {
	p := connectedProvider()
	s := NewSession(p, NewMemorySessionStore())

	snap, err := s.AutoReconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, snap.State)
	assert.Empty(t, p.methods())
}

func TestAutoReconnect_AfterPreviousConnect(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	require.NoError(t, store.Save(ctx, Hints{UserHadConnected: true}))
	p := connectedProvider()

	s := NewSession(p, store)
	snap, err := s.AutoReconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, []string{"eth_accounts", "eth_chainId"}, p.methods())
}

func TestConnect_ClearsManualDisconnect(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	s := NewSession(connectedProvider(), store)

	require.NoError(t, s.Disconnect(ctx))
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	hints, _ := store.Load(ctx)
	assert.Equal(t, Hints{ManualDisconnect: false, UserHadConnected: true}, hints)
}

func TestHandleAccountsChanged(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	s := NewSession(connectedProvider(), store)
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	var seen []Snapshot
	s.OnChange(func(snap Snapshot) { seen = append(seen, snap) })

	s.HandleAccountsChanged([]string{"0x1111111111111111111111111111111111111111"})
	assert.Equal(t, "0x1111111111111111111111111111111111111111", s.Snapshot().Address)

	s.HandleAccountsChanged(nil)
	assert.Equal(t, StateDisconnected, s.Snapshot().State)
	assert.Empty(t, s.Snapshot().Address)

	// idempotent
	s.HandleAccountsChanged(nil)
	assert.Len(t, seen, 2)

	// implicit disconnect keeps the reconnect hint
	hints, _ := store.Load(ctx)
	assert.True(t, hints.UserHadConnected)
	assert.False(t, hints.ManualDisconnect)
}

func TestHandleAccountsChanged_IgnoredAfterManualDisconnect(t *testing.T) {
	ctx := context.Background()
	s := NewSession(connectedProvider(), nil)
	_, err := s.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx))

	s.HandleAccountsChanged(nil)
	s.HandleAccountsChanged([]string{testAccount})
	assert.Equal(t, StateManualDisconnect, s.Snapshot().State)
	assert.Empty(t, s.Snapshot().Address)
}

func TestHandleChainChanged(t *testing.T) {
	s := NewSession(connectedProvider(), nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	s.HandleChainChanged(1135)
	assert.Equal(t, 1135, s.Snapshot().ChainID)
	assert.Equal(t, StateConnected, s.Snapshot().State)
}

func TestWatcherPoll_FollowsProvider(t *testing.T) {
	p := connectedProvider()
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	p.reply("eth_chainId", "0x46f")
	p.reply("eth_accounts", []string{"0x2222222222222222222222222222222222222222"})
	NewWatcher(s, 0).Poll(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, 1135, snap.ChainID)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", snap.Address)
}
