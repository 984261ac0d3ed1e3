package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ticket-backend/internal/utils"
)

var (
	ErrWalletUnavailable  = errors.New("wallet provider unavailable")
	ErrConnectionRejected = errors.New("wallet connection rejected by user")
	ErrConnectionPending  = errors.New("wallet connection request already pending")
)

// State connection state of the wallet session
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateManualDisconnect State = "manual_disconnect"
)

// Snapshot is a copy of the session state
type Snapshot struct {
	Address   string `json:"address,omitempty"`
	ChainID   int    `json:"chain_id,omitempty"`
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// IsConnected reports Connected with an address set
func (s Snapshot) IsConnected() bool {
	return s.State == StateConnected && s.Address != ""
}

// Session is the single wallet session of this process.
// Only its own methods and provider notifications mutate it.
type Session struct {
	mu       sync.Mutex
	provider Provider
	store    SessionStore

	state     State
	address   string
	chainID   int
	lastError string

	listeners []func(Snapshot)
}

// NewSession creates a session; provider may be nil when no wallet is present
func NewSession(provider Provider, store SessionStore) *Session {
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &Session{
		provider: provider,
		store:    store,
		state:    StateDisconnected,
	}
}

// OnChange registers a listener invoked after every state change
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{Address: s.address, ChainID: s.chainID, State: s.state, LastError: s.lastError}
}

// Provider returns the wallet provider, nil if none
func (s *Session) Provider() Provider {
	return s.provider
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Connect asks the wallet for account access
func (s *Session) Connect(ctx context.Context) (Snapshot, error) {
	if s.provider == nil {
		s.fail(ErrWalletUnavailable)
		return s.Snapshot(), ErrWalletUnavailable
	}

	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return s.Snapshot(), ErrConnectionPending
	}
	previous := s.state
	s.state = StateConnecting
	s.lastError = ""
	s.mu.Unlock()

	accounts, err := requestAccounts(ctx, s.provider, "eth_requestAccounts")
	if err == nil && len(accounts) == 0 {
		err = ErrConnectionRejected
	}
	var chainID int
	if err == nil {
		chainID, err = requestChainID(ctx, s.provider)
	}
	if err != nil {
		err = classifyConnectError(err)
		s.mu.Lock()
		s.state = previous
		s.lastError = err.Error()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		log.Printf("❌ [Wallet] Connect failed: %v", err)
		s.notify(snap)
		return snap, err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.address = utils.NormalizeAddress(accounts[0])
	s.chainID = chainID
	hints := Hints{ManualDisconnect: false, UserHadConnected: true}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, hints); err != nil {
		log.Printf("⚠️ [Wallet] Failed to persist session hints: %v", err)
	}
	log.Printf("✅ [Wallet] Connected: %s on chain %d", utils.ShortAddress(snap.Address), snap.ChainID)
	s.notify(snap)
	return snap, nil
}

func classifyConnectError(err error) error {
	if errors.Is(err, ErrConnectionRejected) {
		return err
	}
	switch ErrorCode(err) {
	case CodeUserRejected:
		return ErrConnectionRejected
	case CodeRequestPending:
		return ErrConnectionPending
	}
	return fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Disconnect is the explicit user disconnect. It is sticky across restarts
// until the next Connect.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateManualDisconnect
	s.address = ""
	s.lastError = ""
	hints := Hints{ManualDisconnect: true, UserHadConnected: false}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Printf("🔌 [Wallet] Manually disconnected")
	s.notify(snap)
	if err := s.store.Save(ctx, hints); err != nil {
		return fmt.Errorf("failed to persist disconnect: %w", err)
	}
	return nil
}

// AutoReconnect restores a previous connection after a restart without prompting.
// It does nothing after a manual disconnect or if the user never connected.
func (s *Session) AutoReconnect(ctx context.Context) (Snapshot, error) {
	hints, err := s.store.Load(ctx)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("failed to load session hints: %w", err)
	}

	s.mu.Lock()
	if hints.ManualDisconnect {
		s.state = StateManualDisconnect
		s.address = ""
		snap := s.snapshotLocked()
		s.mu.Unlock()
		log.Printf("⏭️ [Wallet] Auto-reconnect skipped: manual disconnect")
		return snap, nil
	}
	s.mu.Unlock()

	if !hints.UserHadConnected || s.provider == nil {
		return s.Snapshot(), nil
	}

	accounts, err := requestAccounts(ctx, s.provider, "eth_accounts")
	if err != nil {
		return s.Snapshot(), fmt.Errorf("failed to query accounts: %w", err)
	}
	if len(accounts) == 0 {
		return s.Snapshot(), nil
	}
	chainID, err := requestChainID(ctx, s.provider)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("failed to query chain id: %w", err)
	}

	s.mu.Lock()
	s.state = StateConnected
	s.address = utils.NormalizeAddress(accounts[0])
	s.chainID = chainID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Printf("🔄 [Wallet] Auto-reconnected: %s", utils.ShortAddress(snap.Address))
	s.notify(snap)
	return snap, nil
}

// HandleAccountsChanged applies an accountsChanged notification.
// Zero accounts is an implicit disconnect; notifications after a manual
// disconnect are ignored.
func (s *Session) HandleAccountsChanged(accounts []string) {
	s.mu.Lock()
	if s.state == StateManualDisconnect {
		s.mu.Unlock()
		return
	}
	if len(accounts) == 0 {
		if s.state == StateDisconnected && s.address == "" {
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		s.address = ""
		snap := s.snapshotLocked()
		s.mu.Unlock()
		log.Printf("🔌 [Wallet] Accounts cleared by provider")
		s.notify(snap)
		return
	}
	address := utils.NormalizeAddress(accounts[0])
	if s.state == StateConnected && s.address == address {
		s.mu.Unlock()
		return
	}
	if s.state != StateConnected {
		// only a session the user connected follows account changes
		s.mu.Unlock()
		return
	}
	s.address = address
	snap := s.snapshotLocked()
	s.mu.Unlock()
	log.Printf("👤 [Wallet] Account changed: %s", utils.ShortAddress(address))
	s.notify(snap)
}

// HandleChainChanged applies a chainChanged notification
func (s *Session) HandleChainChanged(chainID int) {
	s.mu.Lock()
	if s.chainID == chainID {
		s.mu.Unlock()
		return
	}
	s.chainID = chainID
	snap := s.snapshotLocked()
	s.mu.Unlock()
	log.Printf("🔗 [Wallet] Chain changed: %d", chainID)
	s.notify(snap)
}
