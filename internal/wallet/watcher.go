package wallet

import (
	"context"
	"log"
	"time"
)

// Watcher polls the provider and feeds accountsChanged/chainChanged into the session.
// JSON-RPC wallets have no push channel for these notifications.
type Watcher struct {
	session  *Session
	interval time.Duration
}

// NewWatcher creates a watcher
func NewWatcher(session *Session, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{session: session, interval: interval}
}

// Run polls until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	if w.session.Provider() == nil {
		log.Printf("⚠️ [Wallet] No provider configured, watcher not started")
		return
	}
	log.Printf("👀 [Wallet] Watching provider every %v", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [Wallet] Watcher stopped")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll performs one poll cycle
func (w *Watcher) Poll(ctx context.Context) {
	if w.session.Snapshot().State != StateConnected {
		return
	}
	provider := w.session.Provider()

	pollCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	accounts, err := requestAccounts(pollCtx, provider, "eth_accounts")
	if err != nil {
		log.Printf("⚠️ [Wallet] eth_accounts poll failed: %v", err)
		return
	}
	w.session.HandleAccountsChanged(accounts)

	chainID, err := requestChainID(pollCtx, provider)
	if err != nil {
		log.Printf("⚠️ [Wallet] eth_chainId poll failed: %v", err)
		return
	}
	w.session.HandleChainChanged(chainID)
}
