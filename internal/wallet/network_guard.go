package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ticket-backend/internal/config"
)

// ErrWrongNetwork the wallet is not on, and could not be moved to, the required chain
var ErrWrongNetwork = errors.New("wallet is on the wrong network")

// NetworkGuard keeps the session on the deployment chain before value-bearing calls
type NetworkGuard struct {
	session *Session
}

// NewNetworkGuard creates a guard over session
func NewNetworkGuard(session *Session) *NetworkGuard {
	return &NetworkGuard{session: session}
}

// EnsureNetwork returns nil when the wallet is on required. Otherwise it asks the
// wallet to switch, adding the chain first if the wallet does not know it.
// No provider request is made when the wallet is already on required.
func (g *NetworkGuard) EnsureNetwork(ctx context.Context, required *config.NetworkConfig) error {
	if required == nil {
		return fmt.Errorf("%w: no target network configured", ErrWrongNetwork)
	}
	snap := g.session.Snapshot()
	if snap.ChainID == required.ChainID {
		return nil
	}

	provider := g.session.Provider()
	if provider == nil {
		return fmt.Errorf("%w: %v", ErrWrongNetwork, ErrWalletUnavailable)
	}

	log.Printf("🔀 [NetworkGuard] Wallet on chain %d, switching to %s (%d)", snap.ChainID, required.Name, required.ChainID)
	err := switchChain(ctx, provider, required)
	if err != nil && ErrorCode(err) == CodeUnrecognizedChain {
		log.Printf("➕ [NetworkGuard] Chain %d unknown to wallet, adding it", required.ChainID)
		if addErr := provider.Request(ctx, nil, "wallet_addEthereumChain", required.AddChainParams()); addErr != nil {
			return fmt.Errorf("%w: add chain %d: %v", ErrWrongNetwork, required.ChainID, addErr)
		}
		err = switchChain(ctx, provider, required)
	}
	if err != nil {
		return fmt.Errorf("%w: switch to chain %d: %v", ErrWrongNetwork, required.ChainID, err)
	}

	chainID, err := requestChainID(ctx, provider)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrongNetwork, err)
	}
	g.session.HandleChainChanged(chainID)
	if chainID != required.ChainID {
		return fmt.Errorf("%w: wallet reports chain %d after switch", ErrWrongNetwork, chainID)
	}
	log.Printf("✅ [NetworkGuard] Wallet on %s", required.Name)
	return nil
}

func switchChain(ctx context.Context, provider Provider, network *config.NetworkConfig) error {
	return provider.Request(ctx, nil, "wallet_switchEthereumChain", map[string]string{"chainId": network.HexChainID()})
}

// Gate is the session together with its network guard
type Gate struct {
	*Session
	*NetworkGuard
}

// NewGate wraps session with a guard
func NewGate(session *Session) *Gate {
	return &Gate{Session: session, NetworkGuard: NewNetworkGuard(session)}
}
