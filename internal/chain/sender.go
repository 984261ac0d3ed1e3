package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"ticket-backend/internal/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxRequest an unsigned contract call
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// TxSender signs and broadcasts a transaction, returning its hash
type TxSender interface {
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// ProviderSender delegates signing to the wallet through eth_sendTransaction
type ProviderSender struct {
	provider wallet.Provider
}

// NewProviderSender creates a wallet-signed sender
func NewProviderSender(provider wallet.Provider) *ProviderSender {
	return &ProviderSender{provider: provider}
}

// SendTransaction asks the wallet to sign and send req
func (s *ProviderSender) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if s.provider == nil {
		return common.Hash{}, wallet.ErrWalletUnavailable
	}
	tx := map[string]string{
		"from": req.From.Hex(),
		"to":   req.To.Hex(),
		"data": hexutil.Encode(req.Data),
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		tx["value"] = hexutil.EncodeBig(req.Value)
	}
	var hash common.Hash
	if err := s.provider.Request(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// KeyBackend is what KeySender needs from a node. *ethclient.Client satisfies it.
type KeyBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// KeySender signs with a local private key (operator wallet)
type KeySender struct {
	backend  KeyBackend
	key      *ecdsa.PrivateKey
	address  common.Address
	gasPrice string // wei, or "auto"
	gasLimit uint64

	mu      sync.Mutex
	chainID *big.Int
}

// NewKeySender parses a hex private key
func NewKeySender(backend KeyBackend, privateKeyHex, gasPrice string, gasLimit uint64) (*KeySender, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySender{
		backend:  backend,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		gasPrice: gasPrice,
		gasLimit: gasLimit,
	}, nil
}

// Address returns the signing address
func (s *KeySender) Address() common.Address {
	return s.address
}

func (s *KeySender) networkID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

func (s *KeySender) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	if s.gasPrice != "" && s.gasPrice != "auto" {
		price, ok := new(big.Int).SetString(s.gasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid gas price %q", s.gasPrice)
		}
		return price, nil
	}
	price, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	// 20% headroom so the tx is not stuck behind a price bump
	price = new(big.Int).Mul(price, big.NewInt(12))
	return price.Div(price, big.NewInt(10)), nil
}

// SendTransaction builds, signs and broadcasts req
func (s *KeySender) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.From != s.address {
		return common.Hash{}, fmt.Errorf("sender %s does not match signing key %s", req.From.Hex(), s.address.Hex())
	}
	chainID, err := s.networkID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain id: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.suggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit := s.gasLimit
	if gasLimit == 0 {
		to := req.To
		estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, err
		}
		gasLimit = estimated * 12 / 10
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	log.Printf("📤 [KeySender] Sent tx %s nonce=%d gas=%d gasPrice=%s", signed.Hash().Hex(), nonce, gasLimit, gasPrice)
	return signed.Hash(), nil
}

// KeyProvider presents an operator key as a wallet: it always exposes the
// key's account and reports the node's chain. It cannot switch chains.
type KeyProvider struct {
	sender *KeySender
}

// NewKeyProvider creates a wallet provider over a KeySender
func NewKeyProvider(sender *KeySender) *KeyProvider {
	return &KeyProvider{sender: sender}
}

// Request implements wallet.Provider
func (p *KeyProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		if out, ok := result.(*[]string); ok {
			*out = []string{p.sender.Address().Hex()}
		}
		return nil
	case "eth_chainId":
		id, err := p.sender.networkID(ctx)
		if err != nil {
			return err
		}
		if out, ok := result.(*string); ok {
			*out = hexutil.EncodeBig(id)
		}
		return nil
	}
	return &wallet.ProviderError{Code: -32601, Message: "operator key does not support " + method}
}
