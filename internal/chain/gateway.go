package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"ticket-backend/internal/config"
	"ticket-backend/internal/utils"
	"ticket-backend/internal/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the read side of an RPC node. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SessionReader exposes the wallet session state
type SessionReader interface {
	Snapshot() wallet.Snapshot
}

// Guard enforces the target network before writes
type Guard interface {
	EnsureNetwork(ctx context.Context, required *config.NetworkConfig) error
}

// TicketInfo is the contract's tickets(tokenId) record
type TicketInfo struct {
	TokenID    uint64
	EventID    uint64
	IsUsed     bool
	MintedAt   time.Time
	EventTitle string
}

// MintRequest parameters of mintTicket
type MintRequest struct {
	EventID     uint64
	Recipient   string
	EventTitle  string
	MetadataURI string
	Value       *big.Int // nil pays the contract's ticketPrice
}

// MintResult a confirmed mint
type MintResult struct {
	TokenID     uint64
	TxHash      string
	BlockNumber uint64
}

// GatewayOptions tune confirmation waiting
type GatewayOptions struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Gateway reads and writes the ticket contract.
// Writes from this process are serialized on one lock because the sending
// account's nonces are sequential.
type Gateway struct {
	backend  Backend
	sender   TxSender
	session  SessionReader
	guard    Guard
	network  *config.NetworkConfig
	contract common.Address

	writeMu        sync.Mutex
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// NewGateway creates a gateway for network's ticket contract
func NewGateway(backend Backend, sender TxSender, session SessionReader, guard Guard, network *config.NetworkConfig, opts GatewayOptions) *Gateway {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Gateway{
		backend:        backend,
		sender:         sender,
		session:        session,
		guard:          guard,
		network:        network,
		contract:       common.HexToAddress(network.TicketContract),
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
	}
}

// ContractAddress returns the normalized ticket contract address
func (g *Gateway) ContractAddress() string {
	return utils.NormalizeAddress(g.contract.Hex())
}

// Network returns the target network
func (g *Gateway) Network() *config.NetworkConfig {
	return g.network
}

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if g.backend == nil {
		return nil, ErrChainUnavailable
	}
	data, err := TicketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrCallReverted, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", method, ErrChainUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w: empty result", method, ErrCallReverted)
	}
	values, err := TicketABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// OwnerOf returns the owner of tokenID. ErrCallReverted if the token does not exist.
func (g *Gateway) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	values, err := g.call(ctx, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", err
	}
	return utils.NormalizeAddress(values[0].(common.Address).Hex()), nil
}

// TicketsPerEvent returns the contract's issuance counter for owner on eventID
func (g *Gateway) TicketsPerEvent(ctx context.Context, eventID uint64, owner string) (uint64, error) {
	values, err := g.call(ctx, "ticketsPerEvent", new(big.Int).SetUint64(eventID), common.HexToAddress(owner))
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}

// TicketsForEvent returns every token minted for eventID
func (g *Gateway) TicketsForEvent(ctx context.Context, eventID uint64) ([]uint64, error) {
	values, err := g.call(ctx, "getTicketsForEvent", new(big.Int).SetUint64(eventID))
	if err != nil {
		return nil, err
	}
	return toUint64s(values[0].([]*big.Int)), nil
}

// TicketsByOwnerForEvent returns the tokens of eventID currently owned by owner
func (g *Gateway) TicketsByOwnerForEvent(ctx context.Context, owner string, eventID uint64) ([]uint64, error) {
	values, err := g.call(ctx, "getTicketsByOwnerForEvent", common.HexToAddress(owner), new(big.Int).SetUint64(eventID))
	if err != nil {
		return nil, err
	}
	return toUint64s(values[0].([]*big.Int)), nil
}

// Ticket returns the contract's record for tokenID
func (g *Gateway) Ticket(ctx context.Context, tokenID uint64) (*TicketInfo, error) {
	values, err := g.call(ctx, "tickets", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return &TicketInfo{
		TokenID:    tokenID,
		EventID:    values[0].(*big.Int).Uint64(),
		IsUsed:     values[1].(bool),
		MintedAt:   time.Unix(values[2].(*big.Int).Int64(), 0).UTC(),
		EventTitle: values[3].(string),
	}, nil
}

// TicketPrice returns the mint price in wei
func (g *Gateway) TicketPrice(ctx context.Context) (*big.Int, error) {
	values, err := g.call(ctx, "ticketPrice")
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// MaxTicketsPerEvent returns the contract's per-wallet-per-event cap
func (g *Gateway) MaxTicketsPerEvent(ctx context.Context) (uint64, error) {
	values, err := g.call(ctx, "MAX_TICKETS_PER_EVENT")
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}

func toUint64s(in []*big.Int) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = v.Uint64()
	}
	return out
}

// writePreconditions checks the session and network. Caller holds writeMu.
func (g *Gateway) writePreconditions(ctx context.Context) (common.Address, ErrorKind, error) {
	snap := g.session.Snapshot()
	if !snap.IsConnected() {
		return common.Address{}, KindWalletNotConnected, errors.New("wallet is not connected")
	}
	if err := g.guard.EnsureNetwork(ctx, g.network); err != nil {
		return common.Address{}, KindWrongNetwork, err
	}
	return common.HexToAddress(snap.Address), "", nil
}

// Mint submits mintTicket and waits for confirmation.
func (g *Gateway) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	from, kind, err := g.writePreconditions(ctx)
	if err != nil {
		return nil, &MintError{Kind: kind, Reason: err.Error(), Err: err}
	}
	if !utils.IsEvmAddress(req.Recipient) || utils.IsZeroAddress(req.Recipient) {
		return nil, &MintError{Kind: KindReverted, Reason: "invalid recipient " + req.Recipient}
	}

	price, err := g.TicketPrice(ctx)
	if err != nil {
		return nil, &MintError{Kind: KindReverted, Reason: "could not read ticket price", Err: err}
	}
	value := req.Value
	if value == nil {
		value = price
	}
	if value.Cmp(price) < 0 {
		return nil, &MintError{Kind: KindInsufficientValue, Reason: fmt.Sprintf("value %s below ticket price %s", value, price)}
	}

	data, err := TicketABI.Pack("mintTicket",
		new(big.Int).SetUint64(req.EventID),
		common.HexToAddress(req.Recipient),
		req.EventTitle,
		req.MetadataURI,
	)
	if err != nil {
		return nil, &MintError{Kind: KindReverted, Reason: "pack mintTicket", Err: err}
	}

	log.Printf("🎫 [ChainGateway] Minting ticket for event %d to %s (value %s wei)", req.EventID, utils.ShortAddress(req.Recipient), value)
	txHash, err := g.sender.SendTransaction(ctx, TxRequest{From: from, To: g.contract, Value: value, Data: data})
	if err != nil {
		kind, reason := classifySendError(err)
		log.Printf("❌ [ChainGateway] Mint submission failed: %v", err)
		return nil, &MintError{Kind: kind, Reason: reason, Err: err}
	}

	receipt, err := g.waitForReceipt(ctx, txHash)
	if err != nil {
		log.Printf("⏰ [ChainGateway] Mint %s not confirmed: %v", txHash.Hex(), err)
		return nil, &MintError{Kind: KindTimeout, Reason: "confirmation not received", TxHash: txHash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &MintError{Kind: KindReverted, Reason: "transaction reverted", TxHash: txHash.Hex()}
	}

	tokenID, ok := g.mintedTokenID(receipt)
	if !ok {
		// confirmed but unreadable: the caller must re-read chain state
		return nil, &MintError{Kind: KindTimeout, Reason: "no mint event in receipt", TxHash: txHash.Hex()}
	}

	log.Printf("✅ [ChainGateway] Minted token %d in block %d (tx %s)", tokenID, receipt.BlockNumber.Uint64(), txHash.Hex())
	return &MintResult{TokenID: tokenID, TxHash: txHash.Hex(), BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// mintedTokenID reads the token id from TicketMinted, falling back to the ERC721 Transfer from zero
func (g *Gateway) mintedTokenID(receipt *types.Receipt) (uint64, bool) {
	mintedTopic := TicketABI.Events["TicketMinted"].ID
	transferTopic := TicketABI.Events["Transfer"].ID

	var fallback *uint64
	for _, lg := range receipt.Logs {
		if lg.Address != g.contract || len(lg.Topics) == 0 {
			continue
		}
		switch {
		case lg.Topics[0] == mintedTopic && len(lg.Topics) >= 2:
			return lg.Topics[1].Big().Uint64(), true
		case lg.Topics[0] == transferTopic && len(lg.Topics) == 4 && lg.Topics[1] == (common.Hash{}):
			id := lg.Topics[3].Big().Uint64()
			fallback = &id
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return 0, false
}

// Transfer submits safeTransferFrom(from, to, tokenID) and waits for confirmation.
// Recipient checks run before anything touches the chain.
func (g *Gateway) Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error) {
	if !utils.IsEvmAddress(to) || utils.IsZeroAddress(to) {
		return "", &TransferError{Kind: KindInvalidRecipient, Reason: "malformed recipient address " + to}
	}
	if utils.SameAddress(from, to) {
		return "", &TransferError{Kind: KindSelfTransfer, Reason: "sender and recipient are the same"}
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	signer, kind, err := g.writePreconditions(ctx)
	if err != nil {
		return "", &TransferError{Kind: kind, Reason: err.Error(), Err: err}
	}
	if !utils.SameAddress(signer.Hex(), from) {
		return "", &TransferError{Kind: KindWalletNotConnected, Reason: fmt.Sprintf("connected wallet %s is not %s", utils.ShortAddress(signer.Hex()), utils.ShortAddress(from))}
	}

	data, err := TicketABI.Pack("safeTransferFrom", common.HexToAddress(from), common.HexToAddress(to), new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", &TransferError{Kind: KindReverted, Reason: "pack safeTransferFrom", Err: err}
	}

	log.Printf("🔁 [ChainGateway] Transferring token %d %s -> %s", tokenID, utils.ShortAddress(from), utils.ShortAddress(to))
	txHash, err := g.sender.SendTransaction(ctx, TxRequest{From: signer, To: g.contract, Data: data})
	if err != nil {
		kind, reason := classifySendError(err)
		return "", &TransferError{Kind: kind, Reason: reason, Err: err}
	}

	receipt, err := g.waitForReceipt(ctx, txHash)
	if err != nil {
		return "", &TransferError{Kind: KindTimeout, Reason: "confirmation not received", TxHash: txHash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", &TransferError{Kind: KindReverted, Reason: "transaction reverted", TxHash: txHash.Hex()}
	}

	log.Printf("✅ [ChainGateway] Token %d transferred (tx %s)", tokenID, txHash.Hex())
	return txHash.Hex(), nil
}

// waitForReceipt polls for the receipt until confirmTimeout
func (g *Gateway) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	// the transaction is already submitted; only confirmTimeout bounds the wait
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	pollCount := 0
	for {
		receipt, err := g.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		pollCount++
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Printf("⚠️ [ChainGateway] Poll #%d receipt query for %s failed: %v", pollCount, txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
