// Package wallet tracks the connection state of the process wallet and keeps
// it on the deployment's chain.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
)

// Provider is the wallet's request/response RPC surface
type Provider interface {
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// ErrorCode extracts the JSON-RPC error code from a provider error, 0 if none
func ErrorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

// ProviderError is a provider failure carrying an EIP-1193 code
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// RPCProvider talks to a wallet over JSON-RPC (HTTP or websocket endpoint)
type RPCProvider struct {
	client *rpc.Client
}

// DialProvider connects to a wallet RPC endpoint
func DialProvider(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet provider: %w", err)
	}
	return &RPCProvider{client: client}, nil
}

// NewRPCProvider wraps an existing rpc client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// Request performs one provider call
func (p *RPCProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return p.client.CallContext(ctx, result, method, params...)
}

// Client exposes the underlying rpc client (eth_sendTransaction signer)
func (p *RPCProvider) Client() *rpc.Client {
	return p.client
}

// Close closes the connection
func (p *RPCProvider) Close() {
	p.client.Close()
}

// requestAccounts calls an accounts method and normalizes the result
func requestAccounts(ctx context.Context, p Provider, method string) ([]string, error) {
	var accounts []string
	if err := p.Request(ctx, &accounts, method); err != nil {
		return nil, err
	}
	return accounts, nil
}

// requestChainID reads eth_chainId
func requestChainID(ctx context.Context, p Provider) (int, error) {
	var hexID string
	if err := p.Request(ctx, &hexID, "eth_chainId"); err != nil {
		return 0, err
	}
	id, err := hexutil.DecodeUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", hexID, err)
	}
	return int(id), nil
}
