package wallet

import (
	"context"
	"testing"

	"ticket-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liskSepolia() *config.NetworkConfig {
	n := config.DefaultNetworks()["lisk-sepolia"]
	return &n
}

func TestEnsureNetwork_AlreadyOnTarget(t *testing.T) {
	p := connectedProvider()
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	p.reset()

	err = NewNetworkGuard(s).EnsureNetwork(context.Background(), liskSepolia())
	require.NoError(t, err)
	assert.Empty(t, p.methods())
}

func TestEnsureNetwork_Switch(t *testing.T) {
	p := connectedProvider()
	p.reply("eth_chainId", "0x1")
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	p.reset()

	p.on("wallet_switchEthereumChain", func(params []interface{}) (interface{}, error) {
		p.reply("eth_chainId", "0x106a")
		return nil, nil
	})

	err = NewNetworkGuard(s).EnsureNetwork(context.Background(), liskSepolia())
	require.NoError(t, err)
	assert.Equal(t, []string{"wallet_switchEthereumChain", "eth_chainId"}, p.methods())
	assert.Equal(t, 4202, s.Snapshot().ChainID)
}

func TestEnsureNetwork_AddsUnknownChain(t *testing.T) {
	p := connectedProvider()
	p.reply("eth_chainId", "0x1")
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	p.reset()

	known := false
	p.on("wallet_switchEthereumChain", func([]interface{}) (interface{}, error) {
		if !known {
			return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
		}
		p.reply("eth_chainId", "0x106a")
		return nil, nil
	})
	var added map[string]interface{}
	p.on("wallet_addEthereumChain", func(params []interface{}) (interface{}, error) {
		added = params[0].(map[string]interface{})
		known = true
		return nil, nil
	})

	err = NewNetworkGuard(s).EnsureNetwork(context.Background(), liskSepolia())
	require.NoError(t, err)
	assert.Equal(t, []string{"wallet_switchEthereumChain", "wallet_addEthereumChain", "wallet_switchEthereumChain", "eth_chainId"}, p.methods())
	assert.Equal(t, "0x106a", added["chainId"])
	assert.Equal(t, []string{"https://rpc.sepolia-api.lisk.com"}, added["rpcUrls"])
	assert.Equal(t, []string{"https://sepolia-blockscout.lisk.com"}, added["blockExplorerUrls"])
}

func TestEnsureNetwork_SwitchRejected(t *testing.T) {
	p := connectedProvider()
	p.reply("eth_chainId", "0x1")
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	p.on("wallet_switchEthereumChain", func([]interface{}) (interface{}, error) {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	})

	err = NewNetworkGuard(s).EnsureNetwork(context.Background(), liskSepolia())
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Equal(t, 1, s.Snapshot().ChainID)
}

func TestEnsureNetwork_AddFails(t *testing.T) {
	p := connectedProvider()
	p.reply("eth_chainId", "0x1")
	s := NewSession(p, nil)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	p.on("wallet_switchEthereumChain", func([]interface{}) (interface{}, error) {
		return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	})
	p.on("wallet_addEthereumChain", func([]interface{}) (interface{}, error) {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	})

	err = NewNetworkGuard(s).EnsureNetwork(context.Background(), liskSepolia())
	assert.ErrorIs(t, err, ErrWrongNetwork)
}
