// Built-in network definitions for the EventTicketNFT deployments
package config

import (
	"fmt"
	"strings"
)

// DefaultNetworks returns the Lisk deployments used when the config file
// declares no networks
func DefaultNetworks() map[string]NetworkConfig {
	lsk := NativeCurrency{Name: "LSK", Symbol: "LSK", Decimals: 18}
	return map[string]NetworkConfig{
		"lisk-sepolia": {
			ChainID:        4202,
			Name:           "Lisk Sepolia Testnet",
			RPCEndpoints:   []string{"https://rpc.sepolia-api.lisk.com"},
			Explorer:       "https://sepolia-blockscout.lisk.com",
			NativeCurrency: lsk,
			TicketContract: "0xBdD45C68f44Ef4d9db4F5dEa4F6f163dac88ac2f",
			GasPrice:       "auto",
			Enabled:        true,
		},
		"lisk": {
			ChainID:        1135,
			Name:           "Lisk Mainnet",
			RPCEndpoints:   []string{"https://rpc.api.lisk.com"},
			Explorer:       "https://blockscout.lisk.com",
			NativeCurrency: lsk,
			GasPrice:       "auto",
			Enabled:        false, // contract not deployed yet
		},
	}
}

// HexChainID returns the chain id in the 0x-prefixed form wallet RPC methods expect
func (n *NetworkConfig) HexChainID() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

// AddChainParams builds the wallet_addEthereumChain parameter object
func (n *NetworkConfig) AddChainParams() map[string]interface{} {
	params := map[string]interface{}{
		"chainId":   n.HexChainID(),
		"chainName": n.Name,
		"nativeCurrency": map[string]interface{}{
			"name":     n.NativeCurrency.Name,
			"symbol":   n.NativeCurrency.Symbol,
			"decimals": n.NativeCurrency.Decimals,
		},
		"rpcUrls": n.RPCEndpoints,
	}
	if n.Explorer != "" {
		params["blockExplorerUrls"] = []string{n.Explorer}
	}
	return params
}

// ExplorerTxURL returns the block explorer link for a transaction hash
func (n *NetworkConfig) ExplorerTxURL(txHash string) string {
	if n.Explorer == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + txHash
}

// IsTicketContractDeployed reports whether a non-zero contract address is configured
func (n *NetworkConfig) IsTicketContractDeployed() bool {
	addr := strings.TrimSpace(n.TicketContract)
	return addr != "" && addr != "0x0000000000000000000000000000000000000000"
}
