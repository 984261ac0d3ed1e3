package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
database:
  driver: memory
blockchain:
  targetNetwork: lisk-sepolia
  networks:
    lisk-sepolia:
      chainId: 4202
      name: Lisk Sepolia Testnet
      rpcEndpoints: ["https://rpc.sepolia-api.lisk.com"]
      ticketContract: "0xBdD45C68f44Ef4d9db4F5dEa4F6f163dac88ac2f"
      enabled: true
    lisk:
      chainId: 1135
      name: Lisk Mainnet
      enabled: false
admin:
  allowedIPs: ["10.0.0.0/8"]
`

func TestParseAndDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	applyDefaults(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "0.025", cfg.Marketplace.FeeRate)
	assert.Equal(t, 120, cfg.Issuance.MintTimeoutSeconds)
	assert.Equal(t, "provider", cfg.Wallet.Signer)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Admin.AllowedIPs)

	network, err := cfg.TargetNetwork()
	require.NoError(t, err)
	assert.Equal(t, 4202, network.ChainID)
	assert.Equal(t, "0x106a", network.HexChainID())
	assert.True(t, network.IsTicketContractDeployed())

	cfg.Blockchain.TargetNetwork = "lisk"
	_, err = cfg.TargetNetwork()
	assert.ErrorContains(t, err, "disabled")

	cfg.Blockchain.TargetNetwork = "mainnet"
	_, err = cfg.TargetNetwork()
	assert.ErrorContains(t, err, "not found")
}

func TestEmptyConfigFallsBackToBuiltInNetworks(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	applyDefaults(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	network, err := cfg.TargetNetwork()
	require.NoError(t, err)
	assert.Equal(t, "Lisk Sepolia Testnet", network.Name)
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LISK_SEPOLIA_RPC_ENDPOINTS", "https://a.example,https://b.example")
	t.Setenv("TICKET_CONTRACT", "0x1111111111111111111111111111111111111111")
	t.Setenv("WALLET_PRIVATE_KEY", "deadbeef")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://tickets.example , ,https://admin.example")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	overrideFromEnv(cfg)

	network := cfg.Blockchain.Networks["lisk-sepolia"]
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, network.RPCEndpoints)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", network.TicketContract)
	assert.Empty(t, cfg.Blockchain.Networks["lisk"].TicketContract, "shared contract applies to the target network only")
	assert.Equal(t, "privateKey", cfg.Wallet.Signer)
	assert.Equal(t, []string{"https://tickets.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestExplorerTxURL(t *testing.T) {
	n := &NetworkConfig{Explorer: "https://sepolia-blockscout.lisk.com/"}
	assert.Equal(t, "https://sepolia-blockscout.lisk.com/tx/0xabc", n.ExplorerTxURL("0xabc"))
	assert.Empty(t, (&NetworkConfig{}).ExplorerTxURL("0xabc"))
}
