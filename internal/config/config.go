package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	NATS           NATSConfig           `yaml:"nats"`
	Redis          RedisConfig          `yaml:"redis"`
	Blockchain     BlockchainConfig     `yaml:"blockchain"`
	Wallet         WalletConfig         `yaml:"wallet"`
	Marketplace    MarketplaceConfig    `yaml:"marketplace"`
	Issuance       IssuanceConfig       `yaml:"issuance"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Pricing        PricingConfig        `yaml:"pricing"`
	Auth           AuthConfig           `yaml:"auth"`
	Admin          AdminConfig          `yaml:"admin"`
	CORS           CORSConfig           `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"` // postgres | memory
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig Redis configuration (wallet session hints)
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Timeout  int    `yaml:"timeout"`
}

// BlockchainConfig Blockchain configuration
type BlockchainConfig struct {
	// TargetNetwork is the key into Networks every value-bearing call must run on
	TargetNetwork string                   `yaml:"targetNetwork"`
	Networks      map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig Network configuration
type NetworkConfig struct {
	ChainID        int            `yaml:"chainId"`
	Name           string         `yaml:"name"`
	RPCEndpoints   []string       `yaml:"rpcEndpoints"`
	Explorer       string         `yaml:"explorer"`
	NativeCurrency NativeCurrency `yaml:"nativeCurrency"`
	TicketContract string         `yaml:"ticketContract"` // EventTicketNFT contract address
	GasPrice       string         `yaml:"gasPrice"`       // Gas price (wei) or "auto"
	GasLimit       uint64         `yaml:"gasLimit"`
	Enabled        bool           `yaml:"enabled"`
}

// NativeCurrency chain native currency metadata
type NativeCurrency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// WalletConfig wallet provider configuration
type WalletConfig struct {
	// ProviderURL JSON-RPC endpoint of the wallet provider (eth_requestAccounts, wallet_switchEthereumChain, ...)
	ProviderURL string `yaml:"providerUrl"`
	// Signer "provider" sends eth_sendTransaction through the wallet, "privateKey" signs locally
	Signer       string `yaml:"signer"`
	PrivateKey   string `yaml:"privateKey"`
	PollInterval int    `yaml:"pollInterval"` // seconds between accountsChanged/chainChanged polls
	SessionKey   string `yaml:"sessionKey"`   // persistence namespace for manual_disconnect / user_connected
}

// MarketplaceConfig marketplace configuration
type MarketplaceConfig struct {
	FeeRate string `yaml:"feeRate"` // decimal string, e.g. "0.025"
}

// IssuanceConfig ticket issuance configuration
type IssuanceConfig struct {
	MaxPerWallet       int `yaml:"maxPerWallet"` // used only when the contract does not expose MAX_TICKETS_PER_EVENT
	MintTimeoutSeconds int `yaml:"mintTimeoutSeconds"`
}

// ReconciliationConfig reconciliation configuration
type ReconciliationConfig struct {
	IntervalMinutes      int `yaml:"intervalMinutes"`
	RetryIntervalSeconds int `yaml:"retryIntervalSeconds"`
	MaxWriteRetries      int `yaml:"maxWriteRetries"`
}

// PricingConfig fiat conversion configuration
type PricingConfig struct {
	FallbackRateUSD string `yaml:"fallbackRateUsd"` // native/USD rate used when the price feed fails
}

// AuthConfig JWT configuration for the off-chain account system
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	TOTPSecret string   `yaml:"totpSecret"`
	AllowedIPs []string `yaml:"allowedIPs"` // IPs or CIDRs allowed on /api/admin; empty means localhost only
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	overrideFromEnv(cfg)
	applyDefaults(cfg)

	if network, err := cfg.TargetNetwork(); err == nil {
		fmt.Printf("📋 [Config] Target network: %s (chainId=%d, contract=%s)\n", network.Name, network.ChainID, network.TicketContract)
	} else {
		fmt.Printf("⚠️ [Config] %v\n", err)
	}

	AppConfig = cfg
	return nil
}

// Parse parses a YAML document without touching the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills unset values
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "tickets"
	}
	if cfg.Marketplace.FeeRate == "" {
		cfg.Marketplace.FeeRate = "0.025"
	}
	if cfg.Issuance.MaxPerWallet == 0 {
		cfg.Issuance.MaxPerWallet = 5
	}
	if cfg.Issuance.MintTimeoutSeconds == 0 {
		cfg.Issuance.MintTimeoutSeconds = 120
	}
	if cfg.Reconciliation.IntervalMinutes == 0 {
		cfg.Reconciliation.IntervalMinutes = 10
	}
	if cfg.Reconciliation.RetryIntervalSeconds == 0 {
		cfg.Reconciliation.RetryIntervalSeconds = 30
	}
	if cfg.Reconciliation.MaxWriteRetries == 0 {
		cfg.Reconciliation.MaxWriteRetries = 10
	}
	if cfg.Pricing.FallbackRateUSD == "" {
		cfg.Pricing.FallbackRateUSD = "2500"
	}
	if cfg.Wallet.Signer == "" {
		cfg.Wallet.Signer = "provider"
	}
	if cfg.Wallet.PollInterval == 0 {
		cfg.Wallet.PollInterval = 5
	}
	if cfg.Wallet.SessionKey == "" {
		cfg.Wallet.SessionKey = "wallet"
	}
	if len(cfg.Blockchain.Networks) == 0 {
		cfg.Blockchain.Networks = DefaultNetworks()
	}
	if cfg.Blockchain.TargetNetwork == "" {
		cfg.Blockchain.TargetNetwork = "lisk-sepolia"
	}
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Redis.Addr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}

	if target := os.Getenv("TARGET_NETWORK"); target != "" {
		config.Blockchain.TargetNetwork = target
	}

	if providerURL := os.Getenv("WALLET_PROVIDER_URL"); providerURL != "" {
		config.Wallet.ProviderURL = providerURL
	}
	if privateKey := os.Getenv("WALLET_PRIVATE_KEY"); privateKey != "" {
		config.Wallet.PrivateKey = privateKey
		config.Wallet.Signer = "privateKey"
		fmt.Printf("✅ [Config] Loaded wallet private key from environment variable: WALLET_PRIVATE_KEY\n")
	}

	for networkName, networkConfig := range config.Blockchain.Networks {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", envName(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}

		envContract := fmt.Sprintf("%s_TICKET_CONTRACT", envName(networkName))
		if contract := os.Getenv(envContract); contract != "" {
			networkConfig.TicketContract = contract
		} else if contract := os.Getenv("TICKET_CONTRACT"); contract != "" && networkName == config.Blockchain.TargetNetwork {
			networkConfig.TicketContract = contract
		}

		envGasPrice := fmt.Sprintf("%s_GAS_PRICE", envName(networkName))
		if gasPrice := os.Getenv(envGasPrice); gasPrice != "" {
			networkConfig.GasPrice = gasPrice
		}

		config.Blockchain.Networks[networkName] = networkConfig
	}

	if feeRate := os.Getenv("MARKETPLACE_FEE_RATE"); feeRate != "" {
		config.Marketplace.FeeRate = feeRate
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		config.Auth.JWTSecret = jwtSecret
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// envName turns "lisk-sepolia" into "LISK_SEPOLIA"
func envName(networkName string) string {
	return strings.ToUpper(strings.ReplaceAll(networkName, "-", "_"))
}

// TargetNetwork returns the network every value-bearing operation must run on
func (c *Config) TargetNetwork() (*NetworkConfig, error) {
	network, exists := c.Blockchain.Networks[c.Blockchain.TargetNetwork]
	if !exists {
		return nil, fmt.Errorf("target network %q not found in config", c.Blockchain.TargetNetwork)
	}
	if !network.Enabled {
		return nil, fmt.Errorf("target network %q is disabled", c.Blockchain.TargetNetwork)
	}
	return &network, nil
}

// GetNetworkConfig Get network configuration
func GetNetworkConfig(networkName string) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	network, exists := AppConfig.Blockchain.Networks[networkName]
	if !exists {
		return nil, fmt.Errorf("network %s not found in config", networkName)
	}

	if !network.Enabled {
		return nil, fmt.Errorf("network %s is disabled", networkName)
	}

	return &network, nil
}

// GetNetworkConfigByChainID Get network configuration by chain ID
func GetNetworkConfigByChainID(chainID int) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	for _, network := range AppConfig.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			return &network, nil
		}
	}

	return nil, fmt.Errorf("network with chainID %d not found or disabled", chainID)
}
