package config

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Solana network constants
const (
	SolanaMainnetRPC = "https://api.mainnet-beta.solana.com"
	SolanaDevnetRPC  = "https://api.devnet.solana.com"

	// WebSocket endpoints
	SolanaMainnetWS = "wss://api.mainnet-beta.solana.com"
	SolanaDevnetWS  = "wss://api.devnet.solana.com"

	// Jito bundle endpoints
	JitoMainnetBundle = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"
	JitoDevnetBundle  = "https://devnet.block-engine.jito.wtf/api/v1/bundles"

	// Transaction constants
	MaxRetries        = 3
	RetryDelayMs      = 1000
	ConfirmTimeoutSec = 30
)

// Trading constants
const (
	// Default slippage in basis points (1% = 100 bp)
	DefaultSlippageBP = 500 // 5%

	// Minimum SOL amount per trade
	MinTradeAmountSOL = 0.0001

	// Maximum SOL amount per trade
	MaxTradeAmountSOL = 10.0

	// Default trade size in SOL
	DefaultTradeSizeSOL = 0.1

	// Slippage bounds in basis points
	MinSlippageBP = 10
	MaxSlippageBP = 5000
)

// Key lengths accepted for private_key
const (
	privateKeyLen = 64
	seedKeyLen    = 32
)

// GetRPCEndpoint returns RPC endpoint based on network
func GetRPCEndpoint(network string) string {
	switch network {
	case "devnet":
		return SolanaDevnetRPC
	default:
		return SolanaMainnetRPC
	}
}

// GetWSEndpoint returns WebSocket endpoint based on network
func GetWSEndpoint(network string) string {
	switch network {
	case "devnet":
		return SolanaDevnetWS
	default:
		return SolanaMainnetWS
	}
}

// GetJitoBundleEndpoint returns Jito bundle endpoint based on network
func GetJitoBundleEndpoint(network string) string {
	switch network {
	case "devnet":
		return JitoDevnetBundle
	default:
		return JitoMainnetBundle
	}
}

// checkPrivateKey makes sure a base58 key decodes to a usable length
// without keeping the decoded bytes around.
func checkPrivateKey(key string) error {
	decoded, err := base58.Decode(key)
	if err != nil {
		return fmt.Errorf("private_key is not valid base58: %w", err)
	}
	if len(decoded) != privateKeyLen && len(decoded) != seedKeyLen {
		return fmt.Errorf("private_key must decode to %d or %d bytes, got %d", privateKeyLen, seedKeyLen, len(decoded))
	}
	return nil
}
