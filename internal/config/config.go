// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vetexchange/vetex/internal/tokens"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (metadata cache). Optional; uses in-memory store if not set.
	DatabaseURL string

	// Blockchain settings
	RPCURL         string
	ChainID        int64
	EscrowContract string // deployed escrow contract address
	DeployBlock    uint64 // block the escrow contract was deployed at (log scan floor)

	// Signing identity. Optional; without it the service is read-only
	// and all state-changing actions are rejected.
	PrivateKey string // Hex-encoded, with or without 0x prefix

	// Token registry: "SYMBOL:ADDRESS:DECIMALS,..." plus fallback decimals
	// used when a token contract's decimals() read fails.
	TokenRegistry    string
	FallbackDecimals uint8

	// Trade listing
	ListLimit           int // max trades returned by the list endpoint
	StatusOverrideLimit int // newest entries whose status is re-read on-chain

	// Transaction settings
	GasMarginPct   int           // safety margin applied to gas estimates
	ConfirmTimeout time.Duration // bounded confirmation wait; "still pending" after

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled if empty
}

// opBNB mainnet defaults, matching the deployed contract.
const (
	DefaultRPCURL         = "https://opbnb-mainnet-rpc.bnbchain.org"
	DefaultChainID        = 204
	DefaultEscrowContract = "0x3488608b13b9ae1a1a0283e64e55fc4697601c9a"
	DefaultDeployBlock    = 98370000
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultListLimit      = 30
	DefaultOverrideLimit  = 30
	DefaultGasMarginPct   = 30
	DefaultConfirmTimeout = 90 * time.Second

	DefaultTokenRegistry = "HEX:0x41f2ea9f4ef7c4e35ba1a8438fc80937ed4e5464:18," +
		"USDT:0x9e5aac1ba1a2e6aed6b32689dfcf62a509ca96f3:18," +
		"VET:0xff8eca08f731eae46b5e7d10ebf640a8ca7ba3d4:0"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RPCURL:              getEnv("RPC_URL", DefaultRPCURL),
		ChainID:             getEnvInt64("CHAIN_ID", DefaultChainID),
		EscrowContract:      strings.ToLower(getEnv("ESCROW_CONTRACT", DefaultEscrowContract)),
		DeployBlock:         uint64(getEnvInt64("DEPLOY_BLOCK", DefaultDeployBlock)),
		PrivateKey:          os.Getenv("PRIVATE_KEY"), // Optional
		TokenRegistry:       getEnv("TOKEN_REGISTRY", DefaultTokenRegistry),
		FallbackDecimals:    uint8(getEnvInt64("FALLBACK_DECIMALS", 18)),
		ListLimit:           int(getEnvInt64("LIST_LIMIT", DefaultListLimit)),
		StatusOverrideLimit: int(getEnvInt64("STATUS_OVERRIDE_LIMIT", DefaultOverrideLimit)),
		GasMarginPct:        int(getEnvInt64("GAS_MARGIN_PCT", DefaultGasMarginPct)),
		ConfirmTimeout:      getEnvDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.EscrowContract == "" {
		return fmt.Errorf("ESCROW_CONTRACT is required")
	}
	if !strings.HasPrefix(c.EscrowContract, "0x") || len(c.EscrowContract) != 42 {
		return fmt.Errorf("ESCROW_CONTRACT must be a 0x-prefixed 40-hex-char address")
	}

	// Signing key is optional, but if present it must be well-formed.
	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if c.ListLimit <= 0 {
		return fmt.Errorf("LIST_LIMIT must be positive")
	}
	if c.StatusOverrideLimit < 0 {
		return fmt.Errorf("STATUS_OVERRIDE_LIMIT must not be negative")
	}

	return nil
}

// Tokens parses the configured token registry.
func (c *Config) Tokens() (*tokens.Registry, error) {
	return tokens.Parse(c.TokenRegistry, c.FallbackDecimals)
}

// CanSign reports whether a signing identity is configured.
func (c *Config) CanSign() bool { return c.PrivateKey != "" }

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
