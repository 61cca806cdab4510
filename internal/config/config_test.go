package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultEscrowContract, cfg.EscrowContract)
	assert.Equal(t, DefaultConfirmTimeout, cfg.ConfirmTimeout)
	assert.False(t, cfg.CanSign())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ESCROW_CONTRACT", "0xABCDEF1234567890123456789012345678901234")
	t.Setenv("CONFIRM_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	// Contract addresses are normalized to lowercase.
	assert.Equal(t, "0xabcdef1234567890123456789012345678901234", cfg.EscrowContract)
	assert.Equal(t, 45*time.Second, cfg.ConfirmTimeout)
}

func TestLoad_InvalidPrivateKeyLength(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "tooshort")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		RPCURL:              "https://opbnb-mainnet-rpc.bnbchain.org",
		EscrowContract:      "0x3488608b13b9ae1a1a0283e64e55fc4697601c9a",
		ListLimit:           30,
		StatusOverrideLimit: 30,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid read-only config", func(*Config) {}, ""},
		{
			"valid signing config",
			func(c *Config) {
				c.PrivateKey = "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
			},
			"",
		},
		{"missing RPC URL", func(c *Config) { c.RPCURL = "" }, "RPC_URL is required"},
		{"missing contract", func(c *Config) { c.EscrowContract = "" }, "ESCROW_CONTRACT is required"},
		{"malformed contract", func(c *Config) { c.EscrowContract = "3488608b" }, "0x-prefixed"},
		{"short private key", func(c *Config) { c.PrivateKey = "abc123" }, "64 hex characters"},
		{"zero list limit", func(c *Config) { c.ListLimit = 0 }, "LIST_LIMIT must be positive"},
		{"negative override limit", func(c *Config) { c.StatusOverrideLimit = -1 }, "STATUS_OVERRIDE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Tokens(t *testing.T) {
	cfg := Config{
		TokenRegistry:    "USDT:0x9e5aac1ba1a2e6aed6b32689dfcf62a509ca96f3:18",
		FallbackDecimals: 18,
	}

	reg, err := cfg.Tokens()
	require.NoError(t, err)

	tok, ok := reg.BySymbol("USDT")
	require.True(t, ok)
	assert.Equal(t, uint8(18), tok.Decimals)
}

func TestConfig_EnvModes(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_VAR", "custom_value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INVALID", "not_a_number")
	t.Setenv("TEST_DUR", "15s")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error

	assert.Equal(t, 15*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
}
