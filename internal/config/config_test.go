package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Setenv("TEST_RAYBOT_RPC", "")
	tradeDir := t.TempDir()
	path := writeFile(t, "bot.yaml", `
network: devnet
rpc_url: "${TEST_RAYBOT_RPC:-https://rpc.example.com/?api-key=abc}"
trading:
  trade_size_sol: 0.25
  dry_run: true
exit:
  max_hold: 90m
  stop_loss_pct: 15
safety:
  risk_api_fallback: fail
  min_liquidity_sol: 12.5
logging:
  trade_log_dir: `+tradeDir+`
`)

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, "devnet", cfg.Network)
	assert.Equal(t, "https://rpc.example.com/?api-key=abc", cfg.RPCUrl)
	assert.Equal(t, SolanaDevnetWS, cfg.WSUrl)
	assert.Equal(t, JitoDevnetBundle, cfg.JITO.Endpoint)
	assert.Equal(t, DefaultSlippageBP, cfg.Trading.SlippageBP)
	assert.Equal(t, 90*time.Minute, cfg.Exit.MaxHold)
	assert.Equal(t, time.Hour, cfg.Limits.Window)

	rules := cfg.SafetyRules()
	assert.Equal(t, safety.FallbackFail, rules.RiskFallback)
	assert.True(t, rules.MinLiquiditySOL.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, rules.TradeSizeSOL.Equal(decimal.RequireFromString("0.25")))

	assert.Zero(t, rules.MinTokenAge, "token age rule is off unless token_age_check is set")
	assert.Equal(t, 24*time.Hour, cfg.Safety.MinTokenAge)

	exit := cfg.ExitRules()
	assert.True(t, exit.StopLossPct.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 2*time.Second, exit.TickInterval)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RAYBOT_TRADING_SLIPPAGE_BP", "300")
	t.Setenv("RAYBOT_SAFETY_RISK_API_FALLBACK", "pass_with_warning")
	t.Setenv("RAYBOT_LIMITS_COOLDOWN", "10m")
	t.Setenv("RAYBOT_LOGGING_TRADE_LOG_DIR", t.TempDir())

	cfg, err := LoadConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Trading.SlippageBP)
	assert.Equal(t, 10*time.Minute, cfg.Limits.Cooldown)
	assert.Equal(t, safety.FallbackPassWithWarning, cfg.SafetyRules().RiskFallback)
	assert.Equal(t, SolanaMainnetRPC, cfg.RPCUrl)
	assert.True(t, cfg.Trading.DryRun)
}

func TestLoadConfig_RiskFallbackIsMandatory(t *testing.T) {
	t.Setenv("RAYBOT_LOGGING_TRADE_LOG_DIR", t.TempDir())

	_, err := LoadConfig("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk fallback policy must be set")
}

func TestLoadConfig_Wallet(t *testing.T) {
	t.Setenv("RAYBOT_SAFETY_RISK_API_FALLBACK", "fail")
	t.Setenv("RAYBOT_LOGGING_TRADE_LOG_DIR", t.TempDir())
	t.Setenv("RAYBOT_TRADING_DRY_RUN", "false")

	_, err := LoadConfig("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet.private_key or wallet.mnemonic is required")

	t.Setenv("RAYBOT_PRIVATE_KEY", "0OIl-not-base58")
	_, err = LoadConfig("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid base58")

	key := solana.NewWallet().PrivateKey.String()
	t.Setenv("RAYBOT_PRIVATE_KEY", key)
	cfg, err := LoadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, key, cfg.Wallet.PrivateKey)
	assert.True(t, cfg.HasWallet())
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Setenv("RAYBOT_LOGGING_TRADE_LOG_DIR", t.TempDir())
	t.Setenv("RAYBOT_TRADING_SLIPPAGE_BP", "250")
	envPath := writeFile(t, ".env", `
# comment
export RAYBOT_SAFETY_RISK_API_FALLBACK="fail"
RAYBOT_TRADING_SLIPPAGE_BP=900
RAYBOT_NATS_URL='nats://127.0.0.1:4222'
`)
	t.Cleanup(func() {
		os.Unsetenv("RAYBOT_SAFETY_RISK_API_FALLBACK")
		os.Unsetenv("RAYBOT_NATS_URL")
	})

	cfg, err := LoadConfig("", envPath)
	require.NoError(t, err)
	assert.Equal(t, safety.FallbackFail, cfg.SafetyRules().RiskFallback)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	// the process environment wins over the file
	assert.Equal(t, 250, cfg.Trading.SlippageBP)

	_, err = LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "specified .env file not found")
}

func TestValidateConfig_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Network:    "mainnet",
			Commitment: "confirmed",
			Trading:    TradingConfig{TradeSizeSOL: 0.1, SlippageBP: 500, DryRun: true},
			Exit:       ExitConfig{SellSlippageBP: 1000, StopLossPct: 30},
			Safety:     SafetyConfig{RiskAPIFallback: "fail", MinVolumeConfidence: 0.3, VolumeDisagreementPenalty: 0.5, SingleSourceFactor: 0.7},
			Limits:     LimitsConfig{MaxTradesPerWindow: 5, Window: time.Hour},
			Monitor:    MonitorConfig{TickInterval: time.Second},
			Pipeline:   PipelineConfig{QueueSize: 10},
		}
	}
	require.NoError(t, validateConfig(base()))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"network", func(c *Config) { c.Network = "testnet" }, "network must be"},
		{"commitment", func(c *Config) { c.Commitment = "recent" }, "commitment must be"},
		{"trade size", func(c *Config) { c.Trading.TradeSizeSOL = 50 }, "trade_size_sol must not exceed"},
		{"slippage", func(c *Config) { c.Trading.SlippageBP = 9000 }, "slippage_bp must be between"},
		{"stop loss", func(c *Config) { c.Exit.StopLossPct = 100 }, "stop_loss_pct must be below 100"},
		{"trailing", func(c *Config) { c.Exit.TrailingStop = true }, "trailing_stop_pct must be between"},
		{"limits", func(c *Config) { c.Limits.MaxTradesPerWindow = 0 }, "max_trades_per_window"},
		{"two keys", func(c *Config) { c.Wallet.PrivateKey, c.Wallet.Mnemonic = "a", "b" }, "set only one"},
		{"fallback", func(c *Config) { c.Safety.RiskAPIFallback = "maybe" }, "unknown risk fallback policy"},
		{"token age source", func(c *Config) { c.Safety.TokenAgeCheck, c.Safety.MinTokenAge = true, time.Hour }, "needs market.birdeye.enabled"},
		{"token age", func(c *Config) { c.Safety.TokenAgeCheck = true }, "min_token_age must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSafetyRules_TokenAge(t *testing.T) {
	cfg := &Config{Safety: SafetyConfig{TokenAgeCheck: true, MinTokenAge: 6 * time.Hour}}
	assert.Equal(t, 6*time.Hour, cfg.SafetyRules().MinTokenAge)

	cfg.Safety.TokenAgeCheck = false
	assert.Zero(t, cfg.SafetyRules().MinTokenAge)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RAYBOT_TEST_HOST", "node.example")
	t.Setenv("RAYBOT_TEST_EMPTY", "")

	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"https://${RAYBOT_TEST_HOST}/rpc", "https://node.example/rpc"},
		{"${RAYBOT_TEST_EMPTY:-fallback}", "fallback"},
		{"${RAYBOT_TEST_HOST:-x}:${RAYBOT_TEST_EMPTY:-8899}", "node.example:8899"},
		{"${UNTERMINATED", "${UNTERMINATED"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), tt.in)
	}
}

func TestDumpRedactsSecrets(t *testing.T) {
	cfg := &Config{
		Network:   "mainnet",
		RPCUrl:    "https://mainnet.helius-rpc.com/?api-key=secret",
		RPCAPIKey: "secret",
		Wallet:    WalletConfig{Mnemonic: "word word word"},
		Redis:     RedisConfig{Addr: "localhost:6379", Password: "hunter2"},
		Exit:      ExitConfig{MaxHold: 4 * time.Hour},
	}

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "word word")
	assert.Contains(t, out, "https://mainnet.helius-rpc.com/?[HIDDEN]")
	assert.Contains(t, out, "localhost:6379")
	assert.Contains(t, out, "max_hold: 4h0m0s")
	// the original is untouched
	assert.Equal(t, "secret", cfg.RPCAPIKey)
}
