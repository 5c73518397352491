package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/safety"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RAYBOT_TRADING_DRY_RUN.
const EnvPrefix = "RAYBOT"

// Config represents the application configuration
type Config struct {
	// Network settings
	Network    string `mapstructure:"network" yaml:"network"`
	RPCUrl     string `mapstructure:"rpc_url" yaml:"rpc_url"`
	WSUrl      string `mapstructure:"ws_url" yaml:"ws_url"`
	RPCAPIKey  string `mapstructure:"rpc_api_key" yaml:"rpc_api_key"`
	Commitment string `mapstructure:"commitment" yaml:"commitment"`

	Wallet   WalletConfig   `mapstructure:"wallet" yaml:"wallet"`
	Trading  TradingConfig  `mapstructure:"trading" yaml:"trading"`
	Exit     ExitConfig     `mapstructure:"exit" yaml:"exit"`
	Safety   SafetyConfig   `mapstructure:"safety" yaml:"safety"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	Monitor  MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Market   MarketConfig   `mapstructure:"market" yaml:"market"`

	// JITO settings
	JITO JitoConfig `mapstructure:"jito" yaml:"jito"`

	// Optional infrastructure
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Advanced AdvancedConfig `mapstructure:"advanced" yaml:"advanced"`
}

// WalletConfig holds either a base58 private key or a mnemonic.
type WalletConfig struct {
	PrivateKey     string `mapstructure:"private_key" yaml:"private_key"`
	Mnemonic       string `mapstructure:"mnemonic" yaml:"mnemonic"`
	DerivationPath string `mapstructure:"derivation_path" yaml:"derivation_path"`
}

// TradingConfig contains trading-related settings
type TradingConfig struct {
	TradeSizeSOL        float64       `mapstructure:"trade_size_sol" yaml:"trade_size_sol"`
	SlippageBP          int           `mapstructure:"slippage_bp" yaml:"slippage_bp"`
	PriorityFeeLamports uint64        `mapstructure:"priority_fee_lamports" yaml:"priority_fee_lamports"`
	SkipPreflight       bool          `mapstructure:"skip_preflight" yaml:"skip_preflight"`
	DryRun              bool          `mapstructure:"dry_run" yaml:"dry_run"`
	MaxRetries          int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	BuyTimeout          time.Duration `mapstructure:"buy_timeout" yaml:"buy_timeout"`
}

// ExitConfig contains the exit triggers. Percentages are plain numbers, 20 means 20%.
type ExitConfig struct {
	TakeProfitPct   float64       `mapstructure:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct     float64       `mapstructure:"stop_loss_pct" yaml:"stop_loss_pct"`
	TrailingStop    bool          `mapstructure:"trailing_stop" yaml:"trailing_stop"`
	TrailingStopPct float64       `mapstructure:"trailing_stop_pct" yaml:"trailing_stop_pct"`
	MaxHold         time.Duration `mapstructure:"max_hold" yaml:"max_hold"`
	SellSlippageBP  int           `mapstructure:"sell_slippage_bp" yaml:"sell_slippage_bp"`
}

// SafetyConfig contains the entry rules.
type SafetyConfig struct {
	MinLiquiditySOL float64 `mapstructure:"min_liquidity_sol" yaml:"min_liquidity_sol"`
	MaxSupply       float64 `mapstructure:"max_supply" yaml:"max_supply"`
	MinHolders      int     `mapstructure:"min_holders" yaml:"min_holders"`
	MaxTopHolderPct float64 `mapstructure:"max_top_holder_pct" yaml:"max_top_holder_pct"`

	MinVolume24h                float64 `mapstructure:"min_volume_24h" yaml:"min_volume_24h"`
	MinVolumeConfidence         float64 `mapstructure:"min_volume_confidence" yaml:"min_volume_confidence"`
	VolumeDisagreementThreshold float64 `mapstructure:"volume_disagreement_threshold" yaml:"volume_disagreement_threshold"`
	VolumeDisagreementPenalty   float64 `mapstructure:"volume_disagreement_penalty" yaml:"volume_disagreement_penalty"`
	SingleSourceFactor          float64 `mapstructure:"single_source_factor" yaml:"single_source_factor"`

	MaxPriceImpactPct float64 `mapstructure:"max_price_impact_pct" yaml:"max_price_impact_pct"`
	MaxVolatility     float64 `mapstructure:"max_volatility" yaml:"max_volatility"`

	MinRiskScore    float64 `mapstructure:"min_risk_score" yaml:"min_risk_score"`
	RequireLPLocked bool    `mapstructure:"require_lp_locked" yaml:"require_lp_locked"`
	// RiskAPIFallback has no default: pass_with_warning or fail must be chosen.
	RiskAPIFallback string `mapstructure:"risk_api_fallback" yaml:"risk_api_fallback"`

	// TokenAgeCheck rejects mints younger than MinTokenAge. Needs Birdeye.
	TokenAgeCheck bool          `mapstructure:"token_age_check" yaml:"token_age_check"`
	MinTokenAge   time.Duration `mapstructure:"min_token_age" yaml:"min_token_age"`
}

// LimitsConfig gates new entries.
type LimitsConfig struct {
	MaxTradesPerWindow int           `mapstructure:"max_trades_per_window" yaml:"max_trades_per_window"`
	Window             time.Duration `mapstructure:"window" yaml:"window"`
	Cooldown           time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// MonitorConfig contains position monitor timing.
type MonitorConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	PriceTimeout       time.Duration `mapstructure:"price_timeout" yaml:"price_timeout"`
	SellTimeout        time.Duration `mapstructure:"sell_timeout" yaml:"sell_timeout"`
	StaleAfterFailures int           `mapstructure:"stale_after_failures" yaml:"stale_after_failures"`
	StuckAfterFailures int           `mapstructure:"stuck_after_failures" yaml:"stuck_after_failures"`
}

// PipelineConfig contains detection pipeline settings
type PipelineConfig struct {
	SOLPairsOnly    bool          `mapstructure:"sol_pairs_only" yaml:"sol_pairs_only"`
	QueueSize       int           `mapstructure:"queue_size" yaml:"queue_size"`
	FetchQueueSize  int           `mapstructure:"fetch_queue_size" yaml:"fetch_queue_size"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	FetchAttempts   int           `mapstructure:"fetch_attempts" yaml:"fetch_attempts"`
	FetchRetryDelay time.Duration `mapstructure:"fetch_retry_delay" yaml:"fetch_retry_delay"`
	FactTimeout     time.Duration `mapstructure:"fact_timeout" yaml:"fact_timeout"`
	HistoryInterval string        `mapstructure:"history_interval" yaml:"history_interval"`
	HistoryLookback time.Duration `mapstructure:"history_lookback" yaml:"history_lookback"`
}

// APIConfig configures one HTTP API.
type APIConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	URL               string        `mapstructure:"url" yaml:"url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MarketConfig lists the market data, risk and swap APIs.
type MarketConfig struct {
	Birdeye     APIConfig `mapstructure:"birdeye" yaml:"birdeye"`
	DexScreener APIConfig `mapstructure:"dexscreener" yaml:"dexscreener"`
	Rugcheck    APIConfig `mapstructure:"rugcheck" yaml:"rugcheck"`
	Jupiter     APIConfig `mapstructure:"jupiter" yaml:"jupiter"`
}

// JitoConfig contains JITO-related settings
type JitoConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	TipAmount uint64        `mapstructure:"tip_amount" yaml:"tip_amount"` // Tip amount in lamports
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RedisConfig enables position persistence when Addr is set.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	LogToFile   bool   `mapstructure:"log_to_file" yaml:"log_to_file"`
	LogFilePath string `mapstructure:"log_file_path" yaml:"log_file_path"`
	TradeLogDir string `mapstructure:"trade_log_dir" yaml:"trade_log_dir"`
}

// AdvancedConfig contains advanced settings
type AdvancedConfig struct {
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	ConfirmInterval    time.Duration `mapstructure:"confirm_interval" yaml:"confirm_interval"`
	RPCTimeout         time.Duration `mapstructure:"rpc_timeout" yaml:"rpc_timeout"`
	WSReconnectDelay   time.Duration `mapstructure:"ws_reconnect_delay" yaml:"ws_reconnect_delay"`
	WSPingInterval     time.Duration `mapstructure:"ws_ping_interval" yaml:"ws_ping_interval"`
	StatsInterval      time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MinWalletSOL       float64       `mapstructure:"min_wallet_sol" yaml:"min_wallet_sol"`
	SkipBalanceCheck   bool          `mapstructure:"skip_balance_check" yaml:"skip_balance_check"`
	DedupeCacheSize    int           `mapstructure:"dedupe_cache_size" yaml:"dedupe_cache_size"`
	RestorePositions   bool          `mapstructure:"restore_positions" yaml:"restore_positions"`
	PositionJournaling bool          `mapstructure:"position_journaling" yaml:"position_journaling"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string, envPath string) (*Config, error) {
	config := &Config{}
	v := viper.New()

	// First, load .env file if specified or default locations
	if err := loadEnvFile(envPath); err != nil {
		if envPath != "" {
			return nil, err
		}
	}

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.raydium-sniper-bot")
		v.AddConfigPath("/etc/raydium-sniper-bot/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with defaults and env vars
		fmt.Printf("Config file not found, using environment variables and defaults\n")
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	processEnvSubstitution(v)

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// loadEnvFile loads environment variables from a .env file. Variables that
// are already set in the process environment win.
func loadEnvFile(envPath string) error {
	var envFiles []string
	if envPath != "" {
		envFiles = append(envFiles, envPath)
	} else {
		envFiles = append(envFiles, ".env", "configs/.env")
	}

	var envFile string
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			envFile = file
			break
		}
	}

	if envFile == "" {
		if envPath != "" {
			return fmt.Errorf("specified .env file not found: %s", envPath)
		}
		return fmt.Errorf(".env file not found in any of the expected locations: %v", envFiles)
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	loadedCount := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err == nil {
			loadedCount++
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	fmt.Printf("Loaded %d environment variables from %s\n", loadedCount, envFile)
	return nil
}

// bindEnvVariables adds the conventional short names for secrets on top of
// the RAYBOT_SECTION_KEY form that AutomaticEnv already covers.
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("wallet.private_key", "RAYBOT_WALLET_PRIVATE_KEY", "RAYBOT_PRIVATE_KEY")
	v.BindEnv("wallet.mnemonic", "RAYBOT_WALLET_MNEMONIC", "RAYBOT_MNEMONIC")
	v.BindEnv("rpc_api_key", "RAYBOT_RPC_API_KEY", "HELIUS_API_KEY")
	v.BindEnv("market.birdeye.api_key", "RAYBOT_MARKET_BIRDEYE_API_KEY", "BIRDEYE_API_KEY")
	v.BindEnv("market.rugcheck.api_key", "RAYBOT_MARKET_RUGCHECK_API_KEY", "RUGCHECK_API_KEY")
	v.BindEnv("market.jupiter.api_key", "RAYBOT_MARKET_JUPITER_API_KEY", "JUPITER_API_KEY")
	v.BindEnv("jito.api_key", "RAYBOT_JITO_API_KEY", "JITO_API_KEY")
	v.BindEnv("redis.password", "RAYBOT_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// processEnvSubstitution processes ${VAR:-default} substitution in string values
func processEnvSubstitution(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value, ok := v.Get(key).(string)
		if !ok || !strings.Contains(value, "${") {
			continue
		}
		v.Set(key, expandEnvVars(value))
	}
}

// expandEnvVars expands environment variables in the format ${VAR:-default}
func expandEnvVars(value string) string {
	result := value
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		varName, defaultValue, _ := strings.Cut(expr, ":-")

		envValue := os.Getenv(varName)
		if envValue == "" {
			envValue = defaultValue
		}
		result = result[:start] + envValue + result[end+1:]
	}
	return result
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Network defaults
	v.SetDefault("network", "mainnet")
	v.SetDefault("rpc_url", "")
	v.SetDefault("ws_url", "")
	v.SetDefault("rpc_api_key", "")
	v.SetDefault("commitment", "confirmed")

	// Wallet defaults
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.mnemonic", "")
	v.SetDefault("wallet.derivation_path", "m/44'/501'/0'/0'")

	// Trading defaults
	v.SetDefault("trading.trade_size_sol", DefaultTradeSizeSOL)
	v.SetDefault("trading.slippage_bp", DefaultSlippageBP)
	v.SetDefault("trading.priority_fee_lamports", 100_000)
	v.SetDefault("trading.skip_preflight", true)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.max_retries", MaxRetries)
	v.SetDefault("trading.retry_delay", time.Duration(RetryDelayMs)*time.Millisecond)
	v.SetDefault("trading.buy_timeout", 45*time.Second)

	// Exit defaults
	v.SetDefault("exit.take_profit_pct", 100.0)
	v.SetDefault("exit.stop_loss_pct", 30.0)
	v.SetDefault("exit.trailing_stop", true)
	v.SetDefault("exit.trailing_stop_pct", 20.0)
	v.SetDefault("exit.max_hold", 4*time.Hour)
	v.SetDefault("exit.sell_slippage_bp", 1000)

	// Safety defaults
	v.SetDefault("safety.min_liquidity_sol", 5.0)
	v.SetDefault("safety.max_supply", 1_000_000_000.0)
	v.SetDefault("safety.min_holders", 100)
	v.SetDefault("safety.max_top_holder_pct", 20.0)
	v.SetDefault("safety.min_volume_24h", 0.0)
	v.SetDefault("safety.min_volume_confidence", 0.3)
	v.SetDefault("safety.volume_disagreement_threshold", 0.3)
	v.SetDefault("safety.volume_disagreement_penalty", 0.5)
	v.SetDefault("safety.single_source_factor", 0.7)
	v.SetDefault("safety.max_price_impact_pct", 5.0)
	v.SetDefault("safety.max_volatility", 0.3)
	v.SetDefault("safety.min_risk_score", 50.0)
	v.SetDefault("safety.require_lp_locked", false)
	v.SetDefault("safety.risk_api_fallback", "")
	v.SetDefault("safety.token_age_check", false)
	v.SetDefault("safety.min_token_age", 24*time.Hour)

	// Limits defaults
	v.SetDefault("limits.max_trades_per_window", 10)
	v.SetDefault("limits.window", time.Hour)
	v.SetDefault("limits.cooldown", 30*time.Minute)

	// Monitor defaults
	v.SetDefault("monitor.tick_interval", 2*time.Second)
	v.SetDefault("monitor.price_timeout", 5*time.Second)
	v.SetDefault("monitor.sell_timeout", 45*time.Second)
	v.SetDefault("monitor.stale_after_failures", 5)
	v.SetDefault("monitor.stuck_after_failures", 5)

	// Pipeline defaults
	v.SetDefault("pipeline.sol_pairs_only", true)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.fetch_queue_size", 100)
	v.SetDefault("pipeline.fetch_timeout", 5*time.Second)
	v.SetDefault("pipeline.fetch_attempts", 3)
	v.SetDefault("pipeline.fetch_retry_delay", 400*time.Millisecond)
	v.SetDefault("pipeline.fact_timeout", 5*time.Second)
	v.SetDefault("pipeline.history_interval", "1m")
	v.SetDefault("pipeline.history_lookback", 30*time.Minute)

	// Market API defaults
	for _, api := range []string{"birdeye", "dexscreener", "rugcheck", "jupiter"} {
		v.SetDefault("market."+api+".enabled", true)
		v.SetDefault("market."+api+".url", "")
		v.SetDefault("market."+api+".api_key", "")
		v.SetDefault("market."+api+".timeout", 10*time.Second)
	}
	v.SetDefault("market.birdeye.requests_per_second", 1.0)
	v.SetDefault("market.dexscreener.requests_per_second", 5.0)
	v.SetDefault("market.rugcheck.requests_per_second", 2.0)
	v.SetDefault("market.jupiter.requests_per_second", 1.0)

	// JITO defaults
	v.SetDefault("jito.enabled", false)
	v.SetDefault("jito.endpoint", "")
	v.SetDefault("jito.api_key", "")
	v.SetDefault("jito.tip_amount", 10000)
	v.SetDefault("jito.timeout", time.Duration(ConfirmTimeoutSec)*time.Second)

	// Redis and NATS are off unless an address is configured
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "raybot:")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "raybot")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.log_to_file", false)
	v.SetDefault("logging.log_file_path", "logs/bot.log")
	v.SetDefault("logging.trade_log_dir", "trades")

	// Advanced defaults
	v.SetDefault("advanced.confirm_timeout", time.Duration(ConfirmTimeoutSec)*time.Second)
	v.SetDefault("advanced.confirm_interval", 500*time.Millisecond)
	v.SetDefault("advanced.rpc_timeout", 10*time.Second)
	v.SetDefault("advanced.ws_reconnect_delay", 5*time.Second)
	v.SetDefault("advanced.ws_ping_interval", 30*time.Second)
	v.SetDefault("advanced.stats_interval", time.Minute)
	v.SetDefault("advanced.shutdown_timeout", 30*time.Second)
	v.SetDefault("advanced.min_wallet_sol", 0.0)
	v.SetDefault("advanced.skip_balance_check", false)
	v.SetDefault("advanced.dedupe_cache_size", 4096)
	v.SetDefault("advanced.restore_positions", true)
	v.SetDefault("advanced.position_journaling", true)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Network != "mainnet" && config.Network != "devnet" {
		return fmt.Errorf("network must be 'mainnet' or 'devnet'")
	}

	// Set endpoint URLs if not provided
	if config.RPCUrl == "" {
		config.RPCUrl = GetRPCEndpoint(config.Network)
	}
	if config.WSUrl == "" {
		config.WSUrl = GetWSEndpoint(config.Network)
	}
	if config.JITO.Endpoint == "" {
		config.JITO.Endpoint = GetJitoBundleEndpoint(config.Network)
	}

	switch config.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("commitment must be 'processed', 'confirmed' or 'finalized'")
	}

	// A wallet is only optional in dry-run mode
	if config.Wallet.PrivateKey != "" && config.Wallet.Mnemonic != "" {
		return fmt.Errorf("set only one of wallet.private_key and wallet.mnemonic")
	}
	if config.Wallet.PrivateKey != "" {
		if err := checkPrivateKey(config.Wallet.PrivateKey); err != nil {
			return err
		}
	}
	if !config.Trading.DryRun && !config.HasWallet() {
		return fmt.Errorf("wallet.private_key or wallet.mnemonic is required unless trading.dry_run is set")
	}

	// Validate trading amounts
	if config.Trading.TradeSizeSOL < MinTradeAmountSOL {
		return fmt.Errorf("trade_size_sol must be at least %f", MinTradeAmountSOL)
	}
	if config.Trading.TradeSizeSOL > MaxTradeAmountSOL {
		return fmt.Errorf("trade_size_sol must not exceed %f", MaxTradeAmountSOL)
	}

	// Validate slippage
	if config.Trading.SlippageBP < MinSlippageBP || config.Trading.SlippageBP > MaxSlippageBP {
		return fmt.Errorf("slippage_bp must be between %d and %d (0.1%% to 50%%)", MinSlippageBP, MaxSlippageBP)
	}
	if config.Exit.SellSlippageBP < MinSlippageBP || config.Exit.SellSlippageBP > MaxSlippageBP {
		return fmt.Errorf("exit.sell_slippage_bp must be between %d and %d", MinSlippageBP, MaxSlippageBP)
	}
	if config.Trading.MaxRetries < 0 {
		return fmt.Errorf("trading.max_retries must be non-negative")
	}

	// Validate exit triggers
	if config.Exit.TakeProfitPct < 0 || config.Exit.StopLossPct < 0 || config.Exit.TrailingStopPct < 0 {
		return fmt.Errorf("exit percentages must be non-negative")
	}
	if config.Exit.StopLossPct >= 100 {
		return fmt.Errorf("exit.stop_loss_pct must be below 100")
	}
	if config.Exit.TrailingStop && (config.Exit.TrailingStopPct <= 0 || config.Exit.TrailingStopPct >= 100) {
		return fmt.Errorf("exit.trailing_stop_pct must be between 0 and 100 when trailing_stop is enabled")
	}

	// Validate limits
	if config.Limits.MaxTradesPerWindow < 1 {
		return fmt.Errorf("limits.max_trades_per_window must be at least 1")
	}
	if config.Limits.Window <= 0 {
		return fmt.Errorf("limits.window must be positive")
	}
	if config.Limits.Cooldown < 0 {
		return fmt.Errorf("limits.cooldown must be non-negative")
	}

	if config.Monitor.TickInterval <= 0 {
		return fmt.Errorf("monitor.tick_interval must be positive")
	}
	if config.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline.queue_size must be at least 1")
	}

	if config.Safety.TokenAgeCheck {
		if config.Safety.MinTokenAge <= 0 {
			return fmt.Errorf("safety.min_token_age must be positive when token_age_check is on")
		}
		if !config.Market.Birdeye.Enabled {
			return fmt.Errorf("safety.token_age_check needs market.birdeye.enabled")
		}
	}

	// Safety rules carry their own checks, including the mandatory risk fallback
	if err := config.SafetyRules().Validate(); err != nil {
		return fmt.Errorf("safety: %w", err)
	}

	// Create log directories if they don't exist
	if config.Logging.LogToFile {
		logDir := filepath.Dir(config.Logging.LogFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}
	if config.Logging.TradeLogDir != "" {
		if err := os.MkdirAll(config.Logging.TradeLogDir, 0755); err != nil {
			return fmt.Errorf("failed to create trade log directory %s: %w", config.Logging.TradeLogDir, err)
		}
	}

	return nil
}

// HasWallet reports whether signing keys are configured.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.Mnemonic != ""
}

// SafetyRules converts the safety section for the evaluator.
func (c *Config) SafetyRules() safety.Config {
	s := c.Safety
	var minAge time.Duration
	if s.TokenAgeCheck {
		minAge = s.MinTokenAge
	}
	return safety.Config{
		MinLiquiditySOL:             decimal.NewFromFloat(s.MinLiquiditySOL),
		MaxSupply:                   decimal.NewFromFloat(s.MaxSupply),
		MinHolders:                  s.MinHolders,
		MaxTopHolderPct:             decimal.NewFromFloat(s.MaxTopHolderPct),
		MinVolume24h:                decimal.NewFromFloat(s.MinVolume24h),
		MinVolumeConfidence:         decimal.NewFromFloat(s.MinVolumeConfidence),
		VolumeDisagreementThreshold: decimal.NewFromFloat(s.VolumeDisagreementThreshold),
		VolumeDisagreementPenalty:   decimal.NewFromFloat(s.VolumeDisagreementPenalty),
		SingleSourceFactor:          decimal.NewFromFloat(s.SingleSourceFactor),
		TradeSizeSOL:                decimal.NewFromFloat(c.Trading.TradeSizeSOL),
		MaxPriceImpactPct:           decimal.NewFromFloat(s.MaxPriceImpactPct),
		MaxVolatility:               decimal.NewFromFloat(s.MaxVolatility),
		MinRiskScore:                decimal.NewFromFloat(s.MinRiskScore),
		RequireLPLocked:             s.RequireLPLocked,
		RiskFallback:                safety.FallbackPolicy(s.RiskAPIFallback),
		MinTokenAge:                 minAge,
	}
}

// ExitRules converts the exit and monitor sections for the position monitor.
func (c *Config) ExitRules() position.Config {
	return position.Config{
		TakeProfitPct:      decimal.NewFromFloat(c.Exit.TakeProfitPct),
		StopLossPct:        decimal.NewFromFloat(c.Exit.StopLossPct),
		TrailingStop:       c.Exit.TrailingStop,
		TrailingStopPct:    decimal.NewFromFloat(c.Exit.TrailingStopPct),
		MaxHold:            c.Exit.MaxHold,
		TickInterval:       c.Monitor.TickInterval,
		PriceTimeout:       c.Monitor.PriceTimeout,
		SellTimeout:        c.Monitor.SellTimeout,
		SellSlippageBP:     c.Exit.SellSlippageBP,
		StaleAfterFailures: c.Monitor.StaleAfterFailures,
		StuckAfterFailures: c.Monitor.StuckAfterFailures,
	}
}

// TradeSize returns the configured trade size as a decimal.
func (c *Config) TradeSize() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.TradeSizeSOL)
}

const redacted = "[HIDDEN]"

// Dump renders the effective configuration as YAML with secrets hidden.
func (c *Config) Dump() (string, error) {
	out := *c
	hide := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	hide(&out.RPCAPIKey)
	hide(&out.Wallet.PrivateKey)
	hide(&out.Wallet.Mnemonic)
	hide(&out.Market.Birdeye.APIKey)
	hide(&out.Market.DexScreener.APIKey)
	hide(&out.Market.Rugcheck.APIKey)
	hide(&out.Market.Jupiter.APIKey)
	hide(&out.JITO.APIKey)
	hide(&out.Redis.Password)
	out.RPCUrl = redactURL(out.RPCUrl)
	out.WSUrl = redactURL(out.WSUrl)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}

// redactURL hides query strings, where RPC providers put API keys.
func redactURL(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i] + "?" + redacted
	}
	return u
}
