package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/config"
	"raydium-sniper-bot/internal/logger"
	"raydium-sniper-bot/internal/market"
	"raydium-sniper-bot/internal/metrics"
	"raydium-sniper-bot/internal/notify"
	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/ratelimit"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/internal/sniper"
	"raydium-sniper-bot/internal/trader"
	"raydium-sniper-bot/internal/wallet"
	"raydium-sniper-bot/pkg/utils"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const Version = "0.4.0"

// CLI flags
var (
	configFile  = flag.String("config", "", "Path to config file")
	envFile     = flag.String("env", "", "Path to .env file")
	network     = flag.String("network", "", "Network to use (mainnet/devnet)")
	logLevel    = flag.String("log-level", "", "Log level (debug/info/warn/error)")
	dryRun      = flag.Bool("dry-run", false, "Force dry run mode (no transactions are sent)")
	live        = flag.Bool("live", false, "Disable dry run mode and trade with the configured wallet")
	enableJito  = flag.Bool("jito", false, "Enable Jito MEV protection")
	jitoTip     = flag.Uint64("jito-tip", 0, "Jito tip amount in lamports")
	tradeSize   = flag.Float64("trade-size", 0, "SOL to spend per entry")
	noMetrics   = flag.Bool("no-metrics", false, "Do not serve Prometheus metrics")
	printConfig = flag.Bool("print-config", false, "Print the effective configuration with secrets hidden and exit")
)

// App owns every long-running component of the bot.
type App struct {
	config      *config.Config
	logger      *logger.Logger
	tradeLogger *logger.TradeLogger

	rpc       *client.Client
	ws        *client.WSClient
	wallet    *wallet.Wallet
	limiter   *ratelimit.Limiter
	monitor   *position.Monitor
	listener  *sniper.Listener
	detector  *sniper.Detector
	stats     *sniper.Stats
	metrics   *metrics.Metrics
	publisher *notify.Publisher
	redis     *goredis.Client

	hooks  eventHooks
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// eventHooks fans pipeline events out to every sink.
type eventHooks struct {
	pool        []func(raydium.PoolEvent)
	verdict     []func(raydium.PoolEvent, safety.Verdict)
	trade       []func(sniper.TradeEvent)
	exit        []func(position.ExitEvent)
	sellFailure []func(position.SellFailure)
}

func (h *eventHooks) onPool(ev raydium.PoolEvent) {
	for _, fn := range h.pool {
		fn(ev)
	}
}

func (h *eventHooks) onVerdict(ev raydium.PoolEvent, v safety.Verdict) {
	for _, fn := range h.verdict {
		fn(ev, v)
	}
}

func (h *eventHooks) onTrade(ev sniper.TradeEvent) {
	for _, fn := range h.trade {
		fn(ev)
	}
}

func (h *eventHooks) onExit(ev position.ExitEvent) {
	for _, fn := range h.exit {
		fn(ev)
	}
}

func (h *eventHooks) onSellFailure(f position.SellFailure) {
	for _, fn := range h.sellFailure {
		fn(f)
	}
}

func main() {
	flag.Parse()

	cfg := loadConfigurationWithOverrides()

	if *printConfig {
		out, err := cfg.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	log := initializeLogger(cfg)
	defer log.Close()

	app, err := NewApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create application")
	}

	if err := app.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start application")
	}
}

func loadConfigurationWithOverrides() *config.Config {
	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := applyCliOverrides(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid command line override: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func applyCliOverrides(cfg *config.Config) error {
	if *network != "" && *network != cfg.Network {
		cfg.Network = *network
		// endpoints follow the network unless set explicitly
		cfg.RPCUrl = config.GetRPCEndpoint(cfg.Network)
		cfg.WSUrl = config.GetWSEndpoint(cfg.Network)
		cfg.JITO.Endpoint = config.GetJitoBundleEndpoint(cfg.Network)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *live {
		cfg.Trading.DryRun = false
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}
	if *enableJito {
		cfg.JITO.Enabled = true
	}
	if *jitoTip > 0 {
		cfg.JITO.TipAmount = *jitoTip
	}
	if *tradeSize > 0 {
		cfg.Trading.TradeSizeSOL = *tradeSize
	}
	if *noMetrics {
		cfg.Metrics.Enabled = false
	}

	if !cfg.Trading.DryRun && !cfg.HasWallet() {
		return fmt.Errorf("live trading requires wallet.private_key or wallet.mnemonic")
	}
	if cfg.Trading.TradeSizeSOL > config.MaxTradeAmountSOL {
		return fmt.Errorf("trade size %.4f SOL exceeds %.1f SOL", cfg.Trading.TradeSizeSOL, config.MaxTradeAmountSOL)
	}
	return nil
}

func initializeLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.NewLogger(logger.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		LogToFile:   cfg.Logging.LogToFile,
		LogFilePath: cfg.Logging.LogFilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

// NewApp wires every component from the configuration.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{config: cfg, logger: log, ctx: ctx, cancel: cancel}

	if err := app.build(); err != nil {
		cancel()
		if app.redis != nil {
			app.redis.Close()
		}
		if app.publisher != nil {
			app.publisher.Close()
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build() error {
	cfg := a.config
	log := a.logger

	tradeLogger, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, log.WithComponent("journal"))
	if err != nil {
		return fmt.Errorf("failed to create trade logger: %w", err)
	}
	a.tradeLogger = tradeLogger

	a.rpc = client.NewClient(client.ClientConfig{
		RPCEndpoint: cfg.RPCUrl,
		APIKey:      cfg.RPCAPIKey,
		Timeout:     cfg.Advanced.RPCTimeout,
		Commitment:  cfg.Commitment,
	}, log.WithComponent("rpc"))

	a.ws = client.NewWSClient(cfg.WSUrl, log.WithComponent("ws"),
		client.WithReconnectDelay(cfg.Advanced.WSReconnectDelay),
		client.WithPingInterval(cfg.Advanced.WSPingInterval),
	)

	// A nil signer is fine in dry run: the executor never reaches it.
	var signer trader.Signer
	if cfg.HasWallet() {
		a.wallet, err = wallet.NewWallet(wallet.WalletConfig{
			PrivateKey:     cfg.Wallet.PrivateKey,
			Mnemonic:       cfg.Wallet.Mnemonic,
			DerivationPath: cfg.Wallet.DerivationPath,
		}, a.rpc, log.WithComponent("wallet"))
		if err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		signer = a.wallet
	}

	var bundler trader.Bundler
	if cfg.JITO.Enabled {
		bundler = client.NewJitoClient(client.JitoClientConfig{
			Endpoint: cfg.JITO.Endpoint,
			APIKey:   cfg.JITO.APIKey,
			Timeout:  cfg.JITO.Timeout,
		}, log.WithComponent("jito"))
	}

	jupiter := trader.NewJupiterClient(trader.JupiterConfig{
		BaseURL:           cfg.Market.Jupiter.URL,
		APIKey:            cfg.Market.Jupiter.APIKey,
		Timeout:           cfg.Market.Jupiter.Timeout,
		RequestsPerSecond: cfg.Market.Jupiter.RequestsPerSecond,
	}, log.WithComponent("jupiter"))

	executor := trader.NewExecutor(trader.Config{
		DryRun:              cfg.Trading.DryRun,
		SlippageBP:          cfg.Trading.SlippageBP,
		PriorityFeeLamports: cfg.Trading.PriorityFeeLamports,
		SkipPreflight:       cfg.Trading.SkipPreflight,
		ConfirmTimeout:      cfg.Advanced.ConfirmTimeout,
		ConfirmInterval:     cfg.Advanced.ConfirmInterval,
		UseJito:             cfg.JITO.Enabled,
		JitoTipLamports:     cfg.JITO.TipAmount,
	}, jupiter, signer, a.rpc, bundler, log.WithComponent("executor"))

	evaluator, err := safety.NewEvaluator(cfg.SafetyRules(), log.WithComponent("safety"))
	if err != nil {
		return fmt.Errorf("failed to create safety evaluator: %w", err)
	}

	pool := market.NewPoolPriceSource(a.rpc)

	store, err := a.positionStore()
	if err != nil {
		return err
	}
	if err := a.setupLimiter(); err != nil {
		return err
	}

	a.monitor = position.NewMonitor(cfg.ExitRules(), pool, executor,
		position.WithStore(store),
		position.WithCooldown(a.limiter),
		position.WithExitHook(a.hooks.onExit),
		position.WithSellFailureHook(a.hooks.onSellFailure),
		position.WithLogger(log.WithComponent("monitor")),
	)

	a.stats = sniper.NewStats()
	facts := sniper.NewCollector(a.factSources(pool), sniper.FactConfig{
		Timeout:         cfg.Pipeline.FactTimeout,
		HistoryInterval: cfg.Pipeline.HistoryInterval,
		HistoryLookback: cfg.Pipeline.HistoryLookback,
	}, log.WithComponent("facts"))

	a.detector = sniper.NewDetector(sniper.Config{
		SOLPairsOnly: cfg.Pipeline.SOLPairsOnly,
		TradeSizeSOL: cfg.TradeSize(),
		SlippageBP:   cfg.Trading.SlippageBP,
		MaxRetries:   cfg.Trading.MaxRetries,
		RetryDelay:   cfg.Trading.RetryDelay,
		BuyTimeout:   cfg.Trading.BuyTimeout,
	}, facts, evaluator, a.limiter, executor, a.monitor, a.stats, log.WithComponent("detector"),
		sniper.WithPoolHook(a.hooks.onPool),
		sniper.WithVerdictHook(a.hooks.onVerdict),
		sniper.WithTradeHook(a.hooks.onTrade),
		sniper.WithDecodeSkipHook(log.LogDecodeSkip),
	)

	a.listener = sniper.NewListener(a.ws, a.rpc, sniper.ListenerConfig{
		Commitment:      cfg.Commitment,
		QueueSize:       cfg.Pipeline.QueueSize,
		FetchQueueSize:  cfg.Pipeline.FetchQueueSize,
		FetchTimeout:    cfg.Pipeline.FetchTimeout,
		FetchAttempts:   cfg.Pipeline.FetchAttempts,
		FetchRetryDelay: cfg.Pipeline.FetchRetryDelay,
		DedupeSize:      cfg.Advanced.DedupeCacheSize,
	}, a.stats, log.WithComponent("listener"))

	a.registerHooks()
	return a.connectPublisher()
}

// setupLimiter builds the trade limiter. With Redis the window count and
// cooldowns are persisted and restored here.
func (a *App) setupLimiter() error {
	limits := a.config.Limits
	opts := []ratelimit.Option{ratelimit.WithLogger(a.logger.WithComponent("limits"))}
	if a.redis != nil {
		ledger, err := ratelimit.NewRedisLedger(a.redis, a.config.Redis.KeyPrefix, limits.Window+limits.Cooldown)
		if err != nil {
			return fmt.Errorf("failed to create limit ledger: %w", err)
		}
		opts = append(opts, ratelimit.WithLedger(ledger))
	}
	a.limiter = ratelimit.New(limits.MaxTradesPerWindow, limits.Window, limits.Cooldown, opts...)

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := a.limiter.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore trade limits: %w", err)
	}
	return nil
}

// positionStore picks Redis when configured so open positions survive restarts.
func (a *App) positionStore() (position.Store, error) {
	if a.config.Redis.Addr == "" {
		return position.NewMemoryStore(), nil
	}

	a.redis = goredis.NewClient(&goredis.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.config.Redis.Addr, err)
	}

	store, err := position.NewRedisStore(a.redis, a.config.Redis.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create position store: %w", err)
	}
	a.logger.WithField("addr", a.config.Redis.Addr).Info("🗄️ Using Redis position store")
	return store, nil
}

// factSources wires the enabled market data providers.
func (a *App) factSources(pool *market.PoolPriceSource) sniper.FactSources {
	cfg := a.config.Market
	src := sniper.FactSources{
		Metadata: a.rpc,
		Reserves: pool,
		Largest:  a.rpc,
	}

	clientConfig := func(api config.APIConfig) market.ClientConfig {
		return market.ClientConfig{
			BaseURL:           api.URL,
			APIKey:            api.APIKey,
			Timeout:           api.Timeout,
			RequestsPerSecond: api.RequestsPerSecond,
		}
	}

	if cfg.Birdeye.Enabled {
		birdeye := market.NewBirdeyeClient(clientConfig(cfg.Birdeye), a.logger.WithComponent("birdeye"))
		src.HolderCount = birdeye
		src.PriceHistory = birdeye
		src.Volumes = append(src.Volumes, birdeye)
		if a.config.Safety.TokenAgeCheck {
			src.CreationTime = birdeye
		}
	}
	if cfg.DexScreener.Enabled {
		src.Volumes = append(src.Volumes, market.NewDexScreenerClient(clientConfig(cfg.DexScreener), a.logger.WithComponent("dexscreener")))
	}
	if cfg.Rugcheck.Enabled {
		src.Risk = market.NewRugcheckClient(clientConfig(cfg.Rugcheck), a.logger.WithComponent("rugcheck"))
	}

	a.logger.WithFields(logrus.Fields{
		"birdeye":     cfg.Birdeye.Enabled,
		"dexscreener": cfg.DexScreener.Enabled,
		"rugcheck":    cfg.Rugcheck.Enabled,
		"token_age":   src.CreationTime != nil,
	}).Info("📚 Market data sources configured")
	return src
}

func (a *App) registerHooks() {
	h := &a.hooks
	h.pool = append(h.pool, a.logger.LogPoolDetected)
	h.verdict = append(h.verdict, a.logger.LogVerdict)
	h.trade = append(h.trade, a.logger.LogTrade, a.tradeLogger.RecordBuy)
	h.exit = append(h.exit, a.logger.LogExit, a.tradeLogger.RecordExit)
	h.sellFailure = append(h.sellFailure, a.logger.LogSellFailure, a.tradeLogger.RecordSellFailure)

	if a.config.Metrics.Enabled {
		a.metrics = metrics.New()
		a.metrics.WatchPipeline(a.stats)
		a.metrics.WatchPositions(a.monitor.Len)
		h.pool = append(h.pool, a.metrics.PoolDetected)
		h.verdict = append(h.verdict, a.metrics.Verdict)
		h.trade = append(h.trade, a.metrics.Trade)
		h.exit = append(h.exit, a.metrics.Exit)
		h.sellFailure = append(h.sellFailure, a.metrics.SellFailure)
	}
}

func (a *App) connectPublisher() error {
	if a.config.NATS.URL == "" {
		return nil
	}

	pub, err := notify.Connect(notify.Config{
		URL:           a.config.NATS.URL,
		SubjectPrefix: a.config.NATS.SubjectPrefix,
		Name:          "raydium-sniper-bot " + Version,
	}, a.logger.WithComponent("notify"))
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	a.publisher = pub

	h := &a.hooks
	h.pool = append(h.pool, pub.PoolDetected)
	h.verdict = append(h.verdict, pub.Verdict)
	h.trade = append(h.trade, pub.Trade)
	h.exit = append(h.exit, pub.Exit)
	h.sellFailure = append(h.sellFailure, pub.SellFailure)
	return nil
}

// Start runs the bot until a signal arrives or a component fails.
func (a *App) Start() error {
	mode := "LIVE"
	if a.config.Trading.DryRun {
		mode = "DRY RUN"
	}
	if a.config.JITO.Enabled {
		mode += " + JITO PROTECTED"
	}
	a.logger.LogStartup(Version, a.config.Network, a.config.Trading.DryRun)
	a.logger.Info(fmt.Sprintf("🚀 Starting Raydium Sniper Bot v%s (%s MODE)", Version, mode))

	a.logger.WithFields(logrus.Fields{
		"trade_size_sol":  a.config.Trading.TradeSizeSOL,
		"slippage_bp":     a.config.Trading.SlippageBP,
		"take_profit_pct": a.config.Exit.TakeProfitPct,
		"stop_loss_pct":   a.config.Exit.StopLossPct,
		"trailing_stop":   a.config.Exit.TrailingStop,
		"max_hold":        a.config.Exit.MaxHold.String(),
		"max_trades":      a.config.Limits.MaxTradesPerWindow,
		"window":          a.config.Limits.Window.String(),
	}).Info("⚙️ Trading configuration")

	if err := a.checkBalance(); err != nil {
		return err
	}

	if err := a.testConnections(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	if a.config.Advanced.RestorePositions {
		n, err := a.monitor.Restore(a.ctx)
		if err != nil {
			return fmt.Errorf("failed to restore positions: %w", err)
		}
		if n > 0 {
			a.logger.WithField("positions", n).Info("♻️ Restored open positions")
		}
	}

	if err := a.ws.Connect(a.ctx); err != nil {
		return fmt.Errorf("failed to connect websocket: %w", err)
	}
	if err := a.listener.Start(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	errChan := make(chan error, 2)
	a.goRun(func() {
		if err := a.ws.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			errChan <- fmt.Errorf("websocket stopped: %w", err)
		}
	})
	a.goRun(func() { a.listener.Run(a.ctx) })
	a.goRun(func() { a.detector.Run(a.ctx, a.listener.Transactions()) })
	a.goRun(func() { a.monitor.Run(a.ctx) })
	a.goRun(a.runStatsLoop)

	if a.metrics != nil {
		a.goRun(func() {
			if err := a.metrics.Serve(a.ctx, a.config.Metrics.Addr, a.logger.WithComponent("metrics")); err != nil {
				errChan <- fmt.Errorf("metrics server stopped: %w", err)
			}
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	a.logger.Info("🎯 Bot started - listening for new Raydium pools!")

	select {
	case sig := <-sigChan:
		a.shutdown(fmt.Sprintf("received signal: %v", sig))
		return nil
	case err := <-errChan:
		a.shutdown(err.Error())
		return err
	}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) checkBalance() error {
	if a.wallet == nil {
		a.logger.Warn("🧪 No wallet configured - running in dry run without a balance check")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	lamports, err := a.wallet.GetBalance(ctx)
	if err != nil {
		if a.config.Advanced.SkipBalanceCheck {
			a.logger.WithError(err).Warn("⚠️ Failed to get balance, continuing")
			return nil
		}
		return fmt.Errorf("failed to get balance: %w", err)
	}

	balance := utils.LamportsToSOL(lamports)
	a.logger.LogBalance(a.wallet.PublicKey().String(), balance.InexactFloat64())

	if a.config.Advanced.SkipBalanceCheck || a.config.Trading.DryRun {
		return nil
	}
	minimum := decimal.NewFromFloat(a.config.Advanced.MinWalletSOL)
	if balance.LessThan(minimum) || balance.LessThan(a.config.TradeSize()) {
		return fmt.Errorf("insufficient balance: %s SOL (need at least %s SOL and one trade of %s SOL)",
			balance.String(), minimum.String(), a.config.TradeSize().String())
	}
	return nil
}

func (a *App) testConnections() error {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	if _, err := a.rpc.GetLatestBlockhash(ctx); err != nil {
		return fmt.Errorf("RPC connection test failed: %w", err)
	}
	a.logger.Info("✅ RPC connection test passed")

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection test failed: %w", err)
		}
	}
	if a.publisher != nil && !a.publisher.Ready() {
		a.logger.Warn("⚠️ NATS is not connected yet, events will be buffered")
	}
	return nil
}

// runStatsLoop logs pipeline statistics and journals open positions.
func (a *App) runStatsLoop() {
	interval := a.config.Advanced.StatsInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.logStats()
		}
	}
}

func (a *App) logStats() {
	stats := a.stats.Snapshot()
	for k, v := range a.ws.Stats() {
		stats["ws_"+k] = v
	}
	limits := a.limiter.Stats()
	stats["trades_in_window"] = limits.TradesInWindow
	stats["active_cooldowns"] = limits.ActiveCooldowns

	a.logger.LogStats(stats, a.monitor.Len())

	if a.config.Advanced.PositionJournaling {
		if err := a.tradeLogger.LogPositions(a.monitor.Positions()); err != nil {
			a.logger.LogError("journal", "log_positions", err, nil)
		}
	}
	if err := a.tradeLogger.LogDailySummary(); err != nil {
		a.logger.LogError("journal", "daily_summary", err, nil)
	}
}

func (a *App) shutdown(reason string) {
	a.logger.LogShutdown(reason)
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	timeout := a.config.Advanced.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		a.logger.WithField("timeout", timeout.String()).Warn("⚠️ Components did not stop in time")
	}

	if err := a.ws.Close(); err != nil {
		a.logger.WithError(err).Debug("WebSocket close")
	}

	open := a.monitor.Positions()
	if len(open) > 0 {
		a.logger.WithField("positions", len(open)).Warn("📌 Open positions left at shutdown")
		if err := a.tradeLogger.LogPositions(open); err != nil {
			a.logger.LogError("journal", "log_positions", err, nil)
		}
	}
	if err := a.tradeLogger.LogDailySummary(); err != nil {
		a.logger.LogError("journal", "daily_summary", err, nil)
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.WithError(err).Warn("⚠️ Failed to drain NATS connection")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}

	a.logger.WithFields(a.stats.Snapshot()).Info("📊 Final pipeline statistics")
	a.logger.Info("✅ Shutdown complete")
}
