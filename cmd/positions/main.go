// cmd/positions/main.go
//
// positions lists the positions persisted by the bot and can close them
// manually, e.g. after the bot was stopped with positions still open.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/config"
	"raydium-sniper-bot/internal/logger"
	"raydium-sniper-bot/internal/market"
	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/trader"
	"raydium-sniper-bot/internal/wallet"
	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	configFile = flag.String("config", "", "Path to config file")
	envFile    = flag.String("env", "", "Path to .env file")
	sellAll    = flag.Bool("sell-all", false, "Sell every stored position")
	sellMint   = flag.String("sell", "", "Sell the position of this mint")
	confirm    = flag.Bool("yes", false, "Actually submit sells (otherwise only the plan is printed)")
	jsonOut    = flag.Bool("json", false, "Print results as JSON")
)

// PositionInfo is one stored position with its current valuation.
type PositionInfo struct {
	Mint       string `json:"mint"`
	Pool       string `json:"pool"`
	State      string `json:"state"`
	Amount     string `json:"amount"`
	CostSOL    string `json:"cost_sol"`
	EntryPrice string `json:"entry_price"`
	Price      string `json:"price,omitempty"`
	PnLPct     string `json:"pnl_pct,omitempty"`
	HeldFor    string `json:"held_for"`
	Error      string `json:"error,omitempty"`
}

// SellResult is the outcome of a manual sell.
type SellResult struct {
	Mint        string `json:"mint"`
	Signature   string `json:"signature,omitempty"`
	SOLReceived string `json:"sol_received,omitempty"`
	Success     bool   `json:"success"`
	DryRun      bool   `json:"dry_run,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Manager values and sells stored positions.
type Manager struct {
	cfg     *config.Config
	log     *logger.Logger
	store   position.Store
	rpc     *client.Client
	prices  *market.PoolPriceSource
	wallet  *wallet.Wallet
	seller  *trader.Executor
	journal *logger.TradeLogger
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		fmt.Fprintln(os.Stderr, "redis.addr is not set: positions are only persisted in Redis")
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("❌ Redis connection failed")
	}
	store, err := position.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open position store")
	}

	rpc := client.NewClient(client.ClientConfig{
		RPCEndpoint: cfg.RPCUrl,
		APIKey:      cfg.RPCAPIKey,
		Timeout:     cfg.Advanced.RPCTimeout,
		Commitment:  cfg.Commitment,
	}, log.WithComponent("rpc"))

	m := &Manager{
		cfg:    cfg,
		log:    log,
		store:  store,
		rpc:    rpc,
		prices: market.NewPoolPriceSource(rpc),
	}

	snaps, err := store.LoadAll(ctx)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to load positions")
	}

	infos := make([]PositionInfo, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, m.describe(ctx, s))
	}
	m.print(infos)

	targets := selectTargets(snaps, *sellAll, *sellMint)
	if len(targets) == 0 {
		return
	}
	if !*confirm {
		fmt.Printf("\n%d position(s) would be sold. Re-run with -yes to submit.\n", len(targets))
		return
	}

	if err := m.setupSeller(); err != nil {
		log.WithError(err).Fatal("❌ Failed to set up seller")
	}

	results := make([]SellResult, 0, len(targets))
	for _, s := range targets {
		results = append(results, m.sell(ctx, s))
	}
	m.print(results)
}

func selectTargets(snaps []position.Snapshot, all bool, mint string) []position.Snapshot {
	if all {
		return snaps
	}
	if mint == "" {
		return nil
	}
	for _, s := range snaps {
		if s.Key() == mint {
			return []position.Snapshot{s}
		}
	}
	fmt.Fprintf(os.Stderr, "No stored position for %s\n", mint)
	return nil
}

func (m *Manager) describe(ctx context.Context, s position.Snapshot) PositionInfo {
	info := PositionInfo{
		Mint:       s.Key(),
		Pool:       s.PoolAddress.String(),
		State:      s.State.String(),
		Amount:     s.AmountBase.String(),
		CostSOL:    s.CostQuote.String(),
		EntryPrice: s.EntryPrice.String(),
		HeldFor:    time.Since(s.EntryTime).Truncate(time.Second).String(),
	}

	price, err := m.prices.GetPrice(ctx, s)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Price = price.String()
	info.PnLPct = s.PnLPct(price).StringFixed(2)
	return info
}

func (m *Manager) setupSeller() error {
	cfg := m.cfg

	var signer trader.Signer
	if cfg.HasWallet() {
		w, err := wallet.NewWallet(wallet.WalletConfig{
			PrivateKey:     cfg.Wallet.PrivateKey,
			Mnemonic:       cfg.Wallet.Mnemonic,
			DerivationPath: cfg.Wallet.DerivationPath,
		}, m.rpc, m.log.WithComponent("wallet"))
		if err != nil {
			return err
		}
		m.wallet = w
		signer = w
	}

	jupiter := trader.NewJupiterClient(trader.JupiterConfig{
		BaseURL:           cfg.Market.Jupiter.URL,
		APIKey:            cfg.Market.Jupiter.APIKey,
		Timeout:           cfg.Market.Jupiter.Timeout,
		RequestsPerSecond: cfg.Market.Jupiter.RequestsPerSecond,
	}, m.log.WithComponent("jupiter"))

	m.seller = trader.NewExecutor(trader.Config{
		DryRun:              cfg.Trading.DryRun,
		SlippageBP:          cfg.Exit.SellSlippageBP,
		PriorityFeeLamports: cfg.Trading.PriorityFeeLamports,
		SkipPreflight:       cfg.Trading.SkipPreflight,
		ConfirmTimeout:      cfg.Advanced.ConfirmTimeout,
		ConfirmInterval:     cfg.Advanced.ConfirmInterval,
	}, jupiter, signer, m.rpc, nil, m.log.WithComponent("executor"))

	journal, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, m.log.WithComponent("journal"))
	if err != nil {
		return err
	}
	m.journal = journal
	return nil
}

// onChainAmount reads the wallet's token balance so a partially sold or
// topped up position is closed in full.
func (m *Manager) onChainAmount(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, bool) {
	if m.wallet == nil {
		return decimal.Zero, false
	}
	ata, err := m.wallet.GetAssociatedTokenAddress(mint)
	if err != nil {
		m.log.WithError(err).WithField("mint", mint.String()).Warn("⚠️ Failed to derive token account")
		return decimal.Zero, false
	}
	raw, decimals, err := m.rpc.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		m.log.WithError(err).WithField("ata", ata.String()).Warn("⚠️ Failed to read token balance, using stored amount")
		return decimal.Zero, false
	}
	return utils.ToUIAmount(raw, decimals), true
}

func (m *Manager) sell(ctx context.Context, s position.Snapshot) SellResult {
	result := SellResult{Mint: s.Key()}
	log := m.log.WithToken(s.Key())

	if amount, ok := m.onChainAmount(ctx, s.TokenMint); ok {
		if !amount.IsPositive() {
			result.Error = "wallet holds no tokens for this position"
			log.Warn("🫙 Nothing to sell, removing stored position")
			m.forget(ctx, s, log)
			return result
		}
		s.AmountBase = amount
	}

	var minOut uint64
	price, err := m.prices.GetPrice(ctx, s)
	if err == nil {
		expected := utils.SOLToLamports(s.AmountBase.Mul(price))
		minOut = utils.ApplySlippageBP(expected, m.cfg.Exit.SellSlippageBP)
	} else {
		log.WithError(err).Warn("⚠️ No pool price, selling without a minimum output")
	}

	fill, err := m.seller.SubmitSell(ctx, s, minOut)
	if err != nil {
		result.Error = err.Error()
		m.journal.RecordSellFailure(position.SellFailure{Position: s, Reason: position.ExitManual, Attempts: 1, Err: err})
		log.WithError(err).Error("❌ Manual sell failed")
		return result
	}

	result.Success = true
	result.Signature = fill.Signature
	result.DryRun = fill.DryRun
	result.SOLReceived = utils.LamportsToSOL(fill.AmountOut).String()

	m.journal.RecordExit(position.ExitEvent{
		Position: s,
		Reason:   position.ExitManual,
		Price:    fill.Price,
		PnLPct:   s.PnLPct(fill.Price),
		HeldFor:  time.Since(s.EntryTime),
		Fill:     fill,
	})
	log.WithFields(logrus.Fields{
		"signature":    fill.Signature,
		"sol_received": result.SOLReceived,
		"dry_run":      fill.DryRun,
	}).Info("✅ Position sold")

	if !fill.DryRun {
		m.forget(ctx, s, log)
	}
	return result
}

func (m *Manager) forget(ctx context.Context, s position.Snapshot, log logrus.FieldLogger) {
	if err := m.store.Delete(ctx, s.Key()); err != nil {
		log.WithError(err).Warn("⚠️ Failed to delete stored position")
	}
}

func (m *Manager) print(v interface{}) {
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			m.log.WithError(err).Error("Failed to encode output")
		}
		return
	}

	switch rows := v.(type) {
	case []PositionInfo:
		if len(rows) == 0 {
			fmt.Println("No stored positions")
			return
		}
		fmt.Printf("%-44s %-10s %-16s %-14s %-10s %s\n", "MINT", "STATE", "AMOUNT", "COST SOL", "PNL %", "HELD")
		for _, r := range rows {
			pnl := r.PnLPct
			if r.Error != "" {
				pnl = "n/a"
			}
			fmt.Printf("%-44s %-10s %-16s %-14s %-10s %s\n", r.Mint, r.State, r.Amount, r.CostSOL, pnl, r.HeldFor)
		}
	case []SellResult:
		for _, r := range rows {
			if r.Success {
				fmt.Printf("✅ %s sold for %s SOL (%s)\n", r.Mint, r.SOLReceived, r.Signature)
			} else {
				fmt.Printf("❌ %s: %s\n", r.Mint, r.Error)
			}
		}
	}
}
