package sniper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/market"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MetadataProvider reads the SPL mint account.
type MetadataProvider interface {
	GetTokenMetadata(ctx context.Context, mint solana.PublicKey) (*safety.TokenMetadata, error)
}

// ReserveProvider reads pool vault balances in UI units.
type ReserveProvider interface {
	GetPoolReserves(ctx context.Context, ev raydium.PoolEvent) (safety.Reserves, error)
}

// LargestAccountsProvider lists the biggest token accounts of a mint.
type LargestAccountsProvider interface {
	GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) ([]client.TokenHolding, error)
}

// HolderCounter returns the number of holders of a mint.
type HolderCounter interface {
	GetHolderCount(ctx context.Context, mint solana.PublicKey) (int, error)
}

// PriceHistoryProvider returns recent prices, oldest first.
type PriceHistoryProvider interface {
	GetPriceHistory(ctx context.Context, mint solana.PublicKey, interval string, lookback time.Duration) ([]decimal.Decimal, error)
}

// RiskProvider returns an external risk assessment.
type RiskProvider interface {
	GetRiskReport(ctx context.Context, mint solana.PublicKey) (market.RiskReport, error)
}

// CreationTimeProvider returns when a mint was created.
type CreationTimeProvider interface {
	GetTokenCreationTime(ctx context.Context, mint solana.PublicKey) (time.Time, error)
}

// FactSources are the collaborators consulted for every pool. Nil sources
// are skipped; a nil Risk means the risk rule is not run at all.
type FactSources struct {
	Metadata     MetadataProvider
	Reserves     ReserveProvider
	Largest      LargestAccountsProvider
	HolderCount  HolderCounter
	Volumes      []market.VolumeSource
	PriceHistory PriceHistoryProvider
	Risk         RiskProvider
	CreationTime CreationTimeProvider
}

// FactConfig bounds fact collection.
type FactConfig struct {
	Timeout         time.Duration
	HistoryInterval string
	HistoryLookback time.Duration
}

// Collector gathers safety.Inputs for a pool, querying every source
// concurrently with a per-call timeout.
type Collector struct {
	src    FactSources
	cfg    FactConfig
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewCollector creates a collector.
func NewCollector(src FactSources, cfg FactConfig, logger logrus.FieldLogger) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HistoryInterval == "" {
		cfg.HistoryInterval = "1m"
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 30 * time.Minute
	}
	return &Collector{src: src, cfg: cfg, logger: logger, now: time.Now}
}

// Collect never fails; every unavailable fact is recorded in Inputs.
func (c *Collector) Collect(ctx context.Context, ev raydium.PoolEvent) safety.Inputs {
	var (
		in      safety.Inputs
		wg      sync.WaitGroup
		mint    = ev.TokenMint()
		start   = time.Now()
		largest []client.TokenHolding
		counted int
		risk    *market.RiskReport

		largestErr, countErr error
	)

	run := func(fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			fn(callCtx)
		}()
	}

	if c.src.Metadata != nil {
		run(func(ctx context.Context) {
			in.Metadata, in.MetadataErr = c.src.Metadata.GetTokenMetadata(ctx, mint)
		})
	} else {
		in.MetadataErr = fmt.Errorf("no metadata source")
	}

	if c.src.Reserves != nil {
		run(func(ctx context.Context) {
			r, err := c.src.Reserves.GetPoolReserves(ctx, ev)
			if err != nil {
				in.LiquidityErr = err
				return
			}
			liq := r.SOL
			in.LiquiditySOL = &liq
			in.Reserves = &r
		})
	} else {
		in.LiquidityErr = fmt.Errorf("no reserve source")
	}

	if c.src.Largest != nil {
		run(func(ctx context.Context) {
			largest, largestErr = c.src.Largest.GetTokenLargestAccounts(ctx, mint)
		})
	}
	if c.src.HolderCount != nil {
		run(func(ctx context.Context) {
			counted, countErr = c.src.HolderCount.GetHolderCount(ctx, mint)
		})
	}

	if len(c.src.Volumes) > 0 {
		run(func(ctx context.Context) {
			in.Volumes = market.CollectVolumes(ctx, mint, c.src.Volumes, c.logger)
		})
	}

	if c.src.PriceHistory != nil {
		run(func(ctx context.Context) {
			prices, err := c.src.PriceHistory.GetPriceHistory(ctx, mint, c.cfg.HistoryInterval, c.cfg.HistoryLookback)
			if err != nil {
				c.logger.WithError(err).WithField("mint", mint.String()).Debug("Price history unavailable")
				return
			}
			in.PriceHistory = prices
		})
	}

	if c.src.Risk != nil {
		run(func(ctx context.Context) {
			report, err := c.src.Risk.GetRiskReport(ctx, mint)
			if err != nil {
				in.RiskErr = err
				return
			}
			risk = &report
			in.Risk = &report.RiskReport
		})
	}

	if c.src.CreationTime != nil {
		run(func(ctx context.Context) {
			created, err := c.src.CreationTime.GetTokenCreationTime(ctx, mint)
			if err != nil {
				in.TokenAgeErr = err
				return
			}
			age := c.now().Sub(created)
			if age < 0 {
				age = 0
			}
			in.TokenAge = &age
		})
	}

	wg.Wait()

	in.Holders, in.HoldersErr = holderStats(ev, in.Metadata, largest, largestErr, counted, countErr, risk)

	c.logger.WithFields(logrus.Fields{
		"mint":        mint.String(),
		"collect_ms":  time.Since(start).Milliseconds(),
		"metadata":    in.Metadata != nil,
		"liquidity":   in.LiquiditySOL != nil,
		"holders":     in.Holders != nil,
		"volumes":     len(in.Volumes),
		"price_ticks": len(in.PriceHistory),
		"risk":        in.Risk != nil,
		"token_age":   in.TokenAge != nil,
	}).Debug("Safety facts collected")

	return in
}

// holderStats merges the holder count (market API, else risk report) with
// the top holder share computed from the largest accounts. Pool vaults are
// excluded: right after creation they hold most of the supply.
func holderStats(ev raydium.PoolEvent, meta *safety.TokenMetadata, largest []client.TokenHolding, largestErr error,
	counted int, countErr error, risk *market.RiskReport) (*safety.HolderStats, error) {

	count := counted
	if countErr != nil {
		count = 0
	}
	if count <= 0 && risk != nil {
		count = risk.TotalHolders
	}

	var top *decimal.Decimal
	if largestErr == nil && meta != nil && meta.Supply > 0 {
		for _, h := range largest {
			if h.Address.Equals(ev.BaseVault) || h.Address.Equals(ev.QuoteVault) {
				continue
			}
			pct := utils.U64(h.Amount).Div(utils.U64(meta.Supply)).Mul(decimal.NewFromInt(100))
			top = &pct
			break
		}
	}

	if count <= 0 {
		switch {
		case countErr != nil:
			return nil, fmt.Errorf("holder count unavailable: %w", countErr)
		case largestErr != nil:
			return nil, fmt.Errorf("holder data unavailable: %w", largestErr)
		default:
			return nil, fmt.Errorf("no holder count source")
		}
	}
	return &safety.HolderStats{Count: count, TopHolderPct: top}, nil
}
