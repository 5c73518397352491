// internal/sniper/detector.go
package sniper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Buyer executes an entry.
type Buyer interface {
	SubmitBuy(ctx context.Context, ev raydium.PoolEvent, amountInLamports, minOut uint64) (position.Fill, error)
}

// Gate is the trade rate limiter.
type Gate interface {
	MayEnter(mint string) bool
	RecordTrade(mint string)
}

// Positions is the position monitor as seen by the detector.
type Positions interface {
	Has(mint string) bool
	Open(ctx context.Context, s position.Snapshot) (position.Snapshot, error)
}

// FactCollector gathers evaluator inputs for a pool.
type FactCollector interface {
	Collect(ctx context.Context, ev raydium.PoolEvent) safety.Inputs
}

// Config controls what the detector buys and how hard it tries.
type Config struct {
	SOLPairsOnly bool
	TradeSizeSOL decimal.Decimal
	SlippageBP   int
	MaxRetries   int
	RetryDelay   time.Duration
	BuyTimeout   time.Duration
}

// Result is what happened to one transaction.
type Result string

const (
	ResultUnrelated   Result = "unrelated"
	ResultMalformed   Result = "malformed"
	ResultSkipped     Result = "skipped"
	ResultRejected    Result = "rejected"
	ResultRateLimited Result = "rate_limited"
	ResultBuyFailed   Result = "buy_failed"
	ResultBought      Result = "bought"
)

// TradeEvent reports a buy attempt sequence. Err is nil on success.
type TradeEvent struct {
	Pool     raydium.PoolEvent
	Position position.Snapshot
	Fill     position.Fill
	Attempts int
	Err      error
}

// Detector runs the pipeline from classification to an open position.
// It processes one transaction at a time, in queue order.
type Detector struct {
	cfg        Config
	classifier *raydium.Classifier
	facts      FactCollector
	evaluator  *safety.Evaluator
	gate       Gate
	buyer      Buyer
	positions  Positions
	stats      *Stats
	logger     logrus.FieldLogger

	onPool    func(raydium.PoolEvent)
	onVerdict func(raydium.PoolEvent, safety.Verdict)
	onTrade   func(TradeEvent)
	onSkip    func(raydium.Classification)
}

// DetectorOption customizes a Detector.
type DetectorOption func(*Detector)

// WithPoolHook is called for every decoded pool before filtering.
func WithPoolHook(fn func(raydium.PoolEvent)) DetectorOption {
	return func(d *Detector) { d.onPool = fn }
}

// WithVerdictHook is called after every safety evaluation.
func WithVerdictHook(fn func(raydium.PoolEvent, safety.Verdict)) DetectorOption {
	return func(d *Detector) { d.onVerdict = fn }
}

// WithTradeHook is called after every buy, successful or not.
func WithTradeHook(fn func(TradeEvent)) DetectorOption {
	return func(d *Detector) { d.onTrade = fn }
}

// WithDecodeSkipHook is called for malformed transactions.
func WithDecodeSkipHook(fn func(raydium.Classification)) DetectorOption {
	return func(d *Detector) { d.onSkip = fn }
}

// NewDetector wires the pipeline.
func NewDetector(cfg Config, facts FactCollector, evaluator *safety.Evaluator, gate Gate, buyer Buyer,
	positions Positions, stats *Stats, logger logrus.FieldLogger, opts ...DetectorOption) *Detector {

	if cfg.BuyTimeout <= 0 {
		cfg.BuyTimeout = 45 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if stats == nil {
		stats = NewStats()
	}

	d := &Detector{
		cfg:        cfg,
		classifier: raydium.NewClassifier(logger),
		facts:      facts,
		evaluator:  evaluator,
		gate:       gate,
		buyer:      buyer,
		positions:  positions,
		stats:      stats,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes the queue until ctx is done or the queue is closed. The
// transaction in progress is finished before Run returns.
func (d *Detector) Run(ctx context.Context, queue <-chan raydium.Transaction) {
	d.logger.Info("🎯 Detector started")
	defer d.logger.Info("🛑 Detector stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-queue:
			if !ok {
				return
			}
			d.Process(ctx, tx)
		}
	}
}

// Process handles one transaction end to end.
func (d *Detector) Process(ctx context.Context, tx raydium.Transaction) Result {
	cls := d.classifier.Classify(tx)
	switch cls.Outcome {
	case raydium.OutcomeUnrelated:
		d.stats.Unrelated.Add(1)
		d.logger.WithField("signature", tx.Signature).Debug("Transaction is not a pool init")
		return ResultUnrelated
	case raydium.OutcomeMalformed:
		d.stats.Malformed.Add(1)
		d.logger.WithFields(logrus.Fields{
			"signature": tx.Signature,
			"kind":      raydium.KindOf(cls.Err).String(),
		}).WithError(cls.Err).Info("🧩 Skipping malformed pool-init transaction")
		if d.onSkip != nil {
			d.onSkip(cls)
		}
		return ResultMalformed
	}

	ev := cls.Event
	d.stats.Decoded.Add(1)
	log := d.logger.WithFields(logrus.Fields(ev.LogFields()))
	log.Info("🆕 New Raydium pool detected")
	if d.onPool != nil {
		d.onPool(ev)
	}

	mint := ev.TokenMint().String()
	if d.cfg.SOLPairsOnly && !ev.IsSOLPair() {
		d.stats.Skipped.Add(1)
		log.Debug("Skipping non-SOL pair")
		return ResultSkipped
	}
	if d.positions.Has(mint) {
		d.stats.Skipped.Add(1)
		log.Info("⏭️ Already holding this token, skipping pool")
		return ResultSkipped
	}

	inputs := d.facts.Collect(ctx, ev)
	verdict := d.evaluator.Evaluate(ev, inputs)
	if d.onVerdict != nil {
		d.onVerdict(ev, verdict)
	}
	if !verdict.Accepted {
		d.stats.Rejected.Add(1)
		log.WithField("reasons", verdict.Reasons).Info("🚫 Pool rejected by safety checks")
		return ResultRejected
	}
	d.stats.Accepted.Add(1)
	log.WithField("warnings", verdict.Warnings).Info("✅ Pool passed safety checks")

	if !d.gate.MayEnter(mint) {
		d.stats.RateLimited.Add(1)
		log.Info("⏳ Trade limit or cooldown active, not entering")
		return ResultRateLimited
	}

	return d.enter(ctx, ev, inputs, log)
}

func (d *Detector) enter(ctx context.Context, ev raydium.PoolEvent, in safety.Inputs, log logrus.FieldLogger) Result {
	amountIn := utils.SOLToLamports(d.cfg.TradeSizeSOL)
	minOut := d.minOut(in)

	var (
		fill     position.Fill
		err      error
		attempts int
	)
	for attempts = 1; attempts <= d.cfg.MaxRetries+1; attempts++ {
		buyCtx, cancel := context.WithTimeout(ctx, d.cfg.BuyTimeout)
		fill, err = d.buyer.SubmitBuy(buyCtx, ev, amountIn, minOut)
		cancel()
		if err == nil {
			break
		}
		log.WithError(err).WithField("attempt", attempts).Warn("❌ Buy attempt failed")
		if ctx.Err() != nil || attempts > d.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(d.cfg.RetryDelay):
		}
	}

	if err != nil {
		d.stats.BuyFailed.Add(1)
		log.WithError(err).WithField("attempts", attempts).Error("💥 Buy failed, giving up on pool")
		d.trade(TradeEvent{Pool: ev, Attempts: attempts, Err: err})
		return ResultBuyFailed
	}

	// Only a confirmed buy counts against the limiter.
	d.gate.RecordTrade(ev.TokenMint().String())

	snap, err := d.snapshot(ev, in, fill)
	if err == nil {
		snap, err = d.positions.Open(ctx, snap)
	}
	if err != nil {
		d.stats.BuyFailed.Add(1)
		log.WithError(err).WithField("signature", fill.Signature).Error("💥 Bought but position could not be tracked")
		d.trade(TradeEvent{Pool: ev, Fill: fill, Attempts: attempts, Err: err})
		return ResultBuyFailed
	}

	d.stats.Bought.Add(1)
	log.WithFields(logrus.Fields{
		"signature":   fill.Signature,
		"entry_price": snap.EntryPrice.String(),
		"amount":      snap.AmountBase.String(),
		"cost_sol":    snap.CostQuote.String(),
		"dry_run":     fill.DryRun,
	}).Info("🚀 Position opened")
	d.trade(TradeEvent{Pool: ev, Position: snap, Fill: fill, Attempts: attempts})
	return ResultBought
}

func (d *Detector) trade(ev TradeEvent) {
	if d.onTrade != nil {
		d.onTrade(ev)
	}
}

// minOut is the expected constant-product output less slippage, or zero
// when reserves or decimals are unknown.
func (d *Detector) minOut(in safety.Inputs) uint64 {
	if in.Reserves == nil || in.Metadata == nil {
		return 0
	}
	expected := utils.ConstantProductOut(in.Reserves.SOL, in.Reserves.Token, d.cfg.TradeSizeSOL)
	return utils.ApplySlippageBP(utils.FromUIAmount(expected, in.Metadata.Decimals), d.cfg.SlippageBP)
}

func (d *Detector) snapshot(ev raydium.PoolEvent, in safety.Inputs, fill position.Fill) (position.Snapshot, error) {
	if in.Metadata == nil {
		return position.Snapshot{}, errors.New("token decimals unknown")
	}
	amount := utils.ToUIAmount(fill.AmountOut, in.Metadata.Decimals)
	if !amount.IsPositive() {
		return position.Snapshot{}, fmt.Errorf("fill %s received no tokens", fill.Signature)
	}
	cost := utils.LamportsToSOL(fill.AmountIn)

	price := fill.Price
	if !price.IsPositive() {
		price = cost.Div(amount)
	}

	solVault, _ := ev.SOLVault()
	return position.Snapshot{
		TokenMint:     ev.TokenMint(),
		PoolAddress:   ev.PoolAddress,
		TokenVault:    ev.TokenVault(),
		SOLVault:      solVault,
		TokenDecimals: in.Metadata.Decimals,
		EntryPrice:    price,
		AmountBase:    amount,
		CostQuote:     cost,
		EntrySig:      fill.Signature,
	}, nil
}
