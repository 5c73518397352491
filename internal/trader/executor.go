// internal/trader/executor.go
package trader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// ErrSlippage is returned when the quoted output is below the caller's floor.
var ErrSlippage = errors.New("quoted output below minimum")

// ExecError is a failed buy or sell. Stage says how far it got.
type ExecError struct {
	Op    string // buy | sell
	Stage string // quote | swap | sign | send | confirm
	Mint  solana.PublicKey
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s %s failed at %s: %v", e.Op, e.Mint, e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Swapper produces quotes and unsigned swap transactions.
type Swapper interface {
	GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBP int) (Quote, error)
	GetSwapTransaction(ctx context.Context, quote Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error)
}

// Signer signs transactions with the trading wallet.
type Signer interface {
	PublicKey() solana.PublicKey
	SignSerialized(raw []byte) ([]byte, error)
	BuildTipTransaction(tipAccount solana.PublicKey, lamports uint64, blockhash solana.Hash) ([]byte, error)
}

// Chain submits and confirms transactions over RPC and reads back what a
// confirmed transaction moved.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendRawTransaction(ctx context.Context, raw []byte, skipPreflight bool) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature, interval time.Duration) error
	GetBalanceChange(ctx context.Context, sig solana.Signature, owner, mint solana.PublicKey) (client.BalanceChange, error)
}

const (
	settleAttempts = 5
	// landedCheckPolls bounds the status check after a failed fallback send.
	landedCheckPolls = 4
)

// Bundler submits Jito bundles.
type Bundler interface {
	GetRandomTipAccount(ctx context.Context) (solana.PublicKey, error)
	SendBundle(ctx context.Context, transactions [][]byte) (string, error)
	ConfirmBundle(ctx context.Context, bundleID string, interval time.Duration) error
}

// Config controls execution.
type Config struct {
	DryRun              bool
	SlippageBP          int
	PriorityFeeLamports uint64
	SkipPreflight       bool
	ConfirmTimeout      time.Duration
	ConfirmInterval     time.Duration
	UseJito             bool
	JitoTipLamports     uint64
}

// Executor buys and sells through Jupiter. In dry-run mode nothing is
// signed or sent and fills are reported at the quoted amounts.
type Executor struct {
	cfg     Config
	swapper Swapper
	signer  Signer
	chain   Chain
	bundler Bundler
	logger  logrus.FieldLogger

	dryRunSeq atomic.Uint64
}

// NewExecutor creates an executor. bundler may be nil when Jito is disabled.
func NewExecutor(cfg Config, swapper Swapper, signer Signer, chain Chain, bundler Bundler, logger logrus.FieldLogger) *Executor {
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if bundler == nil {
		cfg.UseJito = false
	}
	return &Executor{
		cfg:     cfg,
		swapper: swapper,
		signer:  signer,
		chain:   chain,
		bundler: bundler,
		logger:  logger,
	}
}

// SubmitBuy swaps amountIn lamports of SOL into the pool's token. Fill.Price
// is left zero; the caller knows the token decimals.
func (e *Executor) SubmitBuy(ctx context.Context, ev raydium.PoolEvent, amountIn, minOut uint64) (position.Fill, error) {
	return e.swap(ctx, "buy", raydium.WSOLMint, ev.TokenMint(), amountIn, minOut)
}

// SubmitSell swaps the whole position back to SOL.
func (e *Executor) SubmitSell(ctx context.Context, s position.Snapshot, minOut uint64) (position.Fill, error) {
	amount := utils.FromUIAmount(s.AmountBase, s.TokenDecimals)
	if amount == 0 {
		return position.Fill{}, &ExecError{Op: "sell", Stage: "quote", Mint: s.TokenMint, Err: fmt.Errorf("position amount is zero")}
	}

	fill, err := e.swap(ctx, "sell", s.TokenMint, raydium.WSOLMint, amount, minOut)
	if err != nil {
		return position.Fill{}, err
	}
	if s.AmountBase.IsPositive() {
		fill.Price = utils.LamportsToSOL(fill.AmountOut).Div(s.AmountBase)
	}
	return fill, nil
}

func (e *Executor) swap(ctx context.Context, op string, inMint, outMint solana.PublicKey, amount, minOut uint64) (position.Fill, error) {
	token := outMint
	if op == "sell" {
		token = inMint
	}
	fail := func(stage string, err error) (position.Fill, error) {
		return position.Fill{}, &ExecError{Op: op, Stage: stage, Mint: token, Err: err}
	}

	quote, err := e.swapper.GetQuote(ctx, inMint, outMint, amount, e.cfg.SlippageBP)
	if err != nil {
		return fail("quote", err)
	}
	if minOut > 0 && quote.OutAmount < minOut {
		return fail("quote", fmt.Errorf("%w: quoted %d < %d", ErrSlippage, quote.OutAmount, minOut))
	}

	log := e.logger.WithFields(logrus.Fields{
		"op":         op,
		"mint":       token.String(),
		"amount_in":  amount,
		"out_quoted": quote.OutAmount,
		"min_out":    minOut,
	})

	if e.cfg.DryRun {
		n := e.dryRunSeq.Add(1)
		log.Info("🧪 Dry run: swap simulated at quoted price")
		return position.Fill{
			Signature: fmt.Sprintf("dry-run-%s-%d", op, n),
			AmountIn:  amount,
			AmountOut: quote.OutAmount,
			DryRun:    true,
		}, nil
	}

	unsigned, err := e.swapper.GetSwapTransaction(ctx, quote, e.signer.PublicKey(), e.cfg.PriorityFeeLamports)
	if err != nil {
		return fail("swap", err)
	}
	signed, err := e.signer.SignSerialized(unsigned)
	if err != nil {
		return fail("sign", err)
	}
	sig, err := FirstSignature(signed)
	if err != nil {
		return fail("sign", err)
	}

	if e.cfg.UseJito {
		bundleCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
		err := e.sendBundle(bundleCtx, signed)
		cancel()
		if err == nil {
			log.WithField("signature", sig.String()).Info("🛡️ Jito-protected swap confirmed")
			return e.settle(ctx, op, sig, token, amount, quote, log), nil
		}
		log.WithError(err).Warn("🔄 Jito submission failed, falling back to regular transaction")
	}

	// The fallback resends the same signed transaction, so it lands at most once.
	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	if _, err := e.chain.SendRawTransaction(confirmCtx, signed, e.cfg.SkipPreflight); err != nil {
		if !e.cfg.UseJito || !e.landed(confirmCtx, sig) {
			return fail("send", err)
		}
		log.WithField("signature", sig.String()).Info("🛡️ Swap landed through the bundle after all")
		return e.settle(ctx, op, sig, token, amount, quote, log), nil
	}
	if err := e.chain.WaitForConfirmation(confirmCtx, sig, e.cfg.ConfirmInterval); err != nil {
		return fail("confirm", err)
	}

	log.WithField("signature", sig.String()).Info("✅ Swap confirmed")
	return e.settle(ctx, op, sig, token, amount, quote, log), nil
}

// landed reports whether sig confirmed within a few status polls.
func (e *Executor) landed(ctx context.Context, sig solana.Signature) bool {
	interval := e.cfg.ConfirmInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	checkCtx, cancel := context.WithTimeout(ctx, landedCheckPolls*interval)
	defer cancel()
	return e.chain.WaitForConfirmation(checkCtx, sig, interval) == nil
}

// settle reports the amounts the wallet actually received. A buy's output
// is the token balance change and a sell's the native balance change. When
// the transaction cannot be read back the quote's guaranteed minimum is
// used, which is never more than what arrived.
func (e *Executor) settle(ctx context.Context, op string, sig solana.Signature, token solana.PublicKey, amount uint64, quote Quote, log logrus.FieldLogger) position.Fill {
	fill := position.Fill{Signature: sig.String(), AmountIn: amount}

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ConfirmTimeout)
	defer cancel()

	var (
		change client.BalanceChange
		err    error
	)
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		change, err = e.chain.GetBalanceChange(readCtx, sig, e.signer.PublicKey(), token)
		if err == nil || !errors.Is(err, client.ErrAccountNotFound) {
			break
		}
		select {
		case <-readCtx.Done():
		case <-time.After(e.settleDelay()):
		}
	}

	received := change.Token
	if op == "sell" {
		received = change.Lamports
	}
	if err == nil && received > 0 {
		fill.AmountOut = uint64(received)
		if fill.AmountOut != quote.OutAmount {
			log.WithFields(logrus.Fields{
				"received": fill.AmountOut,
				"quoted":   quote.OutAmount,
			}).Info("📏 Fill differs from quote")
		}
		return fill
	}

	fill.AmountOut = quote.MinOutAmount
	if fill.AmountOut == 0 {
		fill.AmountOut = quote.OutAmount
	}
	entry := log.WithField("amount_out", fill.AmountOut)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("⚠️ Could not read the settled amount, using the quoted minimum")
	return fill
}

func (e *Executor) settleDelay() time.Duration {
	if e.cfg.ConfirmInterval > 0 {
		return e.cfg.ConfirmInterval
	}
	return 500 * time.Millisecond
}

func (e *Executor) sendBundle(ctx context.Context, signed []byte) error {
	blockhash, err := e.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return err
	}
	tipAccount, err := e.bundler.GetRandomTipAccount(ctx)
	if err != nil {
		return err
	}
	tip, err := e.signer.BuildTipTransaction(tipAccount, e.cfg.JitoTipLamports, blockhash)
	if err != nil {
		return err
	}

	bundleID, err := e.bundler.SendBundle(ctx, [][]byte{signed, tip})
	if err != nil {
		return err
	}
	return e.bundler.ConfirmBundle(ctx, bundleID, e.cfg.ConfirmInterval)
}

// FirstSignature returns the fee payer signature of a serialized transaction.
func FirstSignature(raw []byte) (solana.Signature, error) {
	if len(raw) < 1+64 {
		return solana.Signature{}, fmt.Errorf("transaction too short: %d bytes", len(raw))
	}
	if raw[0] == 0 || raw[0] >= 0x80 {
		return solana.Signature{}, fmt.Errorf("unexpected signature count byte %#x", raw[0])
	}
	return solana.SignatureFromBytes(raw[1:65]), nil
}
