package sniper

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/market"
	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/ratelimit"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func poolEvent() raydium.PoolEvent {
	return raydium.PoolEvent{
		PoolAddress: newKey(),
		BaseMint:    newKey(),
		QuoteMint:   raydium.WSOLMint,
		BaseVault:   newKey(),
		QuoteVault:  newKey(),
		Variant:     raydium.VariantCPMM,
		Raw: raydium.RawFields{
			OpenTime:        1_700_000_000,
			InitBaseAmount:  1_000_000_000_000,
			InitQuoteAmount: 10_000_000_000,
			LPMint:          newKey(),
		},
	}
}

func cpmmLogs(record []byte) []string {
	return []string{
		"Program " + raydium.CPMMProgramID.String() + " invoke [1]",
		"Program log: Instruction: Initialize",
		"Program log: ray_log: " + base64.StdEncoding.EncodeToString(record),
		"Program " + raydium.CPMMProgramID.String() + " success",
	}
}

func cpmmInitTx(ev raydium.PoolEvent) raydium.Transaction {
	return raydium.Transaction{
		Signature: "sig-" + ev.PoolAddress.String()[:8],
		Slot:      42,
		Logs:      cpmmLogs(raydium.EncodeRayLogInit(ev)),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// safeInputs passes every rule of safetyConfig.
func safeInputs() safety.Inputs {
	liq := dec("10")
	return safety.Inputs{
		Metadata:     &safety.TokenMetadata{Supply: 1_000_000_000_000, Decimals: 6},
		LiquiditySOL: &liq,
		Reserves:     &safety.Reserves{SOL: liq, Token: dec("1000000")},
		Holders:      &safety.HolderStats{Count: 250},
	}
}

func safetyConfig() safety.Config {
	cfg := safety.DefaultConfig()
	cfg.RiskFallback = safety.FallbackPassWithWarning
	return cfg
}

type fakeFacts struct {
	inputs safety.Inputs
	calls  int
}

func (f *fakeFacts) Collect(context.Context, raydium.PoolEvent) safety.Inputs {
	f.calls++
	return f.inputs
}

type fakeBuyer struct {
	failures int
	err      error
	calls    int
	minOuts  []uint64
	fill     position.Fill
}

func (f *fakeBuyer) SubmitBuy(_ context.Context, _ raydium.PoolEvent, amountIn, minOut uint64) (position.Fill, error) {
	f.calls++
	f.minOuts = append(f.minOuts, minOut)
	if f.calls <= f.failures {
		return position.Fill{}, f.err
	}
	fill := f.fill
	fill.AmountIn = amountIn
	return fill, nil
}

type nopPrices struct{}

func (nopPrices) GetPrice(context.Context, position.Snapshot) (decimal.Decimal, error) {
	return decimal.Zero, position.ErrPriceUnavailable
}

type nopSeller struct{}

func (nopSeller) SubmitSell(context.Context, position.Snapshot, uint64) (position.Fill, error) {
	return position.Fill{}, errors.New("not selling in tests")
}

type harness struct {
	detector *Detector
	facts    *fakeFacts
	buyer    *fakeBuyer
	limiter  *ratelimit.Limiter
	monitor  *position.Monitor
	stats    *Stats
	trades   []TradeEvent
	verdicts []safety.Verdict
}

func newHarness(t *testing.T, maxTrades int, mutate func(*Config)) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()

	evaluator, err := safety.NewEvaluator(safetyConfig(), logger)
	require.NoError(t, err)

	h := &harness{
		facts:   &fakeFacts{inputs: safeInputs()},
		buyer:   &fakeBuyer{err: errors.New("blockhash expired"), fill: position.Fill{Signature: "buy-sig", AmountOut: 9_000_000_000}},
		limiter: ratelimit.New(maxTrades, time.Hour, time.Minute),
		monitor: position.NewMonitor(position.Config{}, nopPrices{}, nopSeller{}),
		stats:   NewStats(),
	}
	cfg := Config{
		SOLPairsOnly: true,
		TradeSizeSOL: dec("0.1"),
		SlippageBP:   500,
		MaxRetries:   2,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.detector = NewDetector(cfg, h.facts, evaluator, h.limiter, h.buyer, h.monitor, h.stats, logger,
		WithTradeHook(func(ev TradeEvent) { h.trades = append(h.trades, ev) }),
		WithVerdictHook(func(_ raydium.PoolEvent, v safety.Verdict) { h.verdicts = append(h.verdicts, v) }),
	)
	return h
}

func TestDetector_CPMMPoolBought(t *testing.T) {
	h := newHarness(t, 5, nil)
	ev := poolEvent()

	res := h.detector.Process(context.Background(), cpmmInitTx(ev))
	require.Equal(t, ResultBought, res)

	require.Len(t, h.verdicts, 1)
	assert.True(t, h.verdicts[0].Accepted)
	assert.Empty(t, h.verdicts[0].Reasons)

	snap, err := h.monitor.Get(ev.BaseMint.String())
	require.NoError(t, err)
	assert.Equal(t, ev.PoolAddress, snap.PoolAddress)
	assert.Equal(t, ev.BaseVault, snap.TokenVault)
	assert.Equal(t, ev.QuoteVault, snap.SOLVault)
	assert.Equal(t, uint8(6), snap.TokenDecimals)
	assert.True(t, dec("9000").Equal(snap.AmountBase), snap.AmountBase.String())
	assert.True(t, dec("0.1").Equal(snap.CostQuote), snap.CostQuote.String())
	assert.True(t, dec("0.1").Div(dec("9000")).Equal(snap.EntryPrice))
	assert.Equal(t, "buy-sig", snap.EntrySig)

	// 0.1 SOL into 10 SOL / 1M tokens yields ~9900.99 tokens, less 5%.
	require.Len(t, h.buyer.minOuts, 1)
	assert.Equal(t, uint64(9_405_940_594), h.buyer.minOuts[0])

	assert.Equal(t, 1, h.limiter.Stats().TradesInWindow)
	require.Len(t, h.trades, 1)
	assert.NoError(t, h.trades[0].Err)
	assert.Equal(t, 1, h.trades[0].Attempts)
	assert.EqualValues(t, 1, h.stats.Bought.Load())
}

func TestDetector_RejectedPoolIsNotBought(t *testing.T) {
	h := newHarness(t, 5, nil)
	authority := newKey()
	h.facts.inputs.Metadata.MintAuthority = &authority

	res := h.detector.Process(context.Background(), cpmmInitTx(poolEvent()))
	assert.Equal(t, ResultRejected, res)
	assert.Zero(t, h.buyer.calls)
	require.Len(t, h.verdicts, 1)
	assert.Equal(t, []string{safety.ReasonMintable}, h.verdicts[0].Reasons)
	assert.EqualValues(t, 1, h.stats.Rejected.Load())
}

func TestDetector_BuyRetries(t *testing.T) {
	h := newHarness(t, 5, nil)
	h.buyer.failures = 2

	res := h.detector.Process(context.Background(), cpmmInitTx(poolEvent()))
	assert.Equal(t, ResultBought, res)
	assert.Equal(t, 3, h.buyer.calls)
	require.Len(t, h.trades, 1)
	assert.Equal(t, 3, h.trades[0].Attempts)
}

func TestDetector_FailedBuyDoesNotChargeLimiter(t *testing.T) {
	h := newHarness(t, 5, nil)
	h.buyer.failures = 10
	ev := poolEvent()

	res := h.detector.Process(context.Background(), cpmmInitTx(ev))
	assert.Equal(t, ResultBuyFailed, res)
	assert.Equal(t, 3, h.buyer.calls)
	assert.Zero(t, h.limiter.Stats().TradesInWindow)
	assert.True(t, h.limiter.MayEnter(ev.BaseMint.String()))
	assert.False(t, h.monitor.Has(ev.BaseMint.String()))
	require.Len(t, h.trades, 1)
	assert.ErrorContains(t, h.trades[0].Err, "blockhash expired")
}

func TestDetector_SkipsHeldTokenAndNonSOLPairs(t *testing.T) {
	h := newHarness(t, 5, nil)
	ev := poolEvent()

	require.Equal(t, ResultBought, h.detector.Process(context.Background(), cpmmInitTx(ev)))

	// Second pool for the same token.
	again := ev
	again.PoolAddress = newKey()
	again.BaseVault = newKey()
	again.QuoteVault = newKey()
	assert.Equal(t, ResultSkipped, h.detector.Process(context.Background(), cpmmInitTx(again)))

	usdc := poolEvent()
	usdc.QuoteMint = newKey()
	assert.Equal(t, ResultSkipped, h.detector.Process(context.Background(), cpmmInitTx(usdc)))
	assert.Equal(t, 1, h.facts.calls)
	assert.EqualValues(t, 2, h.stats.Skipped.Load())
}

func TestDetector_RateLimited(t *testing.T) {
	h := newHarness(t, 1, nil)

	require.Equal(t, ResultBought, h.detector.Process(context.Background(), cpmmInitTx(poolEvent())))
	assert.Equal(t, ResultRateLimited, h.detector.Process(context.Background(), cpmmInitTx(poolEvent())))
	assert.Equal(t, 1, h.buyer.calls)
}

func TestDetector_UnrelatedAndMalformed(t *testing.T) {
	h := newHarness(t, 5, nil)
	var skipped []raydium.Classification
	WithDecodeSkipHook(func(c raydium.Classification) { skipped = append(skipped, c) })(h.detector)

	res := h.detector.Process(context.Background(), raydium.Transaction{Signature: "x", Logs: []string{"Program log: hello"}})
	assert.Equal(t, ResultUnrelated, res)

	record := raydium.EncodeRayLogInit(poolEvent())
	res = h.detector.Process(context.Background(), raydium.Transaction{Signature: "y", Logs: cpmmLogs(record[:40])})
	assert.Equal(t, ResultMalformed, res)
	require.Len(t, skipped, 1)
	assert.Equal(t, raydium.KindTruncated, raydium.KindOf(skipped[0].Err))
	assert.Zero(t, h.facts.calls)
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 5, nil)
	queue := make(chan raydium.Transaction, 1)
	queue <- cpmmInitTx(poolEvent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.detector.Run(ctx, queue)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.stats.Bought.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detector did not stop")
	}
}

type fakeSubscriber struct {
	handlers map[string]client.LogsHandler
}

func (f *fakeSubscriber) SubscribeLogs(programID, _ string, handler client.LogsHandler) (int, error) {
	if f.handlers == nil {
		f.handlers = make(map[string]client.LogsHandler)
	}
	f.handlers[programID] = handler
	return len(f.handlers), nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	notFound int
	calls    int
	tx       raydium.Transaction
}

func (f *fakeFetcher) GetTransaction(_ context.Context, signature string) (raydium.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.notFound {
		return raydium.Transaction{}, client.ErrAccountNotFound
	}
	tx := f.tx
	tx.Signature = signature
	return tx, nil
}

func notification(sig string, slot uint64, logs []string, failed bool) client.LogsNotification {
	var n client.LogsNotification
	n.Result.Context.Slot = slot
	n.Result.Value.Signature = sig
	n.Result.Value.Logs = logs
	if failed {
		n.Result.Value.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	}
	return n
}

func TestListener_ForwardsCPMMInitsOnly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sub := &fakeSubscriber{}
	stats := NewStats()
	l := NewListener(sub, nil, ListenerConfig{QueueSize: 1}, stats, logger)
	require.NoError(t, l.Start())

	handle := sub.handlers[raydium.CPMMProgramID.String()]
	require.NotNil(t, handle)
	_, v4 := sub.handlers[raydium.AmmV4ProgramID.String()]
	assert.False(t, v4, "no fetcher, no V4 subscription")

	swap := []byte{3, 4, 0, 1, 2, 3, 4}
	handle(notification("swap", 1, cpmmLogs(swap), false))
	handle(notification("failed", 1, cpmmLogs(raydium.EncodeRayLogInit(poolEvent())), true))

	initLogs := cpmmLogs(raydium.EncodeRayLogInit(poolEvent()))
	handle(notification("init", 7, initLogs, false))
	handle(notification("init", 7, initLogs, false))

	select {
	case tx := <-l.Transactions():
		assert.Equal(t, "init", tx.Signature)
		assert.Equal(t, uint64(7), tx.Slot)
		assert.Equal(t, initLogs, tx.Logs)
	default:
		t.Fatal("init transaction not forwarded")
	}
	assert.Empty(t, l.Transactions())
	assert.EqualValues(t, 4, stats.Received.Load())
	assert.EqualValues(t, 1, stats.Forwarded.Load())
}

func TestListener_DropsWhenQueueFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sub := &fakeSubscriber{}
	stats := NewStats()
	l := NewListener(sub, nil, ListenerConfig{QueueSize: 1}, stats, logger)
	require.NoError(t, l.Start())
	handle := sub.handlers[raydium.CPMMProgramID.String()]

	handle(notification("a", 1, cpmmLogs(raydium.EncodeRayLogInit(poolEvent())), false))
	handle(notification("b", 1, cpmmLogs(raydium.EncodeRayLogInit(poolEvent())), false))

	assert.EqualValues(t, 1, stats.Dropped.Load())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "dropping")
}

func TestListener_FetchesHintedV4Transactions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sub := &fakeSubscriber{}
	fetcher := &fakeFetcher{notFound: 1, tx: raydium.Transaction{Logs: []string{"fetched"}}}
	l := NewListener(sub, fetcher, ListenerConfig{FetchRetryDelay: time.Millisecond}, nil, logger)
	require.NoError(t, l.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	handle := sub.handlers[raydium.AmmV4ProgramID.String()]
	require.NotNil(t, handle)

	handle(notification("swap", 3, []string{
		"Program " + raydium.AmmV4ProgramID.String() + " invoke [1]",
		"Program log: ray_log: AwAAAA==",
		"Program " + raydium.AmmV4ProgramID.String() + " success",
	}, false))
	handle(notification("v4init", 9, []string{
		"Program " + raydium.AmmV4ProgramID.String() + " invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
		"Program " + raydium.AmmV4ProgramID.String() + " success",
	}, false))

	select {
	case tx := <-l.Transactions():
		assert.Equal(t, "v4init", tx.Signature)
		assert.Equal(t, uint64(9), tx.Slot)
		assert.Equal(t, []string{"fetched"}, tx.Logs)
	case <-time.After(2 * time.Second):
		t.Fatal("V4 transaction not fetched")
	}
	fetcher.mu.Lock()
	assert.Equal(t, 2, fetcher.calls)
	fetcher.mu.Unlock()
}

type fakeMetadata struct{ meta *safety.TokenMetadata }

func (f fakeMetadata) GetTokenMetadata(context.Context, solana.PublicKey) (*safety.TokenMetadata, error) {
	return f.meta, nil
}

type fakeReserves struct{ err error }

func (f fakeReserves) GetPoolReserves(context.Context, raydium.PoolEvent) (safety.Reserves, error) {
	if f.err != nil {
		return safety.Reserves{}, f.err
	}
	return safety.Reserves{SOL: dec("12.5"), Token: dec("800000")}, nil
}

type fakeLargest struct{ holdings []client.TokenHolding }

func (f fakeLargest) GetTokenLargestAccounts(context.Context, solana.PublicKey) ([]client.TokenHolding, error) {
	return f.holdings, nil
}

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) GetHolderCount(context.Context, solana.PublicKey) (int, error) { return f.n, f.err }

type fakeRisk struct{ report market.RiskReport }

func (f fakeRisk) GetRiskReport(context.Context, solana.PublicKey) (market.RiskReport, error) {
	return f.report, nil
}

type fakeVolume struct{}

func (fakeVolume) Name() string { return "fake" }

func (fakeVolume) GetVolume24h(context.Context, solana.PublicKey) (safety.VolumeSample, error) {
	return safety.VolumeSample{Source: "fake", Value: dec("1000"), Confidence: dec("0.8")}, nil
}

func TestCollector_GathersAndMergesHolders(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ev := poolEvent()

	c := NewCollector(FactSources{
		Metadata: fakeMetadata{meta: &safety.TokenMetadata{Supply: 1_000_000, Decimals: 0}},
		Reserves: fakeReserves{},
		Largest: fakeLargest{holdings: []client.TokenHolding{
			{Address: ev.BaseVault, Amount: 900_000},
			{Address: newKey(), Amount: 30_000},
			{Address: newKey(), Amount: 10_000},
		}},
		HolderCount: fakeCounter{err: errors.New("birdeye down")},
		Volumes:     []market.VolumeSource{fakeVolume{}},
		Risk: fakeRisk{report: market.RiskReport{
			RiskReport:   safety.RiskReport{Score: dec("80")},
			TotalHolders: 321,
		}},
	}, FactConfig{}, logger)

	in := c.Collect(context.Background(), ev)
	require.NotNil(t, in.Metadata)
	require.NotNil(t, in.LiquiditySOL)
	assert.True(t, dec("12.5").Equal(*in.LiquiditySOL))
	require.NotNil(t, in.Reserves)
	require.Len(t, in.Volumes, 1)
	require.NotNil(t, in.Risk)
	assert.True(t, dec("80").Equal(in.Risk.Score))

	require.NoError(t, in.HoldersErr)
	require.NotNil(t, in.Holders)
	assert.Equal(t, 321, in.Holders.Count)
	require.NotNil(t, in.Holders.TopHolderPct)
	assert.True(t, dec("3").Equal(*in.Holders.TopHolderPct), in.Holders.TopHolderPct.String())
}

func TestCollector_RecordsUnavailableFacts(t *testing.T) {
	logger, _ := test.NewNullLogger()

	c := NewCollector(FactSources{
		Metadata: fakeMetadata{meta: &safety.TokenMetadata{Supply: 10, Decimals: 0}},
		Reserves: fakeReserves{err: errors.New("vault missing")},
	}, FactConfig{Timeout: time.Second}, logger)

	in := c.Collect(context.Background(), poolEvent())
	assert.Nil(t, in.LiquiditySOL)
	assert.ErrorContains(t, in.LiquidityErr, "vault missing")
	assert.Nil(t, in.Reserves)
	assert.Nil(t, in.Holders)
	assert.Error(t, in.HoldersErr)
	assert.Nil(t, in.Risk)
	assert.NoError(t, in.RiskErr, "no risk provider means the rule is not requested")
}

type fakeCreation struct {
	at  time.Time
	err error
}

func (f fakeCreation) GetTokenCreationTime(context.Context, solana.PublicKey) (time.Time, error) {
	return f.at, f.err
}

func TestCollector_TokenAge(t *testing.T) {
	logger, _ := test.NewNullLogger()
	now := time.Unix(1_700_000_000, 0)

	c := NewCollector(FactSources{CreationTime: fakeCreation{at: now.Add(-26 * time.Hour)}}, FactConfig{}, logger)
	c.now = func() time.Time { return now }
	in := c.Collect(context.Background(), poolEvent())
	require.NotNil(t, in.TokenAge)
	assert.Equal(t, 26*time.Hour, *in.TokenAge)
	assert.NoError(t, in.TokenAgeErr)

	c = NewCollector(FactSources{CreationTime: fakeCreation{err: market.ErrNoData}}, FactConfig{}, logger)
	in = c.Collect(context.Background(), poolEvent())
	assert.Nil(t, in.TokenAge)
	assert.ErrorIs(t, in.TokenAgeErr, market.ErrNoData)

	// not configured
	c = NewCollector(FactSources{}, FactConfig{}, logger)
	in = c.Collect(context.Background(), poolEvent())
	assert.Nil(t, in.TokenAge)
	assert.NoError(t, in.TokenAgeErr)
}
