package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/internal/sniper"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() raydium.PoolEvent {
	return raydium.PoolEvent{
		PoolAddress: solana.NewWallet().PublicKey(),
		BaseMint:    solana.NewWallet().PublicKey(),
		QuoteMint:   raydium.WSOLMint,
		BaseVault:   solana.NewWallet().PublicKey(),
		QuoteVault:  solana.NewWallet().PublicKey(),
		Variant:     raydium.VariantCPMM,
		Raw:         raydium.RawFields{Signature: "sig", Slot: 7},
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level loud")
}

func TestNewLogger_WritesToStdoutAndFile(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "bot.log")

	l, err := newLogger(LogConfig{Level: "info", Format: "json", LogToFile: true, LogFilePath: path}, &out)
	require.NoError(t, err)
	l.WithComponent("test").Info("hello")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Contains(t, entry, "timestamp")
}

func TestCustomFormatter_SortsFields(t *testing.T) {
	f := &CustomFormatter{DisableColors: true}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "⚠️ something",
		Data:    logrus.Fields{"zeta": 1, "alpha": "a"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 12:30:00.000 [WARNING] ⚠️ something | alpha=a zeta=1\n", string(out))
}

func TestLogPoolDetected_Levels(t *testing.T) {
	l, err := newLogger(LogConfig{Level: "debug"}, &bytes.Buffer{})
	require.NoError(t, err)
	hook := test.NewLocal(l.Logger)

	now := time.Unix(1_700_000_100, 0)
	ev := testPool()

	ev.Raw.OpenTime = 1_700_000_090
	l.logPoolDetected(ev, now)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "pool_detected", entry.Data["event"])
	assert.Equal(t, int64(10_000), entry.Data["pool_age_ms"])
	assert.Equal(t, ev.PoolAddress.String(), entry.Data["pool"])

	ev.Raw.OpenTime = 1_700_000_000
	l.logPoolDetected(ev, now)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	ev.Raw.OpenTime = 1_700_000_500
	l.logPoolDetected(ev, now)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.NotContains(t, hook.LastEntry().Data, "pool_age_ms")
}

func TestEventHelpers(t *testing.T) {
	l, err := newLogger(LogConfig{Level: "debug"}, &bytes.Buffer{})
	require.NoError(t, err)
	hook := test.NewLocal(l.Logger)
	ev := testPool()

	l.LogVerdict(ev, safety.Verdict{Reasons: []string{safety.ReasonMintable, safety.ReasonLowLiquidity}})
	entry := hook.LastEntry()
	assert.Equal(t, "verdict", entry.Data["event"])
	assert.Equal(t, false, entry.Data["accepted"])
	assert.Equal(t, safety.ReasonMintable+","+safety.ReasonLowLiquidity, entry.Data["reasons"])

	l.LogDecodeSkip(raydium.Classification{
		Outcome: raydium.OutcomeMalformed,
		Err:     &raydium.DecodeError{Kind: raydium.KindTruncated, Variant: raydium.VariantCPMM, Detail: "short"},
	})
	assert.Equal(t, "truncated", hook.LastEntry().Data["kind"])

	l.LogTrade(sniper.TradeEvent{Pool: ev, Attempts: 2, Err: errors.New("no route")})
	entry = hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "trade_error", entry.Data["event"])
	assert.Equal(t, 2, entry.Data["attempts"])

	l.LogExit(position.ExitEvent{
		Position: position.Snapshot{TokenMint: ev.BaseMint},
		Reason:   position.ExitStopLoss,
		Price:    decimal.RequireFromString("0.5"),
		PnLPct:   decimal.NewFromInt(-50),
		HeldFor:  3*time.Minute + 400*time.Millisecond,
	})
	entry = hook.LastEntry()
	assert.Equal(t, "exit", entry.Data["event"])
	assert.Equal(t, "-50.00", entry.Data["pnl_pct"])
	assert.Equal(t, "3m0s", entry.Data["held_for"])

	l.LogStats(map[string]interface{}{"received": int64(4)}, 2)
	entry = hook.LastEntry()
	assert.Equal(t, "stats", entry.Data["event"])
	assert.Equal(t, 2, entry.Data["open_positions"])
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestTradeLogger_Journal(t *testing.T) {
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	tl, err := NewTradeLogger(dir, log)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tl.now = func() time.Time { return now }

	ev := testPool()
	snap := position.Snapshot{
		TokenMint:   ev.BaseMint,
		PoolAddress: ev.PoolAddress,
		EntryPrice:  decimal.RequireFromString("0.00001"),
		AmountBase:  decimal.NewFromInt(10_000),
		CostQuote:   decimal.RequireFromString("0.1"),
		EntryTime:   now.Add(-2 * time.Minute),
		HighWater:   decimal.RequireFromString("0.00002"),
		LastPrice:   decimal.RequireFromString("0.000015"),
	}

	tl.RecordBuy(sniper.TradeEvent{Pool: ev, Position: snap, Fill: position.Fill{Signature: "buy1"}, Attempts: 1})
	tl.RecordBuy(sniper.TradeEvent{Pool: ev, Attempts: 3, Err: errors.New("slippage")})
	tl.RecordExit(position.ExitEvent{
		Position: snap,
		Reason:   position.ExitTakeProfit,
		Price:    decimal.RequireFromString("0.00002"),
		PnLPct:   decimal.NewFromInt(100),
		HeldFor:  2 * time.Minute,
		Fill:     position.Fill{Signature: "sell1", AmountOut: 200_000_000},
	})
	tl.RecordSellFailure(position.SellFailure{Position: snap, Reason: position.ExitStopLoss, Attempts: 5, Stuck: true})

	trades := readLines(t, filepath.Join(dir, "trades_2024-05-01.jsonl"))
	require.Len(t, trades, 4)
	assert.Equal(t, "buy", trades[0]["trade_type"])
	assert.Equal(t, "success", trades[0]["status"])
	assert.Equal(t, "0.1", trades[0]["amount_sol"])
	assert.Equal(t, "cpmm", trades[0]["variant"])
	assert.Equal(t, "failed", trades[1]["status"])
	assert.Equal(t, "slippage", trades[1]["error_message"])
	assert.Equal(t, "0.2", trades[2]["amount_sol"])
	assert.Equal(t, "0.1", trades[2]["profit_sol"])
	assert.Equal(t, "take_profit", trades[2]["exit_reason"])
	assert.Equal(t, "stuck", trades[3]["status"])

	sum := tl.Summary()
	assert.Equal(t, 1, sum.TotalBuys)
	assert.Equal(t, 1, sum.FailedBuys)
	assert.Equal(t, 1, sum.TotalSells)
	assert.Equal(t, 1, sum.FailedSells)
	assert.True(t, sum.VolumeSOL.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, sum.RealizedSOL.Equal(decimal.RequireFromString("0.1")))

	require.NoError(t, tl.LogPositions([]position.Snapshot{snap}))
	positions := readLines(t, filepath.Join(dir, "positions_2024-05-01.jsonl"))
	require.Len(t, positions, 1)
	assert.Equal(t, "50.00", positions[0]["unrealized_pnl_pct"])
	assert.Equal(t, "2m0s", positions[0]["held_for"])

	require.NoError(t, tl.LogDailySummary())
	data, err := os.ReadFile(filepath.Join(dir, "summary_2024-05-01.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"total_buys": 1`))
}

func TestTradeLogger_SummaryRollsOver(t *testing.T) {
	log, _ := test.NewNullLogger()
	tl, err := NewTradeLogger(t.TempDir(), log)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	tl.now = func() time.Time { return now }

	tl.RecordBuy(sniper.TradeEvent{Pool: testPool(), Attempts: 1, Err: errors.New("x")})
	assert.Equal(t, 1, tl.Summary().FailedBuys)

	now = now.Add(2 * time.Minute)
	sum := tl.Summary()
	assert.Equal(t, "2024-05-02", sum.Date)
	assert.Equal(t, 0, sum.FailedBuys)
}
