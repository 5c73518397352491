package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/sniper"
	"raydium-sniper-bot/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TradeLog represents a trade journal entry
type TradeLog struct {
	Timestamp    time.Time       `json:"timestamp"`
	TradeType    string          `json:"trade_type"` // "buy" or "sell"
	Mint         string          `json:"mint"`
	Pool         string          `json:"pool"`
	Variant      string          `json:"variant,omitempty"`
	AmountSOL    decimal.Decimal `json:"amount_sol"`
	AmountTokens decimal.Decimal `json:"amount_tokens"`
	Price        decimal.Decimal `json:"price"` // SOL per token
	Signature    string          `json:"signature,omitempty"`
	Status       string          `json:"status"` // "success", "failed", "stuck"
	ErrorMessage string          `json:"error_message,omitempty"`
	Attempts     int             `json:"attempts,omitempty"`
	ExitReason   string          `json:"exit_reason,omitempty"`
	PnLPct       string          `json:"pnl_pct,omitempty"`
	ProfitSOL    string          `json:"profit_sol,omitempty"`
	HeldFor      string          `json:"held_for,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
}

// PositionLog represents a position tracking entry
type PositionLog struct {
	Timestamp    time.Time       `json:"timestamp"`
	Mint         string          `json:"mint"`
	Pool         string          `json:"pool"`
	State        string          `json:"state"`
	AmountTokens decimal.Decimal `json:"amount_tokens"`
	CostSOL      decimal.Decimal `json:"cost_sol"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	HighWater    decimal.Decimal `json:"high_water"`
	UnrealizedPL string          `json:"unrealized_pnl_pct"`
	HeldFor      string          `json:"held_for"`
}

// Summary is the running daily journal summary.
type Summary struct {
	Date        string          `json:"date"`
	Timestamp   time.Time       `json:"timestamp"`
	TotalBuys   int             `json:"total_buys"`
	FailedBuys  int             `json:"failed_buys"`
	TotalSells  int             `json:"total_sells"`
	FailedSells int             `json:"failed_sells"`
	VolumeSOL   decimal.Decimal `json:"total_volume_sol"`
	RealizedSOL decimal.Decimal `json:"realized_pnl_sol"`
}

// TradeLogger appends trades and position snapshots to daily JSONL files.
type TradeLogger struct {
	mu      sync.Mutex
	baseDir string
	logger  logrus.FieldLogger
	now     func() time.Time

	summary Summary
}

// NewTradeLogger creates a new trade logger
func NewTradeLogger(baseDir string, logger logrus.FieldLogger) (*TradeLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trade log directory: %w", err)
	}

	return &TradeLogger{
		baseDir: baseDir,
		logger:  logger,
		now:     time.Now,
		summary: Summary{VolumeSOL: decimal.Zero, RealizedSOL: decimal.Zero},
	}, nil
}

// LogTrade appends a trade to the daily trade file.
func (tl *TradeLogger) LogTrade(trade TradeLog) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if trade.Timestamp.IsZero() {
		trade.Timestamp = tl.now()
	}
	tl.count(trade)
	return tl.appendLine("trades", trade)
}

// RecordBuy journals the outcome of a buy. It matches the detector trade hook.
func (tl *TradeLogger) RecordBuy(ev sniper.TradeEvent) {
	trade := TradeLog{
		TradeType: "buy",
		Mint:      ev.Pool.TokenMint().String(),
		Pool:      ev.Pool.PoolAddress.String(),
		Variant:   ev.Pool.Variant.String(),
		Signature: ev.Fill.Signature,
		Attempts:  ev.Attempts,
		DryRun:    ev.Fill.DryRun,
		Status:    "success",
	}
	if ev.Err != nil {
		trade.Status = "failed"
		trade.ErrorMessage = ev.Err.Error()
	} else {
		trade.AmountSOL = ev.Position.CostQuote
		trade.AmountTokens = ev.Position.AmountBase
		trade.Price = ev.Position.EntryPrice
	}
	tl.write(trade)
}

// RecordExit journals a confirmed sell.
func (tl *TradeLogger) RecordExit(ev position.ExitEvent) {
	received := utils.LamportsToSOL(ev.Fill.AmountOut)
	tl.write(TradeLog{
		TradeType:    "sell",
		Mint:         ev.Position.Key(),
		Pool:         ev.Position.PoolAddress.String(),
		AmountSOL:    received,
		AmountTokens: ev.Position.AmountBase,
		Price:        ev.Price,
		Signature:    ev.Fill.Signature,
		Status:       "success",
		ExitReason:   string(ev.Reason),
		PnLPct:       ev.PnLPct.StringFixed(2),
		ProfitSOL:    received.Sub(ev.Position.CostQuote).String(),
		HeldFor:      ev.HeldFor.Truncate(time.Second).String(),
		DryRun:       ev.Fill.DryRun,
	})
}

// RecordSellFailure journals a sell that did not confirm.
func (tl *TradeLogger) RecordSellFailure(f position.SellFailure) {
	trade := TradeLog{
		TradeType:    "sell",
		Mint:         f.Position.Key(),
		Pool:         f.Position.PoolAddress.String(),
		AmountTokens: f.Position.AmountBase,
		Status:       "failed",
		Attempts:     f.Attempts,
		ExitReason:   string(f.Reason),
	}
	if f.Stuck {
		trade.Status = "stuck"
	}
	if f.Err != nil {
		trade.ErrorMessage = f.Err.Error()
	}
	tl.write(trade)
}

func (tl *TradeLogger) write(trade TradeLog) {
	if err := tl.LogTrade(trade); err != nil {
		tl.logger.WithError(err).WithField("mint", trade.Mint).Warn("⚠️ Failed to write trade journal")
	}
}

// LogPositions appends one snapshot line per position.
func (tl *TradeLogger) LogPositions(snaps []position.Snapshot) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := tl.now()
	for _, s := range snaps {
		entry := PositionLog{
			Timestamp:    now,
			Mint:         s.Key(),
			Pool:         s.PoolAddress.String(),
			State:        s.State.String(),
			AmountTokens: s.AmountBase,
			CostSOL:      s.CostQuote,
			EntryPrice:   s.EntryPrice,
			LastPrice:    s.LastPrice,
			HighWater:    s.HighWater,
			HeldFor:      now.Sub(s.EntryTime).Truncate(time.Second).String(),
		}
		if s.LastPrice.IsPositive() {
			entry.UnrealizedPL = s.PnLPct(s.LastPrice).StringFixed(2)
		}
		if err := tl.appendLine("positions", entry); err != nil {
			return err
		}
	}
	return nil
}

// Summary returns the counters for the current day.
func (tl *TradeLogger) Summary() Summary {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.rollover(tl.now())
	return tl.summary
}

// LogDailySummary writes the current summary to summary_YYYY-MM-DD.json
func (tl *TradeLogger) LogDailySummary() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := tl.now()
	tl.rollover(now)
	tl.summary.Timestamp = now

	path := filepath.Join(tl.baseDir, fmt.Sprintf("summary_%s.json", tl.summary.Date))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(tl.summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	tl.logger.WithFields(logrus.Fields{
		"event":        "daily_summary",
		"buys":         tl.summary.TotalBuys,
		"sells":        tl.summary.TotalSells,
		"realized_sol": tl.summary.RealizedSOL.String(),
	}).Info("📒 Daily summary logged")
	return nil
}

// count updates the summary. Caller holds mu.
func (tl *TradeLogger) count(trade TradeLog) {
	tl.rollover(trade.Timestamp)
	switch {
	case trade.TradeType == "buy" && trade.Status == "success":
		tl.summary.TotalBuys++
		tl.summary.VolumeSOL = tl.summary.VolumeSOL.Add(trade.AmountSOL)
	case trade.TradeType == "buy":
		tl.summary.FailedBuys++
	case trade.Status == "success":
		tl.summary.TotalSells++
		tl.summary.VolumeSOL = tl.summary.VolumeSOL.Add(trade.AmountSOL)
		if profit, err := decimal.NewFromString(trade.ProfitSOL); err == nil {
			tl.summary.RealizedSOL = tl.summary.RealizedSOL.Add(profit)
		}
	default:
		tl.summary.FailedSells++
	}
}

// rollover starts a fresh summary on a new day. Caller holds mu.
func (tl *TradeLogger) rollover(now time.Time) {
	date := now.Format("2006-01-02")
	if tl.summary.Date == date {
		return
	}
	tl.summary = Summary{Date: date, VolumeSOL: decimal.Zero, RealizedSOL: decimal.Zero}
}

// appendLine writes v as one JSON line to <kind>_YYYY-MM-DD.jsonl. Caller holds mu.
func (tl *TradeLogger) appendLine(kind string, v interface{}) error {
	filename := fmt.Sprintf("%s_%s.jsonl", kind, tl.now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(tl.baseDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s log file: %w", kind, err)
	}
	defer file.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", kind, err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s entry: %w", kind, err)
	}
	return nil
}
