package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/internal/sniper"

	"github.com/sirupsen/logrus"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	config LogConfig
	file   *os.File
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level       string
	Format      string // "json", "text" or anything else for the custom format
	LogToFile   bool
	LogFilePath string
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) (*Logger, error) {
	return newLogger(config, os.Stdout)
}

func newLogger(config LogConfig, stdout io.Writer) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			DisableQuote:    true,
		})
	default:
		log.SetFormatter(&CustomFormatter{})
	}

	l := &Logger{Logger: log, config: config}
	log.SetOutput(stdout)

	// Optionally also log to file (in addition to stdout)
	if config.LogToFile && config.LogFilePath != "" {
		logDir := filepath.Dir(config.LogFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		file, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFilePath, err)
		}
		l.file = file
		log.SetOutput(io.MultiWriter(stdout, file))
	}

	return l, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.Logger.SetOutput(os.Stdout)
	err := l.file.Close()
	l.file = nil
	return err
}

// CustomFormatter provides a clean, timestamped format for console output
type CustomFormatter struct {
	DisableColors bool
}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())

	var levelColor, resetColor string
	if !f.DisableColors {
		resetColor = "\033[0m"
		switch entry.Level {
		case logrus.DebugLevel, logrus.TraceLevel:
			levelColor = "\033[36m" // Cyan
		case logrus.InfoLevel:
			levelColor = "\033[32m" // Green
		case logrus.WarnLevel:
			levelColor = "\033[33m" // Yellow
		default:
			levelColor = "\033[31m" // Red
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s%s%s] %s", timestamp, levelColor, level, resetColor, entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for key := range entry.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, key := range keys {
			fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
		}
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// Pipeline event logging. These records carry an "event" field so they can
// be filtered out of the component logs.

// LogVerdict logs the outcome of a safety evaluation.
func (l *Logger) LogVerdict(ev raydium.PoolEvent, v safety.Verdict) {
	fields := logrus.Fields{
		"event":    "verdict",
		"pool":     ev.PoolAddress.String(),
		"mint":     ev.TokenMint().String(),
		"accepted": v.Accepted,
	}
	if len(v.Reasons) > 0 {
		fields["reasons"] = strings.Join(v.Reasons, ",")
	}
	if len(v.Warnings) > 0 {
		fields["warnings"] = strings.Join(v.Warnings, ",")
	}
	if v.RiskScore != nil {
		fields["risk_score"] = v.RiskScore.String()
	}
	if v.Accepted {
		l.WithFields(fields).Info("✓ Token accepted by safety rules")
		return
	}
	l.WithFields(fields).Info("✗ Token rejected by safety rules")
}

// LogTrade logs the outcome of a buy.
func (l *Logger) LogTrade(ev sniper.TradeEvent) {
	if ev.Err != nil {
		l.LogTradeError("buy", ev.Pool.TokenMint().String(), ev.Attempts, ev.Err)
		return
	}
	l.LogTradeSuccess("buy", ev.Pool.TokenMint().String(), ev.Fill, ev.Position.EntryPrice.String())
}

// LogTradeSuccess logs when a trade is confirmed (or simulated in dry-run)
func (l *Logger) LogTradeSuccess(tradeType, mint string, fill position.Fill, price string) {
	l.WithFields(logrus.Fields{
		"event":      "trade_success",
		"type":       tradeType,
		"mint":       mint,
		"amount_in":  fill.AmountIn,
		"amount_out": fill.AmountOut,
		"signature":  fill.Signature,
		"price":      price,
		"dry_run":    fill.DryRun,
	}).Info("✅ Trade successful")
}

// LogTradeError logs when a trade fails
func (l *Logger) LogTradeError(tradeType, mint string, attempts int, err error) {
	l.WithFields(logrus.Fields{
		"event":    "trade_error",
		"type":     tradeType,
		"mint":     mint,
		"attempts": attempts,
	}).WithError(err).Error("❌ Trade failed")
}

// LogExit logs a confirmed exit.
func (l *Logger) LogExit(ev position.ExitEvent) {
	l.LogTradeSuccess("sell", ev.Position.Key(), ev.Fill, ev.Price.String())
	l.WithFields(logrus.Fields{
		"event":    "exit",
		"mint":     ev.Position.Key(),
		"reason":   string(ev.Reason),
		"pnl_pct":  ev.PnLPct.StringFixed(2),
		"held_for": ev.HeldFor.Truncate(time.Second).String(),
	}).Info("🏁 Position exited")
}

// LogSellFailure logs a sell that did not confirm.
func (l *Logger) LogSellFailure(f position.SellFailure) {
	l.LogTradeError("sell", f.Position.Key(), f.Attempts, f.Err)
}

// LogError logs general errors with context
func (l *Logger) LogError(component, operation string, err error, fields logrus.Fields) {
	logFields := logrus.Fields{
		"event":     "error",
		"component": component,
		"operation": operation,
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.WithFields(logFields).WithError(err).Error("💥 Component error")
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, network string, dryRun bool) {
	l.WithFields(logrus.Fields{
		"event":   "startup",
		"version": version,
		"network": network,
		"dry_run": dryRun,
	}).Info("🚀 Bot starting up")
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string) {
	l.WithFields(logrus.Fields{
		"event":  "shutdown",
		"reason": reason,
	}).Info("🛑 Bot shutting down")
}

// LogBalance logs wallet balance information
func (l *Logger) LogBalance(address string, balanceSOL float64) {
	l.WithFields(logrus.Fields{
		"event":       "balance_check",
		"wallet":      address,
		"balance_sol": balanceSOL,
	}).Info("💰 Wallet balance")
}

// LogStats logs a pipeline statistics snapshot.
func (l *Logger) LogStats(stats map[string]interface{}, openPositions int) {
	fields := logrus.Fields(stats)
	fields["event"] = "stats"
	fields["open_positions"] = openPositions
	l.WithFields(fields).Info("📊 Pipeline statistics")
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithToken returns a logger with token context
func (l *Logger) WithToken(mint string) *logrus.Entry {
	return l.WithField("mint", mint)
}
