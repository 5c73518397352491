// internal/logger/pool_event.go
package logger

import (
	"time"

	"raydium-sniper-bot/internal/raydium"

	"github.com/sirupsen/logrus"
)

// LateDetectionThreshold marks pools that were already trading for a while
// when the bot saw them.
const LateDetectionThreshold = 30 * time.Second

// LogPoolDetected logs every decoded pool with its raw fields. Pools whose
// open time is well in the past are logged as a warning: by the time they
// are evaluated the early price move is usually gone.
func (l *Logger) LogPoolDetected(ev raydium.PoolEvent) {
	l.logPoolDetected(ev, time.Now())
}

func (l *Logger) logPoolDetected(ev raydium.PoolEvent, now time.Time) {
	fields := logrus.Fields(ev.LogFields())
	fields["event"] = "pool_detected"
	fields["lp_mint"] = ev.Raw.LPMint.String()
	fields["init_base_amount"] = ev.Raw.InitBaseAmount
	fields["init_quote_amount"] = ev.Raw.InitQuoteAmount

	age, opened := poolAge(ev, now)
	if opened {
		fields["pool_age_ms"] = age.Milliseconds()
	}

	entry := l.WithFields(fields)
	if opened && age > LateDetectionThreshold {
		entry.Warn("🐢 Pool detected late")
		return
	}
	entry.Debug("🔍 Pool event")
}

// poolAge returns how long the pool has been open. Pools with a future or
// unset open time report false.
func poolAge(ev raydium.PoolEvent, now time.Time) (time.Duration, bool) {
	if ev.Raw.OpenTime == 0 {
		return 0, false
	}
	opened := time.Unix(int64(ev.Raw.OpenTime), 0)
	if opened.After(now) {
		return 0, false
	}
	return now.Sub(opened), true
}

// LogDecodeSkip logs a pool-init transaction that could not be decoded.
func (l *Logger) LogDecodeSkip(cls raydium.Classification) {
	l.WithFields(logrus.Fields{
		"event":   "decode_skip",
		"outcome": cls.Outcome.String(),
		"kind":    raydium.KindOf(cls.Err).String(),
	}).WithError(cls.Err).Debug("🧩 Decode skipped")
}
