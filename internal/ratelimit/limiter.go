// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// saveTimeout bounds one ledger write.
const saveTimeout = 2 * time.Second

// Limiter owns the trade ledger: a fixed-window trade counter and per-token
// cooldowns started by sells. The window is not sliding; the counter resets
// once a full window has elapsed since windowStart.
type Limiter struct {
	mu sync.Mutex

	maxTrades int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	windowStart time.Time
	count       int
	cooldowns   map[string]time.Time

	// saveMu orders ledger writes so the newest snapshot is written last.
	saveMu sync.Mutex
	ledger Ledger
	log    logrus.FieldLogger
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLedger persists every recorded trade and sell.
func WithLedger(ledger Ledger) Option {
	return func(l *Limiter) { l.ledger = ledger }
}

// WithLogger sets the logger used for ledger failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a limiter allowing maxTrades entries per window. maxTrades <= 0
// disables the trade cap.
func New(maxTrades int, window, cooldown time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		maxTrades: maxTrades,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		lg := logrus.New()
		lg.SetLevel(logrus.PanicLevel)
		l.log = lg
	}
	l.windowStart = l.now()
	return l
}

// Restore loads the persisted ledger. Expired cooldowns are dropped and an
// elapsed window starts over on the next check.
func (l *Limiter) Restore(ctx context.Context) error {
	if l.ledger == nil {
		return nil
	}
	s, ok, err := l.ledger.Load(ctx)
	if err != nil || !ok {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !s.WindowStart.IsZero() && !s.WindowStart.After(now) {
		l.windowStart = s.WindowStart
		l.count = s.Count
	}
	for mint, until := range s.Cooldowns {
		if now.Before(until) {
			l.cooldowns[mint] = until
		}
	}
	l.rollLocked(now)

	l.log.WithFields(logrus.Fields{
		"trades_in_window": l.count,
		"cooldowns":        len(l.cooldowns),
	}).Info("♻️ Trade limits restored")
	return nil
}

func (l *Limiter) snapshotLocked() State {
	s := State{WindowStart: l.windowStart, Count: l.count}
	if len(l.cooldowns) > 0 {
		s.Cooldowns = make(map[string]time.Time, len(l.cooldowns))
		for mint, until := range l.cooldowns {
			s.Cooldowns[mint] = until
		}
	}
	return s
}

// persist writes the current state. Failures are logged, the in-memory
// ledger stays authoritative.
func (l *Limiter) persist() {
	if l.ledger == nil {
		return
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	s := l.snapshotLocked()
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := l.ledger.Save(ctx, s); err != nil {
		l.log.WithError(err).Warn("⚠️ Failed to persist trade limits")
	}
}

// rollLocked resets the window when it has fully elapsed.
func (l *Limiter) rollLocked(now time.Time) {
	if l.window > 0 && now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
}

// MayEnter reports whether a new position in mint is allowed now. It does
// not consume a slot; call RecordTrade once the buy is confirmed.
func (l *Limiter) MayEnter(mint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollLocked(now)

	if l.maxTrades > 0 && l.count >= l.maxTrades {
		return false
	}
	if until, ok := l.cooldowns[mint]; ok {
		if now.Before(until) {
			return false
		}
		delete(l.cooldowns, mint)
	}
	return true
}

// RecordTrade charges one trade against the current window.
func (l *Limiter) RecordTrade(mint string) {
	l.mu.Lock()
	l.rollLocked(l.now())
	l.count++
	l.mu.Unlock()

	l.persist()
}

// RecordSell starts the cooldown for mint.
func (l *Limiter) RecordSell(mint string) {
	l.mu.Lock()
	l.cooldowns[mint] = l.now().Add(l.cooldown)
	l.mu.Unlock()

	l.persist()
}

// Stats is a snapshot of the ledger.
type Stats struct {
	WindowStart     time.Time
	TradesInWindow  int
	MaxTrades       int
	ActiveCooldowns int
}

// Stats returns the current ledger state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollLocked(now)

	active := 0
	for mint, until := range l.cooldowns {
		if now.Before(until) {
			active++
		} else {
			delete(l.cooldowns, mint)
		}
	}
	return Stats{
		WindowStart:     l.windowStart,
		TradesInWindow:  l.count,
		MaxTrades:       l.maxTrades,
		ActiveCooldowns: active,
	}
}

// CooldownRemaining returns how long mint stays blocked, zero if it is not.
func (l *Limiter) CooldownRemaining(mint string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.cooldowns[mint]
	if !ok {
		return 0
	}
	if d := until.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}
