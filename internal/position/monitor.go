// internal/position/monitor.go
package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"raydium-sniper-bot/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceSource returns the current SOL price of one token unit.
type PriceSource interface {
	GetPrice(ctx context.Context, s Snapshot) (decimal.Decimal, error)
}

// Seller submits a sell for the whole position and waits for confirmation.
type Seller interface {
	SubmitSell(ctx context.Context, s Snapshot, minOutLamports uint64) (Fill, error)
}

// CooldownRecorder is told when a token was sold.
type CooldownRecorder interface {
	RecordSell(mint string)
}

// Config holds exit thresholds. A zero percentage or duration disables
// that condition.
type Config struct {
	TakeProfitPct   decimal.Decimal
	StopLossPct     decimal.Decimal
	TrailingStop    bool
	TrailingStopPct decimal.Decimal
	MaxHold         time.Duration

	TickInterval   time.Duration
	PriceTimeout   time.Duration
	SellTimeout    time.Duration
	SellSlippageBP int

	StaleAfterFailures int
	StuckAfterFailures int
}

// ExitEvent describes a confirmed exit.
type ExitEvent struct {
	Position Snapshot
	Reason   ExitReason
	Price    decimal.Decimal
	PnLPct   decimal.Decimal
	HeldFor  time.Duration
	Fill     Fill
}

// SellFailure describes a sell that did not confirm.
type SellFailure struct {
	Position Snapshot
	Reason   ExitReason
	Attempts int
	Stuck    bool
	Err      error
}

// Monitor owns the live positions and is their only mutator.
type Monitor struct {
	cfg      Config
	prices   PriceSource
	seller   Seller
	cooldown CooldownRecorder
	store    Store
	log      logrus.FieldLogger
	now      func() time.Time

	onExit        func(ExitEvent)
	onSellFailure func(SellFailure)

	mu        sync.RWMutex
	positions map[string]*Position

	inflight sync.WaitGroup
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithStore persists positions on open, price change and close.
func WithStore(s Store) MonitorOption {
	return func(m *Monitor) { m.store = s }
}

// WithCooldown reports closed positions to the rate limiter.
func WithCooldown(c CooldownRecorder) MonitorOption {
	return func(m *Monitor) { m.cooldown = c }
}

// WithExitHook is called after every confirmed exit.
func WithExitHook(fn func(ExitEvent)) MonitorOption {
	return func(m *Monitor) { m.onExit = fn }
}

// WithSellFailureHook is called after every failed sell.
func WithSellFailureHook(fn func(SellFailure)) MonitorOption {
	return func(m *Monitor) { m.onSellFailure = fn }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) MonitorOption {
	return func(m *Monitor) { m.log = log }
}

// NewMonitor creates a monitor with no open positions.
func NewMonitor(cfg Config, prices PriceSource, seller Seller, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		cfg:       cfg,
		prices:    prices,
		seller:    seller,
		now:       time.Now,
		positions: make(map[string]*Position),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		m.log = l
	}
	if m.cfg.TickInterval <= 0 {
		m.cfg.TickInterval = time.Second
	}
	if m.cfg.PriceTimeout <= 0 {
		m.cfg.PriceTimeout = 5 * time.Second
	}
	if m.cfg.SellTimeout <= 0 {
		m.cfg.SellTimeout = 30 * time.Second
	}
	return m
}

// Open registers a confirmed buy. The high-water mark starts at the entry
// price and the state at Open.
func (m *Monitor) Open(ctx context.Context, s Snapshot) (Snapshot, error) {
	if err := s.validate(); err != nil {
		return Snapshot{}, err
	}
	if s.EntryTime.IsZero() {
		s.EntryTime = m.now()
	}
	s.HighWater = s.EntryPrice
	s.LastPrice = s.EntryPrice

	p := newPosition(s)
	key := s.Key()

	m.mu.Lock()
	if _, exists := m.positions[key]; exists {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrPositionExists, key)
	}
	m.positions[key] = p
	m.mu.Unlock()

	snap := p.Snapshot()
	m.persist(ctx, snap)

	m.log.WithFields(logrus.Fields{
		"token":       key,
		"pool":        snap.PoolAddress.String(),
		"entry_price": snap.EntryPrice.String(),
		"amount":      snap.AmountBase.String(),
		"cost_sol":    snap.CostQuote.String(),
	}).Info("📈 Position opened")

	return snap, nil
}

// Restore reloads persisted positions. Every restored position is forced to
// Open: a ClosePending at crash time is ambiguous and gets re-evaluated.
func (m *Monitor) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	snaps, err := m.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load positions: %w", err)
	}

	restored := 0
	for _, s := range snaps {
		if err := s.validate(); err != nil {
			m.log.WithError(err).WithField("token", s.Key()).Warn("⚠️ Skipping invalid stored position")
			continue
		}
		if s.State != StateOpen {
			m.log.WithFields(logrus.Fields{
				"token": s.Key(),
				"state": s.State.String(),
			}).Warn("⚠️ Stored position was not open, re-arming")
		}

		p := newPosition(s)

		m.mu.Lock()
		if _, exists := m.positions[s.Key()]; exists {
			m.mu.Unlock()
			continue
		}
		m.positions[s.Key()] = p
		m.mu.Unlock()

		m.persist(ctx, p.Snapshot())
		restored++
	}
	return restored, nil
}

// Has reports whether a live position exists for mint.
func (m *Monitor) Has(mint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[mint]
	return ok
}

// Get returns a snapshot of the position for mint.
func (m *Monitor) Get(mint string) (Snapshot, error) {
	m.mu.RLock()
	p, ok := m.positions[mint]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, mint)
	}
	return p.Snapshot(), nil
}

// Positions returns snapshots of all live positions, oldest first.
func (m *Monitor) Positions() []Snapshot {
	m.mu.RLock()
	live := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		live = append(live, p)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(live))
	for _, p := range live {
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// Len returns the number of live positions.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// Run starts an evaluation of every live position each TickInterval
// without waiting for the previous ones. On cancel it waits for in-flight
// evaluations to finish.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.log.WithField("interval", m.cfg.TickInterval).Info("👀 Position monitor started")

	for {
		select {
		case <-ctx.Done():
			m.inflight.Wait()
			m.log.WithField("open_positions", m.Len()).Info("🛑 Position monitor stopped")
			return
		case <-ticker.C:
			m.dispatch(ctx, nil)
		}
	}
}

// Tick evaluates every live position concurrently and returns when the
// evaluations it started are done. A failure on one position does not
// affect others.
func (m *Monitor) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	m.dispatch(ctx, &wg)
	wg.Wait()
}

// dispatch starts one evaluation per live position. A position still held
// by an earlier evaluation is skipped for this round.
func (m *Monitor) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	m.mu.RLock()
	live := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		live = append(live, p)
	}
	m.mu.RUnlock()

	for _, p := range live {
		if !p.busy.CompareAndSwap(false, true) {
			continue
		}
		m.inflight.Add(1)
		if wg != nil {
			wg.Add(1)
		}
		go func(p *Position) {
			defer func() {
				p.busy.Store(false)
				m.inflight.Done()
				if wg != nil {
					wg.Done()
				}
			}()
			m.evaluate(ctx, p)
		}(p)
	}
}

// evaluate runs fetch → update → decide → transition for one position under
// its mutex. The sell itself runs after the lock is released; the state
// machine keeps other ticks away while it is in flight.
func (m *Monitor) evaluate(ctx context.Context, p *Position) {
	p.mu.Lock()

	if p.State() != StateOpen {
		p.mu.Unlock()
		return
	}

	key := p.snap.Key()
	priceCtx, cancel := context.WithTimeout(ctx, m.cfg.PriceTimeout)
	price, err := m.prices.GetPrice(priceCtx, p.snapshotLocked())
	cancel()
	if err == nil && !price.IsPositive() {
		err = fmt.Errorf("%w: non-positive price %s", ErrPriceUnavailable, price)
	}
	if err != nil {
		p.fetchFailures++
		failures := p.fetchFailures
		becameStale := !p.stale && m.cfg.StaleAfterFailures > 0 && failures >= m.cfg.StaleAfterFailures
		if becameStale {
			p.stale = true
		}
		p.mu.Unlock()

		entry := m.log.WithError(err).WithFields(logrus.Fields{"token": key, "failures": failures})
		if becameStale {
			entry.Warn("⚠️ Position is stale: price unavailable, not closing without a price")
		} else {
			entry.Debug("Price fetch failed")
		}
		return
	}

	if p.stale {
		m.log.WithField("token", key).Info("✅ Position price recovered")
	}
	p.fetchFailures = 0
	p.stale = false

	raised := p.observeLocked(price)
	reason, hit := m.exitCondition(p.snap, price)
	if !hit {
		snap := p.snapshotLocked()
		p.mu.Unlock()
		if raised {
			m.persist(ctx, snap)
		}
		return
	}

	if !p.transition(StateOpen, StateClosePending) {
		p.mu.Unlock()
		return
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	m.sell(ctx, p, snap, reason, price)
}

// exitCondition checks stop-loss, trailing-stop, max-hold and take-profit in
// that order and returns the first that holds.
func (m *Monitor) exitCondition(s Snapshot, price decimal.Decimal) (ExitReason, bool) {
	pnl := s.PnLPct(price)

	if m.cfg.StopLossPct.IsPositive() && pnl.LessThanOrEqual(m.cfg.StopLossPct.Neg()) {
		return ExitStopLoss, true
	}
	if m.cfg.TrailingStop && m.cfg.TrailingStopPct.IsPositive() {
		trigger := s.HighWater.Mul(decimal.NewFromInt(1).Sub(m.cfg.TrailingStopPct.Div(decimal.NewFromInt(100))))
		if price.LessThanOrEqual(trigger) {
			return ExitTrailingStop, true
		}
	}
	if m.cfg.MaxHold > 0 && m.now().Sub(s.EntryTime) >= m.cfg.MaxHold {
		return ExitMaxHold, true
	}
	if m.cfg.TakeProfitPct.IsPositive() && pnl.GreaterThanOrEqual(m.cfg.TakeProfitPct) {
		return ExitTakeProfit, true
	}
	return "", false
}

// minOut is the slippage-guarded SOL amount expected for the whole position.
func (m *Monitor) minOut(s Snapshot, price decimal.Decimal) uint64 {
	expected := utils.SOLToLamports(s.AmountBase.Mul(price))
	return utils.ApplySlippageBP(expected, m.cfg.SellSlippageBP)
}

func (m *Monitor) sell(ctx context.Context, p *Position, snap Snapshot, reason ExitReason, price decimal.Decimal) {
	key := snap.Key()
	pnl := snap.PnLPct(price)

	m.log.WithFields(logrus.Fields{
		"token":      key,
		"reason":     string(reason),
		"price":      price.String(),
		"high_water": snap.HighWater.String(),
		"pnl_pct":    pnl.StringFixed(2),
	}).Info("🎯 Exit condition met, selling")

	// A sell already submitted must finish even when the monitor is stopping.
	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SellTimeout)
	fill, err := m.seller.SubmitSell(sellCtx, snap, m.minOut(snap, price))
	cancel()

	if err != nil {
		p.mu.Lock()
		p.sellFailures++
		attempts := p.sellFailures
		p.transition(StateClosePending, StateOpen)
		p.mu.Unlock()

		stuck := m.cfg.StuckAfterFailures > 0 && attempts >= m.cfg.StuckAfterFailures
		entry := m.log.WithError(err).WithFields(logrus.Fields{
			"token":    key,
			"reason":   string(reason),
			"attempts": attempts,
		})
		if stuck {
			entry.Warn("🚨 Stuck position: sell keeps failing")
		} else {
			entry.Warn("⚠️ Sell failed, position re-armed")
		}
		if m.onSellFailure != nil {
			m.onSellFailure(SellFailure{Position: snap, Reason: reason, Attempts: attempts, Stuck: stuck, Err: err})
		}
		return
	}

	if !p.transition(StateClosePending, StateClosed) {
		// Only this goroutine moves a ClosePending position.
		m.log.WithField("token", key).Error("❌ Position left ClosePending during sell")
		return
	}

	m.mu.Lock()
	delete(m.positions, key)
	m.mu.Unlock()

	if m.cooldown != nil {
		m.cooldown.RecordSell(key)
	}
	if m.store != nil {
		if err := m.store.Delete(context.WithoutCancel(ctx), key); err != nil {
			m.log.WithError(err).WithField("token", key).Warn("⚠️ Failed to delete closed position from store")
		}
	}

	snap.State = StateClosed
	ev := ExitEvent{
		Position: snap,
		Reason:   reason,
		Price:    price,
		PnLPct:   pnl,
		HeldFor:  m.now().Sub(snap.EntryTime),
		Fill:     fill,
	}

	m.log.WithFields(logrus.Fields{
		"token":     key,
		"reason":    string(reason),
		"signature": fill.Signature,
		"pnl_pct":   pnl.StringFixed(2),
		"held_for":  ev.HeldFor.String(),
	}).Info("✅ Position closed")

	if m.onExit != nil {
		m.onExit(ev)
	}
}

func (m *Monitor) persist(ctx context.Context, s Snapshot) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
		m.log.WithError(err).WithField("token", s.Key()).Warn("⚠️ Failed to persist position")
	}
}
