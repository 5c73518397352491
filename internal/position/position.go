// internal/position/position.go
package position

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// State is the lifecycle stage of a position.
type State int32

const (
	StateOpen State = iota
	StateClosePending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosePending:
		return "close_pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ExitReason names the condition that triggered a sell.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitMaxHold      ExitReason = "max_hold"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitManual       ExitReason = "manual" // closed by an operator
)

var (
	ErrPositionExists   = errors.New("position already open for token")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrNotFound         = errors.New("position not found")
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Fill is a confirmed execution reported by the execution collaborator.
type Fill struct {
	Signature string          `json:"signature"`
	AmountIn  uint64          `json:"amount_in"`
	AmountOut uint64          `json:"amount_out"`
	Price     decimal.Decimal `json:"price"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

// Snapshot is an immutable copy of a position, safe to hand to
// collaborators and to persist.
type Snapshot struct {
	TokenMint     solana.PublicKey `json:"token_mint"`
	PoolAddress   solana.PublicKey `json:"pool_address"`
	TokenVault    solana.PublicKey `json:"token_vault"`
	SOLVault      solana.PublicKey `json:"sol_vault"`
	TokenDecimals uint8            `json:"token_decimals"`

	EntryPrice decimal.Decimal `json:"entry_price"`
	AmountBase decimal.Decimal `json:"amount_base"` // UI units of TokenMint
	CostQuote  decimal.Decimal `json:"cost_quote"`  // SOL
	EntryTime  time.Time       `json:"entry_time"`
	EntrySig   string          `json:"entry_signature,omitempty"`

	HighWater decimal.Decimal `json:"high_water"`
	LastPrice decimal.Decimal `json:"last_price"`
	State     State           `json:"state"`
}

// Key identifies the position in the live set and the store.
func (s Snapshot) Key() string {
	return s.TokenMint.String()
}

// PnLPct returns the profit of price against the entry price in percent.
func (s Snapshot) PnLPct(price decimal.Decimal) decimal.Decimal {
	return utils.PercentChange(s.EntryPrice, price)
}

func (s Snapshot) validate() error {
	switch {
	case s.TokenMint == (solana.PublicKey{}):
		return fmt.Errorf("%w: token mint is zero", ErrInvalidPosition)
	case !s.EntryPrice.IsPositive():
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidPosition)
	case s.AmountBase.IsNegative():
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidPosition)
	}
	return nil
}

// Position is a live trade owned by the Monitor. state moves only through
// compare-and-swap; mu serializes the per-tick fetch/update/evaluate unit.
type Position struct {
	mu    sync.Mutex
	state atomic.Int32
	busy  atomic.Bool // an evaluation owns the position

	snap          Snapshot
	fetchFailures int
	sellFailures  int
	stale         bool
}

func newPosition(s Snapshot) *Position {
	if s.HighWater.LessThan(s.EntryPrice) {
		s.HighWater = s.EntryPrice
	}
	s.State = StateOpen
	p := &Position{snap: s}
	p.state.Store(int32(StateOpen))
	return p
}

// State returns the current lifecycle stage.
func (p *Position) State() State {
	return State(p.state.Load())
}

func (p *Position) transition(from, to State) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// Snapshot returns a copy of the position.
func (p *Position) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Position) snapshotLocked() Snapshot {
	s := p.snap
	s.State = p.State()
	return s
}

// observeLocked records a fresh price; the high-water mark never decreases.
func (p *Position) observeLocked(price decimal.Decimal) (raised bool) {
	p.snap.LastPrice = price
	if price.GreaterThan(p.snap.HighWater) {
		p.snap.HighWater = price
		return true
	}
	return false
}
