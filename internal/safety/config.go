// internal/safety/config.go
package safety

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FallbackPolicy decides what an unavailable risk provider means for a pool.
type FallbackPolicy string

const (
	FallbackPassWithWarning FallbackPolicy = "pass_with_warning"
	FallbackFail            FallbackPolicy = "fail"
)

// Config holds every evaluator threshold. Comparisons are inclusive on the
// accepting side: liquidity, holders, risk score and token age use >=, supply, holder
// concentration, price impact and volatility use <=.
type Config struct {
	MinLiquiditySOL decimal.Decimal
	MaxSupply       decimal.Decimal // UI units
	MinHolders      int
	MaxTopHolderPct decimal.Decimal

	MinVolume24h                decimal.Decimal
	MinVolumeConfidence         decimal.Decimal
	VolumeDisagreementThreshold decimal.Decimal // coefficient of variation
	VolumeDisagreementPenalty   decimal.Decimal
	SingleSourceFactor          decimal.Decimal

	TradeSizeSOL      decimal.Decimal
	MaxPriceImpactPct decimal.Decimal
	MaxVolatility     decimal.Decimal

	MinRiskScore    decimal.Decimal
	RequireLPLocked bool
	RiskFallback    FallbackPolicy

	// MinTokenAge is the youngest mint accepted. Zero disables the rule.
	MinTokenAge time.Duration
}

// DefaultConfig returns the stock thresholds. RiskFallback is left empty on
// purpose: it must be chosen explicitly.
func DefaultConfig() Config {
	return Config{
		MinLiquiditySOL:             decimal.NewFromInt(5),
		MaxSupply:                   decimal.NewFromInt(1_000_000_000),
		MinHolders:                  100,
		MaxTopHolderPct:             decimal.NewFromInt(20),
		MinVolume24h:                decimal.Zero,
		MinVolumeConfidence:         decimal.RequireFromString("0.3"),
		VolumeDisagreementThreshold: decimal.RequireFromString("0.3"),
		VolumeDisagreementPenalty:   decimal.RequireFromString("0.5"),
		SingleSourceFactor:          decimal.RequireFromString("0.7"),
		TradeSizeSOL:                decimal.RequireFromString("0.1"),
		MaxPriceImpactPct:           decimal.NewFromInt(5),
		MaxVolatility:               decimal.RequireFromString("0.3"),
		MinRiskScore:                decimal.NewFromInt(50),
	}
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	switch c.RiskFallback {
	case FallbackPassWithWarning, FallbackFail:
	case "":
		return fmt.Errorf("risk fallback policy must be set to %q or %q", FallbackPassWithWarning, FallbackFail)
	default:
		return fmt.Errorf("unknown risk fallback policy %q", c.RiskFallback)
	}

	if c.MinTokenAge < 0 {
		return fmt.Errorf("min token age cannot be negative")
	}
	if c.MinHolders < 0 {
		return fmt.Errorf("min holders cannot be negative")
	}
	for name, v := range map[string]decimal.Decimal{
		"min_liquidity_sol":    c.MinLiquiditySOL,
		"max_supply":           c.MaxSupply,
		"max_top_holder_pct":   c.MaxTopHolderPct,
		"min_volume_24h":       c.MinVolume24h,
		"max_price_impact_pct": c.MaxPriceImpactPct,
		"max_volatility":       c.MaxVolatility,
		"trade_size_sol":       c.TradeSizeSOL,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	for name, v := range map[string]decimal.Decimal{
		"min_volume_confidence":       c.MinVolumeConfidence,
		"volume_disagreement_penalty": c.VolumeDisagreementPenalty,
		"single_source_factor":        c.SingleSourceFactor,
	} {
		if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}
