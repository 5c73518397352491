// internal/safety/evaluator.go
package safety

import (
	"fmt"

	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Reason codes carried in Verdict.Reasons.
const (
	ReasonMintable               = "mintable"
	ReasonMintAuthorityUnknown   = "mint_authority_unknown"
	ReasonFreezable              = "freezable"
	ReasonFreezeAuthorityUnknown = "freeze_authority_unknown"
	ReasonLowLiquidity           = "low_liquidity"
	ReasonLiquidityUnknown       = "liquidity_unknown"
	ReasonSupplyTooHigh          = "supply_too_high"
	ReasonSupplyUnknown          = "supply_unknown"
	ReasonTooFewHolders          = "too_few_holders"
	ReasonHoldersUnknown         = "holders_unknown"
	ReasonHolderConcentration    = "holder_concentration"
	ReasonVolumeLowConfidence    = "volume_low_confidence"
	ReasonLowVolume              = "low_volume"
	ReasonPriceImpact            = "price_impact"
	ReasonVolatile               = "volatile"
	ReasonRiskScore              = "risk_score"
	ReasonRugged                 = "rugged"
	ReasonLPUnlocked             = "lp_unlocked"
	ReasonRiskUnavailable        = "risk_unavailable"
	ReasonTokenTooNew            = "token_too_new"
)

// Verdict is the result of one evaluation. Reasons lists every failed rule.
type Verdict struct {
	Accepted  bool
	Reasons   []string
	RiskScore *decimal.Decimal
	Warnings  []string
}

// Evaluator applies the safety rules. It holds no state besides its
// configuration and is safe for concurrent use.
type Evaluator struct {
	cfg Config
	log logrus.FieldLogger
}

// NewEvaluator validates cfg and returns an evaluator.
func NewEvaluator(cfg Config, log logrus.FieldLogger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid safety config: %w", err)
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Evaluator{cfg: cfg, log: log}, nil
}

// Config returns the evaluator thresholds.
func (e *Evaluator) Config() Config {
	return e.cfg
}

type evaluation struct {
	cfg     Config
	verdict Verdict
}

func (v *evaluation) fail(reason string) {
	v.verdict.Reasons = append(v.verdict.Reasons, reason)
}

func (v *evaluation) warn(format string, args ...interface{}) {
	v.verdict.Warnings = append(v.verdict.Warnings, fmt.Sprintf(format, args...))
}

// Evaluate runs every rule against the pool and its facts. Rules never
// short-circuit each other.
func (e *Evaluator) Evaluate(ev raydium.PoolEvent, in Inputs) Verdict {
	v := &evaluation{cfg: e.cfg}

	v.checkAuthorities(in)
	v.checkLiquidity(in)
	v.checkSupply(in)
	v.checkHolders(in)
	v.checkVolume(in)
	v.checkPriceImpact(in)
	v.checkVolatility(in)
	v.checkRisk(in)
	v.checkTokenAge(in)

	v.verdict.Accepted = len(v.verdict.Reasons) == 0

	fields := logrus.Fields{
		"pool":     ev.PoolAddress.String(),
		"token":    ev.TokenMint().String(),
		"accepted": v.verdict.Accepted,
		"reasons":  v.verdict.Reasons,
	}
	if len(v.verdict.Warnings) > 0 {
		fields["warnings"] = v.verdict.Warnings
	}
	e.log.WithFields(fields).Debug("Safety evaluation complete")

	return v.verdict
}

func (v *evaluation) checkAuthorities(in Inputs) {
	if in.Metadata == nil {
		v.fail(ReasonMintAuthorityUnknown)
		v.fail(ReasonFreezeAuthorityUnknown)
		if in.MetadataErr != nil {
			v.warn("token metadata unavailable: %v", in.MetadataErr)
		}
		return
	}
	if in.Metadata.MintAuthority != nil {
		v.fail(ReasonMintable)
	}
	if in.Metadata.FreezeAuthority != nil {
		v.fail(ReasonFreezable)
	}
}

func (v *evaluation) checkLiquidity(in Inputs) {
	if in.LiquiditySOL == nil {
		v.fail(ReasonLiquidityUnknown)
		if in.LiquidityErr != nil {
			v.warn("liquidity unavailable: %v", in.LiquidityErr)
		}
		return
	}
	if in.LiquiditySOL.LessThan(v.cfg.MinLiquiditySOL) {
		v.fail(ReasonLowLiquidity)
	}
}

func (v *evaluation) checkSupply(in Inputs) {
	if in.Metadata == nil {
		v.fail(ReasonSupplyUnknown)
		return
	}
	supply := utils.ToUIAmount(in.Metadata.Supply, in.Metadata.Decimals)
	if supply.GreaterThan(v.cfg.MaxSupply) {
		v.fail(ReasonSupplyTooHigh)
	}
}

func (v *evaluation) checkHolders(in Inputs) {
	if in.Holders == nil {
		v.fail(ReasonHoldersUnknown)
		if in.HoldersErr != nil {
			v.warn("holder stats unavailable: %v", in.HoldersErr)
		}
	} else if in.Holders.Count < v.cfg.MinHolders {
		v.fail(ReasonTooFewHolders)
	}

	top, ok := topHolderPct(in)
	if !ok {
		v.warn("no holder concentration data, concentration rule skipped")
		return
	}
	if top.GreaterThan(v.cfg.MaxTopHolderPct) {
		v.fail(ReasonHolderConcentration)
	}
}

func topHolderPct(in Inputs) (decimal.Decimal, bool) {
	if in.Holders != nil && in.Holders.TopHolderPct != nil {
		return *in.Holders.TopHolderPct, true
	}
	if in.Risk != nil && len(in.Risk.TopHolders) > 0 {
		top := in.Risk.TopHolders[0].Pct
		for _, h := range in.Risk.TopHolders[1:] {
			top = decimal.Max(top, h.Pct)
		}
		return top, true
	}
	return decimal.Zero, false
}

func (v *evaluation) checkVolume(in Inputs) {
	est, ok := CombineVolume(in.Volumes, v.cfg)
	if !ok {
		v.warn("no volume sources, volume rule skipped")
		return
	}
	if est.Disagree {
		v.warn("volume sources disagree, confidence penalized to %s", est.Confidence.StringFixed(2))
	}
	if est.Confidence.LessThan(v.cfg.MinVolumeConfidence) {
		v.fail(ReasonVolumeLowConfidence)
	}
	if est.Value.LessThan(v.cfg.MinVolume24h) {
		v.fail(ReasonLowVolume)
	}
}

func (v *evaluation) checkPriceImpact(in Inputs) {
	if in.Reserves == nil {
		v.warn("no pool reserves, price impact rule skipped")
		return
	}
	impact := utils.PriceImpactPct(in.Reserves.SOL, v.cfg.TradeSizeSOL)
	if impact.GreaterThan(v.cfg.MaxPriceImpactPct) {
		v.fail(ReasonPriceImpact)
	}
}

func (v *evaluation) checkVolatility(in Inputs) {
	returns := utils.Returns(in.PriceHistory)
	if len(returns) < 2 {
		v.warn("not enough price history, volatility rule skipped")
		return
	}
	// std-dev <= max  <=>  variance <= max²
	limit := v.cfg.MaxVolatility.Mul(v.cfg.MaxVolatility)
	if utils.PopulationVariance(returns).GreaterThan(limit) {
		v.fail(ReasonVolatile)
	}
}

func (v *evaluation) checkRisk(in Inputs) {
	if !in.riskRequested() {
		return
	}
	if in.Risk == nil {
		switch v.cfg.RiskFallback {
		case FallbackFail:
			v.fail(ReasonRiskUnavailable)
		default:
			v.warn("risk provider unavailable, passing: %v", in.RiskErr)
		}
		return
	}

	score := in.Risk.Score
	v.verdict.RiskScore = &score
	if in.Risk.Rugged {
		v.fail(ReasonRugged)
	}
	if score.LessThan(v.cfg.MinRiskScore) {
		v.fail(ReasonRiskScore)
	}
	if v.cfg.RequireLPLocked && in.Risk.LPLockedPct.Sign() <= 0 {
		v.fail(ReasonLPUnlocked)
	}
}

// checkTokenAge runs only when MinTokenAge is set. An unknown age passes.
func (v *evaluation) checkTokenAge(in Inputs) {
	if v.cfg.MinTokenAge <= 0 {
		return
	}
	if in.TokenAge == nil {
		if in.TokenAgeErr != nil {
			v.warn("token age unavailable, passing: %v", in.TokenAgeErr)
		} else {
			v.warn("token age unavailable, passing")
		}
		return
	}
	if *in.TokenAge < v.cfg.MinTokenAge {
		v.fail(ReasonTokenTooNew)
	}
}
