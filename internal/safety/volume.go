package safety

import (
	"raydium-sniper-bot/pkg/utils"

	"github.com/shopspring/decimal"
)

// VolumeEstimate is the combined 24h volume across sources.
type VolumeEstimate struct {
	Value      decimal.Decimal
	Confidence decimal.Decimal
	Sources    int
	Disagree   bool
}

// CombineVolume merges samples with a confidence-weighted average
// Σ(v·c)/Σ(c). A single source keeps its value with confidence scaled by
// SingleSourceFactor. When the coefficient of variation across sources
// (sample standard deviation over mean) is above VolumeDisagreementThreshold the confidence is multiplied by
// VolumeDisagreementPenalty. Samples with non-positive confidence or a
// negative value are ignored; ok is false when none remain.
func CombineVolume(samples []VolumeSample, cfg Config) (est VolumeEstimate, ok bool) {
	var values, weights []decimal.Decimal
	for _, s := range samples {
		if s.Confidence.Sign() <= 0 || s.Value.IsNegative() {
			continue
		}
		values = append(values, s.Value)
		weights = append(weights, s.Confidence)
	}

	switch len(values) {
	case 0:
		return VolumeEstimate{}, false
	case 1:
		return VolumeEstimate{
			Value:      values[0],
			Confidence: weights[0].Mul(cfg.SingleSourceFactor),
			Sources:    1,
		}, true
	}

	combined, ok := utils.WeightedAverage(values, weights)
	if !ok {
		return VolumeEstimate{}, false
	}

	est = VolumeEstimate{
		Value:      combined,
		Confidence: utils.Mean(weights),
		Sources:    len(values),
	}

	// cv > t  <=>  variance > (t·mean)²
	mean := utils.Mean(values)
	limit := cfg.VolumeDisagreementThreshold.Mul(mean)
	if utils.SampleVariance(values).GreaterThan(limit.Mul(limit)) {
		est.Disagree = true
		est.Confidence = est.Confidence.Mul(cfg.VolumeDisagreementPenalty)
	}
	return est, true
}
