package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineVolume_WeightedAverage(t *testing.T) {
	est, ok := CombineVolume([]VolumeSample{
		{Source: "birdeye", Value: dec("100000"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("95000"), Confidence: dec("0.7")},
	}, DefaultConfig())

	require.True(t, ok)
	assert.True(t, est.Value.Round(2).Equal(dec("97666.67")), est.Value.String())
	assert.True(t, est.Confidence.Equal(dec("0.75")))
	assert.False(t, est.Disagree)
	assert.Equal(t, 2, est.Sources)
}

func TestCombineVolume_SingleSource(t *testing.T) {
	est, ok := CombineVolume([]VolumeSample{
		{Source: "birdeye", Value: dec("5000"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("9000"), Confidence: dec("0")},
	}, DefaultConfig())

	require.True(t, ok)
	assert.True(t, est.Value.Equal(dec("5000")))
	assert.True(t, est.Confidence.Equal(dec("0.56")))
}

func TestCombineVolume_DisagreementPenalized(t *testing.T) {
	est, ok := CombineVolume([]VolumeSample{
		{Source: "birdeye", Value: dec("100000"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("10000"), Confidence: dec("0.8")},
	}, DefaultConfig())

	require.True(t, ok)
	assert.True(t, est.Disagree)
	assert.True(t, est.Value.Equal(dec("55000")))
	assert.True(t, est.Confidence.Equal(dec("0.4")))
}

func TestCombineVolume_DisagreementUsesSampleDeviation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolumeDisagreementThreshold = dec("0.2")

	// sample cv ≈ 0.2496, population cv ≈ 0.1765
	est, ok := CombineVolume([]VolumeSample{
		{Source: "birdeye", Value: dec("100"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("70"), Confidence: dec("0.8")},
	}, cfg)
	require.True(t, ok)
	assert.True(t, est.Disagree)

	cfg.VolumeDisagreementThreshold = dec("0.25")
	est, ok = CombineVolume([]VolumeSample{
		{Source: "birdeye", Value: dec("100"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("70"), Confidence: dec("0.8")},
	}, cfg)
	require.True(t, ok)
	assert.False(t, est.Disagree)
}

func TestCombineVolume_NoSources(t *testing.T) {
	_, ok := CombineVolume(nil, DefaultConfig())
	assert.False(t, ok)
}

func TestEvaluate_VolumeRules(t *testing.T) {
	cfg := testConfig()
	cfg.MinVolume24h = dec("50000")
	cfg.MinVolumeConfidence = dec("0.6")
	e := newEvaluator(t, cfg)

	in := safeInputs()
	in.Volumes = []VolumeSample{{Source: "birdeye", Value: dec("1000"), Confidence: dec("0.8")}}

	verdict := e.Evaluate(testEvent(), in)
	assert.ElementsMatch(t, []string{ReasonLowVolume, ReasonVolumeLowConfidence}, verdict.Reasons)

	in.Volumes = []VolumeSample{
		{Source: "birdeye", Value: dec("100000"), Confidence: dec("0.8")},
		{Source: "dexscreener", Value: dec("95000"), Confidence: dec("0.7")},
	}
	assert.Empty(t, e.Evaluate(testEvent(), in).Reasons)
}
