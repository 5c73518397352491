package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

var (
	hundred      = decimal.NewFromInt(100)
	basisPoints  = decimal.NewFromInt(10_000)
	lamportsUnit = decimal.NewFromInt(LamportsPerSOL)
)

// U64 converts an on-chain amount to a decimal without float rounding
func U64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// LamportsToSOL converts lamports to SOL
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return U64(lamports).Div(lamportsUnit)
}

// SOLToLamports converts SOL to lamports, truncating sub-lamport dust
func SOLToLamports(sol decimal.Decimal) uint64 {
	if sol.Sign() <= 0 {
		return 0
	}
	return sol.Mul(lamportsUnit).Truncate(0).BigInt().Uint64()
}

// ToUIAmount scales a raw token amount by its mint decimals
func ToUIAmount(raw uint64, decimals uint8) decimal.Decimal {
	return U64(raw).Shift(-int32(decimals))
}

// FromUIAmount converts a UI amount back to raw base units
func FromUIAmount(ui decimal.Decimal, decimals uint8) uint64 {
	if ui.Sign() <= 0 {
		return 0
	}
	return ui.Shift(int32(decimals)).Truncate(0).BigInt().Uint64()
}

// PercentChange returns (to-from)/from*100, zero when from is zero
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// ApplySlippageBP lowers amount by slippageBP basis points, used for min-amount-out
func ApplySlippageBP(amount uint64, slippageBP int) uint64 {
	if slippageBP <= 0 {
		return amount
	}
	if slippageBP >= 10_000 {
		return 0
	}
	keep := basisPoints.Sub(decimal.NewFromInt(int64(slippageBP)))
	return U64(amount).Mul(keep).Div(basisPoints).Truncate(0).BigInt().Uint64()
}

// WeightedAverage returns Σ(v·w)/Σ(w). ok is false for empty input,
// mismatched lengths or a zero weight sum.
func WeightedAverage(values, weights []decimal.Decimal) (avg decimal.Decimal, ok bool) {
	if len(values) == 0 || len(values) != len(weights) {
		return decimal.Zero, false
	}

	sum, weightSum := decimal.Zero, decimal.Zero
	for i, v := range values {
		sum = sum.Add(v.Mul(weights[i]))
		weightSum = weightSum.Add(weights[i])
	}
	if weightSum.Sign() <= 0 {
		return decimal.Zero, false
	}
	return sum.Div(weightSum), true
}

// Mean calculates arithmetic mean
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}

// PopulationVariance returns Σ(x-mean)²/n
func PopulationVariance(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	mean := Mean(values)
	sum := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		sum = sum.Add(d.Mul(d))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// SampleVariance returns Σ(x-mean)²/(n-1), zero for fewer than two values.
func SampleVariance(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	mean := Mean(values)
	sum := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		sum = sum.Add(d.Mul(d))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values) - 1)))
}

// Returns converts a price series into period returns. Periods starting at
// a zero price are skipped.
func Returns(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}

	out := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].IsZero() {
			continue
		}
		out = append(out, prices[i].Sub(prices[i-1]).Div(prices[i-1]))
	}
	return out
}

// ConstantProductOut returns the output of swapping amountIn against
// reserves x*y=k, ignoring fees.
func ConstantProductOut(reserveIn, reserveOut, amountIn decimal.Decimal) decimal.Decimal {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountIn.Sign() <= 0 {
		return decimal.Zero
	}
	// out = y*dx / (x+dx)
	return reserveOut.Mul(amountIn).Div(reserveIn.Add(amountIn))
}

// PriceImpactPct returns the constant-product price impact of adding
// amountIn to reserveIn: dx/(x+dx)*100.
func PriceImpactPct(reserveIn, amountIn decimal.Decimal) decimal.Decimal {
	if amountIn.Sign() <= 0 {
		return decimal.Zero
	}
	if reserveIn.Sign() <= 0 {
		return hundred
	}
	return amountIn.Div(reserveIn.Add(amountIn)).Mul(hundred)
}
