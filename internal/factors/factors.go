// Package factors computes point-in-time cross-sectional factor scores.
package factors

import (
	"math"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/markcheno/go-talib"
)

// Factor weights for the composite score.
const (
	WeightValue    = 0.4
	WeightQuality  = 0.4
	WeightMomentum = 0.2

	// MomentumLookback is the target session count for the momentum
	// window; MomentumMinSessions is the hard floor below which momentum
	// is undefined.
	MomentumLookback    = 252
	MomentumMinSessions = 250
)

// RawValue computes the value factor from the latest fundamentals and the
// market capitalization: 0.5*FCF/mcap + 0.5*OpInc/mcap, each yield floored
// at 0 when the numerator is non-positive. NaN when inputs are missing.
func RawValue(series domain.HistoricalSeries, marketCap float64) float64 {
	f := series.LatestFundamentals()
	if f == nil || marketCap <= 0 {
		return math.NaN()
	}

	fcfYield := 0.0
	if f.FreeCashFlow > 0 {
		fcfYield = f.FreeCashFlow / marketCap
	}
	incomeYield := 0.0
	if f.OperatingIncome > 0 {
		incomeYield = f.OperatingIncome / marketCap
	}

	return 0.5*fcfYield + 0.5*incomeYield
}

// RawQuality computes the quality factor: 0.5*ROCE + 0.5*gross margin, with
// undefined components contributing 0. NaN when no fundamentals exist.
func RawQuality(series domain.HistoricalSeries) float64 {
	f := series.LatestFundamentals()
	if f == nil {
		return math.NaN()
	}

	roce := 0.0
	capitalEmployed := f.TotalAssets - f.CurrentLiabilities
	if capitalEmployed > 0 {
		roce = f.OperatingIncome / capitalEmployed
	}

	grossMargin := 0.0
	if f.Revenue > 0 {
		grossMargin = f.GrossProfit / f.Revenue
	}

	return 0.5*roce + 0.5*grossMargin
}

// RawMomentum computes the ~12-month rate of change of the close series.
// NaN when fewer than MomentumMinSessions sessions exist before the cutoff.
func RawMomentum(series domain.HistoricalSeries) float64 {
	closes := series.Closes()
	if len(closes) < MomentumMinSessions {
		return math.NaN()
	}

	period := MomentumLookback
	if period > len(closes)-1 {
		period = len(closes) - 1
	}

	roc := talib.Roc(closes, period)
	last := roc[len(roc)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return math.NaN()
	}

	// talib reports rate of change in percent.
	return last / 100.0
}
