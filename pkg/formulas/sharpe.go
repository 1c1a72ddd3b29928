package formulas

import (
	"math"
)

// SharpeRatio calculates the annualized Sharpe ratio from daily returns.
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Annualized Return - Risk-free Rate) / Annualized Volatility
//
// The annualized return is compounded from the mean daily return. Returns 0
// when the series is too short or volatility is zero (flat series).
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}

	vol := AnnualizedVolatility(dailyReturns)
	if vol == 0 {
		return 0
	}

	annualized := math.Pow(1.0+Mean(dailyReturns), 252) - 1.0
	return (annualized - riskFreeRate) / vol
}

// SortinoRatio calculates the annualized Sortino ratio from daily returns.
// Only downside returns (strictly negative days) contribute to the
// denominator. When the series has no downside days the ratio is defined as
// +Inf; a flat or too-short series yields 0.
func SortinoRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}

	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	annualized := math.Pow(1.0+Mean(dailyReturns), 252) - 1.0

	if len(downside) == 0 {
		if annualized > riskFreeRate {
			return math.Inf(1)
		}
		return 0
	}

	downsideVol := StdDev(downside) * math.Sqrt(252)
	if downsideVol == 0 {
		return 0
	}

	return (annualized - riskFreeRate) / downsideVol
}

// CalmarRatio calculates CAGR over absolute max drawdown.
// Returns 0 when the drawdown is 0.
func CalmarRatio(cagr, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return cagr / math.Abs(maxDrawdown)
}
