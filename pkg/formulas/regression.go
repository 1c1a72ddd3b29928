package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// AlphaBeta runs an OLS regression of portfolio daily returns on benchmark
// daily returns.
//
//	beta  = cov(portfolio, benchmark) / var(benchmark)
//	alpha = annualized portfolio return - (rf + beta*(annualized benchmark return - rf))
//
// Both series must be aligned and of equal length. Returns (0, 0) when the
// regression is undefined (short series or zero benchmark variance).
func AlphaBeta(portfolio, benchmark []float64, riskFreeRate float64) (alpha, beta float64) {
	if len(portfolio) < 2 || len(portfolio) != len(benchmark) {
		return 0, 0
	}

	benchVar := stat.Variance(benchmark, nil)
	if benchVar == 0 {
		return 0, 0
	}

	beta = stat.Covariance(portfolio, benchmark, nil) / benchVar

	portAnnual := math.Pow(1.0+Mean(portfolio), 252) - 1.0
	benchAnnual := math.Pow(1.0+Mean(benchmark), 252) - 1.0
	alpha = portAnnual - (riskFreeRate + beta*(benchAnnual-riskFreeRate))

	return alpha, beta
}
