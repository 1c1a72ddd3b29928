package backtest

import (
	"math"
	"sort"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/pkg/formulas"
)

// ComputeMetrics derives the summary statistics block from an equity curve.
// benchmark feeds the alpha/beta regression and may be empty; the two return
// series are matched on their common trading dates, not by position, so
// holidays or fill gaps in either series cannot shift them out of phase.
// periodReturns are per-holding-period returns for the trade statistics.
// Degenerate inputs (short curves, empty series) yield zeros, never panics.
func ComputeMetrics(
	curve []domain.EquityCurvePoint,
	benchmark []domain.EquityCurvePoint,
	periodReturns []float64,
	riskFreeRate float64,
) domain.PerformanceMetrics {
	var m domain.PerformanceMetrics
	if len(curve) < 2 {
		return m
	}

	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Value
	}
	daily := formulas.CalculateReturns(values)
	days := int(curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24)

	m.TotalReturn = values[len(values)-1]/values[0] - 1
	m.CAGR = formulas.CAGR(values[0], values[len(values)-1], days)
	m.Volatility = formulas.AnnualizedVolatility(daily)
	m.Sharpe = formulas.SharpeRatio(daily, riskFreeRate)
	m.Sortino = formulas.SortinoRatio(daily, riskFreeRate)
	m.MaxDrawdown = formulas.MaxDrawdown(values)
	m.Calmar = formulas.CalmarRatio(m.CAGR, m.MaxDrawdown)

	if len(benchmark) > 1 {
		port, bench := alignedReturns(curve, benchmark)
		if len(port) > 1 {
			m.Alpha, m.Beta = formulas.AlphaBeta(port, bench, riskFreeRate)
		}
	}

	m.WinRate, m.AvgWin, m.AvgLoss, m.ProfitFactor = tradeStats(periodReturns)
	return m
}

// returnsByDate attributes each daily return to the date of the later point.
func returnsByDate(points []domain.EquityCurvePoint) map[string]float64 {
	out := make(map[string]float64, len(points))
	for i := 1; i < len(points); i++ {
		if points[i-1].Value > 0 {
			out[points[i].Date.Format("2006-01-02")] = points[i].Value/points[i-1].Value - 1
		}
	}
	return out
}

// alignedReturns intersects two equity curves on their common trading dates
// and returns the paired daily return series in date order.
func alignedReturns(a, b []domain.EquityCurvePoint) ([]float64, []float64) {
	ra := returnsByDate(a)
	rb := returnsByDate(b)

	dates := make([]string, 0, len(ra))
	for d := range ra {
		if _, ok := rb[d]; ok {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)

	retA := make([]float64, len(dates))
	retB := make([]float64, len(dates))
	for i, d := range dates {
		retA[i] = ra[d]
		retB[i] = rb[d]
	}
	return retA, retB
}

// tradeStats summarizes per-rebalance-period returns. Profit factor is
// infinite when there are gains and no losses, 0 when there are no gains.
func tradeStats(periodReturns []float64) (winRate, avgWin, avgLoss, profitFactor float64) {
	if len(periodReturns) == 0 {
		return 0, 0, 0, 0
	}

	var wins, losses int
	var sumWins, sumLosses float64
	for _, r := range periodReturns {
		if r > 0 {
			wins++
			sumWins += r
		} else if r < 0 {
			losses++
			sumLosses += r
		}
	}

	winRate = float64(wins) / float64(len(periodReturns))
	if wins > 0 {
		avgWin = sumWins / float64(wins)
	}
	if losses > 0 {
		avgLoss = sumLosses / float64(losses)
	}
	switch {
	case losses > 0:
		profitFactor = sumWins / math.Abs(sumLosses)
	case wins > 0:
		profitFactor = math.Inf(1)
	}
	return winRate, avgWin, avgLoss, profitFactor
}
