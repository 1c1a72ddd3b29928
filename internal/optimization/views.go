package optimization

import (
	"math"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/internal/factors"
	"gonum.org/v1/gonum/stat"
)

// Confidence buckets for views, assigned by how tightly a ticker's three
// factor z-scores agree. Tight agreement earns the top bucket.
var confidenceBuckets = []struct {
	maxDispersion float64
	confidence    float64
}{
	{0.5, 0.8},
	{1.0, 0.6},
	{1.5, 0.4},
	{math.Inf(1), 0.2},
}

// bucketConfidence maps a dispersion value to its confidence bucket.
func bucketConfidence(dispersion float64) float64 {
	for _, b := range confidenceBuckets {
		if dispersion < b.maxDispersion {
			return b.confidence
		}
	}
	return 0.2
}

// universeMeanVolatility is the average annualized volatility of the daily
// return series across the panel.
func universeMeanVolatility(returns map[string][]float64, tickers []string) float64 {
	var sum float64
	var count int
	for _, ticker := range tickers {
		ret := returns[ticker]
		if len(ret) < 2 {
			continue
		}
		sum += stat.StdDev(ret, nil) * math.Sqrt(tradingDaysPerYear)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// GenerateViews converts composite scores into absolute Black-Litterman
// views. The expected excess return scales the composite by the universe's
// mean annualized volatility and a fixed alpha scalar; confidence comes from
// the agreement among the ticker's three factor z-scores.
func GenerateViews(rows []domain.FactorScoreRow, returns map[string][]float64, tickers []string, alphaScalar float64) domain.ViewSet {
	vol := universeMeanVolatility(returns, tickers)

	views := domain.ViewSet{
		ExpectedExcessReturn: make(map[string]float64, len(rows)),
		Confidence:           make(map[string]float64, len(rows)),
	}
	for _, row := range rows {
		views.ExpectedExcessReturn[row.Ticker] = row.Composite * vol * alphaScalar
		views.Confidence[row.Ticker] = bucketConfidence(factors.Dispersion(row.ValueZ, row.QualityZ, row.MomentumZ))
	}
	return views
}
