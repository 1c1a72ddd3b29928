package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/akarpos/quantfolio/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// PricePanel is an aligned date-by-ticker close price grid. Dates are
// ascending; missing observations are NaN until filled.
type PricePanel struct {
	Dates []string
	Data  map[string][]float64
}

// Sessions returns the number of trading days in the panel.
func (p PricePanel) Sessions() int { return len(p.Dates) }

// BuildPanel aligns the close series of the given tickers on the union of
// their trading dates, keeping at most lookbackSessions of the most recent
// dates. The input series must already be cutoff-filtered.
func BuildPanel(series map[string]domain.HistoricalSeries, tickers []string, lookbackSessions int) PricePanel {
	dateSet := make(map[string]bool)
	byTickerDate := make(map[string]map[string]float64, len(tickers))

	for _, ticker := range tickers {
		s, ok := series[ticker]
		if !ok {
			continue
		}
		closes := make(map[string]float64, len(s.Bars))
		for _, b := range s.Bars {
			d := b.Date.Format("2006-01-02")
			closes[d] = b.Close
			dateSet[d] = true
		}
		byTickerDate[ticker] = closes
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if lookbackSessions > 0 && len(dates) > lookbackSessions {
		dates = dates[len(dates)-lookbackSessions:]
	}

	panel := PricePanel{Dates: dates, Data: make(map[string][]float64, len(tickers))}
	for _, ticker := range tickers {
		prices := make([]float64, len(dates))
		for i, d := range dates {
			if price, ok := byTickerDate[ticker][d]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		panel.Data[ticker] = prices
	}
	return panel
}

// FillMissing forward-fills gaps from the last known close, then back-fills
// any leading gap from the first known close.
func FillMissing(panel PricePanel) PricePanel {
	filled := PricePanel{Dates: panel.Dates, Data: make(map[string][]float64, len(panel.Data))}

	for ticker, prices := range panel.Data {
		out := make([]float64, len(prices))
		copy(out, prices)

		var lastValid float64
		hasLast := false
		for i := range out {
			if math.IsNaN(out[i]) {
				if hasLast {
					out[i] = lastValid
				}
			} else {
				lastValid = out[i]
				hasLast = true
			}
		}

		var nextValid float64
		hasNext := false
		for i := len(out) - 1; i >= 0; i-- {
			if math.IsNaN(out[i]) {
				if hasNext {
					out[i] = nextValid
				}
			} else {
				nextValid = out[i]
				hasNext = true
			}
		}

		filled.Data[ticker] = out
	}
	return filled
}

// DailyReturns computes simple daily returns per ticker from a filled panel.
// Undefined observations (zero or NaN denominators) become 0.
func DailyReturns(panel PricePanel) map[string][]float64 {
	returns := make(map[string][]float64, len(panel.Data))
	for ticker, prices := range panel.Data {
		if len(prices) < 2 {
			returns[ticker] = []float64{}
			continue
		}
		daily := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				daily[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			}
		}
		returns[ticker] = daily
	}
	return returns
}

// sampleCovariance computes the sample covariance matrix of daily returns,
// ordered by tickers.
func sampleCovariance(returns map[string][]float64, tickers []string) ([][]float64, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers provided")
	}

	var obs int
	for _, ticker := range tickers {
		ret, ok := returns[ticker]
		if !ok {
			return nil, fmt.Errorf("missing returns for %s", ticker)
		}
		if obs == 0 {
			obs = len(ret)
		}
		if len(ret) != obs {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for %s", obs, len(ret), ticker)
		}
	}
	if obs < 2 {
		return nil, fmt.Errorf("insufficient observations: need at least 2, got %d", obs)
	}

	n := len(tickers)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returns[tickers[i]], returns[tickers[j]], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}
	return cov, nil
}

// applyLedoitWolfShrinkage shrinks a sample covariance matrix towards a
// constant-correlation target to improve conditioning with short panels.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for
// large-dimensional covariance matrices"
func applyLedoitWolfShrinkage(sampleCov [][]float64) ([][]float64, error) {
	n := len(sampleCov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := make([][]float64, n)
	for i := range target {
		target[i] = make([]float64, n)
		for j := range target[i] {
			if i == j {
				target[i][j] = avgVar
			} else if avgVar > 0 {
				target[i][j] = avgCov
			}
		}
	}

	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target[i][j]
				sumSqDiff += diff * diff
			}
		}
		meanSqDiff := sumSqDiff / float64(n*n)

		var sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				sum += sampleCov[i][j]
				sumSq += sampleCov[i][j] * sampleCov[i][j]
			}
		}
		mean := sum / float64(n*n)
		varSample := sumSq/float64(n*n) - mean*mean

		if varSample > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	shrunk := make([][]float64, n)
	for i := range shrunk {
		shrunk[i] = make([]float64, n)
		for j := range shrunk[i] {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target[i][j]
		}
	}
	return shrunk, nil
}

// BuildCovariance computes the annualized, Ledoit-Wolf-shrunk covariance
// matrix of daily returns, ordered by tickers.
func BuildCovariance(returns map[string][]float64, tickers []string) ([][]float64, error) {
	cov, err := sampleCovariance(returns, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sample covariance: %w", err)
	}
	shrunk, err := applyLedoitWolfShrinkage(cov)
	if err != nil {
		return nil, fmt.Errorf("failed to apply shrinkage: %w", err)
	}
	for i := range shrunk {
		for j := range shrunk[i] {
			shrunk[i][j] *= tradingDaysPerYear
		}
	}
	return shrunk, nil
}

const tradingDaysPerYear = 252
