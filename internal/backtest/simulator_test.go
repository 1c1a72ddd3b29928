package backtest

import (
	"testing"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsBetween(start time.Time, closes []float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestSimulatePeriod_Compounds(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	// The close on the boundary date seeds; points cover the days after it.
	series := map[string]domain.HistoricalSeries{
		"A": {Ticker: "A", Bars: barsBetween(start, []float64{100, 110, 121})},
	}

	points := SimulatePeriod(map[string]float64{"A": 1.0}, series, start, end, 1000)
	require.Len(t, points, 2)
	assert.Equal(t, start.AddDate(0, 0, 1), points[0].Date)
	assert.InDelta(t, 1100, points[0].Value, 1e-9)
	assert.InDelta(t, 1210, points[1].Value, 1e-9)
}

func TestSimulatePeriod_ExcludesBoundaryDate(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	series := map[string]domain.HistoricalSeries{
		"A": {Ticker: "A", Bars: barsBetween(start.AddDate(0, 0, -2), []float64{90, 95, 100, 110})},
	}

	// The caller owns the point at start; no emitted point may share its
	// date regardless of how much history precedes the boundary.
	points := SimulatePeriod(map[string]float64{"A": 1.0}, series, start, end, 1000)
	require.Len(t, points, 1)
	assert.Equal(t, start.AddDate(0, 0, 1), points[0].Date)
	assert.InDelta(t, 1100, points[0].Value, 1e-9)
}

func TestSimulatePeriod_ForwardFillsMissingDays(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	// B has no bar after the boundary: its weight contributes a zero return
	// while A moves.
	series := map[string]domain.HistoricalSeries{
		"A": {Ticker: "A", Bars: barsBetween(start, []float64{100, 100, 110})},
		"B": {Ticker: "B", Bars: []domain.PriceBar{
			{Date: start, Close: 50},
			{Date: start.AddDate(0, 0, 1), Close: 50},
		}},
	}

	weights := map[string]float64{"A": 0.5, "B": 0.5}
	points := SimulatePeriod(weights, series, start, end, 1000)
	require.Len(t, points, 2)
	assert.InDelta(t, 1000, points[0].Value, 1e-9)
	// Day 2: A +10% at half weight, B forward-filled.
	assert.InDelta(t, 1050, points[1].Value, 1e-9)
}

func TestSimulatePeriod_NoDataCarriesFlat(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	series := map[string]domain.HistoricalSeries{
		"A": {Ticker: "A", Bars: barsBetween(start.AddDate(0, -2, 0), []float64{100, 101})},
	}

	points := SimulatePeriod(map[string]float64{"A": 1.0}, series, start, end, 1000)
	assert.Empty(t, points)
}

func TestSimulatePeriod_CashResidualEarnsNothing(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	series := map[string]domain.HistoricalSeries{
		"A": {Ticker: "A", Bars: barsBetween(start, []float64{100, 110})},
	}

	// Half the portfolio is cash: a 10% move becomes 5%.
	points := SimulatePeriod(map[string]float64{"A": 0.5}, series, start, end, 1000)
	require.Len(t, points, 1)
	assert.InDelta(t, 1050, points[0].Value, 1e-9)
}
