package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/internal/factors"
	"github.com/akarpos/quantfolio/internal/marketdata"
	"github.com/akarpos/quantfolio/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUniverse struct{ secs []domain.Security }

func (s *stubUniverse) List(context.Context) ([]domain.Security, error) { return s.secs, nil }

type stubScorer struct {
	rows   []domain.FactorScoreRow
	series map[string]domain.HistoricalSeries
}

func (s *stubScorer) Score(_ context.Context, event domain.RebalanceEvent, _ []domain.Security) (factors.ScoreResult, error) {
	truncated := make(map[string]domain.HistoricalSeries, len(s.series))
	for ticker, series := range s.series {
		truncated[ticker] = series.TruncateBefore(event.AsOfCutoff)
	}
	return factors.ScoreResult{Rows: s.rows, Series: truncated}, nil
}

type stubAllocator struct {
	allocate func(event domain.RebalanceEvent) (*domain.OptimizationResult, error)
}

func (s *stubAllocator) Allocate(event domain.RebalanceEvent, _ []domain.FactorScoreRow, _ map[string]domain.HistoricalSeries, _ []domain.Security) (*domain.OptimizationResult, error) {
	return s.allocate(event)
}

type stubFetcher struct{ series map[string]domain.HistoricalSeries }

func (s *stubFetcher) Fetch(_ context.Context, req marketdata.Request) (domain.HistoricalSeries, error) {
	series, ok := s.series[req.Ticker]
	if !ok {
		return domain.HistoricalSeries{}, &domain.FetchFailure{Ticker: req.Ticker}
	}
	if req.Kind == marketdata.KindPointInTime {
		series = series.TruncateBefore(req.Cutoff)
	}
	return series, nil
}

// dailySeries builds one bar per calendar day from start, with closes
// generated by fn(day index).
func dailySeries(ticker string, start time.Time, days int, fn func(i int) float64) domain.HistoricalSeries {
	s := domain.HistoricalSeries{Ticker: ticker}
	for i := 0; i < days; i++ {
		s.Bars = append(s.Bars, domain.PriceBar{Date: start.AddDate(0, 0, i), Close: fn(i)})
	}
	return s
}

func fixedAllocator(weights map[string]float64) *stubAllocator {
	return &stubAllocator{allocate: func(domain.RebalanceEvent) (*domain.OptimizationResult, error) {
		return &domain.OptimizationResult{Weights: weights, Method: domain.MethodMaxSharpe}, nil
	}}
}

func testEngine(series map[string]domain.HistoricalSeries, alloc Allocator) *Engine {
	log := logger.New(logger.Config{Level: "error"})
	var rows []domain.FactorScoreRow
	var secs []domain.Security
	for ticker := range series {
		rows = append(rows, domain.FactorScoreRow{Ticker: ticker, Composite: 1})
		secs = append(secs, domain.Security{Ticker: ticker, MarketCap: 1e9})
	}
	return NewEngine(
		&stubUniverse{secs: secs},
		&stubScorer{rows: rows, series: series},
		alloc,
		&stubFetcher{series: series},
		log,
	)
}

func assertContinuity(t *testing.T, curve []domain.EquityCurvePoint) {
	t.Helper()
	// One point per date, strictly ascending: rebalance boundaries must not
	// re-emit a date the previous period already produced.
	for i := 1; i < len(curve); i++ {
		assert.True(t, curve[i].Date.After(curve[i-1].Date),
			"curve dates must be strictly ascending: %s then %s",
			curve[i-1].Date.Format("2006-01-02"), curve[i].Date.Format("2006-01-02"))
	}
}

func TestEngine_FlatMarket(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	series := map[string]domain.HistoricalSeries{
		"FLAT": dailySeries("FLAT", start.AddDate(-1, 0, 0), 600, func(int) float64 { return 100 }),
	}

	engine := testEngine(series, fixedAllocator(map[string]float64{"FLAT": 1.0}))
	result, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 10000,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0, result.Metrics.TotalReturn, 1e-9)
	assert.InDelta(t, 0, result.Metrics.CAGR, 1e-9)
	assert.InDelta(t, 0, result.Metrics.Volatility, 1e-9)
	assert.InDelta(t, 0, result.Metrics.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0, result.Metrics.Sharpe, 1e-9)
	for _, p := range result.Curve {
		assert.InDelta(t, 10000, p.Value, 1e-6)
	}
}

func TestEngine_SingleAssetDoubling(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Price climbs linearly from 100 to 200 over the year, with history
	// before the start so the first day has a prior close.
	series := map[string]domain.HistoricalSeries{
		"DBL": dailySeries("DBL", start.AddDate(0, 0, -30), 396, func(i int) float64 {
			if i < 30 {
				return 100
			}
			return 100 + 100*float64(i-30)/365.0
		}),
	}

	engine := testEngine(series, fixedAllocator(map[string]float64{"DBL": 1.0}))
	result, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 1000,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Metrics.TotalReturn, 0.02)
	assert.InDelta(t, 1.0, result.Metrics.CAGR, 0.05)
	assertContinuity(t, result.Curve)
}

func TestEngine_BoundaryDatesEmittedOnce(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

	series := map[string]domain.HistoricalSeries{
		"GRW": dailySeries("GRW", start.AddDate(0, 0, -10), 120, func(i int) float64 {
			return 100 * (1 + 0.01*float64(i))
		}),
	}

	engine := testEngine(series, fixedAllocator(map[string]float64{"GRW": 1.0}))
	result, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 1000,
	})
	require.NoError(t, err)

	seen := make(map[string]float64)
	for _, p := range result.Curve {
		d := p.Date.Format("2006-01-02")
		prev, dup := seen[d]
		require.False(t, dup, "date %s emitted twice: %f and %f", d, prev, p.Value)
		seen[d] = p.Value
	}
	assertContinuity(t, result.Curve)
}

func TestEngine_InfeasibleRebalanceHoldsFlat(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

	series := map[string]domain.HistoricalSeries{
		"A": dailySeries("A", start.AddDate(0, 0, -5), 200, func(i int) float64 {
			return 100 + float64(i)
		}),
	}

	failSecond := &stubAllocator{allocate: func(event domain.RebalanceEvent) (*domain.OptimizationResult, error) {
		if event.Timestamp.Month() == time.February {
			return nil, &domain.OptimizationError{
				Reason: domain.ReasonTooFewAssets,
				Date:   event.Timestamp,
				Detail: "1 tickers survived scoring, need at least 2",
			}
		}
		return &domain.OptimizationResult{Weights: map[string]float64{"A": 1.0}, Method: domain.MethodMaxSharpe}, nil
	}}

	engine := testEngine(series, failSecond)
	result, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 1000,
		SkipPolicy:     SkipPolicyCash,
	})
	require.NoError(t, err)
	require.Len(t, result.Rebalances, 4)

	assert.False(t, result.Rebalances[0].Skipped)
	assert.True(t, result.Rebalances[1].Skipped)
	assert.Contains(t, result.Rebalances[1].Reason, "too_few_assets")

	// The skipped period holds flat: the February and March boundary
	// points carry the same value.
	var febValue, marValue float64
	for _, p := range result.Curve {
		if p.Date.Equal(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)) {
			febValue = p.Value
		}
		if p.Date.Equal(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)) {
			marValue = p.Value
		}
	}
	require.NotZero(t, febValue)
	assert.InDelta(t, febValue, marValue, 1e-9)
}

func TestEngine_HoldPolicyKeepsPriorWeights(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	series := map[string]domain.HistoricalSeries{
		"A": dailySeries("A", start.AddDate(0, 0, -5), 200, func(i int) float64 {
			return 100 * (1 + 0.001*float64(i))
		}),
	}

	failSecond := &stubAllocator{allocate: func(event domain.RebalanceEvent) (*domain.OptimizationResult, error) {
		if event.Timestamp.Month() == time.February {
			return nil, &domain.OptimizationError{Reason: domain.ReasonTooFewAssets, Date: event.Timestamp}
		}
		return &domain.OptimizationResult{Weights: map[string]float64{"A": 1.0}, Method: domain.MethodMaxSharpe}, nil
	}}

	engine := testEngine(series, failSecond)
	result, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 1000,
		SkipPolicy:     SkipPolicyHold,
	})
	require.NoError(t, err)

	// Prior weights stay invested through February, so the curve keeps
	// rising after the skipped rebalance.
	last := result.Curve[len(result.Curve)-1]
	var febValue float64
	for _, p := range result.Curve {
		if p.Date.Equal(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)) {
			febValue = p.Value
		}
	}
	require.NotZero(t, febValue)
	assert.Greater(t, last.Value, febValue)
}

func TestEngine_ZeroCurveIsHardFailure(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	series := map[string]domain.HistoricalSeries{
		"A": dailySeries("A", start.AddDate(0, 0, -5), 200, func(i int) float64 { return 100 }),
	}

	alwaysFail := &stubAllocator{allocate: func(event domain.RebalanceEvent) (*domain.OptimizationResult, error) {
		return nil, &domain.OptimizationError{Reason: domain.ReasonTooFewAssets, Date: event.Timestamp}
	}}

	engine := testEngine(series, alwaysFail)
	_, err := engine.Run(context.Background(), RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 1000,
		SkipPolicy:     SkipPolicyCash,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no equity curve points")
}

func TestEngine_InvalidCapital(t *testing.T) {
	engine := testEngine(map[string]domain.HistoricalSeries{}, fixedAllocator(nil))
	_, err := engine.Run(context.Background(), RunConfig{
		Start:          time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		Cadence:        domain.CadenceMonthly,
		InitialCapital: 0,
	})
	var ce *domain.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "initial_capital", ce.Field)
}
