package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/internal/factors"
	"github.com/akarpos/quantfolio/internal/marketdata"
	"github.com/akarpos/quantfolio/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SkipPolicy decides what happens to a holding period whose optimization
// failed.
type SkipPolicy string

const (
	// SkipPolicyHold keeps the previous rebalance's weights.
	SkipPolicyHold SkipPolicy = "hold"
	// SkipPolicyCash holds the period flat in cash.
	SkipPolicyCash SkipPolicy = "cash"
)

// Scorer produces the factor table for one rebalance.
type Scorer interface {
	Score(ctx context.Context, event domain.RebalanceEvent, securities []domain.Security) (factors.ScoreResult, error)
}

// Allocator turns a factor table into portfolio weights.
type Allocator interface {
	Allocate(event domain.RebalanceEvent, rows []domain.FactorScoreRow, series map[string]domain.HistoricalSeries, securities []domain.Security) (*domain.OptimizationResult, error)
}

// UniverseProvider returns the ranked investable universe.
type UniverseProvider interface {
	List(ctx context.Context) ([]domain.Security, error)
}

// Fetcher is the gateway surface the engine needs for realized prices and
// the benchmark series.
type Fetcher interface {
	Fetch(ctx context.Context, req marketdata.Request) (domain.HistoricalSeries, error)
}

// RunConfig holds the parameters of one backtest run.
type RunConfig struct {
	Start          time.Time
	End            time.Time
	Cadence        domain.Cadence
	InitialCapital float64
	Benchmark      string
	SkipPolicy     SkipPolicy
	RiskFreeRate   float64
}

// Engine drives the walk-forward loop. Rebalances are strictly ordered and
// each depends on the value carried from the previous holding period, so the
// loop itself is sequential; concurrency lives inside the scorer.
type Engine struct {
	universe  UniverseProvider
	scorer    Scorer
	allocator Allocator
	fetcher   Fetcher
	log       zerolog.Logger
}

// NewEngine wires a backtest engine from its collaborators.
func NewEngine(universe UniverseProvider, scorer Scorer, allocator Allocator, fetcher Fetcher, log zerolog.Logger) *Engine {
	return &Engine{
		universe:  universe,
		scorer:    scorer,
		allocator: allocator,
		fetcher:   fetcher,
		log:       log.With().Str("component", "backtest").Logger(),
	}
}

// Run executes a full walk-forward backtest.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*domain.BacktestResult, error) {
	if cfg.InitialCapital <= 0 {
		return nil, &domain.ConfigurationError{Field: "initial_capital", Reason: "must be positive"}
	}
	if cfg.SkipPolicy == "" {
		cfg.SkipPolicy = SkipPolicyHold
	}

	events, err := BuildSchedule(cfg.Start, cfg.End, cfg.Cadence)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Time("start", cfg.Start).
		Time("end", cfg.End).
		Str("cadence", string(cfg.Cadence)).
		Int("rebalances", len(events)).
		Msg("Starting backtest")

	securities, err := e.universe.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	if len(securities) == 0 {
		return nil, &domain.ConfigurationError{Field: "universe", Reason: "no securities available"}
	}

	value := cfg.InitialCapital
	var curve []domain.EquityCurvePoint
	var records []domain.RebalanceRecord
	var periodReturns []float64
	var heldWeights map[string]float64
	simulatedDays := 0

	for i, event := range events {
		periodEnd := cfg.End
		if i+1 < len(events) {
			periodEnd = events[i+1].Timestamp
		}

		record := domain.RebalanceRecord{Event: event}

		scoreRes, err := e.scorer.Score(ctx, event, securities)
		if err != nil {
			return nil, fmt.Errorf("scoring failed on %s: %w", event.Timestamp.Format("2006-01-02"), err)
		}

		result, err := e.allocator.Allocate(event, scoreRes.Rows, scoreRes.Series, securities)
		switch {
		case err == nil:
			record.Result = result
			heldWeights = result.Weights
		case domain.IsOptimizationError(err):
			record.Skipped = true
			record.Reason = err.Error()
			e.log.Warn().
				Err(err).
				Time("rebalance", event.Timestamp).
				Str("skip_policy", string(cfg.SkipPolicy)).
				Msg("Optimization failed, applying skip policy")
			if cfg.SkipPolicy == SkipPolicyCash {
				heldWeights = nil
			}
			// SkipPolicyHold keeps heldWeights from the prior rebalance.
		default:
			return nil, fmt.Errorf("allocation failed on %s: %w", event.Timestamp.Format("2006-01-02"), err)
		}
		records = append(records, record)

		// The simulation of the previous period may already have produced a
		// point on this boundary date; emit each date exactly once.
		if len(curve) == 0 || !curve[len(curve)-1].Date.Equal(event.Timestamp) {
			curve = append(curve, domain.EquityCurvePoint{Date: event.Timestamp, Value: value})
		}

		if !event.Timestamp.Before(periodEnd) {
			continue
		}

		periodStart := value
		if len(heldWeights) > 0 {
			realized, err := e.realizedSeries(ctx, heldWeights)
			if err != nil {
				return nil, err
			}
			points := SimulatePeriod(heldWeights, realized, event.Timestamp, periodEnd, value)
			if len(points) == 0 {
				e.log.Warn().
					Time("rebalance", event.Timestamp).
					Msg("No realized prices for holding period, carrying value flat")
			} else {
				curve = append(curve, points...)
				value = points[len(points)-1].Value
				simulatedDays += len(points)
			}
		}
		if periodStart > 0 {
			periodReturns = append(periodReturns, value/periodStart-1)
		}
	}

	if simulatedDays == 0 {
		return nil, fmt.Errorf("backtest produced no equity curve points between %s and %s",
			cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"))
	}

	benchCurve, benchmarkMetrics := e.benchmark(ctx, cfg)

	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Value
	}
	drawdown := formulas.DrawdownSeries(values)

	metrics := ComputeMetrics(curve, benchCurve, periodReturns, cfg.RiskFreeRate)

	e.log.Info().
		Int("curve_points", len(curve)).
		Float64("final_value", value).
		Float64("total_return", metrics.TotalReturn).
		Msg("Backtest complete")

	return &domain.BacktestResult{
		RunID:            uuid.NewString(),
		Start:            cfg.Start,
		End:              cfg.End,
		Cadence:          cfg.Cadence,
		InitialCapital:   cfg.InitialCapital,
		Benchmark:        cfg.Benchmark,
		Curve:            curve,
		Drawdown:         drawdown,
		Rebalances:       records,
		Metrics:          metrics,
		BenchmarkMetrics: benchmarkMetrics,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// realizedSeries fetches the full (snapshot) history of every held ticker.
// Scoring already warmed the cache, so this rarely hits the provider.
func (e *Engine) realizedSeries(ctx context.Context, weights map[string]float64) (map[string]domain.HistoricalSeries, error) {
	out := make(map[string]domain.HistoricalSeries, len(weights))
	for ticker := range weights {
		s, err := e.fetcher.Fetch(ctx, marketdata.Snapshot(ticker))
		if err != nil {
			if domain.IsFetchFailure(err) {
				e.log.Warn().Err(err).Str("ticker", ticker).Msg("No realized prices for held ticker")
				continue
			}
			return nil, fmt.Errorf("fetching realized prices for %s: %w", ticker, err)
		}
		out[ticker] = s
	}
	return out, nil
}

// benchmark fetches the benchmark series over the run window and computes
// its metrics. Failure degrades to nil, never aborts the run.
func (e *Engine) benchmark(ctx context.Context, cfg RunConfig) ([]domain.EquityCurvePoint, *domain.PerformanceMetrics) {
	if cfg.Benchmark == "" {
		return nil, nil
	}

	s, err := e.fetcher.Fetch(ctx, marketdata.Snapshot(cfg.Benchmark))
	if err != nil {
		e.log.Warn().Err(err).Str("ticker", cfg.Benchmark).Msg("Benchmark fetch failed, skipping comparison")
		return nil, nil
	}

	var benchCurve []domain.EquityCurvePoint
	for _, b := range s.Bars {
		if b.Date.Before(cfg.Start) || b.Date.After(cfg.End) {
			continue
		}
		benchCurve = append(benchCurve, domain.EquityCurvePoint{Date: b.Date, Value: b.Close})
	}
	if len(benchCurve) < 2 {
		e.log.Warn().Str("ticker", cfg.Benchmark).Msg("Benchmark series too short, skipping comparison")
		return nil, nil
	}

	metrics := ComputeMetrics(benchCurve, nil, nil, cfg.RiskFreeRate)
	return benchCurve, &metrics
}
