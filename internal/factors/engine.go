package factors

import (
	"context"
	"sort"
	"sync"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/internal/marketdata"
	"github.com/rs/zerolog"
)

// Fetcher is the gateway surface the engine needs.
type Fetcher interface {
	Fetch(ctx context.Context, req marketdata.Request) (domain.HistoricalSeries, error)
}

// Engine scores a ticker universe at one rebalance, fetching per-ticker
// series through a bounded worker pool.
type Engine struct {
	fetcher Fetcher
	workers int
	log     zerolog.Logger
}

// NewEngine creates a factor scoring engine. workers bounds the fetch pool
// width; the shared rate limiter inside the gateway bounds throughput.
func NewEngine(fetcher Fetcher, workers int, log zerolog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		fetcher: fetcher,
		workers: workers,
		log:     log.With().Str("component", "factor_engine").Logger(),
	}
}

// ScoreResult is the output of one scoring pass: the ranked factor table and
// the point-in-time series each row was computed from.
type ScoreResult struct {
	Rows   []domain.FactorScoreRow
	Series map[string]domain.HistoricalSeries
}

// Score computes the factor table for one rebalance event. Tickers whose
// fetch fails entirely are dropped for this rebalance only and logged; they
// never abort the pass.
func (e *Engine) Score(ctx context.Context, event domain.RebalanceEvent, securities []domain.Security) (ScoreResult, error) {
	type fetchOutcome struct {
		series domain.HistoricalSeries
		err    error
	}

	jobs := make(chan int)
	outcomes := make([]fetchOutcome, len(securities))

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				series, err := e.fetcher.Fetch(ctx, marketdata.PointInTime(securities[i].Ticker, event.AsOfCutoff))
				outcomes[i] = fetchOutcome{series: series, err: err}
			}
		}()
	}
	for i := range securities {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Collect survivors in original universe order.
	var kept []int
	seriesByTicker := make(map[string]domain.HistoricalSeries)
	for i, outcome := range outcomes {
		if outcome.err != nil {
			e.log.Warn().
				Err(outcome.err).
				Str("ticker", securities[i].Ticker).
				Time("rebalance", event.Timestamp).
				Msg("Dropping ticker for this rebalance")
			continue
		}
		kept = append(kept, i)
		seriesByTicker[securities[i].Ticker] = outcome.series
	}

	if len(kept) == 0 {
		return ScoreResult{}, nil
	}

	// Raw factors per survivor.
	valueRaw := make([]float64, len(kept))
	qualityRaw := make([]float64, len(kept))
	momentumRaw := make([]float64, len(kept))
	for j, i := range kept {
		s := seriesByTicker[securities[i].Ticker]
		valueRaw[j] = RawValue(s, securities[i].MarketCap)
		qualityRaw[j] = RawQuality(s)
		momentumRaw[j] = RawMomentum(s)
	}

	// Standardize cross-sectionally, once per rebalance.
	valueZ := ZScores(valueRaw)
	qualityZ := ZScores(qualityRaw)
	momentumZ := ZScores(momentumRaw)

	rows := make([]domain.FactorScoreRow, len(kept))
	for j, i := range kept {
		rows[j] = domain.FactorScoreRow{
			Ticker:      securities[i].Ticker,
			ValueRaw:    valueRaw[j],
			QualityRaw:  qualityRaw[j],
			MomentumRaw: momentumRaw[j],
			ValueZ:      valueZ[j],
			QualityZ:    qualityZ[j],
			MomentumZ:   momentumZ[j],
			Composite:   WeightValue*valueZ[j] + WeightQuality*qualityZ[j] + WeightMomentum*momentumZ[j],
		}
	}

	// Stable sort keeps universe order for ties.
	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].Composite > rows[b].Composite
	})

	e.log.Info().
		Time("rebalance", event.Timestamp).
		Int("universe", len(securities)).
		Int("scored", len(rows)).
		Int("dropped", len(securities)-len(rows)).
		Msg("Scored universe")

	return ScoreResult{Rows: rows, Series: seriesByTicker}, nil
}

// AssertPointInTime panics when any series contains data at or past the
// cutoff. Look-ahead leakage is a defect, not a runtime condition; this runs
// in tests and debug builds.
func AssertPointInTime(series map[string]domain.HistoricalSeries, cutoff domain.RebalanceEvent) {
	for ticker, s := range series {
		for _, b := range s.Bars {
			if !b.Date.Before(cutoff.AsOfCutoff) {
				panic("look-ahead violation: " + ticker + " bar " + b.Date.Format("2006-01-02"))
			}
		}
		for _, f := range s.Fundamentals {
			if !f.ReportDate.Before(cutoff.AsOfCutoff) {
				panic("look-ahead violation: " + ticker + " statement " + f.ReportDate.Format("2006-01-02"))
			}
		}
	}
}
