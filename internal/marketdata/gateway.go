// Package marketdata implements the rate-limited fetch gateway between the
// factor engine and the external market-data provider.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/akarpos/quantfolio/internal/cache"
	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/rs/zerolog"
)

// Provider is the external market-data collaborator. Failures are per-ticker
// and do not affect other tickers.
type Provider interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)
	GetFundamentals(ctx context.Context, symbol string, start, end time.Time) ([]domain.Fundamentals, error)
}

// RequestKind distinguishes the two fetch variants at the gateway boundary.
type RequestKind int

const (
	// KindSnapshot is a current-state fetch: cacheable, no cutoff.
	KindSnapshot RequestKind = iota
	// KindPointInTime is a cutoff-bounded fetch: the cache may be
	// consulted, but hit or miss the series is always re-filtered to
	// strictly before the cutoff.
	KindPointInTime
)

// Request is the tagged fetch request. Use Snapshot or PointInTime to build
// one rather than threading an optional cutoff through every layer.
type Request struct {
	Ticker string
	Kind   RequestKind
	Cutoff time.Time
	Start  time.Time // history window start; zero means the default lookback
}

// Snapshot builds a current-state request for a ticker.
func Snapshot(ticker string) Request {
	return Request{Ticker: ticker, Kind: KindSnapshot}
}

// PointInTime builds a cutoff-bounded request for a ticker.
func PointInTime(ticker string, cutoff time.Time) Request {
	return Request{Ticker: ticker, Kind: KindPointInTime, Cutoff: cutoff}
}

// defaultLookbackYears bounds the history window fetched per ticker. Ten
// years covers the longest backtest plus the 2-year optimizer panel.
const defaultLookbackYears = 10

// Gateway fetches consolidated per-ticker series through the shared rate
// limiter, consulting the cache first. It is safe for concurrent use from
// the factor engine's worker pool.
type Gateway struct {
	provider Provider
	store    cache.Store
	limiter  Limiter
	retry    RetryPolicy
	log      zerolog.Logger
}

// NewGateway creates a fetch gateway.
func NewGateway(provider Provider, store cache.Store, limiter Limiter, retry RetryPolicy, log zerolog.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		store:    store,
		limiter:  limiter,
		retry:    retry,
		log:      log.With().Str("component", "fetch_gateway").Logger(),
	}
}

// Fetch resolves a request to a historical series. A full failure (no price
// history at all) is reported as a FetchFailure; missing fundamentals alone
// degrade to an empty statement list.
func (g *Gateway) Fetch(ctx context.Context, req Request) (domain.HistoricalSeries, error) {
	key := "series:" + req.Ticker

	series, ok := g.store.GetSeries(key, cache.TTLDailyPrices)
	if !ok {
		fetched, err := g.fetchRemote(ctx, req)
		if err != nil {
			return domain.HistoricalSeries{}, &domain.FetchFailure{Ticker: req.Ticker, Err: err}
		}
		series = &fetched

		if err := g.store.SetSeries(key, fetched, cache.TTLDailyPrices); err != nil {
			g.log.Warn().Err(err).Str("ticker", req.Ticker).Msg("Failed to cache series")
		}
	}

	if req.Kind == KindPointInTime {
		// Cached data may be broader than this request; always re-filter.
		filtered := series.TruncateBefore(req.Cutoff)
		if len(filtered.Bars) == 0 {
			return domain.HistoricalSeries{}, &domain.FetchFailure{
				Ticker: req.Ticker,
				Err:    fmt.Errorf("no price history before %s", req.Cutoff.Format("2006-01-02")),
			}
		}
		return filtered, nil
	}

	return *series, nil
}

func (g *Gateway) fetchRemote(ctx context.Context, req Request) (domain.HistoricalSeries, error) {
	end := time.Now().UTC()
	start := req.Start
	if start.IsZero() {
		start = end.AddDate(-defaultLookbackYears, 0, 0)
	}

	var bars []domain.PriceBar
	err := g.retry.Do(func() error {
		g.limiter.Wait()
		var err error
		bars, err = g.provider.GetDailyBars(ctx, req.Ticker, start, end)
		return err
	})
	if err != nil {
		return domain.HistoricalSeries{}, fmt.Errorf("price history fetch: %w", err)
	}
	if len(bars) == 0 {
		return domain.HistoricalSeries{}, fmt.Errorf("provider returned no bars")
	}

	return domain.HistoricalSeries{
		Ticker:       req.Ticker,
		Bars:         bars,
		Fundamentals: g.fetchFundamentals(ctx, req.Ticker, start, end),
		FetchedAt:    time.Now().UTC(),
	}, nil
}

// fetchFundamentals resolves statements through their own cache entry, whose
// filing-cycle TTL outlives the daily price snapshot. Failure degrades to an
// empty statement list: price history alone still supports momentum scoring,
// while value and quality score neutral.
func (g *Gateway) fetchFundamentals(ctx context.Context, ticker string, start, end time.Time) []domain.Fundamentals {
	key := "fundamentals:" + ticker
	if cached, ok := g.store.GetSeries(key, cache.TTLFundamentals); ok {
		return cached.Fundamentals
	}

	var fundamentals []domain.Fundamentals
	err := g.retry.Do(func() error {
		g.limiter.Wait()
		var err error
		fundamentals, err = g.provider.GetFundamentals(ctx, ticker, start, end)
		return err
	})
	if err != nil {
		g.log.Warn().
			Err(err).
			Str("ticker", ticker).
			Msg("Fundamentals fetch failed, continuing with prices only")
		return nil
	}

	entry := domain.HistoricalSeries{Ticker: ticker, Fundamentals: fundamentals, FetchedAt: time.Now().UTC()}
	if err := g.store.SetSeries(key, entry, cache.TTLFundamentals); err != nil {
		g.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache fundamentals")
	}
	return fundamentals
}
