package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akarpos/quantfolio/internal/cache"
	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves scripted series and counts calls.
type fakeProvider struct {
	mu        sync.Mutex
	bars      map[string][]domain.PriceBar
	funds     map[string][]domain.Fundamentals
	barsErr   map[string]error
	fundsErr  map[string]error
	barCalls  int
	fundCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bars:     make(map[string][]domain.PriceBar),
		funds:    make(map[string][]domain.Fundamentals),
		barsErr:  make(map[string]error),
		fundsErr: make(map[string]error),
	}
}

func (f *fakeProvider) GetDailyBars(_ context.Context, symbol string, _, _ time.Time) ([]domain.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls++
	if err := f.barsErr[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeProvider) GetFundamentals(_ context.Context, symbol string, _, _ time.Time) ([]domain.Fundamentals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fundCalls++
	if err := f.fundsErr[symbol]; err != nil {
		return nil, err
	}
	return f.funds[symbol], nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func barsBetween(start, end time.Time, price float64) []domain.PriceBar {
	var out []domain.PriceBar
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, domain.PriceBar{Date: d, Close: price})
	}
	return out
}

func testGateway(p Provider) *Gateway {
	log := logger.New(logger.Config{Level: "error"})
	return NewGateway(p, cache.NewMemory(), NopLimiter{}, RetryPolicy{MaxAttempts: 1}, log)
}

func TestGateway_PointInTimeFiltersToCutoff(t *testing.T) {
	p := newFakeProvider()
	cutoff := day(2021, 6, 1)
	p.bars["AAPL"] = barsBetween(day(2021, 1, 1), day(2021, 12, 31), 100)
	p.funds["AAPL"] = []domain.Fundamentals{
		{ReportDate: day(2021, 3, 31), Revenue: 1},
		{ReportDate: day(2021, 9, 30), Revenue: 2},
	}

	g := testGateway(p)
	series, err := g.Fetch(context.Background(), PointInTime("AAPL", cutoff))
	require.NoError(t, err)

	for _, b := range series.Bars {
		assert.True(t, b.Date.Before(cutoff), "bar %s leaks past cutoff", b.Date)
	}
	require.Len(t, series.Fundamentals, 1)
	assert.Equal(t, day(2021, 3, 31), series.Fundamentals[0].ReportDate)
}

func TestGateway_CacheHitStillRefiltered(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAPL"] = barsBetween(day(2021, 1, 1), day(2021, 12, 31), 100)

	g := testGateway(p)

	// First fetch with a late cutoff populates the cache broadly.
	_, err := g.Fetch(context.Background(), PointInTime("AAPL", day(2021, 12, 1)))
	require.NoError(t, err)
	firstCalls := p.barCalls

	// Second fetch with an earlier cutoff must hit the cache and still
	// filter down.
	series, err := g.Fetch(context.Background(), PointInTime("AAPL", day(2021, 2, 1)))
	require.NoError(t, err)
	assert.Equal(t, firstCalls, p.barCalls, "cache hit should not refetch")
	for _, b := range series.Bars {
		assert.True(t, b.Date.Before(day(2021, 2, 1)))
	}
}

func TestGateway_TotalFailureIsFetchFailure(t *testing.T) {
	p := newFakeProvider()
	p.barsErr["GONE"] = errors.New("404")

	g := testGateway(p)
	_, err := g.Fetch(context.Background(), PointInTime("GONE", day(2021, 6, 1)))
	require.Error(t, err)
	assert.True(t, domain.IsFetchFailure(err))
}

func TestGateway_FundamentalsFailureDegrades(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAPL"] = barsBetween(day(2021, 1, 1), day(2021, 12, 31), 100)
	p.fundsErr["AAPL"] = errors.New("500")

	g := testGateway(p)
	series, err := g.Fetch(context.Background(), PointInTime("AAPL", day(2021, 6, 1)))
	require.NoError(t, err)
	assert.NotEmpty(t, series.Bars)
	assert.Empty(t, series.Fundamentals)
}

func TestGateway_FundamentalsOutliveDailyPriceEntry(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAPL"] = barsBetween(day(2021, 1, 1), day(2021, 12, 31), 100)
	p.funds["AAPL"] = []domain.Fundamentals{{ReportDate: day(2021, 3, 31), Revenue: 1}}

	store := cache.NewMemory()
	log := logger.New(logger.Config{Level: "error"})
	g := NewGateway(p, store, NopLimiter{}, RetryPolicy{MaxAttempts: 1}, log)

	_, err := g.Fetch(context.Background(), Snapshot("AAPL"))
	require.NoError(t, err)
	require.Equal(t, 1, p.fundCalls)

	// The daily price entry expires long before the filing-cycle entry:
	// a price refetch must reuse the cached statements.
	require.NoError(t, store.Invalidate("series:AAPL"))

	series, err := g.Fetch(context.Background(), Snapshot("AAPL"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.barCalls)
	assert.Equal(t, 1, p.fundCalls)
	require.Len(t, series.Fundamentals, 1)
}

func TestGateway_CutoffWithNoHistoryFails(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAPL"] = barsBetween(day(2021, 6, 1), day(2021, 12, 31), 100)

	g := testGateway(p)
	_, err := g.Fetch(context.Background(), PointInTime("AAPL", day(2020, 1, 1)))
	require.Error(t, err)
	assert.True(t, domain.IsFetchFailure(err))
}

func TestRetryPolicy_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_NonRetryableStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		Retryable:     func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := p.Do(func() error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRateLimiter_EnforcesInterval(t *testing.T) {
	// 1200 calls/min = 50ms interval.
	rl := NewRateLimiter(1200)

	start := time.Now()
	rl.Wait()
	rl.Wait()
	rl.Wait()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestRateLimiter_SharedAcrossWorkers(t *testing.T) {
	rl := NewRateLimiter(1200) // 50ms interval

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.Wait()
		}()
	}
	wg.Wait()

	// 4 concurrent waits need at least 3 full intervals.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
