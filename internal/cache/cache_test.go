package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/akarpos/quantfolio/internal/database"
	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := New(db.Conn())
	require.NoError(t, err)
	return c
}

func sampleSeries(ticker string) domain.HistoricalSeries {
	return domain.HistoricalSeries{
		Ticker: ticker,
		Bars: []domain.PriceBar{
			{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Close: 100},
			{Date: time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), Close: 101},
		},
		Fundamentals: []domain.Fundamentals{
			{ReportDate: time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), Revenue: 1e9},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.SetSeries("series:AAPL", sampleSeries("AAPL"), TTLDailyPrices))

	got, ok := c.GetSeries("series:AAPL", 0)
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Len(t, got.Bars, 2)
	assert.Len(t, got.Fundamentals, 1)
	assert.InDelta(t, 101, got.Bars[1].Close, 1e-12)
}

func TestCache_MissingKey(t *testing.T) {
	c := newTestCache(t)

	_, ok := c.GetSeries("series:MSFT", 0)
	assert.False(t, ok)
}

func TestCache_ExpiredEntryIsAbsent(t *testing.T) {
	c := newTestCache(t)

	// Zero TTL expires immediately.
	require.NoError(t, c.SetSeries("series:AAPL", sampleSeries("AAPL"), 0))

	_, ok := c.GetSeries("series:AAPL", 0)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.SetSeries("series:AAPL", sampleSeries("AAPL"), TTLDailyPrices))
	require.NoError(t, c.Invalidate("series:AAPL"))

	_, ok := c.GetSeries("series:AAPL", 0)
	assert.False(t, ok)
}

func TestCache_DeleteExpired(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.SetSeries("series:OLD", sampleSeries("OLD"), 0))
	require.NoError(t, c.SetSeries("series:NEW", sampleSeries("NEW"), TTLDailyPrices))

	deleted, err := c.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, ok := c.GetSeries("series:NEW", 0)
	assert.True(t, ok)
}

func TestCache_LastWriteWins(t *testing.T) {
	c := newTestCache(t)

	first := sampleSeries("AAPL")
	require.NoError(t, c.SetSeries("series:AAPL", first, TTLDailyPrices))

	second := sampleSeries("AAPL")
	second.Bars = append(second.Bars, domain.PriceBar{
		Date: time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC), Close: 102,
	})
	require.NoError(t, c.SetSeries("series:AAPL", second, TTLDailyPrices))

	got, ok := c.GetSeries("series:AAPL", 0)
	require.True(t, ok)
	assert.Len(t, got.Bars, 3)
}

func TestMemory_Store(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.SetSeries("series:AAPL", sampleSeries("AAPL"), time.Minute))
	got, ok := m.GetSeries("series:AAPL", 0)
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Ticker)

	require.NoError(t, m.Invalidate("series:AAPL"))
	_, ok = m.GetSeries("series:AAPL", 0)
	assert.False(t, ok)
}
