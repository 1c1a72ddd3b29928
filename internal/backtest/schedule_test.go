package backtest

import (
	"testing"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule_Monthly(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	events, err := BuildSchedule(start, end, domain.CadenceMonthly)
	require.NoError(t, err)
	require.Len(t, events, 12)

	assert.Equal(t, start, events[0].Timestamp)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Timestamp.AddDate(0, 1, 0), events[i].Timestamp)
		assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp))
	}
	for _, e := range events {
		assert.True(t, e.AsOfCutoff.Before(e.Timestamp))
		assert.Equal(t, 24*time.Hour, e.Timestamp.Sub(e.AsOfCutoff))
		assert.False(t, e.Timestamp.After(end))
	}
}

func TestBuildSchedule_MonthEndAnchorDoesNotDrift(t *testing.T) {
	start := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

	events, err := BuildSchedule(start, end, domain.CadenceMonthly)
	require.NoError(t, err)

	// Jan 31 + AddDate would normalize to Mar 3 and stick there; the
	// schedule instead clamps to each month's last day and recovers the
	// anchor day in 31-day months.
	want := []time.Time{
		time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	require.Len(t, events, len(want))
	for i, w := range want {
		assert.Equal(t, w, events[i].Timestamp)
	}
}

func TestBuildSchedule_Quarterly(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	events, err := BuildSchedule(start, end, domain.CadenceQuarterly)
	require.NoError(t, err)
	require.Len(t, events, 5)

	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Timestamp.AddDate(0, 3, 0), events[i].Timestamp)
	}
}

func TestBuildSchedule_ConfigurationErrors(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	var ce *domain.ConfigurationError

	_, err := BuildSchedule(start, start, domain.CadenceMonthly)
	require.ErrorAs(t, err, &ce)

	_, err = BuildSchedule(start.AddDate(1, 0, 0), start, domain.CadenceMonthly)
	require.ErrorAs(t, err, &ce)

	_, err = BuildSchedule(start, start.AddDate(1, 0, 0), domain.Cadence("weekly"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cadence", ce.Field)
}
