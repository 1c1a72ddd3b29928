package backtest

import (
	"sort"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
)

// SimulatePeriod compounds the realized daily returns of one holding period
// (start, end] for a fixed weight vector, beginning from startValue. The
// start date itself is the seed: its close anchors the first day's return
// and the caller owns the curve point at start.
//
// A ticker with no bar on a trading day is forward-filled from its last
// known close, contributing a zero return that day. If no held ticker has
// any bar inside the period, the result is empty and the value carries
// forward unchanged.
func SimulatePeriod(
	weights map[string]float64,
	series map[string]domain.HistoricalSeries,
	start, end time.Time,
	startValue float64,
) []domain.EquityCurvePoint {
	type tickerState struct {
		closes    map[string]float64
		lastClose float64
	}

	states := make(map[string]*tickerState, len(weights))
	dateSet := make(map[string]bool)

	for ticker := range weights {
		s, ok := series[ticker]
		if !ok {
			continue
		}
		st := &tickerState{closes: make(map[string]float64)}
		for _, b := range s.Bars {
			if !b.Date.After(start) {
				// Latest close at or before the boundary seeds the
				// first day's return.
				st.lastClose = b.Close
				continue
			}
			if b.Date.After(end) {
				continue
			}
			d := b.Date.Format("2006-01-02")
			st.closes[d] = b.Close
			dateSet[d] = true
		}
		states[ticker] = st
	}

	if len(dateSet) == 0 {
		return nil
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]domain.EquityCurvePoint, 0, len(dates))
	value := startValue
	for _, d := range dates {
		var dayReturn float64
		for ticker, weight := range weights {
			st, ok := states[ticker]
			if !ok {
				continue
			}
			px, traded := st.closes[d]
			if !traded {
				continue
			}
			if st.lastClose > 0 {
				dayReturn += weight * (px/st.lastClose - 1)
			}
			st.lastClose = px
		}

		value *= 1 + dayReturn
		date, _ := time.Parse("2006-01-02", d)
		points = append(points, domain.EquityCurvePoint{Date: date, Value: value})
	}
	return points
}
