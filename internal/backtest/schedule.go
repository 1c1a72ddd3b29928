// Package backtest orchestrates walk-forward simulation: rebalance calendar,
// per-period scoring and allocation, equity compounding and run persistence.
package backtest

import (
	"fmt"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
)

// cutoffLead is how far before each rebalance timestamp the data visibility
// boundary sits.
const cutoffLead = 24 * time.Hour

// BuildSchedule generates the ordered rebalance calendar between start and
// end. The first event falls on start; each subsequent event advances by the
// cadence while staying within end.
func BuildSchedule(start, end time.Time, cadence domain.Cadence) ([]domain.RebalanceEvent, error) {
	if !start.Before(end) {
		return nil, &domain.ConfigurationError{
			Field:  "start",
			Reason: fmt.Sprintf("start %s must be before end %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		}
	}

	var months int
	switch cadence {
	case domain.CadenceMonthly:
		months = 1
	case domain.CadenceQuarterly:
		months = 3
	default:
		return nil, &domain.ConfigurationError{
			Field:  "cadence",
			Reason: fmt.Sprintf("unrecognized cadence %q", cadence),
		}
	}

	var events []domain.RebalanceEvent
	for i := 0; ; i++ {
		ts := addMonthsClamped(start, i*months)
		if ts.After(end) {
			break
		}
		events = append(events, domain.RebalanceEvent{
			Timestamp:  ts,
			AsOfCutoff: ts.Add(-cutoffLead),
		})
	}
	return events, nil
}

// addMonthsClamped advances the anchor by whole calendar months, clamping
// the day-of-month to the target month's length. Anchoring every event on
// the original start keeps month-end starts from drifting: AddDate alone
// normalizes Jan 31 + 1 month to Mar 3 and the error compounds.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	firstOfTarget := time.Date(anchor.Year(), anchor.Month()+time.Month(months), 1,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())

	day := anchor.Day()
	if last := firstOfTarget.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}
