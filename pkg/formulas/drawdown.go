package formulas

// MaxDrawdown calculates the maximum drawdown of a value series.
//
// Drawdown Formula:
//
//	Drawdown[i] = (Value[i] - RunningPeak[i]) / RunningPeak[i]
//	Max Drawdown = minimum over the series (a negative number, or 0)
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDD := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// DrawdownSeries calculates the drawdown at every point of a value series.
// Each element is (value - running_max) / running_max, so elements are <= 0.
func DrawdownSeries(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	peak := values[0]
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (v - peak) / peak
		}
	}

	return out
}
