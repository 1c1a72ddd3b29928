package factors

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// zScoreClip bounds standardized factor values (winsorization).
const zScoreClip = 3.0

// ZScores standardizes raw factor values cross-sectionally. The sample mean
// and standard deviation come from non-missing values only; NaN inputs map
// to 0 (neutral), and outputs are clipped to [-zScoreClip, zScoreClip].
// Deterministic: identical inputs yield identical outputs.
func ZScores(raw []float64) []float64 {
	var present []float64
	for _, v := range raw {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}

	out := make([]float64, len(raw))
	if len(present) < 2 {
		return out // everything neutral
	}

	mean := stat.Mean(present, nil)
	std := stat.StdDev(present, nil)
	if std == 0 || math.IsNaN(std) {
		return out
	}

	for i, v := range raw {
		if math.IsNaN(v) {
			continue
		}
		z := (v - mean) / std
		if z > zScoreClip {
			z = zScoreClip
		} else if z < -zScoreClip {
			z = -zScoreClip
		}
		out[i] = z
	}

	return out
}

// Dispersion measures disagreement among a ticker's factor z-scores as the
// population standard deviation of the three values.
func Dispersion(zs ...float64) float64 {
	if len(zs) == 0 {
		return 0
	}
	mean := stat.Mean(zs, nil)
	var sum float64
	for _, z := range zs {
		d := z - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(zs)))
}
