package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Constraints bound the solved weight vector.
type Constraints struct {
	// MaxWeight caps each individual weight; the lower bound is 0.
	MaxWeight float64
	// MaxSectorWeight caps the aggregate weight of each sector. Zero
	// disables the sector constraint.
	MaxSectorWeight float64
	// Sectors maps ticker to sector for the aggregate cap.
	Sectors map[string]string
}

// Solver turns expected returns and a covariance matrix into portfolio
// weights using penalty-method unconstrained optimization.
type Solver struct {
	riskFreeRate float64
}

// NewSolver creates a solver. riskFreeRate is annualized and only enters the
// max-Sharpe objective.
func NewSolver(riskFreeRate float64) *Solver {
	return &Solver{riskFreeRate: riskFreeRate}
}

const penaltyWeight = 1000.0

// MaxSharpe maximizes (μ'w - r_f) / sqrt(w'Σw) subject to Σw = 1, box and
// sector constraints. Inputs are ordered by tickers.
func (s *Solver) MaxSharpe(mu []float64, covMatrix [][]float64, tickers []string, cons Constraints) (map[string]float64, error) {
	n := len(mu)
	sigma, err := denseCov(covMatrix, n)
	if err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, cons.MaxWeight)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			obj := -(ret - s.riskFreeRate) / stdDev
			obj += sumPenalty(xProj)
			obj += sectorPenalty(xProj, tickers, cons)
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, cons.MaxWeight)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			excess := ret - s.riskFreeRate

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * xProj[j]
				}
				grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
			}

			addSumPenaltyGradient(grad, xProj)
			addSectorPenaltyGradient(grad, xProj, tickers, cons)
		},
	}

	return s.solve(problem, tickers, cons)
}

// MinVolatility minimizes w'Σw subject to the same constraints.
func (s *Solver) MinVolatility(mu []float64, covMatrix [][]float64, tickers []string, cons Constraints) (map[string]float64, error) {
	n := len(mu)
	sigma, err := denseCov(covMatrix, n)
	if err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, cons.MaxWeight)

			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}

			obj := variance
			obj += sumPenalty(xProj)
			obj += sectorPenalty(xProj, tickers, cons)
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, cons.MaxWeight)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xProj[j]
				}
			}

			addSumPenaltyGradient(grad, xProj)
			addSectorPenaltyGradient(grad, xProj, tickers, cons)
		},
	}

	return s.solve(problem, tickers, cons)
}

// solve runs the minimizer with BFGS, retrying with NelderMead when BFGS
// fails, then projects and scales the result into a feasible weight map.
func (s *Solver) solve(problem optimize.Problem, tickers []string, cons Constraints) (map[string]float64, error) {
	n := len(tickers)
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	xFinal := projectToBounds(result.X, cons.MaxWeight)

	// Scaling down preserves the box bounds; scaling up would not, so any
	// shortfall below 1 stays as cash.
	sum := 0.0
	for _, w := range xFinal {
		sum += w
	}
	if sum > 1.0 {
		for i := range xFinal {
			xFinal[i] /= sum
		}
	}

	// The penalty only discourages sector overweights; the returned vector
	// must satisfy the cap exactly.
	applySectorCaps(xFinal, tickers, cons)

	weights := make(map[string]float64, n)
	for i, ticker := range tickers {
		if xFinal[i] > 1e-4 {
			weights[ticker] = xFinal[i]
		}
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("optimization produced an empty portfolio")
	}
	return weights, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

func denseCov(covMatrix [][]float64, n int) (*mat.Dense, error) {
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if len(covMatrix) != n {
		return nil, fmt.Errorf("covariance matrix size %d does not match asset count %d", len(covMatrix), n)
	}
	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		if len(covMatrix[i]) != n {
			return nil, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(covMatrix[i]), n)
		}
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}
	return sigma, nil
}

func projectToBounds(x []float64, maxWeight float64) []float64 {
	upper := maxWeight
	if upper <= 0 {
		upper = 1.0
	}
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0, math.Min(upper, x[i]))
	}
	return proj
}

func sumPenalty(x []float64) float64 {
	sum := 0.0
	for _, w := range x {
		sum += w
	}
	return penaltyWeight * (sum - 1.0) * (sum - 1.0)
}

func addSumPenaltyGradient(grad, x []float64) {
	sum := 0.0
	for _, w := range x {
		sum += w
	}
	for i := range grad {
		grad[i] += 2 * penaltyWeight * (sum - 1.0)
	}
}

// applySectorCaps scales every over-cap sector down to the cap. Scaling down
// keeps the box bounds intact; the freed weight stays as cash.
func applySectorCaps(x []float64, tickers []string, cons Constraints) {
	if cons.MaxSectorWeight <= 0 || len(cons.Sectors) == 0 {
		return
	}

	sectorWeights := make(map[string]float64)
	for i, ticker := range tickers {
		if sector := cons.Sectors[ticker]; sector != "" {
			sectorWeights[sector] += x[i]
		}
	}

	for sector, weight := range sectorWeights {
		if weight <= cons.MaxSectorWeight {
			continue
		}
		factor := cons.MaxSectorWeight / weight
		for i, ticker := range tickers {
			if cons.Sectors[ticker] == sector {
				x[i] *= factor
			}
		}
	}
}

func sectorPenalty(x []float64, tickers []string, cons Constraints) float64 {
	if cons.MaxSectorWeight <= 0 || len(cons.Sectors) == 0 {
		return 0
	}

	sectorWeights := make(map[string]float64)
	for i, ticker := range tickers {
		if sector := cons.Sectors[ticker]; sector != "" {
			sectorWeights[sector] += x[i]
		}
	}

	var penalty float64
	for _, weight := range sectorWeights {
		if weight > cons.MaxSectorWeight {
			over := weight - cons.MaxSectorWeight
			penalty += penaltyWeight * over * over
		}
	}
	return penalty
}

func addSectorPenaltyGradient(grad, x []float64, tickers []string, cons Constraints) {
	if cons.MaxSectorWeight <= 0 || len(cons.Sectors) == 0 {
		return
	}

	sectorWeights := make(map[string]float64)
	for i, ticker := range tickers {
		if sector := cons.Sectors[ticker]; sector != "" {
			sectorWeights[sector] += x[i]
		}
	}

	for sector, weight := range sectorWeights {
		if weight > cons.MaxSectorWeight {
			g := 2 * penaltyWeight * (weight - cons.MaxSectorWeight)
			for i, ticker := range tickers {
				if cons.Sectors[ticker] == sector {
					grad[i] += g
				}
			}
		}
	}
}
