package optimization

import (
	"fmt"

	"github.com/akarpos/quantfolio/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Black-Litterman model parameters.
const (
	// defaultRiskAversion is the market risk aversion δ used for implied
	// equilibrium returns.
	defaultRiskAversion = 2.5
	// defaultTau scales the uncertainty of the equilibrium prior.
	defaultTau = 0.05
)

// MarketCapWeights normalizes market capitalizations into prior weights,
// ordered by tickers. Tickers with non-positive caps get weight 0.
func MarketCapWeights(caps map[string]float64, tickers []string) []float64 {
	w := make([]float64, len(tickers))
	var total float64
	for _, ticker := range tickers {
		if cap := caps[ticker]; cap > 0 {
			total += cap
		}
	}
	if total <= 0 {
		// Degenerate prior: equal weight.
		for i := range w {
			w[i] = 1.0 / float64(len(tickers))
		}
		return w
	}
	for i, ticker := range tickers {
		if cap := caps[ticker]; cap > 0 {
			w[i] = cap / total
		}
	}
	return w
}

// EquilibriumReturns computes the market-implied prior Π = δΣw.
func EquilibriumReturns(marketWeights []float64, covMatrix [][]float64, riskAversion float64) ([]float64, error) {
	n := len(marketWeights)
	if n == 0 || len(covMatrix) != n {
		return nil, fmt.Errorf("covariance matrix size %d does not match weights %d", len(covMatrix), n)
	}

	w := mat.NewVecDense(n, marketWeights)
	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	var sigmaW mat.VecDense
	sigmaW.MulVec(sigma, w)

	pi := make([]float64, n)
	for i := range pi {
		pi[i] = riskAversion * sigmaW.AtVec(i)
	}
	return pi, nil
}

// PosteriorReturns blends the equilibrium prior with absolute views using
// the Black-Litterman update:
//
//	E[R] = [(τΣ)^-1 + P'Ω^-1P]^-1 * [(τΣ)^-1Π + P'Ω^-1Q]
//
// Each ticker with a view contributes one absolute view row. View noise Ω is
// diagonal, scaled inversely to confidence: ω_i = τ·σ_ii·(1-c_i)/c_i.
func PosteriorReturns(pi []float64, views domain.ViewSet, covMatrix [][]float64, tickers []string, tau float64) ([]float64, error) {
	n := len(tickers)
	if len(pi) != n || len(covMatrix) != n {
		return nil, fmt.Errorf("dimension mismatch: pi=%d cov=%d tickers=%d", len(pi), len(covMatrix), n)
	}

	// Collect view rows in ticker order.
	var viewIdx []int
	for i, ticker := range tickers {
		if _, ok := views.ExpectedExcessReturn[ticker]; ok {
			viewIdx = append(viewIdx, i)
		}
	}
	if len(viewIdx) == 0 {
		out := make([]float64, n)
		copy(out, pi)
		return out, nil
	}

	m := len(viewIdx)
	P := mat.NewDense(m, n, nil)
	Q := mat.NewVecDense(m, nil)
	omega := mat.NewDense(m, m, nil)

	for row, i := range viewIdx {
		ticker := tickers[i]
		P.Set(row, i, 1.0)
		Q.SetVec(row, views.ExpectedExcessReturn[ticker])

		conf := views.Confidence[ticker]
		if conf <= 0 {
			conf = 1e-3
		} else if conf > 1 {
			conf = 1
		}
		noise := tau * covMatrix[i][i] * (1 - conf) / conf
		if noise < 1e-10 {
			noise = 1e-10
		}
		omega.Set(row, row, noise)
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}
	piVec := mat.NewVecDense(n, pi)

	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(tau, sigma)

	var tauSigmaInv mat.Dense
	if err := tauSigmaInv.Inverse(tauSigma); err != nil {
		return nil, fmt.Errorf("failed to invert τΣ: %w", err)
	}

	var omegaInv mat.Dense
	if err := omegaInv.Inverse(omega); err != nil {
		return nil, fmt.Errorf("failed to invert Ω: %w", err)
	}

	var PTrans mat.Dense
	PTrans.CloneFrom(P.T())
	var PTransOmegaInv mat.Dense
	PTransOmegaInv.Mul(&PTrans, &omegaInv)
	var PTransOmegaInvP mat.Dense
	PTransOmegaInvP.Mul(&PTransOmegaInv, P)

	var M mat.Dense
	M.Add(&tauSigmaInv, &PTransOmegaInvP)
	var MInv mat.Dense
	if err := MInv.Inverse(&M); err != nil {
		return nil, fmt.Errorf("failed to invert posterior precision: %w", err)
	}

	var tauSigmaInvPi mat.VecDense
	tauSigmaInvPi.MulVec(&tauSigmaInv, piVec)
	var PTransOmegaInvQ mat.VecDense
	PTransOmegaInvQ.MulVec(&PTransOmegaInv, Q)
	var rhs mat.VecDense
	rhs.AddVec(&tauSigmaInvPi, &PTransOmegaInvQ)

	var posterior mat.VecDense
	posterior.MulVec(&MInv, &rhs)

	out := make([]float64, n)
	for i := range out {
		out[i] = posterior.AtVec(i)
	}
	return out, nil
}
