package optimization

import (
	"fmt"
	"math"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/rs/zerolog"
)

// Lookback windows for the covariance panel.
const (
	// lookbackSessions bounds the price panel to roughly two years.
	lookbackSessions = 504
	// minHistorySessions is the hard floor below which optimization fails.
	minHistorySessions = 252
	// minAssets is the smallest universe the optimizer accepts.
	minAssets = 2
)

// Params tunes the adapter.
type Params struct {
	TopN            int
	MaxWeight       float64
	MaxSectorWeight float64
	RiskFreeRate    float64
	AlphaScalar     float64
}

// Adapter turns a factor table into portfolio weights: covariance from the
// price panel, market-cap equilibrium prior, score-derived views blended via
// Black-Litterman, then a constrained max-Sharpe solve.
type Adapter struct {
	params Params
	solver *Solver
	log    zerolog.Logger
}

// NewAdapter creates an optimizer adapter.
func NewAdapter(params Params, log zerolog.Logger) *Adapter {
	return &Adapter{
		params: params,
		solver: NewSolver(params.RiskFreeRate),
		log:    log.With().Str("component", "optimizer").Logger(),
	}
}

// Allocate produces the allocation for one rebalance. rows must be sorted
// descending by composite score; series holds the cutoff-filtered history
// each row was scored from. Failure returns an OptimizationError; the caller
// decides whether to hold or go to cash.
func (a *Adapter) Allocate(
	event domain.RebalanceEvent,
	rows []domain.FactorScoreRow,
	series map[string]domain.HistoricalSeries,
	securities []domain.Security,
) (*domain.OptimizationResult, error) {
	topN := a.params.TopN
	if topN <= 0 || topN > len(rows) {
		topN = len(rows)
	}
	selected := rows[:topN]

	tickers := make([]string, len(selected))
	for i, row := range selected {
		tickers[i] = row.Ticker
	}

	if len(tickers) < minAssets {
		return nil, &domain.OptimizationError{
			Reason: domain.ReasonTooFewAssets,
			Date:   event.Timestamp,
			Detail: fmt.Sprintf("%d tickers survived scoring, need at least %d", len(tickers), minAssets),
		}
	}

	panel := FillMissing(BuildPanel(series, tickers, lookbackSessions))
	if panel.Sessions() < minHistorySessions {
		return nil, &domain.OptimizationError{
			Reason: domain.ReasonInsufficientHistory,
			Date:   event.Timestamp,
			Detail: fmt.Sprintf("%d sessions of overlapping history, need at least %d", panel.Sessions(), minHistorySessions),
		}
	}

	returns := DailyReturns(panel)
	covMatrix, err := BuildCovariance(returns, tickers)
	if err != nil {
		return nil, &domain.OptimizationError{
			Reason: domain.ReasonInsufficientHistory,
			Date:   event.Timestamp,
			Detail: err.Error(),
		}
	}

	caps := make(map[string]float64, len(securities))
	sectors := make(map[string]string, len(securities))
	for _, sec := range securities {
		caps[sec.Ticker] = sec.MarketCap
		sectors[sec.Ticker] = sec.Sector
	}

	prior := MarketCapWeights(caps, tickers)
	pi, err := EquilibriumReturns(prior, covMatrix, defaultRiskAversion)
	if err != nil {
		return nil, &domain.OptimizationError{
			Reason: domain.ReasonInfeasible,
			Date:   event.Timestamp,
			Detail: fmt.Sprintf("equilibrium prior: %v", err),
		}
	}

	views := GenerateViews(selected, returns, tickers, a.params.AlphaScalar)
	mu, err := PosteriorReturns(pi, views, covMatrix, tickers, defaultTau)
	if err != nil {
		a.log.Warn().Err(err).Time("rebalance", event.Timestamp).Msg("Posterior blend failed, using equilibrium prior")
		mu = pi
	}

	cons := Constraints{
		MaxWeight:       a.params.MaxWeight,
		MaxSectorWeight: a.params.MaxSectorWeight,
		Sectors:         sectors,
	}

	method := domain.MethodMaxSharpe
	weights, err := a.solver.MaxSharpe(mu, covMatrix, tickers, cons)
	if err != nil {
		a.log.Warn().
			Err(err).
			Time("rebalance", event.Timestamp).
			Msg("Max-Sharpe solve failed, falling back to minimum volatility")
		method = domain.MethodMinVolatility
		weights, err = a.solver.MinVolatility(mu, covMatrix, tickers, cons)
		if err != nil {
			return nil, &domain.OptimizationError{
				Reason: domain.ReasonInfeasible,
				Date:   event.Timestamp,
				Detail: err.Error(),
			}
		}
	}

	expectedReturn, volatility := portfolioStats(weights, mu, covMatrix, tickers)
	sharpe := 0.0
	if volatility > 0 {
		sharpe = (expectedReturn - a.params.RiskFreeRate) / volatility
	}

	a.log.Info().
		Time("rebalance", event.Timestamp).
		Int("assets", len(weights)).
		Str("method", string(method)).
		Float64("expected_return", expectedReturn).
		Float64("volatility", volatility).
		Msg("Solved allocation")

	return &domain.OptimizationResult{
		Weights:        weights,
		ExpectedReturn: expectedReturn,
		Volatility:     volatility,
		SharpeRatio:    sharpe,
		Method:         method,
	}, nil
}

// portfolioStats computes annualized expected return and volatility of a
// weight map against the ordered mu / covariance inputs.
func portfolioStats(weights map[string]float64, mu []float64, covMatrix [][]float64, tickers []string) (float64, float64) {
	w := make([]float64, len(tickers))
	for i, ticker := range tickers {
		w[i] = weights[ticker]
	}

	var ret, variance float64
	for i := range tickers {
		ret += mu[i] * w[i]
		for j := range tickers {
			variance += w[i] * w[j] * covMatrix[i][j]
		}
	}
	return ret, math.Sqrt(math.Max(variance, 0))
}
