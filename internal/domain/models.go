// Package domain holds the core data types shared across the backtester.
package domain

import "time"

// Cadence is the rebalance frequency of a backtest.
type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
)

// RebalanceEvent is a single point on the rebalance calendar. AsOfCutoff is
// strictly before Timestamp and bounds all data visible to this rebalance.
type RebalanceEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	AsOfCutoff time.Time `json:"as_of_cutoff"`
}

// PriceBar is one daily price/volume observation.
type PriceBar struct {
	Date   time.Time `json:"date" msgpack:"d"`
	Open   float64   `json:"open" msgpack:"o"`
	High   float64   `json:"high" msgpack:"h"`
	Low    float64   `json:"low" msgpack:"l"`
	Close  float64   `json:"close" msgpack:"c"`
	Volume int64     `json:"volume" msgpack:"v"`
}

// Fundamentals is one reported fundamental statement snapshot. ReportDate is
// the filing date used for point-in-time filtering.
type Fundamentals struct {
	ReportDate         time.Time `json:"report_date" msgpack:"rd"`
	FreeCashFlow       float64   `json:"free_cash_flow" msgpack:"fcf"`
	OperatingIncome    float64   `json:"operating_income" msgpack:"oi"`
	GrossProfit        float64   `json:"gross_profit" msgpack:"gp"`
	Revenue            float64   `json:"revenue" msgpack:"rev"`
	TotalAssets        float64   `json:"total_assets" msgpack:"ta"`
	CurrentLiabilities float64   `json:"current_liabilities" msgpack:"cl"`
}

// HistoricalSeries is everything fetched for one ticker: daily bars plus
// fundamental statements, each dated independently.
type HistoricalSeries struct {
	Ticker       string         `json:"ticker" msgpack:"t"`
	Bars         []PriceBar     `json:"bars" msgpack:"b"`
	Fundamentals []Fundamentals `json:"fundamentals" msgpack:"f"`
	FetchedAt    time.Time      `json:"fetched_at" msgpack:"fa"`
}

// TruncateBefore returns a copy of the series with every bar and statement
// dated strictly before cutoff. Cached series may be broader than a
// point-in-time request, so this runs on every cache hit as well as on fresh
// fetches.
func (s HistoricalSeries) TruncateBefore(cutoff time.Time) HistoricalSeries {
	out := HistoricalSeries{Ticker: s.Ticker, FetchedAt: s.FetchedAt}
	for _, b := range s.Bars {
		if b.Date.Before(cutoff) {
			out.Bars = append(out.Bars, b)
		}
	}
	for _, f := range s.Fundamentals {
		if f.ReportDate.Before(cutoff) {
			out.Fundamentals = append(out.Fundamentals, f)
		}
	}
	return out
}

// Closes returns the close prices in date order.
func (s HistoricalSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Latest returns the most recent fundamental statement, or nil when none
// exist.
func (s HistoricalSeries) LatestFundamentals() *Fundamentals {
	if len(s.Fundamentals) == 0 {
		return nil
	}
	latest := s.Fundamentals[0]
	for _, f := range s.Fundamentals[1:] {
		if f.ReportDate.After(latest.ReportDate) {
			latest = f
		}
	}
	return &latest
}

// Security is one member of the investable universe, ranked by the provider.
type Security struct {
	Ticker    string  `json:"ticker"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"market_cap"`
	Rank      int     `json:"rank"`
}

// FactorScoreRow is the factor table entry for one ticker at one rebalance.
// Raw values may be NaN (missing); z-scores of missing raws are 0.
type FactorScoreRow struct {
	Ticker      string  `json:"ticker"`
	ValueRaw    float64 `json:"value_raw"`
	QualityRaw  float64 `json:"quality_raw"`
	MomentumRaw float64 `json:"momentum_raw"`
	ValueZ      float64 `json:"value_z"`
	QualityZ    float64 `json:"quality_z"`
	MomentumZ   float64 `json:"momentum_z"`
	Composite   float64 `json:"composite_score"`
}

// ViewSet holds per-ticker Black-Litterman views derived from composite
// scores. Confidence is in (0, 1].
type ViewSet struct {
	ExpectedExcessReturn map[string]float64 `json:"expected_excess_return"`
	Confidence           map[string]float64 `json:"confidence"`
}

// OptimizationMethod records which objective produced the weights.
type OptimizationMethod string

const (
	MethodMaxSharpe     OptimizationMethod = "max_sharpe"
	MethodMinVolatility OptimizationMethod = "min_volatility"
)

// OptimizationResult is the realized allocation for one rebalance. Weights
// sum to <= 1; the residual is cash.
type OptimizationResult struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	Method         OptimizationMethod `json:"optimization_method"`
}

// EquityCurvePoint is one trading day on the continuous equity curve.
type EquityCurvePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// RebalanceRecord pairs a rebalance event with the allocation it produced.
// Skipped is set when the optimizer failed and the skip policy applied.
type RebalanceRecord struct {
	Event   RebalanceEvent      `json:"event"`
	Result  *OptimizationResult `json:"result,omitempty"`
	Skipped bool                `json:"skipped"`
	Reason  string              `json:"reason,omitempty"`
}

// PerformanceMetrics is the summary statistics block of a run.
type PerformanceMetrics struct {
	TotalReturn  float64 `json:"total_return"`
	CAGR         float64 `json:"cagr"`
	Volatility   float64 `json:"volatility"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Calmar       float64 `json:"calmar"`
	Alpha        float64 `json:"alpha"`
	Beta         float64 `json:"beta"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
}

// BacktestResult is the terminal, durable artifact of one run.
type BacktestResult struct {
	RunID            string              `json:"run_id"`
	Start            time.Time           `json:"start"`
	End              time.Time           `json:"end"`
	Cadence          Cadence             `json:"cadence"`
	InitialCapital   float64             `json:"initial_capital"`
	Benchmark        string              `json:"benchmark"`
	Curve            []EquityCurvePoint  `json:"equity_curve"`
	Drawdown         []float64           `json:"drawdown"`
	Rebalances       []RebalanceRecord   `json:"rebalances"`
	Metrics          PerformanceMetrics  `json:"metrics"`
	BenchmarkMetrics *PerformanceMetrics `json:"benchmark_metrics,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}
