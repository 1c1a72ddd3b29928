// Package yahoo implements the market-data provider client: daily price bars
// via the chart API and quarterly fundamental statements via the fundamentals
// timeseries API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/rs/zerolog"
)

const (
	chartBaseURL      = "https://query1.finance.yahoo.com/v8/finance/chart"
	timeseriesBaseURL = "https://query1.finance.yahoo.com/ws/fundamentals-timeseries/v1/finance/timeseries"
)

// fundamentalMetrics are the quarterly series requested per ticker, fetched
// as one consolidated call to minimize round trips.
var fundamentalMetrics = []string{
	"quarterlyFreeCashFlow",
	"quarterlyOperatingIncome",
	"quarterlyGrossProfit",
	"quarterlyTotalRevenue",
	"quarterlyTotalAssets",
	"quarterlyCurrentLiabilities",
}

// Client is a Yahoo Finance API client
type Client struct {
	client  *http.Client
	baseURL string // chart API base, overridable in tests
	tsURL   string // timeseries API base, overridable in tests
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: chartBaseURL,
		tsURL:   timeseriesBaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// GetDailyBars fetches daily price/volume bars for a symbol over [start, end).
func (c *Client) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quantfolio/1.0)")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]domain.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue // market holiday / missing bar
		}
		bar := domain.PriceBar{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.log.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Msg("Fetched daily bars")

	return bars, nil
}

// GetFundamentals fetches quarterly fundamental statements for a symbol over
// [start, end). All metrics come back in one call; rows are grouped by
// report date into consolidated statements.
func (c *Client) GetFundamentals(ctx context.Context, symbol string, start, end time.Time) ([]domain.Fundamentals, error) {
	u := fmt.Sprintf("%s/%s", c.tsURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("type", strings.Join(fundamentalMetrics, ","))
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quantfolio/1.0)")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var parsed timeseriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse timeseries response: %w", err)
	}
	if parsed.Timeseries.Error != nil {
		return nil, fmt.Errorf("timeseries API error for %s: %s", symbol, parsed.Timeseries.Error.Description)
	}

	// Group metric values by report date.
	byDate := make(map[string]*domain.Fundamentals)
	for _, result := range parsed.Timeseries.Result {
		metaRaw, ok := result["meta"]
		if !ok {
			continue
		}
		var meta timeseriesMeta
		if err := json.Unmarshal(metaRaw, &meta); err != nil || len(meta.Type) == 0 {
			continue
		}
		metric := meta.Type[0]

		rowsRaw, ok := result[metric]
		if !ok {
			continue
		}
		var rows []*timeseriesValue
		if err := json.Unmarshal(rowsRaw, &rows); err != nil {
			continue
		}

		for _, row := range rows {
			if row == nil || row.AsOfDate == "" {
				continue
			}
			f, ok := byDate[row.AsOfDate]
			if !ok {
				reportDate, err := time.Parse("2006-01-02", row.AsOfDate)
				if err != nil {
					continue
				}
				f = &domain.Fundamentals{ReportDate: reportDate}
				byDate[row.AsOfDate] = f
			}
			switch metric {
			case "quarterlyFreeCashFlow":
				f.FreeCashFlow = row.Reported.Raw
			case "quarterlyOperatingIncome":
				f.OperatingIncome = row.Reported.Raw
			case "quarterlyGrossProfit":
				f.GrossProfit = row.Reported.Raw
			case "quarterlyTotalRevenue":
				f.Revenue = row.Reported.Raw
			case "quarterlyTotalAssets":
				f.TotalAssets = row.Reported.Raw
			case "quarterlyCurrentLiabilities":
				f.CurrentLiabilities = row.Reported.Raw
			}
		}
	}

	statements := make([]domain.Fundamentals, 0, len(byDate))
	for _, f := range byDate {
		statements = append(statements, *f)
	}
	sort.Slice(statements, func(i, j int) bool {
		return statements[i].ReportDate.Before(statements[j].ReportDate)
	})

	c.log.Debug().
		Str("symbol", symbol).
		Int("statements", len(statements)).
		Msg("Fetched fundamental statements")

	return statements, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(body)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", bodyStr).
			Str("url", req.URL.String()).
			Msg("API returned non-200 status")
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status)
	}

	return body, nil
}
