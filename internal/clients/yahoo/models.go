package yahoo

import "encoding/json"

// chartResponse represents the response from the Yahoo Finance chart API
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// timeseriesResponse represents the response from the fundamentals
// timeseries API. Each result entry carries its metric values under a field
// named after the metric type, so rows are decoded lazily.
type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"timeseries"`
}

type timeseriesMeta struct {
	Type   []string `json:"type"`
	Symbol []string `json:"symbol"`
}

type timeseriesValue struct {
	AsOfDate string `json:"asOfDate"`
	Reported struct {
		Raw float64 `json:"raw"`
	} `json:"reportedValue"`
}
