// Package universe supplies the ranked list of eligible tickers with sector
// and market-capitalization metadata.
package universe

import (
	"context"

	"github.com/akarpos/quantfolio/internal/domain"
)

// Provider returns the investable universe as of now. The list is not
// point-in-time: tickers that were delisted before the backtest window are
// simply absent, which introduces survivorship bias the caller must accept.
type Provider interface {
	List(ctx context.Context) ([]domain.Security, error)
}

// Static is a fixed universe, used for CLI ticker lists and tests.
type Static struct {
	securities []domain.Security
}

// NewStatic builds a static provider from tickers. Rank follows input order;
// sector and market cap are left to callers that know them.
func NewStatic(securities []domain.Security) *Static {
	ranked := make([]domain.Security, len(securities))
	copy(ranked, securities)
	for i := range ranked {
		if ranked[i].Rank == 0 {
			ranked[i].Rank = i + 1
		}
	}
	return &Static{securities: ranked}
}

// FromTickers builds a static provider with no metadata beyond ticker order.
func FromTickers(tickers []string) *Static {
	securities := make([]domain.Security, len(tickers))
	for i, t := range tickers {
		securities[i] = domain.Security{Ticker: t, Rank: i + 1}
	}
	return &Static{securities: securities}
}

func (s *Static) List(_ context.Context) ([]domain.Security, error) {
	out := make([]domain.Security, len(s.securities))
	copy(out, s.securities)
	return out, nil
}
