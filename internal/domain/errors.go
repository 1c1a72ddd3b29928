package domain

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports invalid run parameters. It is fatal: nothing is
// fetched or simulated after one is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// FetchFailure reports that a ticker could not be fetched at all for one
// rebalance. The ticker is dropped from that rebalance; the run continues.
type FetchFailure struct {
	Ticker string
	Err    error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Ticker, e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// OptimizationFailureReason enumerates why an optimization could not produce
// weights. The caller decides the fallback policy.
type OptimizationFailureReason string

const (
	ReasonTooFewAssets        OptimizationFailureReason = "too_few_assets"
	ReasonInsufficientHistory OptimizationFailureReason = "insufficient_history"
	ReasonInfeasible          OptimizationFailureReason = "infeasible"
)

// OptimizationError reports a rebalance whose optimization failed. The
// enclosing run skips or holds the period per configuration and continues.
type OptimizationError struct {
	Reason OptimizationFailureReason
	Date   time.Time
	Detail string
}

func (e *OptimizationError) Error() string {
	return fmt.Sprintf("optimization failed on %s (%s): %s",
		e.Date.Format("2006-01-02"), e.Reason, e.Detail)
}

// IsOptimizationError reports whether err wraps an OptimizationError.
func IsOptimizationError(err error) bool {
	var oe *OptimizationError
	return errors.As(err, &oe)
}

// IsFetchFailure reports whether err wraps a FetchFailure.
func IsFetchFailure(err error) bool {
	var fe *FetchFailure
	return errors.As(err, &fe)
}
