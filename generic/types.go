/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  Fixed-point day counts, calendar dates, the error taxonomy and the
  per-account ledger arithmetic. Nothing in here knows what an intern or a
  leave category is; the timeoff package layers those on top.

KEY CONCEPTS IN THIS FILE (types.go):
  - Day counts: decimal.Decimal values at half-day granularity
  - Clock: injectable source of "now" so lifecycle rules are testable

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal, never float64, for anything that is summed
  2. Relative mutation: balances move by deltas, never by absolute writes

SEE ALSO:
  - time.go: Date type and calendar iteration
  - ledger.go: Account and Delta arithmetic
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY COUNTS
// =============================================================================

var (
	// OneDay is a full working day.
	OneDay = decimal.NewFromInt(1)

	// HalfDay is an AM or PM half day.
	HalfDay = decimal.NewFromFloat(0.5)

	// DefaultCompassionateEntitlement is granted when the roster carries none.
	DefaultCompassionateEntitlement = decimal.NewFromInt(3)
)

// NewDays builds a day count from a float, rounded to one decimal place the
// way the roster columns are stored (NUMERIC(5,1)).
func NewDays(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(1)
}

// MustParseDays parses a decimal string, returning zero on malformed input.
func MustParseDays(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatDays renders a day count without trailing zeros ("2", "0.5", "10.5").
func FormatDays(d decimal.Decimal) string {
	return d.String()
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current instant. Production uses time.Now.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// FixedClock returns a Clock frozen at t. Used by tests.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
