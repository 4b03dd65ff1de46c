package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DURATION - The one rule shared by submission, approval and remarks
// =============================================================================

// Duration computes the leave duration of [start, end] for portion.
//
// Each Monday-Friday day counts 1.0. A single-day half-day request is always
// exactly 0.5, even when that day falls on a weekend.
func Duration(r generic.DateRange, portion DayPortion) decimal.Decimal {
	if r.SingleDay() && portion.IsHalfDay() {
		return generic.HalfDay
	}
	return decimal.NewFromInt(int64(len(r.Workdays())))
}

// =============================================================================
// MONTHLY BREAKDOWN
// =============================================================================

// MonthDays is the number of leave days falling in one calendar month.
type MonthDays struct {
	Year  int
	Month time.Month
	Days  decimal.Decimal
}

func (m MonthDays) Label() string {
	return fmt.Sprintf("%s %d", m.Month.String()[:3], m.Year)
}

// MonthlyBreakdown splits the duration of r across calendar months, in order.
// Its totals always sum to Duration(r, portion).
func MonthlyBreakdown(r generic.DateRange, portion DayPortion) []MonthDays {
	if r.SingleDay() && portion.IsHalfDay() {
		return []MonthDays{{Year: r.Start.Year(), Month: r.Start.Month(), Days: generic.HalfDay}}
	}

	var out []MonthDays
	for _, d := range r.Workdays() {
		n := len(out)
		if n == 0 || out[n-1].Year != d.Year() || out[n-1].Month != d.Month() {
			out = append(out, MonthDays{Year: d.Year(), Month: d.Month(), Days: decimal.Zero})
			n++
		}
		out[n-1].Days = out[n-1].Days.Add(generic.OneDay)
	}
	return out
}

// =============================================================================
// REMARKS
// =============================================================================

const cancelledRemark = "[Cancelled by intern]"

// BreakdownRemark renders the approval remark, e.g.
// "Leave breakdown: Mar 2025: 2 day(s), Apr 2025: 3 day(s)".
func BreakdownRemark(c Category, r generic.DateRange, portion DayPortion) string {
	prefix := "Leave breakdown"
	if c == CategoryNoPay {
		prefix = "No Pay Leave breakdown"
	}

	months := MonthlyBreakdown(r, portion)
	if len(months) == 0 {
		return prefix + ": no working days"
	}

	parts := make([]string, len(months))
	for i, m := range months {
		parts[i] = fmt.Sprintf("%s: %s day(s)", m.Label(), generic.FormatDays(m.Days))
	}
	return prefix + ": " + strings.Join(parts, ", ")
}

// ShortfallRemark explains an automatic rejection at decision time.
func ShortfallRemark(e *generic.InsufficientBalanceError) string {
	return fmt.Sprintf("Auto-rejected: insufficient %s balance (available %s, requested %s)",
		e.Category, generic.FormatDays(e.Available), generic.FormatDays(e.Requested))
}

// CancelledRemark appends the cancellation audit marker to existing remarks.
func CancelledRemark(existing string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return cancelledRemark
	}
	return existing + " " + cancelledRemark
}
