package timeoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// DURATION RULE
// =============================================================================

func TestDuration(t *testing.T) {
	tests := []struct {
		name    string
		start   generic.Date
		end     generic.Date
		portion timeoff.DayPortion
		want    float64
	}{
		{"full work week", date(2025, time.March, 10), date(2025, time.March, 14), timeoff.PortionFullDay, 5},
		{"weekend only", date(2025, time.March, 8), date(2025, time.March, 9), timeoff.PortionFullDay, 0},
		{"spans a weekend", date(2025, time.March, 7), date(2025, time.March, 11), timeoff.PortionFullDay, 3},
		{"single weekday", date(2025, time.March, 12), date(2025, time.March, 12), timeoff.PortionFullDay, 1},
		{"wednesday morning", date(2025, time.March, 12), date(2025, time.March, 12), timeoff.PortionHalfAM, 0.5},
		{"wednesday afternoon", date(2025, time.March, 12), date(2025, time.March, 12), timeoff.PortionHalfPM, 0.5},
		// half-days are not checked against the workday rule
		{"saturday half-day", date(2025, time.March, 8), date(2025, time.March, 8), timeoff.PortionHalfAM, 0.5},
		{"two weeks", date(2025, time.March, 10), date(2025, time.March, 21), timeoff.PortionFullDay, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeoff.Duration(generic.DateRange{Start: tt.start, End: tt.end}, tt.portion)
			assertDays(t, tt.want, got)
		})
	}
}

func TestMonthlyBreakdown_SumsToDuration(t *testing.T) {
	// GIVEN: Thu 27 Mar - Fri 4 Apr 2025
	r := generic.DateRange{Start: date(2025, time.March, 27), End: date(2025, time.April, 4)}

	months := timeoff.MonthlyBreakdown(r, timeoff.PortionFullDay)
	require.Len(t, months, 2)
	assert.Equal(t, "Mar 2025", months[0].Label())
	assertDays(t, 3, months[0].Days)
	assert.Equal(t, "Apr 2025", months[1].Label())
	assertDays(t, 4, months[1].Days)

	total := months[0].Days.Add(months[1].Days)
	assert.True(t, total.Equal(timeoff.Duration(r, timeoff.PortionFullDay)))
}

// =============================================================================
// REMARKS
// =============================================================================

func TestBreakdownRemark(t *testing.T) {
	r := generic.DateRange{Start: date(2025, time.March, 27), End: date(2025, time.April, 4)}

	assert.Equal(t, "Leave breakdown: Mar 2025: 3 day(s), Apr 2025: 4 day(s)",
		timeoff.BreakdownRemark(timeoff.CategoryAnnual, r, timeoff.PortionFullDay))
	assert.Equal(t, "No Pay Leave breakdown: Mar 2025: 3 day(s), Apr 2025: 4 day(s)",
		timeoff.BreakdownRemark(timeoff.CategoryNoPay, r, timeoff.PortionFullDay))

	half := generic.DateRange{Start: date(2025, time.March, 12), End: date(2025, time.March, 12)}
	assert.Equal(t, "Leave breakdown: Mar 2025: 0.5 day(s)",
		timeoff.BreakdownRemark(timeoff.CategoryMedical, half, timeoff.PortionHalfPM))

	weekend := generic.DateRange{Start: date(2025, time.March, 8), End: date(2025, time.March, 9)}
	assert.Equal(t, "Leave breakdown: no working days",
		timeoff.BreakdownRemark(timeoff.CategoryAnnual, weekend, timeoff.PortionFullDay))
}

func TestShortfallRemark(t *testing.T) {
	err := &generic.InsufficientBalanceError{
		Category:  timeoff.CategoryMedical.String(),
		Available: days(1),
		Requested: days(3),
	}
	assert.Equal(t, "Auto-rejected: insufficient Medical Leave balance (available 1, requested 3)",
		timeoff.ShortfallRemark(err))
	assertDays(t, 2, err.Shortfall())
}

func TestCancelledRemark(t *testing.T) {
	assert.Equal(t, "Leave breakdown: Mar 2025: 2 day(s) [Cancelled by intern]",
		timeoff.CancelledRemark("Leave breakdown: Mar 2025: 2 day(s)"))
	assert.Equal(t, "[Cancelled by intern]", timeoff.CancelledRemark(""))
}

// =============================================================================
// CLOSED VARIANTS
// =============================================================================

func TestParseCategory(t *testing.T) {
	for _, c := range timeoff.Categories {
		got, err := timeoff.ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)

		got, err = timeoff.ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := timeoff.ParseCategory("no pay leave")
	require.NoError(t, err)
	assert.Equal(t, timeoff.CategoryNoPay, got)

	_, err = timeoff.ParseCategory("Birthday Leave")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCategory_LedgerOperation(t *testing.T) {
	for _, c := range timeoff.Categories {
		consume := c.ConsumeDelta(days(2))
		release := c.ReleaseDelta(days(2))
		if c == timeoff.CategoryNoPay {
			assert.True(t, consume.Balance.IsZero(), "no pay never touches balance")
			assertDays(t, 2, consume.Taken)
			assert.True(t, release.Balance.IsZero())
			assertDays(t, -2, release.Taken)
			continue
		}
		assertDays(t, -2, consume.Balance, c)
		assertDays(t, 2, consume.Taken, c)
		assertDays(t, 2, release.Balance, c)
		assertDays(t, -2, release.Taken, c)
	}
}

func TestParsePortion(t *testing.T) {
	for in, want := range map[string]timeoff.DayPortion{
		"":              timeoff.PortionFullDay,
		"Full Day":      timeoff.PortionFullDay,
		"am":            timeoff.PortionHalfAM,
		"Half Day (PM)": timeoff.PortionHalfPM,
	} {
		got, err := timeoff.ParsePortion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := timeoff.ParsePortion("quarter")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCanTransition(t *testing.T) {
	all := []timeoff.Status{
		timeoff.StatusPending, timeoff.StatusApproved, timeoff.StatusRejected,
		timeoff.StatusCancelled, timeoff.StatusAutoApproved,
	}
	allowed := map[[2]timeoff.Status]bool{
		{timeoff.StatusPending, timeoff.StatusApproved}:       true,
		{timeoff.StatusPending, timeoff.StatusRejected}:       true,
		{timeoff.StatusPending, timeoff.StatusAutoApproved}:   true,
		{timeoff.StatusPending, timeoff.StatusCancelled}:      true,
		{timeoff.StatusApproved, timeoff.StatusCancelled}:     true,
		{timeoff.StatusAutoApproved, timeoff.StatusCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]timeoff.Status{from, to}], timeoff.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
