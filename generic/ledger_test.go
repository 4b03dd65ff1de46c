package generic_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func days(v float64) decimal.Decimal {
	return generic.NewDays(v)
}

func assertDays(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, days(want).Equal(got), append([]any{"want %v, got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// ACCOUNT ARITHMETIC
// =============================================================================

func TestAccount_DebitThenCredit_RoundTrips(t *testing.T) {
	acct := generic.NewAccount(days(10))

	acct = acct.Apply(generic.Debit(days(2)))
	assertDays(t, 8, acct.Balance)
	assertDays(t, 2, acct.Taken)

	acct = acct.Apply(generic.Credit(days(2)))
	assertDays(t, 10, acct.Balance)
	assertDays(t, 0, acct.Taken)
	assert.True(t, acct.Consistent())
}

func TestAccount_RecordOnly_LeavesBalance(t *testing.T) {
	acct := generic.NewAccount(decimal.Zero)

	acct = acct.Apply(generic.Record(days(10)))
	assertDays(t, 0, acct.Balance)
	assertDays(t, 10, acct.Taken)

	acct = acct.Apply(generic.Unrecord(days(4.5)))
	assertDays(t, 5.5, acct.Taken)
}

func TestAccount_TakenClampedAtZero(t *testing.T) {
	acct := generic.OpenAccount(days(5), days(0.5))

	acct = acct.Apply(generic.Credit(days(1)))

	assertDays(t, 0, acct.Taken, "taken must not go negative")
	assertDays(t, 5.5, acct.Balance)
}

func TestAccount_Covers(t *testing.T) {
	acct := generic.NewAccount(days(1))

	assert.True(t, acct.Covers(days(1)))
	assert.True(t, acct.Covers(days(0.5)))
	assert.False(t, acct.Covers(days(1.5)))
}

// Any interleaving of matched debits and credits keeps the ledger invariant.
func TestAccount_Invariant_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for run := 0; run < 200; run++ {
		acct := generic.NewAccount(days(float64(rng.Intn(20))))
		var outstanding []decimal.Decimal

		for step := 0; step < 50; step++ {
			if len(outstanding) > 0 && rng.Intn(3) == 0 {
				i := rng.Intn(len(outstanding))
				acct = acct.Apply(generic.Credit(outstanding[i]))
				outstanding = append(outstanding[:i], outstanding[i+1:]...)
				continue
			}
			amount := days(float64(rng.Intn(6)) * 0.5)
			if !acct.Covers(amount) {
				continue
			}
			acct = acct.Apply(generic.Debit(amount))
			outstanding = append(outstanding, amount)
		}

		require.True(t, acct.Consistent(), "run %d: balance %s + taken %s != entitlement %s",
			run, acct.Balance, acct.Taken, acct.Entitlement)
		require.False(t, acct.Taken.IsNegative())
	}
}

// =============================================================================
// DATES
// =============================================================================

func TestParseDate_AcceptsBothLayouts(t *testing.T) {
	iso, err := generic.ParseDate("2025-03-10")
	require.NoError(t, err)
	chat, err := generic.ParseDate("10-03-2025")
	require.NoError(t, err)

	assert.True(t, iso.Equal(chat))
	assert.Equal(t, time.Monday, iso.Weekday())

	_, err = generic.ParseDate("March 10")
	assert.Error(t, err)
}

func TestDateRange_Workdays(t *testing.T) {
	r := generic.DateRange{
		Start: generic.NewDate(2025, time.March, 7),  // Friday
		End:   generic.NewDate(2025, time.March, 11), // Tuesday
	}

	assert.Len(t, r.Days(), 5)
	assert.Len(t, r.Workdays(), 3)

	inverted := generic.DateRange{Start: r.End, End: r.Start}
	assert.False(t, inverted.Valid())
	assert.Empty(t, inverted.Days())
}
