/*
ledger.go - Per-account entitlement / taken / balance arithmetic

PURPOSE:
  An Account is the spendable state of one leave category for one person.
  A Delta is the only way an Account changes. Stores apply deltas in place
  (UPDATE ... SET balance = balance + ?) and the in-memory store applies them
  through Account.Apply, so both follow the same rules.

CRITICAL INVARIANTS:
  1. balance = entitlement - taken after every committed delta
  2. taken >= 0 (a negative taken delta is clamped at zero)
  3. RELATIVE: deltas are added, never assigned, so two concurrent
     applications against the same account cannot lose an update

CLAMPING:
  Cancelling can restore more than was recorded if half-day rounding has
  compounded. Taken is floored at 0 and the balance is still moved by the
  full delta, matching how the roster store has always behaved. The
  invariant is then checked within a 0.1 day tolerance.

SEE ALSO:
  - timeoff/ledger.go: Domain ledger (debit-and-record, record-only, ...)
  - store/sqlite/sqlite.go: SQL rendition of Apply
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// InvariantTolerance is how far balance+taken may drift from entitlement.
var InvariantTolerance = decimal.NewFromFloat(0.1)

// =============================================================================
// ACCOUNT
// =============================================================================

// Account holds the three ledger fields of one category.
type Account struct {
	Entitlement decimal.Decimal
	Taken       decimal.Decimal
	Balance     decimal.Decimal
}

// NewAccount opens an account with nothing taken yet.
func NewAccount(entitlement decimal.Decimal) Account {
	return Account{Entitlement: entitlement, Taken: decimal.Zero, Balance: entitlement}
}

// OpenAccount opens an account with a carried-over taken figure.
func OpenAccount(entitlement, taken decimal.Decimal) Account {
	return Account{Entitlement: entitlement, Taken: taken, Balance: entitlement.Sub(taken)}
}

// Apply returns the account after d. Taken never drops below zero.
func (a Account) Apply(d Delta) Account {
	taken := a.Taken.Add(d.Taken)
	if taken.IsNegative() {
		taken = decimal.Zero
	}
	return Account{
		Entitlement: a.Entitlement,
		Taken:       taken,
		Balance:     a.Balance.Add(d.Balance),
	}
}

// Covers reports whether the balance can absorb a debit of amount.
func (a Account) Covers(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(a.Balance)
}

// Consistent reports whether balance + taken == entitlement within tolerance.
func (a Account) Consistent() bool {
	return WithinTolerance(a.Balance.Add(a.Taken), a.Entitlement, InvariantTolerance)
}

// =============================================================================
// DELTA
// =============================================================================

// Delta is a relative change to an Account.
type Delta struct {
	Balance decimal.Decimal
	Taken   decimal.Decimal
}

// Debit moves amount from balance into taken.
func Debit(amount decimal.Decimal) Delta {
	return Delta{Balance: amount.Neg(), Taken: amount}
}

// Credit moves amount from taken back into balance.
func Credit(amount decimal.Decimal) Delta {
	return Delta{Balance: amount, Taken: amount.Neg()}
}

// Record increments taken only. Used for uncapped categories.
func Record(amount decimal.Decimal) Delta {
	return Delta{Balance: decimal.Zero, Taken: amount}
}

// Unrecord decrements taken only.
func Unrecord(amount decimal.Decimal) Delta {
	return Delta{Balance: decimal.Zero, Taken: amount.Neg()}
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool { return d.Balance.IsZero() && d.Taken.IsZero() }
