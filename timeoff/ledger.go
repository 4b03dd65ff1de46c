/*
ledger.go - Intern leave balance ledger

PURPOSE:
  Applies debits and credits to an intern's per-category accounts. Every
  operation is a relative delta sent through Store.AdjustBalance and
  Store.AdjustTaken inside one Store.WithTx, so a debit never lands without
  its matching taken-increment.

OPERATIONS:
  DebitAndRecord:     balance -= d, taken += d   (capped categories, approval)
  CreditAndUnrecord:  balance += d, taken -= d   (capped categories, cancellation)
  RecordOnly:         taken += d                 (No Pay Leave, approval)
  UnrecordOnly:       taken -= d                 (No Pay Leave, cancellation)

  Consume and Release pick the right pair from the category, so callers never
  name a ledger field.

CONCURRENCY:
  Two approvals against the same intern from different applications both
  issue relative updates. Whatever order they commit in, both deltas land.
  Balance checks that must see the latest committed value run inside the
  same transaction as the debit (see engine.go).

EXAMPLE:
  ledger := timeoff.NewBalanceLedger(store)
  err := ledger.DebitAndRecord(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(2))

  // Inside an existing transaction:
  store.WithTx(ctx, func(tx timeoff.Store) error {
      return timeoff.NewBalanceLedger(tx).Consume(ctx, handle, category, days)
  })
*/
package timeoff

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// BalanceLedger mutates intern accounts through a Store.
type BalanceLedger struct {
	Store Store
}

func NewBalanceLedger(store Store) *BalanceLedger {
	return &BalanceLedger{Store: store}
}

// DebitAndRecord atomically decrements balance and increments taken.
func (l *BalanceLedger) DebitAndRecord(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, generic.Debit(d))
}

// CreditAndUnrecord atomically increments balance and decrements taken.
// Taken is clamped at zero by the store.
func (l *BalanceLedger) CreditAndUnrecord(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, generic.Credit(d))
}

// RecordOnly increments taken without touching the balance.
func (l *BalanceLedger) RecordOnly(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, generic.Record(d))
}

// UnrecordOnly decrements taken without touching the balance.
func (l *BalanceLedger) UnrecordOnly(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, generic.Unrecord(d))
}

// Consume applies the approval-time operation for c.
func (l *BalanceLedger) Consume(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, c.ConsumeDelta(d))
}

// Release applies the cancellation-time operation for c.
func (l *BalanceLedger) Release(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	return l.apply(ctx, handle, c, c.ReleaseDelta(d))
}

// Account re-reads the current account for c. Inside a transaction this is
// the value the next delta will be applied to.
func (l *BalanceLedger) Account(ctx context.Context, handle string, c Category) (generic.Account, error) {
	intern, err := l.Store.GetInternByHandle(ctx, handle)
	if err != nil {
		return generic.Account{}, err
	}
	return intern.Account(c), nil
}

// CheckCovers returns an *generic.InsufficientBalanceError if a capped
// category cannot absorb d. Uncapped categories always pass.
func (l *BalanceLedger) CheckCovers(ctx context.Context, handle string, c Category, d decimal.Decimal) error {
	if !c.Capped() {
		return nil
	}
	acct, err := l.Account(ctx, handle, c)
	if err != nil {
		return err
	}
	if !acct.Covers(d) {
		return &generic.InsufficientBalanceError{Category: c.String(), Available: acct.Balance, Requested: d}
	}
	return nil
}

func (l *BalanceLedger) apply(ctx context.Context, handle string, c Category, delta generic.Delta) error {
	if !c.Valid() {
		return generic.Invalid("leave_type", "unknown leave type %q", c)
	}
	if delta.IsZero() {
		return nil
	}
	return l.Store.WithTx(ctx, func(tx Store) error {
		if !delta.Balance.IsZero() {
			if err := tx.AdjustBalance(ctx, handle, c, delta.Balance); err != nil {
				return fmt.Errorf("adjust %s balance for %s: %w", c, handle, err)
			}
		}
		if !delta.Taken.IsZero() {
			if err := tx.AdjustTaken(ctx, handle, c, delta.Taken); err != nil {
				return fmt.Errorf("adjust %s taken for %s: %w", c, handle, err)
			}
		}
		return nil
	})
}
