/*
store.go - Persistence interface consumed by the lifecycle engine

PURPOSE:
  Defines the boundary between the leave workflow and the database.
  The Store is the only synchronization point of the system: the webhook,
  the chat API and the timer all reach the same records through it, and
  nothing above it assumes process-wide mutual exclusion.

KEY OPERATIONS:
  Intern roster:   CreateIntern, GetInternByHandle, DeleteIntern
  Ledger:          AdjustBalance, AdjustTaken (relative deltas only)
  Applications:    CreateApplication, GetApplication,
                   ListUpcomingApprovedByHandle, ListPendingApplications
  Transition:      SetApplicationStatus (conditional on the current status)
  Atomicity:       WithTx

CONDITIONAL UPDATE:
  SetApplicationStatus(id, expected, next, update) writes only if the row is
  still in `expected`. Otherwise it returns an error wrapping
  generic.ErrConflict and changes nothing. Two racing resolutions of the same
  application therefore produce exactly one winner, whichever process or
  goroutine they come from.

ATOMIC PAIRS:
  WithTx runs fn against a transaction-scoped Store. If fn returns an error
  every write made through that Store is rolled back. The engine uses it so
  a status change and its ledger mutation commit or fail together.

IMPLEMENTATIONS:
  - store/sqlite:   default durable store
  - store/postgres: pgx-backed store with row locks
  - store/memory:   in-memory store for tests and local runs
*/
package timeoff

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Store handles persistence of interns, their ledgers and applications.
type Store interface {
	// CreateIntern inserts a roster entry. Returns generic.ErrDuplicate if
	// the handle is already registered.
	CreateIntern(ctx context.Context, intern *Intern) error

	// GetInternByHandle returns generic.ErrNotFound for unknown handles.
	GetInternByHandle(ctx context.Context, handle string) (*Intern, error)

	// DeleteIntern removes the intern and all of their applications.
	DeleteIntern(ctx context.Context, handle string) error

	// AdjustBalance adds delta to the balance of one category.
	AdjustBalance(ctx context.Context, handle string, c Category, delta decimal.Decimal) error

	// AdjustTaken adds delta to taken of one category, clamping at zero.
	AdjustTaken(ctx context.Context, handle string, c Category, delta decimal.Decimal) error

	// CreateApplication persists a new application. IDs are unique.
	CreateApplication(ctx context.Context, app *Application) error

	// GetApplication returns generic.ErrNotFound for unknown IDs.
	GetApplication(ctx context.Context, id string) (*Application, error)

	// SetApplicationStatus is the conditional transition primitive.
	SetApplicationStatus(ctx context.Context, id string, expected, next Status, update StatusUpdate) error

	// ListUpcomingApprovedByHandle returns Approved and Auto-Approved
	// applications whose start date is on or after from, soonest first.
	ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*Application, error)

	// ListPendingApplications returns every Pending application, oldest first.
	ListPendingApplications(ctx context.Context) ([]*Application, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Calling WithTx on a transaction-scoped Store runs fn in the same transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
