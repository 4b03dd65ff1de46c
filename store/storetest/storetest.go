// Package storetest is a conformance suite every timeoff.Store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) timeoff.Store

var (
	internStart = generic.NewDate(2025, time.January, 6)
	internEnd   = generic.NewDate(2025, time.June, 27)
	submitted   = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
)

// NewTestIntern is an intern with 10 annual and 5 medical days.
func NewTestIntern(handle string) *timeoff.Intern {
	return timeoff.NewIntern(handle, "Test Intern", "boss@example.com", internStart, internEnd, timeoff.Entitlements{
		timeoff.CategoryAnnual:  generic.NewDays(10),
		timeoff.CategoryMedical: generic.NewDays(5),
	})
}

// NewTestApplication is a Pending 2-day annual application.
func NewTestApplication(id, handle string, start generic.Date) *timeoff.Application {
	bal := generic.NewDays(10)
	return &timeoff.Application{
		ID:                  id,
		InternHandle:        handle,
		InternName:          "Test Intern",
		ChatID:              "42",
		Category:            timeoff.CategoryAnnual,
		Start:               start,
		End:                 start.AddDays(1),
		Portion:             timeoff.PortionFullDay,
		Duration:            generic.NewDays(2),
		Status:              timeoff.StatusPending,
		SubmittedAt:         submitted,
		BalanceAtSubmission: &bal,
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Intern_RoundTrip", func(t *testing.T) { testInternRoundTrip(t, newStore(t)) })
	t.Run("Intern_Duplicate", func(t *testing.T) { testInternDuplicate(t, newStore(t)) })
	t.Run("Intern_NotFound", func(t *testing.T) { testInternNotFound(t, newStore(t)) })
	t.Run("Ledger_RelativeDeltas", func(t *testing.T) { testLedgerDeltas(t, newStore(t)) })
	t.Run("Application_RoundTrip", func(t *testing.T) { testApplicationRoundTrip(t, newStore(t)) })
	t.Run("SetStatus_Conditional", func(t *testing.T) { testConditionalStatus(t, newStore(t)) })
	t.Run("WithTx_Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("WithTx_Nested", func(t *testing.T) { testNestedTx(t, newStore(t)) })
	t.Run("ListUpcoming", func(t *testing.T) { testListUpcoming(t, newStore(t)) })
	t.Run("ListPending", func(t *testing.T) { testListPending(t, newStore(t)) })
	t.Run("DeleteIntern_Cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
}

func testInternRoundTrip(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	got, err := store.GetInternByHandle(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, "Test Intern", got.Name)
	assert.Equal(t, "boss@example.com", got.SupervisorEmail)
	assert.True(t, got.StartDate.Equal(internStart))
	assert.True(t, got.EndDate.Equal(internEnd))

	annual := got.Account(timeoff.CategoryAnnual)
	assert.True(t, annual.Entitlement.Equal(generic.NewDays(10)), "annual entitlement = %s", annual.Entitlement)
	assert.True(t, annual.Balance.Equal(generic.NewDays(10)))
	assert.True(t, annual.Taken.IsZero())

	compassionate := got.Account(timeoff.CategoryCompassionate)
	assert.True(t, compassionate.Balance.Equal(generic.NewDays(3)), "compassionate defaults to 3")

	noPay := got.Account(timeoff.CategoryNoPay)
	assert.True(t, noPay.Entitlement.IsZero())
}

func testInternDuplicate(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	err := store.CreateIntern(ctx, NewTestIntern("@alice"))
	assert.ErrorIs(t, err, generic.ErrDuplicate)
}

func testInternNotFound(t *testing.T, store timeoff.Store) {
	_, err := store.GetInternByHandle(context.Background(), "@nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testLedgerDeltas(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	// GIVEN: two relative debits
	require.NoError(t, store.AdjustBalance(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(-2)))
	require.NoError(t, store.AdjustBalance(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(-0.5)))
	require.NoError(t, store.AdjustTaken(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(2.5)))

	got, err := store.GetInternByHandle(ctx, "@alice")
	require.NoError(t, err)
	annual := got.Account(timeoff.CategoryAnnual)
	assert.True(t, annual.Balance.Equal(generic.NewDays(7.5)), "balance = %s", annual.Balance)
	assert.True(t, annual.Taken.Equal(generic.NewDays(2.5)), "taken = %s", annual.Taken)

	// WHEN: taken is decremented past zero
	require.NoError(t, store.AdjustTaken(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(-5)))

	// THEN: it clamps
	got, err = store.GetInternByHandle(ctx, "@alice")
	require.NoError(t, err)
	assert.True(t, got.Account(timeoff.CategoryAnnual).Taken.IsZero())

	err = store.AdjustBalance(ctx, "@nobody", timeoff.CategoryAnnual, generic.OneDay)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testApplicationRoundTrip(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	app := NewTestApplication("app-1", "@alice", generic.NewDate(2025, time.March, 10))
	require.NoError(t, store.CreateApplication(ctx, app))

	got, err := store.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "@alice", got.InternHandle)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, timeoff.CategoryAnnual, got.Category)
	assert.Equal(t, timeoff.PortionFullDay, got.Portion)
	assert.Equal(t, timeoff.StatusPending, got.Status)
	assert.True(t, got.Start.Equal(app.Start))
	assert.True(t, got.End.Equal(app.End))
	assert.True(t, got.Duration.Equal(generic.NewDays(2)))
	assert.True(t, got.SubmittedAt.Equal(submitted))
	assert.Nil(t, got.DecidedAt)
	require.NotNil(t, got.BalanceAtSubmission)
	assert.True(t, got.BalanceAtSubmission.Equal(generic.NewDays(10)))

	_, err = store.GetApplication(ctx, "nope")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = store.CreateApplication(ctx, app)
	assert.ErrorIs(t, err, generic.ErrDuplicate)
}

func testConditionalStatus(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))
	require.NoError(t, store.CreateApplication(ctx, NewTestApplication("app-1", "@alice", generic.NewDate(2025, time.March, 10))))

	decided := submitted.Add(time.Hour)
	remarks := "Leave breakdown: Mar 2025: 2 day(s)"

	// WHEN: the first resolver wins
	err := store.SetApplicationStatus(ctx, "app-1", timeoff.StatusPending, timeoff.StatusApproved,
		timeoff.StatusUpdate{DecidedAt: &decided, Remarks: &remarks})
	require.NoError(t, err)

	// THEN: the second one conflicts and sees the winner's status
	err = store.SetApplicationStatus(ctx, "app-1", timeoff.StatusPending, timeoff.StatusAutoApproved, timeoff.StatusUpdate{})
	require.ErrorIs(t, err, generic.ErrConflict)
	var conflict *generic.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, string(timeoff.StatusApproved), conflict.Status)

	got, err := store.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)
	assert.Equal(t, remarks, got.Remarks)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decided))

	err = store.SetApplicationStatus(ctx, "missing", timeoff.StatusPending, timeoff.StatusApproved, timeoff.StatusUpdate{})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testRollback(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))
	require.NoError(t, store.CreateApplication(ctx, NewTestApplication("app-1", "@alice", generic.NewDate(2025, time.March, 10))))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx timeoff.Store) error {
		if err := tx.SetApplicationStatus(ctx, "app-1", timeoff.StatusPending, timeoff.StatusApproved, timeoff.StatusUpdate{}); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(-2)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	app, err := store.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusPending, app.Status, "status change rolled back")

	intern, err := store.GetInternByHandle(ctx, "@alice")
	require.NoError(t, err)
	assert.True(t, intern.Account(timeoff.CategoryAnnual).Balance.Equal(generic.NewDays(10)), "debit rolled back")
}

func testNestedTx(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	err := store.WithTx(ctx, func(tx timeoff.Store) error {
		return timeoff.NewBalanceLedger(tx).DebitAndRecord(ctx, "@alice", timeoff.CategoryAnnual, generic.NewDays(3))
	})
	require.NoError(t, err)

	intern, err := store.GetInternByHandle(ctx, "@alice")
	require.NoError(t, err)
	annual := intern.Account(timeoff.CategoryAnnual)
	assert.True(t, annual.Balance.Equal(generic.NewDays(7)))
	assert.True(t, annual.Taken.Equal(generic.NewDays(3)))
}

func testListUpcoming(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@bob")))

	add := func(id, handle string, start generic.Date, status timeoff.Status) {
		require.NoError(t, store.CreateApplication(ctx, NewTestApplication(id, handle, start)))
		if status != timeoff.StatusPending {
			require.NoError(t, store.SetApplicationStatus(ctx, id, timeoff.StatusPending, status, timeoff.StatusUpdate{}))
		}
	}
	from := generic.NewDate(2025, time.March, 10)
	add("late", "@alice", generic.NewDate(2025, time.April, 7), timeoff.StatusAutoApproved)
	add("soon", "@alice", from, timeoff.StatusApproved)
	add("past", "@alice", from.AddDays(-7), timeoff.StatusApproved)
	add("pending", "@alice", from.AddDays(7), timeoff.StatusPending)
	add("rejected", "@alice", from.AddDays(8), timeoff.StatusRejected)
	add("other", "@bob", from.AddDays(1), timeoff.StatusApproved)

	apps, err := store.ListUpcomingApprovedByHandle(ctx, "@alice", from)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "soon", apps[0].ID)
	assert.Equal(t, "late", apps[1].ID)
}

func testListPending(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))

	second := NewTestApplication("second", "@alice", generic.NewDate(2025, time.March, 10))
	second.SubmittedAt = submitted.Add(time.Hour)
	first := NewTestApplication("first", "@alice", generic.NewDate(2025, time.March, 17))
	done := NewTestApplication("done", "@alice", generic.NewDate(2025, time.March, 24))
	for _, app := range []*timeoff.Application{second, first, done} {
		require.NoError(t, store.CreateApplication(ctx, app))
	}
	require.NoError(t, store.SetApplicationStatus(ctx, "done", timeoff.StatusPending, timeoff.StatusRejected, timeoff.StatusUpdate{}))

	apps, err := store.ListPendingApplications(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "first", apps[0].ID)
	assert.Equal(t, "second", apps[1].ID)
}

func testDeleteCascades(t *testing.T, store timeoff.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateIntern(ctx, NewTestIntern("@alice")))
	require.NoError(t, store.CreateApplication(ctx, NewTestApplication("app-1", "@alice", generic.NewDate(2025, time.March, 10))))

	require.NoError(t, store.DeleteIntern(ctx, "@alice"))

	_, err := store.GetInternByHandle(ctx, "@alice")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = store.GetApplication(ctx, "app-1")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	assert.ErrorIs(t, store.DeleteIntern(ctx, "@alice"), generic.ErrNotFound)
}
