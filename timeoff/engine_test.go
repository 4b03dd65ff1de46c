package timeoff_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
	"golang.org/x/sync/errgroup"
)

var annual10 = timeoff.Entitlements{
	timeoff.CategoryAnnual:  days(10),
	timeoff.CategoryMedical: days(5),
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_PersistsPendingArmsTimerAndEmailsSupervisor(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)

	// WHEN: Alice asks for Mon 10 - Fri 14 March
	out, err := f.engine.Submit(context.Background(), timeoff.SubmitRequest{
		Handle:   "@alice",
		ChatID:   "777",
		Category: timeoff.CategoryAnnual,
		Start:    date(2025, time.March, 10),
		End:      date(2025, time.March, 14),
	})
	require.NoError(t, err)

	// THEN: the application is Pending with the snapshot balance
	app := out.Application
	assert.Equal(t, timeoff.StatusPending, app.Status)
	assert.Equal(t, timeoff.PortionFullDay, app.Portion)
	assertDays(t, 5, app.Duration)
	require.NotNil(t, app.BalanceAtSubmission)
	assertDays(t, 10, *app.BalanceAtSubmission)
	assert.Equal(t, timeoff.StatusPending, f.status(t, app.ID))

	// AND: the ledger is untouched until a decision
	assertDays(t, 10, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)

	// AND: the timer is armed for the full window
	delay, ok := f.scheduler.Delay(app.ID)
	require.True(t, ok)
	assert.Equal(t, timeoff.DefaultAutoApproveAfter, delay)

	// AND: the supervisor got both decision links
	assert.True(t, out.SupervisorNotified)
	notices := f.notifier.Supervisor()
	require.Len(t, notices, 1)
	assert.Equal(t, timeoff.EventSubmitted, notices[0].Event)
	assert.Equal(t, "boss@example.com", notices[0].SupervisorEmail)
	require.NotNil(t, notices[0].Links)
	assert.Contains(t, notices[0].Links.Approve, "http://127.0.0.1:3001/leave-response?")
	assert.Contains(t, notices[0].Links.Approve, "action=approve")
	assert.Contains(t, notices[0].Links.Reject, "action=reject")
	assert.Contains(t, notices[0].Links.Reject, "id="+app.ID)
}

func TestSubmit_HalfDayDefaultsEndToStart(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)

	out, err := f.engine.Submit(context.Background(), timeoff.SubmitRequest{
		Handle:   "@alice",
		Category: timeoff.CategoryMedical,
		Start:    date(2025, time.March, 12),
		Portion:  timeoff.PortionHalfAM,
	})
	require.NoError(t, err)
	assert.True(t, out.Application.End.Equal(date(2025, time.March, 12)))
	assertDays(t, 0.5, out.Application.Duration)
}

func TestSubmit_NoPayHasNoSnapshot(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)

	app := f.submit(t, "@alice", timeoff.CategoryNoPay, date(2025, time.March, 10), date(2025, time.March, 21))
	assert.Nil(t, app.BalanceAtSubmission)
	assertDays(t, 10, app.Duration)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     timeoff.SubmitRequest
		wantErr error
	}{
		{
			name:    "unregistered handle",
			req:     timeoff.SubmitRequest{Handle: "@mallory", Category: timeoff.CategoryAnnual, Start: date(2025, time.March, 10)},
			wantErr: generic.ErrValidation,
		},
		{
			name:    "unknown category",
			req:     timeoff.SubmitRequest{Handle: "@alice", Category: "birthday", Start: date(2025, time.March, 10)},
			wantErr: generic.ErrValidation,
		},
		{
			name:    "start before today",
			req:     timeoff.SubmitRequest{Handle: "@alice", Category: timeoff.CategoryAnnual, Start: date(2025, time.February, 28)},
			wantErr: generic.ErrValidation,
		},
		{
			name: "end before start",
			req: timeoff.SubmitRequest{Handle: "@alice", Category: timeoff.CategoryAnnual,
				Start: date(2025, time.March, 12), End: date(2025, time.March, 10)},
			wantErr: generic.ErrValidation,
		},
		{
			name: "multi-day half-day",
			req: timeoff.SubmitRequest{Handle: "@alice", Category: timeoff.CategoryAnnual, Portion: timeoff.PortionHalfPM,
				Start: date(2025, time.March, 10), End: date(2025, time.March, 11)},
			wantErr: generic.ErrValidation,
		},
		{
			name: "outside internship",
			req: timeoff.SubmitRequest{Handle: "@alice", Category: timeoff.CategoryAnnual,
				Start: date(2025, time.June, 26), End: date(2025, time.July, 1)},
			wantErr: generic.ErrValidation,
		},
		{
			name: "more than the balance",
			req: timeoff.SubmitRequest{Handle: "@alice", Category: timeoff.CategoryAnnual,
				Start: date(2025, time.March, 10), End: date(2025, time.March, 24)},
			wantErr: generic.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addIntern(t, "@alice", annual10)

			_, err := f.engine.Submit(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, generic.IsClientError(err))

			// nothing was persisted, armed or sent
			pending, err := f.store.ListPendingApplications(context.Background())
			require.NoError(t, err)
			assert.Empty(t, pending)
			assert.Empty(t, f.notifier.Supervisor())
		})
	}
}

func TestSubmit_InsufficientBalanceReportsFigures(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)

	_, err := f.engine.Submit(context.Background(), timeoff.SubmitRequest{
		Handle: "@alice", Category: timeoff.CategoryAnnual,
		Start: date(2025, time.March, 10), End: date(2025, time.March, 24),
	})

	var shortfall *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "Annual Leave", shortfall.Category)
	assertDays(t, 10, shortfall.Available)
	assertDays(t, 11, shortfall.Requested)
}

// =============================================================================
// DECIDE
// =============================================================================

func TestCancellationRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	ctx := context.Background()

	// GIVEN: a 2-day annual application
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

	// WHEN: the supervisor approves
	out, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, out.Application.Status)
	assert.Equal(t, "Leave breakdown: Mar 2025: 2 day(s)", out.Application.Remarks)

	acct := f.account(t, "@alice", timeoff.CategoryAnnual)
	assertDays(t, 8, acct.Balance)
	assertDays(t, 2, acct.Taken)

	// AND: the timer is disarmed
	_, armed := f.scheduler.Delay(app.ID)
	assert.False(t, armed)

	// WHEN: Alice cancels before it starts
	out, err = f.engine.Cancel(ctx, app.ID, "@alice")
	require.NoError(t, err)

	// THEN: the ledger is back where it started
	acct = f.account(t, "@alice", timeoff.CategoryAnnual)
	assertDays(t, 10, acct.Balance)
	assertDays(t, 0, acct.Taken)
	assert.True(t, acct.Consistent())

	stored, err := f.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusCancelled, stored.Status)
	assert.Equal(t, "Leave breakdown: Mar 2025: 2 day(s) [Cancelled by intern]", stored.Remarks)
	require.NotNil(t, stored.DecidedAt, "cancellation keeps the original decision time")

	// AND: the supervisor heard about it
	notices := f.notifier.Supervisor()
	assert.Equal(t, timeoff.EventCancelled, notices[len(notices)-1].Event)
}

func TestDecide_StaleBalanceAutoRejects(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", timeoff.Entitlements{timeoff.CategoryMedical: days(3)})
	ctx := context.Background()

	// GIVEN: a 3-day medical application submitted with 3 days available
	app := f.submit(t, "@alice", timeoff.CategoryMedical, date(2025, time.March, 10), date(2025, time.March, 12))
	assertDays(t, 3, *app.BalanceAtSubmission)

	// AND: two days are spent elsewhere before the supervisor acts
	require.NoError(t, timeoff.NewBalanceLedger(f.store).DebitAndRecord(ctx, "@alice", timeoff.CategoryMedical, days(2)))

	// WHEN: the supervisor approves
	out, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
	require.NoError(t, err)

	// THEN: the approval turns into a rejection with the live figures
	assert.Equal(t, timeoff.StatusRejected, out.Application.Status)
	assert.Equal(t, "Auto-rejected: insufficient Medical Leave balance (available 1, requested 3)", out.Application.Remarks)
	assert.Equal(t, "insufficient Medical Leave balance (available 1, requested 3)", out.Reason)
	assert.Equal(t, timeoff.StatusRejected, f.status(t, app.ID))

	// AND: the ledger is unchanged
	acct := f.account(t, "@alice", timeoff.CategoryMedical)
	assertDays(t, 1, acct.Balance)
	assertDays(t, 2, acct.Taken)

	// AND: the intern is told why
	msgs := f.notifier.Intern()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "rejected: insufficient Medical Leave balance")
}

func TestDecide_NoPayAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)

	app := f.submit(t, "@alice", timeoff.CategoryNoPay, date(2025, time.March, 10), date(2025, time.March, 21))

	out, err := f.engine.Decide(context.Background(), app.ID, timeoff.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, out.Application.Status)
	assert.Equal(t, "No Pay Leave breakdown: Mar 2025: 10 day(s)", out.Application.Remarks)

	acct := f.account(t, "@alice", timeoff.CategoryNoPay)
	assertDays(t, 0, acct.Balance, "no pay balance never moves")
	assertDays(t, 10, acct.Taken)
}

func TestDecide_Reject(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

	out, err := f.engine.Decide(context.Background(), app.ID, timeoff.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusRejected, out.Application.Status)
	assert.Empty(t, out.Reason)
	require.NotNil(t, out.Application.DecidedAt)
	assertDays(t, 10, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)

	msgs := f.notifier.Intern()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat-@alice", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "rejected by your supervisor")
}

func TestDecide_AlreadyResolved(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	ctx := context.Background()
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

	_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
	require.NoError(t, err)

	// WHEN: the link is clicked again, this time as reject
	_, err = f.engine.Decide(ctx, app.ID, timeoff.ActionReject)

	// THEN: conflict, and only one ledger mutation
	require.ErrorIs(t, err, generic.ErrConflict)
	var conflict *generic.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, string(timeoff.StatusApproved), conflict.Status)

	assertDays(t, 8, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)
	assert.Len(t, f.notifier.Intern(), 1, "loser sends nothing")
}

func TestDecide_UnknownApplication(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Decide(context.Background(), "nope", timeoff.ActionApprove)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestDecide_NotifierFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

	f.notifier.fail = true
	out, err := f.engine.Decide(context.Background(), app.ID, timeoff.ActionApprove)
	require.NoError(t, err)
	assert.False(t, out.InternNotified)
	assert.False(t, out.SupervisorNotified)

	assert.Equal(t, timeoff.StatusApproved, f.status(t, app.ID))
	assertDays(t, 8, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)
}

// =============================================================================
// TIMEOUT
// =============================================================================

func TestTimeout_AutoApproves(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 12))

	f.clock.Set(testNow.Add(timeoff.DefaultAutoApproveAfter))
	f.engine.Timeout(context.Background(), timeoff.Payload{ApplicationID: app.ID, ChatID: app.ChatID})

	stored, err := f.store.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusAutoApproved, stored.Status)
	assert.Equal(t, "Leave breakdown: Mar 2025: 3 day(s)", stored.Remarks)
	assertDays(t, 7, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)

	msgs := f.notifier.Intern()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "automatically approved")
	assert.Contains(t, msgs[0].Text, "within 3 days")

	notices := f.notifier.Supervisor()
	assert.Equal(t, timeoff.EventAutoApproved, notices[len(notices)-1].Event)
}

func TestTimeout_AfterDecisionIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

	_, err := f.engine.Decide(context.Background(), app.ID, timeoff.ActionReject)
	require.NoError(t, err)

	f.engine.Timeout(context.Background(), timeoff.Payload{ApplicationID: app.ID})

	assert.Equal(t, timeoff.StatusRejected, f.status(t, app.ID))
	assertDays(t, 10, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)
	assert.Len(t, f.notifier.Intern(), 1)
}

func TestTimeout_UnknownApplicationIsIgnored(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() {
		f.engine.Timeout(context.Background(), timeoff.Payload{ApplicationID: "gone"})
	})
}

// =============================================================================
// RACE: supervisor click vs. timer
// =============================================================================

func TestDecideTimeoutRace_ExactlyOneWinner(t *testing.T) {
	stores := map[string]func(t *testing.T) timeoff.Store{
		"memory": func(t *testing.T) timeoff.Store { return memory.New() },
		"sqlite": func(t *testing.T) timeoff.Store {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 25; i++ {
				f := newFixtureWithStore(t, newStore(t))
				f.addIntern(t, "@alice", annual10)
				app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

				var decideErr error
				g, ctx := errgroup.WithContext(context.Background())
				g.Go(func() error {
					_, decideErr = f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
					return nil
				})
				g.Go(func() error {
					f.engine.Timeout(ctx, timeoff.Payload{ApplicationID: app.ID})
					return nil
				})
				require.NoError(t, g.Wait())

				if decideErr != nil {
					require.ErrorIs(t, decideErr, generic.ErrConflict)
				}

				status := f.status(t, app.ID)
				require.True(t, status.Granted(), "got %s", status)
				if decideErr == nil {
					assert.Equal(t, timeoff.StatusApproved, status)
				} else {
					assert.Equal(t, timeoff.StatusAutoApproved, status)
				}

				acct := f.account(t, "@alice", timeoff.CategoryAnnual)
				assertDays(t, 8, acct.Balance, "exactly one debit")
				assertDays(t, 2, acct.Taken)
				assert.Len(t, f.notifier.Intern(), 1, "exactly one intern message")
			}
		})
	}
}

func TestConcurrentApprovals_BothDebitsLand(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	a := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
	b := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 17), date(2025, time.March, 19))

	var g errgroup.Group
	for _, id := range []string{a.ID, b.ID} {
		g.Go(func() error {
			_, err := f.engine.Decide(context.Background(), id, timeoff.ActionApprove)
			return err
		})
	}
	require.NoError(t, g.Wait())

	acct := f.account(t, "@alice", timeoff.CategoryAnnual)
	assertDays(t, 5, acct.Balance)
	assertDays(t, 5, acct.Taken)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("someone else's leave", func(t *testing.T) {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)
		f.addIntern(t, "@bob", annual10)
		app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
		_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
		require.NoError(t, err)

		_, err = f.engine.Cancel(ctx, app.ID, "@bob")
		assert.ErrorIs(t, err, generic.ErrValidation)
		assert.Equal(t, timeoff.StatusApproved, f.status(t, app.ID))
	})

	t.Run("still pending", func(t *testing.T) {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)
		app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))

		_, err := f.engine.Cancel(ctx, app.ID, "@alice")
		assert.ErrorIs(t, err, generic.ErrValidation)
	})

	t.Run("already rejected", func(t *testing.T) {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)
		app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
		_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionReject)
		require.NoError(t, err)

		_, err = f.engine.Cancel(ctx, app.ID, "@alice")
		assert.ErrorIs(t, err, generic.ErrConflict)
	})

	t.Run("already started", func(t *testing.T) {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)
		app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
		_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
		require.NoError(t, err)

		f.clock.Set(time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC))
		_, err = f.engine.Cancel(ctx, app.ID, "@alice")
		assert.ErrorIs(t, err, generic.ErrValidation)
		assertDays(t, 8, f.account(t, "@alice", timeoff.CategoryAnnual).Balance)
	})

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)
		app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
		_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
		require.NoError(t, err)
		_, err = f.engine.Cancel(ctx, app.ID, "@alice")
		require.NoError(t, err)

		_, err = f.engine.Cancel(ctx, app.ID, "@alice")
		assert.ErrorIs(t, err, generic.ErrConflict)
		assertDays(t, 10, f.account(t, "@alice", timeoff.CategoryAnnual).Balance, "credited once")
	})
}

func TestCancel_NoPayUnrecords(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	ctx := context.Background()
	app := f.submit(t, "@alice", timeoff.CategoryNoPay, date(2025, time.March, 10), date(2025, time.March, 11))
	_, err := f.engine.Decide(ctx, app.ID, timeoff.ActionApprove)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, app.ID, "@alice")
	require.NoError(t, err)

	acct := f.account(t, "@alice", timeoff.CategoryNoPay)
	assertDays(t, 0, acct.Taken)
	assertDays(t, 0, acct.Balance)
}

func TestUpcomingApproved_OnlyFromTomorrow(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	ctx := context.Background()

	today := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 3), date(2025, time.March, 3))
	later := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 11))
	pending := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 17), date(2025, time.March, 17))
	for _, id := range []string{today.ID, later.ID} {
		_, err := f.engine.Decide(ctx, id, timeoff.ActionApprove)
		require.NoError(t, err)
	}

	apps, err := f.engine.UpcomingApproved(ctx, "@alice")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, later.ID, apps[0].ID)
	assert.NotEqual(t, pending.ID, apps[0].ID)

	_, err = f.engine.UpcomingApproved(ctx, "@nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// RESTART RECOVERY
// =============================================================================

func TestRearmPending_UsesRemainingWindow(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	ctx := context.Background()

	fresh := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 10))
	f.clock.Set(testNow.Add(time.Hour))
	newer := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 11), date(2025, time.March, 11))

	// GIVEN: the process restarts 70 hours after the first submission
	f.scheduler = newRecordingScheduler()
	f.engine.Scheduler = f.scheduler
	f.clock.Set(testNow.Add(70 * time.Hour))

	n, err := f.engine.RearmPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, ok := f.scheduler.Delay(fresh.ID)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, d)
	d, ok = f.scheduler.Delay(newer.ID)
	require.True(t, ok)
	assert.Equal(t, 3*time.Hour, d)

	// WHEN: the restart is after the window closed
	f.clock.Set(testNow.Add(100 * time.Hour))
	_, err = f.engine.RearmPending(ctx)
	require.NoError(t, err)

	// THEN: overdue timers fire immediately
	d, _ = f.scheduler.Delay(fresh.ID)
	assert.Equal(t, time.Duration(0), d)
}

func TestRemoveIntern_DisarmsPendingTimers(t *testing.T) {
	f := newFixture(t)
	f.addIntern(t, "@alice", annual10)
	app := f.submit(t, "@alice", timeoff.CategoryAnnual, date(2025, time.March, 10), date(2025, time.March, 10))

	require.NoError(t, f.engine.RemoveIntern(context.Background(), "@alice"))

	_, armed := f.scheduler.Delay(app.ID)
	assert.False(t, armed)
	_, err := f.engine.Intern(context.Background(), "@alice")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// PROPERTY: lifecycle never leaves the state machine, ledger stays consistent
// =============================================================================

func TestLifecycle_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	categories := []timeoff.Category{timeoff.CategoryAnnual, timeoff.CategoryMedical, timeoff.CategoryNoPay}
	ctx := context.Background()

	for round := 0; round < 30; round++ {
		f := newFixture(t)
		f.addIntern(t, "@alice", annual10)

		var ids []string
		for i := 0; i < 6; i++ {
			c := categories[rng.Intn(len(categories))]
			start := date(2025, time.March, 10).AddDays(rng.Intn(40))
			end := start.AddDays(rng.Intn(3))
			out, err := f.engine.Submit(ctx, timeoff.SubmitRequest{Handle: "@alice", Category: c, Start: start, End: end})
			if err != nil {
				require.True(t, generic.IsClientError(err), "unexpected submit error: %v", err)
				continue
			}
			ids = append(ids, out.Application.ID)
		}

		for step := 0; step < 20 && len(ids) > 0; step++ {
			id := ids[rng.Intn(len(ids))]
			before := f.status(t, id)

			var err error
			switch rng.Intn(4) {
			case 0:
				_, err = f.engine.Decide(ctx, id, timeoff.ActionApprove)
			case 1:
				_, err = f.engine.Decide(ctx, id, timeoff.ActionReject)
			case 2:
				f.engine.Timeout(ctx, timeoff.Payload{ApplicationID: id})
			case 3:
				_, err = f.engine.Cancel(ctx, id, "@alice")
			}
			if err != nil {
				require.True(t, generic.IsClientError(err) || generic.IsConflict(err), "unexpected error: %v", err)
			}

			after := f.status(t, id)
			if after != before {
				require.True(t, timeoff.CanTransition(before, after), "%s -> %s", before, after)
			}
		}

		// ledger equals the sum of granted durations per category
		for _, c := range categories {
			taken := days(0)
			for _, id := range ids {
				app, err := f.store.GetApplication(ctx, id)
				require.NoError(t, err)
				if app.Category == c && app.Status.Granted() {
					taken = taken.Add(app.Duration)
				}
			}
			acct := f.account(t, "@alice", c)
			assertDays(t, taken.InexactFloat64(), acct.Taken, c)
			if c.Capped() {
				assert.True(t, acct.Consistent(), "%s: balance %s + taken %s", c, acct.Balance, acct.Taken)
				assert.False(t, acct.Balance.IsNegative(), "%s balance went negative", c)
			}
		}
	}
}

func TestParseAction(t *testing.T) {
	a, err := timeoff.ParseAction("Approve")
	require.NoError(t, err)
	assert.Equal(t, timeoff.ActionApprove, a)

	_, err = timeoff.ParseAction("maybe")
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "approve or reject"))
}
