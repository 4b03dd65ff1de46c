/*
engine.go - Leave application lifecycle

PURPOSE:
  Owns every state transition of a leave application and keeps the ledger
  consistent with it. The chat API, the supervisor webhook and the
  auto-approval timer all call into the same Engine.

STATE MACHINE:
  Pending ──approve──► Approved ──cancel──► Cancelled
     │    ──timeout──► Auto-Approved ──cancel──► Cancelled
     └────reject─────► Rejected
  An approval that no longer fits the balance becomes Rejected with a
  shortfall remark instead.

RESOLUTION (Decide and Timeout):
  1. Load the application; anything but Pending is a conflict
  2. In one transaction:
       re-read the account the debit will hit
       conditionally move Pending -> next
       apply the ledger operation for the category
  3. After commit: disarm the timer, notify intern and supervisor

  The conditional update is the single arbiter between a supervisor click
  and a firing timer. The loser gets a ConflictError and performs no side
  effects.

BALANCE SNAPSHOT:
  Submit checks the balance as a fast-fail only. The authoritative check is
  the in-transaction re-read at resolution time; the snapshot is kept on the
  application for the supervisor email and is never written back.

NOTIFICATIONS:
  Delivery happens after commit and is advisory. A failed email or chat
  message is logged and counted, never rolled back.
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// DefaultAutoApproveAfter is how long a supervisor has before silence counts
// as approval.
const DefaultAutoApproveAfter = 72 * time.Hour

// DefaultNotifyTimeout bounds each outbound notification.
const DefaultNotifyTimeout = 10 * time.Second

// Action is a supervisor decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction accepts "approve" or "reject".
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", generic.Invalid("action", "must be approve or reject, got %q", s)
}

// Config holds the engine's tunables.
type Config struct {
	AutoApproveAfter time.Duration
	DecisionBaseURL  string
	NotifyTimeout    time.Duration
}

// Engine runs the leave lifecycle.
type Engine struct {
	Store     Store
	Scheduler Scheduler
	Notifier  Notifier
	Config    Config
	Logger    *zap.Logger
	Metrics   *Metrics
	Clock     generic.Clock
	NewID     func(now time.Time) string
}

// NewEngine wires an engine with defaults for anything left zero.
func NewEngine(store Store, scheduler Scheduler, notifier Notifier, cfg Config, logger *zap.Logger) *Engine {
	if cfg.AutoApproveAfter <= 0 {
		cfg.AutoApproveAfter = DefaultAutoApproveAfter
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:     store,
		Scheduler: scheduler,
		Notifier:  notifier,
		Config:    cfg,
		Logger:    logger,
		Clock:     generic.SystemClock,
		NewID:     NewApplicationID,
	}
}

// NewApplicationID returns a sortable, collision-resistant identifier.
func NewApplicationID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.Unix(), uuid.NewString())
}

// Outcome reports what a lifecycle call did.
type Outcome struct {
	Application *Application

	// Reason is set when an approval was turned into a rejection.
	Reason string

	SupervisorNotified bool
	InternNotified     bool
}

// =============================================================================
// INTERN ROSTER
// =============================================================================

// RegisterIntern validates and stores a new intern.
func (e *Engine) RegisterIntern(ctx context.Context, intern *Intern) error {
	if err := intern.Validate(); err != nil {
		return err
	}
	if intern.CreatedAt.IsZero() {
		intern.CreatedAt = e.Clock()
	}
	if err := e.Store.CreateIntern(ctx, intern); err != nil {
		return err
	}
	e.Logger.Info("intern registered", zap.String("handle", intern.Handle))
	return nil
}

// Intern returns the intern record with current accounts.
func (e *Engine) Intern(ctx context.Context, handle string) (*Intern, error) {
	return e.Store.GetInternByHandle(ctx, handle)
}

// RemoveIntern deletes the intern and disarms the timers of their pending
// applications.
func (e *Engine) RemoveIntern(ctx context.Context, handle string) error {
	pending, err := e.Store.ListPendingApplications(ctx)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteIntern(ctx, handle); err != nil {
		return err
	}
	for _, app := range pending {
		if app.InternHandle == handle {
			e.Scheduler.Cancel(TimerName(app.ID))
		}
	}
	e.Logger.Info("intern removed", zap.String("handle", handle))
	return nil
}

// Application returns one application by ID.
func (e *Engine) Application(ctx context.Context, id string) (*Application, error) {
	return e.Store.GetApplication(ctx, id)
}

// UpcomingApproved returns the intern's granted leave starting after today,
// which is exactly the set Cancel accepts.
func (e *Engine) UpcomingApproved(ctx context.Context, handle string) ([]*Application, error) {
	if _, err := e.Store.GetInternByHandle(ctx, handle); err != nil {
		return nil, err
	}
	tomorrow := generic.DateOf(e.Clock()).AddDays(1)
	return e.Store.ListUpcomingApprovedByHandle(ctx, handle, tomorrow)
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitRequest is an intern's leave request as received from chat.
type SubmitRequest struct {
	Handle   string
	ChatID   string
	Category Category
	Start    generic.Date
	End      generic.Date // zero means same as Start
	Portion  DayPortion   // empty means full day
}

// Submit validates req, persists a Pending application, arms its timer and
// emails the supervisor.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if !req.Category.Valid() {
		return nil, generic.Invalid("leave_type", "unknown leave type %q", req.Category)
	}
	if req.Portion == "" {
		req.Portion = PortionFullDay
	}
	if _, err := ParsePortion(string(req.Portion)); err != nil {
		return nil, err
	}
	if req.Start.IsZero() {
		return nil, generic.Invalid("start_date", "is required")
	}
	if req.End.IsZero() {
		req.End = req.Start
	}

	r := generic.DateRange{Start: req.Start, End: req.End}
	if !r.Valid() {
		return nil, generic.Invalid("end_date", "end date %s cannot be before start date %s", req.End, req.Start)
	}
	if req.Portion.IsHalfDay() && !r.SingleDay() {
		return nil, generic.Invalid("day_portion", "a half-day leave must start and end on the same day")
	}

	intern, err := e.Store.GetInternByHandle(ctx, req.Handle)
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, generic.Invalid("handle", "%s is not registered, please contact HR", req.Handle)
		}
		return nil, err
	}

	now := e.Clock()
	if r.Start.Before(generic.DateOf(now)) {
		return nil, generic.Invalid("start_date", "start date cannot be before today's date")
	}
	if !intern.Period().Covers(r) {
		return nil, generic.Invalid("period", "leave must fall within your internship period (%s to %s)",
			intern.StartDate.ChatString(), intern.EndDate.ChatString())
	}

	days := Duration(r, req.Portion)

	var snapshot *decimal.Decimal
	if req.Category.Capped() {
		acct := intern.Account(req.Category)
		if !acct.Covers(days) {
			return nil, &generic.InsufficientBalanceError{
				Category:  req.Category.String(),
				Available: acct.Balance,
				Requested: days,
			}
		}
		bal := acct.Balance
		snapshot = &bal
	}

	app := &Application{
		ID:                  e.NewID(now),
		InternHandle:        intern.Handle,
		InternName:          intern.Name,
		ChatID:              req.ChatID,
		Category:            req.Category,
		Start:               r.Start,
		End:                 r.End,
		Portion:             req.Portion,
		Duration:            days,
		Status:              StatusPending,
		SubmittedAt:         now,
		BalanceAtSubmission: snapshot,
	}
	if err := e.Store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	e.Metrics.Submitted(app.Category)

	log := e.Logger.With(zap.String("application_id", app.ID), zap.String("handle", app.InternHandle))
	log.Info("leave application submitted",
		zap.String("category", string(app.Category)),
		zap.String("duration", generic.FormatDays(days)))

	if err := e.Scheduler.Arm(app.ID, e.Config.AutoApproveAfter, Payload{ApplicationID: app.ID, ChatID: app.ChatID}); err != nil {
		// still recoverable: RearmPending rebuilds it from the store
		log.Warn("failed to arm auto-approval timer", zap.Error(err))
	}

	links := BuildDecisionLinks(e.Config.DecisionBaseURL, app.ID)
	out := &Outcome{Application: app}
	out.SupervisorNotified = e.notifySupervisor(ctx, SupervisorNotice{
		Event:           EventSubmitted,
		ApplicationID:   app.ID,
		Application:     *app,
		SupervisorEmail: intern.SupervisorEmail,
		Links:           &links,
		AutoApproveIn:   e.Config.AutoApproveAfter,
	})
	return out, nil
}

// =============================================================================
// DECIDE / TIMEOUT
// =============================================================================

// Decide applies a supervisor decision to a Pending application.
func (e *Engine) Decide(ctx context.Context, id string, action Action) (*Outcome, error) {
	return e.resolve(ctx, id, action, false)
}

// Timeout is the scheduler's fire function. It auto-approves a still-Pending
// application and quietly does nothing if the supervisor got there first.
func (e *Engine) Timeout(ctx context.Context, p Payload) {
	log := e.Logger.With(zap.String("application_id", p.ApplicationID))

	out, err := e.resolve(ctx, p.ApplicationID, ActionApprove, true)
	switch {
	case err == nil:
		log.Info("auto-approval timer resolved application", zap.String("status", string(out.Application.Status)))
	case generic.IsConflict(err), generic.IsNotFound(err):
		log.Debug("auto-approval skipped", zap.Error(err))
	default:
		log.Error("auto-approval failed", zap.Error(err))
	}
}

func (e *Engine) resolve(ctx context.Context, id string, action Action, auto bool) (*Outcome, error) {
	app, err := e.Store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPending {
		e.Metrics.Conflict()
		return nil, &generic.ConflictError{ID: id, Status: string(app.Status)}
	}

	now := e.Clock()
	next := StatusRejected
	remarks := app.Remarks
	var shortfall *generic.InsufficientBalanceError

	err = e.Store.WithTx(ctx, func(tx Store) error {
		ledger := NewBalanceLedger(tx)

		if action == ActionApprove {
			if err := ledger.CheckCovers(ctx, app.InternHandle, app.Category, app.Duration); err != nil {
				if !errors.As(err, &shortfall) {
					return err
				}
				remarks = ShortfallRemark(shortfall)
			} else {
				next = StatusApproved
				if auto {
					next = StatusAutoApproved
				}
				remarks = BreakdownRemark(app.Category, app.Range(), app.Portion)
			}
		}

		if err := tx.SetApplicationStatus(ctx, id, StatusPending, next, StatusUpdate{DecidedAt: &now, Remarks: &remarks}); err != nil {
			return err
		}
		if next.Granted() {
			return ledger.Consume(ctx, app.InternHandle, app.Category, app.Duration)
		}
		return nil
	})
	if err != nil {
		if generic.IsConflict(err) {
			e.Metrics.Conflict()
		}
		return nil, err
	}

	e.Scheduler.Cancel(TimerName(id))
	e.Metrics.Transition(next)

	app.Status = next
	app.DecidedAt = &now
	app.Remarks = remarks

	out := &Outcome{Application: app}
	if shortfall != nil {
		out.Reason = fmt.Sprintf("insufficient %s balance (available %s, requested %s)",
			shortfall.Category, generic.FormatDays(shortfall.Available), generic.FormatDays(shortfall.Requested))
	}

	e.Logger.Info("leave application resolved",
		zap.String("application_id", id),
		zap.String("status", string(next)),
		zap.Bool("auto", auto))

	out.InternNotified = e.notifyIntern(ctx, app.ChatID, InternMessage(app, e.Config.AutoApproveAfter, out.Reason))
	out.SupervisorNotified = e.notifySupervisorOf(ctx, app, resolvedEvent(next), out.Reason)
	return out, nil
}

func resolvedEvent(s Status) Event {
	switch s {
	case StatusApproved:
		return EventApproved
	case StatusAutoApproved:
		return EventAutoApproved
	case StatusCancelled:
		return EventCancelled
	}
	return EventRejected
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws granted leave that has not started yet and restores the
// ledger. Only the owning intern may cancel.
func (e *Engine) Cancel(ctx context.Context, id, handle string) (*Outcome, error) {
	app, err := e.Store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.InternHandle != handle {
		return nil, generic.Invalid("id", "application %s does not belong to %s", id, handle)
	}
	switch {
	case app.Status == StatusPending:
		return nil, generic.Invalid("status", "only approved leave can be cancelled")
	case !app.Status.Granted():
		e.Metrics.Conflict()
		return nil, &generic.ConflictError{ID: id, Status: string(app.Status)}
	}
	if !app.Start.After(generic.DateOf(e.Clock())) {
		return nil, generic.Invalid("start_date", "leave that has already started cannot be cancelled")
	}

	remarks := CancelledRemark(app.Remarks)
	err = e.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SetApplicationStatus(ctx, id, app.Status, StatusCancelled, StatusUpdate{Remarks: &remarks}); err != nil {
			return err
		}
		return NewBalanceLedger(tx).Release(ctx, app.InternHandle, app.Category, app.Duration)
	})
	if err != nil {
		if generic.IsConflict(err) {
			e.Metrics.Conflict()
		}
		return nil, err
	}
	e.Metrics.Transition(StatusCancelled)

	app.Status = StatusCancelled
	app.Remarks = remarks

	e.Logger.Info("leave application cancelled",
		zap.String("application_id", id),
		zap.String("handle", handle))

	out := &Outcome{Application: app}
	out.SupervisorNotified = e.notifySupervisorOf(ctx, app, EventCancelled, "")
	return out, nil
}

// =============================================================================
// RESTART RECOVERY
// =============================================================================

// RearmPending arms a timer for every Pending application, with the delay
// remaining since submission. Overdue applications fire immediately.
func (e *Engine) RearmPending(ctx context.Context) (int, error) {
	pending, err := e.Store.ListPendingApplications(ctx)
	if err != nil {
		return 0, err
	}

	now := e.Clock()
	armed := 0
	for _, app := range pending {
		delay := app.SubmittedAt.Add(e.Config.AutoApproveAfter).Sub(now)
		if delay < 0 {
			delay = 0
		}
		if err := e.Scheduler.Arm(app.ID, delay, Payload{ApplicationID: app.ID, ChatID: app.ChatID}); err != nil {
			return armed, fmt.Errorf("failed to re-arm %s: %w", app.ID, err)
		}
		armed++
	}

	e.Logger.Info("auto-approval timers re-armed", zap.Int("count", armed))
	return armed, nil
}

// =============================================================================
// NOTIFICATION HELPERS
// =============================================================================

func (e *Engine) notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// a committed transition still notifies if the caller went away
	return context.WithTimeout(context.WithoutCancel(ctx), e.Config.NotifyTimeout)
}

func (e *Engine) notifySupervisorOf(ctx context.Context, app *Application, ev Event, reason string) bool {
	intern, err := e.Store.GetInternByHandle(ctx, app.InternHandle)
	if err != nil {
		e.Logger.Warn("cannot notify supervisor, intern lookup failed",
			zap.String("application_id", app.ID), zap.Error(err))
		e.Metrics.NotifyFailed("supervisor")
		return false
	}
	return e.notifySupervisor(ctx, SupervisorNotice{
		Event:           ev,
		ApplicationID:   app.ID,
		Application:     *app,
		SupervisorEmail: intern.SupervisorEmail,
		AutoApproveIn:   e.Config.AutoApproveAfter,
		Reason:          reason,
	})
}

func (e *Engine) notifySupervisor(ctx context.Context, n SupervisorNotice) bool {
	nctx, cancel := e.notifyContext(ctx)
	defer cancel()

	ok := e.Notifier.NotifySupervisor(nctx, n)
	if !ok {
		e.Metrics.NotifyFailed("supervisor")
		e.Logger.Warn("supervisor notification failed",
			zap.String("application_id", n.ApplicationID),
			zap.String("event", string(n.Event)))
	}
	return ok
}

func (e *Engine) notifyIntern(ctx context.Context, chatID, text string) bool {
	if chatID == "" {
		return false
	}
	nctx, cancel := e.notifyContext(ctx)
	defer cancel()

	ok := e.Notifier.NotifyIntern(nctx, chatID, text)
	if !ok {
		e.Metrics.NotifyFailed("intern")
		e.Logger.Warn("intern notification failed", zap.String("chat_id", chatID))
	}
	return ok
}
