package timeoff_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Monday 3 March 2025, 09:00 UTC.
var testNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func days(v float64) decimal.Decimal {
	return generic.NewDays(v)
}

func date(year int, month time.Month, day int) generic.Date {
	return generic.NewDate(year, month, day)
}

func assertDays(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !days(want).Equal(got) {
		assert.Fail(t, "day count mismatch", append([]any{"want %v, got %s ", want, got.String()}, msgAndArgs...)...)
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type internMessage struct {
	ChatID string
	Text   string
}

// recordingNotifier keeps everything it is asked to send.
type recordingNotifier struct {
	mu         sync.Mutex
	fail       bool
	supervisor []timeoff.SupervisorNotice
	intern     []internMessage
}

func (n *recordingNotifier) NotifySupervisor(_ context.Context, notice timeoff.SupervisorNotice) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supervisor = append(n.supervisor, notice)
	return !n.fail
}

func (n *recordingNotifier) NotifyIntern(_ context.Context, chatID, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intern = append(n.intern, internMessage{ChatID: chatID, Text: text})
	return !n.fail
}

func (n *recordingNotifier) Supervisor() []timeoff.SupervisorNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]timeoff.SupervisorNotice(nil), n.supervisor...)
}

func (n *recordingNotifier) Intern() []internMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]internMessage(nil), n.intern...)
}

// recordingScheduler records Arm and Cancel without firing anything.
type recordingScheduler struct {
	mu        sync.Mutex
	armed     map[string]time.Duration
	cancelled []string
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{armed: make(map[string]time.Duration)}
}

func (s *recordingScheduler) Arm(id string, delay time.Duration, _ timeoff.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[timeoff.TimerName(id)] = delay
	return nil
}

func (s *recordingScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, name)
	_, ok := s.armed[name]
	delete(s.armed, name)
	return ok
}

func (s *recordingScheduler) Delay(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.armed[timeoff.TimerName(id)]
	return d, ok
}

type fixture struct {
	engine    *timeoff.Engine
	store     timeoff.Store
	notifier  *recordingNotifier
	scheduler *recordingScheduler
	clock     *clock
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.New())
}

func newFixtureWithStore(t *testing.T, store timeoff.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:     store,
		notifier:  &recordingNotifier{},
		scheduler: newRecordingScheduler(),
		clock:     &clock{now: testNow},
	}
	f.engine = timeoff.NewEngine(store, f.scheduler, f.notifier, timeoff.Config{
		DecisionBaseURL: "http://127.0.0.1:3001",
	}, zap.NewNop())
	f.engine.Clock = f.clock.Now
	f.engine.Metrics = timeoff.NewMetrics(nil)
	return f
}

// addIntern registers @alice (internship Jan 6 - Jun 27 2025) with the
// given entitlements.
func (f *fixture) addIntern(t *testing.T, handle string, ent timeoff.Entitlements) *timeoff.Intern {
	t.Helper()
	intern := timeoff.NewIntern(handle, "Alice Tan", "boss@example.com",
		date(2025, time.January, 6), date(2025, time.June, 27), ent)
	require.NoError(t, f.engine.RegisterIntern(context.Background(), intern))
	return intern
}

func (f *fixture) submit(t *testing.T, handle string, c timeoff.Category, start, end generic.Date) *timeoff.Application {
	t.Helper()
	out, err := f.engine.Submit(context.Background(), timeoff.SubmitRequest{
		Handle:   handle,
		ChatID:   "chat-" + handle,
		Category: c,
		Start:    start,
		End:      end,
	})
	require.NoError(t, err)
	return out.Application
}

func (f *fixture) account(t *testing.T, handle string, c timeoff.Category) generic.Account {
	t.Helper()
	intern, err := f.store.GetInternByHandle(context.Background(), handle)
	require.NoError(t, err)
	return intern.Account(c)
}

func (f *fixture) status(t *testing.T, id string) timeoff.Status {
	t.Helper()
	app, err := f.store.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app.Status
}
