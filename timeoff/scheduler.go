/*
scheduler.go - Per-application auto-approval timers

PURPOSE:
  Arms one deferred timer per Pending application. When the supervisor stays
  silent for the configured window, the timer fires the engine's Timeout
  transition. A supervisor decision disarms the timer first.

DESIGN:
  - One time.AfterFunc per armed name, tracked in a map under a mutex
  - Names are derived from the application ID (TimerName)
  - Re-arming a name replaces the previous timer
  - Fires run on their own goroutine; Stop waits for in-flight fires
  - A timer that fires after it was cancelled or replaced is dropped

DURABILITY:
  Timers live in memory only. The source of truth for "this application is
  still waiting" is the Store, and Engine.RearmPending rebuilds every timer
  from SubmittedAt + delay on startup.

USAGE:
  sched := timeoff.NewTimerScheduler(logger)
  engine := timeoff.NewEngine(store, sched, notifier, cfg, logger)
  sched.Start(engine.Timeout)
  engine.RearmPending(ctx)
  // ... later
  sched.Stop()
*/
package timeoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Payload is handed back to the fire function. It carries enough to
// re-process the application idempotently.
type Payload struct {
	ApplicationID string
	ChatID        string
}

// FireFunc handles an expired timer.
type FireFunc func(ctx context.Context, p Payload)

// Scheduler arms and disarms deferred auto-approval.
type Scheduler interface {
	// Arm schedules p to fire after delay under TimerName(id).
	Arm(id string, delay time.Duration, p Payload) error

	// Cancel disarms the named timer. Returns false if nothing was armed.
	Cancel(name string) bool
}

// ErrSchedulerNotRunning is returned by Arm before Start or after Stop.
var ErrSchedulerNotRunning = errors.New("scheduler not running")

// TimerName is the deterministic scheduler name of an application.
func TimerName(applicationID string) string {
	return "auto_approve_" + applicationID
}

// =============================================================================
// TIMER SCHEDULER - In-memory timer wheel
// =============================================================================

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// TimerScheduler implements Scheduler with time.AfterFunc.
type TimerScheduler struct {
	Logger  *zap.Logger
	Metrics *Metrics

	mu      sync.Mutex
	timers  map[string]timerEntry
	gen     uint64
	fire    FireFunc
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTimerScheduler creates a stopped scheduler.
func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{
		Logger: logger,
		timers: make(map[string]timerEntry),
	}
}

// Start sets the fire function and begins accepting Arm calls.
func (s *TimerScheduler) Start(fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.fire = fire
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.Logger.Info("auto-approval scheduler started")
}

// Stop disarms every timer and waits for fires already in progress.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for name, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, name)
	}
	s.cancel()
	s.Metrics.TimersArmed(0)
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("auto-approval scheduler stopped")
}

// Arm schedules p under TimerName(id), replacing any timer of that name.
func (s *TimerScheduler) Arm(id string, delay time.Duration, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}
	if delay < 0 {
		delay = 0
	}

	name := TimerName(id)
	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[name] = timerEntry{
		timer: time.AfterFunc(delay, func() { s.run(name, gen, p) }),
		gen:   gen,
	}
	s.Metrics.TimersArmed(len(s.timers))

	s.Logger.Debug("timer armed",
		zap.String("name", name),
		zap.Duration("delay", delay))
	return nil
}

// Cancel disarms name. Safe to call for names that already fired.
func (s *TimerScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, name)
	s.Metrics.TimersArmed(len(s.timers))

	s.Logger.Debug("timer cancelled", zap.String("name", name))
	return true
}

// Armed reports whether name is currently armed.
func (s *TimerScheduler) Armed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Len returns the number of armed timers.
func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) run(name string, gen uint64, p Payload) {
	s.mu.Lock()
	e, ok := s.timers[name]
	if !ok || e.gen != gen || !s.running {
		// cancelled, replaced, or stopping
		s.mu.Unlock()
		return
	}
	delete(s.timers, name)
	s.Metrics.TimersArmed(len(s.timers))
	fire, ctx := s.fire, s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("auto-approval fire panicked",
				zap.String("name", name),
				zap.Any("panic", r))
		}
	}()

	s.Logger.Debug("timer fired", zap.String("name", name))
	fire(ctx, p)
}
