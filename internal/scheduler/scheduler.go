package scheduler

import (
	"context"
	"fmt"
	"time"

	logx "alertsched/pkg/logx"

	"alertsched/internal/alert"
	"alertsched/internal/executor"
	"alertsched/internal/observer"
	"alertsched/internal/renderer"
	"alertsched/internal/storage"
	"alertsched/internal/taxonomy"
	"alertsched/internal/timerx"
)

// New constructs a Scheduler. It does not touch storage or arm the timer;
// call Initialize to bring up state from persisted records.
func New(cfg Config, deps Deps) *Scheduler {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	rndr := deps.Renderer
	if rndr == nil {
		rndr = renderer.NopRenderer{}
	}
	s := &Scheduler{
		log:      log,
		clk:      deps.Clock,
		store:    deps.Store,
		rndr:     rndr,
		sup:      deps.Sup,
		timer:    timerx.New(deps.Clock),
		cfg:      cfg,
		observer: observer.Nop{},
		focus:    taxonomy.FocusNone,
	}
	s.exec = executor.New(deps.Sup, log, 0)
	return s
}

// Initialize loads persisted alerts and arms the timer. It fails fatally
// (ErrConfig) if obs is nil.
func (s *Scheduler) Initialize(ctx context.Context, obs observer.Observer) error {
	if obs == nil {
		return fmt.Errorf("%w: observer is required", ErrConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = obs

	// notify takes mu itself, so the announcements made while loading go
	// straight to the executor with obs.
	notifyLocked := func(token, typeName string, kind taxonomy.EventKind) {
		if err := s.exec.Submit(func() {
			obs.OnAlertStateChange(token, typeName, kind, taxonomy.StopReasonUnspecified)
		}); err != nil {
			s.log.Warn("dropped observer notification: executor shut down", logx.String("token", token), logx.String("kind", kind.String()))
		}
	}

	if s.store == nil {
		return fmt.Errorf("%w: storage is required", ErrConfig)
	}
	if err := s.store.CreateDatabase(ctx); err != nil {
		return fmt.Errorf("%w: create database: %v", ErrConfig, err)
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load: %v", ErrStorage, err)
	}

	now, err := s.now()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimeUnavailable, err)
	}

	for _, r := range records {
		a, err := alert.New(r.Token, r.TypeName, r.ScheduledISO)
		if err != nil {
			s.log.Warn("dropping unloadable alert record", logx.String("token", r.Token), logx.Any("err", err))
			continue
		}
		if a.IsPastDue(now, s.cfg.PastDueTolerance) {
			notifyLocked(a.Token(), a.TypeName(), taxonomy.PastDue)
			if err := s.store.Erase(ctx, a.Token()); err != nil {
				s.log.Error("failed to erase past-due alert", logx.String("token", a.Token()), logx.Any("err", err))
			} else {
				notifyLocked(a.Token(), a.TypeName(), taxonomy.Deleted)
			}
			continue
		}
		if r.State == taxonomy.Active.String() {
			// A crash mid-activation must not leave an alert stuck Active
			// forever: its render session is gone, so it goes back to Set.
			a.Reset()
			if err := s.store.Modify(ctx, recordFromAlert(a)); err != nil {
				s.log.Error("failed to persist recovered alert", logx.String("token", a.Token()), logx.Any("err", err))
			}
		}
		s.bindLocked(a)
		s.insertLocked(a)
	}

	s.setTimerForNextLocked()
	s.log.Info("scheduler initialized", logx.Int("loaded", len(s.scheduled)))
	return nil
}

// Schedule adds a new alert, or routes to Update if the token already
// exists.
func (s *Scheduler) Schedule(ctx context.Context, a *alert.Alert) error {
	now, err := s.now()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimeUnavailable, err)
	}
	if a.IsPastDue(now, s.cfg.PastDueTolerance) {
		return fmt.Errorf("%w: %s is already past due", ErrScheduleViolation, a.Token())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findExistingLocked(a.Token()); existing != nil {
		return s.updateLocked(ctx, existing, a.ScheduledISO8601())
	}

	if err := s.store.Store(ctx, recordFromAlert(a)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.bindLocked(a)
	s.insertLocked(a)
	if s.active == nil {
		s.setTimerForNextLocked()
	}
	return nil
}

// findExistingLocked looks for token in the scheduled set or the active
// slot. Call with mu held.
func (s *Scheduler) findExistingLocked(token string) *alert.Alert {
	if s.active != nil && s.active.Token() == token {
		return s.active
	}
	return s.findByTokenLocked(token)
}

// Update reschedules existingAlert to newScheduledTime. On storage failure
// the in-memory schedule is rolled back to its previous value. On every
// exit path an alert that was in the scheduled set is reinserted into it,
// and the timer is re-armed when idle.
func (s *Scheduler) Update(ctx context.Context, existingAlert *alert.Alert, newScheduledISO string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, existingAlert, newScheduledISO)
}

func (s *Scheduler) updateLocked(ctx context.Context, a *alert.Alert, newISO string) error {
	wasScheduled := s.removeByTokenLocked(a.Token()) != nil
	prevISO := a.ScheduledISO8601()

	defer func() {
		if wasScheduled {
			s.insertLocked(a)
		}
		if s.active == nil {
			s.setTimerForNextLocked()
		}
	}()

	if !a.UpdateScheduledTime(newISO) {
		return fmt.Errorf("%w: alert %s is not in a reschedulable state", ErrInvariantViolation, a.Token())
	}
	if err := s.store.Modify(ctx, recordFromAlert(a)); err != nil {
		a.UpdateScheduledTime(prevISO)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Snooze reschedules the currently active alert to newISO. Only valid
// against the active alert; the resulting Snoozed event (handled on the
// executor) re-inserts it into the scheduled set.
func (s *Scheduler) Snooze(token, newISO string) error {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()

	if a == nil || a.Token() != token {
		return fmt.Errorf("%w: %s is not the active alert", ErrInvariantViolation, token)
	}
	return a.Snooze(newISO)
}

// Delete removes token. If it is the active alert, deactivation is
// requested and the eventual Stopped event finishes the erase. Missing
// tokens are a no-op success (idempotent).
func (s *Scheduler) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.active != nil && s.active.Token() == token {
		a := s.active
		s.mu.Unlock()
		return a.Deactivate(taxonomy.AvsStop)
	}

	a := s.removeByTokenLocked(token)
	if a == nil {
		s.mu.Unlock()
		return nil
	}
	if err := s.store.Erase(ctx, token); err != nil {
		s.insertLocked(a)
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.setTimerForNextLocked()
	s.mu.Unlock()

	s.notify(a.Token(), a.TypeName(), taxonomy.Deleted, taxonomy.StopReasonUnspecified)
	return nil
}

// DeleteMany batches an erase across tokens. Storage failure aborts before
// any in-memory mutation; missing tokens are silently skipped, not errors.
func (s *Scheduler) DeleteMany(ctx context.Context, tokens []string) error {
	s.mu.Lock()

	type match struct {
		a        *alert.Alert
		isActive bool
	}
	var matches []match
	for _, tok := range tokens {
		if s.active != nil && s.active.Token() == tok {
			matches = append(matches, match{a: s.active, isActive: true})
			continue
		}
		if a := s.findByTokenLocked(tok); a != nil {
			matches = append(matches, match{a: a})
		}
	}
	if len(matches) == 0 {
		s.mu.Unlock()
		return nil
	}

	erase := make([]string, 0, len(matches))
	for _, m := range matches {
		erase = append(erase, m.a.Token())
	}
	if err := s.store.BulkErase(ctx, erase); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var toDeactivate *alert.Alert
	for _, m := range matches {
		if m.isActive {
			toDeactivate = m.a
			s.active = nil
			continue
		}
		s.removeByTokenLocked(m.a.Token())
	}
	s.setTimerForNextLocked()
	s.mu.Unlock()

	if toDeactivate != nil {
		_ = toDeactivate.Deactivate(taxonomy.AvsStop)
	}
	for _, m := range matches {
		if m.isActive {
			continue
		}
		s.notify(m.a.Token(), m.a.TypeName(), taxonomy.Deleted, taxonomy.StopReasonUnspecified)
	}
	if toDeactivate != nil {
		s.notify(toDeactivate.Token(), toDeactivate.TypeName(), taxonomy.Deleted, taxonomy.StopReasonUnspecified)
	}
	return nil
}

// IsActive reports whether a is currently the active alert and Activating
// or Active.
func (s *Scheduler) IsActive(a *alert.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.Token() != a.Token() {
		return false
	}
	st := s.active.State()
	return st == taxonomy.Activating || st == taxonomy.Active
}

// UpdateFocus applies a new focus level from the focus authority. When
// there is no active alert, entering Foreground or Background attempts to
// promote the next scheduled alert into the active slot, regardless of
// which focus level it's coming from.
func (s *Scheduler) UpdateFocus(focus taxonomy.FocusState) {
	s.mu.Lock()
	if focus == s.focus {
		s.mu.Unlock()
		return
	}
	s.focus = focus
	active := s.active
	s.mu.Unlock()

	if focus == taxonomy.FocusNone {
		if active != nil {
			_ = active.Deactivate(taxonomy.LocalStop)
		}
		return
	}

	if active != nil {
		active.SetFocusState(focus)
		kind := taxonomy.FocusEnteredBackground
		if focus == taxonomy.FocusForeground {
			kind = taxonomy.FocusEnteredForeground
		}
		s.notify(active.Token(), active.TypeName(), kind, taxonomy.StopReasonUnspecified)
		return
	}

	s.activateNext(focus)
}

// GetFocus returns the current focus level.
func (s *Scheduler) GetFocus() taxonomy.FocusState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// GetContextInfo returns a read-only snapshot. The active alert, if any,
// appears both in Active and again within Scheduled.
type SchedulerContextInfo struct {
	Scheduled []alert.ContextInfo
	Active    *alert.ContextInfo
	Focus     taxonomy.FocusState
}

func (s *Scheduler) GetContextInfo() SchedulerContextInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SchedulerContextInfo{Focus: s.focus}
	if s.active != nil {
		ci := s.active.GetContextInfo()
		out.Active = &ci
		out.Scheduled = append(out.Scheduled, ci)
	}
	for _, a := range s.scheduled {
		out.Scheduled = append(out.Scheduled, a.GetContextInfo())
	}
	return out
}

// LocalStop deactivates the active alert with reason LocalStop.
func (s *Scheduler) LocalStop() error {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Deactivate(taxonomy.LocalStop)
}

// ClearAll deactivates the active alert (if any), stops the timer, erases
// every scheduled alert from storage and memory, and clears the database.
// It does not clear the active slot itself; that happens when its Stopped
// event arrives, per the design note that a second ClearAll racing that
// event is not a case the source exercises.
func (s *Scheduler) ClearAll(ctx context.Context, reason taxonomy.StopReason) error {
	s.mu.Lock()
	active := s.active
	s.timer.Stop()
	cleared := s.scheduled
	s.scheduled = nil
	s.mu.Unlock()

	if active != nil {
		_ = active.Deactivate(reason)
	}
	for _, a := range cleared {
		s.notify(a.Token(), a.TypeName(), taxonomy.Deleted, taxonomy.StopReasonUnspecified)
	}
	if err := s.store.ClearDatabase(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Shutdown drains the executor, stops the timer, releases the observer,
// then releases storage, renderer, the active slot and the scheduled set.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if err := s.exec.Shutdown(ctx); err != nil {
		s.log.Warn("executor shutdown did not drain cleanly", logx.Any("err", err))
	}
	s.timer.Stop()
	s.stopReconcile()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = observer.Nop{}
	if s.store != nil {
		_ = s.store.Close()
	}
	s.rndr = renderer.NopRenderer{}
	s.active = nil
	s.scheduled = nil
	s.closed = true
	return nil
}

// activateNext moves the earliest scheduled alert into the active slot and
// asks it to activate. Invoked only when focus becomes non-None and no
// active alert is currently held; a no-op on an empty set.
func (s *Scheduler) activateNext(focus taxonomy.FocusState) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		s.log.Error("activateNext called with an active alert already held", logx.String("err", ErrInvariantViolation.Error()))
		return
	}
	a := s.firstLocked()
	if a == nil {
		s.mu.Unlock()
		return
	}
	s.removeByTokenLocked(a.Token())
	s.active = a
	s.timer.Stop()
	s.mu.Unlock()

	a.SetFocusState(focus)
	_ = a.Activate()
}

func (s *Scheduler) bindLocked(a *alert.Alert) {
	a.SetRenderer(s.rndr)
	a.SetObserver(s)
	a.SetLogger(s.log)
}

func (s *Scheduler) now() (time.Time, error) {
	return s.clk.Now()
}

func recordFromAlert(a *alert.Alert) storage.Record {
	return storage.Record{
		Token:         a.Token(),
		TypeName:      a.TypeName(),
		ScheduledISO:  a.ScheduledISO8601(),
		ScheduledUnix: a.ScheduledUnix(),
		State:         a.State().String(),
	}
}

func (s *Scheduler) notify(token, typeName string, kind taxonomy.EventKind, reason taxonomy.StopReason) {
	s.mu.Lock()
	obs := s.observer
	s.mu.Unlock()
	if err := s.exec.Submit(func() {
		obs.OnAlertStateChange(token, typeName, kind, reason)
	}); err != nil {
		s.log.Warn("dropped observer notification: executor shut down", logx.String("token", token), logx.String("kind", kind.String()))
	}
}
