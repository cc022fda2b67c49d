// Package alert implements the Alert entity: a single scheduled item's own
// state machine, isolated from the scheduler that owns the ordered set and
// the single timer. An Alert never reaches back into its owning scheduler
// directly; it posts events through an EventSink capability instead, so the
// two types can be tested independently.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "alertsched/pkg/logx"

	"alertsched/internal/renderer"
	"alertsched/internal/taxonomy"
)

// EventSink is the capability an Alert uses to report itself. The scheduler
// implements this and hands an Alert a reference to itself cast down to
// this narrow interface, per the "give the alert a handle to post events,
// not to the scheduler itself" design note.
type EventSink interface {
	PostAlertEvent(token, typeName string, kind taxonomy.EventKind, reason taxonomy.StopReason)
}

// ContextInfo is a point-in-time, lock-free snapshot of an Alert, safe to
// log or hand to a diagnostics endpoint.
type ContextInfo struct {
	Token         string
	TypeName      string
	ScheduledISO  string
	ScheduledUnix int64
	State         taxonomy.AlertState
	Focus         taxonomy.FocusState
}

// Alert is a single scheduled item. All exported methods are safe for
// concurrent use; internally they serialize through a private mutex, never
// the scheduler's.
type Alert struct {
	mu sync.Mutex

	token    string
	typeName string

	scheduledISO  string
	scheduledUnix int64

	state taxonomy.AlertState
	focus taxonomy.FocusState

	renderer renderer.Renderer
	sink     EventSink
	log      logx.Logger
}

// New builds an Alert in state Set. scheduledISO must be RFC3339
// (a compatible profile of ISO-8601); a parse failure is returned rather
// than silently defaulting the schedule.
func New(token, typeName, scheduledISO string) (*Alert, error) {
	unix, err := parseISO8601(scheduledISO)
	if err != nil {
		return nil, fmt.Errorf("alert: invalid scheduled time %q: %w", scheduledISO, err)
	}
	return &Alert{
		token:         token,
		typeName:      typeName,
		scheduledISO:  scheduledISO,
		scheduledUnix: unix,
		state:         taxonomy.Set,
		focus:         taxonomy.FocusNone,
		renderer:      renderer.NopRenderer{},
		sink:          discardSink{},
		log:           logx.Nop(),
	}, nil
}

func parseISO8601(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

type discardSink struct{}

func (discardSink) PostAlertEvent(string, string, taxonomy.EventKind, taxonomy.StopReason) {}

func (a *Alert) Token() string    { return a.token }
func (a *Alert) TypeName() string { return a.typeName }

func (a *Alert) ScheduledISO8601() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scheduledISO
}

func (a *Alert) ScheduledUnix() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scheduledUnix
}

func (a *Alert) State() taxonomy.AlertState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Alert) FocusState() taxonomy.FocusState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focus
}

// SetRenderer binds the audible-rendering collaborator. Must be called
// before Activate; a nil renderer is replaced with a NopRenderer.
func (a *Alert) SetRenderer(r renderer.Renderer) {
	if r == nil {
		r = renderer.NopRenderer{}
	}
	a.mu.Lock()
	a.renderer = r
	a.mu.Unlock()
}

// SetObserver binds the event sink the alert reports transitions to.
func (a *Alert) SetObserver(sink EventSink) {
	if sink == nil {
		sink = discardSink{}
	}
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

// SetLogger binds the sink for diagnostic detail that has no place in the
// EventSink protocol, such as the underlying error behind a renderer
// failure. A zero Logger is replaced with a no-op.
func (a *Alert) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	a.mu.Lock()
	a.log = log
	a.mu.Unlock()
}

// SetFocusState updates the alert's view of audio focus. If the alert is
// currently Active, this may start or stop the renderer: only the
// foreground channel gets audible rendering, background alerts stay active
// but silent.
func (a *Alert) SetFocusState(f taxonomy.FocusState) {
	a.mu.Lock()
	old := a.focus
	a.focus = f
	st := a.state
	r := a.renderer
	token, typeName := a.token, a.typeName
	a.mu.Unlock()

	if st != taxonomy.Active {
		return
	}
	switch {
	case f == taxonomy.FocusForeground && old != taxonomy.FocusForeground:
		_ = r.Start(context.Background(), token, typeName, a.onRenderDone)
	case f != taxonomy.FocusForeground && old == taxonomy.FocusForeground:
		_ = r.Stop(token)
	}
}

// Activate moves a Set alert into the active slot. It transitions to
// Activating immediately, then asynchronously engages the renderer (only if
// focus is currently Foreground) and posts Started once that completes.
func (a *Alert) Activate() error {
	a.mu.Lock()
	if a.state != taxonomy.Set && a.state != taxonomy.Snoozed {
		st := a.state
		a.mu.Unlock()
		return fmt.Errorf("alert: cannot activate from state %s", st)
	}
	a.state = taxonomy.Activating
	focus := a.focus
	r := a.renderer
	token, typeName := a.token, a.typeName
	a.mu.Unlock()

	go func() {
		if focus == taxonomy.FocusForeground {
			if err := r.Start(context.Background(), token, typeName, a.onRenderDone); err != nil {
				a.postError(err)
				return
			}
		}
		a.postStarted()
	}()
	return nil
}

func (a *Alert) postStarted() {
	a.mu.Lock()
	if a.state != taxonomy.Activating {
		// A concurrent Deactivate already moved this alert past Activating
		// while the renderer was starting; the state mutation and the event
		// it would report are both stale.
		a.mu.Unlock()
		return
	}
	a.state = taxonomy.Active
	sink := a.sink
	token, typeName := a.token, a.typeName
	a.mu.Unlock()
	sink.PostAlertEvent(token, typeName, taxonomy.Started, taxonomy.StopReasonUnspecified)
}

func (a *Alert) postError(err error) {
	a.mu.Lock()
	sink := a.sink
	log := a.log
	token, typeName := a.token, a.typeName
	a.mu.Unlock()
	log.Error("alert render failed", logx.String("token", token), logx.Err(err))
	sink.PostAlertEvent(token, typeName, taxonomy.Error, taxonomy.StopReasonUnspecified)
}

// onRenderDone is the callback handed to Renderer.Start. A context.Canceled
// error means Deactivate already handled the transition and posted Stopped;
// treat it as a no-op here to avoid a duplicate event.
func (a *Alert) onRenderDone(err error) {
	if err == context.Canceled {
		return
	}
	a.mu.Lock()
	if a.state != taxonomy.Active && a.state != taxonomy.Activating {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.mu.Unlock()
		a.postError(err)
		return
	}
	a.state = taxonomy.Completed
	sink := a.sink
	token, typeName := a.token, a.typeName
	a.mu.Unlock()
	sink.PostAlertEvent(token, typeName, taxonomy.Completed, taxonomy.StopReasonUnspecified)
}

// Deactivate stops an Activating or Active alert before natural completion
// and posts Stopped with the given reason. A no-op (returns nil) if the
// alert isn't currently active.
func (a *Alert) Deactivate(reason taxonomy.StopReason) error {
	a.mu.Lock()
	if a.state != taxonomy.Activating && a.state != taxonomy.Active {
		a.mu.Unlock()
		return nil
	}
	a.state = taxonomy.Stopping
	r := a.renderer
	token := a.token
	a.mu.Unlock()

	_ = r.Stop(token)

	a.mu.Lock()
	a.state = taxonomy.Stopped
	sink := a.sink
	typeName := a.typeName
	a.mu.Unlock()
	sink.PostAlertEvent(token, typeName, taxonomy.Stopped, reason)
	return nil
}

// Snooze stops an Active alert's rendering and reschedules it to newISO,
// posting Snoozed. Returns an error if the alert isn't Active or newISO
// doesn't parse.
func (a *Alert) Snooze(newISO string) error {
	unix, err := parseISO8601(newISO)
	if err != nil {
		return fmt.Errorf("alert: invalid snooze time %q: %w", newISO, err)
	}

	a.mu.Lock()
	if a.state != taxonomy.Active {
		st := a.state
		a.mu.Unlock()
		return fmt.Errorf("alert: cannot snooze from state %s", st)
	}
	a.state = taxonomy.Snoozing
	r := a.renderer
	token, typeName := a.token, a.typeName
	a.mu.Unlock()

	_ = r.Stop(token)

	a.mu.Lock()
	a.scheduledISO = newISO
	a.scheduledUnix = unix
	a.state = taxonomy.Snoozed
	sink := a.sink
	a.mu.Unlock()
	sink.PostAlertEvent(token, typeName, taxonomy.Snoozed, taxonomy.StopReasonUnspecified)
	return nil
}

// UpdateScheduledTime rewrites the fire time of an alert sitting in the
// scheduled set (state Set). It refuses to mutate an alert that is active
// or transitioning, returning false; the caller (Scheduler.update) is
// expected to treat false as "reschedule failed, alert unchanged".
func (a *Alert) UpdateScheduledTime(newISO string) bool {
	unix, err := parseISO8601(newISO)
	if err != nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != taxonomy.Set {
		return false
	}
	a.scheduledISO = newISO
	a.scheduledUnix = unix
	return true
}

// Reset returns a terminal (Stopped/Completed) alert to Set, so it can be
// reinserted into the scheduled set. Used during storage-backed recovery
// when a previously Active alert is found at startup: its render session
// is gone, so it goes back to waiting.
func (a *Alert) Reset() {
	a.mu.Lock()
	a.state = taxonomy.Set
	a.mu.Unlock()
}

// IsPastDue reports whether the alert's scheduled fire time is more than
// tolerance in the past relative to now.
func (a *Alert) IsPastDue(now time.Time, tolerance time.Duration) bool {
	a.mu.Lock()
	unix := a.scheduledUnix
	a.mu.Unlock()
	return unix < now.Add(-tolerance).Unix()
}

// GetContextInfo returns a snapshot safe to log or serialize.
func (a *Alert) GetContextInfo() ContextInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ContextInfo{
		Token:         a.token,
		TypeName:      a.typeName,
		ScheduledISO:  a.scheduledISO,
		ScheduledUnix: a.scheduledUnix,
		State:         a.state,
		Focus:         a.focus,
	}
}
