package scheduler

import (
	"context"

	logx "alertsched/pkg/logx"

	"alertsched/internal/alert"
	"alertsched/internal/observer"
	"alertsched/internal/taxonomy"
)

// PostAlertEvent is the alert.EventSink implementation: an Alert's own
// state machine calls this from whatever goroutine reached the
// transition. It never runs the dispatch itself — it only enqueues, so the
// alert's callback never blocks on or reenters the scheduler mutex.
func (s *Scheduler) PostAlertEvent(token, typeName string, kind taxonomy.EventKind, reason taxonomy.StopReason) {
	if err := s.exec.Submit(func() { s.dispatch(token, typeName, kind, reason) }); err != nil {
		s.log.Warn("scheduler: dropped alert event, executor shut down",
			logx.String("token", token), logx.String("kind", kind.String()))
	}
}

var _ alert.EventSink = (*Scheduler)(nil)

// dispatch runs on the executor thread only: it is the sole place the
// scheduler mutex is taken in response to an alert-driven signal.
func (s *Scheduler) dispatch(token, typeName string, kind taxonomy.EventKind, reason taxonomy.StopReason) {
	switch kind {
	case taxonomy.Ready:
		s.handleReady(token, typeName)
	case taxonomy.Started:
		s.handleStarted(token, typeName)
	case taxonomy.Stopped:
		s.handleTerminal(token, typeName, taxonomy.Stopped, reason)
	case taxonomy.Completed:
		s.handleTerminal(token, typeName, taxonomy.Completed, taxonomy.StopReasonUnspecified)
	case taxonomy.Snoozed:
		s.handleSnoozed(token, typeName)
	case taxonomy.Error:
		s.handleError(token, typeName)
	default:
		s.log.Error("scheduler: unexpected inbound alert signal", logx.String("token", token), logx.String("kind", kind.String()))
	}
}

func (s *Scheduler) obsSnapshot() observer.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer
}

// handleReady forwards to the observer, then promotes the alert into the
// active slot if focus already permits rendering and nothing else is
// active — the case where focus was granted before the alert came due, so
// no further updateFocus call will ever arrive to trigger activation.
func (s *Scheduler) handleReady(token, typeName string) {
	s.obsSnapshot().OnAlertStateChange(token, typeName, taxonomy.Ready, taxonomy.StopReasonUnspecified)

	s.mu.Lock()
	active := s.active
	focus := s.focus
	s.mu.Unlock()
	if active == nil && focus != taxonomy.FocusNone {
		s.activateNext(focus)
	}
}

func (s *Scheduler) handleStarted(token, typeName string) {
	s.mu.Lock()
	if s.active == nil || s.active.Token() != token {
		s.mu.Unlock()
		return
	}
	rec := recordFromAlert(s.active)
	s.mu.Unlock()

	if err := s.store.Modify(context.Background(), rec); err != nil {
		s.log.Error("failed to persist Started alert", logx.String("token", token), logx.Any("err", err))
	}
	s.obsSnapshot().OnAlertStateChange(token, typeName, taxonomy.Started, taxonomy.StopReasonUnspecified)
}

// handleTerminal handles both Stopped and Completed: the active slot is
// cleared and the timer re-armed, then the terminal kind is reported,
// then the row is erased and — on success — a follow-up Deleted is
// reported too, since the record leaving storage is itself an event worth
// telling the observer about.
func (s *Scheduler) handleTerminal(token, typeName string, kind taxonomy.EventKind, reason taxonomy.StopReason) {
	s.mu.Lock()
	if s.active == nil || s.active.Token() != token {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.setTimerForNextLocked()
	s.mu.Unlock()

	s.obsSnapshot().OnAlertStateChange(token, typeName, kind, reason)
	s.eraseAndNotifyDeleted(token, typeName)
}

// eraseAndNotifyDeleted erases token from storage and, only on success,
// reports Deleted. A failed erase is logged and left there rather than
// retried — the in-memory side has already moved on.
func (s *Scheduler) eraseAndNotifyDeleted(token, typeName string) {
	if err := s.store.Erase(context.Background(), token); err != nil {
		s.log.Error("failed to erase alert record", logx.String("token", token), logx.Any("err", err))
		return
	}
	s.obsSnapshot().OnAlertStateChange(token, typeName, taxonomy.Deleted, taxonomy.StopReasonUnspecified)
}

func (s *Scheduler) handleSnoozed(token, typeName string) {
	s.mu.Lock()
	if s.active == nil || s.active.Token() != token {
		s.mu.Unlock()
		return
	}
	a := s.active
	s.active = nil
	s.insertLocked(a)
	s.setTimerForNextLocked()
	s.mu.Unlock()

	if err := s.store.Modify(context.Background(), recordFromAlert(a)); err != nil {
		s.log.Error("failed to persist snoozed alert", logx.String("token", token), logx.Any("err", err))
	}
	s.obsSnapshot().OnAlertStateChange(token, typeName, taxonomy.Snoozed, taxonomy.StopReasonUnspecified)
}

// handleError discards the erroring alert wherever it currently sits, to
// prevent livelock, then re-arms the timer. The erase's follow-up Deleted
// is reported before the Error notification itself, mirroring the order
// an unconditional trailing notify would produce after an erase-in-branch.
func (s *Scheduler) handleError(token, typeName string) {
	s.mu.Lock()
	if s.active != nil && s.active.Token() == token {
		s.active = nil
	} else {
		s.removeByTokenLocked(token)
	}
	s.setTimerForNextLocked()
	s.mu.Unlock()

	s.eraseAndNotifyDeleted(token, typeName)
	s.obsSnapshot().OnAlertStateChange(token, typeName, taxonomy.Error, taxonomy.StopReasonUnspecified)
}
