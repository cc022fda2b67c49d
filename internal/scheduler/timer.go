package scheduler

import (
	"time"

	"alertsched/internal/taxonomy"
)

// setTimerForNextLocked implements the single-timer arming rule: stop
// whatever is running, then arm (or fire immediately) for the earliest
// scheduled alert, unless an alert is already active. Call with mu held.
func (s *Scheduler) setTimerForNextLocked() {
	s.timer.Stop()

	if s.active != nil {
		return
	}
	a := s.firstLocked()
	if a == nil {
		return
	}

	now, err := s.now()
	if err != nil {
		s.log.Warn("setTimerForNext: clock unavailable, leaving timer disarmed")
		return
	}

	delta := time.Unix(a.ScheduledUnix(), 0).Sub(now)
	if delta < 0 {
		delta = 0
	}

	token, typeName := a.Token(), a.TypeName()
	if delta == 0 {
		// Emit off the caller's goroutine: PostAlertEvent may block on the
		// executor queue, and we are still holding mu here.
		go s.PostAlertEvent(token, typeName, taxonomy.Ready, taxonomy.StopReasonUnspecified)
		return
	}
	s.timer.Start(delta, func() {
		s.PostAlertEvent(token, typeName, taxonomy.Ready, taxonomy.StopReasonUnspecified)
	})
}
