package scheduler

import (
	"strings"

	"github.com/robfig/cron/v3"

	logx "alertsched/pkg/logx"
)

// ApplyConfig refreshes the scheduler's tunables on a config hot-reload:
// PastDueTolerance takes effect on the next Initialize/Schedule check;
// ReconcileSpec restarts the periodic reconciliation sweep below.
func (s *Scheduler) ApplyConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.stopReconcile()
	if strings.TrimSpace(cfg.ReconcileSpec) == "" {
		return
	}
	s.startReconcile(cfg.ReconcileSpec)
}

// startReconcile arms a robfig/cron sweep that re-derives the timer from
// the scheduled set. The scheduler's own arming logic re-arms on every
// mutation already; this sweep exists only as a safety net against a
// timer silently lost to a bug, so it is intentionally cheap and
// idempotent — it just calls the same locked arming routine again.
//
// The job runs on cron's own goroutine, outside the supervisor's usual
// Go/GoRestart wrapping, so it is routed through SafeCall to keep a panic
// in reconcileOnce from taking that goroutine (and the whole sweep) down.
func (s *Scheduler) startReconcile(spec string) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() { s.sup.SafeCall("scheduler.reconcile", s.reconcileOnce) })
	if err != nil {
		s.log.Error("scheduler: invalid reconcile spec, sweep disabled", logx.String("spec", spec), logx.Any("err", err))
		return
	}
	c.Start()

	s.mu.Lock()
	s.reconcileCron = c
	s.mu.Unlock()
}

func (s *Scheduler) stopReconcile() {
	s.mu.Lock()
	c := s.reconcileCron
	s.reconcileCron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Scheduler) reconcileOnce() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.timer.IsActive()
	s.setTimerForNextLocked()
	after := s.timer.IsActive()
	needsTimer := s.active == nil && s.firstLocked() != nil
	s.mu.Unlock()

	if needsTimer && !before && after {
		s.log.Warn("scheduler: reconcile sweep found a lost timer and re-armed it")
	}
}
