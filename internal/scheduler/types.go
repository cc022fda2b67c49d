// Package scheduler is the core of the alert scheduler: it owns the ordered
// set of scheduled alerts, the at-most-one active alert, the focus state,
// and the single wall-clock timer, keeping all three consistent with
// storage under one mutex.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "alertsched/pkg/logx"

	"alertsched/internal/alert"
	"alertsched/internal/clock"
	"alertsched/internal/executor"
	"alertsched/internal/observer"
	"alertsched/internal/renderer"
	"alertsched/internal/runtime/supervisor"
	"alertsched/internal/storage"
	"alertsched/internal/taxonomy"
	"alertsched/internal/timerx"
)

// Config holds the scheduler's own tunables, refreshed by ApplyConfig on a
// config hot-reload.
type Config struct {
	// PastDueTolerance is how far in the past a scheduled time may sit
	// before the alert is treated as past-due instead of fired.
	PastDueTolerance time.Duration

	// ReconcileSpec is a robfig/cron spec (e.g. "@every 1m") for the
	// periodic housekeeping sweep that re-arms the timer if it was ever
	// silently lost. Empty disables the sweep.
	ReconcileSpec string
}

// Deps bundles the Scheduler's external collaborators. All are required
// except Renderer, which defaults to a NopRenderer, and Log, which
// defaults to a no-op logger.
type Deps struct {
	Clock    clock.Clock
	Store    storage.Store
	Renderer renderer.Renderer
	Log      logx.Logger
	Sup      *supervisor.Supervisor
}

// Scheduler is the alert scheduler core described in the package doc.
// Exported methods take mu while they read or change the scheduled set,
// the active slot and the focus, and release it before calling into an
// alert or notifying the observer; alert-driven state transitions never
// run under mu — they are bounced through exec.
type Scheduler struct {
	log   logx.Logger
	clk   clock.Clock
	store storage.Store
	rndr  renderer.Renderer
	sup   *supervisor.Supervisor
	exec  *executor.Executor
	timer *timerx.Timer

	mu       sync.Mutex
	cfg      Config
	observer observer.Observer
	scheduled []*alert.Alert // sorted by (scheduledUnix, token) ascending
	active    *alert.Alert
	focus     taxonomy.FocusState
	closed    bool

	reconcileCron *cron.Cron
}
