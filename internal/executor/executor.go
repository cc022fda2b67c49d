// Package executor implements the scheduler's serial FIFO task queue: a
// single supervised worker drains a channel of closures in submission
// order, so every alert callback runs without ever racing the scheduler's
// own mutex-guarded operations.
package executor

import (
	"context"
	"errors"

	"github.com/google/uuid"

	logx "alertsched/pkg/logx"

	"alertsched/internal/runtime/supervisor"
)

// ErrShutdown is returned by Submit once Shutdown has been called.
var ErrShutdown = errors.New("executor: shut down")

type task struct {
	id string
	fn func()
}

// Executor runs submitted tasks one at a time, in submission order.
type Executor struct {
	log logx.Logger
	sup *supervisor.Supervisor

	q        chan task
	shutdown chan struct{}
	done     chan struct{}
}

// New starts the executor's worker goroutine under sup and returns
// immediately. queueSize bounds how many pending tasks Submit will accept
// before blocking the caller.
func New(sup *supervisor.Supervisor, log logx.Logger, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	e := &Executor{
		log:      log,
		sup:      sup,
		q:        make(chan task, queueSize),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	sup.GoRestart("executor.worker", e.run)
	return e
}

// Submit enqueues fn to run on the executor's worker thread. It never runs
// fn synchronously, even if the queue is empty, so callers holding a lock
// can never be reentered on the same goroutine.
func (e *Executor) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	id := uuid.NewString()
	select {
	case <-e.shutdown:
		return ErrShutdown
	default:
	}
	select {
	case e.q <- task{id: id, fn: fn}:
		return nil
	case <-e.shutdown:
		return ErrShutdown
	}
}

// Shutdown stops accepting new tasks and blocks until every already-queued
// task has run.
func (e *Executor) Shutdown(ctx context.Context) error {
	select {
	case <-e.shutdown:
	default:
		close(e.shutdown)
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) run(ctx context.Context) error {
	for {
		select {
		case t := <-e.q:
			e.runOne(t)
		case <-e.shutdown:
			e.drain()
			close(e.done)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain runs every task left in the queue after shutdown was requested, so
// a caller blocked in Shutdown sees every already-accepted task complete.
func (e *Executor) drain() {
	for {
		select {
		case t := <-e.q:
			e.runOne(t)
		default:
			return
		}
	}
}

func (e *Executor) runOne(t task) {
	defer func() {
		if r := recover(); r != nil {
			if !e.log.IsZero() {
				e.log.Error("executor task panicked", logx.String("task_id", t.id), logx.Any("panic", r))
			}
		}
	}()
	t.fn()
}
