package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "alertsched/pkg/logx"

	"alertsched/internal/runtime/supervisor"
)

func newTestExecutor(t *testing.T) (*Executor, func()) {
	t.Helper()
	sup := supervisor.NewSupervisor(context.Background())
	e := New(sup, logx.Nop(), 0)
	return e, func() { sup.Cancel() }
}

func TestSubmitRunsInOrder(t *testing.T) {
	e, cleanup := newTestExecutor(t)
	defer cleanup()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		if err := e.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("execution order = %v, want strictly ascending", order)
		}
	}
}

func TestSubmitNeverRunsSynchronously(t *testing.T) {
	e, cleanup := newTestExecutor(t)
	defer cleanup()

	ran := make(chan struct{})
	if err := e.Submit(func() { close(ran) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-ran:
		t.Fatal("task ran synchronously on the caller's goroutine")
	default:
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	e, cleanup := newTestExecutor(t)
	defer cleanup()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 10; i++ {
		if err := e.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("count = %d, want 10 (all queued tasks drained)", count)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	e, cleanup := newTestExecutor(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if err := e.Submit(func() {}); err != ErrShutdown {
		t.Fatalf("Submit after shutdown = %v, want ErrShutdown", err)
	}
}

func TestPanicInTaskDoesNotStopWorker(t *testing.T) {
	e, cleanup := newTestExecutor(t)
	defer cleanup()

	if err := e.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ran := make(chan struct{})
	if err := e.Submit(func() { close(ran) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not continue processing after a panicking task")
	}
}
