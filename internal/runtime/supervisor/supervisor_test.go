package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoRunsAndWaitReturnsNil(t *testing.T) {
	s := NewSupervisor(context.Background())
	done := make(chan struct{})
	s.Go0("worker", func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestGoRecoversPanicAndSetsErr(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go0("boom", func(ctx context.Context) { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected Wait to surface the panic as an error")
	}
}

func TestCancelOnErrorCancelsContext(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("boom") })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("expected supervisor context to be canceled after an error")
	}
}

func TestContextCanceledIsNotTreatedAsError(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go("cancels-cleanly", func(ctx context.Context) error { return context.Canceled })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v, want nil for a context.Canceled return", err)
	}
}

func TestStopCancelsAndWaits(t *testing.T) {
	s := NewSupervisor(context.Background())
	started := make(chan struct{})
	s.Go0("loop", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCountersTrackActiveGoroutines(t *testing.T) {
	s := NewSupervisor(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})
	s.Go0("counted", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	c := s.Counters()
	if c.Active != 1 || c.Started != 1 {
		t.Fatalf("Counters = %+v, want Active=1 Started=1", c)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Wait(ctx)
}
