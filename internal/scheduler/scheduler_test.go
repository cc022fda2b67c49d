package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logx "alertsched/pkg/logx"

	"alertsched/internal/alert"
	"alertsched/internal/clock"
	"alertsched/internal/runtime/supervisor"
	"alertsched/internal/storage"
	"alertsched/internal/taxonomy"
)

// memStore is an in-memory storage.Store test double.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]storage.Record
	failErase map[string]bool
	failModify bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]storage.Record)}
}

func (m *memStore) CreateDatabase(ctx context.Context) error { return nil }
func (m *memStore) ClearDatabase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[string]storage.Record)
	return nil
}

func (m *memStore) Load(ctx context.Context) ([]storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) Store(ctx context.Context, r storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.Token] = r
	return nil
}

func (m *memStore) Modify(ctx context.Context, r storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failModify {
		return errors.New("modify failed")
	}
	m.rows[r.Token] = r
	return nil
}

func (m *memStore) Erase(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErase[token] {
		return errors.New("erase failed")
	}
	delete(m.rows, token)
	return nil
}

func (m *memStore) BulkErase(ctx context.Context, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		delete(m.rows, t)
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) hasToken(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[token]
	return ok
}

var _ storage.Store = (*memStore)(nil)

// recordingObserver is an observer.Observer test double that records every
// event and lets a test wait for one matching a predicate.
type recordingObserver struct {
	mu     sync.Mutex
	events []obsEvent
	notify chan struct{}
}

type obsEvent struct {
	token, typeName string
	kind            taxonomy.EventKind
	reason          taxonomy.StopReason
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{notify: make(chan struct{}, 64)}
}

func (o *recordingObserver) OnAlertStateChange(token, typeName string, state taxonomy.EventKind, reason taxonomy.StopReason) {
	o.mu.Lock()
	o.events = append(o.events, obsEvent{token, typeName, state, reason})
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *recordingObserver) snapshot() []obsEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]obsEvent, len(o.events))
	copy(out, o.events)
	return out
}

func (o *recordingObserver) waitFor(t *testing.T, pred func(obsEvent) bool) obsEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, e := range o.snapshot() {
			if pred(e) {
				return e
			}
		}
		select {
		case <-o.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for matching event; got %+v", o.snapshot())
		}
	}
}

func (o *recordingObserver) waitForKind(t *testing.T, token string, kind taxonomy.EventKind) obsEvent {
	t.Helper()
	return o.waitFor(t, func(e obsEvent) bool { return e.token == token && e.kind == kind })
}

func newTestScheduler(t *testing.T, clk clock.Clock, store storage.Store) (*Scheduler, *recordingObserver) {
	t.Helper()
	sup := supervisor.NewSupervisor(context.Background())
	t.Cleanup(sup.Cancel)
	s := New(Config{PastDueTolerance: 30 * time.Second}, Deps{
		Clock: clk,
		Store: store,
		Log:   logx.Nop(),
		Sup:   sup,
	})
	obs := newRecordingObserver()
	if err := s.Initialize(context.Background(), obs); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, obs
}

func mustAlert(t *testing.T, token, typeName string, when time.Time) *alert.Alert {
	t.Helper()
	a, err := alert.New(token, typeName, when.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("alert.New(%s): %v", token, err)
	}
	return a
}

// TestS1BasicFire exercises spec.md S1: schedule with focus already
// Foreground, expect Ready then Started, with A active and still held in
// storage.
func TestS1BasicFire(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)

	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(2*time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	clk.Advance(2 * time.Second)
	obs.waitForKind(t, "A", taxonomy.Ready)
	obs.waitForKind(t, "A", taxonomy.Started)

	if !s.IsActive(a) {
		t.Fatal("expected A to be active after Started")
	}
	if !store.hasToken("A") {
		t.Fatal("expected storage to hold A once active")
	}
}

// TestS2Snooze exercises spec.md S2: an active alert snoozed re-enters the
// scheduled set and re-fires Ready once its new time arrives.
func TestS2Snooze(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "timer", start.Add(time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Advance(time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	newTime := clk.Advance(0).Add(60 * time.Second)
	if err := s.Snooze("A", newTime.Format(time.RFC3339)); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	obs.waitForKind(t, "A", taxonomy.Snoozed)

	if s.IsActive(a) {
		t.Fatal("snoozed alert must not remain active")
	}

	clk.Advance(60 * time.Second)
	// A second Ready must arrive for the re-armed timer.
	seen := 0
	deadline := time.After(2 * time.Second)
	for seen < 2 {
		seen = 0
		for _, e := range obs.snapshot() {
			if e.token == "A" && e.kind == taxonomy.Ready {
				seen++
			}
		}
		if seen >= 2 {
			break
		}
		select {
		case <-obs.notify:
		case <-deadline:
			t.Fatal("timed out waiting for second Ready after snooze")
		}
	}
}

// TestS3DeleteActive exercises spec.md S3: deleting the active alert stops
// it with AvsStop, reports Stopped then Deleted, and arms the next alert.
func TestS3DeleteActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(time.Second))
	b := mustAlert(t, "B", "alarm", start.Add(10*time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule A: %v", err)
	}
	if err := s.Schedule(context.Background(), b); err != nil {
		t.Fatalf("Schedule B: %v", err)
	}

	clk.Advance(time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	if err := s.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	stopped := obs.waitForKind(t, "A", taxonomy.Stopped)
	if stopped.reason != taxonomy.AvsStop {
		t.Fatalf("Stopped reason = %v, want AvsStop", stopped.reason)
	}
	obs.waitForKind(t, "A", taxonomy.Deleted)

	if store.hasToken("A") {
		t.Fatal("expected A erased from storage after delete")
	}

	// B's timer must now be armed: advancing to its fire time yields Ready.
	clk.Advance(9 * time.Second)
	obs.waitForKind(t, "B", taxonomy.Ready)
}

// TestS4PastDueOnBoot exercises spec.md S4: a pre-populated past-due record
// is announced and erased at Initialize, with no timer armed for it.
func TestS4PastDueOnBoot(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	stale := start.Add(-10 * time.Minute)
	if err := store.Store(context.Background(), storage.Record{
		Token: "C", TypeName: "reminder",
		ScheduledISO:  stale.Format(time.RFC3339),
		ScheduledUnix: stale.Unix(),
		State:         taxonomy.Set.String(),
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	clk := clock.NewVirtual(start)
	s, obs := newTestScheduler(t, clk, store)

	obs.waitForKind(t, "C", taxonomy.PastDue)
	if store.hasToken("C") {
		t.Fatal("expected C erased after PastDue")
	}
	info := s.GetContextInfo()
	if len(info.Scheduled) != 0 || info.Active != nil {
		t.Fatalf("expected empty schedule after dropping past-due C, got %+v", info)
	}
}

// TestS5FocusRevocation exercises spec.md S5: revoking focus deactivates
// the active alert with LocalStop.
func TestS5FocusRevocation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Advance(time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	s.UpdateFocus(taxonomy.FocusNone)
	stopped := obs.waitForKind(t, "A", taxonomy.Stopped)
	if stopped.reason != taxonomy.LocalStop {
		t.Fatalf("Stopped reason = %v, want LocalStop", stopped.reason)
	}

	if s.IsActive(a) {
		t.Fatal("alert must not report active after focus revocation")
	}
}

// TestS6BulkDeleteWithMissing exercises spec.md S6: deleteMany with one
// missing token still deletes the present ones and leaves the timer
// disarmed once the set is empty.
func TestS6BulkDeleteWithMissing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)

	a := mustAlert(t, "A", "alarm", start.Add(time.Minute))
	b := mustAlert(t, "B", "alarm", start.Add(2*time.Minute))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule A: %v", err)
	}
	if err := s.Schedule(context.Background(), b); err != nil {
		t.Fatalf("Schedule B: %v", err)
	}

	if err := s.DeleteMany(context.Background(), []string{"A", "missing", "B"}); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	obs.waitForKind(t, "A", taxonomy.Deleted)
	obs.waitForKind(t, "B", taxonomy.Deleted)

	for _, e := range obs.snapshot() {
		if e.token == "missing" {
			t.Fatalf("unexpected event for missing token: %+v", e)
		}
	}
	if store.rowCount() != 0 {
		t.Fatalf("expected empty storage, got %d rows", store.rowCount())
	}
	info := s.GetContextInfo()
	if len(info.Scheduled) != 0 {
		t.Fatalf("expected empty scheduled set, got %+v", info.Scheduled)
	}
	if s.timer.IsActive() {
		t.Fatal("expected the timer disarmed once the scheduled set is empty")
	}
}

// TestInvariantAtMostOneActive covers property 1: scheduling a second
// alert while one is active must not promote it too.
func TestInvariantAtMostOneActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(time.Second))
	b := mustAlert(t, "B", "alarm", start.Add(2*time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule A: %v", err)
	}
	if err := s.Schedule(context.Background(), b); err != nil {
		t.Fatalf("Schedule B: %v", err)
	}

	clk.Advance(2 * time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	if s.IsActive(b) {
		t.Fatal("B must not be active while A holds the active slot")
	}
}

// TestInvariantTimerDisarmedWhileActive covers property 2.
func TestInvariantTimerDisarmedWhileActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(time.Second))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	clk.Advance(time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	if s.timer.IsActive() {
		t.Fatal("timer must be disarmed while an alert is active")
	}
}

// TestIdempotentDelete covers property 5: deleting an already-deleted
// token is a no-op, not an error.
func TestIdempotentDelete(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)

	a := mustAlert(t, "A", "alarm", start.Add(time.Minute))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	obs.waitForKind(t, "A", taxonomy.Deleted)

	if err := s.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("second Delete on already-deleted token returned error: %v", err)
	}
}

// TestUpdateRollbackOnStorageFailure covers property 6: a failed modify
// leaves the alert's schedule unchanged.
func TestUpdateRollbackOnStorageFailure(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, _ := newTestScheduler(t, clk, store)

	a := mustAlert(t, "A", "alarm", start.Add(time.Hour))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	before := a.ScheduledISO8601()

	store.mu.Lock()
	store.failModify = true
	store.mu.Unlock()

	newISO := start.Add(2 * time.Hour).Format(time.RFC3339)
	if err := s.Update(context.Background(), a, newISO); err == nil {
		t.Fatal("expected Update to fail when storage.Modify fails")
	}
	if a.ScheduledISO8601() != before {
		t.Fatalf("scheduled time changed despite storage failure: got %q, want %q", a.ScheduledISO8601(), before)
	}
}

// TestCrashActiveRecovery covers property 8: a persisted Active alert is
// observed by the next Initialize as Set, not Active.
func TestCrashActiveRecovery(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	future := start.Add(time.Hour)
	if err := store.Store(context.Background(), storage.Record{
		Token: "A", TypeName: "alarm",
		ScheduledISO:  future.Format(time.RFC3339),
		ScheduledUnix: future.Unix(),
		State:         taxonomy.Active.String(),
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	clk := clock.NewVirtual(start)
	s, _ := newTestScheduler(t, clk, store)

	info := s.GetContextInfo()
	if len(info.Scheduled) != 1 || info.Scheduled[0].State != taxonomy.Set {
		t.Fatalf("expected recovered alert in Set, got %+v", info.Scheduled)
	}
	if info.Active != nil {
		t.Fatal("recovered alert must not be in the active slot")
	}
}

// TestApplyConfigUpdatesToleranceAndReconcile exercises the config
// hot-reload path: a new PastDueTolerance takes effect immediately and an
// empty ReconcileSpec leaves the sweep stopped.
func TestApplyConfigUpdatesToleranceAndReconcile(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, _ := newTestScheduler(t, clk, store)

	s.ApplyConfig(Config{PastDueTolerance: 5 * time.Minute, ReconcileSpec: "@every 1m"})
	s.mu.Lock()
	tol := s.cfg.PastDueTolerance
	cronSet := s.reconcileCron != nil
	s.mu.Unlock()
	if tol != 5*time.Minute {
		t.Fatalf("PastDueTolerance = %v, want 5m", tol)
	}
	if !cronSet {
		t.Fatal("expected reconcile cron to be armed with a non-empty spec")
	}

	s.ApplyConfig(Config{PastDueTolerance: time.Minute})
	s.mu.Lock()
	cronSet = s.reconcileCron != nil
	s.mu.Unlock()
	if cronSet {
		t.Fatal("expected reconcile cron to be stopped when spec goes empty")
	}
}

// TestReconcileOnceRearmsLostTimer covers the sweep's safety-net role: it
// re-derives the timer from the scheduled set even if nothing else asked.
func TestReconcileOnceRearmsLostTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, _ := newTestScheduler(t, clk, store)

	a := mustAlert(t, "A", "alarm", start.Add(time.Minute))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.mu.Lock()
	s.timer.Stop()
	s.mu.Unlock()

	s.reconcileOnce()

	if !s.timer.IsActive() {
		t.Fatal("expected reconcileOnce to re-arm the lost timer")
	}
}

// TestDiagnosticSnapshotIncludesActiveAndScheduled sanity-checks the
// human-readable summary contains both the active alert and any others
// waiting behind it.
func TestDiagnosticSnapshotIncludesActiveAndScheduled(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	a := mustAlert(t, "A", "alarm", start.Add(time.Second))
	b := mustAlert(t, "B", "alarm", start.Add(time.Hour))
	if err := s.Schedule(context.Background(), a); err != nil {
		t.Fatalf("Schedule A: %v", err)
	}
	if err := s.Schedule(context.Background(), b); err != nil {
		t.Fatalf("Schedule B: %v", err)
	}
	clk.Advance(time.Second)
	obs.waitForKind(t, "A", taxonomy.Started)

	snap := s.DiagnosticSnapshot()
	if !strings.Contains(snap, "active=A") || !strings.Contains(snap, "B") {
		t.Fatalf("DiagnosticSnapshot = %q, want both A (active) and B mentioned", snap)
	}
}

// TestOrdering covers property 4: the earliest scheduled alert always
// fires first, even when scheduled out of order.
func TestOrdering(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewVirtual(start)
	store := newMemStore()
	s, obs := newTestScheduler(t, clk, store)
	s.UpdateFocus(taxonomy.FocusForeground)

	late := mustAlert(t, "late", "alarm", start.Add(10*time.Second))
	early := mustAlert(t, "early", "alarm", start.Add(time.Second))
	if err := s.Schedule(context.Background(), late); err != nil {
		t.Fatalf("Schedule late: %v", err)
	}
	if err := s.Schedule(context.Background(), early); err != nil {
		t.Fatalf("Schedule early: %v", err)
	}

	clk.Advance(time.Second)
	obs.waitForKind(t, "early", taxonomy.Started)
	if s.IsActive(late) {
		t.Fatal("later-scheduled alert must not fire first")
	}
}
