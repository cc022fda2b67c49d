package scheduler

import "errors"

// Error taxonomy. These are sentinel causes, not exhaustive error types:
// public operations return a nil error on success, and on failure an error
// wrapping one of these (with context via fmt.Errorf's %w).
var (
	// ErrConfig covers a nil observer at initialize, or storage that is
	// absent and could not be created. Fatal to the scheduler's lifecycle.
	ErrConfig = errors.New("scheduler: config error")

	// ErrTimeUnavailable means the injected clock failed to read. The
	// triggering operation aborts without mutating state.
	ErrTimeUnavailable = errors.New("scheduler: time source unavailable")

	// ErrStorage covers any failed open/create/store/modify/erase/bulkErase.
	ErrStorage = errors.New("scheduler: storage error")

	// ErrScheduleViolation means the alert's scheduled time was already
	// past due at schedule() time; nothing was persisted.
	ErrScheduleViolation = errors.New("scheduler: schedule violation")

	// ErrInvariantViolation marks a path that should be unreachable except
	// through an internal bug (e.g. activateNext with an active alert
	// already held). The operation aborts without mutation.
	ErrInvariantViolation = errors.New("scheduler: invariant violation")

	// ErrAlertRuntime marks failures surfaced by an alert's own state
	// machine (typically a Renderer failure). The alert is discarded.
	ErrAlertRuntime = errors.New("scheduler: alert runtime error")
)
