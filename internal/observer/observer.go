// Package observer defines the single upstream subscriber the scheduler
// reports alert lifecycle events to. Exactly one Observer is supported per
// scheduler by design; multiplexing to several subscribers belongs at a
// higher layer, outside this module.
package observer

import "alertsched/internal/taxonomy"

// Observer receives every lifecycle event the scheduler produces for any
// alert: state transitions, focus-driven transitions, deletions, and
// errors. Implementations must not block for long — the scheduler calls
// OnAlertStateChange from its serial executor thread, and a slow observer
// delays every other alert's event delivery.
type Observer interface {
	OnAlertStateChange(token, typeName string, state taxonomy.EventKind, reason taxonomy.StopReason)
}

// Nop discards every event. Used as the scheduler's default observer before
// one is registered, so callers never need a nil check.
type Nop struct{}

func (Nop) OnAlertStateChange(string, string, taxonomy.EventKind, taxonomy.StopReason) {}
