package scheduler

import (
	"sort"

	"alertsched/internal/alert"
)

// less orders two alerts by (scheduledUnix, token) ascending, the ordering
// key for the scheduled set. Per the design note, this key is treated as
// immutable while a member is in the set: callers always remove, mutate,
// then reinsert rather than sorting in place.
func less(a, b *alert.Alert) bool {
	au, bu := a.ScheduledUnix(), b.ScheduledUnix()
	if au != bu {
		return au < bu
	}
	return a.Token() < b.Token()
}

// insertLocked inserts a into the scheduled set, preserving order. Call
// with mu held.
func (s *Scheduler) insertLocked(a *alert.Alert) {
	i := sort.Search(len(s.scheduled), func(i int) bool { return less(a, s.scheduled[i]) })
	s.scheduled = append(s.scheduled, nil)
	copy(s.scheduled[i+1:], s.scheduled[i:])
	s.scheduled[i] = a
}

// removeByTokenLocked removes and returns the alert with the given token
// from the scheduled set, or nil if absent. Call with mu held.
func (s *Scheduler) removeByTokenLocked(token string) *alert.Alert {
	for i, a := range s.scheduled {
		if a.Token() == token {
			s.scheduled = append(s.scheduled[:i], s.scheduled[i+1:]...)
			return a
		}
	}
	return nil
}

// findByTokenLocked returns the scheduled-set member with the given token
// without removing it, or nil. Call with mu held.
func (s *Scheduler) findByTokenLocked(token string) *alert.Alert {
	for _, a := range s.scheduled {
		if a.Token() == token {
			return a
		}
	}
	return nil
}

// firstLocked returns the earliest-ordered member, or nil if the set is
// empty. Call with mu held.
func (s *Scheduler) firstLocked() *alert.Alert {
	if len(s.scheduled) == 0 {
		return nil
	}
	return s.scheduled[0]
}
