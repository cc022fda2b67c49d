// Package taxonomy holds the small enumerations shared by every alert
// scheduler package: the alert's own state machine, the event/notification
// vocabulary it and the scheduler speak to observers, audio focus, and the
// reasons an alert can be stopped.
package taxonomy

// AlertState is the internal lifecycle state of a single Alert entity.
type AlertState int

const (
	// Unset is the zero value; no alert should observably be in this state.
	Unset AlertState = iota
	// Set is a scheduled, inactive alert sitting in the scheduled set.
	Set
	// Activating is a former Set alert that has been pulled into the active
	// slot and is waiting for its renderer to report it has started.
	Activating
	// Active is a fully started alert; audio may or may not be sounding,
	// depending on focus.
	Active
	// Snoozing is a transient state between Active and Snoozed while the
	// renderer winds down.
	Snoozing
	// Snoozed is a rescheduled former-active alert, back in the scheduled set.
	Snoozed
	// Stopping is a transient state between Active/Activating and Stopped.
	Stopping
	// Stopped is a terminal state: the alert was stopped before completion.
	Stopped
	// Completed is a terminal state: the alert ran to natural completion.
	Completed
)

func (s AlertState) String() string {
	switch s {
	case Unset:
		return "Unset"
	case Set:
		return "Set"
	case Activating:
		return "Activating"
	case Active:
		return "Active"
	case Snoozing:
		return "Snoozing"
	case Snoozed:
		return "Snoozed"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Completed:
		return "Completed"
	case Ready:
		return "Ready"
	case Started:
		return "Started"
	case PastDue:
		return "PastDue"
	case FocusEnteredForeground:
		return "FocusEnteredForeground"
	case FocusEnteredBackground:
		return "FocusEnteredBackground"
	case Deleted:
		return "Deleted"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// EventKind is the vocabulary alerts use to report themselves to the
// scheduler's executor, and the scheduler uses to report to the Observer.
// Not every kind travels both hops: Started/Stopped/Completed/Snoozed/Error
// originate from an Alert and Ready from the scheduler's own timer, and all
// six are consumed by the scheduler's executor; PastDue,
// FocusEnteredForeground, FocusEnteredBackground, and Deleted are
// scheduler-originated and observer-only.
//
// EventKind shares its representation with AlertState: the terminal event
// kinds (Stopped, Completed, Snoozed) are exactly the terminal alert states,
// so both names refer to the same underlying type and the same constants.
type EventKind = AlertState

const (
	Ready EventKind = iota + 100
	Started
	PastDue
	FocusEnteredForeground
	FocusEnteredBackground
	Deleted
	Error
)

// FocusState mirrors the audio-focus authority's notion of who owns the
// speaker: nobody, a background channel, or the foreground channel.
type FocusState int

const (
	FocusNone FocusState = iota
	FocusBackground
	FocusForeground
)

func (f FocusState) String() string {
	switch f {
	case FocusNone:
		return "None"
	case FocusBackground:
		return "Background"
	case FocusForeground:
		return "Foreground"
	default:
		return "Unknown"
	}
}

// StopReason explains why an active alert was deactivated before completion.
type StopReason int

const (
	// StopReasonUnspecified is the zero value; used for events that carry no
	// stop reason (e.g. Completed, Snoozed).
	StopReasonUnspecified StopReason = iota
	// AvsStop is used when delete() removes the active alert.
	AvsStop
	// LocalStop is used by updateFocus(None) and localStop().
	LocalStop
	// Shutdown is a reason a caller may pass to ClearAll; the scheduler
	// never picks it on its own.
	Shutdown
)

func (r StopReason) String() string {
	switch r {
	case StopReasonUnspecified:
		return "Unspecified"
	case AvsStop:
		return "AvsStop"
	case LocalStop:
		return "LocalStop"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
