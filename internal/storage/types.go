package storage

import "errors"

var (
	// ErrDisabled is returned by Open when storage is configured off
	// ("none" driver); callers may treat a nil Store as ephemeral-only.
	ErrDisabled = errors.New("storage disabled")
	// ErrNotFound names a missing row. The bundled file and sqlite drivers
	// do not return it: Erase of a missing token is a no-op and Modify
	// inserts the row.
	ErrNotFound = errors.New("storage: record not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout string // Go duration string, sqlite only; empty means default
}

// Record is the persisted mirror of a scheduled alert: exactly enough to
// reconstruct an alert.Alert entity at startup.
type Record struct {
	Token         string            `json:"token"`
	TypeName      string            `json:"type_name"`
	ScheduledISO  string            `json:"scheduled_iso"`
	ScheduledUnix int64             `json:"scheduled_unix"`
	State         string            `json:"state"`
	Asset         map[string]string `json:"asset,omitempty"`
}
