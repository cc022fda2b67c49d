package storage

import (
	"context"
	"errors"
	"strings"

	logx "alertsched/pkg/logx"
)

// Store is the persistence contract the scheduler uses to make every
// state-affecting change crash/restart safe. Implementations must make
// each individual method call durable before returning success; the
// scheduler never batches writes across a mutex release.
type Store interface {
	// CreateDatabase provisions the backing store (tables, directories) if
	// it doesn't already exist. Safe to call on an already-provisioned store.
	CreateDatabase(ctx context.Context) error
	// ClearDatabase erases all records, leaving the store provisioned but
	// empty. Used for a full local reset (e.g. factory reset).
	ClearDatabase(ctx context.Context) error

	// Load returns every persisted record, in unspecified order; the
	// scheduler is responsible for reconstructing its ordered set from it.
	Load(ctx context.Context) ([]Record, error)

	Store(ctx context.Context, r Record) error
	Modify(ctx context.Context, r Record) error
	Erase(ctx context.Context, token string) error
	BulkErase(ctx context.Context, tokens []string) error

	Close() error
}

// Open initializes the configured store. It returns (nil, ErrDisabled) if
// storage is disabled ("none" or empty driver); callers that can tolerate
// running without persistence should treat that as non-fatal.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
