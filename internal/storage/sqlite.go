//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "alertsched/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if bt := strings.TrimSpace(cfg.BusyTimeout); bt != "" {
		if d, err := time.ParseDuration(bt); err == nil && d > 0 {
			_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
		}
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateDatabase(ctx context.Context) error {
	return s.migrate(ctx)
}

func (s *sqliteStore) ClearDatabase(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM alerts`)
	return err
}

func (s *sqliteStore) Load(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, type_name, scheduled_iso, scheduled_unix, state, asset FROM alerts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var asset sql.NullString
		if err := rows.Scan(&r.Token, &r.TypeName, &r.ScheduledISO, &r.ScheduledUnix, &r.State, &asset); err != nil {
			return nil, err
		}
		if asset.Valid && asset.String != "" {
			_ = json.Unmarshal([]byte(asset.String), &r.Asset)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Store(ctx context.Context, r Record) error {
	return s.upsert(ctx, r)
}

func (s *sqliteStore) Modify(ctx context.Context, r Record) error {
	return s.upsert(ctx, r)
}

func (s *sqliteStore) upsert(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.Token) == "" {
		return errors.New("storage: record token is required")
	}
	var assetJSON any
	if len(r.Asset) > 0 {
		b, err := json.Marshal(r.Asset)
		if err != nil {
			return err
		}
		assetJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(token, type_name, scheduled_iso, scheduled_unix, state, asset)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(token) DO UPDATE SET
		   type_name=excluded.type_name,
		   scheduled_iso=excluded.scheduled_iso,
		   scheduled_unix=excluded.scheduled_unix,
		   state=excluded.state,
		   asset=excluded.asset`,
		r.Token, r.TypeName, r.ScheduledISO, r.ScheduledUnix, r.State, assetJSON,
	)
	return err
}

func (s *sqliteStore) Erase(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE token = ?`, token)
	return err
}

// BulkErase is non-atomic: every token is deleted independently, so one
// row's failure never rolls back the rows already erased. The call only
// fails if at least one row could not be erased.
func (s *sqliteStore) BulkErase(ctx context.Context, tokens []string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(tokens) == 0 {
		return nil
	}
	stmt, err := s.db.PrepareContext(ctx, `DELETE FROM alerts WHERE token = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var failed []string
	for _, tok := range tokens {
		if _, err := stmt.ExecContext(ctx, tok); err != nil {
			s.log.Warn("bulk erase: row failed", logx.String("token", tok), logx.Err(err))
			failed = append(failed, tok)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("storage: bulk erase failed for %d of %d tokens", len(failed), len(tokens))
	}
	return nil
}
