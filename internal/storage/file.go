package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "alertsched/pkg/logx"
)

// fileStore is a dependency-free persistence backend for alert records.
//
// Files:
//   - <prefix>.records.snapshot.json (periodic full snapshot, keyed by token)
//   - <prefix>.records.journal.jsonl (append-only journal of ops since the
//     last snapshot)
//
// The journal is replayed on top of the snapshot at open time and
// periodically compacted back into it, following the same
// snapshot+journal shape as a write-ahead log.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	records      map[string]Record

	writesSinceCompact int
}

type journalEntry struct {
	Op     string `json:"op"` // "store", "modify", or "erase"
	Record Record `json:"record,omitempty"`
	Token  string `json:"token,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".records.snapshot.json"
	journalPath := prefix + ".records.journal.jsonl"

	records := map[string]Record{}
	_ = loadRecordSnapshot(snapPath, records)
	if err := replayRecordJournal(journalPath, records); err != nil {
		log.Warn("record journal replay error", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		records:      records,
	}, nil
}

func (s *fileStore) CreateDatabase(ctx context.Context) error {
	_ = ctx
	return nil
}

func (s *fileStore) ClearDatabase(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]Record{}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journalFile.Seek(0, 0); err != nil {
		return err
	}
	return s.writeSnapshotLocked()
}

func (s *fileStore) Load(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *fileStore) Store(ctx context.Context, r Record) error {
	return s.upsert(ctx, "store", r)
}

func (s *fileStore) Modify(ctx context.Context, r Record) error {
	return s.upsert(ctx, "modify", r)
}

func (s *fileStore) upsert(ctx context.Context, op string, r Record) error {
	_ = ctx
	if strings.TrimSpace(r.Token) == "" {
		return errors.New("storage: record token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendJournalLocked(journalEntry{Op: op, Record: r}); err != nil {
		return err
	}
	s.records[r.Token] = r
	return s.maybeCompactLocked()
}

func (s *fileStore) Erase(ctx context.Context, token string) error {
	_ = ctx
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendJournalLocked(journalEntry{Op: "erase", Token: token}); err != nil {
		return err
	}
	delete(s.records, token)
	return s.maybeCompactLocked()
}

// BulkErase is non-atomic: every token is attempted regardless of earlier
// failures, and the call only fails if at least one row could not be
// erased.
func (s *fileStore) BulkErase(ctx context.Context, tokens []string) error {
	var failed []string
	for _, tok := range tokens {
		if err := s.Erase(ctx, tok); err != nil {
			s.log.Warn("bulk erase: row failed", logx.String("token", tok), logx.Err(err))
			failed = append(failed, tok)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("storage: bulk erase failed for %d of %d tokens", len(failed), len(tokens))
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) appendJournalLocked(e journalEntry) error {
	if s.journalFile == nil {
		return errors.New("record journal closed")
	}
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(e); err != nil {
		return err
	}
	s.writesSinceCompact++
	return nil
}

func (s *fileStore) maybeCompactLocked() error {
	if s.writesSinceCompact < 500 {
		return nil
	}
	if err := s.writeSnapshotLocked(); err != nil {
		s.log.Debug("record snapshot compact failed", logx.Err(err))
		return nil
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.journalFile.Seek(0, 0)
	s.writesSinceCompact = 0
	return err
}

func (s *fileStore) writeSnapshotLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func loadRecordSnapshot(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Record
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayRecordJournal(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		switch e.Op {
		case "store", "modify":
			if e.Record.Token != "" {
				out[e.Record.Token] = e.Record
			}
		case "erase":
			if e.Token != "" {
				delete(out, e.Token)
			}
		}
	}
	return sc.Err()
}
