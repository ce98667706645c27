package store

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

	_ "modernc.org/sqlite"

	"wingman/internal/watch"
	"wingman/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// WatcherState is the durable per-watcher health row.
type WatcherState struct {
	Name                string
	LastCheckAt         time.Time
	LastSuccessfulAt    *time.Time // nil means never succeeded
	ConsecutiveFailures int
	Metadata            map[string]string
}

// Store owns all durable state: the seen-item dedup log, watcher health
// rows, and the cached API token. It is the only shared mutable resource in
// the process; the unique identity index is the concurrency control.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (and migrates) the sqlite database at cfg.Path.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// -- seen_items --

// IsSeen reports whether the identity key has already been recorded.
func (s *Store) IsSeen(ctx context.Context, k watch.Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_items WHERE source=? AND source_id=? AND item_type=?`,
		string(k.Source), k.SourceID, string(k.Type),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkSeen inserts the item if its identity key is absent. Duplicate calls
// (including from a concurrent writer) are no-ops: first write wins.
func (s *Store) MarkSeen(ctx context.Context, it watch.Item) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items
		   (source, source_id, item_type, context, title, body, author, url, first_seen_at, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		string(it.Source), it.SourceID, string(it.Type), it.Context,
		it.Title, it.Body, it.Author, it.URL, now, it.CreatedAt,
	)
	return err
}

// UpdateTriage stores triage results on an existing seen item and stamps
// notified_at. Missing rows are a no-op.
func (s *Store) UpdateTriage(ctx context.Context, k watch.Key, classification, severity, summary string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE seen_items SET classification=?, severity=?, summary=?, notified_at=?
		 WHERE source=? AND source_id=? AND item_type=?`,
		classification, severity, summary, now,
		string(k.Source), k.SourceID, string(k.Type),
	)
	return err
}

// -- watcher_state --

// WatcherState returns the state row for a watcher, or nil if none exists.
func (s *Store) WatcherState(ctx context.Context, name string) (*WatcherState, error) {
	var (
		st       WatcherState
		lastChk  sql.NullString
		lastOK   sql.NullString
		metaJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT watcher_name, last_check_at, last_successful_at, consecutive_failures, metadata
		 FROM watcher_state WHERE watcher_name=?`, name,
	).Scan(&st.Name, &lastChk, &lastOK, &st.ConsecutiveFailures, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastChk.Valid {
		st.LastCheckAt, _ = time.Parse(time.RFC3339Nano, lastChk.String)
	}
	if lastOK.Valid {
		t, perr := time.Parse(time.RFC3339Nano, lastOK.String)
		if perr == nil {
			st.LastSuccessfulAt = &t
		}
	}
	st.Metadata = map[string]string{}
	if metaJSON.Valid && metaJSON.String != "" {
		if uerr := json.Unmarshal([]byte(metaJSON.String), &st.Metadata); uerr != nil {
			s.log.Warn("watcher_state metadata unreadable; resetting",
				logx.String("watcher", name), logx.Err(uerr))
			st.Metadata = map[string]string{}
		}
	}
	return &st, nil
}

// UpdateWatcherState records the outcome of one check cycle.
//
// On success the failure counter resets to 0 and last_successful_at advances;
// on failure the counter increments and last_successful_at is untouched.
// metadata merges key-wise into the existing mapping (new keys override).
func (s *Store) UpdateWatcherState(ctx context.Context, name string, successful bool, metadata map[string]string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	existing, err := s.WatcherState(ctx, name)
	if err != nil {
		return err
	}

	if existing == nil {
		failures := 1
		var lastOK any
		if successful {
			failures = 0
			lastOK = now
		}
		meta := "{}"
		if len(metadata) > 0 {
			b, merr := json.Marshal(metadata)
			if merr != nil {
				return merr
			}
			meta = string(b)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO watcher_state
			   (watcher_name, last_check_at, last_successful_at, consecutive_failures, metadata)
			 VALUES (?,?,?,?,?)`,
			name, now, lastOK, failures, meta,
		)
		return err
	}

	failures := existing.ConsecutiveFailures + 1
	if successful {
		failures = 0
	}
	merged := existing.Metadata
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	metaBytes, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE watcher_state
		 SET last_check_at=?,
		     last_successful_at=CASE WHEN ? THEN ? ELSE last_successful_at END,
		     consecutive_failures=?,
		     metadata=?
		 WHERE watcher_name=?`,
		now, successful, now, failures, string(metaBytes), name,
	)
	return err
}

// IsFirstRun reports whether the watcher has never completed a successful
// cycle: no state row, or last_successful_at unset.
func (s *Store) IsFirstRun(ctx context.Context, name string) (bool, error) {
	st, err := s.WatcherState(ctx, name)
	if err != nil {
		return false, err
	}
	return st == nil || st.LastSuccessfulAt == nil, nil
}

// LastSuccessful returns the watcher's last successful check time; ok is
// false when the watcher has never succeeded.
func (s *Store) LastSuccessful(ctx context.Context, name string) (time.Time, bool, error) {
	st, err := s.WatcherState(ctx, name)
	if err != nil {
		return time.Time{}, false, err
	}
	if st == nil || st.LastSuccessfulAt == nil {
		return time.Time{}, false, nil
	}
	return *st.LastSuccessfulAt, true, nil
}

// ConsecutiveFailures returns the watcher's current failure streak.
func (s *Store) ConsecutiveFailures(ctx context.Context, name string) (int, error) {
	st, err := s.WatcherState(ctx, name)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, nil
	}
	return st.ConsecutiveFailures, nil
}

// -- api_tokens --

// CachedToken returns the cached bearer token, or "" if none is stored.
func (s *Store) CachedToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM api_tokens ORDER BY id DESC LIMIT 1`,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// SaveToken replaces the sole cached token transactionally. At most one
// token is ever current.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_tokens`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_tokens (token, created_at) VALUES (?,?)`, token, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}
