package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// MaxListLength is the number of most recent items a list key retains.
const MaxListLength = 50

// Storage is the SQLite-backed cache store and job backlog. One instance is
// shared by every component of the process.
type Storage struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Storage)

// WithClock overrides the time source used for expiry and scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) { s.logger = l }
}

func New(dbPath string, opts ...Option) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serializing through one connection keeps
	// claims and list trims atomic.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cache_lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backlog (
		job_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		state TEXT NOT NULL DEFAULT 'waiting',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		run_at INTEGER NOT NULL,
		last_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_lists_key ON cache_lists(key, id);
	CREATE INDEX IF NOT EXISTS idx_backlog_due ON backlog(state, run_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// TestConnection reports whether the database answers a trivial query.
func (s *Storage) TestConnection(ctx context.Context) bool {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		s.logger.Error("cache connection test failed", "err", err)
		return false
	}
	return true
}

// Set stores value as JSON under key. A non-positive ttl means no expiry.
func (s *Storage) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get decodes the live value under key into dst. Misses, expired entries,
// connectivity and decode failures all report false.
func (s *Storage) Get(ctx context.Context, key string, dst any) bool {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&data)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("cache get failed", "key", key, "err", err)
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("cache value undecodable", "key", key, "err", err)
		return false
	}
	return true
}

// Delete removes key from both the value and list tables.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_lists WHERE key = ?`, key)
	return err
}

func (s *Storage) Exists(ctx context.Context, key string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().UnixMilli(),
	).Scan(&n)
	if err != nil {
		return false
	}
	if n > 0 {
		return true
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_lists WHERE key = ?`, key).Scan(&n)
	return err == nil && n > 0
}

// PushToList prepends value to the list at key and trims it to the
// MaxListLength most recent items.
func (s *Storage) PushToList(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode list item for %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO cache_lists (key, value) VALUES (?, ?)`, key, data); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM cache_lists WHERE key = ? AND id NOT IN (
			SELECT id FROM cache_lists WHERE key = ? ORDER BY id DESC LIMIT ?
		)`,
		key, key, MaxListLength,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetList returns the inclusive range [start, end] of the list at key, most
// recent first. Negative indices count from the end, so (0, -1) is the whole
// list. Failures degrade to an empty result.
func (s *Storage) GetList(ctx context.Context, key string, start, end int) []json.RawMessage {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM cache_lists WHERE key = ? ORDER BY id DESC`, key)
	if err != nil {
		s.logger.Warn("cache list read failed", "key", key, "err", err)
		return nil
	}
	defer rows.Close()

	var all []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil
		}
		all = append(all, json.RawMessage(data))
	}
	if rows.Err() != nil {
		return nil
	}

	from, to, ok := listRange(len(all), start, end)
	if !ok {
		return []json.RawMessage{}
	}
	return all[from : to+1]
}

// listRange normalizes Redis-style inclusive indices against a list of n items.
func listRange(n, start, end int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end || start >= n {
		return 0, 0, false
	}
	return start, end, true
}

// PurgeExpired deletes expired values and returns how many were removed.
func (s *Storage) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
