package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	counter    INTEGER NOT NULL DEFAULT 0,
	flag       INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER
);
CREATE TABLE IF NOT EXISTS kv_list_items (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   TEXT NOT NULL,
	value BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_list_items_key ON kv_list_items(key);
`

// SQLite is a single-node KeyValue backend. TTLs are enforced on read: an
// expired key reads as absent, and the janitor sweeps the rows out later.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at path and prepares the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// expiresArg converts a ttl to the stored unix-seconds deadline, NULL for no
// expiry.
func (s *SQLite) expiresArg(ttl time.Duration) interface{} {
	if ttl <= 0 {
		return nil
	}
	return s.now().Add(ttl).Unix()
}

// dropIfExpired removes the key inside tx when its deadline has passed.
func (s *SQLite) dropIfExpired(ctx context.Context, tx *sql.Tx, key string) error {
	var expiresAt sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT expires_at FROM kv_entries WHERE key = ?`, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if !expiresAt.Valid || s.now().Unix() <= expiresAt.Int64 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_list_items WHERE key = ?`, key); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	return err
}

func (s *SQLite) Append(ctx context.Context, key string, value []byte, keep int, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	defer tx.Rollback()

	if err := s.dropIfExpired(ctx, tx, key); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO kv_list_items (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	if keep > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM kv_list_items WHERE key = ? AND id NOT IN (
				SELECT id FROM kv_list_items WHERE key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, keep)
		if err != nil {
			return fmt.Errorf("trim %s: %w", key, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, expires_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, s.expiresArg(ttl))
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) ReadAll(ctx context.Context, key string) ([][]byte, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer tx.Rollback()

	if err := s.dropIfExpired(ctx, tx, key); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	rows, err := tx.QueryContext(ctx, `SELECT value FROM kv_list_items WHERE key = ? ORDER BY id ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_list_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Increment(ctx context.Context, key string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	defer tx.Rollback()

	if err := s.dropIfExpired(ctx, tx, key); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, counter) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET counter = counter + 1`, key)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT counter FROM kv_entries WHERE key = ?`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return n, nil
}

func (s *SQLite) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, flag, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET flag = 1, expires_at = excluded.expires_at`,
		key, s.expiresArg(ttl))
	if err != nil {
		return fmt.Errorf("set flag %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	defer tx.Rollback()

	if err := s.dropIfExpired(ctx, tx, key); err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM kv_entries WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, tx.Commit()
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return true, tx.Commit()
}

func (s *SQLite) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE kv_entries SET expires_at = ? WHERE key = ?`,
		s.expiresArg(ttl), key)
	if err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// PurgeExpired deletes every key whose deadline has passed.
func (s *SQLite) PurgeExpired(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Unix()
	_, err = tx.ExecContext(ctx, `
		DELETE FROM kv_list_items WHERE key IN (
			SELECT key FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at < ?
		)`, now)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return int(n), nil
}
