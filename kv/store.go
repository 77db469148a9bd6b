// Package kv implements the storage fabric every relay component is built
// on: a single key/value table with per-entry TTL and optimistic-concurrency
// versioning, backed by SQLite and fronted by an in-process LRU cache.
package kv

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"github.com/claude-watch/relay/apperror"
	"github.com/claude-watch/relay/log"
)

// Config configures a Store.
type Config struct {
	Path       string
	CacheSize  int
	SweepCron  string // robfig/cron expression, e.g. "@every 30s"
	LogQueries bool
}

// entry is the storage envelope every key carries: {value, expiresAt, version}.
type entry struct {
	value     []byte
	expiresAt *time.Time
	version   int64
}

// Store is the KV fabric. All higher-level packages (pairing, queue, push)
// are built on top of it rather than talking to SQLite directly.
type Store struct {
	conn   *sql.DB
	cache  *lru.Cache[string, entry]
	cron   *cron.Cron
	mu     sync.Mutex // serializes CAS updates; reads/writes to sqlite are already serialized by the driver
	logger func(kind, key string)
}

// Open creates (or reopens) the KV fabric at cfg.Path, running schema setup
// and starting the TTL sweeper.
func Open(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create kv directory: %w", err)
		}
	}

	dsn := cfg.Path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=-64000"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv database: %w", err)
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping kv database: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER,
			version    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries(expires_at);
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create kv schema: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, entry](cacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create kv cache: %w", err)
	}

	s := &Store{conn: conn, cache: cache}
	if cfg.LogQueries {
		s.logger = func(kind, key string) {
			log.Debug().Str("kind", kind).Str("key", key).Msg("kv query")
		}
	}

	if cfg.SweepCron != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.SweepCron, s.sweepExpired); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to schedule kv sweeper: %w", err)
		}
		s.cron.Start()
	}

	log.Info().Str("path", cfg.Path).Msg("kv fabric opened")
	return s, nil
}

// Close stops the sweeper and closes the database connection.
func (s *Store) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return s.conn.Close()
}

func (s *Store) log(kind, key string) {
	if s.logger != nil {
		s.logger(kind, key)
	}
}

// Get returns the value and CAS version for key, or apperror.NotFound if
// the key does not exist or has expired.
func (s *Store) Get(key string) ([]byte, int64, error) {
	s.log("get", key)

	if e, ok := s.cache.Get(key); ok {
		if !expired(e.expiresAt) {
			return e.value, e.version, nil
		}
		s.cache.Remove(key)
	}

	row := s.conn.QueryRow(`SELECT value, expires_at, version FROM kv_entries WHERE key = ?`, key)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, 0, apperror.New(apperror.NotFound, "key not found: "+key)
	}
	if err != nil {
		return nil, 0, apperror.Wrap(apperror.Transport, "kv get failed", err)
	}
	if expired(e.expiresAt) {
		return nil, 0, apperror.New(apperror.NotFound, "key expired: "+key)
	}
	s.cache.Add(key, e)
	return e.value, e.version, nil
}

// Put writes key unconditionally, bumping its version, with the given TTL
// (zero means no expiry).
func (s *Store) Put(key string, value []byte, ttl time.Duration) (int64, error) {
	s.log("put", key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	var newVersion int64
	err := s.withTx(func(tx *sql.Tx) error {
		var current int64
		row := tx.QueryRow(`SELECT version FROM kv_entries WHERE key = ?`, key)
		if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
			return err
		}
		newVersion = current + 1

		_, err := tx.Exec(`
			INSERT INTO kv_entries (key, value, expires_at, version) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, version = excluded.version
		`, key, value, expiresAtUnix(expiresAt), newVersion)
		return err
	})
	if err != nil {
		return 0, apperror.Wrap(apperror.Transport, "kv put failed", err)
	}

	s.cache.Add(key, entry{value: value, expiresAt: expiresAt, version: newVersion})
	return newVersion, nil
}

// CompareAndSwap writes value to key only if the stored version still
// equals expectedVersion (0 meaning "key must not exist"), returning
// apperror.Conflict on mismatch.
func (s *Store) CompareAndSwap(key string, expectedVersion int64, value []byte, ttl time.Duration) (int64, error) {
	s.log("cas", key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	var newVersion int64
	err := s.withTx(func(tx *sql.Tx) error {
		var current int64
		row := tx.QueryRow(`SELECT version FROM kv_entries WHERE key = ?`, key)
		err := row.Scan(&current)
		switch {
		case err == sql.ErrNoRows && expectedVersion != 0:
			return apperror.New(apperror.Conflict, "kv cas: key does not exist")
		case err != nil && err != sql.ErrNoRows:
			return err
		case err == nil && current != expectedVersion:
			return apperror.New(apperror.Conflict, "kv cas: version mismatch")
		}

		newVersion = expectedVersion + 1
		_, err = tx.Exec(`
			INSERT INTO kv_entries (key, value, expires_at, version) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, version = excluded.version
		`, key, value, expiresAtUnix(expiresAt), newVersion)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.cache.Add(key, entry{value: value, expiresAt: expiresAt, version: newVersion})
	return newVersion, nil
}

// Delete removes key. It is not an error to delete a key that does not exist.
func (s *Store) Delete(key string) error {
	s.log("delete", key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(`DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return apperror.Wrap(apperror.Transport, "kv delete failed", err)
	}
	s.cache.Remove(key)
	return nil
}

// ScanPrefix returns all non-expired keys with the given prefix, along with
// their values. The returned map carries no order; FIFO queue scans sort its
// keys, which are constructed so lexicographic order matches arrival order.
func (s *Store) ScanPrefix(prefix string) (map[string][]byte, error) {
	rows, err := s.conn.Query(`
		SELECT key, value, expires_at FROM kv_entries
		WHERE key >= ? AND key < ?
		ORDER BY key ASC
	`, prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, apperror.Wrap(apperror.Transport, "kv scan failed", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	now := time.Now()
	for rows.Next() {
		var key string
		var value []byte
		var expiresAt sql.NullInt64
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, apperror.Wrap(apperror.Transport, "kv scan failed", err)
		}
		if expiresAt.Valid && time.Unix(expiresAt.Int64, 0).Before(now) {
			continue
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s *Store) sweepExpired() {
	res, err := s.conn.Exec(`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		log.Error().Err(err).Msg("kv sweep failed")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Debug().Int64("count", n).Msg("kv swept expired entries")
		s.cache.Purge()
	}
}

func (s *Store) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanEntry(row *sql.Row) (entry, error) {
	var value []byte
	var expiresAt sql.NullInt64
	var version int64
	if err := row.Scan(&value, &expiresAt, &version); err != nil {
		return entry{}, err
	}
	e := entry{value: value, version: version}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		e.expiresAt = &t
	}
	return e, nil
}

func expired(t *time.Time) bool {
	return t != nil && t.Before(time.Now())
}

func expiresAtUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// prefixUpperBound returns the smallest string that sorts after every string
// with the given prefix, for use as an exclusive range bound.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return prefix + "\xff"
}
