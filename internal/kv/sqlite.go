// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bodo-run/bodo-bridge/internal/xdg"
)

// busyTimeoutMillis is how long SQLite itself waits on a lock before
// returning SQLITE_BUSY.
const busyTimeoutMillis = 5000

// SQLiteStore stores plugin values in a local SQLite file. Several bridge
// processes may share the file; WAL mode lets readers proceed while one
// writer holds the lock.
type SQLiteStore struct {
	db      *sql.DB
	backoff func() retry.Backoff
}

// OpenSQLite opens (or creates) the database at path.
// Use ":memory:" for an in-memory database (useful for tests).
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	errb := oops.In("kv").Code(CodeOpenFailed).With("driver", DriverSQLite).With("path", path)

	if path != ":memory:" {
		if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, errb.Wrap(err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errb.Wrapf(err, "opening sqlite")
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, backoff: defaultBackoff}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf(createTableSQL, "BLOB", "INTEGER"))
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		_ = db.Close()
		return nil, errb.Wrapf(err, "creating plugin_kv table")
	}
	return s, nil
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// withRetry runs fn, retrying with exponential backoff while it fails with
// a busy error.
func (s *SQLiteStore) withRetry(ctx context.Context, fn func(context.Context) error) error {
	//nolint:wrapcheck // callers wrap
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Get returns the value for key and whether it is set.
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT value FROM plugin_kv WHERE namespace = ? AND key = ?`,
			namespace, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.In("kv").Code(CodeQueryFailed).With("operation", "get").With("key", key).Wrap(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO plugin_kv (namespace, key, value, updated_at) VALUES (?, ?, COALESCE(?, X''), ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			namespace, key, value, time.Now().Unix())
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.In("kv").Code(CodeQueryFailed).With("operation", "set").With("key", key).Wrap(err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM plugin_kv WHERE namespace = ? AND key = ?`, namespace, key)
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.In("kv").Code(CodeQueryFailed).With("operation", "delete").With("key", key).Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.In("kv").Wrapf(err, "closing sqlite")
	}
	return nil
}
