// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool the store uses. It allows
// pgxmock in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps plugin values in a shared PostgreSQL table, for hosts
// that run tasks on several machines.
type PostgresStore struct {
	pool poolIface
}

// OpenPostgres connects to dsn. The table is created on first use.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("kv").Code(CodeOpenFailed).With("driver", DriverPostgres).
			Wrapf(err, "failed to connect to database")
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// withTable runs fn and, if it fails because plugin_kv does not exist yet,
// creates the table and runs fn once more.
func (s *PostgresStore) withTable(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUndefinedTable(err) {
		return err
	}
	if _, cerr := s.pool.Exec(ctx, fmt.Sprintf(createTableSQL, "BYTEA", "TIMESTAMPTZ")); cerr != nil {
		return oops.In("kv").Code(CodeQueryFailed).With("operation", "create table").Wrap(cerr)
	}
	return fn()
}

// Get returns the value for key and whether it is set.
func (s *PostgresStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.withTable(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT value FROM plugin_kv WHERE namespace = $1 AND key = $2`,
			namespace, key).Scan(&value)
	})
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	err := s.withTable(ctx, func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO plugin_kv (namespace, key, value, updated_at) VALUES ($1, $2, COALESCE($3, ''::bytea), now())
			 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			namespace, key, value)
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.In("kv").Code(CodeQueryFailed).With("operation", "set").With("key", key).Wrap(err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, namespace, key string) error {
	err := s.withTable(ctx, func() error {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM plugin_kv WHERE namespace = $1 AND key = $2`, namespace, key)
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.In("kv").Code(CodeQueryFailed).With("operation", "delete").With("key", key).Wrap(err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
