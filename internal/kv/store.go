// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package kv provides persistent key/value storage for plugins. Every key
// lives in a namespace (the plugin's absolute path) so plugins cannot see
// each other's data.
package kv

import (
	"context"

	"github.com/samber/oops"
)

// Error codes for kv failures.
const (
	CodeOpenFailed  = "KV_OPEN_FAILED"
	CodeQueryFailed = "KV_QUERY_FAILED"
	CodeBadDriver   = "KV_UNKNOWN_DRIVER"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a namespaced key/value store. Get reports found=false for a
// missing key; a stored empty value is found with a zero-length value.
type Store interface {
	Get(ctx context.Context, namespace, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open opens the backend named by opts.Driver. DriverNone returns nil, nil.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverNone, "":
		return nil, nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, oops.In("kv").Code(CodeBadDriver).With("driver", opts.Driver).
			Errorf("unknown kv driver %q", opts.Driver)
	}
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS plugin_kv (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      %s NOT NULL,
	updated_at %s NOT NULL,
	PRIMARY KEY (namespace, key)
)`
