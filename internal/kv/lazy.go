// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package kv

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// OpenFunc opens a backend.
type OpenFunc func(ctx context.Context) (Store, error)

// LazyStore opens its backend on first use, so a hook that never touches
// the store never opens a database. An open failure is returned from every
// call.
type LazyStore struct {
	open OpenFunc

	mu    sync.Mutex
	store Store
	err   error
	done  bool
}

// NewLazy creates a LazyStore around open.
func NewLazy(open OpenFunc) *LazyStore {
	return &LazyStore{open: open}
}

func (l *LazyStore) backend(ctx context.Context) (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.store, l.err = l.open(ctx)
		if l.store == nil && l.err == nil {
			l.err = oops.In("kv").Code(CodeOpenFailed).Errorf("kv store not configured")
		}
		l.done = true
	}
	return l.store, l.err
}

// Opened reports whether the backend has been opened.
func (l *LazyStore) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done && l.err == nil
}

// Get implements Store.
func (l *LazyStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	s, err := l.backend(ctx)
	if err != nil {
		return nil, false, err
	}
	return s.Get(ctx, namespace, key) //nolint:wrapcheck // backend errors are already wrapped
}

// Set implements Store.
func (l *LazyStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	s, err := l.backend(ctx)
	if err != nil {
		return err
	}
	return s.Set(ctx, namespace, key, value) //nolint:wrapcheck // backend errors are already wrapped
}

// Delete implements Store.
func (l *LazyStore) Delete(ctx context.Context, namespace, key string) error {
	s, err := l.backend(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, namespace, key) //nolint:wrapcheck // backend errors are already wrapped
}

// Close closes the backend if it was opened.
func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	return l.store.Close() //nolint:wrapcheck // backend errors are already wrapped
}
