// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package kv

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "plugin-kv.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore_SetGetDelete(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()

	got, found, err := s.Get(ctx, "/p/metrics.lua", "start:build")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, "/p/metrics.lua", "start:build", []byte("12.5")))
	got, found, err = s.Get(ctx, "/p/metrics.lua", "start:build")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("12.5"), got)

	require.NoError(t, s.Set(ctx, "/p/metrics.lua", "start:build", []byte("13")))
	got, _, err = s.Get(ctx, "/p/metrics.lua", "start:build")
	require.NoError(t, err)
	assert.Equal(t, []byte("13"), got)

	require.NoError(t, s.Delete(ctx, "/p/metrics.lua", "start:build"))
	got, found, err = s.Get(ctx, "/p/metrics.lua", "start:build")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	require.NoError(t, s.Delete(ctx, "/p/metrics.lua", "never-set"))
}

func TestSQLiteStore_EmptyValue(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{name: "empty slice", value: []byte{}},
		{name: "nil slice", value: nil},
		{name: "empty string", value: []byte("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, path := openTestSQLite(t)

			require.NoError(t, s.Set(ctx, "ns", "k", tt.value))
			got, found, err := s.Get(ctx, "ns", "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			require.NoError(t, s.Close())
			reopened, err := OpenSQLite(ctx, path)
			require.NoError(t, err)
			defer func() { _ = reopened.Close() }()

			got, found, err = reopened.Get(ctx, "ns", "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte{}, got)
		})
	}
}

func TestSQLiteStore_Namespaces(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/a.lua", "k", []byte("a")))
	require.NoError(t, s.Set(ctx, "/b.lua", "k", []byte("b")))

	got, _, err := s.Get(ctx, "/a.lua", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
	got, _, err = s.Get(ctx, "/b.lua", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestSQLiteStore_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "ns", "k", []byte("v")))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, found, err := second.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	_, path := openTestSQLite(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := OpenSQLite(ctx, path)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = s.Close() }()
			for j := range 10 {
				if err := s.Set(ctx, "ns", "k", []byte{byte(i), byte(j)}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Set(context.Background(), "ns", "k", []byte("v")))
	got, _, err := s.Get(context.Background(), "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestSQLiteStore_ClosedStoreFails(t *testing.T) {
	s, _ := openTestSQLite(t)
	require.NoError(t, s.Close())

	_, found, err := s.Get(context.Background(), "ns", "k")
	require.Error(t, err)
	assert.False(t, found)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(errors.New("database is locked")))
}
