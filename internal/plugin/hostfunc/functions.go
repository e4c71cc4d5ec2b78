// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package hostfunc provides the bridge.* host module to Lua plugins.
//
// Host functions give plugins logging, a wall clock, request ids, JSON
// helpers and a persistent key-value store namespaced by plugin path.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/bodo-run/bodo-bridge/internal/plugin/luaconv"
)

// ModuleName is the Lua global the host module is installed under.
const ModuleName = "bridge"

// KVStore provides namespaced key-value storage.
type KVStore interface {
	Get(ctx context.Context, namespace, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// Functions provides host functions to Lua plugins.
type Functions struct {
	kvStore      KVStore
	logger       *slog.Logger
	version      string
	invocationID string
	verbose      bool
	now          func() time.Time
}

// Option configures Functions.
type Option func(*Functions)

// WithKVStore enables bridge.kv_*.
func WithKVStore(kv KVStore) Option {
	return func(f *Functions) {
		f.kvStore = kv
	}
}

// WithLogger sets the logger used by bridge.log.
func WithLogger(l *slog.Logger) Option {
	return func(f *Functions) {
		f.logger = l
	}
}

// WithInvocation sets the values exposed as bridge.version,
// bridge.invocation_id and bridge.verbose.
func WithInvocation(version, invocationID string, verbose bool) Option {
	return func(f *Functions) {
		f.version = version
		f.invocationID = invocationID
		f.verbose = verbose
	}
}

// WithClock overrides the clock behind bridge.now (for tests).
func WithClock(now func() time.Time) Option {
	return func(f *Functions) {
		f.now = now
	}
}

// New creates host functions.
func New(opts ...Option) *Functions {
	f := &Functions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register installs the bridge module as a global in L.
func (f *Functions) Register(L *lua.LState, pluginPath string) {
	mod := L.NewTable()

	L.SetField(mod, "version", lua.LString(f.version))
	L.SetField(mod, "invocation_id", lua.LString(f.invocationID))
	L.SetField(mod, "verbose", lua.LBool(f.verbose))
	L.SetField(mod, "plugin_path", lua.LString(pluginPath))

	L.SetField(mod, "log", L.NewFunction(f.logFn(pluginPath)))
	L.SetField(mod, "now", L.NewFunction(f.nowFn()))
	L.SetField(mod, "new_request_id", L.NewFunction(f.newRequestIDFn()))
	L.SetField(mod, "json_encode", L.NewFunction(jsonEncodeFn))
	L.SetField(mod, "json_decode", L.NewFunction(jsonDecodeFn))

	L.SetField(mod, "kv_get", L.NewFunction(f.kvGetFn(pluginPath)))
	L.SetField(mod, "kv_set", L.NewFunction(f.kvSetFn(pluginPath)))
	L.SetField(mod, "kv_delete", L.NewFunction(f.kvDeleteFn(pluginPath)))

	L.SetGlobal(ModuleName, mod)
}

func (f *Functions) logFn(pluginPath string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		ctx := stateContext(L)
		logger := f.logger.With("plugin", pluginPath)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "info":
			logger.InfoContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

// nowFn returns wall-clock seconds with sub-second precision.
func (f *Functions) nowFn() lua.LGFunction {
	return func(L *lua.LState) int {
		t := f.now()
		L.Push(lua.LNumber(float64(t.UnixNano()) / float64(time.Second)))
		return 1
	}
}

func (f *Functions) newRequestIDFn() lua.LGFunction {
	return func(L *lua.LState) int {
		id := ulid.Make()
		L.Push(lua.LString(id.String()))
		return 1
	}
}

func jsonEncodeFn(L *lua.LState) int {
	data, err := luaconv.Encode(L.CheckAny(1))
	if err != nil {
		return pushError(L, err.Error())
	}
	return pushSuccess(L, lua.LString(string(data)))
}

func jsonDecodeFn(L *lua.LState) int {
	v, err := luaconv.Decode(L, []byte(L.CheckString(1)))
	if err != nil {
		return pushError(L, err.Error())
	}
	return pushSuccess(L, v)
}

func (f *Functions) kvGetFn(pluginPath string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)

		if f.kvStore == nil {
			return pushError(L, errKVUnavailable)
		}

		value, found, err := f.kvStore.Get(stateContext(L), pluginPath, key)
		if err != nil {
			f.logger.Warn("kv_get failed", "plugin", pluginPath, "key", key, "error", err)
			return pushError(L, err.Error())
		}
		if !found {
			// Not found is not an error.
			return pushSuccess(L, lua.LNil)
		}
		return pushSuccess(L, lua.LString(string(value)))
	}
}

func (f *Functions) kvSetFn(pluginPath string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.CheckString(2)

		if f.kvStore == nil {
			L.Push(lua.LString(errKVUnavailable))
			return 1
		}

		if err := f.kvStore.Set(stateContext(L), pluginPath, key, []byte(value)); err != nil {
			f.logger.Warn("kv_set failed", "plugin", pluginPath, "key", key, "error", err)
			L.Push(lua.LString(err.Error()))
			return 1
		}
		return 0
	}
}

func (f *Functions) kvDeleteFn(pluginPath string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)

		if f.kvStore == nil {
			L.Push(lua.LString(errKVUnavailable))
			return 1
		}

		if err := f.kvStore.Delete(stateContext(L), pluginPath, key); err != nil {
			f.logger.Warn("kv_delete failed", "plugin", pluginPath, "key", key, "error", err)
			L.Push(lua.LString(err.Error()))
			return 1
		}
		return 0
	}
}
