// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/bodo-run/bodo-bridge/internal/bridge"
	"github.com/bodo-run/bodo-bridge/internal/plugin/luaconv"
)

// Compile-time interface checks.
var (
	_ bridge.Loader = (*Loader)(nil)
	_ bridge.Plugin = (*Module)(nil)
	_ bridge.Hook   = (*Hook)(nil)
)

// HostModule installs host functions into a state before the plugin runs.
type HostModule interface {
	Register(L *lua.LState, pluginPath string)
}

// Loader loads Lua plugin files.
type Loader struct {
	factory    *StateFactory
	host       HostModule
	tracebacks bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHostModule registers host functions in every loaded plugin.
func WithHostModule(h HostModule) LoaderOption {
	return func(l *Loader) {
		l.host = h
	}
}

// WithTracebacks attaches Lua stack tracebacks to hook errors as context.
func WithTracebacks(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.tracebacks = enabled
	}
}

// NewLoader creates a loader. Panics if factory is nil.
func NewLoader(factory *StateFactory, opts ...LoaderOption) *Loader {
	if factory == nil {
		panic("lua.NewLoader: factory cannot be nil")
	}
	l := &Loader{factory: factory}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the plugin file, compiles it and runs its top-level code in a
// fresh state. The returned module owns the state until Close.
func (l *Loader) Load(ctx context.Context, path string) (bridge.Plugin, error) {
	return l.LoadModule(ctx, path)
}

// LoadModule is Load with the concrete return type.
func (l *Loader) LoadModule(ctx context.Context, path string) (*Module, error) {
	errb := oops.In("lua").Code(bridge.CodePluginLoadError).With("path", path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errb.Wrapf(err, "failed to load plugin %s", path)
	}

	code, err := os.ReadFile(filepath.Clean(absPath))
	if err != nil {
		return nil, errb.Hint("check BODO_PLUGIN_FILE").Wrapf(err, "failed to load plugin %s", path)
	}

	L, err := l.factory.NewState(ctx)
	if err != nil {
		return nil, errb.Wrapf(err, "failed to load plugin %s", path)
	}

	if l.host != nil {
		l.host.Register(L, absPath)
	}
	if err := addPackagePath(L, filepath.Dir(absPath)); err != nil {
		L.Close()
		return nil, errb.Wrapf(err, "failed to load plugin %s", path)
	}

	baseline := snapshotGlobals(L)

	fn, err := L.Load(bytes.NewReader(code), filepath.Base(absPath))
	if err != nil {
		L.Close()
		return nil, errb.With("phase", "compile").Errorf("failed to load plugin %s: %s", path, luaMessage(err))
	}

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, errb.With("phase", "execute").Errorf("failed to load plugin %s: %s", path, luaMessage(err))
	}
	L.SetTop(0)

	return &Module{
		path:       absPath,
		state:      L,
		baseline:   baseline,
		tracebacks: l.tracebacks,
	}, nil
}

// addPackagePath lets require() find modules next to the plugin file.
func addPackagePath(L *lua.LState, dir string) error {
	pkg, ok := L.GetGlobal(lua.LoadLibName).(*lua.LTable)
	if !ok {
		return nil
	}
	current := lua.LVAsString(pkg.RawGetString("path"))
	extra := filepath.Join(dir, "?.lua") + ";" + filepath.Join(dir, "?", "init.lua")
	if current != "" {
		extra += ";" + current
	}
	L.SetField(pkg, "path", lua.LString(extra))
	return nil
}

func snapshotGlobals(L *lua.LState) map[string]lua.LValue {
	globals := make(map[string]lua.LValue)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if name, ok := k.(lua.LString); ok {
			globals[string(name)] = v
		}
	})
	return globals
}

// luaMessage extracts the Lua error value without the Go-side traceback.
func luaMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// Module is a loaded plugin: one Lua state whose globals form the plugin's
// namespace.
type Module struct {
	path       string
	state      *lua.LState
	baseline   map[string]lua.LValue
	tracebacks bool
}

// Path returns the absolute plugin path.
func (m *Module) Path() string {
	return m.path
}

// Exports returns the sorted names of callable globals the plugin defined
// or replaced.
func (m *Module) Exports() []string {
	return luaconv.GlobalNames(m.state.G.Global, func(name string, v lua.LValue) bool {
		if m.inherited(name, v) {
			return false
		}
		_, _, ok := m.callable(v)
		return ok
	})
}

// inherited reports whether the global is the one the state had before the
// plugin ran, i.e. a builtin or host value the plugin did not define.
func (m *Module) inherited(name string, v lua.LValue) bool {
	prev, ok := m.baseline[name]
	return ok && prev == v
}

// Lookup resolves name to a callable global.
func (m *Module) Lookup(name string) (bridge.Hook, error) {
	return m.LookupHook(name)
}

// LookupHook is Lookup with the concrete return type.
func (m *Module) LookupHook(name string) (*Hook, error) {
	errb := oops.In("lua").Code(bridge.CodeHookNotFound).With("path", m.path).With("hook", name)

	v := m.state.GetGlobal(name)
	if v.Type() == lua.LTNil || m.inherited(name, v) {
		return nil, errb.Errorf("plugin does not export a '%s' function", name)
	}
	fn, self, ok := m.callable(v)
	if !ok {
		return nil, errb.Errorf("plugin global '%s' is not callable (got %s)", name, luaconv.Describe(v))
	}
	return &Hook{module: m, name: name, fn: fn, self: self}, nil
}

// callable returns the function to call for v and, for tables with a
// __call metamethod, the receiver to pass first.
func (m *Module) callable(v lua.LValue) (fn, self lua.LValue, ok bool) {
	if v.Type() == lua.LTFunction {
		return v, nil, true
	}
	if v.Type() == lua.LTTable || v.Type() == lua.LTUserData {
		if meta := m.state.GetMetaField(v, "__call"); meta.Type() == lua.LTFunction {
			return meta, v, true
		}
	}
	return nil, nil, false
}

// Close releases the Lua state.
func (m *Module) Close() {
	m.state.Close()
}

// Hook is a resolved plugin function.
type Hook struct {
	module *Module
	name   string
	fn     lua.LValue
	self   lua.LValue
}

// Name returns the hook name.
func (h *Hook) Name() string {
	return h.name
}

// Call invokes the hook with opts as its single argument and converts the
// first return value to the JSON value model.
func (h *Hook) Call(ctx context.Context, opts map[string]any) (any, error) {
	L := h.module.state
	if ctx != nil {
		L.SetContext(ctx)
	}

	arg, err := luaconv.ToLua(L, opts)
	if err != nil {
		return nil, oops.In("lua").Code(bridge.CodeHookExecutionError).With("hook", h.name).
			Wrapf(err, "failed to convert options for '%s'", h.name)
	}

	args := []lua.LValue{arg}
	if h.self != nil {
		args = []lua.LValue{h.self, arg}
	}

	if err := L.CallByParam(lua.P{
		Fn:      h.fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		errb := oops.In("lua").Code(bridge.CodeHookExecutionError).With("hook", h.name).With("path", h.module.path)
		var apiErr *lua.ApiError
		if h.module.tracebacks && errors.As(err, &apiErr) && apiErr.StackTrace != "" {
			errb = errb.With("traceback", strings.TrimSpace(apiErr.StackTrace))
		}
		return nil, errb.Errorf("plugin error: %s", luaMessage(err))
	}

	ret := L.Get(-1)
	L.Pop(1)

	result, err := luaconv.FromLua(ret)
	if err != nil {
		return nil, oops.In("lua").Code(bridge.CodeInvalidHookResult).With("hook", h.name).
			Wrapf(err, "hook '%s' returned a value that cannot be encoded as JSON", h.name)
	}
	return result, nil
}
