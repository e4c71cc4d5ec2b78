// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package lua loads Lua plugin files into isolated states and resolves
// their hook functions by name.
package lua

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Profile selects which standard libraries a state opens.
type Profile string

// Library profiles.
const (
	// ProfileFull opens every gopher-lua library. Plugins are trusted.
	ProfileFull Profile = "full"
	// ProfileSafe opens base, table, string and math only, and removes
	// the base functions that read files.
	ProfileSafe Profile = "safe"
)

// library is a Lua library opener paired with its global name.
type library struct {
	name string
	fn   lua.LGFunction
}

func fullLibraries() []library {
	return []library{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.IoLibName, lua.OpenIo},
		{lua.OsLibName, lua.OpenOs},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.DebugLibName, lua.OpenDebug},
		{lua.ChannelLibName, lua.OpenChannel},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// safeLibraries returns the sandboxed library set.
// Blocked: os, io, debug, package.
func safeLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions are removed in the safe profile.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// ParseProfile validates a profile name. Empty selects ProfileFull.
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(s)) {
	case "", ProfileFull:
		return ProfileFull, nil
	case ProfileSafe:
		return ProfileSafe, nil
	default:
		return "", oops.In("lua").With("profile", s).
			Errorf("unknown library profile %q (want %q or %q)", s, ProfileFull, ProfileSafe)
	}
}

// StateFactory creates fresh Lua states.
type StateFactory struct {
	profile   Profile
	libraries []library
	// output receives print() and io.write() text so it never reaches stdout.
	output io.Writer
}

// FactoryOption configures a StateFactory.
type FactoryOption func(*StateFactory)

// WithProfile selects the library profile.
func WithProfile(p Profile) FactoryOption {
	return func(f *StateFactory) {
		f.profile = p
		if p == ProfileSafe {
			f.libraries = safeLibraries()
		} else {
			f.libraries = fullLibraries()
		}
	}
}

// WithOutput sets where plugin print() output goes. Defaults to os.Stderr.
func WithOutput(w io.Writer) FactoryOption {
	return func(f *StateFactory) {
		f.output = w
	}
}

// NewStateFactory creates a state factory using ProfileFull unless
// overridden.
func NewStateFactory(opts ...FactoryOption) *StateFactory {
	f := &StateFactory{
		profile:   ProfileFull,
		libraries: fullLibraries(),
		output:    os.Stderr,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Profile returns the factory's library profile.
func (f *StateFactory) Profile() Profile {
	return f.profile
}

// NewState creates a Lua state with the factory's libraries loaded and
// plugin output redirected away from stdout. The state inherits ctx, so
// cancelling ctx aborts running Lua code.
func (f *StateFactory) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).Wrapf(err, "failed to open library %s", lib.name)
		}
	}

	if f.profile == ProfileSafe {
		for _, fn := range unsafeBaseFunctions {
			L.SetGlobal(fn, lua.LNil)
		}
	}

	L.SetGlobal("print", L.NewFunction(f.printFn))
	if err := f.redirectIO(L); err != nil {
		L.Close()
		return nil, err
	}

	if ctx != nil {
		L.SetContext(ctx)
	}
	return L, nil
}

// printFn mirrors Lua's print: tab separated tostring() values plus newline.
func (f *StateFactory) printFn(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	_, _ = fmt.Fprintln(f.output, strings.Join(parts, "\t"))
	return 0
}

// redirectIO points io.stdout and the default output file at io.stderr and
// routes io.write through the factory output.
func (f *StateFactory) redirectIO(L *lua.LState) error {
	ioTable, ok := L.GetGlobal(lua.IoLibName).(*lua.LTable)
	if !ok {
		return nil
	}
	if err := L.DoString(`io.stdout = io.stderr; io.output(io.stderr)`); err != nil {
		return oops.In("lua").Wrapf(err, "failed to redirect io output")
	}
	L.SetField(ioTable, "write", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		for i := 1; i <= top; i++ {
			_, _ = io.WriteString(f.output, L.CheckString(i))
		}
		L.Push(L.GetGlobal(lua.IoLibName).(*lua.LTable).RawGetString("stderr"))
		return 1
	}))
	return nil
}
