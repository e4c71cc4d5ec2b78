// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package bridge

import "context"

// Loader turns a plugin file path into a loaded Plugin.
type Loader interface {
	// Load reads and executes the plugin file in a fresh namespace.
	// Failures carry CodePluginLoadError.
	Load(ctx context.Context, path string) (Plugin, error)
}

// Plugin is a loaded plugin module.
type Plugin interface {
	// Lookup resolves a callable hook by name. Absent or non-callable
	// names fail with CodeHookNotFound.
	Lookup(name string) (Hook, error)

	// Exports lists the callable names the plugin defines.
	Exports() []string

	// Close releases the plugin's runtime.
	Close()
}

// Hook is a resolved hook function.
type Hook interface {
	// Name returns the name the hook was resolved by.
	Name() string

	// Call invokes the hook with the decoded options and returns its
	// result converted to the JSON value model (nil when it returned
	// nothing). Errors raised by the hook carry CodeHookExecutionError.
	Call(ctx context.Context, opts map[string]any) (any, error)
}
