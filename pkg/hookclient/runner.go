// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package hookclient

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
)

// Lifecycle hook names sent by the task runner.
const (
	HookBeforeTaskRun  = "onBeforeTaskRun"
	HookAfterTaskRun   = "onAfterTaskRun"
	HookOnError        = "onError"
	HookResolveCommand = "onResolveCommand"
	HookCommandReady   = "onCommandReady"
	HookBodoExit       = "onBodoExit"
)

// Invoker calls one hook in one plugin. *Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, pluginPath string, opts map[string]any) (*Response, error)
}

// Result pairs a plugin with its response.
type Result struct {
	Plugin   string
	Response *Response
}

// Runner calls a hook in every configured plugin, in order.
type Runner struct {
	Invoker Invoker
	Plugins []string
	// Stdout and Stderr receive each plugin's output as it completes.
	// Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run sends hook with data to every plugin. It stops at the first failing
// plugin and returns the results collected so far with the error. data is
// not modified; "hook" and "timestamp" are added to a copy.
func (r *Runner) Run(ctx context.Context, hook string, data map[string]any) ([]Result, error) {
	if r.Invoker == nil {
		return nil, oops.In("hookclient").Errorf("runner has no invoker")
	}

	opts := make(map[string]any, len(data)+2)
	for k, v := range data {
		opts[k] = v
	}
	opts["hook"] = hook
	opts["timestamp"] = r.now().Unix()

	results := make([]Result, 0, len(r.Plugins))
	for _, plugin := range r.Plugins {
		resp, err := r.Invoker.Invoke(ctx, plugin, opts)
		if err != nil {
			var hookErr *HookError
			if errors.As(err, &hookErr) && r.Stderr != nil {
				_, _ = io.WriteString(r.Stderr, hookErr.Stderr)
			}
			return results, err
		}
		if r.Stdout != nil {
			_, _ = r.Stdout.Write(resp.Raw)
		}
		if r.Stderr != nil {
			_, _ = io.WriteString(r.Stderr, resp.Stderr)
		}
		results = append(results, Result{Plugin: plugin, Response: resp})
	}
	return results, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// OnBeforeTaskRun runs before a task starts. An empty cwd means the
// current directory.
func (r *Runner) OnBeforeTaskRun(ctx context.Context, taskName, cwd string) ([]Result, error) {
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, oops.In("hookclient").Wrapf(err, "resolving working directory")
		}
		cwd = wd
	}
	return r.Run(ctx, HookBeforeTaskRun, map[string]any{"taskName": taskName, "cwd": cwd})
}

// OnAfterTaskRun runs after a task finished with status.
func (r *Runner) OnAfterTaskRun(ctx context.Context, taskName string, status int) ([]Result, error) {
	return r.Run(ctx, HookAfterTaskRun, map[string]any{"taskName": taskName, "status": status})
}

// OnError runs when a task failed.
func (r *Runner) OnError(ctx context.Context, taskName, errMsg string) ([]Result, error) {
	return r.Run(ctx, HookOnError, map[string]any{"taskName": taskName, "error": errMsg})
}

// OnResolveCommand lets plugins inspect a task definition before its
// command is built.
func (r *Runner) OnResolveCommand(ctx context.Context, task map[string]any) ([]Result, error) {
	return r.Run(ctx, HookResolveCommand, map[string]any{"task": task})
}

// OnCommandReady runs with the final command line of a task.
func (r *Runner) OnCommandReady(ctx context.Context, command, taskName string) ([]Result, error) {
	return r.Run(ctx, HookCommandReady, map[string]any{"command": command, "taskName": taskName})
}

// OnBodoExit runs once when the task runner exits.
func (r *Runner) OnBodoExit(ctx context.Context, exitCode int) ([]Result, error) {
	return r.Run(ctx, HookBodoExit, map[string]any{"exitCode": exitCode})
}
