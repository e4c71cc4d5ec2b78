// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Outcome labels recorded for each invocation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder observes finished hook invocations.
type Recorder interface {
	ObserveHook(hook string, elapsed time.Duration, outcome string)
}

// Dispatcher runs one hook invocation end to end.
type Dispatcher struct {
	loader   Loader
	stdout   io.Writer
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for trace lines. Trace lines are logged at
// debug level so they only appear in verbose mode.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRecorder records invocation timing and outcome.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher writing results to stdout.
// Panics if loader or stdout is nil.
func NewDispatcher(loader Loader, stdout io.Writer, opts ...DispatcherOption) *Dispatcher {
	if loader == nil {
		panic("bridge.NewDispatcher: loader cannot be nil")
	}
	if stdout == nil {
		panic("bridge.NewDispatcher: stdout cannot be nil")
	}
	d := &Dispatcher{
		loader: loader,
		stdout: stdout,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run reads the contract through getenv and dispatches it.
func (d *Dispatcher) Run(ctx context.Context, getenv func(string) string) error {
	c, err := ReadContract(getenv)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, c)
}

// Dispatch loads the plugin, calls the contract's hook and writes its
// result to stdout. Nothing is written to stdout unless the whole result
// encoded successfully.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Contract) (err error) {
	start := d.now()
	defer func() {
		if d.recorder == nil {
			return
		}
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailure
		}
		d.recorder.ObserveHook(c.HookName, d.now().Sub(start), outcome)
	}()

	logger := d.logger.With("hook", c.HookName)
	logger.DebugContext(ctx, "plugin path", "path", c.PluginPath)
	logger.DebugContext(ctx, "parsed options", "options", c.RawOptions)

	plugin, err := d.loader.Load(ctx, c.PluginPath)
	if err != nil {
		return err
	}
	defer plugin.Close()

	logger.DebugContext(ctx, "plugin exports", "exports", plugin.Exports())

	hook, err := plugin.Lookup(c.HookName)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "resolved hook", "name", hook.Name())

	result, err := hook.Call(ctx, c.Options)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "hook result", "result", result)

	payload, err := EncodeResult(result)
	if err != nil {
		return oops.In("bridge").With("hook", c.HookName).Wrap(err)
	}
	if payload == nil {
		logger.DebugContext(ctx, "hook returned no result")
		return nil
	}

	if _, err := d.stdout.Write(payload); err != nil {
		return oops.In("bridge").Code(CodeHookExecutionError).With("hook", c.HookName).
			Wrapf(err, "failed to write result")
	}
	return nil
}

// EncodeResult turns a hook result into the stdout payload: one JSON
// object followed by a newline. It returns nil for results that produce no
// output (nil, false, an empty object).
func EncodeResult(result any) ([]byte, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, oops.In("bridge").Code(CodeInvalidHookResult).
				Wrapf(err, "hook result cannot be encoded as JSON")
		}
		return buf.Bytes(), nil
	}
	return nil, oops.In("bridge").Code(CodeInvalidHookResult).
		Errorf("hook must return a table with string keys or nothing, got %s", jsonKind(result))
}
