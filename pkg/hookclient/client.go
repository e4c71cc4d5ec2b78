// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package hookclient lets a Go task runner call plugin hooks through the
// bodo-plugin-bridge binary: one process per plugin and hook, with the
// request passed in the environment and the result read from stdout.
package hookclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultBridge is the binary looked up on PATH when Client.BridgePath is
// empty.
const DefaultBridge = "bodo-plugin-bridge"

// DefaultTimeout bounds one hook invocation when Client.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Client spawns the bridge.
type Client struct {
	// BridgePath is the bridge executable. Defaults to DefaultBridge.
	BridgePath string
	// Env is the base environment. Defaults to os.Environ().
	Env []string
	// Timeout bounds each invocation. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Verbose sets BODO_VERBOSE for the bridge.
	Verbose bool
}

// Response is a successful invocation.
type Response struct {
	// Result is the decoded JSON object, or nil when the hook returned
	// nothing.
	Result map[string]any
	// Raw is the bridge's stdout.
	Raw []byte
	// Stderr is everything the bridge and plugin wrote to stderr.
	Stderr string
}

// HookError reports a failed invocation.
type HookError struct {
	Plugin   string
	Hook     string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *HookError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plugin %s hook %s", e.Plugin, e.Hook)
	switch {
	case e.TimedOut:
		b.WriteString(" timed out")
	case e.ExitCode >= 0:
		fmt.Fprintf(&b, " failed with code %d", e.ExitCode)
	default:
		b.WriteString(" failed")
	}
	if line := lastLine(e.Stderr); line != "" {
		b.WriteString(": ")
		b.WriteString(line)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Invoke calls the hook named by opts["hook"] in the plugin at pluginPath.
// The bridge runs in the plugin's directory, in its own process group,
// which is killed when ctx ends or the timeout passes.
func (c *Client) Invoke(ctx context.Context, pluginPath string, opts map[string]any) (*Response, error) {
	hook, _ := opts["hook"].(string)
	errb := oops.In("hookclient").With("plugin", pluginPath).With("hook", hook)
	if hook == "" {
		return nil, errb.Errorf("options must include a non-empty string \"hook\"")
	}

	absPath, err := filepath.Abs(pluginPath)
	if err != nil {
		return nil, errb.Wrapf(err, "resolving plugin path")
	}
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, errb.Wrapf(err, "encoding options")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bridge := c.BridgePath
	if bridge == "" {
		bridge = DefaultBridge
	}

	cmd := exec.CommandContext(ctx, bridge)
	cmd.Dir = filepath.Dir(absPath)
	cmd.Env = c.environ(absPath, payload)
	setProcGroup(cmd)
	cmd.Cancel = func() error {
		return killProcGroup(cmd)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	return finish(ctx, errb, absPath, hook, runErr, stdout.Bytes(), stderr.String())
}

// finish turns a completed bridge run into a Response or HookError. A run
// that exited cleanly keeps its result even if ctx ended afterwards.
func finish(ctx context.Context, errb oops.OopsErrorBuilder, pluginPath, hook string, runErr error, stdout []byte, stderr string) (*Response, error) {
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &HookError{
				Plugin: pluginPath, Hook: hook, ExitCode: -1, Stderr: stderr,
				TimedOut: errors.Is(ctxErr, context.DeadlineExceeded), Err: ctxErr,
			}
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &HookError{Plugin: pluginPath, Hook: hook, ExitCode: code, Stderr: stderr, Err: runErr}
	}

	resp := &Response{Raw: stdout, Stderr: stderr}
	if len(bytes.TrimSpace(resp.Raw)) > 0 {
		if err := json.Unmarshal(resp.Raw, &resp.Result); err != nil {
			return nil, errb.With("stdout", string(stdout)).Wrapf(err, "parsing hook result")
		}
	}
	return resp, nil
}

func (c *Client) environ(pluginPath string, payload []byte) []string {
	base := c.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+3)
	env = append(env, base...)
	// exec keeps the last value of a duplicated key.
	env = append(env,
		"BODO_PLUGIN_FILE="+pluginPath,
		"BODO_OPTS="+string(payload),
	)
	if c.Verbose {
		env = append(env, "BODO_VERBOSE=true")
	}
	return env
}
