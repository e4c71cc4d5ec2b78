// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodo-run/bodo-bridge/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("HOOK_NOT_FOUND").
		With("hook", "onAfterTaskRun").
		Hint("check the plugin's global functions").
		Errorf("plugin does not export a 'onAfterTaskRun' function")

	errutil.LogError(logger, "hook invocation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "hook invocation failed", logEntry["msg"])
	assert.Equal(t, "HOOK_NOT_FOUND", logEntry["code"])
	assert.Equal(t, "check the plugin's global functions", logEntry["hint"])
	assert.Contains(t, logEntry["error"], "onAfterTaskRun")
	assert.Equal(t, map[string]any{"hook": "onAfterTaskRun"}, logEntry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogError_TextIsOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	errutil.LogError(logger, "failed", oops.Code("X").Errorf("line one"))

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}
