// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package errutil logs oops errors and asserts on them in tests.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err as a single record. For oops errors the code, hint and
// context are attached as attributes; the stacktrace is left out so the
// record stays on one line.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if hint := oopsErr.Hint(); hint != "" {
		attrs = append(attrs, "hint", hint)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	logger.Error(msg, attrs...)
}
