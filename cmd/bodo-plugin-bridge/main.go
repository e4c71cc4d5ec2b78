// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Command bodo-plugin-bridge runs one Lua plugin hook for the bodo task
// runner. The request arrives in BODO_OPTS and BODO_PLUGIN_FILE, the hook's
// result is written to stdout as JSON, and diagnostics go to stderr.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bodo-run/bodo-bridge/internal/bridge"
	"github.com/bodo-run/bodo-bridge/internal/logging"
	"github.com/bodo-run/bodo-bridge/pkg/errutil"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Replaced once the config is loaded; covers failures before that.
	logging.SetDefault(serviceName, version, logging.FormatText, slog.LevelWarn)

	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		errutil.LogError(slog.Default(), "hook invocation failed", err)
		os.Exit(bridge.ExitFailure)
	}
}
