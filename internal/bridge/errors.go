// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package bridge

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for every terminal failure of an invocation.
const (
	CodeMissingContract      = "MISSING_CONTRACT"
	CodeInvalidOptionsFormat = "INVALID_OPTIONS_FORMAT"
	CodeMissingHookName      = "MISSING_HOOK_NAME"
	CodePluginLoadError      = "PLUGIN_LOAD_ERROR"
	CodeHookNotFound         = "HOOK_NOT_FOUND"
	CodeHookExecutionError   = "HOOK_EXECUTION_ERROR"
	CodeInvalidHookResult    = "INVALID_HOOK_RESULT"
)

// ExitSuccess and ExitFailure are the only exit codes the host sees.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Kind returns the oops error code carried by err, or "" when err has none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}
