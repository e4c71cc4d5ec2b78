// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package bridge

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Environment variables forming the invocation contract.
const (
	EnvOptions    = "BODO_OPTS"
	EnvPluginFile = "BODO_PLUGIN_FILE"
	EnvVerbose    = "BODO_VERBOSE"
)

// OptionHook is the reserved options key naming the hook to call.
const OptionHook = "hook"

// Contract is one invocation request. It is immutable once read.
type Contract struct {
	PluginPath string
	HookName   string
	Options    map[string]any
	RawOptions string
}

// ReadContract reads the contract from the environment through getenv.
// os.Getenv is the usual argument; tests pass a map lookup.
func ReadContract(getenv func(string) string) (*Contract, error) {
	return ParseContract(getenv(EnvOptions), getenv(EnvPluginFile))
}

// ParseContract validates the raw options payload and plugin path.
func ParseContract(rawOptions, pluginPath string) (*Contract, error) {
	errb := oops.In("bridge")

	var missing []string
	if rawOptions == "" {
		missing = append(missing, EnvOptions)
	}
	if pluginPath == "" {
		missing = append(missing, EnvPluginFile)
	}
	if len(missing) > 0 {
		return nil, errb.Code(CodeMissingContract).
			With("missing", missing).
			Hint("the host must set "+EnvOptions+" and "+EnvPluginFile).
			Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	var decoded any
	if err := json.Unmarshal([]byte(rawOptions), &decoded); err != nil {
		return nil, errb.Code(CodeInvalidOptionsFormat).Wrapf(err, "invalid JSON in %s", EnvOptions)
	}
	options, ok := decoded.(map[string]any)
	if !ok {
		return nil, errb.Code(CodeInvalidOptionsFormat).
			Errorf("%s must be a JSON object, got %s", EnvOptions, jsonKind(decoded))
	}

	hookName, _ := options[OptionHook].(string)
	if hookName == "" {
		return nil, errb.Code(CodeMissingHookName).
			Errorf("options must include a non-empty string %q", OptionHook)
	}

	return &Contract{
		PluginPath: pluginPath,
		HookName:   hookName,
		Options:    options,
		RawOptions: rawOptions,
	}, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return "object"
	}
}

// IsTruthy reports whether a boolean-like environment value is enabled.
// Accepts strconv.ParseBool spellings plus "yes" and "on".
func IsTruthy(s string) bool {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "y", "on":
		return true
	}
	return false
}
