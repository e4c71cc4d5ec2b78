// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package config loads the bridge configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/bodo-run/bodo-bridge/internal/bridge"
	"github.com/bodo-run/bodo-bridge/internal/kv"
	"github.com/bodo-run/bodo-bridge/internal/logging"
	pluginlua "github.com/bodo-run/bodo-bridge/internal/plugin/lua"
	"github.com/bodo-run/bodo-bridge/internal/xdg"
)

// CodeInvalid marks configuration errors.
const CodeInvalid = "CONFIG_INVALID"

// EnvConfigFile names an explicit config file.
const EnvConfigFile = "BODO_BRIDGE_CONFIG"

// FlagConfig is the flag naming an explicit config file. It is not a
// config key itself.
const FlagConfig = "config"

// Config is the bridge configuration.
type Config struct {
	Verbose bool          `koanf:"verbose" jsonschema:"description=Log step-by-step trace lines to stderr"`
	Log     LogConfig     `koanf:"log"`
	Lua     LuaConfig     `koanf:"lua"`
	KV      KVConfig      `koanf:"kv"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// LogConfig controls diagnostics on stderr.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=text,enum=json"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// LuaConfig controls the plugin runtime.
type LuaConfig struct {
	Libraries string `koanf:"libraries" jsonschema:"enum=full,enum=safe,description=Lua standard library profile"`
}

// KVConfig selects the persistent store behind bridge.kv_*.
type KVConfig struct {
	Driver string `koanf:"driver" jsonschema:"enum=none,enum=sqlite,enum=postgres"`
	Path   string `koanf:"path" jsonschema:"description=SQLite file (default: XDG_STATE_HOME/bodo/plugin-kv.db)"`
	DSN    string `koanf:"dsn" jsonschema:"description=PostgreSQL connection URL"`
}

// MetricsConfig controls the Prometheus textfile.
type MetricsConfig struct {
	Textfile string `koanf:"textfile" jsonschema:"description=Write hook metrics to this .prom file after each run"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"verbose":          false,
		"log.format":       logging.FormatText,
		"log.level":        "warn",
		"lua.libraries":    string(pluginlua.ProfileFull),
		"kv.driver":        kv.DriverSQLite,
		"kv.path":          "",
		"kv.dsn":           "",
		"metrics.textfile": "",
	}
}

// RegisterFlags adds the config flags to fs. Flag names are config keys
// with the first "." replaced by "-".
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "config file path (default: XDG_CONFIG_HOME/bodo/bridge.yaml)")
	fs.BoolP("verbose", "v", false, "log step-by-step trace lines to stderr")
	fs.String("log-format", logging.FormatText, "log format (text or json)")
	fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	fs.String("lua-libraries", string(pluginlua.ProfileFull), "Lua library profile (full or safe)")
	fs.String("kv-driver", kv.DriverSQLite, "plugin kv store (none, sqlite, postgres)")
	fs.String("kv-path", "", "SQLite kv file")
	fs.String("kv-dsn", "", "PostgreSQL kv connection URL")
	fs.String("metrics-textfile", "", "write hook metrics to this file")
}

// Load builds the configuration. fs may be nil. getenv is usually
// os.Getenv.
func Load(fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	errb := oops.In("config").Code(CodeInvalid)
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, errb.With("key", key).Wrapf(err, "failed to set default")
		}
	}

	path, explicit, err := configPath(fs, getenv)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			if f.Name == FlagConfig {
				return "", nil
			}
			return strings.Replace(f.Name, "-", ".", 1), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, errb.Wrapf(err, "failed to load flags")
		}
	}

	// BODO_VERBOSE can only turn tracing on.
	if bridge.IsTruthy(getenv(bridge.EnvVerbose)) {
		if err := k.Set("verbose", true); err != nil {
			return nil, errb.Wrapf(err, "failed to apply %s", bridge.EnvVerbose)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errb.Wrapf(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath picks the config file: --config, then BODO_BRIDGE_CONFIG, then
// the XDG default if it exists. explicit reports whether a missing file is
// an error.
func configPath(fs *pflag.FlagSet, getenv func(string) string) (path string, explicit bool, err error) {
	if fs != nil {
		if p, _ := fs.GetString(FlagConfig); p != "" {
			return p, true, nil
		}
	}
	if p := getenv(EnvConfigFile); p != "" {
		return p, true, nil
	}
	p, err := xdg.ConfigFile()
	if err != nil {
		// No home directory: run on defaults.
		return "", false, nil //nolint:nilerr // absence of a default config is not an error
	}
	return p, false, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	errb := oops.In("config").Code(CodeInvalid).With("path", path)

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errb.Wrapf(err, "failed to read config file")
	}
	if err := ValidateSchema(data); err != nil {
		return errb.Hint("run 'bodo-plugin-bridge schema' for the expected format").Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return errb.Wrapf(err, "failed to load config file")
	}
	return nil
}

// Validate checks that the configuration is valid.
func (cfg *Config) Validate() error {
	errb := oops.In("config").Code(CodeInvalid)

	if cfg.Log.Format != logging.FormatText && cfg.Log.Format != logging.FormatJSON {
		return errb.Errorf("log.format must be 'json' or 'text', got %q", cfg.Log.Format)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return errb.Wrapf(err, "log.level")
	}
	if _, err := pluginlua.ParseProfile(cfg.Lua.Libraries); err != nil {
		return errb.Wrapf(err, "lua.libraries")
	}
	switch cfg.KV.Driver {
	case kv.DriverNone, kv.DriverSQLite:
	case kv.DriverPostgres:
		if cfg.KV.DSN == "" {
			return errb.Errorf("kv.dsn is required when kv.driver is %q", kv.DriverPostgres)
		}
	default:
		return errb.Errorf("kv.driver must be one of none, sqlite, postgres, got %q", cfg.KV.Driver)
	}
	return nil
}

// KVOptions returns the store options, filling in the default SQLite path.
func (cfg *Config) KVOptions() (kv.Options, error) {
	opts := kv.Options{Driver: cfg.KV.Driver, Path: cfg.KV.Path, DSN: cfg.KV.DSN}
	if opts.Driver == kv.DriverSQLite && opts.Path == "" {
		p, err := xdg.KVFile()
		if err != nil {
			return opts, err
		}
		opts.Path = p
	}
	return opts, nil
}
