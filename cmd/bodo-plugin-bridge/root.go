// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/bodo-run/bodo-bridge/internal/bridge"
	"github.com/bodo-run/bodo-bridge/internal/config"
	"github.com/bodo-run/bodo-bridge/internal/kv"
	"github.com/bodo-run/bodo-bridge/internal/logging"
	"github.com/bodo-run/bodo-bridge/internal/observability"
	"github.com/bodo-run/bodo-bridge/internal/plugin/hostfunc"
	pluginlua "github.com/bodo-run/bodo-bridge/internal/plugin/lua"
)

const serviceName = "bodo-plugin-bridge"

// EnvTraceParent carries the host's W3C trace context.
const EnvTraceParent = "TRACEPARENT"

// app is the state shared by the root command and its subcommands.
type app struct {
	getenv       func(string) string
	cfg          *config.Config
	logger       *slog.Logger
	invocationID string
}

// NewRootCmd creates the root command for the bridge CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(os.Getenv)
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Run one plugin hook for the bodo task runner",
		Long: `bodo-plugin-bridge loads the Lua plugin named by BODO_PLUGIN_FILE, calls the
hook named by the "hook" key of the JSON object in BODO_OPTS with that object
as its only argument, and prints the table the hook returns as JSON.

Exit status is 0 on success and 1 on any failure. Set BODO_VERBOSE=true to
trace each step on stderr.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runHook,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newExportsCmd(a))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags(), a.getenv)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	a.invocationID = ulid.Make().String()
	a.logger = logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr()).
		With("invocation_id", a.invocationID)
	slog.SetDefault(a.logger)
	return nil
}

// pluginRuntime builds a loader wired to the host module, the kv store and
// stderr. The returned function closes the store.
func (a *app) pluginRuntime(cmd *cobra.Command) (*pluginlua.Loader, func(), error) {
	profile, err := pluginlua.ParseProfile(a.cfg.Lua.Libraries)
	if err != nil {
		return nil, nil, err
	}

	hostOpts := []hostfunc.Option{
		hostfunc.WithLogger(a.logger),
		hostfunc.WithInvocation(version, a.invocationID, a.cfg.Verbose),
	}
	closeStore := func() {}
	if a.cfg.KV.Driver != kv.DriverNone {
		kvOpts, err := a.cfg.KVOptions()
		if err != nil {
			return nil, nil, err
		}
		store := kv.NewLazy(func(ctx context.Context) (kv.Store, error) {
			return kv.Open(ctx, kvOpts)
		})
		hostOpts = append(hostOpts, hostfunc.WithKVStore(store))
		closeStore = func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("closing kv store", "error", err)
			}
		}
	}

	factory := pluginlua.NewStateFactory(
		pluginlua.WithProfile(profile),
		pluginlua.WithOutput(cmd.ErrOrStderr()),
	)
	loader := pluginlua.NewLoader(factory,
		pluginlua.WithHostModule(hostfunc.New(hostOpts...)),
		pluginlua.WithTracebacks(a.cfg.Verbose),
	)
	return loader, closeStore, nil
}

// runHook performs one invocation.
func (a *app) runHook(cmd *cobra.Command, _ []string) error {
	ctx := logging.ContextWithTraceParent(cmd.Context(), a.getenv(EnvTraceParent))

	contract, err := bridge.ReadContract(a.getenv)
	if err != nil {
		return err
	}

	loader, closeStore, err := a.pluginRuntime(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder := observability.NewRecorder()
	d := bridge.NewDispatcher(loader, cmd.OutOrStdout(),
		bridge.WithLogger(a.logger),
		bridge.WithRecorder(recorder),
	)
	err = d.Dispatch(ctx, contract)

	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := recorder.WriteTextfile(path); werr != nil {
			a.logger.WarnContext(ctx, "failed to write metrics", "error", werr)
		}
	}
	return err
}
