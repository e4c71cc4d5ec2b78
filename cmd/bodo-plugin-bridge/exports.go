// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exports <plugin-file>",
		Short: "List the hook functions a plugin defines",
		Long: `Load a plugin the same way a hook invocation does and print the names of
the callable globals it defines, one per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, closeStore, err := a.pluginRuntime(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			m, err := loader.LoadModule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer m.Close()

			for _, name := range m.Exports() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err //nolint:wrapcheck // stdout write failure needs no context
				}
			}
			return nil
		},
	}
}
