// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/bodo-run/bodo-bridge/internal/config"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		// The schema does not depend on the current configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err //nolint:wrapcheck // stdout write failure needs no context
		},
	}
}
