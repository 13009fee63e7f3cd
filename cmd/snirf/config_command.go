// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenPSG/snirf/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sample",
		Short: "Print an annotated sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.Sample())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.setup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir = %q\n", cfg.DataDir)
			fmt.Fprintf(out, "baseline_seconds = %g\n", cfg.BaselineSeconds)
			fmt.Fprintf(out, "log.level = %q\n", cfg.Log.Level)
			fmt.Fprintf(out, "log.format = %q\n", cfg.Log.Format)
			for wavelength, value := range cfg.DPF {
				fmt.Fprintf(out, "dpf.%s = %g\n", wavelength, value)
			}
			return nil
		},
	})

	return cmd
}
