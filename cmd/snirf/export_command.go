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

	"github.com/OpenPSG/snirf/study"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var dbFlag string
	var baselineFlag float64

	cmd := &cobra.Command{
		Use:   "export [DIR]",
		Short: "Export block-averaged features for classification",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.setup()
			if err != nil {
				return err
			}
			dir, err := ctx.dataDir(args)
			if err != nil {
				return err
			}
			dpf, err := cfg.DPFTable()
			if err != nil {
				return err
			}
			baseline := baselineFlag
			if !cmd.Flags().Changed("baseline") {
				baseline = cfg.BaselineSeconds
			}

			st, err := study.Load(cmd.Context(), dir, study.Options{DPF: dpf, Logger: log})
			if err != nil {
				return err
			}

			store, err := study.OpenStore(dbFlag)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Export(cmd.Context(), st, dir, baseline)
			if err != nil {
				return err
			}

			log.Info("export complete", "run", res.RunID, "features", res.Features, "db", dbFlag)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d features from %d subjects\n",
				res.RunID, res.Features, len(st.Order))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbFlag, "db", "features.db", "Feature database path")
	cmd.Flags().Float64Var(&baselineFlag, "baseline", 5, "Baseline window in seconds")
	return cmd
}
