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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenPSG/snirf/study"
)

func newLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load [DIR]",
		Short: "Load a multi-subject study and summarize it",
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

			st, err := study.Load(cmd.Context(), dir, study.Options{DPF: dpf, Logger: log})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(st.Order))
			for _, label := range st.Order {
				sub := st.Subjects[label]
				conditions := make([]string, 0, len(sub.Stims))
				for _, stim := range sub.Stims {
					conditions = append(conditions, stim.Name)
				}
				rows = append(rows, []string{
					label,
					filepath.Base(sub.Path),
					fmt.Sprintf("%d", len(sub.Amp.Channels)),
					fmt.Sprintf("%d", len(sub.Conc.Pairs)),
					fmt.Sprintf("%d", len(sub.Amp.Time)),
					fmt.Sprintf("%.1f", lastTime(sub.Amp.Time)),
					strings.Join(conditions, ", "),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Subject", "File", "Channels", "Pairs", "Samples", "Duration (s)", "Conditions"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func lastTime(time []float64) float64 {
	if len(time) == 0 {
		return 0
	}
	return time[len(time)-1]
}
