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
	"sort"

	"github.com/spf13/cobra"

	"github.com/OpenPSG/snirf"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Describe a SNIRF recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := ctx.setup(); err != nil {
				return err
			}

			f, err := snirf.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Format version: %s\n", f.FormatVersion())

			for i, rec := range f.Recordings() {
				fmt.Fprintf(out, "\nRecording %d\n", i+1)

				keys := make([]string, 0, len(rec.MetaDataTags))
				for k := range rec.MetaDataTags {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				tagRows := make([][]string, 0, len(keys))
				for _, k := range keys {
					tagRows = append(tagRows, []string{k, rec.MetaDataTags[k]})
				}
				fmt.Fprintln(out, renderTable([]string{"Tag", "Value"}, tagRows, nil))

				for j, blk := range rec.Data {
					fmt.Fprintf(out, "\nData block %d: %d samples, %.1f s at %.2f Hz\n",
						j+1, len(blk.Time), blk.Duration(), blk.SampleRate())

					rows := make([][]string, 0, len(blk.Measurements))
					for _, m := range blk.Measurements {
						wavelength := "?"
						if m.WavelengthIndex >= 1 && m.WavelengthIndex <= len(rec.Probe.Wavelengths) {
							wavelength = fmt.Sprintf("%g nm", rec.Probe.Wavelengths[m.WavelengthIndex-1])
						}
						distance := ""
						if m.SourceIndex >= 1 && m.SourceIndex <= len(rec.Probe.SourcePos) &&
							m.DetectorIndex >= 1 && m.DetectorIndex <= len(rec.Probe.DetectorPos) {
							distance = fmt.Sprintf("%.1f", rec.Probe.SourceDetectorDistance(m.SourceIndex, m.DetectorIndex))
						}
						rows = append(rows, []string{
							fmt.Sprintf("S%dD%d", m.SourceIndex, m.DetectorIndex),
							wavelength,
							fmt.Sprintf("%d", m.DataType),
							distance,
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Channel", "Wavelength", "Type", "Distance"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
					))
				}

				if len(rec.Stims) > 0 {
					rows := make([][]string, 0, len(rec.Stims))
					for _, stim := range rec.Stims {
						rows = append(rows, []string{stim.Name, fmt.Sprintf("%d", len(stim.Events))})
					}
					fmt.Fprintln(out, renderTable([]string{"Condition", "Events"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
				}
			}
			return nil
		},
	}
}
