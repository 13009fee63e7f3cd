// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package nirs derives optical density and hemoglobin concentration
// signals from raw fNIRS amplitude measurements using the modified
// Beer-Lambert law.
package nirs

import (
	"fmt"
	"math"

	"github.com/OpenPSG/snirf"
)

// Channel identifies one source-detector-wavelength combination.
type Channel struct {
	SourceIndex   int     // 1-based, as in the SNIRF probe
	DetectorIndex int     // 1-based
	Wavelength    float64 // nm
}

// Name returns a short channel name like "S1D2 760nm".
func (c Channel) Name() string {
	return fmt.Sprintf("S%dD%d %gnm", c.SourceIndex, c.DetectorIndex, c.Wavelength)
}

// Timeseries holds per-channel signal values in channel-major order.
type Timeseries struct {
	Channels []Channel
	Time     []float64   // Sample times in seconds
	Values   [][]float64 // Values[c][t]
}

// FromBlock builds a channel-major timeseries from a SNIRF data block,
// keeping only continuous wave amplitude measurements.
func FromBlock(blk *snirf.DataBlock, probe snirf.Probe) (*Timeseries, error) {
	ts := &Timeseries{Time: blk.Time}

	var cols []int
	for i, m := range blk.Measurements {
		if m.DataType != snirf.DataTypeCWAmplitude {
			continue
		}
		if m.WavelengthIndex < 1 || m.WavelengthIndex > len(probe.Wavelengths) {
			return nil, fmt.Errorf("nirs: measurement %d has wavelength index %d outside probe table", i+1, m.WavelengthIndex)
		}
		ts.Channels = append(ts.Channels, Channel{
			SourceIndex:   m.SourceIndex,
			DetectorIndex: m.DetectorIndex,
			Wavelength:    probe.Wavelengths[m.WavelengthIndex-1],
		})
		cols = append(cols, i)
	}
	if len(ts.Channels) == 0 {
		return nil, fmt.Errorf("nirs: no continuous wave amplitude measurements in block")
	}

	ts.Values = make([][]float64, len(cols))
	for c, col := range cols {
		row := make([]float64, len(blk.Time))
		for t := range blk.Time {
			row[t] = blk.Series[t][col]
		}
		ts.Values[c] = row
	}
	return ts, nil
}

// Mean returns the time-mean of channel c.
func (ts *Timeseries) Mean(c int) float64 {
	vs := ts.Values[c]
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// OpticalDensity converts raw amplitudes to optical density: the negative
// log-ratio of each sample to the channel's time-mean. Amplitudes must be
// strictly positive.
func OpticalDensity(ts *Timeseries) (*Timeseries, error) {
	od := &Timeseries{
		Channels: ts.Channels,
		Time:     ts.Time,
		Values:   make([][]float64, len(ts.Values)),
	}
	for c := range ts.Values {
		mean := ts.Mean(c)
		if mean <= 0 || math.IsNaN(mean) {
			return nil, fmt.Errorf("nirs: channel %s has non-positive mean amplitude", ts.Channels[c].Name())
		}
		row := make([]float64, len(ts.Values[c]))
		for t, v := range ts.Values[c] {
			if v <= 0 {
				return nil, fmt.Errorf("nirs: channel %s has non-positive amplitude at sample %d", ts.Channels[c].Name(), t)
			}
			row[t] = -math.Log(v / mean)
		}
		od.Values[c] = row
	}
	return od, nil
}
