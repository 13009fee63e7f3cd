// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package snirftest builds synthetic SNIRF file images for tests.
package snirftest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/snirf/internal/hdf5/hdf5test"
)

// Stim is a stimulus condition for a fixture recording.
type Stim struct {
	Name   string
	Events [][3]float64 // onset, duration, value
}

// Options describes a fixture recording. Zero-valued fields are filled
// with defaults by Image.
type Options struct {
	SubjectID   string
	Wavelengths []float64
	Time        []float64
	// Pairs are 1-based source-detector pairs. Each pair is measured at
	// every wavelength; columns are ordered pair-major.
	Pairs       [][2]int
	SourcePos   [][3]float64
	DetectorPos [][3]float64
	// Amplitude returns the raw amplitude for a pair, wavelength index
	// and time index. The default is a positive baseline with a small
	// sinusoidal modulation.
	Amplitude func(pair, wl, t int) float64
	Stims     []Stim
	// Chunked stores dataTimeSeries chunked and deflate-compressed.
	Chunked bool
}

func (o *Options) fillDefaults() {
	if o.SubjectID == "" {
		o.SubjectID = "anon"
	}
	if o.Wavelengths == nil {
		o.Wavelengths = []float64{760, 850}
	}
	if o.Time == nil {
		o.Time = make([]float64, 40)
		for i := range o.Time {
			o.Time[i] = float64(i) * 0.1
		}
	}
	if o.Pairs == nil {
		o.Pairs = [][2]int{{1, 1}, {2, 1}}
	}
	if o.SourcePos == nil {
		o.SourcePos = [][3]float64{{0, 0, 0}, {60, 0, 0}}
	}
	if o.DetectorPos == nil {
		o.DetectorPos = [][3]float64{{30, 0, 0}}
	}
	if o.Amplitude == nil {
		o.Amplitude = func(pair, wl, t int) float64 {
			return 1 + 0.1*float64(pair+1) + 0.05*math.Sin(float64(t)*0.3+float64(wl))
		}
	}
}

// Image assembles the fixture into an in-memory SNIRF file.
func Image(o Options) []byte {
	o.fillDefaults()

	b := hdf5test.New()
	b.ScalarString("formatVersion", "1.0")

	b.ScalarString("nirs1/metaDataTags/SubjectID", o.SubjectID)
	b.ScalarString("nirs1/metaDataTags/MeasurementDate", "2026-08-01")
	b.ScalarString("nirs1/metaDataTags/MeasurementTime", "12:00:00")
	b.ScalarString("nirs1/metaDataTags/LengthUnit", "mm")
	b.ScalarString("nirs1/metaDataTags/TimeUnit", "s")
	b.ScalarString("nirs1/metaDataTags/FrequencyUnit", "Hz")

	nt := len(o.Time)
	nm := len(o.Pairs) * len(o.Wavelengths)
	series := make([]float64, 0, nt*nm)
	for t := 0; t < nt; t++ {
		for p := range o.Pairs {
			for w := range o.Wavelengths {
				series = append(series, o.Amplitude(p, w, t))
			}
		}
	}
	if o.Chunked {
		chunkRows := nt/2 + 1
		b.ChunkedFloat64s("nirs1/data1/dataTimeSeries", []int{nt, nm}, []int{chunkRows, nm}, series, true)
	} else {
		b.Float64s("nirs1/data1/dataTimeSeries", []int{nt, nm}, series)
	}
	b.Float64s("nirs1/data1/time", []int{nt}, o.Time)

	col := 1
	for _, pair := range o.Pairs {
		for w := range o.Wavelengths {
			prefix := fmt.Sprintf("nirs1/data1/measurementList%d", col)
			b.Ints(prefix+"/sourceIndex", nil, []int32{int32(pair[0])})
			b.Ints(prefix+"/detectorIndex", nil, []int32{int32(pair[1])})
			b.Ints(prefix+"/wavelengthIndex", nil, []int32{int32(w + 1)})
			b.Ints(prefix+"/dataType", nil, []int32{1})
			b.Ints(prefix+"/dataTypeIndex", nil, []int32{1})
			col++
		}
	}

	b.Float64s("nirs1/probe/wavelengths", []int{len(o.Wavelengths)}, o.Wavelengths)
	b.Float64s("nirs1/probe/sourcePos3D", []int{len(o.SourcePos), 3}, flatten(o.SourcePos))
	b.Float64s("nirs1/probe/detectorPos3D", []int{len(o.DetectorPos), 3}, flatten(o.DetectorPos))

	srcLabels := make([]string, len(o.SourcePos))
	for i := range srcLabels {
		srcLabels[i] = fmt.Sprintf("S%d", i+1)
	}
	detLabels := make([]string, len(o.DetectorPos))
	for i := range detLabels {
		detLabels[i] = fmt.Sprintf("D%d", i+1)
	}
	b.Strings("nirs1/probe/sourceLabels", srcLabels)
	b.Strings("nirs1/probe/detectorLabels", detLabels)

	for i, stim := range o.Stims {
		prefix := fmt.Sprintf("nirs1/stim%d", i+1)
		b.VarStrings(prefix+"/name", []string{stim.Name})
		flat := make([]float64, 0, 3*len(stim.Events))
		for _, ev := range stim.Events {
			flat = append(flat, ev[0], ev[1], ev[2])
		}
		b.Float64s(prefix+"/data", []int{len(stim.Events), 3}, flat)
	}

	return b.Bytes()
}

// WriteFile writes a fixture recording into dir and returns its path.
func WriteFile(t *testing.T, dir, name string, o Options) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("error creating fixture dir: %v", err)
	}
	if err := os.WriteFile(path, Image(o), 0o644); err != nil {
		t.Fatalf("error writing fixture: %v", err)
	}
	return path
}

func flatten(ps [][3]float64) []float64 {
	out := make([]float64, 0, 3*len(ps))
	for _, p := range ps {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}
