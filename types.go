// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package snirf

import "math"

// Recording is one /nirs element of a SNIRF file: a continuous recording
// from a single probe.
type Recording struct {
	MetaDataTags map[string]string // Required and custom metadata tags
	Data         []*DataBlock      // Measurement data blocks
	Probe        Probe             // Optode geometry and wavelengths
	Stims        []Stim            // Stimulus condition markers
}

// DataBlock holds one data element: a time axis and the measured values
// for a set of channels.
type DataBlock struct {
	Time         []float64     // Sample times in seconds
	Series       [][]float64   // Values in time-major order, Series[t][m]
	Measurements []Measurement // One descriptor per column of Series
}

// Sample returns the value of measurement m at time index t.
func (b *DataBlock) Sample(t, m int) float64 {
	return b.Series[t][m]
}

// Duration returns the covered time span in seconds.
func (b *DataBlock) Duration() float64 {
	if len(b.Time) < 2 {
		return 0
	}
	return b.Time[len(b.Time)-1] - b.Time[0]
}

// SampleRate returns the nominal sampling rate in Hz, derived from the
// time axis.
func (b *DataBlock) SampleRate() float64 {
	d := b.Duration()
	if d <= 0 {
		return 0
	}
	return float64(len(b.Time)-1) / d
}

// DataTypeCWAmplitude is the data type code for continuous wave amplitude
// measurements.
const DataTypeCWAmplitude = 1

// Measurement describes one column of a data block. Indices are 1-based,
// as stored in the file.
type Measurement struct {
	SourceIndex     int // Index into Probe.SourcePos
	DetectorIndex   int // Index into Probe.DetectorPos
	WavelengthIndex int // Index into Probe.Wavelengths
	DataType        int // Measurement data type (1 = continuous wave amplitude)
	DataTypeIndex   int // Sub-index within the data type
}

// Probe describes the optode montage: nominal wavelengths and the
// positions of sources and detectors.
type Probe struct {
	Wavelengths    []float64    // Nominal wavelengths in nm
	SourcePos      [][3]float64 // Source positions, file length units
	DetectorPos    [][3]float64 // Detector positions, file length units
	SourceLabels   []string     // Optional source names
	DetectorLabels []string     // Optional detector names
	LengthUnit     string       // Unit of the positions, usually "mm"
}

// SourceDetectorDistance returns the euclidean distance between a source
// and a detector, both 1-based.
func (p Probe) SourceDetectorDistance(sourceIndex, detectorIndex int) float64 {
	s := p.SourcePos[sourceIndex-1]
	d := p.DetectorPos[detectorIndex-1]
	var sum float64
	for i := 0; i < 3; i++ {
		diff := s[i] - d[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Stim is one stimulus condition with its event markers.
type Stim struct {
	Name   string
	Events []StimEvent
}

// StimEvent is a single stimulus presentation.
type StimEvent struct {
	Onset    float64 // Seconds relative to the time axis
	Duration float64 // Seconds
	Value    float64 // Condition amplitude or code
}
