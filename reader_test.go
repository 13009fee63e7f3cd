// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package snirf_test

import (
	"bytes"
	"testing"

	"github.com/OpenPSG/snirf"
	"github.com/OpenPSG/snirf/internal/hdf5/hdf5test"
	"github.com/OpenPSG/snirf/internal/snirftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	img := snirftest.Image(snirftest.Options{
		SubjectID: "sub-01",
		Stims: []snirftest.Stim{
			{Name: "Tapping/Left", Events: [][3]float64{{0.5, 1, 1}, {2.5, 1, 1}}},
			{Name: "Tapping/Right", Events: [][3]float64{{1.5, 1, 2}}},
		},
	})

	f, err := snirf.Open(bytes.NewReader(img))
	require.NoError(t, err)

	assert.Equal(t, "1.0", f.FormatVersion())
	require.Len(t, f.Recordings(), 1)
	rec := f.Recordings()[0]

	assert.Equal(t, "sub-01", rec.MetaDataTags["SubjectID"])
	assert.Equal(t, "mm", rec.MetaDataTags["LengthUnit"])

	require.Len(t, rec.Data, 1)
	blk := rec.Data[0]
	assert.Len(t, blk.Time, 40)
	require.Len(t, blk.Measurements, 4)
	assert.Equal(t, 1, blk.Measurements[0].SourceIndex)
	assert.Equal(t, 1, blk.Measurements[0].DetectorIndex)
	assert.Equal(t, 1, blk.Measurements[0].WavelengthIndex)
	assert.Equal(t, snirf.DataTypeCWAmplitude, blk.Measurements[0].DataType)
	assert.Equal(t, 2, blk.Measurements[3].SourceIndex)
	assert.Equal(t, 2, blk.Measurements[3].WavelengthIndex)

	// Values decode in time-major order.
	assert.InDelta(t, blk.Sample(0, 0), blk.Series[0][0], 1e-12)
	assert.InDelta(t, 3.9, blk.Duration(), 1e-9)
	assert.InDelta(t, 10.0, blk.SampleRate(), 1e-9)

	assert.Equal(t, []float64{760, 850}, rec.Probe.Wavelengths)
	assert.Equal(t, []string{"S1", "S2"}, rec.Probe.SourceLabels)
	assert.Equal(t, "mm", rec.Probe.LengthUnit)
	assert.InDelta(t, 30.0, rec.Probe.SourceDetectorDistance(1, 1), 1e-9)
	assert.InDelta(t, 30.0, rec.Probe.SourceDetectorDistance(2, 1), 1e-9)

	require.Len(t, rec.Stims, 2)
	assert.Equal(t, "Tapping/Left", rec.Stims[0].Name)
	require.Len(t, rec.Stims[0].Events, 2)
	assert.Equal(t, snirf.StimEvent{Onset: 2.5, Duration: 1, Value: 1}, rec.Stims[0].Events[1])
	assert.Equal(t, "Tapping/Right", rec.Stims[1].Name)
}

func TestReaderChunkedSeries(t *testing.T) {
	plain := snirftest.Options{SubjectID: "s"}
	chunked := snirftest.Options{SubjectID: "s", Chunked: true}

	fp, err := snirf.Open(bytes.NewReader(snirftest.Image(plain)))
	require.NoError(t, err)
	fc, err := snirf.Open(bytes.NewReader(snirftest.Image(chunked)))
	require.NoError(t, err)

	bp := fp.Recordings()[0].Data[0]
	bc := fc.Recordings()[0].Data[0]
	require.Equal(t, len(bp.Series), len(bc.Series))
	for tIdx := range bp.Series {
		assert.Equal(t, bp.Series[tIdx], bc.Series[tIdx])
	}
}

func TestReaderRejectsShapeMismatch(t *testing.T) {
	// A time axis shorter than the series rows must be rejected.
	b := hdf5test.New()
	b.ScalarString("formatVersion", "1.0")
	b.Float64s("nirs1/data1/dataTimeSeries", []int{3, 1}, []float64{1, 2, 3})
	b.Float64s("nirs1/data1/time", []int{2}, []float64{0, 0.1})
	b.Ints("nirs1/data1/measurementList1/sourceIndex", nil, []int32{1})
	b.Ints("nirs1/data1/measurementList1/detectorIndex", nil, []int32{1})
	b.Ints("nirs1/data1/measurementList1/wavelengthIndex", nil, []int32{1})
	b.Ints("nirs1/data1/measurementList1/dataType", nil, []int32{1})

	_, err := snirf.Open(bytes.NewReader(b.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time")
}

func TestReaderRejectsMissingRecordings(t *testing.T) {
	b := hdf5test.New()
	b.ScalarString("formatVersion", "1.0")
	_, err := snirf.Open(bytes.NewReader(b.Bytes()))
	require.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := snirftest.WriteFile(t, dir, "sub-01.snirf", snirftest.Options{SubjectID: "sub-01"})

	f, err := snirf.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	require.Len(t, f.Recordings(), 1)
	assert.Equal(t, "sub-01", f.Recordings()[0].MetaDataTags["SubjectID"])
}
