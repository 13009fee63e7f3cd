// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nirs_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/OpenPSG/snirf"
	"github.com/OpenPSG/snirf/internal/snirftest"
	"github.com/OpenPSG/snirf/nirs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProbe() snirf.Probe {
	return snirf.Probe{
		Wavelengths: []float64{760, 850},
		SourcePos:   [][3]float64{{0, 0, 0}},
		DetectorPos: [][3]float64{{30, 0, 0}},
		LengthUnit:  "mm",
	}
}

func testChannels() []nirs.Channel {
	return []nirs.Channel{
		{SourceIndex: 1, DetectorIndex: 1, Wavelength: 760},
		{SourceIndex: 1, DetectorIndex: 1, Wavelength: 850},
	}
}

func TestChannelName(t *testing.T) {
	ch := nirs.Channel{SourceIndex: 1, DetectorIndex: 2, Wavelength: 760}
	assert.Equal(t, "S1D2 760nm", ch.Name())
}

func TestFromBlock(t *testing.T) {
	img := snirftest.Image(snirftest.Options{})
	f, err := snirf.Open(bytes.NewReader(img))
	require.NoError(t, err)
	rec := f.Recordings()[0]

	ts, err := nirs.FromBlock(rec.Data[0], rec.Probe)
	require.NoError(t, err)

	require.Len(t, ts.Channels, 4)
	assert.Equal(t, "S1D1 760nm", ts.Channels[0].Name())
	assert.Equal(t, "S1D1 850nm", ts.Channels[1].Name())
	assert.Equal(t, "S2D1 760nm", ts.Channels[2].Name())
	assert.Equal(t, "S2D1 850nm", ts.Channels[3].Name())

	// Channel-major values match the time-major source block.
	for c := range ts.Channels {
		for ti := range ts.Time {
			assert.Equal(t, rec.Data[0].Sample(ti, c), ts.Values[c][ti])
		}
	}
}

func TestOpticalDensity(t *testing.T) {
	ts := &nirs.Timeseries{
		Channels: testChannels(),
		Time:     []float64{0, 0.1, 0.2, 0.3},
		Values: [][]float64{
			{2, 2, 2, 2},
			{1, 2, 4, 1},
		},
	}

	od, err := nirs.OpticalDensity(ts)
	require.NoError(t, err)

	// A constant signal has zero optical density.
	for _, v := range od.Values[0] {
		assert.InDelta(t, 0, v, 1e-12)
	}

	// od = -log(v / mean), mean of channel 1 is 2.
	assert.InDelta(t, -math.Log(0.5), od.Values[1][0], 1e-12)
	assert.InDelta(t, 0, od.Values[1][1], 1e-12)
	assert.InDelta(t, -math.Log(2), od.Values[1][2], 1e-12)
}

func TestOpticalDensityRejectsNonPositive(t *testing.T) {
	ts := &nirs.Timeseries{
		Channels: testChannels()[:1],
		Time:     []float64{0, 0.1},
		Values:   [][]float64{{1, 0}},
	}
	_, err := nirs.OpticalDensity(ts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S1D1 760nm")
}

func TestExtinctionAt(t *testing.T) {
	e, err := nirs.ExtinctionAt(760)
	require.NoError(t, err)
	assert.InDelta(t, 586.0, e.HbO, 1e-9)
	assert.InDelta(t, 1548.52, e.HbR, 1e-9)

	// Midpoint between the 760 and 770 table rows.
	e, err = nirs.ExtinctionAt(765)
	require.NoError(t, err)
	assert.InDelta(t, (586.0+650.0)/2, e.HbO, 1e-9)
	assert.InDelta(t, (1548.52+1311.88)/2, e.HbR, 1e-9)

	_, err = nirs.ExtinctionAt(500)
	require.Error(t, err)
	_, err = nirs.ExtinctionAt(1000)
	require.Error(t, err)
}

// TestBeerLambertActivation checks the sign and magnitude of recovered
// concentration changes for a synthetic activation: a stronger amplitude
// drop at 850 nm than at 760 nm means more oxygenated and less
// deoxygenated hemoglobin.
func TestBeerLambertActivation(t *testing.T) {
	const (
		nt     = 100
		od760  = 0.002
		od850  = 0.01
		dist   = 30.0
		factor = dist * 6 * 1e-7
	)

	time := make([]float64, nt)
	v760 := make([]float64, nt)
	v850 := make([]float64, nt)
	active := func(i int) bool { return i >= 40 && i < 60 }
	for i := 0; i < nt; i++ {
		time[i] = float64(i) * 0.1
		v760[i] = 1
		v850[i] = 1
		if active(i) {
			v760[i] = math.Exp(-od760)
			v850[i] = math.Exp(-od850)
		}
	}

	ts := &nirs.Timeseries{
		Channels: testChannels(),
		Time:     time,
		Values:   [][]float64{v760, v850},
	}

	conc, err := nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.NoError(t, err)

	require.Len(t, conc.Pairs, 1)
	assert.Equal(t, "S1D1", conc.Pairs[0].Name())
	assert.InDelta(t, 30.0, conc.Pairs[0].Distance, 1e-9)
	require.Len(t, conc.HbO, 1)
	require.Len(t, conc.HbR, 1)

	// The time-mean baseline cancels in differences between samples, so
	// solve the 2x2 extinction system for the step height directly.
	e760, err := nirs.ExtinctionAt(760)
	require.NoError(t, err)
	e850, err := nirs.ExtinctionAt(850)
	require.NoError(t, err)
	a11 := factor * e760.HbO
	a12 := factor * e760.HbR
	a21 := factor * e850.HbO
	a22 := factor * e850.HbR
	det := a11*a22 - a12*a21
	wantHbO := (a22*od760 - a12*od850) / det
	wantHbR := (a11*od850 - a21*od760) / det

	gotHbO := conc.HbO[0][50] - conc.HbO[0][0]
	gotHbR := conc.HbR[0][50] - conc.HbR[0][0]
	assert.InDelta(t, wantHbO, gotHbO, 1e-9)
	assert.InDelta(t, wantHbR, gotHbR, 1e-9)

	assert.Greater(t, gotHbO, 0.0)
	assert.Less(t, gotHbR, 0.0)
}

func TestBeerLambertPairValidation(t *testing.T) {
	time := []float64{0, 0.1}

	// A pair measured at only one wavelength is rejected.
	ts := &nirs.Timeseries{
		Channels: testChannels()[:1],
		Time:     time,
		Values:   [][]float64{{1, 1}},
	}
	_, err := nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")

	// Duplicate wavelengths within a pair are rejected.
	ts = &nirs.Timeseries{
		Channels: []nirs.Channel{
			{SourceIndex: 1, DetectorIndex: 1, Wavelength: 760},
			{SourceIndex: 1, DetectorIndex: 1, Wavelength: 760},
		},
		Time:   time,
		Values: [][]float64{{1, 1}, {1, 1}},
	}
	_, err = nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measured twice")

	// Pairs outside the probe geometry are rejected.
	ts = &nirs.Timeseries{
		Channels: []nirs.Channel{
			{SourceIndex: 5, DetectorIndex: 1, Wavelength: 760},
			{SourceIndex: 5, DetectorIndex: 1, Wavelength: 850},
		},
		Time:   time,
		Values: [][]float64{{1, 1}, {1, 1}},
	}
	_, err = nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe geometry")
}

func TestBeerLambertLengthUnits(t *testing.T) {
	ts := &nirs.Timeseries{
		Channels: testChannels(),
		Time:     []float64{0, 0.1, 0.2},
		Values:   [][]float64{{1, 1.01, 1}, {1, 1.02, 1}},
	}

	probeCM := testProbe()
	probeCM.LengthUnit = "cm"
	probeCM.DetectorPos = [][3]float64{{3, 0, 0}}

	mm, err := nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.NoError(t, err)
	cm, err := nirs.BeerLambert(ts, probeCM, nirs.DefaultDPF())
	require.NoError(t, err)

	// 3 cm and 30 mm describe the same geometry.
	assert.InDelta(t, mm.Pairs[0].Distance, cm.Pairs[0].Distance, 1e-9)
	assert.InDelta(t, mm.HbO[0][1], cm.HbO[0][1], 1e-12)

	bad := testProbe()
	bad.LengthUnit = "furlong"
	_, err = nirs.BeerLambert(ts, bad, nirs.DefaultDPF())
	require.Error(t, err)
}

// TestDefaultDPF checks that wavelengths without a table entry resolve
// to the default factor of 6.
func TestDefaultDPF(t *testing.T) {
	ts := &nirs.Timeseries{
		Channels: testChannels(),
		Time:     []float64{0, 0.1, 0.2},
		Values:   [][]float64{{1, 1.01, 1}, {1, 1.02, 1}},
	}

	def, err := nirs.BeerLambert(ts, testProbe(), nirs.DefaultDPF())
	require.NoError(t, err)
	explicit, err := nirs.BeerLambert(ts, testProbe(), nirs.DPF{760: 6, 850: 6})
	require.NoError(t, err)
	assert.Equal(t, explicit.HbO, def.HbO)
	assert.Equal(t, explicit.HbR, def.HbR)

	halved, err := nirs.BeerLambert(ts, testProbe(), nirs.DPF{760: 3, 850: 3})
	require.NoError(t, err)
	assert.InDelta(t, 2*def.HbO[0][1], halved.HbO[0][1], 1e-12)
}
