// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package study_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/OpenPSG/snirf"
	"github.com/OpenPSG/snirf/internal/snirftest"
	"github.com/OpenPSG/snirf/nirs"
	"github.com/OpenPSG/snirf/study"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanOrder(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "sub_a.snirf", snirftest.Options{})
	snirftest.WriteFile(t, dir, "sub_b.snirf", snirftest.Options{})
	snirftest.WriteFile(t, dir, "nested/sub_c.snirf", snirftest.Options{})
	snirftest.WriteFile(t, dir, "ignored.txt.notsnirf", snirftest.Options{})

	paths, err := study.Scan(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	// Reverse lexical order.
	assert.Contains(t, paths[0], "sub_b.snirf")
	assert.Contains(t, paths[1], "sub_a.snirf")
	assert.Contains(t, paths[2], "sub_c.snirf")
}

func TestSubjectLabels(t *testing.T) {
	assert.Equal(t, []string{"sub-01", "sub-02", "sub-03"}, study.SubjectLabels(3))
	assert.Empty(t, study.SubjectLabels(0))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "a.snirf", snirftest.Options{SubjectID: "alpha"})
	snirftest.WriteFile(t, dir, "b.snirf", snirftest.Options{SubjectID: "beta"})

	st, err := study.Load(context.Background(), dir, study.Options{Logger: quietLogger()})
	require.NoError(t, err)

	require.Equal(t, []string{"sub-01", "sub-02"}, st.Order)
	require.Len(t, st.Subjects, 2)

	// b.snirf sorts first in reverse lexical order.
	assert.Equal(t, "beta", st.Subjects["sub-01"].Tags["SubjectID"])
	assert.Equal(t, "alpha", st.Subjects["sub-02"].Tags["SubjectID"])

	sub := st.Subjects["sub-01"]
	require.NotNil(t, sub.Amp)
	require.NotNil(t, sub.OD)
	require.NotNil(t, sub.Conc)
	assert.Len(t, sub.Amp.Channels, 4)
	assert.Len(t, sub.Conc.Pairs, 2)
	assert.Equal(t, []float64{760, 850}, sub.Geo.Wavelengths)

	// Optical density of the loaded amplitudes matches a direct
	// conversion.
	od, err := nirs.OpticalDensity(sub.Amp)
	require.NoError(t, err)
	assert.Equal(t, od.Values, sub.OD.Values)
}

func TestLoadEmptyDir(t *testing.T) {
	_, err := study.Load(context.Background(), t.TempDir(), study.Options{Logger: quietLogger()})
	require.Error(t, err)
}

func TestLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "a.snirf", snirftest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := study.Load(ctx, dir, study.Options{Logger: quietLogger()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlockAverages(t *testing.T) {
	// One pair, ten 1-second samples. HbO steps to 1 µM during [2, 4),
	// HbR mirrors it negatively.
	time := make([]float64, 10)
	hbo := make([]float64, 10)
	hbr := make([]float64, 10)
	for i := range time {
		time[i] = float64(i)
		if i >= 2 && i < 4 {
			hbo[i] = 1
			hbr[i] = -0.5
		}
	}

	sub := &study.Subject{
		Label: "sub-01",
		Conc: &nirs.Concentration{
			Pairs: []nirs.Pair{{SourceIndex: 1, DetectorIndex: 1, Distance: 30}},
			Time:  time,
			HbO:   [][]float64{hbo},
			HbR:   [][]float64{hbr},
		},
		Stims: []snirf.Stim{
			{Name: "tapping", Events: []snirf.StimEvent{{Onset: 2, Duration: 2, Value: 1}}},
		},
	}

	feats := sub.BlockAverages(2)
	require.Len(t, feats, 2)

	assert.Equal(t, "sub-01", feats[0].Subject)
	assert.Equal(t, "S1D1", feats[0].Pair)
	assert.Equal(t, "HbO", feats[0].Chromophore)
	assert.Equal(t, "tapping", feats[0].Condition)
	assert.Equal(t, 1, feats[0].Events)
	assert.InDelta(t, 1.0, feats[0].Value, 1e-12)

	assert.Equal(t, "HbR", feats[1].Chromophore)
	assert.InDelta(t, -0.5, feats[1].Value, 1e-12)

	// Events fully outside the recording produce no features.
	sub.Stims[0].Events[0].Onset = 100
	assert.Empty(t, sub.BlockAverages(2))

	// An onset at the start of the recording has no baseline samples and
	// falls back to a zero baseline.
	sub.Stims[0].Events[0].Onset = 0
	feats = sub.BlockAverages(2)
	require.Len(t, feats, 2)
	assert.InDelta(t, 0.0, feats[0].Value, 1e-12)

	sub.Stims[0].Events[0].Duration = 3
	feats = sub.BlockAverages(2)
	require.Len(t, feats, 2)
	assert.InDelta(t, 1.0/3, feats[0].Value, 1e-12)
	assert.InDelta(t, -0.5/3, feats[1].Value, 1e-12)
}

func TestStoreExport(t *testing.T) {
	dir := t.TempDir()
	stims := []snirftest.Stim{
		{Name: "control", Events: [][3]float64{{0.5, 1, 1}, {2.5, 1, 1}}},
		{Name: "tapping", Events: [][3]float64{{1.5, 1, 2}}},
	}
	snirftest.WriteFile(t, dir, "a.snirf", snirftest.Options{Stims: stims})
	snirftest.WriteFile(t, dir, "b.snirf", snirftest.Options{Stims: stims})

	st, err := study.Load(context.Background(), dir, study.Options{Logger: quietLogger()})
	require.NoError(t, err)

	store, err := study.OpenStore(dir + "/features.db")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	res, err := store.Export(context.Background(), st, dir, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	// 2 subjects x 2 conditions x 2 pairs x 2 chromophores.
	assert.Equal(t, 16, res.Features)

	feats, err := store.Features(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, feats, 16)
	assert.Equal(t, "sub-01", feats[0].Subject)
	assert.Equal(t, "control", feats[0].Condition)

	// A second export creates an independent run.
	res2, err := store.Export(context.Background(), st, dir, 0.5)
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, res2.RunID)
	feats2, err := store.Features(context.Background(), res2.RunID)
	require.NoError(t, err)
	assert.Len(t, feats2, 16)
}
