// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package study loads multi-subject fNIRS studies: it scans a directory
// for SNIRF recordings, derives optical density and hemoglobin
// concentration per subject, and aggregates the results keyed by subject
// label, ready for feature extraction.
package study

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OpenPSG/snirf"
	"github.com/OpenPSG/snirf/nirs"
)

// Subject bundles everything derived from one recording.
type Subject struct {
	Label string // e.g. "sub-01"
	Path  string

	Tags  map[string]string
	Amp   *nirs.Timeseries    // Raw amplitudes
	OD    *nirs.Timeseries    // Optical density
	Conc  *nirs.Concentration // Hemoglobin concentration changes
	Geo   snirf.Probe
	Stims []snirf.Stim
}

// Study is a labeled collection of subjects.
type Study struct {
	Subjects map[string]*Subject
	Order    []string // Subject labels in load order
}

// Options controls loading.
type Options struct {
	DPF    nirs.DPF
	Logger *slog.Logger
}

// Scan returns the SNIRF files under dir, recursively, in reverse
// lexical order.
func Scan(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".snirf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", dir, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// SubjectLabels returns n labels of the form sub-01, sub-02, ...
func SubjectLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("sub-%02d", i+1)
	}
	return labels
}

// Load scans dir and loads every recording into a Study. Subjects are
// labeled in scan order. The first failure aborts the load.
func Load(ctx context.Context, dir string, opts Options) (*Study, error) {
	paths, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("study: no SNIRF files under %s", dir)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dpf := opts.DPF
	if dpf == nil {
		dpf = nirs.DefaultDPF()
	}

	st := &Study{Subjects: make(map[string]*Subject)}
	labels := SubjectLabels(len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Info("loading recording", "subject", labels[i], "path", path)

		sub, err := loadSubject(path, labels[i], dpf)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", path, err)
		}
		st.Subjects[sub.Label] = sub
		st.Order = append(st.Order, sub.Label)
	}
	return st, nil
}

func loadSubject(path, label string, dpf nirs.DPF) (*Subject, error) {
	f, err := snirf.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec := f.Recordings()[0]
	blk := rec.Data[0]

	amp, err := nirs.FromBlock(blk, rec.Probe)
	if err != nil {
		return nil, err
	}
	od, err := nirs.OpticalDensity(amp)
	if err != nil {
		return nil, err
	}
	conc, err := nirs.BeerLambert(amp, rec.Probe, dpf)
	if err != nil {
		return nil, err
	}

	return &Subject{
		Label: label,
		Path:  path,
		Tags:  rec.MetaDataTags,
		Amp:   amp,
		OD:    od,
		Conc:  conc,
		Geo:   rec.Probe,
		Stims: rec.Stims,
	}, nil
}

// Feature is one block-averaged concentration change, the unit of export
// for downstream classification.
type Feature struct {
	Subject     string
	Pair        string  // e.g. "S1D1"
	Chromophore string  // "HbO" or "HbR"
	Condition   string  // Stimulus name
	Value       float64 // Baseline-corrected mean, µM
	Events      int     // Number of events averaged
}

// BlockAverages computes per-pair, per-chromophore features: for every
// stimulus event, the mean concentration over [onset, onset+duration]
// minus the mean over a baseline window of the given length before the
// onset, averaged across the events of each condition. An event with no
// samples in the response window is skipped; an event whose baseline
// window holds no samples, such as an onset at the very start of the
// recording, uses a zero baseline.
func (s *Subject) BlockAverages(baseline float64) []Feature {
	var out []Feature
	for _, stim := range s.Stims {
		for p, pair := range s.Conc.Pairs {
			for _, chrom := range []string{"HbO", "HbR"} {
				values := s.Conc.HbO[p]
				if chrom == "HbR" {
					values = s.Conc.HbR[p]
				}

				var sum float64
				var events int
				for _, ev := range stim.Events {
					resp, ok := windowMean(s.Conc.Time, values, ev.Onset, ev.Onset+ev.Duration)
					if !ok {
						continue
					}
					base, ok := windowMean(s.Conc.Time, values, ev.Onset-baseline, ev.Onset)
					if !ok {
						base = 0
					}
					sum += resp - base
					events++
				}
				if events == 0 {
					continue
				}
				out = append(out, Feature{
					Subject:     s.Label,
					Pair:        pair.Name(),
					Chromophore: chrom,
					Condition:   stim.Name,
					Value:       sum / float64(events),
					Events:      events,
				})
			}
		}
	}
	return out
}

// windowMean averages values whose sample time lies in [from, to).
func windowMean(time, values []float64, from, to float64) (float64, bool) {
	var sum float64
	var n int
	for i, t := range time {
		if t >= from && t < to {
			sum += values[i]
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
