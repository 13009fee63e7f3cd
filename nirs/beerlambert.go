// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nirs

import (
	"fmt"
	"math"
	"sort"

	"github.com/OpenPSG/snirf"
)

// DPF maps a wavelength in nm to its differential pathlength factor.
// Wavelengths without an entry resolve to 6, the customary value for
// adult head measurements.
type DPF map[float64]float64

// DefaultDPF returns an empty table, so every wavelength resolves to
// the default factor of 6.
func DefaultDPF() DPF {
	return DPF{}
}

// at returns the factor for a wavelength, defaulting to 6.
func (d DPF) at(wavelength float64) float64 {
	if v, ok := d[wavelength]; ok {
		return v
	}
	return 6
}

// Pair is a source-detector pair with its geometric separation.
type Pair struct {
	SourceIndex   int     // 1-based
	DetectorIndex int     // 1-based
	Distance      float64 // mm
}

// Name returns a short pair name like "S1D2".
func (p Pair) Name() string {
	return fmt.Sprintf("S%dD%d", p.SourceIndex, p.DetectorIndex)
}

// Concentration holds hemoglobin concentration changes per source-detector
// pair, in µM.
type Concentration struct {
	Pairs []Pair
	Time  []float64
	HbO   [][]float64 // HbO[p][t]
	HbR   [][]float64 // HbR[p][t]
}

// extinctionScale converts tabulated cm⁻¹/M coefficients to µM⁻¹·mm⁻¹ so
// concentrations come out in µM over millimeter paths.
const extinctionScale = 1e-7

// BeerLambert converts raw amplitudes to hemoglobin concentration changes
// via the modified Beer-Lambert law. Channels are grouped into
// source-detector pairs; each pair must be measured at exactly two
// wavelengths. Distances come from the probe geometry and are
// converted to millimeters using the probe's length unit.
func BeerLambert(ts *Timeseries, probe snirf.Probe, dpf DPF) (*Concentration, error) {
	od, err := OpticalDensity(ts)
	if err != nil {
		return nil, err
	}
	return beerLambertOD(od, probe, dpf)
}

func beerLambertOD(od *Timeseries, probe snirf.Probe, dpf DPF) (*Concentration, error) {
	scale, err := lengthScale(probe.LengthUnit)
	if err != nil {
		return nil, err
	}

	type key struct{ s, d int }
	groups := make(map[key][]int)
	var order []key
	for i, ch := range od.Channels {
		k := key{ch.SourceIndex, ch.DetectorIndex}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].s != order[j].s {
			return order[i].s < order[j].s
		}
		return order[i].d < order[j].d
	})

	conc := &Concentration{Time: od.Time}
	for _, k := range order {
		chans := groups[k]
		if len(chans) != 2 {
			return nil, fmt.Errorf("nirs: pair S%dD%d has %d wavelengths, expected 2", k.s, k.d, len(chans))
		}
		c1, c2 := chans[0], chans[1]
		if od.Channels[c1].Wavelength == od.Channels[c2].Wavelength {
			return nil, fmt.Errorf("nirs: pair S%dD%d measured twice at %g nm", k.s, k.d, od.Channels[c1].Wavelength)
		}

		if k.s < 1 || k.s > len(probe.SourcePos) || k.d < 1 || k.d > len(probe.DetectorPos) {
			return nil, fmt.Errorf("nirs: pair S%dD%d outside probe geometry", k.s, k.d)
		}
		dist := probe.SourceDetectorDistance(k.s, k.d) * scale
		if dist <= 0 {
			return nil, fmt.Errorf("nirs: pair S%dD%d has zero source-detector distance", k.s, k.d)
		}

		w1 := od.Channels[c1].Wavelength
		w2 := od.Channels[c2].Wavelength
		e1, err := ExtinctionAt(w1)
		if err != nil {
			return nil, err
		}
		e2, err := ExtinctionAt(w2)
		if err != nil {
			return nil, err
		}

		// od = dist * [dpf1*e1.HbO dpf1*e1.HbR; dpf2*e2.HbO dpf2*e2.HbR] * [HbO; HbR]
		a11 := dist * dpf.at(w1) * e1.HbO * extinctionScale
		a12 := dist * dpf.at(w1) * e1.HbR * extinctionScale
		a21 := dist * dpf.at(w2) * e2.HbO * extinctionScale
		a22 := dist * dpf.at(w2) * e2.HbR * extinctionScale
		det := a11*a22 - a12*a21
		if math.Abs(det) < 1e-30 {
			return nil, fmt.Errorf("nirs: pair S%dD%d has a singular extinction system at %g/%g nm", k.s, k.d, w1, w2)
		}

		hbo := make([]float64, len(od.Time))
		hbr := make([]float64, len(od.Time))
		for t := range od.Time {
			od1 := od.Values[c1][t]
			od2 := od.Values[c2][t]
			hbo[t] = (a22*od1 - a12*od2) / det
			hbr[t] = (a11*od2 - a21*od1) / det
		}

		conc.Pairs = append(conc.Pairs, Pair{SourceIndex: k.s, DetectorIndex: k.d, Distance: dist})
		conc.HbO = append(conc.HbO, hbo)
		conc.HbR = append(conc.HbR, hbr)
	}
	return conc, nil
}

// lengthScale converts the probe's length unit to millimeters.
func lengthScale(unit string) (float64, error) {
	switch unit {
	case "", "mm":
		return 1, nil
	case "cm":
		return 10, nil
	case "m":
		return 1000, nil
	}
	return 0, fmt.Errorf("nirs: unsupported length unit %q", unit)
}
