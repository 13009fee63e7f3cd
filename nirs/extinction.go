// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nirs

import "fmt"

// Extinction holds the molar extinction coefficients of oxygenated and
// deoxygenated hemoglobin at one wavelength, in cm⁻¹/M.
type Extinction struct {
	HbO float64
	HbR float64
}

// Molar extinction coefficients from the Prahl compilation, 650-900 nm in
// 10 nm steps. Values are cm⁻¹/M.
var extinctionTable = []struct {
	wavelength float64
	e          Extinction
}{
	{650, Extinction{HbO: 368.0, HbR: 3750.12}},
	{660, Extinction{HbO: 319.6, HbR: 3226.56}},
	{670, Extinction{HbO: 294.0, HbR: 2795.12}},
	{680, Extinction{HbO: 277.6, HbR: 2407.92}},
	{690, Extinction{HbO: 276.0, HbR: 2051.96}},
	{700, Extinction{HbO: 290.0, HbR: 1794.28}},
	{710, Extinction{HbO: 314.0, HbR: 1540.48}},
	{720, Extinction{HbO: 348.0, HbR: 1325.88}},
	{730, Extinction{HbO: 390.0, HbR: 1102.20}},
	{740, Extinction{HbO: 446.0, HbR: 1115.88}},
	{750, Extinction{HbO: 518.0, HbR: 1405.24}},
	{760, Extinction{HbO: 586.0, HbR: 1548.52}},
	{770, Extinction{HbO: 650.0, HbR: 1311.88}},
	{780, Extinction{HbO: 710.0, HbR: 1075.44}},
	{790, Extinction{HbO: 774.0, HbR: 896.80}},
	{800, Extinction{HbO: 816.0, HbR: 761.72}},
	{810, Extinction{HbO: 864.0, HbR: 717.08}},
	{820, Extinction{HbO: 916.0, HbR: 693.76}},
	{830, Extinction{HbO: 974.0, HbR: 693.04}},
	{840, Extinction{HbO: 1022.0, HbR: 692.36}},
	{850, Extinction{HbO: 1058.0, HbR: 691.32}},
	{860, Extinction{HbO: 1092.0, HbR: 691.96}},
	{870, Extinction{HbO: 1116.0, HbR: 698.04}},
	{880, Extinction{HbO: 1154.0, HbR: 726.44}},
	{890, Extinction{HbO: 1178.0, HbR: 743.60}},
	{900, Extinction{HbO: 1198.0, HbR: 761.84}},
}

// ExtinctionAt returns the extinction coefficients at the given
// wavelength, linearly interpolated between table entries. Wavelengths
// outside the tabulated 650-900 nm range are an error.
func ExtinctionAt(wavelength float64) (Extinction, error) {
	first := extinctionTable[0]
	last := extinctionTable[len(extinctionTable)-1]
	if wavelength < first.wavelength || wavelength > last.wavelength {
		return Extinction{}, fmt.Errorf("nirs: wavelength %g nm outside tabulated range %g-%g nm",
			wavelength, first.wavelength, last.wavelength)
	}
	for i := 1; i < len(extinctionTable); i++ {
		hi := extinctionTable[i]
		if wavelength > hi.wavelength {
			continue
		}
		lo := extinctionTable[i-1]
		frac := (wavelength - lo.wavelength) / (hi.wavelength - lo.wavelength)
		return Extinction{
			HbO: lo.e.HbO + frac*(hi.e.HbO-lo.e.HbO),
			HbR: lo.e.HbR + frac*(hi.e.HbR-lo.e.HbR),
		}, nil
	}
	return last.e, nil
}
