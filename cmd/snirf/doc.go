// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command snirf inspects SNIRF recordings and processes multi-subject
// fNIRS studies: it loads recordings, derives optical density and
// hemoglobin concentration signals, and exports block-averaged features
// for downstream classification.
package main
