// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenPSG/snirf/internal/snirftest"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	dir := t.TempDir()
	path := snirftest.WriteFile(t, dir, "rec.snirf", snirftest.Options{
		SubjectID: "alpha",
		Stims:     []snirftest.Stim{{Name: "tapping", Events: [][3]float64{{1, 2, 1}}}},
	})

	out, err := runCommand(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "tapping")
	assert.Contains(t, out, "S1D1")
}

func TestInfoCommandMissingFile(t *testing.T) {
	_, err := runCommand(t, "info", filepath.Join(t.TempDir(), "absent.snirf"))
	require.Error(t, err)
}

func TestLoadCommand(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "a.snirf", snirftest.Options{SubjectID: "alpha"})
	snirftest.WriteFile(t, dir, "b.snirf", snirftest.Options{SubjectID: "beta"})

	out, err := runCommand(t, "load", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "sub-01")
	assert.Contains(t, out, "sub-02")
	assert.Contains(t, out, "a.snirf")
	assert.Contains(t, out, "b.snirf")
}

// TestLoadCommandCancelled checks that the context handed to
// ExecuteContext reaches the load pipeline, the way main wires in the
// signal-notified context.
func TestLoadCommandCancelled(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "a.snirf", snirftest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"load", dir})
	err := cmd.ExecuteContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	snirftest.WriteFile(t, dir, "rec.snirf", snirftest.Options{
		Stims: []snirftest.Stim{{Name: "tapping", Events: [][3]float64{{1, 1, 1}}}},
	})
	dbPath := filepath.Join(t.TempDir(), "features.db")

	out, err := runCommand(t, "export", dir, "--db", dbPath, "--baseline", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "from 1 subjects")
	assert.FileExists(t, dbPath)
}

func TestConfigSampleCommand(t *testing.T) {
	out, err := runCommand(t, "config", "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "baseline_seconds")
	assert.Contains(t, out, "[log]")
}

func TestConfigShowCommand(t *testing.T) {
	out, err := runCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `log.level = "info"`)
}
