// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenPSG/snirf/internal/logging"
)

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	log.Info("hello", "answer", 42)
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "answer=42")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(logging.Options{Format: "json", Writer: &buf})
	require.NoError(t, err)

	log.Info("hello", "answer", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, float64(42), entry["answer"])
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New(logging.Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}
