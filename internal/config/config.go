// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads CLI configuration from TOML files.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/OpenPSG/snirf/nirs"
)

//go:embed sample_config.toml
var sampleConfig string

// Config is the tool configuration.
type Config struct {
	DataDir         string             `toml:"data_dir"`
	BaselineSeconds float64            `toml:"baseline_seconds"`
	DPF             map[string]float64 `toml:"dpf"`
	Log             Log                `toml:"log"`
}

// Log configures logging output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaselineSeconds: 5,
		Log:             Log{Level: "info", Format: "console"},
	}
}

// Load reads a configuration file, applying defaults for absent fields.
// An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DPFTable converts the configured wavelength-keyed pathlength factors
// into a nirs.DPF.
func (c Config) DPFTable() (nirs.DPF, error) {
	dpf := nirs.DefaultDPF()
	for key, value := range c.DPF {
		wavelength, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("config: dpf key %q is not a wavelength", key)
		}
		dpf[wavelength] = value
	}
	return dpf, nil
}

// Sample returns the annotated sample configuration file.
func Sample() string {
	return sampleConfig
}
