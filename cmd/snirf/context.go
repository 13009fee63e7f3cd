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
	"log/slog"
	"strings"
	"sync"

	"github.com/OpenPSG/snirf/internal/config"
	"github.com/OpenPSG/snirf/internal/logging"
)

type commandContext struct {
	configFlag *string

	once     sync.Once
	config   config.Config
	logger   *slog.Logger
	setupErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// setup resolves the configuration file and builds the logger once per
// invocation.
func (c *commandContext) setup() (config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.setupErr = err
			return
		}
		log, err := logging.New(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
		if err != nil {
			c.setupErr = err
			return
		}
		c.config = cfg
		c.logger = log
	})
	return c.config, c.logger, c.setupErr
}

// dataDir resolves the directory argument, falling back to the
// configured data directory.
func (c *commandContext) dataDir(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	cfg, _, err := c.setup()
	if err != nil {
		return "", err
	}
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return ".", nil
}
