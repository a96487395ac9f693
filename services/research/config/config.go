// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the research service's engine configuration.
//
// Endpoints and credentials stay in environment variables (service
// convention); this file only carries engine defaults that an operator
// tunes per deployment.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

var configValidator = validator.New()

// Config is the engine configuration file shape.
type Config struct {
	// Defaults seed every run whose request did not override them.
	Defaults datatypes.RunConfig `yaml:"defaults"`

	// SearchLimit is the chunk count per semantic-search query.
	SearchLimit int `yaml:"search_limit" validate:"gte=0,lte=50"`

	// OutboundRatePerSecond throttles web search and page extraction.
	OutboundRatePerSecond float64 `yaml:"outbound_rate_per_second" validate:"gte=0"`

	// StorePath is the BadgerDB directory for run persistence. Empty
	// selects the in-memory store.
	StorePath string `yaml:"store_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Defaults: datatypes.RunConfig{
			MaxSteps:    datatypes.DefaultMaxSteps,
			Temperature: 0.2,
		},
		SearchLimit:           8,
		OutboundRatePerSecond: 2,
	}
}

// Load reads the YAML config at path. A missing file is not an error:
// the defaults apply, matching how the service runs in development.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("Config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	cfg.Defaults.EnsureDefaults()

	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run defaults in %s: %w", path, err)
	}

	slog.Info("Loaded engine config", "path", path,
		"max_steps", cfg.Defaults.MaxSteps, "search_limit", cfg.SearchLimit)
	return cfg, nil
}
