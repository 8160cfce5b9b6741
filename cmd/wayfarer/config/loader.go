// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "WAYFARER_CONFIG"

// DefaultPath returns ~/.wayfarer/wayfarer.yaml, or $WAYFARER_CONFIG when
// set.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".wayfarer", "wayfarer.yaml"), nil
}

// Load reads the config at path, creating it with defaults on first run.
// An empty path uses DefaultPath. Values missing from the file keep their
// defaults.
func Load(path string) (WayfarerConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return WayfarerConfig{}, err
		}
		path = p
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, " First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return WayfarerConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WayfarerConfig{}, fmt.Errorf("failed to read the config file %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (WayfarerConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WayfarerConfig{}, fmt.Errorf("failed to parse the config: %w", err)
	}
	cfg.Checkpoints.Path = ExpandPath(cfg.Checkpoints.Path)
	cfg.Output.Dir = ExpandPath(cfg.Output.Dir)
	cfg.Logging.Dir = ExpandPath(cfg.Logging.Dir)
	if err := cfg.Validate(); err != nil {
		return WayfarerConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
