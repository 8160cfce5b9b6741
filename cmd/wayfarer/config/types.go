// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the wayfarer YAML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/orchestrator"
	"github.com/AleutianAI/wayfarer/services/search/tavily"
	"github.com/AleutianAI/wayfarer/services/telemetry"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

// Checkpoint backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// WayfarerConfig is the root of wayfarer.yaml.
type WayfarerConfig struct {
	Version      string              `yaml:"version"`
	Server       orchestrator.Config `yaml:"server"`
	Planner      PlannerConfig       `yaml:"planner"`
	Search       SearchConfig        `yaml:"search"`
	ModelBackend ModelConfig         `yaml:"model_backend"`
	Output       OutputConfig        `yaml:"output"`
	Checkpoints  CheckpointConfig    `yaml:"checkpoints"`
	Telemetry    telemetry.Config    `yaml:"telemetry"`
	Logging      LoggingConfig       `yaml:"logging"`
}

// PlannerConfig tunes the planning graph and its nodes.
type PlannerConfig struct {
	SearchConcurrency int           `yaml:"search_concurrency"`
	SelectionTimeout  time.Duration `yaml:"selection_timeout"`
	ContextBudget     int           `yaml:"context_budget"`
	Temperature       float32       `yaml:"temperature"`
	LoopLimit         int           `yaml:"loop_limit"`
	MaxSteps          int           `yaml:"max_steps"`
	RetainCompleted   bool          `yaml:"retain_completed"`
}

// SecretSource names where an API key comes from.
type SecretSource struct {
	APIKeyEnv  string `yaml:"api_key_env"`
	SecretFile string `yaml:"secret_file"`
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	Provider      string `yaml:"provider"`
	SecretSource  `yaml:",inline"`
	tavily.Config `yaml:",inline"`
}

// ModelConfig configures the language model backend.
type ModelConfig struct {
	SecretSource `yaml:",inline"`
	llm.Config   `yaml:",inline"`
}

// NeedsKey reports whether the backend authenticates with an API key.
func (m ModelConfig) NeedsKey() bool {
	return !strings.EqualFold(m.Type, "ollama")
}

// GCSConfig enables mirroring artifacts to Cloud Storage.
type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// OutputConfig locates published itineraries.
type OutputConfig struct {
	Dir    string    `yaml:"dir"`
	Format string    `yaml:"format"`
	GCS    GCSConfig `yaml:"gcs"`
}

// CheckpointConfig selects where planning threads are saved.
type CheckpointConfig struct {
	// Backend is "memory", "file" or "badger".
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() WayfarerConfig {
	return WayfarerConfig{
		Version: CurrentConfigVersion,
		Server: orchestrator.Config{
			Port:            12310,
			GinMode:         "release",
			ServiceName:     "wayfarer",
			EnableMetrics:   true,
			ShutdownTimeout: 15 * time.Second,
		},
		Planner: PlannerConfig{
			SearchConcurrency: 4,
			SelectionTimeout:  10 * time.Minute,
			ContextBudget:     60000,
			LoopLimit:         3,
			MaxSteps:          50,
		},
		Search: SearchConfig{
			Provider: "tavily",
			SecretSource: SecretSource{
				APIKeyEnv:  "TAVILY_API_KEY",
				SecretFile: "/run/secrets/tavily_api_key",
			},
			Config: tavily.DefaultConfig(),
		},
		ModelBackend: ModelConfig{
			SecretSource: SecretSource{
				APIKeyEnv:  "ANTHROPIC_API_KEY",
				SecretFile: "/run/secrets/anthropic_api_key",
			},
			Config: llm.Config{
				Type:    "anthropic",
				Timeout: 90 * time.Second,
			},
		},
		Output: OutputConfig{
			Dir:    "itineraries",
			Format: "pdf",
		},
		Checkpoints: CheckpointConfig{
			Backend: BackendBadger,
			Path:    "~/.wayfarer/threads",
			TTL:     7 * 24 * time.Hour,
		},
		Telemetry: telemetry.Config{
			ServiceName:    "wayfarer",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterPrometheus,
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.wayfarer/logs",
		},
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c WayfarerConfig) Validate() error {
	switch c.Checkpoints.Backend {
	case BackendMemory:
	case BackendFile, BackendBadger:
		if c.Checkpoints.Path == "" {
			return fmt.Errorf("checkpoints.path is required for the %s backend", c.Checkpoints.Backend)
		}
	default:
		return fmt.Errorf("checkpoints.backend %q: must be one of memory, file, badger", c.Checkpoints.Backend)
	}
	if c.Checkpoints.TTL < 0 {
		return fmt.Errorf("checkpoints.ttl must not be negative")
	}
	if !strings.EqualFold(c.Search.Provider, "tavily") {
		return fmt.Errorf("search.provider %q: only tavily is supported", c.Search.Provider)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Output.GCS.Enabled && c.Output.GCS.Bucket == "" {
		return fmt.Errorf("output.gcs.bucket is required when gcs is enabled")
	}
	if c.Planner.LoopLimit < 0 || c.Planner.MaxSteps < 0 {
		return fmt.Errorf("planner.loop_limit and planner.max_steps must not be negative")
	}
	return nil
}
