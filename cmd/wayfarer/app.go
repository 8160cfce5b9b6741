// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/wayfarer/cmd/wayfarer/config"
	"github.com/AleutianAI/wayfarer/pkg/secrets"
	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/orchestrator/observability"
	"github.com/AleutianAI/wayfarer/services/planner/artifacts"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/nodes"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
	"github.com/AleutianAI/wayfarer/services/search/tavily"
	badgerstore "github.com/AleutianAI/wayfarer/services/storage/badger"
	"github.com/AleutianAI/wayfarer/services/telemetry"
)

// appOptions selects the optional parts of an app.
type appOptions struct {
	// serverMetrics registers the Prometheus planner metrics.
	serverMetrics bool

	// telemetry initializes the configured otel exporters.
	telemetry bool
}

// app holds everything a planning command needs.
type app struct {
	cfg     config.WayfarerConfig
	logger  *slog.Logger
	planner *workflow.Planner
	metrics *observability.PlannerMetrics

	closers []func(context.Context) error
}

// newApp builds the planner from cfg: API keys, providers, artifact
// sinks, checkpoint store, and optionally telemetry and metrics.
func newApp(ctx context.Context, cfg config.WayfarerConfig, logger *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	if opts.telemetry {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	caps, err := a.capabilities(ctx)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg.Checkpoints, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeStore() })

	g, err := workflow.Build(caps, workflow.Options{
		Nodes: nodes.Config{
			SearchConcurrency: cfg.Planner.SearchConcurrency,
			SelectionTimeout:  cfg.Planner.SelectionTimeout,
			ContextBudget:     cfg.Planner.ContextBudget,
			Temperature:       cfg.Planner.Temperature,
		},
		LoopLimit: cfg.Planner.LoopLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build planning graph: %w", err)
	}

	var metrics workflow.Metrics
	if opts.serverMetrics {
		a.metrics = observability.NewPlannerMetrics(nil)
		metrics = a.metrics
	}
	a.planner, err = workflow.NewPlanner(g, store, logger, graph.ExecutorConfig{
		MaxSteps:        cfg.Planner.MaxSteps,
		RetainCompleted: cfg.Planner.RetainCompleted,
	}, metrics)
	if err != nil {
		return nil, fmt.Errorf("create planner: %w", err)
	}
	return a, nil
}

func (a *app) capabilities(ctx context.Context) (workflow.Capabilities, error) {
	cfg := a.cfg
	searchKey, err := secrets.Lookup("tavily", cfg.Search.APIKeyEnv, cfg.Search.SecretFile)
	if err != nil {
		return workflow.Capabilities{}, fmt.Errorf("search API key (set %s or %s): %w",
			cfg.Search.APIKeyEnv, cfg.Search.SecretFile, err)
	}
	searcher := tavily.New(cfg.Search.Config, searchKey)

	var modelKey *secrets.Key
	if cfg.ModelBackend.NeedsKey() {
		modelKey, err = secrets.Lookup(cfg.ModelBackend.Type, cfg.ModelBackend.APIKeyEnv, cfg.ModelBackend.SecretFile)
		if err != nil {
			return workflow.Capabilities{}, fmt.Errorf("model API key (set %s or %s): %w",
				cfg.ModelBackend.APIKeyEnv, cfg.ModelBackend.SecretFile, err)
		}
	}
	model, err := llm.New(cfg.ModelBackend.Config, modelKey)
	if err != nil {
		return workflow.Capabilities{}, fmt.Errorf("model backend: %w", err)
	}

	local, err := artifacts.NewLocalSink(cfg.Output.Dir)
	if err != nil {
		return workflow.Capabilities{}, err
	}
	var sink artifacts.Sink = local
	if cfg.Output.GCS.Enabled {
		gcs, err := artifacts.NewGCSSink(ctx, artifacts.GCSConfig{
			Bucket:          cfg.Output.GCS.Bucket,
			Prefix:          cfg.Output.GCS.Prefix,
			CredentialsFile: cfg.Output.GCS.CredentialsFile,
		})
		if err != nil {
			return workflow.Capabilities{}, err
		}
		a.closers = append(a.closers, func(context.Context) error { return gcs.Close() })
		sink = artifacts.NewMirrorSink(local, a.logger, gcs)
	}

	return workflow.Capabilities{
		Searcher:  searcher,
		Extractor: searcher,
		Model:     model,
		Sink:      sink,
	}, nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore opens the configured checkpoint backend.
func openStore(cfg config.CheckpointConfig, logger *slog.Logger) (graph.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return graph.NewMemoryStore(), noop, nil

	case config.BackendFile:
		store, err := graph.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig()
		bcfg.Path = cfg.Path
		bcfg.Logger = logger
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open checkpoint database (is a server already using %s?): %w", cfg.Path, err)
		}
		store, err := badgerstore.NewCheckpointStore(db, cfg.TTL)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
