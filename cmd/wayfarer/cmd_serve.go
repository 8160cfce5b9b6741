// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfarer/services/orchestrator"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger(), appOptions{
		serverMetrics: cfg.Server.EnableMetrics,
		telemetry:     true,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger().Warn("shutdown incomplete", "error", err)
		}
	}()

	svc, err := orchestrator.New(cfg.Server, a.planner, a.metrics)
	if err != nil {
		return err
	}
	logger().Info("wayfarer server starting",
		"port", cfg.Server.Port,
		"checkpoints", cfg.Checkpoints.Backend,
		"model_backend", cfg.ModelBackend.Type)
	return svc.Run(ctx)
}
