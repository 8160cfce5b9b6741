// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator serves the itinerary planner over HTTP.
//
// This package wires the Gin router, OpenTelemetry request tracing, the
// Prometheus metrics endpoint and the planning routes around a
// workflow.Planner built by the caller.
//
// # Usage
//
//	svc, err := orchestrator.New(orchestrator.Config{Port: 12310}, planner, metrics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/wayfarer/services/orchestrator/handlers"
	"github.com/AleutianAI/wayfarer/services/orchestrator/observability"
	"github.com/AleutianAI/wayfarer/services/orchestrator/routes"
)

// Service is the planning HTTP server.
type Service interface {
	// Run starts the HTTP server and blocks until ctx is cancelled or the
	// server fails. Cancellation triggers a graceful shutdown bounded by
	// Config.ShutdownTimeout.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// Config holds server configuration options.
type Config struct {
	// Port to listen on. Default: 12310
	Port int `yaml:"port"`

	// Host to bind. Empty binds every interface.
	Host string `yaml:"host"`

	// GinMode is "release", "debug" or "test". Default: release
	GinMode string `yaml:"gin_mode"`

	// ServiceName names the otelgin server spans. Default: wayfarer
	ServiceName string `yaml:"service_name"`

	// EnableMetrics exposes /metrics from the default Prometheus registry.
	EnableMetrics bool `yaml:"enable_metrics"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type service struct {
	config Config
	router *gin.Engine
}

// New builds the server around planner. metrics may be nil.
func New(cfg Config, planner handlers.Planner, metrics *observability.PlannerMetrics) (Service, error) {
	if planner == nil {
		return nil, errors.New("planner must not be nil")
	}
	s := &service{config: applyConfigDefaults(cfg)}

	var sessions handlers.SessionMetrics
	if metrics != nil {
		sessions = metrics
	}
	s.initRouter(planner, sessions)
	return s, nil
}

// Run serves until ctx is cancelled.
func (s *service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting planning server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down planning server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wayfarer"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return cfg
}

func (s *service) initRouter(planner handlers.Planner, sessions handlers.SessionMetrics) {
	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(s.config.ServiceName))

	var metricsHandler http.Handler
	if s.config.EnableMetrics {
		metricsHandler = promhttp.Handler()
	}
	routes.SetupRoutes(s.router, planner, sessions, metricsHandler)
}
