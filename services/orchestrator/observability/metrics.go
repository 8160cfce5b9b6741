// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the planning server.
//
// # Description
//
// PlannerMetrics counts planning runs and how they ended, measures run
// duration, tracks active runs and websocket sessions, and records loop
// exhaustions and manual selection outcomes. Metrics are exposed on
// /metrics via promhttp.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

// Namespace for all metrics
const metricsNamespace = "wayfarer"

const (
	plannerSubsystem   = "planner"
	websocketSubsystem = "websocket"
)

// PlannerMetrics holds the planner's Prometheus collectors.
//
// # Fields
//
//   - RunsTotal: Finished runs by kind (plan, resume) and terminal status
//   - RunDurationSeconds: Wall time of finished runs by kind
//   - ActiveRuns: Runs currently executing
//   - LoopExhaustionsTotal: Runs stopped by a loop limit, by back-edge
//   - SelectionRepliesTotal: Manual selection prompts by outcome
//   - WebsocketSessions: Open websocket sessions
//   - WebsocketSessionsTotal: Accepted websocket sessions by first action
type PlannerMetrics struct {
	RunsTotal              *prometheus.CounterVec
	RunDurationSeconds     *prometheus.HistogramVec
	ActiveRuns             prometheus.Gauge
	LoopExhaustionsTotal   *prometheus.CounterVec
	SelectionRepliesTotal  *prometheus.CounterVec
	WebsocketSessions      prometheus.Gauge
	WebsocketSessionsTotal *prometheus.CounterVec
}

var _ workflow.Metrics = (*PlannerMetrics)(nil)

// NewPlannerMetrics registers the collectors with reg. A nil reg uses the
// default registry, which is what promhttp.Handler serves. Registering
// twice on the same registry panics, so create one per process (or per
// test registry).
func NewPlannerMetrics(reg prometheus.Registerer) *PlannerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PlannerMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "runs_total",
				Help:      "Finished planning runs by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of planning runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind"},
		),
		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "active_runs",
				Help:      "Planning runs currently executing",
			},
		),
		LoopExhaustionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "loop_exhaustions_total",
				Help:      "Runs stopped by a loop limit, by back-edge",
			},
			[]string{"reason"},
		),
		SelectionRepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "selection_replies_total",
				Help:      "Manual cluster selection prompts by outcome",
			},
			[]string{"outcome"},
		),
		WebsocketSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: websocketSubsystem,
				Name:      "sessions",
				Help:      "Open planning websocket sessions",
			},
		),
		WebsocketSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: websocketSubsystem,
				Name:      "sessions_total",
				Help:      "Accepted planning websocket sessions by first action",
			},
			[]string{"action"},
		),
	}
}

// RunStarted marks a run as active.
func (m *PlannerMetrics) RunStarted(kind string) {
	m.ActiveRuns.Inc()
}

// RunFinished records the outcome and duration of a run.
func (m *PlannerMetrics) RunFinished(kind, status string, d time.Duration) {
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(kind, status).Inc()
	m.RunDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// LoopExhausted records a run stopped by a loop limit.
func (m *PlannerMetrics) LoopExhausted(reason string) {
	m.LoopExhaustionsTotal.WithLabelValues(reason).Inc()
}

// SelectionReply records how a manual selection prompt ended.
func (m *PlannerMetrics) SelectionReply(outcome string) {
	m.SelectionRepliesTotal.WithLabelValues(outcome).Inc()
}

// SessionOpened records an accepted websocket session. Call the returned
// func when the connection closes.
func (m *PlannerMetrics) SessionOpened(action string) (closed func()) {
	m.WebsocketSessionsTotal.WithLabelValues(action).Inc()
	m.WebsocketSessions.Inc()
	return m.WebsocketSessions.Dec
}
