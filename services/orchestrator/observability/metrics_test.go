// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics registers on an isolated registry so tests do not
// collide with the global one.
func newTestMetrics(t *testing.T) (*PlannerMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPlannerMetrics(reg), reg
}

func TestPlannerMetrics_RunLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RunStarted("plan")
	m.RunStarted("resume")
	if got := testutil.ToFloat64(m.ActiveRuns); got != 2 {
		t.Errorf("active runs = %v, want 2", got)
	}

	m.RunFinished("plan", "completed", 90*time.Second)
	m.RunFinished("resume", "exhausted", time.Second)

	if got := testutil.ToFloat64(m.ActiveRuns); got != 0 {
		t.Errorf("active runs = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("plan", "completed")); got != 1 {
		t.Errorf("plan/completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("resume", "exhausted")); got != 1 {
		t.Errorf("resume/exhausted = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RunDurationSeconds); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestPlannerMetrics_LoopsAndSelections(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.LoopExhausted("manual_cluster_selection->cluster")
	m.LoopExhausted("manual_cluster_selection->cluster")
	m.LoopExhausted("max_steps")
	m.SelectionReply("answered")
	m.SelectionReply("timeout")

	if got := testutil.ToFloat64(m.LoopExhaustionsTotal.WithLabelValues("manual_cluster_selection->cluster")); got != 2 {
		t.Errorf("cluster loop exhaustions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LoopExhaustionsTotal.WithLabelValues("max_steps")); got != 1 {
		t.Errorf("max_steps = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.SelectionRepliesTotal); got != 2 {
		t.Errorf("selection outcomes = %d, want 2", got)
	}
}

func TestPlannerMetrics_WebsocketSessions(t *testing.T) {
	m, _ := newTestMetrics(t)

	closeA := m.SessionOpened("plan")
	closeB := m.SessionOpened("resume")
	if got := testutil.ToFloat64(m.WebsocketSessions); got != 2 {
		t.Errorf("open sessions = %v, want 2", got)
	}
	closeA()
	closeB()
	if got := testutil.ToFloat64(m.WebsocketSessions); got != 0 {
		t.Errorf("open sessions = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.WebsocketSessionsTotal.WithLabelValues("plan")); got != 1 {
		t.Errorf("plan sessions = %v, want 1", got)
	}
}

func TestPlannerMetrics_Registration(t *testing.T) {
	_, reg := newTestMetrics(t)

	// Vectors only appear once a label set has been used; the gauges are
	// always present.
	n, err := testutil.GatherAndCount(reg, "wayfarer_planner_active_runs", "wayfarer_websocket_sessions")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("gauges gathered = %d, want 2", n)
	}
}
