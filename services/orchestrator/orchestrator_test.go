// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

type stubPlanner struct{}

func (stubPlanner) Plan(context.Context, workflow.Request, workflow.Session) (*graph.Result, error) {
	return &graph.Result{Status: graph.StatusCompleted}, nil
}

func (stubPlanner) Resume(context.Context, string, workflow.Session) (*graph.Result, error) {
	return &graph.Result{Status: graph.StatusCompleted}, nil
}

func (stubPlanner) Thread(_ context.Context, id string) (*graph.Checkpoint, error) {
	return nil, graph.ErrCheckpointNotFound
}

func (stubPlanner) Threads(context.Context) ([]string, error) { return []string{}, nil }

func (stubPlanner) DeleteThread(context.Context, string) error { return nil }

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12310, result.Port, "default port should be 12310")
	assert.Equal(t, gin.ReleaseMode, result.GinMode)
	assert.Equal(t, "wayfarer", result.ServiceName)
	assert.Equal(t, 15*time.Second, result.ShutdownTimeout)
	assert.False(t, result.EnableMetrics, "metrics are opt-in")
}

func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{Port: 8080, GinMode: gin.TestMode, ServiceName: "planner", ShutdownTimeout: time.Second}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, cfg, result)
}

func TestNew_RequiresPlanner(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestNew_RegistersRoutes(t *testing.T) {
	svc, err := New(Config{GinMode: gin.TestMode, EnableMetrics: true}, stubPlanner{}, nil)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/threads", http.StatusOK},
		{http.MethodGet, "/v1/threads/unknown", http.StatusNotFound},
		{http.MethodDelete, "/v1/threads/unknown", http.StatusOK},
		{http.MethodGet, "/v1/chat/ws", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(tt.method, tt.path, nil)
		svc.Router().ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	svc, err := New(Config{GinMode: gin.TestMode}, stubPlanner{}, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	// Reserve a free port, then hand it to the server.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	svc, err := New(Config{Host: "127.0.0.1", Port: port, GinMode: gin.TestMode, ShutdownTimeout: time.Second}, stubPlanner{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/health"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
