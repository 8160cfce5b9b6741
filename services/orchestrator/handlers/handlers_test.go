// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

const validPrefs = `{
	"destination": "Lisbon",
	"start_date": "2026-05-01",
	"end_date": "2026-05-04",
	"budget_min": 1000,
	"budget_max": 2500,
	"travel_style": "cultural",
	"preferred_activities": ["sightseeing", "dining"]
}`

const invalidPrefs = `{
	"destination": "",
	"start_date": "2026-05-04",
	"end_date": "2026-05-01",
	"travel_style": "cultural",
	"preferred_activities": ["dining"]
}`

// fakePlanner drives a progress channel the way workflow.Planner does,
// with a scripted body.
type fakePlanner struct {
	mu       sync.Mutex
	requests []workflow.Request
	resumed  []string
	sessions []workflow.Session
	threads  map[string]*graph.Checkpoint
	deleted  []string

	// script runs after the session event. Nil completes immediately.
	script func(ctx context.Context, sess workflow.Session) error
}

func (f *fakePlanner) Plan(ctx context.Context, req workflow.Request, sess workflow.Session) (*graph.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.sessions = append(f.sessions, sess)
	f.mu.Unlock()

	threadID := req.ThreadID
	if threadID == "" {
		threadID = "generated-thread"
	}
	return f.drive(ctx, threadID, sess)
}

func (f *fakePlanner) Resume(ctx context.Context, threadID string, sess workflow.Session) (*graph.Result, error) {
	f.mu.Lock()
	f.resumed = append(f.resumed, threadID)
	f.sessions = append(f.sessions, sess)
	f.mu.Unlock()
	return f.drive(ctx, threadID, sess)
}

func (f *fakePlanner) drive(ctx context.Context, threadID string, sess workflow.Session) (*graph.Result, error) {
	sess.Channel.SetThreadID(threadID)
	_ = sess.Channel.Emit(ctx, progress.Event{Type: progress.EventSession})
	if f.script != nil {
		if err := f.script(ctx, sess); err != nil {
			_ = sess.Channel.Fail(context.WithoutCancel(ctx), fmt.Sprintf("❌ Unexpected error: %v", err))
			return nil, err
		}
	}
	_ = sess.Channel.Complete(ctx)
	return &graph.Result{ThreadID: threadID, Status: graph.StatusCompleted}, nil
}

func (f *fakePlanner) Thread(_ context.Context, threadID string) (*graph.Checkpoint, error) {
	if err := graph.ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	if cp, ok := f.threads[threadID]; ok {
		return cp, nil
	}
	return nil, fmt.Errorf("%w: %s", graph.ErrCheckpointNotFound, threadID)
}

func (f *fakePlanner) Threads(context.Context) ([]string, error) {
	ids := []string{}
	for id := range f.threads {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakePlanner) DeleteThread(_ context.Context, threadID string) error {
	if err := graph.ValidateThreadID(threadID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, threadID)
	return nil
}

func (f *fakePlanner) lastSession() workflow.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

type countingSessions struct {
	mu      sync.Mutex
	opened  map[string]int
	current int
}

func (c *countingSessions) SessionOpened(action string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened == nil {
		c.opened = map[string]int{}
	}
	c.opened[action]++
	c.current++
	return func() {
		c.mu.Lock()
		c.current--
		c.mu.Unlock()
	}
}

func newTestRouter(p Planner, m SessionMetrics) *gin.Engine {
	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/v1/plan/ws", HandlePlanWebSocket(p, m))
	router.POST("/v1/preferences/validate", ValidatePreferences())
	router.GET("/v1/threads", ListThreads(p))
	router.GET("/v1/threads/:threadId", GetThread(p))
	router.DELETE("/v1/threads/:threadId", DeleteThread(p))
	return router
}

func serve(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// HealthCheck
// ============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	w := serve(t, newTestRouter(&fakePlanner{}, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

// ============================================================================
// ValidatePreferences
// ============================================================================

func TestValidatePreferences_Valid(t *testing.T) {
	body := strings.Replace(validPrefs, `"destination"`, `"output_format": "markdown", "destination"`, 1)
	w := serve(t, newTestRouter(&fakePlanner{}, nil), http.MethodPost, "/v1/preferences/validate", body)

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, 4, resp.TripDays)
	assert.Equal(t, state.FormatMarkdown, resp.OutputFormat)
	assert.Contains(t, resp.Summary, "Destination: Lisbon")
}

func TestValidatePreferences_Violations(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"constraints", invalidPrefs, []string{"destination", "end_date"}},
		{"bad format", strings.Replace(validPrefs, `"destination"`, `"output_format": "docx", "destination"`, 1), []string{"output_format"}},
		{"malformed json", `{"destination": `, []string{"body"}},
		{"wrong type", `{"destination": 12}`, nil},
		{"wrong envelope type", `{"output_format": 3}`, []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, newTestRouter(&fakePlanner{}, nil), http.MethodPost, "/v1/preferences/validate", tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			var resp datatypes.ValidationResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Valid)
			assert.NotEmpty(t, resp.Violations)
			got := map[string]bool{}
			for _, v := range resp.Violations {
				got[v.Field] = true
			}
			for _, f := range tt.fields {
				assert.True(t, got[f], "expected a violation for %s, got %+v", f, resp.Violations)
			}
		})
	}
}

// ============================================================================
// Threads
// ============================================================================

func threadFixture() *fakePlanner {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return &fakePlanner{threads: map[string]*graph.Checkpoint{
		"trip-1": {
			ThreadID:  "trip-1",
			Graph:     workflow.GraphName,
			Next:      "cluster",
			Step:      7,
			Path:      []string{"initial_grounding", "sub_questions_gen", "research"},
			Status:    graph.StatusExhausted,
			Error:     "loop manual_cluster_selection -> cluster exceeded its limit of 3 traversals",
			State:     state.ResearchState{Report: "draft"},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}}
}

func TestGetThread(t *testing.T) {
	router := newTestRouter(threadFixture(), nil)

	w := serve(t, router, http.MethodGet, "/v1/threads/trip-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary datatypes.ThreadSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, graph.StatusExhausted, summary.Status)
	assert.Equal(t, "cluster", summary.Next)
	require.NotNil(t, summary.State)
	assert.Equal(t, "draft", summary.State.Report)

	w = serve(t, router, http.MethodGet, "/v1/threads/trip-1?state=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"state"`)
}

func TestGetThread_Errors(t *testing.T) {
	router := newTestRouter(threadFixture(), nil)

	assert.Equal(t, http.StatusNotFound, serve(t, router, http.MethodGet, "/v1/threads/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, router, http.MethodGet, "/v1/threads/bad.id", "").Code)
}

func TestListAndDeleteThreads(t *testing.T) {
	planner := threadFixture()
	router := newTestRouter(planner, nil)

	w := serve(t, router, http.MethodGet, "/v1/threads", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list datatypes.ThreadList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"trip-1"}, list.Threads)

	w = serve(t, router, http.MethodDelete, "/v1/threads/trip-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"trip-1"}, planner.deleted)

	w = serve(t, router, http.MethodDelete, "/v1/threads/bad.id", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
