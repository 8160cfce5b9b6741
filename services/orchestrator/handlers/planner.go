// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP and websocket endpoints of the
// planning server.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

// Planner is the part of workflow.Planner the handlers use.
type Planner interface {
	Plan(ctx context.Context, req workflow.Request, sess workflow.Session) (*graph.Result, error)
	Resume(ctx context.Context, threadID string, sess workflow.Session) (*graph.Result, error)
	Thread(ctx context.Context, threadID string) (*graph.Checkpoint, error)
	Threads(ctx context.Context) ([]string, error)
	DeleteThread(ctx context.Context, threadID string) error
}

var _ Planner = (*workflow.Planner)(nil)

// SessionMetrics counts websocket sessions. Implemented by
// observability.PlannerMetrics.
type SessionMetrics interface {
	SessionOpened(action string) (closed func())
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SessionOpened(string) func() { return func() {} }

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// threadErrorStatus maps planner errors to HTTP status codes.
func threadErrorStatus(err error) int {
	switch {
	case errors.Is(err, graph.ErrInvalidThreadID):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrCheckpointCorrupt), errors.Is(err, graph.ErrCheckpointVersionMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Error: err.Error()})
}
