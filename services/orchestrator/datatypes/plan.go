// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the wire types of the planning server.
package datatypes

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// Session actions accepted in the first websocket frame.
const (
	ActionPlan   = "plan"
	ActionResume = "resume"
)

// StartFrame is the envelope of the first websocket frame.
//
// # Description
//
// A plan frame carries the travel preferences at the top level next to
// these fields. A resume frame carries only Action and ThreadID.
type StartFrame struct {
	Action       string `json:"action,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`

	// Interactive defaults to true. False runs without prompts; a failed
	// clustering is retried instead of asking the client.
	Interactive *bool `json:"interactive,omitempty"`
}

// IsResume reports whether the frame resumes a saved thread.
func (f StartFrame) IsResume() bool {
	return strings.EqualFold(f.Action, ActionResume)
}

// WantsPrompts reports whether the client accepts interactive prompts.
func (f StartFrame) WantsPrompts() bool {
	return f.Interactive == nil || *f.Interactive
}

// ReplyFrame is a structured client reply to a prompt. Plain text frames
// are accepted as replies too.
type ReplyFrame struct {
	Reply string `json:"reply"`
}

// ParseReply extracts the reply from a client frame.
func ParseReply(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var rf ReplyFrame
		if err := json.Unmarshal([]byte(trimmed), &rf); err == nil {
			return strings.TrimSpace(rf.Reply)
		}
	}
	return trimmed
}

// ValidationResponse is the body of POST /v1/preferences/validate.
type ValidationResponse struct {
	Valid        bool                   `json:"valid"`
	Violations   []state.FieldViolation `json:"violations,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	TripDays     int                    `json:"trip_days,omitempty"`
	OutputFormat state.OutputFormat     `json:"output_format,omitempty"`
}

// ErrorResponse is the body of failed REST calls.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ThreadSummary describes a saved thread.
type ThreadSummary struct {
	ThreadID   string               `json:"thread_id"`
	Graph      string               `json:"graph"`
	Status     graph.Status         `json:"status"`
	Next       string               `json:"next"`
	Step       int                  `json:"step"`
	Path       []string             `json:"path"`
	Loops      map[string]int       `json:"loops,omitempty"`
	Error      string               `json:"error,omitempty"`
	FailedNode string               `json:"failed_node,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	State      *state.ResearchState `json:"state,omitempty"`
}

// NewThreadSummary summarizes cp. withState includes the full research
// state.
func NewThreadSummary(cp *graph.Checkpoint, withState bool) ThreadSummary {
	ts := ThreadSummary{
		ThreadID:   cp.ThreadID,
		Graph:      cp.Graph,
		Status:     cp.Status,
		Next:       cp.Next,
		Step:       cp.Step,
		Path:       cp.Path,
		Loops:      cp.Loops,
		Error:      cp.Error,
		FailedNode: cp.FailedNode,
		CreatedAt:  cp.CreatedAt,
		UpdatedAt:  cp.UpdatedAt,
	}
	if withState {
		st := cp.State
		ts.State = &st
	}
	return ts
}

// ThreadList is the body of GET /v1/threads.
type ThreadList struct {
	Threads []string `json:"threads"`
}
