// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// DefaultNodeTimeout applies to nodes that don't specify one.
const DefaultNodeTimeout = 5 * time.Minute

// Node is one step of a workflow.
//
// Run receives a snapshot of the research state and returns the fields it
// changed. Nodes report external failures through messages in the update;
// a returned error aborts the run.
type Node interface {
	Name() string
	Timeout() time.Duration
	Run(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error)
}

// RunContext carries the per-session collaborators available to nodes.
type RunContext struct {
	ThreadID string

	// Notifier receives progress text. May be nil.
	Notifier progress.Notifier

	// Interaction is the interactive channel. Nil means the session cannot
	// answer prompts.
	Interaction progress.Interactive

	Logger *slog.Logger
}

// HasInteractiveChannel reports whether prompts can be answered.
func (rc RunContext) HasInteractiveChannel() bool {
	return rc.Interaction != nil
}

// Notify sends text to the notifier, if any. A closed channel is not an
// error for the run.
func (rc RunContext) Notify(ctx context.Context, text string) {
	if rc.Notifier == nil {
		return
	}
	if err := rc.Notifier.Notify(ctx, text); err != nil && !errors.Is(err, progress.ErrClosed) {
		rc.log().Warn("progress notification failed",
			slog.String("thread_id", rc.ThreadID),
			slog.String("error", err.Error()),
		)
	}
}

func (rc RunContext) log() *slog.Logger {
	if rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}

// BaseNode implements the common parts of Node.
//
// Embed it in concrete nodes and implement Run:
//
//	type ClusterNode struct {
//	    graph.BaseNode
//	    llm llm.LLMClient
//	}
type BaseNode struct {
	NodeName    string
	NodeTimeout time.Duration
}

// Name returns the node's unique identifier.
func (n *BaseNode) Name() string {
	return n.NodeName
}

// Timeout returns the maximum execution time for this node.
func (n *BaseNode) Timeout() time.Duration {
	if n.NodeTimeout == 0 {
		return DefaultNodeTimeout
	}
	return n.NodeTimeout
}

// Run returns an error if called directly.
func (n *BaseNode) Run(_ context.Context, _ state.ResearchState, _ RunContext) (state.Update, error) {
	return state.Update{}, fmt.Errorf("%w: BaseNode.Run must be overridden", ErrInvalidInput)
}

// RunFunc is the signature of a node body.
type RunFunc func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error)

// FuncNode wraps a function as a Node.
type FuncNode struct {
	BaseNode
	fn RunFunc
}

// NewFuncNode creates a node from a function.
func NewFuncNode(name string, fn RunFunc) *FuncNode {
	return &FuncNode{BaseNode: BaseNode{NodeName: name}, fn: fn}
}

// Run calls the wrapped function.
func (n *FuncNode) Run(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
	if n.fn == nil {
		return state.Update{}, ErrInvalidInput
	}
	return n.fn(ctx, s, rc)
}

// WithTimeout sets the timeout for a FuncNode.
func (n *FuncNode) WithTimeout(d time.Duration) *FuncNode {
	n.NodeTimeout = d
	return n
}
