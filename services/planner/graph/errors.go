// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the graph package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode is returned when a nil node is provided.
	ErrNilNode = errors.New("node must not be nil")

	// ErrDuplicateNode is returned when adding a node with an existing name.
	ErrDuplicateNode = errors.New("node with this name already exists")

	// ErrDuplicateRoute is returned when a node is given a second outgoing route.
	ErrDuplicateRoute = errors.New("node already has an outgoing route")

	// ErrNodeNotFound is returned when a referenced node doesn't exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrMissingRoute is returned when a non-terminal node has no outgoing route.
	ErrMissingRoute = errors.New("node has no outgoing route")

	// ErrUnreachable is returned when a node cannot be reached from the entry.
	ErrUnreachable = errors.New("node is unreachable from the entry node")

	// ErrNoRoute is returned when a router picks a target it did not declare.
	ErrNoRoute = errors.New("router returned an undeclared target")

	// ErrPrecondition is returned by nodes whose required state is missing
	// or inconsistent. It aborts the run.
	ErrPrecondition = errors.New("state precondition violated")

	// ErrNodeTimeout is returned when a node exceeds its timeout.
	ErrNodeTimeout = errors.New("node execution timed out")

	// ErrLoopExhausted is wrapped by LoopError.
	ErrLoopExhausted = errors.New("loop limit exhausted")

	// ErrMaxSteps is returned when a run exceeds the configured step cap.
	ErrMaxSteps = errors.New("maximum number of steps exceeded")

	// ErrAlreadyRunning is returned when a thread is already being executed.
	ErrAlreadyRunning = errors.New("thread is already running")

	// ErrAlreadyCompleted is returned when resuming a finished thread.
	ErrAlreadyCompleted = errors.New("thread has already completed")

	// ErrCheckpointNotFound is returned when no checkpoint exists for a thread.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointCorrupt is returned when a checkpoint fails verification.
	ErrCheckpointCorrupt = errors.New("checkpoint data is corrupt")

	// ErrCheckpointVersionMismatch is returned when checkpoint version doesn't match.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrInvalidThreadID is returned for thread ids outside [a-zA-Z0-9_-]+.
	ErrInvalidThreadID = errors.New("invalid thread id")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// NodeError wraps an error with the node that caused it.
type NodeError struct {
	NodeName string
	Err      error
}

// Error returns the error message.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeName, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError creates a NodeError.
func NewNodeError(nodeName string, err error) *NodeError {
	return &NodeError{NodeName: nodeName, Err: err}
}

// CycleError reports a cycle with no limited edge on it.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("unbounded cycle detected: %s", strings.Join(e.Path, " -> "))
}

// LoopError reports a limited edge traversed more often than allowed.
type LoopError struct {
	From  string
	To    string
	Limit int
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("loop %s -> %s exceeded its limit of %d traversals", e.From, e.To, e.Limit)
}

func (e *LoopError) Unwrap() error {
	return ErrLoopExhausted
}
