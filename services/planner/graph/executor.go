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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

var (
	tracer = otel.Tracer("wayfarer.graph")
	meter  = otel.Meter("wayfarer.graph")
)

// DefaultMaxSteps bounds a run even if loop limits are misconfigured.
const DefaultMaxSteps = 50

// ExecutorConfig tunes an Executor.
type ExecutorConfig struct {
	// MaxSteps caps node executions per thread. Zero means DefaultMaxSteps.
	MaxSteps int

	// RetainCompleted keeps the checkpoint of a successful thread.
	RetainCompleted bool
}

// Result describes one Run or Resume invocation.
type Result struct {
	ThreadID      string
	Status        Status
	Path          []string
	Steps         int
	State         state.ResearchState
	NodeDurations map[string]time.Duration
	Duration      time.Duration
	Error         string
	FailedNode    string
}

// Executor runs a Graph one node at a time over a ResearchState.
//
// Description:
//
//	Each step runs the current node under its timeout, applies the
//	returned update, relays new messages to the notifier, resolves the
//	next node and saves a checkpoint. Limited edges are counted by a
//	governor; exceeding a limit or MaxSteps ends the run as exhausted.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Distinct threads may run in
//	parallel; a thread id can only be driven by one call at a time.
type Executor struct {
	graph  *Graph
	store  Store
	logger *slog.Logger
	cfg    ExecutorConfig

	activeMu sync.Mutex
	active   map[string]bool

	metricsOnce     sync.Once
	nodeLatency     metric.Float64Histogram
	nodeSuccesses   metric.Int64Counter
	nodeFailures    metric.Int64Counter
	activeRuns      metric.Int64UpDownCounter
	runLatency      metric.Float64Histogram
	loopExhaustions metric.Int64Counter
}

// NewExecutor creates an executor. A nil store means an in-memory store;
// a nil logger means slog.Default().
func NewExecutor(g *Graph, store Store, logger *slog.Logger, cfg ExecutorConfig) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: graph must not be nil", ErrInvalidInput)
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &Executor{
		graph:  g,
		store:  store,
		logger: logger,
		cfg:    cfg,
		active: make(map[string]bool),
	}, nil
}

// Graph returns the executed graph.
func (e *Executor) Graph() *Graph { return e.graph }

// Store returns the checkpoint store.
func (e *Executor) Store() Store { return e.store }

// initMetrics lazily initializes metrics. Creation failures degrade
// observability but never fail a run.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		e.nodeLatency, err = meter.Float64Histogram("planner_node_duration_seconds",
			metric.WithDescription("Time spent executing each workflow node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeSuccesses, err = meter.Int64Counter("planner_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_successes: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("planner_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.activeRuns, err = meter.Int64UpDownCounter("planner_active_threads",
			metric.WithDescription("Number of threads currently executing"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_runs: "+err.Error())
		}

		e.runLatency, err = meter.Float64Histogram("planner_run_duration_seconds",
			metric.WithDescription("Wall time of a run or resume"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		e.loopExhaustions, err = meter.Int64Counter("planner_loop_exhausted_total",
			metric.WithDescription("Runs stopped by a loop limit or the step cap"),
		)
		if err != nil {
			initErrors = append(initErrors, "loop_exhaustions: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some graph metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run starts a new thread from the entry node.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	threadID - Checkpoint key. Empty generates one.
//	initial - The starting state.
//	rc - Per-session collaborators.
//
// Outputs:
//
//	*Result - Always non-nil once the run has started.
//	error - Non-nil when the run did not complete.
func (e *Executor) Run(ctx context.Context, threadID string, initial state.ResearchState, rc RunContext) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp := &Checkpoint{
		ThreadID:  threadID,
		Graph:     e.graph.Name(),
		Next:      e.graph.Entry(),
		Loops:     map[string]int{},
		Status:    StatusRunning,
		State:     initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return e.drive(ctx, cp, rc, "graph.Run")
}

// Resume continues a saved thread from its next node.
//
// Description:
//
//	Loads the checkpoint, verifies it belongs to this graph, and drives
//	the thread on with its loop counters restored. A thread that stopped
//	on a loop limit gets fresh counters, since resuming is an explicit
//	request to try again.
func (e *Executor) Resume(ctx context.Context, threadID string, rc RunContext) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.Graph != e.graph.Name() {
		return nil, fmt.Errorf("%w: checkpoint is for graph %q, executor has %q", ErrInvalidInput, cp.Graph, e.graph.Name())
	}
	if cp.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, threadID)
	}
	if _, ok := e.graph.Node(cp.Next); !ok {
		return nil, NewNodeError(cp.Next, ErrNodeNotFound)
	}
	if cp.Status == StatusExhausted {
		cp.Loops = map[string]int{}
		cp.Step = 0
	}
	cp.Status = StatusRunning
	cp.Error = ""
	cp.FailedNode = ""

	e.logger.Info("resuming thread",
		slog.String("thread_id", threadID),
		slog.String("next", cp.Next),
		slog.Int("step", cp.Step),
	)
	return e.drive(ctx, cp, rc, "graph.Resume")
}

func (e *Executor) acquire(threadID string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if e.active[threadID] {
		return false
	}
	e.active[threadID] = true
	return true
}

func (e *Executor) release(threadID string) {
	e.activeMu.Lock()
	delete(e.active, threadID)
	e.activeMu.Unlock()
}

func (e *Executor) drive(ctx context.Context, cp *Checkpoint, rc RunContext, spanName string) (*Result, error) {
	if !e.acquire(cp.ThreadID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, cp.ThreadID)
	}
	defer e.release(cp.ThreadID)

	e.initMetrics()
	if rc.ThreadID == "" {
		rc.ThreadID = cp.ThreadID
	}
	if rc.Logger == nil {
		rc.Logger = e.logger
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("graph.name", e.graph.Name()),
			attribute.String("graph.thread_id", cp.ThreadID),
			attribute.String("graph.start_node", cp.Next),
		),
	)
	defer span.End()

	if e.activeRuns != nil {
		e.activeRuns.Add(ctx, 1)
		defer e.activeRuns.Add(ctx, -1)
	}

	start := time.Now()
	gov := newGovernor(e.graph.limits, cp.Loops)
	res := &Result{
		ThreadID:      cp.ThreadID,
		NodeDurations: make(map[string]time.Duration),
	}

	e.logger.InfoContext(ctx, "thread started",
		slog.String("graph", e.graph.Name()),
		slog.String("thread_id", cp.ThreadID),
		slog.String("node", cp.Next),
	)

	runErr := e.loop(ctx, cp, gov, rc, res)

	res.Steps = cp.Step
	res.State = cp.State
	res.Duration = time.Since(start)
	res.Status = cp.Status
	res.Error = cp.Error
	res.FailedNode = cp.FailedNode

	if e.runLatency != nil {
		e.runLatency.Record(ctx, res.Duration.Seconds(),
			metric.WithAttributes(
				attribute.String("graph", e.graph.Name()),
				attribute.String("status", string(res.Status)),
			),
		)
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		e.logger.ErrorContext(ctx, "thread stopped",
			slog.String("thread_id", cp.ThreadID),
			slog.String("status", string(res.Status)),
			slog.String("failed_node", res.FailedNode),
			slog.String("error", runErr.Error()),
		)
		return res, runErr
	}

	span.SetStatus(codes.Ok, "")
	e.logger.InfoContext(ctx, "thread completed",
		slog.String("thread_id", cp.ThreadID),
		slog.Duration("duration", res.Duration),
		slog.Int("steps", res.Steps),
	)
	return res, nil
}

// loop executes steps until the terminal node finishes or the run stops.
// It leaves cp describing the final position.
func (e *Executor) loop(ctx context.Context, cp *Checkpoint, gov *governor, rc RunContext, res *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.stop(ctx, cp, StatusCanceled, "", err)
		}
		if cp.Step >= e.cfg.MaxSteps {
			e.countExhaustion(ctx, "max_steps")
			return e.stop(ctx, cp, StatusExhausted, "", fmt.Errorf("%w: %d", ErrMaxSteps, e.cfg.MaxSteps))
		}

		name := cp.Next
		node, ok := e.graph.Node(name)
		if !ok {
			return e.stop(ctx, cp, StatusFailed, name, NewNodeError(name, ErrNodeNotFound))
		}

		nodeStart := time.Now()
		update, err := e.executeNode(ctx, node, cp, rc)
		res.NodeDurations[name] += time.Since(nodeStart)
		if err != nil {
			status := StatusFailed
			if ctx.Err() != nil {
				status = StatusCanceled
			}
			return e.stop(ctx, cp, status, name, err)
		}

		cp.State = state.Apply(cp.State, update)
		cp.Step++
		cp.Path = append(cp.Path, name)
		res.Path = append(res.Path, name)
		e.relay(ctx, update, rc)

		if name == e.graph.Finish() {
			cp.Next = ""
			cp.Status = StatusCompleted
			cp.Loops = gov.snapshot()
			return e.finish(ctx, cp)
		}

		next, err := e.graph.Next(name, cp.State)
		if err != nil {
			return e.stop(ctx, cp, StatusFailed, name, err)
		}
		cp.Next = next
		if err := gov.traverse(name, next); err != nil {
			e.countExhaustion(ctx, Edge{From: name, To: next}.String())
			cp.Loops = gov.snapshot()
			return e.stop(ctx, cp, StatusExhausted, "", err)
		}
		cp.Loops = gov.snapshot()
		if err := e.save(ctx, cp); err != nil {
			return e.stop(ctx, cp, StatusFailed, "", err)
		}
	}
}

// executeNode runs a single node with its own span and timeout.
func (e *Executor) executeNode(ctx context.Context, node Node, cp *Checkpoint, rc RunContext) (state.Update, error) {
	ctx, span := tracer.Start(ctx, node.Name(),
		trace.WithAttributes(
			attribute.String("graph.node", node.Name()),
			attribute.String("graph.thread_id", cp.ThreadID),
			attribute.Int("graph.step", cp.Step),
		),
	)
	defer span.End()

	e.logger.DebugContext(ctx, "node starting",
		slog.String("node", node.Name()),
		slog.String("thread_id", cp.ThreadID),
		slog.Int("step", cp.Step),
	)

	timeout := node.Timeout()
	if timeout <= 0 {
		timeout = DefaultNodeTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	update, err := node.Run(nodeCtx, cp.State, rc)
	duration := time.Since(start)

	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("node", node.Name())),
		)
	}

	if err == nil && nodeCtx.Err() != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrNodeTimeout, timeout, err)
		}
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node.Name())))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "node failed",
			slog.String("node", node.Name()),
			slog.String("thread_id", cp.ThreadID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return state.Update{}, NewNodeError(node.Name(), err)
	}

	if e.nodeSuccesses != nil {
		e.nodeSuccesses.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node.Name())))
	}
	span.SetStatus(codes.Ok, "")
	e.logger.InfoContext(ctx, "node completed",
		slog.String("node", node.Name()),
		slog.String("thread_id", cp.ThreadID),
		slog.Duration("duration", duration),
	)
	return update, nil
}

// relay forwards the update's messages, skipping manual-selection ones
// which the node already presented through the interactive channel.
func (e *Executor) relay(ctx context.Context, update state.Update, rc RunContext) {
	for _, msg := range update.Messages() {
		if msg.ManualSelection {
			continue
		}
		rc.Notify(ctx, msg.Content)
	}
}

func (e *Executor) save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(context.WithoutCancel(ctx), cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (e *Executor) finish(ctx context.Context, cp *Checkpoint) error {
	if e.cfg.RetainCompleted {
		return e.save(ctx, cp)
	}
	if err := e.store.Delete(context.WithoutCancel(ctx), cp.ThreadID); err != nil {
		e.logger.WarnContext(ctx, "failed to delete completed checkpoint",
			slog.String("thread_id", cp.ThreadID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// stop records a terminal status on the checkpoint and saves it so the
// thread can be inspected or resumed from its last good position.
func (e *Executor) stop(ctx context.Context, cp *Checkpoint, status Status, failedNode string, err error) error {
	cp.Status = status
	cp.Error = err.Error()
	cp.FailedNode = failedNode
	if saveErr := e.save(ctx, cp); saveErr != nil {
		e.logger.ErrorContext(ctx, "failed to save checkpoint after stop",
			slog.String("thread_id", cp.ThreadID),
			slog.String("error", saveErr.Error()),
		)
	}
	return err
}

func (e *Executor) countExhaustion(ctx context.Context, reason string) {
	if e.loopExhaustions != nil {
		e.loopExhaustions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
