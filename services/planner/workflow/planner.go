// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

const (
	runKindPlan   = "plan"
	runKindResume = "resume"
)

// Metrics receives planner level measurements. Implementations must be
// safe for concurrent use.
type Metrics interface {
	RunStarted(kind string)
	RunFinished(kind, status string, d time.Duration)
	LoopExhausted(reason string)
	SelectionReply(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RunStarted(string)                         {}
func (noopMetrics) RunFinished(string, string, time.Duration) {}
func (noopMetrics) LoopExhausted(string)                      {}
func (noopMetrics) SelectionReply(string)                     {}

// Request starts a new planning thread.
type Request struct {
	// ThreadID names the checkpoint. Empty generates one.
	ThreadID    string
	Preferences state.TravelPreferences
	Format      state.OutputFormat
}

// Session is the client side of one run.
type Session struct {
	// Channel receives progress and the terminal event. Nil discards
	// everything.
	Channel *progress.Channel

	// Interactive allows the run to prompt through Channel.
	Interactive bool
}

// Planner runs planning threads over the itinerary graph.
//
// Description:
//
//	Planner owns the executor and reports every run to the client:
//	a session event with the thread id first, progress while nodes run,
//	then exactly one of the completion event or an error event.
//
// Thread Safety:
//
//	Safe for concurrent use. Each thread id is driven by one call at a
//	time; a concurrent call for the same id fails with
//	graph.ErrAlreadyRunning.
type Planner struct {
	exec    *graph.Executor
	logger  *slog.Logger
	metrics Metrics
}

// NewPlanner wraps g in an executor backed by store. A nil metrics
// disables planner metrics.
func NewPlanner(g *graph.Graph, store graph.Store, logger *slog.Logger, cfg graph.ExecutorConfig, metrics Metrics) (*Planner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	exec, err := graph.NewExecutor(g, store, logger, cfg)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Planner{exec: exec, logger: logger, metrics: metrics}, nil
}

// Plan validates the request and runs a new thread to its end.
//
// Inputs:
//
//	ctx - Cancelling it stops the run after the current node.
//	req - Preferences and output format. ThreadID may be empty.
//	sess - Where progress goes.
//
// Outputs:
//
//	*graph.Result - Nil only when the run never started.
//	error - Validation, loop exhaustion, precondition and cancellation
//	errors. Failures of external services are reported as progress and
//	do not surface here.
func (p *Planner) Plan(ctx context.Context, req Request, sess Session) (*graph.Result, error) {
	if err := req.Preferences.Validate(); err != nil {
		sess.fail(ctx, err.Error())
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = state.FormatPDF
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if err := graph.ValidateThreadID(threadID); err != nil {
		sess.fail(ctx, err.Error())
		return nil, err
	}

	sess.begin(ctx, threadID)
	p.logger.Info("planning started",
		slog.String("thread_id", threadID),
		slog.String("destination", req.Preferences.Destination),
		slog.String("format", string(format)),
	)

	start := time.Now()
	p.metrics.RunStarted(runKindPlan)
	res, err := p.exec.Run(ctx, threadID, state.New(req.Preferences, format), p.runContext(threadID, sess))
	return p.finish(ctx, runKindPlan, sess, start, res, err)
}

// Resume continues a stopped thread from its checkpoint.
func (p *Planner) Resume(ctx context.Context, threadID string, sess Session) (*graph.Result, error) {
	if err := graph.ValidateThreadID(threadID); err != nil {
		sess.fail(ctx, err.Error())
		return nil, err
	}
	sess.begin(ctx, threadID)

	start := time.Now()
	p.metrics.RunStarted(runKindResume)
	res, err := p.exec.Resume(ctx, threadID, p.runContext(threadID, sess))
	return p.finish(ctx, runKindResume, sess, start, res, err)
}

// Thread returns the saved checkpoint of a thread.
func (p *Planner) Thread(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if err := graph.ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	return p.exec.Store().Load(ctx, threadID)
}

// Threads lists the ids of saved threads.
func (p *Planner) Threads(ctx context.Context) ([]string, error) {
	return p.exec.Store().List(ctx)
}

// DeleteThread discards a saved thread.
func (p *Planner) DeleteThread(ctx context.Context, threadID string) error {
	if err := graph.ValidateThreadID(threadID); err != nil {
		return err
	}
	return p.exec.Store().Delete(ctx, threadID)
}

// Graph returns the graph the planner runs.
func (p *Planner) Graph() *graph.Graph { return p.exec.Graph() }

func (p *Planner) runContext(threadID string, sess Session) graph.RunContext {
	rc := graph.RunContext{
		ThreadID: threadID,
		Logger:   p.logger.With(slog.String("thread_id", threadID)),
	}
	if sess.Channel != nil {
		rc.Notifier = sess.Channel
		if sess.Interactive {
			rc.Interaction = &meteredAsker{inner: sess.Channel, metrics: p.metrics}
		}
	}
	return rc
}

func (p *Planner) finish(ctx context.Context, kind string, sess Session, start time.Time, res *graph.Result, err error) (*graph.Result, error) {
	status := string(graph.StatusFailed)
	if res != nil {
		status = string(res.Status)
	}
	p.metrics.RunFinished(kind, status, time.Since(start))

	var loopErr *graph.LoopError
	switch {
	case err == nil && res != nil && res.State.Artifact != nil && !res.State.Artifact.Saved():
		sess.fail(ctx, fmt.Sprintf("❌ Itinerary planning finished but the itinerary was not saved: %s", res.State.Artifact.Error))
	case err == nil:
		sess.complete(ctx)
	case errors.As(err, &loopErr):
		p.metrics.LoopExhausted(graph.Edge{From: loopErr.From, To: loopErr.To}.String())
		sess.fail(ctx, fmt.Sprintf("❌ Itinerary planning stopped: %v", err))
	case errors.Is(err, graph.ErrMaxSteps):
		p.metrics.LoopExhausted("max_steps")
		sess.fail(ctx, fmt.Sprintf("❌ Itinerary planning stopped: %v", err))
	case errors.Is(err, context.Canceled):
		sess.fail(ctx, "❌ Itinerary planning cancelled.")
	default:
		sess.fail(ctx, fmt.Sprintf("❌ Unexpected error: %v", err))
	}
	return res, err
}

func (s Session) begin(ctx context.Context, threadID string) {
	if s.Channel == nil {
		return
	}
	s.Channel.SetThreadID(threadID)
	_ = s.Channel.Emit(ctx, progress.Event{Type: progress.EventSession, ThreadID: threadID})
}

func (s Session) complete(ctx context.Context) {
	if s.Channel != nil {
		_ = s.Channel.Complete(context.WithoutCancel(ctx))
	}
}

func (s Session) fail(ctx context.Context, text string) {
	if s.Channel != nil {
		_ = s.Channel.Fail(context.WithoutCancel(ctx), text)
	}
}

// meteredAsker counts how prompts end.
type meteredAsker struct {
	inner   progress.Interactive
	metrics Metrics
}

func (m *meteredAsker) Ask(ctx context.Context, prompt string) (string, error) {
	reply, err := m.inner.Ask(ctx, prompt)
	switch {
	case err == nil:
		m.metrics.SelectionReply("answered")
	case errors.Is(err, context.DeadlineExceeded):
		m.metrics.SelectionReply("timeout")
	case errors.Is(err, progress.ErrClosed):
		m.metrics.SelectionReply("closed")
	default:
		m.metrics.SelectionReply("error")
	}
	return reply, err
}
