// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/wayfarer/pkg/logging"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

func say(name, text string) *FuncNode {
	return NewFuncNode(name, func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		return state.Update{}.WithMessage(text), nil
	})
}

func newTestExecutor(t *testing.T, b *Builder, store Store, cfg ExecutorConfig) *Executor {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	e, err := NewExecutor(g, store, nil, cfg)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return e
}

func linear(nodes ...Node) *Builder {
	b := NewBuilder("test")
	for _, n := range nodes {
		b.AddNode(n)
	}
	b.SetEntry(nodes[0].Name()).SetFinish(nodes[len(nodes)-1].Name())
	for i := 0; i+1 < len(nodes); i++ {
		b.AddEdge(nodes[i].Name(), nodes[i+1].Name())
	}
	return b
}

// --- Run Tests ---

func TestExecutor_RunLinear(t *testing.T) {
	store := NewMemoryStore()
	e := newTestExecutor(t, linear(say("a", "one"), say("b", "two"), say("c", "three")), store, ExecutorConfig{})
	notes := progress.NewScripted()

	res, err := e.Run(context.Background(), "thread-1", state.ResearchState{}, RunContext{Notifier: notes})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != StatusCompleted || res.Steps != 3 {
		t.Errorf("status = %s steps = %d", res.Status, res.Steps)
	}
	if strings.Join(res.Path, ",") != "a,b,c" {
		t.Errorf("path = %v", res.Path)
	}
	if strings.Join(notes.Notes, ",") != "one,two,three" {
		t.Errorf("relayed = %v", notes.Notes)
	}
	if len(res.State.Messages) != 3 {
		t.Errorf("state messages = %d, want 3", len(res.State.Messages))
	}
	if _, err := store.Load(context.Background(), "thread-1"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("completed checkpoint should be deleted, Load() error = %v", err)
	}
}

func TestExecutor_LogsCarryTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Stderr: &buf})
	defer logger.Close()

	g, err := linear(noop("a"), noop("b")).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	e, err := NewExecutor(g, nil, logger.Slog(), ExecutorConfig{})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	if _, err := e.Run(ctx, "thread-log", state.ResearchState{}, RunContext{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var lines int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"thread_id":"thread-log"`) {
			continue
		}
		lines++
		if !strings.Contains(line, sc.TraceID().String()) {
			t.Errorf("log line without trace id: %s", line)
		}
	}
	if lines == 0 {
		t.Fatalf("no thread log lines in %q", buf.String())
	}
}

func TestExecutor_GeneratesThreadID(t *testing.T) {
	e := newTestExecutor(t, linear(noop("a"), noop("b")), nil, ExecutorConfig{})
	res, err := e.Run(context.Background(), "", state.ResearchState{}, RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ValidateThreadID(res.ThreadID) != nil {
		t.Errorf("generated thread id %q is invalid", res.ThreadID)
	}
}

func TestExecutor_InvalidThreadID(t *testing.T) {
	e := newTestExecutor(t, linear(noop("a"), noop("b")), nil, ExecutorConfig{})
	if _, err := e.Run(context.Background(), "../etc", state.ResearchState{}, RunContext{}); !errors.Is(err, ErrInvalidThreadID) {
		t.Errorf("Run() error = %v, want ErrInvalidThreadID", err)
	}
}

func TestExecutor_RetainCompleted(t *testing.T) {
	store := NewMemoryStore()
	e := newTestExecutor(t, linear(noop("a"), noop("b")), store, ExecutorConfig{RetainCompleted: true})

	if _, err := e.Run(context.Background(), "kept", state.ResearchState{}, RunContext{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	cp, err := store.Load(context.Background(), "kept")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp.Status != StatusCompleted || cp.Next != "" {
		t.Errorf("checkpoint = %s next %q", cp.Status, cp.Next)
	}
	if _, err := e.Resume(context.Background(), "kept", RunContext{}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("Resume() error = %v, want ErrAlreadyCompleted", err)
	}
}

func TestExecutor_ConditionalRouting(t *testing.T) {
	b := NewBuilder("test").
		AddNode(NewFuncNode("start", func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
			return state.Update{}.WithReport("go left"), nil
		})).
		AddNode(noop("left")).AddNode(noop("right")).AddNode(noop("end")).
		SetEntry("start").SetFinish("end").
		AddConditionalEdge("start", func(s state.ResearchState) string {
			if strings.Contains(s.Report, "left") {
				return "left"
			}
			return "right"
		}, "left", "right").
		AddEdge("left", "end").AddEdge("right", "end")

	e := newTestExecutor(t, b, nil, ExecutorConfig{})
	res, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(res.Path, ",") != "start,left,end" {
		t.Errorf("path = %v", res.Path)
	}
}

func TestExecutor_ManualMessagesSuppressed(t *testing.T) {
	manual := NewFuncNode("a", func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		return state.Update{}.WithManualMessage("pick one").WithMessage("visible"), nil
	})
	e := newTestExecutor(t, linear(manual, noop("b")), nil, ExecutorConfig{})
	notes := progress.NewScripted()

	res, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{Notifier: notes})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(notes.Notes) != 1 || notes.Notes[0] != "visible" {
		t.Errorf("relayed = %v, want [visible]", notes.Notes)
	}
	if len(res.State.Messages) != 2 {
		t.Errorf("manual message should still be logged, got %d messages", len(res.State.Messages))
	}
}

// --- Loop Governor Tests ---

func loopingBuilder(limit int) *Builder {
	return NewBuilder("test").
		AddNode(noop("a")).AddNode(noop("b")).AddNode(noop("end")).
		SetEntry("a").SetFinish("end").
		AddEdge("a", "b").
		AddConditionalEdge("b", always("a"), "a", "end").
		LimitLoop("b", "a", limit)
}

func TestExecutor_LoopExhausted(t *testing.T) {
	store := NewMemoryStore()
	e := newTestExecutor(t, loopingBuilder(2), store, ExecutorConfig{})

	res, err := e.Run(context.Background(), "loop", state.ResearchState{}, RunContext{})

	var loopErr *LoopError
	if !errors.As(err, &loopErr) {
		t.Fatalf("Run() error = %v, want *LoopError", err)
	}
	if res.Status != StatusExhausted {
		t.Errorf("status = %s, want exhausted", res.Status)
	}
	if len(res.Path) != 6 {
		t.Errorf("path = %v, want 6 steps (two loops plus the final pass)", res.Path)
	}

	cp, err := store.Load(context.Background(), "loop")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp.Status != StatusExhausted || cp.Loops["b->a"] != 2 || cp.Next != "a" {
		t.Errorf("checkpoint = status %s loops %v next %q", cp.Status, cp.Loops, cp.Next)
	}
}

func TestExecutor_MaxSteps(t *testing.T) {
	e := newTestExecutor(t, loopingBuilder(100), nil, ExecutorConfig{MaxSteps: 5})

	res, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{})
	if !errors.Is(err, ErrMaxSteps) {
		t.Fatalf("Run() error = %v, want ErrMaxSteps", err)
	}
	if res.Steps != 5 || res.Status != StatusExhausted {
		t.Errorf("steps = %d status = %s", res.Steps, res.Status)
	}
}

// --- Failure and Resume Tests ---

func TestExecutor_NodeFailureThenResume(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	flaky := NewFuncNode("b", func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		if fail.Load() {
			return state.Update{}, ErrPrecondition
		}
		return state.Update{}.WithMessage("b done"), nil
	})

	store := NewMemoryStore()
	e := newTestExecutor(t, linear(say("a", "a done"), flaky, noop("c")), store, ExecutorConfig{})

	res, err := e.Run(context.Background(), "resumable", state.ResearchState{}, RunContext{})
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeName != "b" {
		t.Fatalf("Run() error = %v, want NodeError for b", err)
	}
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("error should wrap ErrPrecondition: %v", err)
	}
	if res.Status != StatusFailed || res.FailedNode != "b" {
		t.Errorf("status = %s failed node = %q", res.Status, res.FailedNode)
	}

	cp, err := store.Load(context.Background(), "resumable")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp.Next != "b" || cp.Step != 1 {
		t.Errorf("checkpoint next = %q step = %d", cp.Next, cp.Step)
	}

	fail.Store(false)
	res, err = e.Resume(context.Background(), "resumable", RunContext{})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if strings.Join(res.Path, ",") != "b,c" || res.Steps != 3 {
		t.Errorf("resumed path = %v steps = %d", res.Path, res.Steps)
	}
	if len(res.State.Messages) != 2 || res.State.Messages[0].Content != "a done" {
		t.Errorf("state not carried across resume: %+v", res.State.Messages)
	}
}

func TestExecutor_ResumeExhaustedResetsLoops(t *testing.T) {
	var passes atomic.Int32
	b := NewBuilder("test").
		AddNode(noop("a")).AddNode(noop("b")).AddNode(noop("end")).
		SetEntry("a").SetFinish("end").
		AddEdge("a", "b").
		AddConditionalEdge("b", func(state.ResearchState) string {
			if passes.Add(1) > 4 {
				return "end"
			}
			return "a"
		}, "a", "end").
		LimitLoop("b", "a", 2)

	e := newTestExecutor(t, b, nil, ExecutorConfig{})
	if _, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{}); !errors.Is(err, ErrLoopExhausted) {
		t.Fatalf("Run() error = %v, want ErrLoopExhausted", err)
	}
	res, err := e.Resume(context.Background(), "t", RunContext{})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s", res.Status)
	}
}

func TestExecutor_ResumeUnknownThread(t *testing.T) {
	e := newTestExecutor(t, linear(noop("a"), noop("b")), nil, ExecutorConfig{})
	if _, err := e.Resume(context.Background(), "missing", RunContext{}); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Resume() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestExecutor_NodeTimeout(t *testing.T) {
	slow := NewFuncNode("slow", func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		<-ctx.Done()
		return state.Update{}, ctx.Err()
	}).WithTimeout(10 * time.Millisecond)

	e := newTestExecutor(t, linear(slow, noop("b")), nil, ExecutorConfig{})
	res, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{})
	if !errors.Is(err, ErrNodeTimeout) {
		t.Fatalf("Run() error = %v, want ErrNodeTimeout", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}

func TestExecutor_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := NewFuncNode("a", func(c context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		cancel()
		return state.Update{}, nil
	})
	e := newTestExecutor(t, linear(cancelling, noop("b")), nil, ExecutorConfig{})

	res, err := e.Run(ctx, "t", state.ResearchState{}, RunContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res.Status != StatusCanceled {
		t.Errorf("status = %s, want canceled", res.Status)
	}
}

func TestExecutor_AlreadyRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := NewFuncNode("a", func(ctx context.Context, s state.ResearchState, rc RunContext) (state.Update, error) {
		close(started)
		<-release
		return state.Update{}, nil
	})
	e := newTestExecutor(t, linear(blocking, noop("b")), nil, ExecutorConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), "busy", state.ResearchState{}, RunContext{})
		done <- err
	}()
	<-started

	if _, err := e.Run(context.Background(), "busy", state.ResearchState{}, RunContext{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run() error = %v", err)
	}
}

func TestExecutor_UndeclaredRoute(t *testing.T) {
	b := NewBuilder("test").
		AddNode(noop("a")).AddNode(noop("b")).
		SetEntry("a").SetFinish("b").
		AddConditionalEdge("a", always("ghost"), "b")
	e := newTestExecutor(t, b, nil, ExecutorConfig{})

	res, err := e.Run(context.Background(), "t", state.ResearchState{}, RunContext{})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Run() error = %v, want ErrNoRoute", err)
	}
	if res.FailedNode != "a" {
		t.Errorf("failed node = %q", res.FailedNode)
	}
}
