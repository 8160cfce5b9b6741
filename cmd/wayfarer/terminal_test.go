// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/wayfarer/pkg/ux"
	"github.com/AleutianAI/wayfarer/services/planner/nodes"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

type fakePrompter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakePrompter) Ask(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSelectionOptions_ClusterPrompt(t *testing.T) {
	prompt := nodes.SelectionPrompt([]state.Cluster{
		{Category: "Museums", Description: "Art and history", URLs: []string{"a", "b"}},
		{Category: "Food", URLs: []string{"c"}},
	})

	opts := selectionOptions(prompt)
	if len(opts) != 3 {
		t.Fatalf("got %d options, want 3: %+v", len(opts), opts)
	}
	if opts[0].Value != "1" || opts[0].Label != "Museums (2 sources)" || opts[0].Description != "Art and history" {
		t.Errorf("first option = %+v", opts[0])
	}
	if opts[1].Value != "2" || opts[1].Label != "Food (1 sources)" || opts[1].Description != "" {
		t.Errorf("second option = %+v", opts[1])
	}
	if opts[2].Value != "0" {
		t.Errorf("last option should reject every cluster, got %+v", opts[2])
	}
}

func TestSelectionOptions_FreeText(t *testing.T) {
	if opts := selectionOptions("Invalid input. Please enter a valid number."); opts != nil {
		t.Errorf("expected no options, got %+v", opts)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine() = %q", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine() = %q", got)
	}
}

func TestTerminalSink_RendersEvents(t *testing.T) {
	var out bytes.Buffer
	sink := newTerminalSink(ux.NewPrinter(&out, true), &fakePrompter{}, func() {}, discardLogger())
	ch := progress.NewChannel("trip-7", sink)
	sink.attach(ch)
	ctx := context.Background()

	_ = ch.Emit(ctx, progress.Event{Type: progress.EventSession})
	_ = ch.Notify(ctx, "🔎 Researching Lisbon")
	_ = ch.Fail(ctx, "search provider unavailable")
	_ = ch.Complete(ctx)

	text := out.String()
	for _, want := range []string{"trip-7", "Researching Lisbon", "search provider unavailable", progress.CompletionMessage} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestTerminalSink_DeliversReply(t *testing.T) {
	var out bytes.Buffer
	p := &fakePrompter{reply: "2"}
	sink := newTerminalSink(ux.NewPrinter(&out, true), p, func() {}, discardLogger())
	ch := progress.NewChannel("trip-7", sink)
	sink.attach(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := ch.Ask(ctx, "Pick one\n\n1. Museums (2 sources)")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply != "2" {
		t.Errorf("reply = %q, want 2", reply)
	}
	sink.wait()

	if len(p.prompts) != 1 {
		t.Errorf("prompter called %d times", len(p.prompts))
	}
	if !strings.Contains(out.String(), "Museums") {
		t.Errorf("prompt not printed: %q", out.String())
	}
}

func TestTerminalSink_AbortCancelsRun(t *testing.T) {
	aborted := make(chan struct{})
	var once sync.Once
	abort := func() { once.Do(func() { close(aborted) }) }

	sink := newTerminalSink(ux.NewPrinter(&bytes.Buffer{}, true), &fakePrompter{err: huh.ErrUserAborted}, abort, discardLogger())
	ch := progress.NewChannel("trip-7", sink)
	sink.attach(ch)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-aborted
		cancel()
	}()

	_, err := ch.Ask(ctx, "Pick one")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ask() error = %v, want context.Canceled", err)
	}
	sink.wait()
}

func TestTerminalSink_ReplyAfterCloseIsDropped(t *testing.T) {
	sink := newTerminalSink(ux.NewPrinter(&bytes.Buffer{}, true), &fakePrompter{reply: "1"}, func() {}, discardLogger())
	ch := progress.NewChannel("trip-7", sink)
	ch.Close()
	sink.attach(ch)

	// Close already happened, so only the goroutine path is exercised.
	if err := sink.Send(context.Background(), progress.Event{Type: progress.EventPrompt, Text: "Pick one"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	sink.wait()
}

func TestPlainOutput_NonTerminal(t *testing.T) {
	if !plainOutput(&bytes.Buffer{}) {
		t.Error("a buffer is never a terminal")
	}
}
