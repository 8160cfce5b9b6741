// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/wayfarer/pkg/ux"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
)

// prompter asks the user one question.
type prompter interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// terminalSink renders planner events on a terminal and answers prompts.
//
// Prompts are answered on their own goroutine: Channel.Send runs under
// the channel lock, so the reply must be delivered after Send returns.
type terminalSink struct {
	printer  *ux.Printer
	prompter prompter
	logger   *slog.Logger

	// abort cancels the run when the user quits a prompt.
	abort context.CancelFunc

	mu sync.Mutex
	ch *progress.Channel
	wg sync.WaitGroup
}

func newTerminalSink(printer *ux.Printer, p prompter, abort context.CancelFunc, logger *slog.Logger) *terminalSink {
	return &terminalSink{printer: printer, prompter: p, abort: abort, logger: logger}
}

// attach binds the channel replies are delivered to.
func (t *terminalSink) attach(ch *progress.Channel) {
	t.mu.Lock()
	t.ch = ch
	t.mu.Unlock()
}

func (t *terminalSink) Send(ctx context.Context, ev progress.Event) error {
	switch ev.Type {
	case progress.EventSession:
		t.printer.KeyValue("Thread", ev.ThreadID)
	case progress.EventProgress, progress.EventComplete:
		t.printer.Progress(ev.Text)
	case progress.EventPrompt:
		t.printer.Prompt(ev.Text)
		t.wg.Add(1)
		go t.answer(ctx, ev.Text)
	case progress.EventError:
		t.printer.Failure(errors.New(ev.Text))
	}
	return nil
}

func (t *terminalSink) answer(ctx context.Context, prompt string) {
	defer t.wg.Done()

	reply, err := t.prompter.Ask(ctx, prompt)
	switch {
	case err == nil:
	case errors.Is(err, huh.ErrUserAborted):
		t.abort()
		return
	default:
		if ctx.Err() == nil {
			t.logger.Warn("prompt failed", "error", err)
		}
		return
	}

	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Deliver(reply); err != nil && !errors.Is(err, progress.ErrClosed) {
		t.logger.Warn("reply not delivered", "error", err)
	}
}

// wait blocks until every prompt goroutine has returned.
func (t *terminalSink) wait() {
	t.wg.Wait()
}

// huhPrompter asks with a huh form: a select list when the prompt lists
// numbered options, a text input otherwise.
type huhPrompter struct {
	accessible bool
}

func (p huhPrompter) Ask(ctx context.Context, prompt string) (string, error) {
	if opts := selectionOptions(prompt); len(opts) > 0 {
		return ux.Select(ctx, "Which cluster should the itinerary be built from?", opts, p.accessible)
	}
	return ux.Input(ctx, firstLine(prompt), p.accessible)
}

var optionLine = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)

// selectionOptions turns the numbered lines of a cluster prompt into
// options keyed by their number, plus the "0" rejection option. Prompts
// without numbered lines yield nil.
func selectionOptions(prompt string) []ux.PromptOption {
	var opts []ux.PromptOption
	for _, line := range strings.Split(prompt, "\n") {
		m := optionLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		label, desc, _ := strings.Cut(m[2], "): ")
		if desc != "" {
			label += ")"
		}
		opts = append(opts, ux.PromptOption{Label: label, Description: desc, Value: m[1]})
	}
	if len(opts) == 0 {
		return nil
	}
	return append(opts, ux.PromptOption{Label: "None of these", Description: "cluster again", Value: "0"})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f any) bool {
	file, ok := f.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// plainOutput reports whether w should be written without styling.
func plainOutput(w io.Writer) bool {
	return !isTerminal(w) || os.Getenv("NO_COLOR") != ""
}
