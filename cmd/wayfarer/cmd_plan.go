// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfarer/pkg/ux"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

func runPlan(cmd *cobra.Command, args []string) error {
	data, err := readPreferences(cmd, prefsPath)
	if err != nil {
		return err
	}
	prefs, err := state.DecodePreferences(data)
	if err != nil {
		return err
	}
	format := outputFormat
	if format == "" {
		format = cfg.Output.Format
	}
	fmtValue, err := state.ParseOutputFormat(format)
	if err != nil {
		return err
	}

	printer := ux.NewPrinter(cmd.OutOrStdout(), plainOutput(cmd.OutOrStdout()))
	printer.Title("Planning your trip")
	printer.Summary(prefs.Summary())

	req := workflow.Request{ThreadID: threadID, Preferences: prefs, Format: fmtValue}
	return runSession(cmd, printer, func(ctx context.Context, a *app, sess workflow.Session) (*graph.Result, error) {
		return a.planner.Plan(ctx, req, sess)
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]
	printer := ux.NewPrinter(cmd.OutOrStdout(), plainOutput(cmd.OutOrStdout()))
	printer.Title("Resuming " + id)
	return runSession(cmd, printer, func(ctx context.Context, a *app, sess workflow.Session) (*graph.Result, error) {
		return a.planner.Resume(ctx, id, sess)
	})
}

type runFunc func(ctx context.Context, a *app, sess workflow.Session) (*graph.Result, error)

// runSession drives one planning run on the terminal. Ctrl-C cancels the
// run; its checkpoint is kept so the thread can be resumed.
func runSession(cmd *cobra.Command, printer *ux.Printer, run runFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, logger(), appOptions{telemetry: true})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelClose()
		_ = a.Close(closeCtx)
	}()

	interactive := !noInteractive && isTerminal(cmd.InOrStdin())
	accessible, _ := strconv.ParseBool(os.Getenv("ACCESSIBLE"))
	sink := newTerminalSink(printer, huhPrompter{accessible: accessible}, cancel, logger())
	ch := progress.NewChannel("", sink)
	sink.attach(ch)

	res, runErr := run(ctx, a, workflow.Session{Channel: ch, Interactive: interactive})
	ch.Close()
	cancel()
	sink.wait()

	if res != nil {
		printResult(printer, res)
	}
	return runErr
}

func printResult(p *ux.Printer, res *graph.Result) {
	p.KeyValue("Thread", res.ThreadID)
	p.KeyValue("Status", string(res.Status))
	p.KeyValue("Steps", strconv.Itoa(res.Steps))
	p.KeyValue("Duration", res.Duration.Round(time.Millisecond).String())
	if a := res.State.Artifact; a.Saved() {
		p.KeyValue("Itinerary", a.Location)
	}
	if res.Status != graph.StatusCompleted {
		p.KeyValue("Resume with", "wayfarer resume "+res.ThreadID)
	}
}

// readPreferences reads the preferences file, or stdin for "-".
func readPreferences(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	return data, nil
}
