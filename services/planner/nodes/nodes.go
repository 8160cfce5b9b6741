// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nodes implements the itinerary planning steps.
//
// # Description
//
// Each node reads a snapshot of the research state, talks to at most one
// or two external capabilities (search, extraction, generation, artifact
// storage) and returns the fields it changed. External failures are
// reported through messages and safe defaults; only broken preconditions
// and cancellation are returned as errors.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// Node names. They are the route names used by the workflow graph and
// the identifiers stored in checkpoints.
const (
	NameGround       = "initial_grounding"
	NameDecompose    = "sub_questions_gen"
	NameResearch     = "research"
	NameCluster      = "cluster"
	NameManualSelect = "manual_cluster_selection"
	NameEnrich       = "enrich_docs"
	NameGenerate     = "generate_report"
	NameEvaluate     = "eval_report"
	NamePublish      = "publish"
)

// Config holds the tunables shared by the nodes.
type Config struct {
	// SearchConcurrency bounds in-flight search calls per node.
	SearchConcurrency int

	// SelectionTimeout bounds the wait for a manual cluster choice.
	SelectionTimeout time.Duration

	// ContextBudget caps, in characters, the research text handed to
	// the itinerary generator.
	ContextBudget int

	// Temperature for every generation call.
	Temperature float32

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SearchConcurrency: 4,
		SelectionTimeout:  10 * time.Minute,
		ContextBudget:     60000,
		Temperature:       0,
		Clock:             time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SearchConcurrency <= 0 {
		c.SearchConcurrency = d.SearchConcurrency
	}
	if c.SelectionTimeout <= 0 {
		c.SelectionTimeout = d.SelectionTimeout
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = d.ContextBudget
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

func (c Config) params(jsonMode bool) llm.GenerationParams {
	t := c.Temperature
	return llm.GenerationParams{Temperature: &t, JSONMode: jsonMode}
}

// cancelled reports whether err stems from the caller giving up. Such
// errors abort the run instead of becoming a diagnostic message.
func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", graph.ErrPrecondition, fmt.Sprintf(format, args...))
}

func logger(rc graph.RunContext) *slog.Logger {
	if rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

// tripDetails is the preferences block shared by the prompts.
func tripDetails(p state.TravelPreferences) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Dates: %s to %s\n", p.StartDate, p.EndDate)
	fmt.Fprintf(&b, "- Style: %s\n", p.TravelStyle)
	fmt.Fprintf(&b, "- Budget Range: $%s - $%s\n", state.FormatAmount(p.BudgetMin), state.FormatAmount(p.BudgetMax))
	fmt.Fprintf(&b, "- Travelers: %d\n", p.NumberOfTravelers)
	fmt.Fprintf(&b, "- Preferred Activities: %s\n", strings.Join(p.ActivityNames(), ", "))
	fmt.Fprintf(&b, "- Languages: %s\n", joinOrNone(p.PreferredLanguages))
	return b.String()
}

func specialRequirements(p state.TravelPreferences) string {
	return fmt.Sprintf("- Accessibility: %s\n- Dietary: %s\n",
		orNone(p.AccessibilityRequirements), joinOrNone(p.DietaryRestrictions))
}
