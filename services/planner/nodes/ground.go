// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/search"
)

const groundResultsPerQuery = 3

// GroundNode gathers general background about the destination.
//
// Description:
//
//	Derives a fixed set of queries from the preferences and runs them
//	concurrently. Results are keyed by URL; when two queries return the
//	same URL the one that completed first wins.
//
// Outputs:
//
//	initial_data and one progress message.
//
// Thread Safety:
//
//	Safe for concurrent use.
type GroundNode struct {
	graph.BaseNode
	searcher search.Searcher
	cfg      Config
}

func NewGroundNode(searcher search.Searcher, cfg Config) *GroundNode {
	return &GroundNode{
		BaseNode: graph.BaseNode{NodeName: NameGround, NodeTimeout: 2 * time.Minute},
		searcher: searcher,
		cfg:      cfg.withDefaults(),
	}
}

// GroundingQueries returns the grounding queries for p in issue order.
func GroundingQueries(p state.TravelPreferences) []string {
	d := p.Destination
	queries := []string{
		"tourist guide " + d,
		"best time to visit " + d,
		fmt.Sprintf("%s activities %s", p.TravelStyle, d),
		fmt.Sprintf("weather %s %s", d, p.Start().Month()),
		"local transportation " + d,
	}
	if strings.TrimSpace(p.AccessibilityRequirements) != "" {
		queries = append(queries, fmt.Sprintf("accessibility %s %s", p.AccessibilityRequirements, d))
	}
	if len(p.DietaryRestrictions) > 0 {
		queries = append(queries, fmt.Sprintf("restaurants %s %s", strings.Join(p.DietaryRestrictions, " "), d))
	}
	for _, x := range p.AdditionalDestinations {
		queries = append(queries, "tourist guide "+x, fmt.Sprintf("transportation from %s to %s", d, x))
	}
	return queries
}

func (n *GroundNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	p := s.Preferences
	if strings.TrimSpace(p.Destination) == "" {
		return state.Update{}, precondition("destination is empty")
	}

	queries := GroundingQueries(p)
	var (
		mu       sync.Mutex
		data     = make(map[string]state.InitialResult)
		order    int64
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.cfg.SearchConcurrency)
	for _, q := range queries {
		g.Go(func() error {
			results, err := n.searcher.Search(gctx, search.Request{Query: q, MaxResults: groundResultsPerQuery})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastErr = err
				logger(rc).Warn("grounding query failed",
					slog.String("query", q),
					slog.String("error", err.Error()))
				return nil
			}
			for _, r := range results {
				if r.URL == "" {
					continue
				}
				if _, seen := data[r.URL]; seen {
					continue
				}
				data[r.URL] = state.InitialResult{URL: r.URL, Content: r.Content, Score: r.Score, Query: q, Order: order}
				order++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return state.Update{}, err
	}

	lines := []string{fmt.Sprintf("🔎 Starting initial research for %s...", p.Destination)}
	if failures == len(queries) {
		lines = append(lines, fmt.Sprintf("❌ Error during initial research: %v", lastErr))
	} else {
		lines = append(lines, fmt.Sprintf("✔️ Gathered initial information about %s", p.Destination))
		if len(p.AdditionalDestinations) > 0 {
			lines = append(lines, "✔️ Including information about additional destinations: "+strings.Join(p.AdditionalDestinations, ", "))
		}
	}

	return state.Update{}.
		WithInitialData(data).
		WithMessage(strings.Join(lines, "\n")), nil
}
