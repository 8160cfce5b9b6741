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
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/search"
)

const researchResultsPerQuery = 5

// categoryDomains restricts searches for some sub-query categories to
// sites known to carry that kind of listing. Dining is unrestricted.
var categoryDomains = map[string][]string{
	state.CategoryAccommodation: {"booking.com", "hotels.com", "airbnb.com", "tripadvisor.com"},
	state.CategoryActivity:      {"viator.com", "tripadvisor.com", "timeout.com", "lonelyplanet.com"},
	state.CategoryTransport:     {"rome2rio.com", "skyscanner.com", "kayak.com"},
}

// ResearchNode runs every sub-query against the search capability and
// merges the hits into documents.
//
// Documents are seeded from the grounding results so the document set
// always contains initial_data. Merging is first-write-wins: a URL
// already present keeps its record, and among new hits the query that
// completed first wins.
type ResearchNode struct {
	graph.BaseNode
	searcher search.Searcher
	cfg      Config
}

func NewResearchNode(searcher search.Searcher, cfg Config) *ResearchNode {
	return &ResearchNode{
		BaseNode: graph.BaseNode{NodeName: NameResearch, NodeTimeout: 3 * time.Minute},
		searcher: searcher,
		cfg:      cfg.withDefaults(),
	}
}

// ResearchRequest builds the search request for one sub-query.
func ResearchRequest(q state.SubQuery, year int) search.Request {
	return search.Request{
		Query:          q.Query + " " + strconv.Itoa(year),
		Depth:          search.DepthAdvanced,
		MaxResults:     researchResultsPerQuery,
		IncludeDomains: categoryDomains[q.Category],
	}
}

func (n *ResearchNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	docs := seedDocuments(s)

	if s.SubQueries == nil {
		return state.Update{}.
			WithDocuments(docs).
			WithMessage("🔍 Researching travel options and details...\n❌ Error during research: no research queries available"), nil
	}

	year := n.cfg.Clock().Year()
	var (
		mu    sync.Mutex
		order = state.NextOrder(docs)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.cfg.SearchConcurrency)
	for _, q := range s.SubQueries {
		g.Go(func() error {
			req := ResearchRequest(q, year)
			results, err := n.searcher.Search(gctx, req)
			if err != nil {
				logger(rc).Warn("research query failed",
					slog.String("query", req.Query),
					slog.String("category", q.Category),
					slog.String("error", err.Error()))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				doc := state.Document{
					URL:           r.URL,
					Title:         r.Title,
					Content:       r.Content,
					Score:         r.Score,
					PublishedDate: r.PublishedDate,
					Query:         q.Query,
					Order:         order,
				}
				if state.MergeDocument(docs, doc) {
					order++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return state.Update{}, err
	}

	return state.Update{}.
		WithDocuments(docs).
		WithMessage(fmt.Sprintf("🔍 Researching travel options and details...\n✓ Found %d relevant sources", len(docs))), nil
}

// seedDocuments copies the current documents and adds any grounding
// result not yet present.
func seedDocuments(s state.ResearchState) map[string]state.Document {
	docs := state.CloneDocuments(s.Documents)
	order := state.NextOrder(docs)
	for _, r := range state.OrderedInitialData(s.InitialData) {
		doc := state.Document{URL: r.URL, Content: r.Content, Score: r.Score, Query: r.Query, Order: order}
		if state.MergeDocument(docs, doc) {
			order++
		}
	}
	return docs
}
