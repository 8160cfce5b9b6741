// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

const decomposeSystemPrompt = "You are a travel research expert generating specific search queries for trip planning."

// errNoQueries is reported when the model answered but nothing usable
// survived normalization.
var errNoQueries = errors.New("no usable search queries in model response")

// DecomposeNode turns preferences and grounding data into targeted
// research queries.
type DecomposeNode struct {
	graph.BaseNode
	model llm.LLMClient
	cfg   Config
}

func NewDecomposeNode(model llm.LLMClient, cfg Config) *DecomposeNode {
	return &DecomposeNode{
		BaseNode: graph.BaseNode{NodeName: NameDecompose, NodeTimeout: 3 * time.Minute},
		model:    model,
		cfg:      cfg.withDefaults(),
	}
}

type subQueryResponse struct {
	SubQueries []state.SubQuery `json:"sub_queries"`
}

func (n *DecomposeNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	messages := []llm.Message{
		llm.System(decomposeSystemPrompt),
		llm.User(decomposePrompt(s)),
	}
	queries, err := n.generate(ctx, messages, s.Preferences.Destination)
	if err != nil {
		if cancelled(ctx, err) {
			return state.Update{}, err
		}
		return state.Update{}.
			WithSubQueries(nil).
			WithMessage(fmt.Sprintf("🚨 An error occurred during query generation: %v", err)), nil
	}

	return state.Update{}.
		WithSubQueries(queries).
		WithMessage(fmt.Sprintf("🤔 Generating detailed travel research questions...\n✓ Generated %d specific research queries", len(queries))), nil
}

func (n *DecomposeNode) generate(ctx context.Context, messages []llm.Message, destination string) ([]state.SubQuery, error) {
	raw, err := n.model.Chat(ctx, messages, n.cfg.params(true))
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	resp, err := llm.ExtractJSONAs[subQueryResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}
	queries := normalizeSubQueries(resp.SubQueries, destination)
	if len(queries) == 0 {
		return nil, errNoQueries
	}
	return queries, nil
}

// normalizeSubQueries canonicalizes categories, fills missing locations
// and drops entries without a query or with an unknown category.
func normalizeSubQueries(in []state.SubQuery, destination string) []state.SubQuery {
	out := make([]state.SubQuery, 0, len(in))
	for _, q := range in {
		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" {
			continue
		}
		category, ok := normalizeCategory(q.Category)
		if !ok {
			continue
		}
		q.Category = category
		q.Location = strings.TrimSpace(q.Location)
		if q.Location == "" {
			q.Location = destination
		}
		out = append(out, q)
	}
	return out
}

func normalizeCategory(c string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "accommodation", "accommodations", "hotel", "hotels", "lodging":
		return state.CategoryAccommodation, true
	case "activity", "activities", "attraction", "attractions":
		return state.CategoryActivity, true
	case "transport", "transportation", "transit":
		return state.CategoryTransport, true
	case "dining", "food", "restaurant", "restaurants":
		return state.CategoryDining, true
	default:
		return "", false
	}
}

func decomposePrompt(s state.ResearchState) string {
	p := s.Preferences
	var b strings.Builder
	fmt.Fprintf(&b, "You are a travel research expert planning a trip to %s from %s to %s.\n\n", p.Destination, p.StartDate, p.EndDate)

	b.WriteString("### Travel Preferences\n")
	b.WriteString(tripDetails(p))
	fmt.Fprintf(&b, "- Additional Destinations: %s\n\n", joinOrNone(p.AdditionalDestinations))

	b.WriteString("### Special Requirements\n")
	b.WriteString(specialRequirements(p))

	b.WriteString("\n### Initial Research Data\n")
	initial := state.OrderedInitialData(s.InitialData)
	if len(initial) == 0 {
		b.WriteString("None\n")
	}
	for _, r := range initial {
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.URL, r.Query, state.Truncate(r.Content, 300))
	}

	b.WriteString(`
Generate specific search queries covering:
1. Accommodations matching the travel style and budget
2. Activities and attractions aligned with preferences
3. Local transportation options
4. Dining options considering any dietary restrictions
5. Weather-appropriate activities for the dates
6. Safety and practical considerations
7. Special events or seasonal activities during the visit
`)
	if len(p.AdditionalDestinations) > 0 {
		b.WriteString(`
This is a multi-destination trip. Also include queries about:
- Inter-city transportation
- Optimal route planning
- Location-specific considerations
`)
	}
	b.WriteString(`
Respond with a JSON object only, in this format:
{"sub_queries": [{"query": "specific search terms", "category": "accommodation|activity|transport|dining", "location": "city"}]}
`)
	return b.String()
}
