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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/search"
)

// --- Ground ---

func TestGroundingQueries(t *testing.T) {
	p := testPrefs(t)
	assert.Equal(t, []string{
		"tourist guide Lisbon",
		"best time to visit Lisbon",
		"cultural activities Lisbon",
		"weather Lisbon June",
		"local transportation Lisbon",
	}, GroundingQueries(p))

	p.AccessibilityRequirements = "wheelchair"
	p.DietaryRestrictions = []string{"vegan", "gluten-free"}
	p.AdditionalDestinations = []string{"Porto"}
	q := GroundingQueries(p)
	assert.Contains(t, q, "accessibility wheelchair Lisbon")
	assert.Contains(t, q, "restaurants vegan gluten-free Lisbon")
	assert.Equal(t, []string{"tourist guide Porto", "transportation from Lisbon to Porto"}, q[len(q)-2:])
}

func TestGroundNode_CollectsUniqueResults(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"tourist guide Lisbon": {
			{URL: "https://a.example/1", Content: "Alfama"},
			{URL: "https://a.example/2", Content: "Belem"},
			{URL: "https://a.example/3", Content: "Baixa"},
		},
		"best time to visit Lisbon": {
			{URL: "https://b.example/4", Content: "Spring"},
			{URL: "https://b.example/5", Content: "Autumn"},
		},
	}}
	node := NewGroundNode(searcher, testConfig())

	next, u := run(t, node, testState(t), graph.RunContext{})

	assert.Len(t, next.InitialData, 5)
	assert.Equal(t, "best time to visit Lisbon", next.InitialData["https://b.example/4"].Query)
	assert.Len(t, searcher.queries(), 5)
	for _, r := range searcher.requests {
		assert.Equal(t, 3, r.MaxResults)
	}
	texts := messageTexts(u)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "🔎 Starting initial research for Lisbon...")
	assert.Contains(t, texts[0], "✔️ Gathered initial information about Lisbon")
}

func TestGroundNode_DuplicateURLKeepsFirst(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"tourist guide Lisbon":      {{URL: "https://same.example", Content: "first"}},
		"best time to visit Lisbon": {{URL: "https://same.example", Content: "second"}},
	}}
	cfg := testConfig()
	cfg.SearchConcurrency = 1
	next, _ := run(t, NewGroundNode(searcher, cfg), testState(t), graph.RunContext{})

	require.Len(t, next.InitialData, 1)
	assert.Equal(t, "first", next.InitialData["https://same.example"].Content)
}

func TestGroundNode_AllQueriesFail(t *testing.T) {
	searcher := &fakeSearcher{fallback: errors.New("quota exceeded")}
	next, u := run(t, NewGroundNode(searcher, testConfig()), testState(t), graph.RunContext{})

	assert.Empty(t, next.InitialData)
	assert.Contains(t, messageTexts(u)[0], "❌ Error during initial research: quota exceeded")
}

func TestGroundNode_AdditionalDestinationsMessage(t *testing.T) {
	s := testState(t)
	s.Preferences.AdditionalDestinations = []string{"Porto", "Sintra"}
	_, u := run(t, NewGroundNode(&fakeSearcher{}, testConfig()), s, graph.RunContext{})

	assert.Contains(t, messageTexts(u)[0], "✔️ Including information about additional destinations: Porto, Sintra")
}

func TestGroundNode_EmptyDestinationIsPrecondition(t *testing.T) {
	s := testState(t)
	s.Preferences.Destination = " "
	_, err := NewGroundNode(&fakeSearcher{}, testConfig()).Run(context.Background(), s, graph.RunContext{})
	assert.ErrorIs(t, err, graph.ErrPrecondition)
}

// --- Research ---

func TestResearchRequest(t *testing.T) {
	req := ResearchRequest(state.SubQuery{Query: "boutique hotels Alfama", Category: state.CategoryAccommodation}, 2026)
	assert.Equal(t, "boutique hotels Alfama 2026", req.Query)
	assert.Equal(t, search.DepthAdvanced, req.Depth)
	assert.Equal(t, 5, req.MaxResults)
	assert.Equal(t, []string{"booking.com", "hotels.com", "airbnb.com", "tripadvisor.com"}, req.IncludeDomains)

	assert.Equal(t, []string{"rome2rio.com", "skyscanner.com", "kayak.com"},
		ResearchRequest(state.SubQuery{Category: state.CategoryTransport}, 2026).IncludeDomains)
	assert.Equal(t, []string{"viator.com", "tripadvisor.com", "timeout.com", "lonelyplanet.com"},
		ResearchRequest(state.SubQuery{Category: state.CategoryActivity}, 2026).IncludeDomains)
	assert.Nil(t, ResearchRequest(state.SubQuery{Category: state.CategoryDining}, 2026).IncludeDomains)
}

func TestResearchNode_MergesIntoSeededDocuments(t *testing.T) {
	s := testState(t)
	s.InitialData = map[string]state.InitialResult{
		"https://guide.example": {URL: "https://guide.example", Content: "grounding", Order: 0},
	}
	s.SubQueries = []state.SubQuery{
		{Query: "hotels Alfama", Category: state.CategoryAccommodation},
		{Query: "tram 28", Category: state.CategoryTransport},
	}
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"hotels Alfama 2026": {
				{URL: "https://booking.com/h1", Title: "Hotel 1"},
				{URL: "https://guide.example", Title: "should not replace grounding"},
			},
		},
		errs: map[string]error{"tram 28 2026": errors.New("timeout")},
	}

	next, u := run(t, NewResearchNode(searcher, testConfig()), s, graph.RunContext{})

	require.Len(t, next.Documents, 2)
	assert.Equal(t, "grounding", next.Documents["https://guide.example"].Content)
	assert.Equal(t, "hotels Alfama", next.Documents["https://booking.com/h1"].Query)
	assert.Greater(t, next.Documents["https://booking.com/h1"].Order, next.Documents["https://guide.example"].Order)
	assert.Contains(t, messageTexts(u)[0], "✓ Found 2 relevant sources")
	assert.ElementsMatch(t, []string{"hotels Alfama 2026", "tram 28 2026"}, searcher.queries())
}

func TestResearchNode_NilSubQueriesSkipsSearch(t *testing.T) {
	s := testState(t)
	s.InitialData = map[string]state.InitialResult{"https://x.example": {URL: "https://x.example"}}
	searcher := &fakeSearcher{}

	next, u := run(t, NewResearchNode(searcher, testConfig()), s, graph.RunContext{})

	assert.Empty(t, searcher.queries())
	assert.Len(t, next.Documents, 1)
	assert.Contains(t, messageTexts(u)[0], "❌ Error during research")
}

func TestResearchNode_Idempotent(t *testing.T) {
	s := testState(t)
	s.SubQueries = []state.SubQuery{{Query: "fado", Category: state.CategoryActivity}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"fado 2026": {{URL: "https://timeout.com/fado", Title: "Fado"}},
	}}
	node := NewResearchNode(searcher, testConfig())

	once, _ := run(t, node, s, graph.RunContext{})
	twice, _ := run(t, node, once, graph.RunContext{})

	assert.Equal(t, once.Documents, twice.Documents)
}
