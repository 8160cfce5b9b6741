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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/search"
)

var fixedNow = time.Date(2026, 5, 1, 14, 3, 9, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Clock = func() time.Time { return fixedNow }
	return cfg
}

func testPrefs(t *testing.T) state.TravelPreferences {
	t.Helper()
	p, err := state.DecodePreferences([]byte(`{
		"destination": "Lisbon",
		"start_date": "2026-06-10",
		"end_date": "2026-06-12",
		"budget_min": 800,
		"budget_max": 1500,
		"travel_style": "cultural",
		"preferred_activities": ["sightseeing", "dining"],
		"number_of_travelers": 2
	}`))
	require.NoError(t, err)
	return p
}

func testState(t *testing.T) state.ResearchState {
	t.Helper()
	return state.New(testPrefs(t), state.FormatMarkdown)
}

// fakeSearcher answers from a query-keyed table.
type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string][]search.Result
	errs     map[string]error
	fallback error
	requests []search.Request
}

func (f *fakeSearcher) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Query]; err != nil {
		return nil, err
	}
	if r, ok := f.results[req.Query]; ok {
		return r, nil
	}
	return nil, f.fallback
}

func (f *fakeSearcher) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Query
	}
	return out
}

// fakeExtractor returns canned pages for the URLs it knows.
type fakeExtractor struct {
	pages   map[string]string
	err     error
	batches [][]string
}

func (f *fakeExtractor) Extract(ctx context.Context, urls []string) ([]search.Extracted, error) {
	f.batches = append(f.batches, append([]string(nil), urls...))
	if f.err != nil {
		return nil, f.err
	}
	var out []search.Extracted
	for _, u := range urls {
		if raw, ok := f.pages[u]; ok {
			out = append(out, search.Extracted{URL: u, RawContent: raw})
		}
	}
	return out, nil
}

// fakeLLM returns scripted replies in order and records each call.
type fakeLLM struct {
	replies []string
	err     error
	calls   [][]llm.Message
	params  []llm.GenerationParams
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	f.calls = append(f.calls, messages)
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("fakeLLM: no reply scripted")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeLLM) lastPrompt() string {
	if len(f.calls) == 0 {
		return ""
	}
	msgs := f.calls[len(f.calls)-1]
	return msgs[len(msgs)-1].Content
}

func messageTexts(u state.Update) []string {
	var out []string
	for _, m := range u.Messages() {
		out = append(out, m.Content)
	}
	return out
}

func run(t *testing.T, n graph.Node, s state.ResearchState, rc graph.RunContext) (state.ResearchState, state.Update) {
	t.Helper()
	u, err := n.Run(context.Background(), s, rc)
	require.NoError(t, err)
	return state.Apply(s, u), u
}
