// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search defines the web search and content extraction
// capabilities the planner depends on.
package search

import (
	"context"
	"strings"
)

// Search depths.
const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"
)

// Request is one web search query.
type Request struct {
	Query          string   `json:"query"`
	Depth          string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

// Result is a single search hit.
type Result struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Extracted is the full page content for one URL. Text is the cleaned
// page text when the provider supplies one.
type Extracted struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
	Text       string `json:"text,omitempty"`
}

// PlainText returns Text, or RawContent with whitespace runs collapsed
// when the provider sent no cleaned text.
func (e Extracted) PlainText() string {
	if t := strings.TrimSpace(e.Text); t != "" {
		return t
	}
	return strings.Join(strings.Fields(e.RawContent), " ")
}

// Searcher runs web search queries.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

// Extractor fetches full page content for a batch of URLs. URLs that
// could not be extracted are omitted from the result.
type Extractor interface {
	Extract(ctx context.Context, urls []string) ([]Extracted, error)
}
