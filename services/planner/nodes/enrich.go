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
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/search"
)

const (
	maxURLsPerCluster  = 5
	maxEnrichURLs      = 20
	maxExtractBatch    = 20
	enrichPreviewRunes = 100
)

var enrichURLPattern = regexp.MustCompile(`^(https?://)[\w.-]+(:\d+)?(/[\w./-]*)?$`)

// EnrichNode fetches full page content for the clustered URLs and
// replaces documents with the enriched records.
type EnrichNode struct {
	graph.BaseNode
	extractor search.Extractor
	cfg       Config
}

func NewEnrichNode(extractor search.Extractor, cfg Config) *EnrichNode {
	return &EnrichNode{
		BaseNode:  graph.BaseNode{NodeName: NameEnrich, NodeTimeout: 3 * time.Minute},
		extractor: extractor,
		cfg:       cfg.withDefaults(),
	}
}

func (n *EnrichNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	clusters := s.DocumentClusters
	chosen, ok := s.ChosenClusterValue()
	if ok && chosen >= len(clusters) {
		return state.Update{}, precondition("chosen cluster %d out of range (%d clusters)", chosen, len(clusters))
	}
	if !ok {
		chosen = -1
	}

	header := "🔍 Enriching travel information..."
	urls := CollectURLs(prioritize(clusters, chosen))
	if len(urls) == 0 {
		return state.Update{}.
			WithDocuments(map[string]state.Document{}).
			WithMessage(header + "\n❌ No valid URLs to enrich. Ensure clusters contain valid URLs."), nil
	}

	enriched := make(map[string]state.Document, len(urls))
	var order int64
	for start := 0; start < len(urls); start += maxExtractBatch {
		batch := urls[start:min(start+maxExtractBatch, len(urls))]
		pages, err := n.extractor.Extract(ctx, batch)
		if err != nil {
			if cancelled(ctx, err) {
				return state.Update{}, err
			}
			return state.Update{}.
				WithDocuments(enriched).
				WithMessage(fmt.Sprintf("%s\n🚨 Error during content enrichment: %v", header, err)), nil
		}
		for _, page := range pages {
			if page.URL == "" {
				continue
			}
			if _, dup := enriched[page.URL]; dup {
				continue
			}
			enriched[page.URL] = enrichDocument(s.Documents[page.URL], page, clusters, order)
			order++
		}
	}

	if len(enriched) == 0 {
		return state.Update{}.
			WithDocuments(enriched).
			WithMessage(header + "\n❌ No valid content extracted from the provided URLs."), nil
	}
	return state.Update{}.
		WithDocuments(enriched).
		WithMessage(fmt.Sprintf("%s\n✓ Successfully enriched %d travel resources.", header, len(enriched))), nil
}

// prioritize returns clusters with the chosen one moved to the front.
func prioritize(clusters []state.Cluster, chosen int) []state.Cluster {
	if chosen <= 0 || chosen >= len(clusters) {
		return clusters
	}
	out := make([]state.Cluster, 0, len(clusters))
	out = append(out, clusters[chosen])
	out = append(out, clusters[:chosen]...)
	return append(out, clusters[chosen+1:]...)
}

// CollectURLs picks up to five valid URLs per cluster, stops once twenty
// have been collected and removes duplicates keeping first occurrence.
func CollectURLs(clusters []state.Cluster) []string {
	var collected []string
	for _, c := range clusters {
		var picked int
		for _, u := range c.URLs {
			if picked == maxURLsPerCluster {
				break
			}
			if enrichURLPattern.MatchString(u) {
				collected = append(collected, u)
				picked++
			}
		}
		if len(collected) >= maxEnrichURLs {
			break
		}
	}
	if len(collected) > maxEnrichURLs {
		collected = collected[:maxEnrichURLs]
	}

	seen := make(map[string]struct{}, len(collected))
	out := collected[:0]
	for _, u := range collected {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// CategoryOf returns the category of the first cluster listing url.
func CategoryOf(url string, clusters []state.Cluster) string {
	for _, c := range clusters {
		for _, u := range c.URLs {
			if u == url {
				if c.Category == "" {
					return state.ClusterMiscellaneous
				}
				return c.Category
			}
		}
	}
	return state.ClusterMiscellaneous
}

func enrichDocument(prior state.Document, page search.Extracted, clusters []state.Cluster, order int64) state.Document {
	doc := prior
	doc.URL = page.URL
	doc.Order = order
	doc.Category = CategoryOf(page.URL, clusters)
	doc.RawContent = preview(page.RawContent)
	doc.ExtractedContent = preview(page.PlainText())
	doc.Enrichment = Enrich(doc.Category, page.RawContent)
	return doc
}

// preview keeps the first hundred runes and always marks the cut.
func preview(s string) string {
	if utf8.RuneCountInString(s) > enrichPreviewRunes {
		s = string([]rune(s)[:enrichPreviewRunes])
	}
	return s + "..."
}
