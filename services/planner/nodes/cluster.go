// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

const (
	clusterSystemPrompt = "You are a travel planning expert organizing research results."

	// maxClusterDocuments caps how many documents are shown to the model.
	maxClusterDocuments = 25
)

// errClusterShape marks a response that parsed as JSON but does not have
// the expected structure.
var errClusterShape = errors.New("invalid clustering result")

// ClusterNode groups documents into travel categories and picks the
// first group as the default choice.
type ClusterNode struct {
	graph.BaseNode
	model llm.LLMClient
	cfg   Config
}

func NewClusterNode(model llm.LLMClient, cfg Config) *ClusterNode {
	return &ClusterNode{
		BaseNode: graph.BaseNode{NodeName: NameCluster, NodeTimeout: 3 * time.Minute},
		model:    model,
		cfg:      cfg.withDefaults(),
	}
}

func (n *ClusterNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	rc.Notify(ctx, "🔄 Organizing travel information...")

	docs := state.OrderedDocuments(s.Documents)
	if len(docs) > maxClusterDocuments {
		docs = docs[:maxClusterDocuments]
	}

	raw, err := n.model.Chat(ctx, []llm.Message{
		llm.System(clusterSystemPrompt),
		llm.User(clusterPrompt(s.Preferences, docs)),
	}, n.cfg.params(true))
	if err != nil {
		if cancelled(ctx, err) {
			return state.Update{}, err
		}
		return clusterFailure(fmt.Sprintf("🚨 Error during clustering: %v", err)), nil
	}

	clusters, err := ParseClusters(raw)
	switch {
	case errors.Is(err, errClusterShape):
		return clusterFailure(fmt.Sprintf("🚨 Error: %v", err)), nil
	case err != nil:
		return clusterFailure(fmt.Sprintf("🚨 Error: Failed to parse clustering results from the model. Error: %v", err)), nil
	}

	if len(clusters) == 0 {
		return state.Update{}.
			WithClusters(clusters).
			WithChosenCluster(nil).
			WithMessage("📂 No travel categories could be identified."), nil
	}

	var b strings.Builder
	b.WriteString("📂 Organized travel information into categories:")
	for _, c := range clusters {
		fmt.Fprintf(&b, "\n   • %s: %d sources", c.Category, len(c.URLs))
	}
	return state.Update{}.
		WithClusters(clusters).
		WithChosenCluster(state.IntPtr(0)).
		WithMessage(b.String()).
		WithMessage("✓ Organized travel information by category."), nil
}

func clusterFailure(msg string) state.Update {
	return state.Update{}.
		WithClusters([]state.Cluster{}).
		WithChosenCluster(nil).
		WithMessage(msg)
}

// ParseClusters extracts and validates the clustering response.
//
// The response must hold a JSON object with a "clusters" list whose
// entries have a string "category" and a "urls" list of strings.
// Structural violations wrap errClusterShape; anything that is not JSON
// returns the extraction or decode error.
func ParseClusters(response string) ([]state.Cluster, error) {
	body, err := llm.ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON object", errClusterShape)
	}
	rawClusters, ok := top["clusters"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'clusters' key", errClusterShape)
	}
	var entries []map[string]json.RawMessage
	if isNull(rawClusters) || json.Unmarshal(rawClusters, &entries) != nil {
		return nil, fmt.Errorf("%w: 'clusters' must be a list", errClusterShape)
	}

	clusters := make([]state.Cluster, 0, len(entries))
	for i, entry := range entries {
		var c state.Cluster
		if isNull(entry["category"]) || json.Unmarshal(entry["category"], &c.Category) != nil {
			return nil, fmt.Errorf("%w: 'category' must be a string in cluster %d", errClusterShape, i)
		}
		var items []json.RawMessage
		if isNull(entry["urls"]) || json.Unmarshal(entry["urls"], &items) != nil {
			return nil, fmt.Errorf("%w: 'urls' must be a list in cluster %d", errClusterShape, i)
		}
		c.URLs = make([]string, 0, len(items))
		for _, item := range items {
			var u string
			if isNull(item) || json.Unmarshal(item, &u) != nil {
				return nil, fmt.Errorf("%w: 'urls' must be a list of strings in cluster %d", errClusterShape, i)
			}
			c.URLs = append(c.URLs, u)
		}
		if d, ok := entry["description"]; ok {
			_ = json.Unmarshal(d, &c.Description)
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// isNull reports whether raw is absent or the JSON null literal.
func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

func clusterPrompt(p state.TravelPreferences, docs []state.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "We're planning a trip to %s and have gathered travel-related documents.\n", p.Destination)
	b.WriteString("Categorize these documents into meaningful clusters for trip planning.\n\n")

	b.WriteString("### Trip Details\n")
	fmt.Fprintf(&b, "- Destination: %s\n", p.Destination)
	fmt.Fprintf(&b, "- Style: %s\n", p.TravelStyle)
	fmt.Fprintf(&b, "- Activities: %s\n", strings.Join(p.ActivityNames(), ", "))
	fmt.Fprintf(&b, "- Budget Range: $%s - $%s\n\n", state.FormatAmount(p.BudgetMin), state.FormatAmount(p.BudgetMax))

	b.WriteString("### Retrieved Documents\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- url: %s\n  content: %s\n", d.URL, state.Truncate(d.Content, 500))
	}

	b.WriteString("\n### Clustering Instructions\nGroup documents into these categories:\n")
	for i, c := range state.ClusterCategories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString(`
Respond with a JSON object only:
{"clusters": [{"category": "Category Name", "description": "Brief description of this category", "urls": ["url1", "url2"]}]}
`)
	return b.String()
}
