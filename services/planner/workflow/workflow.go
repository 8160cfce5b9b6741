// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow assembles the itinerary planning graph and runs
// planning sessions over it.
//
// The graph:
//
//	initial_grounding -> sub_questions_gen -> research -> cluster
//	cluster -> enrich_docs | manual_cluster_selection
//	manual_cluster_selection -> enrich_docs | cluster
//	enrich_docs -> research | generate_report
//	generate_report -> eval_report
//	eval_report -> research | publish
//
// The three back edges (manual_cluster_selection -> cluster,
// enrich_docs -> research and eval_report -> research) are limited to
// Options.LoopLimit traversals per run.
package workflow

import (
	"fmt"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/artifacts"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/nodes"
	"github.com/AleutianAI/wayfarer/services/search"
)

// GraphName identifies the planning graph in checkpoints.
const GraphName = "travel_itinerary"

// DefaultLoopLimit caps each back edge of the graph.
const DefaultLoopLimit = 3

// Capabilities are the external collaborators the nodes call.
type Capabilities struct {
	Searcher  search.Searcher
	Extractor search.Extractor
	Model     llm.LLMClient
	Sink      artifacts.Sink
}

func (c Capabilities) validate() error {
	switch {
	case c.Searcher == nil:
		return fmt.Errorf("%w: searcher is required", graph.ErrInvalidInput)
	case c.Extractor == nil:
		return fmt.Errorf("%w: extractor is required", graph.ErrInvalidInput)
	case c.Model == nil:
		return fmt.Errorf("%w: model is required", graph.ErrInvalidInput)
	case c.Sink == nil:
		return fmt.Errorf("%w: artifact sink is required", graph.ErrInvalidInput)
	}
	return nil
}

// Options tune the graph.
type Options struct {
	Nodes nodes.Config

	// LoopLimit caps each back edge. Zero means DefaultLoopLimit.
	LoopLimit int
}

// Build wires the nine planning nodes into a validated graph.
func Build(caps Capabilities, opts Options) (*graph.Graph, error) {
	if err := caps.validate(); err != nil {
		return nil, err
	}
	limit := opts.LoopLimit
	if limit <= 0 {
		limit = DefaultLoopLimit
	}
	cfg := opts.Nodes

	return graph.NewBuilder(GraphName).
		AddNode(nodes.NewGroundNode(caps.Searcher, cfg)).
		AddNode(nodes.NewDecomposeNode(caps.Model, cfg)).
		AddNode(nodes.NewResearchNode(caps.Searcher, cfg)).
		AddNode(nodes.NewClusterNode(caps.Model, cfg)).
		AddNode(nodes.NewManualSelectNode(cfg)).
		AddNode(nodes.NewEnrichNode(caps.Extractor, cfg)).
		AddNode(nodes.NewGenerateNode(caps.Model, cfg)).
		AddNode(nodes.NewEvaluateNode(caps.Model, cfg)).
		AddNode(nodes.NewPublishNode(caps.Sink, cfg)).
		SetEntry(nodes.NameGround).
		SetFinish(nodes.NamePublish).
		AddEdge(nodes.NameGround, nodes.NameDecompose).
		AddEdge(nodes.NameDecompose, nodes.NameResearch).
		AddEdge(nodes.NameResearch, nodes.NameCluster).
		AddConditionalEdge(nodes.NameCluster, RouteBasedOnCluster,
			nodes.NameEnrich, nodes.NameManualSelect).
		AddConditionalEdge(nodes.NameManualSelect, RouteAfterManualSelection,
			nodes.NameEnrich, nodes.NameCluster).
		AddConditionalEdge(nodes.NameEnrich, ShouldContinueResearch,
			nodes.NameResearch, nodes.NameGenerate).
		AddEdge(nodes.NameGenerate, nodes.NameEvaluate).
		AddConditionalEdge(nodes.NameEvaluate, RouteBasedOnEvaluation,
			nodes.NameResearch, nodes.NamePublish).
		LimitLoop(nodes.NameManualSelect, nodes.NameCluster, limit).
		LimitLoop(nodes.NameEnrich, nodes.NameResearch, limit).
		LimitLoop(nodes.NameEvaluate, nodes.NameResearch, limit).
		Build()
}
