// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"github.com/AleutianAI/wayfarer/services/planner/nodes"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// MinDocuments is the smallest document count worth writing a report from.
const MinDocuments = 2

// RouteBasedOnCluster sends a run with a chosen cluster on to enrichment
// and asks the user otherwise.
func RouteBasedOnCluster(s state.ResearchState) string {
	if s.ChosenCluster != nil {
		return nodes.NameEnrich
	}
	return nodes.NameManualSelect
}

// RouteAfterManualSelection enriches the selected cluster. A rejection
// (-1) or a missing choice reclusters.
func RouteAfterManualSelection(s state.ResearchState) string {
	if c, ok := s.ChosenClusterValue(); ok && c >= 0 {
		return nodes.NameEnrich
	}
	return nodes.NameCluster
}

// ShouldContinueResearch returns to research while fewer than
// MinDocuments documents are available.
func ShouldContinueResearch(s state.ResearchState) string {
	if len(s.Documents) < MinDocuments {
		return nodes.NameResearch
	}
	return nodes.NameGenerate
}

// RouteBasedOnEvaluation publishes reports graded 2 or 3. A failing grade
// or a missing evaluation goes back to research.
func RouteBasedOnEvaluation(s state.ResearchState) string {
	if s.Eval == nil || s.Eval.Grade <= 1 {
		return nodes.NameResearch
	}
	return nodes.NamePublish
}
