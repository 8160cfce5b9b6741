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

const evaluateSystemPrompt = "You are a travel planning expert evaluating itineraries."

var (
	errNoReport     = errors.New("no itinerary report to evaluate")
	errMissingGrade = errors.New("evaluation response has no grade")
	errMissingGaps  = errors.New("evaluation graded 1 without listing critical gaps")
)

// EvaluateNode grades the generated itinerary from 1 to 3.
//
// The model must answer with a JSON object holding an integer grade and,
// for grade 1, a non-empty list of critical gaps. Gaps sent with a higher
// grade are dropped. Anything else counts as a failed evaluation and
// yields grade 1 so the run retries research.
type EvaluateNode struct {
	graph.BaseNode
	model llm.LLMClient
	cfg   Config
}

func NewEvaluateNode(model llm.LLMClient, cfg Config) *EvaluateNode {
	return &EvaluateNode{
		BaseNode: graph.BaseNode{NodeName: NameEvaluate, NodeTimeout: 3 * time.Minute},
		model:    model,
		cfg:      cfg.withDefaults(),
	}
}

type evaluationResponse struct {
	Grade        *int     `json:"grade"`
	CriticalGaps []string `json:"critical_gaps"`
}

func (n *EvaluateNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	eval, err := n.evaluate(ctx, s)
	if err != nil {
		if cancelled(ctx, err) {
			return state.Update{}, err
		}
		msg := fmt.Sprintf("Error during evaluation: %v", err)
		return state.Update{}.
			WithEval(&state.Evaluation{Grade: 1, CriticalGaps: []string{msg}}).
			WithMessage(msg), nil
	}

	var msg string
	if eval.Grade == 1 {
		var b strings.Builder
		b.WriteString("❌ Itinerary needs improvement. Critical gaps identified:")
		for _, gap := range eval.CriticalGaps {
			fmt.Fprintf(&b, "\n  • %s", gap)
		}
		msg = b.String()
	} else {
		msg = fmt.Sprintf("✓ Itinerary received a grade of %d/3", eval.Grade)
	}
	return state.Update{}.WithEval(eval).WithMessage(msg), nil
}

func (n *EvaluateNode) evaluate(ctx context.Context, s state.ResearchState) (*state.Evaluation, error) {
	if strings.TrimSpace(s.Report) == "" {
		return nil, errNoReport
	}
	raw, err := n.model.Chat(ctx, []llm.Message{
		llm.System(evaluateSystemPrompt),
		llm.User(evaluatePrompt(s.Preferences, s.Report)),
	}, n.cfg.params(true))
	if err != nil {
		return nil, fmt.Errorf("evaluate itinerary: %w", err)
	}
	return ParseEvaluation(raw)
}

// ParseEvaluation validates a grading response.
func ParseEvaluation(response string) (*state.Evaluation, error) {
	resp, err := llm.ExtractJSONAs[evaluationResponse](response)
	if err != nil {
		return nil, err
	}
	if resp.Grade == nil {
		return nil, errMissingGrade
	}
	if *resp.Grade < 1 || *resp.Grade > 3 {
		return nil, fmt.Errorf("grade %d outside 1..3", *resp.Grade)
	}
	if *resp.Grade > 1 {
		return &state.Evaluation{Grade: *resp.Grade}, nil
	}
	gaps := make([]string, 0, len(resp.CriticalGaps))
	for _, g := range resp.CriticalGaps {
		if g = strings.TrimSpace(g); g != "" {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return nil, errMissingGaps
	}
	return &state.Evaluation{Grade: 1, CriticalGaps: gaps}, nil
}

func evaluatePrompt(p state.TravelPreferences, report string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate this travel itinerary for a trip to %s.\n\n", p.Destination)
	b.WriteString("### Original Requirements\n")
	fmt.Fprintf(&b, "- Travel Style: %s\n", p.TravelStyle)
	fmt.Fprintf(&b, "- Budget Range: $%s - $%s\n", state.FormatAmount(p.BudgetMin), state.FormatAmount(p.BudgetMax))
	fmt.Fprintf(&b, "- Preferred Activities: %s\n", strings.Join(p.ActivityNames(), ", "))
	fmt.Fprintf(&b, "- Special Requirements: %s\n", orNone(p.AccessibilityRequirements))
	fmt.Fprintf(&b, "- Dietary Restrictions: %s\n", joinOrNone(p.DietaryRestrictions))
	b.WriteString(`
### Evaluation Criteria
1. Completeness: are all necessary details included?
2. Budget Alignment: do costs match the specified range?
3. Activity Balance: is there a good mix of preferred activities?
4. Practical Feasibility: are timings and distances realistic?
5. Special Requirements: are accessibility and dietary needs handled?
6. Contingency Planning: weather alternatives and backup options

### Itinerary to Evaluate
`)
	b.WriteString(report)
	b.WriteString(`

Grade the itinerary from 1 to 3:
- 3: Excellent. Complete, well balanced and aligned with the preferences
- 2: Good. Minor adjustments needed
- 1: Needs Improvement. Major revisions required

If the grade is 1, list the critical elements that must be addressed.
Respond with a JSON object only:
{"grade": 1, "critical_gaps": ["gap1", "gap2"]}
`)
	return b.String()
}
