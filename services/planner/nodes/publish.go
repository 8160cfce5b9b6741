// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/artifacts"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/render"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// PublishNode renders the report and stores it through the artifact sink.
type PublishNode struct {
	graph.BaseNode
	sink artifacts.Sink
	cfg  Config
}

func NewPublishNode(sink artifacts.Sink, cfg Config) *PublishNode {
	return &PublishNode{
		BaseNode: graph.BaseNode{NodeName: NamePublish, NodeTimeout: 2 * time.Minute},
		sink:     sink,
		cfg:      cfg.withDefaults(),
	}
}

func (n *PublishNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	if strings.TrimSpace(s.Report) == "" {
		return publishFailed("❌ Error: Itinerary report not found in state.", errors.New("itinerary report not found")), nil
	}
	p := s.Preferences
	format := s.OutputFormat
	if format == "" {
		format = state.FormatPDF
	}

	data := []byte(s.Report)
	if format == state.FormatPDF {
		var buf bytes.Buffer
		if err := render.PDF(s.Report, &buf); err != nil {
			return publishFailed(fmt.Sprintf("❌ Error generating PDF: %v", err), err), nil
		}
		data = buf.Bytes()
	}

	name := artifacts.FileName(p.Destination, format, n.cfg.Clock())
	loc, err := n.sink.Write(ctx, name, data)
	if err != nil {
		if cancelled(ctx, err) {
			return state.Update{}, err
		}
		return publishFailed(fmt.Sprintf("❌ Error saving itinerary: %v", err), err), nil
	}

	artifact := "📥 Markdown itinerary saved at " + loc
	if format == state.FormatPDF {
		artifact = "📥 ✓ PDF itinerary generated: " + loc
	}
	return state.Update{}.
		WithArtifact(state.Artifact{Location: loc}).
		WithMessage(PublishSummary(p, artifact)), nil
}

func publishFailed(msg string, cause error) state.Update {
	return state.Update{}.
		WithArtifact(state.Artifact{Error: cause.Error()}).
		WithMessage(msg)
}

// PublishSummary is the closing message for a finished itinerary.
func PublishSummary(p state.TravelPreferences, artifact string) string {
	return fmt.Sprintf(
		"✨ Your travel itinerary is ready!\n\n🌍 Destination: %s\n📅 Dates: %s to %s\n👥 Travelers: %d\n🎯 Style: %s\n\n%s\n\nEnjoy your trip! 🚀",
		p.Destination, p.StartDate, p.EndDate, p.NumberOfTravelers, p.TravelStyle, artifact,
	)
}
