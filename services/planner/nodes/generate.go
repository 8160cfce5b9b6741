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
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/wayfarer/services/llm"
	"github.com/AleutianAI/wayfarer/services/planner/graph"
	"github.com/AleutianAI/wayfarer/services/planner/state"
)

const (
	generateSystemPrompt = "You are a travel planning expert creating detailed, personalized itineraries."

	// reportDateLayout renders dates as "May 01, 2026".
	reportDateLayout = "January 02, 2006"

	contextChunkSize = 2000
)

var errEmptyItinerary = errors.New("model returned an empty itinerary")

var contextSeparators = []string{"\n### ", "\n\n", "\n", ". ", " ", ""}

// GenerateNode writes the markdown itinerary from the research.
//
// Description:
//
//	Builds one prompt from the trip details and the researched documents.
//	Document text is capped at Config.ContextBudget characters; when the
//	research is larger it is split on document and paragraph boundaries
//	and only the leading chunks that fit are kept. The model reply is
//	trimmed to its markdown body and prefixed with a title and date.
//	Day headings in the report are parsed into structured day plans.
//
// Outputs:
//
//	report, itinerary and one progress message. A failed generation
//	still produces a report describing the error.
type GenerateNode struct {
	graph.BaseNode
	model llm.LLMClient
	cfg   Config
}

func NewGenerateNode(model llm.LLMClient, cfg Config) *GenerateNode {
	return &GenerateNode{
		BaseNode: graph.BaseNode{NodeName: NameGenerate, NodeTimeout: 5 * time.Minute},
		model:    model,
		cfg:      cfg.withDefaults(),
	}
}

func (n *GenerateNode) Run(ctx context.Context, s state.ResearchState, rc graph.RunContext) (state.Update, error) {
	rc.Notify(ctx, "⌛️ Generating your travel itinerary...")

	p := s.Preferences
	date := n.cfg.Clock().Format(reportDateLayout)
	research := BudgetContext(formatResearch(state.OrderedDocuments(s.Documents)), n.cfg.ContextBudget)

	resp, err := n.model.Chat(ctx, []llm.Message{
		llm.System(generateSystemPrompt),
		llm.User(generatePrompt(p, research)),
	}, n.cfg.params(false))
	if err == nil && strings.TrimSpace(resp) == "" {
		err = errEmptyItinerary
	}
	if err != nil {
		if cancelled(ctx, err) {
			return state.Update{}, err
		}
		msg := fmt.Sprintf("Error generating itinerary: %v", err)
		rc.Notify(ctx, "✓ Itinerary generation completed.")
		return state.Update{}.
			WithReport(fmt.Sprintf("# Error Generating Itinerary\n\n*%s*\n\n%s", date, msg)).
			WithItinerary(nil).
			WithMessage(msg), nil
	}

	report := fmt.Sprintf("# Travel Itinerary: %s\n\n*Generated on %s*\n\n%s", p.Destination, date, ExtractMarkdown(resp))
	rc.Notify(ctx, "✓ Itinerary generation completed.")
	return state.Update{}.
		WithReport(report).
		WithItinerary(state.ParseDayPlans(report, p.Start())).
		WithMessage("✓ Generated detailed travel itinerary!"), nil
}

// ExtractMarkdown drops any preamble before the first heading or bold
// marker, whichever comes first.
func ExtractMarkdown(content string) string {
	hash := strings.Index(content, "#")
	bold := strings.Index(content, "**")
	switch {
	case hash >= 0 && (bold < 0 || hash < bold):
		return strings.TrimSpace(content[hash:])
	case bold >= 0:
		return strings.TrimSpace(content[bold:])
	default:
		return strings.TrimSpace(content)
	}
}

// BudgetContext limits text to budget characters, cutting on chunk
// boundaries produced by a recursive splitter.
func BudgetContext(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(min(contextChunkSize, budget)),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(contextSeparators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return string([]rune(text)[:budget])
	}

	var b strings.Builder
	used := 0
	for _, c := range chunks {
		size := utf8.RuneCountInString(c) + 1
		if used+size > budget {
			break
		}
		b.WriteString(c)
		b.WriteString("\n")
		used += size
	}
	if used == 0 {
		return string([]rune(chunks[0])[:min(budget, utf8.RuneCountInString(chunks[0]))])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatResearch(docs []state.Document) string {
	if len(docs) == 0 {
		return "No research documents were found."
	}
	var b strings.Builder
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = d.URL
		}
		fmt.Fprintf(&b, "\n### %s\nURL: %s\n", title, d.URL)
		if d.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", d.Category)
		}
		if e := d.Enrichment; e != nil {
			writeEnrichment(&b, e)
		}
		content := d.Content
		if content == "" {
			content = d.ExtractedContent
		}
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func writeEnrichment(b *strings.Builder, e *state.Enrichment) {
	field := func(label, v string) {
		if v != "" {
			fmt.Fprintf(b, "%s: %s\n", label, v)
		}
	}
	field("Price range", e.PriceRange)
	if len(e.Amenities) > 0 {
		field("Amenities", strings.Join(e.Amenities, ", "))
	}
	field("Location", e.Location)
	field("Duration", e.Duration)
	field("Best time", e.BestTime)
	if e.BookingRequired != nil && *e.BookingRequired {
		field("Booking", "required")
	}
	field("Transport", e.TransportType)
	field("Schedule", e.Schedule)
	field("Cost", e.Cost)
	field("Cuisine", e.Cuisine)
	field("Price level", e.PriceLevel)
	field("Opening hours", e.OpeningHours)
}

func generatePrompt(p state.TravelPreferences, research string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed travel itinerary for a %d-day trip to %s.\n\n", p.TripDays(), p.Destination)
	b.WriteString("### Trip Details\n")
	b.WriteString(tripDetails(p))
	b.WriteString("\n### Special Requirements\n")
	b.WriteString(specialRequirements(p))
	fmt.Fprintf(&b, "\n### Additional Destinations\n%s\n", joinOrNone(p.AdditionalDestinations))

	b.WriteString(`
Write the itinerary in Markdown with these sections, each as a "## " heading:

1. Trip Overview: introduction to the destination(s), travel style and focus, key highlights.
2. Pre-Trip Preparation: packing for the activities and weather, visa and documents, health and safety.
3. Budget Overview: estimated cost breakdown, money-saving tips, payment methods and currency.
4. Daily Itinerary: one "### Day N: Title" heading per day with morning, afternoon and evening
   activities, meal recommendations, transportation details, estimated costs and alternatives
   for bad weather or closures.
5. Practical Information: local transportation, emergency contacts, cultural and weather
   considerations, booking requirements.
6. Additional Recommendations: alternative activities, local events during the stay, shopping,
   hidden gems.

Use the following researched information:
`)
	b.WriteString(research)
	b.WriteString(`

Important Guidelines:
1. Include links to booking and information pages
2. Keep a balanced pace of activities
3. Consider travel time between locations
4. Account for every stated preference and requirement
5. Include specific costs and booking details where available
6. Provide alternatives for flexibility
`)
	return b.String()
}
