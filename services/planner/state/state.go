// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state defines the research state shared by every planning step.
//
// # Description
//
// ResearchState is a value. Steps never mutate it; they return an Update
// naming the fields they replace, and Apply produces the next state. The
// message log is the only accumulating field: Apply appends an update's
// messages instead of replacing them.
//
// # Thread Safety
//
// A ResearchState must not be shared across goroutines while a step is
// building maps for it. The graph executor hands each step its own copy.
package state

import (
	"fmt"
	"strings"
	"time"
)

// OutputFormat selects the artifact the publish step writes.
type OutputFormat string

const (
	FormatPDF      OutputFormat = "pdf"
	FormatMarkdown OutputFormat = "markdown"
)

// ParseOutputFormat maps a user-supplied format onto OutputFormat.
// The empty string yields FormatPDF.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", &ValidationError{Violations: []FieldViolation{{
			Field:   "output_format",
			Rule:    "oneof",
			Message: "must be one of: pdf, markdown",
		}}}
	}
}

// Extension returns the artifact file extension.
func (f OutputFormat) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return "pdf"
}

// SubQuery categories.
const (
	CategoryAccommodation = "accommodation"
	CategoryActivity      = "activity"
	CategoryTransport     = "transport"
	CategoryDining        = "dining"
)

// SubQueryCategories lists the valid sub-query categories.
var SubQueryCategories = []string{CategoryAccommodation, CategoryActivity, CategoryTransport, CategoryDining}

// Cluster categories produced by the clustering step.
const (
	ClusterAccommodations = "Accommodations"
	ClusterActivities     = "Activities & Attractions"
	ClusterTransportation = "Transportation"
	ClusterDining         = "Dining & Food"
	ClusterPractical      = "Practical Information"
	ClusterMiscellaneous  = "Miscellaneous"
)

// ClusterCategories lists the cluster categories in prompt order.
var ClusterCategories = []string{
	ClusterAccommodations, ClusterActivities, ClusterTransportation,
	ClusterDining, ClusterPractical, ClusterMiscellaneous,
}

// InitialResult is one grounding search hit.
type InitialResult struct {
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Query   string  `json:"query"`
	Order   int64   `json:"order"`
}

// SubQuery is one targeted research query.
type SubQuery struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Location string `json:"location"`
}

// Document is a discovered (and possibly enriched) web resource.
type Document struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
	Query         string  `json:"query,omitempty"`

	// Order is the discovery sequence number. Lower is earlier.
	Order int64 `json:"order"`

	// Set by enrichment.
	Category         string      `json:"category,omitempty"`
	RawContent       string      `json:"raw_content,omitempty"`
	ExtractedContent string      `json:"extracted_content,omitempty"`
	Enrichment       *Enrichment `json:"enrichment,omitempty"`
}

// Enrichment holds the category-specific fields extracted from a page.
type Enrichment struct {
	// Accommodations
	PriceRange string   `json:"price_range,omitempty"`
	Amenities  []string `json:"amenities,omitempty"`
	Location   string   `json:"location,omitempty"`

	// Activities & Attractions
	Duration        string `json:"duration,omitempty"`
	BestTime        string `json:"best_time,omitempty"`
	BookingRequired *bool  `json:"booking_required,omitempty"`

	// Transportation
	TransportType string `json:"transport_type,omitempty"`
	Schedule      string `json:"schedule,omitempty"`
	Cost          string `json:"cost,omitempty"`

	// Dining & Food
	Cuisine      string `json:"cuisine,omitempty"`
	PriceLevel   string `json:"price_level,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
}

// Cluster groups document URLs under a category.
type Cluster struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	URLs        []string `json:"urls"`
}

// Evaluation is the grade given to a generated report.
type Evaluation struct {
	Grade        int      `json:"grade"`
	CriticalGaps []string `json:"critical_gaps,omitempty"`
}

// Message is one progress note in the run log.
type Message struct {
	Content string `json:"content"`

	// ManualSelection marks messages produced by the cluster selection
	// step. They are delivered through the interactive channel and are
	// never relayed as progress.
	ManualSelection bool      `json:"manual_selection,omitempty"`
	At              time.Time `json:"at"`
}

// ResearchState is the shared record threaded through a planning run.
type ResearchState struct {
	Preferences TravelPreferences        `json:"preferences"`
	InitialData map[string]InitialResult `json:"initial_data"`

	// SubQueries is nil when no queries were generated.
	SubQueries []SubQuery          `json:"sub_queries"`
	Documents  map[string]Document `json:"documents"`

	DocumentClusters []Cluster `json:"document_clusters"`

	// ChosenCluster is nil when no cluster has been chosen, -1 when the
	// user rejected every cluster, and otherwise an index into
	// DocumentClusters.
	ChosenCluster *int `json:"chosen_cluster"`

	Itinerary    []DayPlan    `json:"itinerary,omitempty"`
	Report       string       `json:"report"`
	Eval         *Evaluation  `json:"eval"`
	OutputFormat OutputFormat `json:"output_format"`

	// Artifact is nil until the publish step has run.
	Artifact *Artifact `json:"artifact,omitempty"`
	Messages []Message `json:"messages"`
}

// Artifact is the outcome of publishing the itinerary. Exactly one of
// Location and Error is set.
type Artifact struct {
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Saved reports whether the itinerary was written somewhere.
func (a *Artifact) Saved() bool {
	return a != nil && a.Error == "" && a.Location != ""
}

// New returns the initial state for a validated set of preferences.
func New(prefs TravelPreferences, format OutputFormat) ResearchState {
	if format == "" {
		format = FormatPDF
	}
	return ResearchState{
		Preferences:  prefs,
		InitialData:  map[string]InitialResult{},
		Documents:    map[string]Document{},
		OutputFormat: format,
	}
}

// ChosenClusterValue returns the chosen index and whether one is set.
func (s ResearchState) ChosenClusterValue() (int, bool) {
	if s.ChosenCluster == nil {
		return 0, false
	}
	return *s.ChosenCluster, true
}

// Validate checks structural invariants of a state. It is used when
// restoring checkpoints.
func (s ResearchState) Validate() error {
	if s.Eval != nil && (s.Eval.Grade < 1 || s.Eval.Grade > 3) {
		return fmt.Errorf("eval grade %d out of range 1..3", s.Eval.Grade)
	}
	if c, ok := s.ChosenClusterValue(); ok && c >= len(s.DocumentClusters) {
		return fmt.Errorf("chosen cluster %d out of range (%d clusters)", c, len(s.DocumentClusters))
	}
	if c, ok := s.ChosenClusterValue(); ok && c < -1 {
		return fmt.Errorf("chosen cluster %d is invalid", c)
	}
	switch s.OutputFormat {
	case FormatPDF, FormatMarkdown:
	default:
		return fmt.Errorf("unknown output format %q", s.OutputFormat)
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
