// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"slices"
	"time"
)

type field uint16

const (
	fieldInitialData field = 1 << iota
	fieldSubQueries
	fieldDocuments
	fieldClusters
	fieldChosenCluster
	fieldItinerary
	fieldReport
	fieldEval
	fieldArtifact
)

// Update is a partial state produced by one step.
//
// Only fields set through a With* method are applied; everything else
// keeps its prior value. Messages are appended to the log.
//
// Update is a value type; each With* call returns a modified copy.
type Update struct {
	set field

	initialData   map[string]InitialResult
	subQueries    []SubQuery
	documents     map[string]Document
	clusters      []Cluster
	chosenCluster *int
	itinerary     []DayPlan
	report        string
	eval          *Evaluation
	artifact      *Artifact
	messages      []Message
}

func (u Update) WithInitialData(m map[string]InitialResult) Update {
	u.initialData = m
	u.set |= fieldInitialData
	return u
}

// WithSubQueries replaces the sub-queries. nil records "none generated".
func (u Update) WithSubQueries(q []SubQuery) Update {
	u.subQueries = q
	u.set |= fieldSubQueries
	return u
}

func (u Update) WithDocuments(m map[string]Document) Update {
	u.documents = m
	u.set |= fieldDocuments
	return u
}

func (u Update) WithClusters(c []Cluster) Update {
	u.clusters = c
	u.set |= fieldClusters
	return u
}

// WithChosenCluster sets the chosen cluster. nil clears the choice.
func (u Update) WithChosenCluster(c *int) Update {
	if c != nil {
		v := *c
		c = &v
	}
	u.chosenCluster = c
	u.set |= fieldChosenCluster
	return u
}

func (u Update) WithItinerary(d []DayPlan) Update {
	u.itinerary = d
	u.set |= fieldItinerary
	return u
}

func (u Update) WithReport(r string) Update {
	u.report = r
	u.set |= fieldReport
	return u
}

func (u Update) WithEval(e *Evaluation) Update {
	u.eval = e
	u.set |= fieldEval
	return u
}

func (u Update) WithArtifact(a Artifact) Update {
	u.artifact = &a
	u.set |= fieldArtifact
	return u
}

// WithMessage appends a progress message.
func (u Update) WithMessage(content string) Update {
	u.messages = append(slices.Clip(u.messages), Message{Content: content, At: time.Now().UTC()})
	return u
}

// WithManualMessage appends a message flagged as manual-selection output.
func (u Update) WithManualMessage(content string) Update {
	u.messages = append(slices.Clip(u.messages), Message{Content: content, ManualSelection: true, At: time.Now().UTC()})
	return u
}

// Messages returns the messages carried by the update.
func (u Update) Messages() []Message {
	return slices.Clone(u.messages)
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.set == 0 && len(u.messages) == 0
}

// Has reports whether the named field is set. Names follow the JSON
// field names of ResearchState.
func (u Update) Has(name string) bool {
	switch name {
	case "initial_data":
		return u.set&fieldInitialData != 0
	case "sub_queries":
		return u.set&fieldSubQueries != 0
	case "documents":
		return u.set&fieldDocuments != 0
	case "document_clusters":
		return u.set&fieldClusters != 0
	case "chosen_cluster":
		return u.set&fieldChosenCluster != 0
	case "itinerary":
		return u.set&fieldItinerary != 0
	case "report":
		return u.set&fieldReport != 0
	case "eval":
		return u.set&fieldEval != 0
	case "artifact":
		return u.set&fieldArtifact != 0
	case "messages":
		return len(u.messages) > 0
	default:
		return false
	}
}

// Apply merges u into s and returns the resulting state. s is not
// modified; the message log of the result is a fresh slice.
func Apply(s ResearchState, u Update) ResearchState {
	next := s
	if u.set&fieldInitialData != 0 {
		next.InitialData = u.initialData
	}
	if u.set&fieldSubQueries != 0 {
		next.SubQueries = u.subQueries
	}
	if u.set&fieldDocuments != 0 {
		next.Documents = u.documents
	}
	if u.set&fieldClusters != 0 {
		next.DocumentClusters = u.clusters
	}
	if u.set&fieldChosenCluster != 0 {
		next.ChosenCluster = u.chosenCluster
	}
	if u.set&fieldItinerary != 0 {
		next.Itinerary = u.itinerary
	}
	if u.set&fieldReport != 0 {
		next.Report = u.report
	}
	if u.set&fieldEval != 0 {
		next.Eval = u.eval
	}
	if u.set&fieldArtifact != 0 {
		next.Artifact = u.artifact
	}
	if len(u.messages) > 0 {
		msgs := make([]Message, 0, len(s.Messages)+len(u.messages))
		msgs = append(msgs, s.Messages...)
		msgs = append(msgs, u.messages...)
		next.Messages = msgs
	}
	return next
}
