// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// MergeDocument inserts d keyed by URL unless that URL is already
// present. The first record seen for a URL wins. Returns true when d was
// inserted. Documents without a URL are ignored.
func MergeDocument(docs map[string]Document, d Document) bool {
	if d.URL == "" {
		return false
	}
	if _, exists := docs[d.URL]; exists {
		return false
	}
	docs[d.URL] = d
	return true
}

// CloneDocuments returns a shallow copy of docs safe to modify.
func CloneDocuments(docs map[string]Document) map[string]Document {
	if docs == nil {
		return map[string]Document{}
	}
	return maps.Clone(docs)
}

// OrderedDocuments returns documents sorted by discovery order, with URL
// as tiebreak so the result is deterministic.
func OrderedDocuments(docs map[string]Document) []Document {
	out := slices.Collect(maps.Values(docs))
	slices.SortFunc(out, func(a, b Document) int {
		if a.Order != b.Order {
			if a.Order < b.Order {
				return -1
			}
			return 1
		}
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

// NextOrder returns the next discovery sequence number for docs.
func NextOrder(docs map[string]Document) int64 {
	var next int64
	for _, d := range docs {
		if d.Order >= next {
			next = d.Order + 1
		}
	}
	return next
}

// OrderedInitialData returns grounding results in discovery order.
func OrderedInitialData(data map[string]InitialResult) []InitialResult {
	out := slices.Collect(maps.Values(data))
	slices.SortFunc(out, func(a, b InitialResult) int {
		if a.Order != b.Order {
			if a.Order < b.Order {
				return -1
			}
			return 1
		}
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
