// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// governor counts traversals of limited edges within one thread.
//
// Counts are keyed by Edge.String() so they survive a checkpoint round
// trip unchanged.
type governor struct {
	limits map[Edge]int
	counts map[string]int
}

func newGovernor(limits map[Edge]int, counts map[string]int) *governor {
	restored := make(map[string]int, len(counts))
	for k, v := range counts {
		restored[k] = v
	}
	return &governor{limits: limits, counts: restored}
}

// traverse records one traversal of from→to. Unlimited edges are free.
func (g *governor) traverse(from, to string) error {
	e := Edge{From: from, To: to}
	max, limited := g.limits[e]
	if !limited {
		return nil
	}
	key := e.String()
	if g.counts[key] >= max {
		return &LoopError{From: from, To: to, Limit: max}
	}
	g.counts[key]++
	return nil
}

func (g *governor) snapshot() map[string]int {
	out := make(map[string]int, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}
