// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// Router picks the next node from the state after a node completes.
type Router func(s state.ResearchState) string

// Edge is a directed transition between two nodes.
type Edge struct {
	From string
	To   string
}

// String returns "from->to". It is also the checkpoint key for loop counters.
func (e Edge) String() string {
	return e.From + "->" + e.To
}

type route struct {
	router  Router
	targets []string
}

// Builder constructs a Graph with validation.
//
// Description:
//
//	Builder provides a fluent API for wiring nodes, static and conditional
//	edges, and loop limits. Build validates the wiring. Cycles are allowed
//	only when at least one edge on the cycle has a loop limit, so every
//	run of a built graph terminates.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use.
//
// Example:
//
//	g, err := graph.NewBuilder("itinerary").
//	    AddNode(a).AddNode(b).
//	    SetEntry("a").SetFinish("b").
//	    AddEdge("a", "b").
//	    Build()
type Builder struct {
	name   string
	nodes  map[string]Node
	order  []string
	routes map[string]route
	limits map[Edge]int
	entry  string
	finish string
	errors []error
}

// NewBuilder creates a new graph builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		nodes:  make(map[string]Node),
		routes: make(map[string]route),
		limits: make(map[Edge]int),
	}
}

// AddNode adds a node. Adding a nil node or a duplicate name records an
// error reported by Build.
func (b *Builder) AddNode(node Node) *Builder {
	if node == nil {
		b.errors = append(b.errors, ErrNilNode)
		return b
	}
	name := node.Name()
	if _, exists := b.nodes[name]; exists {
		b.errors = append(b.errors, NewNodeError(name, ErrDuplicateNode))
		return b
	}
	b.nodes[name] = node
	b.order = append(b.order, name)
	return b
}

// AddEdge adds an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.addRoute(from, route{targets: []string{to}})
}

// AddConditionalEdge routes from a node to whichever of targets router
// returns.
func (b *Builder) AddConditionalEdge(from string, router Router, targets ...string) *Builder {
	if router == nil || len(targets) == 0 {
		b.errors = append(b.errors, NewNodeError(from, fmt.Errorf("%w: conditional edge needs a router and targets", ErrInvalidInput)))
		return b
	}
	return b.addRoute(from, route{router: router, targets: slices.Clone(targets)})
}

func (b *Builder) addRoute(from string, r route) *Builder {
	if _, exists := b.routes[from]; exists {
		b.errors = append(b.errors, NewNodeError(from, ErrDuplicateRoute))
		return b
	}
	b.routes[from] = r
	return b
}

// SetEntry names the first node of every run.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// SetFinish names the terminal node.
func (b *Builder) SetFinish(name string) *Builder {
	b.finish = name
	return b
}

// LimitLoop caps how often the edge from→to may be traversed in one run.
func (b *Builder) LimitLoop(from, to string, max int) *Builder {
	if max < 1 {
		b.errors = append(b.errors, fmt.Errorf("%w: loop limit for %s->%s must be at least 1", ErrInvalidInput, from, to))
		return b
	}
	b.limits[Edge{From: from, To: to}] = max
	return b
}

// Build validates and constructs the graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("%w: graph has no nodes", ErrInvalidInput)
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, NewNodeError(b.entry, fmt.Errorf("entry: %w", ErrNodeNotFound))
	}
	if _, ok := b.nodes[b.finish]; !ok {
		return nil, NewNodeError(b.finish, fmt.Errorf("finish: %w", ErrNodeNotFound))
	}

	for _, from := range sortedKeys(b.routes) {
		if _, ok := b.nodes[from]; !ok {
			return nil, NewNodeError(from, ErrNodeNotFound)
		}
		for _, to := range b.routes[from].targets {
			if _, ok := b.nodes[to]; !ok {
				return nil, NewNodeError(to, fmt.Errorf("target of %s: %w", from, ErrNodeNotFound))
			}
		}
	}

	for _, name := range b.order {
		_, hasRoute := b.routes[name]
		switch {
		case name == b.finish && hasRoute:
			return nil, NewNodeError(name, fmt.Errorf("%w: terminal node cannot have outgoing routes", ErrInvalidInput))
		case name != b.finish && !hasRoute:
			return nil, NewNodeError(name, ErrMissingRoute)
		}
	}

	for e := range b.limits {
		r, ok := b.routes[e.From]
		if !ok || !slices.Contains(r.targets, e.To) {
			return nil, fmt.Errorf("%w: loop limit on undeclared edge %s", ErrInvalidInput, e)
		}
	}

	if err := b.checkReachable(); err != nil {
		return nil, err
	}
	if err := b.detectUnboundedCycles(); err != nil {
		return nil, err
	}

	limits := make(map[Edge]int, len(b.limits))
	for e, max := range b.limits {
		limits[e] = max
	}
	return &Graph{
		name:   b.name,
		nodes:  b.nodes,
		order:  slices.Clone(b.order),
		routes: b.routes,
		limits: limits,
		entry:  b.entry,
		finish: b.finish,
	}, nil
}

func (b *Builder) checkReachable() error {
	seen := map[string]bool{b.entry: true}
	queue := []string{b.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, to := range b.routes[cur].targets {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	for _, name := range b.order {
		if !seen[name] {
			return NewNodeError(name, ErrUnreachable)
		}
	}
	return nil
}

// detectUnboundedCycles runs DFS cycle detection over the graph with all
// limited edges removed. Any remaining cycle could run forever.
func (b *Builder) detectUnboundedCycles() error {
	adj := make(map[string][]string, len(b.nodes))
	for from, r := range b.routes {
		for _, to := range r.targets {
			if _, limited := b.limits[Edge{From: from, To: to}]; !limited {
				adj[from] = append(adj[from], to)
			}
		}
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range adj[node] {
			if !visited[next] {
				if err := dfs(next); err != nil {
					return err
				}
			} else if onStack[next] {
				start := slices.Index(path, next)
				cycle := append(slices.Clone(path[start:]), next)
				return &CycleError{Path: cycle}
			}
		}

		path = path[:len(path)-1]
		onStack[node] = false
		return nil
	}

	for _, name := range b.order {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Graph is a validated workflow graph. It is immutable and safe for
// concurrent use.
type Graph struct {
	name   string
	nodes  map[string]Node
	order  []string
	routes map[string]route
	limits map[Edge]int
	entry  string
	finish string
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Finish returns the terminal node name.
func (g *Graph) Finish() string { return g.finish }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// NodeNames returns node names in insertion order.
func (g *Graph) NodeNames() []string { return slices.Clone(g.order) }

// Node returns the node with the given name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Targets returns the declared successors of a node.
func (g *Graph) Targets(from string) []string {
	return slices.Clone(g.routes[from].targets)
}

// Limits returns a copy of the loop limits.
func (g *Graph) Limits() map[Edge]int {
	out := make(map[Edge]int, len(g.limits))
	for e, max := range g.limits {
		out[e] = max
	}
	return out
}

// Next resolves the successor of from for the given state.
func (g *Graph) Next(from string, s state.ResearchState) (string, error) {
	r, ok := g.routes[from]
	if !ok {
		return "", NewNodeError(from, ErrMissingRoute)
	}
	if r.router == nil {
		return r.targets[0], nil
	}
	to := r.router(s)
	if !slices.Contains(r.targets, to) {
		return "", NewNodeError(from, fmt.Errorf("%w: %q", ErrNoRoute, to))
	}
	return to, nil
}
