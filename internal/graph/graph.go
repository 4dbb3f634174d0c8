// Package graph provides the dependency graph over a task's reasoning steps.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wesheets/roundtable/pkg/models"
)

// StepGraph is a directed acyclic graph of reasoning steps. Nodes are steps,
// edges point from a step to the steps it depends on. Step order from the
// decomposer is preserved so every derived ordering is deterministic.
type StepGraph struct {
	mu sync.RWMutex
	// steps maps step ID to the step itself.
	steps map[string]*models.ReasoningStep
	// order holds step IDs in insertion order.
	order []string
	// edges maps step ID to the IDs of steps it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// Build constructs a graph from the given steps. It fails if a dependency
// references a step outside the list or if the dependencies form a cycle.
func Build(steps []*models.ReasoningStep) (*StepGraph, error) {
	g := &StepGraph{
		steps:    make(map[string]*models.ReasoningStep, len(steps)),
		edges:    make(map[string][]string, len(steps)),
		debugLog: func(format string, args ...interface{}) {},
	}

	for _, step := range steps {
		if _, dup := g.steps[step.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %s", models.ErrInvalidRequest, step.ID)
		}
		g.steps[step.ID] = step
		g.order = append(g.order, step.ID)
		g.edges[step.ID] = nil
	}

	for _, step := range steps {
		for _, depID := range step.Dependencies {
			if _, exists := g.steps[depID]; !exists {
				return nil, fmt.Errorf("%w: step %s depends on unknown step %s",
					models.ErrInvalidRequest, step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if path := g.findCycle(); path != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCyclicDependency, strings.Join(path, " -> "))
	}
	return g, nil
}

// SetDebugLog sets the debug logging function.
func (g *StepGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Size returns the number of steps in the graph.
func (g *StepGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.steps)
}

// Step returns the step for a given ID, or nil if not found.
func (g *StepGraph) Step(id string) *models.ReasoningStep {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.steps[id]
}

// Dependencies returns the IDs of steps the given step depends on.
func (g *StepGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Dependents returns the IDs of steps that directly depend on the given
// step, in insertion order.
func (g *StepGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, candidate := range g.order {
		for _, depID := range g.edges[candidate] {
			if depID == id {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents
}

// TransitiveDependents returns every step reachable from the given step by
// following dependency edges backwards, in insertion order. Used to block
// the whole subtree downstream of a failed step.
func (g *StepGraph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reached := map[string]bool{id: true}
	// Insertion order is a topological order of the decomposer's graphs,
	// but dependents of a late failure can appear anywhere, so iterate to
	// a fixed point.
	for changed := true; changed; {
		changed = false
		for _, candidate := range g.order {
			if reached[candidate] {
				continue
			}
			for _, depID := range g.edges[candidate] {
				if reached[depID] {
					reached[candidate] = true
					changed = true
					break
				}
			}
		}
	}

	var dependents []string
	for _, candidate := range g.order {
		if candidate != id && reached[candidate] {
			dependents = append(dependents, candidate)
		}
	}
	return dependents
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *StepGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycle() != nil
}

// findCycle runs a depth-first search with coloring and returns one cycle
// as a step ID path, or nil. Assumes the caller holds the lock or the
// graph is not yet shared.
func (g *StepGraph) findCycle() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.steps))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: slice the stack from the first occurrence.
				for i, onStack := range stack {
					if onStack == depID {
						cycle = append(append([]string{}, stack[i:]...), depID)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns step IDs with every dependency before its
// dependents. Deterministic for a given insertion order.
func (g *StepGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.findCycle() != nil {
		return nil, models.ErrCyclicDependency
	}

	visited := make(map[string]bool, len(g.steps))
	result := make([]string, 0, len(g.steps))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns the IDs of pending steps whose dependencies are all
// completed, in insertion order.
func (g *StepGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		step := g.steps[id]
		if step.Status != models.StepStatusPending {
			continue
		}
		satisfied := true
		for _, depID := range g.edges[id] {
			if dep := g.steps[depID]; dep.Status != models.StepStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	g.debugLog("[graph.Ready] %d of %d steps ready: %v", len(ready), len(g.steps), ready)
	return ready
}

// Layers buckets step IDs by dependency depth: layer 0 holds steps with no
// dependencies, layer n holds steps whose longest dependency chain has n
// edges. Steps inside a layer keep insertion order.
func (g *StepGraph) Layers() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := make(map[string]int, len(g.steps))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, depID := range g.edges[id] {
			if cand := depthOf(depID) + 1; cand > d {
				d = cand
			}
		}
		depth[id] = d
		return d
	}

	maxDepth := 0
	for _, id := range g.order {
		if d := depthOf(id); d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for _, id := range g.order {
		d := depth[id]
		layers[d] = append(layers[d], id)
	}
	return layers
}

// CriticalPath returns the dependency chain with the largest total
// estimated duration, computed by longest-path dynamic programming over a
// topological order. Ties break toward the lexicographically smaller step
// ID so repeated calls agree.
func (g *StepGraph) CriticalPath() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.findCycle() != nil {
		return nil
	}

	// DFS topological order over insertion order, dependencies first.
	visited := make(map[string]bool, len(g.steps))
	topo := make([]string, 0, len(g.steps))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		topo = append(topo, id)
	}
	for _, id := range g.order {
		visit(id)
	}

	dist := make(map[string]int, len(g.steps))
	pred := make(map[string]string, len(g.steps))
	for _, id := range topo {
		// Sorted iteration plus strict comparison picks the smallest ID
		// among equally heavy dependency chains.
		deps := append([]string{}, g.edges[id]...)
		sort.Strings(deps)
		best, bestDep := -1, ""
		for _, depID := range deps {
			if d := dist[depID]; d > best {
				best, bestDep = d, depID
			}
		}
		if bestDep == "" {
			best = 0
		} else {
			pred[id] = bestDep
		}
		dist[id] = best + g.steps[id].EstimatedDuration
	}

	end := ""
	for _, id := range topo {
		if end == "" || dist[id] > dist[end] || (dist[id] == dist[end] && id < end) {
			end = id
		}
	}
	if end == "" {
		return nil
	}

	var path []string
	for id := end; id != ""; id = pred[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	g.debugLog("[graph.CriticalPath] path=%v duration=%d", path, dist[end])
	return path
}

// ParallelGroups groups step IDs that share an identical dependency set.
// Only groups of two or more steps are returned; such steps become
// runnable together and may execute concurrently. Group and member order
// follow insertion order.
func (g *StepGraph) ParallelGroups() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keyOf := func(id string) string {
		deps := append([]string{}, g.edges[id]...)
		sort.Strings(deps)
		return strings.Join(deps, ",")
	}

	byKey := make(map[string][]string)
	var keyOrder []string
	for _, id := range g.order {
		k := keyOf(id)
		if _, seen := byKey[k]; !seen {
			keyOrder = append(keyOrder, k)
		}
		byKey[k] = append(byKey[k], id)
	}

	var groups [][]string
	for _, k := range keyOrder {
		if members := byKey[k]; len(members) >= 2 {
			groups = append(groups, members)
		}
	}
	return groups
}
