// Package projectgraph builds the ProjectGraph (C2): it walks a workspace,
// invokes manifest inference plugins, merges their contributions into a
// single project map, resolves dependency edges, and exposes forward and
// reverse adjacency with memoized transitive closures.
package projectgraph

import (
	"sort"
	"sync"

	"github.com/jbadeau/forge-sub002/internal/manifest"
)

// Project is a discovered unit of work: a unique name, a workspace-relative
// root, a source root, a project type, an unordered tag set, and its
// targets keyed by name.
type Project struct {
	Name       string
	Root       string
	SourceRoot string
	Type       manifest.ProjectType
	Tags       []string
	Targets    map[string]manifest.Target
}

// HasTag reports whether the project carries the given tag.
func (p Project) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge is a directed dependency edge between two projects.
type Edge = manifest.Edge

// ProjectGraph is the union of discovered projects plus their dependency
// edges, with forward (`dependencies`) and reverse (`dependents`) adjacency
// indices. Immutable after construction; transitive closures are memoized
// per lookup.
type ProjectGraph struct {
	Projects map[string]Project
	Edges    []Edge

	forward map[string]map[string]struct{}
	reverse map[string]map[string]struct{}

	closureMu       sync.Mutex
	depClosureCache map[string][]string
	dntClosureCache map[string][]string
}

// NewProjectGraph builds a ProjectGraph from a project map and edge list,
// computing forward/reverse indices. Dangling edges (endpoints missing
// from the project map) must already have been filtered by the caller.
func NewProjectGraph(projects map[string]Project, edges []Edge) *ProjectGraph {
	g := &ProjectGraph{
		Projects:        projects,
		Edges:           edges,
		forward:         make(map[string]map[string]struct{}),
		reverse:         make(map[string]map[string]struct{}),
		depClosureCache: make(map[string][]string),
		dntClosureCache: make(map[string][]string),
	}

	for name := range projects {
		g.forward[name] = make(map[string]struct{})
		g.reverse[name] = make(map[string]struct{})
	}

	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if g.forward[e.Source] == nil {
			g.forward[e.Source] = make(map[string]struct{})
		}
		if g.reverse[e.Target] == nil {
			g.reverse[e.Target] = make(map[string]struct{})
		}
		g.forward[e.Source][e.Target] = struct{}{}
		g.reverse[e.Target][e.Source] = struct{}{}
	}

	return g
}

// Dependencies returns the direct forward adjacency of a project, sorted.
func (g *ProjectGraph) Dependencies(project string) []string {
	return sortedKeys(g.forward[project])
}

// Dependents returns the direct reverse adjacency of a project, sorted.
func (g *ProjectGraph) Dependents(project string) []string {
	return sortedKeys(g.reverse[project])
}

// TransitiveDependencies returns the memoized transitive closure of
// Dependencies.
func (g *ProjectGraph) TransitiveDependencies(project string) []string {
	g.closureMu.Lock()
	defer g.closureMu.Unlock()

	if cached, ok := g.depClosureCache[project]; ok {
		return cached
	}
	result := closure(project, g.forward)
	g.depClosureCache[project] = result
	return result
}

// TransitiveDependents returns the memoized transitive closure of Dependents.
func (g *ProjectGraph) TransitiveDependents(project string) []string {
	g.closureMu.Lock()
	defer g.closureMu.Unlock()

	if cached, ok := g.dntClosureCache[project]; ok {
		return cached
	}
	result := closure(project, g.reverse)
	g.dntClosureCache[project] = result
	return result
}

func closure(start string, adjacency map[string]map[string]struct{}) []string {
	visited := make(map[string]struct{})
	var visit func(string)
	visit = func(node string) {
		for next := range adjacency[node] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			visit(next)
		}
	}
	visit(start)
	return sortedKeys(visited)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
