package taskgraph

import (
	"sort"

	"github.com/jbadeau/forge-sub002/internal/projectgraph"
)

// resolve expands a SelectionMode into the candidate project names for task
// materialization, given the target being requested.
func (s SelectionMode) resolve(graph *projectgraph.ProjectGraph, targetName string) []string {
	switch s.kind {
	case selectSpecific:
		return append([]string(nil), s.list...)

	case selectAffected:
		set := make(map[string]struct{}, len(s.changed))
		for _, name := range s.changed {
			set[name] = struct{}{}
			for _, dependent := range graph.TransitiveDependents(name) {
				set[dependent] = struct{}{}
			}
		}
		return definingTarget(graph, targetName, setToSlice(set))

	case selectWithTag:
		var names []string
		for name, p := range graph.Projects {
			if p.HasTag(s.tag) {
				names = append(names, name)
			}
		}
		return definingTarget(graph, targetName, names)

	case selectOfType:
		var names []string
		for name, p := range graph.Projects {
			if string(p.Type) == s.ptype {
				names = append(names, name)
			}
		}
		return definingTarget(graph, targetName, names)

	default: // selectAll
		var names []string
		for name := range graph.Projects {
			names = append(names, name)
		}
		return definingTarget(graph, targetName, names)
	}
}

func definingTarget(graph *projectgraph.ProjectGraph, targetName string, names []string) []string {
	var result []string
	for _, name := range names {
		proj, ok := graph.Projects[name]
		if !ok {
			continue
		}
		if _, defines := proj.Targets[targetName]; defines {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
