package taskgraph

import (
	"sort"

	"github.com/jbadeau/forge-sub002/internal/projectgraph"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// Build expands targetName over the projects selected by mode into a
// TaskGraph: each selected project owning the target, plus every task
// reachable by recursively resolving dependsOn.
func Build(graph *projectgraph.ProjectGraph, targetName string, mode SelectionMode) (*TaskGraph, error) {
	selected := mode.resolve(graph, targetName)

	tasks := make(map[string]Task)
	dependsOn := make(map[string][]string)

	var materialize func(projectName, target string) (string, bool)
	materialize = func(projectName, target string) (string, bool) {
		id := taskID(projectName, target)
		if _, already := tasks[id]; already {
			return id, true
		}

		proj, ok := graph.Projects[projectName]
		if !ok {
			return "", false
		}
		def, ok := proj.Targets[target]
		if !ok {
			return "", false
		}

		tasks[id] = Task{
			ID:          id,
			ProjectName: projectName,
			TargetName:  target,
			Target:      def,
			Hash:        computeHash(id, def, proj),
		}
		dependsOn[id] = nil

		var deps []string
		for _, raw := range def.DependsOn {
			ref := ParseDependsOnRef(raw)
			switch ref.Kind {
			case Upstream:
				for _, upstream := range graph.Dependencies(projectName) {
					if depID, ok := materialize(upstream, ref.Target); ok {
						deps = append(deps, depID)
					}
				}
			case Qualified:
				targetProject := ref.Project
				if targetProject == "self" {
					targetProject = projectName
				}
				if depID, ok := materialize(targetProject, ref.Target); ok {
					deps = append(deps, depID)
				}
			case Same:
				if depID, ok := materialize(projectName, ref.Target); ok {
					deps = append(deps, depID)
				}
			}
		}

		sort.Strings(deps)
		dependsOn[id] = deps
		return id, true
	}

	for _, projectName := range selected {
		materialize(projectName, targetName)
	}

	if cycle := detectCycle(dependsOn); len(cycle) > 0 {
		return nil, forgeerrors.NewGraphError("dependency cycle detected while building task graph", cycle, nil)
	}

	var roots []string
	for id, deps := range dependsOn {
		if len(deps) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	return &TaskGraph{Tasks: tasks, DependsOn: dependsOn, Roots: roots}, nil
}
