// Package plan converts a task graph into an ordered execution plan (C4):
// tasks grouped into levels by Kahn's algorithm, where every task in a
// level has all of its dependencies satisfied by an earlier level.
package plan

import (
	"sort"

	"github.com/jbadeau/forge-sub002/internal/taskgraph"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// Layer is a set of task ids that can run concurrently: every dependency of
// every task in the layer belongs to a strictly earlier layer.
type Layer struct {
	TaskIDs []string
}

// ExecutionPlan is the ordered sequence of layers produced from a TaskGraph.
type ExecutionPlan struct {
	Layers []Layer
}

// MaxParallelism returns the width of the widest layer: the minimum worker
// count needed to never idle a layer's tasks waiting for a free slot.
func (p *ExecutionPlan) MaxParallelism() int {
	max := 0
	for _, l := range p.Layers {
		if len(l.TaskIDs) > max {
			max = len(l.TaskIDs)
		}
	}
	return max
}

// BuildPlan levels graph's tasks by dependency depth using Kahn's algorithm.
// detectCycle already rejected cyclic graphs at task-graph construction time;
// this is a defensive re-check in case a TaskGraph was hand-assembled rather
// than produced by taskgraph.Build.
func BuildPlan(graph *taskgraph.TaskGraph) (*ExecutionPlan, error) {
	dependents := make(map[string][]string, len(graph.Tasks))
	indegree := make(map[string]int, len(graph.Tasks))
	for id := range graph.Tasks {
		indegree[id] = 0
	}
	for id, deps := range graph.DependsOn {
		indegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var layers []Layer

	for len(queue) > 0 {
		current := append([]string(nil), queue...)
		layers = append(layers, Layer{TaskIDs: current})

		var next []string
		for _, id := range current {
			processed++
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		sort.Strings(next)
		queue = next
	}

	if processed != len(graph.Tasks) {
		return nil, forgeerrors.NewGraphError("dependency cycle detected while planning execution", remaining(indegree), nil)
	}

	return &ExecutionPlan{Layers: layers}, nil
}

func remaining(indegree map[string]int) []string {
	var ids []string
	for id, degree := range indegree {
		if degree > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
