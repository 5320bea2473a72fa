// Package taskgraph expands a requested target over a project selection
// into a DAG of tasks (C3): it resolves dependsOn references (including the
// "^target" upstream operator and cross-project references), computes a
// stable structural hash per task, and rejects cyclic results.
package taskgraph

import (
	"github.com/jbadeau/forge-sub002/internal/manifest"
)

// Task is a (projectName, targetName) pair with a resolved Target and a
// deterministic structural hash.
type Task struct {
	ID          string
	ProjectName string
	TargetName  string
	Target      manifest.Target
	Hash        string
}

// TaskGraph is the DAG of tasks produced for a single target request: tasks
// keyed by id, a forward-dependency mapping, and the set of root tasks
// (in-degree 0).
type TaskGraph struct {
	Tasks     map[string]Task
	DependsOn map[string][]string
	Roots     []string
}

// taskID formats the canonical "{project}:{target}" task identifier.
func taskID(project, target string) string {
	return project + ":" + target
}
