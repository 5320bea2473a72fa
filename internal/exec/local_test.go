package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbadeau/forge-sub002/internal/manifest"
	"github.com/jbadeau/forge-sub002/internal/plan"
	"github.com/jbadeau/forge-sub002/internal/taskgraph"
)

func singleTaskGraph(commands []string) *taskgraph.TaskGraph {
	return &taskgraph.TaskGraph{
		Tasks: map[string]taskgraph.Task{
			"app:build": {
				ID: "app:build", ProjectName: "app", TargetName: "build",
				Target: manifest.Target{
					Executor: "run-commands",
					Options:  map[string]any{"commands": commands},
				},
				Hash: "app:build-hash",
			},
		},
		DependsOn: map[string][]string{"app:build": {}},
	}
}

func singleTaskPlan() *plan.ExecutionPlan {
	return &plan.ExecutionPlan{Layers: []plan.Layer{{TaskIDs: []string{"app:build"}}}}
}

func TestLocalExecutorSuccess(t *testing.T) {
	graph := singleTaskGraph([]string{"true"})
	ex := NewLocalExecutor(graph, LocalOptions{}, nil)

	results, err := ex.Execute(context.Background(), singleTaskPlan())
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, Completed, results.Results[0].Status)
	assert.Equal(t, 0, results.ExitCode())
}

func TestLocalExecutorFailure(t *testing.T) {
	graph := singleTaskGraph([]string{"false"})
	ex := NewLocalExecutor(graph, LocalOptions{}, nil)

	results, err := ex.Execute(context.Background(), singleTaskPlan())
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, Failed, results.Results[0].Status)
	assert.Equal(t, 1, results.ExitCode())
}

func TestLocalExecutorTimeout(t *testing.T) {
	graph := singleTaskGraph([]string{"sleep 2"})
	ex := NewLocalExecutor(graph, LocalOptions{DefaultTimeout: 50 * time.Millisecond}, nil)

	results, err := ex.Execute(context.Background(), singleTaskPlan())
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, Failed, results.Results[0].Status)
	assert.Equal(t, TimeoutExitCode, results.Results[0].ExitCode)
	assert.Equal(t, TimeoutExitCode, results.ExitCode())
}

func chainedFailureGraph() (*taskgraph.TaskGraph, *plan.ExecutionPlan) {
	graph := &taskgraph.TaskGraph{
		Tasks: map[string]taskgraph.Task{
			"a:build": {ID: "a:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"false"}}}, Hash: "a"},
			"b:build": {ID: "b:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"true"}}}, Hash: "b"},
		},
		DependsOn: map[string][]string{
			"a:build": {},
			"b:build": {"a:build"},
		},
	}
	p := &plan.ExecutionPlan{Layers: []plan.Layer{
		{TaskIDs: []string{"a:build"}},
		{TaskIDs: []string{"b:build"}},
	}}
	return graph, p
}

func TestLocalExecutorSkipsDependentsOfFailedTaskByDefault(t *testing.T) {
	graph, p := chainedFailureGraph()
	ex := NewLocalExecutor(graph, LocalOptions{}, nil)

	results, err := ex.Execute(context.Background(), p)
	require.NoError(t, err)

	byID := results.ByID()
	assert.Equal(t, Failed, byID["a:build"].Status)
	assert.Equal(t, Skipped, byID["b:build"].Status)
}

func TestLocalExecutorKeepGoingOnlySkipsDependentsOfFailure(t *testing.T) {
	graph := &taskgraph.TaskGraph{
		Tasks: map[string]taskgraph.Task{
			"a:build": {ID: "a:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"false"}}}, Hash: "a"},
			"b:build": {ID: "b:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"true"}}}, Hash: "b"},
			"c:build": {ID: "c:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"true"}}}, Hash: "c"},
		},
		DependsOn: map[string][]string{
			"a:build": {},
			"b:build": {},
			"c:build": {"a:build"},
		},
	}
	p := &plan.ExecutionPlan{Layers: []plan.Layer{
		{TaskIDs: []string{"a:build", "b:build"}},
		{TaskIDs: []string{"c:build"}},
	}}

	ex := NewLocalExecutor(graph, LocalOptions{ContinueOnError: true}, nil)
	results, err := ex.Execute(context.Background(), p)
	require.NoError(t, err)

	byID := results.ByID()
	assert.Equal(t, Failed, byID["a:build"].Status)
	assert.Equal(t, Completed, byID["b:build"].Status)
	assert.Equal(t, Skipped, byID["c:build"].Status)
}
