package forge

import (
	"context"
	"reflect"
	"testing"
	"time"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jbadeau/forge-sub002/internal/exec"
	"github.com/jbadeau/forge-sub002/internal/logger"
	"github.com/jbadeau/forge-sub002/internal/manifest"
	"github.com/jbadeau/forge-sub002/internal/plan"
	"github.com/jbadeau/forge-sub002/internal/projectgraph"
	"github.com/jbadeau/forge-sub002/internal/taskgraph"
	"github.com/jbadeau/forge-sub002/internal/wsconfig"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// stubActionCache is an exec.ActionCacheAPI that either always misses or
// always returns the configured cached result.
type stubActionCache struct {
	result *remoteexecution.ActionResult
}

func (s *stubActionCache) GetActionResult(ctx context.Context, in *remoteexecution.GetActionResultRequest, opts ...grpc.CallOption) (*remoteexecution.ActionResult, error) {
	if s.result == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return s.result, nil
}

// stubCAS is an exec.CASAPI reporting every blob as already present.
type stubCAS struct{}

func (s *stubCAS) FindMissingBlobs(ctx context.Context, in *remoteexecution.FindMissingBlobsRequest, opts ...grpc.CallOption) (*remoteexecution.FindMissingBlobsResponse, error) {
	return &remoteexecution.FindMissingBlobsResponse{}, nil
}

func (s *stubCAS) BatchUpdateBlobs(ctx context.Context, in *remoteexecution.BatchUpdateBlobsRequest, opts ...grpc.CallOption) (*remoteexecution.BatchUpdateBlobsResponse, error) {
	return &remoteexecution.BatchUpdateBlobsResponse{}, nil
}

// stubExecution is an exec.ExecutionAPI that never needs to be reached in a
// pure ActionCache-hit scenario.
type stubExecution struct{}

func (s *stubExecution) Execute(ctx context.Context, in *remoteexecution.ExecuteRequest, opts ...grpc.CallOption) (exec.ExecuteStream, error) {
	return nil, status.Error(codes.Unimplemented, "Execute should not be reached on a cache hit")
}

func jsChainGraph() *projectgraph.ProjectGraph {
	projects := map[string]projectgraph.Project{
		"web": {
			Name: "web", Root: "apps/web", Type: manifest.Application,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}, DependsOn: []string{"^build"}},
			},
		},
		"ui": {
			Name: "ui", Root: "libs/ui", Type: manifest.Library,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}, DependsOn: []string{"^build"}},
			},
		},
		"utils": {
			Name: "utils", Root: "libs/utils", Type: manifest.Library,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}},
			},
		},
		"api": {
			Name: "api", Root: "apps/api", Type: manifest.Application,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}},
			},
		},
	}
	edges := []projectgraph.Edge{
		{Source: "web", Target: "ui", Type: manifest.Static},
		{Source: "ui", Target: "utils", Type: manifest.Static},
	}
	return projectgraph.NewProjectGraph(projects, edges)
}

// S1: web -> ui -> utils, build on All, plan layers utils/ui/web, all
// COMPLETED. The fixture's independent api project also lands in layer 0.
func TestScenarioS1FullChainBuild(t *testing.T) {
	graph := jsChainGraph()

	tg, err := taskgraph.Build(graph, "build", taskgraph.All())
	require.NoError(t, err)

	p, err := plan.BuildPlan(tg)
	require.NoError(t, err)
	require.Len(t, p.Layers, 3)
	assert.Equal(t, []string{"api:build", "utils:build"}, p.Layers[0].TaskIDs)
	assert.Equal(t, []string{"ui:build"}, p.Layers[1].TaskIDs)
	assert.Equal(t, []string{"web:build"}, p.Layers[2].TaskIDs)

	executor := exec.NewLocalExecutor(tg, exec.LocalOptions{}, nil)
	results, err := executor.Execute(context.Background(), p)
	require.NoError(t, err)
	for _, res := range results.Results {
		assert.Equal(t, exec.Completed, res.Status)
	}
}

// S2: Specific(["web","api"]) with no inter-project edges resolved between
// the two (api has no dependency on ui/utils) produces exactly two tasks.
func TestScenarioS2SpecificSelectionIgnoresUnrelatedChain(t *testing.T) {
	graph := jsChainGraph()

	tg, err := taskgraph.Build(graph, "build", taskgraph.Specific([]string{"api"}))
	require.NoError(t, err)

	assert.Len(t, tg.Tasks, 1)
	assert.Contains(t, tg.Tasks, "api:build")
	assert.NotContains(t, tg.Tasks, "utils:build")
}

// S3: utils marked changed, Affected selection pulls in utils + ui + web.
func TestScenarioS3AffectedSelection(t *testing.T) {
	graph := jsChainGraph()

	tg, err := taskgraph.Build(graph, "build", taskgraph.Affected([]string{"utils"}))
	require.NoError(t, err)

	assert.Contains(t, tg.Tasks, "utils:build")
	assert.Contains(t, tg.Tasks, "ui:build")
	assert.Contains(t, tg.Tasks, "web:build")
	assert.NotContains(t, tg.Tasks, "api:build")
}

// S4: a->b->a cycle in the project graph surfaces as a GraphError once
// requested as a task graph, with no tasks materialized successfully.
func TestScenarioS4CycleProducesGraphError(t *testing.T) {
	projects := map[string]projectgraph.Project{
		"a": {
			Name: "a", Root: "a",
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", DependsOn: []string{"^build"}},
			},
		},
		"b": {
			Name: "b", Root: "b",
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", DependsOn: []string{"^build"}},
			},
		},
	}
	edges := []projectgraph.Edge{
		{Source: "a", Target: "b", Type: manifest.Static},
		{Source: "b", Target: "a", Type: manifest.Static},
	}
	graph := projectgraph.NewProjectGraph(projects, edges)

	_, err := taskgraph.Build(graph, "build", taskgraph.Specific([]string{"a", "b"}))
	require.Error(t, err)

	var graphErr *forgeerrors.GraphError
	require.ErrorAs(t, err, &graphErr)
}

// S6: a local task that sleeps past its timeout fails with exit 124 and
// its dependents are skipped under the default (non-keep-going) policy.
func TestScenarioS6TimeoutSkipsDependents(t *testing.T) {
	tg := &taskgraph.TaskGraph{
		Tasks: map[string]taskgraph.Task{
			"slow:build": {ID: "slow:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"sleep 2"}}}, Hash: "slow"},
			"dep:build":  {ID: "dep:build", Target: manifest.Target{Options: map[string]any{"commands": []string{"true"}}}, Hash: "dep"},
		},
		DependsOn: map[string][]string{
			"slow:build": {},
			"dep:build":  {"slow:build"},
		},
	}
	p := &plan.ExecutionPlan{Layers: []plan.Layer{
		{TaskIDs: []string{"slow:build"}},
		{TaskIDs: []string{"dep:build"}},
	}}

	executor := exec.NewLocalExecutor(tg, exec.LocalOptions{DefaultTimeout: 50 * time.Millisecond}, nil)
	results, err := executor.Execute(context.Background(), p)
	require.NoError(t, err)

	byID := results.ByID()
	assert.Equal(t, exec.Failed, byID["slow:build"].Status)
	assert.Equal(t, exec.TimeoutExitCode, byID["slow:build"].ExitCode)
	assert.Equal(t, exec.Skipped, byID["dep:build"].Status)
	assert.Equal(t, exec.TimeoutExitCode, results.ExitCode())
}

// Boundary: empty workspace config produces an empty project graph and an
// empty task graph, never an error.
func TestEmptyWorkspaceProducesEmptyGraphs(t *testing.T) {
	graph := projectgraph.NewProjectGraph(map[string]projectgraph.Project{}, nil)

	tg, err := taskgraph.Build(graph, "build", taskgraph.All())
	require.NoError(t, err)
	assert.Empty(t, tg.Tasks)
}

// Boundary: a requested target that no selected project defines yields an
// empty task graph rather than an error.
func TestTargetNotDefinedYieldsEmptyTaskGraph(t *testing.T) {
	graph := jsChainGraph()

	tg, err := taskgraph.Build(graph, "deploy", taskgraph.All())
	require.NoError(t, err)
	assert.Empty(t, tg.Tasks)
}

// S5: with remote execution enabled workspace-wide, Execute dispatches
// web:build to the RemoteExecutor (an ActionCache hit, reported CACHED
// without ever reaching Execute) while ui:build, which opts itself out, runs
// locally and completes as usual.
func TestScenarioS5RemoteExecutionDispatch(t *testing.T) {
	disabled := false
	projects := map[string]projectgraph.Project{
		"web": {
			Name: "web", Root: "apps/web", Type: manifest.Application,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}, DependsOn: []string{"^build"}},
			},
		},
		"ui": {
			Name: "ui", Root: "libs/ui", Type: manifest.Library,
			Targets: map[string]manifest.Target{
				"build": {Executor: "run-commands", Options: map[string]any{"commands": []string{"true"}}, RemoteExecution: &disabled},
			},
		},
	}
	edges := []projectgraph.Edge{{Source: "web", Target: "ui", Type: manifest.Static}}
	graph := projectgraph.NewProjectGraph(projects, edges)

	tg, err := taskgraph.Build(graph, "build", taskgraph.All())
	require.NoError(t, err)

	cached := &remoteexecution.ActionResult{ExitCode: 0}
	svc := &service{
		registry: manifest.Builtins(),
		cfg: &wsconfig.WorkspaceConfig{
			RemoteExecution: &wsconfig.RemoteExecutionConfig{Enabled: true, DefaultEndpoint: "localhost:1234"},
		},
		dialRemote: func(opts exec.RemoteOptions) (*exec.RemoteExecutor, error) {
			return exec.NewRemoteExecutorWithClients(opts, &stubActionCache{result: cached}, &stubCAS{}, &stubExecution{}), nil
		},
	}

	results, err := svc.Execute(context.Background(), tg, exec.LocalOptions{})
	require.NoError(t, err)

	byID := results.ByID()
	assert.True(t, byID["web:build"].FromCache)
	assert.Equal(t, exec.Cached, byID["web:build"].Status)
	assert.False(t, byID["ui:build"].FromCache)
	assert.Equal(t, exec.Completed, byID["ui:build"].Status)
}

// NewCore's default dialRemote is exec.DialRemoteExecutor.
func TestNewCoreDefaultsToRealDialRemoteExecutor(t *testing.T) {
	log, err := logger.New(logger.Options{Level: "error"})
	require.NoError(t, err)
	core := NewCore(log)
	assert.NotNil(t, core)

	svc, ok := core.(*service)
	require.True(t, ok)
	assert.Equal(t, reflect.ValueOf(exec.DialRemoteExecutor).Pointer(), reflect.ValueOf(svc.dialRemote).Pointer())
}
