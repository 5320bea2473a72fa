// Package forge wires the manifest-inference, project-graph, task-graph,
// planning, and execution packages (C1 through C5) behind a single entry
// point, the way internal/app ties config, graph, and engine together in
// the teacher codebase.
package forge

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/jbadeau/forge-sub002/internal/exec"
	"github.com/jbadeau/forge-sub002/internal/logger"
	"github.com/jbadeau/forge-sub002/internal/manifest"
	"github.com/jbadeau/forge-sub002/internal/plan"
	"github.com/jbadeau/forge-sub002/internal/projectgraph"
	"github.com/jbadeau/forge-sub002/internal/taskgraph"
	"github.com/jbadeau/forge-sub002/internal/wsconfig"
)

// Core is the orchestrator's single entry point: load configuration,
// discover the project graph, materialize a task graph for a target, plan
// its execution, and run it.
type Core interface {
	BuildProjectGraph(workspaceRoot string) (*projectgraph.ProjectGraph, []manifest.Warning, error)
	BuildTaskGraph(graph *projectgraph.ProjectGraph, target string, selection taskgraph.SelectionMode) (*taskgraph.TaskGraph, error)
	Execute(ctx context.Context, graph *taskgraph.TaskGraph, opts exec.LocalOptions) (*exec.ExecutionResults, error)
}

// service is Core's default implementation, built from a manifest plugin
// registry and an application logger.
type service struct {
	registry *manifest.Registry
	log      *logger.Logger
	cfg      *wsconfig.WorkspaceConfig

	// dialRemote opens the RemoteExecutor used when cfg.RemoteExecution is
	// enabled; overridable in tests to avoid a real gRPC dial.
	dialRemote func(exec.RemoteOptions) (*exec.RemoteExecutor, error)
}

// NewCore constructs the default Core, wiring the built-in manifest plugins.
func NewCore(log *logger.Logger) Core {
	return &service{registry: manifest.Builtins(), log: log, dialRemote: exec.DialRemoteExecutor}
}

func (s *service) BuildProjectGraph(workspaceRoot string) (*projectgraph.ProjectGraph, []manifest.Warning, error) {
	cfgPath := workspaceRoot + "/workspace.json"
	cfg, err := wsconfig.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, err
		}
		cfg = &wsconfig.WorkspaceConfig{}
	}
	s.cfg = cfg

	builder := projectgraph.NewBuilder(s.registry)
	return builder.Build(workspaceRoot, cfg)
}

func (s *service) BuildTaskGraph(graph *projectgraph.ProjectGraph, target string, selection taskgraph.SelectionMode) (*taskgraph.TaskGraph, error) {
	return taskgraph.Build(graph, target, selection)
}

func (s *service) Execute(ctx context.Context, graph *taskgraph.TaskGraph, opts exec.LocalOptions) (*exec.ExecutionResults, error) {
	executor := exec.NewLocalExecutor(graph, opts, s.log)

	rec := s.cfg.GetRemoteExecution()
	if rec != nil && rec.Enabled {
		remote, err := s.dialRemote(remoteOptionsFromConfig(rec))
		if err != nil {
			return nil, err
		}
		defer remote.Close()
		executor.WithRemote(remote, func(task taskgraph.Task) bool {
			return targetRemoteEnabled(task.Target)
		})
	}

	p, err := plan.BuildPlan(graph)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, p)
}

// targetRemoteEnabled reports whether task's own target allows remote
// execution; it is false only when the target opts out. nil means inherit
// the workspace-wide default, which Execute has already established is
// enabled by the time this is called.
func targetRemoteEnabled(target manifest.Target) bool {
	if target.RemoteExecution == nil {
		return true
	}
	return *target.RemoteExecution
}

// remoteOptionsFromConfig translates the workspace's default remote
// execution settings into exec.RemoteOptions.
func remoteOptionsFromConfig(rec *wsconfig.RemoteExecutionConfig) exec.RemoteOptions {
	opts := exec.RemoteOptions{
		Endpoint:     rec.DefaultEndpoint,
		InstanceName: rec.DefaultInstanceName,
		UseTLS:       rec.UseTLS,
		Platform:     rec.DefaultPlatform,
	}
	if rec.DefaultTimeoutSeconds > 0 {
		opts.DefaultTimeout = time.Duration(rec.DefaultTimeoutSeconds) * time.Second
	}
	return opts
}
