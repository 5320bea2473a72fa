package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jbadeau/forge-sub002/internal/logger"
	"github.com/jbadeau/forge-sub002/internal/plan"
	"github.com/jbadeau/forge-sub002/internal/taskgraph"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// LocalOptions configures a LocalExecutor run.
type LocalOptions struct {
	// WorkspaceRoot is where relative target cwd values are rooted.
	WorkspaceRoot string
	// Parallelism bounds concurrent subprocesses; 0 defaults to host CPU count.
	Parallelism int
	// DefaultTimeout bounds a single task's wall-clock time; 0 defaults to 300s.
	DefaultTimeout time.Duration
	// ContinueOnError is the plan-level "--keep-going" flag: only tasks whose
	// own transitive dependencies failed are skipped, instead of halting
	// the whole plan after the first failure.
	ContinueOnError bool
}

// LocalExecutor runs a task graph's plan layer by layer as subprocesses,
// matching the resource-slot/WaitGroup-barrier shape used throughout this
// codebase's layered execution paths.
type LocalExecutor struct {
	graph      *taskgraph.TaskGraph
	opts       LocalOptions
	log        *logger.Logger
	slots      chan struct{}
	inflightMu sync.Mutex
	inflight   map[string]*inflightRun

	// remote, when set, is tried first for tasks remoteEligible selects. A
	// remote attempt that fails with an InfrastructureError falls back to
	// local subprocess execution for that task; any other remote error is a
	// genuine task failure.
	remote         *RemoteExecutor
	remoteEligible func(taskgraph.Task) bool
}

type inflightRun struct {
	done chan struct{}
	res  TaskResult
}

// NewLocalExecutor constructs a LocalExecutor for graph with the given options.
func NewLocalExecutor(graph *taskgraph.TaskGraph, opts LocalOptions, log *logger.Logger) *LocalExecutor {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 300 * time.Second
	}
	return &LocalExecutor{
		graph:    graph,
		opts:     opts,
		log:      log,
		slots:    make(chan struct{}, opts.Parallelism),
		inflight: make(map[string]*inflightRun),
	}
}

// WithRemote attaches a RemoteExecutor and an eligibility predicate and
// returns e for chaining. Tasks for which eligible returns true are run
// against remote first; local subprocess execution is only their fallback.
func (e *LocalExecutor) WithRemote(remote *RemoteExecutor, eligible func(taskgraph.Task) bool) *LocalExecutor {
	e.remote = remote
	e.remoteEligible = eligible
	return e
}

// Execute runs every layer of p, dispatching each layer's tasks concurrently
// and enforcing the layer barrier and the failure-propagation policy that
// LocalOptions.ContinueOnError selects.
func (e *LocalExecutor) Execute(ctx context.Context, p *plan.ExecutionPlan) (*ExecutionResults, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := &ExecutionResults{}
	status := make(map[string]Status, len(e.graph.Tasks))

	halted := false
	for _, layer := range p.Layers {
		if halted {
			for _, id := range layer.TaskIDs {
				results.Results = append(results.Results, TaskResult{TaskID: id, Status: Skipped})
				status[id] = Skipped
			}
			continue
		}

		var toRun []string
		for _, id := range layer.TaskIDs {
			if e.dependencyFailed(id, status) {
				results.Results = append(results.Results, TaskResult{TaskID: id, Status: Skipped})
				status[id] = Skipped
				continue
			}
			toRun = append(toRun, id)
		}

		layerResults := make([]TaskResult, len(toRun))
		var wg sync.WaitGroup
		for i, id := range toRun {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				layerResults[i] = e.runTask(ctx, id)
			}(i, id)
		}
		wg.Wait()

		layerFailed := false
		for _, res := range layerResults {
			results.Results = append(results.Results, res)
			status[res.TaskID] = res.Status
			if res.Status == Failed {
				layerFailed = true
			}
		}

		if layerFailed {
			if !e.opts.ContinueOnError {
				cancel()
				halted = true
			}
		}
	}

	return results, nil
}

func (e *LocalExecutor) dependencyFailed(id string, status map[string]Status) bool {
	for _, dep := range e.graph.DependsOn[id] {
		switch status[dep] {
		case Failed, Skipped:
			return true
		}
	}
	return false
}

func (e *LocalExecutor) runTask(ctx context.Context, id string) TaskResult {
	task, ok := e.graph.Tasks[id]
	if !ok {
		return TaskResult{TaskID: id, Status: Failed, Err: fmt.Errorf("unknown task %q", id)}
	}

	if coalesced, ok := e.joinInflight(task.Hash); ok {
		return coalesced
	}
	defer e.finishInflight(task.Hash)

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return e.recordInflight(task.Hash, TaskResult{TaskID: id, Status: Skipped, Start: time.Now(), End: time.Now(), Err: ctx.Err()})
	}

	opts := parseCommandOptions(task.Target.Options)

	timeout := e.opts.DefaultTimeout
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := TaskResult{TaskID: id, Status: Running, Start: start}

	if e.remote != nil && e.remoteEligible != nil && e.remoteEligible(task) {
		if res, handled := e.runRemote(taskCtx, id, task); handled {
			return e.recordInflight(task.Hash, res)
		}
		if e.log != nil {
			e.log.Warn("remote execution unavailable, falling back to local", "task", id)
		}
	}

	exitCode, stdout, stderr, err := e.runCommands(taskCtx, opts)
	result.End = time.Now()
	result.ExitCode = exitCode
	result.Stdout = stdout
	result.Stderr = stderr

	switch {
	case taskCtx.Err() == context.DeadlineExceeded:
		result.Status = Failed
		result.ExitCode = TimeoutExitCode
		result.Err = fmt.Errorf("task %s exceeded timeout %s", id, timeout)
	case err != nil:
		result.Status = Failed
		result.Err = err
	default:
		result.Status = Completed
	}

	if e.log != nil {
		if result.Status == Failed {
			e.log.Error(result.Err, "task failed", "task", id, "exitCode", result.ExitCode)
		} else {
			e.log.Info("task completed", "task", id, "status", string(result.Status))
		}
	}

	return e.recordInflight(task.Hash, result)
}

// runRemote attempts task on e.remote. handled is false only when the
// attempt failed with an InfrastructureError, signaling the caller should
// fall back to local subprocess execution; any other outcome (success or a
// genuine execution failure) is returned as-is.
func (e *LocalExecutor) runRemote(ctx context.Context, id string, task taskgraph.Task) (TaskResult, bool) {
	result, err := e.remote.ExecuteTask(ctx, task, nil)
	if err == nil {
		result.TaskID = id
		if e.log != nil {
			e.log.Info("task completed", "task", id, "status", string(result.Status), "remote", true)
		}
		return result, true
	}

	var infraErr *forgeerrors.InfrastructureError
	if errors.As(err, &infraErr) {
		return TaskResult{}, false
	}

	failed := TaskResult{TaskID: id, Status: Failed, Start: time.Now(), End: time.Now(), Err: err}
	if e.log != nil {
		e.log.Error(err, "remote task failed", "task", id)
	}
	return failed, true
}

// runCommands executes opts.Commands sequentially (short-circuiting on the
// first failure) or concurrently when opts.Parallel is set, matching the
// target's declared command-ordering contract.
func (e *LocalExecutor) runCommands(ctx context.Context, opts commandOptions) (int, string, string, error) {
	if len(opts.Commands) == 0 {
		return 0, "", "", nil
	}

	cwd := opts.Cwd
	if cwd != "" && e.opts.WorkspaceRoot != "" {
		cwd = e.opts.WorkspaceRoot + "/" + cwd
	} else if cwd == "" {
		cwd = e.opts.WorkspaceRoot
	}

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	if opts.Parallel {
		return e.runParallel(ctx, opts.Commands, cwd, env)
	}
	return e.runSequential(ctx, opts.Commands, cwd, env)
}

func (e *LocalExecutor) runSequential(ctx context.Context, commands []string, cwd string, env []string) (int, string, string, error) {
	var stdout, stderr bytes.Buffer
	for _, cmd := range commands {
		code, err := e.runOne(ctx, cmd, cwd, env, &stdout, &stderr)
		if err != nil || code != 0 {
			return code, stdout.String(), stderr.String(), err
		}
	}
	return 0, stdout.String(), stderr.String(), nil
}

func (e *LocalExecutor) runParallel(ctx context.Context, commands []string, cwd string, env []string) (int, string, string, error) {
	var wg sync.WaitGroup
	codes := make([]int, len(commands))
	errs := make([]error, len(commands))
	outs := make([]string, len(commands))
	errOuts := make([]string, len(commands))

	for i, cmd := range commands {
		wg.Add(1)
		go func(i int, cmd string) {
			defer wg.Done()
			var stdout, stderr bytes.Buffer
			codes[i], errs[i] = e.runOne(ctx, cmd, cwd, env, &stdout, &stderr)
			outs[i] = stdout.String()
			errOuts[i] = stderr.String()
		}(i, cmd)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil || codes[i] != 0 {
			return codes[i], strings.Join(outs, ""), strings.Join(errOuts, ""), err
		}
	}
	return 0, strings.Join(outs, ""), strings.Join(errOuts, ""), nil
}

func (e *LocalExecutor) runOne(ctx context.Context, command, cwd string, env []string, stdout, stderr *bytes.Buffer) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), err
	}
	return 1, err
}

// joinInflight, recordInflight and finishInflight implement the
// single-concurrent-build invariant: a second request for the same task hash
// while the first is running coalesces onto its eventual result instead of
// starting a duplicate subprocess.
func (e *LocalExecutor) joinInflight(id string) (TaskResult, bool) {
	e.inflightMu.Lock()
	run, exists := e.inflight[id]
	if !exists {
		e.inflight[id] = &inflightRun{done: make(chan struct{})}
		e.inflightMu.Unlock()
		return TaskResult{}, false
	}
	e.inflightMu.Unlock()

	<-run.done
	return run.res, true
}

func (e *LocalExecutor) recordInflight(id string, res TaskResult) TaskResult {
	e.inflightMu.Lock()
	run := e.inflight[id]
	e.inflightMu.Unlock()
	if run != nil {
		run.res = res
	}
	return res
}

func (e *LocalExecutor) finishInflight(id string) {
	e.inflightMu.Lock()
	run, exists := e.inflight[id]
	delete(e.inflight, id)
	e.inflightMu.Unlock()
	if exists {
		close(run.done)
	}
}
