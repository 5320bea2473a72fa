// Package exec executes a plan's tasks (C5): a local executor running
// subprocesses layer by layer, and a remote executor speaking the Remote
// Execution API v2 protocol against an ActionCache/CAS/Execution backend.
package exec

import "time"

// Status is a task's position in its execution state machine.
type Status string

const (
	Pending   Status = "PENDING"
	Running   Status = "RUNNING"
	Completed Status = "COMPLETED"
	Cached    Status = "CACHED"
	Failed    Status = "FAILED"
	Skipped   Status = "SKIPPED"
)

// TimeoutExitCode is the exit code recorded when a task is killed for
// exceeding its timeout.
const TimeoutExitCode = 124

// TaskResult is the per-task execution record.
type TaskResult struct {
	TaskID    string
	Status    Status
	Start     time.Time
	End       time.Time
	ExitCode  int
	Stdout    string
	Stderr    string
	FromCache bool
	Err       error
}

// Duration returns End minus Start.
func (r TaskResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ExecutionResults aggregates every task result produced by a single
// executor run, in plan order: layer by layer, with each layer's skipped
// tasks ahead of the tasks it ran.
type ExecutionResults struct {
	Results []TaskResult
}

// ByID indexes results by task id.
func (r *ExecutionResults) ByID() map[string]TaskResult {
	out := make(map[string]TaskResult, len(r.Results))
	for _, res := range r.Results {
		out[res.TaskID] = res
	}
	return out
}

// ExitCode computes the process-level exit code: 0 if every task succeeded
// or was cached, 124 if the first failure was a timeout, otherwise 1.
func (r *ExecutionResults) ExitCode() int {
	for _, res := range r.Results {
		if res.Status == Failed {
			if res.ExitCode == TimeoutExitCode {
				return TimeoutExitCode
			}
			return 1
		}
	}
	return 0
}
