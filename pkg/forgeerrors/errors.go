// Package forgeerrors defines the typed error taxonomy used across the
// orchestrator's planning and execution pipeline: configuration, inference,
// graph, execution, and infrastructure failures, each carrying enough
// context to be reported without re-deriving it from the caller.
package forgeerrors

import (
	"fmt"
)

// ConfigurationError signals an unrecoverable problem with workspace or
// target configuration: an unknown executor, invalid options, a malformed
// plugin spec, or a name collision the core refuses to merge silently.
// It is fatal and is always surfaced to the caller.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(field, message string, err error) error {
	return &ConfigurationError{Field: field, Message: message, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InferenceError records a single manifest-inference plugin or file failure.
// It is always recovered locally by the project graph builder: the
// offending file is skipped and the error is carried as a warning rather
// than aborting the rest of discovery.
type InferenceError struct {
	Plugin string
	Path   string
	Err    error
}

// NewInferenceError constructs an InferenceError.
func NewInferenceError(plugin, path string, err error) error {
	return &InferenceError{Plugin: plugin, Path: path, Err: err}
}

func (e *InferenceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("inference error [%s]: %s: %v", e.Plugin, e.Path, e.Err)
	}
	return fmt.Sprintf("inference error [%s]: %v", e.Plugin, e.Err)
}

// Unwrap exposes the underlying error.
func (e *InferenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// GraphError reports a structural defect in a project graph or task graph:
// a dependency cycle discovered while materializing a task graph, or a
// dangling reference that involves a project the caller explicitly
// requested. It is fatal whenever user-requested tasks are involved.
type GraphError struct {
	Message string
	Cycle   []string
	Err     error
}

// NewGraphError constructs a GraphError.
func NewGraphError(message string, cycle []string, err error) error {
	return &GraphError{Message: message, Cycle: cycle, Err: err}
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("graph error: %s: cycle %v", e.Message, e.Cycle)
	}
	return fmt.Sprintf("graph error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *GraphError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a task: a
// non-zero exit code, a timeout, a cancellation, or a remote transport
// failure that exhausted its retry budget. It is attached to the offending
// task's result and triggers dependent skipping per the executor's failure
// propagation policy.
type ExecutionError struct {
	TaskID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(taskID string, err error) error {
	return &ExecutionError{TaskID: taskID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.TaskID != "" {
		return fmt.Sprintf("execution error on task %s: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InfrastructureError indicates the remote executor could not reach its
// dependencies: a gRPC channel that cannot be established, or a CAS/
// ActionCache endpoint that is unavailable even after retries. Depending on
// configuration the remote executor degrades to local execution for the
// affected task with a warning, or surfaces this as fatal.
type InfrastructureError struct {
	Endpoint string
	Err      error
}

// NewInfrastructureError constructs an InfrastructureError.
func NewInfrastructureError(endpoint string, err error) error {
	return &InfrastructureError{Endpoint: endpoint, Err: err}
}

func (e *InfrastructureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Endpoint != "" {
		return fmt.Sprintf("infrastructure error [%s]: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("infrastructure error: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *InfrastructureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
