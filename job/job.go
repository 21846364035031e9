// Package job defines the executable unit of a dagflow graph: the Executor
// contract concrete jobs implement, the pre-wiring Spec a DSL leaf produces,
// and the post-wiring Job a JobGraph links together.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Executor is the contract every job implements. Run receives the results of
// every predecessor keyed by their fully-qualified name and must be
// effect-isolated per invocation: the same Executor value may be invoked
// concurrently for distinct tasks.
type Executor interface {
	Run(ctx context.Context, inputs map[string]any) (any, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface, the
// same way the teacher pattern's NodeExecutorFunc adapts plain functions to
// NodeExecutor.
type ExecutorFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Run calls the underlying function, satisfying Executor.
func (f ExecutorFunc) Run(ctx context.Context, inputs map[string]any) (any, error) {
	return f(ctx, inputs)
}

// Typed adapts a strongly-typed function fn(ctx, P) (R, error) into an
// Executor. It is the statically-typed counterpart to the reflective
// signature-introspection the source DSL's Wrapper performs: P is decoded
// from the accumulated inputs map via a JSON round-trip, and the returned R
// is handed back as the job's result.
//
// Use this when a job's parameters are better expressed as a struct than as
// a loose map[string]any.
func Typed[P any, R any](fn func(ctx context.Context, params P) (R, error)) Executor {
	return ExecutorFunc(func(ctx context.Context, inputs map[string]any) (any, error) {
		var params P
		raw, err := json.Marshal(inputs)
		if err != nil {
			return nil, fmt.Errorf("encode inputs for typed job: %w", err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode inputs for typed job: %w", err)
		}
		return fn(ctx, params)
	})
}

// Spec is the pre-wiring description of a job produced by the DSL compiler:
// a short name scoped to its graph, the executor logic, and the properties
// controlling how the wired Job behaves.
type Spec struct {
	// ShortName identifies the job within its graph, before FQ assignment.
	ShortName string

	// Executor holds the job's run logic.
	Executor Executor

	// Properties is an opaque configuration map passed through to concrete
	// jobs; the core never interprets it.
	Properties map[string]any

	// SaveResult opts this job's result into the task's saved-results map.
	SaveResult bool

	// Timeout bounds how long this job's join wait may take. Zero means no
	// timeout.
	Timeout time.Duration
}

// Job is the fully-wired, post-JobGraph-build form of a job: it knows its
// fully-qualified name, the set of predecessor names it must hear from
// before it may run, and its successors.
//
// A Job's ExpectedInputs and NextJobs are immutable after JobGraph.Build and
// are safe to read concurrently by any number of in-flight tasks; all
// mutable per-task state lives in taskctx.TaskContext, never on the Job.
type Job struct {
	// Name is the job's fully-qualified name: graph$$variant$$short_name$$.
	Name string

	// Spec is the underlying job specification (executor, properties,
	// save-result opt-in, timeout).
	Spec *Spec

	// ExpectedInputs is the set of predecessor FQ names whose results must
	// all be delivered before this job may run. Empty for the head.
	ExpectedInputs map[string]struct{}

	// NextJobs lists this job's downstream successors in the order edges
	// were declared.
	NextJobs []*Job
}

// Run invokes the job's underlying executor.
func (j *Job) Run(ctx context.Context, inputs map[string]any) (any, error) {
	return j.Spec.Executor.Run(ctx, inputs)
}

// IsHead reports whether this job has no expected inputs, i.e. it may begin
// running as soon as it is activated without waiting on any join.
func (j *Job) IsHead() bool {
	return len(j.ExpectedInputs) == 0
}

// IsTail reports whether this job has no successors — the terminating case
// of a graph traversal.
func (j *Job) IsTail() bool {
	return len(j.NextJobs) == 0
}
