// Package taskctx defines the per-execution state that flows through a
// single graph activation: the Task submitted by a caller, the
// TaskContext holding every job's join state and saved results, and the
// Envelope an Execute call returns.
package taskctx

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Task is a single submission to a graph: a generated task ID plus the
// inputs the graph's head job receives.
type Task struct {
	// ID uniquely identifies this activation. Generated by NewTask; callers
	// never set it directly.
	ID string

	// Graph is the base graph name this task targets, without the variant
	// (job.GraphID combines the two).
	Graph string

	// Variant distinguishes alternate wirings of Graph.
	Variant string

	// Inputs is handed to the graph's head job as its inputs map.
	Inputs map[string]any
}

// NewTask builds a Task with a freshly generated ID.
func NewTask(graphName, variant string, inputs map[string]any) Task {
	return Task{
		ID:      uuid.NewString(),
		Graph:   graphName,
		Variant: variant,
		Inputs:  inputs,
	}
}

// taskContextKey is the context.Context key under which a *TaskContext is
// stored, giving every job.Executor invocation access to its task's scoped
// state without a global registry.
type taskContextKey struct{}

// WithTaskContext returns a copy of ctx carrying tc, retrievable with
// FromContext.
func WithTaskContext(ctx context.Context, tc *TaskContext) context.Context {
	return context.WithValue(ctx, taskContextKey{}, tc)
}

// FromContext retrieves the *TaskContext stored by WithTaskContext, or nil
// if ctx carries none.
func FromContext(ctx context.Context) *TaskContext {
	tc, _ := ctx.Value(taskContextKey{}).(*TaskContext)
	return tc
}

// Envelope is the terminal result of executing a task through a graph: the
// tail job's result, the reserved RETURN_JOB/TASK_PASSTHROUGH_KEY fields
// every envelope carries, and every saved intermediate result keyed by the
// short name of the job that produced it.
type Envelope struct {
	TaskID string
	Result any

	// ReturnJob is the fully-qualified name of the graph's tail job, the one
	// that produced Result. Rendered under the reserved key RETURN_JOB.
	ReturnJob string `json:"RETURN_JOB"`

	// TaskPassthrough is the original task mapping as submitted, recorded at
	// the head. Rendered under the reserved literal key task_pass_through.
	TaskPassthrough map[string]any `json:"task_pass_through"`

	// SavedResults is keyed by each opted-in job's short name, not its
	// fully-qualified name. Rendered under the reserved key SAVED_RESULTS.
	SavedResults map[string]any `json:"SAVED_RESULTS,omitempty"`
}

// String renders a short human-readable summary, useful for logging.
func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{TaskID: %s, Result: %v, ReturnJob: %s, Saved: %d}", e.TaskID, e.Result, e.ReturnJob, len(e.SavedResults))
}
