// Package flowmanager is the submission front-end for dagflow graphs: it
// owns a registry of compiled workflows, hands out task IDs, bounds how
// many tasks may run concurrently, and collects completed envelopes (and
// failed tasks) for callers that submit asynchronously.
package flowmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowkit/dagflow/dsl"
	"github.com/flowkit/dagflow/executor"
	"github.com/flowkit/dagflow/job"
	"github.com/flowkit/dagflow/jobgraph"
	"github.com/flowkit/dagflow/taskctx"
	"github.com/flowkit/dagflow/telemetry"
)

// defaultVariant is used by SubmitShort and AddWorkflow callers that don't
// need to distinguish alternate wirings of the same graph name.
const defaultVariant = "default"

// defaultCheckInterval is WaitForCompletion's polling cadence when callers
// pass a non-positive checkInterval.
const defaultCheckInterval = 50 * time.Millisecond

// SubmissionError reports that a task or workflow was not accepted: the
// target workflow is unknown, AddWorkflow found the (name, variant) pair
// already registered, or ctx was canceled while SubmitTask waited for
// in-flight capacity.
type SubmissionError struct {
	GraphID string
	Reason  string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("flowmanager: cannot submit to %q: %s", e.GraphID, e.Reason)
}

// FailedTask pairs a task that failed to complete with the error that
// ended its execution. The errors buffer drained by PopResults accumulates these,
// bucketed by the graph FQ name the task targeted.
type FailedTask struct {
	Task taskctx.Task
	Err  error
}

// Results is what PopResults drains: every completed envelope and every
// failed task accumulated since the previous call, each bucketed by the
// graph FQ name (job.GraphID) the task targeted.
type Results struct {
	Completed map[string][]taskctx.Envelope
	Errors    map[string][]FailedTask
}

// WaitTimeoutError reports that WaitForCompletion's timeout elapsed before
// every submitted task resolved.
type WaitTimeoutError struct {
	Submitted, Completed, Errors int64
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("flowmanager: wait_for_completion timed out with %d/%d task(s) resolved (%d error(s))", e.Completed+e.Errors, e.Submitted, e.Errors)
}

// CompletionError reports that raiseOnError was requested and at least one
// submitted task failed by the time every task had resolved.
type CompletionError struct {
	Errors int64
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("flowmanager: %d task(s) failed", e.Errors)
}

// Option configures a FlowManager at construction time.
type Option func(*FlowManager)

// WithMaxInFlight bounds the number of tasks that may execute concurrently
// across every registered workflow. A value <= 0 (the default) means
// unbounded.
func WithMaxInFlight(n int) Option {
	return func(fm *FlowManager) {
		if n > 0 {
			fm.sem = make(chan struct{}, n)
		}
	}
}

// WithOnComplete registers a callback invoked, from the task's own
// goroutine, every time a submitted task finishes successfully.
func WithOnComplete(fn func(taskctx.Envelope)) Option {
	return func(fm *FlowManager) { fm.onComplete = fn }
}

// WithOnError registers a callback invoked, from the task's own goroutine,
// every time a submitted task fails.
func WithOnError(fn func(taskctx.Task, error)) Option {
	return func(fm *FlowManager) { fm.onError = fn }
}

// FlowManager registers workflows, accepts task submissions against them,
// and runs each task's execution on its own goroutine, bounded by the
// configured in-flight limit.
type FlowManager struct {
	mu     sync.RWMutex
	graphs map[string]*jobgraph.Graph
	sem    chan struct{}
	wg     sync.WaitGroup

	resultsMu sync.Mutex
	completed map[string][]taskctx.Envelope
	errored   map[string][]FailedTask

	onComplete func(taskctx.Envelope)
	onError    func(taskctx.Task, error)

	submittedCount      atomic.Int64
	completedCount      atomic.Int64
	errorCount          atomic.Int64
	postProcessingCount atomic.Int64
}

// New constructs an empty FlowManager ready to accept AddWorkflow calls.
func New(opts ...Option) *FlowManager {
	fm := &FlowManager{
		graphs:    make(map[string]*jobgraph.Graph),
		completed: make(map[string][]taskctx.Envelope),
		errored:   make(map[string][]FailedTask),
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm
}

// AddWorkflow compiles root under the given graph name and variant and
// registers the resulting jobgraph.Graph for submission. It is an error to
// register the same (name, variant) pair twice.
func (fm *FlowManager) AddWorkflow(name, variant string, root dsl.Node) error {
	if variant == "" {
		variant = defaultVariant
	}

	graphID := job.GraphID(name, variant)

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if _, exists := fm.graphs[graphID]; exists {
		return &SubmissionError{GraphID: graphID, Reason: "workflow already registered"}
	}

	spec, specs, err := dsl.Compile(root, name, variant)
	if err != nil {
		return fmt.Errorf("flowmanager: compiling workflow %q/%q: %w", name, variant, err)
	}

	graph, err := jobgraph.Build(spec, specs, name, variant)
	if err != nil {
		return fmt.Errorf("flowmanager: building workflow %q/%q: %w", name, variant, err)
	}

	fm.graphs[graphID] = graph
	return nil
}

// AddDSLDict registers every entry in dict as a workflow sharing the given
// variant, keyed by map key as the graph name. Registration stops at the
// first failure; workflows registered before the failing entry remain
// registered.
func (fm *FlowManager) AddDSLDict(dict map[string]dsl.Node, variant string) error {
	for name, root := range dict {
		if err := fm.AddWorkflow(name, variant, root); err != nil {
			return err
		}
	}
	return nil
}

// SubmitTask submits inputs against the registered (graphName, variant)
// workflow and returns immediately with the generated Task; execution
// proceeds on its own goroutine. Results are retrieved via PopResults, or
// via WithOnComplete/WithOnError callbacks.
func (fm *FlowManager) SubmitTask(ctx context.Context, graphName, variant string, inputs map[string]any) (taskctx.Task, error) {
	if variant == "" {
		variant = defaultVariant
	}
	graphID := job.GraphID(graphName, variant)

	fm.mu.RLock()
	graph, ok := fm.graphs[graphID]
	fm.mu.RUnlock()
	if !ok {
		return taskctx.Task{}, &SubmissionError{GraphID: graphID, Reason: "no workflow registered under this name and variant"}
	}

	if fm.sem != nil {
		select {
		case fm.sem <- struct{}{}:
		case <-ctx.Done():
			return taskctx.Task{}, &SubmissionError{GraphID: graphID, Reason: "in-flight capacity wait canceled: " + ctx.Err().Error()}
		}
	}

	task := taskctx.NewTask(graphName, variant, inputs)
	fm.submittedCount.Add(1)
	fm.wg.Add(1)

	go fm.run(ctx, graphID, graph, task)

	return task, nil
}

// SubmitShort submits a task against the default variant of graphName.
func (fm *FlowManager) SubmitShort(ctx context.Context, graphName string, inputs map[string]any) (taskctx.Task, error) {
	return fm.SubmitTask(ctx, graphName, defaultVariant, inputs)
}

func (fm *FlowManager) run(ctx context.Context, graphID string, graph *jobgraph.Graph, task taskctx.Task) {
	defer fm.wg.Done()
	if fm.sem != nil {
		defer func() { <-fm.sem }()
	}

	envelope, err := executor.Execute(ctx, graph, task)

	// postProcessingCount brackets the window between the executor
	// returning and this task's result landing in its buffer (and its
	// callback, if any, being invoked) — the gap WaitForCompletion's
	// submitted == completed+errors check would otherwise race past.
	fm.postProcessingCount.Add(1)
	defer fm.postProcessingCount.Add(-1)

	if err != nil {
		fm.errorCount.Add(1)
		fm.resultsMu.Lock()
		fm.errored[graphID] = append(fm.errored[graphID], FailedTask{Task: task, Err: err})
		fm.resultsMu.Unlock()
		if fm.onError != nil {
			fm.onError(task, err)
		}
		return
	}

	fm.completedCount.Add(1)
	fm.resultsMu.Lock()
	fm.completed[graphID] = append(fm.completed[graphID], envelope)
	fm.resultsMu.Unlock()

	if fm.onComplete != nil {
		fm.onComplete(envelope)
	}
}

// Execute submits a task and blocks until it completes, returning its
// Envelope directly. Unlike SubmitTask, the resulting envelope is never
// added to PopResults' buffer.
func (fm *FlowManager) Execute(ctx context.Context, graphName, variant string, inputs map[string]any) (taskctx.Envelope, error) {
	if variant == "" {
		variant = defaultVariant
	}
	graphID := job.GraphID(graphName, variant)

	fm.mu.RLock()
	graph, ok := fm.graphs[graphID]
	fm.mu.RUnlock()
	if !ok {
		return taskctx.Envelope{}, &SubmissionError{GraphID: graphID, Reason: "no workflow registered under this name and variant"}
	}

	task := taskctx.NewTask(graphName, variant, inputs)
	fm.submittedCount.Add(1)

	envelope, err := executor.Execute(ctx, graph, task)
	if err != nil {
		fm.errorCount.Add(1)
		return taskctx.Envelope{}, err
	}
	fm.completedCount.Add(1)
	return envelope, nil
}

// WaitForCompletion polls until every submitted task has resolved
// (submitted == completed + errors) and none is still in post-processing,
// or timeout elapses first. It logs a
// status line via the telemetry.Provider in ctx (if any) no more often than
// every logInterval. A non-positive checkInterval defaults to 50ms. If
// raiseOnError is true and at least one task failed, it returns a
// *CompletionError once every task has resolved; a timeout always returns a
// *WaitTimeoutError, regardless of raiseOnError.
func (fm *FlowManager) WaitForCompletion(ctx context.Context, timeout, checkInterval, logInterval time.Duration, raiseOnError bool) error {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	observer := telemetry.ObserverFromContext(ctx)
	var lastLog time.Time

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		submitted, completed, errored, postProcessing := fm.Counts()
		if submitted == completed+errored && postProcessing == 0 {
			if raiseOnError && errored > 0 {
				return &CompletionError{Errors: errored}
			}
			return nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return &WaitTimeoutError{Submitted: submitted, Completed: completed, Errors: errored}
		}

		if observer != nil && logInterval > 0 && time.Since(lastLog) >= logInterval {
			observer.Info(ctx, "waiting for tasks to complete",
				telemetry.Int64("dagflow.flowmanager.submitted", submitted),
				telemetry.Int64("dagflow.flowmanager.completed", completed),
				telemetry.Int64("dagflow.flowmanager.errors", errored),
			)
			lastLog = time.Now()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PopResults atomically drains and returns both the completed and errors
// buffers accumulated since the previous PopResults call (or construction).
func (fm *FlowManager) PopResults() Results {
	fm.resultsMu.Lock()
	defer fm.resultsMu.Unlock()

	completed := fm.completed
	errored := fm.errored
	fm.completed = make(map[string][]taskctx.Envelope)
	fm.errored = make(map[string][]FailedTask)

	return Results{Completed: completed, Errors: errored}
}

// Counts reports how many tasks have been submitted, completed
// successfully, failed, and are currently in post-processing (executed but
// not yet reflected in the completed/errors buffers) since construction.
func (fm *FlowManager) Counts() (submitted, completed, errored, postProcessing int64) {
	return fm.submittedCount.Load(), fm.completedCount.Load(), fm.errorCount.Load(), fm.postProcessingCount.Load()
}
