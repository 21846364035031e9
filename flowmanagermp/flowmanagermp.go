// Package flowmanagermp simulates a multiprocess FlowManager using a fixed
// pool of goroutines communicating over channels rather than OS processes.
// Ordinary job Executors need nothing special — job graphs are built and
// handed to worker goroutines like any other in-process call. The
// constraint a real multiprocess variant imposes falls instead on the
// optional on-complete callback handed to an optional separate
// result-processor process: that callback must be nameable and
// re-resolvable by that name alone, standing in for the requirement that it
// be importable by reference so it survives being shipped across a process
// boundary. WithSerialProcessing exempts the callback from that
// requirement by running it in-process, post-hoc, instead.
package flowmanagermp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowkit/dagflow/dsl"
	"github.com/flowkit/dagflow/executor"
	"github.com/flowkit/dagflow/flowmanager"
	"github.com/flowkit/dagflow/job"
	"github.com/flowkit/dagflow/jobgraph"
	"github.com/flowkit/dagflow/taskctx"
	"github.com/flowkit/dagflow/telemetry"
)

const defaultVariant = "default"
const defaultCheckInterval = 50 * time.Millisecond

// onCompleter is anything invocable as an on-complete callback.
type onCompleter interface {
	Complete(taskctx.Envelope)
}

// NamedCallback is the interface an on-complete callback must satisfy to be
// invoked by the simulated separate result-processor process: a stable
// name, standing in for being importable by reference across a real
// process boundary. WithSerialProcessing exempts callbacks from this
// requirement since they then run in-process.
type NamedCallback interface {
	onCompleter
	Name() string
}

// PicklabilityError reports that an on-complete callback was registered
// without WithSerialProcessing but does not implement NamedCallback, so it
// cannot cross the simulated process boundary to the result-processor.
type PicklabilityError struct{}

func (e *PicklabilityError) Error() string {
	return "flowmanagermp: on-complete callback is not a NamedCallback and cannot cross the simulated process boundary; implement NamedCallback or use WithSerialProcessing"
}

// ShutdownTimeoutError reports that Shutdown's deadline elapsed before every
// worker goroutine exited.
type ShutdownTimeoutError struct {
	Pending int
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("flowmanagermp: shutdown timed out with %d worker(s) still running", e.Pending)
}

// request is a unit of work handed to a worker goroutine. A nil *request
// read off the ingress channel is the shutdown sentinel: the worker that
// reads it exits without re-sending it.
type request struct {
	task  taskctx.Task
	graph *jobgraph.Graph
	done  chan result
}

type result struct {
	envelope taskctx.Envelope
	err      error
}

// Option configures a FlowManagerMP at construction time.
type Option func(*FlowManagerMP)

// WithWorkers sets the simulated process pool size. The default is 1.
func WithWorkers(n int) Option {
	return func(fm *FlowManagerMP) {
		if n > 0 {
			fm.workers = n
		}
	}
}

// WithSerialProcessing disables the worker pool: every submitted task runs
// synchronously (for Submit) or on its own goroutine without crossing the
// simulated process boundary (for SubmitTask), and any on-complete callback
// runs in-process regardless of whether it implements NamedCallback — the
// fallback a real multiprocess implementation uses when a callback can't be
// shipped to a separate result-processor process.
func WithSerialProcessing() Option {
	return func(fm *FlowManagerMP) { fm.serial = true }
}

// WithOnComplete registers an on-complete callback, invoked once per
// successful task submitted via SubmitTask. Unless the manager is
// constructed WithSerialProcessing, cb must additionally implement
// NamedCallback; New returns a *PicklabilityError otherwise.
func WithOnComplete(cb onCompleter) Option {
	return func(fm *FlowManagerMP) { fm.onComplete = cb }
}

// FlowManagerMP is the multiprocess-simulating counterpart to
// flowmanager.FlowManager: same submission/result contract, but task
// execution happens on a pool of worker goroutines standing in for worker
// processes.
type FlowManagerMP struct {
	mu     sync.RWMutex
	graphs map[string]*jobgraph.Graph

	workers int
	serial  bool

	ingress chan *request
	started bool
	wg      sync.WaitGroup
	asyncWG sync.WaitGroup

	resultsMu sync.Mutex
	completed map[string][]taskctx.Envelope
	errored   map[string][]flowmanager.FailedTask

	onComplete onCompleter

	submittedCount      atomic.Int64
	completedCount       atomic.Int64
	errorCount           atomic.Int64
	postProcessingCount atomic.Int64
}

// New constructs a FlowManagerMP and, unless WithSerialProcessing was
// given, starts its worker pool immediately. It returns a *PicklabilityError
// if an on-complete callback was registered that can't cross the simulated
// process boundary and WithSerialProcessing was not given.
func New(opts ...Option) (*FlowManagerMP, error) {
	fm := &FlowManagerMP{
		graphs:    make(map[string]*jobgraph.Graph),
		workers:   1,
		completed: make(map[string][]taskctx.Envelope),
		errored:   make(map[string][]flowmanager.FailedTask),
	}
	for _, opt := range opts {
		opt(fm)
	}

	if fm.onComplete != nil && !fm.serial {
		if _, ok := fm.onComplete.(NamedCallback); !ok {
			return nil, &PicklabilityError{}
		}
	}

	if !fm.serial {
		fm.ingress = make(chan *request)
		fm.start()
	}
	return fm, nil
}

func (fm *FlowManagerMP) start() {
	fm.started = true
	for i := 0; i < fm.workers; i++ {
		fm.wg.Add(1)
		go fm.worker()
	}
}

func (fm *FlowManagerMP) worker() {
	defer fm.wg.Done()
	for req := range fm.ingress {
		if req == nil {
			return
		}
		fm.execute(req)
	}
}

func (fm *FlowManagerMP) execute(req *request) {
	envelope, err := executor.Execute(context.Background(), req.graph, req.task)
	req.done <- result{envelope: envelope, err: err}
}

// AddWorkflow compiles root and registers it under (name, variant). Job
// Executors have no naming requirement; only an on-complete callback
// registered WithOnComplete is subject to the picklability check, performed
// once at New.
func (fm *FlowManagerMP) AddWorkflow(name, variant string, root dsl.Node) error {
	if variant == "" {
		variant = defaultVariant
	}

	spec, specs, err := dsl.Compile(root, name, variant)
	if err != nil {
		return fmt.Errorf("flowmanagermp: compiling workflow %q/%q: %w", name, variant, err)
	}

	graph, err := jobgraph.Build(spec, specs, name, variant)
	if err != nil {
		return fmt.Errorf("flowmanagermp: building workflow %q/%q: %w", name, variant, err)
	}

	graphID := job.GraphID(name, variant)

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if _, exists := fm.graphs[graphID]; exists {
		return fmt.Errorf("flowmanagermp: workflow %q/%q already registered", name, variant)
	}
	fm.graphs[graphID] = graph
	return nil
}

func (fm *FlowManagerMP) lookup(graphName, variant string) (string, *jobgraph.Graph, error) {
	if variant == "" {
		variant = defaultVariant
	}
	graphID := job.GraphID(graphName, variant)

	fm.mu.RLock()
	graph, ok := fm.graphs[graphID]
	fm.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("flowmanagermp: no workflow registered under %q", graphID)
	}
	return graphID, graph, nil
}

// runOnce executes task against graph, routing through the worker pool
// unless the manager is WithSerialProcessing.
func (fm *FlowManagerMP) runOnce(ctx context.Context, graph *jobgraph.Graph, task taskctx.Task) (taskctx.Envelope, error) {
	if fm.serial {
		return executor.Execute(ctx, graph, task)
	}

	req := &request{task: task, graph: graph, done: make(chan result, 1)}

	select {
	case fm.ingress <- req:
	case <-ctx.Done():
		return taskctx.Envelope{}, ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.envelope, res.err
	case <-ctx.Done():
		return taskctx.Envelope{}, ctx.Err()
	}
}

// Submit runs a task against the registered (graphName, variant) workflow
// and blocks until it completes, simulating an RPC to a worker process.
// Unlike SubmitTask, the resulting envelope is never added to PopResults'
// buffer and no on-complete callback is invoked.
func (fm *FlowManagerMP) Submit(ctx context.Context, graphName, variant string, inputs map[string]any) (taskctx.Envelope, error) {
	_, graph, err := fm.lookup(graphName, variant)
	if err != nil {
		return taskctx.Envelope{}, err
	}

	task := taskctx.NewTask(graphName, variant, inputs)
	fm.submittedCount.Add(1)

	envelope, err := fm.runOnce(ctx, graph, task)
	if err != nil {
		fm.errorCount.Add(1)
		return taskctx.Envelope{}, err
	}
	fm.completedCount.Add(1)
	return envelope, nil
}

// SubmitTask submits inputs against the registered (graphName, variant)
// workflow and returns immediately with the generated Task; execution
// proceeds on its own goroutine, routed through the worker pool unless
// WithSerialProcessing. Results are retrieved via PopResults, or via the
// WithOnComplete callback. Same contract as flowmanager.FlowManager.SubmitTask.
func (fm *FlowManagerMP) SubmitTask(ctx context.Context, graphName, variant string, inputs map[string]any) (taskctx.Task, error) {
	graphID, graph, err := fm.lookup(graphName, variant)
	if err != nil {
		return taskctx.Task{}, err
	}

	task := taskctx.NewTask(graphName, variant, inputs)
	fm.submittedCount.Add(1)
	fm.asyncWG.Add(1)

	go fm.dispatch(ctx, graphID, graph, task)

	return task, nil
}

// SubmitShort submits a task against the default variant of graphName.
func (fm *FlowManagerMP) SubmitShort(ctx context.Context, graphName string, inputs map[string]any) (taskctx.Task, error) {
	return fm.SubmitTask(ctx, graphName, defaultVariant, inputs)
}

func (fm *FlowManagerMP) dispatch(ctx context.Context, graphID string, graph *jobgraph.Graph, task taskctx.Task) {
	defer fm.asyncWG.Done()

	envelope, err := fm.runOnce(ctx, graph, task)

	fm.postProcessingCount.Add(1)
	defer fm.postProcessingCount.Add(-1)

	if err != nil {
		fm.errorCount.Add(1)
		fm.resultsMu.Lock()
		fm.errored[graphID] = append(fm.errored[graphID], flowmanager.FailedTask{Task: task, Err: err})
		fm.resultsMu.Unlock()
		return
	}

	fm.completedCount.Add(1)
	fm.resultsMu.Lock()
	fm.completed[graphID] = append(fm.completed[graphID], envelope)
	fm.resultsMu.Unlock()

	if fm.onComplete != nil {
		fm.onComplete.Complete(envelope)
	}
}

// PopResults atomically drains and returns both the completed and errors
// buffers accumulated since the previous PopResults call (or construction).
// Same contract as flowmanager.FlowManager.PopResults.
func (fm *FlowManagerMP) PopResults() flowmanager.Results {
	fm.resultsMu.Lock()
	defer fm.resultsMu.Unlock()

	completed := fm.completed
	errored := fm.errored
	fm.completed = make(map[string][]taskctx.Envelope)
	fm.errored = make(map[string][]flowmanager.FailedTask)

	return flowmanager.Results{Completed: completed, Errors: errored}
}

// WaitForCompletion polls until every task submitted via SubmitTask or
// SubmitShort has resolved, or timeout elapses first. Same contract as
// flowmanager.FlowManager.WaitForCompletion.
func (fm *FlowManagerMP) WaitForCompletion(ctx context.Context, timeout, checkInterval, logInterval time.Duration, raiseOnError bool) error {
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
				return &flowmanager.CompletionError{Errors: errored}
			}
			return nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return &flowmanager.WaitTimeoutError{Submitted: submitted, Completed: completed, Errors: errored}
		}

		if observer != nil && logInterval > 0 && time.Since(lastLog) >= logInterval {
			observer.Info(ctx, "waiting for tasks to complete",
				telemetry.Int64("dagflow.flowmanagermp.submitted", submitted),
				telemetry.Int64("dagflow.flowmanagermp.completed", completed),
				telemetry.Int64("dagflow.flowmanagermp.errors", errored),
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

// Shutdown signals every worker goroutine to exit by sending one nil
// sentinel per worker, and waits up to the context's deadline for them all
// to drain. It is a no-op under WithSerialProcessing, which never starts a
// pool. Shutdown does not wait for in-flight SubmitTask dispatches that are
// not routed through the pool (e.g. under WithSerialProcessing); callers
// that need every async task to finish should call WaitForCompletion first.
func (fm *FlowManagerMP) Shutdown(ctx context.Context) error {
	if fm.serial || !fm.started {
		return nil
	}

	for i := 0; i < fm.workers; i++ {
		select {
		case fm.ingress <- nil:
		case <-ctx.Done():
			return &ShutdownTimeoutError{Pending: fm.workers}
		}
	}

	waited := make(chan struct{})
	go func() {
		fm.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return &ShutdownTimeoutError{Pending: fm.workers}
	}
}

// Counts reports how many tasks have been submitted, completed
// successfully, failed, and are currently in post-processing since
// construction.
func (fm *FlowManagerMP) Counts() (submitted, completed, errored, postProcessing int64) {
	return fm.submittedCount.Load(), fm.completedCount.Load(), fm.errorCount.Load(), fm.postProcessingCount.Load()
}
