// Package executor evaluates a jobgraph.Graph against a single task: it
// activates the head, propagates each job's result to its successors'
// join gates, and assembles the tail's result (plus every saved
// intermediate) into a taskctx.Envelope.
//
// A job activates at most once per task no matter how many predecessors
// race to complete its join gate — the once-flag is an atomic
// compare-and-swap on taskctx.JoinState, so exactly one goroutine wins the
// right to run it. Each job starts as soon as its join gate is satisfied,
// so independent jobs run concurrently; the first error encountered cancels
// every job still in flight.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowkit/dagflow/core/stats"
	"github.com/flowkit/dagflow/job"
	"github.com/flowkit/dagflow/jobgraph"
	"github.com/flowkit/dagflow/taskctx"
)

// Execute runs task through graph to completion and returns the resulting
// Envelope. It returns an error if any job fails, any job's join gate times
// out, or ctx is canceled before the task completes.
func Execute(ctx context.Context, graph *jobgraph.Graph, task taskctx.Task) (taskctx.Envelope, error) {
	expected := make(map[string]int, len(graph.Jobs()))
	for _, j := range graph.Jobs() {
		expected[j.Name] = len(j.ExpectedInputs)
	}

	tc := taskctx.NewTaskContext(task.ID, expected)
	ctx = taskctx.WithTaskContext(ctx, tc)

	es := stats.StatsFromContext(&ctx)
	es.StartExecution()
	defer es.EndExecution()

	headJoin := tc.Join(graph.Head.Name)
	if headJoin == nil {
		return taskctx.Envelope{}, fmt.Errorf("executor: no join state registered for head job %q", graph.Head.Name)
	}
	headJoin.CloseReady()
	headJoin.TryStart()

	run := &run{
		tc:    tc,
		stats: es,
		tail:  newTailCollector(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return run.activate(gctx, g, graph.Head, task.Inputs)
	})

	if err := g.Wait(); err != nil {
		return taskctx.Envelope{}, err
	}

	tailName, result, ok := run.tail.result()
	if !ok {
		return taskctx.Envelope{}, fmt.Errorf("executor: task %s completed with no tail result recorded", task.ID)
	}

	return taskctx.Envelope{
		TaskID:          task.ID,
		Result:          result,
		ReturnJob:       tailName,
		TaskPassthrough: task.Inputs,
		SavedResults:    tc.SavedResults(),
	}, nil
}

// run carries the state shared by every activate call within a single
// Execute invocation.
type run struct {
	tc    *taskctx.TaskContext
	stats *stats.ExecutionStats
	tail  *tailCollector
}

// activate runs j with the given inputs, saves its result if configured to,
// records it if j is a tail, and fans its result out to every successor's
// join gate — spawning exactly one goroutine per successor that becomes
// ready as a result of this delivery.
func (r *run) activate(ctx context.Context, g *errgroup.Group, j *job.Job, inputs map[string]any) error {
	start := time.Now()
	result, err := j.Run(ctx, inputs)
	r.stats.RecordJob(j.Name, time.Since(start), err)
	if err != nil {
		return &JobRunError{JobName: j.Name, Err: err}
	}

	if j.Spec.SaveResult {
		_, _, shortName, err := job.ParseFQName(j.Name)
		if err != nil {
			return fmt.Errorf("executor: saving result: %w", err)
		}
		r.tc.SaveResult(shortName, result)
		r.stats.RecordSave()
	}

	if j.IsTail() {
		r.tail.set(j.Name, result)
		return nil
	}

	for _, next := range j.NextJobs {
		if err := r.deliver(ctx, g, j, next, result); err != nil {
			return err
		}
	}
	return nil
}

// deliver records from's result on next's join gate, and, depending on
// what the delivery triggers, spawns either the activation goroutine (the
// gate is now satisfied) or a join-timeout watcher (this is the gate's
// first delivery and next has a configured timeout).
func (r *run) deliver(ctx context.Context, g *errgroup.Group, from, next *job.Job, result any) error {
	join := r.tc.Join(next.Name)
	if join == nil {
		return fmt.Errorf("executor: no join state registered for job %q", next.Name)
	}

	ready, first := join.Deliver(from.Name, result)

	if first && next.Spec.Timeout > 0 {
		watched := next
		watchedJoin := join
		g.Go(func() error {
			select {
			case <-watchedJoin.Ready():
				return nil
			case <-time.After(watched.Spec.Timeout):
				if watchedJoin.TryStart() {
					r.stats.RecordJoinTimeout()
					return &JoinTimeoutError{JobName: watched.Name}
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	if !ready {
		return nil
	}

	join.CloseReady()
	if !join.TryStart() {
		// A join-timeout watcher already claimed this job; the task has
		// already failed on that path.
		return nil
	}

	nextJob := next
	nextInputs := join.Snapshot()
	g.Go(func() error {
		return r.activate(ctx, g, nextJob, nextInputs)
	})
	return nil
}

// tailCollector records the result produced by the graph's tail job. A
// validated dag.Spec guarantees exactly one tail, so set is expected to be
// called at most once per task; the mutex exists for visibility across
// goroutines, not to arbitrate contention.
type tailCollector struct {
	mu     sync.Mutex
	name   string
	value  any
	filled bool
}

func newTailCollector() *tailCollector {
	return &tailCollector{}
}

func (t *tailCollector) set(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
	t.value = value
	t.filled = true
}

func (t *tailCollector) result() (name string, value any, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name, t.value, t.filled
}
