package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowkit/dagflow/dag"
	"github.com/flowkit/dagflow/job"
	"github.com/flowkit/dagflow/jobgraph"
	"github.com/flowkit/dagflow/taskctx"
)

func passthroughSpec(shortName string, tag string) *job.Spec {
	return &job.Spec{
		ShortName: shortName,
		Executor: job.ExecutorFunc(func(_ context.Context, inputs map[string]any) (any, error) {
			return tag, nil
		}),
	}
}

func buildGraph(t *testing.T, spec *dag.Spec, specs map[string]*job.Spec) *jobgraph.Graph {
	t.Helper()
	graph, err := jobgraph.Build(spec, specs, "g", "default")
	if err != nil {
		t.Fatalf("jobgraph.Build() returned error: %v", err)
	}
	return graph
}

func TestExecute_LinearChain(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b")
	spec.AddNode("b", "c")
	spec.AddNode("c")

	specs := map[string]*job.Spec{
		"a": passthroughSpec("a", "a-result"),
		"b": passthroughSpec("b", "b-result"),
		"c": passthroughSpec("c", "c-result"),
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{"start": true})

	envelope, err := Execute(context.Background(), graph, task)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if envelope.Result != "c-result" {
		t.Errorf("envelope.Result = %v, want c-result", envelope.Result)
	}
	if envelope.TaskID != task.ID {
		t.Errorf("envelope.TaskID = %q, want %q", envelope.TaskID, task.ID)
	}
	if envelope.ReturnJob != "g$$default$$c$$" {
		t.Errorf("envelope.ReturnJob = %q, want %q", envelope.ReturnJob, "g$$default$$c$$")
	}
	if len(envelope.TaskPassthrough) != 1 || envelope.TaskPassthrough["start"] != true {
		t.Errorf("envelope.TaskPassthrough = %v, want the submitted task inputs", envelope.TaskPassthrough)
	}
}

func TestExecute_DiamondFanIn(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b", "c")
	spec.AddNode("b", "d")
	spec.AddNode("c", "d")
	spec.AddNode("d")

	var dInputs atomic.Value
	specs := map[string]*job.Spec{
		"a": passthroughSpec("a", "a-result"),
		"b": passthroughSpec("b", "b-result"),
		"c": passthroughSpec("c", "c-result"),
		"d": {
			ShortName: "d",
			Executor: job.ExecutorFunc(func(_ context.Context, inputs map[string]any) (any, error) {
				dInputs.Store(inputs)
				return "d-result", nil
			}),
		},
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	envelope, err := Execute(context.Background(), graph, task)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if envelope.Result != "d-result" {
		t.Errorf("envelope.Result = %v, want d-result", envelope.Result)
	}

	inputs, ok := dInputs.Load().(map[string]any)
	if !ok {
		t.Fatal("d never observed its join inputs")
	}
	if len(inputs) != 2 {
		t.Fatalf("d received %d join inputs, want exactly 2 (from b and c)", len(inputs))
	}
	var gotB, gotC bool
	for k, v := range inputs {
		switch v {
		case "b-result":
			gotB = true
			_ = k
		case "c-result":
			gotC = true
		}
	}
	if !gotB || !gotC {
		t.Errorf("d's join inputs = %v, want both b-result and c-result", inputs)
	}
}

func TestExecute_SavedResults(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b", "c")
	spec.AddNode("b", "d")
	spec.AddNode("c", "d")
	spec.AddNode("d")

	bSpec := passthroughSpec("b", "b-result")
	bSpec.SaveResult = true
	cSpec := passthroughSpec("c", "c-result")
	cSpec.SaveResult = true

	specs := map[string]*job.Spec{
		"a": passthroughSpec("a", "a-result"),
		"b": bSpec,
		"c": cSpec,
		"d": passthroughSpec("d", "d-result"),
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	envelope, err := Execute(context.Background(), graph, task)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if len(envelope.SavedResults) != 2 {
		t.Fatalf("envelope.SavedResults has %d entries, want 2", len(envelope.SavedResults))
	}

	// SavedResults is keyed by short name, not the job's fully-qualified name.
	if got := envelope.SavedResults["b"]; got != "b-result" {
		t.Errorf("envelope.SavedResults[%q] = %v, want b-result", "b", got)
	}
	if got := envelope.SavedResults["c"]; got != "c-result" {
		t.Errorf("envelope.SavedResults[%q] = %v, want c-result", "c", got)
	}
	if _, ok := envelope.SavedResults["g$$default$$b$$"]; ok {
		t.Error("envelope.SavedResults is keyed by fully-qualified name, want short name only")
	}
}

func TestExecute_JobFailurePropagates(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b")
	spec.AddNode("b")

	wantErr := errors.New("job b exploded")
	specs := map[string]*job.Spec{
		"a": passthroughSpec("a", "a-result"),
		"b": {
			ShortName: "b",
			Executor: job.ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
				return nil, wantErr
			}),
		},
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	_, err := Execute(context.Background(), graph, task)
	if err == nil {
		t.Fatal("Execute() = nil error, want the job's failure to propagate")
	}
	var jobErr *JobRunError
	if !errors.As(err, &jobErr) {
		t.Fatalf("Execute() error = %v, want a *JobRunError", err)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute() error does not unwrap to the original job error: %v", err)
	}
}

func TestExecute_JoinTimeout(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "fast", "slow")
	spec.AddNode("fast", "join")
	spec.AddNode("slow", "join")
	spec.AddNode("join")

	slowStarted := make(chan struct{})
	specs := map[string]*job.Spec{
		"a":    passthroughSpec("a", "a-result"),
		"fast": passthroughSpec("fast", "fast-result"),
		"slow": {
			ShortName: "slow",
			Executor: job.ExecutorFunc(func(ctx context.Context, _ map[string]any) (any, error) {
				close(slowStarted)
				select {
				case <-time.After(200 * time.Millisecond):
					return "slow-result", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}),
		},
		"join": func() *job.Spec {
			s := passthroughSpec("join", "join-result")
			s.Timeout = 20 * time.Millisecond
			return s
		}(),
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	_, err := Execute(context.Background(), graph, task)
	if err == nil {
		t.Fatal("Execute() = nil error, want a join timeout error")
	}
	var timeoutErr *JoinTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Execute() error = %v, want a *JoinTimeoutError", err)
	}
	<-slowStarted
}

func TestExecute_ContextCancellation(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b")
	spec.AddNode("b")

	specs := map[string]*job.Spec{
		"a": {
			ShortName: "a",
			Executor: job.ExecutorFunc(func(ctx context.Context, _ map[string]any) (any, error) {
				select {
				case <-time.After(time.Second):
					return "a-result", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}),
		},
		"b": passthroughSpec("b", "b-result"),
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Execute(ctx, graph, task)
	if err == nil {
		t.Fatal("Execute() = nil error, want the canceled context to propagate as an error")
	}
}

func TestExecute_MultiHeadSynthesis(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "tail")
	spec.AddNode("b", "tail")
	spec.AddNode("tail")

	var aRan, bRan atomic.Bool
	var mu sync.Mutex
	var tailInputCount int

	specs := map[string]*job.Spec{
		"a": {
			ShortName: "a",
			Executor: job.ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
				aRan.Store(true)
				return "a-result", nil
			}),
		},
		"b": {
			ShortName: "b",
			Executor: job.ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
				bRan.Store(true)
				return "b-result", nil
			}),
		},
		"tail": {
			ShortName: "tail",
			Executor: job.ExecutorFunc(func(_ context.Context, inputs map[string]any) (any, error) {
				mu.Lock()
				tailInputCount = len(inputs)
				mu.Unlock()
				return "tail-result", nil
			}),
		},
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{"seed": 1})

	envelope, err := Execute(context.Background(), graph, task)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if envelope.Result != "tail-result" {
		t.Errorf("envelope.Result = %v, want tail-result", envelope.Result)
	}
	if envelope.ReturnJob != "g$$default$$tail$$" {
		t.Errorf("envelope.ReturnJob = %q, want %q", envelope.ReturnJob, "g$$default$$tail$$")
	}
	if !aRan.Load() || !bRan.Load() {
		t.Error("both original heads must run under a synthesized passthrough entry point")
	}
	mu.Lock()
	defer mu.Unlock()
	if tailInputCount != 2 {
		t.Errorf("tail observed %d join inputs, want 2 (one from each original head)", tailInputCount)
	}
}

func TestExecute_Concurrency_FanOutScalesIndependently(t *testing.T) {
	const branches = 20
	spec := dag.New()
	next := make([]string, branches)
	for i := 0; i < branches; i++ {
		next[i] = branchName(i)
	}
	spec.AddNode("a", next...)
	for i := 0; i < branches; i++ {
		spec.AddNode(branchName(i), "join")
	}
	spec.AddNode("join")

	specs := map[string]*job.Spec{
		"a":    passthroughSpec("a", "a-result"),
		"join": passthroughSpec("join", "join-result"),
	}

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	for i := 0; i < branches; i++ {
		specs[branchName(i)] = &job.Spec{
			ShortName: branchName(i),
			Executor: job.ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
				n := concurrent.Add(1)
				defer concurrent.Add(-1)
				for {
					max := maxConcurrent.Load()
					if n <= max || maxConcurrent.CompareAndSwap(max, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return branchName(i) + "-result", nil
			}),
		}
	}

	graph := buildGraph(t, spec, specs)
	task := taskctx.NewTask("g", "default", map[string]any{})

	envelope, err := Execute(context.Background(), graph, task)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if envelope.Result != "join-result" {
		t.Errorf("envelope.Result = %v, want join-result", envelope.Result)
	}
	if maxConcurrent.Load() < 2 {
		t.Errorf("max observed concurrency = %d, want independent branches to overlap", maxConcurrent.Load())
	}
}

func branchName(i int) string {
	return "branch" + string(rune('A'+i))
}
