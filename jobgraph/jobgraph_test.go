package jobgraph

import (
	"context"
	"strings"
	"testing"

	"github.com/flowkit/dagflow/dag"
	"github.com/flowkit/dagflow/job"
)

func echoSpec(shortName string) *job.Spec {
	return &job.Spec{
		ShortName: shortName,
		Executor: job.ExecutorFunc(func(_ context.Context, inputs map[string]any) (any, error) {
			return shortName, nil
		}),
	}
}

func TestBuild_LinearChain(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b")
	spec.AddNode("b", "c")
	spec.AddNode("c")

	specs := map[string]*job.Spec{
		"a": echoSpec("a"),
		"b": echoSpec("b"),
		"c": echoSpec("c"),
	}

	graph, err := Build(spec, specs, "g", "default")
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}

	if graph.Head == nil {
		t.Fatal("Build() produced a graph with a nil Head")
	}
	if !strings.HasSuffix(graph.Head.Name, "$$a$$") {
		t.Errorf("Head.Name = %q, want it to end with $$a$$", graph.Head.Name)
	}
	if len(graph.Head.ExpectedInputs) != 0 {
		t.Errorf("Head.ExpectedInputs = %v, want empty", graph.Head.ExpectedInputs)
	}
	if len(graph.Jobs()) != 3 {
		t.Errorf("Jobs() returned %d jobs, want 3", len(graph.Jobs()))
	}

	b, ok := graph.Lookup(job.CreateFQName("g", "default", "b"))
	if !ok {
		t.Fatal("Lookup() could not find job b")
	}
	if len(b.ExpectedInputs) != 1 {
		t.Errorf("b.ExpectedInputs = %v, want exactly 1 entry", b.ExpectedInputs)
	}
	if _, ok := b.ExpectedInputs[job.CreateFQName("g", "default", "a")]; !ok {
		t.Errorf("b.ExpectedInputs = %v, want it to contain a's FQ name", b.ExpectedInputs)
	}
	if len(b.NextJobs) != 1 || !strings.HasSuffix(b.NextJobs[0].Name, "$$c$$") {
		t.Errorf("b.NextJobs = %v, want a single entry ending in $$c$$", b.NextJobs)
	}
}

func TestBuild_MultiHead_SynthesizesPassthrough(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "c")
	spec.AddNode("b", "c")
	spec.AddNode("c")

	specs := map[string]*job.Spec{
		"a": echoSpec("a"),
		"b": echoSpec("b"),
		"c": echoSpec("c"),
	}

	graph, err := Build(spec, specs, "g", "default")
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}

	if len(graph.Head.ExpectedInputs) != 0 {
		t.Errorf("synthesized head.ExpectedInputs = %v, want empty", graph.Head.ExpectedInputs)
	}
	if len(graph.Head.NextJobs) != 2 {
		t.Fatalf("synthesized head.NextJobs has %d entries, want 2", len(graph.Head.NextJobs))
	}

	result, err := graph.Head.Run(context.Background(), map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("synthesized head.Run() returned error: %v", err)
	}
	inputs, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("synthesized head.Run() = %T, want map[string]any", result)
	}
	if inputs["x"] != 1 {
		t.Errorf("synthesized head passthrough result = %v, want the original inputs echoed back", inputs)
	}

	// the synthesized head must also be reachable through the graph's own
	// lookup table, not just via graph.Head.
	if _, ok := graph.Lookup(graph.Head.Name); !ok {
		t.Error("Lookup() cannot find the synthesized head by its own name")
	}
}

func TestBuild_MissingJobSpec_Errors(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "b")
	spec.AddNode("b")

	specs := map[string]*job.Spec{
		"a": echoSpec("a"),
		// "b" intentionally missing
	}

	if _, err := Build(spec, specs, "g", "default"); err == nil {
		t.Fatal("Build() with a missing job.Spec = nil error, want an error")
	}
}

func TestBuild_InvalidSpec_Errors(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a", "ghost")

	specs := map[string]*job.Spec{
		"a": echoSpec("a"),
	}

	if _, err := Build(spec, specs, "g", "default"); err == nil {
		t.Fatal("Build() with a dangling reference = nil error, want an error")
	}
}

func TestGraph_Lookup_Miss(t *testing.T) {
	spec := dag.New()
	spec.AddNode("a")
	specs := map[string]*job.Spec{"a": echoSpec("a")}

	graph, err := Build(spec, specs, "g", "default")
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}

	if _, ok := graph.Lookup("does-not-exist"); ok {
		t.Error("Lookup() found a job for a name that was never registered")
	}
}
