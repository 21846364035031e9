package job

import (
	"context"
	"errors"
	"testing"
)

func TestExecutorFunc_Run(t *testing.T) {
	var fn ExecutorFunc = func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs["x"], nil
	}

	result, err := fn.Run(context.Background(), map[string]any{"x": 42})
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if result != float64(42) && result != 42 {
		t.Errorf("Run() = %v, want 42", result)
	}
}

type typedParams struct {
	A int    `json:"a"`
	B string `json:"b"`
}

type typedResult struct {
	Sum string `json:"sum"`
}

func TestTyped_DecodesAndEncodes(t *testing.T) {
	exec := Typed(func(_ context.Context, p typedParams) (typedResult, error) {
		return typedResult{Sum: p.B}, nil
	})

	result, err := exec.Run(context.Background(), map[string]any{"a": 1, "b": "hello"})
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	tr, ok := result.(typedResult)
	if !ok {
		t.Fatalf("Run() returned %T, want typedResult", result)
	}
	if tr.Sum != "hello" {
		t.Errorf("Run() = %+v, want Sum=hello", tr)
	}
}

func TestTyped_PropagatesFunctionError(t *testing.T) {
	wantErr := errors.New("boom")
	exec := Typed(func(_ context.Context, _ typedParams) (typedResult, error) {
		return typedResult{}, wantErr
	})

	_, err := exec.Run(context.Background(), map[string]any{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestJob_IsHead(t *testing.T) {
	head := &Job{Name: "g$$v$$a$$", ExpectedInputs: map[string]struct{}{}}
	if !head.IsHead() {
		t.Error("IsHead() = false, want true for a job with no expected inputs")
	}

	nonHead := &Job{Name: "g$$v$$b$$", ExpectedInputs: map[string]struct{}{"g$$v$$a$$": {}}}
	if nonHead.IsHead() {
		t.Error("IsHead() = true, want false for a job with expected inputs")
	}
}

func TestJob_IsTail(t *testing.T) {
	tail := &Job{Name: "g$$v$$z$$"}
	if !tail.IsTail() {
		t.Error("IsTail() = false, want true for a job with no successors")
	}

	nonTail := &Job{Name: "g$$v$$a$$", NextJobs: []*Job{{Name: "g$$v$$b$$"}}}
	if nonTail.IsTail() {
		t.Error("IsTail() = true, want false for a job with successors")
	}
}

func TestJob_Run_DelegatesToExecutor(t *testing.T) {
	called := false
	j := &Job{
		Spec: &Spec{
			Executor: ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
				called = true
				return "result", nil
			}),
		},
	}

	result, err := j.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if !called {
		t.Error("Run() did not invoke the underlying executor")
	}
	if result != "result" {
		t.Errorf("Run() = %v, want \"result\"", result)
	}
}
