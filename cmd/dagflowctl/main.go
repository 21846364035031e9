// Command dagflowctl loads a graph definition from a YAML file, builds and
// validates the resulting job graph, executes a single task against it, and
// prints the resulting envelope as JSON.
//
// Exit codes:
//
//	0   success
//	1   validation failure (a missing/malformed flag, or the graph failed to
//	    load, parse, or compile)
//	2   runtime error (the task's execution failed)
//	124 the task did not complete before -timeout elapsed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flowkit/dagflow/configloader"
	"github.com/flowkit/dagflow/executor"
	"github.com/flowkit/dagflow/job"
	"github.com/flowkit/dagflow/jobgraph"
	"github.com/flowkit/dagflow/taskctx"
	"github.com/flowkit/dagflow/telemetry"
	"github.com/flowkit/dagflow/telemetry/slogprovider"

	_ "github.com/joho/godotenv/autoload"
)

// builtinRegistry covers job types that need no external wiring. Real
// deployments supply their own configloader.Registry with constructors for
// their concrete jobs (LLM calls, retrieval, file I/O, ...); dagflowctl only
// ever sees "passthrough", enough to demonstrate a graph's shape end to end.
func builtinRegistry() configloader.Registry {
	return configloader.Registry{
		"passthrough": func(map[string]any) (job.Executor, error) {
			return job.ExecutorFunc(func(_ context.Context, inputs map[string]any) (any, error) {
				return inputs, nil
			}), nil
		},
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	graphFile := flag.String("graph", "", "path to a YAML graph definition")
	inputFile := flag.String("input", "", "path to a JSON file with the task's inputs (defaults to {})")
	timeout := flag.Duration("timeout", time.Minute, "maximum time to wait for the task to complete")
	logLevel := flag.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR (default: INFO or $DAGFLOW_LOG_LEVEL)")
	flag.Parse()

	if *graphFile == "" {
		fmt.Fprintln(os.Stderr, "dagflowctl: -graph is required")
		flag.Usage()
		return 1
	}

	level := slogprovider.GetLogLevelFromEnv()
	if *logLevel != "" {
		level = slogprovider.ParseLogLevel(*logLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	observer := slogprovider.New(logger)
	ctx := telemetry.ContextWithObserver(context.Background(), observer)

	graph, variant, err := loadGraph(*graphFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dagflowctl: %v\n", err)
		return 1
	}

	inputs, err := loadInputs(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dagflowctl: %v\n", err)
		return 1
	}

	task := taskctx.NewTask(graph.Name, variant, inputs)
	observer.Info(ctx, "submitting task",
		telemetry.String(telemetry.AttrTaskID, task.ID),
		telemetry.String(telemetry.AttrGraphName, graph.Name),
		telemetry.String(telemetry.AttrGraphVariant, variant),
	)

	runCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	type outcome struct {
		envelope taskctx.Envelope
		err      error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		envelope, err := executor.Execute(runCtx, graph, task)
		resultCh <- outcome{envelope: envelope, err: err}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			observer.Error(ctx, "task failed", telemetry.Error(out.err))
			fmt.Fprintf(os.Stderr, "dagflowctl: %v\n", out.err)
			return 2
		}
		rendered, err := json.MarshalIndent(out.envelope, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "dagflowctl: rendering result: %v\n", err)
			return 2
		}
		fmt.Println(string(rendered))
		return 0
	case <-runCtx.Done():
		fmt.Fprintln(os.Stderr, "dagflowctl: timed out waiting for task completion")
		return 124
	}
}

func loadGraph(path string) (*jobgraph.Graph, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading graph file: %w", err)
	}

	doc, err := configloader.LoadYAML(data)
	if err != nil {
		return nil, "", err
	}

	variant := doc.Variant
	if variant == "" {
		variant = "default"
	}

	spec, specs, err := doc.Build(builtinRegistry())
	if err != nil {
		return nil, "", err
	}

	graph, err := jobgraph.Build(spec, specs, doc.Name, variant)
	if err != nil {
		return nil, "", err
	}

	return graph, variant, nil
}

func loadInputs(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}

	inputs := map[string]any{}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parsing input file: %w", err)
	}
	return inputs, nil
}
