// Package telemetry defines the core interfaces used for distributed
// tracing, metrics collection, and structured logging throughout dagflow.
//
// The central entry point is [Provider], which composes [Tracer], [Metrics],
// and [Logger] into a single injectable dependency. Callers propagate an
// active [Provider] and [Span] through a [context.Context] using
// [ContextWithObserver] and [ContextWithSpan]; they can be retrieved with
// [ObserverFromContext] and [SpanFromContext].
//
// semconv.go contains attribute-key, span-name, and metric-name constants
// for recording observations about graphs, jobs, and tasks, keeping them
// consistent across providers.
package telemetry
