// Package stats provides execution lifecycle tracking for a single task's
// pass through a graph. It collects per-job durations, success/failure
// counts, and start/end timestamps for the task as a whole.
// The central type is [ExecutionStats]; use [StatsFromContext] to obtain or
// create an instance bound to a [context.Context].
package stats
