// Package utils provides shared low-level helpers used throughout dagflow's
// internals: a generic pointer helper, JSON-to-string debug formatting, and
// a simple elapsed-time timer.
//
// Key entry points: [Ptr] for converting values to pointers, [JSONToString]
// for debug-friendly rendering of arbitrary values, and [Timer] for
// measuring latency.
package utils
