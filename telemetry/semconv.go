package telemetry

// Span names for graph and task execution.
const (
	SpanGraphExecute = "dagflow.graph.execute"
	SpanJobActivate  = "dagflow.job.activate"
	SpanJoinWait     = "dagflow.job.join_wait"
)

// Attribute keys for spans, log lines, and metrics.
const (
	AttrGraphName    = "dagflow.graph.name"
	AttrGraphVariant = "dagflow.graph.variant"
	AttrTaskID       = "dagflow.task.id"
	AttrJobName      = "dagflow.job.name"
	AttrJobShortName = "dagflow.job.short_name"
	AttrJobSaved     = "dagflow.job.saved_result"

	AttrStatus            = "dagflow.status"
	AttrStatusDescription = "dagflow.status_description"

	AttrExpectedInputs  = "dagflow.join.expected_inputs"
	AttrDeliveredInputs = "dagflow.join.delivered_inputs"
)

// Metric names for task and job observations.
const (
	MetricTasksSubmitted = "dagflow.tasks.submitted"
	MetricTasksCompleted = "dagflow.tasks.completed"
	MetricTasksFailed    = "dagflow.tasks.failed"
	MetricJobDuration    = "dagflow.job.duration_ms"
	MetricJoinWait       = "dagflow.join.wait_ms"
)
