package stats

import (
	"context"
	"sync"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// statsContextKey is the key used to store ExecutionStats in context.
const statsContextKey contextKey = "execution_stats"

// JobStat records a single job's execution outcome within a task.
type JobStat struct {
	JobName  string        `json:"job_name"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Failed   bool          `json:"failed"`
}

// ExecutionStats aggregates per-job durations and outcomes for a single
// task's pass through a graph. It is the primary carrier of execution
// observability data produced by the executor and is stored in a
// [context.Context] via [ExecutionStats.ToContext] so that every job
// invocation within a task contributes to the same shared instance.
// Use [StatsFromContext] to retrieve or lazily create an ExecutionStats
// from a context.
type ExecutionStats struct {
	mu sync.Mutex

	Jobs         []JobStat `json:"jobs"`
	JobsFailed   int       `json:"jobs_failed"`
	JobsSaved    int       `json:"jobs_saved"`
	JoinTimeouts int       `json:"join_timeouts"`

	// ExecutionStartTime marks when the task's execution started.
	ExecutionStartTime time.Time `json:"execution_start_time,omitempty"`
	// ExecutionEndTime marks when the task's execution ended.
	ExecutionEndTime time.Time `json:"execution_end_time,omitempty"`
}

// StatsFromContext retrieves the ExecutionStats from the context, creating
// one if it does not already exist. The context pointer is updated in-place
// when a new ExecutionStats is created so callers see the enriched context.
func StatsFromContext(ctx *context.Context) *ExecutionStats {
	statsVal := (*ctx).Value(statsContextKey)
	if statsVal == nil {
		es := &ExecutionStats{}
		*ctx = es.ToContext(*ctx)
		return es
	}

	es, ok := statsVal.(*ExecutionStats)
	if !ok {
		return nil
	}
	return es
}

// ToContext stores the ExecutionStats in the given context under a private
// key and returns the enriched context. If ctx is nil, context.Background()
// is used as the base.
func (es *ExecutionStats) ToContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, statsContextKey, es)
}

// StartExecution marks the start of a task's execution.
func (es *ExecutionStats) StartExecution() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.ExecutionStartTime = time.Now()
}

// EndExecution marks the end of a task's execution.
func (es *ExecutionStats) EndExecution() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.ExecutionEndTime = time.Now()
}

// ExecutionDuration returns the total execution duration. Returns 0 if
// execution hasn't started or ended.
func (es *ExecutionStats) ExecutionDuration() time.Duration {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.ExecutionStartTime.IsZero() || es.ExecutionEndTime.IsZero() {
		return 0
	}
	return es.ExecutionEndTime.Sub(es.ExecutionStartTime)
}

// RecordJob appends a job's execution outcome to the stats, safe for
// concurrent use by every job goroutine within the same task.
func (es *ExecutionStats) RecordJob(jobName string, duration time.Duration, err error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.Jobs = append(es.Jobs, JobStat{
		JobName:  jobName,
		Duration: duration,
		Err:      err,
		Failed:   err != nil,
	})
	if err != nil {
		es.JobsFailed++
	}
}

// RecordSave increments the count of jobs whose result was saved into the
// task's saved-results table.
func (es *ExecutionStats) RecordSave() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.JobsSaved++
}

// RecordJoinTimeout increments the count of join gates that timed out
// before every expected predecessor delivered.
func (es *ExecutionStats) RecordJoinTimeout() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.JoinTimeouts++
}

// JobCount returns the number of jobs recorded so far.
func (es *ExecutionStats) JobCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return len(es.Jobs)
}
