package executor

import "fmt"

// JoinTimeoutError reports that a job's join gate did not receive every
// expected predecessor delivery within its configured timeout.
type JoinTimeoutError struct {
	JobName string
}

func (e *JoinTimeoutError) Error() string {
	return fmt.Sprintf("executor: job %q timed out waiting on its join gate", e.JobName)
}

// JobRunError wraps the error returned by a job's Executor, identifying
// which job failed.
type JobRunError struct {
	JobName string
	Err     error
}

func (e *JobRunError) Error() string {
	return fmt.Sprintf("executor: job %q failed: %v", e.JobName, e.Err)
}

func (e *JobRunError) Unwrap() error {
	return e.Err
}
