package pool

import "fmt"

// ConfigError reports an invalid JobConfig or task set. It is returned
// before anything touches the filesystem or the scheduler.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "slurmpool: invalid configuration: " + e.Reason
}

// SerializeError reports that a task could not be captured for remote
// execution. The whole job is abandoned: nothing has been written and
// nothing is submitted.
type SerializeError struct {
	Index int
	Cause error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("slurmpool: serialize task %d: %v", e.Index, e.Cause)
}

func (e *SerializeError) Unwrap() error { return e.Cause }

// SubmitError reports a failed sbatch invocation or unparsable scheduler
// output. The generated artifacts remain on disk for inspection and
// manual resubmission.
type SubmitError struct {
	Output string
	Cause  error
}

func (e *SubmitError) Error() string {
	msg := "slurmpool: submission failed"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *SubmitError) Unwrap() error { return e.Cause }
