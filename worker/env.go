// Package worker is the slot-side runtime: it recognizes that the
// current process was launched by a generated worker script, loads the
// serialized tasks its array slot owns and executes them in order,
// recording a status marker per task.
package worker

const (
	// WorkerEnv marks a process as an array worker. The generated worker
	// script sets it before re-executing the submitting binary.
	WorkerEnv = "SLURMPOOL_WORKER"

	// ArrayIndexEnv is SLURM's array-index variable, the only per-slot
	// parameter a worker receives from the scheduler.
	ArrayIndexEnv = "SLURM_ARRAY_TASK_ID"
)
