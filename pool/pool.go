package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/NarayanSchuetz/slurmpool/history"
	"github.com/NarayanSchuetz/slurmpool/logger"
	"github.com/NarayanSchuetz/slurmpool/task"
)

// Pool submits batches of registered task calls as SLURM job arrays.
// A Pool is configured once and may create any number of jobs; each
// CreateJob gets its own run directory, so jobs never step on each
// other's artifacts.
type Pool struct {
	cfg    JobConfig
	runner CommandRunner
	exe    string
}

// Option adjusts a Pool at construction time.
type Option func(*Pool)

// WithRunner replaces the scheduler command port, mainly for tests.
func WithRunner(r CommandRunner) Option {
	return func(p *Pool) { p.runner = r }
}

// WithExecutable overrides the binary the worker script re-executes.
// The default is the current executable, which is correct whenever the
// submitter and the registered task functions live in the same program.
func WithExecutable(path string) Option {
	return func(p *Pool) { p.exe = path }
}

// New validates cfg eagerly and returns a frozen Pool. Any problem is a
// ConfigError and nothing has been written yet.
func New(cfg JobConfig, opts ...Option) (*Pool, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool{cfg: cfg, runner: ExecRunner()}
	for _, opt := range opts {
		opt(p)
	}
	if p.exe == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("resolve own executable: %v", err)}
		}
		p.exe = exe
	}
	return p, nil
}

// Config returns a copy of the pool's configuration.
func (p *Pool) Config() JobConfig { return p.cfg }

// Job is a created, not yet necessarily submitted, job array. All its
// artifacts exist on disk and can be inspected before Submit.
type Job struct {
	Name         string
	RunDir       string
	ArtifactPath string
	ScriptPath   string
	ManifestPath string
	Slots        int
	Tasks        int

	pool *Pool
}

// Handle is the read-only evidence of a completed submission.
type Handle struct {
	JobID  int
	Slots  int
	RunDir string
}

// CreateJob partitions calls over the configured number of array slots,
// serializes every task and writes the worker script and submission
// artifact into a fresh run directory. Nothing is submitted; use
// Job.Submit or CreateAndSubmitJob for that.
//
// Every call's function must be registered in this binary and its
// argument must be JSON-encodable; a violation aborts the job before
// anything is written.
func (p *Pool) CreateJob(ctx context.Context, calls []task.Call) (*Job, error) {
	n := len(calls)
	if n == 0 {
		return nil, &ConfigError{Reason: "no tasks supplied"}
	}
	part, err := task.Plan(n, p.cfg.NumTasks)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if len(part) < p.cfg.NumTasks {
		logger.WarningPrintf("job %s: %d tasks fill only %d of %d requested slots, array reduced\n",
			p.cfg.JobName, n, len(part), p.cfg.NumTasks)
	}

	units, err := p.serialize(calls)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(p.cfg.LogDir, fmt.Sprintf("%s_%s", p.cfg.JobName, uuid.New()))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("create run directory: %v", err)}
	}
	if err := task.WriteUnits(runDir, units); err != nil {
		return nil, err
	}
	manifest := task.Manifest{JobName: p.cfg.JobName, NumTasks: n, Slots: part}
	if err := task.WriteManifest(runDir, manifest); err != nil {
		return nil, err
	}

	script, err := renderWorkerScript(p.exe, runDir)
	if err != nil {
		return nil, err
	}
	scriptPath := filepath.Join(runDir, p.cfg.ScriptName)
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return nil, fmt.Errorf("slurmpool: write worker script: %w", err)
	}

	artifact, err := renderArtifact(p.cfg, runDir, len(part))
	if err != nil {
		return nil, err
	}
	artifactPath := filepath.Join(runDir, p.cfg.JobName+".sbatch")
	if err := os.WriteFile(artifactPath, []byte(artifact), 0644); err != nil {
		return nil, fmt.Errorf("slurmpool: write submission artifact: %w", err)
	}

	logger.InfoPrintf("job %s: %d tasks over %d slots staged in %s\n",
		p.cfg.JobName, n, len(part), runDir)
	return &Job{
		Name:         p.cfg.JobName,
		RunDir:       runDir,
		ArtifactPath: artifactPath,
		ScriptPath:   scriptPath,
		ManifestPath: filepath.Join(runDir, task.ManifestName),
		Slots:        len(part),
		Tasks:        n,
		pool:         p,
	}, nil
}

// serialize captures every call into a Unit, failing fast before any
// filesystem write so a partially serialized job can never be submitted.
func (p *Pool) serialize(calls []task.Call) ([]task.Unit, error) {
	var shared json.RawMessage
	if len(p.cfg.Context) > 0 {
		data, err := json.Marshal(p.cfg.Context)
		if err != nil {
			return nil, &SerializeError{Index: -1, Cause: fmt.Errorf("job context: %w", err)}
		}
		shared = data
	}
	units := make([]task.Unit, len(calls))
	for i, call := range calls {
		if _, ok := task.Lookup(call.Func); !ok {
			return nil, &SerializeError{Index: i,
				Cause: fmt.Errorf("function %q is not registered in this binary", call.Func)}
		}
		arg, err := json.Marshal(call.Arg)
		if err != nil {
			return nil, &SerializeError{Index: i, Cause: err}
		}
		units[i] = task.Unit{Index: i, Func: call.Func, Arg: arg, Context: shared}
	}
	return units, nil
}

// Submit hands the job's artifact to sbatch. On failure everything in
// the run directory stays put for manual resubmission.
func (j *Job) Submit(ctx context.Context) (Handle, error) {
	id, err := SubmitArtifact(ctx, j.pool.runner, j.ArtifactPath)
	if err != nil {
		return Handle{}, err
	}
	logger.InfoPrintf("job %s submitted as %d (%d slots)\n", j.Name, id, j.Slots)
	j.pool.record(ctx, id, j)
	return Handle{JobID: id, Slots: j.Slots, RunDir: j.RunDir}, nil
}

// record appends the submission to the history store. History is
// best-effort bookkeeping: a failure is logged, never propagated.
func (p *Pool) record(ctx context.Context, id int, j *Job) {
	if p.cfg.HistoryDB == "" {
		return
	}
	store, err := history.Open(p.cfg.HistoryDB)
	if err != nil {
		logger.WarningPrintf("history: %v\n", err)
		return
	}
	defer store.Close()
	err = store.Append(ctx, history.Record{
		JobID:       id,
		Name:        j.Name,
		Slots:       j.Slots,
		Tasks:       j.Tasks,
		RunDir:      j.RunDir,
		SubmittedAt: time.Now(),
	})
	if err != nil {
		logger.WarningPrintf("history: %v\n", err)
	}
}

// CreateAndSubmitJob creates the job and submits it in one step.
func (p *Pool) CreateAndSubmitJob(ctx context.Context, calls []task.Call) (Handle, error) {
	job, err := p.CreateJob(ctx, calls)
	if err != nil {
		return Handle{}, err
	}
	return job.Submit(ctx)
}

// Map submits one task per argument, all invoking the same registered
// function: the job-array rendition of a worker pool's map.
func (p *Pool) Map(ctx context.Context, fn string, args ...interface{}) (Handle, error) {
	calls := make([]task.Call, len(args))
	for i, arg := range args {
		calls[i] = task.Call{Func: fn, Arg: arg}
	}
	return p.CreateAndSubmitJob(ctx, calls)
}
