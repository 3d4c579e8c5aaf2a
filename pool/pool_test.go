package pool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/NarayanSchuetz/slurmpool/task"
)

func init() {
	task.Register("pool-noop", task.Adapt(func(_ context.Context, _ string) error { return nil }))
}

func newTestPool(t *testing.T, cfg JobConfig, runner CommandRunner) *Pool {
	t.Helper()
	p, err := New(cfg, WithRunner(runner), WithExecutable("/opt/bin/resampler"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func noopCalls(n int) []task.Call {
	calls := make([]task.Call, n)
	for i := range calls {
		calls[i] = task.Call{Func: "pool-noop", Arg: "item"}
	}
	return calls
}

func TestCreateAndSubmitJobEndToEnd(t *testing.T) {
	runner := &fakeRunner{stdout: "Submitted batch job 4242\n"}
	cfg := validConfig(t)
	p := newTestPool(t, cfg, runner)

	handle, err := p.CreateAndSubmitJob(context.Background(), noopCalls(7))
	if err != nil {
		t.Fatal(err)
	}
	if handle.JobID != 4242 {
		t.Errorf("job id = %d, want 4242", handle.JobID)
	}
	if handle.Slots != 3 {
		t.Errorf("used slots = %d, want 3", handle.Slots)
	}
	if !strings.HasPrefix(filepath.Base(handle.RunDir), "resample_") {
		t.Errorf("run directory %q not derived from job name", handle.RunDir)
	}

	manifest, err := task.LoadManifest(filepath.Join(handle.RunDir, task.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	want := task.Partition{{0, 1, 2}, {3, 4}, {5, 6}}
	if !reflect.DeepEqual(manifest.Slots, want) {
		t.Errorf("manifest slots = %v, want %v", manifest.Slots, want)
	}

	for i := 0; i < 7; i++ {
		if _, err := os.Stat(task.UnitPath(handle.RunDir, i)); err != nil {
			t.Errorf("missing serialized unit %d: %v", i, err)
		}
	}
	script, err := os.ReadFile(filepath.Join(handle.RunDir, DefaultScriptName))
	if err != nil {
		t.Fatalf("missing worker script: %v", err)
	}
	if !strings.Contains(string(script), "/opt/bin/resampler") {
		t.Error("worker script does not re-execute the submitting binary")
	}

	artifactPath := filepath.Join(handle.RunDir, "resample.sbatch")
	artifact, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatalf("missing submission artifact: %v", err)
	}
	if !strings.Contains(string(artifact), "#SBATCH --array=0-2") {
		t.Errorf("artifact array range wrong:\n%s", artifact)
	}
	if len(runner.commands) != 1 || runner.commands[0][1] != artifactPath {
		t.Errorf("sbatch invocations = %v", runner.commands)
	}
}

func TestCreateJobShrinksArrayToTaskCount(t *testing.T) {
	cfg := validConfig(t)
	cfg.NumTasks = 5
	p := newTestPool(t, cfg, &fakeRunner{})

	job, err := p.CreateJob(context.Background(), noopCalls(2))
	if err != nil {
		t.Fatal(err)
	}
	if job.Slots != 2 {
		t.Fatalf("used slots = %d, want 2", job.Slots)
	}
	artifact, err := os.ReadFile(job.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(artifact), "#SBATCH --array=0-1") {
		t.Fatalf("artifact schedules more than the used slots:\n%s", artifact)
	}
}

func TestCreateJobWritesNothingBeforeSubmit(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestPool(t, validConfig(t), runner)

	if _, err := p.CreateJob(context.Background(), noopCalls(4)); err != nil {
		t.Fatal(err)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("CreateJob invoked the scheduler: %v", runner.commands)
	}
}

func TestCreateJobRejectsEmptyTaskSet(t *testing.T) {
	p := newTestPool(t, validConfig(t), &fakeRunner{})
	_, err := p.CreateJob(context.Background(), nil)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestCreateJobUnregisteredFunction(t *testing.T) {
	cfg := validConfig(t)
	runner := &fakeRunner{}
	p := newTestPool(t, cfg, runner)

	calls := noopCalls(3)
	calls[1].Func = "pool-unknown"
	_, err := p.CreateJob(context.Background(), calls)
	var serr *SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SerializeError", err)
	}
	if serr.Index != 1 {
		t.Errorf("failing task index = %d, want 1", serr.Index)
	}
	// Fail-fast: no run directory, no scheduler contact.
	entries, _ := os.ReadDir(cfg.LogDir)
	if len(entries) != 0 {
		t.Errorf("artifacts written despite serialization failure: %v", entries)
	}
	if len(runner.commands) != 0 {
		t.Errorf("scheduler invoked despite serialization failure")
	}
}

func TestCreateJobUnencodableArgument(t *testing.T) {
	p := newTestPool(t, validConfig(t), &fakeRunner{})
	calls := []task.Call{{Func: "pool-noop", Arg: make(chan int)}}
	_, err := p.CreateJob(context.Background(), calls)
	var serr *SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SerializeError", err)
	}
}

func TestSubmitFailureKeepsArtifacts(t *testing.T) {
	runner := &fakeRunner{stderr: "sbatch: error: down for maintenance", err: errors.New("exit status 1")}
	p := newTestPool(t, validConfig(t), runner)

	job, err := p.CreateJob(context.Background(), noopCalls(4))
	if err != nil {
		t.Fatal(err)
	}
	_, err = job.Submit(context.Background())
	var serr *SubmitError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SubmitError", err)
	}
	for _, path := range []string{job.ArtifactPath, job.ScriptPath, job.ManifestPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact %s gone after failed submission: %v", path, err)
		}
	}
}

func TestMapSubmitsOneTaskPerArgument(t *testing.T) {
	runner := &fakeRunner{stdout: "Submitted batch job 7\n"}
	cfg := validConfig(t)
	cfg.NumTasks = 2
	p := newTestPool(t, cfg, runner)

	handle, err := p.Map(context.Background(), "pool-noop", "a", "b", "c")
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := task.LoadManifest(filepath.Join(handle.RunDir, task.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if manifest.NumTasks != 3 {
		t.Fatalf("manifest tasks = %d, want 3", manifest.NumTasks)
	}
	if handle.Slots != 2 {
		t.Fatalf("used slots = %d, want 2", handle.Slots)
	}
}

func TestJobContextReachesEveryUnit(t *testing.T) {
	cfg := validConfig(t)
	cfg.Context = map[string]interface{}{"sample_rate": 250}
	p := newTestPool(t, cfg, &fakeRunner{})

	job, err := p.CreateJob(context.Background(), noopCalls(2))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		unit, err := task.LoadUnit(job.RunDir, i)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(unit.Context), "sample_rate") {
			t.Errorf("unit %d carries no job context: %s", i, unit.Context)
		}
	}
}
