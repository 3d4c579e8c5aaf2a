package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	flag "github.com/juju/gnuflag"

	"github.com/NarayanSchuetz/slurmpool/logger"
	"github.com/NarayanSchuetz/slurmpool/task"
)

// MaybeRun turns the current process into an array worker when it was
// launched by a generated worker script, and returns immediately
// otherwise. Call it early in main, after all task.Register calls:
//
//	func main() {
//		task.Register("resample", task.Adapt(resample))
//		worker.MaybeRun()
//		// submitter-side code
//	}
//
// When the worker environment is set the function never returns; it
// exits non-zero if any assigned task failed, after attempting all of
// them.
func MaybeRun() {
	if os.Getenv(WorkerEnv) == "" {
		return
	}
	os.Exit(Run(os.Args[1:]))
}

// Worker CLI options support short and long forms, so register both
// against the same variable.
func setFlagString(flags *flag.FlagSet, short, long, value, usage string) *string {
	flagVar := flags.String(short, value, usage)
	flags.StringVar(flagVar, long, value, usage)
	return flagVar
}

func setFlagInt(flags *flag.FlagSet, short, long string, value int, usage string) *int {
	flagVar := flags.Int(short, value, usage)
	flags.IntVar(flagVar, long, value, usage)
	return flagVar
}

// Run executes one array slot and returns the process exit code. args
// are the flags the worker script passed: the manifest path and,
// optionally, an explicit slot index overriding the scheduler's array
// variable.
func Run(args []string) int {
	flags := flag.NewFlagSet("slurmpool-worker", flag.ContinueOnError)
	manifestPath := setFlagString(flags, "m", "manifest", "", "path to the job manifest")
	slot := setFlagInt(flags, "s", "slot", -1, "array slot index")
	if err := flags.Parse(true, args); err != nil {
		logger.CriticalPrintf("worker: cannot process flags: %v\n", err)
		return 2
	}
	if *manifestPath == "" {
		logger.CriticalPrintf("worker: no manifest given\n")
		return 2
	}
	if *slot < 0 {
		env := os.Getenv(ArrayIndexEnv)
		idx, err := strconv.Atoi(env)
		if err != nil {
			logger.CriticalPrintf("worker: bad %s value %q\n", ArrayIndexEnv, env)
			return 2
		}
		*slot = idx
	}

	manifest, err := task.LoadManifest(*manifestPath)
	if err != nil {
		logger.CriticalPrintf("worker: %v\n", err)
		return 2
	}
	runDir := filepath.Dir(*manifestPath)
	failed, err := RunSlot(context.Background(), runDir, manifest, *slot)
	if err != nil {
		logger.CriticalPrintf("worker: %v\n", err)
		return 2
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// RunSlot executes every task assigned to slot, in the order fixed at
// submission time, and reports how many failed. A failing task is
// recorded in its status marker and does not stop the tasks after it;
// only a slot index the manifest does not know is a hard error.
func RunSlot(ctx context.Context, runDir string, m task.Manifest, slot int) (failed int, err error) {
	if slot < 0 || slot >= len(m.Slots) {
		return 0, fmt.Errorf("slot %d outside manifest range 0-%d", slot, len(m.Slots)-1)
	}
	logger.InfoPrintf("worker: job %s slot %d owns tasks %v\n", m.JobName, slot, m.Slots[slot])
	for _, index := range m.Slots[slot] {
		if rerr := runOne(ctx, runDir, index); rerr != nil {
			failed++
			logger.ErrorPrintf("worker: task %d failed: %v\n", index, rerr)
			if werr := task.WriteErr(runDir, index, rerr); werr != nil {
				return failed, fmt.Errorf("record failure of task %d: %w", index, werr)
			}
			continue
		}
		logger.InfoPrintf("worker: task %d finished\n", index)
		if werr := task.WriteOK(runDir, index); werr != nil {
			return failed, fmt.Errorf("record success of task %d: %w", index, werr)
		}
	}
	return failed, nil
}

// runOne loads and invokes a single task. Deserialization problems,
// unregistered functions and handler panics all come back as the task's
// error so the remaining tasks of the slot still run.
func runOne(ctx context.Context, runDir string, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	unit, err := task.LoadUnit(runDir, index)
	if err != nil {
		return err
	}
	fn, ok := task.Lookup(unit.Func)
	if !ok {
		return fmt.Errorf("function %q is not registered in this binary", unit.Func)
	}
	return fn(ctx, unit.Arg, unit.Context)
}
