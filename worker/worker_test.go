package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/NarayanSchuetz/slurmpool/task"
)

var executed []int

func init() {
	task.Register("worker-record", task.Adapt(func(_ context.Context, index int) error {
		executed = append(executed, index)
		return nil
	}))
	task.Register("worker-fail", task.Adapt(func(_ context.Context, index int) error {
		return fmt.Errorf("task %d exploded", index)
	}))
	task.Register("worker-panic", task.Adapt(func(_ context.Context, _ int) error {
		panic("handler bug")
	}))
}

func stageJob(t *testing.T, units []task.Unit, slots task.Partition) (string, task.Manifest) {
	t.Helper()
	dir := t.TempDir()
	if err := task.WriteUnits(dir, units); err != nil {
		t.Fatal(err)
	}
	m := task.Manifest{JobName: "resample", NumTasks: len(units), Slots: slots}
	if err := task.WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	return dir, m
}

func unit(index int, fn string) task.Unit {
	arg, _ := json.Marshal(index)
	return task.Unit{Index: index, Func: fn, Arg: arg}
}

func TestRunSlotExecutesAssignedTasksInOrder(t *testing.T) {
	executed = nil
	units := []task.Unit{
		unit(0, "worker-record"), unit(1, "worker-record"),
		unit(2, "worker-record"), unit(3, "worker-record"),
	}
	dir, m := stageJob(t, units, task.Partition{{0, 1}, {2, 3}})

	failed, err := RunSlot(context.Background(), dir, m, 1)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	if len(executed) != 2 || executed[0] != 2 || executed[1] != 3 {
		t.Fatalf("slot 1 executed %v, want [2 3]", executed)
	}
	for _, index := range []int{2, 3} {
		if state, _ := task.ReadStatus(dir, index); state != task.Succeeded {
			t.Errorf("task %d state = %v, want ok", index, state)
		}
	}
	// Slot 1 never touches slot 0's tasks.
	if state, _ := task.ReadStatus(dir, 0); state != task.Pending {
		t.Errorf("task 0 state = %v, want pending", state)
	}
}

func TestRunSlotIsolatesFailures(t *testing.T) {
	// Slot 1 owns {3, 4, 5}; task 3 fails, 4 and 5 must still run.
	executed = nil
	units := []task.Unit{
		unit(0, "worker-record"), unit(1, "worker-record"), unit(2, "worker-record"),
		unit(3, "worker-fail"), unit(4, "worker-record"), unit(5, "worker-record"),
	}
	dir, m := stageJob(t, units, task.Partition{{0, 1, 2}, {3, 4, 5}})

	failed, err := RunSlot(context.Background(), dir, m, 1)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	state, detail := task.ReadStatus(dir, 3)
	if state != task.Failed {
		t.Fatalf("task 3 state = %v, want failed", state)
	}
	if detail != "task 3 exploded" {
		t.Fatalf("task 3 detail = %q", detail)
	}
	for _, index := range []int{4, 5} {
		if state, _ := task.ReadStatus(dir, index); state != task.Succeeded {
			t.Errorf("task %d state = %v, want ok", index, state)
		}
	}
	if len(executed) != 2 || executed[0] != 4 || executed[1] != 5 {
		t.Fatalf("executed %v after failure, want [4 5]", executed)
	}
}

func TestRunSlotRecordsDeserializationFailure(t *testing.T) {
	executed = nil
	units := []task.Unit{unit(0, "worker-record"), unit(1, "worker-record")}
	dir, m := stageJob(t, units, task.Partition{{0, 1}})
	if err := os.WriteFile(task.UnitPath(dir, 0), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	failed, err := RunSlot(context.Background(), dir, m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if state, _ := task.ReadStatus(dir, 0); state != task.Failed {
		t.Fatal("corrupt unit not recorded as task failure")
	}
	if state, _ := task.ReadStatus(dir, 1); state != task.Succeeded {
		t.Fatal("sibling task did not run after deserialization failure")
	}
}

func TestRunSlotRecordsUnregisteredFunction(t *testing.T) {
	units := []task.Unit{unit(0, "worker-missing")}
	dir, m := stageJob(t, units, task.Partition{{0}})

	failed, err := RunSlot(context.Background(), dir, m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if state, detail := task.ReadStatus(dir, 0); state != task.Failed || detail == "" {
		t.Fatalf("state = %v detail = %q", state, detail)
	}
}

func TestRunSlotContainsHandlerPanic(t *testing.T) {
	units := []task.Unit{unit(0, "worker-panic"), unit(1, "worker-record")}
	dir, m := stageJob(t, units, task.Partition{{0, 1}})

	failed, err := RunSlot(context.Background(), dir, m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if state, _ := task.ReadStatus(dir, 1); state != task.Succeeded {
		t.Fatal("panic in task 0 stopped task 1")
	}
}

func TestRunSlotRejectsUnknownSlot(t *testing.T) {
	units := []task.Unit{unit(0, "worker-record")}
	dir, m := stageJob(t, units, task.Partition{{0}})

	if _, err := RunSlot(context.Background(), dir, m, 3); err == nil {
		t.Fatal("out-of-range slot accepted")
	}
	if _, err := RunSlot(context.Background(), dir, m, -1); err == nil {
		t.Fatal("negative slot accepted")
	}
}

func TestRunResolvesSlotFromEnvironment(t *testing.T) {
	executed = nil
	units := []task.Unit{unit(0, "worker-record"), unit(1, "worker-record")}
	dir, _ := stageJob(t, units, task.Partition{{0}, {1}})

	t.Setenv(ArrayIndexEnv, "1")
	code := Run([]string{"--manifest", filepath.Join(dir, task.ManifestName)})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(executed) != 1 || executed[0] != 1 {
		t.Fatalf("executed %v, want [1]", executed)
	}
}

func TestRunFailsWithoutManifest(t *testing.T) {
	if code := Run(nil); code == 0 {
		t.Fatal("missing manifest accepted")
	}
}
