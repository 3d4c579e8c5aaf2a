package main

import (
	"fmt"
	"path/filepath"

	"github.com/NarayanSchuetz/slurmpool/task"
)

type StatusCommand struct {
	Help    bool `short:"h" long:"help" description:"Show this help message"`
	Verbose bool `short:"v" long:"verbose" description:"List every task, not only failures"`
	Args    struct {
		RunDir string `positional-arg-name:"rundir" description:"run directory of a created job"`
	} `positional-args:"true" required:"1"`
}

var statusCommand StatusCommand

func (x *StatusCommand) Execute(args []string) error {
	if x.Help {
		return createHelpErr()
	}
	dir := x.Args.RunDir
	manifest, err := task.LoadManifest(filepath.Join(dir, task.ManifestName))
	if err != nil {
		return err
	}

	// Reverse the partition so each task can be shown with its slot.
	slotOf := make(map[int]int, manifest.NumTasks)
	for slot, indices := range manifest.Slots {
		for _, index := range indices {
			slotOf[index] = slot
		}
	}

	var ok, failed, pending int
	for index := 0; index < manifest.NumTasks; index++ {
		state, detail := task.ReadStatus(dir, index)
		switch state {
		case task.Succeeded:
			ok++
		case task.Failed:
			failed++
		default:
			pending++
		}
		if state == task.Failed || x.Verbose {
			line := fmt.Sprintf("task %6d  slot %4d  %-7s", index, slotOf[index], state)
			if detail != "" {
				line += "  " + detail
			}
			fmt.Println(line)
		}
	}
	fmt.Printf("%s: %d tasks, %d ok, %d failed, %d pending\n",
		manifest.JobName, manifest.NumTasks, ok, failed, pending)
	return nil
}

func init() {
	parser.AddCommand("status",
		"Per-task outcome of a job",
		"Read the status markers of a run directory and summarize which tasks succeeded, failed or have not reported yet",
		&statusCommand)
}
