package main

import (
	"context"
	"fmt"

	"github.com/NarayanSchuetz/slurmpool/pool"
)

type ResubmitCommand struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
	Args struct {
		Artifact string `positional-arg-name:"artifact" description:"path to a generated .sbatch file"`
	} `positional-args:"true" required:"1"`
}

var resubmitCommand ResubmitCommand

func (x *ResubmitCommand) Execute(args []string) error {
	if x.Help {
		return createHelpErr()
	}
	id, err := pool.SubmitArtifact(context.Background(), pool.ExecRunner(), x.Args.Artifact)
	if err != nil {
		return err
	}
	fmt.Printf("Submitted batch job %d\n", id)
	return nil
}

func init() {
	parser.AddCommand("resubmit",
		"Submit an existing artifact",
		"Hand a previously generated submission artifact to sbatch again, e.g. after a failed first submission",
		&resubmitCommand)
}
