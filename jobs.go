package main

import (
	"context"
	"fmt"
	"time"

	"github.com/NarayanSchuetz/slurmpool/history"
)

type JobsCommand struct {
	Help  bool   `short:"h" long:"help" description:"Show this help message"`
	DB    string `short:"d" long:"db" description:"history database file"`
	Limit int    `short:"n" long:"limit" description:"maximum number of rows" default:"20"`
}

var jobsCommand JobsCommand

func (x *JobsCommand) Execute(args []string) error {
	if x.Help {
		return createHelpErr()
	}
	path := x.DB
	if path == "" {
		path = history.DefaultPath()
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background(), x.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no submissions recorded")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-10d %-20s %4d slots %6d tasks  %s  %s\n",
			r.JobID, r.Name, r.Slots, r.Tasks,
			r.SubmittedAt.Format(time.RFC3339), r.RunDir)
	}
	return nil
}

func init() {
	parser.AddCommand("jobs",
		"List recorded submissions",
		"Read the local submission history written by pools configured with a history database",
		&jobsCommand)
}
