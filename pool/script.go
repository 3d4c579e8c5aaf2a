package pool

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/NarayanSchuetz/slurmpool/task"
	"github.com/NarayanSchuetz/slurmpool/worker"
)

// The worker script is identical for every slot; the scheduler's array
// index is the only thing that varies at runtime. It re-executes the
// submitting binary, which must call worker.MaybeRun early in main.
var workerScriptTmpl = template.Must(template.New("worker").Parse(`#!/bin/bash

export {{.WorkerEnv}}=1
exec {{.Executable}} --manifest {{.ManifestPath}} --slot "{{.ArrayIndexRef}}"
`))

// %A/%a in the log names keep concurrently running slots on separate
// files. No timestamps or ids are embedded: the artifact is a pure
// function of the config, the run directory and the used slot count.
var artifactTmpl = template.Must(template.New("sbatch").Parse(`#!/bin/bash

#SBATCH --partition={{.Partition}}
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.RunDir}}/{{.JobName}}_%A_%a.out
#SBATCH --error={{.RunDir}}/{{.JobName}}_%A_%a.err
#SBATCH --time={{.TimeLimit}}
#SBATCH --mem={{.MemLimit}}
#SBATCH --cpus-per-task={{.CpusPerTask}}
{{- if .Email}}
#SBATCH --mail-type={{.MailType}}
#SBATCH --mail-user={{.Email}}
{{- end}}
#SBATCH --array=0-{{.ArrayUpper}}

exec /bin/bash {{.WorkerScript}}
`))

type workerScriptData struct {
	WorkerEnv     string
	ArrayIndexRef string
	Executable    string
	ManifestPath  string
}

type artifactData struct {
	Partition    string
	JobName      string
	RunDir       string
	TimeLimit    string
	MemLimit     string
	CpusPerTask  int
	Email        string
	MailType     string
	ArrayUpper   int
	WorkerScript string
}

// renderWorkerScript produces the per-slot glue script for a run
// directory and the executable captured at submission time.
func renderWorkerScript(executable, runDir string) (string, error) {
	var b bytes.Buffer
	err := workerScriptTmpl.Execute(&b, workerScriptData{
		WorkerEnv:     worker.WorkerEnv,
		ArrayIndexRef: "${" + worker.ArrayIndexEnv + "}",
		Executable:    executable,
		ManifestPath:  filepath.Join(runDir, task.ManifestName),
	})
	if err != nil {
		return "", fmt.Errorf("slurmpool: render worker script: %w", err)
	}
	return b.String(), nil
}

// renderArtifact produces the sbatch submission script binding the job
// array of usedSlots slots to the worker script. Output depends only on
// its inputs, so a dry run and the submitted text are byte-identical.
func renderArtifact(cfg JobConfig, runDir string, usedSlots int) (string, error) {
	if usedSlots <= 0 {
		return "", &ConfigError{Reason: "no slots to schedule"}
	}
	mailType := "FAIL"
	if cfg.NotifyOnEnd {
		mailType = "FAIL,END"
	}
	var b bytes.Buffer
	err := artifactTmpl.Execute(&b, artifactData{
		Partition:    cfg.Partition,
		JobName:      cfg.JobName,
		RunDir:       runDir,
		TimeLimit:    cfg.TimeLimit,
		MemLimit:     cfg.MemLimit,
		CpusPerTask:  cfg.CpusPerTask,
		Email:        cfg.Email,
		MailType:     mailType,
		ArrayUpper:   usedSlots - 1,
		WorkerScript: filepath.Join(runDir, cfg.ScriptName),
	})
	if err != nil {
		return "", fmt.Errorf("slurmpool: render submission artifact: %w", err)
	}
	return b.String(), nil
}
