package pool

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// SbatchCommand is the external scheduler submission command.
const SbatchCommand = "sbatch"

// CommandRunner is the port through which the pool reaches the
// scheduler CLI. Tests substitute a fake; production code uses
// ExecRunner.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

// ExecRunner returns the CommandRunner backed by os/exec.
func ExecRunner() CommandRunner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

var submittedRe = regexp.MustCompile(`Submitted batch job ([0-9]+)`)

// parseJobID extracts the numeric job identifier from sbatch output.
// The usual form is "Submitted batch job 123"; some wrappers print the
// bare number.
func parseJobID(stdout []byte) (int, error) {
	if m := submittedRe.FindSubmatch(stdout); m != nil {
		return strconv.Atoi(string(m[1]))
	}
	trimmed := strings.TrimSpace(string(stdout))
	if id, err := strconv.Atoi(trimmed); err == nil {
		return id, nil
	}
	return 0, errors.New("no job identifier in scheduler output")
}

// SubmitArtifact hands an existing submission artifact to sbatch and
// returns the scheduler's job identifier. The artifact is left on disk
// whatever happens.
func SubmitArtifact(ctx context.Context, r CommandRunner, artifactPath string) (int, error) {
	stdout, stderr, err := r.Run(ctx, SbatchCommand, artifactPath)
	if err != nil {
		return 0, &SubmitError{Output: strings.TrimSpace(string(stderr)), Cause: err}
	}
	id, err := parseJobID(stdout)
	if err != nil {
		return 0, &SubmitError{Output: strings.TrimSpace(string(stdout)), Cause: err}
	}
	return id, nil
}
