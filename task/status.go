package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const statusDir = "status"

// State is the outcome of one task as recorded by its worker.
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Succeeded:
		return "ok"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

func okMarkerPath(dir string, index int) string {
	return filepath.Join(dir, statusDir, fmt.Sprintf("task_%06d.ok", index))
}

func errMarkerPath(dir string, index int) string {
	return filepath.Join(dir, statusDir, fmt.Sprintf("task_%06d.err", index))
}

// WriteOK records a task as succeeded. Each worker owns its tasks'
// marker files exclusively, so no cross-process coordination is needed.
func WriteOK(dir string, index int) error {
	if err := os.MkdirAll(filepath.Join(dir, statusDir), 0755); err != nil {
		return err
	}
	return os.WriteFile(okMarkerPath(dir, index), []byte("ok\n"), unitPerms)
}

// WriteErr records a task as failed, keeping the cause for inspection.
func WriteErr(dir string, index int, cause error) error {
	if err := os.MkdirAll(filepath.Join(dir, statusDir), 0755); err != nil {
		return err
	}
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	return os.WriteFile(errMarkerPath(dir, index), []byte(msg+"\n"), unitPerms)
}

// ReadStatus reports the recorded outcome of one task. detail carries
// the failure message for Failed tasks and is empty otherwise. A task
// with no marker is Pending: its slot has not reached it yet.
func ReadStatus(dir string, index int) (State, string) {
	if data, err := os.ReadFile(errMarkerPath(dir, index)); err == nil {
		return Failed, strings.TrimSpace(string(data))
	}
	if _, err := os.Stat(okMarkerPath(dir, index)); err == nil {
		return Succeeded, ""
	}
	return Pending, ""
}
