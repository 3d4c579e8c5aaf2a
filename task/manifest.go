package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ManifestName = "manifest.json"
	unitDir      = "tasks"
	unitPerms    = 0644
)

// Unit is the serialized form of one task, written once by the submitter
// and later read by exactly one worker process.
type Unit struct {
	Index   int             `json:"index"`
	Func    string          `json:"func"`
	Arg     json.RawMessage `json:"arg"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Manifest records the partition of a job so a worker can recover its
// assigned task indices from nothing but the run directory and its own
// array index.
type Manifest struct {
	JobName  string    `json:"job_name"`
	NumTasks int       `json:"num_tasks"`
	Slots    Partition `json:"slots"`
}

// UnitPath returns the location of the serialized unit for a task index
// under a run directory.
func UnitPath(dir string, index int) string {
	return filepath.Join(dir, unitDir, fmt.Sprintf("task_%06d.json", index))
}

// WriteUnits persists every unit under dir. The submitter is the only
// writer; workers read these files after the submission returns.
func WriteUnits(dir string, units []Unit) error {
	if err := os.MkdirAll(filepath.Join(dir, unitDir), 0755); err != nil {
		return fmt.Errorf("task: create unit directory: %w", err)
	}
	for _, u := range units {
		data, err := json.MarshalIndent(u, "", "	")
		if err != nil {
			return fmt.Errorf("task: encode unit %d: %w", u.Index, err)
		}
		if err := os.WriteFile(UnitPath(dir, u.Index), data, unitPerms); err != nil {
			return fmt.Errorf("task: write unit %d: %w", u.Index, err)
		}
	}
	return nil
}

// LoadUnit reads one serialized unit back. A malformed or missing file is
// the worker-side deserialization failure of the task it belongs to.
func LoadUnit(dir string, index int) (Unit, error) {
	data, err := os.ReadFile(UnitPath(dir, index))
	if err != nil {
		return Unit{}, fmt.Errorf("task: read unit %d: %w", index, err)
	}
	var u Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return Unit{}, fmt.Errorf("task: decode unit %d: %w", index, err)
	}
	if u.Func == "" {
		return Unit{}, fmt.Errorf("task: unit %d names no function", index)
	}
	return u, nil
}

// WriteManifest persists the partition manifest under dir.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "	")
	if err != nil {
		return fmt.Errorf("task: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, unitPerms); err != nil {
		return fmt.Errorf("task: write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest file written by WriteManifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("task: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("task: decode manifest: %w", err)
	}
	if len(m.Slots) == 0 {
		return Manifest{}, fmt.Errorf("task: manifest %s has no slots", path)
	}
	return m, nil
}
