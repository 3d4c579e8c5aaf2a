// Package pool turns a batch of registered task calls into a SLURM job
// array: it partitions the calls over array slots, serializes each task,
// generates the worker and sbatch scripts and submits them through the
// sbatch CLI.
package pool

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by normalize.
const (
	DefaultPartition   = "owners"
	DefaultCpusPerTask = 1
	DefaultScriptName  = "worker.sh"
)

// JobConfig carries the resource and notification parameters of one job
// manager. It is validated and frozen by New; a Pool never mutates it.
type JobConfig struct {
	// NumTasks is the requested number of array slots, as in the
	// original pool interface. The used slot count shrinks to the task
	// count when fewer tasks are submitted.
	NumTasks    int    `yaml:"num_tasks"`
	JobName     string `yaml:"job_name"`
	LogDir      string `yaml:"log_directory"`
	TimeLimit   string `yaml:"time_limit"` // HH:MM:SS, optional leading days-
	MemLimit    string `yaml:"mem_limit"`  // digits with optional K|M|G|T suffix
	Email       string `yaml:"email"`
	Partition   string `yaml:"partition"`
	CpusPerTask int    `yaml:"cpus_per_task"`
	ScriptName  string `yaml:"script_name"`

	// NotifyOnEnd adds END to the failure-only mail policy.
	NotifyOnEnd bool `yaml:"notify_on_end"`

	// Context is encoded once and handed to every task invocation of the
	// job, the pool-wide analogue of a task argument.
	Context map[string]interface{} `yaml:"context"`

	// HistoryDB, when set, is the sqlite file that records successful
	// submissions for later inspection with `slurmpool jobs`.
	HistoryDB string `yaml:"history_db"`
}

// LoadConfig reads a JobConfig from a YAML file. Validation still
// happens in New.
func LoadConfig(path string) (JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobConfig{}, fmt.Errorf("slurmpool: read config: %w", err)
	}
	var cfg JobConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return JobConfig{}, fmt.Errorf("slurmpool: parse config: %w", err)
	}
	return cfg, nil
}

// Optional days prefix, then hours:minutes:seconds. A bare "10:00" is
// rejected: SLURM would read it as minutes:seconds, which is almost
// never what the caller meant.
var timeLimitRe = regexp.MustCompile(`^([0-9]+-)?[0-9]+:[0-9]{2}:[0-9]{2}$`)

var (
	memDigitsRe = regexp.MustCompile(`^[0-9]+`)
	memSuffixRe = regexp.MustCompile(`[KMGT]$`)
)

// parseMemLimit validates a SLURM memory string and returns its size in
// bytes. Bare numbers are megabytes, matching sbatch --mem.
func parseMemLimit(req string) (int64, error) {
	match := memDigitsRe.FindString(req)
	if len(match) == 0 {
		return 0, errors.New("memory limit must start with a number")
	}
	base, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, errors.New("memory limit must start with a number")
	}
	rest := req[len(match):]
	if len(rest) == 0 {
		return base * 1024 * 1024, nil
	}
	if !memSuffixRe.MatchString(rest) || len(rest) > 1 {
		return 0, fmt.Errorf("invalid memory suffix %q", rest)
	}
	switch rest {
	case "K":
		return base * 1024, nil
	case "M":
		return base * 1024 * 1024, nil
	case "G":
		return base * 1024 * 1024 * 1024, nil
	default: // T
		return base * 1024 * 1024 * 1024 * 1024, nil
	}
}

func (c *JobConfig) normalize() {
	if c.Partition == "" {
		c.Partition = DefaultPartition
	}
	if c.CpusPerTask == 0 {
		c.CpusPerTask = DefaultCpusPerTask
	}
	if c.ScriptName == "" {
		c.ScriptName = DefaultScriptName
	}
}

func (c *JobConfig) validate() error {
	if c.NumTasks <= 0 {
		return &ConfigError{Reason: "num_tasks must be positive"}
	}
	if strings.TrimSpace(c.JobName) == "" {
		return &ConfigError{Reason: "job_name must not be empty"}
	}
	if c.LogDir == "" {
		return &ConfigError{Reason: "log_directory must not be empty"}
	}
	if c.CpusPerTask <= 0 {
		return &ConfigError{Reason: "cpus_per_task must be positive"}
	}
	if !timeLimitRe.MatchString(c.TimeLimit) {
		return &ConfigError{Reason: fmt.Sprintf("time_limit %q is not HH:MM:SS", c.TimeLimit)}
	}
	if _, err := parseMemLimit(c.MemLimit); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("mem_limit %q: %v", c.MemLimit, err)}
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return &ConfigError{Reason: fmt.Sprintf("email %q is not an address", c.Email)}
	}
	if err := os.MkdirAll(c.LogDir, 0755); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("log_directory %s: %v", c.LogDir, err)}
	}
	return nil
}
