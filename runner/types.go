package runner

import (
	"io"
	"strings"
	"time"

	"gatego/runner/storage"
)

// FailPolicy decides what the runner does when a check fails.
// Abort is the only policy: the pipeline stops at the first failure.
type FailPolicy string

const FailPolicyAbort FailPolicy = "abort"

// Check is one external verification step
type Check struct {
	Name       string
	Command    []string // program and arguments
	Dir        string   // overrides the workspace directory when set
	Env        []string // KEY=VALUE pairs appended to the workspace environment
	FailPolicy FailPolicy
}

// String renders the command line for progress and history output
func (c Check) String() string {
	return strings.Join(c.Command, " ")
}

// Pipeline is the ordered list of checks run by the gate
type Pipeline struct {
	Name   string
	Checks []Check
}

// Workspace is the explicit execution context handed to every check.
// It replaces the ambient working directory and environment of the process.
type Workspace struct {
	Name   string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// State is the gate runner's position in its lifecycle
type State int

const (
	StatePending State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Outcome is the terminal result of one check or of a whole run
type Outcome struct {
	Status   int   // 0 on success
	Launched bool  // false when the command could not be started
	Err      error // nil on success
}

func (o Outcome) Success() bool { return o.Status == 0 && o.Err == nil }

// Label returns "success" or "failed", the values stored in history
func (o Outcome) Label() string {
	if o.Success() {
		return "success"
	}
	return "failed"
}

// CheckResult represents the result of executing a single check
type CheckResult struct {
	Position int           `json:"position"`
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Status   string        `json:"status"` // "success" or "failed"
	ExitCode int           `json:"exit_code"`
	Launched bool          `json:"launched"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// RunResult represents the result of running a pipeline
type RunResult struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	Status   string        `json:"status"` // "success" or "failed"
	ExitCode int           `json:"exit_code"`
	Checks   []CheckResult `json:"checks"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// Invoked returns the names of the checks that were started, in order
func (r *RunResult) Invoked() []string {
	names := make([]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		names = append(names, c.Name)
	}
	return names
}

// RunOptions configures how the gate is executed
type RunOptions struct {
	Storage  *storage.Storage // optional run history
	Launcher Launcher         // defaults to ProcessLauncher
	Events   Publisher        // optional lifecycle event sink
	Quiet    bool             // suppress progress lines on stderr
}

// Publisher receives lifecycle events while the gate runs
type Publisher interface {
	Broadcast(eventType string, data interface{})
}
