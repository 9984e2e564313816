package storage

import "time"

// Run represents one execution of a gate pipeline
type Run struct {
	ID         int        `json:"id"`
	UUID       string     `json:"uuid"`
	Pipeline   string     `json:"pipeline"`
	Workspace  string     `json:"workspace"`
	WorkDir    string     `json:"work_dir"`
	Status     string     `json:"status"` // "running", "success", "failed"
	ExitCode   *int       `json:"exit_code,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   *string    `json:"duration,omitempty"`
}

// CheckExecution represents execution of a single check within a run
type CheckExecution struct {
	ID          int        `json:"id"`
	RunID       int        `json:"run_id"`
	Position    int        `json:"position"`
	Name        string     `json:"name"`
	Command     string     `json:"command"`
	Status      string     `json:"status"` // "running", "success", "failed"
	ExitCode    *int       `json:"exit_code,omitempty"`
	LaunchError string     `json:"launch_error,omitempty"`
	Output      string     `json:"output"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Duration    *string    `json:"duration,omitempty"`
}
