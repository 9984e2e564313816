package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
)

// Exit statuses reported by the gate besides the ones propagated from checks.
// The launch statuses follow the shell convention the gate replaces.
const (
	StatusSuccess       = 0
	StatusUnknown       = 1   // child status could not be determined
	StatusRunnerError   = 2   // bad config, empty pipeline, storage setup
	StatusCannotExecute = 126 // found but not runnable
	StatusNotFound      = 127 // executable missing
	StatusSignalBase    = 128 // child killed by signal N reports 128+N
	StatusInterrupted   = 130 // run cancelled before a check could start
)

var (
	ErrEmptyPipeline = errors.New("pipeline has no checks")
	ErrInvalidConfig = errors.New("invalid gate config")
	ErrEmptyCommand  = errors.New("check has an empty command")
	ErrAlreadyRun    = errors.New("gate has already run")
)

// CheckFailedError is returned when a check ran and exited non-zero.
type CheckFailedError struct {
	Position int
	Name     string
	Status   int
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("check '%s' failed with exit status %d", e.Name, e.Status)
}

// LaunchError is returned when a check's command could not be started at all.
// Callers use errors.As to tell it apart from a check that ran and failed.
type LaunchError struct {
	Position int
	Name     string
	Status   int
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("check '%s' could not be started: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// StatusOf maps the error returned by a gate run to the process exit status
func StatusOf(err error) int {
	if err == nil {
		return StatusSuccess
	}

	var failed *CheckFailedError
	if errors.As(err, &failed) {
		return failed.Status
	}

	var launch *LaunchError
	if errors.As(err, &launch) {
		return launch.Status
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusInterrupted
	}

	return StatusRunnerError
}

// launchStatus classifies an error from starting a process
func launchStatus(err error) int {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return StatusNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOEXEC):
		return StatusCannotExecute
	}
	return StatusUnknown
}

// exitStatus extracts the status of a process that was started and waited on
func exitStatus(err error) int {
	if err == nil {
		return StatusSuccess
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return StatusUnknown
	}

	if code := exitErr.ExitCode(); code > 0 {
		return code
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return StatusSignalBase + int(ws.Signal())
	}

	return StatusUnknown
}
