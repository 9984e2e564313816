package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatego/events"
	"gatego/runner/storage"
)

// Launcher starts a check and blocks until it has finished
type Launcher interface {
	Launch(ctx context.Context, check Check, ws Workspace) Outcome
}

// DefaultWaitDelay bounds how long a cancelled check, or one whose output
// pipes are held open by a background process, may keep Launch waiting
const DefaultWaitDelay = 5 * time.Second

// ProcessLauncher runs checks as child processes sharing the workspace's streams
type ProcessLauncher struct {
	WaitDelay time.Duration // zero means DefaultWaitDelay
}

// Launch implements Launcher.
func (l ProcessLauncher) Launch(ctx context.Context, check Check, ws Workspace) Outcome {
	if len(check.Command) == 0 || check.Command[0] == "" {
		return Outcome{Status: StatusUnknown, Err: ErrEmptyCommand}
	}

	cmd := exec.CommandContext(ctx, check.Command[0], check.Command[1:]...)
	// cancellation interrupts the child like Ctrl-C does; it is killed after WaitDelay
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	cmd.Dir = ws.Dir
	if check.Dir != "" {
		cmd.Dir = check.Dir
	}

	env := append(append([]string{}, ws.Env...), check.Env...)
	if len(env) > 0 {
		cmd.Env = env
	}

	cmd.Stdin = ws.Stdin
	cmd.Stdout = ws.Stdout
	cmd.Stderr = ws.Stderr

	if err := cmd.Start(); err != nil {
		return Outcome{Status: launchStatus(err), Err: err}
	}

	if err := cmd.Wait(); err != nil {
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState.Success() {
			// the check passed; a background process it left behind kept the output open
			return Outcome{Launched: true}
		}
		return Outcome{Status: exitStatus(err), Launched: true, Err: err}
	}

	return Outcome{Launched: true}
}

// Gate runs a pipeline once, in declaration order, stopping at the first failure
type Gate struct {
	pipeline Pipeline
	ws       Workspace
	opts     RunOptions

	runID   string
	state   State
	current int
	outcome Outcome
}

// NewGate prepares a gate for one run of the pipeline.
// The checks are copied so later changes to p do not affect the run.
func NewGate(p Pipeline, ws Workspace, opts RunOptions) (*Gate, error) {
	if len(p.Checks) == 0 {
		return nil, ErrEmptyPipeline
	}

	checks := make([]Check, len(p.Checks))
	copy(checks, p.Checks)

	if opts.Launcher == nil {
		opts.Launcher = ProcessLauncher{}
	}
	if ws.Stdin == nil {
		ws.Stdin = os.Stdin
	}
	if ws.Stdout == nil {
		ws.Stdout = os.Stdout
	}
	if ws.Stderr == nil {
		ws.Stderr = os.Stderr
	}

	return &Gate{
		pipeline: Pipeline{Name: p.Name, Checks: checks},
		ws:       ws,
		opts:     opts,
		state:    StatePending,
	}, nil
}

// State reports the lifecycle state and the index of the check being run
func (g *Gate) State() (State, int) {
	return g.state, g.current
}

// Outcome is the terminal outcome; only meaningful once State is StateDone
func (g *Gate) Outcome() Outcome {
	return g.outcome
}

// Run executes every check in order until one fails or all succeed.
// The returned error is a *CheckFailedError or *LaunchError for a failing
// check; StatusOf maps it to the gate's exit status.
func (g *Gate) Run(ctx context.Context) (*RunResult, error) {
	if g.state != StatePending {
		return nil, ErrAlreadyRun
	}

	startTime := time.Now()
	result := &RunResult{
		RunID:    uuid.NewString(),
		Pipeline: g.pipeline.Name,
		Checks:   make([]CheckResult, 0, len(g.pipeline.Checks)),
	}
	g.runID = result.RunID

	var run *storage.Run
	if g.opts.Storage != nil {
		var err error
		run, err = g.opts.Storage.CreateRun(result.RunID, g.pipeline.Name, g.ws.Name, g.ws.Dir)
		if err != nil {
			g.logf("⚠️  Failed to record run: %v", err)
		}
	}

	g.publish(events.RunStarted, map[string]interface{}{
		"pipeline":  g.pipeline.Name,
		"workspace": g.ws.Name,
		"checks":    len(g.pipeline.Checks),
	})

	g.state = StateRunning
	for i, check := range g.pipeline.Checks {
		g.current = i

		if err := ctx.Err(); err != nil {
			return g.finish(result, run, startTime, Outcome{Status: StatusInterrupted, Err: err}, err)
		}

		checkResult, err := g.runCheck(ctx, i, check, run)
		result.Checks = append(result.Checks, checkResult)

		if err != nil {
			outcome := Outcome{Status: checkResult.ExitCode, Launched: checkResult.Launched, Err: err}
			return g.finish(result, run, startTime, outcome, err)
		}
	}

	g.progress("\n🏁 All checks passed.")
	return g.finish(result, run, startTime, Outcome{Launched: true}, nil)
}

func (g *Gate) runCheck(ctx context.Context, position int, check Check, run *storage.Run) (CheckResult, error) {
	checkStart := time.Now()
	g.progress(fmt.Sprintf("→ %s (%s)", check.Name, check))

	g.publish(events.CheckStarted, map[string]interface{}{
		"position": position,
		"name":     check.Name,
		"command":  check.String(),
	})

	var record *storage.CheckExecution
	if run != nil {
		var err error
		record, err = g.opts.Storage.CreateCheckExecution(run.ID, position, check.Name, check.String())
		if err != nil {
			g.logf("⚠️  Failed to record check '%s': %v", check.Name, err)
		}
	}

	// History keeps a copy of the output; the operator still sees the stream as is
	ws := g.ws
	var captured lockedBuffer
	if record != nil {
		ws.Stdout = io.MultiWriter(ws.Stdout, &captured)
		ws.Stderr = io.MultiWriter(ws.Stderr, &captured)
	}

	outcome := g.opts.Launcher.Launch(ctx, check, ws)
	duration := time.Since(checkStart)

	checkResult := CheckResult{
		Position: position,
		Name:     check.Name,
		Command:  check.String(),
		Status:   outcome.Label(),
		ExitCode: outcome.Status,
		Launched: outcome.Launched,
		Duration: duration,
	}

	var err error
	switch {
	case outcome.Success():
		g.progress("✅ Done: " + check.Name)
	case !outcome.Launched:
		if outcome.Status == StatusSuccess {
			checkResult.ExitCode = StatusUnknown
		}
		err = &LaunchError{Position: position, Name: check.Name, Status: checkResult.ExitCode, Err: outcome.Err}
		g.progress("❌ " + err.Error())
	default:
		if outcome.Status == StatusSuccess {
			// a launcher reported an error without a status
			checkResult.ExitCode = StatusUnknown
		}
		err = &CheckFailedError{Position: position, Name: check.Name, Status: checkResult.ExitCode}
		g.progress("❌ " + err.Error())
	}
	checkResult.Error = err

	if record != nil {
		launchErr := ""
		if !outcome.Launched && outcome.Err != nil {
			launchErr = outcome.Err.Error()
		}
		if uerr := g.opts.Storage.UpdateCheckExecution(record.ID, checkResult.Status, checkResult.ExitCode, launchErr, captured.String(), duration); uerr != nil {
			g.logf("⚠️  Failed to update check '%s': %v", check.Name, uerr)
		}
	}

	g.publish(events.CheckFinished, map[string]interface{}{
		"position":  position,
		"name":      check.Name,
		"status":    checkResult.Status,
		"exit_code": checkResult.ExitCode,
		"launched":  checkResult.Launched,
		"duration":  duration.String(),
	})

	return checkResult, err
}

// lockedBuffer collects stdout and stderr, which exec copies from separate goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (g *Gate) finish(result *RunResult, run *storage.Run, startTime time.Time, outcome Outcome, err error) (*RunResult, error) {
	if err != nil && outcome.Status == StatusSuccess {
		outcome.Status = StatusOf(err)
	}

	g.state = StateDone
	g.outcome = outcome

	result.Status = outcome.Label()
	result.ExitCode = outcome.Status
	result.Duration = time.Since(startTime)
	result.Error = err

	if run != nil {
		if uerr := g.opts.Storage.UpdateRunStatus(run.ID, result.Status, result.ExitCode, result.Duration); uerr != nil {
			g.logf("⚠️  Failed to update run: %v", uerr)
		}
	}

	g.publish(events.RunFinished, map[string]interface{}{
		"pipeline":  result.Pipeline,
		"workspace": g.ws.Name,
		"status":    result.Status,
		"exit_code": result.ExitCode,
		"duration":  result.Duration.String(),
	})

	return result, err
}

func (g *Gate) progress(line string) {
	if g.opts.Quiet {
		return
	}
	fmt.Fprintln(g.ws.Stderr, line)
}

// logf reports runner-side problems that never change the gate's outcome
func (g *Gate) logf(format string, args ...interface{}) {
	fmt.Fprintf(g.ws.Stderr, format+"\n", args...)
}

func (g *Gate) publish(eventType string, data map[string]interface{}) {
	if g.opts.Events == nil {
		return
	}
	data["run_id"] = g.runID
	g.opts.Events.Broadcast(eventType, data)
}

// RunGate builds a gate for p and runs it once
func RunGate(ctx context.Context, p Pipeline, ws Workspace, opts RunOptions) (*RunResult, error) {
	gate, err := NewGate(p, ws, opts)
	if err != nil {
		return nil, err
	}
	return gate.Run(ctx)
}
