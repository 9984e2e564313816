//go:build !windows

package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"gatego/runner/storage"
)

func shellCheck(name, script string) Check {
	return Check{Name: name, Command: []string{"sh", "-c", script}, FailPolicy: FailPolicyAbort}
}

func TestProcessLauncher_ExitStatuses(t *testing.T) {
	tests := []struct {
		name         string
		check        Check
		wantStatus   int
		wantLaunched bool
	}{
		{"success", shellCheck("ok", "exit 0"), 0, true},
		{"exit code propagated", shellCheck("fail", "exit 3"), 3, true},
		{"high exit code", shellCheck("fail", "exit 200"), 200, true},
		{"killed by signal", shellCheck("killed", "kill -9 $$"), StatusSignalBase + 9, true},
		{"missing executable", Check{Name: "missing", Command: []string{"gatego-no-such-tool-7f3a"}}, StatusNotFound, false},
		{"empty command", Check{Name: "empty"}, StatusUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, _ := quietWorkspace()
			outcome := ProcessLauncher{}.Launch(context.Background(), tt.check, ws)

			if outcome.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", outcome.Status, tt.wantStatus)
			}
			if outcome.Launched != tt.wantLaunched {
				t.Errorf("Launched = %v, want %v", outcome.Launched, tt.wantLaunched)
			}
			if outcome.Success() != (tt.wantStatus == 0) {
				t.Errorf("Success() = %v", outcome.Success())
			}
		})
	}
}

func TestProcessLauncher_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "check.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ws, _ := quietWorkspace()
	outcome := ProcessLauncher{}.Launch(context.Background(), Check{Name: "noexec", Command: []string{script}}, ws)

	if outcome.Launched {
		t.Error("a non-executable file should not launch")
	}
	if outcome.Status != StatusCannotExecute {
		t.Errorf("Status = %d, want %d", outcome.Status, StatusCannotExecute)
	}
}

func TestProcessLauncher_ExecFormat(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "corrupt")
	if err := os.WriteFile(binary, []byte("\x7fELFgarbage"), 0755); err != nil {
		t.Fatal(err)
	}

	ws, _ := quietWorkspace()
	outcome := ProcessLauncher{}.Launch(context.Background(), Check{Name: "corrupt", Command: []string{binary}}, ws)

	if outcome.Launched {
		t.Error("a file in an unknown format should not launch")
	}
	if outcome.Status != StatusCannotExecute {
		t.Errorf("Status = %d, want %d (err %v)", outcome.Status, StatusCannotExecute, outcome.Err)
	}
}

func TestProcessLauncher_CancelInterruptsChild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	ws, _ := quietWorkspace()
	start := time.Now()
	outcome := ProcessLauncher{}.Launch(ctx, Check{Name: "sleep", Command: []string{"sleep", "10"}}, ws)

	if want := StatusSignalBase + int(syscall.SIGINT); outcome.Status != want {
		t.Errorf("Status = %d, want %d", outcome.Status, want)
	}
	if elapsed := time.Since(start); elapsed >= DefaultWaitDelay {
		t.Errorf("Launch took %v after cancellation", elapsed)
	}
}

func TestProcessLauncher_BackgroundProcessDoesNotBlock(t *testing.T) {
	var stdout bytes.Buffer
	ws := Workspace{Stdout: &stdout, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("")}

	start := time.Now()
	check := shellCheck("daemon", "sleep 5 & echo started")
	outcome := ProcessLauncher{WaitDelay: 200 * time.Millisecond}.Launch(context.Background(), check, ws)

	if !outcome.Success() {
		t.Errorf("Launch() = %+v, want success", outcome)
	}
	if elapsed := time.Since(start); elapsed >= 4*time.Second {
		t.Errorf("Launch waited %v for the background process", elapsed)
	}
	if stdout.String() != "started\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestProcessLauncher_InheritsStreamsUnchanged(t *testing.T) {
	var stdout, stderr bytes.Buffer
	ws := Workspace{Stdin: strings.NewReader("from stdin\n"), Stdout: &stdout, Stderr: &stderr}

	check := shellCheck("echo", `read line; echo "got: $line"; printf 'raw\ttext' >&2`)
	if outcome := (ProcessLauncher{}).Launch(context.Background(), check, ws); !outcome.Success() {
		t.Fatalf("Launch() = %+v", outcome)
	}

	if stdout.String() != "got: from stdin\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "raw\ttext" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestProcessLauncher_WorkspaceDirAndEnv(t *testing.T) {
	wsDir := t.TempDir()
	checkDir := t.TempDir()

	ws, _ := quietWorkspace()
	ws.Dir = wsDir
	ws.Env = []string{"PATH=" + os.Getenv("PATH"), "GATE_PROBE=workspace"}

	write := shellCheck("write", `printf '%s/%s' "$GATE_PROBE" "$GATE_EXTRA" > probe.txt`)
	if outcome := (ProcessLauncher{}).Launch(context.Background(), write, ws); !outcome.Success() {
		t.Fatalf("Launch() = %+v", outcome)
	}
	data, err := os.ReadFile(filepath.Join(wsDir, "probe.txt"))
	if err != nil {
		t.Fatalf("check did not run in the workspace dir: %v", err)
	}
	if string(data) != "workspace/" {
		t.Errorf("probe = %q, want %q", data, "workspace/")
	}

	write.Dir = checkDir
	write.Env = []string{"GATE_EXTRA=check"}
	if outcome := (ProcessLauncher{}).Launch(context.Background(), write, ws); !outcome.Success() {
		t.Fatalf("Launch() = %+v", outcome)
	}
	data, err = os.ReadFile(filepath.Join(checkDir, "probe.txt"))
	if err != nil {
		t.Fatalf("check dir override ignored: %v", err)
	}
	if string(data) != "workspace/check" {
		t.Errorf("probe = %q, want %q", data, "workspace/check")
	}
}

func TestRunGate_RealProcesses(t *testing.T) {
	dir := t.TempDir()
	ws, _ := quietWorkspace()
	ws.Dir = dir

	p := Pipeline{Name: "real", Checks: []Check{
		shellCheck("format", "touch format.ran"),
		shellCheck("lint", "touch lint.ran; exit 2"),
		shellCheck("test", "touch test.ran"),
	}}

	_, err := RunGate(context.Background(), p, ws, RunOptions{})
	if StatusOf(err) != 2 {
		t.Errorf("status = %d, want 2", StatusOf(err))
	}

	for name, want := range map[string]bool{"format.ran": true, "lint.ran": true, "test.ran": false} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		if got := statErr == nil; got != want {
			t.Errorf("%s exists = %v, want %v", name, got, want)
		}
	}
}

func TestRunGate_RecordsHistory(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	defer store.Close()

	var stdout bytes.Buffer
	ws := Workspace{Name: "demo", Dir: t.TempDir(), Stdout: &stdout, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("")}

	p := Pipeline{Name: "history", Checks: []Check{
		shellCheck("format", "echo formatted"),
		{Name: "lint", Command: []string{"gatego-no-such-linter-7f3a"}},
		shellCheck("test", "echo never"),
	}}

	result, err := RunGate(context.Background(), p, ws, RunOptions{Storage: store})
	if StatusOf(err) != StatusNotFound {
		t.Fatalf("status = %d, want %d", StatusOf(err), StatusNotFound)
	}
	if stdout.String() != "formatted\n" {
		t.Errorf("operator stdout = %q, want the check output unchanged", stdout.String())
	}

	runs, err := store.GetWorkspaceRuns("demo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.UUID != result.RunID || run.Status != "failed" || run.ExitCode == nil || *run.ExitCode != StatusNotFound {
		t.Errorf("run = %+v", run)
	}

	checks, err := store.GetCheckExecutions(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(checks) != 2 {
		t.Fatalf("check executions = %d, want 2", len(checks))
	}
	if checks[0].Name != "format" || checks[0].Status != "success" || checks[0].Output != "formatted\n" {
		t.Errorf("format execution = %+v", checks[0])
	}
	if checks[1].Name != "lint" || checks[1].Status != "failed" || checks[1].LaunchError == "" {
		t.Errorf("lint execution = %+v", checks[1])
	}
}

func TestRunGate_HistoryFailureDoesNotChangeOutcome(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	store.Close() // every write now fails

	ws, stderr := quietWorkspace()
	_, err = RunGate(context.Background(), testPipeline("a", "b"), ws, RunOptions{Storage: store, Launcher: &fakeLauncher{}})
	if err != nil {
		t.Errorf("RunGate() error = %v, want nil", err)
	}
	if !strings.Contains(stderr.String(), "Failed to record run") {
		t.Errorf("expected a warning about history, got %q", stderr.String())
	}
}

func TestRunGate_HistoryCapturesBothStreams(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ws := Workspace{Name: "noisy", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("")}
	script := `i=0; while [ $i -lt 500 ]; do echo out$i; echo err$i >&2; i=$((i+1)); done`
	p := Pipeline{Name: "noisy", Checks: []Check{shellCheck("both", script)}}

	result, err := RunGate(context.Background(), p, ws, RunOptions{Storage: store, Quiet: true})
	if err != nil {
		t.Fatalf("RunGate() error = %v", err)
	}

	runs, err := store.GetWorkspaceRuns("noisy", 1)
	if err != nil || len(runs) != 1 || runs[0].UUID != result.RunID {
		t.Fatalf("runs = %+v, err = %v", runs, err)
	}
	checks, err := store.GetCheckExecutions(runs[0].ID)
	if err != nil || len(checks) != 1 {
		t.Fatalf("checks = %+v, err = %v", checks, err)
	}

	lines := strings.Split(strings.TrimSuffix(checks[0].Output, "\n"), "\n")
	if len(lines) != 1000 {
		t.Fatalf("stored %d lines, want 1000", len(lines))
	}
	var out, errs int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "out"):
			out++
		case strings.HasPrefix(line, "err"):
			errs++
		default:
			t.Fatalf("corrupted line %q", line)
		}
	}
	if out != 500 || errs != 500 {
		t.Errorf("stored %d stdout and %d stderr lines, want 500 each", out, errs)
	}
}
