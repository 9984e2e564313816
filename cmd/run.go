package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gatego/runner"
	"gatego/runner/storage"
)

// Run executes the 'run' command and returns the process exit status
func Run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("c", "", "gate config file (default gate.yml, or the built-in Go pipeline)")
	history := fs.String("history", "", "record the run in this SQLite database")
	quiet := fs.Bool("q", false, "only show the checks' own output")
	if err := fs.Parse(args); err != nil {
		return runner.StatusRunnerError
	}

	cfg, err := loadGateConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusOf(err)
	}

	pipeline, err := cfg.Pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusOf(err)
	}

	opts := runner.RunOptions{Quiet: *quiet}
	if dbPath := historyPath(*history, cfg); dbPath != "" {
		store, err := storage.NewStorage(dbPath)
		if err != nil {
			// history is best effort; the gate still runs
			fmt.Fprintf(os.Stderr, "⚠️  Run history disabled: %v\n", err)
		} else {
			defer store.Close()
			opts.Storage = store
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.RunGate(ctx, pipeline, cfg.Workspace(cfg.Name), opts)
	if result != nil && opts.Storage != nil && !*quiet {
		fmt.Fprintf(os.Stderr, "\n📊 Run ID: %s | Status: %s | Duration: %s\n", result.RunID, result.Status, result.Duration)
	}

	return runner.StatusOf(err)
}

// List prints the resolved pipeline without running it
func List(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("c", "", "gate config file")
	if err := fs.Parse(args); err != nil {
		return runner.StatusRunnerError
	}

	cfg, err := loadGateConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusOf(err)
	}

	pipeline, err := cfg.Pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusOf(err)
	}

	printPipeline(os.Stdout, pipeline, cfg.WorkDir())
	return runner.StatusSuccess
}
