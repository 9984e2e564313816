package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gatego/runner"
	"gatego/runner/storage"
)

// Watch re-runs the gate on every change to the workspace
func Watch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("c", "", "gate config file")
	history := fs.String("history", "", "record runs in this SQLite database")
	debounce := fs.Duration("debounce", runner.DefaultDebounce, "quiet period before re-running")
	if err := fs.Parse(args); err != nil {
		return runner.StatusRunnerError
	}

	cfg, err := loadGateConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusOf(err)
	}

	var store *storage.Storage
	dbPath := historyPath(*history, cfg)
	if dbPath != "" {
		store, err = storage.NewStorage(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Run history disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := runner.NewWatcher(cfg.WorkDir(), *debounce, func(ctx context.Context) {
		// reload so edits to gate.yml apply to the next run
		current, err := loadGateConfig(*configPath)
		if err != nil {
			log.Printf("❌ %v", err)
			return
		}
		pipeline, err := current.Pipeline()
		if err != nil {
			log.Printf("❌ %v", err)
			return
		}

		result, err := runner.RunGate(ctx, pipeline, current.Workspace(current.Name), runner.RunOptions{Storage: store})
		if result != nil {
			log.Printf("🔁 Gate %s (exit %d) in %s", result.Status, runner.StatusOf(err), result.Duration)
		}
	})
	watcher.Ignore(dbPath)
	if dbPath != "" {
		watcher.Ignore(dbPath + "-journal")
	}

	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return runner.StatusRunnerError
	}
	return runner.StatusSuccess
}
