package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ShouldIgnore(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, 0, func(context.Context) {})
	w.Ignore(filepath.Join(dir, "data", "gate.db"))

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"pkg/runner/runner.go", false},
		{".git/index", true},
		{"web/node_modules/x/index.js", true},
		{"main.go~", true},
		{".main.go.swp", true},
		{".#main.go", true},
		{"4913", true},
		{"data/gate.db", true},
		{"data/gate.db-journal", true},
		{"data/other.db", false},
	}

	for _, tt := range tests {
		if got := w.shouldIgnore(filepath.Join(dir, tt.path)); got != tt.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_TriggerCoalescesDuringRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var runs int32

	w := NewWatcher(t.TempDir(), 0, func(context.Context) {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-release
	})

	ctx := context.Background()
	w.trigger(ctx)
	<-started

	// three changes while the first run is busy queue one follow-up run
	w.trigger(ctx)
	w.trigger(ctx)
	w.trigger(ctx)

	release <- struct{}{}
	<-started
	release <- struct{}{}
	w.wait()

	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestWatcher_RunsOnStartAndOnChange(t *testing.T) {
	dir := t.TempDir()
	ran := make(chan struct{}, 10)

	w := NewWatcher(dir, 20*time.Millisecond, func(context.Context) {
		ran <- struct{}{}
	})

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("no run on start")
	}

	// keep touching the file until the watcher notices
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for noticed := false; !noticed; {
		select {
		case <-tick.C:
			if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0644); err != nil {
				t.Fatal(err)
			}
		case <-ran:
			noticed = true
		case <-deadline:
			t.Fatal("no run after a file change")
		}
	}

	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_StartFailsForMissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), 0, func(context.Context) {})
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() should fail for a missing directory")
	}
}
