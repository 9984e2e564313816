package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"gatego/runner"
)

// ErrRunInProgress is returned when a project already has a gate run going
var ErrRunInProgress = errors.New("a gate run is already in progress for this project")

// Dispatcher runs triggered gates in the background, one at a time per project
type Dispatcher struct {
	opts   runner.RunOptions
	ctx    context.Context
	mu     sync.Mutex
	active map[string]bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher whose runs use opts and stop starting
// new checks once ctx is cancelled.
func NewDispatcher(ctx context.Context, opts runner.RunOptions) *Dispatcher {
	opts.Quiet = true
	return &Dispatcher{
		opts:   opts,
		ctx:    ctx,
		active: make(map[string]bool),
	}
}

// Start launches a gate run for project using cfg
func (d *Dispatcher) Start(project string, cfg *runner.Config) error {
	pipeline, err := cfg.Pipeline()
	if err != nil {
		return fmt.Errorf("invalid gate config: %w", err)
	}

	d.mu.Lock()
	if d.active[project] {
		d.mu.Unlock()
		return ErrRunInProgress
	}
	d.active[project] = true
	d.mu.Unlock()

	ws := cfg.Workspace(project)
	ws.Stdin = bytes.NewReader(nil)
	ws.Stdout = io.Discard
	ws.Stderr = io.Discard

	log.Printf("🚀 Triggering gate for project %s", project)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.active, project)
			d.mu.Unlock()
		}()

		result, err := runner.RunGate(d.ctx, pipeline, ws, d.opts)
		if err != nil {
			log.Printf("❌ Gate failed for %s: %v", project, err)
			return
		}
		log.Printf("✅ Gate passed for %s in %s", project, result.Duration)
	}()

	return nil
}

// Running reports whether project has a gate run in progress
func (d *Dispatcher) Running(project string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[project]
}

// Wait blocks until every dispatched run has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
