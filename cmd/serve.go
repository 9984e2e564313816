package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gatego/api"
	"gatego/events"
	"gatego/runner"
	"gatego/runner/storage"
)

// Serve starts the history API server
func Serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	projectsPath := fs.String("projects", "projects.yml", "projects registry file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	port := getEnv("PORT", "8080")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	dbPath := getEnv("GATE_HISTORY_DB", filepath.Join(cwd, "data", "gate.db"))
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	projectsConfig, err := runner.LoadProjects(*projectsPath)
	if err != nil {
		log.Printf("Warning: Failed to load projects config: %v", err)
		projectsConfig = &runner.ProjectsConfig{Projects: []runner.Project{}}
	} else {
		log.Printf("📁 Loaded %d project(s)", len(projectsConfig.Projects))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := events.GetBroker()
	dispatcher := api.NewDispatcher(ctx, runner.RunOptions{Storage: store, Events: broker})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewRouter(store, projectsConfig, cwd, dispatcher, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Starting gate history server on port %s...", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}

	dispatcher.Wait()
	return nil
}
