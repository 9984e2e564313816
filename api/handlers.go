package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gatego/runner"
	"gatego/runner/storage"
)

const (
	runsLimit  = 100
	statsLimit = 10
)

// GetRuns returns the most recent runs
func GetRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.GetRuns(runsLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get runs: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// RunResponse is a run together with its check executions
type RunResponse struct {
	Run    *storage.Run              `json:"run"`
	Checks []*storage.CheckExecution `json:"checks"`
}

// GetRun returns a single run with its checks
func GetRun(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, store)
		if !ok {
			return
		}

		checks, err := store.GetCheckExecutions(run.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get checks: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, RunResponse{Run: run, Checks: checks})
	}
}

// GetRunStatus returns just the status of a run (lightweight for polling)
func GetRunStatus(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, store)
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":        run.ID,
			"status":    run.Status,
			"exit_code": run.ExitCode,
		})
	}
}

func lookupRun(w http.ResponseWriter, r *http.Request, store *storage.Storage) (*storage.Run, bool) {
	runID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run ID")
		return nil, false
	}

	run, err := store.GetRun(runID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Run %d not found", runID))
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get run: %v", err))
		return nil, false
	}

	return run, true
}

// ProjectResponse is a configured project with its validation state
type ProjectResponse struct {
	runner.Project
	Valid    bool   `json:"valid"`
	GateFile bool   `json:"gate_file"` // false when the default pipeline applies
	Error    string `json:"error,omitempty"`
}

// GetProjects returns all configured projects
func GetProjects(projectsConfig *runner.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects := make([]ProjectResponse, 0, len(projectsConfig.Projects))
		for _, project := range projectsConfig.Projects {
			pr := ProjectResponse{Project: project, Valid: true}
			if err := project.Validate(baseDir); err != nil {
				pr.Valid = false
				pr.Error = err.Error()
			} else if _, err := project.LoadConfig(baseDir); err != nil {
				pr.Valid = false
				pr.Error = err.Error()
			}
			pr.GateFile = fileExists(project.GetGatePath(baseDir))
			projects = append(projects, pr)
		}

		writeJSON(w, http.StatusOK, projects)
	}
}

// GetProjectRuns returns runs for a specific project
func GetProjectRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.GetWorkspaceRuns(chi.URLParam(r, "name"), runsLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get runs: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// GetProjectStats returns pass/fail counts and the latest runs of a project
func GetProjectStats(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := statsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = n
		}

		stats, err := store.GetWorkspaceStats(chi.URLParam(r, "name"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get stats: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// PostProjectRun triggers an asynchronous gate run for a project
func PostProjectRun(projectsConfig *runner.ProjectsConfig, baseDir string, dispatcher *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectName := chi.URLParam(r, "name")

		project, err := projectsConfig.GetProject(projectName)
		if err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Project not found: %v", err))
			return
		}

		if err := project.Validate(baseDir); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid project: %v", err))
			return
		}

		cfg, err := project.LoadConfig(baseDir)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid gate config: %v", err))
			return
		}

		if err := dispatcher.Start(project.Name, cfg); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrRunInProgress) {
				status = http.StatusConflict
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"message": fmt.Sprintf("Gate started for %s", projectName),
			"status":  "starting",
		})
	}
}
