package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"gatego/events"
	"gatego/runner"
	"gatego/runner/storage"
)

// NewRouter wires the history API
func NewRouter(store *storage.Storage, projectsConfig *runner.ProjectsConfig, baseDir string, dispatcher *Dispatcher, broker *events.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", GetRuns(store))
		r.Get("/runs/{id}", GetRun(store))
		r.Get("/runs/{id}/status", GetRunStatus(store))

		r.Get("/projects", GetProjects(projectsConfig, baseDir))
		r.Get("/projects/{name}/runs", GetProjectRuns(store))
		r.Get("/projects/{name}/stats", GetProjectStats(store))
		r.Post("/projects/{name}/run", PostProjectRun(projectsConfig, baseDir, dispatcher))

		r.Get("/events", SSEHandler(broker))
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
