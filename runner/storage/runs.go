package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

const runColumns = "id, uuid, pipeline, workspace, work_dir, status, exit_code, started_at, finished_at, duration"

// CreateRun creates a new run record in the running state
func (s *Storage) CreateRun(runUUID, pipeline, workspace, workDir string) (*Run, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO runs (uuid, pipeline, workspace, work_dir, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		runUUID, pipeline, workspace, workDir, "running", now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get run ID: %w", err)
	}

	return &Run{
		ID:        int(id),
		UUID:      runUUID,
		Pipeline:  pipeline,
		Workspace: workspace,
		WorkDir:   workDir,
		Status:    "running",
		StartedAt: now,
	}, nil
}

// UpdateRunStatus records the terminal status of a run
func (s *Storage) UpdateRunStatus(runID int, status string, exitCode int, duration time.Duration) error {
	now := time.Now()
	_, err := s.db.Exec(
		"UPDATE runs SET status = ?, exit_code = ?, finished_at = ?, duration = ? WHERE id = ?",
		status, exitCode, now, duration.String(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRuns retrieves runs, most recent first
func (s *Storage) GetRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query("SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetWorkspaceRuns retrieves the runs of one workspace, most recent first
func (s *Storage) GetWorkspaceRuns(workspace string, limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs WHERE workspace = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		workspace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetRun retrieves a single run by ID
func (s *Storage) GetRun(runID int) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var exitCode sql.NullInt64
	var finishedAt sql.NullTime
	var duration sql.NullString

	err := row.Scan(&r.ID, &r.UUID, &r.Pipeline, &r.Workspace, &r.WorkDir, &r.Status, &exitCode, &r.StartedAt, &finishedAt, &duration)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	if duration.Valid {
		durationStr := duration.String
		r.Duration = &durationStr
	}

	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	runs := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
