package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateCheckExecution creates a new check execution record
func (s *Storage) CreateCheckExecution(runID, position int, name, command string) (*CheckExecution, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO check_executions (run_id, position, name, command, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, position, name, command, "running", now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get check execution ID: %w", err)
	}

	return &CheckExecution{
		ID:        int(id),
		RunID:     runID,
		Position:  position,
		Name:      name,
		Command:   command,
		Status:    "running",
		StartedAt: now,
	}, nil
}

// UpdateCheckExecution stores the outcome and output of a finished check.
// launchError is non-empty when the command could not be started.
func (s *Storage) UpdateCheckExecution(checkID int, status string, exitCode int, launchError, output string, duration time.Duration) error {
	now := time.Now()
	_, err := s.db.Exec(
		"UPDATE check_executions SET status = ?, exit_code = ?, launch_error = ?, output = ?, finished_at = ?, duration = ? WHERE id = ?",
		status, exitCode, launchError, output, now, duration.String(), checkID,
	)
	if err != nil {
		return fmt.Errorf("failed to update check execution: %w", err)
	}
	return nil
}

// GetCheckExecutions retrieves the checks of a run in invocation order
func (s *Storage) GetCheckExecutions(runID int) ([]*CheckExecution, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, position, name, command, status, exit_code, launch_error, output, started_at, finished_at, duration
		FROM check_executions WHERE run_id = ? ORDER BY position ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query check executions: %w", err)
	}
	defer rows.Close()

	checks := make([]*CheckExecution, 0)
	for rows.Next() {
		var c CheckExecution
		var exitCode sql.NullInt64
		var output sql.NullString
		var finishedAt sql.NullTime
		var duration sql.NullString

		err := rows.Scan(&c.ID, &c.RunID, &c.Position, &c.Name, &c.Command, &c.Status, &exitCode, &c.LaunchError, &output, &c.StartedAt, &finishedAt, &duration)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check execution: %w", err)
		}

		if exitCode.Valid {
			code := int(exitCode.Int64)
			c.ExitCode = &code
		}
		if output.Valid {
			c.Output = output.String
		}
		if finishedAt.Valid {
			c.FinishedAt = &finishedAt.Time
		}
		if duration.Valid {
			durationStr := duration.String
			c.Duration = &durationStr
		}

		checks = append(checks, &c)
	}

	return checks, rows.Err()
}
