package storage

import (
	"database/sql"
	"fmt"
)

// WorkspaceStats summarises recent gate runs of one workspace
type WorkspaceStats struct {
	Workspace  string      `json:"workspace"`
	TotalRuns  int         `json:"total_runs"`
	Passed     int         `json:"passed"`
	Failed     int         `json:"failed"`
	LastStatus string      `json:"last_status,omitempty"`
	Latest     []RunDigest `json:"latest"`
}

// RunDigest is a compact view of a run used in stats listings
type RunDigest struct {
	RunID      int     `json:"run_id"`
	Status     string  `json:"status"`
	ExitCode   *int    `json:"exit_code,omitempty"`
	FailedAt   string  `json:"failed_at,omitempty"` // name of the check that stopped the run
	CheckCount int     `json:"check_count"`
	Duration   *string `json:"duration,omitempty"`
	StartedAt  string  `json:"started_at"`
}

// GetWorkspaceStats returns run counts and the latest runs of a workspace
func (s *Storage) GetWorkspaceStats(workspace string, limit int) (*WorkspaceStats, error) {
	stats := &WorkspaceStats{Workspace: workspace, Latest: make([]RunDigest, 0)}

	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM runs WHERE workspace = ?`,
		workspace,
	).Scan(&stats.TotalRuns, &stats.Passed, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	// Only the last invoked check of a run can have failed
	rows, err := s.db.Query(`
		SELECT
			r.id,
			r.status,
			r.exit_code,
			r.duration,
			r.started_at,
			COUNT(ce.id) AS check_count,
			COALESCE((SELECT name FROM check_executions
				WHERE run_id = r.id AND status = 'failed'
				ORDER BY position DESC LIMIT 1), '') AS failed_at
		FROM runs r
		LEFT JOIN check_executions ce ON r.id = ce.run_id
		WHERE r.workspace = ?
		GROUP BY r.id, r.status, r.exit_code, r.duration, r.started_at
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?`,
		workspace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d RunDigest
		var exitCode sql.NullInt64
		var duration sql.NullString

		if err := rows.Scan(&d.RunID, &d.Status, &exitCode, &duration, &d.StartedAt, &d.CheckCount, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}

		if exitCode.Valid {
			code := int(exitCode.Int64)
			d.ExitCode = &code
		}
		if duration.Valid {
			durationStr := duration.String
			d.Duration = &durationStr
		}

		stats.Latest = append(stats.Latest, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stats.Latest) > 0 {
		stats.LastStatus = stats.Latest[0].Status
	}

	return stats, nil
}
