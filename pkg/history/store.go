package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/swebench-aug/strengthen/pkg/models"
)

// RecordRun upserts a run's identity row: the first call for a run_id
// inserts it, and later calls update only FinishedAt.
func (c *Client) RecordRun(ctx context.Context, run models.RunRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, benchmark, model, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET finished_at = EXCLUDED.finished_at`,
		run.RunID, run.Benchmark, run.Model, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("history: recording run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordPhaseOutcome upserts one (run, instance, phase) outcome row.
func (c *Client) RecordPhaseOutcome(ctx context.Context, runID, instanceID, phase string, outcome models.PhaseOutcome) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO phase_outcomes (run_id, instance_id, phase, status, coverage_rate, duration_millis, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (run_id, instance_id, phase) DO UPDATE SET
			status = EXCLUDED.status,
			coverage_rate = EXCLUDED.coverage_rate,
			duration_millis = EXCLUDED.duration_millis,
			error = EXCLUDED.error,
			updated_at = now()`,
		runID, instanceID, phase, outcome.Status, nullableFloat(outcome.CoverageRate), outcome.DurationMillis, nullableString(outcome.Error))
	if err != nil {
		return fmt.Errorf("history: recording phase outcome %s/%s/%s: %w", runID, instanceID, phase, err)
	}
	return nil
}

// Summary aggregates pass/fail/error counts per phase for a run.
func (c *Client) Summary(ctx context.Context, runID string) (models.RunSummary, error) {
	var run models.RunRecord
	var finishedAt sql.NullTime
	row := c.db.QueryRowContext(ctx, `SELECT run_id, benchmark, model, started_at, finished_at FROM runs WHERE run_id = $1`, runID)
	if err := row.Scan(&run.RunID, &run.Benchmark, &run.Model, &run.StartedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RunSummary{}, fmt.Errorf("history: run %s: %w", runID, ErrRunNotFound)
		}
		return models.RunSummary{}, fmt.Errorf("history: fetching run %s: %w", runID, err)
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT phase, status, COUNT(*) FROM phase_outcomes
		WHERE run_id = $1 GROUP BY phase, status`, runID)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("history: aggregating phase outcomes for %s: %w", runID, err)
	}
	defer rows.Close()

	summary := models.RunSummary{Run: run, PhaseCounts: map[string]models.PhaseCount{}}
	instances := map[string]bool{}
	for rows.Next() {
		var phase, status string
		var count int
		if err := rows.Scan(&phase, &status, &count); err != nil {
			return models.RunSummary{}, fmt.Errorf("history: scanning phase outcome row: %w", err)
		}
		pc := summary.PhaseCounts[phase]
		switch status {
		case "ok", "passed":
			pc.Passed += count
		case "error":
			pc.Errored += count
		default:
			pc.Failed += count
		}
		summary.PhaseCounts[phase] = pc
	}
	if err := rows.Err(); err != nil {
		return models.RunSummary{}, err
	}

	instRows, err := c.db.QueryContext(ctx, `SELECT DISTINCT instance_id FROM phase_outcomes WHERE run_id = $1`, runID)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("history: counting instances for %s: %w", runID, err)
	}
	defer instRows.Close()
	for instRows.Next() {
		var id string
		if err := instRows.Scan(&id); err != nil {
			return models.RunSummary{}, err
		}
		instances[id] = true
	}
	summary.InstanceCount = len(instances)
	return summary, nil
}

// ListRuns returns run records matching filters, most recently started
// first.
func (c *Client) ListRuns(ctx context.Context, filters models.RunFilters) ([]models.RunRecord, error) {
	query := `SELECT run_id, benchmark, model, started_at, finished_at FROM runs WHERE 1=1`
	var args []any
	idx := 1
	if filters.Benchmark != "" {
		query += fmt.Sprintf(" AND benchmark = $%d", idx)
		args = append(args, filters.Benchmark)
		idx++
	}
	if filters.Model != "" {
		query += fmt.Sprintf(" AND model = $%d", idx)
		args = append(args, filters.Model)
		idx++
	}
	query += " ORDER BY started_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filters.Limit)
		idx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, filters.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Benchmark, &r.Model, &r.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("history: scanning run row: %w", err)
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullableFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
