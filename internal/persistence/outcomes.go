package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordOutcome appends the outcome of a task for a build.
// The build row is created on first use.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if rec.BuildID == "" || rec.TaskID == "" {
		return errors.New("outcome requires build ID and task ID")
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (id, started_at)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.BuildID, recordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save build: %w", err)
	}

	// Outcomes are append-only
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_outcomes (build_id, task_id, status, reason, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.BuildID, rec.TaskID, rec.Status, rec.Reason, rec.Error, recordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListOutcomes returns the outcomes recorded for a build in recording order.
// Returns empty slice (not nil) if nothing was recorded.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, buildID string) ([]OutcomeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, task_id, status, reason, error, recorded_at
		FROM task_outcomes
		WHERE build_id = ?
		ORDER BY id ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []OutcomeRecord{}
	for rows.Next() {
		var rec OutcomeRecord
		var recordedAt int64
		if err := rows.Scan(&rec.BuildID, &rec.TaskID, &rec.Status, &rec.Reason, &rec.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		rec.RecordedAt = time.Unix(0, recordedAt)
		outcomes = append(outcomes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}
