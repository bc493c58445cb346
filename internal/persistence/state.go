package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetTaskState retrieves the stored incremental state of a task.
// Returns a wrapped ErrNotFound if the task has never recorded state.
func (s *SQLiteStore) GetTaskState(ctx context.Context, taskID string) (*TaskState, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	state := &TaskState{}
	var modTime, updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, fingerprint, output_hash, output_mod_time, updated_at
		FROM task_state
		WHERE task_id = ?
	`, taskID).Scan(&state.TaskID, &state.Fingerprint, &state.OutputHash, &modTime, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no state for task %q: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task state: %w", err)
	}

	if modTime != 0 {
		state.OutputModTime = time.Unix(0, modTime)
	}
	state.UpdatedAt = time.Unix(0, updatedAt)
	return state, nil
}

// SaveTaskState stores the incremental state of a task, replacing any previous value.
func (s *SQLiteStore) SaveTaskState(ctx context.Context, state *TaskState) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if state.TaskID == "" {
		return errors.New("task state requires a task ID")
	}

	var modTime int64
	if !state.OutputModTime.IsZero() {
		modTime = state.OutputModTime.UnixNano()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_state (task_id, fingerprint, output_hash, output_mod_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			output_hash = excluded.output_hash,
			output_mod_time = excluded.output_mod_time,
			updated_at = excluded.updated_at
	`, state.TaskID, state.Fingerprint, state.OutputHash, modTime, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save task state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteTaskState forgets the stored state of a task. Deleting missing state is not an error.
func (s *SQLiteStore) DeleteTaskState(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_state WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete task state: %w", err)
	}
	return nil
}
