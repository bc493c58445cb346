package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_state (
		task_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		output_hash TEXT NOT NULL DEFAULT '',
		output_mod_time INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL,
		FOREIGN KEY (build_id) REFERENCES builds(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_outcomes_build
		ON task_outcomes(build_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
