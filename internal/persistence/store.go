package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("not found")

// TaskState is the incremental state a task keeps between build invocations.
type TaskState struct {
	TaskID        string
	Fingerprint   string    // Shape of the task's inputs at the last successful run
	OutputHash    string    // Content hash of the task's output at the last successful run
	OutputModTime time.Time // Modification time of the output at the last successful run
	UpdatedAt     time.Time
}

// OutcomeRecord is the outcome of one task in one build invocation.
type OutcomeRecord struct {
	BuildID    string
	TaskID     string
	Status     string
	Reason     string // Skip reason, if any
	Error      string
	RecordedAt time.Time
}

// Store defines the persistence interface for task state and build outcomes.
type Store interface {
	// Incremental task state, keyed by task ID
	GetTaskState(ctx context.Context, taskID string) (*TaskState, error)
	SaveTaskState(ctx context.Context, state *TaskState) error
	DeleteTaskState(ctx context.Context, taskID string) error

	// Outcome history, keyed by build ID
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
	ListOutcomes(ctx context.Context, buildID string) ([]OutcomeRecord, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Every store gets its own named database so parallel tests do not share state.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:memdb-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Allow 2 connections: one for primary queries, one for subqueries
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
