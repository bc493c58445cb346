package aggregate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/aristath/reportagg/internal/persistence"
	"github.com/aristath/reportagg/internal/reporting"
)

// StateStore is the slice of persistence the tracker needs.
type StateStore interface {
	GetTaskState(ctx context.Context, taskID string) (*persistence.TaskState, error)
	SaveTaskState(ctx context.Context, state *persistence.TaskState) error
}

// Freshness is the state of the aggregate output relative to its inputs.
type Freshness int

const (
	Stale Freshness = iota
	UpToDate
)

func (f Freshness) String() string {
	if f == UpToDate {
		return "up-to-date"
	}
	return "stale"
}

// Decision is the tracker's verdict and why it was reached.
type Decision struct {
	State  Freshness
	Reason string
}

// Tracker decides whether an aggregate output must be rebuilt.
type Tracker struct {
	store  StateStore
	taskID string
	output string
	policy ProbePolicy
}

// NewTracker creates a tracker for the aggregate written to output by taskID.
func NewTracker(store StateStore, taskID, output string, policy ProbePolicy) *Tracker {
	return &Tracker{store: store, taskID: taskID, output: output, policy: policy}
}

// Check compares the current fingerprint and available artifacts with the
// state stored after the last successful aggregation.
func (t *Tracker) Check(ctx context.Context, fingerprint string, producers []reporting.Producer) (Decision, error) {
	state, err := t.store.GetTaskState(ctx, t.taskID)
	if errors.Is(err, persistence.ErrNotFound) {
		return Decision{Stale, "no previous aggregation recorded"}, nil
	}
	if err != nil {
		return Decision{Stale, "task state unreadable"}, fmt.Errorf("loading state of %q: %w", t.taskID, err)
	}

	if state.Fingerprint != fingerprint {
		return Decision{Stale, "enabled reports changed"}, nil
	}

	hash, err := hashFile(t.output)
	if errors.Is(err, fs.ErrNotExist) {
		return Decision{Stale, "aggregate output missing"}, nil
	}
	if err != nil {
		return Decision{Stale, "aggregate output unreadable"}, nil
	}
	if hash != state.OutputHash {
		return Decision{Stale, "aggregate output modified"}, nil
	}

	for _, p := range producers {
		for _, slot := range p.Slots {
			status := resolveSlot(ctx, slot, t.policy)
			if status.Availability != Available {
				continue
			}
			if status.Artifact.ModTime.After(state.OutputModTime) {
				return Decision{Stale, fmt.Sprintf("report %s/%s is newer than the aggregate", p.TaskID, slot.Name)}, nil
			}
		}
	}

	return Decision{UpToDate, "nothing changed"}, nil
}

// Record stores the state of a freshly written aggregate.
func (t *Tracker) Record(ctx context.Context, fingerprint, hash string, modTime time.Time) error {
	return t.store.SaveTaskState(ctx, &persistence.TaskState{
		TaskID:        t.taskID,
		Fingerprint:   fingerprint,
		OutputHash:    hash,
		OutputModTime: modTime,
	})
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
