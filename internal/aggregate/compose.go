package aggregate

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/aristath/reportagg/internal/logging"
	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// Entry is one report line of the aggregate document.
type Entry struct {
	Producer     string
	TestType     string
	Slot         string
	Availability Availability
	Path         string // Artifact location as resolved
	Href         string // Link relative to the aggregate's directory
	Size         int64
	IsDir        bool
	Outcome      scheduler.TaskStatus // Producer outcome in this build
	Problem      string               // Why the report is unavailable
}

// Document is the composed aggregate, ready for rendering.
type Document struct {
	Title   string
	Entries []Entry
}

// Counts returns how many entries are available and unavailable.
func (d Document) Counts() (available, unavailable int) {
	for _, e := range d.Entries {
		if e.Availability == Available {
			available++
		} else {
			unavailable++
		}
	}
	return available, unavailable
}

// Composer walks the discovered producers and builds the aggregate document.
type Composer struct {
	Title     string
	OutputDir string // Directory holding the aggregate, used for relative links
	Policy    ProbePolicy
	Logger    *slog.Logger
}

// Compose lists every enabled slot of every discovered producer, in
// discovery order then slot registration order. Enabled slots whose artifact
// is absent or unreadable are listed as unavailable; disabled slots are left out.
// A cancelled context aborts composition with the context's error.
func (c *Composer) Compose(ctx context.Context, producers []reporting.Producer, outcomes scheduler.Outcomes) (Document, error) {
	logger := c.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	doc := Document{Title: c.Title, Entries: []Entry{}}
	for _, p := range producers {
		outcome := outcomes.Outcome(p.TaskID)
		for _, slot := range p.Slots {
			status := resolveSlot(ctx, slot, c.Policy)
			if err := ctx.Err(); err != nil {
				return Document{}, err
			}
			if status.Availability == Disabled {
				continue
			}

			entry := Entry{
				Producer:     p.TaskID,
				TestType:     p.TestType,
				Slot:         slot.Name,
				Availability: status.Availability,
				Path:         status.Path,
				Outcome:      outcome,
				Problem:      status.Problem,
			}

			if status.Availability == Available {
				entry.Size = status.Artifact.Size
				entry.IsDir = status.Artifact.IsDir
				entry.Href = c.href(status.Path, status.Artifact.IsDir)
			} else if slot.Location == nil {
				logger.Warn("report slot has no output location", "producer", p.TaskID, "slot", slot.Name)
			} else {
				logger.Debug("report unavailable", "producer", p.TaskID, "slot", slot.Name, "reason", status.Problem)
			}

			doc.Entries = append(doc.Entries, entry)
		}
	}
	return doc, nil
}

func (c *Composer) href(path string, isDir bool) string {
	target := path
	if isDir {
		target = filepath.Join(path, "index.html")
	}

	if c.OutputDir != "" {
		absTarget, errT := filepath.Abs(target)
		absBase, errB := filepath.Abs(c.OutputDir)
		if errT == nil && errB == nil {
			if rel, err := filepath.Rel(absBase, absTarget); err == nil {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.ToSlash(target)
}
