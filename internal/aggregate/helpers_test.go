package aggregate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aristath/reportagg/internal/persistence"
	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// outcomeMap is a fixed set of task outcomes.
type outcomeMap map[string]scheduler.TaskStatus

func (m outcomeMap) Outcome(taskID string) scheduler.TaskStatus { return m[taskID] }

// planSet is a fixed execution plan.
type planSet map[string]bool

func (p planSet) Includes(taskID string) bool { return p[taskID] }

// capturingRenderer renders HTML and keeps the last document.
type capturingRenderer struct {
	mu    sync.Mutex
	last  *Document
	calls int
}

func (c *capturingRenderer) Render(w io.Writer, doc Document) error {
	c.mu.Lock()
	c.last = &doc
	c.calls++
	c.mu.Unlock()
	return HTMLRenderer{}.Render(w, doc)
}

func (c *capturingRenderer) document() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// row is the comparable part of an entry.
type row struct {
	Producer     string
	Slot         string
	Availability Availability
}

func rows(doc Document) []row {
	out := []row{}
	for _, e := range doc.Entries {
		out = append(out, row{e.Producer, e.Slot, e.Availability})
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func memoryStore(t *testing.T) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func producer(id, testType string, slots ...reporting.Slot) reporting.Producer {
	return reporting.Producer{TaskID: id, TestType: testType, Slots: slots}
}

func slot(name, path string, enabled func() bool) reporting.Slot {
	return reporting.Slot{Name: name, Enabled: enabled, Location: reporting.Fixed(path)}
}

func off() bool { return false }
