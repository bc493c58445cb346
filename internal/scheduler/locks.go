package scheduler

import (
	"path/filepath"
	"sort"
	"sync"
)

// OutputLocks provides per-path mutual exclusion for tasks writing the same
// outputs. Each cleaned path gets its own mutex, so tasks writing different
// outputs run concurrently while tasks sharing an output are serialized.
type OutputLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewOutputLocks creates an empty lock set.
func NewOutputLocks() *OutputLocks {
	return &OutputLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (o *OutputLocks) get(path string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, exists := o.locks[path]
	if !exists {
		lock = &sync.Mutex{}
		o.locks[path] = lock
	}
	return lock
}

// Acquire locks every path and returns the function releasing them.
// Paths are cleaned, deduplicated and locked in sorted order to prevent deadlocks.
func (o *OutputLocks) Acquire(paths []string) (release func()) {
	keys := normalizePaths(paths)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		lock := o.get(key)
		lock.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func normalizePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
