package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/reportagg/internal/reporting"
)

// Availability is the tri-state of a report slot at execution time.
type Availability int

const (
	Available Availability = iota // Enabled and present on disk
	Missing                       // Enabled but not produced or unreadable
	Disabled                      // Switched off; never listed
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Missing:
		return "unavailable"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Artifact describes a report found on disk. Directory reports (an HTML
// report tree) are summarized by their total size and newest file.
type Artifact struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// ProbePolicy bounds retries of transient artifact read errors.
type ProbePolicy struct {
	Interval   time.Duration
	MaxRetries uint64
}

// DefaultProbePolicy retries twice, 20ms apart.
func DefaultProbePolicy() ProbePolicy {
	return ProbePolicy{Interval: 20 * time.Millisecond, MaxRetries: 2}
}

// probe inspects the artifact at path. A missing artifact fails immediately
// with an fs.ErrNotExist error; other read errors are retried.
func probe(ctx context.Context, path string, policy ProbePolicy) (Artifact, error) {
	var art Artifact

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		found, err := inspect(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}
		art = found
		return nil
	}

	policyWithLimit := backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), policy.MaxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policyWithLimit, ctx)); err != nil {
		return Artifact{}, err
	}
	return art, nil
}

func inspect(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}

	art := Artifact{Path: path, ModTime: info.ModTime()}
	if !info.IsDir() {
		// Readability check: the composer must be able to link something real
		f, err := os.Open(path)
		if err != nil {
			return Artifact{}, err
		}
		f.Close()
		art.Size = info.Size()
		return art, nil
	}

	art.IsDir = true
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		art.Size += fi.Size()
		if fi.ModTime().After(art.ModTime) {
			art.ModTime = fi.ModTime()
		}
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return art, nil
}

// slotStatus is the resolved state of one slot.
type slotStatus struct {
	Availability Availability
	Artifact     Artifact
	Path         string
	Problem      string
}

// resolveSlot evaluates a slot's enabled flag and location, then probes the artifact.
func resolveSlot(ctx context.Context, slot reporting.Slot, policy ProbePolicy) slotStatus {
	if !slot.IsEnabled() {
		return slotStatus{Availability: Disabled}
	}
	if slot.Location == nil {
		return slotStatus{Availability: Missing, Problem: "no output location configured"}
	}

	path, err := slot.Location()
	if err != nil {
		return slotStatus{Availability: Missing, Problem: fmt.Sprintf("resolving location: %v", err)}
	}
	if path == "" {
		return slotStatus{Availability: Missing, Problem: "empty output location"}
	}

	art, err := probe(ctx, path, policy)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return slotStatus{Availability: Missing, Path: path, Problem: "not produced"}
	case err != nil:
		return slotStatus{Availability: Missing, Path: path, Problem: err.Error()}
	}
	return slotStatus{Availability: Available, Path: path, Artifact: art}
}
