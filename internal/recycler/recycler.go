// Package recycler implements the "rename-into-holding-directory, then
// bulk delete" pattern the installer driver uses for folder teardown
// (spec.md §4.4): renaming is near-instant even for a huge node_modules-
// scale tree, so the caller's critical path only pays for the rename,
// and the expensive recursive delete happens asynchronously afterward.
package recycler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Ticket identifies one recycled path pending purge.
type Ticket struct {
	holdingPath string
}

// Recycler owns a per-run holding directory under which recycled paths
// are renamed before being purged.
type Recycler struct {
	baseDir string
}

// New creates a Recycler rooted at baseDir (created on first use).
func New(baseDir string) *Recycler {
	return &Recycler{baseDir: baseDir}
}

// Recycle renames path into the recycler's holding directory and returns
// a Ticket for later purging. A path that does not exist is a no-op,
// returning a zero Ticket (Purge on it is also a no-op).
func (r *Recycler) Recycle(path string) (Ticket, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Ticket{}, nil
	}

	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return Ticket{}, fmt.Errorf("recycler: creating holding directory %s: %w", r.baseDir, err)
	}

	holding := filepath.Join(r.baseDir, fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(path)))
	if err := os.Rename(path, holding); err != nil {
		return Ticket{}, fmt.Errorf("recycler: renaming %s into holding directory: %w", path, err)
	}
	return Ticket{holdingPath: holding}, nil
}

// Purge recursively removes every ticket's holding path. It is safe to
// run detached from the caller's critical path (spec.md §5's "shared
// resources" note: the recycler is append-only until purge).
func Purge(tickets []Ticket) error {
	var firstErr error
	for _, t := range tickets {
		if t.holdingPath == "" {
			continue
		}
		if err := os.RemoveAll(t.holdingPath); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recycler: purging %s: %w", t.holdingPath, err)
		}
	}
	return firstErr
}
