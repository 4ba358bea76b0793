// Package installer implements the installer driver state machine
// (spec.md §4.4): a three-mode decision over whether to run the external
// installer subprocess at all, how aggressively to tear down prior
// state first, and retrying the subprocess itself a bounded number of
// times.
package installer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/procrun"
	"github.com/forgetool/forge/internal/recycler"
)

// Mode selects how aggressively the driver tears down prior state
// before installing.
type Mode int

const (
	Normal Mode = iota
	ForceClean
	UnsafePurge
)

// DefaultRetryAttempts is the fixed attempt count for the installer
// subprocess (spec.md §4.4: "up to a fixed attempt count (e.g., 5)").
const DefaultRetryAttempts = 5

// DefaultRetryDelay is the pause between installer subprocess attempts.
const DefaultRetryDelay = 2 * time.Second

// Inputs names every path the driver reads or mutates.
type Inputs struct {
	RepoRoot          string
	MarkerPath        string   // success-marker file
	ModulesDir        string   // shared-modules folder
	LockfilePath      string   // committed lockfile
	StubArchivePaths  []string // every project's stub archive
	InstallCacheDir   string   // ForceClean target
	TransientDir      string   // ForceClean target
	ToolVersionMarker string   // UnsafePurge target
	TempScopeDir      string   // reserved-temp-scope subtree under ModulesDir

	InstallerCommand string
	InstallerArgs    []string
}

// Result reports what the driver did.
type Result struct {
	Skipped bool
	Output  string
}

// Run executes the installer driver's decision procedure and, unless
// skipped, invokes the installer subprocess with retry.
func Run(ctx context.Context, in Inputs, mode Mode, rec *recycler.Recycler) (Result, error) {
	changed, err := anyNewerThanMarker(in)
	if err != nil {
		return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: checking mtimes")
	}
	if !changed {
		return Result{Skipped: true}, nil
	}

	hadPriorMarker := fileExists(in.MarkerPath)
	if err := os.Remove(in.MarkerPath); err != nil && !os.IsNotExist(err) {
		return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: removing success marker")
	}

	var tickets []recycler.Ticket

	switch {
	case mode == Normal && hadPriorMarker:
		if err := os.RemoveAll(in.TempScopeDir); err != nil && !os.IsNotExist(err) {
			return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: clearing reserved temp scope")
		}
	case mode == Normal && !hadPriorMarker:
		t, err := rec.Recycle(in.ModulesDir)
		if err != nil {
			return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: recycling shared-modules folder after crashed install")
		}
		tickets = append(tickets, t)
	}

	if mode == ForceClean || mode == UnsafePurge {
		for _, dir := range []string{in.InstallCacheDir, in.TransientDir} {
			t, err := rec.Recycle(dir)
			if err != nil {
				return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: recycling %s", dir)
			}
			tickets = append(tickets, t)
		}
	}
	if mode == UnsafePurge {
		t, err := rec.Recycle(in.ToolVersionMarker)
		if err != nil {
			return Result{}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: recycling tool-version marker")
		}
		tickets = append(tickets, t)
	}

	// Teardown is append-only/asynchronous in principle; purging here
	// kicks off before the expensive install runs (spec.md §4.4).
	go func() {
		_ = recycler.Purge(tickets)
	}()

	res, err := procrun.RunWithRetry(ctx, in.RepoRoot, DefaultRetryAttempts, DefaultRetryDelay, in.InstallerCommand, in.InstallerArgs...)
	if err != nil {
		return Result{Output: res.Output}, forgeerr.Wrap(forgeerr.Installer, err, "installer: subprocess failed after %d attempts", DefaultRetryAttempts)
	}

	if err := touch(in.MarkerPath); err != nil {
		return Result{Output: res.Output}, forgeerr.Wrap(forgeerr.TransientIO, err, "installer: recreating success marker")
	}

	return Result{Output: res.Output}, nil
}

// anyNewerThanMarker reports whether the shared-modules folder, the
// committed lockfile, or any stub archive has an mtime newer than the
// success marker. A missing marker counts as "everything is newer".
func anyNewerThanMarker(in Inputs) (bool, error) {
	markerInfo, err := os.Stat(in.MarkerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	markerTime := markerInfo.ModTime()

	candidates := append([]string{in.ModulesDir, in.LockfilePath}, in.StubArchivePaths...)
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, err
		}
		if info.ModTime().After(markerTime) {
			return true, nil
		}
	}
	return false, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// touch creates path (and its parent directory) if absent, or updates
// its mtime to now if present.
func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
