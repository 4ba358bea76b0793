// Package linker implements the local symlink materialization step
// (spec.md §4.5): it consumes the install planner's local-link edges and
// creates per-project directory symlinks with os.Symlink on every platform
// (no directory junctions are created, including on Windows) into each
// consumer's modules folder, walking transitive
// indirect local dependencies so a project sees every local package it
// depends on even through another local package.
package linker

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/forgetool/forge/internal/forgeerr"
)

// FlagFileName is the per-project marker recording that linking
// succeeded. An install invalidates this flag by removing it.
const FlagFileName = ".forge-link-complete"

// ModulesDirName is the conventional per-project dependency directory
// symlinks are created under.
const ModulesDirName = "node_modules"

// Link materializes every project's local-link edges as symlinks.
// projectDirs maps project name to its absolute directory; links maps
// project name to the names of the local projects it depends on
// directly (the planner's LocalLinks output). Link resolves transitive
// indirect local deps by walking links recursively.
func Link(projectDirs map[string]string, links map[string][]string) error {
	for name := range links {
		deps := transitiveLocalDeps(name, links, make(map[string]bool))
		names := make([]string, 0, len(deps))
		for dep := range deps {
			names = append(names, dep)
		}
		sort.Strings(names)

		consumerDir, ok := projectDirs[name]
		if !ok {
			return forgeerr.New(forgeerr.Internal, "linker: unknown project %q", name)
		}
		modulesDir := filepath.Join(consumerDir, ModulesDirName)
		if err := os.MkdirAll(modulesDir, 0o755); err != nil {
			return forgeerr.Wrap(forgeerr.TransientIO, err, "linker: creating modules dir for %s", name)
		}

		for _, dep := range names {
			depDir, ok := projectDirs[dep]
			if !ok {
				return forgeerr.New(forgeerr.Internal, "linker: unknown local dependency %q of %q", dep, name)
			}
			linkPath := filepath.Join(modulesDir, filepath.Base(dep))
			if err := materializeLink(depDir, linkPath); err != nil {
				return forgeerr.Wrap(forgeerr.TransientIO, err, "linker: linking %s -> %s", linkPath, depDir)
			}
		}

		if err := touchFlag(consumerDir); err != nil {
			return forgeerr.Wrap(forgeerr.TransientIO, err, "linker: writing flag file for %s", name)
		}
	}
	return nil
}

// transitiveLocalDeps returns the set of every local project reachable
// from name via direct and indirect local-link edges.
func transitiveLocalDeps(name string, links map[string][]string, visited map[string]bool) map[string]bool {
	result := make(map[string]bool)
	for _, dep := range links[name] {
		if visited[dep] {
			continue
		}
		visited[dep] = true
		result[dep] = true
		for sub := range transitiveLocalDeps(dep, links, visited) {
			result[sub] = true
		}
	}
	return result
}

// materializeLink creates a platform-appropriate link at linkPath
// pointing at target, replacing any existing entry at linkPath.
func materializeLink(target, linkPath string) error {
	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(linkPath); err != nil {
				return err
			}
		} else {
			return forgeerr.New(forgeerr.Internal, "linker: refusing to replace non-symlink entry at %s", linkPath)
		}
	}

	if runtime.GOOS == "windows" {
		// os.Symlink creates a directory symbolic link here as well;
		// it never creates a directory junction.
		return os.Symlink(target, linkPath)
	}
	return os.Symlink(target, linkPath)
}

// touchFlag creates or refreshes the link-completion flag in dir.
func touchFlag(dir string) error {
	path := filepath.Join(dir, FlagFileName)
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

// Invalidate removes the link-completion flag for every project dir,
// called by the install command before the installer runs, and by unlink.
func Invalidate(projectDirs map[string]string) error {
	for _, dir := range projectDirs {
		path := filepath.Join(dir, FlagFileName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return forgeerr.Wrap(forgeerr.TransientIO, err, "linker: invalidating flag in %s", dir)
		}
	}
	return nil
}

// Linked reports whether the link-completion flag is present for dir.
func Linked(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FlagFileName))
	return err == nil
}
