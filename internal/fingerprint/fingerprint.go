// Package fingerprint computes and persists a per-project content-hash
// record used by the build task to decide whether a project's inputs
// have changed since its last successful build (spec.md §4.6). File
// discovery prefers `git ls-files`, falling back to a directory walk,
// the same two-tier strategy the teacher's snapshot scanner uses for
// listing a repo's tracked files.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Record is the persisted per-project fingerprint: one content hash per
// tracked file, plus the exact command line the build was invoked with.
type Record struct {
	Files   map[string]string `json:"files"`
	Command string            `json:"command"`
}

// FileName is the conventional per-project fingerprint file (spec.md §6).
const FileName = "package-deps.json"

// Compute walks projectDir's tracked source set and returns a Record with
// one sha256 hex digest per relative file path, paired with command (the
// exact invocation the caller is about to run, recorded for later
// comparison).
func Compute(ctx context.Context, projectDir, command string) (*Record, error) {
	files, err := listTrackedFiles(ctx, projectDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: listing files in %s: %w", projectDir, err)
	}

	hashes := make(map[string]string, len(files))
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(projectDir, rel))
		if err != nil {
			return nil, fmt.Errorf("fingerprint: reading %s: %w", rel, err)
		}
		sum := sha256.Sum256(data)
		hashes[rel] = hex.EncodeToString(sum[:])
	}
	return &Record{Files: hashes, Command: command}, nil
}

// Load reads a persisted Record from <projectDir>/package-deps.json. A
// missing file returns (nil, nil): no prior fingerprint, so the caller
// must treat the project as changed.
func Load(projectDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fingerprint: reading %s: %w", FileName, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("fingerprint: parsing %s: %w", FileName, err)
	}
	return &rec, nil
}

// Save persists rec to <projectDir>/package-deps.json. Called only after
// a Success terminal status, per spec.md §4.8 step 8.
func Save(projectDir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("fingerprint: marshaling record: %w", err)
	}
	path := filepath.Join(projectDir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("fingerprint: writing %s: %w", path, err)
	}
	return nil
}

// Remove deletes a project's persisted fingerprint file, if present. Used
// before starting a build (spec.md §4.8 step 4) so an interrupted run
// cannot be mistaken for a finished one.
func Remove(projectDir string) error {
	err := os.Remove(filepath.Join(projectDir, FileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fingerprint: removing %s: %w", FileName, err)
	}
	return nil
}

// Unchanged reports whether prev matches cur: identical file keyset,
// identical hash for every key, and identical command line. A nil prev
// is never unchanged.
func Unchanged(prev, cur *Record) bool {
	if prev == nil || cur == nil {
		return false
	}
	if prev.Command != cur.Command {
		return false
	}
	if len(prev.Files) != len(cur.Files) {
		return false
	}
	for path, hash := range cur.Files {
		if prev.Files[path] != hash {
			return false
		}
	}
	return true
}

// listTrackedFiles lists projectDir's files relative to itself, preferring
// `git ls-files` (scoped to the project's subtree) and falling back to a
// recursive walk that skips hidden entries and the fingerprint file itself.
func listTrackedFiles(ctx context.Context, projectDir string) ([]string, error) {
	if files, err := gitLsFiles(ctx, projectDir); err == nil {
		return files, nil
	}
	return walkFiles(projectDir)
}

func gitLsFiles(ctx context.Context, projectDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files")
	cmd.Dir = projectDir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != FileName {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

func walkFiles(projectDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != projectDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") || info.Name() == FileName {
			return nil
		}
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", projectDir, err)
	}
	sort.Strings(files)
	return files, nil
}
