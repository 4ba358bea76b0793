// Package changeset implements the change-request pipeline: it reads the
// per-commit change files authored under the changes/ folder, aggregates
// them per package, propagates version bumps through the dependency
// graph with range-satisfaction logic for dependents, and finally
// rewrites manifests and changelogs in dependency order (spec.md §4.11).
package changeset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

// ChangeInfo is one entry inside a change file's envelope.
type ChangeInfo struct {
	PackageName string           `json:"packageName"`
	Type        semver.ChangeKind `json:"-"`
	TypeRaw     string           `json:"type"`
	Comment     string           `json:"comment,omitempty"`
	Author      string           `json:"author,omitempty"`
	Commit      string           `json:"commit,omitempty"`
}

// ChangeFile is one `changes/<...>/<name>.json` envelope.
type ChangeFile struct {
	PackageName string       `json:"packageName"`
	Email       string       `json:"email,omitempty"`
	Changes     []ChangeInfo `json:"changes"`
}

// ReadChangeFiles reads and parses every *.json file found anywhere under
// changesDir.
func ReadChangeFiles(changesDir string) ([]*ChangeFile, error) {
	var files []*ChangeFile
	err := filepath.Walk(changesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("changeset: reading %s: %w", path, err)
		}
		var cf ChangeFile
		if err := json.Unmarshal(data, &cf); err != nil {
			return fmt.Errorf("changeset: parsing %s: %w", path, err)
		}
		for i := range cf.Changes {
			kind, perr := semver.ParseChangeKind(cf.Changes[i].TypeRaw)
			if perr != nil {
				return fmt.Errorf("changeset: %s: %w", path, perr)
			}
			cf.Changes[i].Type = kind
		}
		files = append(files, &cf)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("changeset: walking %s: %w", changesDir, err)
	}
	return files, nil
}

// PackageChange is the aggregated state for one package across the
// pipeline's propagation and ordering steps.
type PackageChange struct {
	PackageName string
	Kind        semver.ChangeKind
	Comments    []string
	CurrentVersion string
	NewVersion  string
	NewRange    string // the range a dependent should declare on this package's NewVersion, if this package is itself a dependency
	Order       int
	Skipped     bool
}

// Aggregate merges every incoming ChangeInfo per package, taking the
// maximum change kind and accumulating comments. Aggregation is
// commutative and idempotent: reapplying any subset in any order
// produces the same per-package kind (spec.md §8).
func Aggregate(files []*ChangeFile) map[string]*PackageChange {
	out := make(map[string]*PackageChange)
	for _, cf := range files {
		for _, c := range cf.Changes {
			pc, ok := out[c.PackageName]
			if !ok {
				pc = &PackageChange{PackageName: c.PackageName}
				out[c.PackageName] = pc
			}
			pc.Kind = semver.Max(pc.Kind, c.Type)
			if c.Comment != "" {
				pc.Comments = append(pc.Comments, c.Comment)
			}
		}
	}
	return out
}

// Options configures a pipeline run.
type Options struct {
	PrereleaseToken string          // non-empty enables "suffix mode"
	Exclude         map[string]bool // packages excluded from publishing this run
	AlwaysUpdate    bool            // in prerelease mode, always register dependency bumps unconditionally
}

// Run executes the full pipeline over an already-aggregated change set:
// skip-rule application, version computation, downstream propagation,
// order stamping, and returns the package changes sorted by ascending
// application order.
func Run(w *workspace.Workspace, resolver *semver.Resolver, aggregated map[string]*PackageChange, opts Options) ([]*PackageChange, error) {
	for name, pc := range aggregated {
		proj := w.ByName(name)
		if proj == nil {
			return nil, forgeerr.New(forgeerr.Validation, "change file references unknown package %q", name)
		}
		pc.CurrentVersion = proj.Manifest.Version
		applySkipRule(pc, proj, opts)
		if !pc.Skipped && pc.Kind >= semver.KindPatch {
			next, err := semver.Increment(pc.CurrentVersion, semver.ReleaseTypeFor(pc.Kind), opts.PrereleaseToken)
			if err != nil {
				return nil, fmt.Errorf("changeset: computing new version for %q: %w", name, err)
			}
			pc.NewVersion = next
		} else {
			pc.NewVersion = pc.CurrentVersion
		}
		if pc.NewVersion != "" {
			nextMajor, err := semver.NextMajor(pc.NewVersion)
			if err == nil {
				pc.NewRange = fmt.Sprintf(">=%s <%s", pc.NewVersion, nextMajor)
			}
		}
	}

	if err := propagate(w, resolver, aggregated, opts); err != nil {
		return nil, err
	}

	stampOrder(w, aggregated)

	result := make([]*PackageChange, 0, len(aggregated))
	for _, pc := range aggregated {
		result = append(result, pc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].PackageName < result[j].PackageName
	})
	return result, nil
}

// applySkipRule implements spec.md §4.11 step 3: a package is skipped if
// it's in prerelease-suffix mode, in the exclude set, or not publishable.
// A skipped package keeps its current version and its kind is downgraded
// to none.
func applySkipRule(pc *PackageChange, proj *workspace.ProjectDescriptor, opts Options) {
	if opts.PrereleaseToken != "" || opts.Exclude[pc.PackageName] || !proj.ShouldPublish {
		pc.Skipped = true
		pc.Kind = semver.KindNone
		pc.NewVersion = pc.CurrentVersion
	}
}

// propagate walks downstream from every bumped package and registers a
// dependency or patch change on each direct dependent, recursing through
// the newly-registered entries until the frontier is empty.
func propagate(w *workspace.Workspace, resolver *semver.Resolver, aggregated map[string]*PackageChange, opts Options) error {
	frontier := make([]string, 0, len(aggregated))
	for name, pc := range aggregated {
		if pc.NewVersion != pc.CurrentVersion || opts.AlwaysUpdate {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	visited := make(map[string]bool)
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		bumped := aggregated[name]
		if bumped == nil {
			continue
		}

		for _, depName := range w.Downstream(name) {
			depProj := w.ByName(depName)
			if depProj == nil {
				continue
			}
			rng, ok := depProj.Manifest.AllDependencyRanges()[name]
			if !ok {
				continue
			}

			kind := semver.KindDependency
			if !opts.AlwaysUpdate && !resolver.Satisfies(bumped.NewVersion, rng) {
				kind = semver.KindPatch
			}

			dpc, ok := aggregated[depName]
			if !ok {
				dpc = &PackageChange{PackageName: depName, CurrentVersion: depProj.Manifest.Version}
				aggregated[depName] = dpc
			}
			dpc.Kind = semver.Max(dpc.Kind, kind)
			applySkipRule(dpc, depProj, opts)
			if !dpc.Skipped && dpc.Kind >= semver.KindPatch && dpc.Kind != semver.KindDependency {
				next, err := semver.Increment(dpc.CurrentVersion, semver.ReleaseTypeFor(dpc.Kind), opts.PrereleaseToken)
				if err != nil {
					return fmt.Errorf("changeset: computing propagated version for %q: %w", depName, err)
				}
				dpc.NewVersion = next
			} else if dpc.NewVersion == "" {
				dpc.NewVersion = dpc.CurrentVersion
			}
			if dpc.NewVersion != "" {
				if nextMajor, err := semver.NextMajor(dpc.NewVersion); err == nil {
					dpc.NewRange = fmt.Sprintf(">=%s <%s", dpc.NewVersion, nextMajor)
				}
			}

			frontier = append(frontier, depName)
		}
	}
	return nil
}

// stampOrder assigns ascending application order: a dependent's order is
// always at least one more than every one of its bumped dependencies'
// orders (spec.md §4.11 step 6).
func stampOrder(w *workspace.Workspace, aggregated map[string]*PackageChange) {
	var names []string
	for name := range aggregated {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := true
	for changed {
		changed = false
		for _, name := range names {
			pc := aggregated[name]
			for _, depName := range w.Downstream(name) {
				dpc, ok := aggregated[depName]
				if !ok {
					continue
				}
				want := pc.Order + 1
				if dpc.Order < want {
					dpc.Order = want
					changed = true
				}
			}
		}
	}
}

// Apply rewrites each package's on-disk manifest (version + dependency
// ranges) and returns changelog entries grouped by package, in the same
// ascending-order sequence Run produced. Entries for skipped or
// unchanged-version packages are elided.
func Apply(w *workspace.Workspace, changes []*PackageChange) ([]ChangelogEntry, error) {
	var entries []ChangelogEntry
	for _, pc := range changes {
		proj := w.ByName(pc.PackageName)
		if proj == nil {
			continue
		}

		updated := proj.Manifest.Clone()
		updated.Version = pc.NewVersion
		rewriteRanges(updated.Dependencies, w, changes)
		rewriteRanges(updated.DevDependencies, w, changes)

		if err := updated.Save(filepath.Join(w.Repo.RootPath, proj.Folder, "package.json")); err != nil {
			return nil, fmt.Errorf("changeset: saving manifest for %q: %w", pc.PackageName, err)
		}
		proj.Manifest = updated

		if pc.Skipped || pc.NewVersion == pc.CurrentVersion {
			continue
		}
		entries = append(entries, ChangelogEntry{
			PackageName: pc.PackageName,
			Version:     pc.NewVersion,
			Kind:        pc.Kind,
			Comments:    pc.Comments,
		})
	}
	return entries, nil
}

// rewriteRanges updates every range in deps that points at a bumped
// package, preserving the caret/tilde/bare convention via semver.ReshapeRange.
func rewriteRanges(deps map[string]string, w *workspace.Workspace, changes []*PackageChange) {
	if deps == nil {
		return
	}
	byName := make(map[string]*PackageChange, len(changes))
	for _, pc := range changes {
		byName[pc.PackageName] = pc
	}
	for depName, rng := range deps {
		pc, ok := byName[depName]
		if !ok || pc.Skipped || pc.NewVersion == pc.CurrentVersion {
			continue
		}
		reshaped, err := semver.ReshapeRange(rng, pc.NewVersion)
		if err != nil {
			continue
		}
		deps[depName] = reshaped
	}
}

// ChangelogEntry is one rendered changelog addition for a package version.
type ChangelogEntry struct {
	PackageName string
	Version     string
	Kind        semver.ChangeKind
	Comments    []string
}
