// Package planner implements the install planner (spec.md §4.3): it
// computes implicitly-pinned external dependency versions, decides which
// of a project's dependencies resolve to a local workspace project
// (local_link edges) versus an external stub dependency, packages each
// project's stub manifest, assembles the synthesized common manifest,
// and renders a validity verdict for the committed lockfile.
package planner

import (
	"fmt"
	"sort"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/lockfile"
	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/stubpkg"
	"github.com/forgetool/forge/internal/workspace"
)

// Verdict reports whether the committed lockfile is valid against the
// current workspace state, with a reason per violation found.
type Verdict struct {
	Valid   bool
	Reasons []string
}

// Result is the install planner's full output.
type Result struct {
	CommonManifest *pkgmanifest.Manifest
	StubManifests  map[string]*pkgmanifest.Manifest // project name -> stub
	LocalLinks     map[string][]string              // project name -> local dep project names
	Verdict        Verdict
}

// Options configures a planning run.
type Options struct {
	// ExplicitPins are operator-declared pins that override any
	// implicitly-computed pin for the same dependency name.
	ExplicitPins map[string]string
	// CommonTempDir is where per-project stub archives are written.
	CommonTempDir string
	// CommonManifestName is the synthesized common manifest's own name.
	CommonManifestName string
}

// Plan runs the install planner over w, consulting lock (may be nil, in
// which case the verdict is invalid with the single reason "no lockfile
// loaded") and resolver for
// range satisfaction.
func Plan(w *workspace.Workspace, lock *lockfile.Adapter, resolver *semver.Resolver, opts Options) (*Result, error) {
	if resolver == nil {
		resolver = semver.NewResolver(nil)
	}

	pins := computeImplicitPins(w, resolver)
	for name, rng := range opts.ExplicitPins {
		pins[name] = rng
	}

	stubs := make(map[string]*pkgmanifest.Manifest, len(w.Projects))
	links := make(map[string][]string, len(w.Projects))
	pairsByProject := make(map[string]map[string]string) // project -> external dep name -> range, for verdict

	for _, p := range w.Projects {
		depRanges := p.Manifest.AllDependencyRanges()
		stubDeps := make(map[string]string)
		extPairs := make(map[string]string)
		var localLinks []string

		names := make([]string, 0, len(depRanges))
		for name := range depRanges {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			rng := depRanges[name]
			local := w.ByName(name)
			if local != nil && !p.CyclicExemptions[name] && resolver.Satisfies(local.Manifest.Version, rng) {
				localLinks = append(localLinks, name)
				continue
			}
			stubDeps[name] = rng
			extPairs[name] = rng
		}

		stub := &pkgmanifest.Manifest{
			Name:                 p.TempName,
			Version:              "0.0.0",
			Private:              true,
			Dependencies:         stubDeps,
			OptionalDependencies: cloneMap(p.Manifest.OptionalDependencies),
		}
		stubs[p.PackageName] = stub
		links[p.PackageName] = localLinks
		pairsByProject[p.PackageName] = extPairs
	}

	common := buildCommonManifest(w, pins, opts)

	verdict := validateLockfile(w, lock, pins, pairsByProject)

	return &Result{
		CommonManifest: common,
		StubManifests:  stubs,
		LocalLinks:     links,
		Verdict:        verdict,
	}, nil
}

// computeImplicitPins collects, for every dependency name that is not a
// local workspace project, the set of distinct ranges used across all
// projects. A name with exactly one distinct range is implicitly pinned
// to that range.
func computeImplicitPins(w *workspace.Workspace, resolver *semver.Resolver) map[string]string {
	ranges := make(map[string]map[string]bool)
	for _, p := range w.Projects {
		for name, rng := range p.Manifest.AllDependencyRanges() {
			if w.ByName(name) != nil {
				continue // local project, not an external pin candidate
			}
			if ranges[name] == nil {
				ranges[name] = make(map[string]bool)
			}
			ranges[name][rng] = true
		}
	}
	pins := make(map[string]string)
	for name, set := range ranges {
		if len(set) == 1 {
			for rng := range set {
				pins[name] = rng
			}
		}
	}
	return pins
}

// buildCommonManifest assembles the synthesized common manifest: one
// entry per pinned external name+version (sorted), plus one entry per
// project pointing at its stub archive via a file-path specifier.
func buildCommonManifest(w *workspace.Workspace, pins map[string]string, opts Options) *pkgmanifest.Manifest {
	deps := make(map[string]string, len(pins)+len(w.Projects))
	for name, rng := range pins {
		deps[name] = rng
	}
	for _, p := range w.Projects {
		archivePath := stubpkg.ArchivePath(opts.CommonTempDir, p.UnscopedTempName)
		deps[p.TempName] = "file:" + archivePath
	}
	name := opts.CommonManifestName
	if name == "" {
		name = "common"
	}
	return &pkgmanifest.Manifest{
		Name:         name,
		Version:      "0.0.0",
		Private:      true,
		Dependencies: deps,
	}
}

// validateLockfile implements spec.md §4.3 step 6. The verdict is
// INVALID if any pinned (name,range) has no compatible dependency, any
// stub (name,range) is not satisfied under that stub's temp-project
// scope, or any lockfile temp-project name has no corresponding
// workspace project (orphan).
func validateLockfile(w *workspace.Workspace, lock *lockfile.Adapter, pins map[string]string, pairsByProject map[string]map[string]string) Verdict {
	if lock == nil {
		return Verdict{Valid: false, Reasons: []string{"no lockfile loaded"}}
	}

	var reasons []string

	pinNames := make([]string, 0, len(pins))
	for name := range pins {
		pinNames = append(pinNames, name)
	}
	sort.Strings(pinNames)
	for _, name := range pinNames {
		rng := pins[name]
		if !lock.HasCompatible(name, rng, "") {
			reasons = append(reasons, fmt.Sprintf("pinned dependency %s@%s has no compatible lockfile entry", name, rng))
		}
	}

	projectNames := make([]string, 0, len(pairsByProject))
	for name := range pairsByProject {
		projectNames = append(projectNames, name)
	}
	sort.Strings(projectNames)
	for _, projName := range projectNames {
		p := w.ByName(projName)
		extPairs := pairsByProject[projName]
		depNames := make([]string, 0, len(extPairs))
		for name := range extPairs {
			depNames = append(depNames, name)
		}
		sort.Strings(depNames)
		for _, name := range depNames {
			rng := extPairs[name]
			if !lock.HasCompatible(name, rng, p.TempName) {
				reasons = append(reasons, fmt.Sprintf("project %s: stub dependency %s@%s has no compatible lockfile entry", projName, name, rng))
			}
		}
	}

	for _, tempName := range lock.TempProjectNames() {
		if findProjectByUnscopedTempName(w, tempName) == nil {
			reasons = append(reasons, fmt.Sprintf("orphaned temp project %q has no corresponding workspace project", tempName))
		}
	}

	return Verdict{Valid: len(reasons) == 0, Reasons: reasons}
}

func findProjectByUnscopedTempName(w *workspace.Workspace, unscoped string) *workspace.ProjectDescriptor {
	for _, p := range w.Projects {
		if p.UnscopedTempName == unscoped {
			return p
		}
	}
	return nil
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WriteStubArchives packages and writes every project's stub manifest to
// its deterministic archive path, returning the set of project names
// whose archive content actually changed (for logging/telemetry).
func WriteStubArchives(w *workspace.Workspace, plan *Result, commonTempDir string) ([]string, error) {
	var changed []string
	for _, p := range w.Projects {
		stub, ok := plan.StubManifests[p.PackageName]
		if !ok {
			continue
		}
		path := stubpkg.ArchivePath(commonTempDir, p.UnscopedTempName)
		did, err := stubpkg.Write(path, stub)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.TransientIO, err, "planner: writing stub archive for %s", p.PackageName)
		}
		if did {
			changed = append(changed, p.PackageName)
		}
	}
	sort.Strings(changed)
	return changed, nil
}
