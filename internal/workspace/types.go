// Package workspace loads, validates, and indexes a Forge repository: the
// root repository manifest and every project's package manifest. It
// computes the local dependency graph and its inverse (the downstream
// adjacency), the data C7's scheduler and C11's change pipeline both
// walk.
package workspace

import (
	"github.com/forgetool/forge/internal/pkgmanifest"
)

// ReservedTempScope is the artificial name prefix under which every
// project's stub archive is registered in the synthesized common
// manifest and queried in the lockfile.
const ReservedTempScope = "@forge-temp"

// RepoDescriptor is the parsed, validated repository manifest (spec.md §3).
type RepoDescriptor struct {
	RootPath string

	InstallerName    string
	InstallerVersion string
	LockfilePath     string

	ApprovedCategoriesEnabled bool
	ReviewCategories          map[string]bool

	AllowedEmailPatterns []string

	MinFolderDepth int
	MaxFolderDepth int

	TelemetryEnabled bool
}

// ProjectDescriptor is one project entry (spec.md §3).
type ProjectDescriptor struct {
	PackageName      string
	Folder           string // relative to repo root
	ReviewCategory   string
	CyclicExemptions map[string]bool
	VersionPolicyName string
	ShouldPublish    bool

	Manifest *pkgmanifest.Manifest

	TempName         string // "@forge-temp/<unscoped>"
	UnscopedTempName string
}

// Workspace is the fully loaded, indexed repository.
type Workspace struct {
	Repo     RepoDescriptor
	Projects []*ProjectDescriptor

	byName     map[string]*ProjectDescriptor
	byTempName map[string]*ProjectDescriptor

	// downstream maps a project name to the set of project names that
	// directly depend on it via a non-exempt, range-satisfying local
	// dependency edge.
	downstream map[string][]string
}

// ByName returns the project with the given exact manifest name, or nil.
func (w *Workspace) ByName(name string) *ProjectDescriptor {
	return w.byName[name]
}

// ByTempName returns the project registered under the given temp name
// (scoped or unscoped form), or nil.
func (w *Workspace) ByTempName(tempName string) *ProjectDescriptor {
	return w.byTempName[tempName]
}

// Downstream returns the names of projects that directly depend on name.
func (w *Workspace) Downstream(name string) []string {
	return w.downstream[name]
}

// Len returns the number of projects in the workspace.
func (w *Workspace) Len() int {
	return len(w.Projects)
}
