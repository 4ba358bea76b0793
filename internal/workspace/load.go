package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/semver"
)

// ManifestFileName is the repository manifest's conventional filename,
// committed at the repo root.
const ManifestFileName = "forge.json"

// repoManifestFile is the on-disk shape of the repository manifest
// (spec.md §6).
type repoManifestFile struct {
	Installer struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"installer"`
	LockfilePath         string           `json:"lockfilePath"`
	Projects             []projectFile    `json:"projects"`
	AllowedEmailPatterns []string         `json:"allowedEmailPatterns"`
	FolderDepth          *folderDepthFile `json:"folderDepth"`
	ApprovedPackages     *approvedFile    `json:"approvedPackagesPolicy"`
	Telemetry            *bool            `json:"telemetryEnabled"`
}

type projectFile struct {
	PackageName             string   `json:"packageName"`
	ProjectFolder           string   `json:"projectFolder"`
	ReviewCategory          string   `json:"reviewCategory"`
	CyclicDependencyProjects []string `json:"cyclicDependencyProjects"`
	VersionPolicyName       string   `json:"versionPolicyName"`
	ShouldPublish           *bool    `json:"shouldPublish"`
}

type folderDepthFile struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type approvedFile struct {
	Enabled    bool     `json:"enabled"`
	Categories []string `json:"categories"`
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	knownPolicies map[string]bool
}

// WithKnownPolicies supplies the set of version-policy names declared in
// the policy registry, so Load can reject a project's reference to an
// undeclared policy. When omitted, policy references are not validated
// at this layer (the version-policy engine validates them instead at
// first use).
func WithKnownPolicies(names map[string]bool) Option {
	return func(o *loadOptions) { o.knownPolicies = names }
}

// Load reads and validates the repository manifest at
// <rootPath>/forge.json, then loads and validates every declared
// project's package manifest, and finally computes the downstream
// adjacency. It returns a *forgeerr.Error of Kind Configuration on any
// structural problem.
func Load(rootPath string, opts ...Option) (*Workspace, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	manifestPath := filepath.Join(rootPath, ManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Configuration, err, "reading repository manifest %s", manifestPath)
	}

	var rf repoManifestFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, forgeerr.Wrap(forgeerr.Configuration, err, "parsing repository manifest %s", manifestPath)
	}

	repo := RepoDescriptor{
		RootPath:         rootPath,
		InstallerName:    rf.Installer.Name,
		InstallerVersion: rf.Installer.Version,
		LockfilePath:     rf.LockfilePath,
		AllowedEmailPatterns: rf.AllowedEmailPatterns,
		MinFolderDepth:   1,
		MaxFolderDepth:   10,
		TelemetryEnabled: rf.Telemetry != nil && *rf.Telemetry,
	}
	if rf.FolderDepth != nil {
		repo.MinFolderDepth = rf.FolderDepth.Min
		repo.MaxFolderDepth = rf.FolderDepth.Max
	}
	if rf.ApprovedPackages != nil && rf.ApprovedPackages.Enabled {
		repo.ApprovedCategoriesEnabled = true
		repo.ReviewCategories = make(map[string]bool, len(rf.ApprovedPackages.Categories))
		for _, c := range rf.ApprovedPackages.Categories {
			repo.ReviewCategories[c] = true
		}
	}

	w := &Workspace{
		Repo:       repo,
		byName:     make(map[string]*ProjectDescriptor),
		byTempName: make(map[string]*ProjectDescriptor),
		downstream: make(map[string][]string),
	}

	seenPackageNames := make(map[string]bool, len(rf.Projects))
	seenUnscoped := make(map[string]bool, len(rf.Projects))

	for _, pf := range rf.Projects {
		proj, err := loadProject(rootPath, &repo, pf)
		if err != nil {
			return nil, err
		}
		if seenPackageNames[proj.PackageName] {
			return nil, forgeerr.New(forgeerr.Configuration, "duplicate packageName %q in repository manifest", proj.PackageName)
		}
		seenPackageNames[proj.PackageName] = true

		if seenUnscoped[proj.UnscopedTempName] {
			return nil, forgeerr.New(forgeerr.Configuration, "temp-name collision for %q", proj.PackageName)
		}
		seenUnscoped[proj.UnscopedTempName] = true

		w.Projects = append(w.Projects, proj)
		w.byName[proj.PackageName] = proj
		w.byTempName[proj.TempName] = proj
		w.byTempName[proj.UnscopedTempName] = proj
	}

	if o.knownPolicies != nil {
		for _, p := range w.Projects {
			if p.VersionPolicyName != "" && !o.knownPolicies[p.VersionPolicyName] {
				return nil, forgeerr.New(forgeerr.Configuration, "project %q references unknown version policy %q", p.PackageName, p.VersionPolicyName)
			}
		}
	}

	resolver := semver.NewResolver(nil)
	if err := computeDownstream(w, resolver); err != nil {
		return nil, err
	}

	if err := checkAcyclic(w); err != nil {
		return nil, err
	}

	return w, nil
}

func loadProject(rootPath string, repo *RepoDescriptor, pf projectFile) (*ProjectDescriptor, error) {
	if pf.PackageName == "" {
		return nil, forgeerr.New(forgeerr.Configuration, "project entry missing packageName")
	}

	folderAbs := filepath.Join(rootPath, pf.ProjectFolder)
	if info, err := os.Stat(folderAbs); err != nil || !info.IsDir() {
		return nil, forgeerr.New(forgeerr.Configuration, "project folder %q for package %q does not exist", pf.ProjectFolder, pf.PackageName)
	}

	depth := folderDepth(pf.ProjectFolder)
	if depth < repo.MinFolderDepth || depth > repo.MaxFolderDepth {
		return nil, forgeerr.New(forgeerr.Configuration, "project %q folder depth %d outside allowed range [%d,%d]", pf.PackageName, depth, repo.MinFolderDepth, repo.MaxFolderDepth)
	}

	if repo.ApprovedCategoriesEnabled {
		if pf.ReviewCategory == "" || !repo.ReviewCategories[pf.ReviewCategory] {
			return nil, forgeerr.New(forgeerr.Configuration, "project %q has unknown or missing review category %q", pf.PackageName, pf.ReviewCategory)
		}
	}

	manifestPath := filepath.Join(folderAbs, "package.json")
	manifest, err := pkgmanifest.Load(manifestPath)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Configuration, err, "loading manifest for project %q", pf.PackageName)
	}
	if manifest.Name != pf.PackageName {
		return nil, forgeerr.New(forgeerr.Configuration, "manifest name %q does not match declared packageName %q", manifest.Name, pf.PackageName)
	}

	exemptions := make(map[string]bool, len(pf.CyclicDependencyProjects))
	for _, name := range pf.CyclicDependencyProjects {
		exemptions[name] = true
	}

	shouldPublish := pf.VersionPolicyName != ""
	if pf.ShouldPublish != nil {
		shouldPublish = *pf.ShouldPublish
	}

	unscoped := sanitizeTempName(pf.PackageName)
	proj := &ProjectDescriptor{
		PackageName:       pf.PackageName,
		Folder:            pf.ProjectFolder,
		ReviewCategory:    pf.ReviewCategory,
		CyclicExemptions:  exemptions,
		VersionPolicyName: pf.VersionPolicyName,
		ShouldPublish:     shouldPublish,
		Manifest:          manifest,
		TempName:          ReservedTempScope + "/" + unscoped,
		UnscopedTempName:  unscoped,
	}
	return proj, nil
}

// sanitizeTempName collapses a (possibly scoped) package name into a
// single path segment safe for use as a reserved-scope temp-project name:
// "@scope/name" → "scope+name".
func sanitizeTempName(packageName string) string {
	name := strings.TrimPrefix(packageName, "@")
	return strings.ReplaceAll(name, "/", "+")
}

func folderDepth(folder string) int {
	clean := filepath.Clean(filepath.ToSlash(folder))
	if clean == "." || clean == "" {
		return 0
	}
	return len(strings.Split(clean, "/"))
}

// computeDownstream builds, for every project P and every local
// dependency D it declares (deps ∪ devDeps), an edge P → D's downstream
// set when D is a local project, D is not in P's cyclic exemptions, and
// D's local version satisfies P's declared range. It also enforces the
// invariant that a non-exempt local dependency must be satisfied.
func computeDownstream(w *Workspace, resolver *semver.Resolver) error {
	for _, p := range w.Projects {
		for depName, rng := range p.Manifest.AllDependencyRanges() {
			dep := w.byName[depName]
			if dep == nil {
				continue // external dependency, not a local project
			}
			if p.CyclicExemptions[depName] {
				continue
			}
			if !resolver.Satisfies(dep.Manifest.Version, rng) {
				return forgeerr.New(forgeerr.Configuration,
					"project %q declares %q at range %q, but local project %q is at version %q and is not a cyclic exemption",
					p.PackageName, depName, rng, depName, dep.Manifest.Version)
			}
			w.downstream[depName] = append(w.downstream[depName], p.PackageName)
		}
	}
	return nil
}

// checkAcyclic verifies that the dependency graph induced by non-exempt
// local dependencies (i.e. the downstream adjacency) is acyclic.
func checkAcyclic(w *Workspace) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(w.Projects))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case gray:
			return forgeerr.New(forgeerr.Configuration, "dependency cycle detected: %s -> %s", strings.Join(path, " -> "), name)
		case black:
			return nil
		}
		color[name] = gray
		for _, downstreamName := range w.downstream[name] {
			if err := visit(downstreamName, append(path, downstreamName)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, p := range w.Projects {
		if color[p.PackageName] == white {
			if err := visit(p.PackageName, []string{p.PackageName}); err != nil {
				return err
			}
		}
	}
	return nil
}
