// Package versionpolicy implements the two release-policy kinds Forge
// enforces across a group of projects: lock-step (all members share one
// version) and individual (members bump independently, optionally
// sharing a locked major). Both are modeled as a tagged variant behind a
// shared Policy interface, dispatched per call rather than at load time
// (spec.md §9's design note on dynamic dispatch across policy kinds).
package versionpolicy

import (
	"fmt"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/semver"
)

// Policy is the shared behavior of every policy kind.
type Policy interface {
	Name() string
	// Ensure reconciles pkg's version with the policy, returning a clone
	// with the corrected version. It never mutates pkg in place.
	Ensure(pkg *pkgmanifest.Manifest) (*pkgmanifest.Manifest, error)
	// Bump advances the policy's own stored state (lock-step only;
	// individual policies are no-ops, driven instead by change files).
	Bump(releaseType semver.ReleaseType, preid string) error
	// Validate rejects a candidate version string for the named project.
	Validate(version, projectName string) error
}

// LockStep is the "all member projects share one version" policy.
type LockStep struct {
	PolicyName string
	Version    string
	NextBump   semver.ReleaseType
}

// Individual is the "members bump independently, optionally sharing a
// locked major" policy. LockedMajor < 0 means unset.
type Individual struct {
	PolicyName  string
	LockedMajor int
}

func (p *LockStep) Name() string { return p.PolicyName }

// Ensure compares pkg.Version against the policy's stored version:
// equal is a no-op, lower is rewritten up to the policy version, and
// higher is a fatal Validation error (a member must never be ahead of
// its lock-step group).
func (p *LockStep) Ensure(pkg *pkgmanifest.Manifest) (*pkgmanifest.Manifest, error) {
	cur, err := semver.Parse(pkg.Version)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Validation, err, "project %q has an invalid version", pkg.Name)
	}
	policyVersion, err := semver.Parse(p.Version)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Validation, err, "policy %q has an invalid version", p.PolicyName)
	}
	switch cur.Compare(policyVersion) {
	case 0:
		return pkg.Clone(), nil
	case -1:
		clone := pkg.Clone()
		clone.Version = p.Version
		return clone, nil
	default:
		return nil, forgeerr.New(forgeerr.Validation, "project %q at version %s is ahead of lock-step policy %q at %s", pkg.Name, pkg.Version, p.PolicyName, p.Version)
	}
}

// Bump applies releaseType to the policy's stored version.
func (p *LockStep) Bump(releaseType semver.ReleaseType, preid string) error {
	next, err := semver.Increment(p.Version, releaseType, preid)
	if err != nil {
		return fmt.Errorf("versionpolicy: bumping %q: %w", p.PolicyName, err)
	}
	p.Version = next
	return nil
}

// Validate rejects any version that is not exactly the policy's version.
func (p *LockStep) Validate(version, projectName string) error {
	if version != p.Version {
		return forgeerr.New(forgeerr.Validation, "project %q at version %s does not match lock-step policy %q's version %s", projectName, version, p.PolicyName, p.Version)
	}
	return nil
}

func (p *Individual) Name() string { return p.PolicyName }

// Ensure rewrites pkg up to the locked major when it falls behind, and
// rejects a version that has already moved past it.
func (p *Individual) Ensure(pkg *pkgmanifest.Manifest) (*pkgmanifest.Manifest, error) {
	if p.LockedMajor < 0 {
		return pkg.Clone(), nil
	}
	major, err := semver.Major(pkg.Version)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.Validation, err, "project %q has an invalid version", pkg.Name)
	}
	locked := uint64(p.LockedMajor)
	switch {
	case major < locked:
		clone := pkg.Clone()
		clone.Version = fmt.Sprintf("%d.0.0", locked)
		return clone, nil
	case major > locked:
		return nil, forgeerr.New(forgeerr.Validation, "project %q at major %d is ahead of individual policy %q's locked major %d", pkg.Name, major, p.PolicyName, locked)
	default:
		return pkg.Clone(), nil
	}
}

// Bump is a no-op: individual policies are driven entirely by change files.
func (p *Individual) Bump(semver.ReleaseType, string) error { return nil }

// Validate rejects any version whose major does not match the locked
// major, when one is set.
func (p *Individual) Validate(version, projectName string) error {
	if p.LockedMajor < 0 {
		return nil
	}
	major, err := semver.Major(version)
	if err != nil {
		return forgeerr.Wrap(forgeerr.Validation, err, "project %q has an invalid version", projectName)
	}
	if major != uint64(p.LockedMajor) {
		return forgeerr.New(forgeerr.Validation, "project %q at major %d does not match individual policy %q's locked major %d", projectName, major, p.PolicyName, p.LockedMajor)
	}
	return nil
}
