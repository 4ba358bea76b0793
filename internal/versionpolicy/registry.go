// Registry persistence: the version-policy file is committed as TOML
// (common/config/version-policies.toml), grounded on the load-or-empty,
// atomic-marshal-to-temp-then-rename pattern the teacher's relativity
// package uses for its own TOML-backed catalog.
package versionpolicy

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/semver"
)

// DefaultRegistryPath is the conventional location of the committed
// policy registry.
const DefaultRegistryPath = "common/config/version-policies.toml"

// entry is the on-disk tagged-variant shape: definitionName discriminates
// which kind-specific fields apply (spec.md §3).
type entry struct {
	PolicyName     string `toml:"policyName"`
	DefinitionName string `toml:"definitionName"`
	Version        string `toml:"version,omitempty"`
	NextBump       string `toml:"nextBump,omitempty"`
	LockedMajor    *int   `toml:"lockedMajor,omitempty"`
}

type registryFile struct {
	Policies []entry `toml:"policies"`
}

// LoadRegistry reads every policy defined at path into a name-keyed map
// of live Policy values. A missing file returns an empty registry.
func LoadRegistry(path string) (map[string]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Policy{}, nil
		}
		return nil, forgeerr.Wrap(forgeerr.Configuration, err, "reading version-policy registry %s", path)
	}

	var rf registryFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, forgeerr.Wrap(forgeerr.Configuration, err, "parsing version-policy registry %s", path)
	}

	out := make(map[string]Policy, len(rf.Policies))
	for _, e := range rf.Policies {
		p, err := entryToPolicy(e)
		if err != nil {
			return nil, err
		}
		out[e.PolicyName] = p
	}
	return out, nil
}

func entryToPolicy(e entry) (Policy, error) {
	switch e.DefinitionName {
	case "lockStepVersion":
		bump, err := parseReleaseType(e.NextBump)
		if err != nil {
			return nil, forgeerr.Wrap(forgeerr.Configuration, err, "policy %q", e.PolicyName)
		}
		return &LockStep{PolicyName: e.PolicyName, Version: e.Version, NextBump: bump}, nil
	case "individualVersion":
		locked := -1
		if e.LockedMajor != nil {
			locked = *e.LockedMajor
		}
		return &Individual{PolicyName: e.PolicyName, LockedMajor: locked}, nil
	default:
		return nil, forgeerr.New(forgeerr.Configuration, "policy %q has unknown definitionName %q", e.PolicyName, e.DefinitionName)
	}
}

func parseReleaseType(s string) (semver.ReleaseType, error) {
	switch semver.ReleaseType(s) {
	case "", semver.ReleaseNone:
		return semver.ReleaseNone, nil
	case semver.ReleasePrerelease, semver.ReleasePatch, semver.ReleasePreminor, semver.ReleaseMinor, semver.ReleaseMajor:
		return semver.ReleaseType(s), nil
	default:
		return "", fmt.Errorf("unknown nextBump %q", s)
	}
}

// SaveRegistry writes policies back to path atomically (write to a temp
// file in the same directory, then rename), preserving whichever kind
// each policy actually is.
func SaveRegistry(path string, policies map[string]Policy) error {
	rf := registryFile{Policies: make([]entry, 0, len(policies))}
	for _, p := range policies {
		switch v := p.(type) {
		case *LockStep:
			rf.Policies = append(rf.Policies, entry{
				PolicyName:     v.PolicyName,
				DefinitionName: "lockStepVersion",
				Version:        v.Version,
				NextBump:       string(v.NextBump),
			})
		case *Individual:
			e := entry{PolicyName: v.PolicyName, DefinitionName: "individualVersion"}
			if v.LockedMajor >= 0 {
				major := v.LockedMajor
				e.LockedMajor = &major
			}
			rf.Policies = append(rf.Policies, e)
		default:
			return forgeerr.Internalf(false, "unknown policy implementation for %q", p.Name())
		}
	}

	data, err := toml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("versionpolicy: marshaling registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("versionpolicy: creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".version-policies-*.toml")
	if err != nil {
		return fmt.Errorf("versionpolicy: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("versionpolicy: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("versionpolicy: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("versionpolicy: renaming into place: %w", err)
	}
	return nil
}
