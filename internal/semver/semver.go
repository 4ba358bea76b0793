// Package semver wraps Masterminds/semver/v3 with the range-satisfaction,
// incrementing, and prefix-preserving reshaping rules the workspace model,
// version policy engine, and change pipeline all need. Non-semver
// specifiers (git URLs, tarball paths, dist-tags) are not rejected: they
// are treated as "assume compatible", with a warning issued once per
// specifier by each Resolver (the dedup state lives on the Resolver
// rather than in a package-level global).
package semver

import (
	"fmt"
	"strings"
	"sync"

	mastersemver "github.com/Masterminds/semver/v3"
)

// ReleaseType is the kind of increment applied to a version.
type ReleaseType string

const (
	ReleaseNone       ReleaseType = "none"
	ReleasePrerelease ReleaseType = "prerelease"
	ReleasePatch      ReleaseType = "patch"
	ReleasePreminor   ReleaseType = "preminor"
	ReleaseMinor      ReleaseType = "minor"
	ReleaseMajor      ReleaseType = "major"
)

// ChangeKind mirrors the change-request kinds from the workspace data
// model. Kinds are totally ordered; aggregation takes the maximum.
type ChangeKind int

const (
	KindNone ChangeKind = iota
	KindDependency
	KindPatch
	KindMinor
	KindMajor
)

// ParseChangeKind converts the wire string form to a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch s {
	case "none", "":
		return KindNone, nil
	case "dependency":
		return KindDependency, nil
	case "patch":
		return KindPatch, nil
	case "minor":
		return KindMinor, nil
	case "major":
		return KindMajor, nil
	default:
		return KindNone, fmt.Errorf("semver: unknown change kind %q", s)
	}
}

func (k ChangeKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDependency:
		return "dependency"
	case KindPatch:
		return "patch"
	case KindMinor:
		return "minor"
	case KindMajor:
		return "major"
	default:
		return "none"
	}
}

// ReleaseTypeFor maps a change kind to the release type used to compute
// the next version. Dependency-only changes never bump a version on
// their own; callers must special-case KindDependency/KindNone before
// calling Increment.
func ReleaseTypeFor(k ChangeKind) ReleaseType {
	switch k {
	case KindPatch:
		return ReleasePatch
	case KindMinor:
		return ReleaseMinor
	case KindMajor:
		return ReleaseMajor
	default:
		return ReleaseNone
	}
}

// Max returns the greater of two change kinds.
func Max(a, b ChangeKind) ChangeKind {
	if b > a {
		return b
	}
	return a
}

// Parse parses a strict semver version string.
func Parse(v string) (*mastersemver.Version, error) {
	parsed, err := mastersemver.StrictNewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("semver: invalid version %q: %w", v, err)
	}
	return parsed, nil
}

// Increment applies rt to v and returns the new version string. preid is
// used for the prerelease/preminor forms; it defaults to "beta" when empty.
func Increment(v string, rt ReleaseType, preid string) (string, error) {
	cur, err := Parse(v)
	if err != nil {
		return "", err
	}
	if preid == "" {
		preid = "beta"
	}

	switch rt {
	case ReleaseNone:
		return cur.String(), nil
	case ReleasePatch:
		next := cur.IncPatch()
		return next.String(), nil
	case ReleaseMinor:
		next := cur.IncMinor()
		return next.String(), nil
	case ReleaseMajor:
		next := cur.IncMajor()
		return next.String(), nil
	case ReleasePreminor:
		next := cur.IncMinor()
		return withPrerelease(next, preid)
	case ReleasePrerelease:
		return nextPrerelease(cur, preid)
	default:
		return "", fmt.Errorf("semver: unknown release type %q", rt)
	}
}

func withPrerelease(v mastersemver.Version, preid string) (string, error) {
	withPre, err := v.SetPrerelease(preid + ".0")
	if err != nil {
		return "", fmt.Errorf("semver: setting prerelease: %w", err)
	}
	return withPre.String(), nil
}

// nextPrerelease increments an existing prerelease counter, or starts a
// fresh one at .0 if the current version has none or a differing tag.
func nextPrerelease(cur *mastersemver.Version, preid string) (string, error) {
	existing := cur.Prerelease()
	prefix := preid + "."
	if strings.HasPrefix(existing, prefix) {
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(existing, prefix), "%d", &n); err == nil {
			next, err := cur.SetPrerelease(fmt.Sprintf("%s%d", prefix, n+1))
			if err != nil {
				return "", err
			}
			return next.String(), nil
		}
	}
	next, err := cur.SetPrerelease(preid + ".0")
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

// NextMajor returns "${major+1}.0.0" for a version string, used to build
// the `>=x <next-major>` range form.
func NextMajor(v string) (string, error) {
	parsed, err := Parse(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.0.0", parsed.Major()+1), nil
}

// Major returns the major component of a version string.
func Major(v string) (uint64, error) {
	parsed, err := Parse(v)
	if err != nil {
		return 0, err
	}
	return parsed.Major(), nil
}

// looksSemverRange reports whether rangeExpr parses as a semver
// constraint. Anything that does not (git URLs, "file:" specifiers,
// tarball paths, npm dist-tags like "latest") is treated by the caller
// as a non-semver specifier.
func looksSemverRange(rangeExpr string) (*mastersemver.Constraints, bool) {
	c, err := mastersemver.NewConstraint(rangeExpr)
	if err != nil {
		return nil, false
	}
	return c, true
}

// Resolver answers range-satisfaction queries and tracks which
// non-semver specifiers have already produced a pass-through warning,
// so each distinct specifier warns at most once per Resolver.
// It replaces the source's process-wide warning cache with an explicit,
// caller-owned object (see spec.md §9's note on mutable global state).
type Resolver struct {
	mu      sync.Mutex
	warned  map[string]bool
	OnWarn  func(rangeExpr string) // optional; called at most once per rangeExpr
}

// NewResolver creates a Resolver ready for use.
func NewResolver(onWarn func(rangeExpr string)) *Resolver {
	return &Resolver{warned: make(map[string]bool), OnWarn: onWarn}
}

// Satisfies reports whether version satisfies rangeExpr. Non-semver
// range expressions always report true ("assume compatible") and emit a
// one-time warning through OnWarn.
func (r *Resolver) Satisfies(version, rangeExpr string) bool {
	c, ok := looksSemverRange(rangeExpr)
	if !ok {
		r.warnOnce(rangeExpr)
		return true
	}
	v, err := Parse(version)
	if err != nil {
		r.warnOnce(rangeExpr)
		return true
	}
	return c.Check(v)
}

// IsSemverRange reports whether rangeExpr is a parseable semver
// constraint (as opposed to a git/tarball/tag pass-through specifier).
func (r *Resolver) IsSemverRange(rangeExpr string) bool {
	_, ok := looksSemverRange(rangeExpr)
	return ok
}

func (r *Resolver) warnOnce(rangeExpr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warned[rangeExpr] {
		return
	}
	r.warned[rangeExpr] = true
	if r.OnWarn != nil {
		r.OnWarn(rangeExpr)
	}
}

// ReshapeRange rebuilds a dependency range to point at newVersion,
// preserving the caret/tilde prefix convention of the original range:
// "~1.2.3" → "~new", "^1.2.3" → "^new", a plain version → the new bare
// version, and any other range form (including an existing
// ">=x <next-major>" range) → ">=new <nextMajor(new)>".
func ReshapeRange(oldRange, newVersion string) (string, error) {
	trimmed := strings.TrimSpace(oldRange)
	switch {
	case strings.HasPrefix(trimmed, "~"):
		return "~" + newVersion, nil
	case strings.HasPrefix(trimmed, "^"):
		return "^" + newVersion, nil
	case isBareVersion(trimmed):
		return newVersion, nil
	default:
		next, err := NextMajor(newVersion)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(">=%s <%s", newVersion, next), nil
	}
}

// isBareVersion reports whether s parses as a bare semver version with no
// range operators (used to distinguish "1.2.3" from "^1.2.3" or a range).
func isBareVersion(s string) bool {
	if strings.ContainsAny(s, "^~<>= \t|") {
		return false
	}
	_, err := mastersemver.StrictNewVersion(s)
	return err == nil
}
