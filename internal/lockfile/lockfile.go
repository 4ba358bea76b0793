// Package lockfile adapts the committed third-party shrinkwrap document
// into the single query the rest of Forge needs: "is there a resolved
// version satisfying this range, optionally scoped under a temp project?"
// The document's own format is foreign and otherwise opaque — Forge never
// writes it, only reads it, and only through this adapter (spec.md §4.2).
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

// entry is one resolved dependency node in the shrinkwrap tree. The real
// document carries many more fields (integrity hashes, resolved URLs);
// Forge only needs the name-keyed recursive shape and the version string.
type entry struct {
	Version      string             `json:"version"`
	Dependencies map[string]*entry  `json:"dependencies,omitempty"`
}

// Document is the parsed shrinkwrap file.
type Document struct {
	Dependencies map[string]*entry `json:"dependencies"`
}

// utf8BOM is stripped before parsing, per spec.md §4.2's "UTF-8 with
// optional BOM" note.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads and parses the shrinkwrap document at path. A missing file
// is not an error: it returns an empty Document, representing "no prior
// lockfile" (the first install on a fresh clone).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Dependencies: map[string]*entry{}}, nil
		}
		return nil, fmt.Errorf("lockfile: reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lockfile: parsing %s: %w", path, err)
	}
	if doc.Dependencies == nil {
		doc.Dependencies = map[string]*entry{}
	}
	return &doc, nil
}

// Adapter answers range-satisfaction queries against a loaded Document.
type Adapter struct {
	doc      *Document
	resolver *semver.Resolver
}

// NewAdapter wraps doc with resolver for range checks. A nil resolver
// constructs a fresh one.
func NewAdapter(doc *Document, resolver *semver.Resolver) *Adapter {
	if resolver == nil {
		resolver = semver.NewResolver(nil)
	}
	return &Adapter{doc: doc, resolver: resolver}
}

// HasCompatible reports whether the lockfile records a resolved version
// of name satisfying rangeExpr. It first looks under the temp-scoped
// subtree deps[tempScope].deps[name] (a project's own stub-scoped
// resolution), falling back to the top-level deps[name] entry. An empty
// tempScope skips straight to the top-level lookup.
func (a *Adapter) HasCompatible(name, rangeExpr, tempScope string) bool {
	if tempScope != "" {
		if scopeEntry, ok := a.doc.Dependencies[tempScope]; ok && scopeEntry.Dependencies != nil {
			if dep, ok := scopeEntry.Dependencies[name]; ok {
				return a.resolver.Satisfies(dep.Version, rangeExpr)
			}
		}
	}
	dep, ok := a.doc.Dependencies[name]
	if !ok {
		return false
	}
	return a.resolver.Satisfies(dep.Version, rangeExpr)
}

// TempProjectNames returns the sorted keys of deps directly nested under
// the reserved temp scope — the stub projects the lockfile currently
// knows about, used to detect orphans that no longer exist in the
// workspace (spec.md §4.3 step 6).
func (a *Adapter) TempProjectNames() []string {
	scopeEntry, ok := a.doc.Dependencies[workspace.ReservedTempScope]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scopeEntry.Dependencies))
	for name := range scopeEntry.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

