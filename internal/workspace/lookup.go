package workspace

import "strings"

// shortName returns the unscoped "name" portion of a manifest name:
// "@scope/widget" → "widget", "widget" → "widget".
func shortName(packageName string) string {
	if idx := strings.IndexByte(packageName, '/'); idx >= 0 {
		return packageName[idx+1:]
	}
	return packageName
}

// ByShorthand resolves a bare (possibly unscoped) name against the
// workspace: it matches uniquely if exactly one project's manifest name
// has that short form. Ambiguous or absent matches return nil.
func (w *Workspace) ByShorthand(bare string) *ProjectDescriptor {
	if p := w.byName[bare]; p != nil {
		return p
	}
	var match *ProjectDescriptor
	for _, p := range w.Projects {
		if shortName(p.PackageName) == bare {
			if match != nil {
				return nil // ambiguous
			}
			match = p
		}
	}
	return match
}
