package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// buildFixture creates a three-project workspace: A@1.0.0, B@1.0.0
// depending on A at ^1.0.0, C@1.0.0 depending on B at ^1.0.0 — the
// graph used in the change-propagation scenarios.
func buildFixture(t *testing.T, bRangeOnA string) string {
	t.Helper()
	root := t.TempDir()

	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"installer":    map[string]any{"name": "npm", "version": "10.0.0"},
		"lockfilePath": "common/npm-shrinkwrap.json",
		"projects": []map[string]any{
			{"packageName": "a", "projectFolder": "packages/a"},
			{"packageName": "b", "projectFolder": "packages/b"},
			{"packageName": "c", "projectFolder": "packages/c"},
		},
	})

	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "a", "version": "1.0.0",
	})
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), map[string]any{
		"name": "b", "version": "1.0.0",
		"dependencies": map[string]string{"a": bRangeOnA},
	})
	writeJSON(t, filepath.Join(root, "packages/c/package.json"), map[string]any{
		"name": "c", "version": "1.0.0",
		"dependencies": map[string]string{"b": "^1.0.0"},
	})
	return root
}

func TestLoad_ComputesDownstreamAdjacency(t *testing.T) {
	root := buildFixture(t, "^1.0.0")
	w, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.Len() != 3 {
		t.Fatalf("expected 3 projects, got %d", w.Len())
	}
	downA := w.Downstream("a")
	if len(downA) != 1 || downA[0] != "b" {
		t.Errorf("Downstream(a) = %v, want [b]", downA)
	}
	downB := w.Downstream("b")
	if len(downB) != 1 || downB[0] != "c" {
		t.Errorf("Downstream(b) = %v, want [c]", downB)
	}
}

func TestLoad_ByNameIsBijection(t *testing.T) {
	root := buildFixture(t, "^1.0.0")
	w, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	names := map[string]bool{}
	for _, p := range w.Projects {
		if names[p.PackageName] {
			t.Fatalf("duplicate project in by-name index: %s", p.PackageName)
		}
		names[p.PackageName] = true
		if w.ByName(p.PackageName) != p {
			t.Errorf("ByName(%s) did not return the indexed project", p.PackageName)
		}
	}
}

func TestLoad_NameMismatchIsConfigurationError(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{{"packageName": "a", "projectFolder": "packages/a"}},
	})
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "not-a", "version": "1.0.0",
	})
	if _, err := Load(root); err == nil {
		t.Fatal("expected name-mismatch error")
	}
}

func TestLoad_RangeMismatchWithoutExemptionIsFatal(t *testing.T) {
	// B declares a range on A that A's version does not satisfy, and B
	// has not exempted A — this must block the load (spec.md §3 invariant).
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "a", "projectFolder": "packages/a"},
			{"packageName": "b", "projectFolder": "packages/b"},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "a", "version": "1.0.0",
	})
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), map[string]any{
		"name": "b", "version": "1.0.0",
		"dependencies": map[string]string{"a": "^2.0.0"},
	})
	if _, err := Load(root); err == nil {
		t.Fatal("expected range-mismatch error")
	}
}

func TestLoad_CyclicExemptionAllowsRangeMismatch(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "a", "projectFolder": "packages/a"},
			{"packageName": "b", "projectFolder": "packages/b", "cyclicDependencyProjects": []string{"a"}},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "a", "version": "1.0.0",
		"dependencies": map[string]string{"b": "^1.0.0"},
	})
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), map[string]any{
		"name": "b", "version": "1.0.0",
		"dependencies": map[string]string{"a": "^2.0.0"},
	})
	if _, err := Load(root); err != nil {
		t.Fatalf("expected cyclic exemption to allow load, got: %v", err)
	}
}

func TestLoad_UnexemptedCycleIsFatal(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "a", "projectFolder": "packages/a"},
			{"packageName": "b", "projectFolder": "packages/b"},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "a", "version": "1.0.0",
		"dependencies": map[string]string{"b": "^1.0.0"},
	})
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), map[string]any{
		"name": "b", "version": "1.0.0",
		"dependencies": map[string]string{"a": "^1.0.0"},
	})
	if _, err := Load(root); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestByShorthand(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "@scope/widget", "projectFolder": "packages/widget"},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/widget/package.json"), map[string]any{
		"name": "@scope/widget", "version": "1.0.0",
	})
	w, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.ByShorthand("widget") == nil {
		t.Error("expected unique shorthand match for widget")
	}
	if w.ByShorthand("missing") != nil {
		t.Error("expected no match for unknown shorthand")
	}
}

func TestLoad_TempNamesAreUniqueAndScoped(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "@scope/widget", "projectFolder": "packages/widget"},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/widget/package.json"), map[string]any{
		"name": "@scope/widget", "version": "1.0.0",
	})
	w, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := w.ByName("@scope/widget")
	if p.TempName != ReservedTempScope+"/scope+widget" {
		t.Errorf("unexpected temp name: %s", p.TempName)
	}
	if w.ByTempName(p.TempName) != p {
		t.Error("ByTempName lookup failed for scoped temp name")
	}
	if w.ByTempName(p.UnscopedTempName) != p {
		t.Error("ByTempName lookup failed for unscoped temp name")
	}
}

func TestLoad_UnknownPolicyReferenceRejected(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "forge.json"), map[string]any{
		"projects": []map[string]any{
			{"packageName": "a", "projectFolder": "packages/a", "versionPolicyName": "ghost"},
		},
	})
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), map[string]any{
		"name": "a", "version": "1.0.0",
	})
	_, err := Load(root, WithKnownPolicies(map[string]bool{"real": true}))
	if err == nil {
		t.Fatal("expected unknown-policy-reference error")
	}
}
