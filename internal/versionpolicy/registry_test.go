package versionpolicy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistry_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "version-policies.toml")
	content := `
[[policies]]
policyName = "p1"
definitionName = "lockStepVersion"
version = "1.2.3"
nextBump = "minor"

[[policies]]
policyName = "p2"
definitionName = "individualVersion"
lockedMajor = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(reg))
	}

	ls, ok := reg["p1"].(*LockStep)
	if !ok {
		t.Fatalf("p1 is not a *LockStep: %T", reg["p1"])
	}
	if ls.Version != "1.2.3" {
		t.Errorf("p1 version = %s, want 1.2.3", ls.Version)
	}

	ind, ok := reg["p2"].(*Individual)
	if !ok {
		t.Fatalf("p2 is not an *Individual: %T", reg["p2"])
	}
	if ind.LockedMajor != 2 {
		t.Errorf("p2 locked major = %d, want 2", ind.LockedMajor)
	}
}

func TestLoadRegistry_MissingFileReturnsEmpty(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg) != 0 {
		t.Errorf("expected empty registry, got %d entries", len(reg))
	}
}

func TestLoadRegistry_UnknownDefinitionNameErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	content := `
[[policies]]
policyName = "p1"
definitionName = "mystery"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRegistry(path); err == nil {
		t.Fatal("expected error for unknown definitionName")
	}
}

func TestSaveRegistry_RoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "version-policies.toml")

	original := map[string]Policy{
		"p1": &LockStep{PolicyName: "p1", Version: "2.0.0", NextBump: "minor"},
		"p2": &Individual{PolicyName: "p2", LockedMajor: -1},
	}
	if err := SaveRegistry(path, original); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}

	reloaded, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry after save: %v", err)
	}
	ls, ok := reloaded["p1"].(*LockStep)
	if !ok || ls.Version != "2.0.0" {
		t.Errorf("p1 round-trip mismatch: %+v", reloaded["p1"])
	}
	ind, ok := reloaded["p2"].(*Individual)
	if !ok || ind.LockedMajor != -1 {
		t.Errorf("p2 round-trip mismatch: %+v", reloaded["p2"])
	}
}
