package versionpolicy

import (
	"testing"

	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/semver"
)

// TestLockStepBumpMinor reproduces the literal lock-step scenario: policy
// P1 = {lockStep, version=1.2.3, nextBump=minor}; projects A, B at 1.2.3.
func TestLockStepBumpMinor(t *testing.T) {
	p1 := &LockStep{PolicyName: "p1", Version: "1.2.3", NextBump: semver.ReleaseMinor}
	if err := p1.Bump(p1.NextBump, ""); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if p1.Version != "1.3.0" {
		t.Fatalf("policy version = %s, want 1.3.0", p1.Version)
	}

	a := &pkgmanifest.Manifest{Name: "a", Version: "1.2.3"}
	b := &pkgmanifest.Manifest{Name: "b", Version: "1.2.3"}

	aEnsured, err := p1.Ensure(a)
	if err != nil {
		t.Fatalf("Ensure(A): %v", err)
	}
	if aEnsured.Version != "1.3.0" {
		t.Errorf("A.Version = %s, want 1.3.0", aEnsured.Version)
	}
	bEnsured, err := p1.Ensure(b)
	if err != nil {
		t.Fatalf("Ensure(B): %v", err)
	}
	if bEnsured.Version != "1.3.0" {
		t.Errorf("B.Version = %s, want 1.3.0", bEnsured.Version)
	}

	if err := p1.Validate("1.3.1", "A"); err == nil {
		t.Error("expected Validate to raise for a non-matching version")
	}
	if err := p1.Validate("1.3.0", "A"); err != nil {
		t.Errorf("expected Validate to pass for the policy version, got %v", err)
	}
}

// TestIndividualLockedMajor reproduces the literal individual-policy
// scenario: P2 = {individual, lockedMajor=2}.
func TestIndividualLockedMajor(t *testing.T) {
	p2 := &Individual{PolicyName: "p2", LockedMajor: 2}

	c := &pkgmanifest.Manifest{Name: "c", Version: "1.9.5"}
	cEnsured, err := p2.Ensure(c)
	if err != nil {
		t.Fatalf("Ensure(C): %v", err)
	}
	if cEnsured.Version != "2.0.0" {
		t.Errorf("C.Version = %s, want 2.0.0", cEnsured.Version)
	}

	d := &pkgmanifest.Manifest{Name: "d", Version: "3.0.0"}
	if _, err := p2.Ensure(d); err == nil {
		t.Error("expected Ensure(D) to raise since D's major is ahead of the locked major")
	}

	if err := p2.Validate("2.4.1", "C"); err != nil {
		t.Errorf("expected Validate(2.4.1) to pass, got %v", err)
	}
	if err := p2.Validate("3.0.0", "C"); err == nil {
		t.Error("expected Validate(3.0.0) to raise")
	}
}

func TestIndividualNoLockedMajorIsPassthrough(t *testing.T) {
	p := &Individual{PolicyName: "free", LockedMajor: -1}
	m := &pkgmanifest.Manifest{Name: "x", Version: "5.0.0"}
	ensured, err := p.Ensure(m)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if ensured.Version != "5.0.0" {
		t.Errorf("Version = %s, want unchanged 5.0.0", ensured.Version)
	}
	if err := p.Validate("9.9.9", "x"); err != nil {
		t.Errorf("Validate with no locked major should always pass, got %v", err)
	}
}

func TestIndividualBumpIsNoOp(t *testing.T) {
	p := &Individual{PolicyName: "p", LockedMajor: 1}
	if err := p.Bump(semver.ReleaseMajor, ""); err != nil {
		t.Errorf("Bump on individual policy should be a no-op, got error: %v", err)
	}
}
