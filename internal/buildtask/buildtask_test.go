package buildtask

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/scheduler"
)

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestRun_CleanBuildSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest: &pkgmanifest.Manifest{
			Name:    "widget",
			Scripts: map[string]string{"clean": "true", "build": "echo built"},
		},
	}

	var w bytes.Buffer
	st, diags, err := task.Run(context.Background(), true, &w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st != scheduler.Success {
		t.Errorf("status = %v, want Success", st)
	}
	if len(diags) != 0 {
		t.Errorf("diags = %v, want none", diags)
	}

	if _, err := os.Stat(filepath.Join(dir, "package-deps.json")); err != nil {
		t.Errorf("expected fingerprint to be persisted: %v", err)
	}
}

func TestRun_SkipsWhenFingerprintUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	manifest := &pkgmanifest.Manifest{
		Name:    "widget",
		Scripts: map[string]string{"clean": "true", "build": "echo built"},
	}

	first := &Task{ProjectName: "widget", ProjectDir: dir, Manifest: manifest}
	var w1 bytes.Buffer
	st, _, err := first.Run(context.Background(), true, &w1)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if st != scheduler.Success {
		t.Fatalf("first status = %v, want Success", st)
	}

	second := &Task{ProjectName: "widget", ProjectDir: dir, Manifest: manifest}
	var w2 bytes.Buffer
	st, _, err = second.Run(context.Background(), true, &w2)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if st != scheduler.Skipped {
		t.Errorf("second status = %v, want Skipped", st)
	}
}

func TestRun_ForceCleanIgnoresUnchangedFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	manifest := &pkgmanifest.Manifest{
		Name:    "widget",
		Scripts: map[string]string{"clean": "true", "build": "echo built"},
	}

	first := &Task{ProjectName: "widget", ProjectDir: dir, Manifest: manifest}
	var w1 bytes.Buffer
	if _, _, err := first.Run(context.Background(), true, &w1); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := &Task{ProjectName: "widget", ProjectDir: dir, Manifest: manifest, ForceClean: true}
	var w2 bytes.Buffer
	st, _, err := second.Run(context.Background(), true, &w2)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if st != scheduler.Success {
		t.Errorf("second status = %v, want Success (ForceClean must skip the fingerprint match)", st)
	}
}

func TestRun_MissingCleanScriptIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest:    &pkgmanifest.Manifest{Name: "widget", Scripts: map[string]string{"build": "echo built"}},
	}

	var w bytes.Buffer
	st, _, err := task.Run(context.Background(), true, &w)
	if err == nil {
		t.Fatal("expected error for missing clean script")
	}
	if st != scheduler.Failure {
		t.Errorf("status = %v, want Failure", st)
	}
}

func TestRun_BlankCleanScriptIsNoOpWarning(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest: &pkgmanifest.Manifest{
			Name:    "widget",
			Scripts: map[string]string{"clean": "", "build": "echo built"},
		},
	}

	var w bytes.Buffer
	st, _, err := task.Run(context.Background(), true, &w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st != scheduler.Success {
		t.Errorf("status = %v, want Success", st)
	}
}

func TestRun_NonZeroExitProducesFailure(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest: &pkgmanifest.Manifest{
			Name:    "widget",
			Scripts: map[string]string{"clean": "true", "build": "exit 1"},
		},
	}

	var w bytes.Buffer
	st, _, err := task.Run(context.Background(), true, &w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st != scheduler.Failure {
		t.Errorf("status = %v, want Failure", st)
	}
}

func TestRun_PrefersTestOverBuild(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest: &pkgmanifest.Manifest{
			Name: "widget",
			Scripts: map[string]string{
				"clean": "true",
				"build": "exit 1",
				"test":  "echo ran-tests",
			},
		},
	}

	var w bytes.Buffer
	st, _, err := task.Run(context.Background(), true, &w)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st != scheduler.Success {
		t.Errorf("status = %v, want Success (test script should run, not the failing build script)", st)
	}
}

func TestRun_WritesANSIStrippedLog(t *testing.T) {
	dir := t.TempDir()
	logDir := t.TempDir()
	writeSourceFile(t, dir, "main.go", "package main\n")

	task := &Task{
		ProjectName: "widget",
		ProjectDir:  dir,
		Manifest: &pkgmanifest.Manifest{
			Name:    "widget",
			Scripts: map[string]string{"clean": "true", "build": `printf '\033[31mred\033[0m\n'`},
		},
		LogDir: logDir,
	}

	var w bytes.Buffer
	if _, _, err := task.Run(context.Background(), true, &w); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(logDir, "build.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if bytes.Contains(data, []byte("\033[")) {
		t.Errorf("expected ANSI escapes stripped from log, got: %q", data)
	}
}
