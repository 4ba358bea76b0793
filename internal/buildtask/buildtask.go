// Package buildtask implements the per-project build unit (spec.md
// §4.8): fingerprint-gated skip, clean-then-build invocation, diagnostic
// scanning of combined output, and fingerprint persistence on a clean
// success. It is the TaskFunc the scheduler (C7) fans out to, one
// goroutine per project.
package buildtask

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgetool/forge/internal/ansi"
	"github.com/forgetool/forge/internal/diagnostics"
	"github.com/forgetool/forge/internal/fingerprint"
	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/pkgmanifest"
	"github.com/forgetool/forge/internal/procrun"
	"github.com/forgetool/forge/internal/scheduler"
)

// Mode carries the CLI flags that shape the build command line
// (spec.md §4.8 step 6: "append mode flags").
type Mode struct {
	Production bool
	NPM        bool
	Minimal    bool
	ColorMode  string // "auto", "always", "never"
}

func (m Mode) flags() []string {
	var f []string
	if m.Production {
		f = append(f, "--production")
	}
	if m.NPM {
		f = append(f, "--npm")
	}
	if m.Minimal {
		f = append(f, "--minimal")
	}
	if m.ColorMode != "" {
		f = append(f, "--color="+m.ColorMode)
	}
	return f
}

// Task builds one project.
type Task struct {
	ProjectName string
	ProjectDir  string
	Manifest    *pkgmanifest.Manifest
	Mode        Mode
	LogDir      string // directory for <project>/.forge/build.log; "" disables

	// ForceClean is the static, CLI-flag-level override: --clean/rebuild
	// disables incremental eligibility for every task in the run,
	// regardless of the runtime graph state the scheduler computes.
	ForceClean bool
}

// Run executes the build task. It has scheduler.TaskFunc's shape minus the
// task name; cmd/build.go wraps it in a closure that supplies the name.
// incrementalAllowed is the scheduler's runtime
// signal (spec.md §4.7: false once a dependency's Success/
// SuccessWithWarnings invalidated it); it is combined with the task's
// static ForceClean override before gating the fingerprint comparison.
func (t *Task) Run(ctx context.Context, incrementalAllowed bool, w io.Writer) (scheduler.Status, []diagnostics.Diagnostic, error) {
	cur, err := fingerprint.Compute(ctx, t.ProjectDir, t.commandLine())
	if err != nil {
		return scheduler.Failure, nil, forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: computing fingerprint", t.ProjectName)
	}

	if incrementalAllowed && !t.ForceClean {
		prev, err := fingerprint.Load(t.ProjectDir)
		if err == nil && fingerprint.Unchanged(prev, cur) {
			return scheduler.Skipped, nil, nil
		}
	}

	// An interrupted build must never be mistaken for a finished one.
	_ = fingerprint.Remove(t.ProjectDir)

	if err := t.runClean(ctx, w); err != nil {
		return scheduler.Failure, nil, err
	}

	buildCmd, buildArgs, err := t.buildCommand()
	if err != nil {
		return scheduler.Failure, nil, err
	}

	var combined strings.Builder
	tee := io.MultiWriter(w, &combined)
	result, err := procrun.RunStreaming(ctx, t.ProjectDir, buildCmd, tee, buildArgs...)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return scheduler.Failure, nil, forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: launching build command", t.ProjectName)
	}

	if err := t.writeLog(combined.String()); err != nil {
		return scheduler.Failure, nil, err
	}

	diags := diagnostics.Scan(combined.String(), diagnostics.DefaultRules)

	if result.ExitCode != 0 || len(diags) > 0 {
		return scheduler.Failure, diags, nil
	}

	if strings.TrimSpace(t.stderrActivityOf(result)) != "" {
		return scheduler.SuccessWithWarnings, diags, nil
	}

	if err := fingerprint.Save(t.ProjectDir, cur); err != nil {
		return scheduler.Failure, diags, forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: persisting fingerprint", t.ProjectName)
	}
	return scheduler.Success, diags, nil
}

// stderrActivityOf reports the run's stderr-only output, used to
// distinguish a silent clean build (Success) from one that printed
// warnings on stderr despite a zero exit (SuccessWithWarnings).
func (t *Task) stderrActivityOf(r procrun.Result) string {
	return r.Stderr
}

func (t *Task) commandLine() string {
	cmd, args, err := t.buildCommand()
	if err != nil {
		return ""
	}
	return cmd + " " + strings.Join(args, " ")
}

// runClean invokes the project's clean script synchronously. A missing
// script is fatal; a declared-but-blank script is a no-op warning.
func (t *Task) runClean(ctx context.Context, w io.Writer) error {
	if !t.Manifest.HasScript("clean") {
		if _, ok := t.Manifest.Scripts["clean"]; ok {
			fmt.Fprintf(w, "warning: %s: clean script is blank, skipping\n", t.ProjectName)
			return nil
		}
		return forgeerr.New(forgeerr.Configuration, "buildtask %s: no clean script declared", t.ProjectName)
	}
	_, err := procrun.RunStreaming(ctx, t.ProjectDir, "sh", w, "-c", t.Manifest.Script("clean"))
	if err != nil {
		return forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: running clean script", t.ProjectName)
	}
	return nil
}

// buildCommand determines the build command line, preferring test over
// build, and appends mode flags.
func (t *Task) buildCommand() (string, []string, error) {
	var script string
	switch {
	case t.Manifest.HasScript("test"):
		script = t.Manifest.Script("test")
	case t.Manifest.HasScript("build"):
		script = t.Manifest.Script("build")
	default:
		return "", nil, forgeerr.New(forgeerr.Configuration, "buildtask %s: neither test nor build script declared", t.ProjectName)
	}
	args := append([]string{"-c", script}, t.Mode.flags()...)
	return "sh", args, nil
}

func (t *Task) writeLog(combined string) error {
	if t.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(t.LogDir, 0o755); err != nil {
		return forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: creating log directory", t.ProjectName)
	}
	path := filepath.Join(t.LogDir, "build.log")
	clean := ansi.Strip(combined)
	if err := os.WriteFile(path, []byte(clean), 0o644); err != nil {
		return forgeerr.Wrap(forgeerr.TransientIO, err, "buildtask %s: writing build log", t.ProjectName)
	}
	return nil
}
