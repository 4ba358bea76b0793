package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/installer"
	"github.com/forgetool/forge/internal/linker"
	"github.com/forgetool/forge/internal/lockfile"
	"github.com/forgetool/forge/internal/planner"
	"github.com/forgetool/forge/internal/recycler"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/stubpkg"
	"github.com/forgetool/forge/internal/telemetry"
	"github.com/forgetool/forge/internal/workspace"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve and install the workspace's shared dependency tree",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().Bool("clean", false, "recycle the install cache and a transient folder before installing")
	installCmd.Flags().Bool("full-clean", false, "in addition, reinstall the installer tool itself")
	installCmd.Flags().Bool("bypass-policy", false, "proceed even when the lockfile verdict is invalid")
	installCmd.Flags().Bool("no-link", false, "skip local symlink materialization after install")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	w, err := workspace.Load(root)
	if err != nil {
		return err
	}

	resolver := semver.NewResolver(func(rangeExpr string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: non-semver specifier %q assumed compatible\n", rangeExpr)
	})

	lockPath := filepath.Join(root, w.Repo.LockfilePath)
	doc, err := lockfile.Load(lockPath)
	if err != nil {
		return err
	}
	lockAdapter := lockfile.NewAdapter(doc, resolver)

	commonTempDir := filepath.Join(root, "common", "temp")
	plan, err := planner.Plan(w, lockAdapter, resolver, planner.Options{CommonTempDir: commonTempDir})
	if err != nil {
		return err
	}

	emit, err := openTelemetry(w, commonTempDir)
	if err != nil {
		return err
	}
	defer emit.Close()
	emit.Emit(telemetry.Event{Kind: telemetry.KindInstallStart})

	bypassPolicy, _ := cmd.Flags().GetBool("bypass-policy")
	if !plan.Verdict.Valid && !bypassPolicy {
		for _, reason := range plan.Verdict.Reasons {
			fmt.Fprintf(cmd.ErrOrStderr(), "lockfile invalid: %s\n", reason)
		}
		return fmt.Errorf("install: lockfile verdict is invalid (pass --bypass-policy to proceed anyway)")
	}

	if _, err := planner.WriteStubArchives(w, plan, commonTempDir); err != nil {
		return err
	}

	if err := commonManifestWrite(filepath.Join(commonTempDir, "package.json"), plan); err != nil {
		return err
	}

	mode := installer.Normal
	fullClean, _ := cmd.Flags().GetBool("full-clean")
	clean, _ := cmd.Flags().GetBool("clean")
	switch {
	case fullClean:
		mode = installer.UnsafePurge
	case clean:
		mode = installer.ForceClean
	}

	modulesDir := filepath.Join(commonTempDir, "node_modules")
	in := installer.Inputs{
		RepoRoot:          root,
		MarkerPath:        filepath.Join(commonTempDir, "last-install.flag"),
		ModulesDir:        modulesDir,
		LockfilePath:      lockPath,
		InstallCacheDir:   filepath.Join(commonTempDir, "install-cache"),
		TransientDir:      filepath.Join(commonTempDir, "transient"),
		ToolVersionMarker: filepath.Join(commonTempDir, w.Repo.InstallerName+"-local-install.json"),
		TempScopeDir:      filepath.Join(modulesDir, workspace.ReservedTempScope),
		InstallerCommand:  w.Repo.InstallerName,
		InstallerArgs:     []string{"install", "--prefix", commonTempDir},
	}
	for _, p := range w.Projects {
		in.StubArchivePaths = append(in.StubArchivePaths, stubpkg.ArchivePath(commonTempDir, p.UnscopedTempName))
	}

	if err := linker.Invalidate(projectDirsOf(root, w)); err != nil {
		return err
	}

	rec := recycler.New(filepath.Join(commonTempDir, ".recycle"))
	res, err := installer.Run(context.Background(), in, mode, rec)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(cmd.OutOrStdout(), "install: skipped, nothing changed since the last successful install")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "install: completed")
	}

	noLink, _ := cmd.Flags().GetBool("no-link")
	if !noLink {
		projectDirs := projectDirsOf(root, w)
		if err := linker.Link(projectDirs, plan.LocalLinks); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "install: local packages linked")
	}

	emit.Emit(telemetry.Event{Kind: telemetry.KindInstallDone})
	return nil
}

// workspaceRoot resolves the repository root. Forge assumes invocation
// from the root (no upward directory search, matching spec.md's scope).
func workspaceRoot() (string, error) {
	return ".", nil
}
