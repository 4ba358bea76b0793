package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/linker"
	"github.com/forgetool/forge/internal/lockfile"
	"github.com/forgetool/forge/internal/planner"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Materialize symlinks between local workspace projects",
	RunE:  runLink,
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove the local-link completion markers for every project",
	RunE:  runUnlink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
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

	projectDirs := projectDirsOf(root, w)
	if err := linker.Link(projectDirs, plan.LocalLinks); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "link: local packages linked")
	return nil
}

func runUnlink(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	w, err := workspace.Load(root)
	if err != nil {
		return err
	}

	projectDirs := projectDirsOf(root, w)
	if err := linker.Invalidate(projectDirs); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "unlink: local link markers removed")
	return nil
}

func projectDirsOf(root string, w *workspace.Workspace) map[string]string {
	dirs := make(map[string]string, w.Len())
	for _, p := range w.Projects {
		dirs[p.PackageName] = filepath.Join(root, p.Folder)
	}
	return dirs
}
