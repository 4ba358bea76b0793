package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/lockfile"
	"github.com/forgetool/forge/internal/planner"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the workspace and lockfile without installing or building",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	if plan.Verdict.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "check: workspace valid, %d project(s), lockfile satisfies every pin\n", w.Len())
		return nil
	}

	for _, reason := range plan.Verdict.Reasons {
		fmt.Fprintf(cmd.ErrOrStderr(), "check: %s\n", reason)
	}
	return fmt.Errorf("check: workspace is invalid (%d reason(s))", len(plan.Verdict.Reasons))
}
