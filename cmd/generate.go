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

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate the synthesized common manifest and stub archives without installing",
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
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

	if !plan.Verdict.Valid {
		for _, reason := range plan.Verdict.Reasons {
			fmt.Fprintf(cmd.ErrOrStderr(), "lockfile invalid: %s\n", reason)
		}
	}

	if _, err := planner.WriteStubArchives(w, plan, commonTempDir); err != nil {
		return err
	}
	if err := commonManifestWrite(filepath.Join(commonTempDir, "package.json"), plan); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "generate: common manifest and stub archives refreshed")
	return nil
}
