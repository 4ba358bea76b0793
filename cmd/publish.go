package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/changeset"
	"github.com/forgetool/forge/internal/procrun"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Apply pending change files and publish the affected packages",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().Bool("apply", false, "actually run the publish command; otherwise only bump versions and rewrite changelogs")
	publishCmd.Flags().String("prerelease", "", "prerelease token; when set, every bump lands in suffix mode instead of a normal release")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
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

	changesDir := filepath.Join(root, "common", "changes")
	files, err := changeset.ReadChangeFiles(changesDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "publish: no pending change files")
		return nil
	}
	aggregated := changeset.Aggregate(files)

	prerelease, _ := cmd.Flags().GetString("prerelease")
	changes, err := changeset.Run(w, resolver, aggregated, changeset.Options{PrereleaseToken: prerelease})
	if err != nil {
		return err
	}

	entries, err := changeset.Apply(w, changes)
	if err != nil {
		return err
	}
	if err := writeChangelogs(root, entries); err != nil {
		return err
	}

	apply, _ := cmd.Flags().GetBool("apply")
	for _, pc := range changes {
		if pc.Skipped || pc.NewVersion == pc.CurrentVersion {
			continue
		}
		proj := w.ByName(pc.PackageName)
		if proj == nil || !proj.ShouldPublish {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "publish: %s -> %s\n", pc.PackageName, pc.NewVersion)
		if !apply {
			continue
		}
		dir := filepath.Join(root, proj.Folder)
		if _, err := procrun.Run(context.Background(), dir, w.Repo.InstallerName, "publish"); err != nil {
			return fmt.Errorf("publish: %s: %w", pc.PackageName, err)
		}
	}

	if apply {
		if err := os.RemoveAll(changesDir); err != nil {
			return fmt.Errorf("publish: clearing consumed change files: %w", err)
		}
	}
	return nil
}

func writeChangelogs(root string, entries []changeset.ChangelogEntry) error {
	byPackage := make(map[string][]changeset.ChangelogEntry)
	for _, e := range entries {
		byPackage[e.PackageName] = append(byPackage[e.PackageName], e)
	}
	for pkg, es := range byPackage {
		var b strings.Builder
		for _, e := range es {
			fmt.Fprintf(&b, "## %s\n\n", e.Version)
			for _, c := range e.Comments {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			if len(e.Comments) == 0 {
				fmt.Fprintf(&b, "- %s release\n", e.Kind)
			}
			b.WriteString("\n")
		}
		path := filepath.Join(root, "common", "changelogs", pkg+".md")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		existing, _ := os.ReadFile(path)
		combined := b.String() + string(existing)
		if err := os.WriteFile(path, []byte(combined), 0o644); err != nil {
			return err
		}
	}
	return nil
}
