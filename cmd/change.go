package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/changeset"
	"github.com/forgetool/forge/internal/forgeerr"
	"github.com/forgetool/forge/internal/semver"
	"github.com/forgetool/forge/internal/workspace"
)

var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Write a change file recording a package's pending release kind",
	RunE:  runChange,
}

func init() {
	changeCmd.Flags().String("package", "", "the project the change file applies to (required)")
	changeCmd.Flags().String("type", "patch", "change kind: none, dependency, patch, minor, major")
	changeCmd.Flags().String("comment", "", "human-readable summary for the changelog")
	rootCmd.AddCommand(changeCmd)
}

func runChange(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	w, err := workspace.Load(root)
	if err != nil {
		return err
	}

	pkg, _ := cmd.Flags().GetString("package")
	if pkg == "" {
		return forgeerr.New(forgeerr.Validation, "change: --package is required")
	}
	if w.ByName(pkg) == nil {
		return forgeerr.New(forgeerr.Validation, "change: unknown project %q", pkg)
	}

	kindRaw, _ := cmd.Flags().GetString("type")
	if _, err := semver.ParseChangeKind(kindRaw); err != nil {
		return forgeerr.Wrap(forgeerr.Validation, err, "change: --type")
	}
	comment, _ := cmd.Flags().GetString("comment")

	cf := changeset.ChangeFile{
		PackageName: pkg,
		Changes: []changeset.ChangeInfo{
			{PackageName: pkg, TypeRaw: kindRaw, Comment: comment},
		},
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("change: marshaling change file: %w", err)
	}

	changesDir := filepath.Join(root, "common", "changes", pkg)
	if err := os.MkdirAll(changesDir, 0o755); err != nil {
		return forgeerr.Wrap(forgeerr.TransientIO, err, "change: creating changes directory")
	}
	name := fmt.Sprintf("%s-%d.json", pkg, time.Now().UnixNano())
	path := filepath.Join(changesDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return forgeerr.Wrap(forgeerr.TransientIO, err, "change: writing change file")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "change: wrote %s\n", path)
	return nil
}
