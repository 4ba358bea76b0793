package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/versionpolicy"
	"github.com/forgetool/forge/internal/workspace"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Reconcile every project's manifest version against its policy",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	w, err := workspace.Load(root)
	if err != nil {
		return err
	}

	registryPath := filepath.Join(root, versionpolicy.DefaultRegistryPath)
	policies, err := versionpolicy.LoadRegistry(registryPath)
	if err != nil {
		return err
	}

	for _, p := range w.Projects {
		policy, ok := policies[p.VersionPolicyName]
		if !ok {
			continue
		}
		updated, err := policy.Ensure(p.Manifest)
		if err != nil {
			return err
		}
		if updated.Version == p.Manifest.Version {
			continue
		}
		if err := updated.Save(filepath.Join(root, p.Folder, "package.json")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version: %s -> %s (%s)\n", p.PackageName, updated.Version, p.VersionPolicyName)
		p.Manifest = updated
	}
	return nil
}
