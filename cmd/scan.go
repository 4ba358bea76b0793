package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/workspace"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print the workspace's local dependency graph",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	w, err := workspace.Load(root)
	if err != nil {
		return err
	}

	g, err := buildProjectDAG(w)
	if err != nil {
		return err
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	cpl, err := g.CriticalPathLengths()
	if err != nil {
		return err
	}

	for _, name := range order {
		deps := g.Dependencies(name)
		sort.Strings(deps)
		if len(deps) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (cpl=%d)\n", name, cpl[name])
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (cpl=%d) -> %v\n", name, cpl[name], deps)
	}
	return nil
}
