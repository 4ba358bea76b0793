package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/forgetool/forge/internal/buildtask"
	"github.com/forgetool/forge/internal/config"
	"github.com/forgetool/forge/internal/dag"
	"github.com/forgetool/forge/internal/diagnostics"
	"github.com/forgetool/forge/internal/scheduler"
	"github.com/forgetool/forge/internal/telemetry"
	"github.com/forgetool/forge/internal/workspace"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the workspace, or a scoped slice of it, in dependency order",
	RunE:  runBuild,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Build the workspace ignoring change fingerprints",
	RunE:  runBuild,
}

func init() {
	for _, c := range []*cobra.Command{buildCmd, rebuildCmd} {
		c.Flags().StringSlice("to", nil, "limit the build to these projects and their dependencies")
		c.Flags().StringSlice("from", nil, "limit the build to these projects and their dependents")
		c.Flags().Int("parallelism", 0, "maximum concurrent build tasks (default: host CPU count)")
		c.Flags().Bool("production", false, "pass --production to each build command")
		c.Flags().Bool("npm", false, "pass --npm to each build command")
		c.Flags().Bool("minimal", false, "pass --minimal to each build command")
		c.Flags().Bool("verbose", false, "verbose build output")
		c.Flags().Bool("vso", false, "render diagnostics as Azure DevOps logging commands")
		c.Flags().Bool("clean", false, "force a full rebuild, ignoring change fingerprints")
		rootCmd.AddCommand(c)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
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

	selected, err := selectScope(cmd, g, w)
	if err != nil {
		return err
	}

	parallelism, _ := cmd.Flags().GetInt("parallelism")
	if parallelism <= 0 {
		parallelism = cfg.Parallelism
	}
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	production, _ := cmd.Flags().GetBool("production")
	npm, _ := cmd.Flags().GetBool("npm")
	minimal, _ := cmd.Flags().GetBool("minimal")
	vso, _ := cmd.Flags().GetBool("vso")
	forceClean := cmd.Name() == "rebuild"
	if v, _ := cmd.Flags().GetBool("clean"); v {
		forceClean = true
	}

	mode := buildtask.Mode{Production: production, NPM: npm, Minimal: minimal, ColorMode: cfg.ColorMode}

	emit, err := openTelemetry(w, filepath.Join(root, "common", "temp"))
	if err != nil {
		return err
	}
	defer emit.Close()
	emit.Emit(telemetry.Event{Kind: telemetry.KindBuildStart})

	sched := scheduler.New(parallelism, cmd.OutOrStdout())
	tasks := make(map[string]*buildtask.Task, len(selected))
	for name := range selected {
		p := w.ByName(name)
		if p == nil {
			return fmt.Errorf("build: unknown project %q in scope", name)
		}
		if err := sched.AddTask(name); err != nil {
			return err
		}
		tasks[name] = &buildtask.Task{
			ProjectName: name,
			ProjectDir:  filepath.Join(root, p.Folder),
			Manifest:    p.Manifest,
			Mode:        mode,
			LogDir:      filepath.Join(root, p.Folder, ".forge"),
			ForceClean:  forceClean,
		}
	}
	for name := range selected {
		var deps []string
		for _, dep := range g.Dependencies(name) {
			if selected[dep] {
				deps = append(deps, dep)
			}
		}
		if err := sched.AddDependencies(name, deps); err != nil {
			return err
		}
	}

	runErr := sched.Execute(context.Background(), func(ctx context.Context, name string, incrementalAllowed bool, w2 io.Writer) (scheduler.Status, []diagnostics.Diagnostic, error) {
		st, diags, taskErr := tasks[name].Run(ctx, incrementalAllowed, w2)
		emit.Emit(telemetry.Event{Kind: telemetry.KindTaskState, Project: name, Data: st.String()})
		return st, diags, taskErr
	})

	mode2 := diagnostics.ModeCIPlain
	if vso {
		mode2 = diagnostics.ModeCILinked
	}
	for name := range selected {
		if diags := sched.Errors(name); len(diags) > 0 {
			fmt.Fprint(cmd.ErrOrStderr(), diagnostics.Render(diags, mode2))
		}
	}

	emit.Emit(telemetry.Event{Kind: telemetry.KindBuildDone})
	return runErr
}

// buildProjectDAG constructs the local dependency graph: an edge from a
// project to the local project it depends on.
func buildProjectDAG(w *workspace.Workspace) (*dag.DAG, error) {
	g := dag.New()
	for _, p := range w.Projects {
		if err := g.AddNode(p.PackageName, 0); err != nil {
			return nil, err
		}
	}
	for _, p := range w.Projects {
		for _, consumer := range w.Downstream(p.PackageName) {
			if err := g.AddEdge(consumer, p.PackageName); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// selectScope resolves --to/--from into the set of project names to
// build. With neither flag, every project is in scope. --to adds each
// named project plus its transitive dependencies; --from adds each
// named project plus its transitive dependents.
func selectScope(cmd *cobra.Command, g *dag.DAG, w *workspace.Workspace) (map[string]bool, error) {
	to, _ := cmd.Flags().GetStringSlice("to")
	from, _ := cmd.Flags().GetStringSlice("from")

	if len(to) == 0 && len(from) == 0 {
		all := make(map[string]bool, w.Len())
		for _, p := range w.Projects {
			all[p.PackageName] = true
		}
		return all, nil
	}

	selected := make(map[string]bool)
	for _, name := range to {
		if w.ByName(name) == nil {
			return nil, fmt.Errorf("build: --to: unknown project %q", name)
		}
		selected[name] = true
		for _, dep := range g.Ancestors(name) {
			selected[dep] = true
		}
	}
	for _, name := range from {
		if w.ByName(name) == nil {
			return nil, fmt.Errorf("build: --from: unknown project %q", name)
		}
		selected[name] = true
		for _, dep := range g.Descendants(name) {
			selected[dep] = true
		}
	}
	return selected, nil
}
