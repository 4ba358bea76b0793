package cmd

import (
	"os"
	"path/filepath"

	"github.com/forgetool/forge/internal/planner"
	"github.com/forgetool/forge/internal/telemetry"
	"github.com/forgetool/forge/internal/workspace"
)

// commonManifestWrite persists the synthesized common manifest produced
// by the install planner so the external installer sees it at its
// conventional location alongside the stub archives.
func commonManifestWrite(path string, plan *planner.Result) error {
	return plan.CommonManifest.Save(path)
}

// openTelemetry opens the shared JSONL telemetry stream under
// commonTempDir when the repository manifest enables it. A disabled
// workspace gets a nil *telemetry.Emitter, whose Emit/Close calls are
// no-ops.
func openTelemetry(w *workspace.Workspace, commonTempDir string) (*telemetry.Emitter, error) {
	if !w.Repo.TelemetryEnabled {
		return nil, nil
	}
	if err := os.MkdirAll(commonTempDir, 0o755); err != nil {
		return nil, err
	}
	return telemetry.NewEmitter(filepath.Join(commonTempDir, "telemetry.jsonl"))
}
