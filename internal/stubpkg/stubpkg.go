// Package stubpkg packages a project's synthetic stub manifest into the
// gzipped tar archive the external installer resolves local-link-excluded
// dependencies against (spec.md §4.3 step 4). The archive is written only
// when its content differs from what is already on disk, preserving the
// existing file's mtime across unchanged runs — downstream incremental
// logic in the installer driver depends on that timestamp being stable.
package stubpkg

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgetool/forge/internal/pkgmanifest"
)

// entryName is the single file every stub archive contains, matching the
// "package/package.json" convention of the real-world package-archive
// format this domain is closest to.
const entryName = "package/package.json"

// Build serializes manifest into a single-entry gzipped tar and returns
// its bytes. Building is pure and deterministic: same manifest content in,
// same bytes out, every time.
func Build(manifest *pkgmanifest.Manifest) ([]byte, error) {
	body, err := manifest.Marshal()
	if err != nil {
		return nil, fmt.Errorf("stubpkg: marshaling stub manifest: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name: entryName,
		Mode: 0o644,
		Size: int64(len(body)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("stubpkg: writing tar header: %w", err)
	}
	if _, err := tw.Write(body); err != nil {
		return nil, fmt.Errorf("stubpkg: writing tar entry: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("stubpkg: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("stubpkg: closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Write packages manifest and writes it to path only if the freshly built
// bytes differ from what is currently on disk. It reports whether the
// file was actually rewritten.
func Write(path string, manifest *pkgmanifest.Manifest) (changed bool, err error) {
	fresh, err := Build(manifest)
	if err != nil {
		return false, err
	}

	if existing, readErr := os.ReadFile(path); readErr == nil {
		if bytes.Equal(existing, fresh) {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("stubpkg: creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, fresh, 0o644); err != nil {
		return false, fmt.Errorf("stubpkg: writing %s: %w", path, err)
	}
	return true, nil
}

// ArchivePath computes the deterministic per-project stub archive path
// under the common temp directory (spec.md §6's persisted state layout).
func ArchivePath(commonTempDir, unscopedTempName string) string {
	return filepath.Join(commonTempDir, "projects", unscopedTempName+".tgz")
}
