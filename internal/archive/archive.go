// Package archive extracts container archives with fail-closed path
// validation: every member's resolved target path must remain inside the
// extraction directory or the whole archive is rejected before a single
// byte is written.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// UnsafePathError reports an archive member whose resolved target escapes
// the extraction directory (zip-slip). It is distinct from ordinary I/O
// failures so callers can report security rejections separately.
type UnsafePathError struct {
	Archive string
	Member  string
}

// Error implements the error interface.
func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("archive %s: member %q escapes extraction directory", e.Archive, e.Member)
}

// Extractor extracts one container format into a target directory and
// returns the paths of the files it wrote. New formats plug in by
// implementing this interface and registering in ForPath.
type Extractor interface {
	// Extract unpacks archivePath into targetDir. It validates every
	// member before writing anything: a single unsafe member aborts the
	// entire extraction with an *UnsafePathError and zero files written.
	Extract(ctx context.Context, archivePath, targetDir string) ([]string, error)
}

// ForPath selects the extractor for an archive by filename, or reports
// that the file is not a supported archive.
func ForPath(path string) (Extractor, bool) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return zipExtractor{}, true
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return tarGzExtractor{}, true
	default:
		return nil, false
	}
}

// IsArchive reports whether a supported extractor exists for path.
func IsArchive(path string) bool {
	_, ok := ForPath(path)
	return ok
}

// memberTarget resolves an archive member name against targetDir and
// verifies the result stays a descendant of it. Absolute member paths and
// traversal sequences are rejected outright.
func memberTarget(targetDir, member string) (string, error) {
	if member == "" {
		return "", fmt.Errorf("empty member name")
	}
	// Archives use forward slashes regardless of platform.
	cleaned := filepath.FromSlash(member)
	if filepath.IsAbs(cleaned) || !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("non-local member path %q", member)
	}

	target := filepath.Join(targetDir, cleaned)
	rel, err := filepath.Rel(targetDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("member path %q resolves outside target", member)
	}
	return target, nil
}
