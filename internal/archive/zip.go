package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// zipExtractor handles ZIP archives via random access to the central
// directory.
type zipExtractor struct{}

// Extract implements Extractor for ZIP archives. All member paths are
// validated against the target directory before the first file is
// written; a single escaping member rejects the whole archive.
func (zipExtractor) Extract(ctx context.Context, archivePath, targetDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer r.Close()

	resolvedTarget, err := resolveTargetDir(targetDir)
	if err != nil {
		return nil, err
	}

	// Validation pass: fail closed before any write.
	targets := make([]string, len(r.File))
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, &UnsafePathError{Archive: archivePath, Member: f.Name}
		}
		target, err := memberTarget(resolvedTarget, f.Name)
		if err != nil {
			return nil, &UnsafePathError{Archive: archivePath, Member: f.Name}
		}
		targets[i] = target
	}

	var written []string
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0755); err != nil {
				return written, fmt.Errorf("create directory %s: %w", targets[i], err)
			}
			continue
		}
		if err := writeZipMember(f, targets[i]); err != nil {
			return written, fmt.Errorf("extract %q: %w", f.Name, err)
		}
		written = append(written, targets[i])
	}

	return written, nil
}

// writeZipMember streams one regular zip member to its target path.
func writeZipMember(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open member: %w", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, memberMode(f.Mode()))
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("close output file: %w", err)
	}

	return nil
}

// memberMode sanitizes an archive-supplied mode down to permission bits,
// guaranteeing the owner can read what was just written.
func memberMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	return perm | 0400
}

// resolveTargetDir canonicalizes the extraction directory (creating it if
// needed) so member containment checks compare like with like.
func resolveTargetDir(targetDir string) (string, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(targetDir)
	if err != nil {
		return "", fmt.Errorf("resolve target directory: %w", err)
	}
	return resolved, nil
}
