// Package safety validates that filesystem operations stay inside a
// configured set of allowed root directories.
package safety

import (
	"path/filepath"
	"strings"
)

// IsSafePath reports whether path is a strict descendant of one of the
// allowed roots. The path and each root are resolved to their canonical
// absolute form (following symlinks) before comparison, so a symlink
// pointing outside the whitelist never passes.
//
// The bare allowed root itself is not considered safe, only locations
// below it. IsSafePath never returns an error; any path that cannot be
// resolved is unsafe.
func IsSafePath(path string, allowedRoots []string) bool {
	resolved, err := canonicalize(path)
	if err != nil {
		return false
	}

	for _, root := range allowedRoots {
		resolvedRoot, err := canonicalize(root)
		if err != nil {
			continue
		}
		if isStrictDescendant(resolved, resolvedRoot) {
			return true
		}
	}

	return false
}

// canonicalize resolves a path to its absolute, symlink-free form.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// isStrictDescendant reports whether path lies below root. Equality does
// not count: operating on the allowed root itself is rejected.
func isStrictDescendant(path, root string) bool {
	if path == root {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
