// Package namer produces collision-free destination filenames.
package namer

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UniqueName returns a variant of filename that does not collide with any
// entry in dir. The variant is "name_N.ext" with the smallest positive N
// not already in use; existing suffixed entries are scanned so gapped
// numbering is tolerated ({test.txt, test_1.txt, test_3.txt} yields
// test_2.txt). Filenames without an extension get a bare "_N" suffix.
//
// Multi-dot names are split on the last dot only, so "archive.tar.gz"
// becomes "archive.tar_1.gz".
func UniqueName(dir, filename string) (string, error) {
	return UniqueNameExcluding(dir, filename, nil)
}

// UniqueNameExcluding behaves like UniqueName but additionally treats
// every name in taken as occupied. Callers that plan placements without
// writing them (a dry run) pass the names they have already handed out.
func UniqueNameExcluding(dir, filename string, taken map[string]bool) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read destination directory: %w", err)
	}

	existing := make(map[string]bool, len(entries)+len(taken))
	for _, entry := range entries {
		existing[entry.Name()] = true
	}
	for name := range taken {
		existing[name] = true
	}

	if !existing[filename] {
		return filename, nil
	}

	base, ext := splitLastExt(filename)

	// Collect the suffix numbers already taken for this base name.
	used := make(map[int]bool)
	prefix := base + "_"
	for name := range existing {
		stem, nameExt := splitLastExt(name)
		if nameExt != ext || !strings.HasPrefix(stem, prefix) {
			continue
		}
		n, err := strconv.Atoi(stem[len(prefix):])
		if err != nil || n <= 0 {
			continue
		}
		used[n] = true
	}

	for n := 1; ; n++ {
		if !used[n] {
			return fmt.Sprintf("%s_%d%s", base, n, ext), nil
		}
	}
}

// splitLastExt splits a filename on its final dot. A leading dot (hidden
// file with no further dot) or no dot at all yields an empty extension.
func splitLastExt(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}
