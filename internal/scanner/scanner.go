// Package scanner enumerates candidate files beneath a root directory.
//
// Traversal is iterative over an explicit stack rather than recursive, so
// pathologically deep trees (well beyond 1500 levels) scan without
// exhausting the call stack. Depth and hidden-directory filters prune the
// traversal frontier directly instead of filtering results afterwards.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// systemFileNames are exact filenames excluded from every scan.
var systemFileNames = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// systemFileSuffixes are filename suffixes excluded from every scan.
var systemFileSuffixes = []string{
	".tmp",
	".swp",
	".part",
	".crdownload",
	"~",
}

// Options configures a directory scan.
type Options struct {
	// MaxDepth limits how deep the scan descends below the root
	// (1 = direct children only). 0 means unlimited.
	MaxDepth int

	// Extensions restricts results to files with one of these extensions
	// (e.g. ".pdf"). Empty means all extensions.
	Extensions []string

	// IncludeHidden includes hidden files and descends into hidden
	// directories. When false, hidden directories are never entered and
	// hidden files are never returned.
	IncludeHidden bool
}

// frame is one pending directory on the traversal stack.
type frame struct {
	path  string
	depth int
}

// FindFiles returns the files beneath root that pass the configured
// filters. The context is polled once per traversal step; on cancellation
// the files discovered so far are returned with a nil error.
//
// The returned slice is a finished snapshot. A fresh call re-scans from
// scratch.
func FindFiles(ctx context.Context, root string, opts Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("access scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", root)
	}

	extMap := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}

	var files []string
	stack := []frame{{path: root, depth: 0}}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			// Cooperative cancellation: keep what we have.
			return files, nil
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			// Unreadable directories are skipped, not fatal.
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(cur.path, name)

			if entry.IsDir() {
				if !opts.IncludeHidden && isHidden(name) {
					continue
				}
				// Early pruning: children of a branch at MaxDepth are
				// never enqueued.
				if opts.MaxDepth > 0 && cur.depth+1 >= opts.MaxDepth {
					continue
				}
				stack = append(stack, frame{path: full, depth: cur.depth + 1})
				continue
			}

			if !entry.Type().IsRegular() {
				continue
			}
			if !opts.IncludeHidden && isHidden(name) {
				continue
			}
			if isSystemFile(name) {
				continue
			}
			if len(extMap) > 0 && !extMap[strings.ToLower(filepath.Ext(name))] {
				continue
			}

			files = append(files, full)
		}
	}

	sort.Strings(files)
	return files, nil
}

// isHidden reports whether a file or directory name is hidden by the
// dot-prefix convention.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isSystemFile reports whether a filename matches the system and
// temporary-file exclusion rules.
func isSystemFile(name string) bool {
	if systemFileNames[name] {
		return true
	}
	for _, suffix := range systemFileSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
