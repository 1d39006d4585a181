package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/flatten/internal/archive"
	"github.com/harrison/flatten/internal/namer"
)

// extractArchives runs the archive pre-pass over the scan results. Every
// supported archive is unpacked into a fresh sibling directory named
// after the archive, and the extracted files join the candidate set so
// the main loop flattens them like anything else. With recursion enabled,
// archives found inside extracted output are unpacked too, down to the
// configured nesting depth.
//
// A rejected archive (unsafe member, corrupt data) is reported in the
// result and left untouched; it never aborts the run.
func (e *Extractor) extractArchives(ctx context.Context, root string, files []string, result *Result) []string {
	maxDepth := e.opts.ArchiveMaxDepth
	if maxDepth < 1 {
		maxDepth = 1
	}
	if !e.opts.RecurseArchives {
		maxDepth = 1
	}

	seen := make(map[string]bool, len(files))

	out := files[:0:0]
	queue := make([]archiveItem, 0)
	for _, f := range files {
		if archive.IsArchive(f) {
			queue = append(queue, archiveItem{path: f, depth: 1})
		} else {
			out = append(out, f)
		}
	}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			// Unprocessed archives stay in the candidate set as plain
			// files so cancellation loses nothing.
			for _, item := range queue {
				out = append(out, item.path)
			}
			return out
		}

		item := queue[0]
		queue = queue[1:]

		if seen[item.path] {
			continue
		}
		seen[item.path] = true

		extracted, targetDir, err := e.extractOne(ctx, item.path, result)
		if err != nil {
			result.addError(item.path, err.Error())
			// Leave the failed archive where it is; it is not a move
			// candidate.
			continue
		}
		if targetDir != "" {
			result.CreatedFolders = append(result.CreatedFolders, targetDir)
		}

		for _, f := range extracted {
			if archive.IsArchive(f) && item.depth < maxDepth {
				queue = append(queue, archiveItem{path: f, depth: item.depth + 1})
			} else {
				out = append(out, f)
			}
		}
	}

	return out
}

type archiveItem struct {
	path  string
	depth int
}

// extractOne unpacks a single archive into a sibling directory named
// after the archive stem, resolving collisions with a numeric suffix. In
// dry-run mode nothing is written; the planned target is still reported.
func (e *Extractor) extractOne(ctx context.Context, archivePath string, result *Result) (extracted []string, targetDir string, err error) {
	ex, ok := archive.ForPath(archivePath)
	if !ok {
		return nil, "", fmt.Errorf("unsupported archive format")
	}

	parent := filepath.Dir(archivePath)
	dirName := archiveStem(filepath.Base(archivePath))
	if _, exists := statExists(filepath.Join(parent, dirName)); exists {
		unique, uerr := namer.UniqueName(parent, dirName)
		if uerr != nil {
			return nil, "", fmt.Errorf("resolve extraction directory: %w", uerr)
		}
		dirName = unique
	}
	targetDir = filepath.Join(parent, dirName)

	if e.opts.DryRun {
		return nil, targetDir, nil
	}

	extracted, err = ex.Extract(ctx, archivePath, targetDir)
	if err != nil {
		var unsafe *archive.UnsafePathError
		if errors.As(err, &unsafe) {
			return nil, "", fmt.Errorf("rejected, unsafe member path %q", unsafe.Member)
		}
		return nil, "", fmt.Errorf("extract: %w", err)
	}

	if e.opts.DeleteArchives {
		if rerr := os.Remove(archivePath); rerr != nil {
			result.addError(archivePath, fmt.Sprintf("remove extracted archive: %v", rerr))
		}
	}

	return extracted, targetDir, nil
}

// archiveStem strips the archive suffix from a filename to derive the
// extraction directory name.
func archiveStem(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(lower, suffix) {
			stem := name[:len(name)-len(suffix)]
			if stem != "" {
				return stem
			}
		}
	}
	return name + "_extracted"
}
