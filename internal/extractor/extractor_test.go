package extractor

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/flatten/internal/dedup"
	"github.com/harrison/flatten/internal/history"
	"github.com/harrison/flatten/internal/scanner"
)

// newRoot creates a flatten target beneath an allowed location and
// returns both, so safety validation passes for the target.
func newRoot(t *testing.T) (root string, allowed []string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "inbox")
	require.NoError(t, os.MkdirAll(root, 0755))
	return root, []string{base}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRunFlattensNestedFiles(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "one.txt"), "one")
	writeFile(t, filepath.Join(root, "a", "b", "two.txt"), "two")
	writeFile(t, filepath.Join(root, "top.txt"), "top")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Moved)
	assert.Equal(t, 0, result.Renamed)
	assert.Empty(t, result.Errors)

	assert.FileExists(t, filepath.Join(root, "one.txt"))
	assert.FileExists(t, filepath.Join(root, "two.txt"))
	assert.FileExists(t, filepath.Join(root, "top.txt"))
	assert.NoDirExists(t, filepath.Join(root, "a"))
}

func TestRunRenamesNameCollision(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "doc.pdf"), "root version")
	writeFile(t, filepath.Join(root, "sub", "doc.pdf"), "sub version")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.Renamed)

	data, err := os.ReadFile(filepath.Join(root, "doc_1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "sub version", string(data))

	data, err = os.ReadFile(filepath.Join(root, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "root version", string(data))
}

func TestRunSameNameContentDuplicate(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "doc.pdf"), "identical bytes")
	writeFile(t, filepath.Join(root, "sub", "doc.pdf"), "identical bytes")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Moved)
	assert.Equal(t, 1, result.ContentDuplicates)
	assert.NoFileExists(t, filepath.Join(root, "doc_1.pdf"))
	assert.NoDirExists(t, filepath.Join(root, "sub"))
}

func TestRunGlobalDedupAcrossNames(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "kept.txt"), "shared payload")
	writeFile(t, filepath.Join(root, "sub", "other-name.txt"), "shared payload")
	writeFile(t, filepath.Join(root, "sub", "fresh.txt"), "unique payload")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, DedupGlobal: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.GlobalDuplicates)
	assert.NoFileExists(t, filepath.Join(root, "other-name.txt"))
	assert.FileExists(t, filepath.Join(root, "fresh.txt"))
}

func TestRunGlobalDedupWithinBatch(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "first.txt"), "same content")
	writeFile(t, filepath.Join(root, "b", "second.txt"), "same content")

	e := New(Options{AllowedRoots: allowed, DedupGlobal: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	// The first copy moves, the second is recognized as redundant even
	// though neither existed at the root before the run.
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.GlobalDuplicates)
}

func TestRunIdempotent(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "one.txt"), "one")
	writeFile(t, filepath.Join(root, "b", "two.txt"), "two")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true})

	first, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Moved)

	second, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Moved)
	assert.Equal(t, 0, second.ContentDuplicates)
	assert.Empty(t, second.Errors)
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "doc.pdf"), "identical bytes")
	writeFile(t, filepath.Join(root, "sub", "doc.pdf"), "identical bytes")
	writeFile(t, filepath.Join(root, "sub", "moved.txt"), "payload")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true, DryRun: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.ContentDuplicates)

	// Disk untouched: sources in place, no history database created.
	assert.FileExists(t, filepath.Join(root, "sub", "doc.pdf"))
	assert.FileExists(t, filepath.Join(root, "sub", "moved.txt"))
	assert.NoFileExists(t, filepath.Join(root, "moved.txt"))
	assert.NoFileExists(t, history.DBPath(root))
}

func TestRunDryRunMatchesRealRunOnBatchNameCollisions(t *testing.T) {
	// Two same-named, byte-identical candidates and nothing at the root:
	// the collision only exists once the first one lands, so the preview
	// must simulate it.
	build := func(t *testing.T) (string, []string) {
		root, allowed := newRoot(t)
		writeFile(t, filepath.Join(root, "a", "doc.pdf"), "identical bytes")
		writeFile(t, filepath.Join(root, "b", "doc.pdf"), "identical bytes")
		return root, allowed
	}

	dryRoot, dryAllowed := build(t)
	dry, err := New(Options{AllowedRoots: dryAllowed, DedupSameName: true, DryRun: true}).
		Run(context.Background(), dryRoot)
	require.NoError(t, err)

	realRoot, realAllowed := build(t)
	live, err := New(Options{AllowedRoots: realAllowed, DedupSameName: true}).
		Run(context.Background(), realRoot)
	require.NoError(t, err)

	assert.Equal(t, live.Moved, dry.Moved)
	assert.Equal(t, live.ContentDuplicates, dry.ContentDuplicates)
	assert.Equal(t, live.Renamed, dry.Renamed)
	assert.Equal(t, 1, dry.Moved)
	assert.Equal(t, 1, dry.ContentDuplicates)

	// The preview touched nothing.
	assert.FileExists(t, filepath.Join(dryRoot, "a", "doc.pdf"))
	assert.FileExists(t, filepath.Join(dryRoot, "b", "doc.pdf"))
}

func TestRunDryRunMatchesRealRunOnDistinctContentCollisions(t *testing.T) {
	build := func(t *testing.T) (string, []string) {
		root, allowed := newRoot(t)
		writeFile(t, filepath.Join(root, "a", "doc.pdf"), "first version")
		writeFile(t, filepath.Join(root, "b", "doc.pdf"), "second version")
		writeFile(t, filepath.Join(root, "c", "doc.pdf"), "third version")
		return root, allowed
	}

	dryRoot, dryAllowed := build(t)
	dry, err := New(Options{AllowedRoots: dryAllowed, DedupSameName: true, DryRun: true}).
		Run(context.Background(), dryRoot)
	require.NoError(t, err)

	realRoot, realAllowed := build(t)
	live, err := New(Options{AllowedRoots: realAllowed, DedupSameName: true}).
		Run(context.Background(), realRoot)
	require.NoError(t, err)

	assert.Equal(t, live.Moved, dry.Moved)
	assert.Equal(t, live.Renamed, dry.Renamed)
	assert.Equal(t, 3, dry.Moved)
	assert.Equal(t, 2, dry.Renamed)
	assert.Empty(t, dry.Errors)

	// The real run resolved each collision to a distinct name.
	assert.FileExists(t, filepath.Join(realRoot, "doc.pdf"))
	assert.FileExists(t, filepath.Join(realRoot, "doc_1.pdf"))
	assert.FileExists(t, filepath.Join(realRoot, "doc_2.pdf"))
}

func TestRunDryRunLeavesSharedIndexUntouched(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "one.txt"), "same content")
	writeFile(t, filepath.Join(root, "b", "two.txt"), "same content")

	shared := dedup.NewIndex()
	e := New(Options{AllowedRoots: allowed, DedupGlobal: true, DryRun: true, Index: shared})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	// The duplicate is still detected through the simulated overlay.
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.GlobalDuplicates)

	// The shared index holds only durably-placed files: none.
	assert.Equal(t, 0, shared.Len())
}

func TestRunUnsafeRootRefused(t *testing.T) {
	root, _ := newRoot(t)

	e := New(Options{AllowedRoots: []string{filepath.Join(root, "elsewhere")}})
	result, err := e.Run(context.Background(), root)
	require.ErrorIs(t, err, ErrUnsafeRoot)
	assert.Nil(t, result)
}

func TestRunCancelledContextKeepsPartialResult(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "one.txt"), "one")
	writeFile(t, filepath.Join(root, "b", "two.txt"), "two")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Options{AllowedRoots: allowed})
	result, err := e.Run(ctx, root)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Moved)
}

func TestRunUndoRestoresOriginalLayout(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "doc.pdf"), "identical bytes")
	writeFile(t, filepath.Join(root, "a", "doc.pdf"), "identical bytes")
	writeFile(t, filepath.Join(root, "a", "notes.txt"), "notes")

	e := New(Options{AllowedRoots: allowed, DedupSameName: true, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 1, result.ContentDuplicates)

	store, err := history.Open(root)
	require.NoError(t, err)
	defer store.Close()

	undo, err := store.Undo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, undo.Restored)
	assert.Empty(t, undo.Conflicts)

	// Both files are back, including the deleted duplicate rebuilt from
	// its surviving copy.
	assert.FileExists(t, filepath.Join(root, "a", "doc.pdf"))
	assert.FileExists(t, filepath.Join(root, "a", "notes.txt"))
	assert.NoFileExists(t, filepath.Join(root, "notes.txt"))
}

func TestRunRespectsExtensionFilter(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "sub", "keep.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "sub", "skip.txt"), "txt")

	e := New(Options{
		AllowedRoots: allowed,
		Scan:         scanner.Options{Extensions: []string{".pdf"}},
	})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Moved)
	assert.FileExists(t, filepath.Join(root, "keep.pdf"))
	assert.FileExists(t, filepath.Join(root, "sub", "skip.txt"))
}

func TestRunSkippedFolderReported(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "sub", "file.txt"), "payload")
	writeFile(t, filepath.Join(root, "sub", ".hidden"), "kept in place")

	e := New(Options{AllowedRoots: allowed, RemoveEmptyDirs: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Moved)
	require.Len(t, result.SkippedFolders, 1)
	assert.Equal(t, filepath.Join(root, "sub"), result.SkippedFolders[0].Path)
	assert.Equal(t, "not empty", result.SkippedFolders[0].Reason)
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestRunExtractsArchives(t *testing.T) {
	root, allowed := newRoot(t)
	writeZip(t, filepath.Join(root, "sub", "bundle.zip"), map[string]string{
		"inner/report.txt": "report body",
		"readme.md":        "readme body",
	})

	e := New(Options{
		AllowedRoots:    allowed,
		ExtractArchives: true,
		DeleteArchives:  true,
		RemoveEmptyDirs: true,
	})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Moved)
	assert.Empty(t, result.Errors)
	assert.Contains(t, result.CreatedFolders, filepath.Join(root, "sub", "bundle"))

	assert.FileExists(t, filepath.Join(root, "report.txt"))
	assert.FileExists(t, filepath.Join(root, "readme.md"))
	assert.NoFileExists(t, filepath.Join(root, "sub", "bundle.zip"))
	assert.NoDirExists(t, filepath.Join(root, "sub"))
}

func TestRunRecursiveArchiveExtraction(t *testing.T) {
	root, allowed := newRoot(t)

	// Inner zip built first, then embedded in the outer one.
	innerPath := filepath.Join(t.TempDir(), "inner.zip")
	writeZip(t, innerPath, map[string]string{"deep.txt": "deep content"})
	innerBytes, err := os.ReadFile(innerPath)
	require.NoError(t, err)

	writeZip(t, filepath.Join(root, "sub", "outer.zip"), map[string]string{
		"inner.zip": string(innerBytes),
		"flat.txt":  "flat content",
	})

	e := New(Options{
		AllowedRoots:    allowed,
		ExtractArchives: true,
		RecurseArchives: true,
		ArchiveMaxDepth: 3,
		DeleteArchives:  true,
		RemoveEmptyDirs: true,
	})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.FileExists(t, filepath.Join(root, "deep.txt"))
	assert.FileExists(t, filepath.Join(root, "flat.txt"))
}

func TestRunRejectsUnsafeArchive(t *testing.T) {
	root, allowed := newRoot(t)
	writeZip(t, filepath.Join(root, "sub", "evil.zip"), map[string]string{
		"../../escape.txt": "nope",
	})
	writeFile(t, filepath.Join(root, "sub", "ok.txt"), "fine")

	e := New(Options{AllowedRoots: allowed, ExtractArchives: true, DeleteArchives: true})
	result, err := e.Run(context.Background(), root)
	require.NoError(t, err)

	// The archive is rejected whole and left on disk; the rest of the
	// run proceeds.
	require.Len(t, result.Errors, 1)
	assert.Equal(t, filepath.Join(root, "sub", "evil.zip"), result.Errors[0].Path)
	assert.FileExists(t, filepath.Join(root, "sub", "evil.zip"))
	assert.FileExists(t, filepath.Join(root, "ok.txt"))
}

func TestArchiveStem(t *testing.T) {
	assert.Equal(t, "bundle", archiveStem("bundle.zip"))
	assert.Equal(t, "data", archiveStem("data.tar.gz"))
	assert.Equal(t, "data", archiveStem("data.tgz"))
	assert.Equal(t, "plain_extracted", archiveStem("plain"))
}

func TestRunProgressCallback(t *testing.T) {
	root, allowed := newRoot(t)
	writeFile(t, filepath.Join(root, "a", "one.txt"), "one")
	writeFile(t, filepath.Join(root, "b", "two.txt"), "two")

	var steps []int
	e := New(Options{
		AllowedRoots: allowed,
		Progress: func(index, total int, path string) {
			assert.Equal(t, 2, total)
			steps = append(steps, index)
		},
	})
	_, err := e.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, steps)
}
