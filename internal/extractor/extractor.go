// Package extractor composes discovery, deduplication, moving, archive
// extraction and history into one cancellable flattening run.
//
// A run is strictly sequential: traversal, hashing and moving happen as
// consecutive steps on one goroutine. The Extractor holds no mutable
// state across invocations, so one instance may serve concurrent runs on
// distinct target roots; only an explicitly shared dedup.Index or context
// crosses that boundary.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/flatten/internal/dedup"
	"github.com/harrison/flatten/internal/filelock"
	"github.com/harrison/flatten/internal/history"
	"github.com/harrison/flatten/internal/mover"
	"github.com/harrison/flatten/internal/namer"
	"github.com/harrison/flatten/internal/safety"
	"github.com/harrison/flatten/internal/scanner"
)

// ErrUnsafeRoot is returned when the target root is not a strict
// descendant of an allowed location. Nothing is mutated.
var ErrUnsafeRoot = errors.New("target root is outside the allowed locations")

// ErrRootLocked is returned when another process is already flattening
// the same root.
var ErrRootLocked = errors.New("target root is locked by another run")

// ProgressFunc is invoked once per processed file. index is 1-based.
type ProgressFunc func(index, total int, path string)

// Options configures an extraction run.
type Options struct {
	// AllowedRoots is the whitelist the target root is validated against.
	AllowedRoots []string

	// Scan configures candidate discovery below the target root.
	Scan scanner.Options

	// DedupSameName removes a source whose content matches the file
	// already holding its name at the destination.
	DedupSameName bool

	// DedupGlobal removes a source whose content matches any file at the
	// destination root, regardless of name.
	DedupGlobal bool

	// ExtractArchives enables the archive pre-pass.
	ExtractArchives bool

	// RecurseArchives extracts archives found inside extracted output.
	RecurseArchives bool

	// ArchiveMaxDepth bounds recursive extraction (minimum 1 when
	// ExtractArchives is set).
	ArchiveMaxDepth int

	// DeleteArchives removes a source archive after its extraction fully
	// succeeded.
	DeleteArchives bool

	// RemoveEmptyDirs removes directories left empty by the run.
	RemoveEmptyDirs bool

	// DryRun computes every classification without mutating anything.
	DryRun bool

	// Progress, when non-nil, receives one callback per processed file.
	Progress ProgressFunc

	// Index, when non-nil, is used instead of building a fresh dedup
	// index. The caller owns its lifetime and sharing.
	Index *dedup.Index
}

// Extractor runs flattening operations.
type Extractor struct {
	opts Options
}

// New creates an Extractor with the given options.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Run flattens every candidate file beneath root into root itself,
// deduplicating according to the options, recording each operation in
// the root's history, and removing emptied directories.
//
// Security violations on the root abort before any mutation. Per-file
// failures are captured in the Result and do not stop the batch.
// Cancellation is honored at least once per processed file; completed
// work is kept and the partial Result is returned with Cancelled set.
func (e *Extractor) Run(ctx context.Context, root string) (*Result, error) {
	if !safety.IsSafePath(root, e.opts.AllowedRoots) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeRoot, root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve target root: %w", err)
	}

	result := &Result{DryRun: e.opts.DryRun}

	var store *history.Store
	batchID := history.NewBatchID()
	if !e.opts.DryRun {
		lock, err := filelock.New(absRoot)
		if err != nil {
			return nil, err
		}
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("%w: %s", ErrRootLocked, absRoot)
		}
		defer lock.Unlock()

		store, err = history.Open(absRoot)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	files, err := scanner.FindFiles(ctx, absRoot, e.opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	if e.opts.ExtractArchives {
		files = e.extractArchives(ctx, absRoot, files, result)
	}

	candidates := e.selectCandidates(absRoot, files)

	index := e.opts.Index
	if e.opts.DedupGlobal && index == nil {
		index, err = dedup.BuildIndex(ctx, absRoot, candidateSizes(candidates))
		if err != nil {
			return nil, fmt.Errorf("build dedup index: %w", err)
		}
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	var sim *dryRunState
	if e.opts.DryRun {
		sim = newDryRunState()
	}

	total := len(candidates)
	for i, src := range candidates {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}

		if err := e.processFile(ctx, absRoot, src, index, sim, store, batchID, result); err != nil {
			result.addError(src, err.Error())
		}

		if e.opts.Progress != nil {
			e.opts.Progress(i+1, total, src)
		}
	}

	if e.opts.RemoveEmptyDirs && !e.opts.DryRun {
		e.removeEmptyDirs(absRoot, result)
	}

	return result, nil
}

// selectCandidates filters scan results down to the files that actually
// need moving: anything not already sitting directly in the root, and
// nothing from flatten's own state directory.
func (e *Extractor) selectCandidates(root string, files []string) []string {
	stateDir := filepath.Join(root, history.StateDirName) + string(filepath.Separator)

	var candidates []string
	for _, f := range files {
		if filepath.Dir(f) == root {
			continue
		}
		if len(f) > len(stateDir) && f[:len(stateDir)] == stateDir {
			continue
		}
		candidates = append(candidates, f)
	}
	return candidates
}

// candidateSizes collects the file sizes of the candidate set so the
// dedup index only hashes destination files that could match something.
func candidateSizes(candidates []string) map[int64]bool {
	sizes := make(map[int64]bool, len(candidates))
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil {
			sizes[info.Size()] = true
		}
	}
	return sizes
}

// processFile runs the per-file pipeline: dedup classification, name
// resolution, move, history append. During a dry run, sim stands in for
// the files a real run would already have placed.
func (e *Extractor) processFile(ctx context.Context, root, src string, index *dedup.Index, sim *dryRunState, store *history.Store, batchID string, result *Result) error {
	if ctx.Err() != nil {
		return nil
	}

	name := filepath.Base(src)
	samePath := filepath.Join(root, name)

	// occupant is the file whose content holds this name at the
	// destination. In a dry run a planned placement counts too; its
	// source still exists on disk and can be fingerprinted.
	occupant := ""
	if _, onDisk := statExists(samePath); onDisk {
		occupant = samePath
	} else if sim != nil {
		if plannedSrc, ok := sim.occupantSource(name); ok {
			occupant = plannedSrc
		}
	}
	sameNameExists := occupant != ""

	var fingerprint string
	needHash := e.opts.DedupGlobal || (e.opts.DedupSameName && sameNameExists)
	if needHash {
		fp, err := dedup.Fingerprint(src, dedup.DefaultChunkSize)
		if err != nil {
			return fmt.Errorf("fingerprint: %w", err)
		}
		fingerprint = fp
	}

	// Local same-name dedup: identical content already holds this name.
	if e.opts.DedupSameName && sameNameExists {
		destFP, err := dedup.Fingerprint(occupant, dedup.DefaultChunkSize)
		if err != nil {
			return fmt.Errorf("fingerprint destination: %w", err)
		}
		if destFP == fingerprint {
			return e.dropDuplicate(ctx, src, occupant, store, batchID, result, &result.ContentDuplicates)
		}
		// Different content under the same name falls through to
		// collision renaming.
	}

	// Global dedup: identical content anywhere under the root.
	if e.opts.DedupGlobal {
		if existing, ok := lookupGlobal(index, sim, fingerprint); ok && existing != src {
			return e.dropDuplicate(ctx, src, existing, store, batchID, result, &result.GlobalDuplicates)
		}
	}

	dest := samePath
	renamed := false
	if sameNameExists {
		var taken map[string]bool
		if sim != nil {
			taken = sim.plannedNames()
		}
		unique, err := namer.UniqueNameExcluding(root, name, taken)
		if err != nil {
			return fmt.Errorf("resolve unique name: %w", err)
		}
		dest = filepath.Join(root, unique)
		renamed = true
	}

	if e.opts.DryRun {
		sim.plan(filepath.Base(dest), src)
	} else {
		if err := mover.Move(src, dest); err != nil {
			var partial *mover.PartialFailureError
			if errors.As(err, &partial) {
				// The copy landed; the source lingers. Record the move so
				// undo remains possible, but surface the duplication.
				e.record(ctx, store, batchID, src, dest, false, "", result)
				result.Moved++
				return fmt.Errorf("partial move, file exists in both places: %v", partial.Err)
			}
			return err
		}
		e.record(ctx, store, batchID, src, dest, false, "", result)
	}

	result.Moved++
	if renamed {
		result.Renamed++
	}

	// Later files in this same run must see this fingerprint at once.
	// A dry run records it in the overlay: the shared index only ever
	// holds entries whose move durably happened.
	if e.opts.DedupGlobal {
		if sim != nil {
			sim.index[fingerprint] = dest
		} else {
			index.Add(fingerprint, dest)
		}
	}

	return nil
}

// lookupGlobal consults the dedup index and, during a dry run, the
// simulated overlay on top of it.
func lookupGlobal(index *dedup.Index, sim *dryRunState, fingerprint string) (string, bool) {
	if existing, ok := index.Lookup(fingerprint); ok {
		return existing, true
	}
	if sim != nil {
		if existing, ok := sim.index[fingerprint]; ok {
			return existing, true
		}
	}
	return "", false
}

// dropDuplicate removes a redundant source file and records the deletion
// with a reference to the surviving copy.
func (e *Extractor) dropDuplicate(ctx context.Context, src, survivor string, store *history.Store, batchID string, result *Result, counter *int) error {
	if !e.opts.DryRun {
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove duplicate: %w", err)
		}
		e.record(ctx, store, batchID, src, src, true, survivor, result)
	}
	*counter++
	return nil
}

// record appends one history record, downgrading failures to result
// errors: a history write problem must not lose track of the run.
func (e *Extractor) record(ctx context.Context, store *history.Store, batchID, original, newPath string, duplicate bool, duplicateOf string, result *Result) {
	if store == nil {
		return
	}
	err := store.Record(ctx, &history.Record{
		BatchID:          batchID,
		OriginalPath:     original,
		NewPath:          newPath,
		ContentDuplicate: duplicate,
		DuplicateOf:      duplicateOf,
	})
	if err != nil {
		result.addError(original, fmt.Sprintf("record history: %v", err))
	}
}

// removeEmptyDirs removes directories left empty by the run, deepest
// first. Directories that still hold content are reported as skipped.
func (e *Extractor) removeEmptyDirs(root string, result *Result) {
	var dirs []string
	stack := []string{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(cur)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if cur == root && name == history.StateDirName {
				continue
			}
			if !e.opts.Scan.IncludeHidden && len(name) > 0 && name[0] == '.' {
				continue
			}
			full := filepath.Join(cur, name)
			dirs = append(dirs, full)
			stack = append(stack, full)
		}
	}

	// Children first: dirs was produced parents-before-children.
	for i := len(dirs) - 1; i >= 0; i-- {
		dir := dirs[i]
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.SkippedFolders = append(result.SkippedFolders, SkippedFolder{Path: dir, Reason: err.Error()})
			continue
		}
		if len(entries) > 0 {
			result.SkippedFolders = append(result.SkippedFolders, SkippedFolder{Path: dir, Reason: "not empty"})
			continue
		}
		if err := os.Remove(dir); err != nil {
			result.SkippedFolders = append(result.SkippedFolders, SkippedFolder{Path: dir, Reason: err.Error()})
		}
	}
}

// statExists reports whether a path exists, tolerating stat errors as
// absence.
func statExists(path string) (os.FileInfo, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, false
	}
	return info, true
}
