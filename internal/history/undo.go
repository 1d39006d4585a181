package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/flatten/internal/mover"
)

// UndoConflict reports one record that could not be undone. Conflicts do
// not block the rest of the batch.
type UndoConflict struct {
	Record *Record
	Reason string
}

// UndoResult summarizes an undo pass over one batch.
type UndoResult struct {
	BatchID   string
	Restored  int
	Conflicts []UndoConflict
}

// Undo replays the most recent batch in reverse.
//
// Plain-move records are moved back to their original path; an occupied
// original path is reported as a conflict and skipped, never overwritten.
// Content-duplicate records are reconstructed by copying the surviving
// file referenced in duplicate_of back to the original path, since the
// deleted source no longer exists to move.
//
// Successfully undone records are removed from the log; conflicted ones
// stay so a later undo can retry them.
func (s *Store) Undo(ctx context.Context) (*UndoResult, error) {
	batchID, err := s.LatestBatch(ctx)
	if err != nil {
		return nil, err
	}
	if batchID == "" {
		return nil, fmt.Errorf("nothing to undo")
	}

	records, err := s.BatchRecords(ctx, batchID)
	if err != nil {
		return nil, err
	}

	result := &UndoResult{BatchID: batchID}
	for i := len(records) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec := records[i]
		if reason := s.undoRecord(rec); reason != "" {
			result.Conflicts = append(result.Conflicts, UndoConflict{Record: rec, Reason: reason})
			continue
		}

		result.Restored++
		if err := s.DeleteRecord(ctx, rec.ID); err != nil {
			return result, err
		}
	}

	return result, nil
}

// undoRecord reverses one record, returning an empty string on success or
// a human-readable conflict reason.
func (s *Store) undoRecord(rec *Record) string {
	if _, err := os.Lstat(rec.OriginalPath); err == nil {
		return "original path is occupied"
	}

	if rec.ContentDuplicate {
		// The source was deleted as redundant; rebuild it from the
		// surviving duplicate.
		if _, err := os.Stat(rec.DuplicateOf); err != nil {
			return fmt.Sprintf("surviving duplicate missing: %v", err)
		}
		if err := ensureParentDir(rec.OriginalPath); err != nil {
			return err.Error()
		}
		if err := mover.CopyFile(rec.DuplicateOf, rec.OriginalPath); err != nil {
			return fmt.Sprintf("reconstruct from duplicate: %v", err)
		}
		return ""
	}

	if _, err := os.Stat(rec.NewPath); err != nil {
		return fmt.Sprintf("moved file missing: %v", err)
	}
	if err := ensureParentDir(rec.OriginalPath); err != nil {
		return err.Error()
	}
	if err := mover.Move(rec.NewPath, rec.OriginalPath); err != nil {
		return fmt.Sprintf("move back: %v", err)
	}
	return ""
}

// ensureParentDir recreates the original file's directory, which the
// post-run cleanup may have removed as empty.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("recreate directory %s: %w", dir, err)
	}
	return nil
}
