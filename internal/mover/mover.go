// Package mover relocates files without ever overwriting a destination.
//
// The primary path is an atomic rename. When the source and destination
// sit on different volumes the rename fails with EXDEV and the mover
// falls back to copy-with-metadata followed by source deletion. A copy
// that succeeds but whose source deletion fails is surfaced as a
// *PartialFailureError so the caller knows the file now exists twice.
package mover

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// ErrDestinationExists is returned when the destination path is already
// occupied. Callers must resolve naming collisions before moving.
var ErrDestinationExists = errors.New("destination already exists")

// PartialFailureError reports a cross-device move whose copy succeeded
// but whose source deletion failed: the file exists at both paths.
type PartialFailureError struct {
	Source      string
	Destination string
	Err         error
}

// Error implements the error interface.
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("moved %s to %s but could not remove source: %v", e.Source, e.Destination, e.Err)
}

// Unwrap returns the underlying deletion error.
func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Move relocates src to dst. It fails with ErrDestinationExists if dst is
// occupied, renames when possible, and falls back to copy+delete across
// volumes. On the fallback path a failed source deletion yields a
// *PartialFailureError while dst keeps the copied file.
func Move(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("move %s: %w", dst, ErrDestinationExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat destination: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}

	// Cross-device: copy with metadata, then delete the source.
	if err := copyWithMetadata(src, dst); err != nil {
		return fmt.Errorf("cross-device copy %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return &PartialFailureError{Source: src, Destination: dst, Err: err}
	}

	return nil
}

// isCrossDevice reports whether a rename failed because source and
// destination are on different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// copyWithMetadata copies src to dst preserving file mode and
// modification time. The destination is created exclusively so an
// existing file is never truncated.
func copyWithMetadata(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserve mtime: %w", err)
	}

	return nil
}

// CopyFile copies src to dst with metadata preservation and no source
// deletion. Undo uses it to reconstruct deduplicated files from their
// surviving duplicate.
func CopyFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("copy %s: %w", dst, ErrDestinationExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat destination: %w", err)
	}
	return copyWithMetadata(src, dst)
}
