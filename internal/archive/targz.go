package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// tarGzExtractor handles gzip-compressed tar archives. Tar is a stream,
// so fail-closed validation takes two passes: the first walks every
// header without writing, the second extracts.
type tarGzExtractor struct{}

// Extract implements Extractor for .tar.gz/.tgz archives.
func (tarGzExtractor) Extract(ctx context.Context, archivePath, targetDir string) ([]string, error) {
	resolvedTarget, err := resolveTargetDir(targetDir)
	if err != nil {
		return nil, err
	}

	// Pass 1: validate every member before anything touches disk.
	if err := walkTarGz(ctx, archivePath, func(hdr *tar.Header) error {
		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeDir:
		default:
			// Symlinks, devices and the rest are rejected: a symlink
			// member could redirect later members outside the target.
			return &UnsafePathError{Archive: archivePath, Member: hdr.Name}
		}
		if _, err := memberTarget(resolvedTarget, hdr.Name); err != nil {
			return &UnsafePathError{Archive: archivePath, Member: hdr.Name}
		}
		return nil
	}, nil); err != nil {
		return nil, err
	}

	// Pass 2: extract.
	var written []string
	err = walkTarGz(ctx, archivePath, func(hdr *tar.Header) error {
		return nil
	}, func(hdr *tar.Header, r io.Reader) error {
		target, err := memberTarget(resolvedTarget, hdr.Name)
		if err != nil {
			return &UnsafePathError{Archive: archivePath, Member: hdr.Name}
		}
		if hdr.Typeflag == tar.TypeDir {
			return os.MkdirAll(target, 0755)
		}
		if err := writeTarMember(r, hdr, target); err != nil {
			return fmt.Errorf("extract %q: %w", hdr.Name, err)
		}
		written = append(written, target)
		return nil
	})
	if err != nil {
		return written, err
	}

	return written, nil
}

// walkTarGz iterates the members of a gzip-compressed tar file. inspect
// runs for every header; extract, when non-nil, additionally receives the
// member's content reader.
func walkTarGz(ctx context.Context, archivePath string, inspect func(*tar.Header) error, extract func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if err := inspect(hdr); err != nil {
			return err
		}
		if extract != nil {
			if err := extract(hdr, tr); err != nil {
				return err
			}
		}
	}
}

// writeTarMember streams one regular tar member to its target path.
func writeTarMember(r io.Reader, hdr *tar.Header, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, memberMode(hdr.FileInfo().Mode()))
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if _, err := io.Copy(out, r); err != nil {
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
