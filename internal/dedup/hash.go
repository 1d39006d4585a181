// Package dedup computes content fingerprints and maintains the
// fingerprint index used to detect duplicate files under a target root.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize is the read buffer size used when fingerprinting.
const DefaultChunkSize = 64 * 1024

// Fingerprint returns the hex-encoded SHA-256 digest of the file's
// content. The file is streamed in chunkSize reads so memory use stays
// constant regardless of file size. A chunkSize <= 0 falls back to
// DefaultChunkSize.
func Fingerprint(path string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read for fingerprint: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
