package dedup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Index maps content fingerprints to one representative path under the
// destination root. An Index is owned by a single extraction run unless
// the caller explicitly shares it; LookupOrAdd is atomic so a host that
// parallelizes hashing never judges two identical files both "new".
type Index struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewIndex returns an empty fingerprint index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]string)}
}

// Lookup returns the representative path for a fingerprint, if present.
func (ix *Index) Lookup(fingerprint string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	path, ok := ix.entries[fingerprint]
	return path, ok
}

// Add records a fingerprint with its representative path. It must be
// called only after the file at path has durably landed there.
func (ix *Index) Add(fingerprint, path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[fingerprint] = path
}

// LookupOrAdd returns the existing representative path for a fingerprint,
// or records path as the representative and reports that no prior entry
// existed. The lookup and insert happen under one lock.
func (ix *Index) LookupOrAdd(fingerprint, path string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if existing, ok := ix.entries[fingerprint]; ok {
		return existing, true
	}
	ix.entries[fingerprint] = path
	return path, false
}

// Len returns the number of fingerprints in the index.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// BuildIndex fingerprints the files directly inside destRoot and returns
// the resulting index.
//
// As a performance guard, a destination file is hashed only when its size
// could possibly match something: either another destination file shares
// the size, or the size appears in candidateSizes (the sizes of the files
// an upcoming run will process). Files whose size can match nothing are
// skipped entirely. candidateSizes may be nil.
//
// The context is polled before each fingerprint computation; cancellation
// returns the index built so far with a nil error.
func BuildIndex(ctx context.Context, destRoot string, candidateSizes map[int64]bool) (*Index, error) {
	entries, err := os.ReadDir(destRoot)
	if err != nil {
		return nil, err
	}

	bySize := make(map[int64][]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		bySize[info.Size()] = append(bySize[info.Size()], filepath.Join(destRoot, entry.Name()))
	}

	ix := NewIndex()
	for size, paths := range bySize {
		if len(paths) < 2 && !candidateSizes[size] {
			continue
		}
		for _, path := range paths {
			if ctx.Err() != nil {
				return ix, nil
			}
			fp, err := Fingerprint(path, DefaultChunkSize)
			if err != nil {
				continue
			}
			// First path wins as the representative.
			ix.LookupOrAdd(fp, path)
		}
	}

	return ix, nil
}
