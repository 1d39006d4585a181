package safety

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSafePathSubdirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "downloads")
	require.NoError(t, os.Mkdir(sub, 0755))

	assert.True(t, IsSafePath(sub, []string{root}))
}

func TestIsSafePathBareRootRejected(t *testing.T) {
	root := t.TempDir()

	// The allowed root itself is never a safe operation target.
	assert.False(t, IsSafePath(root, []string{root}))
}

func TestIsSafePathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	assert.False(t, IsSafePath(other, []string{root}))
}

func TestIsSafePathNonexistent(t *testing.T) {
	root := t.TempDir()

	assert.False(t, IsSafePath(filepath.Join(root, "missing"), []string{root}))
}

func TestIsSafePathNoRoots(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	assert.False(t, IsSafePath(sub, nil))
}

func TestIsSafePathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevation on windows")
	}

	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	// The link lives under root but resolves outside it.
	assert.False(t, IsSafePath(link, []string{root}))
}

func TestIsSafePathTraversalSegments(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))

	// Traversal back to the root resolves to the bare root, which is unsafe.
	assert.False(t, IsSafePath(filepath.Join(sub, "..", ".."), []string{root}))
	assert.True(t, IsSafePath(filepath.Join(sub, ".."), []string{root}))
}

func TestIsSafePathMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	sub := filepath.Join(rootB, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	assert.True(t, IsSafePath(sub, []string{rootA, rootB}))
}
