package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndExcerpt(t *testing.T) {
	store := NewFSStore(t.TempDir())

	require.NoError(t, store.Save("s1", "notes.txt", []byte("some notes")))

	got, err := store.Excerpt("s1", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "some notes", got)
}

func TestExcerptMissingFile(t *testing.T) {
	store := NewFSStore(t.TempDir())

	got, err := store.Excerpt("s1", "nope.txt")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestExcerptCapsLongFiles(t *testing.T) {
	store := NewFSStore(t.TempDir())

	long := make([]byte, excerptCap+100)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, store.Save("s1", "big.txt", long))

	got, err := store.Excerpt("s1", "big.txt")
	require.NoError(t, err)
	assert.Len(t, []rune(got), excerptCap)
}

func TestRemoveDeletesSessionDir(t *testing.T) {
	store := NewFSStore(t.TempDir())

	require.NoError(t, store.Save("s1", "notes.txt", []byte("some notes")))
	require.NoError(t, store.Remove("s1"))

	got, err := store.Excerpt("s1", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestContextFilesConcatenatesDirectory(t *testing.T) {
	base := t.TempDir()
	store := NewFSStore(base)

	dir := filepath.Join(base, "files", "assistants", "a1")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-intro.txt"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-body.txt"), []byte("beta"), 0o600))

	got, err := store.ContextFiles("a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", got)
}

func TestContextFilesMissingDirectory(t *testing.T) {
	store := NewFSStore(t.TempDir())

	got, err := store.ContextFiles("ghost")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
