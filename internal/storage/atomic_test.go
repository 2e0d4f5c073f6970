package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesContentFully(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, dataFileName)

	require.NoError(t, writeFileAtomic(path, []byte(`{"old": true}`)))
	require.NoError(t, writeFileAtomic(path, []byte(`{"new": true}`)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"new": true}`, string(b))
}

func TestWriteFileAtomic_LockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, dataFileName)
	require.NoError(t, writeFileAtomic(path, []byte("original")))

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	err = writeFileAtomic(path, []byte("should not land"))
	assert.ErrorIs(t, err, ErrLockUnavailable)

	// The target keeps the fully-old content.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
}

func TestWriteFileAtomic_ReleasesLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, dataFileName)

	require.NoError(t, writeFileAtomic(path, []byte("one")))

	// The lock must be available again after every exit path.
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	_ = lock.Unlock()
}
