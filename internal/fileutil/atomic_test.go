package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_ReplacesContent(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "alice.key")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644)) //nolint:gosec // G306: test file
	require.NoError(t, WriteAtomic(target, []byte("new"), SecretFileMode))

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, SecretFileMode, info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteAtomic_FailureLeavesOriginalFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "alice.key")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644)) //nolint:gosec // G306: test file

	require.NoError(t, os.Chmod(dir, 0o500)) //nolint:gosec // G302: read-only on purpose
	defer func() { _ = os.Chmod(dir, 0o700) }() //nolint:gosec // G302: restore

	require.Error(t, WriteAtomic(target, []byte("replacement"), SecretFileMode))

	data, err := os.ReadFile(target) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestWriteSecret_CreatesPrivateDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys")
	target := filepath.Join(dir, "bob.key")
	require.NoError(t, WriteSecret(target, []byte("{}")))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, SecretDirMode, info.Mode().Perm())

	info, err = os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, SecretFileMode, info.Mode().Perm())
}

func TestEmptyPath(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, WriteAtomic("", []byte("x"), SecretFileMode), ErrEmptyPath)
	require.ErrorIs(t, WriteSecret("", []byte("x")), ErrEmptyPath)
	_, err := ReadLimited("", 10)
	require.ErrorIs(t, err, ErrEmptyPath)
}

func TestReadLimited(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "tx.json")
	require.NoError(t, os.WriteFile(target, []byte("0123456789"), 0o600))

	data, err := ReadLimited(target, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = ReadLimited(target, 9)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = ReadLimited(filepath.Join(t.TempDir(), "missing"), 10)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemoveIfExists(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.WriteFile(target, nil, 0o600))

	removed, err := RemoveIfExists(target)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = RemoveIfExists(target)
	require.NoError(t, err)
	assert.False(t, removed)
}
