package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	resolved, err := ResolvePath("~/mirror")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mirror"), resolved)

	_, err = ResolvePath("")
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()
	nested := filepath.Join(tmp, "a", "b", "c")

	require.NoError(t, EnsureDir(nested))
	assert.DirExists(t, nested)

	// second call is a no-op
	require.NoError(t, EnsureDir(nested))
}

func TestFileHash(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := FileHash(path)
	require.NoError(t, err)
	// md5("hello")
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)
}

func TestDirFileExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.True(t, DirExists(tmp))
	assert.False(t, DirExists(path))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(tmp))
	assert.False(t, FileExists(filepath.Join(tmp, "missing")))
}
