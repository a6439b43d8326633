package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Token string `json:"token"`
	N     int    `json:"n"`
}

func TestNew(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		nestedPath := filepath.Join(t.TempDir(), "a", "b")

		storage, err := New(nestedPath)

		require.NoError(t, err)
		info, err := os.Stat(nestedPath)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, nestedPath, storage.rootPath)
	})

	t.Run("cleans path", func(t *testing.T) {
		tmpDir := t.TempDir()
		storage, err := New(filepath.Join(tmpDir, "state", "..", "state"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "state"), storage.rootPath)
	})
}

func TestSaveLoadDelete(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.Save("session", sample{Token: "abc", N: 1}))
	require.NoError(t, storage.Save("session", sample{Token: "def", N: 2}))

	var got sample
	require.NoError(t, storage.Load("session", &got))
	assert.Equal(t, sample{Token: "def", N: 2}, got)

	info, err := os.Stat(filepath.Join(storage.rootPath, "session.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(storage.rootPath)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, storage.Delete("session"))
	require.NoError(t, storage.Delete("session"))
	assert.ErrorIs(t, storage.Load("session", &got), ErrNotFound)
}

func TestInvalidKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../escape", `a\b`} {
		assert.Error(t, storage.Save(key, sample{}), key)
		assert.Error(t, storage.Load(key, &sample{}), key)
	}
}

func TestLoadCorrupt(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(storage.rootPath, "status.json"), []byte("{"), 0600))

	err = storage.Load("status", &sample{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
