package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gyik-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "pages")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, dir)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "probe file must be cleaned up")
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "pages/2024-05-01/abc.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)

	want := filepath.Join(dir, "pages", "2024-05-01", "abc.html")
	assert.Equal(t, "file://"+want, uri)
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))

	// no temp files are left next to the object
	entries, err := os.ReadDir(filepath.Dir(want))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/html", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("x"))
	assert.ErrorContains(t, err, "escapes")
}
