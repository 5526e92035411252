package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
)

func TestCacheLoadLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0600))

	cache := fileutil.NewCache[string]("test", 0, time.Hour)

	loads := 0
	loader := func() (string, error) {
		loads++
		data, err := os.ReadFile(path) //nolint:gosec
		return string(data), err
	}

	got, err := cache.LoadLatest(path, loader)
	require.NoError(t, err)
	require.Equal(t, "v1", got)
	require.Equal(t, 1, loads)

	// Second read is served from the cache.
	got, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	require.Equal(t, "v1", got)
	require.Equal(t, 1, loads)

	// Changing the file size forces a reload.
	require.NoError(t, os.WriteFile(path, []byte("v2-longer"), 0600))
	got, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	require.Equal(t, "v2-longer", got)
	require.Equal(t, 2, loads)
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0600))

	cache := fileutil.NewCache[string]("test", 0, time.Hour)
	fi, err := os.Stat(path)
	require.NoError(t, err)

	cache.Store(path, "v1", fi)
	_, ok := cache.Load(path)
	require.True(t, ok)

	cache.Invalidate(path)
	_, ok = cache.Load(path)
	require.False(t, ok)
	require.Equal(t, 0, cache.Size())
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "user_flow", fileutil.SafeName("user flow"))
	require.Equal(t, "a_b.yaml", fileutil.SafeName("a/b.yaml"))
	require.Equal(t, "simple-name_1", fileutil.SafeName("simple-name_1"))
}

func TestIsYAMLFile(t *testing.T) {
	t.Parallel()

	require.True(t, fileutil.IsYAMLFile("suite.yaml"))
	require.True(t, fileutil.IsYAMLFile("suite.yml"))
	require.False(t, fileutil.IsYAMLFile("suite.json"))
	require.False(t, fileutil.IsYAMLFile(""))
	require.Equal(t, "suite", fileutil.TrimYAMLFileExtension("suite.yaml"))
	require.Equal(t, "suite", fileutil.TrimYAMLFileExtension("suite.yml"))
}
