package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigCaching(t *testing.T) {
	ClearCache()
	t.Cleanup(ClearCache)

	first, err := GetConfig()
	require.NoError(t, err)
	second, err := GetConfig()
	require.NoError(t, err)
	assert.Same(t, first, second)

	path := filepath.Join(t.TempDir(), "ids.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  seed: 9\n"), 0o644))

	fromFile, err := GetConfigWithPath(path)
	require.NoError(t, err)
	assert.NotSame(t, first, fromFile)
	assert.Equal(t, int64(9), fromFile.Training.Seed)

	ClearCache()
	reloaded, err := GetConfigWithPath(path)
	require.NoError(t, err)
	assert.NotSame(t, fromFile, reloaded)
	assert.Equal(t, fromFile, reloaded)
}

func TestGetConfigWithPathError(t *testing.T) {
	ClearCache()
	t.Cleanup(ClearCache)

	cfg, err := GetConfigWithPath(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Nil(t, cfg)
	assert.ErrorContains(t, err, "failed to load config from")
}
