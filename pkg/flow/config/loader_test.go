package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderAllEmpty(t *testing.T) {
	loader := Loader{}
	comp, err := loader.Load()
	require.NoError(t, err)

	require.NotNil(t, comp.Keep)
	assert.Zero(t, comp.Keep.Len())
	assert.Equal(t, Default().MinEntropy, comp.Config.MinEntropy, "falls back to defaults")
}

func TestLoaderNonExistentConfig(t *testing.T) {
	loader := Loader{ConfigPath: "/nonexistent/flow.yaml"}
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoaderNonExistentKeepList(t *testing.T) {
	loader := Loader{KeepListPath: "/nonexistent/keep.yaml"}
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoaderMergesKeepWords(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "flow.yaml")
	keepPath := filepath.Join(tmpDir, "keep.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("keep_words: [Paris]\n"), 0644))
	require.NoError(t, os.WriteFile(keepPath, []byte("terms: [leverage]\n"), 0644))

	loader := Loader{ConfigPath: cfgPath, KeepListPath: keepPath}
	comp, err := loader.Load()
	require.NoError(t, err)
	for _, w := range []string{"paris", "leverage"} {
		assert.True(t, comp.Keep.Contains(w), "%q is protected", w)
	}
}
