package sunvox_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrasynth/sunvox-go"
)

func TestLibraryPath(t *testing.T) {
	t.Setenv(sunvox.EnvLibraryPath, "")
	t.Setenv(sunvox.EnvLibraryBase, "")

	// Bare name: resolution is left to the dynamic loader.
	p, err := sunvox.LibraryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(p), p)

	// An explicit file wins over everything.
	t.Setenv(sunvox.EnvLibraryPath, "/opt/sunvox/sunvox.so")
	p, err = sunvox.LibraryPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/sunvox/sunvox.so", p)

	// A distribution base resolves through the platform subdirectory.
	t.Setenv(sunvox.EnvLibraryPath, "")
	t.Setenv(sunvox.EnvLibraryBase, "/opt/sunvox_lib")
	p, err = sunvox.LibraryPath()
	known := map[string]bool{
		"linux/amd64": true, "linux/386": true, "linux/arm": true,
		"linux/arm64": true, "darwin/amd64": true, "darwin/arm64": true,
	}
	if !known[runtime.GOOS+"/"+runtime.GOARCH] {
		assert.Error(t, err)
		return
	}
	require.NoError(t, err)
	assert.Contains(t, p, "/opt/sunvox_lib/")
	assert.Contains(t, p, "lib_")
}

func TestLoadDLLMissingFile(t *testing.T) {
	t.Setenv(sunvox.EnvLibraryPath, "")
	t.Setenv(sunvox.EnvLibraryBase, "")

	_, err := sunvox.LoadDLL(filepath.Join(t.TempDir(), "missing.so"))
	assert.Error(t, err)
}
