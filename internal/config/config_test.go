package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExplicitDirWins(t *testing.T) {
	t.Setenv(EnvDataDir, "/env/dir")

	opts, err := Load("/explicit/dir")
	require.NoError(t, err)
	assert.Equal(t, "/explicit/dir", opts.StorageDir)
}

func TestLoad_EnvDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, opts.StorageDir)
}

func TestLoad_PlatformDefault(t *testing.T) {
	t.Setenv(EnvDataDir, "")

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, appDirName, filepath.Base(opts.StorageDir))
}

func TestLoad_EndpointOverrides(t *testing.T) {
	t.Setenv(EnvAPIURL, "http://localhost:4000")
	t.Setenv(EnvIdentityURL, "http://localhost:4001")

	opts, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", opts.APIURL)
	assert.Equal(t, "http://localhost:4001", opts.IdentityURL)
}

func TestSessionKeyFromEnv(t *testing.T) {
	t.Setenv(EnvSession, "")
	_, ok := SessionKeyFromEnv()
	assert.False(t, ok)

	t.Setenv(EnvSession, "c2Vzc2lvbg==")
	v, ok := SessionKeyFromEnv()
	assert.True(t, ok)
	assert.Equal(t, "c2Vzc2lvbg==", v)
}
