package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Address)
	assert.NotEmpty(t, c.ModelSource())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/data\naddress: :9090\nfetch_retries: 2\n"), 0600))

	t.Setenv(EnvAddress, ":7070")
	t.Setenv(EnvLabelCol, "target")
	t.Setenv(EnvModelPath, "")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", c.DataDir)
	assert.Equal(t, ":7070", c.Address)
	assert.Equal(t, "target", c.LabelCol)
	assert.Equal(t, uint64(2), c.FetchRetries)
	assert.Equal(t, filepath.Join("artifacts", "model.gob"), c.ModelSource())
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: [\n"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvModelPath:    "gs://models/model.gob",
		EnvFetchRetries: "9",
		EnvCacheDir:     "  /cache  ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default()
	require.NoError(t, c.ApplyEnv(lookup))
	assert.Equal(t, "gs://models/model.gob", c.ModelSource())
	assert.Equal(t, uint64(9), c.FetchRetries)
	assert.Equal(t, "/cache", c.CachePath())

	env[EnvFetchRetries] = "many"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c1 := Default()
	c1.LabelCol = "readmit_flag"
	require.NoError(t, Save(path, c1))

	c2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c1.LabelCol, c2.LabelCol)
	assert.Equal(t, c1.Address, c2.Address)

	assert.Error(t, Save("", c1))
	assert.Error(t, Save(path, nil))
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("readmit-test")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".readmit-test", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".readmit-test")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}

func TestSave_CreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(path, Default()))
	assert.FileExists(t, path)
}

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, "x.yaml", Resolve("x.yaml"))
	assert.Empty(t, Resolve(""))

	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, HomeDirName, FileName), p)
	require.NoError(t, Save(p, Default()))
	assert.Equal(t, p, Resolve(""))
}
