package pkgmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("FullDocument", func(t *testing.T) {
		m, err := Load(filepath.Join("testdata", "package.yml"))
		require.NoError(t, err)
		assert.Equal(t, "oxasl", m.Name)
		assert.Equal(t, "0.2.1", m.Version)
		assert.Equal(t, 3, m.BuildNumber)
		assert.Equal(t, "oxasl/tests", m.TestPath)
		assert.Equal(t, "LICENSE", m.LicenseFile)
		assert.Len(t, m.RunDeps, 4)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join("testdata", "DNE.yml"))
		assert.Error(t, err)
	})

	t.Run("MissingName", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "package.yml")
		require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("UnknownFieldRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "package.yml")
		require.NoError(t, os.WriteFile(path, []byte("name: x\nnot_a_field: y\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestExpansions(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "package.yml"))
	require.NoError(t, err)

	exp := m.Expansions()
	assert.Equal(t, "oxasl", exp.Get("name"))
	assert.Equal(t, "0.2.1", exp.Get("version"))
	assert.Equal(t, "3", exp.Get("build_number"))
	assert.Equal(t, "oxasl/tests", exp.Get("test_path"))
	assert.Equal(t, "LICENSE", exp.Get("license_file"))
	assert.Equal(t, "ASL-MRI analysis pipeline", exp.Get("summary"))
	assert.Equal(t, "https://github.com/physimals/oxasl", exp.Get("home"))
	assert.False(t, exp.Exists("run_deps"), "dependency lists are not scalar expansions")
}

func TestNormalizeDescribedVersion(t *testing.T) {
	assert.Equal(t, "0.2.1", normalizeDescribedVersion("v0.2.1\n"))
	assert.Equal(t, "0.2.1-4-gdeadbee", normalizeDescribedVersion("v0.2.1-4-gdeadbee"))
	assert.Equal(t, "0.2.1-dirty", normalizeDescribedVersion("  0.2.1-dirty  "))
	assert.Equal(t, "", normalizeDescribedVersion("\n"))
}
