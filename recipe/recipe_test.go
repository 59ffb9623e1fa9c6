package recipe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/a3sha2/oxasl/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExpansions() *util.Expansions {
	return util.NewExpansions(map[string]string{
		"name":         "oxasl",
		"version":      "0.2.1",
		"build_number": "3",
		"test_path":    "oxasl/tests",
		"license_file": "LICENSE",
		"summary":      "ASL-MRI analysis pipeline",
	})
}

func TestLoad(t *testing.T) {
	t.Run("PlainRecipe", func(t *testing.T) {
		r, err := Load(filepath.Join("testdata", "plain.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "oxasl", r.Package.Name)
		assert.Equal(t, "0.2.1", r.Package.Version)
		assert.Equal(t, 2, r.Build.Number)
		assert.Equal(t, "https://github.com/physimals/oxasl/archive/v0.2.1.tar.gz", r.Source.URL)
		assert.NotEmpty(t, r.Source.SHA256)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join("testdata", "DNE.yaml"))
		assert.Error(t, err)
	})

	t.Run("UnknownFieldsRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meta.yaml")
		require.NoError(t, os.WriteFile(path, []byte("package:\n  name: x\nbogus_section: {}\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoadRendered(t *testing.T) {
	t.Run("SubstitutesMetadata", func(t *testing.T) {
		r, err := LoadRendered(filepath.Join("testdata", "meta.yaml"), testExpansions())
		require.NoError(t, err)

		assert.Equal(t, "oxasl", r.Package.Name)
		assert.Equal(t, "0.2.1", r.Package.Version)
		assert.Equal(t, 3, r.Build.Number)
		assert.Equal(t, "python", r.Build.Noarch)
		assert.Equal(t, []string{"oxasl/tests"}, r.Test.SourceFiles)
		assert.Equal(t, "LICENSE", r.About.LicenseFile)
		assert.Equal(t, "ASL-MRI analysis pipeline", r.About.Summary)
	})

	t.Run("DefaultsApplyForMissingKeys", func(t *testing.T) {
		exp := testExpansions()
		exp.Remove("build_number")
		r, err := LoadRendered(filepath.Join("testdata", "meta.yaml"), exp)
		require.NoError(t, err)
		assert.Equal(t, 0, r.Build.Number)
		assert.Equal(t, "https://github.com/physimals/oxasl", r.About.Home)
	})

	t.Run("MalformedPlaceholderErrors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meta.yaml")
		require.NoError(t, os.WriteFile(path, []byte("package:\n  name: ${name\n"), 0644))
		_, err := LoadRendered(path, testExpansions())
		assert.Error(t, err)
	})
}

func TestInvocationAccessors(t *testing.T) {
	r, err := LoadRendered(filepath.Join("testdata", "meta.yaml"), testExpansions())
	require.NoError(t, err)

	t.Run("InstallInvocation", func(t *testing.T) {
		inv, err := r.InstallInvocation()
		require.NoError(t, err)
		assert.Equal(t, "python", inv.Binary)
		assert.Equal(t, []string{"-m", "pip", "install", ".", "--no-deps", "-vv"}, inv.Args)
	})

	t.Run("TestInvocationsCarryFixedPath", func(t *testing.T) {
		invs, err := r.TestInvocations()
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Equal(t, "pytest", invs[0].Binary)
		assert.Equal(t, []string{"oxasl/tests"}, invs[0].Args)
	})

	t.Run("NoInstallScriptErrors", func(t *testing.T) {
		empty := &Recipe{}
		_, err := empty.InstallInvocation()
		assert.Error(t, err)
	})

	t.Run("MultipleInstallCommandsError", func(t *testing.T) {
		multi := &Recipe{Build: Build{Script: &CommandSet{MultiCommand: []string{"a", "b"}}}}
		_, err := multi.InstallInvocation()
		assert.Error(t, err)
	})

	t.Run("UnbalancedQuotesError", func(t *testing.T) {
		bad := &Recipe{Test: Test{Commands: &CommandSet{SingleCommand: `pytest "oxasl/tests`}}}
		_, err := bad.TestInvocations()
		assert.Error(t, err)
	})
}

func TestDependencyAccessors(t *testing.T) {
	r, err := Load(filepath.Join("testdata", "plain.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "pip"}, r.BuildDeps())
	assert.Equal(t, []string{"python", "numpy"}, r.RunDeps())
	assert.Equal(t, []string{"pytest"}, r.TestDeps())
}

func TestGetExtraInfo(t *testing.T) {
	t.Run("DecodesMaintainers", func(t *testing.T) {
		r, err := LoadRendered(filepath.Join("testdata", "meta.yaml"), testExpansions())
		require.NoError(t, err)

		info, err := r.GetExtraInfo()
		require.NoError(t, err)
		assert.Equal(t, []string{"mcraig-ibme"}, info.Maintainers)
	})

	t.Run("EmptyExtraSection", func(t *testing.T) {
		r := &Recipe{}
		info, err := r.GetExtraInfo()
		require.NoError(t, err)
		assert.Empty(t, info.Maintainers)
	})
}

func TestWrite(t *testing.T) {
	r, err := LoadRendered(filepath.Join("testdata", "meta.yaml"), testExpansions())
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, r.Write(buf))

	reparsed := &Recipe{}
	require.NoError(t, util.UnmarshalStrict(buf.Bytes(), reparsed))
	assert.Equal(t, r.Package, reparsed.Package)
	assert.Equal(t, r.Requirements, reparsed.Requirements)
	assert.Equal(t, r.About, reparsed.About)
}
