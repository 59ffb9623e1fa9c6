package pkgbuild

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/a3sha2/oxasl/pkgmeta"
	"github.com/a3sha2/oxasl/recipe"
	"github.com/a3sha2/oxasl/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readArtifact(t *testing.T, path string) map[string]string {
	f, gz, tr, err := util.TarGzReader(path)
	require.NoError(t, err)
	defer f.Close()
	defer gz.Close()

	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}
	return contents
}

func TestWriteArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("ArchivesRecipeAboutAndLicense", func(t *testing.T) {
		r := newTestRecipe()
		r.About = recipe.About{
			Home:        "https://example.com/demo",
			License:     "MIT",
			LicenseFile: "LICENSE.txt",
			Summary:     "a demonstration package",
		}
		b := newStagedBuilder(t, r)
		require.NoError(t, os.WriteFile(filepath.Join(b.SourceDir(), "LICENSE.txt"), []byte("MIT license text\n"), 0644))

		path, err := b.WriteArtifact(ctx)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(b.workDir, "dist", "demo-1.0-2.tar.gz"), path)

		contents := readArtifact(t, path)
		require.Len(t, contents, 3)

		var got recipe.Recipe
		require.NoError(t, yaml.Unmarshal([]byte(contents["info/recipe.yaml"]), &got))
		assert.Equal(t, "demo", got.Package.Name)
		assert.Equal(t, "1.0", got.Package.Version)

		var about recipe.About
		require.NoError(t, yaml.Unmarshal([]byte(contents["info/about.yaml"]), &about))
		assert.Equal(t, "MIT", about.License)
		assert.Equal(t, "a demonstration package", about.Summary)

		assert.Equal(t, "MIT license text\n", contents["info/licenses/LICENSE.txt"])
	})

	t.Run("MetadataLabelsArtifact", func(t *testing.T) {
		r := newTestRecipe()
		b, err := NewBuilder(BuilderOptions{
			Recipe:   r,
			Metadata: &pkgmeta.Metadata{Name: "demo", Version: "3.2", BuildNumber: 4},
			WorkDir:  t.TempDir(),
		})
		require.NoError(t, err)

		path, err := b.WriteArtifact(ctx)
		require.NoError(t, err)
		assert.Equal(t, "demo-3.2-4.tar.gz", filepath.Base(path))
	})

	t.Run("MissingLicenseFileLeftOut", func(t *testing.T) {
		r := newTestRecipe()
		r.About.LicenseFile = "GONE.txt"
		b := newStagedBuilder(t, r)

		path, err := b.WriteArtifact(ctx)
		require.NoError(t, err)

		contents := readArtifact(t, path)
		assert.Len(t, contents, 2)
		assert.Contains(t, contents, "info/recipe.yaml")
		assert.Contains(t, contents, "info/about.yaml")
	})

	t.Run("WritesWithoutStagedSource", func(t *testing.T) {
		b, err := NewBuilder(BuilderOptions{Recipe: newTestRecipe(), WorkDir: t.TempDir()})
		require.NoError(t, err)

		path, err := b.WriteArtifact(ctx)
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("CanceledContextErrors", func(t *testing.T) {
		b, err := NewBuilder(BuilderOptions{Recipe: newTestRecipe(), WorkDir: t.TempDir()})
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = b.WriteArtifact(canceled)
		assert.Error(t, err)
	})
}
