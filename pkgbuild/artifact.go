package pkgbuild

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/util"
	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WriteArtifact archives the build's descriptive files into
// dist/<name>-<version>-<number>.tar.gz under the work directory and
// returns the archive's path. The archive carries the rendered recipe,
// the about section, and the package's license file when the staged
// source has one.
func (b *Builder) WriteArtifact(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "writing artifact")
	}

	distDir := filepath.Join(b.workDir, "dist")
	if err := os.MkdirAll(distDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating dist directory")
	}

	name, version, number := b.label()
	artifactPath := filepath.Join(distDir, oxasl.ArtifactName(name, version, number))

	f, gz, tarWriter, err := util.TarGzWriter(artifactPath)
	if err != nil {
		return "", errors.Wrap(err, "opening artifact for writing")
	}

	catcher := grip.NewBasicCatcher()
	catcher.Wrap(b.writeArtifactContents(tarWriter), "writing artifact contents")
	catcher.Wrap(tarWriter.Close(), "closing tar writer")
	catcher.Wrap(gz.Close(), "closing gzip writer")
	catcher.Wrap(f.Close(), "closing artifact file")
	if catcher.HasErrors() {
		return "", catcher.Resolve()
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return "", errors.Wrap(err, "stating artifact")
	}
	b.logger.Info(message.Fields{
		"message":  "wrote package artifact",
		"package":  name,
		"artifact": artifactPath,
		"size":     humanize.Bytes(uint64(info.Size())),
	})

	return artifactPath, nil
}

func (b *Builder) writeArtifactContents(tarWriter *tar.Writer) error {
	rendered := &bytes.Buffer{}
	if err := b.recipe.Write(rendered); err != nil {
		return errors.Wrap(err, "rendering recipe")
	}
	if err := util.AddTarEntry(tarWriter, "info/recipe.yaml", rendered.Bytes(), 0644); err != nil {
		return err
	}

	about, err := yaml.Marshal(b.recipe.About)
	if err != nil {
		return errors.Wrap(err, "marshalling about section")
	}
	if err = util.AddTarEntry(tarWriter, "info/about.yaml", about, 0644); err != nil {
		return err
	}

	if lf := b.recipe.About.LicenseFile; lf != "" {
		src := filepath.Join(b.srcDir, lf)
		if b.srcDir == "" || !utility.FileExists(src) {
			b.logger.Warningf("license file '%s' not found in staged source, leaving it out of the artifact", lf)
			return nil
		}
		name := filepath.ToSlash(filepath.Join("info/licenses", filepath.Base(lf)))
		if err := util.AddTarFile(tarWriter, src, name); err != nil {
			return errors.Wrapf(err, "archiving license file '%s'", lf)
		}
	}

	return nil
}
