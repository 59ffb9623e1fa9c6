package pkgbuild

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a3sha2/oxasl/util"
	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/utility"
	"github.com/mholt/archiver/v3"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	ignore "github.com/sabhiram/go-gitignore"
)

// pkgIgnoreFile names the optional exclude file at the root of a local
// source tree, read with gitignore pattern rules.
const pkgIgnoreFile = ".pkgignore"

// sourceExcludes are skipped in every staged tree.
var sourceExcludes = []string{".git", ".hg", "__pycache__", "*.pyc", pkgIgnoreFile}

// StageSource places the recipe's source under the work directory. A
// path source is copied, honoring the tree's exclude file; a URL source
// is downloaded, verified against the declared digest, and unpacked. A
// recipe with no source stages an empty directory.
func (b *Builder) StageSource(ctx context.Context) error {
	stage := filepath.Join(b.workDir, "src")
	if err := os.RemoveAll(stage); err != nil {
		return errors.Wrap(err, "clearing staging directory")
	}
	if err := os.MkdirAll(stage, 0755); err != nil {
		return errors.Wrap(err, "creating staging directory")
	}

	src := b.recipe.Source
	switch {
	case src.Path != "":
		dir := src.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(b.recipeDir, dir)
		}
		b.logger.Info(message.Fields{
			"message": "staging local source tree",
			"source":  dir,
			"staging": stage,
		})
		if err := b.copyTree(dir, stage); err != nil {
			return errors.Wrapf(err, "staging source tree '%s'", dir)
		}
		b.srcDir = stage
	case src.URL != "":
		root, err := b.downloadSource(ctx, stage)
		if err != nil {
			return errors.Wrapf(err, "staging source archive '%s'", src.URL)
		}
		b.srcDir = root
	default:
		b.logger.Infof("recipe for '%s' declares no source", b.recipe.Package.Name)
		b.srcDir = stage
	}

	return nil
}

// copyTree copies the regular files and directories under src into
// dst, skipping anything the tree's ignore rules match.
func (b *Builder) copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "stating '%s'", src)
	}
	if !info.IsDir() {
		return errors.Errorf("source path '%s' is not a directory", src)
	}
	if err = os.MkdirAll(dst, 0755); err != nil {
		return errors.Wrapf(err, "creating '%s'", dst)
	}

	ignorer, err := sourceIgnorer(src)
	if err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithStack(err)
		}
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if ignorer.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return errors.Wrapf(os.MkdirAll(filepath.Join(dst, rel), info.Mode()), "creating directory '%s'", rel)
		}
		if ignorer.MatchesPath(rel) {
			return nil
		}
		if !info.Mode().IsRegular() {
			b.logger.Warningf("skipping non-regular file '%s'", rel)
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel), info.Mode())
	})
}

// sourceIgnorer compiles the tree's exclude file, when present, on top
// of the built-in excludes.
func sourceIgnorer(root string) (*ignore.GitIgnore, error) {
	path := filepath.Join(root, pkgIgnoreFile)
	if utility.FileExists(path) {
		ignorer, err := ignore.CompileIgnoreFileAndLines(path, sourceExcludes...)
		return ignorer, errors.Wrapf(err, "compiling ignore file '%s'", path)
	}
	return ignore.CompileIgnoreLines(sourceExcludes...), nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening '%s'", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "creating '%s'", dst)
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "copying '%s'", src)
	}
	return errors.Wrapf(out.Close(), "closing '%s'", dst)
}

// downloadSource fetches the recipe's source archive, checks its
// digest, and unpacks it into the staging directory. It returns the
// root of the unpacked tree, diving through the single wrapping
// directory release tarballs usually carry.
func (b *Builder) downloadSource(ctx context.Context, stage string) (string, error) {
	src := b.recipe.Source

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building download request")
	}
	name := path.Base(req.URL.Path)
	if name == "" || name == "." || name == "/" {
		return "", errors.Errorf("cannot derive an archive file name from '%s'", src.URL)
	}

	client := util.GetDefaultHTTPRetryableClient()
	defer util.PutHTTPClient(client)

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "downloading source archive")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("downloading source archive: status %d (%s)", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	dlDir := filepath.Join(b.workDir, "downloads")
	if err = os.MkdirAll(dlDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating download directory")
	}
	archivePath := filepath.Join(dlDir, name)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", errors.Wrapf(err, "creating '%s'", archivePath)
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), resp.Body)
	closeErr := f.Close()
	if err != nil {
		return "", errors.Wrap(err, "writing downloaded archive")
	}
	if closeErr != nil {
		return "", errors.Wrapf(closeErr, "closing '%s'", archivePath)
	}

	b.logger.Info(message.Fields{
		"message": "downloaded source archive",
		"url":     src.URL,
		"archive": name,
		"size":    humanize.Bytes(uint64(size)),
	})

	if src.SHA256 != "" {
		digest := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(digest, src.SHA256) {
			return "", errors.Errorf("source digest mismatch: recipe declares sha256 '%s', downloaded '%s'", src.SHA256, digest)
		}
	} else {
		b.logger.Warningf("recipe declares no sha256 for '%s', skipping verification", src.URL)
	}

	if err = archiver.Unarchive(archivePath, stage); err != nil {
		return "", errors.Wrapf(err, "unpacking '%s'", name)
	}

	entries, err := os.ReadDir(stage)
	if err != nil {
		return "", errors.Wrap(err, "reading staging directory")
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(stage, entries[0].Name()), nil
	}
	return stage, nil
}
