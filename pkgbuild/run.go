package pkgbuild

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// RunInstall runs the recipe's install command in the staged source
// directory. The command's success or failure belongs to the external
// tooling it names; a failure here is the subprocess's own exit error.
func (b *Builder) RunInstall(ctx context.Context) error {
	if b.srcDir == "" {
		return errors.New("source has not been staged")
	}

	inv, err := b.recipe.InstallInvocation()
	if err != nil {
		return errors.Wrap(err, "resolving install command")
	}

	b.logger.Info(message.Fields{
		"message": "running install command",
		"package": b.recipe.Package.Name,
		"command": inv.String(),
		"dir":     b.srcDir,
	})
	if err := b.command(ctx, inv, b.srcDir).Run(ctx); err != nil {
		return errors.Wrapf(err, "install command '%s' failed", inv.String())
	}

	return nil
}

// RunTests stages the recipe's test source files and runs each test
// command in declaration order, stopping at the first failure. Test
// command arguments, including suite paths, are passed through
// untouched.
func (b *Builder) RunTests(ctx context.Context) error {
	if b.srcDir == "" {
		return errors.New("source has not been staged")
	}

	invocations, err := b.recipe.TestInvocations()
	if err != nil {
		return errors.Wrap(err, "resolving test commands")
	}
	if len(invocations) == 0 {
		b.logger.Infof("recipe for '%s' declares no test commands", b.recipe.Package.Name)
		return nil
	}

	testDir, err := b.stageTestFiles()
	if err != nil {
		return errors.Wrap(err, "staging test files")
	}

	for _, inv := range invocations {
		b.logger.Info(message.Fields{
			"message": "running test command",
			"package": b.recipe.Package.Name,
			"command": inv.String(),
			"dir":     testDir,
		})
		if err := b.command(ctx, inv, testDir).Run(ctx); err != nil {
			return errors.Wrapf(err, "test command '%s' failed", inv.String())
		}
	}

	return nil
}

// stageTestFiles copies the recipe's test.source_files out of the
// staged source into a fresh test directory and returns it.
func (b *Builder) stageTestFiles() (string, error) {
	testDir := filepath.Join(b.workDir, "test")
	if err := os.RemoveAll(testDir); err != nil {
		return "", errors.Wrap(err, "clearing test directory")
	}
	if err := os.MkdirAll(testDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating test directory")
	}

	for _, rel := range b.recipe.Test.SourceFiles {
		src := filepath.Join(b.srcDir, rel)
		info, err := os.Stat(src)
		if err != nil {
			return "", errors.Wrapf(err, "locating test source file '%s'", rel)
		}
		dst := filepath.Join(testDir, rel)
		if info.IsDir() {
			if err = b.copyTree(src, dst); err != nil {
				return "", errors.Wrapf(err, "copying test source directory '%s'", rel)
			}
			continue
		}
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return "", errors.Wrapf(err, "creating directory for '%s'", rel)
		}
		if err = copyFile(src, dst, info.Mode()); err != nil {
			return "", errors.Wrapf(err, "copying test source file '%s'", rel)
		}
	}

	return testDir, nil
}
