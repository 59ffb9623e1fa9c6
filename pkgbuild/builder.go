// Package pkgbuild stages a recipe's source tree and delegates the
// recipe's install and test actions to subprocesses. It is not a build
// system: dependency lists are never resolved, no environments are
// created, and the install and test commands run exactly as declared.
package pkgbuild

import (
	"context"
	"os"
	"strconv"

	"github.com/a3sha2/oxasl/pkgmeta"
	"github.com/a3sha2/oxasl/recipe"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

// Builder runs the three delegated actions of a rendered recipe:
// staging source, installing, and testing, and archives the build's
// descriptive files afterward.
type Builder struct {
	recipe    *recipe.Recipe
	metadata  *pkgmeta.Metadata
	workDir   string
	recipeDir string
	logger    grip.Journaler
	procs     jasper.Manager

	srcDir string
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Recipe is the rendered recipe whose actions are run. Required.
	Recipe *recipe.Recipe
	// Metadata is the package metadata the recipe was rendered from.
	// When set, it labels the artifact and the subprocess environment;
	// otherwise the recipe's own fields do.
	Metadata *pkgmeta.Metadata
	// WorkDir is the directory staging, test, and dist trees live
	// under. Required; created if absent.
	WorkDir string
	// RecipeDir anchors relative source paths declared by the recipe.
	// Defaults to the current directory.
	RecipeDir string
	// Manager runs the delegated subprocesses. A synchronized manager
	// is constructed when unset.
	Manager jasper.Manager
	// Logger receives build progress and subprocess output. Defaults
	// to the global grip sender.
	Logger grip.Journaler
}

func (opts *BuilderOptions) validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(opts.Recipe == nil, "no recipe given")
	catcher.NewWhen(opts.WorkDir == "", "no work directory given")
	if opts.Recipe != nil {
		catcher.NewWhen(opts.Recipe.Package.Name == "", "recipe names no package")
		if opts.Metadata != nil && opts.Metadata.Name != opts.Recipe.Package.Name {
			catcher.Errorf("metadata names package '%s' but recipe names '%s'", opts.Metadata.Name, opts.Recipe.Package.Name)
		}
	}
	if opts.RecipeDir == "" {
		opts.RecipeDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = logging.MakeGrip(grip.GetSender())
	}
	if opts.Manager == nil {
		jpm, err := jasper.NewSynchronizedManager(false)
		catcher.Wrap(err, "constructing process manager")
		opts.Manager = jpm
	}
	return catcher.Resolve()
}

// NewBuilder validates the options and prepares the work directory.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid builder options")
	}
	if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating work directory '%s'", opts.WorkDir)
	}

	return &Builder{
		recipe:    opts.Recipe,
		metadata:  opts.Metadata,
		workDir:   opts.WorkDir,
		recipeDir: opts.RecipeDir,
		logger:    opts.Logger,
		procs:     opts.Manager,
	}, nil
}

// SourceDir returns the directory the source was staged into, empty
// before StageSource has run.
func (b *Builder) SourceDir() string { return b.srcDir }

// label returns the name, version, and build number the build is
// published under.
func (b *Builder) label() (string, string, int) {
	if b.metadata != nil {
		return b.metadata.Name, b.metadata.Version, b.metadata.BuildNumber
	}
	return b.recipe.Package.Name, b.recipe.Package.Version, b.recipe.Build.Number
}

// Environment returns the environment delegated subprocesses run with:
// the caller's PATH plus OXASL_BUILD_* markers naming what is being
// built.
func (b *Builder) Environment() map[string]string {
	name, version, number := b.label()
	return map[string]string{
		"PATH":                os.Getenv("PATH"),
		"OXASL_BUILD_NAME":    name,
		"OXASL_BUILD_VERSION": version,
		"OXASL_BUILD_NUMBER":  strconv.Itoa(number),
		"OXASL_BUILD_WORKDIR": b.workDir,
	}
}

func (b *Builder) command(ctx context.Context, inv recipe.Invocation, dir string) *jasper.Command {
	sender := b.logger.GetSender()
	return b.procs.CreateCommand(ctx).
		Add(append([]string{inv.Binary}, inv.Args...)).
		Directory(dir).
		Environment(b.Environment()).
		SetOutputSender(level.Info, sender).
		SetErrorSender(level.Error, sender)
}
