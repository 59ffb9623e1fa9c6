package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a3sha2/oxasl/pkgbuild"
	"github.com/a3sha2/oxasl/pkgmeta"
	"github.com/a3sha2/oxasl/recipe"
	"github.com/a3sha2/oxasl/validator"
	"github.com/cheynewallace/tabby"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func Package() cli.Command {
	return cli.Command{
		Name:    "package",
		Aliases: []string{"pkg"},
		Usage:   "render, validate, and build package recipes",
		Subcommands: []cli.Command{
			packageRender(),
			packageValidate(),
			packageDeps(),
			packageBuild(),
			packageTest(),
		},
	}
}

func packageRender() cli.Command {
	return cli.Command{
		Name:  "render",
		Usage: "render a recipe template with package metadata",
		Flags: mergeFlagSlices(addPathFlag(), addMetadataFlag(), []cli.Flag{
			cli.StringFlag{
				Name:  joinFlagNames(outputFlagName, "out", "o"),
				Usage: "path of the rendered recipe to write; defaults to standard output",
			},
		}),
		Before: mergeBeforeFuncs(requirePathFlag, requireFileExists(pathFlagName)),
		Action: func(c *cli.Context) error {
			r, err := loadRecipe(c)
			if err != nil {
				return err
			}

			if out := c.String(outputFlagName); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Wrapf(err, "creating output file '%s'", out)
				}
				defer f.Close()
				return errors.Wrapf(r.Write(f), "writing rendered recipe to '%s'", out)
			}
			return errors.Wrap(r.Write(os.Stdout), "writing rendered recipe")
		},
	}
}

func packageValidate() cli.Command {
	return cli.Command{
		Name:   "validate",
		Usage:  "verify that a package recipe is well formed",
		Flags:  mergeFlagSlices(addPathFlag(), addMetadataFlag()),
		Before: mergeBeforeFuncs(requirePathFlag, requireFileExists(pathFlagName)),
		Action: func(c *cli.Context) error {
			r, err := loadRecipe(c)
			if err != nil {
				return err
			}

			recipeErrors := validator.CheckRecipeSyntax(r)
			recipeErrors = append(recipeErrors, validator.CheckRecipeSemantics(r)...)

			if len(recipeErrors) > 0 {
				numErrors, numWarnings := 0, 0
				for i, e := range recipeErrors {
					if e.Level == validator.Warning {
						numWarnings++
					} else if e.Level == validator.Error {
						numErrors++
					}
					fmt.Printf("%v) %v: %v\n\n", i+1, e.Level, e.Message)
				}

				if numErrors > 0 {
					return errors.Errorf("Recipe file has %d warnings, %d errors.", numWarnings, numErrors)
				}
			}
			fmt.Println("Valid!")
			return nil
		},
	}
}

func packageDeps() cli.Command {
	return cli.Command{
		Name:   "deps",
		Usage:  "list the dependencies a recipe declares",
		Flags:  mergeFlagSlices(addPathFlag(), addMetadataFlag(), addJSONFlag()),
		Before: mergeBeforeFuncs(requirePathFlag, requireFileExists(pathFlagName)),
		Action: func(c *cli.Context) error {
			r, err := loadRecipe(c)
			if err != nil {
				return err
			}

			if c.Bool(jsonFlagName) {
				deps := struct {
					Build []string `json:"build"`
					Run   []string `json:"run"`
					Test  []string `json:"test"`
				}{r.BuildDeps(), r.RunDeps(), r.TestDeps()}

				output, err := json.MarshalIndent(deps, "", "\t")
				if err != nil {
					return errors.Wrap(err, "marshalling dependencies")
				}
				fmt.Println(string(output))
				return nil
			}

			total := len(r.BuildDeps()) + len(r.RunDeps()) + len(r.TestDeps())
			fmt.Printf("%d dependencies:\n", total)

			t := tabby.New()
			t.AddHeader("Phase", "Dependency")
			for _, dep := range r.BuildDeps() {
				t.AddLine("build", dep)
			}
			for _, dep := range r.RunDeps() {
				t.AddLine("run", dep)
			}
			for _, dep := range r.TestDeps() {
				t.AddLine("test", dep)
			}
			t.Print()
			return nil
		},
	}
}

func packageBuild() cli.Command {
	return cli.Command{
		Name:  "build",
		Usage: "stage a recipe's source and build a package artifact",
		Flags: mergeFlagSlices(addPathFlag(), addMetadataFlag(), addWorkDirFlag(), []cli.Flag{
			cli.BoolFlag{
				Name:  describeFlagName,
				Usage: "derive a missing version and build number from the git state of the recipe directory",
			},
		}),
		Before: mergeBeforeFuncs(requirePathFlag, requireFileExists(pathFlagName)),
		Action: func(c *cli.Context) error {
			confPath := c.Parent().Parent().String(confFlagName)

			settings, err := NewClientSettings(confPath)
			if err != nil {
				return errors.Wrap(err, "loading client settings")
			}
			settings.SetVerboseLogging()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			meta, err := loadMetadata(c)
			if err != nil {
				return err
			}
			if c.Bool(describeFlagName) {
				if meta == nil {
					return errors.Errorf("flag '--%s' requires a metadata file", describeFlagName)
				}
				jpm, err := jasper.NewSynchronizedManager(false)
				if err != nil {
					return errors.Wrap(err, "constructing process manager")
				}
				if err := meta.DescribeVersion(ctx, jpm, filepath.Dir(c.String(pathFlagName))); err != nil {
					return errors.Wrap(err, "describing package version")
				}
			}

			r, err := renderRecipe(c.String(pathFlagName), meta)
			if err != nil {
				return err
			}

			if recipeErrors := validator.CheckRecipeSyntax(r); validator.HasErrors(recipeErrors) {
				for i, e := range recipeErrors {
					fmt.Printf("%v) %v: %v\n\n", i+1, e.Level, e.Message)
				}
				return errors.Errorf("recipe '%s' is not buildable", c.String(pathFlagName))
			}

			builder, err := newRecipeBuilder(c, settings, r, meta)
			if err != nil {
				return err
			}

			if err := builder.StageSource(ctx); err != nil {
				return err
			}
			if err := builder.RunInstall(ctx); err != nil {
				return err
			}

			artifact, err := builder.WriteArtifact(ctx)
			if err != nil {
				return err
			}
			fmt.Println(artifact)
			return nil
		},
	}
}

func packageTest() cli.Command {
	return cli.Command{
		Name:   "test",
		Usage:  "stage a recipe's source and run its test commands",
		Flags:  mergeFlagSlices(addPathFlag(), addMetadataFlag(), addWorkDirFlag()),
		Before: mergeBeforeFuncs(requirePathFlag, requireFileExists(pathFlagName)),
		Action: func(c *cli.Context) error {
			confPath := c.Parent().Parent().String(confFlagName)

			settings, err := NewClientSettings(confPath)
			if err != nil {
				return errors.Wrap(err, "loading client settings")
			}
			settings.SetVerboseLogging()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			meta, err := loadMetadata(c)
			if err != nil {
				return err
			}
			r, err := renderRecipe(c.String(pathFlagName), meta)
			if err != nil {
				return err
			}

			builder, err := newRecipeBuilder(c, settings, r, meta)
			if err != nil {
				return err
			}

			if err := builder.StageSource(ctx); err != nil {
				return err
			}
			return builder.RunTests(ctx)
		},
	}
}

// loadRecipe renders the recipe named by the path flag, expanded with
// the metadata file when one was given.
func loadRecipe(c *cli.Context) (*recipe.Recipe, error) {
	meta, err := loadMetadata(c)
	if err != nil {
		return nil, err
	}
	return renderRecipe(c.String(pathFlagName), meta)
}

func loadMetadata(c *cli.Context) (*pkgmeta.Metadata, error) {
	metaPath := c.String(metadataFlagName)
	if metaPath == "" {
		return nil, nil
	}
	m, err := pkgmeta.Load(metaPath)
	return m, errors.Wrap(err, "loading package metadata")
}

func renderRecipe(path string, meta *pkgmeta.Metadata) (*recipe.Recipe, error) {
	if meta != nil {
		r, err := recipe.LoadRendered(path, meta.Expansions())
		return r, errors.Wrap(err, "rendering recipe")
	}
	r, err := recipe.Load(path)
	return r, errors.Wrap(err, "loading recipe")
}

func newRecipeBuilder(c *cli.Context, settings *ClientSettings, r *recipe.Recipe, meta *pkgmeta.Metadata) (*pkgbuild.Builder, error) {
	path := c.String(pathFlagName)

	workDir := c.String(workDirFlagName)
	if workDir == "" {
		workDir = settings.BuildWorkDir
	}
	if workDir == "" {
		workDir = filepath.Join(filepath.Dir(path), "build")
	}

	b, err := pkgbuild.NewBuilder(pkgbuild.BuilderOptions{
		Recipe:    r,
		Metadata:  meta,
		WorkDir:   workDir,
		RecipeDir: filepath.Dir(path),
	})
	return b, errors.Wrap(err, "constructing package builder")
}
