package operations

import (
	"context"
	"os"
	"path/filepath"

	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/pipeline"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func Reg() cli.Command {
	return cli.Command{
		Name:  "reg",
		Usage: "register ASL data to structural and standard spaces",
		Flags: mergeFlagSlices(addOutputDirFlag(), addStructuralFlags(), []cli.Flag{
			cli.StringFlag{
				Name:  regfromFlagName,
				Usage: "registration image (e.g. perfusion weighted image), brain extracted",
			},
			cli.StringFlag{
				Name:  omatFlagName,
				Usage: "output file for transform matrix",
			},
			cli.StringFlag{
				Name:  flirtschFlagName,
				Usage: "user-specified FLIRT schedule for registration",
			},
			cli.IntFlag{
				Name:  dofFlagName,
				Usage: "degrees of freedom for the main registration step",
				Value: 6,
			},
			cli.BoolFlag{
				Name:  bbrFlagName,
				Usage: "include BBR registration step using EPI_REG",
			},
			cli.BoolTFlag{
				Name:  flirtFlagName,
				Usage: "include rigid-body registration step using FLIRT",
			},
			cli.BoolFlag{
				Name:  stdFlagName,
				Usage: "also register the structural image to standard space",
			},
			cli.BoolFlag{
				Name:  fnirtFlagName,
				Usage: "use FNIRT for nonlinear registration to standard space",
			},
		}),
		Before: mergeBeforeFuncs(setPlainLogger, requireInputFlag(regfromFlagName)),
		Action: func(c *cli.Context) error {
			confPath := c.Parent().String(confFlagName)

			settings, err := NewClientSettings(confPath)
			if err != nil {
				return errors.Wrap(err, "loading client settings")
			}
			settings.SetVerboseLogging()

			runner, err := settings.MakeRunner()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// without an output directory registration runs in a scratch
			// workspace and only the requested matrix file survives
			root := c.String(outputFlagName)
			if root == "" {
				root, err = os.MkdirTemp("", "oxasl-reg-")
				if err != nil {
					return errors.Wrap(err, "creating temporary working directory")
				}
				defer os.RemoveAll(root)
			}

			wsp, err := pipeline.NewWorkspace(regWorkspaceOptions(c, settings, runner, root))
			if err != nil {
				return err
			}

			if err := pipeline.RegisterASLToStruc(ctx, wsp, c.BoolT(flirtFlagName), c.Bool(bbrFlagName)); err != nil {
				return err
			}
			if c.Bool(stdFlagName) || c.Bool(fnirtFlagName) {
				if err := pipeline.RegisterStrucToStd(ctx, wsp, c.Bool(fnirtFlagName)); err != nil {
					return err
				}
			}

			if c.String(outputFlagName) != "" && !wsp.Reg.Regto.IsZero() {
				out := fsl.NewImage(filepath.Join(wsp.Root(), "asl2struc"))
				if err := fsl.ImCp(ctx, wsp.Runner(), wsp.Reg.Regto, out); err != nil {
					return errors.Wrap(err, "saving registered image")
				}
			}
			if omat := c.String(omatFlagName); omat != "" && wsp.Reg.ASL2Struc != nil {
				if err := wsp.Reg.ASL2Struc.Write(omat); err != nil {
					return errors.Wrap(err, "writing transform matrix")
				}
			}

			return nil
		},
	}
}

func regWorkspaceOptions(c *cli.Context, settings *ClientSettings, runner fsl.Runner, root string) pipeline.WorkspaceOptions {
	return pipeline.WorkspaceOptions{
		Root:       root,
		FSLDir:     settings.FSLDir,
		Runner:     runner,
		Struc:      imageFlag(c, strucFlagName),
		StrucBrain: imageFlag(c, strucBrainFlagName),
		WMSeg:      imageFlag(c, wmsegFlagName),
		FSLAnatDir: c.String(fslanatFlagName),
		Reg: pipeline.RegOptions{
			Regfrom:  imageFlag(c, regfromFlagName),
			Schedule: c.String(flirtschFlagName),
			DOF:      c.Int(dofFlagName),
		},
	}
}
