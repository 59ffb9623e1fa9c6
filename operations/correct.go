package operations

import (
	"context"
	"path/filepath"

	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/pipeline"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const defaultCorrectOutput = "oxasl_out"

func Correct() cli.Command {
	return cli.Command{
		Name:  "correct",
		Usage: "calculate and apply corrections to ASL and calibration data",
		Flags: mergeFlagSlices(addOutputDirFlag(), addASLInputFlags(), addStructuralFlags(), addDistcorrFlags(), addSenscorrFlags(), []cli.Flag{
			cli.BoolFlag{
				Name:  mcFlagName,
				Usage: "apply motion correction using mcflirt",
			},
			cli.BoolFlag{
				Name:  pvcorrFlagName,
				Usage: "resample partial volume maps into ASL space for partial volume correction",
			},
			cli.StringFlag{
				Name:  reportFlagName,
				Usage: "directory to write the processing report into",
			},
		}),
		Before: mergeBeforeFuncs(setPlainLogger, requireInputFlag(asldataFlagName)),
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

			root := c.String(outputFlagName)
			if root == "" {
				root = defaultCorrectOutput
			}

			wsp, err := pipeline.NewWorkspace(correctWorkspaceOptions(c, settings, runner, root))
			if err != nil {
				return err
			}

			if err := runCorrections(ctx, wsp, c.Bool(mcFlagName)); err != nil {
				return err
			}
			if err := saveCorrected(ctx, wsp); err != nil {
				return err
			}

			reportDir := c.String(reportFlagName)
			if reportDir == "" {
				reportDir = settings.ReportDir
			}
			if reportDir == "" {
				reportDir = filepath.Join(wsp.Root(), "report")
			}
			wsp.Report.AddEnvironmentPage(settings.FSLDir, settings.OutputType)
			return errors.Wrap(wsp.Report.Write(reportDir), "writing processing report")
		},
	}
}

// runCorrections calculates each requested correction, applies the
// combined result to the input data, then the sensitivity division and
// partial volume resampling. Each step skips itself when its inputs are
// not in the workspace.
func runCorrections(ctx context.Context, wsp *pipeline.Workspace, moco bool) error {
	if moco {
		if err := pipeline.MotionCorrection(ctx, wsp); err != nil {
			return err
		}
	}
	if err := pipeline.RegisterASLToCalib(ctx, wsp); err != nil {
		return err
	}
	if err := pipeline.FieldmapCorrection(ctx, wsp); err != nil {
		return err
	}
	if err := pipeline.CBLIPCorrection(ctx, wsp); err != nil {
		return err
	}
	if err := pipeline.SensitivityCorrection(ctx, wsp); err != nil {
		return err
	}
	if err := pipeline.ApplyCorrections(ctx, wsp); err != nil {
		return err
	}

	corrected, err := pipeline.ApplySensitivity(ctx, wsp, wsp.ASLData)
	if err != nil {
		return err
	}
	wsp.ASLData = corrected[0]

	return pipeline.PartialVolumes(ctx, wsp)
}

// saveCorrected copies the corrected data to stable names at the top of
// the output directory.
func saveCorrected(ctx context.Context, wsp *pipeline.Workspace) error {
	outputs := []struct {
		img  fsl.Image
		name string
	}{
		{wsp.ASLData, "asldata_corr"},
		{wsp.Calib, "calib_corr"},
		{wsp.Cref, "cref_corr"},
		{wsp.Cblip, "cblip_corr"},
	}

	for _, out := range outputs {
		if out.img.IsZero() {
			continue
		}
		dst := fsl.NewImage(filepath.Join(wsp.Root(), out.name))
		if err := fsl.ImCp(ctx, wsp.Runner(), out.img, dst); err != nil {
			return errors.Wrapf(err, "saving '%s'", out.name)
		}
	}
	return nil
}

func correctWorkspaceOptions(c *cli.Context, settings *ClientSettings, runner fsl.Runner, root string) pipeline.WorkspaceOptions {
	return pipeline.WorkspaceOptions{
		Root:   root,
		FSLDir: settings.FSLDir,
		Runner: runner,

		ASLData: imageFlag(c, asldataFlagName),
		IAF:     c.String(iafFlagName),
		Calib:   imageFlag(c, calibFlagName),
		Cref:    imageFlag(c, crefFlagName),
		Cblip:   imageFlag(c, cblipFlagName),

		Struc:      imageFlag(c, strucFlagName),
		StrucBrain: imageFlag(c, strucBrainFlagName),
		WMSeg:      imageFlag(c, wmsegFlagName),
		FSLAnatDir: c.String(fslanatFlagName),

		Distcorr: pipeline.DistcorrOptions{
			Fieldmap:         imageFlag(c, fmapFlagName),
			FieldmapMag:      imageFlag(c, fmapMagFlagName),
			FieldmapMagBrain: imageFlag(c, fmapMagBrainFlagName),
			NoFmapReg:        c.Bool(noFmapRegFlagName),
			EchoSpacing:      c.Float64(echoSpacingFlagName),
			PhaseEncodeDir:   c.String(pedirFlagName),
			GDCWarp:          imageFlag(c, gdcWarpFlagName),
		},
		Senscorr: pipeline.SenscorrOptions{
			ISen: imageFlag(c, isenFlagName),
			Auto: c.Bool(senscorrAutoFlagName),
			Off:  c.Bool(senscorrOffFlagName),
		},
		PVCorr: c.Bool(pvcorrFlagName),
	}
}
