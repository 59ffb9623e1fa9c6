package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/transform"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// MotionCorrection calculates motion correction transforms for the ASL
// data, one per volume. The calibration image is used as the reference when
// supplied, in which case the transforms are rebased so the middle ASL
// volume is unchanged and the ASL to calibration registration is recorded
// as a side effect. Otherwise the middle volume itself is the reference.
// The transforms are not applied here; ApplyCorrections consumes them.
func MotionCorrection(ctx context.Context, wsp *Workspace) error {
	if wsp.IsDone("moco") {
		return nil
	}
	if wsp.ASLData.IsZero() {
		return errors.New("no ASL data in workspace")
	}

	grip.Info("Motion Correction")
	dir, err := wsp.Sub("moco")
	if err != nil {
		return err
	}

	out := fsl.NewImage(filepath.Join(dir, "asldata_mc"))
	withCalib := !wsp.Calib.IsZero()

	mcOpts := fsl.MCFlirtOptions{In: wsp.ASLData, Out: out, Mats: true}
	if withCalib {
		// The calibration image is the most consistent reference when
		// the data has a range of TIs or background suppression, and
		// removes motion between the ASL and calibration images.
		grip.Info(" - Using calibration image as reference")
		mcOpts.RefFile = wsp.Calib
	} else {
		grip.Info(" - Using ASL data middle volume as reference")
	}
	if err := fsl.MCFlirt(ctx, wsp.Runner(), mcOpts); err != nil {
		return errors.Wrap(err, "motion correcting ASL data")
	}

	mats, err := transform.LoadMotionSeries(fsl.MCFlirtMatsDir(out))
	if err != nil {
		return errors.Wrap(err, "reading motion correction transforms")
	}

	var refSource string
	if withCalib {
		mid := transform.MiddleVolume(len(mats))
		if err := wsp.setASL2Calib(mats[mid]); err != nil {
			return err
		}
		// Rebase so the middle ASL volume is unchanged, minimizing
		// interpolation of the other volumes.
		mats, err = transform.RebaseToVolume(mats, mid)
		if err != nil {
			return errors.Wrap(err, "rebasing motion correction transforms")
		}
		grip.Infof("   ASL middle volume->Calib:\n%s", wsp.Reg.ASL2Calib)
		grip.Infof("   Calib->ASL middle volume:\n%s", wsp.Reg.Calib2ASL)
		refSource = fmt.Sprintf("calibration image: %s", wsp.Calib.Name())
	} else {
		refSource = fmt.Sprintf("ASL data %s middle volume: %d", wsp.ASLData.Name(), transform.MiddleVolume(len(mats)))
	}

	stacked := filepath.Join(dir, "mc_mats.mat")
	if err := transform.WriteStacked(stacked, mats); err != nil {
		return errors.Wrap(err, "writing stacked motion correction transforms")
	}
	wsp.Corr.MCMats = mats
	wsp.Corr.MCMatsFile = stacked
	wsp.Corr.MCRef = refSource

	page := wsp.Report.Page("moco")
	page.Heading("Motion correction", 0)
	page.Text("Reference volume: %s", refSource)
	page.Heading("Motion parameters", 1)
	for vol, mat := range mats {
		page.Text("Volume %d", vol)
		page.Matrix(mat)
	}

	wsp.MarkDone("moco")
	return nil
}

// FieldmapCorrection calculates the fieldmap based distortion correction
// warp. epi_reg registers the ASL reference to the structural image with
// simultaneous distortion modelling, producing a warp in structural space
// which is then converted into ASL space. Skips with a log message when the
// fieldmap images are absent, and warns when they are present but the
// phase encoding parameters are not.
func FieldmapCorrection(ctx context.Context, wsp *Workspace) error {
	if wsp.IsDone("fieldmap") {
		return nil
	}

	o := wsp.DistcorrOpts
	switch {
	case o.Fieldmap.IsZero() || o.FieldmapMag.IsZero() || o.FieldmapMagBrain.IsZero():
		grip.Info("No fieldmap images for distortion correction")
	case o.PhaseEncodeDir == "" || o.EchoSpacing <= 0:
		grip.Warning("Fieldmap images supplied but pedir and echospacing required for distortion correction")
	default:
		if err := fieldmapWarp(ctx, wsp); err != nil {
			return err
		}
	}

	wsp.MarkDone("fieldmap")
	return nil
}

func fieldmapWarp(ctx context.Context, wsp *Workspace) error {
	if wsp.Reg.ASL2Struc == nil {
		if err := RegisterASLToStruc(ctx, wsp, true, false); err != nil {
			return err
		}
	}
	if err := SegmentStructural(ctx, wsp); err != nil {
		return err
	}

	grip.Info("Distortion correction from fieldmap images using EPI_REG")
	dir, err := wsp.Sub("distcorr")
	if err != nil {
		return err
	}

	o := wsp.DistcorrOpts
	outBase := filepath.Join(dir, "fmap_reg")
	if err := fsl.EpiReg(ctx, wsp.Runner(), fsl.EpiRegOptions{
		EPI:          wsp.Reg.Regfrom,
		T1:           wsp.Structural.Struc,
		T1Brain:      wsp.Structural.Brain,
		OutBase:      outBase,
		WMSeg:        wsp.Structural.WMSeg,
		InitMat:      wsp.Reg.ASL2StrucMat,
		Weight:       wsp.RegOpts.InWeight,
		FMap:         o.Fieldmap,
		FMapMag:      o.FieldmapMag,
		FMapMagBrain: o.FieldmapMagBrain,
		PEDir:        o.PhaseEncodeDir,
		EchoSpacing:  o.EchoSpacing,
		NoFMapReg:    o.NoFmapReg,
	}); err != nil {
		return errors.Wrap(err, "fieldmap registration")
	}

	// epi_reg leaves the distortion warp in structural space along with
	// its own ASL to structural affine; the warp is brought into ASL
	// space by appending the inverse of that affine.
	fmapASL2Struc, err := transform.Load(fsl.EpiRegMat(outBase))
	if err != nil {
		return errors.Wrap(err, "reading fieldmap registration transform")
	}
	fmapStruc2ASL, err := fmapASL2Struc.Inverse()
	if err != nil {
		return errors.Wrap(err, "inverting fieldmap registration transform")
	}
	postmat := filepath.Join(dir, "fmap_struc2asl.mat")
	if err := fmapStruc2ASL.Write(postmat); err != nil {
		return errors.Wrap(err, "writing fieldmap struc2asl matrix")
	}

	mean, err := ensureMeanASL(ctx, wsp)
	if err != nil {
		return err
	}
	fmapWarp := fsl.NewImage(filepath.Join(dir, "fmap_warp"))
	if err := fsl.ConvertWarp(ctx, wsp.Runner(), fsl.ConvertWarpOptions{
		Ref:     mean,
		Out:     fmapWarp,
		Warp1:   fsl.NewImage(outBase + "_warp"),
		Postmat: postmat,
		Rel:     true,
	}); err != nil {
		return errors.Wrap(err, "converting fieldmap warp to ASL space")
	}
	wsp.Corr.FmapWarp = fmapWarp

	return nil
}

// CBLIPCorrection estimates susceptibility distortion with TOPUP from a
// phase-encode-reversed calibration image: the calibration pair is merged
// into a single time series, the acquisition parameters derived from the
// phase encoding direction and echo spacing, and TOPUP run with the
// standard b02b0.cnf configuration. The estimated field is recorded in
// calibration space; it is not combined into the total correction warp.
func CBLIPCorrection(ctx context.Context, wsp *Workspace) error {
	if wsp.IsDone("cblip") {
		return nil
	}

	o := wsp.DistcorrOpts
	switch {
	case wsp.Cblip.IsZero():
		grip.Debug("no phase-encode-reversed calibration image for distortion correction")
	case wsp.Calib.IsZero():
		grip.Warning("Phase-encode-reversed calibration image supplied but no calibration image - not correcting")
	case o.PhaseEncodeDir == "" || o.EchoSpacing <= 0:
		grip.Warning("Phase-encode-reversed calibration image supplied but pedir and echospacing required for distortion correction")
	default:
		if err := cblipTopup(ctx, wsp); err != nil {
			return err
		}
	}

	wsp.MarkDone("cblip")
	return nil
}

func cblipTopup(ctx context.Context, wsp *Workspace) error {
	grip.Info("Distortion Correction using TOPUP")
	dir, err := wsp.Sub("topup")
	if err != nil {
		return err
	}

	o := wsp.DistcorrOpts
	params, err := fsl.TopupAcqParams(o.PhaseEncodeDir, o.EchoSpacing)
	if err != nil {
		return errors.WithStack(err)
	}
	paramsFile := filepath.Join(dir, "topup_params.txt")
	if err := os.WriteFile(paramsFile, []byte(params), 0644); err != nil {
		return errors.Wrap(err, "writing topup acquisition parameters")
	}

	merged := fsl.NewImage(filepath.Join(dir, "calib_blipped"))
	if err := fsl.Merge(ctx, wsp.Runner(), merged, wsp.Calib, wsp.Cblip); err != nil {
		return errors.Wrap(err, "merging calibration images")
	}

	fieldOut := fsl.NewImage(filepath.Join(dir, "topup_fieldmap"))
	if err := fsl.Topup(ctx, wsp.Runner(), fsl.TopupOptions{
		IMain:    merged,
		DataIn:   paramsFile,
		Config:   "b02b0.cnf",
		OutBase:  filepath.Join(dir, "topup"),
		FieldOut: fieldOut,
	}); err != nil {
		return errors.Wrap(err, "estimating distortion with topup")
	}
	wsp.Corr.CblipFieldmap = fieldOut

	return nil
}

// SensitivityCorrection determines the coil sensitivity correction image in
// ASL space. Preference order: disabled, user-supplied image, ratio of the
// calibration image to its reference, reciprocal of the FAST bias field
// resampled into ASL space, none.
func SensitivityCorrection(ctx context.Context, wsp *Workspace) error {
	if !wsp.Corr.Sensitivity.IsZero() {
		return nil
	}

	grip.Info("Sensitivity correction")
	o := wsp.SenscorrOpts
	switch {
	case o.Off:
		grip.Info(" - Sensitivity correction disabled")
	case !o.ISen.IsZero():
		grip.Info(" - Sensitivity image supplied by user")
		wsp.Corr.Sensitivity = o.ISen
	case !wsp.Calib.IsZero() && !wsp.Cref.IsZero():
		grip.Info(" - Sensitivity image calculated from calibration reference image")
		dir, err := wsp.Sub("senscorr")
		if err != nil {
			return err
		}
		sens := fsl.NewImage(filepath.Join(dir, "sensitivity"))
		if err := fsl.Maths(wsp.Calib).Div(wsp.Cref).Run(ctx, wsp.Runner(), sens); err != nil {
			return errors.Wrap(err, "calculating sensitivity from calibration reference")
		}
		wsp.Corr.Sensitivity = sens
	case o.Auto:
		if err := SegmentStructural(ctx, wsp); err != nil {
			return err
		}
		if wsp.Structural.Bias.IsZero() {
			grip.Info(" - No source of sensitivity correction was found")
			return nil
		}
		grip.Info(" - Sensitivity image calculated from bias field")
		dir, err := wsp.Sub("senscorr")
		if err != nil {
			return err
		}
		sensStruc := fsl.NewImage(filepath.Join(dir, "sensitivity_struc"))
		if err := fsl.Maths(wsp.Structural.Bias).Recip().Run(ctx, wsp.Runner(), sensStruc); err != nil {
			return errors.Wrap(err, "inverting bias field")
		}
		if wsp.Reg.ASL2Struc == nil {
			if err := RegisterASLToStruc(ctx, wsp, true, false); err != nil {
				return err
			}
		}
		sens := fsl.NewImage(filepath.Join(dir, "sensitivity"))
		if err := StrucToASL(ctx, wsp, sensStruc, sens, ResampleOptions{}); err != nil {
			return errors.Wrap(err, "resampling sensitivity image to ASL space")
		}
		wsp.Corr.Sensitivity = sens
	default:
		grip.Info(" - No source of sensitivity correction was found")
	}

	return nil
}

// ApplyCorrections applies the calculated distortion and motion corrections
// to the ASL and calibration data in a single resampling step each. The
// correction warps are first combined into one transform with its Jacobian;
// the ASL data is then resampled from the original input with the stacked
// motion correction matrices as premat, and the calibration family images
// with the calibration to ASL transform. Corrected images replace the
// workspace inputs.
func ApplyCorrections(ctx context.Context, wsp *Workspace) error {
	grip.Info("Applying combined corrections to data")

	if wsp.Corr.MCMatsFile != "" {
		grip.Info(" - Adding motion correction transforms")
	}

	var warps []fsl.Image
	if !wsp.Corr.FmapWarp.IsZero() {
		grip.Info(" - Adding fieldmap based warp to correction")
		warps = append(warps, wsp.Corr.FmapWarp)
	}
	if !wsp.DistcorrOpts.GDCWarp.IsZero() {
		grip.Info(" - Adding user-supplied GDC warp to correction")
		warps = append(warps, wsp.DistcorrOpts.GDCWarp)
	}

	if len(warps) == 0 && wsp.Corr.MCMatsFile == "" {
		grip.Info(" - No corrections to apply")
		return nil
	}

	mean, err := ensureMeanASL(ctx, wsp)
	if err != nil {
		return err
	}
	dir, err := wsp.Sub("corrected")
	if err != nil {
		return err
	}

	if len(warps) > 0 {
		grip.Info(" - Converting all warps to single transform and extracting Jacobian")
		total := fsl.NewImage(filepath.Join(dir, "total_warp"))
		jacobian := fsl.NewImage(filepath.Join(dir, "jacobian"))
		cwOpts := fsl.ConvertWarpOptions{
			Ref:         mean,
			Out:         total,
			Warp1:       warps[0],
			Rel:         true,
			JacobianOut: jacobian,
		}
		if len(warps) > 1 {
			cwOpts.Warp2 = warps[1]
		}
		if err := fsl.ConvertWarp(ctx, wsp.Runner(), cwOpts); err != nil {
			return errors.Wrap(err, "combining correction warps")
		}
		wsp.Corr.TotalWarp = total
		wsp.Corr.Jacobian = jacobian
	}

	grip.Info(" - Applying corrections to ASL data")
	asldataCorr := fsl.NewImage(filepath.Join(dir, "asldata"))
	if err := correctImage(ctx, wsp, wsp.ASLDataOrig, wsp.Corr.MCMatsFile, mean, asldataCorr); err != nil {
		return errors.Wrap(err, "correcting ASL data")
	}
	wsp.ASLData = asldataCorr

	if !wsp.CalibOrig.IsZero() {
		grip.Info(" - Applying corrections to calibration data")
		calibMat := wsp.Reg.Calib2ASLMat

		calibCorr := fsl.NewImage(filepath.Join(dir, "calib"))
		var crefCorr, cblipCorr fsl.Image

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return correctImage(gctx, wsp, wsp.CalibOrig, calibMat, mean, calibCorr)
		})
		if !wsp.CrefOrig.IsZero() {
			crefCorr = fsl.NewImage(filepath.Join(dir, "cref"))
			g.Go(func() error {
				return correctImage(gctx, wsp, wsp.CrefOrig, calibMat, mean, crefCorr)
			})
		}
		if !wsp.CblipOrig.IsZero() {
			cblipCorr = fsl.NewImage(filepath.Join(dir, "cblip"))
			g.Go(func() error {
				return correctImage(gctx, wsp, wsp.CblipOrig, calibMat, mean, cblipCorr)
			})
		}
		if err := g.Wait(); err != nil {
			return errors.Wrap(err, "correcting calibration images")
		}

		wsp.Calib = calibCorr
		if !crefCorr.IsZero() {
			wsp.Cref = crefCorr
		}
		if !cblipCorr.IsZero() {
			wsp.Cblip = cblipCorr
		}
	}

	return nil
}

// correctImage resamples an image into the mean ASL reference space through
// the combined warp and a linear premat in one step, then corrects for
// local volume scaling when a Jacobian is present.
func correctImage(ctx context.Context, wsp *Workspace, img fsl.Image, prematFile string, ref, out fsl.Image) error {
	if err := fsl.ApplyWarp(ctx, wsp.Runner(), fsl.ApplyWarpOptions{
		In:          img,
		Ref:         ref,
		Out:         out,
		Warp:        wsp.Corr.TotalWarp,
		Premat:      prematFile,
		Interp:      "sinc",
		PaddingSize: 1,
		Rel:         true,
	}); err != nil {
		return errors.Wrapf(err, "resampling '%s'", img.Name())
	}

	if !wsp.Corr.Jacobian.IsZero() {
		grip.Info(" - Correcting for local volume scaling using Jacobian")
		if err := fsl.Maths(out).Mul(wsp.Corr.Jacobian).Run(ctx, wsp.Runner(), out); err != nil {
			return errors.Wrapf(err, "applying Jacobian correction to '%s'", img.Name())
		}
	}
	return nil
}

// ApplySensitivity divides each image by the sensitivity correction image
// when one is defined and correction is not disabled, returning the
// corrected images. Otherwise the input images are returned unchanged.
func ApplySensitivity(ctx context.Context, wsp *Workspace, imgs ...fsl.Image) ([]fsl.Image, error) {
	if wsp.Corr.Sensitivity.IsZero() || wsp.SenscorrOpts.Off {
		return imgs, nil
	}

	grip.Info("Applying sensitivity correction")
	dir, err := wsp.Sub("senscorr")
	if err != nil {
		return nil, err
	}

	out := make([]fsl.Image, 0, len(imgs))
	for _, img := range imgs {
		corrected := fsl.NewImage(filepath.Join(dir, img.Name()+"_senscorr"))
		if err := fsl.Maths(img).Div(wsp.Corr.Sensitivity).Run(ctx, wsp.Runner(), corrected); err != nil {
			return nil, errors.Wrapf(err, "applying sensitivity correction to '%s'", img.Name())
		}
		out = append(out, corrected)
	}
	return out, nil
}
