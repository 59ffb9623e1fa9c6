package pipeline

import (
	"context"
	"path/filepath"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/transform"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// Regfrom ensures the registration reference image which defines the native
// ASL space. Preference order: user-supplied image, mean ASL signal for
// unsubtracted (tag-control) data, calibration image, mean ASL image. All
// derived references are brain extracted.
func Regfrom(ctx context.Context, wsp *Workspace) error {
	if !wsp.Reg.Regfrom.IsZero() {
		return nil
	}

	grip.Info("Getting image to use for ASL->structural registration")
	dir, err := wsp.Sub("reg")
	if err != nil {
		return err
	}

	switch {
	case !wsp.RegOpts.Regfrom.IsZero():
		grip.Info(" - Registration reference image supplied by user")
		wsp.Reg.Regfrom = wsp.RegOpts.Regfrom
	case wsp.IAF == oxasl.IAFTagControl || wsp.IAF == oxasl.IAFControlTag:
		grip.Info(" - Registration reference is mean ASL signal (brain extracted)")
		wsp.Reg.Regfrom, err = meanASLBrain(ctx, wsp, dir)
		if err != nil {
			return err
		}
	case !wsp.Calib.IsZero():
		grip.Info(" - Registration reference is calibration image (brain extracted)")
		brain := fsl.NewImage(filepath.Join(dir, "calib_brain"))
		if err := fsl.BET(ctx, wsp.Runner(), fsl.BETOptions{
			In:            wsp.Calib,
			Out:           brain,
			FracIntensity: 0.2,
		}); err != nil {
			return errors.Wrap(err, "brain extracting calibration image")
		}
		wsp.Reg.Regfrom = brain
	default:
		grip.Info(" - Registration reference is mean ASL image (brain extracted)")
		wsp.Reg.Regfrom, err = meanASLBrain(ctx, wsp, dir)
		if err != nil {
			return err
		}
	}
	return nil
}

func meanASLBrain(ctx context.Context, wsp *Workspace, dir string) (fsl.Image, error) {
	mean, err := ensureMeanASL(ctx, wsp)
	if err != nil {
		return fsl.Image{}, err
	}
	brain := fsl.NewImage(filepath.Join(dir, "meanasl_brain"))
	if err := fsl.BET(ctx, wsp.Runner(), fsl.BETOptions{
		In:            mean,
		Out:           brain,
		FracIntensity: 0.2,
	}); err != nil {
		return fsl.Image{}, errors.Wrap(err, "brain extracting mean ASL image")
	}
	return brain, nil
}

// RegisterASLToCalib registers the ASL reference image to the calibration
// image, recording the transform and its inverse. Motion correction with a
// calibration reference may already have recorded these.
func RegisterASLToCalib(ctx context.Context, wsp *Workspace) error {
	if wsp.Calib.IsZero() || wsp.Reg.ASL2Calib != nil {
		return nil
	}
	if err := Regfrom(ctx, wsp); err != nil {
		return err
	}

	grip.Info("Registering calibration image to ASL image")
	dir, err := wsp.Sub("reg")
	if err != nil {
		return err
	}
	_, mat, err := regFlirt(ctx, wsp, wsp.Reg.Regfrom, wsp.Calib, "", filepath.Join(dir, "asl2calib"))
	if err != nil {
		return err
	}
	return wsp.setASL2Calib(mat)
}

// RegisterASLToStruc registers the ASL reference image to the structural
// image. The FLIRT step runs a translation-only search then a constrained
// full registration; the BBR step refines the result with epi_reg after
// white matter segmentation. Records the transform, its inverse, and the
// registered image, and adds a report page.
func RegisterASLToStruc(ctx context.Context, wsp *Workspace, doFlirt, doBBR bool) error {
	if wsp.Structural.Struc.IsZero() {
		return errors.New("no structural image in workspace")
	}
	if err := Regfrom(ctx, wsp); err != nil {
		return err
	}

	grip.Info("Registering ASL data to structural data")
	dir, err := wsp.Sub("reg")
	if err != nil {
		return err
	}

	if doFlirt {
		regto, mat, err := regFlirt(ctx, wsp, wsp.Reg.Regfrom, wsp.Structural.Struc, wsp.Reg.ASL2StrucMat, filepath.Join(dir, "asl2struc"))
		if err != nil {
			return err
		}
		wsp.Reg.Regto = regto
		if err := wsp.setASL2Struc(mat); err != nil {
			return err
		}
	}
	if doBBR {
		regto, mat, err := regBBR(ctx, wsp)
		if err != nil {
			return err
		}
		wsp.Reg.Regto = regto
		if err := wsp.setASL2Struc(mat); err != nil {
			return err
		}
	}
	if wsp.Reg.ASL2Struc == nil {
		return errors.New("no registration step produced an ASL to structural transform")
	}

	grip.Infof(" - ASL->Structural transform:\n%s", wsp.Reg.ASL2Struc)
	grip.Infof(" - Structural->ASL transform:\n%s", wsp.Reg.Struc2ASL)

	page := wsp.Report.Page("asl2struc")
	page.Heading("ASL -> Structural registration", 0)
	page.Heading("asl2struc", 1)
	page.Matrix(*wsp.Reg.ASL2Struc)
	page.Heading("struc2asl", 1)
	page.Matrix(*wsp.Reg.Struc2ASL)

	return nil
}

// regFlirt registers a low resolution ASL or calibration image to a higher
// resolution reference in two steps: a 3D translation-only search, then a
// constrained transformation initialized from the first step.
func regFlirt(ctx context.Context, wsp *Workspace, img, ref fsl.Image, initMat, outBase string) (fsl.Image, transform.Affine, error) {
	grip.Infof(" - Registering image: %s using FLIRT", img.Name())

	step1Mat := outBase + "_step1.mat"
	if err := fsl.Flirt(ctx, wsp.Runner(), fsl.FlirtOptions{
		In:       img,
		Ref:      ref,
		OutMat:   step1Mat,
		InitMat:  initMat,
		Schedule: oxasl.FlirtSchedule(wsp.FSLDir(), "xyztrans.sch"),
		InWeight: wsp.RegOpts.InWeight,
	}); err != nil {
		return fsl.Image{}, transform.Affine{}, errors.Wrap(err, "translation-only registration step")
	}

	schedule := wsp.RegOpts.Schedule
	if schedule == "" {
		schedule = "simple3D.sch"
	}
	regto := fsl.NewImage(outBase + "_regto")
	finalMat := outBase + ".mat"
	if err := fsl.Flirt(ctx, wsp.Runner(), fsl.FlirtOptions{
		In:       img,
		Ref:      ref,
		Out:      regto,
		OutMat:   finalMat,
		InitMat:  step1Mat,
		Schedule: oxasl.FlirtSchedule(wsp.FSLDir(), schedule),
		DOF:      wsp.RegOpts.DOF,
		InWeight: wsp.RegOpts.InWeight,
	}); err != nil {
		return fsl.Image{}, transform.Affine{}, errors.Wrap(err, "constrained registration step")
	}

	mat, err := transform.Load(finalMat)
	if err != nil {
		return fsl.Image{}, transform.Affine{}, errors.Wrap(err, "reading registration transform")
	}
	return regto, mat, nil
}

// regBBR refines the ASL to structural registration with epi_reg,
// initialized from the current transform when one exists.
func regBBR(ctx context.Context, wsp *Workspace) (fsl.Image, transform.Affine, error) {
	if err := SegmentStructural(ctx, wsp); err != nil {
		return fsl.Image{}, transform.Affine{}, err
	}

	grip.Info("  - BBR registration using epi_reg")
	dir, err := wsp.Sub("reg")
	if err != nil {
		return fsl.Image{}, transform.Affine{}, err
	}

	outBase := filepath.Join(dir, "asl2struc_bbr")
	if err := fsl.EpiReg(ctx, wsp.Runner(), fsl.EpiRegOptions{
		EPI:     wsp.Reg.Regfrom,
		T1:      wsp.Structural.Struc,
		T1Brain: wsp.Structural.Brain,
		OutBase: outBase,
		WMSeg:   wsp.Structural.WMSeg,
		InitMat: wsp.Reg.ASL2StrucMat,
		Weight:  wsp.RegOpts.InWeight,
	}); err != nil {
		return fsl.Image{}, transform.Affine{}, errors.Wrap(err, "BBR registration")
	}

	mat, err := transform.Load(fsl.EpiRegMat(outBase))
	if err != nil {
		return fsl.Image{}, transform.Affine{}, errors.Wrap(err, "reading BBR transform")
	}
	return fsl.NewImage(outBase), mat, nil
}

// RegisterStrucToStd determines the structural to standard space
// registration: an existing fsl_anat result when available, otherwise FLIRT
// against the MNI152 template, optionally refined with FNIRT. The inverse
// is recorded as a warp (via invwarp) or a matrix inverse as appropriate.
func RegisterStrucToStd(ctx context.Context, wsp *Workspace, fnirt bool) error {
	if wsp.Reg.Std2Struc != nil || !wsp.Reg.Std2StrucWarp.IsZero() {
		return nil
	}

	grip.Info("Registering structural data to standard space")

	if anatDir := wsp.Structural.FSLAnatDir; anatDir != "" {
		warp := fsl.NewImage(filepath.Join(anatDir, "T1_to_MNI_nonlin_coeff"))
		mat := filepath.Join(anatDir, "T1_to_MNI_lin.mat")
		if warp.Exists() {
			grip.Info(" - Using existing nonlinear registration from fsl_anat")
			wsp.Reg.Struc2StdWarp = warp
		} else if utility.FileExists(mat) {
			grip.Info(" - Using existing linear registration from fsl_anat")
			a, err := transform.Load(mat)
			if err != nil {
				return errors.Wrap(err, "reading fsl_anat linear registration")
			}
			wsp.Reg.Struc2Std = &a
			wsp.Reg.Struc2StdMat = mat
		}
	}

	if wsp.Reg.Struc2Std == nil && wsp.Reg.Struc2StdWarp.IsZero() {
		if wsp.Structural.Struc.IsZero() {
			return errors.New("no structural image in workspace")
		}
		dir, err := wsp.Sub("reg")
		if err != nil {
			return err
		}

		grip.Info(" - Registering structural image to standard space using FLIRT")
		omat := filepath.Join(dir, "struc2std.mat")
		if err := fsl.Flirt(ctx, wsp.Runner(), fsl.FlirtOptions{
			In:     wsp.Structural.Struc,
			Ref:    fsl.NewImage(oxasl.StandardBrain(wsp.FSLDir())),
			OutMat: omat,
		}); err != nil {
			return errors.Wrap(err, "registering structural image to standard space")
		}
		a, err := transform.Load(omat)
		if err != nil {
			return errors.Wrap(err, "reading structural to standard transform")
		}
		wsp.Reg.Struc2Std = &a
		wsp.Reg.Struc2StdMat = omat

		if fnirt {
			grip.Info(" - Registering structural image to standard space using FNIRT")
			coef := fsl.NewImage(filepath.Join(dir, "struc2std_warp"))
			if err := fsl.FNIRT(ctx, wsp.Runner(), fsl.FNIRTOptions{
				In:      wsp.Structural.Struc,
				AffMat:  omat,
				Config:  oxasl.FnirtConfig(wsp.FSLDir(), "T1_2_MNI152_2mm"),
				CoefOut: coef,
			}); err != nil {
				return errors.Wrap(err, "nonlinear registration to standard space")
			}
			wsp.Reg.Struc2StdWarp = coef
		}
	}

	if !wsp.Reg.Struc2StdWarp.IsZero() {
		dir, err := wsp.Sub("reg")
		if err != nil {
			return err
		}
		out := fsl.NewImage(filepath.Join(dir, "std2struc_warp"))
		if err := fsl.InvWarp(ctx, wsp.Runner(), fsl.InvWarpOptions{
			Warp: wsp.Reg.Struc2StdWarp,
			Ref:  wsp.Structural.Struc,
			Out:  out,
		}); err != nil {
			return errors.Wrap(err, "inverting standard space warp")
		}
		wsp.Reg.Std2StrucWarp = out
	} else if wsp.Reg.Struc2Std != nil {
		inv, err := wsp.Reg.Struc2Std.Inverse()
		if err != nil {
			return errors.Wrap(err, "inverting structural to standard transform")
		}
		wsp.Reg.Std2Struc = &inv
	}

	return nil
}

// ResampleOptions control transformation of images between spaces.
type ResampleOptions struct {
	// Interp is the interpolation method, trilinear when unset.
	Interp string
	// PaddingSize in voxels, 1 when unset.
	PaddingSize int
	// UseApplyWarp resamples with applywarp and automatic intermediate
	// supersampling instead of flirt.
	UseApplyWarp bool
}

func (o *ResampleOptions) setDefaults() {
	if o.Interp == "" {
		o.Interp = "trilinear"
	}
	if o.PaddingSize == 0 {
		o.PaddingSize = 1
	}
}

// StrucToASL resamples an image from structural into ASL space.
func StrucToASL(ctx context.Context, wsp *Workspace, img, out fsl.Image, opts ResampleOptions) error {
	if wsp.Reg.Struc2ASLMat == "" {
		return errors.New("structural to ASL transform not available - has registration been performed?")
	}
	if wsp.Reg.Regfrom.IsZero() {
		return errors.New("no registration reference image in workspace")
	}
	return resample(ctx, wsp, img, wsp.Reg.Regfrom, wsp.Reg.Struc2ASLMat, out, opts)
}

// ASLToStruc resamples an image from ASL into structural space.
func ASLToStruc(ctx context.Context, wsp *Workspace, img, out fsl.Image, opts ResampleOptions) error {
	if wsp.Reg.ASL2StrucMat == "" {
		return errors.New("ASL to structural transform not available - has registration been performed?")
	}
	if wsp.Structural.Struc.IsZero() {
		return errors.New("no structural image in workspace")
	}
	return resample(ctx, wsp, img, wsp.Structural.Struc, wsp.Reg.ASL2StrucMat, out, opts)
}

func resample(ctx context.Context, wsp *Workspace, img, ref fsl.Image, matFile string, out fsl.Image, opts ResampleOptions) error {
	opts.setDefaults()

	if !opts.UseApplyWarp {
		return errors.Wrap(fsl.Flirt(ctx, wsp.Runner(), fsl.FlirtOptions{
			In:          img,
			Ref:         ref,
			Out:         out,
			ApplyXFM:    true,
			InitMat:     matFile,
			Interp:      opts.Interp,
			PaddingSize: opts.PaddingSize,
		}), "resampling image")
	}
	return errors.Wrap(fsl.ApplyWarp(ctx, wsp.Runner(), fsl.ApplyWarpOptions{
		In:          img,
		Ref:         ref,
		Out:         out,
		Premat:      matFile,
		Interp:      opts.Interp,
		PaddingSize: opts.PaddingSize,
		Super:       true,
		SuperLevel:  "a",
	}), "resampling image")
}
