package fsl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ApplyWarpOptions control an applywarp resampling run.
type ApplyWarpOptions struct {
	In  Image
	Ref Image
	Out Image
	// Warp is a nonlinear warp field to apply.
	Warp Image
	// Premat is an affine applied before the warp.
	Premat      string
	Interp      string
	PaddingSize int
	// Rel marks the warp as containing relative displacements.
	Rel bool
	// Super enables intermediate supersampling, at SuperLevel if given
	// ("a" picks the level automatically).
	Super      bool
	SuperLevel string
}

// ApplyWarp runs applywarp.
func ApplyWarp(ctx context.Context, r Runner, opts ApplyWarpOptions) error {
	if opts.In.IsZero() || opts.Ref.IsZero() || opts.Out.IsZero() {
		return errors.New("applywarp needs input, reference, and output images")
	}

	args := []string{
		"--in=" + opts.In.Base(),
		"--ref=" + opts.Ref.Base(),
		"--out=" + opts.Out.Base(),
	}
	if !opts.Warp.IsZero() {
		args = append(args, "--warp="+opts.Warp.Base())
	}
	if opts.Premat != "" {
		args = append(args, "--premat="+opts.Premat)
	}
	if opts.Interp != "" {
		args = append(args, "--interp="+opts.Interp)
	}
	if opts.PaddingSize > 0 {
		args = append(args, fmt.Sprintf("--paddingsize=%d", opts.PaddingSize))
	}
	if opts.Rel {
		args = append(args, "--rel")
	}
	if opts.Super {
		args = append(args, "--super")
	}
	if opts.SuperLevel != "" {
		args = append(args, "--superlevel="+opts.SuperLevel)
	}

	return errors.WithStack(r.Run(ctx, "applywarp", args...))
}

// ConvertWarpOptions control a convertwarp run combining warps and affines
// into a single field.
type ConvertWarpOptions struct {
	Ref Image
	Out Image
	// Warp1 and Warp2 are applied in order.
	Warp1 Image
	Warp2 Image
	// Premat is an affine applied before Warp1, Postmat after Warp2.
	Premat  string
	Postmat string
	// Rel marks the constituent warps as relative displacements.
	Rel bool
	// JacobianOut receives the Jacobian determinant of the combined
	// transform.
	JacobianOut Image
}

// ConvertWarp runs convertwarp.
func ConvertWarp(ctx context.Context, r Runner, opts ConvertWarpOptions) error {
	if opts.Ref.IsZero() || opts.Out.IsZero() {
		return errors.New("convertwarp needs reference and output images")
	}

	args := []string{
		"--ref=" + opts.Ref.Base(),
		"--out=" + opts.Out.Base(),
	}
	if !opts.Warp1.IsZero() {
		args = append(args, "--warp1="+opts.Warp1.Base())
	}
	if !opts.Warp2.IsZero() {
		args = append(args, "--warp2="+opts.Warp2.Base())
	}
	if opts.Premat != "" {
		args = append(args, "--premat="+opts.Premat)
	}
	if opts.Postmat != "" {
		args = append(args, "--postmat="+opts.Postmat)
	}
	if opts.Rel {
		args = append(args, "--rel")
	}
	if !opts.JacobianOut.IsZero() {
		args = append(args, "--jacobian="+opts.JacobianOut.Base())
	}

	return errors.WithStack(r.Run(ctx, "convertwarp", args...))
}

// InvWarpOptions control an invwarp run.
type InvWarpOptions struct {
	// Warp is the field to invert.
	Warp Image
	// Ref is the reference of the inverted field, i.e. the source space of
	// the original warp.
	Ref Image
	Out Image
}

// InvWarp runs invwarp to invert a nonlinear warp field.
func InvWarp(ctx context.Context, r Runner, opts InvWarpOptions) error {
	if opts.Warp.IsZero() || opts.Ref.IsZero() || opts.Out.IsZero() {
		return errors.New("invwarp needs warp, reference, and output images")
	}

	args := []string{
		"--warp=" + opts.Warp.Base(),
		"--ref=" + opts.Ref.Base(),
		"--out=" + opts.Out.Base(),
	}

	return errors.WithStack(r.Run(ctx, "invwarp", args...))
}

// FNIRTOptions control an FNIRT nonlinear registration.
type FNIRTOptions struct {
	In Image
	// AffMat initializes the registration with an affine transform.
	AffMat string
	// Config names an FNIRT configuration file.
	Config string
	// CoefOut receives the field coefficients.
	CoefOut Image
}

// FNIRT runs an FNIRT nonlinear registration.
func FNIRT(ctx context.Context, r Runner, opts FNIRTOptions) error {
	if opts.In.IsZero() {
		return errors.New("fnirt needs an input image")
	}

	args := []string{"--in=" + opts.In.Base()}
	if opts.AffMat != "" {
		args = append(args, "--aff="+opts.AffMat)
	}
	if opts.Config != "" {
		args = append(args, "--config="+opts.Config)
	}
	if !opts.CoefOut.IsZero() {
		args = append(args, "--cout="+opts.CoefOut.Base())
	}

	return errors.WithStack(r.Run(ctx, "fnirt", args...))
}

// TopupOptions control a TOPUP distortion estimation run.
type TopupOptions struct {
	// IMain holds the phase-encode-reversed image pair.
	IMain Image
	// DataIn is the acquisition parameters file (see TopupAcqParams).
	DataIn string
	Config string
	// OutBase is the basename for the spline coefficient outputs.
	OutBase string
	// FieldOut receives the estimated field in Hz.
	FieldOut Image
	// CorrectedOut receives the unwarped input images.
	CorrectedOut Image
}

// Topup runs TOPUP to estimate susceptibility distortions from a
// phase-encode-reversed image pair.
func Topup(ctx context.Context, r Runner, opts TopupOptions) error {
	if opts.IMain.IsZero() || opts.DataIn == "" {
		return errors.New("topup needs an input image pair and an acquisition parameters file")
	}

	args := []string{
		"--imain=" + opts.IMain.Base(),
		"--datain=" + opts.DataIn,
	}
	if opts.Config != "" {
		args = append(args, "--config="+opts.Config)
	}
	if opts.OutBase != "" {
		args = append(args, "--out="+opts.OutBase)
	}
	if !opts.FieldOut.IsZero() {
		args = append(args, "--fout="+opts.FieldOut.Base())
	}
	if !opts.CorrectedOut.IsZero() {
		args = append(args, "--iout="+opts.CorrectedOut.Base())
	}

	return errors.WithStack(r.Run(ctx, "topup", args...))
}

// EpiRegOptions control an epi_reg BBR registration of an EPI image to a
// structural image, optionally with simultaneous fieldmap-based distortion
// correction.
type EpiRegOptions struct {
	EPI     Image
	T1      Image
	T1Brain Image
	// OutBase is the basename for the outputs; the affine is written to
	// <out>.mat.
	OutBase string
	// WMSeg is a precomputed white matter segmentation.
	WMSeg Image
	// InitMat initializes the registration.
	InitMat string
	// Weight weights the EPI voxels during optimization.
	Weight Image
	// Fieldmap inputs: the fieldmap in rad/s, a magnitude image in the
	// same space, and its brain extracted version.
	FMap         Image
	FMapMag      Image
	FMapMagBrain Image
	// PEDir is the EPI phase encoding direction.
	PEDir string
	// EchoSpacing is the EPI effective echo spacing in seconds.
	EchoSpacing float64
	// NoFMapReg skips registration of the fieldmap to the EPI.
	NoFMapReg bool
}

// EpiReg runs epi_reg.
func EpiReg(ctx context.Context, r Runner, opts EpiRegOptions) error {
	if opts.EPI.IsZero() || opts.T1.IsZero() || opts.T1Brain.IsZero() || opts.OutBase == "" {
		return errors.New("epi_reg needs EPI, T1, T1 brain images and an output name")
	}

	args := []string{
		"--epi=" + opts.EPI.Base(),
		"--t1=" + opts.T1.Base(),
		"--t1brain=" + opts.T1Brain.Base(),
		"--out=" + opts.OutBase,
	}
	if !opts.WMSeg.IsZero() {
		args = append(args, "--wmseg="+opts.WMSeg.Base())
	}
	if opts.InitMat != "" {
		args = append(args, "--init="+opts.InitMat)
	}
	if !opts.Weight.IsZero() {
		args = append(args, "--weight="+opts.Weight.Base())
	}
	if !opts.FMap.IsZero() {
		args = append(args, "--fmap="+opts.FMap.Base())
	}
	if !opts.FMapMag.IsZero() {
		args = append(args, "--fmapmag="+opts.FMapMag.Base())
	}
	if !opts.FMapMagBrain.IsZero() {
		args = append(args, "--fmapmagbrain="+opts.FMapMagBrain.Base())
	}
	if opts.PEDir != "" {
		args = append(args, "--pedir="+opts.PEDir)
	}
	if opts.EchoSpacing > 0 {
		args = append(args, "--echospacing="+formatFloat(opts.EchoSpacing))
	}
	if opts.NoFMapReg {
		args = append(args, "--nofmapreg")
	}

	return errors.WithStack(r.Run(ctx, "epi_reg", args...))
}

// EpiRegMat returns the path of the affine epi_reg writes for the given
// output basename.
func EpiRegMat(outBase string) string {
	return outBase + ".mat"
}
