package fsl

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FlirtOptions control a FLIRT linear registration. In and Ref are required;
// everything else is included only when set.
type FlirtOptions struct {
	In  Image
	Ref Image
	// Out receives the transformed input image.
	Out Image
	// OutMat receives the 4x4 transformation matrix.
	OutMat string
	// ApplyXFM applies InitMat instead of optimizing a registration.
	ApplyXFM bool
	// InitMat initializes the search (or supplies the transform when
	// ApplyXFM is set).
	InitMat string
	// Schedule names an optimization schedule file.
	Schedule string
	// DOF is the number of transform degrees of freedom.
	DOF int
	// Cost names the cost function.
	Cost string
	// InWeight weights the input image voxels during optimization.
	InWeight    Image
	Interp      string
	PaddingSize int
}

// Flirt runs a FLIRT registration.
func Flirt(ctx context.Context, r Runner, opts FlirtOptions) error {
	if opts.In.IsZero() || opts.Ref.IsZero() {
		return errors.New("flirt needs input and reference images")
	}

	args := []string{"-in", opts.In.Base(), "-ref", opts.Ref.Base()}
	if !opts.Out.IsZero() {
		args = append(args, "-out", opts.Out.Base())
	}
	if opts.OutMat != "" {
		args = append(args, "-omat", opts.OutMat)
	}
	if opts.ApplyXFM {
		args = append(args, "-applyxfm")
	}
	if opts.InitMat != "" {
		args = append(args, "-init", opts.InitMat)
	}
	if opts.Schedule != "" {
		args = append(args, "-schedule", opts.Schedule)
	}
	if opts.DOF > 0 {
		args = append(args, "-dof", strconv.Itoa(opts.DOF))
	}
	if opts.Cost != "" {
		args = append(args, "-cost", opts.Cost)
	}
	if !opts.InWeight.IsZero() {
		args = append(args, "-inweight", opts.InWeight.Base())
	}
	if opts.Interp != "" {
		args = append(args, "-interp", opts.Interp)
	}
	if opts.PaddingSize > 0 {
		args = append(args, "-paddingsize", strconv.Itoa(opts.PaddingSize))
	}

	return errors.WithStack(r.Run(ctx, "flirt", args...))
}

// MCFlirtOptions control an MCFLIRT motion correction run.
type MCFlirtOptions struct {
	In  Image
	Out Image
	// RefFile registers every volume to this image instead of the middle
	// volume.
	RefFile Image
	// Mats writes the per-volume transformation matrices to <out>.mat/.
	Mats bool
}

// MCFlirt runs MCFLIRT motion correction.
func MCFlirt(ctx context.Context, r Runner, opts MCFlirtOptions) error {
	if opts.In.IsZero() {
		return errors.New("mcflirt needs an input image")
	}

	args := []string{"-in", opts.In.Base()}
	if !opts.Out.IsZero() {
		args = append(args, "-out", opts.Out.Base())
	}
	if !opts.RefFile.IsZero() {
		args = append(args, "-reffile", opts.RefFile.Base())
	}
	if opts.Mats {
		args = append(args, "-mats")
	}

	return errors.WithStack(r.Run(ctx, "mcflirt", args...))
}

// MCFlirtMatsDir returns the directory MCFLIRT writes per-volume matrices to
// for the given output image.
func MCFlirtMatsDir(out Image) string {
	return out.Base() + ".mat"
}

// BETOptions control a BET brain extraction.
type BETOptions struct {
	In  Image
	Out Image
	// FracIntensity is the fractional intensity threshold; smaller values
	// give larger brain estimates.
	FracIntensity float64
	// Mask additionally writes a binary brain mask to <out>_mask.
	Mask bool
}

// BET runs a BET brain extraction.
func BET(ctx context.Context, r Runner, opts BETOptions) error {
	if opts.In.IsZero() || opts.Out.IsZero() {
		return errors.New("bet needs input and output images")
	}

	args := []string{opts.In.Base(), opts.Out.Base()}
	if opts.FracIntensity > 0 {
		args = append(args, "-f", formatFloat(opts.FracIntensity))
	}
	if opts.Mask {
		args = append(args, "-m")
	}

	return errors.WithStack(r.Run(ctx, "bet", args...))
}

// BETMask returns the mask image BET writes alongside the given output when
// masking is requested.
func BETMask(out Image) Image {
	return NewImage(out.Base() + "_mask")
}

// FASTOptions control a FAST tissue segmentation.
type FASTOptions struct {
	In Image
	// OutBase is the basename for the segmentation outputs.
	OutBase string
	// BiasField additionally writes the estimated bias field to
	// <out>_bias.
	BiasField bool
}

// FAST runs a FAST tissue type segmentation.
func FAST(ctx context.Context, r Runner, opts FASTOptions) error {
	if opts.In.IsZero() {
		return errors.New("fast needs an input image")
	}

	var args []string
	if opts.BiasField {
		args = append(args, "-b")
	}
	if opts.OutBase != "" {
		args = append(args, "-o", opts.OutBase)
	}
	args = append(args, opts.In.Base())

	return errors.WithStack(r.Run(ctx, "fast", args...))
}

// FASTPartialVolume returns the partial volume map image FAST writes for the
// given tissue class (0 CSF, 1 GM, 2 WM).
func FASTPartialVolume(outBase string, class int) Image {
	return NewImage(outBase + "_pve_" + strconv.Itoa(class))
}

// FASTBiasField returns the bias field image FAST writes for the given
// output basename when bias estimation is requested.
func FASTBiasField(outBase string) Image {
	return NewImage(outBase + "_bias")
}

// ImCp copies an image with imcp, which handles image extensions and
// multi-file formats.
func ImCp(ctx context.Context, r Runner, src, dst Image) error {
	if src.IsZero() || dst.IsZero() {
		return errors.New("imcp needs source and destination images")
	}
	return errors.WithStack(r.Run(ctx, "imcp", src.Base(), dst.Base()))
}
