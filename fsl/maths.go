package fsl

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

// MathsCmd accumulates fslmaths operations against an input image. Calls
// append in order; Run executes the assembled command.
type MathsCmd struct {
	in  Image
	ops []string
}

// Maths starts an fslmaths invocation reading from in.
func Maths(in Image) *MathsCmd {
	return &MathsCmd{in: in}
}

// TMean takes the mean across the time dimension.
func (m *MathsCmd) TMean() *MathsCmd {
	m.ops = append(m.ops, "-Tmean")
	return m
}

// Thr zeroes voxels below the threshold.
func (m *MathsCmd) Thr(v float64) *MathsCmd {
	m.ops = append(m.ops, "-thr", formatFloat(v))
	return m
}

// Bin binarizes the image.
func (m *MathsCmd) Bin() *MathsCmd {
	m.ops = append(m.ops, "-bin")
	return m
}

// Recip takes the voxelwise reciprocal.
func (m *MathsCmd) Recip() *MathsCmd {
	m.ops = append(m.ops, "-recip")
	return m
}

// Div divides voxelwise by another image.
func (m *MathsCmd) Div(img Image) *MathsCmd {
	m.ops = append(m.ops, "-div", img.Base())
	return m
}

// Mul multiplies voxelwise by another image.
func (m *MathsCmd) Mul(img Image) *MathsCmd {
	m.ops = append(m.ops, "-mul", img.Base())
	return m
}

// Mas zeroes voxels outside a mask.
func (m *MathsCmd) Mas(mask Image) *MathsCmd {
	m.ops = append(m.ops, "-mas", mask.Base())
	return m
}

// Run executes the assembled fslmaths command, writing the result to out.
func (m *MathsCmd) Run(ctx context.Context, r Runner, out Image) error {
	if m.in.IsZero() {
		return errors.New("fslmaths needs an input image")
	}
	if out.IsZero() {
		return errors.New("fslmaths needs an output image")
	}

	args := append([]string{m.in.Base()}, m.ops...)
	args = append(args, out.Base())

	return errors.WithStack(r.Run(ctx, "fslmaths", args...))
}

// Merge concatenates images along the time dimension with fslmerge.
func Merge(ctx context.Context, r Runner, out Image, imgs ...Image) error {
	if out.IsZero() {
		return errors.New("fslmerge needs an output image")
	}
	if len(imgs) == 0 {
		return errors.New("fslmerge needs at least one input image")
	}

	args := []string{"-t", out.Base()}
	for _, img := range imgs {
		if img.IsZero() {
			return errors.New("fslmerge given an empty input image")
		}
		args = append(args, img.Base())
	}

	return errors.WithStack(r.Run(ctx, "fslmerge", args...))
}

// NVols returns the number of volumes in an image, read with fslval.
func NVols(ctx context.Context, r Runner, img Image) (int, error) {
	if img.IsZero() {
		return 0, errors.New("fslval needs an input image")
	}

	out, err := r.RunOutput(ctx, "fslval", img.Base(), "dim4")
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing volume count '%s' for '%s'", out, img.Base())
	}
	return n, nil
}
