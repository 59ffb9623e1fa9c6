package pipeline

import (
	"context"
	"path/filepath"

	"github.com/a3sha2/oxasl/fsl"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// BrainExtract ensures a brain extracted structural image is available,
// running BET when one was not supplied.
func BrainExtract(ctx context.Context, wsp *Workspace) error {
	if !wsp.Structural.Brain.IsZero() {
		return nil
	}
	if wsp.Structural.Struc.IsZero() {
		return errors.New("no structural image in workspace")
	}

	grip.Info(" - Brain extracting structural image")
	dir, err := wsp.Sub("structural")
	if err != nil {
		return err
	}

	brain := fsl.NewImage(filepath.Join(dir, "struc_brain"))
	if err := fsl.BET(ctx, wsp.Runner(), fsl.BETOptions{In: wsp.Structural.Struc, Out: brain}); err != nil {
		return errors.Wrap(err, "brain extracting structural image")
	}
	wsp.Structural.Brain = brain
	return nil
}

// SegmentStructural ensures white matter segmentation and bias field images
// derived from the structural image, running FAST once per workspace.
func SegmentStructural(ctx context.Context, wsp *Workspace) error {
	if wsp.IsDone("segmentation") {
		return nil
	}
	if err := BrainExtract(ctx, wsp); err != nil {
		return err
	}

	grip.Info(" - Segmenting structural image")
	dir, err := wsp.Sub("structural")
	if err != nil {
		return err
	}

	segBase := filepath.Join(dir, "seg")
	if err := fsl.FAST(ctx, wsp.Runner(), fsl.FASTOptions{
		In:        wsp.Structural.Brain,
		OutBase:   segBase,
		BiasField: true,
	}); err != nil {
		return errors.Wrap(err, "segmenting structural image")
	}

	if wsp.Structural.WMSeg.IsZero() {
		wmSeg := fsl.NewImage(filepath.Join(dir, "wm_seg"))
		wmPVE := fsl.FASTPartialVolume(segBase, 2)
		if err := fsl.Maths(wmPVE).Thr(0.5).Bin().Run(ctx, wsp.Runner(), wmSeg); err != nil {
			return errors.Wrap(err, "thresholding white matter partial volume map")
		}
		wsp.Structural.WMSeg = wmSeg
	}
	wsp.Structural.Bias = fsl.FASTBiasField(segBase)
	wsp.Structural.GMPV = fsl.FASTPartialVolume(segBase, 1)
	wsp.Structural.WMPV = fsl.FASTPartialVolume(segBase, 2)

	wsp.MarkDone("segmentation")
	return nil
}

// PartialVolumes resamples the partial volume maps from segmentation into
// ASL space, where the perfusion analysis consumes them. Runs only when
// partial volume correction was requested.
func PartialVolumes(ctx context.Context, wsp *Workspace) error {
	if !wsp.PVCorr || wsp.IsDone("pvs") {
		return nil
	}
	if err := SegmentStructural(ctx, wsp); err != nil {
		return err
	}
	if wsp.Reg.ASL2Struc == nil {
		if err := RegisterASLToStruc(ctx, wsp, true, false); err != nil {
			return err
		}
	}

	grip.Info("Getting partial volume maps in ASL space")
	dir, err := wsp.Sub("pvs")
	if err != nil {
		return err
	}

	gm := fsl.NewImage(filepath.Join(dir, "pvgm"))
	if err := StrucToASL(ctx, wsp, wsp.Structural.GMPV, gm, ResampleOptions{}); err != nil {
		return errors.Wrap(err, "resampling grey matter map to ASL space")
	}
	wsp.Structural.GMPVASL = gm

	wm := fsl.NewImage(filepath.Join(dir, "pvwm"))
	if err := StrucToASL(ctx, wsp, wsp.Structural.WMPV, wm, ResampleOptions{}); err != nil {
		return errors.Wrap(err, "resampling white matter map to ASL space")
	}
	wsp.Structural.WMPVASL = wm

	wsp.MarkDone("pvs")
	return nil
}
