// Package pipeline implements the ASL preprocessing pipeline: registration
// of ASL data to structural and standard spaces, and calculation and
// application of motion, distortion, and sensitivity corrections, all
// delegated to the FSL command line tools.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/report"
	"github.com/a3sha2/oxasl/transform"
	"github.com/a3sha2/oxasl/util"
	"github.com/pkg/errors"
)

// RegOptions control registration of ASL data to the structural image.
type RegOptions struct {
	// Regfrom is a user-supplied registration reference image in ASL
	// space. When empty a reference is derived from the ASL or
	// calibration data.
	Regfrom fsl.Image
	// Schedule overrides the optimization schedule of the second
	// registration step, named relative to $FSLDIR/etc/flirtsch.
	Schedule string
	// DOF is the degrees of freedom of the second registration step.
	DOF int
	// InWeight weights the input image voxels during registration.
	InWeight fsl.Image
}

// DistcorrOptions control distortion correction.
type DistcorrOptions struct {
	// Fieldmap-based correction inputs: the fieldmap in rad/s, a
	// magnitude image, and its brain extracted version.
	Fieldmap         fsl.Image
	FieldmapMag      fsl.Image
	FieldmapMagBrain fsl.Image
	// NoFmapReg assumes the fieldmap is already in structural space.
	NoFmapReg bool
	// EchoSpacing is the effective EPI echo spacing in seconds.
	EchoSpacing float64
	// PhaseEncodeDir is one of x/y/z/-x/-y/-z.
	PhaseEncodeDir string
	// GDCWarp is a user-supplied gradient distortion correction warp,
	// combined with the other corrections when present.
	GDCWarp fsl.Image
}

// SenscorrOptions control sensitivity correction.
type SenscorrOptions struct {
	// ISen is a user-supplied sensitivity image in ASL space.
	ISen fsl.Image
	// Auto derives the sensitivity image from the FAST bias field.
	Auto bool
	// Off disables sensitivity correction entirely.
	Off bool
}

// StructuralState holds the structural image and its derived segmentations.
type StructuralState struct {
	Struc fsl.Image
	Brain fsl.Image
	WMSeg fsl.Image
	Bias  fsl.Image
	// FSLAnatDir points at an existing fsl_anat output directory whose
	// standard space registration is reused when present.
	FSLAnatDir string

	// Partial volume estimates from segmentation, in structural space.
	GMPV fsl.Image
	WMPV fsl.Image
	// The same maps resampled into ASL space, filled when partial
	// volume correction is requested.
	GMPVASL fsl.Image
	WMPVASL fsl.Image
}

// RegState holds the transforms derived by registration. Matrix values are
// kept in memory alongside the file paths the FSL tools consume.
type RegState struct {
	Regfrom fsl.Image
	Regto   fsl.Image

	ASL2Calib    *transform.Affine
	Calib2ASL    *transform.Affine
	ASL2CalibMat string
	Calib2ASLMat string

	ASL2Struc    *transform.Affine
	Struc2ASL    *transform.Affine
	ASL2StrucMat string
	Struc2ASLMat string

	// Structural to standard space is either an affine or a warp field.
	Struc2Std     *transform.Affine
	Struc2StdMat  string
	Struc2StdWarp fsl.Image
	Std2Struc     *transform.Affine
	Std2StrucWarp fsl.Image
}

// CorrState holds the corrections calculated for the current run.
type CorrState struct {
	// Motion correction transforms, one per ASL volume, and the stacked
	// file applywarp accepts as a premat series.
	MCMats     []transform.Affine
	MCMatsFile string
	// MCRef describes the motion correction reference for reporting.
	MCRef string

	// FmapWarp is the fieldmap distortion correction warp in ASL space.
	FmapWarp fsl.Image
	// CblipFieldmap is the field estimated by TOPUP from the
	// phase-encode-reversed calibration image, in calibration space.
	CblipFieldmap fsl.Image

	// TotalWarp combines all correction warps; Jacobian is its local
	// volume scaling.
	TotalWarp fsl.Image
	Jacobian  fsl.Image

	// Sensitivity is the sensitivity correction image in ASL space.
	Sensitivity fsl.Image
}

// WorkspaceOptions are the inputs of a pipeline run.
type WorkspaceOptions struct {
	// Root is the working directory; it is created if absent.
	Root string
	// FSLDir locates the FSL installation for schedule and template
	// files, defaulting to $FSLDIR.
	FSLDir string
	Runner fsl.Runner
	Report *report.Report

	ASLData fsl.Image
	// IAF is the acquisition form of the ASL data: diff (already
	// subtracted), tc (tag-control pairs), or ct (control-tag pairs).
	IAF   string
	Calib fsl.Image
	Cref  fsl.Image
	Cblip fsl.Image

	Struc      fsl.Image
	StrucBrain fsl.Image
	WMSeg      fsl.Image
	FSLAnatDir string

	Reg      RegOptions
	Distcorr DistcorrOptions
	Senscorr SenscorrOptions
	PVCorr   bool
}

var validIAFs = []string{oxasl.IAFDiff, oxasl.IAFTagControl, oxasl.IAFControlTag}

// Workspace is the state of a pipeline run: input images, options, derived
// transforms and corrections, and completed step markers, rooted at a
// working directory.
type Workspace struct {
	root   string
	fslDir string
	runner fsl.Runner
	Report *report.Report

	mu   sync.Mutex
	done map[string]bool

	ASLData     fsl.Image
	ASLDataOrig fsl.Image
	ASLDataMean fsl.Image
	IAF         string

	Calib     fsl.Image
	CalibOrig fsl.Image
	Cref      fsl.Image
	CrefOrig  fsl.Image
	Cblip     fsl.Image
	CblipOrig fsl.Image

	Structural StructuralState
	Reg        RegState
	Corr       CorrState

	RegOpts      RegOptions
	DistcorrOpts DistcorrOptions
	SenscorrOpts SenscorrOptions
	PVCorr       bool
}

// NewWorkspace creates the working directory and initializes a workspace
// from the given inputs.
func NewWorkspace(opts WorkspaceOptions) (*Workspace, error) {
	if opts.Root == "" {
		return nil, errors.New("no workspace directory given")
	}
	if opts.Runner == nil {
		return nil, errors.New("no FSL runner given")
	}
	if opts.FSLDir == "" {
		opts.FSLDir = oxasl.FindFSLDir()
	}
	if opts.IAF == "" {
		opts.IAF = oxasl.IAFDiff
	}
	if !util.StringSliceContains(validIAFs, opts.IAF) {
		return nil, errors.Errorf("invalid acquisition form '%s'", opts.IAF)
	}
	if opts.Reg.DOF == 0 {
		opts.Reg.DOF = 6
	}
	if opts.Report == nil {
		opts.Report = report.New("oxasl")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating workspace directory '%s'", opts.Root)
	}

	return &Workspace{
		root:   opts.Root,
		fslDir: opts.FSLDir,
		runner: opts.Runner,
		Report: opts.Report,
		done:   map[string]bool{},

		ASLData:     opts.ASLData,
		ASLDataOrig: opts.ASLData,
		IAF:         opts.IAF,
		Calib:       opts.Calib,
		CalibOrig:   opts.Calib,
		Cref:        opts.Cref,
		CrefOrig:    opts.Cref,
		Cblip:       opts.Cblip,
		CblipOrig:   opts.Cblip,

		Structural: StructuralState{
			Struc:      opts.Struc,
			Brain:      opts.StrucBrain,
			WMSeg:      opts.WMSeg,
			FSLAnatDir: opts.FSLAnatDir,
		},

		RegOpts:      opts.Reg,
		DistcorrOpts: opts.Distcorr,
		SenscorrOpts: opts.Senscorr,
		PVCorr:       opts.PVCorr,
	}, nil
}

// Root returns the workspace working directory.
func (w *Workspace) Root() string { return w.root }

// FSLDir returns the FSL installation directory of this run.
func (w *Workspace) FSLDir() string { return w.fslDir }

// Runner returns the FSL tool runner of this run.
func (w *Workspace) Runner() fsl.Runner { return w.runner }

// Sub returns the named sub-directory of the workspace, creating it if
// needed.
func (w *Workspace) Sub(name string) (string, error) {
	dir := filepath.Join(w.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating workspace subdirectory '%s'", name)
	}
	return dir, nil
}

// IsDone reports whether the named step has completed in this workspace.
func (w *Workspace) IsDone(step string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done[step]
}

// MarkDone records the named step as completed.
func (w *Workspace) MarkDone(step string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done[step] = true
}

// setASL2Struc records the ASL to structural transform and its inverse,
// writing both matrix files into the reg subdirectory.
func (w *Workspace) setASL2Struc(a transform.Affine) error {
	inv, err := a.Inverse()
	if err != nil {
		return errors.Wrap(err, "inverting asl2struc transform")
	}
	dir, err := w.Sub("reg")
	if err != nil {
		return err
	}

	aslMat := filepath.Join(dir, "asl2struc.mat")
	strucMat := filepath.Join(dir, "struc2asl.mat")
	if err := a.Write(aslMat); err != nil {
		return errors.Wrap(err, "writing asl2struc matrix")
	}
	if err := inv.Write(strucMat); err != nil {
		return errors.Wrap(err, "writing struc2asl matrix")
	}

	w.Reg.ASL2Struc = &a
	w.Reg.Struc2ASL = &inv
	w.Reg.ASL2StrucMat = aslMat
	w.Reg.Struc2ASLMat = strucMat
	return nil
}

// setASL2Calib records the ASL to calibration transform and its inverse,
// writing both matrix files into the reg subdirectory.
func (w *Workspace) setASL2Calib(a transform.Affine) error {
	inv, err := a.Inverse()
	if err != nil {
		return errors.Wrap(err, "inverting asl2calib transform")
	}
	dir, err := w.Sub("reg")
	if err != nil {
		return err
	}

	aslMat := filepath.Join(dir, "asl2calib.mat")
	calibMat := filepath.Join(dir, "calib2asl.mat")
	if err := a.Write(aslMat); err != nil {
		return errors.Wrap(err, "writing asl2calib matrix")
	}
	if err := inv.Write(calibMat); err != nil {
		return errors.Wrap(err, "writing calib2asl matrix")
	}

	w.Reg.ASL2Calib = &a
	w.Reg.Calib2ASL = &inv
	w.Reg.ASL2CalibMat = aslMat
	w.Reg.Calib2ASLMat = calibMat
	return nil
}

// ensureMeanASL computes the mean across ASL volumes once and caches it in
// the workspace root.
func ensureMeanASL(ctx context.Context, wsp *Workspace) (fsl.Image, error) {
	if !wsp.ASLDataMean.IsZero() {
		return wsp.ASLDataMean, nil
	}
	if wsp.ASLData.IsZero() {
		return fsl.Image{}, errors.New("no ASL data in workspace")
	}

	mean := fsl.NewImage(filepath.Join(wsp.root, "asldata_mean"))
	if err := fsl.Maths(wsp.ASLData).TMean().Run(ctx, wsp.runner, mean); err != nil {
		return fsl.Image{}, errors.Wrap(err, "computing mean ASL image")
	}
	wsp.ASLDataMean = mean
	return mean, nil
}
