package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a3sha2/oxasl/fsl"
	"github.com/a3sha2/oxasl/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMotionCorrection(t *testing.T) {
	t.Run("MiddleVolumeReference", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})
		mock.OnRun = fabricateToolOutputs(t, 3, 0)

		require.NoError(t, MotionCorrection(context.Background(), wsp))

		out := filepath.Join(wsp.Root(), "moco", "asldata_mc")
		calls := mock.CallsTo("mcflirt")
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"-in", "/data/asldata", "-out", out, "-mats"}, calls[0].Args)

		// without a calibration reference the matrices are used as-is
		require.Len(t, wsp.Corr.MCMats, 3)
		for i, mat := range wsp.Corr.MCMats {
			assert.InDelta(t, float64(i), mat.At(0, 3), 1e-10)
		}
		assert.Equal(t, "ASL data asldata middle volume: 1", wsp.Corr.MCRef)
		assert.Nil(t, wsp.Reg.ASL2Calib)

		stacked, err := transform.LoadStacked(wsp.Corr.MCMatsFile)
		require.NoError(t, err)
		assert.Len(t, stacked, 3)

		rendered := wsp.Report.Page("moco").Render()
		assert.Contains(t, rendered, "# Motion correction")
		assert.Contains(t, rendered, "Reference volume: ASL data asldata middle volume: 1")
		assert.Contains(t, rendered, "Volume 2")

		assert.True(t, wsp.IsDone("moco"))
		mock.Reset()
		require.NoError(t, MotionCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
	})

	t.Run("CalibrationReference", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
		})
		mock.OnRun = fabricateToolOutputs(t, 3, 0)

		require.NoError(t, MotionCorrection(context.Background(), wsp))

		calls := mock.CallsTo("mcflirt")
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Args, "-reffile")
		assert.Contains(t, calls[0].Args, "/data/calib")

		// the middle volume transform becomes the ASL->calibration
		// registration and the series is rebased around it
		require.NotNil(t, wsp.Reg.ASL2Calib)
		assert.InDelta(t, 1.0, wsp.Reg.ASL2Calib.At(0, 3), 1e-10)
		assert.InDelta(t, -1.0, wsp.Reg.Calib2ASL.At(0, 3), 1e-10)
		assert.FileExists(t, wsp.Reg.ASL2CalibMat)

		require.Len(t, wsp.Corr.MCMats, 3)
		assert.InDelta(t, -1.0, wsp.Corr.MCMats[0].At(0, 3), 1e-10)
		assert.True(t, wsp.Corr.MCMats[1].IsIdentity(1e-10))
		assert.InDelta(t, 1.0, wsp.Corr.MCMats[2].At(0, 3), 1e-10)

		assert.Equal(t, "calibration image: calib", wsp.Corr.MCRef)
	})

	t.Run("RequiresASLData", func(t *testing.T) {
		wsp, _ := newTestWorkspace(t, WorkspaceOptions{})
		assert.Error(t, MotionCorrection(context.Background(), wsp))
	})
}

func TestFieldmapCorrection(t *testing.T) {
	fullDistcorr := DistcorrOptions{
		Fieldmap:         fsl.NewImage("/data/fmap.nii.gz"),
		FieldmapMag:      fsl.NewImage("/data/fmapmag.nii.gz"),
		FieldmapMagBrain: fsl.NewImage("/data/fmapmagbrain.nii.gz"),
		PhaseEncodeDir:   "y",
		EchoSpacing:      0.00095,
	}

	// seeds the registration and segmentation state the correction
	// depends on, so the test exercises only the correction itself
	seedRegistration := func(t *testing.T, wsp *Workspace) {
		wsp.Reg.Regfrom = fsl.NewImage("/data/regfrom.nii.gz")
		require.NoError(t, wsp.setASL2Struc(translationAffine(t, 2, 0, 0)))
		wsp.Structural.WMSeg = fsl.NewImage("/data/wm.nii.gz")
		wsp.Structural.Bias = fsl.NewImage("/data/bias.nii.gz")
		wsp.MarkDone("segmentation")
	}

	t.Run("ComputesWarp", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:    fsl.NewImage("/data/asldata.nii.gz"),
			Struc:      fsl.NewImage("/data/T1.nii.gz"),
			StrucBrain: fsl.NewImage("/data/T1_brain.nii.gz"),
			Distcorr:   fullDistcorr,
		})
		seedRegistration(t, wsp)
		mock.OnRun = fabricateToolOutputs(t, 0, 2)

		require.NoError(t, FieldmapCorrection(context.Background(), wsp))

		outBase := filepath.Join(wsp.Root(), "distcorr", "fmap_reg")
		epiCalls := mock.CallsTo("epi_reg")
		require.Len(t, epiCalls, 1)
		assert.Equal(t, []string{
			"--epi=/data/regfrom",
			"--t1=/data/T1",
			"--t1brain=/data/T1_brain",
			"--out=" + outBase,
			"--wmseg=/data/wm",
			"--init=" + wsp.Reg.ASL2StrucMat,
			"--fmap=/data/fmap",
			"--fmapmag=/data/fmapmag",
			"--fmapmagbrain=/data/fmapmagbrain",
			"--pedir=y",
			"--echospacing=0.00095",
		}, epiCalls[0].Args)

		// the epi_reg affine, inverted, carries the structural space
		// warp back into ASL space
		postmat := filepath.Join(wsp.Root(), "distcorr", "fmap_struc2asl.mat")
		inv, err := transform.Load(postmat)
		require.NoError(t, err)
		assert.InDelta(t, -2.0, inv.At(0, 3), 1e-10)

		cwCalls := mock.CallsTo("convertwarp")
		require.Len(t, cwCalls, 1)
		assert.Equal(t, []string{
			"--ref=" + filepath.Join(wsp.Root(), "asldata_mean"),
			"--out=" + filepath.Join(wsp.Root(), "distcorr", "fmap_warp"),
			"--warp1=" + outBase + "_warp",
			"--postmat=" + postmat,
			"--rel",
		}, cwCalls[0].Args)

		assert.Equal(t, filepath.Join(wsp.Root(), "distcorr", "fmap_warp"), wsp.Corr.FmapWarp.Base())
		assert.True(t, wsp.IsDone("fieldmap"))
	})

	t.Run("NoFmapRegFlagPassedThrough", func(t *testing.T) {
		distcorr := fullDistcorr
		distcorr.NoFmapReg = true
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:    fsl.NewImage("/data/asldata.nii.gz"),
			Struc:      fsl.NewImage("/data/T1.nii.gz"),
			StrucBrain: fsl.NewImage("/data/T1_brain.nii.gz"),
			Distcorr:   distcorr,
		})
		seedRegistration(t, wsp)
		mock.OnRun = fabricateToolOutputs(t, 0, 2)

		require.NoError(t, FieldmapCorrection(context.Background(), wsp))

		epiCalls := mock.CallsTo("epi_reg")
		require.Len(t, epiCalls, 1)
		assert.Equal(t, "--nofmapreg", epiCalls[0].Args[len(epiCalls[0].Args)-1])
	})

	t.Run("SkipsWithoutFieldmapImages", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Distcorr: DistcorrOptions{
				Fieldmap: fsl.NewImage("/data/fmap.nii.gz"),
				// magnitude images missing
			},
		})

		require.NoError(t, FieldmapCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
		assert.True(t, wsp.Corr.FmapWarp.IsZero())
		assert.True(t, wsp.IsDone("fieldmap"))
	})

	t.Run("SkipsWithoutPhaseEncodeParameters", func(t *testing.T) {
		distcorr := fullDistcorr
		distcorr.PhaseEncodeDir = ""
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Distcorr: distcorr,
		})

		require.NoError(t, FieldmapCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
		assert.True(t, wsp.IsDone("fieldmap"))
	})

	t.Run("RunsOnce", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})
		wsp.MarkDone("fieldmap")

		require.NoError(t, FieldmapCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
	})
}

func TestCBLIPCorrection(t *testing.T) {
	t.Run("RunsTopup", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cblip:   fsl.NewImage("/data/cblip.nii.gz"),
			Distcorr: DistcorrOptions{
				PhaseEncodeDir: "y",
				EchoSpacing:    0.00095,
			},
		})

		require.NoError(t, CBLIPCorrection(context.Background(), wsp))

		dir := filepath.Join(wsp.Root(), "topup")
		params, err := os.ReadFile(filepath.Join(dir, "topup_params.txt"))
		require.NoError(t, err)
		assert.Equal(t, " 0  1  0 0.000950\n 0 -1  0 0.000950", string(params))

		mergeCalls := mock.CallsTo("fslmerge")
		require.Len(t, mergeCalls, 1)
		assert.Equal(t, []string{"-t", filepath.Join(dir, "calib_blipped"), "/data/calib", "/data/cblip"}, mergeCalls[0].Args)

		topupCalls := mock.CallsTo("topup")
		require.Len(t, topupCalls, 1)
		assert.Equal(t, []string{
			"--imain=" + filepath.Join(dir, "calib_blipped"),
			"--datain=" + filepath.Join(dir, "topup_params.txt"),
			"--config=b02b0.cnf",
			"--out=" + filepath.Join(dir, "topup"),
			"--fout=" + filepath.Join(dir, "topup_fieldmap"),
		}, topupCalls[0].Args)

		assert.Equal(t, filepath.Join(dir, "topup_fieldmap"), wsp.Corr.CblipFieldmap.Base())
		assert.True(t, wsp.IsDone("cblip"))

		mock.Reset()
		require.NoError(t, CBLIPCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
	})

	t.Run("SkipsWithoutCblip", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
		})

		require.NoError(t, CBLIPCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
		assert.True(t, wsp.IsDone("cblip"))
	})

	t.Run("SkipsWithoutCalib", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Cblip:   fsl.NewImage("/data/cblip.nii.gz"),
			Distcorr: DistcorrOptions{
				PhaseEncodeDir: "y",
				EchoSpacing:    0.00095,
			},
		})

		require.NoError(t, CBLIPCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
	})

	t.Run("SkipsWithoutPhaseEncodeParameters", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cblip:   fsl.NewImage("/data/cblip.nii.gz"),
		})

		require.NoError(t, CBLIPCorrection(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
	})

	t.Run("InvalidPhaseEncodeDirErrors", func(t *testing.T) {
		wsp, _ := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cblip:   fsl.NewImage("/data/cblip.nii.gz"),
			Distcorr: DistcorrOptions{
				PhaseEncodeDir: "q",
				EchoSpacing:    0.00095,
			},
		})

		assert.Error(t, CBLIPCorrection(context.Background(), wsp))
	})
}

func TestSensitivityCorrection(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Calib:    fsl.NewImage("/data/calib.nii.gz"),
			Cref:     fsl.NewImage("/data/cref.nii.gz"),
			Senscorr: SenscorrOptions{Off: true},
		})

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))
		assert.True(t, wsp.Corr.Sensitivity.IsZero())
		assert.Empty(t, mock.Calls)
	})

	t.Run("UserSupplied", func(t *testing.T) {
		isen := fsl.NewImage("/data/isen.nii.gz")
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Senscorr: SenscorrOptions{ISen: isen},
		})

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))
		assert.Equal(t, isen, wsp.Corr.Sensitivity)
		assert.Empty(t, mock.Calls)
	})

	t.Run("CalibrationReference", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cref:    fsl.NewImage("/data/cref.nii.gz"),
		})

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))

		sens := filepath.Join(wsp.Root(), "senscorr", "sensitivity")
		calls := mock.CallsTo("fslmaths")
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"/data/calib", "-div", "/data/cref", sens}, calls[0].Args)
		assert.Equal(t, sens, wsp.Corr.Sensitivity.Base())
	})

	t.Run("AutoFromBiasField", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Struc:    fsl.NewImage("/data/T1.nii.gz"),
			Senscorr: SenscorrOptions{Auto: true},
		})
		wsp.Reg.Regfrom = fsl.NewImage("/data/regfrom.nii.gz")
		require.NoError(t, wsp.setASL2Struc(translationAffine(t, 2, 0, 0)))
		wsp.Structural.Bias = fsl.NewImage("/data/bias.nii.gz")
		wsp.MarkDone("segmentation")

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))

		sensStruc := filepath.Join(wsp.Root(), "senscorr", "sensitivity_struc")
		sens := filepath.Join(wsp.Root(), "senscorr", "sensitivity")

		mathsCalls := mock.CallsTo("fslmaths")
		require.Len(t, mathsCalls, 1)
		assert.Equal(t, []string{"/data/bias", "-recip", sensStruc}, mathsCalls[0].Args)

		flirtCalls := mock.CallsTo("flirt")
		require.Len(t, flirtCalls, 1)
		assert.Equal(t, []string{
			"-in", sensStruc,
			"-ref", "/data/regfrom",
			"-out", sens,
			"-applyxfm",
			"-init", wsp.Reg.Struc2ASLMat,
			"-interp", "trilinear",
			"-paddingsize", "1",
		}, flirtCalls[0].Args)

		assert.Equal(t, sens, wsp.Corr.Sensitivity.Base())
	})

	t.Run("AutoWithoutBiasField", func(t *testing.T) {
		wsp, _ := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Struc:    fsl.NewImage("/data/T1.nii.gz"),
			Senscorr: SenscorrOptions{Auto: true},
		})
		wsp.MarkDone("segmentation")

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))
		assert.True(t, wsp.Corr.Sensitivity.IsZero())
	})

	t.Run("NoSource", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))
		assert.True(t, wsp.Corr.Sensitivity.IsZero())
		assert.Empty(t, mock.Calls)
	})

	t.Run("KeepsExistingSensitivity", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cref:    fsl.NewImage("/data/cref.nii.gz"),
		})
		wsp.Corr.Sensitivity = fsl.NewImage("/data/existing.nii.gz")

		require.NoError(t, SensitivityCorrection(context.Background(), wsp))
		assert.Equal(t, "/data/existing", wsp.Corr.Sensitivity.Base())
		assert.Empty(t, mock.Calls)
	})
}

func TestApplyCorrections(t *testing.T) {
	t.Run("NothingToApply", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})

		require.NoError(t, ApplyCorrections(context.Background(), wsp))
		assert.Empty(t, mock.Calls)
		assert.Equal(t, "/data/asldata", wsp.ASLData.Base())
	})

	t.Run("MotionOnly", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})
		mcMats := filepath.Join(wsp.Root(), "mc_mats.mat")
		mats := []transform.Affine{translationAffine(t, 0, 0, 0), translationAffine(t, 1, 0, 0)}
		require.NoError(t, transform.WriteStacked(mcMats, mats))
		wsp.Corr.MCMats = mats
		wsp.Corr.MCMatsFile = mcMats

		require.NoError(t, ApplyCorrections(context.Background(), wsp))

		mean := filepath.Join(wsp.Root(), "asldata_mean")
		corrected := filepath.Join(wsp.Root(), "corrected", "asldata")

		// no warps, so no combined transform is built
		assert.Empty(t, mock.CallsTo("convertwarp"))
		assert.True(t, wsp.Corr.TotalWarp.IsZero())

		awCalls := mock.CallsTo("applywarp")
		require.Len(t, awCalls, 1)
		assert.Equal(t, []string{
			"--in=/data/asldata",
			"--ref=" + mean,
			"--out=" + corrected,
			"--premat=" + mcMats,
			"--interp=sinc",
			"--paddingsize=1",
			"--rel",
		}, awCalls[0].Args)

		assert.Equal(t, corrected, wsp.ASLData.Base())
		assert.Equal(t, "/data/asldata", wsp.ASLDataOrig.Base())
	})

	t.Run("WarpsAndCalibrationFamily", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
			Calib:   fsl.NewImage("/data/calib.nii.gz"),
			Cref:    fsl.NewImage("/data/cref.nii.gz"),
			Cblip:   fsl.NewImage("/data/cblip.nii.gz"),
			Distcorr: DistcorrOptions{
				GDCWarp: fsl.NewImage("/data/gdc_warp.nii.gz"),
			},
		})
		wsp.ASLDataMean = fsl.NewImage(filepath.Join(wsp.Root(), "asldata_mean"))
		wsp.Corr.FmapWarp = fsl.NewImage("/data/fmap_warp.nii.gz")
		require.NoError(t, wsp.setASL2Calib(translationAffine(t, 1, 0, 0)))

		mcMats := filepath.Join(wsp.Root(), "mc_mats.mat")
		require.NoError(t, transform.WriteStacked(mcMats, []transform.Affine{translationAffine(t, 0, 0, 0)}))
		wsp.Corr.MCMatsFile = mcMats

		require.NoError(t, ApplyCorrections(context.Background(), wsp))

		dir := filepath.Join(wsp.Root(), "corrected")
		totalWarp := filepath.Join(dir, "total_warp")
		jacobian := filepath.Join(dir, "jacobian")

		cwCalls := mock.CallsTo("convertwarp")
		require.Len(t, cwCalls, 1)
		assert.Equal(t, []string{
			"--ref=" + wsp.ASLDataMean.Base(),
			"--out=" + totalWarp,
			"--warp1=/data/fmap_warp",
			"--warp2=/data/gdc_warp",
			"--rel",
			"--jacobian=" + jacobian,
		}, cwCalls[0].Args)
		assert.Equal(t, totalWarp, wsp.Corr.TotalWarp.Base())
		assert.Equal(t, jacobian, wsp.Corr.Jacobian.Base())

		awCalls := mock.CallsTo("applywarp")
		require.Len(t, awCalls, 4)

		prematByIn := map[string]string{}
		for _, call := range awCalls {
			var in, premat string
			for _, arg := range call.Args {
				if strings.HasPrefix(arg, "--in=") {
					in = strings.TrimPrefix(arg, "--in=")
				}
				if strings.HasPrefix(arg, "--premat=") {
					premat = strings.TrimPrefix(arg, "--premat=")
				}
			}
			assert.Contains(t, call.Args, "--warp="+totalWarp)
			prematByIn[in] = premat
		}
		assert.Equal(t, map[string]string{
			"/data/asldata": mcMats,
			"/data/calib":   wsp.Reg.Calib2ASLMat,
			"/data/cref":    wsp.Reg.Calib2ASLMat,
			"/data/cblip":   wsp.Reg.Calib2ASLMat,
		}, prematByIn)

		// each corrected image is rescaled by the Jacobian
		mathsCalls := mock.CallsTo("fslmaths")
		require.Len(t, mathsCalls, 4)
		for _, call := range mathsCalls {
			assert.Equal(t, "-mul", call.Args[1])
			assert.Equal(t, jacobian, call.Args[2])
		}

		assert.Equal(t, filepath.Join(dir, "asldata"), wsp.ASLData.Base())
		assert.Equal(t, filepath.Join(dir, "calib"), wsp.Calib.Base())
		assert.Equal(t, filepath.Join(dir, "cref"), wsp.Cref.Base())
		assert.Equal(t, filepath.Join(dir, "cblip"), wsp.Cblip.Base())
		assert.Equal(t, "/data/calib", wsp.CalibOrig.Base())
	})
}

func TestApplySensitivity(t *testing.T) {
	t.Run("NoSensitivityPassesThrough", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})

		imgs := []fsl.Image{fsl.NewImage("/data/perfusion.nii.gz"), fsl.NewImage("/data/calib.nii.gz")}
		out, err := ApplySensitivity(context.Background(), wsp, imgs...)
		require.NoError(t, err)
		assert.Equal(t, imgs, out)
		assert.Empty(t, mock.Calls)
	})

	t.Run("DisabledPassesThrough", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData:  fsl.NewImage("/data/asldata.nii.gz"),
			Senscorr: SenscorrOptions{Off: true},
		})
		wsp.Corr.Sensitivity = fsl.NewImage("/data/sens.nii.gz")

		imgs := []fsl.Image{fsl.NewImage("/data/perfusion.nii.gz")}
		out, err := ApplySensitivity(context.Background(), wsp, imgs...)
		require.NoError(t, err)
		assert.Equal(t, imgs, out)
		assert.Empty(t, mock.Calls)
	})

	t.Run("DividesEachImage", func(t *testing.T) {
		wsp, mock := newTestWorkspace(t, WorkspaceOptions{
			ASLData: fsl.NewImage("/data/asldata.nii.gz"),
		})
		wsp.Corr.Sensitivity = fsl.NewImage("/data/sens.nii.gz")

		out, err := ApplySensitivity(context.Background(), wsp,
			fsl.NewImage("/data/perfusion.nii.gz"),
			fsl.NewImage("/data/calib.nii.gz"),
		)
		require.NoError(t, err)
		require.Len(t, out, 2)

		dir := filepath.Join(wsp.Root(), "senscorr")
		assert.Equal(t, filepath.Join(dir, "perfusion_senscorr"), out[0].Base())
		assert.Equal(t, filepath.Join(dir, "calib_senscorr"), out[1].Base())

		calls := mock.CallsTo("fslmaths")
		require.Len(t, calls, 2)
		assert.Equal(t, []string{"/data/perfusion", "-div", "/data/sens", out[0].Base()}, calls[0].Args)
		assert.Equal(t, []string{"/data/calib", "-div", "/data/sens", out[1].Base()}, calls[1].Args)
	})
}
