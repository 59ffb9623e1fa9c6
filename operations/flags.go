package operations

import (
	"strings"

	"github.com/a3sha2/oxasl"
	"github.com/a3sha2/oxasl/fsl"
	"github.com/urfave/cli"
)

const (
	confFlagName     = "conf"
	pathFlagName     = "path"
	metadataFlagName = "metadata"
	outputFlagName   = "output"
	jsonFlagName     = "json"
	workDirFlagName  = "workdir"
	describeFlagName = "describe"

	regfromFlagName    = "regfrom"
	strucFlagName      = "struc"
	strucBrainFlagName = "strucbrain"
	wmsegFlagName      = "wmseg"
	fslanatFlagName    = "fslanat"
	omatFlagName       = "omat"
	flirtschFlagName   = "flirtsch"
	dofFlagName        = "dof"
	bbrFlagName        = "bbr"
	flirtFlagName      = "flirt"
	stdFlagName        = "std"
	fnirtFlagName      = "fnirt"

	asldataFlagName      = "asldata"
	iafFlagName          = "iaf"
	calibFlagName        = "calib"
	crefFlagName         = "cref"
	cblipFlagName        = "cblip"
	mcFlagName           = "mc"
	fmapFlagName         = "fmap"
	fmapMagFlagName      = "fmapmag"
	fmapMagBrainFlagName = "fmapmagbrain"
	noFmapRegFlagName    = "nofmapreg"
	echoSpacingFlagName  = "echospacing"
	pedirFlagName        = "pedir"
	gdcWarpFlagName      = "gdcwarp"
	isenFlagName         = "isen"
	senscorrAutoFlagName = "senscorr-auto"
	senscorrOffFlagName  = "senscorr-off"
	pvcorrFlagName       = "pvcorr"
	reportFlagName       = "report"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func mergeFlagSlices(in ...[]cli.Flag) []cli.Flag {
	out := []cli.Flag{}

	for idx := range in {
		out = append(out, in[idx]...)
	}

	return out
}

// imageFlag reads a string flag as an image reference; an unset flag
// yields the zero image.
func imageFlag(c *cli.Context, name string) fsl.Image {
	return fsl.NewImage(c.String(name))
}

func addPathFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(pathFlagName, "filename", "file", "f", "p"),
		Usage: "path to a package recipe file",
	})
}

func addMetadataFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(metadataFlagName, "m"),
		Usage: "path to a package metadata file providing recipe expansions",
	})
}

func addJSONFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.BoolFlag{
		Name:  joinFlagNames(jsonFlagName, "j"),
		Usage: "write the output in JSON format",
	})
}

func addWorkDirFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(workDirFlagName, "w"),
		Usage: "directory for staged sources and built artifacts",
	})
}

func addOutputDirFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(outputFlagName, "out", "o"),
		Usage: "directory to write pipeline output into",
	})
}

func addStructuralFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  strucFlagName,
			Usage: "structural image (wholehead)",
		},
		cli.StringFlag{
			Name:  strucBrainFlagName,
			Usage: "structural image (brain extracted)",
		},
		cli.StringFlag{
			Name:  wmsegFlagName,
			Usage: "white matter segmentation of the structural image",
		},
		cli.StringFlag{
			Name:  fslanatFlagName,
			Usage: "existing fsl_anat output directory for the structural image",
		},
	)
}

func addASLInputFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  asldataFlagName,
			Usage: "ASL data file",
		},
		cli.StringFlag{
			Name:  iafFlagName,
			Usage: "input ASL format: diff, tc, or ct",
			Value: oxasl.IAFDiff,
		},
		cli.StringFlag{
			Name:  calibFlagName,
			Usage: "calibration image",
		},
		cli.StringFlag{
			Name:  crefFlagName,
			Usage: "calibration reference image",
		},
		cli.StringFlag{
			Name:  cblipFlagName,
			Usage: "phase-encode-reversed (blipped) calibration image",
		},
	)
}

func addDistcorrFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  fmapFlagName,
			Usage: "fieldmap image (in rad/s)",
		},
		cli.StringFlag{
			Name:  fmapMagFlagName,
			Usage: "fieldmap magnitude image - wholehead extracted",
		},
		cli.StringFlag{
			Name:  fmapMagBrainFlagName,
			Usage: "fieldmap magnitude image - brain extracted",
		},
		cli.BoolFlag{
			Name:  noFmapRegFlagName,
			Usage: "do not perform registration of fmap to T1 (use if fmap already registered)",
		},
		cli.Float64Flag{
			Name:  echoSpacingFlagName,
			Usage: "effective EPI echo spacing (sometimes called dwell time), in seconds",
		},
		cli.StringFlag{
			Name:  pedirFlagName,
			Usage: "phase encoding direction, dir = x/y/z/-x/-y/-z",
		},
		cli.StringFlag{
			Name:  gdcWarpFlagName,
			Usage: "additional user-supplied gradient distortion correction warpfield",
		},
	)
}

func addSenscorrFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:  isenFlagName,
			Usage: "user-supplied sensitivity correction image in ASL space",
		},
		cli.BoolFlag{
			Name:  senscorrAutoFlagName,
			Usage: "derive the sensitivity correction from the structural bias field",
		},
		cli.BoolFlag{
			Name:  senscorrOffFlagName,
			Usage: "do not apply any sensitivity correction",
		},
	)
}
