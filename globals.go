package oxasl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ClientVersion is the release version of the oxasl command line
	// tool. It is reported by "oxasl version" and stamped into built
	// package artifacts.
	ClientVersion = "2026.08.1"

	// DefaultOxaslConfig is the name of the per-user CLI configuration
	// file, resolved relative to the user's home directory.
	DefaultOxaslConfig = ".oxasl.yml"

	// RecipeFilename is the canonical name of a package recipe at the
	// root of a source checkout.
	RecipeFilename = "meta.yaml"

	DistDirectory = "dist"
	InfoDirectory = "info"

	// environment variables honored by every subcommand
	FSLDirEnvVar        = "FSLDIR"
	FSLOutputTypeEnvVar = "FSLOUTPUTTYPE"

	DefaultFSLOutputType = "NIFTI_GZ"

	// output space labels
	NativeSpace = "native"
	StructSpace = "struc"
	StdSpace    = "std"

	// acquisition forms for unsubtracted ASL data
	IAFDiff       = "diff"
	IAFTagControl = "tc"
	IAFControlTag = "ct"
)

var (
	// NiftiExtensions lists the file suffixes recognized as NIFTI
	// images, in the order FSL itself probes them.
	NiftiExtensions = []string{".nii.gz", ".nii", ".hdr.gz", ".hdr", ".img.gz", ".img"}

	// OutputTypeExtensions maps an FSLOUTPUTTYPE value to the suffix
	// FSL tools append to bare image names.
	OutputTypeExtensions = map[string]string{
		"NIFTI_GZ":      ".nii.gz",
		"NIFTI":         ".nii",
		"NIFTI_PAIR":    ".img",
		"NIFTI_PAIR_GZ": ".img.gz",
	}
)

// FindFSLDir returns the FSL installation root from the environment,
// or the empty string when FSLDIR is unset.
func FindFSLDir() string {
	return os.Getenv(FSLDirEnvVar)
}

// StandardBrain returns the path of the MNI152 2mm brain-extracted
// template shipped with FSL.
func StandardBrain(fslDir string) string {
	return filepath.Join(fslDir, "data", "standard", "MNI152_T1_2mm_brain")
}

// FnirtConfig returns the path of a named fnirt configuration file
// from the FSL installation, appending the .cnf suffix if absent.
func FnirtConfig(fslDir, name string) string {
	if !strings.HasSuffix(name, ".cnf") {
		name += ".cnf"
	}
	return filepath.Join(fslDir, "etc", "flirtsch", name)
}

// FlirtSchedule returns the path of a named flirt schedule file from
// the FSL installation.
func FlirtSchedule(fslDir, name string) string {
	return filepath.Join(fslDir, "etc", "flirtsch", name)
}

// ValidOutputType reports whether t names a known FSLOUTPUTTYPE.
func ValidOutputType(t string) bool {
	_, ok := OutputTypeExtensions[t]
	return ok
}

// ImageExtension returns the file suffix for the given FSLOUTPUTTYPE,
// defaulting to the NIFTI_GZ suffix for unknown values.
func ImageExtension(outputType string) string {
	if ext, ok := OutputTypeExtensions[outputType]; ok {
		return ext
	}
	return OutputTypeExtensions[DefaultFSLOutputType]
}

// StripImageExtension removes a recognized NIFTI suffix from an image
// path, leaving the bare name FSL tools accept.
func StripImageExtension(path string) string {
	for _, ext := range NiftiExtensions {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// ArtifactName returns the canonical file name for a built package
// artifact.
func ArtifactName(name, version string, buildNumber int) string {
	return fmt.Sprintf("%s-%s-%d.tar.gz", name, version, buildNumber)
}
