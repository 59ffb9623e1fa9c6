package fsl

import (
	"path/filepath"

	"github.com/a3sha2/oxasl"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// Image is a path-backed reference to a NIFTI volume on disk. The path is
// stored without an image extension, which is the form FSL tools accept on
// their command lines; Resolve finds the concrete file when one is needed.
type Image struct {
	path string
}

// NewImage makes an image reference from a path, with or without an image
// extension.
func NewImage(path string) Image {
	return Image{path: oxasl.StripImageExtension(path)}
}

// IsZero reports whether the reference is empty.
func (i Image) IsZero() bool { return i.path == "" }

// Base returns the path without an image extension, suitable for passing to
// FSL tools.
func (i Image) Base() string { return i.path }

// Name returns the final path component without an image extension.
func (i Image) Name() string { return filepath.Base(i.path) }

// Dir returns the directory holding the image.
func (i Image) Dir() string { return filepath.Dir(i.path) }

// Derived returns a sibling image whose name carries the given suffix.
func (i Image) Derived(suffix string) Image {
	return Image{path: i.path + suffix}
}

// Resolve returns the path of the file backing the image, probing the known
// image extensions in order.
func (i Image) Resolve() (string, error) {
	if i.IsZero() {
		return "", errors.New("no image path given")
	}
	for _, ext := range oxasl.NiftiExtensions {
		candidate := i.path + ext
		if utility.FileExists(candidate) {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no image found at '%s'", i.path)
}

// Exists reports whether a file backing the image exists on disk.
func (i Image) Exists() bool {
	_, err := i.Resolve()
	return err == nil
}
