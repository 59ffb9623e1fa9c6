package fsl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Phase encoding directions accepted on the command line. Lower case only,
// with "-" marking the reversed direction (e.g. "y" and "-y").
var validPEDirs = []string{"x", "-x", "y", "-y", "z", "-z"}

// acqParamTemplates maps a phase encoding direction to the pair of rows
// written to the TOPUP acquisition parameters file. The first row describes
// the main acquisition, the second the phase-encoding-reversed calibration
// volume. The fourth column is filled in with the echo spacing in seconds.
var acqParamTemplates = map[string]string{
	"x":  " 1  0  0 %f\n-1  0  0 %f",
	"-x": "-1  0  0 %f\n 1  0  0 %f",
	"y":  " 0  1  0 %f\n 0 -1  0 %f",
	"-y": " 0 -1  0 %f\n 0  1  0 %f",
	"z":  " 0  0  1 %f\n 0  0 -1 %f",
	"-z": " 0  0 -1 %f\n 0  0  1 %f",
}

// ValidPEDir reports whether pedir names a recognized phase encoding
// direction.
func ValidPEDir(pedir string) bool {
	_, ok := acqParamTemplates[strings.ToLower(pedir)]
	return ok
}

// TopupAcqParams renders the acquisition parameters file contents for a
// TOPUP run with the given phase encoding direction and echo spacing
// (in seconds).
func TopupAcqParams(pedir string, echoSpacing float64) (string, error) {
	tmpl, ok := acqParamTemplates[strings.ToLower(pedir)]
	if !ok {
		return "", errors.Errorf("phase encoding direction '%s' is not one of %s",
			pedir, strings.Join(validPEDirs, ", "))
	}
	return fmt.Sprintf(tmpl, echoSpacing, echoSpacing), nil
}
