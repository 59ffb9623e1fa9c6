package transform

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

var motionMatName = regexp.MustCompile(`^MAT_\d{4}$`)

// MiddleVolume returns the index of the middle volume of a series of
// n volumes, the volume motion correction aligns to.
func MiddleVolume(n int) int {
	return n / 2
}

// LoadMotionSeries reads the per-volume MAT_**** transformation files
// written by mcflirt into the given directory, ordered by volume.
func LoadMotionSeries(dir string) ([]Affine, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading motion matrix directory '%s'", dir)
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && motionMatName.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no motion matrices found in '%s'", dir)
	}
	sort.Strings(names)

	mats := make([]Affine, 0, len(names))
	for _, name := range names {
		m, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		mats = append(mats, m)
	}
	return mats, nil
}

// RebaseToVolume re-expresses each transformation of a motion series
// relative to the series' own volume vol, so the rebased matrix for
// vol is the identity. This turns matrices aligning each volume to an
// external reference into matrices aligning each volume to vol.
func RebaseToVolume(mats []Affine, vol int) ([]Affine, error) {
	if vol < 0 || vol >= len(mats) {
		return nil, errors.Errorf("volume %d out of range for series of %d", vol, len(mats))
	}

	inv, err := mats[vol].Inverse()
	if err != nil {
		return nil, errors.Wrapf(err, "inverting matrix for volume %d", vol)
	}

	out := make([]Affine, len(mats))
	for i, m := range mats {
		// volume -> reference -> vol
		out[i] = inv.Mul(m)
	}
	return out, nil
}
