package transform

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Affine is a 4x4 transformation matrix in the text form emitted and
// consumed by FLIRT. The zero value is not usable; construct values
// with Identity, New, or Load.
type Affine struct {
	m *mat.Dense
}

// Identity returns the identity transformation.
func Identity() Affine {
	a := Affine{m: mat.NewDense(4, 4, nil)}
	for i := 0; i < 4; i++ {
		a.m.Set(i, i, 1)
	}
	return a
}

// New constructs an Affine from 16 values in row-major order.
func New(data []float64) (Affine, error) {
	if len(data) != 16 {
		return Affine{}, errors.Errorf("affine requires 16 values, got %d", len(data))
	}
	vals := make([]float64, 16)
	copy(vals, data)
	return Affine{m: mat.NewDense(4, 4, vals)}, nil
}

// At returns the matrix entry at row i, column j.
func (a Affine) At(i, j int) float64 { return a.m.At(i, j) }

// Mul returns the composition a*b, the transformation applying b first
// and then a.
func (a Affine) Mul(b Affine) Affine {
	out := mat.NewDense(4, 4, nil)
	out.Mul(a.m, b.m)
	return Affine{m: out}
}

// Inverse returns the inverse transformation.
func (a Affine) Inverse() (Affine, error) {
	out := mat.NewDense(4, 4, nil)
	if err := out.Inverse(a.m); err != nil {
		return Affine{}, errors.Wrap(err, "inverting affine")
	}
	return Affine{m: out}, nil
}

// Equal reports whether the two transformations agree entrywise to
// within tol.
func (a Affine) Equal(b Affine, tol float64) bool {
	return mat.EqualApprox(a.m, b.m, tol)
}

// IsIdentity reports whether the transformation is the identity to
// within tol.
func (a Affine) IsIdentity(tol float64) bool {
	return a.Equal(Identity(), tol)
}

func (a Affine) String() string {
	rows := make([]string, 4)
	for i := 0; i < 4; i++ {
		rows[i] = fmt.Sprintf("%f %f %f %f", a.m.At(i, 0), a.m.At(i, 1), a.m.At(i, 2), a.m.At(i, 3))
	}
	return strings.Join(rows, "\n") + "\n"
}

// Write saves the transformation to the named file in FLIRT text
// format.
func (a Affine) Write(path string) error {
	return errors.Wrapf(os.WriteFile(path, []byte(a.String()), 0644), "writing transform '%s'", path)
}

// Load reads a single 4x4 transformation from a FLIRT text matrix
// file.
func Load(path string) (Affine, error) {
	mats, err := readMatrixRows(path)
	if err != nil {
		return Affine{}, err
	}
	if len(mats) != 1 {
		return Affine{}, errors.Errorf("transform '%s' contains %d matrices, expected 1", path, len(mats))
	}
	return mats[0], nil
}

// LoadStacked reads a file of vertically concatenated 4x4 matrices,
// the form written by WriteStacked and consumed by applyxfm4D.
func LoadStacked(path string) ([]Affine, error) {
	return readMatrixRows(path)
}

// WriteStacked saves the given transformations to a single file as a
// (4N)x4 vertical concatenation.
func WriteStacked(path string, mats []Affine) error {
	sb := strings.Builder{}
	for _, m := range mats {
		sb.WriteString(m.String())
	}
	return errors.Wrapf(os.WriteFile(path, []byte(sb.String()), 0644), "writing stacked transforms '%s'", path)
}

func readMatrixRows(path string) ([]Affine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening transform '%s'", path)
	}
	defer f.Close()

	rows := [][]float64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, errors.Errorf("transform '%s' has a row with %d values, expected 4", path, len(fields))
		}
		row := make([]float64, 4)
		for i, field := range fields {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing transform '%s'", path)
			}
			row[i] = val
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading transform '%s'", path)
	}

	if len(rows) == 0 || len(rows)%4 != 0 {
		return nil, errors.Errorf("transform '%s' has %d rows, expected a multiple of 4", path, len(rows))
	}

	mats := make([]Affine, 0, len(rows)/4)
	for i := 0; i < len(rows); i += 4 {
		vals := make([]float64, 0, 16)
		for _, row := range rows[i : i+4] {
			vals = append(vals, row...)
		}
		mats = append(mats, Affine{m: mat.NewDense(4, 4, vals)})
	}
	return mats, nil
}
