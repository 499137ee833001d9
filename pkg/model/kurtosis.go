package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nipreps/dmotion/pkg/dwi"
)

// DKIModel extends the tensor model with diffusional kurtosis, capturing
// non-Gaussian diffusion at higher b-values:
//
//	ln S(g, b) = ln S0 - b * g' D g + (b^2 / 6) * sum_ijkl g_i g_j g_k g_l W'_ijkl
//
// where W' absorbs the mean-diffusivity scaling of the kurtosis tensor so
// the fit stays linear. The 15 unique quartic terms join the 7 tensor
// coefficients for 22 parameters per voxel.
type DKIModel struct {
	gtab   *dwi.GradientTable
	coeffs *mat.Dense
	width  int
	height int
	depth  int
}

// NewDKI constructs an unfitted diffusion kurtosis model.
func NewDKI(gtab *dwi.GradientTable, opts ...Option) (*DKIModel, error) {
	return &DKIModel{gtab: gtab}, nil
}

// kurtosisMonomials enumerates the 15 unique quartic direction monomials
// as exponent triples with their multinomial multiplicities.
var kurtosisMonomials = []struct {
	px, py, pz int
	mult       float64
}{
	{4, 0, 0, 1}, {0, 4, 0, 1}, {0, 0, 4, 1},
	{3, 1, 0, 4}, {3, 0, 1, 4}, {1, 3, 0, 4},
	{0, 3, 1, 4}, {1, 0, 3, 4}, {0, 1, 3, 4},
	{2, 2, 0, 6}, {2, 0, 2, 6}, {0, 2, 2, 6},
	{2, 1, 1, 12}, {1, 2, 1, 12}, {1, 1, 2, 12},
}

// dkiDesignRow appends the 15 kurtosis columns to the tensor design row.
func dkiDesignRow(g dwi.Gradient) []float64 {
	row := make([]float64, 0, 22)
	row = append(row, dtiDesignRow(g)...)
	x, y, z := g.Dir[0], g.Dir[1], g.Dir[2]
	bsq := g.B * g.B / 6
	for _, m := range kurtosisMonomials {
		row = append(row, bsq*m.mult*pow(x, m.px)*pow(y, m.py)*pow(z, m.pz))
	}
	return row
}

func pow(v float64, p int) float64 {
	out := 1.0
	for i := 0; i < p; i++ {
		out *= v
	}
	return out
}

// Fit solves the extended per-voxel least-squares problem. At least two
// shells (distinct non-zero b-values) are needed in practice for the
// quadratic b term to be identifiable; with a single shell the solve still
// succeeds but the kurtosis terms trade off against the tensor.
func (m *DKIModel) Fit(train *dwi.Dataset) error {
	coeffs, err := fitLogLinear(train, dkiDesignRow, 22)
	if err != nil {
		return fmt.Errorf("dki: %w", err)
	}
	m.coeffs = coeffs
	m.width, m.height, m.depth = train.Width, train.Height, train.Depth
	return nil
}

// Predict evaluates the fitted kurtosis model at the query gradient.
func (m *DKIModel) Predict(g dwi.Gradient) (*dwi.Volume, error) {
	if m.coeffs == nil {
		return nil, ErrNotFitted
	}
	return predictLogLinear(m.coeffs, dkiDesignRow(g), m.width, m.height, m.depth), nil
}
