package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nipreps/dmotion/pkg/dwi"
)

// minSignal is the floor applied before taking logarithms, so that empty
// background voxels do not poison the linear system.
const minSignal = 1e-6

// DTIModel fits the diffusion tensor per voxel by linear least squares on
// the log signal:
//
//	ln S(g, b) = ln S0 - b * g' D g
//
// yielding 7 coefficients per voxel (ln S0 and the 6 unique tensor
// elements). Prediction evaluates the same equation at the query gradient.
type DTIModel struct {
	gtab   *dwi.GradientTable
	coeffs *mat.Dense
	width  int
	height int
	depth  int
}

// NewDTI constructs an unfitted diffusion tensor model.
func NewDTI(gtab *dwi.GradientTable, opts ...Option) (*DTIModel, error) {
	return &DTIModel{gtab: gtab}, nil
}

// dtiDesignRow maps a gradient to the 7-column design row matching the
// coefficient vector [ln S0, Dxx, Dyy, Dzz, Dxy, Dxz, Dyz].
func dtiDesignRow(g dwi.Gradient) []float64 {
	x, y, z := g.Dir[0], g.Dir[1], g.Dir[2]
	b := g.B
	return []float64{
		1,
		-b * x * x,
		-b * y * y,
		-b * z * z,
		-2 * b * x * y,
		-2 * b * x * z,
		-2 * b * y * z,
	}
}

// Fit solves the per-voxel least-squares problem over all training
// directions, b=0 volumes included (they anchor the ln S0 intercept).
func (m *DTIModel) Fit(train *dwi.Dataset) error {
	coeffs, err := fitLogLinear(train, dtiDesignRow, 7)
	if err != nil {
		return fmt.Errorf("dti: %w", err)
	}
	m.coeffs = coeffs
	m.width, m.height, m.depth = train.Width, train.Height, train.Depth
	return nil
}

// Predict evaluates the fitted tensor at the query gradient.
func (m *DTIModel) Predict(g dwi.Gradient) (*dwi.Volume, error) {
	if m.coeffs == nil {
		return nil, ErrNotFitted
	}
	return predictLogLinear(m.coeffs, dtiDesignRow(g), m.width, m.height, m.depth), nil
}

// fitLogLinear solves the shared log-linear problem X beta = ln S for every
// voxel at once. X is the design matrix over the training gradients; the
// returned matrix holds one ncoef-length coefficient column per voxel.
func fitLogLinear(train *dwi.Dataset, designRow func(dwi.Gradient) []float64, ncoef int) (*mat.Dense, error) {
	n := train.NumDirections()
	if n < ncoef {
		return nil, fmt.Errorf("need at least %d directions to fit %d coefficients, have %d", ncoef, ncoef, n)
	}

	x := mat.NewDense(n, ncoef, nil)
	for k, g := range train.Gtab.Gradients {
		x.SetRow(k, designRow(g))
	}

	nvox := train.Width * train.Height * train.Depth
	y := mat.NewDense(n, nvox, nil)
	for k := 0; k < n; k++ {
		row := train.Data[k*nvox : (k+1)*nvox]
		for v, s := range row {
			y.Set(k, v, math.Log(math.Max(s, minSignal)))
		}
	}

	var beta mat.Dense
	if err := beta.Solve(x, y); err != nil {
		return nil, fmt.Errorf("least-squares solve failed: %w", err)
	}
	return &beta, nil
}

// predictLogLinear evaluates exp(row . beta) for every voxel.
func predictLogLinear(coeffs *mat.Dense, row []float64, width, height, depth int) *dwi.Volume {
	out := dwi.NewVolume(width, height, depth)
	ncoef := len(row)
	for v := range out.Data {
		var logS float64
		for c := 0; c < ncoef; c++ {
			logS += row[c] * coeffs.At(c, v)
		}
		out.Data[v] = math.Exp(logS)
	}
	return out
}
