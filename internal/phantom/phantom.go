// Package phantom generates synthetic diffusion-weighted datasets with a
// known ground truth, for demos and tests. The phantom is a sphere of
// tissue following a fixed diffusion tensor inside an empty background.
package phantom

import (
	"math"

	"github.com/nipreps/dmotion/pkg/dwi"
)

// S0 is the non-attenuated signal intensity inside the phantom sphere.
const S0 = 100.0

// Tensor is the ground-truth diffusion tensor of the phantom tissue, in
// mm^2/s: prolate, with the principal axis along x.
var Tensor = [3][3]float64{
	{1.5e-3, 0, 0},
	{0, 0.4e-3, 0},
	{0, 0, 0.4e-3},
}

// Directions returns n diffusion directions spread over the unit sphere
// with a golden-angle spiral, plus leading b=0 entries.
func Directions(numB0, numDW int, b float64) []dwi.Gradient {
	gradients := make([]dwi.Gradient, 0, numB0+numDW)
	for i := 0; i < numB0; i++ {
		gradients = append(gradients, dwi.Gradient{})
	}
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < numDW; i++ {
		z := 1 - 2*(float64(i)+0.5)/float64(numDW)
		r := math.Sqrt(1 - z*z)
		theta := golden * float64(i)
		gradients = append(gradients, dwi.Gradient{
			Dir: [3]float64{r * math.Cos(theta), r * math.Sin(theta), z},
			B:   b,
		})
	}
	return gradients
}

// Attenuation evaluates exp(-b g'Dg) for the ground-truth tensor.
func Attenuation(g dwi.Gradient) float64 {
	var quad float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			quad += g.Dir[i] * Tensor[i][j] * g.Dir[j]
		}
	}
	return math.Exp(-g.B * quad)
}

// Generate builds a size^3 dataset with the given gradient scheme. Voxels
// inside the centered sphere carry the tensor-attenuated signal; the
// background is zero.
func Generate(size int, gradients []dwi.Gradient) (*dwi.Dataset, error) {
	gtab := dwi.NewGradientTable(gradients)
	stride := size * size * size
	data := make([]float64, len(gradients)*stride)

	center := float64(size-1) / 2
	radius := float64(size) / 3

	for k, g := range gtab.Gradients {
		signal := S0
		if !gtab.IsB0(k) {
			signal = S0 * Attenuation(g)
		}
		vol := data[k*stride : (k+1)*stride]
		for z := 0; z < size; z++ {
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					dx := float64(x) - center
					dy := float64(y) - center
					dz := float64(z) - center
					if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
						vol[z*size*size+y*size+x] = signal
					}
				}
			}
		}
	}

	affine := [4][4]float64{
		{2, 0, 0, 0},
		{0, 2, 0, 0},
		{0, 0, 2, 0},
		{0, 0, 0, 1},
	}
	return dwi.NewDataset(data, size, size, size, affine, gtab)
}
