package model

import "github.com/nipreps/dmotion/pkg/dwi"

// AverageModel predicts the voxel-wise arithmetic mean of the training
// volumes for every gradient. Despite ignoring the query direction it is a
// surprisingly robust reference generator for shells with many directions.
type AverageModel struct {
	gtab      *dwi.GradientTable
	includeB0 bool
	mean      *dwi.Volume
}

// NewAverage constructs an averaging model. By default b=0 volumes are
// excluded from the mean; pass WithB0InAverage(true) to include them.
func NewAverage(gtab *dwi.GradientTable, opts ...Option) (*AverageModel, error) {
	o := applyOptions(opts)
	return &AverageModel{gtab: gtab, includeB0: o.includeB0}, nil
}

// Fit computes the voxel-wise mean across the training directions.
func (m *AverageModel) Fit(train *dwi.Dataset) error {
	indices := train.Gtab.DWIndices()
	if m.includeB0 || len(indices) == 0 {
		indices = make([]int, train.NumDirections())
		for i := range indices {
			indices[i] = i
		}
	}

	mean := dwi.NewVolume(train.Width, train.Height, train.Depth)
	for _, idx := range indices {
		vol := train.VolumeAt(idx)
		for i, s := range vol.Data {
			mean.Data[i] += s
		}
	}
	n := float64(len(indices))
	for i := range mean.Data {
		mean.Data[i] /= n
	}
	m.mean = mean
	return nil
}

// Predict returns a copy of the fitted mean regardless of the gradient.
func (m *AverageModel) Predict(g dwi.Gradient) (*dwi.Volume, error) {
	if m.mean == nil {
		return nil, ErrNotFitted
	}
	return m.mean.Clone(), nil
}
