package model

import "github.com/nipreps/dmotion/pkg/dwi"

// TrivialModel predicts the same reference volume for every gradient. It
// stands in for the motionless b=0 reference during the first pass of an
// estimation loop, before any diffusion model can be trusted.
type TrivialModel struct {
	gtab *dwi.GradientTable
	s0   *dwi.Volume
}

// NewTrivial constructs the trivial model. The S0 reference volume is
// mandatory and must be supplied with WithS0; the model is complete at
// construction and Fit is a no-op.
func NewTrivial(gtab *dwi.GradientTable, opts ...Option) (*TrivialModel, error) {
	o := applyOptions(opts)
	if o.s0 == nil {
		return nil, ErrMissingS0
	}
	return &TrivialModel{gtab: gtab, s0: o.s0}, nil
}

// Fit does nothing: the prediction target was supplied at construction.
func (m *TrivialModel) Fit(train *dwi.Dataset) error {
	return nil
}

// Predict returns a copy of the S0 reference regardless of the gradient.
func (m *TrivialModel) Predict(g dwi.Gradient) (*dwi.Volume, error) {
	return m.s0.Clone(), nil
}
