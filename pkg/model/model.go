// Package model implements the diffusion signal models used to synthesize
// motion-free reference volumes, behind a common fit/predict capability.
// Models are constructed through the factory (New) with the acquisition's
// gradient table, fitted on a training dataset, and queried with a single
// gradient to predict the signal that would have been observed there.
package model

import (
	"errors"

	"github.com/nipreps/dmotion/pkg/dwi"
)

var (
	// ErrMissingS0 is returned when the trivial model is constructed
	// without the mandatory S0 reference volume.
	ErrMissingS0 = errors.New("model: trivial model requires an S0 reference volume")

	// ErrUnknownModel is returned by the factory for unrecognized names.
	ErrUnknownModel = errors.New("model: unknown model name")

	// ErrNotFitted is returned by Predict when the model requires a prior
	// Fit call that never happened.
	ErrNotFitted = errors.New("model: predict called before fit")
)

// Model is the capability shared by all diffusion signal models.
//
// Fit consumes a training dataset (typically the training half of a
// leave-one-gradient-out split) and populates the model's prediction
// state. Predict evaluates the fitted model at a single query gradient and
// returns the estimated 3D signal volume; it never mutates model state.
type Model interface {
	Fit(train *dwi.Dataset) error
	Predict(g dwi.Gradient) (*dwi.Volume, error)
}

// Option configures a model at construction time.
type Option func(*options)

type options struct {
	s0        *dwi.Volume
	includeB0 bool
}

// WithS0 supplies the reference intensity volume. Mandatory for the
// trivial model.
func WithS0(s0 *dwi.Volume) Option {
	return func(o *options) { o.s0 = s0 }
}

// WithB0InAverage makes the averaging model include b=0 volumes in its
// voxel-wise mean. By default only diffusion-weighted volumes contribute,
// since b=0 intensities would bias the predicted attenuated signal upward.
func WithB0InAverage(include bool) Option {
	return func(o *options) { o.includeB0 = include }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
