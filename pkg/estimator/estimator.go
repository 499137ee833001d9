// Package estimator runs the leave-one-gradient-out prediction loop at the
// core of head-motion estimation: for every diffusion direction the dataset
// is split, a signal model is fitted on the remainder, and the model's
// prediction for the held-out gradient becomes the motion-free reference
// that the volume would be registered against.
//
// Registration itself is a downstream collaborator; this package stops at
// the synthetic references and their agreement with the observed volumes.
package estimator

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/nipreps/dmotion/pkg/dwi"
	"github.com/nipreps/dmotion/pkg/model"
)

// Params configures a prediction run.
type Params struct {
	// ModelName selects the signal model through the factory
	// ("trivial", "average", "dti", "dki", ...).
	ModelName string

	// WithB0 makes the loop hold out b=0 volumes too. Normally false:
	// b=0 volumes serve as the anatomical reference, not as targets.
	WithB0 bool

	// IncludeB0InAverage is forwarded to the averaging model.
	IncludeB0InAverage bool

	// S0 overrides the reference volume for models that need one. When
	// nil, the dataset's b=0 average is used if available.
	S0 *dwi.Volume
}

// Prediction is one direction's outcome: the synthesized reference volume
// and its agreement with the actually observed volume.
type Prediction struct {
	// Index is the direction's position in the original dataset.
	Index int

	// Gradient is the held-out direction's encoding.
	Gradient dwi.Gradient

	// Predicted is the model's synthetic reference volume.
	Predicted *dwi.Volume

	// RMSE is the root-mean-square error against the observed volume.
	RMSE float64

	// MAE is the mean absolute error against the observed volume.
	MAE float64
}

// ValidationMetrics summarizes prediction quality over all directions.
type ValidationMetrics struct {
	// MeanRMSE and StdRMSE aggregate the per-direction RMS errors.
	MeanRMSE float64
	StdRMSE  float64

	// MeanMAE aggregates the per-direction mean absolute errors.
	MeanMAE float64

	// PSNR is the peak signal-to-noise ratio in dB, computed from the
	// dataset's peak intensity and the mean RMSE.
	PSNR float64
}

// Result is the outcome of a full leave-one-out pass.
type Result struct {
	Predictions []Prediction
	Metrics     ValidationMetrics
}

// Estimator drives the leave-one-gradient-out loop. Each instance is owned
// by the caller that constructed it; runs are sequential and synchronous.
type Estimator struct {
	params *Params
}

// NewEstimator creates an estimator with the provided parameters.
func NewEstimator(params *Params) *Estimator {
	return &Estimator{params: params}
}

// Run performs one leave-one-out pass over the dataset and returns the
// per-direction predictions and aggregate metrics.
func (e *Estimator) Run(ds *dwi.Dataset) (*Result, error) {
	count := len(ds.Gtab.DWIndices())
	if e.params.WithB0 {
		count = ds.NumDirections()
	}
	if count == 0 {
		return nil, fmt.Errorf("estimator: dataset has no directions to hold out")
	}

	opts := e.modelOptions(ds)

	log.WithFields(log.Fields{
		"model":      e.params.ModelName,
		"directions": count,
		"withB0":     e.params.WithB0,
	}).Info("Starting leave-one-out prediction pass")

	result := &Result{Predictions: make([]Prediction, 0, count)}
	for i := 0; i < count; i++ {
		train, heldOut, err := ds.LogoSplit(i, e.params.WithB0)
		if err != nil {
			return nil, fmt.Errorf("estimator: split %d: %w", i, err)
		}

		m, err := model.New(ds.Gtab, e.params.ModelName, opts...)
		if err != nil {
			return nil, fmt.Errorf("estimator: %w", err)
		}
		if err := m.Fit(train); err != nil {
			return nil, fmt.Errorf("estimator: fit for direction %d: %w", heldOut.Index, err)
		}
		predicted, err := m.Predict(heldOut.Gradient)
		if err != nil {
			return nil, fmt.Errorf("estimator: predict for direction %d: %w", heldOut.Index, err)
		}

		rmse, mae := compareVolumes(predicted, heldOut.Volume)
		result.Predictions = append(result.Predictions, Prediction{
			Index:     heldOut.Index,
			Gradient:  heldOut.Gradient,
			Predicted: predicted,
			RMSE:      rmse,
			MAE:       mae,
		})

		log.WithFields(log.Fields{
			"direction": heldOut.Index,
			"bValue":    heldOut.Gradient.B,
			"rmse":      rmse,
		}).Debug("Predicted held-out direction")
	}

	result.Metrics = e.aggregate(ds, result.Predictions)
	log.WithFields(log.Fields{
		"meanRMSE": result.Metrics.MeanRMSE,
		"psnr":     result.Metrics.PSNR,
	}).Info("Completed leave-one-out prediction pass")
	return result, nil
}

// modelOptions assembles factory options from the parameters, falling back
// to the dataset's b=0 average as the S0 reference when none was given.
func (e *Estimator) modelOptions(ds *dwi.Dataset) []model.Option {
	opts := []model.Option{model.WithB0InAverage(e.params.IncludeB0InAverage)}
	s0 := e.params.S0
	if s0 == nil {
		if avg, err := ds.B0Average(); err == nil {
			s0 = avg
		}
	}
	if s0 != nil {
		opts = append(opts, model.WithS0(s0))
	}
	return opts
}

func (e *Estimator) aggregate(ds *dwi.Dataset, predictions []Prediction) ValidationMetrics {
	rmses := make([]float64, len(predictions))
	maes := make([]float64, len(predictions))
	for i, p := range predictions {
		rmses[i] = p.RMSE
		maes[i] = p.MAE
	}

	meanRMSE, stdRMSE := stat.MeanStdDev(rmses, nil)
	if len(rmses) < 2 {
		stdRMSE = 0
	}

	var peak float64
	for _, s := range ds.Data {
		if s > peak {
			peak = s
		}
	}
	psnr := math.Inf(1)
	if meanRMSE > 0 && peak > 0 {
		psnr = 20 * math.Log10(peak/meanRMSE)
	}

	return ValidationMetrics{
		MeanRMSE: meanRMSE,
		StdRMSE:  stdRMSE,
		MeanMAE:  stat.Mean(maes, nil),
		PSNR:     psnr,
	}
}

func compareVolumes(predicted, observed *dwi.Volume) (rmse, mae float64) {
	n := float64(len(observed.Data))
	var sumSq, sumAbs float64
	for i, s := range observed.Data {
		diff := predicted.Data[i] - s
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
	}
	return math.Sqrt(sumSq / n), sumAbs / n
}
