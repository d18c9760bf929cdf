// Package forecast runs the iterative multi-step forecast: each predicted
// hour is appended to a private copy of the series and becomes history for
// the next step.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/models"
)

const (
	DefaultHorizon = 6
	Step           = time.Hour
)

type VectorBuilder interface {
	BuildNext(s models.Series, ts time.Time) (models.FeatureVector, error)
}

// lookbacker is implemented by builders that know how many hours of history
// a vector needs.
type lookbacker interface {
	Lookback() int
}

type Predictor interface {
	Predict(ctx context.Context, v models.FeatureVector) (float64, error)
}

// StepObserver sees every step's input vector and clamped output.
type StepObserver func(hour int, v models.FeatureVector, predicted float64)

type Forecaster struct {
	builder  VectorBuilder
	model    Predictor
	horizon  int
	observer StepObserver
}

type Option func(*Forecaster)

func WithHorizon(h int) Option {
	return func(f *Forecaster) { f.horizon = h }
}

func WithObserver(o StepObserver) Option {
	return func(f *Forecaster) { f.observer = o }
}

func New(builder VectorBuilder, model Predictor, opts ...Option) *Forecaster {
	f := &Forecaster{builder: builder, model: model, horizon: DefaultHorizon}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Forecaster) Horizon() int { return f.horizon }

// Run forecasts f.horizon hours after the last point of s. s is not modified.
// Any failure aborts the run and no predictions are returned. A series too
// short for the builder is rejected before the first step; once the loop has
// started a builder failure is an internal error, never a client one.
func (f *Forecaster) Run(ctx context.Context, s models.Series) ([]models.Prediction, error) {
	if f.horizon < 1 {
		return nil, fmt.Errorf("forecast horizon must be at least 1, got %d", f.horizon)
	}
	if len(s) == 0 {
		return nil, errs.InsufficientHistory(0, 1)
	}
	if lb, ok := f.builder.(lookbacker); ok && len(s) < lb.Lookback() {
		return nil, errs.InsufficientHistory(len(s), lb.Lookback())
	}

	working := s.Clone()
	out := make([]models.Prediction, 0, f.horizon)
	for hour := 1; hour <= f.horizon; hour++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := working.Last().Timestamp.Add(Step)
		vec, err := f.builder.BuildNext(working, next)
		if err != nil {
			if errs.IsClientError(err) {
				return nil, fmt.Errorf("build features for hour %d: %v", hour, err)
			}
			return nil, fmt.Errorf("build features for hour %d: %w", hour, err)
		}

		raw, err := f.model.Predict(ctx, vec)
		if err != nil {
			if errs.KindOf(err) != errs.KindUnknown {
				return nil, fmt.Errorf("forecast hour %d: %w", hour, err)
			}
			return nil, errs.ModelInference(hour, err)
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return nil, errs.ModelInference(hour, fmt.Errorf("model returned non-finite value %v", raw))
		}
		predicted := math.Max(0, raw)

		if f.observer != nil {
			f.observer(hour, vec, predicted)
		}
		working = append(working, models.TimePoint{Timestamp: next, Value: predicted})
		out = append(out, models.Prediction{Datetime: next, PredictedPM25: predicted, ForecastHour: hour})
	}
	return out, nil
}
