// Package model wraps a pre-trained PM2.5 regressor behind a single
// Predict call and binds it to the feature column list it was trained on.
package model

import (
	"context"
	"fmt"
	"time"

	"pm25cast/internal/errs"
	"pm25cast/internal/metrics"
	"pm25cast/internal/models"
)

// Regressor is an opaque trained model: an ordered feature vector in, a
// scalar out. Implementations must be safe for concurrent use.
type Regressor interface {
	Kind() string
	// FeatureNames returns the columns the regressor was trained on, in
	// order, or nil when the artifact does not record them.
	FeatureNames() []string
	// NumFeatures is the input width the regressor was trained on.
	NumFeatures() int
	Predict(ctx context.Context, x []float64) (float64, error)
}

// Adapter is the model boundary used by the forecast loop.
type Adapter struct {
	reg     Regressor
	columns []string
}

// NewAdapter validates that the regressor and the column list agree in count
// and order.
func NewAdapter(reg Regressor, columns []string) (*Adapter, error) {
	if len(columns) == 0 {
		return nil, errs.SchemaMismatch("feature column list is empty")
	}
	if n := reg.NumFeatures(); n != len(columns) {
		return nil, errs.SchemaMismatch(fmt.Sprintf("%s model expects %d features, column list has %d", reg.Kind(), n, len(columns)))
	}
	if names := reg.FeatureNames(); names != nil {
		if err := sameColumns(names, columns); err != nil {
			return nil, errs.SchemaMismatch(fmt.Sprintf("%s model and column list disagree: %v", reg.Kind(), err))
		}
	}
	return &Adapter{reg: reg, columns: append([]string(nil), columns...)}, nil
}

func (a *Adapter) Columns() []string { return append([]string(nil), a.columns...) }

func (a *Adapter) Kind() string { return a.reg.Kind() }

// Predict checks the vector against the bound columns before calling the
// regressor. Regressor failures are reported as ModelInferenceError.
func (a *Adapter) Predict(ctx context.Context, v models.FeatureVector) (float64, error) {
	if len(v.Values) != len(v.Names) {
		return 0, errs.SchemaMismatch(fmt.Sprintf("vector has %d names and %d values", len(v.Names), len(v.Values)))
	}
	if err := sameColumns(v.Names, a.columns); err != nil {
		return 0, errs.SchemaMismatch(fmt.Sprintf("feature vector does not match model columns: %v", err))
	}

	start := time.Now()
	y, err := a.reg.Predict(ctx, v.Values)
	metrics.RecordInference(a.reg.Kind(), time.Since(start), err)
	if err != nil {
		return 0, errs.ModelInference(0, err)
	}
	return y, nil
}

func sameColumns(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%d features, expected %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("position %d is %q, expected %q", i, got[i], want[i])
		}
	}
	return nil
}
