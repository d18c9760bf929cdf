package model

import (
	"context"
	"fmt"
)

// LinearModel is y = intercept + sum(coef[i] * x[i]).
type LinearModel struct {
	names     []string
	intercept float64
	coef      []float64
}

func NewLinearModel(names []string, intercept float64, coef []float64) (*LinearModel, error) {
	if len(coef) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	if names != nil && len(names) != len(coef) {
		return nil, fmt.Errorf("linear model has %d feature names but %d coefficients", len(names), len(coef))
	}
	return &LinearModel{names: names, intercept: intercept, coef: coef}, nil
}

func (m *LinearModel) Kind() string { return KindLinear }

func (m *LinearModel) FeatureNames() []string { return m.names }

func (m *LinearModel) NumFeatures() int { return len(m.coef) }

func (m *LinearModel) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.coef), len(x))
	}
	y := m.intercept
	for i, c := range m.coef {
		y += c * x[i]
	}
	return y, nil
}
