package model

import (
	"context"
	"fmt"
)

// Tree is a regression tree in the flat layout scikit-learn exports:
// node i splits on Feature[i] at Threshold[i], going Left when
// x <= threshold. Leaves have Left == Right == -1.
type Tree struct {
	Feature   []int     `yaml:"feature" json:"feature"`
	Threshold []float64 `yaml:"threshold" json:"threshold"`
	Left      []int     `yaml:"left" json:"left"`
	Right     []int     `yaml:"right" json:"right"`
	Value     []float64 `yaml:"value" json:"value"`
}

const leaf = -1

func (t *Tree) validate(nFeatures int) error {
	n := len(t.Value)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Feature) != n || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.Left[i], t.Right[i]
		if l == leaf && r == leaf {
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, t.Feature[i], nFeatures)
		}
	}
	return nil
}

// eval assumes validate has passed; children always point forward so the
// walk terminates.
func (t *Tree) eval(x []float64) float64 {
	i := 0
	for t.Left[i] != leaf {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.Left[i]
		} else {
			i = t.Right[i]
		}
	}
	return t.Value[i]
}

const (
	AggregateMean = "mean"
	AggregateSum  = "sum"
)

// TreeEnsemble covers random forests (mean of trees) and gradient boosting
// (base score plus learning-rate-scaled sum of trees).
type TreeEnsemble struct {
	names        []string
	nFeatures    int
	trees        []Tree
	aggregation  string
	baseScore    float64
	learningRate float64
}

func NewTreeEnsemble(names []string, nFeatures int, trees []Tree, aggregation string, baseScore, learningRate float64) (*TreeEnsemble, error) {
	if names != nil {
		nFeatures = len(names)
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("tree ensemble needs a positive feature count")
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("tree ensemble has no trees")
	}
	switch aggregation {
	case "":
		aggregation = AggregateMean
	case AggregateMean, AggregateSum:
	default:
		return nil, fmt.Errorf("unknown aggregation %q", aggregation)
	}
	if aggregation == AggregateSum && learningRate == 0 {
		learningRate = 1
	}
	for i := range trees {
		if err := trees[i].validate(nFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &TreeEnsemble{
		names:        names,
		nFeatures:    nFeatures,
		trees:        trees,
		aggregation:  aggregation,
		baseScore:    baseScore,
		learningRate: learningRate,
	}, nil
}

func (m *TreeEnsemble) Kind() string { return KindTreeEnsemble }

func (m *TreeEnsemble) FeatureNames() []string { return m.names }

func (m *TreeEnsemble) NumFeatures() int { return m.nFeatures }

func (m *TreeEnsemble) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != m.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", m.nFeatures, len(x))
	}
	var sum float64
	for i := range m.trees {
		sum += m.trees[i].eval(x)
	}
	if m.aggregation == AggregateSum {
		return m.baseScore + m.learningRate*sum, nil
	}
	return sum / float64(len(m.trees)), nil
}
