package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
	KindRemote       = "remote"
)

// Artifact is the on-disk form of a trained model. JSON exports parse too,
// since JSON is valid YAML.
type Artifact struct {
	Kind     string   `yaml:"kind"`
	Features []string `yaml:"features"`

	// linear
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`

	// tree_ensemble
	NFeatures    int     `yaml:"n_features"`
	Trees        []Tree  `yaml:"trees"`
	Aggregation  string  `yaml:"aggregation"`
	BaseScore    float64 `yaml:"base_score"`
	LearningRate float64 `yaml:"learning_rate"`
}

func ParseArtifact(data []byte) (Regressor, error) {
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	return a.Regressor()
}

func (a *Artifact) Regressor() (Regressor, error) {
	switch a.Kind {
	case KindLinear:
		return NewLinearModel(a.Features, a.Intercept, a.Coefficients)
	case KindTreeEnsemble:
		return NewTreeEnsemble(a.Features, a.NFeatures, a.Trees, a.Aggregation, a.BaseScore, a.LearningRate)
	case "":
		return nil, fmt.Errorf("model artifact has no kind")
	default:
		return nil, fmt.Errorf("unsupported model kind %q", a.Kind)
	}
}

// ParseColumns accepts either a bare list of names or a mapping with a
// "columns" key.
func ParseColumns(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return checkColumns(list)
	}

	var doc struct {
		Columns []string `yaml:"columns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feature columns: %w", err)
	}
	return checkColumns(doc.Columns)
}

func checkColumns(cols []string) ([]string, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("feature column list is empty")
	}
	for i, c := range cols {
		if c == "" {
			return nil, fmt.Errorf("feature column %d is blank", i)
		}
	}
	return cols, nil
}
