// Package decision holds the frozen decision filters that bias or veto
// indicator crossings. Filters are pure: the same feature vector always
// yields the same classification, and no filter keeps per-call state.
package decision

import (
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Filter classifies a feature vector into a trading bias.
type Filter interface {
	// Classify returns NEUTRAL for incomplete vectors.
	Classify(features types.FeatureVector) types.Classification
	Name() string
}

type FilterType string

const (
	FilterTypeNeutral FilterType = "neutral"
	FilterTypeTree    FilterType = "tree"
	FilterTypeRules   FilterType = "rules"
)

// Config selects and parameterizes the decision filter.
type Config struct {
	// Window is the number of snapshots in each feature vector.
	Window int        `yaml:"window" json:"window" jsonschema:"title=Decision Window,description=Number of indicator snapshots per feature vector,minimum=1,default=5" validate:"gt=0"`
	Filter FilterType `yaml:"filter" json:"filter" jsonschema:"title=Filter,description=Decision filter implementation,enum=neutral,enum=tree,enum=rules,default=neutral" validate:"oneof=neutral tree rules"`
	// ModelPath points to a frozen model file for the tree and rules filters.
	ModelPath string `yaml:"model_path" json:"model_path" jsonschema:"title=Model Path,description=Path to the frozen tree or rules YAML file"`
	// PredictionThreshold overrides the model's threshold when positive.
	PredictionThreshold float64 `yaml:"prediction_threshold" json:"prediction_threshold" jsonschema:"title=Prediction Threshold,description=Minimum class probability for a bias,minimum=0,maximum=1,default=0.6" validate:"gte=0,lte=1"`
}

// DefaultConfig disables the filter with a five snapshot window.
func DefaultConfig() Config {
	return Config{
		Window:              5,
		Filter:              FilterTypeNeutral,
		ModelPath:           "",
		PredictionThreshold: 0.6,
	}
}

// NewFilter builds the filter selected by config. Model files are loaded and
// validated here so a bad model fails before any bar is processed.
func NewFilter(config Config) (Filter, error) {
	if config.Window <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "decision window must be a positive integer, got %d", config.Window)
	}

	switch config.Filter {
	case FilterTypeNeutral, "":
		return NewNeutralFilter(), nil
	case FilterTypeTree:
		if config.ModelPath == "" {
			return nil, errors.New(errors.ErrCodeMissingParameter, "tree filter requires model_path")
		}

		model, err := LoadTreeModel(config.ModelPath)
		if err != nil {
			return nil, err
		}

		return NewTreeFilter(model, config.Window, config.PredictionThreshold)
	case FilterTypeRules:
		if config.ModelPath == "" {
			return nil, errors.New(errors.ErrCodeMissingParameter, "rules filter requires model_path")
		}

		rules, err := LoadRuleSet(config.ModelPath)
		if err != nil {
			return nil, err
		}

		return NewRuleFilter(rules, config.Window)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown decision filter %q", config.Filter)
	}
}

// NeutralFilter never expresses a bias.
type NeutralFilter struct{}

func NewNeutralFilter() *NeutralFilter {
	return &NeutralFilter{}
}

func (f *NeutralFilter) Classify(types.FeatureVector) types.Classification {
	return types.Neutral()
}

func (f *NeutralFilter) Name() string {
	return string(FilterTypeNeutral)
}
