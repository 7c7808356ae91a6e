package decision

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/internal/version"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Rule maps a single feature comparison onto a verdict.
type Rule struct {
	Feature    string        `yaml:"feature" validate:"required"`
	Operator   string        `yaml:"operator" validate:"oneof=> >= < <="`
	Value      float64       `yaml:"value"`
	Verdict    types.Verdict `yaml:"verdict" validate:"oneof=BUY_BIAS SELL_BIAS NEUTRAL"`
	Confidence float64       `yaml:"confidence" validate:"gte=0,lte=1"`
}

// RuleSet is an ordered rule table. The first matching rule wins.
type RuleSet struct {
	Name          string `yaml:"name" validate:"required"`
	EngineVersion string `yaml:"engine_version" validate:"required"`
	Window        int    `yaml:"window" validate:"gt=0"`
	Rules         []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

// LoadRuleSet reads and validates a rule table file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidModel, err, "failed to read rule set %s", path)
	}

	var rules RuleSet
	if err := yaml.UnmarshalStrict(data, &rules); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidModel, "failed to parse rule set", err)
	}

	if err := validator.New().Struct(&rules); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidModel, "invalid rule set", err)
	}

	if err := version.CheckCompatibility(version.GetVersion(), rules.EngineVersion); err != nil {
		return nil, err
	}

	return &rules, nil
}

type compiledRule struct {
	Rule
	index int
}

// RuleFilter evaluates a rule table against named features.
type RuleFilter struct {
	name  string
	size  int
	rules []compiledRule
}

// NewRuleFilter resolves every rule's feature name against the window layout.
func NewRuleFilter(set *RuleSet, window int) (*RuleFilter, error) {
	if set.Window != window {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "decision window is %d but rule set %s uses %d", window, set.Name, set.Window)
	}

	names := FeatureNames(window)
	index := make(map[string]int, len(names))

	for i, n := range names {
		index[n] = i
	}

	compiled := make([]compiledRule, 0, len(set.Rules))

	for _, r := range set.Rules {
		i, ok := index[r.Feature]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidModel, "rule set %s references unknown feature %q", set.Name, r.Feature)
		}

		compiled = append(compiled, compiledRule{Rule: r, index: i})
	}

	return &RuleFilter{name: set.Name, size: len(names), rules: compiled}, nil
}

func (f *RuleFilter) Name() string {
	return f.name
}

func (f *RuleFilter) Classify(features types.FeatureVector) types.Classification {
	if !features.Complete || len(features.Values) != f.size {
		return types.Neutral()
	}

	for _, r := range f.rules {
		if r.matches(features.Values[r.index]) {
			if r.Verdict == types.VerdictNeutral {
				return types.Neutral()
			}

			return types.Classification{Verdict: r.Verdict, Confidence: r.Confidence}
		}
	}

	return types.Neutral()
}

func (r compiledRule) matches(v float64) bool {
	switch r.Operator {
	case ">":
		return v > r.Value
	case ">=":
		return v >= r.Value
	case "<":
		return v < r.Value
	case "<=":
		return v <= r.Value
	default:
		return false
	}
}
