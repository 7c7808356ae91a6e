package decision

import (
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/internal/version"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"gopkg.in/yaml.v2"
)

// TreeNode is one node of a frozen binary decision tree. Internal nodes send
// x[Feature] <= Threshold to Left and everything else to Right. Leaves carry
// the probability that the next move is up.
type TreeNode struct {
	Leaf        bool    `yaml:"leaf"`
	Feature     int     `yaml:"feature" validate:"gte=0"`
	Threshold   float64 `yaml:"threshold"`
	Left        int     `yaml:"left"`
	Right       int     `yaml:"right"`
	Probability float64 `yaml:"probability" validate:"gte=0,lte=1"`
}

// Scaler standardizes features as (x - mean) / scale before the tree sees them.
type Scaler struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

// TreeModel is the frozen output of offline training.
type TreeModel struct {
	Name string `yaml:"name" validate:"required"`
	// EngineVersion is the engine version the model was exported for.
	EngineVersion string     `yaml:"engine_version" validate:"required"`
	Window        int        `yaml:"window" validate:"gt=0"`
	Features      []string   `yaml:"features" validate:"required,min=1"`
	Scaler        Scaler     `yaml:"scaler"`
	Threshold     float64    `yaml:"threshold" validate:"gte=0,lte=1"`
	Nodes         []TreeNode `yaml:"nodes" validate:"required,min=1,dive"`
}

// LoadTreeModel reads and validates a model file.
func LoadTreeModel(path string) (*TreeModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidModel, err, "failed to read tree model %s", path)
	}

	return ParseTreeModel(data)
}

// ParseTreeModel decodes a YAML model and checks it is structurally sound and
// compatible with this engine.
func ParseTreeModel(data []byte) (*TreeModel, error) {
	var model TreeModel
	if err := yaml.UnmarshalStrict(data, &model); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidModel, "failed to parse tree model", err)
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	return &model, nil
}

// Validate checks the model shape. Child indices must point forward so every
// walk terminates.
func (m *TreeModel) Validate() error {
	if err := validator.New().Struct(m); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidModel, "invalid tree model", err)
	}

	if err := version.CheckCompatibility(version.GetVersion(), m.EngineVersion); err != nil {
		return err
	}

	expected := FeatureNames(m.Window)
	if len(expected) != len(m.Features) {
		return errors.Newf(errors.ErrCodeInvalidModel, "model %s expects %d features, a window of %d produces %d",
			m.Name, len(m.Features), m.Window, len(expected))
	}

	for i, name := range expected {
		if m.Features[i] != name {
			return errors.Newf(errors.ErrCodeInvalidModel, "model %s feature %d is %q, expected %q", m.Name, i, m.Features[i], name)
		}
	}

	if len(m.Scaler.Mean) != 0 || len(m.Scaler.Scale) != 0 {
		if len(m.Scaler.Mean) != len(m.Features) || len(m.Scaler.Scale) != len(m.Features) {
			return errors.Newf(errors.ErrCodeInvalidModel, "model %s scaler must have %d means and scales", m.Name, len(m.Features))
		}
	}

	for i, node := range m.Nodes {
		if node.Leaf {
			continue
		}

		if node.Feature >= len(m.Features) {
			return errors.Newf(errors.ErrCodeInvalidModel, "node %d splits on feature %d of %d", i, node.Feature, len(m.Features))
		}

		if node.Left <= i || node.Right <= i || node.Left >= len(m.Nodes) || node.Right >= len(m.Nodes) {
			return errors.Newf(errors.ErrCodeInvalidModel, "node %d has invalid children %d/%d", i, node.Left, node.Right)
		}
	}

	return nil
}

// predict walks the tree and returns the leaf's up probability.
func (m *TreeModel) predict(x []float64) float64 {
	i := 0

	for {
		node := m.Nodes[i]
		if node.Leaf {
			return node.Probability
		}

		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

func (m *TreeModel) scale(values []float64) []float64 {
	if len(m.Scaler.Mean) == 0 {
		return values
	}

	out := make([]float64, len(values))

	for i, v := range values {
		s := m.Scaler.Scale[i]
		if s == 0 {
			s = 1
		}

		out[i] = (v - m.Scaler.Mean[i]) / s
	}

	return out
}

// TreeFilter classifies with a frozen decision tree.
type TreeFilter struct {
	model     *TreeModel
	threshold float64
}

// NewTreeFilter wraps model. A positive threshold overrides the model's own;
// the effective threshold must be at least 0.5 so both biases cannot fire.
func NewTreeFilter(model *TreeModel, window int, threshold float64) (*TreeFilter, error) {
	if model.Window != window {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "decision window is %d but model %s was trained on %d", window, model.Name, model.Window)
	}

	effective := model.Threshold
	if threshold > 0 {
		effective = threshold
	}

	if effective < 0.5 || effective > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "prediction threshold must be in [0.5, 1], got %v", effective)
	}

	return &TreeFilter{model: model, threshold: effective}, nil
}

func (f *TreeFilter) Name() string {
	return f.model.Name
}

// Classify returns BUY_BIAS when P(up) exceeds the threshold, SELL_BIAS when
// P(down) does, NEUTRAL otherwise. Confidence is how far past the threshold
// the winning probability is, scaled to [0, 1].
func (f *TreeFilter) Classify(features types.FeatureVector) types.Classification {
	if !features.Complete || len(features.Values) != len(f.model.Features) {
		return types.Neutral()
	}

	for _, v := range features.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Neutral()
		}
	}

	up := f.model.predict(f.model.scale(features.Values))
	down := 1 - up

	switch {
	case up > f.threshold:
		return types.Classification{Verdict: types.VerdictBuyBias, Confidence: f.confidence(up)}
	case down > f.threshold:
		return types.Classification{Verdict: types.VerdictSellBias, Confidence: f.confidence(down)}
	default:
		return types.Neutral()
	}
}

func (f *TreeFilter) confidence(p float64) float64 {
	if f.threshold >= 1 {
		return 1
	}

	return math.Min(1, math.Max(0, (p-f.threshold)/(1-f.threshold)))
}
