package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/decision"
	"github.com/rxtech-lab/argo-strategy-engine/internal/indicator"
	"github.com/rxtech-lab/argo-strategy-engine/internal/signal"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

const MACDBollingerName = "macd_bollinger"

// Config groups the parameters of the MACD + Bollinger strategy.
type Config struct {
	Indicator indicator.Config `yaml:"indicator" json:"indicator" jsonschema:"title=Indicators,description=MACD and Bollinger Band parameters"`
	Decision  decision.Config  `yaml:"decision" json:"decision" jsonschema:"title=Decision Filter,description=Frozen filter that can veto crossings"`
	Signal    signal.Config    `yaml:"signal" json:"signal" jsonschema:"title=Signal,description=Crossing sources and tie-break policy"`
}

func DefaultConfig() Config {
	return Config{
		Indicator: indicator.DefaultConfig(),
		Decision:  decision.DefaultConfig(),
		Signal:    signal.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if err := c.Indicator.Validate(); err != nil {
		return err
	}

	if err := validator.New().Struct(c.Decision); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid decision config", err)
	}

	return c.Signal.Validate()
}

// MACDBollingerStrategy trades MACD and Bollinger crossings, vetoed by a
// frozen decision filter.
type MACDBollingerStrategy struct {
	window   *indicator.Window
	features *decision.FeatureWindow
	filter   decision.Filter
	combiner *signal.Combiner
	previous optional.Option[types.IndicatorSnapshot]
}

func NewMACDBollingerStrategy(config Config) (*MACDBollingerStrategy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	window, err := indicator.NewWindow(config.Indicator)
	if err != nil {
		return nil, err
	}

	features, err := decision.NewFeatureWindow(config.Decision.Window)
	if err != nil {
		return nil, err
	}

	filter, err := decision.NewFilter(config.Decision)
	if err != nil {
		return nil, err
	}

	combiner, err := signal.NewCombiner(config.Signal)
	if err != nil {
		return nil, err
	}

	return &MACDBollingerStrategy{
		window:   window,
		features: features,
		filter:   filter,
		combiner: combiner,
		previous: optional.None[types.IndicatorSnapshot](),
	}, nil
}

func (s *MACDBollingerStrategy) Name() string {
	return MACDBollingerName
}

// Filter is the decision filter in use.
func (s *MACDBollingerStrategy) Filter() decision.Filter {
	return s.filter
}

func (s *MACDBollingerStrategy) ComputeSnapshot(bar types.Bar) (optional.Option[types.IndicatorSnapshot], error) {
	snapshot := s.window.Update(bar)
	if snapshot.IsSome() {
		s.features.Push(snapshot.Unwrap())
	}

	return snapshot, nil
}

// Evaluate needs two consecutive snapshots to see a crossing, so the first
// snapshot always holds.
func (s *MACDBollingerStrategy) Evaluate(snapshot types.IndicatorSnapshot, position optional.Option[types.Position]) Signal {
	previous := s.previous
	s.previous = optional.Some(snapshot)

	if previous.IsNone() {
		return Hold()
	}

	classification := s.filter.Classify(s.features.Vector())
	action := s.combiner.Combine(snapshot, previous.Unwrap(), classification.Verdict, position)

	if action == types.ActionHold {
		return Hold()
	}

	confidence := 0.0
	if agrees(action, classification.Verdict) {
		confidence = classification.Confidence
	}

	return Signal{Action: action, Verdict: classification.Verdict, Confidence: confidence}
}

func agrees(action types.Action, verdict types.Verdict) bool {
	return (action == types.ActionBuy && verdict == types.VerdictBuyBias) ||
		(action == types.ActionSell && verdict == types.VerdictSellBias)
}

// Warmup is the indicator warmup plus one bar, since a crossing needs a
// previous snapshot.
func (s *MACDBollingerStrategy) Warmup() int {
	return s.window.Warmup() + 1
}

func (s *MACDBollingerStrategy) Reset() {
	s.window.Reset()
	s.features.Reset()
	s.previous = optional.None[types.IndicatorSnapshot]()
}
