// Package scripted provides a strategy that replays planned actions, for
// driver tests that need crossings at exact bars.
package scripted

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
)

const StrategyName = "scripted"

// Strategy emits pre-planned actions by bar number (1-based) and holds
// otherwise. Every bar yields a snapshot, so there is no warmup.
type Strategy struct {
	Actions    map[int]types.Action
	Confidence float64

	bar       int
	Evaluated []types.IndicatorSnapshot
}

func NewStrategy(actions map[int]types.Action) *Strategy {
	return &Strategy{Actions: actions}
}

// Register adds the script to registry under StrategyName. Each Create
// returns the same instance so tests can inspect it.
func (s *Strategy) Register(registry strategy.Registry) error {
	return registry.Register(StrategyName, func(strategy.Config) (strategy.Strategy, error) {
		return s, nil
	})
}

func (s *Strategy) Name() string {
	return StrategyName
}

func (s *Strategy) ComputeSnapshot(bar types.Bar) (optional.Option[types.IndicatorSnapshot], error) {
	s.bar++

	return optional.Some(types.IndicatorSnapshot{Time: bar.Time, Close: bar.Close}), nil
}

func (s *Strategy) Evaluate(snapshot types.IndicatorSnapshot, _ optional.Option[types.Position]) strategy.Signal {
	s.Evaluated = append(s.Evaluated, snapshot)

	action, ok := s.Actions[s.bar]
	if !ok || action == types.ActionHold {
		return strategy.Hold()
	}

	return strategy.Signal{Action: action, Verdict: types.VerdictNeutral, Confidence: s.Confidence}
}

func (s *Strategy) Warmup() int {
	return 0
}

func (s *Strategy) Reset() {
	s.bar = 0
	s.Evaluated = nil
}
