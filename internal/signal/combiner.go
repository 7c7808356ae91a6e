// Package signal merges indicator crossings with the decision filter's
// verdict into one action per bar.
package signal

import (
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

type Source string

const (
	SourceMACD      Source = "macd"
	SourceBollinger Source = "bollinger"
)

// TieBreak decides what happens when a crossing and the filter disagree.
type TieBreak string

const (
	// TieBreakFilterVeto turns a disagreement into HOLD.
	TieBreakFilterVeto TieBreak = "filter_veto"
	// TieBreakCrossingWins ignores the filter verdict.
	TieBreakCrossingWins TieBreak = "crossing_wins"
)

type Config struct {
	Sources  []Source `yaml:"sources" json:"sources" jsonschema:"title=Crossing Sources,description=Indicator crossings that can trigger an action,default=macd,default=bollinger" validate:"required,min=1,unique,dive,oneof=macd bollinger"`
	TieBreak TieBreak `yaml:"tie_break" json:"tie_break" jsonschema:"title=Tie Break,description=Policy when a crossing and the filter verdict disagree,enum=filter_veto,enum=crossing_wins,default=filter_veto" validate:"oneof=filter_veto crossing_wins"`
}

func DefaultConfig() Config {
	return Config{
		Sources:  []Source{SourceMACD, SourceBollinger},
		TieBreak: TieBreakFilterVeto,
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid signal config", err)
	}

	return nil
}

// Crossing is the direction a pair of consecutive snapshots crossed in.
type Crossing int

const (
	CrossingNone Crossing = iota
	CrossingBuy
	CrossingSell
)

// Combiner is stateless. Callers hand it the previous snapshot.
type Combiner struct {
	macd      bool
	bollinger bool
	tieBreak  TieBreak
}

func NewCombiner(config Config) (*Combiner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Combiner{
		macd:      slices.Contains(config.Sources, SourceMACD),
		bollinger: slices.Contains(config.Sources, SourceBollinger),
		tieBreak:  config.TieBreak,
	}, nil
}

// Detect returns the crossing between prev and cur from the enabled sources.
// A bar that crosses both ways is treated as no crossing.
func (c *Combiner) Detect(cur, prev types.IndicatorSnapshot) Crossing {
	buy, sell := false, false

	if c.macd {
		prevSpread := prev.MACDLine - prev.SignalLine
		curSpread := cur.MACDLine - cur.SignalLine

		if prevSpread <= 0 && curSpread > 0 {
			buy = true
		}

		if prevSpread >= 0 && curSpread < 0 {
			sell = true
		}
	}

	if c.bollinger {
		if prev.Close >= prev.BBLower && cur.Close < cur.BBLower {
			buy = true
		}

		if prev.Close <= prev.BBUpper && cur.Close > cur.BBUpper {
			sell = true
		}
	}

	switch {
	case buy && sell:
		return CrossingNone
	case buy:
		return CrossingBuy
	case sell:
		return CrossingSell
	default:
		return CrossingNone
	}
}

// Combine maps a crossing and a verdict onto an action. The filter can only
// veto. It never triggers a trade on its own.
func (c *Combiner) Combine(cur, prev types.IndicatorSnapshot, verdict types.Verdict, position optional.Option[types.Position]) types.Action {
	hasPosition := position.IsSome()

	switch c.Detect(cur, prev) {
	case CrossingBuy:
		if hasPosition || !c.agrees(verdict, types.VerdictSellBias) {
			return types.ActionHold
		}

		return types.ActionBuy
	case CrossingSell:
		if !hasPosition || !c.agrees(verdict, types.VerdictBuyBias) {
			return types.ActionHold
		}

		return types.ActionSell
	default:
		return types.ActionHold
	}
}

func (c *Combiner) agrees(verdict, opposing types.Verdict) bool {
	if c.tieBreak == TieBreakCrossingWins {
		return true
	}

	return verdict != opposing
}
