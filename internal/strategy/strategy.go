// Package strategy defines the capability interface the drivers run, and the
// MACD + Bollinger strategy that implements it.
package strategy

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
)

// Signal is a strategy's per-bar proposal. Confidence comes from the decision
// filter and is 0 when the filter had no opinion.
type Signal struct {
	Action     types.Action
	Verdict    types.Verdict
	Confidence float64
}

// Hold is the signal for bars without a trade.
func Hold() Signal {
	return Signal{Action: types.ActionHold, Verdict: types.VerdictNeutral, Confidence: 0}
}

// Strategy turns bars into snapshots and snapshots into signals. Strategies
// are stateful and must be Reset before reuse.
type Strategy interface {
	Name() string
	// ComputeSnapshot folds bar into the strategy's indicators and returns
	// None while they warm up.
	ComputeSnapshot(bar types.Bar) (optional.Option[types.IndicatorSnapshot], error)
	// Evaluate decides on the snapshot just computed. It must only use data up
	// to and including the snapshot's bar.
	Evaluate(snapshot types.IndicatorSnapshot, position optional.Option[types.Position]) Signal
	// Warmup is the number of bars before the first snapshot.
	Warmup() int
	Reset()
}
