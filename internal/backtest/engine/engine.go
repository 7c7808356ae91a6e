package engine

import (
	"context"
	"iter"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
)

// Lifecycle callback types for a replay run.
// All callbacks with error return can abort execution if they return an error.

// OnRunStartCallback is called once before the first bar is read.
type OnRunStartCallback func(runID string, symbol string) error

// OnRunEndCallback is called when the run finishes (always called via defer).
// report holds whatever was settled before err, if any.
type OnRunEndCallback func(report types.BacktestReport, err error)

// OnBarCallback is called after every processed bar with the account marked
// to the bar's close. index counts processed bars from 1.
type OnBarCallback func(index int, bar types.Bar, account types.AccountState) error

// OnOrderCallback is called whenever an order is created or changes status.
type OnOrderCallback func(order types.Order) error

// OnTradeCallback is called when a position closes.
type OnTradeCallback func(trade types.TradeRecord) error

// OnVetoCallback is called when the risk manager turns an action into a HOLD.
type OnVetoCallback func(veto types.RiskVeto) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnRunStart *OnRunStartCallback
	OnRunEnd   *OnRunEndCallback
	OnBar      *OnBarCallback
	OnOrder    *OnOrderCallback
	OnTrade    *OnTradeCallback
	OnVeto     *OnVetoCallback
}

type Engine interface {
	// Run replays bars through the strategy, risk and execution pipeline and
	// returns the settled report. The context is checked between bars.
	// Run is not reentrant: a second concurrent call fails with ErrCodeEngineBusy.
	Run(ctx context.Context, bars iter.Seq2[types.Bar, error], callbacks LifecycleCallbacks) (types.BacktestReport, error)
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
