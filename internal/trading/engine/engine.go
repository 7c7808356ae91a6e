package engine

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	tradingprovider "github.com/rxtech-lab/argo-strategy-engine/internal/trading/provider"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Lifecycle callback types for live trading phases.
// All callbacks with error return can abort execution if they return an error.

// OnEngineStartCallback is called once the broker is reachable and warmup is done.
type OnEngineStartCallback func(runID string, symbol string, warmupBars int) error

// OnEngineStopCallback is called when the engine stops (always called via defer).
type OnEngineStopCallback func(report types.BacktestReport, err error)

// OnMarketDataCallback is called after each live bar went through the pipeline.
type OnMarketDataCallback func(runID string, bar types.Bar, account types.AccountState) error

// OnOrderCallback is called when an order is placed and again when it ends.
type OnOrderCallback func(order types.Order) error

// OnTradeCallback is called when a position is closed.
type OnTradeCallback func(trade types.TradeRecord) error

// OnVetoCallback is called when the risk manager blocks an action.
type OnVetoCallback func(veto types.RiskVeto) error

// OnErrorCallback is called when a non-fatal error occurs, such as a skipped bar.
type OnErrorCallback func(err error)

// OnStatusUpdateCallback is called when engine status changes.
type OnStatusUpdateCallback func(status Status) error

// LiveTradingCallbacks holds all lifecycle callback functions for the live trading engine.
// All fields are pointers - nil means no callback will be invoked.
// OnOrder, OnTrade and OnVeto run while the engine holds its lock, so they
// must not call back into Status or Report. The lock is released while the
// broker places an order.
type LiveTradingCallbacks struct {
	OnEngineStart  *OnEngineStartCallback
	OnEngineStop   *OnEngineStopCallback
	OnMarketData   *OnMarketDataCallback
	OnOrder        *OnOrderCallback
	OnTrade        *OnTradeCallback
	OnVeto         *OnVetoCallback
	OnError        *OnErrorCallback
	OnStatusUpdate *OnStatusUpdateCallback
}

type EngineState string

const (
	EngineStateIdle    EngineState = "idle"
	EngineStateWarmup  EngineState = "warmup"
	EngineStateRunning EngineState = "running"
	EngineStateStopped EngineState = "stopped"
)

// Status is a point-in-time view of a live run, safe to hand to other goroutines.
type Status struct {
	RunID         string                     `json:"run_id"`
	Symbol        string                     `json:"symbol"`
	Broker        string                     `json:"broker"`
	State         EngineState                `json:"state"`
	Account       types.AccountState         `json:"account"`
	BarsProcessed int                        `json:"bars_processed"`
	SkippedBars   int                        `json:"skipped_bars"`
	LastBar       optional.Option[time.Time] `json:"last_bar"`
}

// LiveTradingEngineConfig holds the configuration for the live trading engine.
type LiveTradingEngineConfig struct {
	Engine config.EngineConfig `yaml:"engine" json:"engine" jsonschema:"title=Engine,description=Strategy risk and execution settings"`

	// MaxConsecutiveSkips stops the run after this many rejected bars in a row. 0 never stops.
	MaxConsecutiveSkips int `yaml:"max_consecutive_skips" json:"max_consecutive_skips" jsonschema:"title=Max Consecutive Skips,description=Stop after this many rejected bars in a row (0 never stops),minimum=0" validate:"gte=0"`

	// StatusAddr is the listen address of the read-only status endpoint. Empty disables it.
	StatusAddr string `yaml:"status_addr" json:"status_addr" jsonschema:"title=Status Address,description=Listen address of the status endpoint (empty disables it)"`
}

// DefaultLiveTradingEngineConfig returns the live defaults around config.DefaultConfig.
func DefaultLiveTradingEngineConfig() LiveTradingEngineConfig {
	return LiveTradingEngineConfig{
		Engine:              config.DefaultConfig(),
		MaxConsecutiveSkips: 0,
		StatusAddr:          "",
	}
}

// Validate checks the embedded engine config and the live settings.
func (c LiveTradingEngineConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.MaxConsecutiveSkips < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "max_consecutive_skips must not be negative, got %d", c.MaxConsecutiveSkips)
	}

	return nil
}

// GetConfigSchema returns the JSON schema for LiveTradingEngineConfig.
func GetConfigSchema() (string, error) {
	data, err := json.MarshalIndent(config.NewSchemaReflector().Reflect(&LiveTradingEngineConfig{}), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal live config schema", err)
	}

	return string(data), nil
}

// LiveTradingEngine runs the decision pipeline on a live bar stream and
// routes every order through a broker.
type LiveTradingEngine interface {
	// SetBroker configures the venue orders are placed with.
	SetBroker(broker tradingprovider.Broker) error

	// SetWarmupSource sets historical bars replayed through the indicators
	// before the first live bar. No orders are placed for them.
	SetWarmupSource(bars iter.Seq2[types.Bar, error])

	// Run consumes bars until the source ends, ctx is cancelled or a fatal
	// error occurs.
	Run(ctx context.Context, bars iter.Seq2[types.Bar, error], callbacks LiveTradingCallbacks) error

	// Status returns a snapshot of the current run. Safe to call while Run is active.
	Status() Status

	// Report returns the report of the current run so far. Safe to call while Run is active.
	Report() types.BacktestReport

	// GetConfigSchema returns the JSON schema for engine configuration.
	GetConfigSchema() (string, error)
}
