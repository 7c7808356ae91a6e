package engine_v1

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/pipeline"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/trading/engine"
	tradingprovider "github.com/rxtech-lab/argo-strategy-engine/internal/trading/provider"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// LiveTradingEngineV1 implements the LiveTradingEngine interface for real-time trading.
// Bars are processed one at a time; Status and Report may be called from
// other goroutines while Run is active.
type LiveTradingEngineV1 struct {
	config  engine.LiveTradingEngineConfig
	log     *logger.Logger
	running atomic.Bool

	// mu guards everything below.
	mu       sync.RWMutex
	pipeline *pipeline.Pipeline
	broker   tradingprovider.Broker
	warmup   iter.Seq2[types.Bar, error]
	state    engine.EngineState
	skipped  int
	lastBar  optional.Option[time.Time]
}

var _ engine.LiveTradingEngine = (*LiveTradingEngineV1)(nil)

// NewLiveTradingEngineV1 creates the engine for config with its strategy
// taken from registry. A nil registry uses the built-in strategies.
func NewLiveTradingEngineV1(config engine.LiveTradingEngineConfig, registry strategy.Registry, log *logger.Logger) (*LiveTradingEngineV1, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if registry == nil {
		registry = strategy.DefaultRegistry()
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	strat, err := registry.Create(config.Engine.Strategy, config.Engine.StrategyConfig())
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(config.Engine, strat, log)
	if err != nil {
		return nil, err
	}

	return &LiveTradingEngineV1{
		config:   config,
		log:      log.Named("live"),
		pipeline: p,
		state:    engine.EngineStateIdle,
		lastBar:  optional.None[time.Time](),
	}, nil
}

func (e *LiveTradingEngineV1) SetBroker(broker tradingprovider.Broker) error {
	if broker == nil {
		return errors.New(errors.ErrCodeMissingParameter, "broker must not be nil")
	}

	if e.running.Load() {
		return errors.New(errors.ErrCodeEngineBusy, "cannot change broker while running")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.broker = broker

	return nil
}

func (e *LiveTradingEngineV1) SetWarmupSource(bars iter.Seq2[types.Bar, error]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.warmup = bars
}

func (e *LiveTradingEngineV1) GetConfigSchema() (string, error) {
	return engine.GetConfigSchema()
}

func (e *LiveTradingEngineV1) Status() engine.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := engine.Status{
		RunID:         e.pipeline.RunID(),
		Symbol:        e.config.Engine.Symbol,
		State:         e.state,
		Account:       *e.pipeline.Account(),
		BarsProcessed: e.pipeline.BarsProcessed(),
		SkippedBars:   e.skipped,
		LastBar:       e.lastBar,
	}

	if e.broker != nil {
		status.Broker = e.broker.Name()
	}

	return status
}

func (e *LiveTradingEngineV1) Report() types.BacktestReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.pipeline.Report()
}

// Run starts the live trading engine. It blocks until bars ends or ctx is
// cancelled, which are both a clean stop, or until a fatal error. An open
// position is left open on stop.
func (e *LiveTradingEngineV1) Run(ctx context.Context, bars iter.Seq2[types.Bar, error], callbacks engine.LiveTradingCallbacks) (runErr error) {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New(errors.ErrCodeEngineBusy, "live trading engine is already running")
	}
	defer e.running.Store(false)

	if err := e.preRunCheck(); err != nil {
		return err
	}

	runID := e.config.Engine.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	e.mu.Lock()
	e.pipeline.Reset(runID)
	e.pipeline.SetBroker(unlockedBroker{engine: e, broker: e.broker})
	e.pipeline.SetObserver(callbackObserver{callbacks: callbacks})
	e.skipped = 0
	e.lastBar = optional.None[time.Time]()
	warmup := e.warmup
	e.mu.Unlock()

	// Always call OnEngineStop when Run exits
	defer func() {
		e.setState(engine.EngineStateStopped, callbacks)

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(e.Report(), runErr)
		}
	}()

	if err := e.broker.CheckConnection(ctx); err != nil {
		return errors.Collaborator(err, "broker %s is not reachable", e.broker.Name())
	}

	warmed, err := e.runWarmup(ctx, warmup, callbacks)
	if err != nil {
		return err
	}

	e.log.Info("Live trading started",
		zap.String("run_id", runID),
		zap.String("symbol", e.config.Engine.Symbol),
		zap.String("strategy", e.config.Engine.Strategy),
		zap.String("broker", e.broker.Name()),
		zap.Int("warmup_bars", warmed),
	)

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(runID, e.config.Engine.Symbol, warmed); err != nil {
			return err
		}
	}

	e.setState(engine.EngineStateRunning, callbacks)

	consecutiveSkips := 0

	for bar, sourceErr := range bars {
		if ctx.Err() != nil {
			break
		}

		if sourceErr != nil {
			return errors.Collaborator(sourceErr, "market data stream failed after %d bars", e.Status().BarsProcessed)
		}

		skipped, err := e.processBar(ctx, bar, callbacks)
		if err != nil {
			e.log.Error("Live trading aborted",
				zap.String("run_id", runID),
				zap.Time("time", bar.Time),
				zap.Error(err),
			)

			return err
		}

		if !skipped {
			consecutiveSkips = 0

			continue
		}

		consecutiveSkips++
		if e.config.MaxConsecutiveSkips > 0 && consecutiveSkips >= e.config.MaxConsecutiveSkips {
			return errors.Newf(errors.ErrCodeMalformedBar, "%d bars in a row were rejected", consecutiveSkips)
		}
	}

	status := e.Status()
	e.log.Info("Live trading stopped",
		zap.String("run_id", runID),
		zap.Int("bars", status.BarsProcessed),
		zap.Int("skipped", status.SkippedBars),
		zap.Float64("equity", status.Account.Equity),
	)

	return nil
}

// processBar runs one live bar. A bar the pipeline rejects as bad data is
// logged and skipped; the returned bool reports that.
func (e *LiveTradingEngineV1) processBar(ctx context.Context, bar types.Bar, callbacks engine.LiveTradingCallbacks) (bool, error) {
	e.mu.Lock()
	err := e.pipeline.Process(ctx, bar)

	if errors.IsDataError(err) {
		e.skipped++
		e.mu.Unlock()

		e.log.Warn("Bar skipped",
			zap.String("symbol", bar.Symbol),
			zap.Time("time", bar.Time),
			zap.Error(err),
		)

		if callbacks.OnError != nil {
			(*callbacks.OnError)(err)
		}

		return true, nil
	}

	if err == nil {
		e.lastBar = optional.Some(bar.Time)
	}

	runID := e.pipeline.RunID()
	account := *e.pipeline.Account()
	e.mu.Unlock()

	if err != nil {
		return false, err
	}

	if callbacks.OnMarketData != nil {
		return false, (*callbacks.OnMarketData)(runID, bar, account)
	}

	return false, nil
}

// runWarmup replays the warmup source through the indicators only.
func (e *LiveTradingEngineV1) runWarmup(ctx context.Context, warmup iter.Seq2[types.Bar, error], callbacks engine.LiveTradingCallbacks) (int, error) {
	if warmup == nil {
		return 0, nil
	}

	e.setState(engine.EngineStateWarmup, callbacks)

	warmed := 0

	for bar, sourceErr := range warmup {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}

		if sourceErr != nil {
			return warmed, errors.Collaborator(sourceErr, "warmup source failed after %d bars", warmed)
		}

		e.mu.Lock()
		err := e.pipeline.Warm(bar)
		e.mu.Unlock()

		switch {
		case errors.IsDataError(err):
			e.log.Warn("Warmup bar skipped", zap.Time("time", bar.Time), zap.Error(err))
		case err != nil:
			return warmed, err
		default:
			warmed++
		}
	}

	return warmed, nil
}

func (e *LiveTradingEngineV1) setState(state engine.EngineState, callbacks engine.LiveTradingCallbacks) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()

	if callbacks.OnStatusUpdate != nil {
		if err := (*callbacks.OnStatusUpdate)(e.Status()); err != nil {
			e.log.Warn("Status callback failed", zap.String("state", string(state)), zap.Error(err))
		}
	}
}

func (e *LiveTradingEngineV1) preRunCheck() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.broker == nil {
		return errors.New(errors.ErrCodeMissingParameter, "broker not set - call SetBroker() first")
	}

	return nil
}

// unlockedBroker releases the engine lock while an order is with the venue,
// so Status and Report stay available during the round trip. It is only
// called from pipeline.Process, which runs with e.mu held by the Run goroutine.
type unlockedBroker struct {
	engine *LiveTradingEngineV1
	broker tradingprovider.Broker
}

func (b unlockedBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Fill, error) {
	b.engine.mu.Unlock()
	defer b.engine.mu.Lock()

	return b.broker.PlaceOrder(ctx, order)
}

// callbackObserver forwards pipeline events to the optional callbacks.
type callbackObserver struct {
	callbacks engine.LiveTradingCallbacks
}

func (o callbackObserver) OnOrder(order types.Order) error {
	if o.callbacks.OnOrder == nil {
		return nil
	}

	return (*o.callbacks.OnOrder)(order)
}

func (o callbackObserver) OnTrade(trade types.TradeRecord) error {
	if o.callbacks.OnTrade == nil {
		return nil
	}

	return (*o.callbacks.OnTrade)(trade)
}

func (o callbackObserver) OnVeto(veto types.RiskVeto) error {
	if o.callbacks.OnVeto == nil {
		return nil
	}

	return (*o.callbacks.OnVeto)(veto)
}
