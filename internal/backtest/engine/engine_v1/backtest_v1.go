package engine

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-strategy-engine/internal/backtest/engine"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/pipeline"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// BacktestEngineV1 replays a bar sequence through the decision pipeline. One
// instance can be reused for many runs, but not concurrently.
type BacktestEngineV1 struct {
	config   config.EngineConfig
	pipeline *pipeline.Pipeline
	log      *logger.Logger
	running  atomic.Bool
}

var _ engine.Engine = (*BacktestEngineV1)(nil)

// NewBacktestEngineV1 creates the engine for cfg, building its strategy from
// registry. Configuration problems are reported here, before any bar is read.
func NewBacktestEngineV1(cfg config.EngineConfig, registry strategy.Registry, log *logger.Logger) (*BacktestEngineV1, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if registry == nil {
		registry = strategy.DefaultRegistry()
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	strat, err := registry.Create(cfg.Strategy, cfg.StrategyConfig())
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(cfg, strat, log)
	if err != nil {
		return nil, err
	}

	return &BacktestEngineV1{
		config:   cfg,
		pipeline: p,
		log:      log.Named("backtest"),
	}, nil
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

func (b *BacktestEngineV1) Run(ctx context.Context, bars iter.Seq2[types.Bar, error], callbacks engine.LifecycleCallbacks) (report types.BacktestReport, err error) {
	if !b.running.CompareAndSwap(false, true) {
		return types.BacktestReport{}, errors.New(errors.ErrCodeEngineBusy, "backtest engine is already running")
	}
	defer b.running.Store(false)

	runID := b.config.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	b.pipeline.Reset(runID)
	b.pipeline.SetObserver(callbackObserver{callbacks: callbacks})

	defer func() {
		if callbacks.OnRunEnd != nil {
			(*callbacks.OnRunEnd)(b.pipeline.Report(), err)
		}
	}()

	b.log.Info("Backtest started",
		zap.String("run_id", runID),
		zap.String("symbol", b.config.Symbol),
		zap.String("strategy", b.config.Strategy),
	)

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, b.config.Symbol); err != nil {
			return types.BacktestReport{}, err
		}
	}

	for bar, sourceErr := range bars {
		if err := ctx.Err(); err != nil {
			return types.BacktestReport{}, err
		}

		if sourceErr != nil {
			return types.BacktestReport{}, errors.Collaborator(sourceErr, "bar source failed after %d bars", b.pipeline.BarsProcessed())
		}

		if err := b.processBar(ctx, bar, callbacks); err != nil {
			b.log.Error("Backtest aborted",
				zap.String("run_id", runID),
				zap.Time("time", bar.Time),
				zap.Error(err),
			)

			return types.BacktestReport{}, err
		}
	}

	if err := b.pipeline.Settle(); err != nil {
		return types.BacktestReport{}, err
	}

	report = b.pipeline.Report()

	b.log.Info("Backtest finished",
		zap.String("run_id", runID),
		zap.Int("bars", report.Stats.BarsProcessed),
		zap.Int("trades", report.Stats.TradeResult.NumberOfTrades),
		zap.Float64("total_return", report.Stats.Performance.TotalReturn),
	)

	return report, nil
}

func (b *BacktestEngineV1) processBar(ctx context.Context, bar types.Bar, callbacks engine.LifecycleCallbacks) error {
	if err := b.pipeline.Process(ctx, bar); err != nil {
		return err
	}

	if callbacks.OnBar != nil {
		return (*callbacks.OnBar)(b.pipeline.BarsProcessed(), bar, *b.pipeline.Account())
	}

	return nil
}

// callbackObserver forwards pipeline events to the optional lifecycle callbacks.
type callbackObserver struct {
	callbacks engine.LifecycleCallbacks
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
