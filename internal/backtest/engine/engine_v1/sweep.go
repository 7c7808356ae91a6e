package engine

import (
	"context"
	"runtime"

	"github.com/rxtech-lab/argo-strategy-engine/internal/backtest/engine"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepOptions bounds a parameter sweep.
type SweepOptions struct {
	// Concurrency caps the number of runs in flight. 0 uses GOMAXPROCS.
	Concurrency int
	// OnRunDone is called after each run completes, from the run's goroutine.
	OnRunDone func(index int, report types.BacktestReport)
}

// Sweep runs one isolated engine per config over the same read-only bars and
// returns the reports in config order. The first failure cancels the rest.
func Sweep(ctx context.Context, bars []types.Bar, configs []config.EngineConfig, registry strategy.Registry, log *logger.Logger, options SweepOptions) ([]types.BacktestReport, error) {
	if len(configs) == 0 {
		return nil, errors.New(errors.ErrCodeMissingParameter, "sweep requires at least one config")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	// Build every engine first so a bad config fails before any run starts.
	engines := make([]*BacktestEngineV1, len(configs))

	for i, cfg := range configs {
		e, err := NewBacktestEngineV1(cfg, registry, log)
		if err != nil {
			return nil, errors.Wrapf(errors.GetCode(err), err, "sweep config %d", i)
		}

		engines[i] = e
	}

	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	reports := make([]types.BacktestReport, len(configs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, e := range engines {
		group.Go(func() error {
			report, err := e.Run(groupCtx, types.BarSeq(bars), engine.LifecycleCallbacks{})
			if err != nil {
				return err
			}

			reports[i] = report

			if options.OnRunDone != nil {
				options.OnRunDone(i, report)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	log.Info("Sweep finished", zap.Int("runs", len(reports)), zap.Int("bars", len(bars)))

	return reports, nil
}
