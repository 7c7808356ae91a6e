package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-strategy-engine/internal/backtest/engine"
	engine_v1 "github.com/rxtech-lab/argo-strategy-engine/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/report"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cmd *cli.Command) (*logger.Logger, error) {
	level := zapcore.WarnLevel
	if cmd.Bool("verbose") {
		level = zapcore.InfoLevel
	}

	return logger.NewLoggerWithLevel(level)
}

// barSource opens the data file, restricted to the symbol and range of cfg.
func barSource(path string, cfg config.EngineConfig) (*provider.DuckDBSource, error) {
	fileConfig := provider.FileConfig{Path: path, Symbol: cfg.Symbol}

	if cfg.Range.Start.IsSome() {
		fileConfig.Start = cfg.Range.Start.Unwrap()
	}

	if cfg.Range.End.IsSome() {
		fileConfig.End = cfg.Range.End.Unwrap()
	}

	return provider.NewDuckDBSource(fileConfig)
}

// runDir is the report directory of the index-th run.
func runDir(out string, index int, runID string) string {
	return filepath.Join(out, fmt.Sprintf("%03d_%s", index, runID))
}

func writeReport(dir string, format report.Format, result types.BacktestReport, log *logger.Logger) error {
	exporter, err := report.NewExporter(dir, format, log)
	if err != nil {
		return err
	}
	defer exporter.Close()

	return exporter.WriteReport(result)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	source, err := barSource(cmd.String("data"), cfg)
	if err != nil {
		return err
	}

	backtester, err := engine_v1.NewBacktestEngineV1(cfg, strategy.DefaultRegistry(), log)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Replaying %s", cfg.Symbol)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	onBar := engine.OnBarCallback(func(_ int, _ types.Bar, _ types.AccountState) error {
		return bar.Add(1)
	})

	result, err := backtester.Run(ctx, source.Stream(ctx), engine.LifecycleCallbacks{OnBar: &onBar})
	//nolint:errcheck // progress output only
	bar.Finish()

	if err != nil {
		return err
	}

	dir := runDir(cmd.String("out"), 0, result.RunID)
	if err := writeReport(dir, report.Format(cmd.String("format")), result, log); err != nil {
		return err
	}

	fmt.Println(report.RenderSummary("Backtest", []types.TradeStats{result.Stats}))
	fmt.Printf("Report written to %s\n", dir)

	return nil
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	paths := cmd.StringSlice("config")
	configs := make([]config.EngineConfig, len(paths))

	for i, path := range paths {
		configs[i], err = config.Load(path)
		if err != nil {
			return err
		}
	}

	source, err := barSource(cmd.String("data"), configs[0])
	if err != nil {
		return err
	}

	bars, err := source.Load(ctx)
	if err != nil {
		return err
	}

	progress := progressbar.NewOptions(len(configs),
		progressbar.OptionSetDescription("Sweeping"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	reports, err := engine_v1.Sweep(ctx, bars, configs, strategy.DefaultRegistry(), log, engine_v1.SweepOptions{
		Concurrency: int(cmd.Int("concurrency")),
		OnRunDone: func(int, types.BacktestReport) {
			//nolint:errcheck // progress output only
			progress.Add(1)
		},
	})
	//nolint:errcheck // progress output only
	progress.Finish()

	if err != nil {
		return err
	}

	out := cmd.String("out")
	stats := make([]types.TradeStats, len(reports))

	for i, result := range reports {
		if err := writeReport(runDir(out, i, result.RunID), report.Format(cmd.String("format")), result, log); err != nil {
			return err
		}

		stats[i] = result.Stats
	}

	if err := report.WriteStats(out, stats); err != nil {
		return err
	}

	log.Info("Sweep finished", zap.Int("runs", len(reports)), zap.Int("bars", len(bars)))

	fmt.Println(report.RenderSummary("Sweep", stats))
	fmt.Printf("Reports written to %s\n", out)

	return nil
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	cfg := config.DefaultConfig()

	schema, err := cfg.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	//nolint:errcheck // .env is optional
	godotenv.Load()

	commonFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Parquet or CSV file of bars",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Directory for reports",
			Value:   "results",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Report file format (parquet or csv)",
			Value: string(report.FormatParquet),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log at info level",
		},
	}

	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay historical bars through the strategy engine",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one backtest",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Engine config YAML",
						Required: true,
					},
				}, commonFlags...),
				Action: runAction,
			},
			{
				Name:  "sweep",
				Usage: "Run one backtest per config in parallel over the same bars",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Engine config YAML, repeat for each run",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Runs in flight (0 uses every CPU)",
					},
				}, commonFlags...),
				Action: sweepAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the engine config",
				Action: schemaAction,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
