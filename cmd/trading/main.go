package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/report"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/trading/engine"
	engine_v1 "github.com/rxtech-lab/argo-strategy-engine/internal/trading/engine/engine_v1"
	tradingprovider "github.com/rxtech-lab/argo-strategy-engine/internal/trading/provider"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/writer"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBroker(cmd *cli.Command, cfg config.EngineConfig, log *logger.Logger) (tradingprovider.Broker, error) {
	fee, err := cfg.Execution.CommissionFee()
	if err != nil {
		return nil, err
	}

	providerType := tradingprovider.ProviderType(cmd.String("broker"))

	var brokerConfig any

	switch providerType {
	case tradingprovider.ProviderPaper:
		brokerConfig = &tradingprovider.PaperConfig{InitialCash: cfg.InitialCash}
	default:
		brokerConfig, err = tradingprovider.BinanceConfigFromEnv()
		if err != nil {
			return nil, err
		}
	}

	return tradingprovider.NewBroker(providerType, brokerConfig, fee, log)
}

func warmupSource(path string, cfg config.EngineConfig) (*provider.DuckDBSource, error) {
	return provider.NewDuckDBSource(provider.FileConfig{Path: path, Symbol: cfg.Symbol})
}

// recorder streams everything the engine emits into the report exporter and,
// when configured, every live bar into a parquet file.
type recorder struct {
	exporter *report.Exporter
	bars     *writer.StreamingDuckDBWriter
	log      *logger.Logger
}

func (r *recorder) callbacks() engine.LiveTradingCallbacks {
	onStart := engine.OnEngineStartCallback(func(runID string, symbol string, warmupBars int) error {
		r.log.Info("Live run started", zap.String("run_id", runID), zap.String("symbol", symbol), zap.Int("warmup_bars", warmupBars))
		fmt.Printf("Trading %s (run %s)\n", symbol, runID)

		return nil
	})

	onBar := engine.OnMarketDataCallback(func(_ string, bar types.Bar, account types.AccountState) error {
		if r.bars != nil {
			if err := r.bars.Write(bar); err != nil {
				return err
			}
		}

		return r.exporter.WriteEquity(types.EquitySample{Time: bar.Time, Equity: account.Equity})
	})

	onOrder := engine.OnOrderCallback(func(order types.Order) error {
		return r.exporter.WriteOrder(order)
	})

	onTrade := engine.OnTradeCallback(func(trade types.TradeRecord) error {
		if err := r.exporter.WriteTrade(trade); err != nil {
			return err
		}

		return r.exporter.Flush()
	})

	onVeto := engine.OnVetoCallback(func(veto types.RiskVeto) error {
		return r.exporter.WriteVeto(veto)
	})

	onError := engine.OnErrorCallback(func(err error) {
		r.log.Warn("Bar skipped", zap.Error(err))
	})

	return engine.LiveTradingCallbacks{
		OnEngineStart: &onStart,
		OnMarketData:  &onBar,
		OnOrder:       &onOrder,
		OnTrade:       &onTrade,
		OnVeto:        &onVeto,
		OnError:       &onError,
	}
}

func liveAction(ctx context.Context, cmd *cli.Command) error {
	level := zapcore.InfoLevel
	if cmd.Bool("debug") {
		level = zapcore.DebugLevel
	}

	log, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	liveConfig := engine.DefaultLiveTradingEngineConfig()
	liveConfig.Engine = cfg
	liveConfig.MaxConsecutiveSkips = int(cmd.Int("max-skips"))
	liveConfig.StatusAddr = cmd.String("status-addr")

	trader, err := engine_v1.NewLiveTradingEngineV1(liveConfig, strategy.DefaultRegistry(), log)
	if err != nil {
		return err
	}

	broker, err := newBroker(cmd, cfg, log)
	if err != nil {
		return err
	}

	if err := trader.SetBroker(broker); err != nil {
		return err
	}

	if path := cmd.String("warmup"); path != "" {
		warmup, err := warmupSource(path, cfg)
		if err != nil {
			return err
		}

		trader.SetWarmupSource(warmup.Stream(ctx))
	}

	testnet := cmd.Bool("testnet")
	source, err := marketdata.NewLiveSource(
		provider.ProviderType(cmd.String("feed")),
		provider.StreamConfig{Symbol: cfg.Symbol, Interval: cfg.Interval},
		testnet,
		log,
	)
	if err != nil {
		return err
	}

	exporter, err := report.NewExporter(cmd.String("out"), report.Format(cmd.String("format")), log)
	if err != nil {
		return err
	}
	defer exporter.Close()

	rec := &recorder{exporter: exporter, log: log}

	if dataDir := cmd.String("record"); dataDir != "" {
		rec.bars = writer.NewStreamingDuckDBWriter(dataDir, cmd.String("feed"), cfg.Symbol, cfg.Interval, log)

		if err := rec.bars.Initialize(); err != nil {
			return err
		}
		defer rec.bars.Close()
	}

	if liveConfig.StatusAddr != "" {
		server := engine_v1.NewStatusServer(trader, log)

		go func() {
			if err := server.ListenAndServe(ctx, liveConfig.StatusAddr); err != nil {
				log.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	runErr := trader.Run(ctx, source.Stream(ctx), rec.callbacks())

	result := trader.Report()
	if err := exporter.Flush(); err != nil {
		log.Error("Failed to flush report", zap.Error(err))
	}

	if err := report.WriteStats(cmd.String("out"), []types.TradeStats{result.Stats}); err != nil {
		log.Error("Failed to write stats", zap.Error(err))
	}

	fmt.Println(report.RenderSummary("Live", []types.TradeStats{result.Stats}))

	return runErr
}

func providersAction(_ context.Context, _ *cli.Command) error {
	for _, name := range tradingprovider.GetSupportedProviders() {
		info, err := tradingprovider.GetProviderInfo(name)
		if err != nil {
			return err
		}

		fmt.Printf("%-16s paper=%-6t %s\n", info.Name, info.IsPaperTrading, info.Description)
	}

	return nil
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := engine.GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	//nolint:errcheck // .env is optional
	godotenv.Load()

	cmd := &cli.Command{
		Name:  "trading",
		Usage: "Run the strategy engine against a live feed",
		Commands: []*cli.Command{
			{
				Name:  "live",
				Usage: "Trade a live bar stream until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Engine config YAML",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "feed",
						Usage: fmt.Sprintf("Live bar feed (%s or %s)", provider.ProviderBinanceStream, provider.ProviderBybitStream),
						Value: string(provider.ProviderBinanceStream),
					},
					&cli.StringFlag{
						Name:  "broker",
						Usage: "Order venue (paper, binance-paper or binance-live)",
						Value: string(tradingprovider.ProviderPaper),
					},
					&cli.BoolFlag{
						Name:  "testnet",
						Usage: "Read bars from the feed's testnet",
					},
					&cli.StringFlag{
						Name:  "warmup",
						Usage: "Parquet or CSV file of bars replayed before the first live bar",
					},
					&cli.StringFlag{
						Name:  "record",
						Usage: "Directory to record live bars into",
					},
					&cli.IntFlag{
						Name:  "max-skips",
						Usage: "Stop after this many rejected bars in a row (0 never stops)",
					},
					&cli.StringFlag{
						Name:  "status-addr",
						Usage: "Listen address of the status endpoint, e.g. :8080",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Directory for reports",
						Value:   "results/live",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report file format (parquet or csv)",
						Value: string(report.FormatParquet),
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Log at debug level",
					},
				},
				Action: liveAction,
			},
			{
				Name:   "providers",
				Usage:  "List order venues",
				Action: providersAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the live config",
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
