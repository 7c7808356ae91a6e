package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zapcore"
)

// downloadAction fetches one symbol's bars and writes them under --data.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLoggerWithLevel(zapcore.WarnLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	symbol := cmd.String("symbol")
	reporter := newProgressReporter(os.Stderr, fmt.Sprintf("Downloading %s", symbol))

	client, err := marketdata.NewClient(marketdata.ClientConfig{
		ProviderType:  provider.ProviderType(cmd.String("provider")),
		DataPath:      cmd.String("data"),
		Format:        cmd.String("format"),
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}, reporter.OnProgress, log)
	if err != nil {
		return err
	}

	path, err := client.Download(ctx, marketdata.DownloadParams{
		Symbol:   symbol,
		Interval: cmd.String("interval"),
		Start:    cmd.Timestamp("start").UTC(),
		End:      cmd.Timestamp("end").UTC(),
	})
	reporter.Finish()

	if err != nil {
		return err
	}

	fmt.Printf("\nDownloaded %s to %s\n", symbol, path)

	return nil
}

func providersAction(_ context.Context, _ *cli.Command) error {
	for _, name := range marketdata.GetSupportedProviders() {
		info, err := marketdata.GetProviderInfo(name)
		if err != nil {
			return err
		}

		kind := "history"
		if info.Live {
			kind = "live"
		}

		fmt.Printf("%-16s %-8s %s\n", info.Name, kind, info.Description)
	}

	return nil
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := marketdata.GetConfigSchema(cmd.String("provider"))
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	//nolint:errcheck // .env is optional
	godotenv.Load()

	dateConfig := cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}}

	cmd := &cli.Command{
		Name:  "market",
		Usage: "Download and inspect market data",
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download historical bars to a parquet or CSV file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "symbol",
						Aliases: []string{"s"},
						Usage:   "Trading pair or ticker",
						Value:   "ETHUSDT",
					},
					&cli.StringFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "Bar interval",
						Value:   "5m",
					},
					&cli.TimestampFlag{
						Name:     "start",
						Usage:    "Start date in `YYYY-MM-DD` format (or RFC3339)",
						Config:   dateConfig,
						Required: true,
					},
					&cli.TimestampFlag{
						Name:   "end",
						Usage:  "Exclusive end date in `YYYY-MM-DD` format (or RFC3339). Defaults to now.",
						Value:  time.Now().UTC(),
						Config: dateConfig,
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   fmt.Sprintf("Data provider (%s or %s)", provider.ProviderBinance, provider.ProviderPolygon),
						Value:   string(provider.ProviderBinance),
					},
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "Output directory",
						Value:   "data",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (parquet or csv)",
						Value: "parquet",
					},
				},
				Action: downloadAction,
			},
			{
				Name:   "providers",
				Usage:  "List market data providers",
				Action: providersAction,
			},
			{
				Name:  "schema",
				Usage: "Print the config schema of a provider",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "provider",
						Aliases:  []string{"p"},
						Usage:    strings.Join(marketdata.GetSupportedProviders(), ", "),
						Required: true,
					},
				},
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
