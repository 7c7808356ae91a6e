// Package marketdata downloads historical bars into local files that the
// backtest engine replays.
package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/writer"
	"go.uber.org/zap"
)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	ProviderType  provider.ProviderType `validate:"required,oneof=polygon binance"`
	DataPath      string                `validate:"required"`
	Format        string                `validate:"omitempty,oneof=parquet csv"`
	PolygonApiKey string                `validate:"required_if=ProviderType polygon"`
}

// DownloadParams holds the parameters for a market data download request.
type DownloadParams struct {
	Symbol   string    `validate:"required"`
	Interval string    `validate:"required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtfield=Start"`
}

// progressSource is implemented by sources that report download progress.
type progressSource interface {
	SetProgress(onProgress provider.OnProgress)
}

type sourceFactory func(config provider.HistoryConfig) (provider.Source, error)

// Client downloads bars from a provider and stores them with a DuckDBWriter.
type Client struct {
	config     ClientConfig
	validate   *validator.Validate
	onProgress provider.OnProgress
	newSource  sourceFactory
	log        *logger.Logger
}

func NewClient(config ClientConfig, onProgress provider.OnProgress, log *logger.Logger) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	if config.Format == "" {
		config.Format = "parquet"
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	client := &Client{
		config:     config,
		validate:   validate,
		onProgress: onProgress,
		log:        log.Named("marketdata"),
	}

	client.newSource = func(history provider.HistoryConfig) (provider.Source, error) {
		return NewHistorySource(config.ProviderType, history, config.PolygonApiKey, log)
	}

	return client, nil
}

// OutputPath returns SYMBOL_START_END_INTERVAL.format under the data path.
func (c *Client) OutputPath(params DownloadParams) string {
	name := fmt.Sprintf("%s_%s_%s_%s.%s",
		params.Symbol,
		params.Start.Format("2006-01-02"),
		params.End.Format("2006-01-02"),
		params.Interval,
		c.config.Format)

	return filepath.Join(c.config.DataPath, name)
}

// Download fetches the requested bars and returns the file they were written to.
// Nothing is exported when the download fails or ctx is cancelled.
func (c *Client) Download(ctx context.Context, params DownloadParams) (string, error) {
	if err := c.validate.Struct(params); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid download parameters", err)
	}

	source, err := c.newSource(provider.HistoryConfig{
		Symbol:   params.Symbol,
		Interval: params.Interval,
		Start:    params.Start,
		End:      params.End,
	})
	if err != nil {
		return "", err
	}

	if progress, ok := source.(progressSource); ok && c.onProgress != nil {
		progress.SetProgress(c.onProgress)
	}

	if err := os.MkdirAll(c.config.DataPath, 0755); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create %s", c.config.DataPath)
	}

	barWriter := writer.NewDuckDBWriter(c.OutputPath(params), c.log)
	if err := barWriter.Initialize(); err != nil {
		return "", err
	}

	defer func() {
		if err := barWriter.Close(); err != nil {
			c.log.Warn("Failed to close writer", zap.Error(err))
		}
	}()

	count := 0

	for bar, err := range source.Stream(ctx) {
		if err != nil {
			return "", errors.Wrapf(errors.GetCode(err), err, "download of %s failed after %d bars", params.Symbol, count)
		}

		if err := barWriter.Write(bar); err != nil {
			return "", err
		}

		count++
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := barWriter.Finalize()
	if err != nil {
		return "", err
	}

	c.log.Info("Download finished",
		zap.String("provider", string(c.config.ProviderType)),
		zap.String("symbol", params.Symbol),
		zap.Int("bars", count),
		zap.String("path", path),
	)

	return path, nil
}
