package marketdata

import (
	"context"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
	"github.com/stretchr/testify/suite"
)

type fakeSource struct {
	bars       []types.Bar
	err        error
	onProgress provider.OnProgress
}

func (f *fakeSource) SetProgress(onProgress provider.OnProgress) {
	f.onProgress = onProgress
}

func (f *fakeSource) Stream(_ context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		for _, bar := range f.bars {
			if !yield(bar, nil) {
				return
			}
		}

		if f.onProgress != nil {
			f.onProgress(1, 1, "done")
		}

		if f.err != nil {
			yield(types.Bar{}, f.err)
		}
	}
}

type ClientTestSuite struct {
	suite.Suite
	dir    string
	start  time.Time
	params DownloadParams
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) SetupTest() {
	suite.dir = filepath.Join(suite.T().TempDir(), "data")
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.params = DownloadParams{Symbol: "ETHUSDT", Interval: "5m", Start: suite.start, End: suite.start.AddDate(0, 0, 1)}
}

func (suite *ClientTestSuite) client(source *fakeSource, onProgress provider.OnProgress) *Client {
	client, err := NewClient(ClientConfig{ProviderType: provider.ProviderBinance, DataPath: suite.dir}, onProgress, nil)
	suite.Require().NoError(err)

	client.newSource = func(config provider.HistoryConfig) (provider.Source, error) {
		suite.Equal("ETHUSDT", config.Symbol)
		suite.Equal("5m", config.Interval)

		return source, nil
	}

	return client
}

func (suite *ClientTestSuite) bars(count int) []types.Bar {
	bars := make([]types.Bar, count)
	for i := range bars {
		bars[i] = types.Bar{Symbol: "ETHUSDT", Time: suite.start.Add(time.Duration(i) * 5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1}
	}

	return bars
}

func (suite *ClientTestSuite) TestDownloadWritesFile() {
	progressed := false
	client := suite.client(&fakeSource{bars: suite.bars(12)}, func(_, _ float64, _ string) { progressed = true })

	path, err := client.Download(context.Background(), suite.params)
	suite.Require().NoError(err)
	suite.Equal(filepath.Join(suite.dir, "ETHUSDT_2024-01-01_2024-01-02_5m.parquet"), path)
	suite.FileExists(path)
	suite.True(progressed)

	source, err := provider.NewDuckDBSource(provider.FileConfig{Path: path})
	suite.Require().NoError(err)

	bars, err := source.Load(context.Background())
	suite.Require().NoError(err)
	suite.Len(bars, 12)
}

func (suite *ClientTestSuite) TestSourceFailureWritesNothing() {
	client := suite.client(&fakeSource{bars: suite.bars(3), err: errors.New(errors.ErrCodeMarketDataFetchFailed, "boom")}, nil)

	_, err := client.Download(context.Background(), suite.params)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
	suite.Contains(err.Error(), "after 3 bars")

	_, statErr := os.Stat(client.OutputPath(suite.params))
	suite.True(os.IsNotExist(statErr))
}

func (suite *ClientTestSuite) TestCancelledDownloadWritesNothing() {
	client := suite.client(&fakeSource{bars: suite.bars(3)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Download(ctx, suite.params)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *ClientTestSuite) TestValidation() {
	tests := []struct {
		name   string
		config ClientConfig
	}{
		{name: "missing provider", config: ClientConfig{DataPath: suite.dir}},
		{name: "stream provider", config: ClientConfig{ProviderType: provider.ProviderBybitStream, DataPath: suite.dir}},
		{name: "polygon without key", config: ClientConfig{ProviderType: provider.ProviderPolygon, DataPath: suite.dir}},
		{name: "bad format", config: ClientConfig{ProviderType: provider.ProviderBinance, DataPath: suite.dir, Format: "json"}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := NewClient(tc.config, nil, nil)
			suite.True(errors.IsConfigurationError(err))
		})
	}

	client := suite.client(&fakeSource{}, nil)
	params := suite.params
	params.End = params.Start

	_, err := client.Download(context.Background(), params)
	suite.True(errors.IsConfigurationError(err))
}

func (suite *ClientTestSuite) TestRealSourceRejectsBadInterval() {
	client, err := NewClient(ClientConfig{ProviderType: provider.ProviderBinance, DataPath: suite.dir}, nil, nil)
	suite.Require().NoError(err)

	params := suite.params
	params.Interval = "7m"

	_, err = client.Download(context.Background(), params)
	suite.True(errors.IsConfigurationError(err))
}

func (suite *ClientTestSuite) TestRegistry() {
	suite.Equal([]string{"binance", "binance-stream", "bybit-stream", "file", "polygon"}, GetSupportedProviders())

	info, err := GetProviderInfo("polygon")
	suite.Require().NoError(err)
	suite.True(info.RequiresAuth)
	suite.False(info.Live)

	info, err = GetProviderInfo("bybit-stream")
	suite.Require().NoError(err)
	suite.True(info.Live)

	_, err = GetProviderInfo("kraken")
	suite.True(errors.IsConfigurationError(err))

	for _, name := range GetSupportedProviders() {
		schema, err := GetConfigSchema(name)
		suite.Require().NoError(err, name)
		suite.True(json.Valid([]byte(schema)), name)
		suite.Contains(schema, "symbol", name)
	}
}

func (suite *ClientTestSuite) TestSourceFactories() {
	history := provider.HistoryConfig{Symbol: "ETHUSDT", Interval: "5m", Start: suite.start, End: suite.start.Add(time.Hour)}

	source, err := NewHistorySource(provider.ProviderBinance, history, "", nil)
	suite.Require().NoError(err)
	suite.IsType(&provider.BinanceSource{}, source)

	_, err = NewHistorySource(provider.ProviderBybitStream, history, "", nil)
	suite.True(errors.IsConfigurationError(err))

	live, err := NewLiveSource(provider.ProviderBybitStream, provider.StreamConfig{Symbol: "ETHUSDT", Interval: "5m"}, false, nil)
	suite.Require().NoError(err)
	suite.IsType(&provider.BybitStream{}, live)

	_, err = NewLiveSource(provider.ProviderFile, provider.StreamConfig{Symbol: "ETHUSDT", Interval: "5m"}, false, nil)
	suite.True(errors.IsConfigurationError(err))
}
