package provider

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// binanceKlinesLimit is the page size Binance returns by default.
const binanceKlinesLimit = 500

// KlinesClient fetches one page of klines. start and end are Unix milliseconds.
type KlinesClient interface {
	Klines(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error)
}

type binanceKlinesClient struct {
	client *binance.Client
}

func (c binanceKlinesClient) Klines(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*binance.Kline, error) {
	return c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start).
		EndTime(end).
		Limit(limit).
		Do(ctx)
}

// BinanceSource pages through historical spot klines. Public market data
// needs no API key.
type BinanceSource struct {
	client     KlinesClient
	config     HistoryConfig
	onProgress OnProgress
	log        *logger.Logger
}

func NewBinanceSource(config HistoryConfig, log *logger.Logger) (*BinanceSource, error) {
	return newBinanceSourceWithClient(binanceKlinesClient{client: binance.NewClient("", "")}, config, log)
}

func newBinanceSourceWithClient(client KlinesClient, config HistoryConfig, log *logger.Logger) (*BinanceSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BinanceSource{
		client: client,
		config: config,
		log:    log.Named("binance"),
	}, nil
}

// SetProgress registers a callback run after every page.
func (s *BinanceSource) SetProgress(onProgress OnProgress) {
	s.onProgress = onProgress
}

func (s *BinanceSource) Stream(ctx context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		start := s.config.Start.UnixMilli()
		end := s.config.End.UnixMilli() - 1

		for start <= end {
			if ctx.Err() != nil {
				return
			}

			klines, err := s.client.Klines(ctx, s.config.Symbol, s.config.Interval, start, end, binanceKlinesLimit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s klines from Binance", s.config.Symbol))

				return
			}

			s.log.Debug("Fetched klines page",
				zap.String("symbol", s.config.Symbol),
				zap.Int64("start", start),
				zap.Int("count", len(klines)),
			)

			for _, kline := range klines {
				bar, err := barFromKline(s.config.Symbol, kline)
				if err != nil {
					yield(types.Bar{}, err)

					return
				}

				if !yield(bar, nil) {
					return
				}
			}

			if s.onProgress != nil {
				s.onProgress(float64(start-s.config.Start.UnixMilli()), float64(end-s.config.Start.UnixMilli()),
					fmt.Sprintf("Downloading %s klines from Binance", s.config.Symbol))
			}

			if len(klines) < binanceKlinesLimit {
				return
			}

			start = klines[len(klines)-1].CloseTime + 1
		}
	}
}

func barFromKline(symbol string, kline *binance.Kline) (types.Bar, error) {
	values, err := parseFloats(kline.Open, kline.High, kline.Low, kline.Close, kline.Volume)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "bad %s kline at %d", symbol, kline.OpenTime)
	}

	return types.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(kline.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

func parseFloats(fields ...string) ([]float64, error) {
	values := make([]float64, len(fields))

	for i, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}

		values[i] = value
	}

	return values, nil
}

// KlineStreamer subscribes to a kline websocket. It matches binance.WsKlineServe.
type KlineStreamer interface {
	WsKlineServe(symbol, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)
}

type binanceKlineStreamer struct{}

func (binanceKlineStreamer) WsKlineServe(symbol, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// BinanceStream yields finalized klines from the Binance websocket. In-progress
// candle updates are dropped. A websocket error ends the stream.
type BinanceStream struct {
	streamer KlineStreamer
	config   StreamConfig
	log      *logger.Logger
}

// NewBinanceStream subscribes to the public spot stream. paper selects the testnet.
func NewBinanceStream(config StreamConfig, paper bool, log *logger.Logger) (*BinanceStream, error) {
	if paper {
		binance.UseTestnet = true
	}

	if config.URL != "" {
		binance.BaseWsMainURL = config.URL
		binance.BaseWsTestnetURL = config.URL
	}

	return newBinanceStreamWithStreamer(binanceKlineStreamer{}, config, log)
}

func newBinanceStreamWithStreamer(streamer KlineStreamer, config StreamConfig, log *logger.Logger) (*BinanceStream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BinanceStream{
		streamer: streamer,
		config:   config,
		log:      log.Named("binance-stream"),
	}, nil
}

func (s *BinanceStream) Stream(ctx context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		events := make(chan *binance.WsKlineEvent, 16)
		failures := make(chan error, 1)
		quit := make(chan struct{})
		defer close(quit)

		handler := func(event *binance.WsKlineEvent) {
			if !event.Kline.IsFinal {
				return
			}

			select {
			case events <- event:
			case <-quit:
			}
		}

		errHandler := func(err error) {
			select {
			case failures <- err:
			default:
			}
		}

		doneC, stopC, err := s.streamer.WsKlineServe(s.config.Symbol, s.config.Interval, handler, errHandler)
		if err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to start websocket for %s", s.config.Symbol))

			return
		}
		defer close(stopC)

		s.log.Info("Subscribed to klines", zap.String("symbol", s.config.Symbol), zap.String("interval", s.config.Interval))

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-failures:
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "websocket error for %s", s.config.Symbol))

				return
			case <-doneC:
				yield(types.Bar{}, errors.Newf(errors.ErrCodeMarketDataFetchFailed, "websocket for %s closed", s.config.Symbol))

				return
			case event := <-events:
				bar, err := barFromWsKline(event)
				if err != nil {
					yield(types.Bar{}, err)

					return
				}

				if !yield(bar, nil) {
					return
				}
			}
		}
	}
}

func barFromWsKline(event *binance.WsKlineEvent) (types.Bar, error) {
	kline := event.Kline

	values, err := parseFloats(kline.Open, kline.High, kline.Low, kline.Close, kline.Volume)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "bad %s websocket kline at %d", event.Symbol, kline.StartTime)
	}

	return types.Bar{
		Symbol: event.Symbol,
		Time:   time.UnixMilli(kline.StartTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
