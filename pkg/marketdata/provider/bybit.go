package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

const (
	BybitSpotURL        = "wss://stream.bybit.com/v5/public/spot"
	BybitSpotTestnetURL = "wss://stream-testnet.bybit.com/v5/public/spot"

	bybitPingInterval = 20 * time.Second
	bybitWriteTimeout = 10 * time.Second
	bybitDialTimeout  = 10 * time.Second
)

var bybitIntervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
}

type bybitRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// bybitMessage covers both command acknowledgements and topic pushes.
type bybitMessage struct {
	Op      string       `json:"op"`
	Success *bool        `json:"success"`
	RetMsg  string       `json:"ret_msg"`
	Topic   string       `json:"topic"`
	Data    []bybitKline `json:"data"`
}

type bybitKline struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

// BybitStream yields confirmed klines from the Bybit v5 public websocket.
// Unconfirmed updates of the open candle are dropped.
type BybitStream struct {
	config StreamConfig
	topic  string
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewBybitStream connects to config.URL, or the spot endpoint (testnet when
// paper) when it is empty.
func NewBybitStream(config StreamConfig, paper bool, log *logger.Logger) (*BybitStream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	interval, ok := bybitIntervals[config.Interval]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidTimespan, "bybit has no %s kline interval", config.Interval)
	}

	if config.URL == "" {
		config.URL = BybitSpotURL
		if paper {
			config.URL = BybitSpotTestnetURL
		}
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BybitStream{
		config: config,
		topic:  fmt.Sprintf("kline.%s.%s", interval, config.Symbol),
		dialer: &websocket.Dialer{HandshakeTimeout: bybitDialTimeout},
		log:    log.Named("bybit-stream"),
	}, nil
}

func (s *BybitStream) Stream(ctx context.Context) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to connect to %s", s.config.URL))

			return
		}

		var writeMu sync.Mutex

		write := func(request bybitRequest) error {
			writeMu.Lock()
			defer writeMu.Unlock()

			//nolint:errcheck // a failed deadline surfaces on the write
			conn.SetWriteDeadline(time.Now().Add(bybitWriteTimeout))

			return conn.WriteJSON(request)
		}

		quit := make(chan struct{})
		var once sync.Once

		shutdown := func() {
			once.Do(func() {
				close(quit)
				conn.Close()
			})
		}
		defer shutdown()

		if err := write(bybitRequest{Op: "subscribe", Args: []string{s.topic}}); err != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to subscribe to %s", s.topic))

			return
		}

		s.log.Info("Subscribed to klines", zap.String("topic", s.topic), zap.String("url", s.config.URL))

		go func() {
			ticker := time.NewTicker(bybitPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-quit:
					return
				case <-ctx.Done():
					shutdown()

					return
				case <-ticker.C:
					if err := write(bybitRequest{Op: "ping"}); err != nil {
						s.log.Warn("Bybit ping failed", zap.Error(err))
					}
				}
			}
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "websocket error for %s", s.topic))

				return
			}

			bars, err := s.decode(payload)
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			for _, bar := range bars {
				if ctx.Err() != nil || !yield(bar, nil) {
					return
				}
			}
		}
	}
}

// decode returns the confirmed bars in one message. Acknowledgements yield
// nothing unless they report a failure.
func (s *BybitStream) decode(payload []byte) ([]types.Bar, error) {
	var message bybitMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to decode bybit message", err)
	}

	if message.Success != nil && !*message.Success {
		return nil, errors.Newf(errors.ErrCodeMarketDataFetchFailed, "bybit %s failed: %s", message.Op, message.RetMsg)
	}

	if message.Topic != s.topic {
		return nil, nil
	}

	var bars []types.Bar

	for _, kline := range message.Data {
		if !kline.Confirm {
			continue
		}

		values, err := parseFloats(kline.Open, kline.High, kline.Low, kline.Close, kline.Volume)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "bad %s kline at %d", s.config.Symbol, kline.Start)
		}

		bars = append(bars, types.Bar{
			Symbol: s.config.Symbol,
			Time:   time.UnixMilli(kline.Start).UTC(),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	return bars, nil
}
