package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type BybitStreamTestSuite struct {
	suite.Suite
	start    time.Time
	upgrader websocket.Upgrader
}

func TestBybitStreamSuite(t *testing.T) {
	suite.Run(t, new(BybitStreamTestSuite))
}

func (suite *BybitStreamTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
}

// serve starts a websocket server that records the subscription, sends
// messages and then holds the connection open until the client leaves.
func (suite *BybitStreamTestSuite) serve(subscribed chan<- bybitRequest, messages ...any) string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := suite.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var request bybitRequest
		if err := conn.ReadJSON(&request); err != nil {
			return
		}

		if subscribed != nil {
			subscribed <- request
		}

		for _, message := range messages {
			if err := conn.WriteJSON(message); err != nil {
				return
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	suite.T().Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func (suite *BybitStreamTestSuite) push(minutes int, closePrice string, confirm bool) map[string]any {
	return map[string]any{
		"topic": "kline.5.ETHUSDT",
		"type":  "snapshot",
		"data": []map[string]any{{
			"start":   suite.start.Add(time.Duration(minutes) * time.Minute).UnixMilli(),
			"open":    "2000",
			"high":    "2100",
			"low":     "1900",
			"close":   closePrice,
			"volume":  "12.5",
			"confirm": confirm,
		}},
	}
}

func (suite *BybitStreamTestSuite) stream(url string) *BybitStream {
	stream, err := NewBybitStream(StreamConfig{Symbol: "ETHUSDT", Interval: "5m", URL: url}, false, nil)
	suite.Require().NoError(err)

	return stream
}

func (suite *BybitStreamTestSuite) TestYieldsConfirmedKlines() {
	subscribed := make(chan bybitRequest, 1)
	url := suite.serve(subscribed,
		map[string]any{"success": true, "op": "subscribe", "ret_msg": ""},
		suite.push(0, "2010", false),
		suite.push(0, "2020", true),
		map[string]any{"topic": "tickers.ETHUSDT", "data": []map[string]any{}},
		suite.push(5, "2050", true),
	)

	var bars []types.Bar

	for bar, err := range suite.stream(url).Stream(context.Background()) {
		suite.Require().NoError(err)

		bars = append(bars, bar)
		if len(bars) == 2 {
			break
		}
	}

	suite.Require().Len(bars, 2)
	suite.Equal(2020.0, bars[0].Close)
	suite.Equal(12.5, bars[0].Volume)
	suite.Equal("ETHUSDT", bars[0].Symbol)
	suite.Equal(suite.start, bars[0].Time)
	suite.Equal(suite.start.Add(5*time.Minute), bars[1].Time)

	request := <-subscribed
	suite.Equal("subscribe", request.Op)
	suite.Equal([]string{"kline.5.ETHUSDT"}, request.Args)
}

func (suite *BybitStreamTestSuite) TestFailedSubscription() {
	url := suite.serve(nil, map[string]any{"success": false, "op": "subscribe", "ret_msg": "invalid topic"})

	var streamErr error
	for _, err := range suite.stream(url).Stream(context.Background()) {
		streamErr = err
	}

	suite.True(errors.IsCollaboratorFailure(streamErr))
	suite.Contains(streamErr.Error(), "invalid topic")
}

func (suite *BybitStreamTestSuite) TestMalformedMessage() {
	url := suite.serve(nil, suite.push(0, "abc", true))

	var streamErr error
	for _, err := range suite.stream(url).Stream(context.Background()) {
		streamErr = err
	}

	suite.True(errors.HasCode(streamErr, errors.ErrCodeMarketDataParseFailed))
}

func (suite *BybitStreamTestSuite) TestCancellationEndsQuietly() {
	url := suite.serve(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var streamErr error
	for _, err := range suite.stream(url).Stream(ctx) {
		streamErr = err
	}

	suite.NoError(streamErr)
}

func (suite *BybitStreamTestSuite) TestUnreachableServer() {
	var streamErr error
	for _, err := range suite.stream("ws://127.0.0.1:1").Stream(context.Background()) {
		streamErr = err
	}

	suite.True(errors.HasCode(streamErr, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *BybitStreamTestSuite) TestIntervals() {
	tests := []struct {
		interval string
		topic    string
		ok       bool
	}{
		{interval: "1m", topic: "kline.1.ETHUSDT", ok: true},
		{interval: "1h", topic: "kline.60.ETHUSDT", ok: true},
		{interval: "1d", topic: "kline.D.ETHUSDT", ok: true},
		{interval: "8h"},
		{interval: "1s"},
	}

	for _, tc := range tests {
		suite.Run(tc.interval, func() {
			stream, err := NewBybitStream(StreamConfig{Symbol: "ETHUSDT", Interval: tc.interval}, true, nil)
			if !tc.ok {
				suite.True(errors.IsConfigurationError(err))

				return
			}

			suite.Require().NoError(err)
			suite.Equal(tc.topic, stream.topic)
			suite.Equal(BybitSpotTestnetURL, stream.config.URL)
		})
	}
}

func (suite *BybitStreamTestSuite) TestDecodeIgnoresPong() {
	stream := suite.stream("ws://localhost")

	payload, err := json.Marshal(map[string]any{"success": true, "op": "pong", "ret_msg": "pong"})
	suite.Require().NoError(err)

	bars, err := stream.decode(payload)
	suite.NoError(err)
	suite.Empty(bars)
}
