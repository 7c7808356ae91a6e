package engine_v1

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy-engine/internal/trading/engine"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type fakeStatusSource struct {
	status engine.Status
	report types.BacktestReport
}

func (f fakeStatusSource) Status() engine.Status {
	return f.status
}

func (f fakeStatusSource) Report() types.BacktestReport {
	return f.report
}

type StatusServerTestSuite struct {
	suite.Suite
	server *StatusServer
}

func TestStatusServerSuite(t *testing.T) {
	suite.Run(t, new(StatusServerTestSuite))
}

func (suite *StatusServerTestSuite) SetupTest() {
	source := fakeStatusSource{
		status: engine.Status{
			RunID:         "live-1",
			Symbol:        "ETHUSDT",
			Broker:        "paper",
			State:         engine.EngineStateRunning,
			Account:       types.NewAccountState(1000),
			BarsProcessed: 42,
			SkippedBars:   1,
		},
		report: types.BacktestReport{
			RunID:  "live-1",
			Symbol: "ETHUSDT",
			Trades: []types.TradeRecord{{PnL: 12.5, ExitReason: types.ExitReasonTakeProfit}},
			Stats:  types.TradeStats{ID: "live-1", BarsProcessed: 42},
		},
	}

	suite.server = NewStatusServer(source, nil)
}

func (suite *StatusServerTestSuite) get(path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

	return recorder
}

func (suite *StatusServerTestSuite) TestRoutes() {
	tests := []struct {
		name     string
		path     string
		code     int
		contains string
	}{
		{name: "health", path: "/healthz", code: http.StatusOK, contains: `"ok"`},
		{name: "status", path: "/status", code: http.StatusOK, contains: `"bars_processed":42`},
		{name: "report", path: "/report", code: http.StatusOK, contains: `"run_id":"live-1"`},
		{name: "stats", path: "/report/stats", code: http.StatusOK, contains: `"live-1"`},
		{name: "trades", path: "/report/trades", code: http.StatusOK, contains: `"TAKE_PROFIT"`},
		{name: "unknown section", path: "/report/orders", code: http.StatusNotFound},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			recorder := suite.get(tc.path)
			suite.Equal(tc.code, recorder.Code)

			if tc.contains != "" {
				suite.Equal("application/json", recorder.Header().Get("Content-Type"))
				suite.Contains(recorder.Body.String(), tc.contains)
			}
		})
	}
}

func (suite *StatusServerTestSuite) TestStatusDecodes() {
	var status engine.Status
	suite.Require().NoError(json.Unmarshal(suite.get("/status").Body.Bytes(), &status))

	suite.Equal("live-1", status.RunID)
	suite.Equal(engine.EngineStateRunning, status.State)
	suite.Equal(1000.0, status.Account.Cash)
	suite.Equal(1, status.SkippedBars)
}

func (suite *StatusServerTestSuite) TestWritesAreRejected() {
	recorder := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/status", nil))

	suite.Equal(http.StatusMethodNotAllowed, recorder.Code)
}

func (suite *StatusServerTestSuite) TestServeStopsWithContext() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- suite.server.Serve(ctx, listener)
	}()

	response, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, response.StatusCode)
	suite.Require().NoError(response.Body.Close())

	cancel()

	select {
	case err := <-done:
		suite.NoError(err)
	case <-time.After(5 * time.Second):
		suite.Fail("server did not stop")
	}
}
