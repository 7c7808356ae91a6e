package engine

import (
	"context"
	"iter"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rxtech-lab/argo-strategy-engine/internal/backtest/engine"
	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution"
	"github.com/rxtech-lab/argo-strategy-engine/internal/strategy"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/mocks"
	"github.com/rxtech-lab/argo-strategy-engine/mocks/scripted"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type BacktestEngineTestSuite struct {
	suite.Suite
	start time.Time
}

func TestBacktestEngineSuite(t *testing.T) {
	suite.Run(t, new(BacktestEngineTestSuite))
}

func (suite *BacktestEngineTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *BacktestEngineTestSuite) scriptedEngine(cfg config.EngineConfig, actions map[int]types.Action) *BacktestEngineV1 {
	registry := strategy.NewRegistry()
	suite.Require().NoError(scripted.NewStrategy(actions).Register(registry))

	cfg.Strategy = scripted.StrategyName

	e, err := NewBacktestEngineV1(cfg, registry, nil)
	suite.Require().NoError(err)

	return e
}

func (suite *BacktestEngineTestSuite) run(e *BacktestEngineV1, bars []types.Bar) types.BacktestReport {
	report, err := e.Run(context.Background(), types.BarSeq(bars), engine.LifecycleCallbacks{})
	suite.Require().NoError(err)

	return report
}

func (suite *BacktestEngineTestSuite) flat(count int, price float64) []types.Bar {
	return mocks.GenerateFlat("ETHUSDT", suite.start, 5*time.Minute, count, price)
}

func (suite *BacktestEngineTestSuite) generated(count int, volatility float64) []types.Bar {
	generatorConfig := mocks.DefaultConfig()
	generatorConfig.Count = count
	generatorConfig.Volatility = volatility

	return mocks.NewDataGenerator(42).Generate(generatorConfig)
}

func (suite *BacktestEngineTestSuite) TestCrossingsProduceOneTrade() {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)/10
	}

	bars := mocks.GenerateFromOpens("ETHUSDT", suite.start, 5*time.Minute, prices)
	e := suite.scriptedEngine(config.TestConfig(), map[int]types.Action{10: types.ActionBuy, 20: types.ActionSell})

	report := suite.run(e, bars)

	suite.Require().Len(report.Trades, 1)
	trade := report.Trades[0]
	suite.Equal(bars[10].Time, trade.EntryTime)
	suite.Equal(101.0, trade.EntryPrice)
	suite.Equal(bars[20].Time, trade.ExitTime)
	suite.Equal(102.0, trade.ExitPrice)
	suite.Equal(types.ExitReasonSignal, trade.ExitReason)
	suite.Equal(types.TradeStatusWin, trade.Status)

	suite.Len(report.Orders, 2)
	suite.Equal(2, report.Stats.Orders[types.OrderStatusFilled])
	suite.Equal(1, report.Stats.TradeResult.NumberOfTrades)
	suite.Equal(1.0, report.Stats.TradeResult.WinRate)
	suite.Len(report.EquityCurve, 30)
	suite.Equal(30, report.Stats.BarsProcessed)
	suite.Equal("test-run", report.RunID)
	suite.InDelta(1000+trade.PnL, report.Stats.Performance.FinalEquity, 1e-9)
}

func (suite *BacktestEngineTestSuite) TestBarsWithoutSymbolTradeTheRunSymbol() {
	bars := mocks.GenerateFlat("", suite.start, 5*time.Minute, 10, 100)
	e := suite.scriptedEngine(config.TestConfig(), map[int]types.Action{3: types.ActionBuy})

	report := suite.run(e, bars)

	suite.Require().Len(report.Orders, 2)
	for _, order := range report.Orders {
		suite.Equal("ETHUSDT", order.Symbol)
	}

	suite.Require().Len(report.Trades, 1)
	suite.Equal("ETHUSDT", report.Trades[0].Symbol)
	suite.Equal(types.ExitReasonEndOfData, report.Trades[0].ExitReason)
	suite.Len(report.EquityCurve, 10)
}

func (suite *BacktestEngineTestSuite) TestSignalClosePolicyFillsOnSignalBar() {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)/10
	}

	cfg := config.TestConfig()
	cfg.Execution.FillPolicy = execution.FillPolicySignalClose

	bars := mocks.GenerateFromOpens("ETHUSDT", suite.start, 5*time.Minute, prices)
	report := suite.run(suite.scriptedEngine(cfg, map[int]types.Action{10: types.ActionBuy, 20: types.ActionSell}), bars)

	suite.Require().Len(report.Trades, 1)
	suite.Equal(bars[9].Time, report.Trades[0].EntryTime)
	suite.Equal(prices[9], report.Trades[0].EntryPrice)
	suite.Equal(bars[19].Time, report.Trades[0].ExitTime)
}

func (suite *BacktestEngineTestSuite) TestFlatBarsNeverTrade() {
	e, err := NewBacktestEngineV1(config.TestConfig(), nil, nil)
	suite.Require().NoError(err)

	report := suite.run(e, suite.flat(30, 100))

	suite.Empty(report.Trades)
	suite.Empty(report.Orders)
	suite.Require().Len(report.EquityCurve, 30)

	for _, sample := range report.EquityCurve {
		suite.Equal(1000.0, sample.Equity)
	}

	suite.Equal(0.0, report.Stats.Performance.TotalReturn)
	suite.Equal(0.0, report.Stats.Performance.SharpeRatio)
	suite.Equal(0.0, report.Stats.Performance.MaxDrawdown)
}

func (suite *BacktestEngineTestSuite) TestEndOfDataSettlement() {
	suite.Run("open position is closed at the last close", func() {
		bars := suite.flat(10, 100)
		report := suite.run(suite.scriptedEngine(config.TestConfig(), map[int]types.Action{5: types.ActionBuy}), bars)

		suite.Require().Len(report.Trades, 1)
		suite.Equal(types.ExitReasonEndOfData, report.Trades[0].ExitReason)
		suite.Equal(bars[9].Time, report.Trades[0].ExitTime)
		suite.Equal(100.0, report.Trades[0].ExitPrice)
		suite.Equal(types.OrderReasonEndOfData, report.Orders[len(report.Orders)-1].Reason)
		suite.Equal(1000.0, report.EquityCurve[len(report.EquityCurve)-1].Equity)
		suite.Equal(1, report.Stats.ExitReasons[types.ExitReasonEndOfData])
	})

	suite.Run("pending order on the last bar is cancelled", func() {
		report := suite.run(suite.scriptedEngine(config.TestConfig(), map[int]types.Action{10: types.ActionBuy}), suite.flat(10, 100))

		suite.Empty(report.Trades)
		suite.Require().Len(report.Orders, 1)
		suite.Equal(types.OrderStatusCancelled, report.Orders[0].Status)
		suite.Equal(types.OrderReasonNoNextBar, report.Orders[0].Reason)
	})

	suite.Run("empty source settles nothing", func() {
		report := suite.run(suite.scriptedEngine(config.TestConfig(), nil), nil)

		suite.Empty(report.EquityCurve)
		suite.Equal(1000.0, report.Stats.Performance.FinalEquity)
	})
}

func (suite *BacktestEngineTestSuite) TestStopLossExit() {
	bars := suite.flat(5, 100)
	bars[3] = types.Bar{Symbol: "ETHUSDT", Time: bars[3].Time, Open: 99, High: 99.5, Low: 97, Close: 98, Volume: 1}
	bars[4].Open, bars[4].High, bars[4].Low, bars[4].Close = 98, 98, 98, 98

	report := suite.run(suite.scriptedEngine(config.TestConfig(), map[int]types.Action{1: types.ActionBuy}), bars)

	suite.Require().Len(report.Trades, 1)
	suite.Equal(types.ExitReasonStopLoss, report.Trades[0].ExitReason)
	suite.InDelta(98.0, report.Trades[0].ExitPrice, 1e-9)
	suite.Equal(bars[3].Time, report.Trades[0].ExitTime)
	suite.Equal(types.TradeStatusLoss, report.Trades[0].Status)
	suite.Equal(types.OrderReasonStopLoss, report.Orders[1].Reason)
}

func (suite *BacktestEngineTestSuite) TestDailyTradeLimit() {
	cfg := config.TestConfig()
	cfg.Risk.MaxDailyTrades = 1

	bars := suite.flat(8, 100)
	report := suite.run(suite.scriptedEngine(cfg, map[int]types.Action{
		1: types.ActionBuy,
		3: types.ActionSell,
		5: types.ActionBuy,
	}), bars)

	suite.Len(report.Trades, 1)
	suite.Equal([]types.RiskVeto{{Time: bars[4].Time, Action: types.ActionBuy, Reason: types.VetoReasonDailyTradeLimit}}, report.Vetoes)
	suite.Equal(1, report.Stats.Vetoes[types.VetoReasonDailyTradeLimit])
}

func (suite *BacktestEngineTestSuite) TestDailyLimitsFollowReportTimezone() {
	// Bar 3 is 00:00 on Jan 2 in Tokyo and 15:00 on Jan 1 in UTC.
	bars := mocks.GenerateFlat("ETHUSDT", time.Date(2024, 1, 1, 14, 45, 0, 0, time.UTC), 5*time.Minute, 8, 100)
	actions := map[int]types.Action{
		1: types.ActionBuy,
		3: types.ActionSell,
		5: types.ActionBuy,
	}

	tests := []struct {
		timezone string
		vetoes   int
		trades   int
	}{
		{timezone: "UTC", vetoes: 1, trades: 1},
		{timezone: "Asia/Tokyo", vetoes: 0, trades: 2},
	}

	for _, tc := range tests {
		suite.Run(tc.timezone, func() {
			cfg := config.TestConfig()
			cfg.Risk.MaxDailyTrades = 1
			cfg.Report.Timezone = tc.timezone

			report := suite.run(suite.scriptedEngine(cfg, actions), bars)

			suite.Len(report.Vetoes, tc.vetoes)
			suite.Len(report.Trades, tc.trades)
		})
	}
}

func (suite *BacktestEngineTestSuite) TestDailyLossLimitLastsUntilNextDay() {
	cfg := config.TestConfig()
	cfg.Risk.MaxDailyLossPct = 0.004

	prices := make([]float64, 14)
	for i := range prices {
		prices[i] = 99
		if i < 3 {
			prices[i] = 100
		}
	}

	// Bar 9 is the first bar of the next day.
	start := time.Date(2024, 1, 1, 23, 20, 0, 0, time.UTC)
	bars := mocks.GenerateFromOpens("ETHUSDT", start, 5*time.Minute, prices)

	report := suite.run(suite.scriptedEngine(cfg, map[int]types.Action{
		1:  types.ActionBuy,
		3:  types.ActionSell,
		5:  types.ActionBuy,
		10: types.ActionBuy,
	}), bars)

	suite.Equal([]types.RiskVeto{{Time: bars[4].Time, Action: types.ActionBuy, Reason: types.VetoReasonDailyLossLimit}}, report.Vetoes)

	suite.Require().Len(report.Trades, 2)
	suite.Equal(types.TradeStatusLoss, report.Trades[0].Status)
	suite.InDelta(-5.0, report.Trades[0].PnL, 1e-9)
	suite.Equal(bars[10].Time, report.Trades[1].EntryTime)
	suite.Equal(types.ExitReasonEndOfData, report.Trades[1].ExitReason)
}

func (suite *BacktestEngineTestSuite) TestDeterministic() {
	cfg := config.TestConfig()
	cfg.Execution = execution.DefaultConfig()

	bars := suite.generated(600, 0.004)

	first, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.Require().NoError(err)

	second, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.Require().NoError(err)

	a := suite.run(first, bars)
	suite.NotEmpty(a.Orders)

	suite.Equal(a, suite.run(first, bars), "reused engine")
	suite.Equal(a, suite.run(second, bars), "fresh engine")
}

func (suite *BacktestEngineTestSuite) TestNoLookAhead() {
	cfg := config.TestConfig()
	cfg.Execution = execution.DefaultConfig()

	bars := suite.generated(600, 0.004)
	cut := 400

	full, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.Require().NoError(err)

	truncated, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.Require().NoError(err)

	fullReport := suite.run(full, bars)
	truncatedReport := suite.run(truncated, bars[:cut])

	// Everything before the truncated run's settlement bar must match.
	suite.Equal(fullReport.EquityCurve[:cut-1], truncatedReport.EquityCurve[:cut-1])

	var fullVetoes []types.RiskVeto

	for _, veto := range fullReport.Vetoes {
		if veto.Time.Before(bars[cut].Time) {
			fullVetoes = append(fullVetoes, veto)
		}
	}

	suite.Equal(fullVetoes, truncatedReport.Vetoes)
}

func (suite *BacktestEngineTestSuite) TestInvariants() {
	cfg := config.TestConfig()
	cfg.Execution = execution.DefaultConfig()
	cfg.Risk.MaxDailyTrades = 3

	e, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.Require().NoError(err)

	onBar := engine.OnBarCallback(func(_ int, bar types.Bar, account types.AccountState) error {
		suite.GreaterOrEqual(account.Cash, -1e-9, "cash at %s", bar.Time)
		suite.LessOrEqual(account.DailyTradeCount, cfg.Risk.MaxDailyTrades)

		return nil
	})

	report, err := e.Run(context.Background(), types.BarSeq(suite.generated(2000, 0.01)), engine.LifecycleCallbacks{OnBar: &onBar})
	suite.Require().NoError(err)
	suite.NotEmpty(report.Trades)

	entries, exits := 0, 0
	ids := make(map[string]bool)

	for _, order := range report.Orders {
		suite.False(ids[order.ID], "duplicate order id %s", order.ID)
		ids[order.ID] = true

		suite.True(order.Status.IsTerminal())

		if order.Status != types.OrderStatusFilled {
			continue
		}

		if order.Intent == types.OrderIntentEntry {
			entries++
		} else {
			exits++
		}
	}

	suite.Equal(entries, exits)
	suite.Equal(len(report.Trades), exits)

	for i := 1; i < len(report.Trades); i++ {
		suite.False(report.Trades[i].EntryTime.Before(report.Trades[i-1].ExitTime), "trades overlap")
	}
}

func (suite *BacktestEngineTestSuite) TestDataErrorsAbortTheRun() {
	bars := suite.flat(3, 100)

	tests := []struct {
		name string
		bars []types.Bar
	}{
		{name: "duplicate", bars: []types.Bar{bars[0], bars[1], bars[1]}},
		{name: "out of order", bars: []types.Bar{bars[0], bars[2], bars[1]}},
		{name: "high below low", bars: []types.Bar{bars[0], {Symbol: "ETHUSDT", Time: bars[1].Time, Open: 100, High: 90, Low: 110, Close: 100}}},
		{name: "other symbol", bars: []types.Bar{bars[0], {Symbol: "BTCUSDT", Time: bars[1].Time, Open: 1, High: 1, Low: 1, Close: 1}}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			e := suite.scriptedEngine(config.TestConfig(), nil)

			_, err := e.Run(context.Background(), types.BarSeq(tc.bars), engine.LifecycleCallbacks{})
			suite.Error(err)
			suite.True(errors.IsDataError(err), "got %v", err)
		})
	}
}

func (suite *BacktestEngineTestSuite) TestSourceErrorIsCollaboratorFailure() {
	var source iter.Seq2[types.Bar, error] = func(yield func(types.Bar, error) bool) {
		if !yield(suite.flat(1, 100)[0], nil) {
			return
		}

		yield(types.Bar{}, errors.New(errors.ErrCodeMarketDataFetchFailed, "connection reset"))
	}

	_, err := suite.scriptedEngine(config.TestConfig(), nil).Run(context.Background(), source, engine.LifecycleCallbacks{})
	suite.True(errors.IsCollaboratorFailure(err))
}

func (suite *BacktestEngineTestSuite) TestCallbacks() {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)/10
	}

	e := suite.scriptedEngine(config.TestConfig(), map[int]types.Action{10: types.ActionBuy, 20: types.ActionSell})

	var (
		started  []string
		barCount int
		orders   []types.OrderStatus
		trades   int
		ended    bool
	)

	onStart := engine.OnRunStartCallback(func(runID string, symbol string) error {
		started = append(started, runID, symbol)

		return nil
	})
	onBar := engine.OnBarCallback(func(index int, _ types.Bar, _ types.AccountState) error {
		barCount = index

		return nil
	})
	onOrder := engine.OnOrderCallback(func(order types.Order) error {
		orders = append(orders, order.Status)

		return nil
	})
	onTrade := engine.OnTradeCallback(func(types.TradeRecord) error {
		trades++

		return nil
	})
	onEnd := engine.OnRunEndCallback(func(report types.BacktestReport, err error) {
		ended = true

		suite.NoError(err)
		suite.Len(report.Trades, 1)
	})

	_, err := e.Run(context.Background(), types.BarSeq(mocks.GenerateFromOpens("ETHUSDT", suite.start, 5*time.Minute, prices)), engine.LifecycleCallbacks{
		OnRunStart: &onStart,
		OnRunEnd:   &onEnd,
		OnBar:      &onBar,
		OnOrder:    &onOrder,
		OnTrade:    &onTrade,
	})
	suite.Require().NoError(err)

	suite.Equal([]string{"test-run", "ETHUSDT"}, started)
	suite.Equal(30, barCount)
	suite.Equal([]types.OrderStatus{
		types.OrderStatusPending, types.OrderStatusFilled,
		types.OrderStatusPending, types.OrderStatusFilled,
	}, orders)
	suite.Equal(1, trades)
	suite.True(ended)
}

func (suite *BacktestEngineTestSuite) TestCallbackErrorAbortsRun() {
	e := suite.scriptedEngine(config.TestConfig(), map[int]types.Action{2: types.ActionBuy})

	onOrder := engine.OnOrderCallback(func(types.Order) error {
		return errors.New(errors.ErrCodeReportWriteFailed, "disk full")
	})

	_, err := e.Run(context.Background(), types.BarSeq(suite.flat(5, 100)), engine.LifecycleCallbacks{OnOrder: &onOrder})
	suite.True(errors.HasCode(err, errors.ErrCodeReportWriteFailed))
}

func (suite *BacktestEngineTestSuite) TestContextCancelledBetweenBars() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := suite.scriptedEngine(config.TestConfig(), nil)

	var endErr error

	onBar := engine.OnBarCallback(func(index int, _ types.Bar, _ types.AccountState) error {
		if index == 3 {
			cancel()
		}

		return nil
	})
	onEnd := engine.OnRunEndCallback(func(report types.BacktestReport, err error) {
		endErr = err

		suite.Equal(3, report.Stats.BarsProcessed)
	})

	_, err := e.Run(ctx, types.BarSeq(suite.flat(10, 100)), engine.LifecycleCallbacks{OnBar: &onBar, OnRunEnd: &onEnd})
	suite.ErrorIs(err, context.Canceled)
	suite.ErrorIs(endErr, context.Canceled)
}

func (suite *BacktestEngineTestSuite) TestRunIsNotReentrant() {
	e := suite.scriptedEngine(config.TestConfig(), nil)

	var nestedErr error

	onBar := engine.OnBarCallback(func(index int, _ types.Bar, _ types.AccountState) error {
		if index == 1 {
			_, nestedErr = e.Run(context.Background(), types.BarSeq(nil), engine.LifecycleCallbacks{})
		}

		return nil
	})

	_, err := e.Run(context.Background(), types.BarSeq(suite.flat(3, 100)), engine.LifecycleCallbacks{OnBar: &onBar})
	suite.Require().NoError(err)
	suite.True(errors.HasCode(nestedErr, errors.ErrCodeEngineBusy))

	// The guard is released once the run returns.
	suite.run(e, suite.flat(3, 100))
}

func (suite *BacktestEngineTestSuite) TestNewEngineRejectsBadConfig() {
	cfg := config.TestConfig()
	cfg.InitialCash = 0

	_, err := NewBacktestEngineV1(cfg, nil, nil)
	suite.True(errors.IsConfigurationError(err))

	cfg = config.TestConfig()
	cfg.Strategy = "rsi"

	_, err = NewBacktestEngineV1(cfg, nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedStrategy))
}

func (suite *BacktestEngineTestSuite) TestGetConfigSchema() {
	e := suite.scriptedEngine(config.TestConfig(), nil)

	schema, err := e.GetConfigSchema()
	suite.Require().NoError(err)
	suite.Contains(schema, "fill_policy")
	suite.Contains(schema, "#/$defs/ExecutionConfig")
	suite.NotContains(schema, "#/$defs/Config\"")
}
