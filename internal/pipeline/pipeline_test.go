package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy-engine/internal/config"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/mocks"
	"github.com/rxtech-lab/argo-strategy-engine/mocks/scripted"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type PipelineTestSuite struct {
	suite.Suite
	start time.Time
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (suite *PipelineTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

type recordingObserver struct {
	orders []types.Order
	trades []types.TradeRecord
	vetoes []types.RiskVeto
}

func (r *recordingObserver) OnOrder(order types.Order) error {
	r.orders = append(r.orders, order)

	return nil
}

func (r *recordingObserver) OnTrade(trade types.TradeRecord) error {
	r.trades = append(r.trades, trade)

	return nil
}

func (r *recordingObserver) OnVeto(veto types.RiskVeto) error {
	r.vetoes = append(r.vetoes, veto)

	return nil
}

type fakeBroker struct {
	orders []types.Order
	fill   func(order types.Order) (types.Fill, error)
}

func (f *fakeBroker) PlaceOrder(_ context.Context, order types.Order) (types.Fill, error) {
	f.orders = append(f.orders, order)

	return f.fill(order)
}

func (suite *PipelineTestSuite) TestProcessApprovesAndVetoes() {
	strat := scripted.NewStrategy(map[int]types.Action{1: types.ActionSell, 2: types.ActionBuy})

	p, err := New(config.TestConfig(), strat, nil)
	suite.Require().NoError(err)

	observer := &recordingObserver{}
	p.SetObserver(observer)

	ctx := context.Background()
	bars := mocks.GenerateFlat("ETHUSDT", suite.start, time.Minute, 3, 100)

	// SELL while flat is vetoed.
	suite.Require().NoError(p.Process(ctx, bars[0]))
	suite.Equal([]types.RiskVeto{{Time: bars[0].Time, Action: types.ActionSell, Reason: types.VetoReasonNoPosition}}, observer.vetoes)
	suite.Empty(observer.orders)

	// BUY is approved and sized at 1% of equity over a 2% stop.
	suite.Require().NoError(p.Process(ctx, bars[1]))
	suite.Require().Len(observer.orders, 1)
	suite.Equal(5.0, observer.orders[0].RequestedQuantity)
	suite.Equal(types.OrderStatusPending, observer.orders[0].Status)
	suite.True(p.Simulator().Pending().IsSome())

	// The next bar fills it at the open.
	suite.Require().NoError(p.Process(ctx, bars[2]))
	suite.True(p.Account().HasPosition())
	suite.Require().Len(observer.orders, 2)
	suite.Equal(types.OrderStatusFilled, observer.orders[1].Status)

	suite.Require().NoError(p.Settle())
	suite.Len(observer.trades, 1)
	suite.False(p.Account().HasPosition())

	report := p.Report()
	suite.Equal(3, report.Stats.BarsProcessed)
	suite.Equal(3, p.BarsProcessed())
	suite.Equal(scripted.StrategyName, report.Stats.Strategy)
	suite.Equal(bars[2].Time, report.Stats.Timestamp)
	suite.Len(report.EquityCurve, 3)
}

func (suite *PipelineTestSuite) TestProcessWithBroker() {
	bars := mocks.GenerateFlat("ETHUSDT", suite.start, time.Minute, 3, 100)

	filled := func(order types.Order) (types.Fill, error) {
		return types.Fill{Price: 100.5, Time: order.RequestedAt, Fee: 0.1}, nil
	}

	tests := []struct {
		name           string
		fill           func(order types.Order) (types.Fill, error)
		expectCode     errors.ErrorCode
		expectStatus   types.OrderStatus
		expectReason   string
		expectPosition bool
	}{
		{
			name:           "fill opens the position at the broker price",
			fill:           filled,
			expectStatus:   types.OrderStatusFilled,
			expectReason:   types.OrderReasonStrategy,
			expectPosition: true,
		},
		{
			name: "rejection is recorded and the run continues",
			fill: func(types.Order) (types.Fill, error) {
				return types.Fill{}, errors.New(errors.ErrCodeOrderRejected, "insufficient balance")
			},
			expectStatus: types.OrderStatusRejected,
			expectReason: types.OrderReasonBrokerRejected,
		},
		{
			name: "other failures cancel the order and abort",
			fill: func(types.Order) (types.Fill, error) {
				return types.Fill{}, errors.New(errors.ErrCodeBrokerUnavailable, "connection reset")
			},
			expectCode:   errors.ErrCodeCollaboratorFailure,
			expectStatus: types.OrderStatusCancelled,
			expectReason: types.OrderReasonBrokerError,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			p, err := New(config.TestConfig(), scripted.NewStrategy(map[int]types.Action{1: types.ActionBuy}), nil)
			suite.Require().NoError(err)

			observer := &recordingObserver{}
			p.SetObserver(observer)

			broker := &fakeBroker{fill: tc.fill}
			p.SetBroker(broker)

			err = p.Process(context.Background(), bars[0])
			if tc.expectCode != 0 {
				suite.True(errors.HasCode(err, tc.expectCode), "got %v", err)
			} else {
				suite.Require().NoError(err)
			}

			suite.Len(broker.orders, 1)
			suite.Equal(5.0, broker.orders[0].RequestedQuantity)

			// The observer sees the order go out, then its outcome.
			suite.Require().Len(observer.orders, 2)
			suite.Equal(types.OrderStatusPending, observer.orders[0].Status)
			suite.Equal(tc.expectStatus, observer.orders[1].Status)
			suite.Equal(tc.expectReason, observer.orders[1].Reason)
			suite.Equal(tc.expectPosition, p.Account().HasPosition())
			suite.True(p.Simulator().Pending().IsNone())

			if tc.expectPosition {
				suite.Equal(100.5, p.Account().Position.Unwrap().EntryPrice)
			}
		})
	}
}

func (suite *PipelineTestSuite) TestBrokerClosesOnSignalAndStop() {
	bars := mocks.GenerateFlat("ETHUSDT", suite.start, time.Minute, 3, 100)
	// bars[2] trades down through the 2% stop at 98.
	bars[2].Low = 97
	bars[2].Open = 99
	bars[2].Close = 99

	broker := &fakeBroker{fill: func(order types.Order) (types.Fill, error) {
		return types.Fill{Price: order.SignalPrice, Time: order.RequestedAt}, nil
	}}

	p, err := New(config.TestConfig(), scripted.NewStrategy(map[int]types.Action{1: types.ActionBuy}), nil)
	suite.Require().NoError(err)

	observer := &recordingObserver{}
	p.SetObserver(observer)
	p.SetBroker(broker)

	ctx := context.Background()
	for _, bar := range bars {
		suite.Require().NoError(p.Process(ctx, bar))
	}

	suite.Require().Len(broker.orders, 2)
	suite.Equal(types.OrderIntentExit, broker.orders[1].Intent)
	suite.Equal(types.OrderReasonStopLoss, broker.orders[1].Reason)

	suite.Require().Len(observer.trades, 1)
	suite.Equal(types.ExitReasonStopLoss, observer.trades[0].ExitReason)
	suite.False(p.Account().HasPosition())
}

func (suite *PipelineTestSuite) TestAcceptRejectsWithoutSideEffects() {
	p, err := New(config.TestConfig(), scripted.NewStrategy(nil), nil)
	suite.Require().NoError(err)

	bars := mocks.GenerateFlat("ETHUSDT", suite.start, time.Minute, 2, 100)
	suite.Require().NoError(p.Accept(bars[1]))

	err = p.Accept(bars[0])
	suite.True(errors.HasCode(err, errors.ErrCodeNonMonotonicBar))

	// The sequencer still remembers bars[1].
	suite.True(errors.HasCode(p.Accept(bars[1]), errors.ErrCodeDuplicateBar))
}

func (suite *PipelineTestSuite) TestWarmPrimesWithoutTrading() {
	strat := scripted.NewStrategy(map[int]types.Action{1: types.ActionBuy, 3: types.ActionBuy})

	p, err := New(config.TestConfig(), strat, nil)
	suite.Require().NoError(err)

	observer := &recordingObserver{}
	p.SetObserver(observer)

	bars := mocks.GenerateFlat("ETHUSDT", suite.start, time.Minute, 3, 100)

	// The BUY planned for the first bar is never evaluated.
	suite.Require().NoError(p.Warm(bars[0]))
	suite.Require().NoError(p.Warm(bars[1]))
	suite.Empty(strat.Evaluated)
	suite.Equal(0, p.BarsProcessed())
	suite.Empty(p.Report().EquityCurve)

	// Warm bars still count for ordering.
	suite.True(errors.HasCode(p.Warm(bars[1]), errors.ErrCodeDuplicateBar))

	suite.Require().NoError(p.Process(context.Background(), bars[2]))
	suite.Len(observer.orders, 1)
	suite.Equal(1, p.BarsProcessed())
}

func (suite *PipelineTestSuite) TestNewRequiresStrategy() {
	_, err := New(config.TestConfig(), nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))
}

func (suite *PipelineTestSuite) equity(values ...float64) []types.EquitySample {
	samples := make([]types.EquitySample, len(values))
	for i, v := range values {
		samples[i] = types.EquitySample{Time: suite.start.Add(time.Duration(i) * time.Minute), Equity: v}
	}

	return samples
}

func (suite *PipelineTestSuite) TestSharpeRatio() {
	tests := []struct {
		name     string
		equity   []types.EquitySample
		periods  float64
		expected float64
	}{
		{name: "empty", equity: nil, periods: 252, expected: 0},
		{name: "single return", equity: suite.equity(100, 110), periods: 252, expected: 0},
		{name: "constant returns", equity: suite.equity(100, 100, 100, 100), periods: 252, expected: 0},
		// Returns 0.1 and -0.1: mean 0.
		{name: "zero mean", equity: suite.equity(100, 110, 99), periods: 252, expected: 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.expected, SharpeRatio(tc.equity, tc.periods), 1e-9)
		})
	}

	// Returns 0.1 and 0.2: mean 0.15, sample std 0.0707.
	expected := 0.15 / math.Sqrt(0.005) * math.Sqrt(4)
	suite.InDelta(expected, SharpeRatio(suite.equity(100, 110, 132), 4), 1e-9)
	suite.InDelta(0.15/math.Sqrt(0.005), SharpeRatio(suite.equity(100, 110, 132), 0), 1e-9)
}

func (suite *PipelineTestSuite) TestMaxDrawdown() {
	suite.Equal(0.0, MaxDrawdown(nil))
	suite.Equal(0.0, MaxDrawdown(suite.equity(100, 110, 120)))
	suite.InDelta(0.25, MaxDrawdown(suite.equity(100, 120, 90, 110, 100)), 1e-12)
}

func (suite *PipelineTestSuite) TestCalculateTradeResult() {
	trades := []types.TradeRecord{
		{PnL: 30, Status: types.TradeStatusWin, Duration: time.Minute},
		{PnL: -10, Status: types.TradeStatusLoss, Duration: 3 * time.Minute},
		{PnL: 0, Status: types.TradeStatusBreakeven, Duration: 2 * time.Minute},
		{PnL: -5, Status: types.TradeStatusLoss, Duration: 2 * time.Minute},
	}

	result := CalculateTradeResult(trades)
	suite.Equal(4, result.NumberOfTrades)
	suite.Equal(1, result.NumberOfWinningTrades)
	suite.Equal(2, result.NumberOfLosingTrades)
	suite.Equal(0.25, result.WinRate)
	suite.Equal(2.0, result.ProfitFactor)
	suite.Equal(3.75, result.AveragePnL)

	suite.Equal(types.TradeHoldingTime{Min: 60, Max: 180, Avg: 120}, CalculateHoldingTime(trades))

	noLosses := CalculateTradeResult(trades[:1])
	suite.Equal(0.0, noLosses.ProfitFactor)
	suite.Equal(types.TradeResult{}, CalculateTradeResult(nil))
}

func (suite *PipelineTestSuite) TestCalculatePerformanceAndFees() {
	performance := CalculatePerformance(1000, suite.equity(1000, 1100, 1050), 0)
	suite.Equal(1050.0, performance.FinalEquity)
	suite.InDelta(0.05, performance.TotalReturn, 1e-12)

	orders := []types.Order{
		{Status: types.OrderStatusFilled, Fee: 0.1},
		{Status: types.OrderStatusFilled, Fee: 0.2},
		{Status: types.OrderStatusRejected, Fee: 5},
	}
	suite.Equal(0.3, CalculateTotalFees(orders))

	first := types.Bar{Open: 100}
	last := types.Bar{Close: 120}
	suite.InDelta(0.2, BuyAndHoldReturn(first, last), 1e-12)
}
