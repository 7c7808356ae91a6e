// Package execution turns approved actions into orders and advances them
// through PENDING -> FILLED | CANCELLED | REJECTED, applying every fill to the
// account and position.
package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/risk"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// orderNamespace seeds the name-based order IDs so a run id and sequence
// number always map to the same UUID.
var orderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("argo-strategy-engine/order"))

// Outcome is the result of one order event: the order in its latest state,
// plus the trade record when the event closed a position.
type Outcome struct {
	Order types.Order
	Trade optional.Option[types.TradeRecord]
}

// Simulator is the order state machine for one run. It is not safe for
// concurrent use.
type Simulator struct {
	symbol string
	config Config
	risk   risk.Config
	fee    commission_fee.CommissionFee
	logger *logger.Logger

	runID    string
	sequence int
	pending  int
	orders   []types.Order
	trades   []types.TradeRecord
}

// NewSimulator creates the simulator of one symbol. Every order it opens is
// for symbol, whatever the bar carries.
func NewSimulator(symbol string, config Config, riskConfig risk.Config, fee commission_fee.CommissionFee, log *logger.Logger) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if symbol == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "simulator requires a symbol")
	}

	if fee == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "simulator requires a fee model")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Simulator{
		symbol:  symbol,
		config:  config,
		risk:    riskConfig,
		fee:     fee,
		logger:  log.Named("execution"),
		pending: -1,
	}, nil
}

// Reset clears all orders and trades and starts a new id sequence for runID.
func (s *Simulator) Reset(runID string) {
	s.runID = runID
	s.sequence = 0
	s.pending = -1
	s.orders = nil
	s.trades = nil
}

func (s *Simulator) Orders() []types.Order {
	return s.orders
}

func (s *Simulator) Trades() []types.TradeRecord {
	return s.trades
}

// Pending returns the order waiting for the next bar, if any.
func (s *Simulator) Pending() optional.Option[types.Order] {
	if s.pending < 0 {
		return optional.None[types.Order]()
	}

	return optional.Some(s.orders[s.pending])
}

func (s *Simulator) nextID() string {
	s.sequence++

	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s/%d", s.runID, s.sequence))).String()
}

// Open records a new PENDING order for the approved action. Only one order may
// be pending at a time.
func (s *Simulator) Open(bar types.Bar, action types.Action, quantity float64, account types.AccountState) (types.Order, error) {
	if s.pending >= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidOrder, "order %s is still pending", s.orders[s.pending].ID)
	}

	intent := types.OrderIntentEntry
	side := types.PurchaseTypeBuy

	if account.HasPosition() {
		intent = types.OrderIntentExit
		side = account.Position.Unwrap().ExitSide()
	} else if action == types.ActionSell {
		side = types.PurchaseTypeSell
	}

	order := types.Order{
		ID:                s.nextID(),
		Symbol:            s.symbol,
		Side:              side,
		Intent:            intent,
		RequestedQuantity: quantity,
		Status:            types.OrderStatusPending,
		RequestedAt:       bar.Time,
		SignalPrice:       bar.Close,
		FilledAt:          optional.None[time.Time](),
		FillPrice:         optional.None[float64](),
		Fee:               0,
		Reason:            types.OrderReasonStrategy,
	}

	if err := order.Validate(); err != nil {
		return types.Order{}, err
	}

	s.orders = append(s.orders, order)
	s.pending = len(s.orders) - 1

	s.logger.Debug("Order submitted",
		zap.String("id", order.ID),
		zap.String("side", string(order.Side)),
		zap.String("intent", string(order.Intent)),
		zap.Float64("quantity", order.RequestedQuantity),
		zap.Time("requested_at", order.RequestedAt),
	)

	return order, nil
}

// Submit opens an order and, under the signal_close policy, fills it at the
// signal bar's close right away.
func (s *Simulator) Submit(bar types.Bar, action types.Action, quantity float64, account *types.AccountState) (Outcome, error) {
	order, err := s.Open(bar, action, quantity, *account)
	if err != nil {
		return Outcome{}, err
	}

	if s.config.FillPolicy != FillPolicySignalClose {
		return Outcome{Order: order, Trade: optional.None[types.TradeRecord]()}, nil
	}

	return s.fillPending(bar, bar.Close, types.ExitReasonSignal, account)
}

// ProcessPending runs the fill-time checks for the pending order against the
// bar after the signal bar. Checks run in order: stale data, slippage, cash.
func (s *Simulator) ProcessPending(bar types.Bar, account *types.AccountState) (optional.Option[Outcome], error) {
	if s.pending < 0 {
		return optional.None[Outcome](), nil
	}

	order := s.orders[s.pending]

	if s.config.StaleAfter > 0 && bar.Time.Sub(order.RequestedAt) > s.config.StaleAfter {
		outcome, err := s.CancelPending(types.OrderReasonStale)

		return optional.Some(outcome), err
	}

	if s.config.MaxSlippagePct > 0 && math.Abs(bar.Open-order.SignalPrice)/order.SignalPrice > s.config.MaxSlippagePct {
		outcome, err := s.RejectPending(types.OrderReasonSlippage)

		return optional.Some(outcome), err
	}

	if order.Intent == types.OrderIntentEntry && !s.affordable(order.RequestedQuantity, bar.Open, account.Cash) {
		outcome, err := s.RejectPending(types.OrderReasonInsufficientCash)

		return optional.Some(outcome), err
	}

	outcome, err := s.fillPending(bar, bar.Open, types.ExitReasonSignal, account)
	if err != nil {
		return optional.None[Outcome](), err
	}

	return optional.Some(outcome), nil
}

func (s *Simulator) affordable(quantity, price, cash float64) bool {
	return quantity*price+s.fee.Calculate(quantity, price) <= cash
}

// CancelPending moves the pending order to CANCELLED.
func (s *Simulator) CancelPending(reason string) (Outcome, error) {
	return s.terminatePending(reason, (*types.Order).Cancel)
}

// RejectPending moves the pending order to REJECTED.
func (s *Simulator) RejectPending(reason string) (Outcome, error) {
	return s.terminatePending(reason, (*types.Order).Reject)
}

func (s *Simulator) terminatePending(reason string, transition func(*types.Order, string) error) (Outcome, error) {
	if s.pending < 0 {
		return Outcome{}, errors.New(errors.ErrCodeInvalidOrderTransition, "no pending order")
	}

	order := &s.orders[s.pending]
	if err := transition(order, reason); err != nil {
		return Outcome{}, err
	}

	s.pending = -1

	s.logger.Info("Order not filled",
		zap.String("id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("reason", reason),
	)

	return Outcome{Order: *order, Trade: optional.None[types.TradeRecord]()}, nil
}

// FillPending applies an externally reported fill, as returned by a broker,
// to the pending order. reason is recorded on the trade when the fill closes
// the position.
func (s *Simulator) FillPending(fill types.Fill, reason types.ExitReason, account *types.AccountState) (Outcome, error) {
	if s.pending < 0 {
		return Outcome{}, errors.New(errors.ErrCodeInvalidOrderTransition, "no pending order")
	}

	if fill.Quantity > 0 {
		s.orders[s.pending].RequestedQuantity = fill.Quantity
	}

	return s.applyFill(fill.Time, fill.Price, fill.Fee, reason, account)
}

func (s *Simulator) fillPending(bar types.Bar, price float64, reason types.ExitReason, account *types.AccountState) (Outcome, error) {
	order := s.orders[s.pending]

	return s.applyFill(bar.Time, price, s.fee.Calculate(order.RequestedQuantity, price), reason, account)
}

func (s *Simulator) applyFill(at time.Time, price float64, fee float64, reason types.ExitReason, account *types.AccountState) (Outcome, error) {
	order := &s.orders[s.pending]
	if err := order.Fill(at, price, fee); err != nil {
		return Outcome{}, err
	}

	s.pending = -1

	if order.Intent == types.OrderIntentEntry {
		if err := s.openPosition(*order, account); err != nil {
			return Outcome{}, err
		}

		return Outcome{Order: *order, Trade: optional.None[types.TradeRecord]()}, nil
	}

	trade, err := s.closePosition(*order, reason, account)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Order: *order, Trade: optional.Some(trade)}, nil
}

func (s *Simulator) openPosition(order types.Order, account *types.AccountState) error {
	if account.HasPosition() {
		return errors.Newf(errors.ErrCodePositionAlreadyOpen, "cannot fill entry %s while a position is open", order.ID)
	}

	positionType := types.PositionTypeLong
	if order.Side == types.PurchaseTypeSell {
		positionType = types.PositionTypeShort
	}

	price := order.FillPrice.Unwrap()
	position := types.Position{
		Symbol:       order.Symbol,
		Type:         positionType,
		Quantity:     order.RequestedQuantity,
		EntryPrice:   price,
		EntryTime:    order.FilledAt.Unwrap(),
		EntryFee:     order.Fee,
		EntryOrderID: order.ID,
		StopLoss:     s.risk.StopLoss(positionType, price),
		TakeProfit:   s.risk.TakeProfit(positionType, price),
	}

	account.Cash -= position.MarketValue(price) + order.Fee
	account.DailyTradeCount++
	account.Position = optional.Some(position)
	account.MarkToMarket(price)

	s.logger.Info("Position opened",
		zap.String("order_id", order.ID),
		zap.String("type", string(position.Type)),
		zap.Float64("quantity", position.Quantity),
		zap.Float64("price", price),
		zap.Float64("fee", order.Fee),
		zap.Float64("stop_loss", position.StopLoss),
		zap.Float64("take_profit", position.TakeProfit),
	)

	return nil
}

func (s *Simulator) closePosition(order types.Order, reason types.ExitReason, account *types.AccountState) (types.TradeRecord, error) {
	if !account.HasPosition() {
		return types.TradeRecord{}, errors.Newf(errors.ErrCodePositionNotFound, "cannot fill exit %s without an open position", order.ID)
	}

	position := account.Position.Unwrap()
	exitPrice := order.FillPrice.Unwrap()
	exitTime := order.FilledAt.Unwrap()

	quantity := decimal.NewFromFloat(position.Quantity)
	sign := decimal.NewFromFloat(position.Sign())
	fees := decimal.NewFromFloat(position.EntryFee).Add(decimal.NewFromFloat(order.Fee))
	pnl := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(position.EntryPrice)).Mul(quantity).Mul(sign).Sub(fees)

	returnPct := decimal.Zero

	costBasis := decimal.NewFromFloat(position.EntryPrice).Mul(quantity)
	if !costBasis.IsZero() {
		returnPct = pnl.Div(costBasis)
	}

	status := types.TradeStatusBreakeven

	switch pnl.Sign() {
	case 1:
		status = types.TradeStatusWin
	case -1:
		status = types.TradeStatusLoss
	}

	trade := types.TradeRecord{
		Symbol:       position.Symbol,
		PositionType: position.Type,
		Quantity:     position.Quantity,
		EntryTime:    position.EntryTime,
		EntryPrice:   position.EntryPrice,
		ExitTime:     exitTime,
		ExitPrice:    exitPrice,
		Fees:         fees.InexactFloat64(),
		PnL:          pnl.InexactFloat64(),
		ReturnPct:    returnPct.InexactFloat64(),
		Duration:     exitTime.Sub(position.EntryTime),
		Status:       status,
		ExitReason:   reason,
		EntryOrderID: position.EntryOrderID,
		ExitOrderID:  order.ID,
	}

	account.Cash += position.MarketValue(exitPrice) - order.Fee
	account.Position = optional.None[types.Position]()
	account.MarkToMarket(exitPrice)

	if trade.PnL < 0 {
		account.DailyLoss += -trade.PnL
	}

	account.PeakEquity = math.Max(account.PeakEquity, account.Equity)

	s.trades = append(s.trades, trade)

	s.logger.Info("Position closed",
		zap.String("order_id", order.ID),
		zap.String("exit_reason", string(reason)),
		zap.Float64("price", exitPrice),
		zap.Float64("pnl", trade.PnL),
		zap.String("status", string(status)),
	)

	return trade, nil
}

// ProtectiveTrigger reports whether bar reaches the position's stop or target
// and at which price the exit fills. The stop is checked first. A gap through
// a level fills at the open.
func ProtectiveTrigger(bar types.Bar, position types.Position) (types.ExitReason, float64, bool) {
	if position.Type == types.PositionTypeShort {
		if position.StopLoss > 0 && bar.High >= position.StopLoss {
			return types.ExitReasonStopLoss, math.Max(bar.Open, position.StopLoss), true
		}

		if position.TakeProfit > 0 && bar.Low <= position.TakeProfit {
			return types.ExitReasonTakeProfit, math.Min(bar.Open, position.TakeProfit), true
		}

		return "", 0, false
	}

	if position.StopLoss > 0 && bar.Low <= position.StopLoss {
		return types.ExitReasonStopLoss, math.Min(bar.Open, position.StopLoss), true
	}

	if position.TakeProfit > 0 && bar.High >= position.TakeProfit {
		return types.ExitReasonTakeProfit, math.Max(bar.Open, position.TakeProfit), true
	}

	return "", 0, false
}

// CheckProtective closes the open position when bar hits its stop or target.
// Protective exits bypass the risk manager and fill within the bar.
func (s *Simulator) CheckProtective(bar types.Bar, account *types.AccountState) (optional.Option[Outcome], error) {
	if !account.HasPosition() {
		return optional.None[Outcome](), nil
	}

	reason, price, hit := ProtectiveTrigger(bar, account.Position.Unwrap())
	if !hit {
		return optional.None[Outcome](), nil
	}

	outcome, err := s.ClosePosition(bar, price, reason, account)
	if err != nil {
		return optional.None[Outcome](), err
	}

	return optional.Some(outcome), nil
}

// ClosePosition exits the open position immediately at price. Used for
// protective exits and end of data settlement.
func (s *Simulator) ClosePosition(bar types.Bar, price float64, reason types.ExitReason, account *types.AccountState) (Outcome, error) {
	if _, err := s.OpenExit(bar, price, reason, *account); err != nil {
		return Outcome{}, err
	}

	return s.fillPending(bar, price, reason, account)
}

// OpenExit records a PENDING order closing the whole position at price,
// tagged with reason.
func (s *Simulator) OpenExit(bar types.Bar, price float64, reason types.ExitReason, account types.AccountState) (types.Order, error) {
	if !account.HasPosition() {
		return types.Order{}, errors.New(errors.ErrCodePositionNotFound, "no position to exit")
	}

	if _, err := s.Open(bar, types.ActionSell, account.Position.Unwrap().Quantity, account); err != nil {
		return types.Order{}, err
	}

	s.orders[s.pending].Reason = reason.OrderReason()
	s.orders[s.pending].SignalPrice = price

	return s.orders[s.pending], nil
}

// Settle closes out the run at its last bar: a pending order is cancelled and
// an open position is closed at the bar's close with END_OF_DATA.
func (s *Simulator) Settle(bar types.Bar, account *types.AccountState) ([]Outcome, error) {
	var outcomes []Outcome

	if s.pending >= 0 {
		outcome, err := s.CancelPending(types.OrderReasonNoNextBar)
		if err != nil {
			return outcomes, err
		}

		outcomes = append(outcomes, outcome)
	}

	if account.HasPosition() {
		outcome, err := s.ClosePosition(bar, bar.Close, types.ExitReasonEndOfData, account)
		if err != nil {
			return outcomes, err
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}
