// Package risk sizes entries and enforces the daily trade and loss limits.
// The manager only advises: account state changes when an order fills.
package risk

import (
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/internal/utils"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

type Config struct {
	MaxDailyTrades  int     `yaml:"max_daily_trades" json:"max_daily_trades" jsonschema:"title=Max Daily Trades,description=Maximum entries per calendar day,minimum=1,default=10" validate:"gt=0"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct" jsonschema:"title=Max Daily Loss,description=Realized loss per day as a fraction of peak equity,exclusiveMinimum=0,maximum=1,default=0.05" validate:"gt=0,lte=1"`
	BaseRiskPct     float64 `yaml:"base_risk_pct" json:"base_risk_pct" jsonschema:"title=Base Risk,description=Fraction of equity risked per trade at zero confidence,exclusiveMinimum=0,maximum=1,default=0.01" validate:"gt=0,lte=1"`
	MaxRiskPct      float64 `yaml:"max_risk_pct" json:"max_risk_pct" jsonschema:"title=Max Risk,description=Fraction of equity risked per trade at full confidence,exclusiveMinimum=0,maximum=1,default=0.02" validate:"gt=0,lte=1,gtefield=BaseRiskPct"`
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" jsonschema:"title=Stop Loss,description=Stop distance as a fraction of the entry price,exclusiveMinimum=0,exclusiveMaximum=1,default=0.02" validate:"gt=0,lt=1"`
	// TakeProfitPct of 0 disables the profit target.
	TakeProfitPct     float64 `yaml:"take_profit_pct" json:"take_profit_pct" jsonschema:"title=Take Profit,description=Target distance as a fraction of the entry price,minimum=0,default=0.04" validate:"gte=0"`
	QuantityPrecision int     `yaml:"quantity_precision" json:"quantity_precision" jsonschema:"title=Quantity Precision,description=Decimal places orders are floored to,minimum=0,maximum=12,default=6" validate:"gte=0,lte=12"`
}

func DefaultConfig() Config {
	return Config{
		MaxDailyTrades:    10,
		MaxDailyLossPct:   0.05,
		BaseRiskPct:       0.01,
		MaxRiskPct:        0.02,
		StopLossPct:       0.02,
		TakeProfitPct:     0.04,
		QuantityPrecision: 6,
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk config", err)
	}

	return nil
}

// StopLoss is the protective stop for an entry filled at price.
func (c Config) StopLoss(side types.PositionType, price float64) float64 {
	if side == types.PositionTypeShort {
		return price * (1 + c.StopLossPct)
	}

	return price * (1 - c.StopLossPct)
}

// TakeProfit is the profit target for an entry filled at price, 0 when disabled.
func (c Config) TakeProfit(side types.PositionType, price float64) float64 {
	if c.TakeProfitPct == 0 {
		return 0
	}

	if side == types.PositionTypeShort {
		return price * (1 - c.TakeProfitPct)
	}

	return price * (1 + c.TakeProfitPct)
}

type Manager struct {
	config Config
	fee    commission_fee.CommissionFee
}

func NewManager(config Config, fee commission_fee.CommissionFee) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if fee == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "risk manager requires a fee model")
	}

	return &Manager{config: config, fee: fee}, nil
}

func (m *Manager) Config() Config {
	return m.config
}

// Evaluate approves or vetoes a proposal against the account. BUY while flat
// is an entry, SELL while long is an exit. HOLD is never approved.
//
// Checks short-circuit in this order: daily trade limit (entries only),
// daily loss limit, then sizing (entries only).
func (m *Manager) Evaluate(proposal types.Proposal, account types.AccountState) types.RiskDecision {
	if proposal.Action == types.ActionHold {
		return types.RiskDecision{}
	}

	entry := proposal.Action == types.ActionBuy

	if entry && account.HasPosition() {
		return types.Veto(types.VetoReasonPositionOpen)
	}

	if !entry && !account.HasPosition() {
		return types.Veto(types.VetoReasonNoPosition)
	}

	if entry && account.DailyTradeCount >= m.config.MaxDailyTrades {
		return types.Veto(types.VetoReasonDailyTradeLimit)
	}

	if account.DailyLoss >= m.config.MaxDailyLossPct*account.PeakEquity {
		return types.Veto(types.VetoReasonDailyLossLimit)
	}

	if !entry {
		return types.Approve(account.Position.Unwrap().Quantity)
	}

	quantity := m.Size(proposal.Price, proposal.Confidence, account)
	if quantity <= 0 {
		return types.Veto(types.VetoReasonInsufficientCapital)
	}

	return types.Approve(quantity)
}

// RiskPct interpolates the risk budget between base and max by confidence.
func (m *Manager) RiskPct(confidence float64) float64 {
	confidence = math.Min(1, math.Max(0, confidence))

	return m.config.BaseRiskPct + (m.config.MaxRiskPct-m.config.BaseRiskPct)*confidence
}

// Size returns the entry quantity risking RiskPct of equity over the stop
// distance, capped by what cash can pay for including the fee.
func (m *Manager) Size(price float64, confidence float64, account types.AccountState) float64 {
	if price <= 0 || account.Equity <= 0 {
		return 0
	}

	quantity := m.RiskPct(confidence) * account.Equity / (price * m.config.StopLossPct)

	if quantity*price+m.fee.Calculate(quantity, price) > account.Cash {
		return utils.AffordableQuantity(account.Cash, price, m.fee, m.config.QuantityPrecision)
	}

	return utils.RoundToDecimalPrecision(quantity, m.config.QuantityPrecision)
}
