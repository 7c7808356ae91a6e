package types

import "time"

type ExitReason string

const (
	ExitReasonSignal     ExitReason = "SIGNAL"
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonEndOfData  ExitReason = "END_OF_DATA"
)

// OrderReason maps the exit reason onto the reason recorded on the exit order.
func (r ExitReason) OrderReason() string {
	switch r {
	case ExitReasonStopLoss:
		return OrderReasonStopLoss
	case ExitReasonTakeProfit:
		return OrderReasonTakeProfit
	case ExitReasonEndOfData:
		return OrderReasonEndOfData
	default:
		return OrderReasonStrategy
	}
}

type TradeStatus string

const (
	TradeStatusWin       TradeStatus = "WIN"
	TradeStatusLoss      TradeStatus = "LOSS"
	TradeStatusBreakeven TradeStatus = "BREAKEVEN"
)

// TradeRecord is the immutable log entry written when a position closes.
type TradeRecord struct {
	Symbol       string        `yaml:"symbol" json:"symbol" csv:"symbol"`
	PositionType PositionType  `yaml:"position_type" json:"position_type" csv:"position_type"`
	Quantity     float64       `yaml:"quantity" json:"quantity" csv:"quantity"`
	EntryTime    time.Time     `yaml:"entry_time" json:"entry_time" csv:"entry_time"`
	EntryPrice   float64       `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	ExitTime     time.Time     `yaml:"exit_time" json:"exit_time" csv:"exit_time"`
	ExitPrice    float64       `yaml:"exit_price" json:"exit_price" csv:"exit_price"`
	Fees         float64       `yaml:"fees" json:"fees" csv:"fees"`
	PnL          float64       `yaml:"pnl" json:"pnl" csv:"pnl"`
	ReturnPct    float64       `yaml:"return_pct" json:"return_pct" csv:"return_pct"`
	Duration     time.Duration `yaml:"duration" json:"duration" csv:"duration"`
	Status       TradeStatus   `yaml:"status" json:"status" csv:"status"`
	ExitReason   ExitReason    `yaml:"exit_reason" json:"exit_reason" csv:"exit_reason"`
	EntryOrderID string        `yaml:"entry_order_id" json:"entry_order_id" csv:"entry_order_id"`
	ExitOrderID  string        `yaml:"exit_order_id" json:"exit_order_id" csv:"exit_order_id"`
}

// EquitySample is the marked-to-market equity at the close of one bar.
type EquitySample struct {
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Equity float64   `yaml:"equity" json:"equity" csv:"equity"`
}
