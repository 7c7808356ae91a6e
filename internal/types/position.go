package types

import "time"

type PositionType string

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

// Position is the single open holding for a symbol.
type Position struct {
	Symbol       string       `yaml:"symbol" json:"symbol"`
	Type         PositionType `yaml:"type" json:"type"`
	Quantity     float64      `yaml:"quantity" json:"quantity"`
	EntryPrice   float64      `yaml:"entry_price" json:"entry_price"`
	EntryTime    time.Time    `yaml:"entry_time" json:"entry_time"`
	EntryFee     float64      `yaml:"entry_fee" json:"entry_fee"`
	EntryOrderID string       `yaml:"entry_order_id" json:"entry_order_id"`
	// StopLoss is 0 when no stop is set.
	StopLoss float64 `yaml:"stop_loss" json:"stop_loss"`
	// TakeProfit is 0 when no target is set.
	TakeProfit float64 `yaml:"take_profit" json:"take_profit"`
}

// Sign is +1 for long positions and -1 for short positions.
func (p Position) Sign() float64 {
	if p.Type == PositionTypeShort {
		return -1
	}

	return 1
}

// MarketValue is the position's contribution to equity at price.
// Long positions are worth their notional; short positions owe it back.
func (p Position) MarketValue(price float64) float64 {
	return p.Sign() * p.Quantity * price
}

// ExitSide is the order side that closes the position.
func (p Position) ExitSide() PurchaseType {
	if p.Type == PositionTypeShort {
		return PurchaseTypeBuy
	}

	return PurchaseTypeSell
}
