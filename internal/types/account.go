package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// AccountState is the mutable account owned by exactly one engine instance.
type AccountState struct {
	Cash            float64 `yaml:"cash" json:"cash"`
	Equity          float64 `yaml:"equity" json:"equity"`
	DailyTradeCount int     `yaml:"daily_trade_count" json:"daily_trade_count"`
	// DailyLoss accumulates realized losses (as a positive amount) since the start of Day.
	DailyLoss  float64 `yaml:"daily_loss" json:"daily_loss"`
	PeakEquity float64 `yaml:"peak_equity" json:"peak_equity"`
	// Day is the calendar day the daily counters belong to, truncated to midnight.
	Day      time.Time                 `yaml:"day" json:"day"`
	Position optional.Option[Position] `yaml:"position" json:"position"`
}

// NewAccountState returns a flat account holding only cash.
func NewAccountState(initialCash float64) AccountState {
	return AccountState{
		Cash:            initialCash,
		Equity:          initialCash,
		DailyTradeCount: 0,
		DailyLoss:       0,
		PeakEquity:      initialCash,
		Day:             time.Time{},
		Position:        optional.None[Position](),
	}
}

// HasPosition reports whether a position is open.
func (a AccountState) HasPosition() bool {
	return a.Position.IsSome()
}

// MarkToMarket recomputes equity from cash and the open position valued at price.
func (a *AccountState) MarkToMarket(price float64) {
	equity := a.Cash
	if a.Position.IsSome() {
		equity += a.Position.Unwrap().MarketValue(price)
	}

	a.Equity = equity
}

// RollDay resets the daily counters when t falls on a later calendar day in loc.
// It returns true when a reset happened.
func (a *AccountState) RollDay(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if a.Day.IsZero() {
		a.Day = day

		return false
	}

	if !day.After(a.Day) {
		return false
	}

	a.Day = day
	a.DailyTradeCount = 0
	a.DailyLoss = 0

	return true
}
